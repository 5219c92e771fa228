package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"casedesk.org/internal/auth"
	"casedesk.org/internal/docket"
)

func TestEventJoinsAndAssignments(t *testing.T) {
	s := New()
	ctx := context.Background()
	id, err := s.InsertEvent(ctx, docket.Event{Title: "Audiência", Date: "2024-06-10", AssignedTo: []string{"ignored"}})
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	if err := s.InsertAssignments(ctx, id, []string{"u1", "u2"}); err != nil {
		t.Fatalf("assign: %v", err)
	}
	if _, err := s.InsertChatMessage(ctx, id, docket.ChatMessage{UserID: "u1", Text: "oi"}); err != nil {
		t.Fatalf("chat: %v", err)
	}

	got, err := s.GetEvent(ctx, id)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if len(got.AssignedTo) != 2 || len(got.Chat) != 0 {
		t.Fatalf("GetEvent should join assignments only: %+v", got)
	}
	all, _ := s.ListEvents(ctx)
	if len(all) != 1 || len(all[0].Chat) != 1 || all[0].Chat[0].Text != "oi" {
		t.Fatalf("ListEvents should join chat: %+v", all)
	}

	if err := s.ReplaceAssignments(ctx, id, []string{"u3"}); err != nil {
		t.Fatalf("replace: %v", err)
	}
	got, _ = s.GetEvent(ctx, id)
	if len(got.AssignedTo) != 1 || got.AssignedTo[0] != "u3" {
		t.Fatalf("assignments not replaced: %v", got.AssignedTo)
	}
	if _, err := s.GetEvent(ctx, "missing"); !errors.Is(err, docket.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestFailOnAndCalls(t *testing.T) {
	s := New()
	ctx := context.Background()
	boom := errors.New("boom")
	s.FailOn(OpInsertContact, boom)
	if _, err := s.InsertContact(ctx, docket.Contact{Name: "Ana"}); !errors.Is(err, boom) {
		t.Fatalf("expected injected failure, got %v", err)
	}
	s.FailOn(OpInsertContact, nil)
	if _, err := s.InsertContact(ctx, docket.Contact{Name: "Ana"}); err != nil {
		t.Fatalf("failure not cleared: %v", err)
	}
	if s.CallCount(OpInsertContact) != 2 {
		t.Fatalf("calls: %v", s.Calls())
	}
}

func TestHoldBlocksUntilReleased(t *testing.T) {
	s := New()
	release := make(chan struct{})
	s.Hold(OpDeleteEvent, release)

	done := make(chan error, 1)
	go func() { done <- s.DeleteEvent(context.Background(), "e1") }()
	select {
	case <-done:
		t.Fatalf("call returned while held")
	case <-time.After(20 * time.Millisecond):
	}
	close(release)
	if err := <-done; err != nil {
		t.Fatalf("delete: %v", err)
	}

	s.Hold(OpDeleteEvent, make(chan struct{}))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := s.DeleteEvent(ctx, "e1"); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context cancellation, got %v", err)
	}
}

func TestUsersAndDocuments(t *testing.T) {
	s := New()
	ctx := context.Background()
	u, err := s.CreateUser(ctx, auth.User{Name: "Ana Lima", Email: "Ana@X.com", Role: auth.RoleAdmin}, "hash")
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	if _, err := s.CreateUser(ctx, auth.User{Name: "Dup", Email: "ana@x.com"}, ""); !errors.Is(err, auth.ErrConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
	cred, err := s.FindCredential(ctx, " ANA@x.com")
	if err != nil || cred.PasswordHash != "hash" || cred.User.ID != u.ID {
		t.Fatalf("credential lookup: %+v %v", cred, err)
	}

	caseID, _ := s.InsertCase(ctx, docket.Case{Title: "Ação"})
	if _, err := s.InsertDocument(ctx, caseID, docket.CaseDocument{Name: "a.pdf"}, u.ID); err != nil {
		t.Fatalf("document: %v", err)
	}
	cases, _ := s.ListCases(ctx)
	if len(cases) != 1 || len(cases[0].Documents) != 1 || cases[0].Documents[0].UploadedBy != "Ana Lima" {
		t.Fatalf("documents not joined: %+v", cases)
	}
	users, _ := s.ListUsers(ctx)
	if users[0].Avatar == "" {
		t.Fatalf("default avatar missing")
	}
}
