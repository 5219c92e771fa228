package docket

import (
	"errors"
	"testing"
	"time"

	"casedesk.org/internal/auth"
)

func TestParseDate(t *testing.T) {
	d, err := ParseDate("2024-06-10")
	if err != nil || d != "2024-06-10" {
		t.Fatalf("ParseDate = %q, %v", d, err)
	}
	for _, raw := range []string{"", "2024-02-30", "10/06/2024", "2024-6-1"} {
		if _, err := ParseDate(raw); !errors.Is(err, auth.ErrInvalidInput) {
			t.Fatalf("ParseDate(%q) expected ErrInvalidInput, got %v", raw, err)
		}
	}
}

func TestDateArithmetic(t *testing.T) {
	d := Date("2024-02-28")
	if got := d.AddDays(1); got != "2024-02-29" {
		t.Fatalf("leap day: %s", got)
	}
	if got := d.AddDays(2); got != "2024-03-01" {
		t.Fatalf("month rollover: %s", got)
	}
	if got := Date("2024-06-10").Weekday(); got != time.Monday {
		t.Fatalf("weekday: %s", got)
	}
	if got := Date("bogus").AddDays(3); got != "bogus" {
		t.Fatalf("invalid date must stay unchanged, got %s", got)
	}
}

func TestParseClock(t *testing.T) {
	cases := map[string]string{"": "", "09:30": "09:30", "14:00:00": "14:00", " 23:59 ": "23:59"}
	for in, want := range cases {
		got, err := ParseClock(in)
		if err != nil || got != want {
			t.Fatalf("ParseClock(%q) = %q, %v; want %q", in, got, err, want)
		}
	}
	for _, in := range []string{"24:00", "9h", "12:60"} {
		if _, err := ParseClock(in); err == nil {
			t.Fatalf("ParseClock(%q) expected error", in)
		}
	}
}

func TestStatusToggle(t *testing.T) {
	if StatusCompleted.Toggled() != StatusPending {
		t.Fatalf("completed should toggle to pending")
	}
	if StatusPending.Toggled() != StatusCompleted || StatusInProgress.Toggled() != StatusCompleted {
		t.Fatalf("non-completed should toggle to completed")
	}
}

func TestParseCaseStatusAcceptsLabels(t *testing.T) {
	for raw, want := range map[string]CaseStatus{"": CaseOpen, "in_court": CaseInCourt, "Em Juízo": CaseInCourt, "baixado": CaseClosed} {
		got, err := ParseCaseStatus(raw)
		if err != nil || got != want {
			t.Fatalf("ParseCaseStatus(%q) = %q, %v", raw, got, err)
		}
	}
	if CaseSuspended.Label() != "Suspenso" {
		t.Fatalf("label mismatch")
	}
	if _, err := ParseCaseStatus("pending"); err == nil {
		t.Fatalf("unknown status must fail")
	}
}

func TestNewDocumentDefaults(t *testing.T) {
	now := time.Date(2024, 6, 10, 12, 0, 0, 0, time.UTC)
	doc := NewDocument("d1", FileMeta{Name: "peticao.pdf", Size: 12800}, "Ana", now)
	if doc.MimeType != DefaultMimeType || doc.SizeLabel != "12.50 KB" || doc.URL != "#" {
		t.Fatalf("unexpected document %+v", doc)
	}
	if doc.UploadedBy != "Ana" || !doc.UploadDate.Equal(now) {
		t.Fatalf("unexpected uploader fields %+v", doc)
	}
}

func TestEventCloneIsolation(t *testing.T) {
	e := Event{ID: "e1", AssignedTo: []string{"u1"}, Chat: []ChatMessage{{ID: "m1"}}}
	c := e.Clone()
	c.AssignedTo[0] = "u2"
	c.Chat[0].Text = "changed"
	if e.AssignedTo[0] != "u1" || e.Chat[0].Text != "" {
		t.Fatalf("clone shares storage with original")
	}
	if !e.IsAssigned("u1") || e.IsAssigned("") {
		t.Fatalf("IsAssigned mismatch")
	}
	if empty := (Event{}).Clone(); empty.AssignedTo == nil || empty.Chat == nil {
		t.Fatalf("clone should normalise nil slices")
	}
}
