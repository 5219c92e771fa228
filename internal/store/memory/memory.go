// Package memory is an in-process record store. It backs development runs
// without a database and lets tests inject remote failures.
package memory

import (
	"context"
	"slices"
	"sync"

	"github.com/google/uuid"

	"casedesk.org/internal/auth"
	"casedesk.org/internal/docket"
)

// Operation names reported by Calls and accepted by FailOn and Hold.
const (
	OpListUsers          = "ListUsers"
	OpListContacts       = "ListContacts"
	OpInsertContact      = "InsertContact"
	OpListCases          = "ListCases"
	OpInsertCase         = "InsertCase"
	OpInsertDocument     = "InsertDocument"
	OpListEvents         = "ListEvents"
	OpGetEvent           = "GetEvent"
	OpInsertEvent        = "InsertEvent"
	OpUpdateEvent        = "UpdateEvent"
	OpUpdateEventDate    = "UpdateEventDate"
	OpDeleteEvent        = "DeleteEvent"
	OpInsertAssignments  = "InsertAssignments"
	OpReplaceAssignments = "ReplaceAssignments"
	OpInsertChatMessage  = "InsertChatMessage"
	OpCreateUser         = "CreateUser"
	OpFindCredential     = "FindCredential"
)

type documentRow struct {
	caseID     string
	doc        docket.CaseDocument
	uploaderID string
}

type chatRow struct {
	eventID string
	msg     docket.ChatMessage
}

type userRow struct {
	user auth.User
	hash string
}

// Store implements docket.Store and auth.UserStore.
type Store struct {
	mu          sync.Mutex
	users       []userRow
	contacts    []docket.Contact
	cases       []docket.Case
	documents   []documentRow
	events      []docket.Event
	assignments map[string][]string
	chat        []chatRow

	calls []string
	fail  map[string]error
	hold  map[string]<-chan struct{}
	newID func() string
}

var (
	_ docket.Store   = (*Store)(nil)
	_ auth.UserStore = (*Store)(nil)
)

// New returns an empty store issuing UUID server ids.
func New() *Store {
	return &Store{
		assignments: make(map[string][]string),
		fail:        make(map[string]error),
		hold:        make(map[string]<-chan struct{}),
		newID:       uuid.NewString,
	}
}

// FailOn makes every later call of op return err. A nil err clears it.
func (s *Store) FailOn(op string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		delete(s.fail, op)
		return
	}
	s.fail[op] = err
}

// Hold blocks calls of op until release is closed or the call context ends.
func (s *Store) Hold(op string, release <-chan struct{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hold[op] = release
}

// Calls returns the operations invoked so far, in order.
func (s *Store) Calls() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.calls)
}

// CallCount returns how many times op was invoked.
func (s *Store) CallCount(op string) int {
	n := 0
	for _, c := range s.Calls() {
		if c == op {
			n++
		}
	}
	return n
}

// SeedUser inserts u with an optional password hash and returns the stored user.
func (s *Store) SeedUser(u auth.User, hash string) auth.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u.ID == "" {
		u.ID = s.newID()
	}
	u.Email = auth.NormalizeEmail(u.Email)
	s.users = append(s.users, userRow{user: u, hash: hash})
	return u
}

// SeedEvent inserts e with its assignments and chat and returns the stored event.
func (s *Store) SeedEvent(e docket.Event) docket.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e.ID == "" {
		e.ID = s.newID()
	}
	s.assignments[e.ID] = slices.Clone(e.AssignedTo)
	for _, m := range e.Chat {
		s.chat = append(s.chat, chatRow{eventID: e.ID, msg: m})
	}
	row := e.Clone()
	row.AssignedTo, row.Chat = nil, nil
	s.events = append(s.events, row)
	return e
}

// begin records op and applies any configured hold or failure.
func (s *Store) begin(ctx context.Context, op string) error {
	s.mu.Lock()
	s.calls = append(s.calls, op)
	release := s.hold[op]
	s.mu.Unlock()

	if release != nil {
		select {
		case <-release:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fail[op]
}

func (s *Store) ListUsers(ctx context.Context) ([]auth.User, error) {
	if err := s.begin(ctx, OpListUsers); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]auth.User, 0, len(s.users))
	for _, row := range s.users {
		u := row.user
		if u.Avatar == "" {
			u.Avatar = auth.DefaultAvatar(u.Name)
		}
		out = append(out, u)
	}
	return out, nil
}

func (s *Store) CreateUser(ctx context.Context, u auth.User, passwordHash string) (auth.User, error) {
	if err := s.begin(ctx, OpCreateUser); err != nil {
		return auth.User{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	u.Email = auth.NormalizeEmail(u.Email)
	for _, row := range s.users {
		if row.user.Email == u.Email {
			return auth.User{}, auth.ErrConflict
		}
	}
	u.ID = s.newID()
	s.users = append(s.users, userRow{user: u, hash: passwordHash})
	return u, nil
}

func (s *Store) FindCredential(ctx context.Context, email string) (auth.Credential, error) {
	if err := s.begin(ctx, OpFindCredential); err != nil {
		return auth.Credential{}, err
	}
	email = auth.NormalizeEmail(email)
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, row := range s.users {
		if row.user.Email == email {
			return auth.Credential{User: row.user, PasswordHash: row.hash}, nil
		}
	}
	return auth.Credential{}, auth.ErrNotFound
}

func (s *Store) ListContacts(ctx context.Context) ([]docket.Contact, error) {
	if err := s.begin(ctx, OpListContacts); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.contacts), nil
}

func (s *Store) InsertContact(ctx context.Context, c docket.Contact) (string, error) {
	if err := s.begin(ctx, OpInsertContact); err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	c.ID = s.newID()
	s.contacts = append(s.contacts, c)
	return c.ID, nil
}

func (s *Store) ListCases(ctx context.Context) ([]docket.Case, error) {
	if err := s.begin(ctx, OpListCases); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]docket.Case, 0, len(s.cases))
	for _, c := range s.cases {
		c.Documents = []docket.CaseDocument{}
		for _, row := range s.documents {
			if row.caseID != c.ID {
				continue
			}
			doc := row.doc
			doc.UploadedBy = s.userNameLocked(row.uploaderID)
			c.Documents = append(c.Documents, doc)
		}
		out = append(out, c)
	}
	return out, nil
}

func (s *Store) userNameLocked(id string) string {
	for _, row := range s.users {
		if row.user.ID == id {
			return row.user.Name
		}
	}
	return id
}

func (s *Store) InsertCase(ctx context.Context, c docket.Case) (string, error) {
	if err := s.begin(ctx, OpInsertCase); err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	c.ID = s.newID()
	c.Documents = nil
	s.cases = append(s.cases, c)
	return c.ID, nil
}

func (s *Store) InsertDocument(ctx context.Context, caseID string, doc docket.CaseDocument, uploaderID string) (string, error) {
	if err := s.begin(ctx, OpInsertDocument); err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	doc.ID = s.newID()
	s.documents = append(s.documents, documentRow{caseID: caseID, doc: doc, uploaderID: uploaderID})
	return doc.ID, nil
}

func (s *Store) ListEvents(ctx context.Context) ([]docket.Event, error) {
	if err := s.begin(ctx, OpListEvents); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]docket.Event, 0, len(s.events))
	for _, e := range s.events {
		e = s.joinLocked(e)
		for _, row := range s.chat {
			if row.eventID == e.ID {
				e.Chat = append(e.Chat, row.msg)
			}
		}
		out = append(out, e)
	}
	return out, nil
}

func (s *Store) joinLocked(e docket.Event) docket.Event {
	e = e.Clone()
	e.AssignedTo = append(e.AssignedTo, s.assignments[e.ID]...)
	return e
}

func (s *Store) GetEvent(ctx context.Context, id string) (docket.Event, error) {
	if err := s.begin(ctx, OpGetEvent); err != nil {
		return docket.Event{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.events {
		if e.ID == id {
			return s.joinLocked(e), nil
		}
	}
	return docket.Event{}, docket.ErrNotFound
}

func (s *Store) InsertEvent(ctx context.Context, e docket.Event) (string, error) {
	if err := s.begin(ctx, OpInsertEvent); err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	e.ID = s.newID()
	e.AssignedTo, e.Chat = nil, nil
	s.events = append(s.events, e)
	return e.ID, nil
}

func (s *Store) UpdateEvent(ctx context.Context, e docket.Event) error {
	if err := s.begin(ctx, OpUpdateEvent); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.events {
		if s.events[i].ID == e.ID {
			e.AssignedTo, e.Chat = nil, nil
			s.events[i] = e
			return nil
		}
	}
	return docket.ErrNotFound
}

func (s *Store) UpdateEventDate(ctx context.Context, id string, date docket.Date) error {
	if err := s.begin(ctx, OpUpdateEventDate); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.events {
		if s.events[i].ID == id {
			s.events[i].Date = date
			return nil
		}
	}
	return docket.ErrNotFound
}

func (s *Store) DeleteEvent(ctx context.Context, id string) error {
	if err := s.begin(ctx, OpDeleteEvent); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = slices.DeleteFunc(s.events, func(e docket.Event) bool { return e.ID == id })
	delete(s.assignments, id)
	s.chat = slices.DeleteFunc(s.chat, func(r chatRow) bool { return r.eventID == id })
	return nil
}

func (s *Store) InsertAssignments(ctx context.Context, eventID string, userIDs []string) error {
	if err := s.begin(ctx, OpInsertAssignments); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.assignments[eventID] = append(s.assignments[eventID], userIDs...)
	return nil
}

func (s *Store) ReplaceAssignments(ctx context.Context, eventID string, userIDs []string) error {
	if err := s.begin(ctx, OpReplaceAssignments); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(userIDs) == 0 {
		delete(s.assignments, eventID)
		return nil
	}
	s.assignments[eventID] = slices.Clone(userIDs)
	return nil
}

func (s *Store) InsertChatMessage(ctx context.Context, eventID string, m docket.ChatMessage) (string, error) {
	if err := s.begin(ctx, OpInsertChatMessage); err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	m.ID = s.newID()
	s.chat = append(s.chat, chatRow{eventID: eventID, msg: m})
	return m.ID, nil
}
