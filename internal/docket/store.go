package docket

import (
	"context"
	"errors"

	"casedesk.org/internal/auth"
)

// ErrNotFound is returned when a referenced record does not exist.
var ErrNotFound = errors.New("docket: not found")

// Store is the remote record store the workspace writes through to. Inserts
// return the server-assigned id. Calls are independent: creating an event and
// its assignment rows are separate requests with no atomicity between them.
type Store interface {
	ListUsers(ctx context.Context) ([]auth.User, error)

	ListContacts(ctx context.Context) ([]Contact, error)
	InsertContact(ctx context.Context, c Contact) (string, error)

	// ListCases returns every case joined with its documents.
	ListCases(ctx context.Context) ([]Case, error)
	InsertCase(ctx context.Context, c Case) (string, error)
	// InsertDocument stores document metadata; the row records the uploader's id.
	InsertDocument(ctx context.Context, caseID string, doc CaseDocument, uploaderID string) (string, error)

	// ListEvents returns every event joined with assignments and chat messages.
	ListEvents(ctx context.Context) ([]Event, error)
	// GetEvent returns one event joined with its assignments. Chat is not loaded.
	GetEvent(ctx context.Context, id string) (Event, error)
	InsertEvent(ctx context.Context, e Event) (string, error)
	// UpdateEvent writes the scalar fields of e. Assignments are untouched.
	UpdateEvent(ctx context.Context, e Event) error
	UpdateEventDate(ctx context.Context, id string, date Date) error
	DeleteEvent(ctx context.Context, id string) error

	InsertAssignments(ctx context.Context, eventID string, userIDs []string) error
	// ReplaceAssignments deletes the assignment set of eventID and inserts userIDs.
	ReplaceAssignments(ctx context.Context, eventID string, userIDs []string) error

	InsertChatMessage(ctx context.Context, eventID string, m ChatMessage) (string, error)
}
