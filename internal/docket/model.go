package docket

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"casedesk.org/internal/auth"
)

// ContactType distinguishes clients from opposing parties.
type ContactType string

const (
	ContactClient        ContactType = "CLIENT"
	ContactOpposingParty ContactType = "OPPOSING_PARTY"
)

// ParseContactType validates raw input from the API.
func ParseContactType(raw string) (ContactType, error) {
	switch t := ContactType(strings.ToUpper(strings.TrimSpace(raw))); t {
	case ContactClient, ContactOpposingParty:
		return t, nil
	default:
		return "", fmt.Errorf("%w: unknown contact type %q", auth.ErrInvalidInput, raw)
	}
}

// Contact is a client or an opposing party. Contacts are append-only.
type Contact struct {
	ID    string      `json:"id"`
	Name  string      `json:"name"`
	Type  ContactType `json:"type"`
	Email string      `json:"email"`
	Phone string      `json:"phone"`
	Notes string      `json:"notes,omitempty"`
}

// CaseStatus is the procedural state of a case.
type CaseStatus string

const (
	CaseOpen      CaseStatus = "OPEN"
	CaseInCourt   CaseStatus = "IN_COURT"
	CaseClosed    CaseStatus = "CLOSED"
	CaseArchived  CaseStatus = "ARCHIVED"
	CaseSuspended CaseStatus = "SUSPENDED"
)

var caseLabels = map[CaseStatus]string{
	CaseOpen:      "Ativo",
	CaseInCourt:   "Em Juízo",
	CaseClosed:    "Baixado",
	CaseArchived:  "Arquivado",
	CaseSuspended: "Suspenso",
}

// Label is the display text used by the office.
func (s CaseStatus) Label() string {
	if l, ok := caseLabels[s]; ok {
		return l
	}
	return string(s)
}

// ParseCaseStatus accepts either the status code or its display label.
func ParseCaseStatus(raw string) (CaseStatus, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return CaseOpen, nil
	}
	if s := CaseStatus(strings.ToUpper(raw)); caseLabels[s] != "" {
		return s, nil
	}
	for s, l := range caseLabels {
		if strings.EqualFold(l, raw) {
			return s, nil
		}
	}
	return "", fmt.Errorf("%w: unknown case status %q", auth.ErrInvalidInput, raw)
}

// Case is a legal matter. It owns its documents; events point at it by id.
type Case struct {
	ID          string         `json:"id"`
	Number      string         `json:"number"`
	Title       string         `json:"title"`
	ClientID    string         `json:"clientId"`
	Status      CaseStatus     `json:"status"`
	Description string         `json:"description"`
	OpenDate    Date           `json:"openDate"`
	Court       string         `json:"court,omitempty"`
	Partes      string         `json:"partes,omitempty"`
	Documents   []CaseDocument `json:"documents"`
}

// Clone returns a copy that shares no slices with c.
func (c Case) Clone() Case {
	c.Documents = slices.Clone(c.Documents)
	if c.Documents == nil {
		c.Documents = []CaseDocument{}
	}
	return c
}

// CaseDocument is the metadata of an uploaded file. UploadedBy is the
// uploader's name at upload time, not a user reference.
type CaseDocument struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	MimeType   string    `json:"type"`
	SizeLabel  string    `json:"size"`
	UploadDate time.Time `json:"uploadDate"`
	UploadedBy string    `json:"uploadedBy"`
	URL        string    `json:"url,omitempty"`
}

// DefaultMimeType is assumed when an upload does not declare one.
const DefaultMimeType = "application/pdf"

// FileMeta describes an uploaded file as handed over by the blob store.
type FileMeta struct {
	Name     string
	MimeType string
	Size     int64
	URL      string
}

// SizeLabel renders a byte count the way documents list it, e.g. "12.50 KB".
func SizeLabel(size int64) string {
	return fmt.Sprintf("%.2f KB", float64(size)/1024)
}

// NewDocument builds the document record for file uploaded by uploader at now.
func NewDocument(id string, file FileMeta, uploader string, now time.Time) CaseDocument {
	mime := file.MimeType
	if mime == "" {
		mime = DefaultMimeType
	}
	url := file.URL
	if url == "" {
		url = "#"
	}
	return CaseDocument{
		ID:         id,
		Name:       file.Name,
		MimeType:   mime,
		SizeLabel:  SizeLabel(file.Size),
		UploadDate: now.UTC(),
		UploadedBy: uploader,
		URL:        url,
	}
}

// EventType distinguishes internal tasks from appointments.
type EventType string

const (
	EventTask        EventType = "TASK"
	EventAppointment EventType = "APPOINTMENT"
)

// ParseEventType validates raw input from the API.
func ParseEventType(raw string) (EventType, error) {
	switch t := EventType(strings.ToUpper(strings.TrimSpace(raw))); t {
	case EventTask, EventAppointment:
		return t, nil
	default:
		return "", fmt.Errorf("%w: unknown event type %q", auth.ErrInvalidInput, raw)
	}
}

// EventStatus is the progress of an event. IN_PROGRESS is accepted from the
// store but no transition produces it.
type EventStatus string

const (
	StatusPending    EventStatus = "PENDING"
	StatusInProgress EventStatus = "IN_PROGRESS"
	StatusCompleted  EventStatus = "COMPLETED"
)

// ParseEventStatus validates raw input; empty means PENDING.
func ParseEventStatus(raw string) (EventStatus, error) {
	switch s := EventStatus(strings.ToUpper(strings.TrimSpace(raw))); s {
	case "":
		return StatusPending, nil
	case StatusPending, StatusInProgress, StatusCompleted:
		return s, nil
	default:
		return "", fmt.Errorf("%w: unknown event status %q", auth.ErrInvalidInput, raw)
	}
}

// Toggled is the status after the completion toggle: COMPLETED goes back to
// PENDING, anything else becomes COMPLETED.
func (s EventStatus) Toggled() EventStatus {
	if s == StatusCompleted {
		return StatusPending
	}
	return StatusCompleted
}

// Event is a calendar entry. It owns its assignment set and chat thread.
type Event struct {
	ID          string        `json:"id"`
	Title       string        `json:"title"`
	Type        EventType     `json:"type"`
	Date        Date          `json:"date"`
	Time        string        `json:"time,omitempty"`
	Description string        `json:"description,omitempty"`
	Status      EventStatus   `json:"status"`
	CaseID      string        `json:"caseId,omitempty"`
	AssignedTo  []string      `json:"assignedToIds"`
	Chat        []ChatMessage `json:"chatMessages"`
}

// Clone returns a copy that shares no slices with e.
func (e Event) Clone() Event {
	e.AssignedTo = slices.Clone(e.AssignedTo)
	if e.AssignedTo == nil {
		e.AssignedTo = []string{}
	}
	e.Chat = slices.Clone(e.Chat)
	if e.Chat == nil {
		e.Chat = []ChatMessage{}
	}
	return e
}

// IsAssigned reports whether userID is in the assignment set.
func (e Event) IsAssigned(userID string) bool {
	return userID != "" && slices.Contains(e.AssignedTo, userID)
}

// ChatMessage is one entry of an event thread. Messages are never edited.
type ChatMessage struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}
