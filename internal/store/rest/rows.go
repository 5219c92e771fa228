package rest

import (
	"strings"
	"time"

	"casedesk.org/internal/auth"
	"casedesk.org/internal/docket"
)

type idRow struct {
	ID string `json:"id"`
}

type userRow struct {
	ID       string  `json:"id"`
	Name     string  `json:"name"`
	Email    string  `json:"email"`
	Role     string  `json:"role"`
	Avatar   *string `json:"avatar"`
	Password *string `json:"password,omitempty"`
}

func (r userRow) user() auth.User {
	u := auth.User{ID: r.ID, Name: r.Name, Email: r.Email, Role: auth.Role(r.Role), Avatar: deref(r.Avatar)}
	if u.Avatar == "" {
		u.Avatar = auth.DefaultAvatar(u.Name)
	}
	return u
}

type newUserRow struct {
	Name     string  `json:"name"`
	Email    string  `json:"email"`
	Role     string  `json:"role"`
	Avatar   *string `json:"avatar"`
	Password *string `json:"password"`
}

type contactRow struct {
	ID    string  `json:"id,omitempty"`
	Name  string  `json:"name"`
	Type  string  `json:"type"`
	Email *string `json:"email"`
	Phone *string `json:"phone"`
	Notes *string `json:"notes"`
}

func newContactRow(c docket.Contact) contactRow {
	return contactRow{
		Name:  c.Name,
		Type:  string(c.Type),
		Email: optional(c.Email),
		Phone: optional(c.Phone),
		Notes: optional(c.Notes),
	}
}

func (r contactRow) contact() docket.Contact {
	return docket.Contact{
		ID:    r.ID,
		Name:  r.Name,
		Type:  docket.ContactType(r.Type),
		Email: deref(r.Email),
		Phone: deref(r.Phone),
		Notes: deref(r.Notes),
	}
}

type caseRow struct {
	ID          string        `json:"id"`
	Number      string        `json:"number"`
	Title       string        `json:"title"`
	ClientID    *string       `json:"client_id"`
	Status      string        `json:"status"`
	Description *string       `json:"description"`
	OpenDate    *string       `json:"open_date"`
	Court       *string       `json:"court"`
	Partes      *string       `json:"partes"`
	Documents   []documentRow `json:"case_documents"`
}

func (r caseRow) caseRecord() docket.Case {
	c := docket.Case{
		ID:          r.ID,
		Number:      r.Number,
		Title:       r.Title,
		ClientID:    deref(r.ClientID),
		Status:      docket.CaseStatus(r.Status),
		Description: deref(r.Description),
		OpenDate:    docket.Date(deref(r.OpenDate)),
		Court:       deref(r.Court),
		Partes:      deref(r.Partes),
		Documents:   make([]docket.CaseDocument, 0, len(r.Documents)),
	}
	for _, d := range r.Documents {
		c.Documents = append(c.Documents, d.document())
	}
	return c
}

type newCaseRow struct {
	Number      string  `json:"number"`
	Title       string  `json:"title"`
	ClientID    *string `json:"client_id"`
	Status      string  `json:"status"`
	Court       *string `json:"court"`
	Partes      *string `json:"partes"`
	Description *string `json:"description"`
	OpenDate    *string `json:"open_date"`
}

func newCaseRowFrom(c docket.Case) newCaseRow {
	return newCaseRow{
		Number:      c.Number,
		Title:       c.Title,
		ClientID:    optional(c.ClientID),
		Status:      string(c.Status),
		Court:       optional(c.Court),
		Partes:      optional(c.Partes),
		Description: optional(c.Description),
		OpenDate:    optional(string(c.OpenDate)),
	}
}

type uploaderRow struct {
	Name string `json:"name"`
}

type documentRow struct {
	ID         string       `json:"id"`
	Name       string       `json:"name"`
	Type       string       `json:"type"`
	Size       string       `json:"size"`
	UploadDate time.Time    `json:"upload_date"`
	UploadedBy string       `json:"uploaded_by"`
	Uploader   *uploaderRow `json:"uploader"`
	URL        *string      `json:"url"`
}

func (r documentRow) document() docket.CaseDocument {
	by := r.UploadedBy
	if r.Uploader != nil && r.Uploader.Name != "" {
		by = r.Uploader.Name
	}
	return docket.CaseDocument{
		ID:         r.ID,
		Name:       r.Name,
		MimeType:   r.Type,
		SizeLabel:  r.Size,
		UploadDate: r.UploadDate.UTC(),
		UploadedBy: by,
		URL:        deref(r.URL),
	}
}

type newDocumentRow struct {
	CaseID     string    `json:"case_id"`
	Name       string    `json:"name"`
	Type       string    `json:"type"`
	Size       string    `json:"size"`
	UploadDate time.Time `json:"upload_date"`
	UploadedBy string    `json:"uploaded_by"`
	URL        *string   `json:"url"`
}

type assignmentRow struct {
	EventID string `json:"event_id,omitempty"`
	UserID  string `json:"user_id"`
}

type chatRow struct {
	ID        string    `json:"id,omitempty"`
	EventID   string    `json:"event_id,omitempty"`
	UserID    string    `json:"user_id"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

type eventRow struct {
	ID          string          `json:"id"`
	Title       string          `json:"title"`
	Type        string          `json:"type"`
	EventDate   string          `json:"event_date"`
	EventTime   *string         `json:"event_time"`
	Description *string         `json:"description"`
	Status      string          `json:"status"`
	CaseID      *string         `json:"case_id"`
	Assignments []assignmentRow `json:"event_assignments"`
	Chat        []chatRow       `json:"chat_messages"`
}

// event maps the row. withChat is false for single-event reads, which do
// not embed the thread.
func (r eventRow) event(withChat bool) docket.Event {
	e := docket.Event{
		ID:          r.ID,
		Title:       r.Title,
		Type:        docket.EventType(r.Type),
		Date:        docket.Date(r.EventDate),
		Time:        clock(deref(r.EventTime)),
		Description: deref(r.Description),
		Status:      docket.EventStatus(r.Status),
		CaseID:      deref(r.CaseID),
		AssignedTo:  make([]string, 0, len(r.Assignments)),
		Chat:        []docket.ChatMessage{},
	}
	for _, a := range r.Assignments {
		e.AssignedTo = append(e.AssignedTo, a.UserID)
	}
	if withChat {
		for _, m := range r.Chat {
			e.Chat = append(e.Chat, docket.ChatMessage{
				ID:        m.ID,
				UserID:    m.UserID,
				Text:      m.Text,
				Timestamp: m.Timestamp.UTC(),
			})
		}
	}
	return e
}

type eventPatch struct {
	Title       string  `json:"title"`
	Type        string  `json:"type"`
	EventDate   string  `json:"event_date"`
	EventTime   *string `json:"event_time"`
	Description *string `json:"description"`
	Status      string  `json:"status"`
	CaseID      *string `json:"case_id"`
}

func newEventPatch(e docket.Event) eventPatch {
	return eventPatch{
		Title:       e.Title,
		Type:        string(e.Type),
		EventDate:   string(e.Date),
		EventTime:   optional(e.Time),
		Description: optional(e.Description),
		Status:      string(e.Status),
		CaseID:      optional(e.CaseID),
	}
}

// clock trims the seconds Postgres appends to time columns.
func clock(raw string) string {
	if len(raw) >= 5 && strings.Count(raw, ":") >= 1 {
		return raw[:5]
	}
	return raw
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
