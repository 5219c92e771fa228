// Package rest implements the persistence contract against a PostgREST
// endpoint, the hosted-Postgres REST surface the office used before the
// server existed. Rows cross the wire with their column names and are mapped
// through the DTOs in rows.go.
package rest

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"casedesk.org/internal/auth"
	"casedesk.org/internal/docket"
)

// Store talks to PostgREST over HTTP.
type Store struct {
	http *resty.Client
	log  *zap.Logger
}

var (
	_ docket.Store   = (*Store)(nil)
	_ auth.UserStore = (*Store)(nil)
)

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger.
func WithLogger(log *zap.Logger) Option {
	return func(s *Store) {
		if log != nil {
			s.log = log
		}
	}
}

// WithRetries retries requests that fail at the transport level.
func WithRetries(n int) Option {
	return func(s *Store) {
		s.http.SetRetryCount(n).
			SetRetryWaitTime(200 * time.Millisecond).
			SetRetryMaxWaitTime(2 * time.Second)
	}
}

// New builds a client for baseURL (for example https://x.supabase.co/rest/v1).
// apiKey is sent both as the apikey header and as the bearer token.
func New(baseURL, apiKey string, timeout time.Duration, opts ...Option) *Store {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	client := resty.New().
		SetBaseURL(strings.TrimRight(baseURL, "/")).
		SetTimeout(timeout).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")
	if apiKey != "" {
		client.SetHeader("apikey", apiKey).SetAuthToken(apiKey)
	}
	s := &Store{http: client, log: zap.NewNop()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// APIError is the error body PostgREST answers with.
type APIError struct {
	Status  int    `json:"-"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details"`
	Hint    string `json:"hint"`
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("postgrest %d %s: %s", e.Status, e.Code, e.Message)
	}
	return fmt.Sprintf("postgrest %d: %s", e.Status, e.Message)
}

const uniqueViolation = "23505"

func (s *Store) request(ctx context.Context) *resty.Request {
	return s.http.R().SetContext(ctx).SetError(&APIError{})
}

// check turns a transport error or non-2xx answer into an error.
func (s *Store) check(op string, resp *resty.Response, err error) error {
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if !resp.IsError() {
		return nil
	}
	apiErr, ok := resp.Error().(*APIError)
	if !ok || apiErr == nil {
		apiErr = &APIError{}
	}
	apiErr.Status = resp.StatusCode()
	if apiErr.Message == "" {
		apiErr.Message = strings.TrimSpace(resp.String())
	}
	s.log.Debug("postgrest error",
		zap.String("op", op),
		zap.Int("status", apiErr.Status),
		zap.String("code", apiErr.Code),
	)
	switch {
	case apiErr.Status == http.StatusConflict || apiErr.Code == uniqueViolation:
		return fmt.Errorf("%s: %w", op, errors.Join(auth.ErrConflict, apiErr))
	case apiErr.Status == http.StatusNotFound:
		return fmt.Errorf("%s: %w", op, errors.Join(docket.ErrNotFound, apiErr))
	}
	return fmt.Errorf("%s: %w", op, apiErr)
}

// list runs a GET against table and decodes the row array into out.
func (s *Store) list(ctx context.Context, table string, params map[string]string, out any) error {
	resp, err := s.request(ctx).
		SetQueryParams(params).
		SetResult(out).
		Get("/" + table)
	return s.check("select "+table, resp, err)
}

// insert posts rows and returns the id of the first row created.
func (s *Store) insert(ctx context.Context, table string, body any) (string, error) {
	var created []idRow
	resp, err := s.request(ctx).
		SetHeader("Prefer", "return=representation").
		SetQueryParam("select", "id").
		SetBody(body).
		SetResult(&created).
		Post("/" + table)
	if err := s.check("insert "+table, resp, err); err != nil {
		return "", err
	}
	if len(created) == 0 || created[0].ID == "" {
		return "", fmt.Errorf("insert %s: no row returned", table)
	}
	return created[0].ID, nil
}

func (s *Store) patch(ctx context.Context, table, id string, body any) error {
	var updated []idRow
	resp, err := s.request(ctx).
		SetHeader("Prefer", "return=representation").
		SetQueryParams(map[string]string{"id": "eq." + id, "select": "id"}).
		SetBody(body).
		SetResult(&updated).
		Patch("/" + table)
	if err := s.check("update "+table, resp, err); err != nil {
		return err
	}
	if len(updated) == 0 {
		return fmt.Errorf("update %s %s: %w", table, id, docket.ErrNotFound)
	}
	return nil
}

func (s *Store) remove(ctx context.Context, table, column, value string) error {
	resp, err := s.request(ctx).
		SetQueryParam(column, "eq."+value).
		Delete("/" + table)
	return s.check("delete "+table, resp, err)
}

func (s *Store) ListUsers(ctx context.Context) ([]auth.User, error) {
	var rows []userRow
	if err := s.list(ctx, "users", map[string]string{
		"select": "id,name,email,role,avatar",
		"order":  "created_at.asc",
	}, &rows); err != nil {
		return nil, err
	}
	out := make([]auth.User, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.user())
	}
	return out, nil
}

func (s *Store) CreateUser(ctx context.Context, u auth.User, passwordHash string) (auth.User, error) {
	u.Email = auth.NormalizeEmail(u.Email)
	id, err := s.insert(ctx, "users", []newUserRow{{
		Name:     u.Name,
		Email:    u.Email,
		Role:     string(u.Role),
		Avatar:   optional(u.Avatar),
		Password: optional(passwordHash),
	}})
	if err != nil {
		return auth.User{}, err
	}
	u.ID = id
	return u, nil
}

func (s *Store) FindCredential(ctx context.Context, email string) (auth.Credential, error) {
	var rows []userRow
	if err := s.list(ctx, "users", map[string]string{
		"select": "id,name,email,role,avatar,password",
		"email":  "eq." + auth.NormalizeEmail(email),
		"limit":  "1",
	}, &rows); err != nil {
		return auth.Credential{}, err
	}
	if len(rows) == 0 {
		return auth.Credential{}, auth.ErrNotFound
	}
	return auth.Credential{User: rows[0].user(), PasswordHash: deref(rows[0].Password)}, nil
}

func (s *Store) ListContacts(ctx context.Context) ([]docket.Contact, error) {
	var rows []contactRow
	if err := s.list(ctx, "contacts", map[string]string{"select": "*", "order": "created_at.asc"}, &rows); err != nil {
		return nil, err
	}
	out := make([]docket.Contact, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.contact())
	}
	return out, nil
}

func (s *Store) InsertContact(ctx context.Context, c docket.Contact) (string, error) {
	return s.insert(ctx, "contacts", []contactRow{newContactRow(c)})
}

func (s *Store) ListCases(ctx context.Context) ([]docket.Case, error) {
	var rows []caseRow
	if err := s.list(ctx, "cases", map[string]string{
		"select":               "*,case_documents(*,uploader:users(name))",
		"order":                "created_at.asc",
		"case_documents.order": "seq.asc",
	}, &rows); err != nil {
		return nil, err
	}
	out := make([]docket.Case, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.caseRecord())
	}
	return out, nil
}

func (s *Store) InsertCase(ctx context.Context, c docket.Case) (string, error) {
	return s.insert(ctx, "cases", []newCaseRow{newCaseRowFrom(c)})
}

func (s *Store) InsertDocument(ctx context.Context, caseID string, doc docket.CaseDocument, uploaderID string) (string, error) {
	return s.insert(ctx, "case_documents", []newDocumentRow{{
		CaseID:     caseID,
		Name:       doc.Name,
		Type:       doc.MimeType,
		Size:       doc.SizeLabel,
		UploadDate: doc.UploadDate.UTC(),
		UploadedBy: uploaderID,
		URL:        optional(doc.URL),
	}})
}

const eventSelect = "*,event_assignments(user_id),chat_messages(*)"

func (s *Store) ListEvents(ctx context.Context) ([]docket.Event, error) {
	var rows []eventRow
	if err := s.list(ctx, "calendar_events", map[string]string{
		"select":                  eventSelect,
		"order":                   "created_at.asc",
		"event_assignments.order": "seq.asc",
		"chat_messages.order":     "seq.asc",
	}, &rows); err != nil {
		return nil, err
	}
	out := make([]docket.Event, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.event(true))
	}
	return out, nil
}

func (s *Store) GetEvent(ctx context.Context, id string) (docket.Event, error) {
	var rows []eventRow
	if err := s.list(ctx, "calendar_events", map[string]string{
		"select":                  "*,event_assignments(user_id)",
		"id":                      "eq." + id,
		"event_assignments.order": "seq.asc",
	}, &rows); err != nil {
		return docket.Event{}, err
	}
	if len(rows) == 0 {
		return docket.Event{}, fmt.Errorf("event %s: %w", id, docket.ErrNotFound)
	}
	return rows[0].event(false), nil
}

func (s *Store) InsertEvent(ctx context.Context, e docket.Event) (string, error) {
	return s.insert(ctx, "calendar_events", []eventPatch{newEventPatch(e)})
}

func (s *Store) UpdateEvent(ctx context.Context, e docket.Event) error {
	return s.patch(ctx, "calendar_events", e.ID, newEventPatch(e))
}

func (s *Store) UpdateEventDate(ctx context.Context, id string, date docket.Date) error {
	return s.patch(ctx, "calendar_events", id, map[string]string{"event_date": string(date)})
}

func (s *Store) DeleteEvent(ctx context.Context, id string) error {
	return s.remove(ctx, "calendar_events", "id", id)
}

func (s *Store) InsertAssignments(ctx context.Context, eventID string, userIDs []string) error {
	if len(userIDs) == 0 {
		return nil
	}
	rows := make([]assignmentRow, 0, len(userIDs))
	for _, id := range userIDs {
		rows = append(rows, assignmentRow{EventID: eventID, UserID: id})
	}
	resp, err := s.request(ctx).
		SetHeader("Prefer", "return=minimal,resolution=ignore-duplicates").
		SetBody(rows).
		Post("/event_assignments")
	return s.check("insert event_assignments", resp, err)
}

// ReplaceAssignments deletes then inserts. PostgREST offers no transaction
// across requests, so a failure between the two leaves the set empty.
func (s *Store) ReplaceAssignments(ctx context.Context, eventID string, userIDs []string) error {
	if err := s.remove(ctx, "event_assignments", "event_id", eventID); err != nil {
		return err
	}
	return s.InsertAssignments(ctx, eventID, userIDs)
}

func (s *Store) InsertChatMessage(ctx context.Context, eventID string, m docket.ChatMessage) (string, error) {
	return s.insert(ctx, "chat_messages", []chatRow{{
		EventID:   eventID,
		UserID:    m.UserID,
		Text:      m.Text,
		Timestamp: m.Timestamp.UTC(),
	}})
}

// Ping checks that the endpoint answers.
func (s *Store) Ping(ctx context.Context) error {
	var rows []idRow
	return s.list(ctx, "users", map[string]string{"select": "id", "limit": "1"}, &rows)
}
