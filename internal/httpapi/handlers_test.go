package httpapi

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"casedesk.org/internal/agenda"
	"casedesk.org/internal/auth"
	"casedesk.org/internal/blob"
	"casedesk.org/internal/docket"
	"casedesk.org/internal/session"
	"casedesk.org/internal/store/memory"
	"casedesk.org/internal/stream"
	"casedesk.org/internal/workspace"
)

const (
	adminEmail  = "admin@casedesk.test"
	lawyerEmail = "lawyer@casedesk.test"
	internEmail = "intern@casedesk.test"
	password    = "secret"
)

var testHash = sync.OnceValue(func() string {
	h, err := auth.HashPassword(password)
	if err != nil {
		panic(err)
	}
	return h
})

type testEnv struct {
	t      *testing.T
	srv    *httptest.Server
	store  *memory.Store
	ws     *workspace.Workspace
	blobs  *blob.Memory
	stream *stream.Stream
}

func newTestEnv(t *testing.T, ready ReadyProbe) *testEnv {
	t.Helper()
	store := memory.New()
	store.SeedUser(auth.User{ID: "u1", Name: "Administrador", Email: adminEmail, Role: auth.RoleAdmin}, testHash())
	store.SeedUser(auth.User{ID: "u2", Name: "Advogado", Email: lawyerEmail, Role: auth.RoleLawyer}, testHash())
	store.SeedUser(auth.User{ID: "u3", Name: "Estagiário", Email: internEmail, Role: auth.RoleIntern}, testHash())
	store.SeedEvent(docket.Event{
		ID: "e1", Title: "Audiência de instrução", Type: docket.EventAppointment,
		Date: "2024-06-10", Time: "14:00", Status: docket.StatusPending, AssignedTo: []string{"u2"},
	})
	store.SeedEvent(docket.Event{
		ID: "e2", Title: "Protocolar petição", Type: docket.EventTask,
		Date: "2024-06-11", Status: docket.StatusPending, AssignedTo: []string{"u3"},
	})

	feed := stream.New()
	ws := workspace.New(store, workspace.WithNotifier(feed))
	require.NoError(t, ws.Load(context.Background()))

	tokens, err := auth.NewTokenIssuer("test-secret")
	require.NoError(t, err)
	blobs := blob.NewMemory()
	api := New(Deps{
		Workspace: ws,
		Planner:   agenda.NewPlanner(ws, nil),
		Sessions:  session.NewGateway(store, session.NewMemoryStore(), tokens, nil),
		Blobs:     blobs,
		Stream:    feed,
		Ready:     ready,
	}, Options{Version: "test", RateBurst: 1000, RatePerSecond: 1000, WaitTimeout: 5 * time.Second})

	srv := httptest.NewServer(api.Handler())
	t.Cleanup(func() {
		srv.Close()
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = ws.Close(ctx)
	})
	return &testEnv{t: t, srv: srv, store: store, ws: ws, blobs: blobs, stream: feed}
}

func (e *testEnv) do(method, path, token string, body any) (*http.Response, []byte) {
	e.t.Helper()
	var rd io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		require.NoError(e.t, err)
		rd = bytes.NewReader(buf)
	}
	req, err := http.NewRequest(method, e.srv.URL+path, rd)
	require.NoError(e.t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return e.send(req, token)
}

func (e *testEnv) send(req *http.Request, token string) (*http.Response, []byte) {
	e.t.Helper()
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := e.srv.Client().Do(req)
	require.NoError(e.t, err)
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(e.t, err)
	return resp, data
}

func (e *testEnv) login(email string) string {
	e.t.Helper()
	resp, body := e.do(http.MethodPost, "/v1/auth/login", "", map[string]string{"email": email, "password": password})
	require.Equal(e.t, http.StatusOK, resp.StatusCode, string(body))
	var sess session.Session
	require.NoError(e.t, json.Unmarshal(body, &sess))
	require.NotEmpty(e.t, sess.Token)
	return sess.Token
}

func decode[T any](t *testing.T, body []byte) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(body, &v), string(body))
	return v
}

type opBody[T any] struct {
	Op            string `json:"op"`
	Phase         string `json:"phase"`
	ID            string `json:"id"`
	ProvisionalID string `json:"provisionalId"`
	Error         string `json:"error"`
	Record        T      `json:"record"`
}

type pingerFunc func(ctx context.Context) error

func (f pingerFunc) Ping(ctx context.Context) error { return f(ctx) }

func TestHealthz(t *testing.T) {
	env := newTestEnv(t, nil)
	resp, body := env.do(http.MethodGet, "/healthz", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	got := decode[map[string]string](t, body)
	assert.Equal(t, "ok", got["status"])
	assert.Equal(t, "test", got["version"])
	assert.Equal(t, "nosniff", resp.Header.Get("X-Content-Type-Options"))
	assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))
}

func TestReadyReportsFailedDependency(t *testing.T) {
	env := newTestEnv(t, ReadyProbe{
		"store": pingerFunc(func(context.Context) error { return nil }),
		"redis": pingerFunc(func(context.Context) error { return errors.New("connection refused") }),
	})
	resp, body := env.do(http.MethodGet, "/readyz", "", nil)
	require.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	got := decode[struct {
		Status string            `json:"status"`
		Failed map[string]string `json:"failed"`
	}](t, body)
	assert.Equal(t, "not_ready", got.Status)
	assert.Equal(t, map[string]string{"redis": "connection refused"}, got.Failed)

	ok := newTestEnv(t, ReadyProbe{"store": pingerFunc(func(context.Context) error { return nil })})
	resp, _ = ok.do(http.MethodGet, "/readyz", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestAgendaScopesEventsByRole(t *testing.T) {
	env := newTestEnv(t, nil)

	titles := func(token string) []string {
		resp, body := env.do(http.MethodGet, "/v1/agenda?date=2024-06-12", token, nil)
		require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
		view := decode[agenda.View](t, body)
		require.Len(t, view.Days, 7)
		assert.Equal(t, docket.Date("2024-06-10"), view.Start)
		var out []string
		for _, d := range view.Days {
			for _, e := range d.Events {
				out = append(out, e.Title)
			}
		}
		return out
	}

	assert.ElementsMatch(t, []string{"Audiência de instrução", "Protocolar petição"}, titles(env.login(adminEmail)))
	assert.ElementsMatch(t, []string{"Audiência de instrução", "Protocolar petição"}, titles(env.login(lawyerEmail)))
	assert.Equal(t, []string{"Protocolar petição"}, titles(env.login(internEmail)))
}

func TestAgendaFilters(t *testing.T) {
	env := newTestEnv(t, nil)
	token := env.login(adminEmail)

	resp, body := env.do(http.MethodGet, "/v1/agenda?date=2024-06-10&user=u2&q=audi%C3%AAncia", token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	view := decode[agenda.View](t, body)
	assert.Len(t, view.Days[0].Events, 1)
	assert.Empty(t, view.Days[1].Events)

	resp, _ = env.do(http.MethodGet, "/v1/agenda?status=bogus", token, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp, _ = env.do(http.MethodGet, "/v1/agenda?date=10/06/2024", token, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestAgendaExport(t *testing.T) {
	env := newTestEnv(t, nil)
	resp, body := env.do(http.MethodGet, "/v1/agenda/export?date=2024-06-10", env.login(adminEmail), nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", resp.Header.Get("Content-Type"))
	assert.Contains(t, resp.Header.Get("Content-Disposition"), "agenda-2024-06-10.xlsx")

	f, err := excelize.OpenReader(bytes.NewReader(body))
	require.NoError(t, err)
	defer f.Close()
	rows, err := f.GetRows(f.GetSheetName(0))
	require.NoError(t, err)
	assert.Len(t, rows, 3)
}

func TestCreateContactAnswersProvisionally(t *testing.T) {
	env := newTestEnv(t, nil)
	token := env.login(adminEmail)

	resp, body := env.do(http.MethodPost, "/v1/contacts", token, map[string]string{
		"name": "Maria Souza", "type": "CLIENT", "email": "maria@example.com",
	})
	require.Equal(t, http.StatusAccepted, resp.StatusCode, string(body))
	got := decode[opBody[docket.Contact]](t, body)
	assert.Equal(t, string(workspace.PhasePending), got.Phase)
	assert.Equal(t, got.ID, got.Record.ID)
	assert.Equal(t, "Maria Souza", got.Record.Name)
}

func TestCreateContactWaitsForCommit(t *testing.T) {
	env := newTestEnv(t, nil)
	token := env.login(adminEmail)

	resp, body := env.do(http.MethodPost, "/v1/contacts?wait=true", token, map[string]string{
		"name": "Maria Souza", "type": "client",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(body))
	got := decode[opBody[docket.Contact]](t, body)
	assert.Equal(t, string(workspace.PhaseCommitted), got.Phase)
	assert.NotEmpty(t, got.ProvisionalID)
	assert.NotEqual(t, got.ProvisionalID, got.ID)
	assert.Equal(t, got.ID, got.Record.ID)

	resp, body = env.do(http.MethodGet, "/v1/contacts", env.login(internEmail), nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	list := decode[struct {
		Items []docket.Contact `json:"items"`
	}](t, body)
	require.Len(t, list.Items, 1)
	assert.Equal(t, got.ID, list.Items[0].ID)
}

func TestCreateContactRollsBack(t *testing.T) {
	env := newTestEnv(t, nil)
	env.store.FailOn(memory.OpInsertContact, errors.New("insert failed"))

	resp, body := env.do(http.MethodPost, "/v1/contacts?wait=1", env.login(adminEmail), map[string]string{
		"name": "Maria Souza", "type": "OPPOSING_PARTY",
	})
	require.Equal(t, http.StatusBadGateway, resp.StatusCode, string(body))
	got := decode[opBody[*docket.Contact]](t, body)
	assert.Equal(t, string(workspace.PhaseRolledBack), got.Phase)
	assert.NotEmpty(t, got.Error)
	assert.Nil(t, got.Record)
	assert.Empty(t, env.ws.Contacts())
}

func TestCreateContactValidation(t *testing.T) {
	env := newTestEnv(t, nil)
	token := env.login(adminEmail)

	resp, _ := env.do(http.MethodPost, "/v1/contacts", token, map[string]string{"name": "X", "type": "WITNESS"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp, _ = env.do(http.MethodPost, "/v1/contacts", token, map[string]string{"name": "X", "kind": "CLIENT"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp, _ = env.do(http.MethodPost, "/v1/contacts", env.login(lawyerEmail), map[string]string{"name": "X", "type": "CLIENT"})
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.Zero(t, env.store.CallCount(memory.OpInsertContact))
}

func TestCasesRequireViewAll(t *testing.T) {
	env := newTestEnv(t, nil)

	resp, _ := env.do(http.MethodGet, "/v1/cases", env.login(internEmail), nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	resp, _ = env.do(http.MethodGet, "/v1/cases", env.login(lawyerEmail), nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp, _ = env.do(http.MethodGet, "/v1/cases/missing", env.login(lawyerEmail), nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func (e *testEnv) createCase(token string) string {
	e.t.Helper()
	resp, body := e.do(http.MethodPost, "/v1/cases?wait=true", token, map[string]string{
		"number": "0001234-56.2024.8.26.0100", "title": "Silva vs. Souza", "status": "IN_COURT",
	})
	require.Equal(e.t, http.StatusCreated, resp.StatusCode, string(body))
	got := decode[opBody[caseView]](e.t, body)
	assert.Equal(e.t, "Em Juízo", got.Record.StatusLabel)
	return got.ID
}

func TestUploadAndDownloadDocument(t *testing.T) {
	env := newTestEnv(t, nil)
	token := env.login(adminEmail)
	caseID := env.createCase(token)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", "peticao.pdf")
	require.NoError(t, err)
	_, _ = part.Write([]byte("%PDF-1.4 petição"))
	require.NoError(t, mw.Close())

	req, err := http.NewRequest(http.MethodPost, env.srv.URL+"/v1/cases/"+caseID+"/documents?wait=true", &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	resp, body := env.send(req, token)
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(body))
	got := decode[opBody[docket.CaseDocument]](t, body)
	assert.Equal(t, "peticao.pdf", got.Record.Name)
	assert.Equal(t, "Administrador", got.Record.UploadedBy)
	require.True(t, strings.HasPrefix(got.Record.URL, "/v1/files/cases/"+caseID+"/"), got.Record.URL)
	assert.Equal(t, 1, env.blobs.Len())

	c, ok := env.ws.Case(caseID)
	require.True(t, ok)
	require.Len(t, c.Documents, 1)

	resp, _ = env.do(http.MethodGet, got.Record.URL, env.login(internEmail), nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	resp, data := env.do(http.MethodGet, got.Record.URL, env.login(lawyerEmail), nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "%PDF-1.4 petição", string(data))

	resp, _ = env.do(http.MethodGet, "/v1/files/cases/"+caseID+"/nothing.pdf", token, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestUploadRequiresEdit(t *testing.T) {
	env := newTestEnv(t, nil)
	caseID := env.createCase(env.login(adminEmail))

	req, err := http.NewRequest(http.MethodPost, env.srv.URL+"/v1/cases/"+caseID+"/documents", strings.NewReader(""))
	require.NoError(t, err)
	resp, _ := env.send(req, env.login(lawyerEmail))
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.Zero(t, env.blobs.Len())
}

func TestLawyerCannotReschedule(t *testing.T) {
	env := newTestEnv(t, nil)
	resp, _ := env.do(http.MethodPost, "/v1/events/e1/reschedule", env.login(lawyerEmail), map[string]string{"date": "2024-06-12"})
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.Zero(t, env.store.CallCount(memory.OpUpdateEventDate))

	e, _ := env.ws.Event("e1")
	assert.Equal(t, docket.Date("2024-06-10"), e.Date)
}

func TestAdminReschedulesAndToggles(t *testing.T) {
	env := newTestEnv(t, nil)
	token := env.login(adminEmail)

	resp, body := env.do(http.MethodPost, "/v1/events/e1/reschedule?wait=true", token, map[string]string{"date": "2024-06-12"})
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	moved := decode[opBody[docket.Event]](t, body)
	assert.Equal(t, string(workspace.PhaseCommitted), moved.Phase)
	assert.Equal(t, docket.Date("2024-06-12"), moved.Record.Date)
	assert.Equal(t, 1, env.store.CallCount(memory.OpUpdateEventDate))

	resp, body = env.do(http.MethodPost, "/v1/events/e1/toggle?wait=true", token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	toggled := decode[opBody[docket.Event]](t, body)
	assert.Equal(t, docket.StatusCompleted, toggled.Record.Status)

	resp, _ = env.do(http.MethodPost, "/v1/events/missing/toggle", token, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestEventLifecycle(t *testing.T) {
	env := newTestEnv(t, nil)
	token := env.login(adminEmail)

	resp, body := env.do(http.MethodPost, "/v1/events?wait=true", token, map[string]any{
		"title": "Reunião com cliente", "type": "APPOINTMENT", "date": "2024-06-13", "time": "09:30:00",
		"assignedToIds": []string{"u2", "u2", "u3"},
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(body))
	created := decode[opBody[docket.Event]](t, body)
	assert.Equal(t, "09:30", created.Record.Time)
	assert.Equal(t, []string{"u2", "u3"}, created.Record.AssignedTo)
	id := created.ID

	resp, body = env.do(http.MethodPut, "/v1/events/"+id+"/case?wait=true", token, map[string]string{"caseId": "c9"})
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	assert.Equal(t, "c9", decode[opBody[docket.Event]](t, body).Record.CaseID)

	resp, body = env.do(http.MethodPut, "/v1/events/"+id+"?wait=true", token, map[string]any{
		"title": "Reunião remarcada", "type": "TASK", "date": "2024-06-14", "assignedToIds": []string{"u3"},
	})
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	updated := decode[opBody[docket.Event]](t, body)
	assert.Equal(t, "Reunião remarcada", updated.Record.Title)
	assert.Equal(t, []string{"u3"}, updated.Record.AssignedTo)

	resp, _ = env.do(http.MethodDelete, "/v1/events/"+id, env.login(lawyerEmail), nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	resp, body = env.do(http.MethodDelete, "/v1/events/"+id+"?wait=true", token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	_, ok := env.ws.Event(id)
	assert.False(t, ok)

	resp, _ = env.do(http.MethodPost, "/v1/events", token, map[string]any{"title": " ", "type": "TASK", "date": "2024-06-13"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestEventAccessFollowsAssignment(t *testing.T) {
	env := newTestEnv(t, nil)
	intern := env.login(internEmail)

	resp, _ := env.do(http.MethodGet, "/v1/events/e1", intern, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp, _ = env.do(http.MethodPost, "/v1/events/e1/messages", intern, map[string]string{"text": "oi"})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, body := env.do(http.MethodPost, "/v1/events/e2/messages?wait=true", intern, map[string]string{"text": "Petição protocolada"})
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(body))
	msg := decode[opBody[docket.ChatMessage]](t, body)
	assert.Equal(t, "u3", msg.Record.UserID)
	assert.Equal(t, msg.ID, msg.Record.ID)

	resp, body = env.do(http.MethodGet, "/v1/events/e2", intern, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	e := decode[docket.Event](t, body)
	require.Len(t, e.Chat, 1)
	assert.Equal(t, "Petição protocolada", e.Chat[0].Text)
}

func TestDashboardAndUsers(t *testing.T) {
	env := newTestEnv(t, nil)
	token := env.login(internEmail)

	resp, body := env.do(http.MethodGet, "/v1/dashboard", token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	stats := decode[agenda.Stats](t, body)
	assert.Equal(t, 2, stats.PendingTasks)
	assert.Equal(t, "u3", stats.User.ID)

	resp, body = env.do(http.MethodGet, "/v1/users", token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	users := decode[struct {
		Items []auth.User `json:"items"`
	}](t, body)
	require.Len(t, users.Items, 3)
	assert.NotEmpty(t, users.Items[0].Avatar)
}

func TestStreamDeliversChanges(t *testing.T) {
	env := newTestEnv(t, nil)
	token := env.login(adminEmail)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, env.srv.URL+"/v1/stream?access_token="+token, nil)
	require.NoError(t, err)
	resp, err := env.srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	lines := readLines(ctx, resp.Body)
	require.Equal(t, ": stream started", <-lines)

	r, _ := env.do(http.MethodPost, "/v1/contacts", token, map[string]string{"name": "Maria", "type": "CLIENT"})
	require.Equal(t, http.StatusAccepted, r.StatusCode)

	for line := range lines {
		if line == "event: created" {
			data := <-lines
			require.True(t, strings.HasPrefix(data, "data: "), data)
			change := decode[stream.Change](t, []byte(strings.TrimPrefix(data, "data: ")))
			assert.Equal(t, "contact", change.Entity)
			assert.Equal(t, string(workspace.PhasePending), change.Phase)
			return
		}
	}
	t.Fatalf("stream closed before the change arrived")
}

func readLines(ctx context.Context, r io.Reader) <-chan string {
	out := make(chan string)
	go func() {
		defer close(out)
		sc := bufio.NewScanner(r)
		for sc.Scan() {
			if sc.Text() == "" {
				continue
			}
			select {
			case out <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}
