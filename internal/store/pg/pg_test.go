package pg

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"

	"casedesk.org/internal/auth"
	"casedesk.org/internal/docket"
)

func setupMock(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, mock.ExpectationsWereMet())
		_ = db.Close()
	})
	return New(db), mock
}

func TestListUsersDefaultsAvatar(t *testing.T) {
	s, mock := setupMock(t)
	mock.ExpectQuery("select id, name, email, role, avatar").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "email", "role", "avatar"}).
			AddRow("u1", "Ana Lima", "ana@x.br", "ADMIN", nil).
			AddRow("u2", "Bruno", "bruno@x.br", "LAWYER", "https://img/b.png"))

	users, err := s.ListUsers(context.Background())
	require.NoError(t, err)
	require.Len(t, users, 2)
	require.Equal(t, auth.DefaultAvatar("Ana Lima"), users[0].Avatar)
	require.Equal(t, "https://img/b.png", users[1].Avatar)
	require.Equal(t, auth.RoleLawyer, users[1].Role)
}

func TestCreateUserMapsUniqueViolation(t *testing.T) {
	s, mock := setupMock(t)
	mock.ExpectQuery("insert into users").
		WithArgs("Ana", "ana@x.br", "hash", "INTERN", nil).
		WillReturnError(&pgconn.PgError{Code: pgErrUniqueViolation})

	_, err := s.CreateUser(context.Background(), auth.User{Name: "Ana", Email: " Ana@X.br", Role: auth.RoleIntern}, "hash")
	require.ErrorIs(t, err, auth.ErrConflict)
}

func TestCreateUserReturnsServerID(t *testing.T) {
	s, mock := setupMock(t)
	mock.ExpectQuery("insert into users").
		WithArgs("Ana", "ana@x.br", "hash", "INTERN", "a.png").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("srv-1"))

	u, err := s.CreateUser(context.Background(), auth.User{Name: "Ana", Email: "ana@x.br", Role: auth.RoleIntern, Avatar: "a.png"}, "hash")
	require.NoError(t, err)
	require.Equal(t, "srv-1", u.ID)
}

func TestFindCredential(t *testing.T) {
	s, mock := setupMock(t)
	cols := []string{"id", "name", "email", "role", "avatar", "password"}
	mock.ExpectQuery("from users").WithArgs("ana@x.br").
		WillReturnRows(sqlmock.NewRows(cols).AddRow("u1", "Ana", "ana@x.br", "ADMIN", nil, "hash"))
	mock.ExpectQuery("from users").WithArgs("ghost@x.br").
		WillReturnError(sql.ErrNoRows)

	cred, err := s.FindCredential(context.Background(), "ANA@x.br")
	require.NoError(t, err)
	require.Equal(t, "hash", cred.PasswordHash)
	require.Equal(t, "u1", cred.User.ID)

	_, err = s.FindCredential(context.Background(), "ghost@x.br")
	require.ErrorIs(t, err, auth.ErrNotFound)
}

func TestListCasesJoinsDocuments(t *testing.T) {
	s, mock := setupMock(t)
	uploaded := time.Date(2024, 5, 2, 14, 0, 0, 0, time.UTC)
	mock.ExpectQuery("from cases").
		WillReturnRows(sqlmock.NewRows([]string{"id", "number", "title", "client_id", "status", "description", "open_date", "court", "partes"}).
			AddRow("c1", "0001", "Ação", "k1", "OPEN", "desc", "2024-05-01", nil, nil).
			AddRow("c2", "0002", "Recurso", nil, "CLOSED", nil, nil, "TJSP", "A x B"))
	mock.ExpectQuery("from case_documents d").
		WillReturnRows(sqlmock.NewRows([]string{"id", "case_id", "name", "type", "size", "upload_date", "uploaded_by", "url"}).
			AddRow("d1", "c1", "peticao.pdf", "application/pdf", "12.00 KB", uploaded, "Ana", "#"))

	cases, err := s.ListCases(context.Background())
	require.NoError(t, err)
	require.Len(t, cases, 2)
	require.Len(t, cases[0].Documents, 1)
	require.Equal(t, "Ana", cases[0].Documents[0].UploadedBy)
	require.Equal(t, docket.Date("2024-05-01"), cases[0].OpenDate)
	require.NotNil(t, cases[1].Documents)
	require.Empty(t, cases[1].Documents)
	require.Equal(t, "TJSP", cases[1].Court)
}

func TestListCasesToleratesMissingUploader(t *testing.T) {
	s, mock := setupMock(t)
	mock.ExpectQuery("from cases").
		WillReturnRows(sqlmock.NewRows([]string{"id", "number", "title", "client_id", "status", "description", "open_date", "court", "partes"}).
			AddRow("c1", "0001", "Ação", nil, "OPEN", nil, nil, nil, nil))
	mock.ExpectQuery("from case_documents d").
		WillReturnRows(sqlmock.NewRows([]string{"id", "case_id", "name", "type", "size", "upload_date", "uploaded_by", "url"}).
			AddRow("d1", "c1", "anexo.pdf", "application/pdf", "1.00 KB", time.Now(), nil, nil))

	cases, err := s.ListCases(context.Background())
	require.NoError(t, err)
	require.Len(t, cases, 1)
	require.Len(t, cases[0].Documents, 1)
	require.Empty(t, cases[0].Documents[0].UploadedBy)
	require.Empty(t, cases[0].Documents[0].URL)
}

func TestListEventsAttachesAssignmentsAndChat(t *testing.T) {
	s, mock := setupMock(t)
	sent := time.Date(2024, 6, 10, 9, 30, 0, 0, time.UTC)
	mock.ExpectQuery("from calendar_events").
		WillReturnRows(sqlmock.NewRows([]string{"id", "title", "type", "date", "time", "description", "status", "case_id"}).
			AddRow("e1", "Audiência", "APPOINTMENT", "2024-06-10", "14:00", nil, "PENDING", "c1").
			AddRow("e2", "Prazo", "TASK", "2024-06-11", "", "x", "COMPLETED", nil))
	mock.ExpectQuery("from event_assignments").
		WillReturnRows(sqlmock.NewRows([]string{"event_id", "user_id"}).
			AddRow("e1", "u2").AddRow("e1", "u3").AddRow("gone", "u1"))
	mock.ExpectQuery("from chat_messages").
		WillReturnRows(sqlmock.NewRows([]string{"id", "event_id", "user_id", "text", "timestamp"}).
			AddRow("m1", "e1", "u2", "primeiro", sent).
			AddRow("m2", "e1", "u3", "segundo", sent.Add(time.Minute)))

	events, err := s.ListEvents(context.Background())
	require.NoError(t, err)
	require.Len(t, events, 2)
	require.Equal(t, []string{"u2", "u3"}, events[0].AssignedTo)
	require.Equal(t, "primeiro", events[0].Chat[0].Text)
	require.Equal(t, "segundo", events[0].Chat[1].Text)
	require.Empty(t, events[1].AssignedTo)
	require.Empty(t, events[1].Chat)
	require.Equal(t, "", events[1].CaseID)
}

func TestGetEventNotFound(t *testing.T) {
	s, mock := setupMock(t)
	mock.ExpectQuery("from calendar_events").WithArgs("nope").WillReturnError(sql.ErrNoRows)

	_, err := s.GetEvent(context.Background(), "nope")
	require.ErrorIs(t, err, docket.ErrNotFound)
}

func TestInsertEventPassesNullableColumns(t *testing.T) {
	s, mock := setupMock(t)
	mock.ExpectQuery("insert into calendar_events").
		WithArgs("Prazo", "TASK", "2024-06-11", nil, nil, "PENDING", nil).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("srv-e"))

	id, err := s.InsertEvent(context.Background(), docket.Event{
		Title: "Prazo", Type: docket.EventTask, Date: "2024-06-11", Status: docket.StatusPending,
	})
	require.NoError(t, err)
	require.Equal(t, "srv-e", id)
}

func TestUpdateEventDateMissingRow(t *testing.T) {
	s, mock := setupMock(t)
	mock.ExpectExec(regexp.QuoteMeta("update calendar_events set event_date")).
		WithArgs("e9", "2024-06-12").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := s.UpdateEventDate(context.Background(), "e9", "2024-06-12")
	require.ErrorIs(t, err, docket.ErrNotFound)
}

func TestReplaceAssignmentsRunsInTransaction(t *testing.T) {
	s, mock := setupMock(t)
	mock.ExpectBegin()
	mock.ExpectExec("delete from event_assignments").WithArgs("e1").WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectExec("insert into event_assignments").WithArgs("e1", "u1").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("insert into event_assignments").WithArgs("e1", "u3").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, s.ReplaceAssignments(context.Background(), "e1", []string{"u1", "u3"}))
}

func TestInsertAssignmentsRollsBackOnFailure(t *testing.T) {
	s, mock := setupMock(t)
	boom := errors.New("fk violation")
	mock.ExpectBegin()
	mock.ExpectExec("insert into event_assignments").WithArgs("e1", "u1").WillReturnError(boom)
	mock.ExpectRollback()

	err := s.InsertAssignments(context.Background(), "e1", []string{"u1"})
	require.ErrorIs(t, err, boom)
}

func TestInsertAssignmentsEmptyIsNoop(t *testing.T) {
	s, _ := setupMock(t)
	require.NoError(t, s.InsertAssignments(context.Background(), "e1", nil))
}

func TestInsertChatMessageAndDocument(t *testing.T) {
	s, mock := setupMock(t)
	at := time.Date(2024, 6, 10, 10, 0, 0, 0, time.UTC)
	mock.ExpectQuery("insert into chat_messages").
		WithArgs("e1", "u2", "ok", at).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("m-srv"))
	mock.ExpectQuery("insert into case_documents").
		WithArgs("c1", "a.pdf", "application/pdf", "1.00 KB", at, "u1", "#").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("d-srv"))

	id, err := s.InsertChatMessage(context.Background(), "e1", docket.ChatMessage{UserID: "u2", Text: "ok", Timestamp: at})
	require.NoError(t, err)
	require.Equal(t, "m-srv", id)

	doc := docket.CaseDocument{Name: "a.pdf", MimeType: "application/pdf", SizeLabel: "1.00 KB", UploadDate: at, URL: "#"}
	id, err = s.InsertDocument(context.Background(), "c1", doc, "u1")
	require.NoError(t, err)
	require.Equal(t, "d-srv", id)
}
