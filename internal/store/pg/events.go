package pg

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"casedesk.org/internal/docket"
)

type eventRow struct {
	ID          string
	Title       string
	Type        string
	Date        string
	Time        string
	Description sql.NullString
	Status      string
	CaseID      sql.NullString
}

func (r eventRow) event() docket.Event {
	return docket.Event{
		ID:          r.ID,
		Title:       r.Title,
		Type:        docket.EventType(r.Type),
		Date:        docket.Date(r.Date),
		Time:        r.Time,
		Description: r.Description.String,
		Status:      docket.EventStatus(r.Status),
		CaseID:      r.CaseID.String,
		AssignedTo:  []string{},
		Chat:        []docket.ChatMessage{},
	}
}

const selectEvent = `
	select id, title, type, to_char(event_date, 'YYYY-MM-DD'),
	       coalesce(to_char(event_time, 'HH24:MI'), ''), description, status, case_id
	from calendar_events`

type scanner interface {
	Scan(dest ...any) error
}

func scanEvent(sc scanner) (eventRow, error) {
	var r eventRow
	err := sc.Scan(&r.ID, &r.Title, &r.Type, &r.Date, &r.Time, &r.Description, &r.Status, &r.CaseID)
	return r, err
}

// ListEvents loads events, assignments and chat in three queries and joins
// them here. Chat messages keep insertion order.
func (s *Store) ListEvents(ctx context.Context) ([]docket.Event, error) {
	rows, err := s.db.QueryContext(ctx, selectEvent+` order by created_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []docket.Event
	index := map[string]int{}
	for rows.Next() {
		r, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		index[r.ID] = len(out)
		out = append(out, r.event())
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	assigned, err := s.db.QueryContext(ctx, `select event_id, user_id from event_assignments order by seq`)
	if err != nil {
		return nil, err
	}
	defer assigned.Close()
	for assigned.Next() {
		var eventID, userID string
		if err := assigned.Scan(&eventID, &userID); err != nil {
			return nil, err
		}
		if i, ok := index[eventID]; ok {
			out[i].AssignedTo = append(out[i].AssignedTo, userID)
		}
	}
	if err := assigned.Err(); err != nil {
		return nil, err
	}

	chat, err := s.db.QueryContext(ctx, `
		select id, event_id, user_id, text, "timestamp"
		from chat_messages
		order by seq
	`)
	if err != nil {
		return nil, err
	}
	defer chat.Close()
	for chat.Next() {
		var (
			m       docket.ChatMessage
			eventID string
			ts      time.Time
		)
		if err := chat.Scan(&m.ID, &eventID, &m.UserID, &m.Text, &ts); err != nil {
			return nil, err
		}
		m.Timestamp = ts.UTC()
		if i, ok := index[eventID]; ok {
			out[i].Chat = append(out[i].Chat, m)
		}
	}
	return out, chat.Err()
}

func (s *Store) GetEvent(ctx context.Context, id string) (docket.Event, error) {
	r, err := scanEvent(s.db.QueryRowContext(ctx, selectEvent+` where id = $1`, id))
	if err != nil {
		return docket.Event{}, notFound(err, docket.ErrNotFound)
	}
	e := r.event()
	rows, err := s.db.QueryContext(ctx, `select user_id from event_assignments where event_id = $1 order by seq`, id)
	if err != nil {
		return docket.Event{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var userID string
		if err := rows.Scan(&userID); err != nil {
			return docket.Event{}, err
		}
		e.AssignedTo = append(e.AssignedTo, userID)
	}
	return e, rows.Err()
}

func (s *Store) InsertEvent(ctx context.Context, e docket.Event) (string, error) {
	var id string
	err := s.db.QueryRowContext(ctx, `
		insert into calendar_events (title, type, event_date, event_time, description, status, case_id)
		values ($1, $2, $3::date, $4::time, $5, $6, $7)
		returning id
	`, e.Title, string(e.Type), string(e.Date), nullIfEmpty(e.Time), nullIfEmpty(e.Description),
		string(e.Status), nullIfEmpty(e.CaseID)).Scan(&id)
	return id, err
}

func (s *Store) UpdateEvent(ctx context.Context, e docket.Event) error {
	res, err := s.db.ExecContext(ctx, `
		update calendar_events
		set title = $2, type = $3, event_date = $4::date, event_time = $5::time,
		    description = $6, status = $7, case_id = $8
		where id = $1
	`, e.ID, e.Title, string(e.Type), string(e.Date), nullIfEmpty(e.Time), nullIfEmpty(e.Description),
		string(e.Status), nullIfEmpty(e.CaseID))
	return affected(res, err, e.ID)
}

func (s *Store) UpdateEventDate(ctx context.Context, id string, date docket.Date) error {
	res, err := s.db.ExecContext(ctx, `update calendar_events set event_date = $2::date where id = $1`, id, string(date))
	return affected(res, err, id)
}

func (s *Store) DeleteEvent(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `delete from calendar_events where id = $1`, id)
	return err
}

func affected(res sql.Result, err error, id string) error {
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("event %s: %w", id, docket.ErrNotFound)
	}
	return nil
}

func insertAssignments(ctx context.Context, tx *sql.Tx, eventID string, userIDs []string) error {
	for _, userID := range userIDs {
		if _, err := tx.ExecContext(ctx, `
			insert into event_assignments (event_id, user_id)
			values ($1, $2)
			on conflict do nothing
		`, eventID, userID); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) InsertAssignments(ctx context.Context, eventID string, userIDs []string) error {
	if len(userIDs) == 0 {
		return nil
	}
	return s.inTx(ctx, func(tx *sql.Tx) error {
		return insertAssignments(ctx, tx, eventID, userIDs)
	})
}

func (s *Store) ReplaceAssignments(ctx context.Context, eventID string, userIDs []string) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `delete from event_assignments where event_id = $1`, eventID); err != nil {
			return err
		}
		return insertAssignments(ctx, tx, eventID, userIDs)
	})
}

func (s *Store) InsertChatMessage(ctx context.Context, eventID string, m docket.ChatMessage) (string, error) {
	var id string
	err := s.db.QueryRowContext(ctx, `
		insert into chat_messages (event_id, user_id, text, "timestamp")
		values ($1, $2, $3, $4)
		returning id
	`, eventID, m.UserID, m.Text, m.Timestamp).Scan(&id)
	return id, err
}
