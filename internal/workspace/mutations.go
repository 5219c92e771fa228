package workspace

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"casedesk.org/internal/auth"
	"casedesk.org/internal/docket"
)

// Remote operation labels, also used as metric labels.
const (
	opInsertContact   = "insert_contact"
	opInsertCase      = "insert_case"
	opInsertEvent     = "insert_event"
	opUpdateEvent     = "update_event"
	opUpdateEventDate = "update_event_date"
	opDeleteEvent     = "delete_event"
	opInsertChat      = "insert_chat_message"
	opInsertDocument  = "insert_document"
)

// with returns a new slice with v appended; s is never written to.
func with[T any](s []T, v T) []T {
	return append(slices.Clip(s), v)
}

// mapped returns a new slice with fn applied to the elements matching keep.
func mapped[T any](s []T, match func(T) bool, fn func(T) T) []T {
	out := make([]T, len(s))
	for i, v := range s {
		if match(v) {
			v = fn(v)
		}
		out[i] = v
	}
	return out
}

// without returns a new slice lacking the elements matching drop.
func without[T any](s []T, drop func(T) bool) []T {
	return slices.DeleteFunc(slices.Clone(s), drop)
}

func hasEvent(s []docket.Event, id string) bool {
	return slices.ContainsFunc(s, func(e docket.Event) bool { return e.ID == id })
}

// AddContact inserts c under a provisional id and reconciles the id once the
// store assigns one. A failed insert removes the record again.
func (w *Workspace) AddContact(c docket.Contact) *Op {
	if w.isClosed() {
		return rejected(opInsertContact, ErrClosed)
	}
	c.ID = w.newID()
	op := newOp(opInsertContact, c.ID)

	w.mu.Lock()
	w.contacts = with(w.contacts, c)
	w.mu.Unlock()
	w.publish("created", "contact", c.ID, "", PhasePending)

	w.remote(func(ctx context.Context) {
		serverID, err := w.store.InsertContact(ctx, c)
		w.mu.Lock()
		if err != nil {
			w.contacts = without(w.contacts, func(x docket.Contact) bool { return x.ID == c.ID })
		} else {
			w.contacts = mapped(w.contacts, func(x docket.Contact) bool { return x.ID == c.ID },
				func(x docket.Contact) docket.Contact { x.ID = serverID; return x })
		}
		w.mu.Unlock()
		w.finish(op, "contact", creationOutcome(c.ID, serverID, err))
	})
	return op
}

// AddCase inserts c, always without documents, under a provisional id.
func (w *Workspace) AddCase(c docket.Case) *Op {
	if w.isClosed() {
		return rejected(opInsertCase, ErrClosed)
	}
	c.ID = w.newID()
	c.Documents = []docket.CaseDocument{}
	op := newOp(opInsertCase, c.ID)

	w.mu.Lock()
	w.cases = with(w.cases, c)
	w.mu.Unlock()
	w.publish("created", "case", c.ID, "", PhasePending)

	w.remote(func(ctx context.Context) {
		serverID, err := w.store.InsertCase(ctx, c)
		w.mu.Lock()
		if err != nil {
			w.cases = without(w.cases, func(x docket.Case) bool { return x.ID == c.ID })
		} else {
			w.cases = mapped(w.cases, func(x docket.Case) bool { return x.ID == c.ID },
				func(x docket.Case) docket.Case { x.ID = serverID; return x })
		}
		w.mu.Unlock()
		w.finish(op, "case", creationOutcome(c.ID, serverID, err))
	})
	return op
}

func creationOutcome(provisional, serverID string, err error) Outcome {
	if err != nil {
		return Outcome{Phase: PhaseRolledBack, ID: provisional, Err: err}
	}
	return Outcome{Phase: PhaseCommitted, ID: serverID}
}

// AddEvent inserts e under a provisional id. After the event row is created
// the assignment rows are written, then the joined event is fetched back and
// replaces the provisional record. The thread starts empty.
func (w *Workspace) AddEvent(e docket.Event) *Op {
	if w.isClosed() {
		return rejected(opInsertEvent, ErrClosed)
	}
	e = e.Clone()
	e.ID = w.newID()
	e.Chat = []docket.ChatMessage{}
	if e.Status == "" {
		e.Status = docket.StatusPending
	}
	op := newOp(opInsertEvent, e.ID)
	provisional := e.ID

	w.mu.Lock()
	w.events = with(w.events, e)
	w.mu.Unlock()
	w.publish("created", "event", e.ID, "", PhasePending)

	w.remote(func(ctx context.Context) {
		serverID, err := w.store.InsertEvent(ctx, e)
		if err != nil {
			w.mu.Lock()
			w.events = without(w.events, func(x docket.Event) bool { return x.ID == provisional })
			w.mu.Unlock()
			w.finish(op, "event", creationOutcome(provisional, "", err))
			return
		}

		var assignErr error
		if len(e.AssignedTo) > 0 {
			if assignErr = w.store.InsertAssignments(ctx, serverID, e.AssignedTo); assignErr != nil {
				assignErr = fmt.Errorf("insert assignments: %w", assignErr)
			}
		}

		fetched, fetchErr := w.store.GetEvent(ctx, serverID)
		w.mu.Lock()
		w.events = mapped(w.events, func(x docket.Event) bool { return x.ID == provisional },
			func(x docket.Event) docket.Event {
				if fetchErr != nil {
					x.ID = serverID
					return x
				}
				fetched = fetched.Clone()
				fetched.Chat = []docket.ChatMessage{}
				return fetched
			})
		w.mu.Unlock()

		out := Outcome{Phase: PhaseCommitted, ID: serverID}
		if assignErr != nil {
			out.Phase, out.Err = PhaseDiverged, assignErr
		}
		if fetchErr != nil {
			w.log.Warn("event refetch failed; kept local copy")
			if out.Err == nil {
				out.Err = fmt.Errorf("refetch event: %w", fetchErr)
			}
			out.Phase = PhaseDiverged
		}
		w.finish(op, "event", out)
	})
	return op
}

// UpdateEvent replaces the event with e's id wholesale, then writes the
// scalar fields and replaces the remote assignment set.
func (w *Workspace) UpdateEvent(e docket.Event) *Op {
	return w.UpdateEventFunc(e.ID, func(docket.Event) docket.Event { return e })
}

// UpdateEventFunc replaces the event with id by fn applied to its current
// state and writes the result through like UpdateEvent. fn runs under the
// workspace lock and must not call back into the workspace.
func (w *Workspace) UpdateEventFunc(id string, fn func(docket.Event) docket.Event) *Op {
	if w.isClosed() {
		return rejected(opUpdateEvent, ErrClosed)
	}
	w.mu.Lock()
	i := slices.IndexFunc(w.events, func(x docket.Event) bool { return x.ID == id })
	if i < 0 {
		w.mu.Unlock()
		return rejected(opUpdateEvent, fmt.Errorf("event %s: %w", id, docket.ErrNotFound))
	}
	e := fn(w.events[i].Clone()).Clone()
	e.ID = id
	w.events = mapped(w.events, func(x docket.Event) bool { return x.ID == id },
		func(docket.Event) docket.Event { return e })
	w.mu.Unlock()
	op := newOp(opUpdateEvent, id)
	w.publish("updated", "event", id, "", PhasePending)

	w.remote(func(ctx context.Context) {
		var errs []error
		if err := w.store.UpdateEvent(ctx, e); err != nil {
			errs = append(errs, fmt.Errorf("update event: %w", err))
		}
		if err := w.store.ReplaceAssignments(ctx, id, e.AssignedTo); err != nil {
			errs = append(errs, fmt.Errorf("replace assignments: %w", err))
		}
		w.finish(op, "event", keptOutcome(id, errors.Join(errs...)))
	})
	return op
}

func keptOutcome(id string, err error) Outcome {
	if err != nil {
		return Outcome{Phase: PhaseDiverged, ID: id, Err: err}
	}
	return Outcome{Phase: PhaseCommitted, ID: id}
}

// UpdateEventDate moves an event to date. Only actors allowed to reschedule
// get through; anyone else is rejected with no local or remote effect.
func (w *Workspace) UpdateEventDate(actor *auth.User, id string, date docket.Date) *Op {
	if !auth.For(actor).CanReschedule() {
		return rejected(opUpdateEventDate, auth.ErrForbidden)
	}
	if !date.Valid() {
		return rejected(opUpdateEventDate, fmt.Errorf("%w: invalid date %q", auth.ErrInvalidInput, date))
	}
	if w.isClosed() {
		return rejected(opUpdateEventDate, ErrClosed)
	}
	w.mu.Lock()
	if !hasEvent(w.events, id) {
		w.mu.Unlock()
		return rejected(opUpdateEventDate, fmt.Errorf("event %s: %w", id, docket.ErrNotFound))
	}
	w.events = mapped(w.events, func(x docket.Event) bool { return x.ID == id },
		func(x docket.Event) docket.Event { x = x.Clone(); x.Date = date; return x })
	w.mu.Unlock()
	op := newOp(opUpdateEventDate, id)
	w.publish("rescheduled", "event", id, "", PhasePending)

	w.remote(func(ctx context.Context) {
		err := w.store.UpdateEventDate(ctx, id, date)
		w.finish(op, "event", keptOutcome(id, err))
	})
	return op
}

// DeleteEvent removes the event locally and remotely. A remote failure
// leaves the local removal in place.
func (w *Workspace) DeleteEvent(id string) *Op {
	if w.isClosed() {
		return rejected(opDeleteEvent, ErrClosed)
	}
	w.mu.Lock()
	if !hasEvent(w.events, id) {
		w.mu.Unlock()
		return rejected(opDeleteEvent, fmt.Errorf("event %s: %w", id, docket.ErrNotFound))
	}
	w.events = without(w.events, func(x docket.Event) bool { return x.ID == id })
	w.mu.Unlock()
	op := newOp(opDeleteEvent, id)
	w.publish("deleted", "event", id, "", PhasePending)

	w.remote(func(ctx context.Context) {
		err := w.store.DeleteEvent(ctx, id)
		w.finish(op, "event", keptOutcome(id, err))
	})
	return op
}

// AddChatMessage appends text to the event thread with a provisional id and
// the local clock as timestamp. Only the id is reconciled afterwards.
func (w *Workspace) AddChatMessage(actor *auth.User, eventID string, text string) *Op {
	if actor == nil {
		return rejected(opInsertChat, auth.ErrForbidden)
	}
	if strings.TrimSpace(text) == "" {
		return rejected(opInsertChat, fmt.Errorf("%w: empty message", auth.ErrInvalidInput))
	}
	if w.isClosed() {
		return rejected(opInsertChat, ErrClosed)
	}
	msg := docket.ChatMessage{
		ID:        w.newID(),
		UserID:    actor.ID,
		Text:      text,
		Timestamp: w.now().UTC(),
	}
	w.mu.Lock()
	if !hasEvent(w.events, eventID) {
		w.mu.Unlock()
		return rejected(opInsertChat, fmt.Errorf("event %s: %w", eventID, docket.ErrNotFound))
	}
	w.events = mapped(w.events, func(x docket.Event) bool { return x.ID == eventID },
		func(x docket.Event) docket.Event { x = x.Clone(); x.Chat = append(x.Chat, msg); return x })
	w.mu.Unlock()
	op := newOp(opInsertChat, msg.ID)
	w.publish("created", "chat_message", msg.ID, "", PhasePending)

	w.remote(func(ctx context.Context) {
		serverID, err := w.store.InsertChatMessage(ctx, eventID, msg)
		if err != nil {
			w.finish(op, "chat_message", keptOutcome(msg.ID, err))
			return
		}
		w.mu.Lock()
		w.events = mapped(w.events, func(x docket.Event) bool { return x.ID == eventID },
			func(x docket.Event) docket.Event {
				x = x.Clone()
				for i := range x.Chat {
					if x.Chat[i].ID == msg.ID {
						x.Chat[i].ID = serverID
					}
				}
				return x
			})
		w.mu.Unlock()
		w.finish(op, "chat_message", Outcome{Phase: PhaseCommitted, ID: serverID})
	})
	return op
}

// AddCaseDocument appends the metadata of an uploaded file to a case. The
// local id is final; the server id is never reconciled.
func (w *Workspace) AddCaseDocument(actor *auth.User, caseID string, file docket.FileMeta) *Op {
	if actor == nil {
		return rejected(opInsertDocument, auth.ErrForbidden)
	}
	if w.isClosed() {
		return rejected(opInsertDocument, ErrClosed)
	}
	uploaderID := actor.ID
	doc := docket.NewDocument(w.newID(), file, actor.Name, w.now())
	w.mu.Lock()
	if !slices.ContainsFunc(w.cases, func(c docket.Case) bool { return c.ID == caseID }) {
		w.mu.Unlock()
		return rejected(opInsertDocument, fmt.Errorf("case %s: %w", caseID, docket.ErrNotFound))
	}
	w.cases = mapped(w.cases, func(x docket.Case) bool { return x.ID == caseID },
		func(x docket.Case) docket.Case { x = x.Clone(); x.Documents = append(x.Documents, doc); return x })
	w.mu.Unlock()
	op := newOp(opInsertDocument, doc.ID)
	w.publish("created", "document", doc.ID, "", PhasePending)

	w.remote(func(ctx context.Context) {
		_, err := w.store.InsertDocument(ctx, caseID, doc, uploaderID)
		w.finish(op, "document", keptOutcome(doc.ID, err))
	})
	return op
}
