// Package workspace holds the authoritative in-memory collections and writes
// every mutation through to the record store optimistically.
package workspace

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"go.uber.org/zap"

	"casedesk.org/internal/auth"
	"casedesk.org/internal/docket"
	"casedesk.org/internal/ids"
	"casedesk.org/internal/obs"
	"casedesk.org/internal/stream"
)

// ErrClosed is returned for mutations issued after Close.
var ErrClosed = errors.New("workspace: closed")

const defaultRemoteTimeout = 10 * time.Second

// Notifier receives every local change.
type Notifier interface {
	Publish(stream.Change)
}

type nopNotifier struct{}

func (nopNotifier) Publish(stream.Change) {}

// Option configures a Workspace.
type Option func(*Workspace)

// WithLogger sets the logger for remote outcomes.
func WithLogger(l *zap.Logger) Option {
	return func(w *Workspace) { w.log = obs.OrNop(l) }
}

// WithNotifier sets the change feed.
func WithNotifier(n Notifier) Option {
	return func(w *Workspace) {
		if n != nil {
			w.notify = n
		}
	}
}

// WithRemoteTimeout bounds every remote call.
func WithRemoteTimeout(d time.Duration) Option {
	return func(w *Workspace) {
		if d > 0 {
			w.timeout = d
		}
	}
}

// WithClock overrides the time source for chat and document timestamps.
func WithClock(fn func() time.Time) Option {
	return func(w *Workspace) {
		if fn != nil {
			w.now = fn
		}
	}
}

// WithIDs overrides the provisional id generator.
func WithIDs(fn func() string) Option {
	return func(w *Workspace) {
		if fn != nil {
			w.newID = fn
		}
	}
}

// Workspace is the shared application state. Collections are replaced whole
// under mu, so a reader never sees a half-applied change.
type Workspace struct {
	store   docket.Store
	log     *zap.Logger
	notify  Notifier
	timeout time.Duration
	now     func() time.Time
	newID   func() string

	mu       sync.RWMutex
	users    []auth.User
	contacts []docket.Contact
	cases    []docket.Case
	events   []docket.Event

	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	closeMu sync.Mutex
	closed  bool
}

// New constructs an empty workspace over store. Call Load to populate it.
func New(store docket.Store, opts ...Option) *Workspace {
	ctx, cancel := context.WithCancel(context.Background())
	w := &Workspace{
		store:   store,
		log:     zap.NewNop(),
		notify:  nopNotifier{},
		timeout: defaultRemoteTimeout,
		now:     time.Now,
		newID:   ids.New,
		ctx:     ctx,
		cancel:  cancel,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Load fetches all four collections. A collection whose query fails keeps its
// previous snapshot; the failures are returned joined.
func (w *Workspace) Load(ctx context.Context) error {
	var errs []error

	if users, err := w.store.ListUsers(ctx); err != nil {
		errs = append(errs, w.loadFailed("list_users", err))
	} else {
		for i := range users {
			if users[i].Avatar == "" {
				users[i].Avatar = auth.DefaultAvatar(users[i].Name)
			}
		}
		w.mu.Lock()
		w.users = users
		w.mu.Unlock()
	}

	if contacts, err := w.store.ListContacts(ctx); err != nil {
		errs = append(errs, w.loadFailed("list_contacts", err))
	} else {
		w.mu.Lock()
		w.contacts = contacts
		w.mu.Unlock()
	}

	if cases, err := w.store.ListCases(ctx); err != nil {
		errs = append(errs, w.loadFailed("list_cases", err))
	} else {
		for i := range cases {
			cases[i] = cases[i].Clone()
		}
		w.mu.Lock()
		w.cases = cases
		w.mu.Unlock()
	}

	if events, err := w.store.ListEvents(ctx); err != nil {
		errs = append(errs, w.loadFailed("list_events", err))
	} else {
		for i := range events {
			events[i] = events[i].Clone()
		}
		w.mu.Lock()
		w.events = events
		w.mu.Unlock()
	}

	w.publish("loaded", "workspace", "", "", PhaseCommitted)
	return errors.Join(errs...)
}

func (w *Workspace) loadFailed(op string, err error) error {
	w.log.Error("load failed", zap.String("op", op), zap.Error(err))
	obs.ObserveRemote(op, "failed")
	return fmt.Errorf("%s: %w", op, err)
}

// Close stops accepting mutations and waits for in-flight remote calls. When
// ctx ends first the calls are cancelled and Close returns ctx.Err().
func (w *Workspace) Close(ctx context.Context) error {
	w.closeMu.Lock()
	w.closed = true
	w.closeMu.Unlock()

	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		w.cancel()
		return nil
	case <-ctx.Done():
		w.cancel()
		<-done
		return ctx.Err()
	}
}

// remote runs fn on its own goroutine bounded by the workspace context and
// the per-call timeout. Once closed, fn runs inline with a cancelled context
// so the Op still resolves.
func (w *Workspace) remote(fn func(ctx context.Context)) {
	w.closeMu.Lock()
	if w.closed {
		w.closeMu.Unlock()
		ctx, cancel := context.WithCancelCause(context.Background())
		cancel(ErrClosed)
		fn(ctx)
		return
	}
	w.wg.Add(1)
	w.closeMu.Unlock()
	go func() {
		defer w.wg.Done()
		ctx, cancel := context.WithTimeout(w.ctx, w.timeout)
		defer cancel()
		fn(ctx)
	}()
}

func (w *Workspace) isClosed() bool {
	w.closeMu.Lock()
	defer w.closeMu.Unlock()
	return w.closed
}

func (w *Workspace) publish(kind, entity, id, prevID string, phase Phase) {
	w.notify.Publish(stream.Change{Kind: kind, Entity: entity, ID: id, PrevID: prevID, Phase: string(phase)})
}

// finish logs, counts and publishes the resolution of op.
func (w *Workspace) finish(op *Op, entity string, out Outcome) {
	fields := []zap.Field{
		zap.String("op", op.name),
		zap.String("entity", entity),
		zap.String("id", out.ID),
		zap.String("phase", string(out.Phase)),
	}
	if op.provisional != "" && op.provisional != out.ID {
		fields = append(fields, zap.String("provisional_id", op.provisional))
	}
	if out.Err != nil {
		w.log.Error("remote operation failed", append(fields, zap.Error(out.Err))...)
	} else {
		w.log.Debug("remote operation committed", fields...)
	}
	obs.ObserveRemote(op.name, string(out.Phase))
	w.publish("resolved", entity, out.ID, op.provisional, out.Phase)
	op.resolve(out)
}

// Users returns a copy of the user collection.
func (w *Workspace) Users() []auth.User {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return slices.Clone(w.users)
}

// User looks a user up by id. Dangling ids report false.
func (w *Workspace) User(id string) (auth.User, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	for _, u := range w.users {
		if u.ID == id {
			return u, true
		}
	}
	return auth.User{}, false
}

// Contacts returns a copy of the contact collection.
func (w *Workspace) Contacts() []docket.Contact {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return slices.Clone(w.contacts)
}

// Cases returns a copy of the case collection.
func (w *Workspace) Cases() []docket.Case {
	w.mu.RLock()
	defer w.mu.RUnlock()
	out := make([]docket.Case, len(w.cases))
	for i, c := range w.cases {
		out[i] = c.Clone()
	}
	return out
}

// Case looks a case up by id.
func (w *Workspace) Case(id string) (docket.Case, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	for _, c := range w.cases {
		if c.ID == id {
			return c.Clone(), true
		}
	}
	return docket.Case{}, false
}

// Events returns a copy of the event collection.
func (w *Workspace) Events() []docket.Event {
	w.mu.RLock()
	defer w.mu.RUnlock()
	out := make([]docket.Event, len(w.events))
	for i, e := range w.events {
		out[i] = e.Clone()
	}
	return out
}

// Event looks an event up by id.
func (w *Workspace) Event(id string) (docket.Event, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	for _, e := range w.events {
		if e.ID == id {
			return e.Clone(), true
		}
	}
	return docket.Event{}, false
}

// EventsForCase returns the events linked to caseID.
func (w *Workspace) EventsForCase(caseID string) []docket.Event {
	w.mu.RLock()
	defer w.mu.RUnlock()
	var out []docket.Event
	for _, e := range w.events {
		if e.CaseID != "" && e.CaseID == caseID {
			out = append(out, e.Clone())
		}
	}
	return out
}

// RememberUser records a user that was already persisted elsewhere, such as
// a fresh registration. An existing entry with the same id is replaced.
func (w *Workspace) RememberUser(u auth.User) {
	if u.Avatar == "" {
		u.Avatar = auth.DefaultAvatar(u.Name)
	}
	w.mu.Lock()
	i := slices.IndexFunc(w.users, func(x auth.User) bool { return x.ID == u.ID })
	if i >= 0 {
		users := slices.Clone(w.users)
		users[i] = u
		w.users = users
	} else {
		w.users = append(slices.Clip(w.users), u)
	}
	w.mu.Unlock()
	w.publish("created", "user", u.ID, "", PhaseCommitted)
}
