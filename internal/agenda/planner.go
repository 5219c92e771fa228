package agenda

import (
	"fmt"
	"strings"

	"go.uber.org/zap"

	"casedesk.org/internal/auth"
	"casedesk.org/internal/docket"
	"casedesk.org/internal/obs"
	"casedesk.org/internal/workspace"
)

// Planner is the scheduling engine over a workspace.
type Planner struct {
	ws  *workspace.Workspace
	log *zap.Logger
}

// NewPlanner wires a planner to ws.
func NewPlanner(ws *workspace.Workspace, log *zap.Logger) *Planner {
	return &Planner{ws: ws, log: obs.OrNop(log)}
}

// View is a computed week.
type View struct {
	Start docket.Date `json:"start"`
	End   docket.Date `json:"end"`
	Prev  docket.Date `json:"prev"`
	Next  docket.Date `json:"next"`
	Days  []Day       `json:"days"`
}

// Week builds the grid for the week containing anchor as seen by viewer.
func (p *Planner) Week(viewer *auth.User, anchor docket.Date, f Filter) View {
	w := WeekOf(anchor)
	visible := Visible(viewer, p.ws.Events(), f)
	return View{
		Start: w.Start,
		End:   w.End(),
		Prev:  w.Prev().Start,
		Next:  w.Next().Start,
		Days:  Grid(w, visible),
	}
}

// Event returns one event if viewer may see it. Hidden events report
// docket.ErrNotFound so their existence is not disclosed.
func (p *Planner) Event(viewer *auth.User, id string) (docket.Event, error) {
	e, ok := p.ws.Event(id)
	if !ok || !canSee(viewer, auth.For(viewer), e) {
		return docket.Event{}, fmt.Errorf("event %s: %w", id, docket.ErrNotFound)
	}
	return e, nil
}

// Reschedule moves an event to another day (drag-and-drop). It refuses to
// start unless viewer may reschedule; the workspace checks again on write.
func (p *Planner) Reschedule(viewer *auth.User, eventID string, date docket.Date) (*workspace.Op, error) {
	if !auth.For(viewer).CanReschedule() {
		p.log.Info("reschedule refused", zap.String("event_id", eventID), zap.String("role", string(auth.For(viewer).Role())))
		return nil, auth.ErrForbidden
	}
	return opResult(p.ws.UpdateEventDate(viewer, eventID, date))
}

// ToggleStatus flips an event between PENDING and COMPLETED.
func (p *Planner) ToggleStatus(viewer *auth.User, eventID string) (*workspace.Op, error) {
	if !auth.For(viewer).CanEdit() {
		return nil, auth.ErrForbidden
	}
	return opResult(p.ws.UpdateEventFunc(eventID, func(e docket.Event) docket.Event {
		e.Status = e.Status.Toggled()
		return e
	}))
}

// CreateEvent adds a new event.
func (p *Planner) CreateEvent(viewer *auth.User, e docket.Event) (*workspace.Op, error) {
	if !auth.For(viewer).CanCreate() {
		return nil, auth.ErrForbidden
	}
	if err := validateEvent(e); err != nil {
		return nil, err
	}
	return opResult(p.ws.AddEvent(e))
}

// UpdateEvent replaces the editable fields of an event. The chat thread is
// kept from the current record.
func (p *Planner) UpdateEvent(viewer *auth.User, e docket.Event) (*workspace.Op, error) {
	if !auth.For(viewer).CanEdit() {
		return nil, auth.ErrForbidden
	}
	if err := validateEvent(e); err != nil {
		return nil, err
	}
	return opResult(p.ws.UpdateEventFunc(e.ID, func(current docket.Event) docket.Event {
		e.Chat = current.Chat
		return e
	}))
}

// LinkCase points an event at a case, or unlinks it when caseID is empty.
// The case id is not checked against the case collection.
func (p *Planner) LinkCase(viewer *auth.User, eventID, caseID string) (*workspace.Op, error) {
	if !auth.For(viewer).CanEdit() {
		return nil, auth.ErrForbidden
	}
	caseID = strings.TrimSpace(caseID)
	return opResult(p.ws.UpdateEventFunc(eventID, func(e docket.Event) docket.Event {
		e.CaseID = caseID
		return e
	}))
}

// DeleteEvent removes an event.
func (p *Planner) DeleteEvent(viewer *auth.User, eventID string) (*workspace.Op, error) {
	if !auth.For(viewer).CanDelete() {
		return nil, auth.ErrForbidden
	}
	return opResult(p.ws.DeleteEvent(eventID))
}

// PostMessage appends to the thread of an event viewer can see.
func (p *Planner) PostMessage(viewer *auth.User, eventID, text string) (*workspace.Op, error) {
	if _, err := p.Event(viewer, eventID); err != nil {
		return nil, err
	}
	return opResult(p.ws.AddChatMessage(viewer, eventID, text))
}

// Stats are the dashboard counters.
type Stats struct {
	User         auth.User `json:"user"`
	RoleTitle    string    `json:"roleTitle"`
	PendingTasks int       `json:"pendingTasks"`
	ActiveCases  int       `json:"activeCases"`
	Contacts     int       `json:"contacts"`
}

// Stats counts every event not yet completed, regardless of who may see it.
func (p *Planner) Stats(viewer *auth.User) Stats {
	var s Stats
	if viewer != nil {
		s.User = *viewer
		s.RoleTitle = viewer.Role.Title()
	}
	for _, e := range p.ws.Events() {
		if e.Status != docket.StatusCompleted {
			s.PendingTasks++
		}
	}
	s.ActiveCases = len(p.ws.Cases())
	s.Contacts = len(p.ws.Contacts())
	return s
}

func opResult(op *workspace.Op) (*workspace.Op, error) {
	if err := op.Rejection(); err != nil {
		return nil, err
	}
	return op, nil
}

func validateEvent(e docket.Event) error {
	if strings.TrimSpace(e.Title) == "" {
		return fmt.Errorf("%w: title is required", auth.ErrInvalidInput)
	}
	if !e.Date.Valid() {
		return fmt.Errorf("%w: invalid date %q", auth.ErrInvalidInput, e.Date)
	}
	return nil
}
