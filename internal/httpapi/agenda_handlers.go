package httpapi

import (
	"bytes"
	"fmt"
	"net/http"
	"strings"
	"time"

	"casedesk.org/internal/agenda"
	"casedesk.org/internal/docket"
)

type eventRequest struct {
	Title       string   `json:"title"`
	Type        string   `json:"type"`
	Date        string   `json:"date"`
	Time        string   `json:"time"`
	Description string   `json:"description"`
	Status      string   `json:"status"`
	CaseID      string   `json:"caseId"`
	AssignedTo  []string `json:"assignedToIds"`
}

func (req eventRequest) event() (docket.Event, error) {
	typ, err := docket.ParseEventType(req.Type)
	if err != nil {
		return docket.Event{}, err
	}
	date, err := docket.ParseDate(req.Date)
	if err != nil {
		return docket.Event{}, err
	}
	clock, err := docket.ParseClock(req.Time)
	if err != nil {
		return docket.Event{}, err
	}
	status, err := docket.ParseEventStatus(req.Status)
	if err != nil {
		return docket.Event{}, err
	}
	assigned := make([]string, 0, len(req.AssignedTo))
	seen := map[string]bool{}
	for _, id := range req.AssignedTo {
		if id = strings.TrimSpace(id); id != "" && !seen[id] {
			seen[id] = true
			assigned = append(assigned, id)
		}
	}
	return docket.Event{
		Title:       strings.TrimSpace(req.Title),
		Type:        typ,
		Date:        date,
		Time:        clock,
		Description: strings.TrimSpace(req.Description),
		Status:      status,
		CaseID:      strings.TrimSpace(req.CaseID),
		AssignedTo:  assigned,
	}, nil
}

type rescheduleRequest struct {
	Date string `json:"date"`
}

type linkCaseRequest struct {
	CaseID string `json:"caseId"`
}

type messageRequest struct {
	Text string `json:"text"`
}

// agendaQuery reads date, user, status and q.
func agendaQuery(r *http.Request) (docket.Date, agenda.Filter, error) {
	q := r.URL.Query()
	anchor := docket.DateOf(time.Now())
	if raw := q.Get("date"); raw != "" {
		d, err := docket.ParseDate(raw)
		if err != nil {
			return "", agenda.Filter{}, err
		}
		anchor = d
	}
	status, err := agenda.ParseStatusFilter(q.Get("status"))
	if err != nil {
		return "", agenda.Filter{}, err
	}
	return anchor, agenda.Filter{
		UserID: strings.TrimSpace(q.Get("user")),
		Status: status,
		Search: q.Get("q"),
	}, nil
}

func (a *API) handleAgenda(w http.ResponseWriter, r *http.Request) {
	anchor, f, err := agendaQuery(r)
	if err != nil {
		a.handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, a.deps.Planner.Week(viewer(r), anchor, f))
}

func (a *API) handleAgendaExport(w http.ResponseWriter, r *http.Request) {
	anchor, f, err := agendaQuery(r)
	if err != nil {
		a.handleError(w, r, err)
		return
	}
	view := a.deps.Planner.Week(viewer(r), anchor, f)
	var buf bytes.Buffer
	if err := agenda.ExportWeek(&buf, view, a.deps.Workspace.Users(), a.deps.Workspace.Cases()); err != nil {
		a.handleError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="agenda-%s.xlsx"`, view.Start))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

func (a *API) findEvent(id string) (any, bool) {
	e, ok := a.deps.Workspace.Event(id)
	return e, ok
}

func (a *API) handleCreateEvent(w http.ResponseWriter, r *http.Request) {
	var req eventRequest
	if err := a.decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	e, err := req.event()
	if err != nil {
		a.handleError(w, r, err)
		return
	}
	op, err := a.deps.Planner.CreateEvent(viewer(r), e)
	if err != nil {
		a.handleError(w, r, err)
		return
	}
	a.respondOp(w, r, op, true, a.findEvent)
}

func (a *API) handleGetEvent(w http.ResponseWriter, r *http.Request) {
	e, err := a.deps.Planner.Event(viewer(r), r.PathValue("id"))
	if err != nil {
		a.handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, e)
}

func (a *API) handleUpdateEvent(w http.ResponseWriter, r *http.Request) {
	var req eventRequest
	if err := a.decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	e, err := req.event()
	if err != nil {
		a.handleError(w, r, err)
		return
	}
	e.ID = r.PathValue("id")
	op, err := a.deps.Planner.UpdateEvent(viewer(r), e)
	if err != nil {
		a.handleError(w, r, err)
		return
	}
	a.respondOp(w, r, op, false, a.findEvent)
}

func (a *API) handleDeleteEvent(w http.ResponseWriter, r *http.Request) {
	op, err := a.deps.Planner.DeleteEvent(viewer(r), r.PathValue("id"))
	if err != nil {
		a.handleError(w, r, err)
		return
	}
	a.respondOp(w, r, op, false, a.findEvent)
}

func (a *API) handleReschedule(w http.ResponseWriter, r *http.Request) {
	var req rescheduleRequest
	if err := a.decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	date, err := docket.ParseDate(req.Date)
	if err != nil {
		a.handleError(w, r, err)
		return
	}
	op, err := a.deps.Planner.Reschedule(viewer(r), r.PathValue("id"), date)
	if err != nil {
		a.handleError(w, r, err)
		return
	}
	a.respondOp(w, r, op, false, a.findEvent)
}

func (a *API) handleToggle(w http.ResponseWriter, r *http.Request) {
	op, err := a.deps.Planner.ToggleStatus(viewer(r), r.PathValue("id"))
	if err != nil {
		a.handleError(w, r, err)
		return
	}
	a.respondOp(w, r, op, false, a.findEvent)
}

func (a *API) handleLinkCase(w http.ResponseWriter, r *http.Request) {
	var req linkCaseRequest
	if err := a.decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	op, err := a.deps.Planner.LinkCase(viewer(r), r.PathValue("id"), req.CaseID)
	if err != nil {
		a.handleError(w, r, err)
		return
	}
	a.respondOp(w, r, op, false, a.findEvent)
}

func (a *API) handlePostMessage(w http.ResponseWriter, r *http.Request) {
	var req messageRequest
	if err := a.decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	eventID := r.PathValue("id")
	op, err := a.deps.Planner.PostMessage(viewer(r), eventID, req.Text)
	if err != nil {
		a.handleError(w, r, err)
		return
	}
	a.respondOp(w, r, op, true, func(id string) (any, bool) {
		e, ok := a.deps.Workspace.Event(eventID)
		if !ok {
			return nil, false
		}
		for _, m := range e.Chat {
			if m.ID == id {
				return m, true
			}
		}
		return nil, false
	})
}
