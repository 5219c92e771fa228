package agenda

import (
	"fmt"
	"strings"

	"casedesk.org/internal/auth"
	"casedesk.org/internal/docket"
)

// StatusFilter selects events by completion.
type StatusFilter string

const (
	StatusAll       StatusFilter = "ALL"
	StatusPending   StatusFilter = "PENDING"
	StatusCompleted StatusFilter = "COMPLETED"
)

// ParseStatusFilter accepts ALL, PENDING or COMPLETED; empty means ALL.
func ParseStatusFilter(raw string) (StatusFilter, error) {
	switch s := StatusFilter(strings.ToUpper(strings.TrimSpace(raw))); s {
	case "":
		return StatusAll, nil
	case StatusAll, StatusPending, StatusCompleted:
		return s, nil
	default:
		return "", fmt.Errorf("%w: unknown status filter %q", auth.ErrInvalidInput, raw)
	}
}

// Filter holds the optional criteria chosen on the agenda.
type Filter struct {
	UserID string
	Status StatusFilter
	Search string
}

// Visible returns the events viewer may see that also match f, preserving
// collection order. Stages run in a fixed order and each one only excludes:
// access, user scope, status, then free-text search.
func Visible(viewer *auth.User, events []docket.Event, f Filter) []docket.Event {
	perms := auth.For(viewer)
	search := strings.ToLower(strings.TrimSpace(f.Search))
	out := make([]docket.Event, 0, len(events))
	for _, e := range events {
		if !canSee(viewer, perms, e) {
			continue
		}
		if f.UserID != "" && !e.IsAssigned(f.UserID) {
			continue
		}
		if !f.Status.matches(e.Status) {
			continue
		}
		if search != "" && !matchesSearch(e, search) {
			continue
		}
		out = append(out, e)
	}
	return out
}

// canSee is the access stage. Viewers without CanViewAll only see events
// they are assigned to, so an unassigned event is hidden from them.
func canSee(viewer *auth.User, perms auth.Permissions, e docket.Event) bool {
	if perms.CanViewAll() {
		return true
	}
	return viewer != nil && e.IsAssigned(viewer.ID)
}

func (s StatusFilter) matches(status docket.EventStatus) bool {
	switch s {
	case StatusPending:
		return status != docket.StatusCompleted
	case StatusCompleted:
		return status == docket.StatusCompleted
	default:
		return true
	}
}

func matchesSearch(e docket.Event, needle string) bool {
	return strings.Contains(strings.ToLower(e.Title), needle) ||
		strings.Contains(strings.ToLower(e.Description), needle)
}

// Day is one column of the week grid.
type Day struct {
	Date   docket.Date    `json:"date"`
	Name   string         `json:"name"`
	Events []docket.Event `json:"events"`
}

// Grid buckets events into the seven days of w by exact date string.
func Grid(w Week, events []docket.Event) []Day {
	days := w.Days()
	out := make([]Day, len(days))
	index := make(map[docket.Date]int, len(days))
	for i, d := range days {
		out[i] = Day{Date: d, Name: DayName(d.Weekday()), Events: []docket.Event{}}
		index[d] = i
	}
	for _, e := range events {
		if i, ok := index[e.Date]; ok {
			out[i].Events = append(out[i].Events, e)
		}
	}
	return out
}
