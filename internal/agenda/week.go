// Package agenda computes week views over the event collection and gates
// every scheduling mutation through the role predicates.
package agenda

import (
	"time"

	"casedesk.org/internal/docket"
)

var dayNames = [...]string{"Domingo", "Segunda", "Terça", "Quarta", "Quinta", "Sexta", "Sábado"}

// DayName is the weekday label used in views and exports.
func DayName(d time.Weekday) string { return dayNames[d] }

// Week is a Monday..Sunday window.
type Week struct {
	Start docket.Date
}

// WeekOf returns the week containing anchor. Monday is day 1, so a Sunday
// anchor belongs to the week that started six days earlier.
func WeekOf(anchor docket.Date) Week {
	offset := (int(anchor.Weekday()) + 6) % 7
	return Week{Start: anchor.AddDays(-offset)}
}

// Days returns the seven dates of w in order.
func (w Week) Days() []docket.Date {
	out := make([]docket.Date, 7)
	for i := range out {
		out[i] = w.Start.AddDays(i)
	}
	return out
}

// End is the Sunday closing w.
func (w Week) End() docket.Date { return w.Start.AddDays(6) }

// Next is the following week.
func (w Week) Next() Week { return Week{Start: w.Start.AddDays(7)} }

// Prev is the preceding week.
func (w Week) Prev() Week { return Week{Start: w.Start.AddDays(-7)} }

// Contains reports whether d falls inside w.
func (w Week) Contains(d docket.Date) bool {
	return d >= w.Start && d <= w.End()
}
