package models

import "time"

// LocationHistory is the long-lived per-location record of restock dates. Rollover only
// rotates the two week fields; entries are never removed.
type LocationHistory struct {
	LocationKey   string     `json:"location_key"`
	CurrentWeek   *time.Time `json:"current_week"`
	PreviousWeek  *time.Time `json:"previous_week"`
	LastCheckedAt *time.Time `json:"last_checked_at,omitempty"`
	LastCheckedBy string     `json:"last_checked_by,omitempty"`
	WeekStart     *time.Time `json:"week_start,omitempty"`

	// Single-date shape written by older versions; moved into CurrentWeek on load.
	LegacyLastRestock *time.Time `json:"last_restock,omitempty"`
}

// RecordRestock sets the current-week date. A live sighting always replaces it; past and
// upcoming dates only replace an older one. Rollovers missed since the entry was last
// written are applied first.
func (h *LocationHistory) RecordRestock(at time.Time, weekStart time.Time, live bool) {
	h.Advance(weekStart)
	if live || h.CurrentWeek == nil || at.After(*h.CurrentWeek) {
		t := at
		h.CurrentWeek = &t
	}
	ws := weekStart
	h.WeekStart = &ws
}

// MarkChecked records that someone looked at the location, independent of restocks.
func (h *LocationHistory) MarkChecked(checkerID string, at time.Time, weekStart time.Time) {
	h.Advance(weekStart)
	t := at
	h.LastCheckedAt = &t
	h.LastCheckedBy = checkerID
}

// Advance applies, in place, the rollovers missed between the entry's week marker and
// currentWeekStart.
func (h *LocationHistory) Advance(currentWeekStart time.Time) {
	*h = h.Normalized(currentWeekStart)
}

// Rotate moves the current week into the previous week and clears the current week.
// A nil current week clears the previous week as well.
func (h *LocationHistory) Rotate(weekStart time.Time) {
	h.PreviousWeek = h.CurrentWeek
	h.CurrentWeek = nil
	ws := weekStart
	h.WeekStart = &ws
}

// Normalized returns a copy as it would look after the rollovers missed between the
// entry's week marker and currentWeekStart. The receiver is not modified.
func (h *LocationHistory) Normalized(currentWeekStart time.Time) LocationHistory {
	out := *h
	if h.WeekStart == nil || !h.WeekStart.Before(currentWeekStart) {
		return out
	}
	// One missed rollover rotates once; two or more leave nothing in either week.
	if !h.WeekStart.AddDate(0, 0, 7).Before(currentWeekStart) {
		out.PreviousWeek = h.CurrentWeek
	} else {
		out.PreviousWeek = nil
	}
	out.CurrentWeek = nil
	ws := currentWeekStart
	out.WeekStart = &ws
	return out
}

// WeekStart returns midnight (in loc) of the first day after the rollover weekday that is
// not after t. Weeks therefore run from the day after rollover through rollover day.
func WeekStart(t time.Time, rolloverDay time.Weekday, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	local := t.In(loc)
	first := (rolloverDay + 1) % 7
	offset := (int(local.Weekday()) - int(first) + 7) % 7
	day := local.AddDate(0, 0, -offset)
	return time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, loc)
}
