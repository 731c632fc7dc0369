// Package grouping partitions a range-query result into presentation
// order: days, then minute-level time slots. Pure functions with stable
// ordering, so renderer output can be snapshot-tested.
package grouping

import (
	"sort"
	"time"

	"techcal/src-server/model"
)

// TimeSlot groups the events of one day that share a formatted start
// time, ordered by start ascending.
type TimeSlot struct {
	Label  string // "18:00"
	Start  time.Time
	Events []model.Event
}

type Day struct {
	Date      time.Time
	HasEvents bool
	Slots     []TimeSlot
}

// WeekStart returns the Monday 00:00 of the week containing t, in t's
// location.
func WeekStart(t time.Time) time.Time {
	t = time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
	offset := (int(t.Weekday()) + 6) % 7 // Monday = 0
	return t.AddDate(0, 0, -offset)
}

// Week partitions events into the seven days starting at weekStart.
// Events outside the week are ignored; days without events still appear
// with HasEvents false.
func Week(events []model.Event, weekStart time.Time, loc *time.Location) []Day {
	if loc == nil {
		loc = time.UTC
	}
	weekStart = time.Date(weekStart.Year(), weekStart.Month(), weekStart.Day(), 0, 0, 0, 0, loc)

	byDay := make(map[string][]model.Event)
	for _, event := range events {
		start := time.Unix(event.StartUnixUTC, 0).In(loc)
		if start.Before(weekStart) || !start.Before(weekStart.AddDate(0, 0, 7)) {
			continue
		}
		key := start.Format("2006-01-02")
		byDay[key] = append(byDay[key], event)
	}

	days := make([]Day, 0, 7)
	for i := 0; i < 7; i++ {
		date := weekStart.AddDate(0, 0, i)
		dayEvents := byDay[date.Format("2006-01-02")]

		sort.Slice(dayEvents, func(a, b int) bool {
			if dayEvents[a].StartUnixUTC != dayEvents[b].StartUnixUTC {
				return dayEvents[a].StartUnixUTC < dayEvents[b].StartUnixUTC
			}
			if dayEvents[a].DisplayTitle != dayEvents[b].DisplayTitle {
				return dayEvents[a].DisplayTitle < dayEvents[b].DisplayTitle
			}
			return dayEvents[a].ID < dayEvents[b].ID
		})

		var slots []TimeSlot
		for _, event := range dayEvents {
			start := time.Unix(event.StartUnixUTC, 0).In(loc)
			label := start.Format("15:04")
			if len(slots) > 0 && slots[len(slots)-1].Label == label {
				last := &slots[len(slots)-1]
				last.Events = append(last.Events, event)
				continue
			}
			slots = append(slots, TimeSlot{
				Label:  label,
				Start:  start,
				Events: []model.Event{event},
			})
		}

		days = append(days, Day{
			Date:      date,
			HasEvents: len(slots) > 0,
			Slots:     slots,
		})
	}

	return days
}
