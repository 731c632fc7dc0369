package render

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"time"

	"techcal/src-server/grouping"
	"techcal/src-server/model"
)

//go:embed calendar.tmpl
var templateFS embed.FS

var calendarTemplate = template.Must(template.ParseFS(templateFS, "calendar.tmpl"))

type eventView struct {
	DisplayTitle string
	Location     string
	URL          string
	// attribution precedence: submitter wins over group when present
	AttributionName string
	AttributionLink string
}

type slotView struct {
	Label  string
	Events []eventView
}

type dayView struct {
	Heading   string // "Monday, Jun 3"
	HasEvents bool
	Slots     []slotView
}

type pageView struct {
	WeekHeading string
	Days        []dayView
}

// Attribution resolves who an event is shown as coming from: the human
// submitter when present, otherwise the owning group, otherwise nobody.
func Attribution(e model.Event) (name, link string) {
	if e.SubmitterName != "" {
		return e.SubmitterName, e.SubmitterLink
	}
	return e.GroupName, e.GroupWebsite
}

// HTML renders the grouped week as a static page. Byte-identical output
// for identical input: no clocks, no map iteration.
func HTML(days []grouping.Day, weekStart time.Time) ([]byte, error) {
	page := pageView{
		WeekHeading: fmt.Sprintf("Week of %s", weekStart.Format("January 2, 2006")),
	}
	for _, day := range days {
		view := dayView{
			Heading:   day.Date.Format("Monday, Jan 2"),
			HasEvents: day.HasEvents,
		}
		for _, slot := range day.Slots {
			sv := slotView{Label: slot.Label}
			for _, event := range slot.Events {
				name, link := Attribution(event)
				sv.Events = append(sv.Events, eventView{
					DisplayTitle:    event.DisplayTitle,
					Location:        event.Location,
					URL:             event.URL,
					AttributionName: name,
					AttributionLink: link,
				})
			}
			view.Slots = append(view.Slots, sv)
		}
		page.Days = append(page.Days, view)
	}

	var buf bytes.Buffer
	if err := calendarTemplate.Execute(&buf, page); err != nil {
		return nil, fmt.Errorf("HTML: %w", err)
	}
	return buf.Bytes(), nil
}
