package export

import (
	"fmt"
	"time"

	ics "github.com/arran4/golang-ical"
)

// CalendarEvent is one entry of an exported calendar.
type CalendarEvent struct {
	UID         string
	Summary     string
	Description string
	Location    string
	Start       time.Time
	End         time.Time
	AllDay      bool
}

// ICSExporter renders events as an iCalendar feed.
type ICSExporter struct {
	productID string
	now       func() time.Time
}

// NewICSExporter constructs an ICS exporter.
func NewICSExporter() *ICSExporter {
	return &ICSExporter{productID: "-//thesis-defense//committee calendar//EN", now: time.Now}
}

// Render serializes events into a PUBLISH calendar named name.
func (e *ICSExporter) Render(name string, events []CalendarEvent) ([]byte, error) {
	cal := ics.NewCalendar()
	cal.SetMethod(ics.MethodPublish)
	cal.SetProductId(e.productID)
	if name != "" {
		cal.SetXWRCalName(name)
	}

	stamp := e.now().UTC()
	for _, evt := range events {
		if evt.UID == "" {
			return nil, fmt.Errorf("calendar event %q has no uid", evt.Summary)
		}
		ve := cal.AddEvent(evt.UID)
		ve.SetDtStampTime(stamp)
		ve.SetSummary(evt.Summary)
		if evt.Description != "" {
			ve.SetDescription(evt.Description)
		}
		if evt.Location != "" {
			ve.SetLocation(evt.Location)
		}
		if evt.AllDay {
			ve.SetAllDayStartAt(evt.Start)
			ve.SetAllDayEndAt(evt.Start.AddDate(0, 0, 1))
			continue
		}
		ve.SetStartAt(evt.Start)
		ve.SetEndAt(evt.End)
	}

	return []byte(cal.Serialize()), nil
}
