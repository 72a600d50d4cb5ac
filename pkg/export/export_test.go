package export

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func sessionSheet() Dataset {
	return Dataset{
		Title:   "Committee C1",
		Headers: []string{"Slot", "Topic", "Student"},
		Rows: []map[string]string{
			{"Slot": "08:00", "Topic": "T1", "Student": "S1"},
			{"Slot": "08:45", "Topic": "T2"},
		},
	}
}

func TestCSVRenderOrdersByHeader(t *testing.T) {
	out, err := NewCSVExporter().Render(sessionSheet())
	require.NoError(t, err)
	assert.Equal(t, "Slot,Topic,Student\n08:00,T1,S1\n08:45,T2,\n", string(out))
}

func TestRenderRejectsEmptyHeaders(t *testing.T) {
	_, err := NewCSVExporter().Render(Dataset{})
	assert.Error(t, err)
	_, err = NewPDFExporter().Render(Dataset{}, "")
	assert.Error(t, err)
	_, err = NewXLSXExporter().Render(Dataset{}, "")
	assert.Error(t, err)
}

func TestPDFRender(t *testing.T) {
	out, err := NewPDFExporter().Render(sessionSheet(), "2025-06-10, Room B201")
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(out, []byte("%PDF")))
}

func TestXLSXRender(t *testing.T) {
	out, err := NewXLSXExporter().Render(sessionSheet(), "C1")
	require.NoError(t, err)

	f, err := excelize.OpenReader(bytes.NewReader(out))
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{"C1"}, f.GetSheetList())
	v, err := f.GetCellValue("C1", "B3")
	require.NoError(t, err)
	assert.Equal(t, "T1", v)
}

func TestICSRender(t *testing.T) {
	exp := NewICSExporter()
	exp.now = func() time.Time { return time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC) }
	start := time.Date(2025, 6, 10, 8, 0, 0, 0, time.UTC)

	out, err := exp.Render("L01 defenses", []CalendarEvent{
		{UID: "C1@defense", Summary: "Committee C1", Location: "B201", Start: start, End: start.Add(4 * time.Hour)},
		{UID: "C2@defense", Summary: "Committee C2", Start: start.AddDate(0, 0, 1), AllDay: true},
	})
	require.NoError(t, err)

	body := string(out)
	assert.True(t, strings.HasPrefix(body, "BEGIN:VCALENDAR"))
	assert.Equal(t, 2, strings.Count(body, "BEGIN:VEVENT"))
	assert.Contains(t, body, "UID:C1@defense")
	assert.Contains(t, body, "LOCATION:B201")
}

func TestICSRenderRequiresUID(t *testing.T) {
	_, err := NewICSExporter().Render("x", []CalendarEvent{{Summary: "no id"}})
	assert.Error(t, err)
}
