package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/huuhuy2910/dnu-thesis-system-sub001/internal/models"
	appErrors "github.com/huuhuy2910/dnu-thesis-system-sub001/pkg/errors"
	"github.com/huuhuy2910/dnu-thesis-system-sub001/pkg/export"
)

// Supported committee export formats.
const (
	ExportFormatCSV  = "csv"
	ExportFormatPDF  = "pdf"
	ExportFormatXLSX = "xlsx"
)

var sessionSheetHeaders = []string{"Slot", "Assignment", "Topic", "Title", "Student", "Tag Override", "Override Reason"}

type committeeDetailProvider interface {
	GetCommitteeDetail(ctx context.Context, code string) (*models.CommitteeDetail, bool, error)
	GetLecturerCommittees(ctx context.Context, lecturerCode string) ([]models.LecturerCommittee, bool, error)
}

type csvRenderer interface {
	Render(data export.Dataset) ([]byte, error)
}

type pdfRenderer interface {
	Render(data export.Dataset, subtitle string) ([]byte, error)
}

type xlsxRenderer interface {
	Render(data export.Dataset, sheet string) ([]byte, error)
}

type icsRenderer interface {
	Render(name string, events []export.CalendarEvent) ([]byte, error)
}

// ExportFile is a rendered document ready to stream.
type ExportFile struct {
	Filename    string
	ContentType string
	Body        []byte
}

// ExportService renders committee session sheets and lecturer calendars.
type ExportService struct {
	views  committeeDetailProvider
	csv    csvRenderer
	pdf    pdfRenderer
	xlsx   xlsxRenderer
	ics    icsRenderer
	slot   time.Duration
	logger *zap.Logger
}

// NewExportService constructs an ExportService with the default renderers.
func NewExportService(views committeeDetailProvider, slot time.Duration, logger *zap.Logger) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if slot <= 0 {
		slot = defaultSlotDuration
	}
	return &ExportService{
		views:  views,
		csv:    export.NewCSVExporter(),
		pdf:    export.NewPDFExporter(),
		xlsx:   export.NewXLSXExporter(),
		ics:    export.NewICSExporter(),
		slot:   slot,
		logger: logger,
	}
}

// ExportCommittee renders the committee's session sheet in format.
func (s *ExportService) ExportCommittee(ctx context.Context, code, format string) (*ExportFile, error) {
	format = strings.ToLower(strings.TrimSpace(format))
	if format == "" {
		format = ExportFormatCSV
	}
	if format != ExportFormatCSV && format != ExportFormatPDF && format != ExportFormatXLSX {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unsupported export format %q", format))
	}

	detail, _, err := s.views.GetCommitteeDetail(ctx, code)
	if err != nil {
		return nil, err
	}
	data := sessionSheet(detail)
	base := sanitizeFilename(fmt.Sprintf("%s_%s", detail.Code, detail.DateKey()))

	var (
		body        []byte
		contentType string
	)
	switch format {
	case ExportFormatCSV:
		body, err = s.csv.Render(data)
		contentType = "text/csv"
	case ExportFormatPDF:
		body, err = s.pdf.Render(data, sessionSubtitle(detail))
		contentType = "application/pdf"
	case ExportFormatXLSX:
		body, err = s.xlsx.Render(data, detail.Code)
		contentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	}
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render committee export")
	}

	s.logger.Info("committee exported", zap.String("committee", code), zap.String("format", format), zap.Int("bytes", len(body)))
	return &ExportFile{Filename: base + "." + format, ContentType: contentType, Body: body}, nil
}

// LecturerCalendar renders the lecturer's committee sessions as iCalendar.
func (s *ExportService) LecturerCalendar(ctx context.Context, lecturerCode string) (*ExportFile, error) {
	committees, _, err := s.views.GetLecturerCommittees(ctx, lecturerCode)
	if err != nil {
		return nil, err
	}

	events := make([]export.CalendarEvent, 0, len(committees))
	for _, c := range committees {
		events = append(events, s.sessionEvent(lecturerCode, c))
	}

	body, err := s.ics.Render("Defense committees "+lecturerCode, events)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render lecturer calendar")
	}
	return &ExportFile{
		Filename:    sanitizeFilename(lecturerCode+"_committees") + ".ics",
		ContentType: "text/calendar",
		Body:        body,
	}, nil
}

func (s *ExportService) sessionEvent(lecturerCode string, c models.LecturerCommittee) export.CalendarEvent {
	event := export.CalendarEvent{
		UID:         fmt.Sprintf("%s-%s@thesis-defense", c.Code, lecturerCode),
		Summary:     fmt.Sprintf("%s (%s)", c.Name, c.Role),
		Description: fmt.Sprintf("Committee %s, %d/%d defenses scheduled", c.Code, c.ActiveCount, c.SessionCapacity),
		Location:    c.Room,
	}
	if c.StartTime == "" && c.EndTime == "" {
		event.AllDay = true
		event.Start = c.DefenseDate
		return event
	}
	event.Start = c.SessionStart()
	if end, err := time.Parse(models.ClockLayout, c.EndTime); err == nil {
		y, m, d := c.DefenseDate.Date()
		event.End = time.Date(y, m, d, end.Hour(), end.Minute(), 0, 0, time.UTC)
	} else {
		event.End = event.Start.Add(time.Duration(max(c.SessionCapacity, 1)) * s.slot)
	}
	return event
}

func sessionSheet(detail *models.CommitteeDetail) export.Dataset {
	rows := make([]map[string]string, 0, len(detail.Assignments))
	for _, a := range detail.Assignments {
		override := "no"
		if a.TagOverride {
			override = "yes"
		}
		rows = append(rows, map[string]string{
			"Slot":            a.ScheduledAt.UTC().Format("2006-01-02 15:04"),
			"Assignment":      a.Code,
			"Topic":           a.TopicCode,
			"Title":           a.TopicTitle,
			"Student":         a.StudentCode,
			"Tag Override":    override,
			"Override Reason": a.OverrideReason,
		})
	}
	return export.Dataset{
		Title:   fmt.Sprintf("%s - %s", detail.Code, detail.Name),
		Headers: sessionSheetHeaders,
		Rows:    rows,
	}
}

func sessionSubtitle(detail *models.CommitteeDetail) string {
	window := "all day"
	if detail.StartTime != "" || detail.EndTime != "" {
		window = strings.Trim(detail.StartTime+"-"+detail.EndTime, "-")
	}
	var chair string
	for _, m := range detail.Members {
		if m.IsChair {
			chair = m.FullName
			break
		}
	}
	subtitle := fmt.Sprintf("%s %s, room %s, %d/%d scheduled", detail.DateKey(), window, detail.Room, detail.ActiveCount, detail.SessionCapacity)
	if chair != "" {
		subtitle += ", chair " + chair
	}
	return subtitle
}

func sanitizeFilename(raw string) string {
	replacer := strings.NewReplacer(" ", "_", "/", "-", "\\", "-", ":", "-")
	return replacer.Replace(strings.TrimSpace(raw))
}
