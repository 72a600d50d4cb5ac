package models

import (
	"fmt"
	"time"

	"github.com/lib/pq"
)

// DateLayout is the wire and storage format of committee defense dates.
const DateLayout = "2006-01-02"

// ClockLayout is the HH:MM layout of committee session windows.
const ClockLayout = "15:04"

// DefaultSessionStart is used to derive slots for committees without a window.
const DefaultSessionStart = "08:00"

// MemberRole is a closed set of committee seats.
type MemberRole string

const (
	MemberRoleChair     MemberRole = "CHAIR"
	MemberRoleSecretary MemberRole = "SECRETARY"
	MemberRoleMember    MemberRole = "MEMBER"
	MemberRoleReviewer  MemberRole = "REVIEWER"
)

// Valid reports whether r is a known role.
func (r MemberRole) Valid() bool {
	switch r {
	case MemberRoleChair, MemberRoleSecretary, MemberRoleMember, MemberRoleReviewer:
		return true
	}
	return false
}

// Committee is a dated defense panel with bounded session capacity.
type Committee struct {
	Code            string         `db:"code" json:"code"`
	Name            string         `db:"name" json:"name"`
	DefenseDate     time.Time      `db:"defense_date" json:"defense_date"`
	StartTime       string         `db:"start_time" json:"start_time,omitempty"`
	EndTime         string         `db:"end_time" json:"end_time,omitempty"`
	Room            string         `db:"room" json:"room"`
	SessionCapacity int            `db:"session_capacity" json:"session_capacity"`
	Tags            pq.StringArray `db:"tags" json:"tags"`
	CreatedAt       time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time      `db:"updated_at" json:"updated_at"`
}

// DateKey returns the defense date as YYYY-MM-DD.
func (c Committee) DateKey() string {
	return c.DefenseDate.Format(DateLayout)
}

// window returns the session as minutes since midnight. A missing bound
// stretches the session to that end of the day.
func (c Committee) window() (int, int) {
	start, end := 0, 24*60
	if m, ok := clockMinutes(c.StartTime); ok {
		start = m
	}
	if m, ok := clockMinutes(c.EndTime); ok {
		end = m
	}
	return start, end
}

// Overlaps reports whether both committees sit on the same date with
// intersecting session windows.
func (c Committee) Overlaps(other Committee) bool {
	if c.DateKey() != other.DateKey() {
		return false
	}
	aStart, aEnd := c.window()
	bStart, bEnd := other.window()
	return aStart < bEnd && bStart < aEnd
}

// SessionStart returns the instant the first defense of the session begins.
func (c Committee) SessionStart() time.Time {
	clock := c.StartTime
	if _, ok := clockMinutes(clock); !ok {
		clock = DefaultSessionStart
	}
	m, _ := clockMinutes(clock)
	y, mo, d := c.DefenseDate.Date()
	return time.Date(y, mo, d, m/60, m%60, 0, 0, time.UTC)
}

// SessionEnd returns the instant the session closes. A missing end time
// closes it at midnight.
func (c Committee) SessionEnd() time.Time {
	_, end := c.window()
	return c.midnight().Add(time.Duration(end) * time.Minute)
}

// HoldsSlot reports whether a defense starting at t and lasting slot fits
// inside the session window.
func (c Committee) HoldsSlot(t time.Time, slot time.Duration) bool {
	t = t.UTC()
	if !c.OnDefenseDate(t) {
		return false
	}
	start, _ := c.window()
	open := c.midnight().Add(time.Duration(start) * time.Minute)
	return !t.Before(open) && !t.Add(slot).After(c.SessionEnd())
}

func (c Committee) midnight() time.Time {
	y, mo, d := c.DefenseDate.Date()
	return time.Date(y, mo, d, 0, 0, 0, 0, time.UTC)
}

// OnDefenseDate reports whether t falls on the committee's defense date.
func (c Committee) OnDefenseDate(t time.Time) bool {
	return t.Format(DateLayout) == c.DateKey()
}

// ValidateWindow checks HH:MM formatting and ordering of the session window.
func ValidateWindow(start, end string) error {
	s, sok := clockMinutes(start)
	e, eok := clockMinutes(end)
	if start != "" && !sok {
		return fmt.Errorf("start_time %q is not HH:MM", start)
	}
	if end != "" && !eok {
		return fmt.Errorf("end_time %q is not HH:MM", end)
	}
	if sok && eok && s >= e {
		return fmt.Errorf("start_time %s must be before end_time %s", start, end)
	}
	return nil
}

func clockMinutes(v string) (int, bool) {
	if v == "" {
		return 0, false
	}
	t, err := time.Parse(ClockLayout, v)
	if err != nil {
		return 0, false
	}
	return t.Hour()*60 + t.Minute(), true
}

// CommitteeMember seats a lecturer on a committee. IsChair mirrors Role == CHAIR.
type CommitteeMember struct {
	CommitteeCode string     `db:"committee_code" json:"committee_code"`
	LecturerCode  string     `db:"lecturer_code" json:"lecturer_code"`
	Role          MemberRole `db:"role" json:"role"`
	IsChair       bool       `db:"is_chair" json:"is_chair"`
}

// CommitteeFilter narrows committee listings.
type CommitteeFilter struct {
	FromDate *time.Time
	ToDate   *time.Time
	Tag      string
	Page     int
	PageSize int
}

// CommitteeMemberDetail joins a membership with the lecturer profile.
type CommitteeMemberDetail struct {
	CommitteeMember
	FullName     string         `db:"full_name" json:"full_name"`
	AcademicRank AcademicRank   `db:"academic_rank" json:"academic_rank"`
	Tags         pq.StringArray `db:"tags" json:"tags"`
}

// CommitteeDetail is the read model served for a single committee.
type CommitteeDetail struct {
	Committee
	Members           []CommitteeMemberDetail `json:"members"`
	Assignments       []AssignmentDetail      `json:"assignments"`
	ActiveCount       int                     `json:"active_count"`
	RemainingCapacity int                     `json:"remaining_capacity"`
}

// LecturerCommittee lists a committee a lecturer sits on.
type LecturerCommittee struct {
	Committee
	Role        MemberRole `db:"role" json:"role"`
	IsChair     bool       `db:"is_chair" json:"is_chair"`
	ActiveCount int        `db:"active_count" json:"active_count"`
}
