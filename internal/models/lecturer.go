package models

import (
	"time"

	"github.com/lib/pq"
)

// AcademicRank is ordered from LECTURER (lowest) to PROFESSOR.
type AcademicRank string

const (
	RankLecturer           AcademicRank = "LECTURER"
	RankSeniorLecturer     AcademicRank = "SENIOR_LECTURER"
	RankAssociateProfessor AcademicRank = "ASSOCIATE_PROFESSOR"
	RankProfessor          AcademicRank = "PROFESSOR"
)

var rankOrder = map[AcademicRank]int{
	RankLecturer:           1,
	RankSeniorLecturer:     2,
	RankAssociateProfessor: 3,
	RankProfessor:          4,
}

// Level returns the rank's position; unknown ranks are 0.
func (r AcademicRank) Level() int {
	return rankOrder[r]
}

// Valid reports whether r is a known rank.
func (r AcademicRank) Valid() bool {
	return r.Level() > 0
}

// AtLeast reports whether r ranks equal to or above min.
func (r AcademicRank) AtLeast(min AcademicRank) bool {
	return r.Valid() && r.Level() >= min.Level()
}

// Lecturer is a lecturer profile. CurrentDefenseCount is derived on read from
// memberships in committees sitting today or later.
type Lecturer struct {
	Code                string         `db:"code" json:"code"`
	FullName            string         `db:"full_name" json:"full_name"`
	DepartmentCode      string         `db:"department_code" json:"department_code"`
	AcademicRank        AcademicRank   `db:"academic_rank" json:"academic_rank"`
	Tags                pq.StringArray `db:"tags" json:"tags"`
	DefenseQuota        int            `db:"defense_quota" json:"defense_quota"`
	CurrentDefenseCount int            `db:"current_defense_count" json:"current_defense_count"`
}

// HasQuotaHeadroom reports whether the lecturer can join one more committee.
func (l Lecturer) HasQuotaHeadroom() bool {
	return l.CurrentDefenseCount < l.DefenseQuota
}

// LecturerFilter narrows available lecturer queries.
type LecturerFilter struct {
	Tag                string
	Date               *time.Time
	Role               MemberRole
	RequireChair       bool
	ExcludingCommittee string
	Page               int
	PageSize           int
}
