package dto

// CommitteeMemberRequest seats one lecturer.
type CommitteeMemberRequest struct {
	LecturerCode string `json:"lecturer_code" validate:"required,max=64"`
	Role         string `json:"role" validate:"required,oneof=CHAIR SECRETARY MEMBER REVIEWER"`
}

// CreateCommitteeRequest registers a committee. Code is generated when empty
// and capacity falls back to the configured default.
type CreateCommitteeRequest struct {
	Code            string                   `json:"code,omitempty" validate:"omitempty,max=64"`
	Name            string                   `json:"name" validate:"required,max=255"`
	DefenseDate     string                   `json:"defense_date" validate:"required,datetime=2006-01-02"`
	StartTime       string                   `json:"start_time,omitempty" validate:"omitempty,datetime=15:04"`
	EndTime         string                   `json:"end_time,omitempty" validate:"omitempty,datetime=15:04"`
	Room            string                   `json:"room,omitempty" validate:"max=64"`
	SessionCapacity int                      `json:"session_capacity,omitempty" validate:"gte=0,lte=100"`
	Tags            []string                 `json:"tags,omitempty" validate:"omitempty,max=20,dive,required"`
	Members         []CommitteeMemberRequest `json:"members,omitempty" validate:"omitempty,dive"`
}

// UpdateCommitteeRequest patches a committee; nil fields are left unchanged.
type UpdateCommitteeRequest struct {
	Name            *string   `json:"name,omitempty" validate:"omitempty,min=1,max=255"`
	DefenseDate     *string   `json:"defense_date,omitempty" validate:"omitempty,datetime=2006-01-02"`
	StartTime       *string   `json:"start_time,omitempty" validate:"omitempty,datetime=15:04"`
	EndTime         *string   `json:"end_time,omitempty" validate:"omitempty,datetime=15:04"`
	Room            *string   `json:"room,omitempty" validate:"omitempty,max=64"`
	SessionCapacity *int      `json:"session_capacity,omitempty" validate:"omitempty,gt=0,lte=100"`
	Tags            *[]string `json:"tags,omitempty" validate:"omitempty,max=20,dive,required"`
}

// SaveCommitteeMembersRequest replaces a committee's whole membership.
type SaveCommitteeMembersRequest struct {
	Members []CommitteeMemberRequest `json:"members" validate:"max=15,dive"`
}
