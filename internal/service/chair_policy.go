package service

import (
	"fmt"
	"strings"

	"github.com/huuhuy2910/dnu-thesis-system-sub001/internal/models"
)

// Chair policy names accepted by NewChairPolicy.
const (
	ChairPolicyAny     = "any"
	ChairPolicyMinRank = "min_rank"
)

// ChairEligibility decides which lecturers may chair a committee.
type ChairEligibility interface {
	Name() string
	Eligible(lecturer models.Lecturer) bool
}

type anyChairPolicy struct{}

func (anyChairPolicy) Name() string { return ChairPolicyAny }

func (anyChairPolicy) Eligible(models.Lecturer) bool { return true }

type minRankChairPolicy struct {
	min models.AcademicRank
}

func (p minRankChairPolicy) Name() string { return ChairPolicyMinRank }

func (p minRankChairPolicy) Eligible(lecturer models.Lecturer) bool {
	return lecturer.AcademicRank.AtLeast(p.min)
}

// NewChairPolicy resolves a policy by name. An empty name selects "any".
func NewChairPolicy(name, minRank string) (ChairEligibility, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", ChairPolicyAny:
		return anyChairPolicy{}, nil
	case ChairPolicyMinRank:
		rank := models.AcademicRank(strings.ToUpper(strings.TrimSpace(minRank)))
		if !rank.Valid() {
			return nil, fmt.Errorf("unknown academic rank %q for chair policy", minRank)
		}
		return minRankChairPolicy{min: rank}, nil
	default:
		return nil, fmt.Errorf("unknown chair policy %q", name)
	}
}
