package service

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/huuhuy2910/dnu-thesis-system-sub001/internal/models"
	"github.com/huuhuy2910/dnu-thesis-system-sub001/internal/repository"
)

// memDB is an in-memory entity store whose WithinTx restores the previous
// state when the callback fails.
type memDB struct {
	topics      map[string]models.Topic
	committees  map[string]models.Committee
	members     []models.CommitteeMember
	assignments []models.DefenseAssignment
	lecturers   map[string]models.Lecturer
	seq         map[string]int
	today       time.Time

	// onLock runs once, on the next committee row lock, to simulate a
	// concurrent writer landing between validation and commit.
	onLock        func(code string)
	insertErr     error
	txCount       int
	rolledBack    int
	lockOrder     []string
	lecturerLocks []string
}

func newMemDB(today time.Time) *memDB {
	return &memDB{
		topics:     map[string]models.Topic{},
		committees: map[string]models.Committee{},
		lecturers:  map[string]models.Lecturer{},
		seq:        map[string]int{},
		today:      today,
	}
}

type memState struct {
	topics      map[string]models.Topic
	committees  map[string]models.Committee
	members     []models.CommitteeMember
	assignments []models.DefenseAssignment
	seq         map[string]int
}

func (db *memDB) save() memState {
	st := memState{
		topics:      make(map[string]models.Topic, len(db.topics)),
		committees:  make(map[string]models.Committee, len(db.committees)),
		members:     append([]models.CommitteeMember(nil), db.members...),
		assignments: append([]models.DefenseAssignment(nil), db.assignments...),
		seq:         make(map[string]int, len(db.seq)),
	}
	for k, v := range db.topics {
		st.topics[k] = v
	}
	for k, v := range db.committees {
		st.committees[k] = v
	}
	for k, v := range db.seq {
		st.seq[k] = v
	}
	return st
}

func (db *memDB) restore(st memState) {
	db.topics = st.topics
	db.committees = st.committees
	db.members = st.members
	db.assignments = st.assignments
	db.seq = st.seq
}

func (db *memDB) WithinTx(ctx context.Context, fn func(ctx context.Context, exec sqlx.ExtContext) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	db.txCount++
	st := db.save()
	if err := fn(context.WithoutCancel(ctx), nil); err != nil {
		db.restore(st)
		db.rolledBack++
		return err
	}
	return nil
}

func (db *memDB) Next(ctx context.Context, exec sqlx.ExtContext, prefix string) (string, error) {
	key := fmt.Sprintf("%s-%d", prefix, db.today.Year())
	db.seq[key]++
	return fmt.Sprintf("%s-%06d", key, db.seq[key]), nil
}

func (db *memDB) activeFor(topicCode string) *models.DefenseAssignment {
	for i := range db.assignments {
		if db.assignments[i].TopicCode == topicCode && db.assignments[i].Active {
			a := db.assignments[i]
			return &a
		}
	}
	return nil
}

func (db *memDB) defenseCount(lecturerCode string) int {
	count := 0
	for _, m := range db.members {
		if m.LecturerCode != lecturerCode {
			continue
		}
		if c, ok := db.committees[m.CommitteeCode]; ok && c.DateKey() >= db.today.Format(models.DateLayout) {
			count++
		}
	}
	return count
}

func (db *memDB) withCount(l models.Lecturer) models.Lecturer {
	l.CurrentDefenseCount = db.defenseCount(l.Code)
	return l
}

func (db *memDB) topicStore() *memTopics { return &memTopics{db} }

func (db *memDB) committeeStore() *memCommittees { return &memCommittees{db} }

func (db *memDB) memberStore() *memMembers { return &memMembers{db} }

func (db *memDB) assignmentStore() *memAssignments { return &memAssignments{db} }

func (db *memDB) lecturerStore() *memLecturers { return &memLecturers{db} }

type memTopics struct{ db *memDB }

func (s *memTopics) FindByCode(ctx context.Context, exec sqlx.ExtContext, code string) (*models.Topic, error) {
	t, ok := s.db.topics[code]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &t, nil
}

func (s *memTopics) LockByCode(ctx context.Context, exec sqlx.ExtContext, code string) (*models.Topic, error) {
	return s.FindByCode(ctx, exec, code)
}

func (s *memTopics) FindByStudent(ctx context.Context, studentCode string) (*models.Topic, error) {
	for _, t := range s.db.topics {
		if t.StudentCode == studentCode {
			t := t
			return &t, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (s *memTopics) ListAvailable(ctx context.Context, exec sqlx.ExtContext, filter models.TopicFilter) ([]models.Topic, error) {
	var out []models.Topic
	for _, t := range s.db.topics {
		if t.Status != models.TopicStatusEligibleForDefense || s.db.activeFor(t.Code) != nil {
			continue
		}
		if filter.Tag != "" && !containsString(t.Tags, filter.Tag) {
			continue
		}
		if filter.DepartmentCode != "" && t.DepartmentCode != filter.DepartmentCode {
			continue
		}
		if filter.ExcludingCommittee != "" {
			last := ""
			for _, a := range s.db.assignments {
				if a.TopicCode == t.Code {
					last = a.CommitteeCode
				}
			}
			if last == filter.ExcludingCommittee {
				continue
			}
		}
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out, nil
}

func (s *memTopics) UpdateStatus(ctx context.Context, exec sqlx.ExtContext, code string, status models.TopicStatus) error {
	t, ok := s.db.topics[code]
	if !ok {
		return sql.ErrNoRows
	}
	t.Status = status
	s.db.topics[code] = t
	return nil
}

func (s *memTopics) UpdateStatusBatch(ctx context.Context, exec sqlx.ExtContext, codes []string, status models.TopicStatus) error {
	for _, code := range codes {
		if t, ok := s.db.topics[code]; ok {
			t.Status = status
			s.db.topics[code] = t
		}
	}
	return nil
}

type memCommittees struct{ db *memDB }

func (s *memCommittees) FindByCode(ctx context.Context, exec sqlx.ExtContext, code string) (*models.Committee, error) {
	c, ok := s.db.committees[code]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &c, nil
}

func (s *memCommittees) LockByCode(ctx context.Context, exec sqlx.ExtContext, code string) (*models.Committee, error) {
	s.db.lockOrder = append(s.db.lockOrder, code)
	if s.db.onLock != nil {
		hook := s.db.onLock
		s.db.onLock = nil
		hook(code)
	}
	return s.FindByCode(ctx, exec, code)
}

func (s *memCommittees) sorted(keep func(models.Committee) bool) []models.Committee {
	var out []models.Committee
	for _, c := range s.db.committees {
		if keep(c) {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].DateKey() != out[j].DateKey() {
			return out[i].DateKey() < out[j].DateKey()
		}
		return out[i].Code < out[j].Code
	})
	return out
}

func (s *memCommittees) List(ctx context.Context, filter models.CommitteeFilter) ([]models.Committee, int, error) {
	all := s.sorted(func(c models.Committee) bool {
		if filter.FromDate != nil && c.DateKey() < filter.FromDate.Format(models.DateLayout) {
			return false
		}
		if filter.ToDate != nil && c.DateKey() > filter.ToDate.Format(models.DateLayout) {
			return false
		}
		return filter.Tag == "" || containsString(c.Tags, filter.Tag)
	})
	page, _ := paginate(all, filter.Page, filter.PageSize)
	return page, len(all), nil
}

func (s *memCommittees) ListByDate(ctx context.Context, exec sqlx.ExtContext, date time.Time) ([]models.Committee, error) {
	key := date.Format(models.DateLayout)
	return s.sorted(func(c models.Committee) bool { return c.DateKey() == key }), nil
}

func (s *memCommittees) ListAfter(ctx context.Context, exec sqlx.ExtContext, day time.Time) ([]models.Committee, error) {
	key := day.Format(models.DateLayout)
	return s.sorted(func(c models.Committee) bool { return c.DateKey() > key }), nil
}

func (s *memCommittees) Create(ctx context.Context, exec sqlx.ExtContext, committee *models.Committee) error {
	if _, ok := s.db.committees[committee.Code]; ok {
		return repository.ErrDuplicateCommittee
	}
	s.db.committees[committee.Code] = *committee
	return nil
}

func (s *memCommittees) Update(ctx context.Context, exec sqlx.ExtContext, committee *models.Committee) error {
	if _, ok := s.db.committees[committee.Code]; !ok {
		return sql.ErrNoRows
	}
	s.db.committees[committee.Code] = *committee
	return nil
}

func (s *memCommittees) Delete(ctx context.Context, exec sqlx.ExtContext, code string) error {
	if _, ok := s.db.committees[code]; !ok {
		return sql.ErrNoRows
	}
	delete(s.db.committees, code)
	return nil
}

type memMembers struct{ db *memDB }

func (s *memMembers) ListByCommittees(ctx context.Context, exec sqlx.ExtContext, codes []string) ([]models.CommitteeMember, error) {
	var out []models.CommitteeMember
	for _, m := range s.db.members {
		if containsString(codes, m.CommitteeCode) {
			out = append(out, m)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].CommitteeCode != out[j].CommitteeCode {
			return out[i].CommitteeCode < out[j].CommitteeCode
		}
		return out[i].LecturerCode < out[j].LecturerCode
	})
	return out, nil
}

func (s *memMembers) Replace(ctx context.Context, exec sqlx.ExtContext, committeeCode string, members []models.CommitteeMember) error {
	_ = s.DeleteByCommittee(ctx, exec, committeeCode)
	for i := range members {
		members[i].CommitteeCode = committeeCode
		members[i].IsChair = members[i].Role == models.MemberRoleChair
		s.db.members = append(s.db.members, members[i])
	}
	return nil
}

func (s *memMembers) DeleteByCommittee(ctx context.Context, exec sqlx.ExtContext, committeeCode string) error {
	kept := s.db.members[:0:0]
	for _, m := range s.db.members {
		if m.CommitteeCode != committeeCode {
			kept = append(kept, m)
		}
	}
	s.db.members = kept
	return nil
}

func (s *memMembers) ListDetails(ctx context.Context, committeeCode string) ([]models.CommitteeMemberDetail, error) {
	members, _ := s.ListByCommittees(ctx, nil, []string{committeeCode})
	out := make([]models.CommitteeMemberDetail, 0, len(members))
	for _, m := range members {
		l := s.db.lecturers[m.LecturerCode]
		out = append(out, models.CommitteeMemberDetail{CommitteeMember: m, FullName: l.FullName, AcademicRank: l.AcademicRank, Tags: l.Tags})
	}
	return out, nil
}

func (s *memMembers) ListCommitteesForLecturer(ctx context.Context, lecturerCode string) ([]models.LecturerCommittee, error) {
	var out []models.LecturerCommittee
	for _, m := range s.db.members {
		if m.LecturerCode != lecturerCode {
			continue
		}
		c := s.db.committees[m.CommitteeCode]
		active := 0
		for _, a := range s.db.assignments {
			if a.CommitteeCode == c.Code && a.Active {
				active++
			}
		}
		out = append(out, models.LecturerCommittee{Committee: c, Role: m.Role, IsChair: m.IsChair, ActiveCount: active})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out, nil
}

type memAssignments struct{ db *memDB }

func (s *memAssignments) FindActiveByTopic(ctx context.Context, exec sqlx.ExtContext, topicCode string) (*models.DefenseAssignment, error) {
	if a := s.db.activeFor(topicCode); a != nil {
		return a, nil
	}
	return nil, sql.ErrNoRows
}

func (s *memAssignments) ListActiveByCommittees(ctx context.Context, exec sqlx.ExtContext, committeeCodes []string) ([]models.DefenseAssignment, error) {
	var out []models.DefenseAssignment
	for _, a := range s.db.assignments {
		if a.Active && containsString(committeeCodes, a.CommitteeCode) {
			out = append(out, a)
		}
	}
	return out, nil
}

func (s *memAssignments) ListDetailsByCommittee(ctx context.Context, committeeCode string) ([]models.AssignmentDetail, error) {
	var out []models.AssignmentDetail
	for _, a := range s.db.assignments {
		if a.Active && a.CommitteeCode == committeeCode {
			t := s.db.topics[a.TopicCode]
			out = append(out, models.AssignmentDetail{DefenseAssignment: a, TopicTitle: t.Title, StudentCode: t.StudentCode})
		}
	}
	return out, nil
}

func (s *memAssignments) CountActiveByCommittee(ctx context.Context, exec sqlx.ExtContext, committeeCode string) (int, error) {
	active, _ := s.ListActiveByCommittees(ctx, exec, []string{committeeCode})
	return len(active), nil
}

func (s *memAssignments) Insert(ctx context.Context, exec sqlx.ExtContext, assignment *models.DefenseAssignment) error {
	if s.db.insertErr != nil {
		return s.db.insertErr
	}
	if s.db.activeFor(assignment.TopicCode) != nil {
		return repository.ErrDuplicateActiveAssignment
	}
	s.db.assignments = append(s.db.assignments, *assignment)
	return nil
}

func (s *memAssignments) Deactivate(ctx context.Context, exec sqlx.ExtContext, codes []string, at time.Time) (int64, error) {
	var n int64
	for i := range s.db.assignments {
		if s.db.assignments[i].Active && containsString(codes, s.db.assignments[i].Code) {
			s.db.assignments[i].Active = false
			stamp := at
			s.db.assignments[i].DeactivatedAt = &stamp
			n++
		}
	}
	return n, nil
}

type memLecturers struct{ db *memDB }

func (s *memLecturers) FindByCode(ctx context.Context, code string) (*models.Lecturer, error) {
	l, ok := s.db.lecturers[code]
	if !ok {
		return nil, sql.ErrNoRows
	}
	l = s.db.withCount(l)
	return &l, nil
}

func (s *memLecturers) ListByCodes(ctx context.Context, exec sqlx.ExtContext, codes []string) ([]models.Lecturer, error) {
	var out []models.Lecturer
	for _, code := range uniqueSorted(codes) {
		if l, ok := s.db.lecturers[code]; ok {
			out = append(out, s.db.withCount(l))
		}
	}
	return out, nil
}

func (s *memLecturers) LockByCodes(ctx context.Context, exec sqlx.ExtContext, codes []string) error {
	s.db.lecturerLocks = append(s.db.lecturerLocks, uniqueSorted(codes)...)
	return nil
}

func (s *memLecturers) ListByTag(ctx context.Context, tag string) ([]models.Lecturer, error) {
	var out []models.Lecturer
	for _, l := range s.db.lecturers {
		if tag == "" || containsString(l.Tags, tag) {
			out = append(out, s.db.withCount(l))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out, nil
}

func containsString(values []string, v string) bool {
	for _, candidate := range values {
		if candidate == v {
			return true
		}
	}
	return false
}

// seed helpers

func (db *memDB) addTopic(code, tag string, created time.Time) {
	db.topics[code] = models.Topic{
		Code:        code,
		Title:       "Thesis " + code,
		StudentCode: "S-" + code,
		Tags:        []string{tag},
		Status:      models.TopicStatusEligibleForDefense,
		CreatedAt:   created,
	}
}

func (db *memDB) addLecturer(code string, rank models.AcademicRank, quota int, tags ...string) {
	db.lecturers[code] = models.Lecturer{Code: code, FullName: "Lecturer " + code, AcademicRank: rank, DefenseQuota: quota, Tags: tags}
}

func (db *memDB) addCommittee(code, date, start, end string, capacity int, tags ...string) {
	d, _ := time.Parse(models.DateLayout, date)
	db.committees[code] = models.Committee{Code: code, Name: "Committee " + code, DefenseDate: d, StartTime: start, EndTime: end, Room: "R-" + code, SessionCapacity: capacity, Tags: tags}
}

func (db *memDB) seat(committee, lecturer string, role models.MemberRole) {
	db.members = append(db.members, models.CommitteeMember{CommitteeCode: committee, LecturerCode: lecturer, Role: role, IsChair: role == models.MemberRoleChair})
}

func (db *memDB) addActive(code, topic, committee string, at time.Time) {
	db.assignments = append(db.assignments, models.DefenseAssignment{Code: code, TopicCode: topic, CommitteeCode: committee, ScheduledAt: at, Active: true})
	t := db.topics[topic]
	t.Status = models.TopicStatusScheduled
	db.topics[topic] = t
}

func (db *memDB) activeCount(committee string) int {
	n := 0
	for _, a := range db.assignments {
		if a.Active && a.CommitteeCode == committee {
			n++
		}
	}
	return n
}
