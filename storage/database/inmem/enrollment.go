package inmemdb

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/eduplatform/backend/core"
	"github.com/eduplatform/backend/core/enrollment"
)

type enrollmentRepository struct {
	db *enrollmentTable
}

var _ enrollment.Repository = (*enrollmentRepository)(nil) // interface compliance check

func NewEnrollmentRepository(db *DB) *enrollmentRepository {
	return &enrollmentRepository{db: db.enrollment}
}

func enrollmentKey(studentID, courseID string) string {
	return studentID + "/" + courseID
}

func copyEnrollment(enr enrollment.Enrollment) enrollment.Enrollment {
	enr.Course = nil
	enr.Student = nil
	enr.Progress = append([]enrollment.LectureProgress{}, enr.Progress...)
	if enr.LastWatchedAt != nil {
		t := *enr.LastWatchedAt
		enr.LastWatchedAt = &t
	}
	return enr
}

func (repo *enrollmentRepository) matches(enr *enrollment.Enrollment, filter enrollment.QueryFilter) bool {
	if filter.StudentID != "" && enr.StudentID != filter.StudentID {
		return false
	}
	if filter.CourseID != "" && enr.CourseID != filter.CourseID {
		return false
	}
	if filter.CourseIDs != nil {
		found := false
		for _, id := range filter.CourseIDs {
			if id == enr.CourseID {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if !filter.IncludeBlocked && enr.IsBlocked {
		return false
	}
	if !filter.CreatedFrom.IsZero() && enr.CreatedAt.Before(filter.CreatedFrom) {
		return false
	}
	return true
}

func (repo *enrollmentRepository) GetOrCreateEnrollment(_ context.Context, studentID, courseID string, now time.Time, _ ...core.DBExecutor) (enrollment.Enrollment, bool, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	key := enrollmentKey(studentID, courseID)
	if enr, ok := repo.db.table[key]; ok {
		return copyEnrollment(*enr), false, nil
	}
	enr := enrollment.Enrollment{
		ID:        uuid.New().String(),
		StudentID: studentID,
		CourseID:  courseID,
		Progress:  []enrollment.LectureProgress{},
		CreatedAt: now,
		UpdatedAt: now,
	}
	repo.db.table[key] = &enr
	repo.db.seq.add(key)
	return copyEnrollment(enr), true, nil
}

func (repo *enrollmentRepository) GetEnrollment(_ context.Context, studentID, courseID string, _ ...core.DBExecutor) (enrollment.Enrollment, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if enr, ok := repo.db.table[enrollmentKey(studentID, courseID)]; ok {
		return copyEnrollment(*enr), nil
	}
	return enrollment.Enrollment{}, enrollment.ErrNotFound
}

func (repo *enrollmentRepository) QueryEnrollments(_ context.Context, filter enrollment.QueryFilter, _ ...core.DBExecutor) ([]enrollment.Enrollment, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	enrs := make([]enrollment.Enrollment, 0)
	for _, e := range repo.db.table {
		if repo.matches(e, filter) {
			enrs = append(enrs, copyEnrollment(*e))
		}
	}
	sort.Slice(enrs, func(i, j int) bool {
		ki := enrollmentKey(enrs[i].StudentID, enrs[i].CourseID)
		kj := enrollmentKey(enrs[j].StudentID, enrs[j].CourseID)
		return repo.db.seq.newestFirst(enrs[i].CreatedAt, enrs[j].CreatedAt, ki, kj)
	})
	return enrs, nil
}

func (repo *enrollmentRepository) CountEnrollments(_ context.Context, filter enrollment.QueryFilter, _ ...core.DBExecutor) (int, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	cnt := 0
	for _, e := range repo.db.table {
		if repo.matches(e, filter) {
			cnt++
		}
	}
	return cnt, nil
}

func (repo *enrollmentRepository) CountByCourse(_ context.Context, _ ...core.DBExecutor) (map[string]int, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	counts := make(map[string]int)
	for _, e := range repo.db.table {
		if !e.IsBlocked {
			counts[e.CourseID]++
		}
	}
	return counts, nil
}

func (repo *enrollmentRepository) SaveProgress(_ context.Context, enr enrollment.Enrollment, _ ...core.DBExecutor) (enrollment.Enrollment, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	stored, ok := repo.db.table[enrollmentKey(enr.StudentID, enr.CourseID)]
	if !ok {
		return enrollment.Enrollment{}, enrollment.ErrNotFound
	}
	src := copyEnrollment(enr)
	stored.Progress = src.Progress
	stored.CompletedLectures = src.CompletedLectures
	stored.TotalLectures = src.TotalLectures
	stored.ProgressPercent = src.ProgressPercent
	stored.LastWatchedAt = src.LastWatchedAt
	stored.UpdatedAt = src.UpdatedAt
	return copyEnrollment(*stored), nil
}

func (repo *enrollmentRepository) SetBlocked(_ context.Context, studentID, courseID string, blocked bool, _ ...core.DBExecutor) (enrollment.Enrollment, bool, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	stored, ok := repo.db.table[enrollmentKey(studentID, courseID)]
	if !ok {
		return enrollment.Enrollment{}, false, enrollment.ErrNotFound
	}
	if stored.IsBlocked == blocked {
		return copyEnrollment(*stored), false, nil
	}
	stored.IsBlocked = blocked
	stored.UpdatedAt = time.Now().UTC()
	return copyEnrollment(*stored), true, nil
}
