package inmemdb

import (
	"context"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/eduplatform/backend/core"
	"github.com/eduplatform/backend/core/course"
)

type courseRepository struct {
	db *courseTable
}

var _ course.Repository = (*courseRepository)(nil) // interface compliance check

func NewCourseRepository(db *DB) *courseRepository {
	return &courseRepository{db: db.course}
}

// copyCourse detaches the lectures & curriculum from the stored row.
func copyCourse(c course.Course) course.Course {
	c.Tutor = nil
	c.Curriculum = append([]string{}, c.Curriculum...)
	lectures := make([]course.Lecture, len(c.Lectures))
	for i, l := range c.Lectures {
		l.NoteFiles = append([]string{}, l.NoteFiles...)
		l.ResourceFiles = append([]string{}, l.ResourceFiles...)
		lectures[i] = l
	}
	c.Lectures = lectures
	return c
}

func (repo *courseRepository) matches(c *course.Course, filter *course.QueryFilter) bool {
	if filter == nil {
		return true
	}
	if filter.Status != "" && c.Status != filter.Status {
		return false
	}
	if filter.Published != nil && c.Published != *filter.Published {
		return false
	}
	if filter.Search != "" {
		kw := strings.ToLower(filter.Search)
		found := false
		for _, s := range []string{c.Title, c.Description, c.Category} {
			if strings.Contains(strings.ToLower(s), kw) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if filter.TutorID != "" && c.TutorID != filter.TutorID {
		return false
	}
	if filter.Featured != nil && c.IsFeatured != *filter.Featured {
		return false
	}
	return true
}

func (repo *courseRepository) CreateCourse(_ context.Context, c course.Course, _ ...core.DBExecutor) (course.Course, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	c.ID = uuid.New().String()
	stored := copyCourse(c)
	repo.db.table[c.ID] = &stored
	repo.db.seq.add(c.ID)
	return copyCourse(stored), nil
}

func (repo *courseRepository) GetCourse(_ context.Context, id string, _ ...core.DBExecutor) (course.Course, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if c, ok := repo.db.table[id]; ok {
		return copyCourse(*c), nil
	}
	return course.Course{}, course.ErrNotFound
}

func (repo *courseRepository) GetCoursesByID(_ context.Context, ids []string, _ ...core.DBExecutor) ([]course.Course, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	courses := make([]course.Course, 0, len(ids))
	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		if c, ok := repo.db.table[id]; ok {
			courses = append(courses, copyCourse(*c))
		}
	}
	return courses, nil
}

func (repo *courseRepository) QueryCourses(_ context.Context, filter *course.QueryFilter, p *core.Page, _ ...core.DBExecutor) ([]course.Course, int, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	courses := make([]course.Course, 0, len(repo.db.table))
	for _, c := range repo.db.table {
		if repo.matches(c, filter) {
			courses = append(courses, copyCourse(*c))
		}
	}
	sort.Slice(courses, func(i, j int) bool {
		return repo.db.seq.newestFirst(courses[i].CreatedAt, courses[j].CreatedAt, courses[i].ID, courses[j].ID)
	})
	return paginate(courses, p), len(courses), nil
}

func (repo *courseRepository) UpdateCourse(_ context.Context, c course.Course, _ ...core.DBExecutor) (course.Course, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	orig, ok := repo.db.table[c.ID]
	if !ok {
		return course.Course{}, course.ErrNotFound
	}
	stored := copyCourse(c)
	stored.StudentsCount = orig.StudentsCount
	repo.db.table[c.ID] = &stored
	return copyCourse(stored), nil
}

func (repo *courseRepository) DeleteCourse(_ context.Context, id string, _ ...core.DBExecutor) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if _, ok := repo.db.table[id]; !ok {
		return course.ErrNotFound
	}
	delete(repo.db.table, id)
	return nil
}

func (repo *courseRepository) IncrementStudentsCount(_ context.Context, id string, delta int, _ ...core.DBExecutor) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if c, ok := repo.db.table[id]; ok {
		c.StudentsCount += delta
		if c.StudentsCount < 0 {
			c.StudentsCount = 0
		}
	}
	return nil
}

func (repo *courseRepository) SetStudentsCounts(_ context.Context, counts map[string]int, _ ...core.DBExecutor) (int, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	updated := 0
	for id, c := range repo.db.table {
		if n := counts[id]; c.StudentsCount != n {
			c.StudentsCount = n
			updated++
		}
	}
	return updated, nil
}
