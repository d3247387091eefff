package course

import (
	"context"
	"time"

	"github.com/kat-co/vala"
	"github.com/pkg/errors"

	"github.com/eduplatform/backend/core"
	"github.com/eduplatform/backend/core/user"
)

var (
	// errors
	ErrNotFound     = core.NewNotFoundError("course not found")
	ErrCannotManage = core.NewUnauthorizedError("you are not allowed to manage this course")
)

type (
	Repository interface {
		CreateCourse(ctx context.Context, c Course, exec ...core.DBExecutor) (Course, error)
		GetCourse(ctx context.Context, id string, exec ...core.DBExecutor) (Course, error)
		GetCoursesByID(ctx context.Context, ids []string, exec ...core.DBExecutor) ([]Course, error)
		// QueryCourses returns the matching courses, newest first, along with the total match count.
		// A nil page returns every match.
		QueryCourses(ctx context.Context, filter *QueryFilter, page *core.Page, exec ...core.DBExecutor) ([]Course, int, error)
		// UpdateCourse rewrites the whole course row, lectures included. Last write wins.
		UpdateCourse(ctx context.Context, c Course, exec ...core.DBExecutor) (Course, error)
		DeleteCourse(ctx context.Context, id string, exec ...core.DBExecutor) error
		IncrementStudentsCount(ctx context.Context, id string, delta int, exec ...core.DBExecutor) error
		// SetStudentsCounts sets every course's students count from counts; courses absent from counts get 0.
		SetStudentsCounts(ctx context.Context, counts map[string]int, exec ...core.DBExecutor) (int, error)
	}

	Service interface {
		Create(ctx context.Context, actor user.Actor, nc NewCourse) (Course, error)
		Update(ctx context.Context, actor user.Actor, id string, uc UpdateCourse) (Course, error)
		Delete(ctx context.Context, actor user.Actor, id string) (Course, error)
		Get(ctx context.Context, id string) (Course, error)
		GetMany(ctx context.Context, ids ...string) (map[string]Course, error)
		GetManaged(ctx context.Context, actor user.Actor, id string) (Course, error)
		Query(ctx context.Context, actor *user.Actor, filter QueryFilter, page core.Page) ([]Course, core.Pagination, error)
		Featured(ctx context.Context) ([]Course, error)
		ListByTutor(ctx context.Context, tutorID string) ([]Course, error)
		ListAll(ctx context.Context) ([]Course, error)
		AddLecture(ctx context.Context, actor user.Actor, courseID string, nl NewLecture) (Course, error)
		UpdateLecture(ctx context.Context, actor user.Actor, courseID, lectureID string, ul UpdateLecture) (Course, error)
		DeleteLecture(ctx context.Context, actor user.Actor, courseID, lectureID string) (Course, error)
		ChangeStatus(ctx context.Context, id, status string) (Course, error)
		Approve(ctx context.Context, id string) (Course, error)
		IncrementStudentsCount(ctx context.Context, id string, exec ...core.DBExecutor) error
		ReconcileStudentsCounts(ctx context.Context, counts map[string]int) (int, error)
	}

	service struct {
		repo   Repository
		usrSvc user.Service
	}
)

var _ Service = (*service)(nil)

func NewService(repo Repository, usrSvc user.Service) Service {
	vala.BeginValidation().Validate(
		vala.IsNotNil(repo, "repo"),
		vala.IsNotNil(usrSvc, "usrSvc"),
	).CheckAndPanic()

	return &service{repo: repo, usrSvc: usrSvc}
}

// Create adds a course owned by the actor. Courses created by admins skip moderation.
func (svc *service) Create(ctx context.Context, actor user.Actor, nc NewCourse) (Course, error) {
	if !(actor.IsTutor() || actor.IsAdmin()) {
		return Course{}, core.NewUnauthorizedError("only tutors and admins can create courses")
	}
	status := StatusPending
	if actor.IsAdmin() {
		status = StatusApproved
	}
	now := time.Now().UTC()
	c := Course{
		Title:       nc.Title,
		Description: nc.Description,
		Category:    nc.Category,
		Level:       nc.Level,
		Image:       nc.Image,
		Published:   nc.Published,
		Status:      status,
		Curriculum:  nonNil(nc.Curriculum),
		TutorID:     actor.ID,
		Lectures:    []Lecture{},
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	c, err := svc.repo.CreateCourse(ctx, c)
	if err != nil {
		return Course{}, errors.Wrap(err, "creating course")
	}
	return svc.withTutor(ctx, c)
}

func (svc *service) Update(ctx context.Context, actor user.Actor, id string, uc UpdateCourse) (Course, error) {
	c, err := svc.GetManaged(ctx, actor, id)
	if err != nil {
		return Course{}, err
	}
	if uc.Title != nil {
		c.Title = *uc.Title
	}
	if uc.Description != nil {
		c.Description = *uc.Description
	}
	if uc.Category != nil && *uc.Category != "" {
		c.Category = *uc.Category
	}
	if uc.Level != nil && *uc.Level != "" {
		c.Level = *uc.Level
	}
	if uc.Published != nil {
		c.Published = *uc.Published
	}
	if uc.IsFeatured != nil && actor.IsAdmin() {
		c.IsFeatured = *uc.IsFeatured
	}
	if uc.Curriculum != nil {
		c.Curriculum = uc.Curriculum
	}
	if uc.Image != nil {
		c.Image = *uc.Image
	}
	c.UpdatedAt = time.Now().UTC()
	return svc.save(ctx, c)
}

// Delete removes the course. Enrollments referencing it are kept.
func (svc *service) Delete(ctx context.Context, actor user.Actor, id string) (Course, error) {
	c, err := svc.GetManaged(ctx, actor, id)
	if err != nil {
		return Course{}, err
	}
	if err = svc.repo.DeleteCourse(ctx, c.ID); err != nil {
		return Course{}, errors.Wrap(err, "deleting course")
	}
	return c, nil
}

func (svc *service) Get(ctx context.Context, id string) (Course, error) {
	c, err := svc.repo.GetCourse(ctx, id)
	if err != nil {
		return Course{}, err
	}
	return svc.withTutor(ctx, c)
}

func (svc *service) GetMany(ctx context.Context, ids ...string) (map[string]Course, error) {
	courses := make(map[string]Course, len(ids))
	if len(ids) == 0 {
		return courses, nil
	}
	list, err := svc.repo.GetCoursesByID(ctx, ids)
	if err != nil {
		return nil, errors.Wrap(err, "getting courses by ID")
	}
	if list, err = svc.withTutors(ctx, list); err != nil {
		return nil, err
	}
	for _, c := range list {
		courses[c.ID] = c
	}
	return courses, nil
}

// GetManaged returns the course if the actor is its tutor or an admin.
func (svc *service) GetManaged(ctx context.Context, actor user.Actor, id string) (Course, error) {
	c, err := svc.Get(ctx, id)
	if err != nil {
		return Course{}, err
	}
	if !c.CanManage(actor) {
		return Course{}, ErrCannotManage
	}
	return c, nil
}

// Query lists courses. Only admins see courses that are not approved; a nil actor is anonymous.
func (svc *service) Query(ctx context.Context, actor *user.Actor, filter QueryFilter, page core.Page) ([]Course, core.Pagination, error) {
	filter.Clean()
	if actor == nil || !actor.IsAdmin() {
		filter.Status = StatusApproved
	}
	page.Clean()
	courses, total, err := svc.repo.QueryCourses(ctx, &filter, &page)
	if err != nil {
		return nil, core.Pagination{}, errors.Wrap(err, "querying courses")
	}
	if courses, err = svc.withTutors(ctx, courses); err != nil {
		return nil, core.Pagination{}, err
	}
	return courses, core.NewPagination(page, total), nil
}

func (svc *service) Featured(ctx context.Context) ([]Course, error) {
	featured := true
	page := core.Page{Page: 1, Limit: FeaturedLimit}
	courses, _, err := svc.repo.QueryCourses(ctx, &QueryFilter{Status: StatusApproved, Featured: &featured}, &page)
	if err != nil {
		return nil, errors.Wrap(err, "querying featured courses")
	}
	return svc.withTutors(ctx, courses)
}

func (svc *service) ListByTutor(ctx context.Context, tutorID string) ([]Course, error) {
	courses, _, err := svc.repo.QueryCourses(ctx, &QueryFilter{TutorID: tutorID}, nil)
	if err != nil {
		return nil, errors.Wrap(err, "querying tutor courses")
	}
	return svc.withTutors(ctx, courses)
}

func (svc *service) ListAll(ctx context.Context) ([]Course, error) {
	courses, _, err := svc.repo.QueryCourses(ctx, nil, nil)
	return courses, errors.Wrap(err, "querying courses")
}

func (svc *service) AddLecture(ctx context.Context, actor user.Actor, courseID string, nl NewLecture) (Course, error) {
	c, err := svc.GetManaged(ctx, actor, courseID)
	if err != nil {
		return Course{}, err
	}
	c.AddLecture(nl, time.Now().UTC())
	return svc.save(ctx, c)
}

func (svc *service) UpdateLecture(ctx context.Context, actor user.Actor, courseID, lectureID string, ul UpdateLecture) (Course, error) {
	c, err := svc.GetManaged(ctx, actor, courseID)
	if err != nil {
		return Course{}, err
	}
	if _, err = c.UpdateLecture(lectureID, ul, time.Now().UTC()); err != nil {
		return Course{}, err
	}
	return svc.save(ctx, c)
}

func (svc *service) DeleteLecture(ctx context.Context, actor user.Actor, courseID, lectureID string) (Course, error) {
	c, err := svc.GetManaged(ctx, actor, courseID)
	if err != nil {
		return Course{}, err
	}
	if err = c.DeleteLecture(lectureID, time.Now().UTC()); err != nil {
		return Course{}, err
	}
	return svc.save(ctx, c)
}

func (svc *service) ChangeStatus(ctx context.Context, id, status string) (Course, error) {
	c, err := svc.Get(ctx, id)
	if err != nil {
		return Course{}, err
	}
	c.Status = status
	c.UpdatedAt = time.Now().UTC()
	return svc.save(ctx, c)
}

// Approve approves & publishes the course.
func (svc *service) Approve(ctx context.Context, id string) (Course, error) {
	c, err := svc.Get(ctx, id)
	if err != nil {
		return Course{}, err
	}
	c.Status = StatusApproved
	c.Published = true
	c.UpdatedAt = time.Now().UTC()
	return svc.save(ctx, c)
}

func (svc *service) IncrementStudentsCount(ctx context.Context, id string, exec ...core.DBExecutor) error {
	return errors.Wrap(svc.repo.IncrementStudentsCount(ctx, id, 1, exec...), "incrementing students count")
}

func (svc *service) ReconcileStudentsCounts(ctx context.Context, counts map[string]int) (int, error) {
	n, err := svc.repo.SetStudentsCounts(ctx, counts)
	return n, errors.Wrap(err, "reconciling students counts")
}

func (svc *service) save(ctx context.Context, c Course) (Course, error) {
	tutor := c.Tutor
	c, err := svc.repo.UpdateCourse(ctx, c)
	if err != nil {
		return Course{}, errors.Wrap(err, "updating course")
	}
	c.Tutor = tutor
	return c, nil
}

func (svc *service) withTutor(ctx context.Context, c Course) (Course, error) {
	courses, err := svc.withTutors(ctx, []Course{c})
	if err != nil {
		return Course{}, err
	}
	return courses[0], nil
}

func (svc *service) withTutors(ctx context.Context, courses []Course) ([]Course, error) {
	ids := make([]string, 0, len(courses))
	seen := make(map[string]bool, len(courses))
	for _, c := range courses {
		if !seen[c.TutorID] {
			seen[c.TutorID] = true
			ids = append(ids, c.TutorID)
		}
	}
	tutors, err := svc.usrSvc.GetSummaries(ctx, ids...)
	if err != nil {
		return nil, errors.Wrap(err, "getting tutors")
	}
	for i := range courses {
		if t, ok := tutors[courses[i].TutorID]; ok {
			t := t
			courses[i].Tutor = &t
		}
	}
	return courses, nil
}
