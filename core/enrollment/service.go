package enrollment

import (
	"context"
	"fmt"
	"net/mail"
	"time"

	"github.com/kat-co/vala"
	"github.com/pkg/errors"

	"github.com/eduplatform/backend/core"
	"github.com/eduplatform/backend/core/course"
	"github.com/eduplatform/backend/core/user"
)

var (
	// errors
	ErrNotFound        = core.NewNotFoundError("enrollment not found")
	ErrStudentsOnly    = core.NewUnauthorizedError("only students can perform this action")
	ErrMissingLecture  = core.NewValidationError(nil, core.FieldError{Field: "lectureId", Error: "this field is required"})
	ErrMissingComplete = core.NewValidationError(nil, core.FieldError{Field: "completed", Error: "this field is required"})
)

type (
	Repository interface {
		// GetOrCreateEnrollment returns the (student, course) enrollment, creating it if needed.
		// created is false when it already existed, in which case it is returned unchanged.
		GetOrCreateEnrollment(ctx context.Context, studentID, courseID string, now time.Time, exec ...core.DBExecutor) (enr Enrollment, created bool, err error)
		GetEnrollment(ctx context.Context, studentID, courseID string, exec ...core.DBExecutor) (Enrollment, error)
		// QueryEnrollments returns the matching enrollments, newest first.
		QueryEnrollments(ctx context.Context, filter QueryFilter, exec ...core.DBExecutor) ([]Enrollment, error)
		CountEnrollments(ctx context.Context, filter QueryFilter, exec ...core.DBExecutor) (int, error)
		// CountByCourse counts the unblocked enrollments of every course.
		CountByCourse(ctx context.Context, exec ...core.DBExecutor) (map[string]int, error)
		// SaveProgress persists the progress fields only; the block flag is never written.
		SaveProgress(ctx context.Context, enr Enrollment, exec ...core.DBExecutor) (Enrollment, error)
		// SetBlocked persists the block flag only. changed is false when it already had that value.
		SetBlocked(ctx context.Context, studentID, courseID string, blocked bool, exec ...core.DBExecutor) (enr Enrollment, changed bool, err error)
	}

	Service interface {
		Enroll(ctx context.Context, actor user.Actor, courseID string) (enr Enrollment, created bool, err error)
		ListEnrolledCourses(ctx context.Context, actor user.Actor) ([]Enrollment, error)
		GetProgress(ctx context.Context, actor user.Actor, courseID string) (Enrollment, error)
		RecordProgress(ctx context.Context, actor user.Actor, courseID string, rp RecordProgress) (Enrollment, error)
		Block(ctx context.Context, actor user.Actor, courseID, studentID string) (enr Enrollment, changed bool, err error)
		Unblock(ctx context.Context, actor user.Actor, courseID, studentID string) (enr Enrollment, changed bool, err error)
		CourseDetailsWithStats(ctx context.Context, actor user.Actor, courseID string) (CourseStats, error)
		StudentsInCourse(ctx context.Context, actor user.Actor, courseID string) ([]Enrollment, error)
		Query(ctx context.Context, filter QueryFilter) ([]Enrollment, error)
	}

	service struct {
		repo      Repository
		courseSvc course.Service
		usrSvc    user.Service
		tx        core.Transactor
		locker    core.Locker
		mailSvc   core.EmailService
		logger    core.Logger
	}
)

var _ Service = (*service)(nil)

func NewService(
	repo Repository,
	courseSvc course.Service,
	usrSvc user.Service,
	tx core.Transactor,
	locker core.Locker,
	mailSvc core.EmailService,
	logger core.Logger,
) Service {
	vala.BeginValidation().Validate(
		vala.IsNotNil(repo, "repo"),
		vala.IsNotNil(courseSvc, "courseSvc"),
		vala.IsNotNil(usrSvc, "usrSvc"),
		vala.IsNotNil(tx, "tx"),
		vala.IsNotNil(locker, "locker"),
		vala.IsNotNil(mailSvc, "mailSvc"),
		vala.IsNotNil(logger, "logger"),
	).CheckAndPanic()

	return &service{
		repo:      repo,
		courseSvc: courseSvc,
		usrSvc:    usrSvc,
		tx:        tx,
		locker:    locker,
		mailSvc:   mailSvc,
		logger:    logger,
	}
}

func lockKey(courseID, studentID string) string {
	return fmt.Sprintf("enrollment:%s:%s", courseID, studentID)
}

// Enroll enrolls the student in the course. Enrolling twice returns the existing enrollment unchanged,
// so a blocked student stays blocked.
func (svc *service) Enroll(ctx context.Context, actor user.Actor, courseID string) (Enrollment, bool, error) {
	if !actor.IsStudent() {
		return Enrollment{}, false, ErrStudentsOnly
	}
	c, err := svc.courseSvc.Get(ctx, courseID)
	if err != nil {
		return Enrollment{}, false, err
	}

	var enr Enrollment
	var created bool
	err = svc.tx.InTx(ctx, func(exec core.DBExecutor) error {
		var err error
		enr, created, err = svc.repo.GetOrCreateEnrollment(ctx, actor.ID, c.ID, time.Now().UTC(), exec)
		if err != nil {
			return errors.Wrap(err, "getting or creating enrollment")
		}
		if created {
			return svc.courseSvc.IncrementStudentsCount(ctx, c.ID, exec)
		}
		return nil
	})
	if err != nil {
		return Enrollment{}, false, err
	}

	if created {
		svc.sendEnrollmentEmails(ctx, actor, c)
	}
	enr.Course = &c
	return enr, created, nil
}

// sendEnrollmentEmails notifies the student & the tutor. Failures are logged, never returned.
func (svc *service) sendEnrollmentEmails(ctx context.Context, actor user.Actor, c course.Course) {
	student, err := svc.usrSvc.GetByID(ctx, actor.ID)
	if err != nil {
		svc.logger.Error("sending enrollment emails", errors.Wrap(err, "getting student"))
		return
	}
	msgs := []*core.EmailMessage{{
		To:           []mail.Address{{Name: student.Name, Address: student.Email}},
		Subject:      "Enrollment Successful",
		TemplateName: "enroll-user",
		TemplateData: map[string]interface{}{"Name": student.Name, "CourseTitle": c.Title, "CourseID": c.ID},
	}}
	if c.Tutor != nil && c.Tutor.Email != "" {
		msgs = append(msgs, &core.EmailMessage{
			To:           []mail.Address{{Name: c.Tutor.Name, Address: c.Tutor.Email}},
			Subject:      "New Enrollment in Your Course",
			TemplateName: "enroll-tutor",
			TemplateData: map[string]interface{}{
				"Name":         c.Tutor.Name,
				"StudentName":  student.Name,
				"StudentEmail": student.Email,
				"CourseTitle":  c.Title,
			},
		})
	}
	svc.mailSvc.SendMessages(msgs...)
}

// ListEnrolledCourses returns the student's unblocked enrollments along with their courses.
// Enrollments of deleted courses are skipped.
func (svc *service) ListEnrolledCourses(ctx context.Context, actor user.Actor) ([]Enrollment, error) {
	if !actor.IsStudent() {
		return nil, ErrStudentsOnly
	}
	enrs, err := svc.repo.QueryEnrollments(ctx, QueryFilter{StudentID: actor.ID})
	if err != nil {
		return nil, errors.Wrap(err, "querying enrollments")
	}
	return svc.withCourses(ctx, enrs)
}

func (svc *service) GetProgress(ctx context.Context, actor user.Actor, courseID string) (Enrollment, error) {
	if !actor.IsStudent() {
		return Enrollment{}, ErrStudentsOnly
	}
	return svc.repo.GetEnrollment(ctx, actor.ID, courseID)
}

// RecordProgress upserts the lecture's progress & recomputes the enrollment against the course's
// current lecture count. Lecture IDs are not checked against the course.
func (svc *service) RecordProgress(ctx context.Context, actor user.Actor, courseID string, rp RecordProgress) (Enrollment, error) {
	if !actor.IsStudent() {
		return Enrollment{}, ErrStudentsOnly
	}
	if core.CleanString(rp.LectureID) == "" {
		return Enrollment{}, ErrMissingLecture
	}
	if rp.Completed == nil {
		return Enrollment{}, ErrMissingComplete
	}
	if rp.TimeSpent < 0 {
		return Enrollment{}, core.NewValidationError(nil, core.FieldError{Field: "timeSpent", Error: "timeSpent must be 0 or greater"})
	}

	unlock, err := svc.locker.Lock(ctx, lockKey(courseID, actor.ID))
	if err != nil {
		return Enrollment{}, errors.Wrap(err, "locking enrollment")
	}
	defer unlock()

	enr, err := svc.repo.GetEnrollment(ctx, actor.ID, courseID)
	if err != nil {
		return Enrollment{}, err
	}
	c, err := svc.courseSvc.Get(ctx, courseID)
	if err != nil {
		return Enrollment{}, err
	}

	now := time.Now().UTC()
	enr.SetLectureProgress(core.CleanString(rp.LectureID), *rp.Completed, rp.TimeSpent, now)
	enr.Recompute(c.LectureCount())
	enr.LastWatchedAt = &now
	enr.UpdatedAt = now

	enr, err = svc.repo.SaveProgress(ctx, enr)
	if err != nil {
		return Enrollment{}, errors.Wrap(err, "saving progress")
	}
	return enr, nil
}

func (svc *service) Block(ctx context.Context, actor user.Actor, courseID, studentID string) (Enrollment, bool, error) {
	return svc.setBlocked(ctx, actor, courseID, studentID, true)
}

func (svc *service) Unblock(ctx context.Context, actor user.Actor, courseID, studentID string) (Enrollment, bool, error) {
	return svc.setBlocked(ctx, actor, courseID, studentID, false)
}

func (svc *service) setBlocked(ctx context.Context, actor user.Actor, courseID, studentID string, blocked bool) (Enrollment, bool, error) {
	if _, err := svc.courseSvc.GetManaged(ctx, actor, courseID); err != nil {
		return Enrollment{}, false, err
	}

	unlock, err := svc.locker.Lock(ctx, lockKey(courseID, studentID))
	if err != nil {
		return Enrollment{}, false, errors.Wrap(err, "locking enrollment")
	}
	defer unlock()

	enr, changed, err := svc.repo.SetBlocked(ctx, studentID, courseID, blocked)
	if err != nil {
		return Enrollment{}, false, err
	}
	return enr, changed, nil
}

// CourseDetailsWithStats returns the course with every enrollment, blocked ones included.
// Only the course's tutor & admins may see it.
func (svc *service) CourseDetailsWithStats(ctx context.Context, actor user.Actor, courseID string) (CourseStats, error) {
	c, err := svc.courseSvc.GetManaged(ctx, actor, courseID)
	if err != nil {
		return CourseStats{}, err
	}
	enrs, err := svc.studentsInCourse(ctx, c.ID)
	if err != nil {
		return CourseStats{}, err
	}

	stats := CourseStats{
		Course:          c,
		EnrolledUsers:   make([]EnrolledUser, 0, len(enrs)),
		RegisteredUsers: len(enrs),
	}
	for _, e := range enrs {
		stats.TotalWatchTime += e.TotalTimeSpent()
		eu := EnrolledUser{
			Progress:          e.Progress,
			CompletedLectures: e.CompletedLectures,
			ProgressPercent:   e.ProgressPercent,
			LastWatchedAt:     e.LastWatchedAt,
			IsBlocked:         e.IsBlocked,
			EnrolledAt:        e.CreatedAt,
		}
		if e.Student != nil {
			eu.Student = *e.Student
		} else {
			eu.Student = user.Summary{ID: e.StudentID}
		}
		stats.EnrolledUsers = append(stats.EnrolledUsers, eu)
	}
	return stats, nil
}

func (svc *service) StudentsInCourse(ctx context.Context, actor user.Actor, courseID string) ([]Enrollment, error) {
	c, err := svc.courseSvc.GetManaged(ctx, actor, courseID)
	if err != nil {
		return nil, err
	}
	return svc.studentsInCourse(ctx, c.ID)
}

func (svc *service) studentsInCourse(ctx context.Context, courseID string) ([]Enrollment, error) {
	enrs, err := svc.repo.QueryEnrollments(ctx, QueryFilter{CourseID: courseID, IncludeBlocked: true})
	if err != nil {
		return nil, errors.Wrap(err, "querying enrollments")
	}
	return svc.withStudents(ctx, enrs)
}

func (svc *service) Query(ctx context.Context, filter QueryFilter) ([]Enrollment, error) {
	enrs, err := svc.repo.QueryEnrollments(ctx, filter)
	return enrs, errors.Wrap(err, "querying enrollments")
}

func (svc *service) withCourses(ctx context.Context, enrs []Enrollment) ([]Enrollment, error) {
	ids := make([]string, 0, len(enrs))
	for _, e := range enrs {
		ids = append(ids, e.CourseID)
	}
	courses, err := svc.courseSvc.GetMany(ctx, ids...)
	if err != nil {
		return nil, err
	}
	res := make([]Enrollment, 0, len(enrs))
	for _, e := range enrs {
		if c, ok := courses[e.CourseID]; ok {
			c := c
			e.Course = &c
			res = append(res, e)
		}
	}
	return res, nil
}

func (svc *service) withStudents(ctx context.Context, enrs []Enrollment) ([]Enrollment, error) {
	ids := make([]string, 0, len(enrs))
	for _, e := range enrs {
		ids = append(ids, e.StudentID)
	}
	students, err := svc.usrSvc.GetSummaries(ctx, ids...)
	if err != nil {
		return nil, err
	}
	for i := range enrs {
		if s, ok := students[enrs[i].StudentID]; ok {
			s := s
			enrs[i].Student = &s
		}
	}
	return enrs, nil
}
