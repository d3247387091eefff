package certificate

import (
	"context"
	"io"
	"time"

	"github.com/kat-co/vala"
	"github.com/pkg/errors"

	"github.com/eduplatform/backend/core"
	"github.com/eduplatform/backend/core/enrollment"
	"github.com/eduplatform/backend/core/user"
)

var (
	ErrNotAvailable = core.NewValidationError(errors.New("certificate not available, course not completed"))
	ErrBlocked      = core.NewUnauthorizedError("certificate not available, enrollment is blocked")
)

// Certificate of completion of a course.
type Certificate struct {
	CourseID    string    `json:"courseId"`
	CourseTitle string    `json:"courseTitle"`
	StudentName string    `json:"studentName"`
	CompletedAt time.Time `json:"completedAt"`
	Platform    string    `json:"-"`
}

func (c Certificate) Filename() string {
	return "certificate-" + c.CourseID + ".png"
}

// Renderer draws a certificate as a PNG image.
type Renderer interface {
	Render(w io.Writer, cert Certificate) error
}

type (
	Service interface {
		// Get returns the actor's certificate for the course; only completed enrollments have one.
		Get(ctx context.Context, actor user.Actor, courseID string) (Certificate, error)
		List(ctx context.Context, actor user.Actor) ([]Certificate, error)
		Render(ctx context.Context, actor user.Actor, courseID string, w io.Writer) (Certificate, error)
	}

	service struct {
		enrSvc   enrollment.Service
		usrSvc   user.Service
		renderer Renderer
		platform string
	}
)

var _ Service = (*service)(nil)

func NewService(enrSvc enrollment.Service, usrSvc user.Service, renderer Renderer, conf *core.Config) Service {
	vala.BeginValidation().Validate(
		vala.IsNotNil(enrSvc, "enrSvc"),
		vala.IsNotNil(usrSvc, "usrSvc"),
		vala.IsNotNil(renderer, "renderer"),
		vala.IsNotNil(conf, "conf"),
	).CheckAndPanic()

	return &service{enrSvc: enrSvc, usrSvc: usrSvc, renderer: renderer, platform: conf.AppName}
}

func (svc *service) Get(ctx context.Context, actor user.Actor, courseID string) (Certificate, error) {
	enrs, err := svc.completed(ctx, actor)
	if err != nil {
		return Certificate{}, err
	}
	for _, cert := range enrs {
		if cert.CourseID == courseID {
			return cert, nil
		}
	}
	enr, err := svc.enrSvc.GetProgress(ctx, actor, courseID)
	if err != nil {
		return Certificate{}, err
	}
	if enr.IsBlocked {
		return Certificate{}, ErrBlocked
	}
	return Certificate{}, ErrNotAvailable
}

func (svc *service) List(ctx context.Context, actor user.Actor) ([]Certificate, error) {
	return svc.completed(ctx, actor)
}

func (svc *service) Render(ctx context.Context, actor user.Actor, courseID string, w io.Writer) (Certificate, error) {
	cert, err := svc.Get(ctx, actor, courseID)
	if err != nil {
		return Certificate{}, err
	}
	if err = svc.renderer.Render(w, cert); err != nil {
		return Certificate{}, errors.Wrap(err, "rendering certificate")
	}
	return cert, nil
}

func (svc *service) completed(ctx context.Context, actor user.Actor) ([]Certificate, error) {
	enrs, err := svc.enrSvc.ListEnrolledCourses(ctx, actor)
	if err != nil {
		return nil, err
	}
	student, err := svc.usrSvc.GetByID(ctx, actor.ID)
	if err != nil {
		return nil, errors.Wrap(err, "getting student")
	}

	certs := make([]Certificate, 0)
	for _, e := range enrs {
		if !e.IsCompleted() || e.Course == nil {
			continue
		}
		certs = append(certs, Certificate{
			CourseID:    e.CourseID,
			CourseTitle: e.Course.Title,
			StudentName: student.Name,
			CompletedAt: completedAt(e),
			Platform:    svc.platform,
		})
	}
	return certs, nil
}

// completedAt is the last progress write: blocking & unblocking also bump UpdatedAt.
func completedAt(e enrollment.Enrollment) time.Time {
	if e.LastWatchedAt != nil {
		return *e.LastWatchedAt
	}
	return e.UpdatedAt
}
