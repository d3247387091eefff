package echoapi

import (
	"bytes"
	"fmt"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/eduplatform/backend/core/certificate"
	"github.com/eduplatform/backend/core/course"
	"github.com/eduplatform/backend/core/dashboard"
	"github.com/eduplatform/backend/core/enrollment"
	"github.com/eduplatform/backend/core/user"
)

type enrollmentApi struct {
	svc          enrollment.Service
	courseSvc    course.Service
	certSvc      certificate.Service
	dashboardSvc dashboard.Service
	validate     *validator.Validate
}

func registerEnrollmentAPI(g *echo.Group, jwt echo.MiddlewareFunc, deps ServerDeps) {
	api := enrollmentApi{
		svc:          deps.EnrollmentSvc,
		courseSvc:    deps.CourseSvc,
		certSvc:      deps.CertificateSvc,
		dashboardSvc: deps.DashboardSvc,
		validate:     deps.Validate,
	}
	students := rolesMiddleware(user.RoleStudent)
	managers := rolesMiddleware(user.RoleTutor, user.RoleAdmin)

	eg := g.Group("/enrollments", jwt)
	eg.GET("/my", api.my, rolesMiddleware(user.RoleStudent, user.RoleTutor, user.RoleAdmin))
	eg.GET("/dashboard", api.studentDashboard, students)
	eg.POST("/:courseId", api.enroll, students)
	eg.GET("/:courseId/progress", api.getProgress, students)
	eg.POST("/:courseId/progress", api.recordProgress, students)
	eg.GET("/:courseId/students", api.students, managers)
	eg.DELETE("/:courseId/students/:studentId", api.block, managers)
	eg.PATCH("/:courseId/students/:studentId/unblock", api.unblock, managers)

	certg := g.Group("/certificates", jwt, students)
	certg.GET("", api.certificates)
	certg.GET("/:courseId/download", api.downloadCertificate)

	g.GET("/tutor/dashboard", api.tutorDashboard, jwt, rolesMiddleware(user.RoleTutor))
}

func (api *enrollmentApi) enroll(ctx echo.Context) error {
	actor, _ := getContextActor(ctx)

	enr, created, err := api.svc.Enroll(ctx.Request().Context(), actor, ctx.Param("courseId"))
	if err != nil {
		return errors.Wrap(err, "enrolling")
	}
	if !created {
		return ctx.JSON(http.StatusOK, SuccessResponse{Success: "Already enrolled", Data: enr})
	}
	return ctx.JSON(http.StatusCreated, SuccessResponse{Success: "Enrolled successfully", Data: enr})
}

// my lists the caller's courses: enrollments for students, owned courses for tutors
// & every approved course for admins.
func (api *enrollmentApi) my(ctx echo.Context) error {
	actor, _ := getContextActor(ctx)
	rctx := ctx.Request().Context()

	switch {
	case actor.IsStudent():
		enrs, err := api.svc.ListEnrolledCourses(rctx, actor)
		if err != nil {
			return errors.Wrap(err, "listing enrolled courses")
		}
		return ctx.JSON(http.StatusOK, enrs)
	case actor.IsTutor():
		courses, err := api.courseSvc.ListByTutor(rctx, actor.ID)
		if err != nil {
			return errors.Wrap(err, "listing tutor courses")
		}
		return ctx.JSON(http.StatusOK, courses)
	default:
		all, err := api.courseSvc.ListAll(rctx)
		if err != nil {
			return errors.Wrap(err, "listing courses")
		}
		courses := make([]course.Course, 0, len(all))
		for _, c := range all {
			if c.Status == course.StatusApproved {
				courses = append(courses, c)
			}
		}
		return ctx.JSON(http.StatusOK, courses)
	}
}

func (api *enrollmentApi) getProgress(ctx echo.Context) error {
	actor, _ := getContextActor(ctx)

	enr, err := api.svc.GetProgress(ctx.Request().Context(), actor, ctx.Param("courseId"))
	if err != nil {
		return errors.Wrap(err, "getting progress")
	}
	return ctx.JSON(http.StatusOK, enr)
}

func (api *enrollmentApi) recordProgress(ctx echo.Context) error {
	actor, _ := getContextActor(ctx)

	var data enrollment.RecordProgress
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to RecordProgress")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	enr, err := api.svc.RecordProgress(ctx.Request().Context(), actor, ctx.Param("courseId"), data)
	if err != nil {
		return errors.Wrap(err, "recording progress")
	}
	return ctx.JSON(http.StatusOK, SuccessResponse{Success: "Progress updated", Data: enr})
}

func (api *enrollmentApi) students(ctx echo.Context) error {
	actor, _ := getContextActor(ctx)

	enrs, err := api.svc.StudentsInCourse(ctx.Request().Context(), actor, ctx.Param("courseId"))
	if err != nil {
		return errors.Wrap(err, "listing students in course")
	}
	return ctx.JSON(http.StatusOK, enrs)
}

func (api *enrollmentApi) block(ctx echo.Context) error {
	actor, _ := getContextActor(ctx)

	enr, changed, err := api.svc.Block(ctx.Request().Context(), actor, ctx.Param("courseId"), ctx.Param("studentId"))
	if err != nil {
		return errors.Wrap(err, "blocking student")
	}
	msg := "Student blocked successfully"
	if !changed {
		msg = "Student is already blocked"
	}
	return ctx.JSON(http.StatusOK, SuccessResponse{Success: msg, Data: enr})
}

func (api *enrollmentApi) unblock(ctx echo.Context) error {
	actor, _ := getContextActor(ctx)

	enr, changed, err := api.svc.Unblock(ctx.Request().Context(), actor, ctx.Param("courseId"), ctx.Param("studentId"))
	if err != nil {
		return errors.Wrap(err, "unblocking student")
	}
	msg := "Student unblocked successfully"
	if !changed {
		msg = "Student is not blocked"
	}
	return ctx.JSON(http.StatusOK, SuccessResponse{Success: msg, Data: enr})
}

func (api *enrollmentApi) certificates(ctx echo.Context) error {
	actor, _ := getContextActor(ctx)

	certs, err := api.certSvc.List(ctx.Request().Context(), actor)
	if err != nil {
		return errors.Wrap(err, "listing certificates")
	}
	return ctx.JSON(http.StatusOK, certs)
}

func (api *enrollmentApi) downloadCertificate(ctx echo.Context) error {
	actor, _ := getContextActor(ctx)

	var buf bytes.Buffer
	cert, err := api.certSvc.Render(ctx.Request().Context(), actor, ctx.Param("courseId"), &buf)
	if err != nil {
		return errors.Wrap(err, "rendering certificate")
	}
	ctx.Response().Header().Set(echo.HeaderContentDisposition, fmt.Sprintf("attachment; filename=%q", cert.Filename()))
	return ctx.Blob(http.StatusOK, "image/png", buf.Bytes())
}

func (api *enrollmentApi) studentDashboard(ctx echo.Context) error {
	actor, _ := getContextActor(ctx)

	dash, err := api.dashboardSvc.Student(ctx.Request().Context(), actor)
	if err != nil {
		return errors.Wrap(err, "building student dashboard")
	}
	return ctx.JSON(http.StatusOK, dash)
}

func (api *enrollmentApi) tutorDashboard(ctx echo.Context) error {
	actor, _ := getContextActor(ctx)

	dash, err := api.dashboardSvc.Tutor(ctx.Request().Context(), actor)
	if err != nil {
		return errors.Wrap(err, "building tutor dashboard")
	}
	return ctx.JSON(http.StatusOK, dash)
}
