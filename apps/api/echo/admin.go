package echoapi

import (
	"net/http"
	"slices"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/eduplatform/backend/core"
	"github.com/eduplatform/backend/core/course"
	"github.com/eduplatform/backend/core/dashboard"
	"github.com/eduplatform/backend/core/user"
)

var errCannotDeleteSelf = core.NewValidationError(errors.New("you cannot delete your own account"))

type adminApi struct {
	usrSvc       user.Service
	courseSvc    course.Service
	dashboardSvc dashboard.Service
	validate     *validator.Validate
}

func registerAdminAPI(g *echo.Group, jwt echo.MiddlewareFunc, deps ServerDeps) {
	api := adminApi{
		usrSvc:       deps.UserSvc,
		courseSvc:    deps.CourseSvc,
		dashboardSvc: deps.DashboardSvc,
		validate:     deps.Validate,
	}

	ag := g.Group("/admin", jwt, adminMiddleware())

	ag.GET("/dashboard-summary", api.dashboard)

	// users
	ag.GET("/users", api.listUsers)
	ag.GET("/users/:id", api.getUser)
	ag.PATCH("/users/:id/status", api.setUserStatus)
	ag.PATCH("/users/:id/role", api.setUserRole)
	ag.DELETE("/users/:id", api.deleteUser)

	// KYC
	ag.GET("/kyc", api.pendingKYC)
	ag.PATCH("/kyc/:id/approve", api.approveKYC)
	ag.PATCH("/kyc/:id/reject", api.rejectKYC)

	// tutors
	ag.GET("/tutors", api.listTutors)
	ag.POST("/tutors", api.createTutor)
	ag.PUT("/tutors/:id", api.updateTutor)

	// courses
	ag.GET("/courses", api.listCourses)
	ag.PATCH("/courses/:id/approve", api.approveCourse)
	ag.PATCH("/courses/:id/status", api.setCourseStatus)

	ag.POST("/sub-admins", api.createSubAdmin, mainAdminMiddleware())
}

type (
	SetStatusRequest struct {
		Status string `json:"status"`
	}

	SetRoleRequest struct {
		Role string `json:"role" validate:"required,oneof=STUDENT TUTOR ADMIN"`
	}
)

func (api *adminApi) dashboard(ctx echo.Context) error {
	actor, _ := getContextActor(ctx)

	dash, err := api.dashboardSvc.Admin(ctx.Request().Context(), actor)
	if err != nil {
		return errors.Wrap(err, "building admin dashboard")
	}
	return ctx.JSON(http.StatusOK, dash)
}

// Users

func bindUserFilter(ctx echo.Context) *user.QueryFilter {
	filter := &user.QueryFilter{
		Search: ctx.QueryParam("search"),
		Status: strings.ToUpper(ctx.QueryParam("status")),
	}
	for _, r := range ctx.QueryParams()["role"] {
		filter.Roles = append(filter.Roles, strings.ToUpper(r))
	}
	filter.Clean()
	return filter
}

func (api *adminApi) queryUsers(ctx echo.Context, filter *user.QueryFilter) error {
	users, pagination, err := api.usrSvc.Query(ctx.Request().Context(), filter, bindPage(ctx))
	if err != nil {
		return errors.Wrap(err, "querying users")
	}
	return ctx.JSON(http.StatusOK, PageResponse{Data: users, Pagination: pagination})
}

func (api *adminApi) listUsers(ctx echo.Context) error {
	return api.queryUsers(ctx, bindUserFilter(ctx))
}

func (api *adminApi) getUser(ctx echo.Context) error {
	usr, err := api.usrSvc.GetByID(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "getting user")
	}
	return ctx.JSON(http.StatusOK, usr)
}

func (api *adminApi) setUserStatus(ctx echo.Context) error {
	var data SetStatusRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to SetStatusRequest")
	}
	data.Status = strings.ToUpper(core.CleanString(data.Status))
	if !slices.Contains(user.AllStatuses, data.Status) {
		return core.NewValidationError(nil, core.FieldError{
			Field: "status", Error: "status must be one of [" + strings.Join(user.AllStatuses, " ") + "]",
		})
	}

	usr, err := api.usrSvc.SetStatus(ctx.Request().Context(), ctx.Param("id"), data.Status)
	if err != nil {
		return errors.Wrap(err, "setting user status")
	}
	return ctx.JSON(http.StatusOK, SuccessResponse{Success: "User status updated", Data: usr})
}

func (api *adminApi) setUserRole(ctx echo.Context) error {
	var data SetRoleRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to SetRoleRequest")
	}
	data.Role = strings.ToUpper(core.CleanString(data.Role))
	if err := api.validate.Struct(&data); err != nil {
		return err
	}

	usr, err := api.usrSvc.SetRole(ctx.Request().Context(), ctx.Param("id"), data.Role)
	if err != nil {
		return errors.Wrap(err, "setting user role")
	}
	return ctx.JSON(http.StatusOK, SuccessResponse{Success: "User role updated", Data: usr})
}

func (api *adminApi) deleteUser(ctx echo.Context) error {
	actor, _ := getContextActor(ctx)
	id := ctx.Param("id")
	if id == actor.ID {
		return errCannotDeleteSelf
	}

	cnt, err := api.usrSvc.Delete(ctx.Request().Context(), id)
	if err != nil {
		return errors.Wrap(err, "deleting user")
	}
	if cnt == 0 {
		return user.ErrNotFound
	}
	return ctx.JSON(http.StatusOK, SuccessResponse{Success: "User deleted successfully"})
}

// KYC

func (api *adminApi) pendingKYC(ctx echo.Context) error {
	return api.queryUsers(ctx, &user.QueryFilter{Roles: []string{user.RoleTutor}, Status: user.StatusKYCPending})
}

func (api *adminApi) reviewKYC(ctx echo.Context, approve bool) error {
	usr, err := api.usrSvc.ReviewKYC(ctx.Request().Context(), ctx.Param("id"), approve)
	if err != nil {
		return errors.Wrap(err, "reviewing KYC")
	}
	msg := "KYC approved"
	if !approve {
		msg = "KYC rejected"
	}
	return ctx.JSON(http.StatusOK, SuccessResponse{Success: msg, Data: usr})
}

func (api *adminApi) approveKYC(ctx echo.Context) error {
	return api.reviewKYC(ctx, true)
}

func (api *adminApi) rejectKYC(ctx echo.Context) error {
	return api.reviewKYC(ctx, false)
}

// Tutors

func (api *adminApi) listTutors(ctx echo.Context) error {
	filter := bindUserFilter(ctx)
	filter.Roles = []string{user.RoleTutor}
	return api.queryUsers(ctx, filter)
}

// createAccount creates an active account, bypassing signup & KYC.
func (api *adminApi) createAccount(ctx echo.Context, role string, isSubAdmin bool) (user.User, error) {
	var data user.NewUser
	if err := ctx.Bind(&data); err != nil {
		return user.User{}, errors.Wrap(err, "binding to NewUser")
	}
	data.Role = role
	data.IsSubAdmin = isSubAdmin
	data.Status = user.StatusActive
	if err := data.Validate(ctx.Request().Context(), api.validate, api.usrSvc); err != nil {
		return user.User{}, err
	}

	usr, err := api.usrSvc.Create(ctx.Request().Context(), data)
	return usr, errors.Wrap(err, "creating user")
}

func (api *adminApi) createTutor(ctx echo.Context) error {
	usr, err := api.createAccount(ctx, user.RoleTutor, false)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusCreated, SuccessResponse{Success: "Tutor created successfully", Data: usr})
}

func (api *adminApi) updateTutor(ctx echo.Context) error {
	usr, err := api.usrSvc.GetByID(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "getting tutor")
	}
	if !usr.IsTutor() {
		return core.NewNotFoundError("tutor not found")
	}

	var data user.UpdateTutor
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateTutor")
	}
	if data.Status != nil {
		status := strings.ToUpper(core.CleanString(*data.Status))
		data.Status = &status
	}
	if err = api.validate.Struct(&data); err != nil {
		return err
	}
	if err = data.UpdateUser.Validate(ctx.Request().Context(), usr, api.validate, api.usrSvc); err != nil {
		return err
	}

	usr, err = api.usrSvc.UpdateTutor(ctx.Request().Context(), usr, data)
	if err != nil {
		return errors.Wrap(err, "updating tutor")
	}
	return ctx.JSON(http.StatusOK, SuccessResponse{Success: "Tutor updated successfully", Data: usr})
}

func (api *adminApi) createSubAdmin(ctx echo.Context) error {
	usr, err := api.createAccount(ctx, user.RoleAdmin, true)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusCreated, SuccessResponse{Success: "Sub-admin created successfully", Data: usr})
}

// Courses

func (api *adminApi) listCourses(ctx echo.Context) error {
	actor, _ := getContextActor(ctx)
	filter := course.QueryFilter{
		Status:    ctx.QueryParam("status"),
		Search:    ctx.QueryParam("search"),
		Published: bindBool(ctx, "published"),
	}

	courses, pagination, err := api.courseSvc.Query(ctx.Request().Context(), &actor, filter, bindPage(ctx))
	if err != nil {
		return errors.Wrap(err, "querying courses")
	}
	return ctx.JSON(http.StatusOK, PageResponse{Data: courses, Pagination: pagination})
}

func (api *adminApi) approveCourse(ctx echo.Context) error {
	c, err := api.courseSvc.Approve(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "approving course")
	}
	return ctx.JSON(http.StatusOK, SuccessResponse{Success: "Course approved", Data: c})
}

func (api *adminApi) setCourseStatus(ctx echo.Context) error {
	var data SetStatusRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to SetStatusRequest")
	}
	data.Status = strings.ToUpper(core.CleanString(data.Status))
	switch data.Status {
	case course.StatusPending, course.StatusApproved, course.StatusRejected:
	default:
		return core.NewValidationError(nil, core.FieldError{
			Field: "status", Error: "status must be one of [PENDING APPROVED REJECTED]",
		})
	}

	c, err := api.courseSvc.ChangeStatus(ctx.Request().Context(), ctx.Param("id"), data.Status)
	if err != nil {
		return errors.Wrap(err, "changing course status")
	}
	return ctx.JSON(http.StatusOK, SuccessResponse{Success: "Course status updated", Data: c})
}
