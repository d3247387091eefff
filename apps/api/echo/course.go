package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/eduplatform/backend/core"
	"github.com/eduplatform/backend/core/course"
	"github.com/eduplatform/backend/core/enrollment"
	"github.com/eduplatform/backend/core/review"
	"github.com/eduplatform/backend/core/user"
	mediasvc "github.com/eduplatform/backend/services/media"
)

var (
	thumbnailCategory = withField(mediasvc.CourseImage, "thumbnail")
	resourcesCategory = withField(mediasvc.Notes, "resources")
)

func withField(cat mediasvc.Category, field string) mediasvc.Category {
	cat.Field = field
	return cat
}

type courseApi struct {
	svc       course.Service
	enrSvc    enrollment.Service
	reviewSvc review.Service
	uploader  *mediasvc.Uploader
	validate  *validator.Validate
}

func registerCourseAPI(g *echo.Group, jwt, optJWT echo.MiddlewareFunc, deps ServerDeps) {
	api := courseApi{
		svc:       deps.CourseSvc,
		enrSvc:    deps.EnrollmentSvc,
		reviewSvc: deps.ReviewSvc,
		uploader:  deps.Uploader,
		validate:  deps.Validate,
	}
	managers := rolesMiddleware(user.RoleTutor, user.RoleAdmin)

	cg := g.Group("/courses")

	cg.GET("", api.list, optJWT)
	cg.GET("/featured-courses", api.featured)
	cg.GET("/:id", api.get)
	cg.POST("", api.create, jwt, managers)
	cg.PUT("/:id", api.update, jwt, managers)
	cg.DELETE("/:id", api.delete, jwt, managers)
	cg.GET("/:id/details", api.details, jwt, managers)

	// lectures
	cg.POST("/:id/lectures", api.addLecture, jwt, managers)
	cg.PUT("/:id/lectures/:lectureId", api.updateLecture, jwt, managers)
	cg.DELETE("/:id/lectures/:lectureId", api.deleteLecture, jwt, managers)

	// reviews
	cg.POST("/:id/review", api.submitReview, jwt)
	cg.GET("/:id/review", api.reviews)
	cg.GET("/:id/rating", api.rating)
}

func (api *courseApi) list(ctx echo.Context) error {
	filter := course.QueryFilter{
		Status:    ctx.QueryParam("status"),
		Search:    ctx.QueryParam("search"),
		Published: bindBool(ctx, "published"),
	}
	var actor *user.Actor
	if a, ok := getContextActor(ctx); ok {
		actor = &a
	}

	courses, pagination, err := api.svc.Query(ctx.Request().Context(), actor, filter, bindPage(ctx))
	if err != nil {
		return errors.Wrap(err, "querying courses")
	}
	return ctx.JSON(http.StatusOK, PageResponse{Data: courses, Pagination: pagination})
}

func (api *courseApi) featured(ctx echo.Context) error {
	courses, err := api.svc.Featured(ctx.Request().Context())
	if err != nil {
		return errors.Wrap(err, "listing featured courses")
	}
	return ctx.JSON(http.StatusOK, courses)
}

func (api *courseApi) get(ctx echo.Context) error {
	c, err := api.svc.Get(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "getting course")
	}
	return ctx.JSON(http.StatusOK, c)
}

func (api *courseApi) create(ctx echo.Context) error {
	actor, _ := getContextActor(ctx)

	var data course.NewCourse
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewCourse")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}
	img, ok, err := uploadOne(ctx, api.uploader, mediasvc.CourseImage)
	if err != nil {
		return errors.Wrap(err, "uploading course image")
	}
	data.Image = ""
	if ok {
		data.Image = img.URL
	}

	c, err := api.svc.Create(ctx.Request().Context(), actor, data)
	if err != nil {
		return errors.Wrap(err, "creating course")
	}
	return ctx.JSON(http.StatusCreated, SuccessResponse{Success: "Course created successfully", Data: c})
}

// bindUpdateCourse reads a JSON body or, along with a new image, a multipart form.
func bindUpdateCourse(ctx echo.Context) (course.UpdateCourse, error) {
	var data course.UpdateCourse
	if !isMultipart(ctx) {
		err := ctx.Bind(&data)
		return data, errors.Wrap(err, "binding to UpdateCourse")
	}

	data.Title = formString(ctx, "title")
	data.Description = formString(ctx, "description")
	data.Category = formString(ctx, "category")
	data.Level = formString(ctx, "level")
	data.Curriculum = formStrings(ctx, "curriculum")
	var err error
	if data.Published, err = formBool(ctx, "published"); err != nil {
		return data, err
	}
	if data.IsFeatured, err = formBool(ctx, "isFeatured"); err != nil {
		return data, err
	}
	return data, nil
}

func (api *courseApi) update(ctx echo.Context) error {
	actor, _ := getContextActor(ctx)

	data, err := bindUpdateCourse(ctx)
	if err != nil {
		return err
	}
	if err = data.Validate(api.validate); err != nil {
		return err
	}
	img, ok, err := uploadOne(ctx, api.uploader, mediasvc.CourseImage)
	if err != nil {
		return errors.Wrap(err, "uploading course image")
	}
	if ok {
		data.Image = &img.URL
	}

	c, err := api.svc.Update(ctx.Request().Context(), actor, ctx.Param("id"), data)
	if err != nil {
		return errors.Wrap(err, "updating course")
	}
	return ctx.JSON(http.StatusOK, SuccessResponse{Success: "Course updated successfully", Data: c})
}

func (api *courseApi) delete(ctx echo.Context) error {
	actor, _ := getContextActor(ctx)

	c, err := api.svc.Delete(ctx.Request().Context(), actor, ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "deleting course")
	}
	return ctx.JSON(http.StatusOK, SuccessResponse{Success: "Course deleted successfully", Data: c})
}

func (api *courseApi) details(ctx echo.Context) error {
	actor, _ := getContextActor(ctx)

	stats, err := api.enrSvc.CourseDetailsWithStats(ctx.Request().Context(), actor, ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "getting course details")
	}
	return ctx.JSON(http.StatusOK, stats)
}

func (api *courseApi) uploadLectureFiles(ctx echo.Context) (thumbnail *string, notes, resources []string, err error) {
	thumb, ok, err := uploadOne(ctx, api.uploader, thumbnailCategory)
	if err != nil {
		return nil, nil, nil, errors.Wrap(err, "uploading thumbnail")
	}
	if ok {
		thumbnail = &thumb.URL
	}
	noteFiles, err := uploadMany(ctx, api.uploader, mediasvc.Notes)
	if err != nil {
		return nil, nil, nil, errors.Wrap(err, "uploading notes")
	}
	resFiles, err := uploadMany(ctx, api.uploader, resourcesCategory)
	if err != nil {
		return nil, nil, nil, errors.Wrap(err, "uploading resources")
	}
	for _, s := range noteFiles {
		notes = append(notes, s.URL)
	}
	for _, s := range resFiles {
		resources = append(resources, s.URL)
	}
	return thumbnail, notes, resources, nil
}

// addLecture expects a multipart form carrying the lecture `video`, plus an optional `thumbnail`
// & up to 5 `notes` and `resources` files.
func (api *courseApi) addLecture(ctx echo.Context) error {
	actor, _ := getContextActor(ctx)
	courseID := ctx.Param("id")

	// fail early, before storing anything
	if _, err := api.svc.GetManaged(ctx.Request().Context(), actor, courseID); err != nil {
		return errors.Wrap(err, "getting managed course")
	}

	var data course.NewLecture
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewLecture")
	}
	if core.CleanString(data.Title) == "" {
		return core.NewValidationError(nil, core.FieldError{Field: "title", Error: "this field is required"})
	}

	video, ok, err := uploadOne(ctx, api.uploader, mediasvc.Video)
	if err != nil {
		return errors.Wrap(err, "uploading video")
	}
	if !ok {
		return core.NewValidationError(nil, core.FieldError{Field: mediasvc.Video.Field, Error: "this field is required"})
	}
	data.VideoURL = video.URL
	data.Duration = video.Duration

	thumbnail, notes, resources, err := api.uploadLectureFiles(ctx)
	if err != nil {
		return err
	}
	data.Thumbnail = ""
	if thumbnail != nil {
		data.Thumbnail = *thumbnail
	}
	data.NoteFiles = notes
	data.ResourceFiles = resources

	if err = data.Validate(api.validate); err != nil {
		return err
	}
	c, err := api.svc.AddLecture(ctx.Request().Context(), actor, courseID, data)
	if err != nil {
		return errors.Wrap(err, "adding lecture")
	}
	return ctx.JSON(http.StatusCreated, SuccessResponse{Success: "Lecture added successfully", Data: c})
}

func bindUpdateLecture(ctx echo.Context) (course.UpdateLecture, error) {
	var data course.UpdateLecture
	if !isMultipart(ctx) {
		err := ctx.Bind(&data)
		return data, errors.Wrap(err, "binding to UpdateLecture")
	}

	data.Title = formString(ctx, "title")
	data.Description = formString(ctx, "description")
	data.Notes = formString(ctx, "notes")
	var err error
	if data.Order, err = formInt(ctx, "order"); err != nil {
		return data, err
	}
	if data.IsPreview, err = formBool(ctx, "isPreview"); err != nil {
		return data, err
	}
	return data, nil
}

func (api *courseApi) updateLecture(ctx echo.Context) error {
	actor, _ := getContextActor(ctx)
	courseID := ctx.Param("id")

	if _, err := api.svc.GetManaged(ctx.Request().Context(), actor, courseID); err != nil {
		return errors.Wrap(err, "getting managed course")
	}

	data, err := bindUpdateLecture(ctx)
	if err != nil {
		return err
	}
	if err = data.Validate(api.validate); err != nil {
		return err
	}

	video, ok, err := uploadOne(ctx, api.uploader, mediasvc.Video)
	if err != nil {
		return errors.Wrap(err, "uploading video")
	}
	if ok {
		data.VideoURL = &video.URL
		data.Duration = &video.Duration
	}
	thumbnail, notes, resources, err := api.uploadLectureFiles(ctx)
	if err != nil {
		return err
	}
	data.Thumbnail = thumbnail
	if len(notes) > 0 {
		data.NoteFiles = notes
	}
	if len(resources) > 0 {
		data.ResourceFiles = resources
	}

	c, err := api.svc.UpdateLecture(ctx.Request().Context(), actor, courseID, ctx.Param("lectureId"), data)
	if err != nil {
		return errors.Wrap(err, "updating lecture")
	}
	return ctx.JSON(http.StatusOK, SuccessResponse{Success: "Lecture updated successfully", Data: c})
}

func (api *courseApi) deleteLecture(ctx echo.Context) error {
	actor, _ := getContextActor(ctx)

	c, err := api.svc.DeleteLecture(ctx.Request().Context(), actor, ctx.Param("id"), ctx.Param("lectureId"))
	if err != nil {
		return errors.Wrap(err, "deleting lecture")
	}
	return ctx.JSON(http.StatusOK, SuccessResponse{Success: "Lecture deleted successfully", Data: c})
}

func (api *courseApi) submitReview(ctx echo.Context) error {
	actor, _ := getContextActor(ctx)

	var data review.NewReview
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewReview")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	rev, err := api.reviewSvc.Submit(ctx.Request().Context(), actor, ctx.Param("id"), data)
	if err != nil {
		return errors.Wrap(err, "submitting review")
	}
	return ctx.JSON(http.StatusOK, SuccessResponse{Success: "Review submitted successfully", Data: rev})
}

func (api *courseApi) reviews(ctx echo.Context) error {
	revs, err := api.reviewSvc.Reviews(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "listing reviews")
	}
	return ctx.JSON(http.StatusOK, revs)
}

func (api *courseApi) rating(ctx echo.Context) error {
	sum, err := api.reviewSvc.Summary(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "getting rating summary")
	}
	return ctx.JSON(http.StatusOK, sum)
}
