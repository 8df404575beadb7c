package echoapi

import (
	"fmt"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/somahq/soma/core/course"
	"github.com/somahq/soma/core/notification"
)

var errCrsNotFoundInCtx = errors.New("course object not found in echo.Context")

type courseApi struct {
	svc      *course.Service
	notifSvc *notification.Service
	validate *validator.Validate
}

func registerCourseAPI(
	g *echo.Group,
	jwt echo.MiddlewareFunc,
	svc *course.Service,
	notifSvc *notification.Service,
	validate *validator.Validate,
) {
	api := courseApi{
		svc:      svc,
		notifSvc: notifSvc,
		validate: validate,
	}

	cg := g.Group("/courses", jwt)
	cg.GET("", api.query)
	cg.GET("/mine", api.queryMine)
	cg.POST("", api.create, teacherOrAdminMiddleware())
	cg.DELETE("", api.destroyMultiple, adminMiddleware())

	// detail endpoints
	dg := cg.Group("/:id", objectCourseMiddleware(svc))
	dg.GET("", api.retrieve)
	dg.PUT("", api.update)
	dg.DELETE("", api.destroy, adminMiddleware())
	dg.POST("/publish", api.publish)
	dg.POST("/archive", api.archive)

	dg.GET("/lessons", api.queryLessons)
	dg.POST("/lessons", api.addLesson)
	dg.PUT("/lessons/:lessonID", api.updateLesson)
	dg.DELETE("/lessons/:lessonID", api.destroyLesson)

	dg.POST("/enroll", api.enroll)
	dg.DELETE("/enroll", api.unenroll)
	dg.GET("/enrollments", api.queryEnrollments)
}

// objectCourseMiddleware loads the target course into the context.
func objectCourseMiddleware(svc *course.Service) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			crs, err := svc.GetByID(ctx.Request().Context(), ctx.Param("id"))
			if err != nil {
				if errors.Cause(err) == course.ErrNotFound {
					return errHttpNotFound
				}
				return errors.Wrap(err, "finding course by ID")
			}
			ctx.Set("object", crs)
			return next(ctx)
		}
	}
}

func contextCourse(ctx echo.Context) (course.Course, error) {
	crs, ok := ctx.Get("object").(course.Course)
	if !ok {
		return course.Course{}, errors.Wrap(errCrsNotFoundInCtx, "retrieving object from context")
	}
	return crs, nil
}

// canMutateCourse allows only the course's teacher or an admin.
func canMutateCourse(ctx echo.Context, crs course.Course) bool {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return false
	}
	return claims.IsAdmin || (claims.IsTeacher && crs.TeacherID == claims.Subject)
}

// Handlers

func (api *courseApi) create(ctx echo.Context) error {
	var data course.NewCourse
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewCourse")
	}

	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}
	// a teacher creates their own courses; an admin may assign any teacher
	if !claims.IsAdmin || data.TeacherID == "" {
		data.TeacherID = claims.Subject
	}

	if err := data.Validate(api.validate, api.svc); err != nil {
		return err
	}

	crs, err := api.svc.Create(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "creating course")
	}
	return ctx.JSON(http.StatusCreated, crs)
}

func (api *courseApi) query(ctx echo.Context) error {
	filter := new(course.QueryFilter)
	if err := ctx.Bind(filter); err != nil {
		return ctx.JSON(http.StatusOK, []course.Course{})
	}
	filter.Clean()
	ordering := new(Ordering)
	ordering.Bind(ctx)

	courses, err := api.svc.Query(ctx.Request().Context(), filter, ordering.Orderings)
	if err != nil {
		return errors.Wrap(err, "querying courses")
	}
	if courses == nil {
		courses = []course.Course{}
	}
	return ctx.JSON(http.StatusOK, courses)
}

// queryMine lists the courses the caller is enrolled in.
func (api *courseApi) queryMine(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}

	filter := &course.QueryFilter{StudentID: claims.Subject}
	courses, err := api.svc.Query(ctx.Request().Context(), filter, nil)
	if err != nil {
		return errors.Wrap(err, "querying enrolled courses")
	}
	if courses == nil {
		courses = []course.Course{}
	}
	return ctx.JSON(http.StatusOK, courses)
}

func (api *courseApi) retrieve(ctx echo.Context) error {
	crs, err := contextCourse(ctx)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, crs)
}

func (api *courseApi) update(ctx echo.Context) error {
	crs, err := contextCourse(ctx)
	if err != nil {
		return err
	}
	if !canMutateCourse(ctx, crs) {
		return errHttpForbidden
	}

	var data course.UpdateCourse
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateCourse")
	}
	if err := data.Validate(crs, api.validate, api.svc); err != nil {
		return err
	}

	crs, err = api.svc.Update(ctx.Request().Context(), crs.ID, data)
	if err != nil {
		return errors.Wrap(err, "updating course")
	}
	return ctx.JSON(http.StatusOK, crs)
}

func (api *courseApi) publish(ctx echo.Context) error {
	return api.transition(ctx, course.StatusPublished)
}

func (api *courseApi) archive(ctx echo.Context) error {
	return api.transition(ctx, course.StatusArchived)
}

func (api *courseApi) transition(ctx echo.Context, status string) error {
	crs, err := contextCourse(ctx)
	if err != nil {
		return err
	}
	if !canMutateCourse(ctx, crs) {
		return errHttpForbidden
	}

	rctx := ctx.Request().Context()
	crs, err = api.svc.Transition(rctx, crs.ID, status)
	if err != nil {
		return errors.Wrap(err, "transitioning course")
	}

	if status == course.StatusPublished && api.notifSvc != nil {
		enrollments, err := api.svc.QueryEnrollments(rctx, crs.ID)
		if err == nil {
			ids := make([]string, 0, len(enrollments))
			for _, enr := range enrollments {
				ids = append(ids, enr.StudentID)
			}
			_ = api.notifSvc.NotifyAll(rctx, ids, notification.KindCoursePublished,
				"Course published", fmt.Sprintf("%s is now available", crs.Title), crs.ID)
		}
	}
	return ctx.JSON(http.StatusOK, crs)
}

func (api *courseApi) destroy(ctx echo.Context) error {
	crs, err := contextCourse(ctx)
	if err != nil {
		return err
	}
	if err := api.svc.Delete(ctx.Request().Context(), crs.ID); err != nil {
		return errors.Wrap(err, "deleting course")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *courseApi) destroyMultiple(ctx echo.Context) error {
	var query DestroyMultipleRequest
	if err := ctx.Bind(&query); err != nil {
		return errors.Wrap(err, "binding to DestroyMultipleRequest")
	}
	if query.IDs == nil {
		return ctx.NoContent(http.StatusNoContent)
	}
	if err := api.svc.Delete(ctx.Request().Context(), query.IDs...); err != nil {
		return errors.Wrap(err, "deleting courses")
	}
	return ctx.NoContent(http.StatusNoContent)
}

// Lessons

func (api *courseApi) addLesson(ctx echo.Context) error {
	crs, err := contextCourse(ctx)
	if err != nil {
		return err
	}
	if !canMutateCourse(ctx, crs) {
		return errHttpForbidden
	}

	var data course.NewLesson
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewLesson")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	lsn, err := api.svc.AddLesson(ctx.Request().Context(), crs.ID, data)
	if err != nil {
		return errors.Wrap(err, "adding lesson")
	}
	return ctx.JSON(http.StatusCreated, lsn)
}

func (api *courseApi) queryLessons(ctx echo.Context) error {
	crs, err := contextCourse(ctx)
	if err != nil {
		return err
	}
	lessons, err := api.svc.QueryLessons(ctx.Request().Context(), crs.ID)
	if err != nil {
		return errors.Wrap(err, "querying lessons")
	}
	if lessons == nil {
		lessons = []course.Lesson{}
	}
	return ctx.JSON(http.StatusOK, lessons)
}

func (api *courseApi) updateLesson(ctx echo.Context) error {
	crs, err := contextCourse(ctx)
	if err != nil {
		return err
	}
	if !canMutateCourse(ctx, crs) {
		return errHttpForbidden
	}

	lsn, err := api.svc.GetLesson(ctx.Request().Context(), ctx.Param("lessonID"))
	if err != nil || lsn.CourseID != crs.ID {
		return errHttpNotFound
	}

	var data course.UpdateLesson
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateLesson")
	}
	if err := data.Validate(lsn, api.validate); err != nil {
		return err
	}

	lsn, err = api.svc.UpdateLesson(ctx.Request().Context(), lsn.ID, data)
	if err != nil {
		return errors.Wrap(err, "updating lesson")
	}
	return ctx.JSON(http.StatusOK, lsn)
}

func (api *courseApi) destroyLesson(ctx echo.Context) error {
	crs, err := contextCourse(ctx)
	if err != nil {
		return err
	}
	if !canMutateCourse(ctx, crs) {
		return errHttpForbidden
	}

	lsn, err := api.svc.GetLesson(ctx.Request().Context(), ctx.Param("lessonID"))
	if err != nil || lsn.CourseID != crs.ID {
		return errHttpNotFound
	}
	if err := api.svc.DeleteLessons(ctx.Request().Context(), lsn.ID); err != nil {
		return errors.Wrap(err, "deleting lesson")
	}
	return ctx.NoContent(http.StatusNoContent)
}

// Enrollments

func (api *courseApi) enroll(ctx echo.Context) error {
	crs, err := contextCourse(ctx)
	if err != nil {
		return err
	}
	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}
	if !claims.IsStudent {
		return errHttpForbidden
	}

	enr, err := api.svc.Enroll(ctx.Request().Context(), crs.ID, claims.Subject)
	if err != nil {
		return errors.Wrap(err, "enrolling")
	}
	return ctx.JSON(http.StatusCreated, enr)
}

func (api *courseApi) unenroll(ctx echo.Context) error {
	crs, err := contextCourse(ctx)
	if err != nil {
		return err
	}
	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}

	if err := api.svc.Unenroll(ctx.Request().Context(), crs.ID, claims.Subject); err != nil {
		return errors.Wrap(err, "unenrolling")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *courseApi) queryEnrollments(ctx echo.Context) error {
	crs, err := contextCourse(ctx)
	if err != nil {
		return err
	}
	if !canMutateCourse(ctx, crs) {
		return errHttpForbidden
	}

	enrollments, err := api.svc.QueryEnrollments(ctx.Request().Context(), crs.ID)
	if err != nil {
		return errors.Wrap(err, "querying enrollments")
	}
	if enrollments == nil {
		enrollments = []course.Enrollment{}
	}
	return ctx.JSON(http.StatusOK, enrollments)
}
