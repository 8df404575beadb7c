package echoapi

import (
	"fmt"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/somahq/soma/core/assessment"
	"github.com/somahq/soma/core/course"
	"github.com/somahq/soma/core/notification"
)

var errAsmNotFoundInCtx = errors.New("assessment object not found in echo.Context")

type assessmentApi struct {
	svc       *assessment.Service
	courseSvc *course.Service
	notifSvc  *notification.Service
	validate  *validator.Validate
}

func registerAssessmentAPI(
	g *echo.Group,
	jwt echo.MiddlewareFunc,
	svc *assessment.Service,
	courseSvc *course.Service,
	notifSvc *notification.Service,
	validate *validator.Validate,
) {
	api := assessmentApi{
		svc:       svc,
		courseSvc: courseSvc,
		notifSvc:  notifSvc,
		validate:  validate,
	}

	ag := g.Group("/assessments", jwt)
	ag.GET("", api.query)
	ag.POST("", api.create, teacherOrAdminMiddleware())

	// detail endpoints
	dg := ag.Group("/:id", objectAssessmentMiddleware(svc))
	dg.GET("", api.retrieve)
	dg.PUT("", api.update)
	dg.DELETE("", api.destroy)
	dg.POST("/publish", api.publish)

	dg.GET("/questions", api.queryQuestions)
	dg.POST("/questions", api.addQuestion)
	dg.PUT("/questions/:questionID", api.updateQuestion)
	dg.DELETE("/questions/:questionID", api.destroyQuestion)

	dg.POST("/submit", api.submit)
	dg.GET("/results", api.queryResults)
	dg.GET("/results/me", api.retrieveMyResult)
}

func objectAssessmentMiddleware(svc *assessment.Service) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			asm, err := svc.GetByID(ctx.Request().Context(), ctx.Param("id"))
			if err != nil {
				if errors.Cause(err) == assessment.ErrNotFound {
					return errHttpNotFound
				}
				return errors.Wrap(err, "finding assessment by ID")
			}
			ctx.Set("object", asm)
			return next(ctx)
		}
	}
}

func contextAssessment(ctx echo.Context) (assessment.Assessment, error) {
	asm, ok := ctx.Get("object").(assessment.Assessment)
	if !ok {
		return assessment.Assessment{}, errors.Wrap(errAsmNotFoundInCtx, "retrieving object from context")
	}
	return asm, nil
}

// canMutateAssessment allows the owning course's teacher or an admin.
func (api *assessmentApi) canMutateAssessment(ctx echo.Context, asm assessment.Assessment) bool {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return false
	}
	if claims.IsAdmin {
		return true
	}
	if !claims.IsTeacher {
		return false
	}
	crs, err := api.courseSvc.GetByID(ctx.Request().Context(), asm.CourseID)
	if err != nil {
		return false
	}
	return crs.TeacherID == claims.Subject
}

// Handlers

func (api *assessmentApi) create(ctx echo.Context) error {
	var data assessment.NewAssessment
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewAssessment")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}
	crs, err := api.courseSvc.GetByID(ctx.Request().Context(), data.CourseID)
	if err != nil {
		if errors.Cause(err) == course.ErrNotFound {
			return errHttpNotFound
		}
		return errors.Wrap(err, "finding course by ID")
	}
	if !claims.IsAdmin && crs.TeacherID != claims.Subject {
		return errHttpForbidden
	}

	asm, err := api.svc.Create(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "creating assessment")
	}
	return ctx.JSON(http.StatusCreated, asm)
}

func (api *assessmentApi) query(ctx echo.Context) error {
	filter := new(assessment.QueryFilter)
	if err := ctx.Bind(filter); err != nil {
		return ctx.JSON(http.StatusOK, []assessment.Assessment{})
	}
	filter.Clean()

	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}
	// students only see published assessments
	if !(claims.IsAdmin || claims.IsTeacher) {
		published := true
		filter.IsPublished = &published
	}

	ordering := new(Ordering)
	ordering.Bind(ctx)

	assessments, err := api.svc.Query(ctx.Request().Context(), filter, ordering.Orderings)
	if err != nil {
		return errors.Wrap(err, "querying assessments")
	}
	if assessments == nil {
		assessments = []assessment.Assessment{}
	}
	return ctx.JSON(http.StatusOK, assessments)
}

func (api *assessmentApi) retrieve(ctx echo.Context) error {
	asm, err := contextAssessment(ctx)
	if err != nil {
		return err
	}
	if !asm.IsPublished && !api.canMutateAssessment(ctx, asm) {
		return errHttpNotFound
	}
	return ctx.JSON(http.StatusOK, asm)
}

func (api *assessmentApi) update(ctx echo.Context) error {
	asm, err := contextAssessment(ctx)
	if err != nil {
		return err
	}
	if !api.canMutateAssessment(ctx, asm) {
		return errHttpForbidden
	}

	var data assessment.UpdateAssessment
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateAssessment")
	}
	if err := data.Validate(asm, api.validate); err != nil {
		return err
	}

	asm, err = api.svc.Update(ctx.Request().Context(), asm.ID, data)
	if err != nil {
		return errors.Wrap(err, "updating assessment")
	}
	return ctx.JSON(http.StatusOK, asm)
}

func (api *assessmentApi) publish(ctx echo.Context) error {
	asm, err := contextAssessment(ctx)
	if err != nil {
		return err
	}
	if !api.canMutateAssessment(ctx, asm) {
		return errHttpForbidden
	}

	rctx := ctx.Request().Context()
	asm, err = api.svc.Publish(rctx, asm.ID)
	if err != nil {
		return errors.Wrap(err, "publishing assessment")
	}

	if api.notifSvc != nil {
		enrollments, err := api.courseSvc.QueryEnrollments(rctx, asm.CourseID)
		if err == nil {
			ids := make([]string, 0, len(enrollments))
			for _, enr := range enrollments {
				ids = append(ids, enr.StudentID)
			}
			_ = api.notifSvc.NotifyAll(rctx, ids, notification.KindAssessmentPublished,
				"New assessment", fmt.Sprintf("%s is open for submission", asm.Title), asm.ID)
		}
	}
	return ctx.JSON(http.StatusOK, asm)
}

func (api *assessmentApi) destroy(ctx echo.Context) error {
	asm, err := contextAssessment(ctx)
	if err != nil {
		return err
	}
	if !api.canMutateAssessment(ctx, asm) {
		return errHttpForbidden
	}
	if err := api.svc.Delete(ctx.Request().Context(), asm.ID); err != nil {
		return errors.Wrap(err, "deleting assessment")
	}
	return ctx.NoContent(http.StatusNoContent)
}

// Questions

func (api *assessmentApi) addQuestion(ctx echo.Context) error {
	asm, err := contextAssessment(ctx)
	if err != nil {
		return err
	}
	if !api.canMutateAssessment(ctx, asm) {
		return errHttpForbidden
	}

	var data assessment.NewQuestion
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewQuestion")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	q, err := api.svc.AddQuestion(ctx.Request().Context(), asm.ID, data)
	if err != nil {
		return errors.Wrap(err, "adding question")
	}
	return ctx.JSON(http.StatusCreated, q)
}

// queryQuestions strips the answer key unless the caller may grade.
func (api *assessmentApi) queryQuestions(ctx echo.Context) error {
	asm, err := contextAssessment(ctx)
	if err != nil {
		return err
	}

	rctx := ctx.Request().Context()
	var questions []assessment.Question
	if api.canMutateAssessment(ctx, asm) {
		questions, err = api.svc.QueryQuestions(rctx, asm.ID)
	} else {
		if !asm.IsPublished {
			return errHttpNotFound
		}
		questions, err = api.svc.QueryPublicQuestions(rctx, asm.ID)
	}
	if err != nil {
		return errors.Wrap(err, "querying questions")
	}
	if questions == nil {
		questions = []assessment.Question{}
	}
	return ctx.JSON(http.StatusOK, questions)
}

func (api *assessmentApi) updateQuestion(ctx echo.Context) error {
	asm, err := contextAssessment(ctx)
	if err != nil {
		return err
	}
	if !api.canMutateAssessment(ctx, asm) {
		return errHttpForbidden
	}

	var data assessment.NewQuestion
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewQuestion")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	q, err := api.svc.UpdateQuestion(ctx.Request().Context(), ctx.Param("questionID"), data)
	if err != nil {
		if errors.Cause(err) == assessment.ErrQuestionNotFound {
			return errHttpNotFound
		}
		return errors.Wrap(err, "updating question")
	}
	return ctx.JSON(http.StatusOK, q)
}

func (api *assessmentApi) destroyQuestion(ctx echo.Context) error {
	asm, err := contextAssessment(ctx)
	if err != nil {
		return err
	}
	if !api.canMutateAssessment(ctx, asm) {
		return errHttpForbidden
	}
	if err := api.svc.DeleteQuestions(ctx.Request().Context(), ctx.Param("questionID")); err != nil {
		return errors.Wrap(err, "deleting question")
	}
	return ctx.NoContent(http.StatusNoContent)
}

// Submissions

func (api *assessmentApi) submit(ctx echo.Context) error {
	asm, err := contextAssessment(ctx)
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

	var data assessment.SubmitRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to SubmitRequest")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	rctx := ctx.Request().Context()
	res, err := api.svc.Submit(rctx, asm.ID, claims.Subject, data)
	if err != nil {
		return errors.Wrap(err, "submitting assessment")
	}

	if api.notifSvc != nil {
		_, _ = api.notifSvc.Notify(rctx, claims.Subject, notification.KindAssessmentGraded,
			"Assessment graded", fmt.Sprintf("You scored %.1f/%.1f on %s", res.Score, res.MaxScore, asm.Title), asm.ID)
	}
	return ctx.JSON(http.StatusCreated, res)
}

func (api *assessmentApi) queryResults(ctx echo.Context) error {
	asm, err := contextAssessment(ctx)
	if err != nil {
		return err
	}
	if !api.canMutateAssessment(ctx, asm) {
		return errHttpForbidden
	}

	results, err := api.svc.QueryResults(ctx.Request().Context(), assessment.ResultFilter{AssessmentID: asm.ID})
	if err != nil {
		return errors.Wrap(err, "querying results")
	}
	if results == nil {
		results = []assessment.TestResult{}
	}
	return ctx.JSON(http.StatusOK, results)
}

func (api *assessmentApi) retrieveMyResult(ctx echo.Context) error {
	asm, err := contextAssessment(ctx)
	if err != nil {
		return err
	}
	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}

	res, err := api.svc.GetResult(ctx.Request().Context(), asm.ID, claims.Subject)
	if err != nil {
		if errors.Cause(err) == assessment.ErrResultNotFound {
			return errHttpNotFound
		}
		return errors.Wrap(err, "finding result")
	}
	return ctx.JSON(http.StatusOK, res)
}
