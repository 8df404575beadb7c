package course

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/somahq/soma/core"
)

var (
	// errors
	ErrNotFound         = errors.New("course not found")
	ErrLessonNotFound   = errors.New("lesson not found")
	ErrCodeExists       = errors.New("a course with this code already exists")
	ErrAlreadyEnrolled  = errors.New("student is already enrolled in this course")
	ErrNotPublished     = errors.New("course is not published")
	ErrBadTransition    = errors.New("invalid course status transition")
	ErrNotCourseTeacher = errors.New("user is not the course's teacher")
)

type (
	Repository interface {
		CheckCodeUniqueness(ctx context.Context, code string, excludedCourses ...Course) error
		CreateCourse(ctx context.Context, crs Course) (Course, error)
		GetCourse(ctx context.Context, id string) (Course, error)
		// FilterCourses applies AND operation on available QueryFilter fields.
		FilterCourses(ctx context.Context, filter QueryFilter, ordering []core.DBOrdering) ([]Course, error)
		UpdateCourse(ctx context.Context, crs Course) (Course, error)
		DeleteCoursesByID(ctx context.Context, ids ...string) error

		CreateLesson(ctx context.Context, lsn Lesson) (Lesson, error)
		GetLesson(ctx context.Context, id string) (Lesson, error)
		QueryLessons(ctx context.Context, courseID string) ([]Lesson, error)
		UpdateLesson(ctx context.Context, lsn Lesson) (Lesson, error)
		DeleteLessonsByID(ctx context.Context, ids ...string) error

		CreateEnrollment(ctx context.Context, enr Enrollment) (Enrollment, error)
		EnrollmentExists(ctx context.Context, courseID, studentID string) (bool, error)
		QueryEnrollments(ctx context.Context, courseID string) ([]Enrollment, error)
		DeleteEnrollment(ctx context.Context, courseID, studentID string) error
	}

	Service struct {
		repo Repository
	}
)

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

func (svc *Service) CheckCodeUniqueness(code string, exclCourses ...Course) error {
	if err := svc.repo.CheckCodeUniqueness(context.Background(), code, exclCourses...); err != nil {
		if err == ErrCodeExists {
			return core.NewValidationError(err, core.FieldError{Field: "code", Error: err.Error()})
		}
		return err
	}
	return nil
}

func (svc *Service) Create(ctx context.Context, nc NewCourse) (Course, error) {
	now := time.Now().UTC()
	crs := Course{
		Code:        nc.Code,
		Title:       nc.Title,
		Description: nc.Description,
		TeacherID:   nc.TeacherID,
		Status:      StatusDraft,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	return svc.repo.CreateCourse(ctx, crs)
}

func (svc *Service) GetByID(ctx context.Context, id string) (Course, error) {
	return svc.repo.GetCourse(ctx, id)
}

func (svc *Service) Query(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering) ([]Course, error) {
	if filter == nil {
		filter = new(QueryFilter)
	}
	return svc.repo.FilterCourses(ctx, *filter, ordering)
}

func (svc *Service) Update(ctx context.Context, id string, uc UpdateCourse) (Course, error) {
	crs, err := svc.repo.GetCourse(ctx, id)
	if err != nil {
		return Course{}, err
	}
	crs.Code = uc.Code
	crs.Title = uc.Title
	if uc.Description != "" {
		crs.Description = uc.Description
	}
	if uc.TeacherID != "" {
		crs.TeacherID = uc.TeacherID
	}
	crs.UpdatedAt = time.Now().UTC()
	return svc.repo.UpdateCourse(ctx, crs)
}

// Transition moves a course through its lifecycle; draft -> published -> archived.
func (svc *Service) Transition(ctx context.Context, id, status string) (Course, error) {
	crs, err := svc.repo.GetCourse(ctx, id)
	if err != nil {
		return Course{}, err
	}
	if !CanTransition(crs.Status, status) {
		return Course{}, core.NewValidationError(
			ErrBadTransition,
			core.FieldError{Field: "status", Error: fmt.Sprintf("cannot transition from %q to %q", crs.Status, status)},
		)
	}
	crs.Status = status
	crs.UpdatedAt = time.Now().UTC()
	return svc.repo.UpdateCourse(ctx, crs)
}

func (svc *Service) Delete(ctx context.Context, ids ...string) error {
	return svc.repo.DeleteCoursesByID(ctx, ids...)
}

// Lessons

func (svc *Service) AddLesson(ctx context.Context, courseID string, nl NewLesson) (Lesson, error) {
	if _, err := svc.repo.GetCourse(ctx, courseID); err != nil {
		return Lesson{}, err
	}
	pos := nl.Position
	if pos == 0 {
		lessons, err := svc.repo.QueryLessons(ctx, courseID)
		if err != nil {
			return Lesson{}, err
		}
		pos = len(lessons) + 1
	}
	now := time.Now().UTC()
	lsn := Lesson{
		CourseID:  courseID,
		Position:  pos,
		Title:     nl.Title,
		Content:   nl.Content,
		VideoURL:  nl.VideoURL,
		Duration:  nl.Duration,
		CreatedAt: now,
		UpdatedAt: now,
	}
	return svc.repo.CreateLesson(ctx, lsn)
}

func (svc *Service) GetLesson(ctx context.Context, id string) (Lesson, error) {
	return svc.repo.GetLesson(ctx, id)
}

func (svc *Service) QueryLessons(ctx context.Context, courseID string) ([]Lesson, error) {
	return svc.repo.QueryLessons(ctx, courseID)
}

func (svc *Service) UpdateLesson(ctx context.Context, id string, ul UpdateLesson) (Lesson, error) {
	lsn, err := svc.repo.GetLesson(ctx, id)
	if err != nil {
		return Lesson{}, err
	}
	lsn.Title = ul.Title
	if ul.Content != "" {
		lsn.Content = ul.Content
	}
	if ul.VideoURL != "" {
		lsn.VideoURL = ul.VideoURL
	}
	if ul.Duration != 0 {
		lsn.Duration = ul.Duration
	}
	if ul.Position != nil {
		lsn.Position = *ul.Position
	}
	lsn.UpdatedAt = time.Now().UTC()
	return svc.repo.UpdateLesson(ctx, lsn)
}

func (svc *Service) DeleteLessons(ctx context.Context, ids ...string) error {
	return svc.repo.DeleteLessonsByID(ctx, ids...)
}

// Enrollments

// Enroll registers a student on a published course.
func (svc *Service) Enroll(ctx context.Context, courseID, studentID string) (Enrollment, error) {
	crs, err := svc.repo.GetCourse(ctx, courseID)
	if err != nil {
		return Enrollment{}, err
	}
	if !crs.IsPublished() {
		return Enrollment{}, core.NewValidationError(ErrNotPublished)
	}
	exists, err := svc.repo.EnrollmentExists(ctx, courseID, studentID)
	if err != nil {
		return Enrollment{}, err
	}
	if exists {
		return Enrollment{}, core.NewValidationError(ErrAlreadyEnrolled)
	}
	return svc.repo.CreateEnrollment(ctx, Enrollment{
		CourseID:   courseID,
		StudentID:  studentID,
		EnrolledAt: time.Now().UTC(),
	})
}

func (svc *Service) Unenroll(ctx context.Context, courseID, studentID string) error {
	return svc.repo.DeleteEnrollment(ctx, courseID, studentID)
}

func (svc *Service) QueryEnrollments(ctx context.Context, courseID string) ([]Enrollment, error) {
	return svc.repo.QueryEnrollments(ctx, courseID)
}

// IsEnrolled reports whether a student is enrolled in a course.
func (svc *Service) IsEnrolled(ctx context.Context, courseID, studentID string) (bool, error) {
	return svc.repo.EnrollmentExists(ctx, courseID, studentID)
}
