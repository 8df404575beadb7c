package sqlxrepos

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/somahq/soma/core"
	"github.com/somahq/soma/core/course"
)

type courseRepository struct {
	db *sqlx.DB
}

var _ course.Repository = (*courseRepository)(nil) // interface compliance check

// columns the API may order course listings by
var courseSortable = map[string]bool{
	"code":       true,
	"title":      true,
	"status":     true,
	"created_at": true,
	"updated_at": true,
}

func NewCourseRepository(db *sqlx.DB) *courseRepository {
	return &courseRepository{db: db}
}

type courseRow struct {
	ID          string      `db:"id"`
	Code        string      `db:"code"`
	Title       string      `db:"title"`
	Description null.String `db:"description"`
	TeacherID   null.String `db:"teacher_id"`
	Status      string      `db:"status"`
	CreatedAt   time.Time   `db:"created_at"`
	UpdatedAt   time.Time   `db:"updated_at"`
}

type lessonRow struct {
	ID        string      `db:"id"`
	CourseID  string      `db:"course_id"`
	Position  int         `db:"position"`
	Title     string      `db:"title"`
	Content   null.String `db:"content"`
	VideoURL  null.String `db:"video_url"`
	Duration  int64       `db:"duration"`
	CreatedAt time.Time   `db:"created_at"`
	UpdatedAt time.Time   `db:"updated_at"`
}

type enrollmentRow struct {
	CourseID   string    `db:"course_id"`
	StudentID  string    `db:"student_id"`
	EnrolledAt time.Time `db:"enrolled_at"`
}

func (repo courseRepository) row(crs course.Course) courseRow {
	return courseRow{
		ID:          crs.ID,
		Code:        crs.Code,
		Title:       crs.Title,
		Description: null.NewString(crs.Description, crs.Description != ""),
		TeacherID:   null.NewString(crs.TeacherID, crs.TeacherID != ""),
		Status:      crs.Status,
		CreatedAt:   crs.CreatedAt.UTC(),
		UpdatedAt:   crs.UpdatedAt.UTC(),
	}
}

func (repo courseRepository) unrow(row courseRow) course.Course {
	return course.Course{
		ID:          row.ID,
		Code:        row.Code,
		Title:       row.Title,
		Description: row.Description.String,
		TeacherID:   row.TeacherID.String,
		Status:      row.Status,
		CreatedAt:   row.CreatedAt,
		UpdatedAt:   row.UpdatedAt,
	}
}

func (repo courseRepository) lessonRow(lsn course.Lesson) lessonRow {
	return lessonRow{
		ID:        lsn.ID,
		CourseID:  lsn.CourseID,
		Position:  lsn.Position,
		Title:     lsn.Title,
		Content:   null.NewString(lsn.Content, lsn.Content != ""),
		VideoURL:  null.NewString(lsn.VideoURL, lsn.VideoURL != ""),
		Duration:  int64(lsn.Duration),
		CreatedAt: lsn.CreatedAt.UTC(),
		UpdatedAt: lsn.UpdatedAt.UTC(),
	}
}

func (repo courseRepository) unrowLesson(row lessonRow) course.Lesson {
	return course.Lesson{
		ID:        row.ID,
		CourseID:  row.CourseID,
		Position:  row.Position,
		Title:     row.Title,
		Content:   row.Content.String,
		VideoURL:  row.VideoURL.String,
		Duration:  time.Duration(row.Duration),
		CreatedAt: row.CreatedAt,
		UpdatedAt: row.UpdatedAt,
	}
}

func (repo courseRepository) trapNoRowsErr(err, notFound error, msg string) error {
	if err == sql.ErrNoRows {
		return notFound
	}
	return errors.Wrap(err, msg)
}

func (repo courseRepository) CheckCodeUniqueness(ctx context.Context, code string, excludedCourses ...course.Course) error {
	excludedIDs := make([]string, 0, len(excludedCourses))
	for _, c := range excludedCourses {
		excludedIDs = append(excludedIDs, c.ID)
	}

	var exists bool
	err := repo.db.GetContext(ctx, &exists,
		`SELECT EXISTS (SELECT 1 FROM course WHERE code = $1 AND NOT (id = ANY($2)))`,
		code, pq.Array(excludedIDs))
	if err != nil {
		return errors.Wrap(err, "checking course code uniqueness")
	}
	if exists {
		return course.ErrCodeExists
	}
	return nil
}

func (repo courseRepository) CreateCourse(ctx context.Context, crs course.Course) (course.Course, error) {
	crs.ID = uuid.New().String()
	row := repo.row(crs)
	_, err := repo.db.NamedExecContext(ctx, `
		INSERT INTO course (id, code, title, description, teacher_id, status, created_at, updated_at)
		VALUES (:id, :code, :title, :description, :teacher_id, :status, :created_at, :updated_at)`,
		row)
	if err != nil {
		return course.Course{}, errors.Wrap(err, "inserting course")
	}
	return repo.unrow(row), nil
}

func (repo courseRepository) GetCourse(ctx context.Context, id string) (course.Course, error) {
	if _, err := uuid.Parse(id); err != nil {
		return course.Course{}, course.ErrNotFound
	}
	var row courseRow
	if err := repo.db.GetContext(ctx, &row, `SELECT * FROM course WHERE id = $1`, id); err != nil {
		return course.Course{}, repo.trapNoRowsErr(err, course.ErrNotFound, "finding course")
	}
	return repo.unrow(row), nil
}

func (repo courseRepository) FilterCourses(ctx context.Context, filter course.QueryFilter, ordering []core.DBOrdering) ([]course.Course, error) {
	var (
		conds []string
		args  []interface{}
	)
	arg := func(val interface{}) string {
		args = append(args, val)
		return fmt.Sprintf("$%d", len(args))
	}

	if filter.Search != "" {
		val := arg("%" + filter.Search + "%")
		conds = append(conds, fmt.Sprintf("(code ILIKE %[1]s OR title ILIKE %[1]s)", val))
	}
	if filter.Status != "" {
		conds = append(conds, "status = "+arg(filter.Status))
	}
	if filter.TeacherID != "" {
		conds = append(conds, "teacher_id = "+arg(filter.TeacherID))
	}
	if filter.StudentID != "" {
		conds = append(conds, fmt.Sprintf(
			"id IN (SELECT course_id FROM enrollment WHERE student_id = %s)", arg(filter.StudentID)))
	}

	query := `SELECT * FROM course`
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	clause, err := orderBy(ordering, courseSortable, "created_at DESC")
	if err != nil {
		return nil, err
	}
	query += clause

	var rows []courseRow
	if err := repo.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, errors.Wrap(err, "querying courses")
	}

	courses := make([]course.Course, 0, len(rows))
	for _, row := range rows {
		courses = append(courses, repo.unrow(row))
	}
	return courses, nil
}

func (repo courseRepository) UpdateCourse(ctx context.Context, crs course.Course) (course.Course, error) {
	row := repo.row(crs)
	res, err := repo.db.NamedExecContext(ctx, `
		UPDATE course
		SET code = :code, title = :title, description = :description,
		    teacher_id = :teacher_id, status = :status, updated_at = :updated_at
		WHERE id = :id`,
		row)
	if err != nil {
		return course.Course{}, errors.Wrap(err, "updating course")
	}
	if cnt, err := res.RowsAffected(); err == nil && cnt == 0 {
		return course.Course{}, course.ErrNotFound
	}
	return repo.unrow(row), nil
}

func (repo courseRepository) DeleteCoursesByID(ctx context.Context, ids ...string) error {
	_, err := repo.db.ExecContext(ctx, `DELETE FROM course WHERE id = ANY($1)`, pq.Array(ids))
	return errors.Wrap(err, "deleting courses")
}

func (repo courseRepository) CreateLesson(ctx context.Context, lsn course.Lesson) (course.Lesson, error) {
	lsn.ID = uuid.New().String()
	row := repo.lessonRow(lsn)
	_, err := repo.db.NamedExecContext(ctx, `
		INSERT INTO lesson (id, course_id, position, title, content, video_url, duration, created_at, updated_at)
		VALUES (:id, :course_id, :position, :title, :content, :video_url, :duration, :created_at, :updated_at)`,
		row)
	if err != nil {
		return course.Lesson{}, errors.Wrap(err, "inserting lesson")
	}
	return repo.unrowLesson(row), nil
}

func (repo courseRepository) GetLesson(ctx context.Context, id string) (course.Lesson, error) {
	if _, err := uuid.Parse(id); err != nil {
		return course.Lesson{}, course.ErrLessonNotFound
	}
	var row lessonRow
	if err := repo.db.GetContext(ctx, &row, `SELECT * FROM lesson WHERE id = $1`, id); err != nil {
		return course.Lesson{}, repo.trapNoRowsErr(err, course.ErrLessonNotFound, "finding lesson")
	}
	return repo.unrowLesson(row), nil
}

func (repo courseRepository) QueryLessons(ctx context.Context, courseID string) ([]course.Lesson, error) {
	var rows []lessonRow
	err := repo.db.SelectContext(ctx, &rows,
		`SELECT * FROM lesson WHERE course_id = $1 ORDER BY position ASC, created_at ASC`, courseID)
	if err != nil {
		return nil, errors.Wrap(err, "querying lessons")
	}

	lessons := make([]course.Lesson, 0, len(rows))
	for _, row := range rows {
		lessons = append(lessons, repo.unrowLesson(row))
	}
	return lessons, nil
}

func (repo courseRepository) UpdateLesson(ctx context.Context, lsn course.Lesson) (course.Lesson, error) {
	row := repo.lessonRow(lsn)
	res, err := repo.db.NamedExecContext(ctx, `
		UPDATE lesson
		SET position = :position, title = :title, content = :content,
		    video_url = :video_url, duration = :duration, updated_at = :updated_at
		WHERE id = :id`,
		row)
	if err != nil {
		return course.Lesson{}, errors.Wrap(err, "updating lesson")
	}
	if cnt, err := res.RowsAffected(); err == nil && cnt == 0 {
		return course.Lesson{}, course.ErrLessonNotFound
	}
	return repo.unrowLesson(row), nil
}

func (repo courseRepository) DeleteLessonsByID(ctx context.Context, ids ...string) error {
	_, err := repo.db.ExecContext(ctx, `DELETE FROM lesson WHERE id = ANY($1)`, pq.Array(ids))
	return errors.Wrap(err, "deleting lessons")
}

func (repo courseRepository) CreateEnrollment(ctx context.Context, enr course.Enrollment) (course.Enrollment, error) {
	row := enrollmentRow{
		CourseID:   enr.CourseID,
		StudentID:  enr.StudentID,
		EnrolledAt: enr.EnrolledAt.UTC(),
	}
	_, err := repo.db.NamedExecContext(ctx, `
		INSERT INTO enrollment (course_id, student_id, enrolled_at)
		VALUES (:course_id, :student_id, :enrolled_at)`,
		row)
	if err != nil {
		return course.Enrollment{}, errors.Wrap(err, "inserting enrollment")
	}
	return enr, nil
}

func (repo courseRepository) EnrollmentExists(ctx context.Context, courseID, studentID string) (bool, error) {
	var exists bool
	err := repo.db.GetContext(ctx, &exists,
		`SELECT EXISTS (SELECT 1 FROM enrollment WHERE course_id = $1 AND student_id = $2)`,
		courseID, studentID)
	return exists, errors.Wrap(err, "checking enrollment")
}

func (repo courseRepository) QueryEnrollments(ctx context.Context, courseID string) ([]course.Enrollment, error) {
	var rows []enrollmentRow
	err := repo.db.SelectContext(ctx, &rows,
		`SELECT * FROM enrollment WHERE course_id = $1 ORDER BY enrolled_at ASC`, courseID)
	if err != nil {
		return nil, errors.Wrap(err, "querying enrollments")
	}

	enrollments := make([]course.Enrollment, 0, len(rows))
	for _, row := range rows {
		enrollments = append(enrollments, course.Enrollment{
			CourseID:   row.CourseID,
			StudentID:  row.StudentID,
			EnrolledAt: row.EnrolledAt,
		})
	}
	return enrollments, nil
}

func (repo courseRepository) DeleteEnrollment(ctx context.Context, courseID, studentID string) error {
	_, err := repo.db.ExecContext(ctx,
		`DELETE FROM enrollment WHERE course_id = $1 AND student_id = $2`, courseID, studentID)
	return errors.Wrap(err, "deleting enrollment")
}
