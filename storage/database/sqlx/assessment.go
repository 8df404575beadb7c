package sqlxrepos

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/somahq/soma/core"
	"github.com/somahq/soma/core/assessment"
)

type assessmentRepository struct {
	db *sqlx.DB
}

var _ assessment.Repository = (*assessmentRepository)(nil) // interface compliance check

// columns the API may order assessment listings by
var assessmentSortable = map[string]bool{
	"title":        true,
	"due_at":       true,
	"is_published": true,
	"created_at":   true,
	"updated_at":   true,
}

func NewAssessmentRepository(db *sqlx.DB) *assessmentRepository {
	return &assessmentRepository{db: db}
}

type assessmentRow struct {
	ID            string      `db:"id"`
	CourseID      string      `db:"course_id"`
	Title         string      `db:"title"`
	Description   null.String `db:"description"`
	DueAt         null.Time   `db:"due_at"`
	DurationLimit int64       `db:"duration_limit"`
	MaxScore      float64     `db:"max_score"`
	IsPublished   bool        `db:"is_published"`
	CreatedAt     time.Time   `db:"created_at"`
	UpdatedAt     time.Time   `db:"updated_at"`
}

type questionRow struct {
	ID              string         `db:"id"`
	AssessmentID    string         `db:"assessment_id"`
	Position        int            `db:"position"`
	Prompt          string         `db:"prompt"`
	Kind            string         `db:"kind"`
	Choices         pq.StringArray `db:"choices"`
	CorrectChoices  pq.Int64Array  `db:"correct_choices"`
	AcceptedAnswers pq.StringArray `db:"accepted_answers"`
	Points          float64        `db:"points"`
}

type resultRow struct {
	ID           string    `db:"id"`
	AssessmentID string    `db:"assessment_id"`
	StudentID    string    `db:"student_id"`
	Answers      []byte    `db:"answers"`
	Score        float64   `db:"score"`
	MaxScore     float64   `db:"max_score"`
	StartedAt    null.Time `db:"started_at"`
	SubmittedAt  time.Time `db:"submitted_at"`
}

func (repo assessmentRepository) row(asm assessment.Assessment) assessmentRow {
	return assessmentRow{
		ID:            asm.ID,
		CourseID:      asm.CourseID,
		Title:         asm.Title,
		Description:   null.NewString(asm.Description, asm.Description != ""),
		DueAt:         null.NewTime(asm.DueAt.UTC(), !asm.DueAt.IsZero()),
		DurationLimit: int64(asm.DurationLimit),
		MaxScore:      asm.MaxScore,
		IsPublished:   asm.IsPublished,
		CreatedAt:     asm.CreatedAt.UTC(),
		UpdatedAt:     asm.UpdatedAt.UTC(),
	}
}

func (repo assessmentRepository) unrow(row assessmentRow) assessment.Assessment {
	return assessment.Assessment{
		ID:            row.ID,
		CourseID:      row.CourseID,
		Title:         row.Title,
		Description:   row.Description.String,
		DueAt:         row.DueAt.Time,
		DurationLimit: time.Duration(row.DurationLimit),
		MaxScore:      row.MaxScore,
		IsPublished:   row.IsPublished,
		CreatedAt:     row.CreatedAt,
		UpdatedAt:     row.UpdatedAt,
	}
}

func (repo assessmentRepository) questionRow(q assessment.Question) questionRow {
	return questionRow{
		ID:              q.ID,
		AssessmentID:    q.AssessmentID,
		Position:        q.Position,
		Prompt:          q.Prompt,
		Kind:            q.Kind,
		Choices:         q.Choices,
		CorrectChoices:  intsToInt64(q.CorrectChoices),
		AcceptedAnswers: q.AcceptedAnswers,
		Points:          q.Points,
	}
}

func (repo assessmentRepository) unrowQuestion(row questionRow) assessment.Question {
	return assessment.Question{
		ID:              row.ID,
		AssessmentID:    row.AssessmentID,
		Position:        row.Position,
		Prompt:          row.Prompt,
		Kind:            row.Kind,
		Choices:         row.Choices,
		CorrectChoices:  int64sToInt(row.CorrectChoices),
		AcceptedAnswers: row.AcceptedAnswers,
		Points:          row.Points,
	}
}

func (repo assessmentRepository) resultRow(res assessment.TestResult) (resultRow, error) {
	answers, err := json.Marshal(res.Answers)
	if err != nil {
		return resultRow{}, errors.Wrap(err, "encoding answers")
	}
	return resultRow{
		ID:           res.ID,
		AssessmentID: res.AssessmentID,
		StudentID:    res.StudentID,
		Answers:      answers,
		Score:        res.Score,
		MaxScore:     res.MaxScore,
		StartedAt:    null.NewTime(res.StartedAt.UTC(), !res.StartedAt.IsZero()),
		SubmittedAt:  res.SubmittedAt.UTC(),
	}, nil
}

func (repo assessmentRepository) unrowResult(row resultRow) (assessment.TestResult, error) {
	var answers []assessment.Answer
	if len(row.Answers) > 0 {
		if err := json.Unmarshal(row.Answers, &answers); err != nil {
			return assessment.TestResult{}, errors.Wrap(err, "decoding answers")
		}
	}
	return assessment.TestResult{
		ID:           row.ID,
		AssessmentID: row.AssessmentID,
		StudentID:    row.StudentID,
		Answers:      answers,
		Score:        row.Score,
		MaxScore:     row.MaxScore,
		StartedAt:    row.StartedAt.Time,
		SubmittedAt:  row.SubmittedAt,
	}, nil
}

func (repo assessmentRepository) trapNoRowsErr(err, notFound error, msg string) error {
	if err == sql.ErrNoRows {
		return notFound
	}
	return errors.Wrap(err, msg)
}

func (repo assessmentRepository) CreateAssessment(ctx context.Context, asm assessment.Assessment) (assessment.Assessment, error) {
	asm.ID = uuid.New().String()
	row := repo.row(asm)
	_, err := repo.db.NamedExecContext(ctx, `
		INSERT INTO assessment (id, course_id, title, description, due_at, duration_limit, max_score, is_published, created_at, updated_at)
		VALUES (:id, :course_id, :title, :description, :due_at, :duration_limit, :max_score, :is_published, :created_at, :updated_at)`,
		row)
	if err != nil {
		return assessment.Assessment{}, errors.Wrap(err, "inserting assessment")
	}
	return repo.unrow(row), nil
}

func (repo assessmentRepository) GetAssessment(ctx context.Context, id string) (assessment.Assessment, error) {
	if _, err := uuid.Parse(id); err != nil {
		return assessment.Assessment{}, assessment.ErrNotFound
	}
	var row assessmentRow
	if err := repo.db.GetContext(ctx, &row, `SELECT * FROM assessment WHERE id = $1`, id); err != nil {
		return assessment.Assessment{}, repo.trapNoRowsErr(err, assessment.ErrNotFound, "finding assessment")
	}
	return repo.unrow(row), nil
}

func (repo assessmentRepository) FilterAssessments(ctx context.Context, filter assessment.QueryFilter, ordering []core.DBOrdering) ([]assessment.Assessment, error) {
	var (
		conds []string
		args  []interface{}
	)
	arg := func(val interface{}) string {
		args = append(args, val)
		return fmt.Sprintf("$%d", len(args))
	}

	if filter.CourseID != "" {
		conds = append(conds, "course_id = "+arg(filter.CourseID))
	}
	if filter.Search != "" {
		conds = append(conds, "title ILIKE "+arg("%"+filter.Search+"%"))
	}
	if filter.IsPublished != nil {
		conds = append(conds, "is_published = "+arg(*filter.IsPublished))
	}

	query := `SELECT * FROM assessment`
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	clause, err := orderBy(ordering, assessmentSortable, "created_at DESC")
	if err != nil {
		return nil, err
	}
	query += clause

	var rows []assessmentRow
	if err := repo.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, errors.Wrap(err, "querying assessments")
	}

	asms := make([]assessment.Assessment, 0, len(rows))
	for _, row := range rows {
		asms = append(asms, repo.unrow(row))
	}
	return asms, nil
}

func (repo assessmentRepository) UpdateAssessment(ctx context.Context, asm assessment.Assessment) (assessment.Assessment, error) {
	row := repo.row(asm)
	res, err := repo.db.NamedExecContext(ctx, `
		UPDATE assessment
		SET title = :title, description = :description, due_at = :due_at,
		    duration_limit = :duration_limit, max_score = :max_score,
		    is_published = :is_published, updated_at = :updated_at
		WHERE id = :id`,
		row)
	if err != nil {
		return assessment.Assessment{}, errors.Wrap(err, "updating assessment")
	}
	if cnt, err := res.RowsAffected(); err == nil && cnt == 0 {
		return assessment.Assessment{}, assessment.ErrNotFound
	}
	return repo.unrow(row), nil
}

func (repo assessmentRepository) DeleteAssessmentsByID(ctx context.Context, ids ...string) error {
	_, err := repo.db.ExecContext(ctx, `DELETE FROM assessment WHERE id = ANY($1)`, pq.Array(ids))
	return errors.Wrap(err, "deleting assessments")
}

func (repo assessmentRepository) CreateQuestion(ctx context.Context, q assessment.Question) (assessment.Question, error) {
	q.ID = uuid.New().String()
	row := repo.questionRow(q)
	_, err := repo.db.NamedExecContext(ctx, `
		INSERT INTO question (id, assessment_id, position, prompt, kind, choices, correct_choices, accepted_answers, points)
		VALUES (:id, :assessment_id, :position, :prompt, :kind, :choices, :correct_choices, :accepted_answers, :points)`,
		row)
	if err != nil {
		return assessment.Question{}, errors.Wrap(err, "inserting question")
	}
	return repo.unrowQuestion(row), nil
}

func (repo assessmentRepository) GetQuestion(ctx context.Context, id string) (assessment.Question, error) {
	if _, err := uuid.Parse(id); err != nil {
		return assessment.Question{}, assessment.ErrQuestionNotFound
	}
	var row questionRow
	if err := repo.db.GetContext(ctx, &row, `SELECT * FROM question WHERE id = $1`, id); err != nil {
		return assessment.Question{}, repo.trapNoRowsErr(err, assessment.ErrQuestionNotFound, "finding question")
	}
	return repo.unrowQuestion(row), nil
}

func (repo assessmentRepository) QueryQuestions(ctx context.Context, assessmentID string) ([]assessment.Question, error) {
	var rows []questionRow
	err := repo.db.SelectContext(ctx, &rows,
		`SELECT * FROM question WHERE assessment_id = $1 ORDER BY position ASC`, assessmentID)
	if err != nil {
		return nil, errors.Wrap(err, "querying questions")
	}

	questions := make([]assessment.Question, 0, len(rows))
	for _, row := range rows {
		questions = append(questions, repo.unrowQuestion(row))
	}
	return questions, nil
}

func (repo assessmentRepository) UpdateQuestion(ctx context.Context, q assessment.Question) (assessment.Question, error) {
	row := repo.questionRow(q)
	res, err := repo.db.NamedExecContext(ctx, `
		UPDATE question
		SET position = :position, prompt = :prompt, kind = :kind, choices = :choices,
		    correct_choices = :correct_choices, accepted_answers = :accepted_answers, points = :points
		WHERE id = :id`,
		row)
	if err != nil {
		return assessment.Question{}, errors.Wrap(err, "updating question")
	}
	if cnt, err := res.RowsAffected(); err == nil && cnt == 0 {
		return assessment.Question{}, assessment.ErrQuestionNotFound
	}
	return repo.unrowQuestion(row), nil
}

func (repo assessmentRepository) DeleteQuestionsByID(ctx context.Context, ids ...string) error {
	_, err := repo.db.ExecContext(ctx, `DELETE FROM question WHERE id = ANY($1)`, pq.Array(ids))
	return errors.Wrap(err, "deleting questions")
}

func (repo assessmentRepository) CreateResult(ctx context.Context, res assessment.TestResult) (assessment.TestResult, error) {
	res.ID = uuid.New().String()
	row, err := repo.resultRow(res)
	if err != nil {
		return assessment.TestResult{}, err
	}
	_, err = repo.db.NamedExecContext(ctx, `
		INSERT INTO test_result (id, assessment_id, student_id, answers, score, max_score, started_at, submitted_at)
		VALUES (:id, :assessment_id, :student_id, :answers, :score, :max_score, :started_at, :submitted_at)`,
		row)
	if err != nil {
		// two racing submits both pass the service's GetResult check; the
		// UNIQUE (assessment_id, student_id) loser still means "already submitted"
		if pqErr, ok := errors.Cause(err).(*pq.Error); ok && pqErr.Code == uniqueViolation {
			return assessment.TestResult{}, assessment.ErrAlreadySubmitted
		}
		return assessment.TestResult{}, errors.Wrap(err, "inserting test result")
	}
	return repo.unrowResult(row)
}

func (repo assessmentRepository) GetResult(ctx context.Context, assessmentID, studentID string) (assessment.TestResult, error) {
	var row resultRow
	err := repo.db.GetContext(ctx, &row,
		`SELECT * FROM test_result WHERE assessment_id = $1 AND student_id = $2`, assessmentID, studentID)
	if err != nil {
		return assessment.TestResult{}, repo.trapNoRowsErr(err, assessment.ErrResultNotFound, "finding test result")
	}
	return repo.unrowResult(row)
}

func (repo assessmentRepository) FilterResults(ctx context.Context, filter assessment.ResultFilter) ([]assessment.TestResult, error) {
	var (
		conds []string
		args  []interface{}
	)
	arg := func(val interface{}) string {
		args = append(args, val)
		return fmt.Sprintf("$%d", len(args))
	}

	if filter.AssessmentID != "" {
		conds = append(conds, "assessment_id = "+arg(filter.AssessmentID))
	}
	if filter.StudentID != "" {
		conds = append(conds, "student_id = "+arg(filter.StudentID))
	}

	query := `SELECT * FROM test_result`
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY submitted_at DESC"

	var rows []resultRow
	if err := repo.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, errors.Wrap(err, "querying test results")
	}

	results := make([]assessment.TestResult, 0, len(rows))
	for _, row := range rows {
		res, err := repo.unrowResult(row)
		if err != nil {
			return nil, err
		}
		results = append(results, res)
	}
	return results, nil
}
