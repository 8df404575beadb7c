package assessment

import (
	"context"
	"errors"
	"time"

	"github.com/somahq/soma/core"
)

var (
	// errors
	ErrNotFound         = errors.New("assessment not found")
	ErrQuestionNotFound = errors.New("question not found")
	ErrResultNotFound   = errors.New("test result not found")
	ErrNotPublished     = errors.New("assessment is not published")
	ErrAlreadySubmitted = errors.New("assessment already submitted")
	ErrSubmitClosed     = errors.New("assessment is past its due date")
	ErrTimeLimitPassed  = errors.New("assessment time limit exceeded")
)

type (
	Repository interface {
		CreateAssessment(ctx context.Context, asm Assessment) (Assessment, error)
		GetAssessment(ctx context.Context, id string) (Assessment, error)
		// FilterAssessments applies AND operation on available QueryFilter fields.
		FilterAssessments(ctx context.Context, filter QueryFilter, ordering []core.DBOrdering) ([]Assessment, error)
		UpdateAssessment(ctx context.Context, asm Assessment) (Assessment, error)
		DeleteAssessmentsByID(ctx context.Context, ids ...string) error

		CreateQuestion(ctx context.Context, q Question) (Question, error)
		GetQuestion(ctx context.Context, id string) (Question, error)
		QueryQuestions(ctx context.Context, assessmentID string) ([]Question, error)
		UpdateQuestion(ctx context.Context, q Question) (Question, error)
		DeleteQuestionsByID(ctx context.Context, ids ...string) error

		CreateResult(ctx context.Context, res TestResult) (TestResult, error)
		GetResult(ctx context.Context, assessmentID, studentID string) (TestResult, error)
		FilterResults(ctx context.Context, filter ResultFilter) ([]TestResult, error)
	}

	Service struct {
		repo Repository
	}
)

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

func (svc *Service) Create(ctx context.Context, na NewAssessment) (Assessment, error) {
	now := time.Now().UTC()
	asm := Assessment{
		CourseID:      na.CourseID,
		Title:         na.Title,
		Description:   na.Description,
		DueAt:         na.DueAt,
		DurationLimit: na.DurationLimit,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	return svc.repo.CreateAssessment(ctx, asm)
}

func (svc *Service) GetByID(ctx context.Context, id string) (Assessment, error) {
	return svc.repo.GetAssessment(ctx, id)
}

func (svc *Service) Query(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering) ([]Assessment, error) {
	if filter == nil {
		filter = new(QueryFilter)
	}
	return svc.repo.FilterAssessments(ctx, *filter, ordering)
}

func (svc *Service) Update(ctx context.Context, id string, ua UpdateAssessment) (Assessment, error) {
	asm, err := svc.repo.GetAssessment(ctx, id)
	if err != nil {
		return Assessment{}, err
	}
	asm.Title = ua.Title
	if ua.Description != "" {
		asm.Description = ua.Description
	}
	if ua.DueAt != nil {
		asm.DueAt = ua.DueAt.UTC()
	}
	if ua.DurationLimit != 0 {
		asm.DurationLimit = ua.DurationLimit
	}
	asm.UpdatedAt = time.Now().UTC()
	return svc.repo.UpdateAssessment(ctx, asm)
}

// Publish makes an assessment visible and submittable; MaxScore is frozen
// from the question points at publish time.
func (svc *Service) Publish(ctx context.Context, id string) (Assessment, error) {
	asm, err := svc.repo.GetAssessment(ctx, id)
	if err != nil {
		return Assessment{}, err
	}
	questions, err := svc.repo.QueryQuestions(ctx, id)
	if err != nil {
		return Assessment{}, err
	}
	var max float64
	for _, q := range questions {
		max += q.Points
	}
	asm.MaxScore = max
	asm.IsPublished = true
	asm.UpdatedAt = time.Now().UTC()
	return svc.repo.UpdateAssessment(ctx, asm)
}

func (svc *Service) Delete(ctx context.Context, ids ...string) error {
	return svc.repo.DeleteAssessmentsByID(ctx, ids...)
}

// Questions

func (svc *Service) AddQuestion(ctx context.Context, assessmentID string, nq NewQuestion) (Question, error) {
	if _, err := svc.repo.GetAssessment(ctx, assessmentID); err != nil {
		return Question{}, err
	}
	pos := nq.Position
	if pos == 0 {
		questions, err := svc.repo.QueryQuestions(ctx, assessmentID)
		if err != nil {
			return Question{}, err
		}
		pos = len(questions) + 1
	}
	q := Question{
		AssessmentID:    assessmentID,
		Position:        pos,
		Prompt:          nq.Prompt,
		Kind:            nq.Kind,
		Choices:         nq.Choices,
		CorrectChoices:  nq.CorrectChoices,
		AcceptedAnswers: nq.AcceptedAnswers,
		Points:          nq.Points,
	}
	return svc.repo.CreateQuestion(ctx, q)
}

// UpdateQuestion replaces a question's content; position is kept unless set.
func (svc *Service) UpdateQuestion(ctx context.Context, id string, nq NewQuestion) (Question, error) {
	q, err := svc.repo.GetQuestion(ctx, id)
	if err != nil {
		return Question{}, err
	}
	q.Prompt = nq.Prompt
	q.Kind = nq.Kind
	q.Choices = nq.Choices
	q.CorrectChoices = nq.CorrectChoices
	q.AcceptedAnswers = nq.AcceptedAnswers
	q.Points = nq.Points
	if nq.Position != 0 {
		q.Position = nq.Position
	}
	return svc.repo.UpdateQuestion(ctx, q)
}

func (svc *Service) QueryQuestions(ctx context.Context, assessmentID string) ([]Question, error) {
	return svc.repo.QueryQuestions(ctx, assessmentID)
}

// QueryPublicQuestions returns the questions with the answer key stripped.
func (svc *Service) QueryPublicQuestions(ctx context.Context, assessmentID string) ([]Question, error) {
	questions, err := svc.repo.QueryQuestions(ctx, assessmentID)
	if err != nil {
		return nil, err
	}
	public := make([]Question, 0, len(questions))
	for _, q := range questions {
		public = append(public, q.Public())
	}
	return public, nil
}

func (svc *Service) DeleteQuestions(ctx context.Context, ids ...string) error {
	return svc.repo.DeleteQuestionsByID(ctx, ids...)
}

// Submissions

// Submit grades a student's answer sheet and records the result.
// A student may submit at most once; results are immutable.
func (svc *Service) Submit(ctx context.Context, assessmentID, studentID string, sr SubmitRequest) (TestResult, error) {
	asm, err := svc.repo.GetAssessment(ctx, assessmentID)
	if err != nil {
		return TestResult{}, err
	}
	if !asm.IsPublished {
		return TestResult{}, core.NewValidationError(ErrNotPublished)
	}

	now := time.Now().UTC()
	if !asm.DueAt.IsZero() && now.After(asm.DueAt.Add(SubmitGracePeriod)) {
		return TestResult{}, core.NewValidationError(ErrSubmitClosed)
	}
	if asm.DurationLimit > 0 && !sr.StartedAt.IsZero() && now.After(sr.StartedAt.Add(asm.DurationLimit)) {
		return TestResult{}, core.NewValidationError(ErrTimeLimitPassed)
	}

	if _, err := svc.repo.GetResult(ctx, assessmentID, studentID); err == nil {
		return TestResult{}, core.NewValidationError(ErrAlreadySubmitted)
	} else if err != ErrResultNotFound {
		return TestResult{}, err
	}

	questions, err := svc.repo.QueryQuestions(ctx, assessmentID)
	if err != nil {
		return TestResult{}, err
	}
	score, maxScore := Grade(questions, sr.Answers)

	res := TestResult{
		AssessmentID: assessmentID,
		StudentID:    studentID,
		Answers:      sr.Answers,
		Score:        score,
		MaxScore:     maxScore,
		StartedAt:    sr.StartedAt,
		SubmittedAt:  now,
	}
	created, err := svc.repo.CreateResult(ctx, res)
	if err == ErrAlreadySubmitted {
		// racing submit lost to the repo's uniqueness constraint
		return TestResult{}, core.NewValidationError(ErrAlreadySubmitted)
	}
	return created, err
}

func (svc *Service) GetResult(ctx context.Context, assessmentID, studentID string) (TestResult, error) {
	return svc.repo.GetResult(ctx, assessmentID, studentID)
}

func (svc *Service) QueryResults(ctx context.Context, filter ResultFilter) ([]TestResult, error) {
	return svc.repo.FilterResults(ctx, filter)
}
