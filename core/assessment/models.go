package assessment

import (
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/somahq/soma/core"
)

// Question kinds
const (
	KindSingle   = "single"   // one correct choice
	KindMultiple = "multiple" // exact set of correct choices
	KindText     = "text"     // free text, matched against accepted answers
)

// SubmitGracePeriod is how long after DueAt a submission is still accepted.
const SubmitGracePeriod = 5 * time.Minute

type Assessment struct {
	ID            string        `json:"id"`
	CourseID      string        `json:"course_id"`
	Title         string        `json:"title"`
	Description   string        `json:"description"`
	DueAt         time.Time     `json:"due_at"` // UTC; zero = no deadline
	DurationLimit time.Duration `json:"duration_limit,omitempty"`
	MaxScore      float64       `json:"max_score"`
	IsPublished   bool          `json:"is_published"`
	CreatedAt     time.Time     `json:"created_at"` // UTC
	UpdatedAt     time.Time     `json:"updated_at"` // UTC
}

type Question struct {
	ID           string   `json:"id"`
	AssessmentID string   `json:"assessment_id"`
	Position     int      `json:"position"`
	Prompt       string   `json:"prompt"`
	Kind         string   `json:"kind"`
	Choices      []string `json:"choices,omitempty"`

	// answer key; never serialized to students
	CorrectChoices  []int    `json:"correct_choices,omitempty"`
	AcceptedAnswers []string `json:"accepted_answers,omitempty"`

	Points float64 `json:"points"`
}

// Public returns a copy of the question with the answer key stripped.
func (q Question) Public() Question {
	q.CorrectChoices = nil
	q.AcceptedAnswers = nil
	return q
}

type Answer struct {
	QuestionID      string `json:"question_id" validate:"required,uuid4"`
	SelectedChoices []int  `json:"selected_choices,omitempty"`
	Text            string `json:"text,omitempty"`
}

type TestResult struct {
	ID           string    `json:"id"`
	AssessmentID string    `json:"assessment_id"`
	StudentID    string    `json:"student_id"`
	Answers      []Answer  `json:"answers"`
	Score        float64   `json:"score"`
	MaxScore     float64   `json:"max_score"`
	StartedAt    time.Time `json:"started_at"` // UTC
	SubmittedAt  time.Time `json:"submitted_at"`         // UTC
}

// NewAssessment contains information needed to create a new Assessment.
type NewAssessment struct {
	CourseID      string        `json:"course_id" validate:"required,uuid4"`
	Title         string        `json:"title" validate:"required"`
	Description   string        `json:"description"`
	DueAt         time.Time     `json:"due_at"`
	DurationLimit time.Duration `json:"duration_limit" validate:"omitempty,min=0"`
}

func (na *NewAssessment) Validate(validate *validator.Validate) error {
	na.Title = core.CleanString(na.Title)
	na.Description = core.CleanString(na.Description)
	return validate.Struct(na)
}

// UpdateAssessment defines what information may be provided to modify an existing Assessment.
type UpdateAssessment struct {
	Title         string        `json:"title"`
	Description   string        `json:"description"`
	DueAt         *time.Time    `json:"due_at"`
	DurationLimit time.Duration `json:"duration_limit" validate:"omitempty,min=0"`
}

func (ua *UpdateAssessment) Validate(origAsm Assessment, validate *validator.Validate) error {
	title := core.CleanString(ua.Title)
	if title != "" {
		ua.Title = title
	} else {
		ua.Title = origAsm.Title
	}
	return validate.Struct(ua)
}

// NewQuestion contains information needed to create a new Question.
type NewQuestion struct {
	Prompt          string   `json:"prompt" validate:"required"`
	Kind            string   `json:"kind" validate:"required,oneof=single multiple text"`
	Choices         []string `json:"choices" validate:"required_unless=Kind text"`
	CorrectChoices  []int    `json:"correct_choices" validate:"required_unless=Kind text"`
	AcceptedAnswers []string `json:"accepted_answers" validate:"required_if=Kind text"`
	Points          float64  `json:"points" validate:"required,gt=0"`
	Position        int      `json:"position" validate:"omitempty,min=0"`
}

func (nq *NewQuestion) Validate(validate *validator.Validate) error {
	nq.Prompt = core.CleanString(nq.Prompt)
	if err := validate.Struct(nq); err != nil {
		return err
	}
	for _, idx := range nq.CorrectChoices {
		if idx < 0 || idx >= len(nq.Choices) {
			return core.NewValidationError(nil, core.FieldError{
				Field: "correct_choices", Error: "choice index out of range",
			})
		}
	}
	if nq.Kind == KindSingle && len(nq.CorrectChoices) != 1 {
		return core.NewValidationError(nil, core.FieldError{
			Field: "correct_choices", Error: "single choice questions need exactly one correct choice",
		})
	}
	return nil
}

// SubmitRequest is a student's answer sheet for an assessment.
type SubmitRequest struct {
	Answers   []Answer  `json:"answers" validate:"required,min=1,dive"`
	StartedAt time.Time `json:"started_at"`
}

func (sr *SubmitRequest) Validate(validate *validator.Validate) error {
	return validate.Struct(sr)
}

// QueryFilter applies an AND operation on its set fields.
type QueryFilter struct {
	CourseID    string `query:"course_id"`
	Search      string `query:"search"`
	IsPublished *bool  `query:"is_published"`
}

func (qf *QueryFilter) Clean() {
	qf.Search = core.CleanString(qf.Search)
}

// ResultFilter selects test results.
type ResultFilter struct {
	AssessmentID string `query:"assessment_id"`
	StudentID    string `query:"student_id"`
}
