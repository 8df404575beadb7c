package course

import (
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/somahq/soma/core"
)

// Course statuses
const (
	StatusDraft     = "draft"
	StatusPublished = "published"
	StatusArchived  = "archived"
)

// statusRank orders the course lifecycle; transitions only move forward.
var statusRank = map[string]int{
	StatusDraft:     1,
	StatusPublished: 2,
	StatusArchived:  3,
}

// CanTransition reports whether a course may move from one status to the next.
func CanTransition(from, to string) bool {
	fr, ok := statusRank[from]
	if !ok {
		return false
	}
	tr, ok := statusRank[to]
	if !ok {
		return false
	}
	return tr == fr+1
}

type Course struct {
	ID          string    `json:"id"`
	Code        string    `json:"code"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	TeacherID   string    `json:"teacher_id"`
	Status      string    `json:"status"`
	CreatedAt   time.Time `json:"created_at"` // UTC
	UpdatedAt   time.Time `json:"updated_at"` // UTC
}

func (c *Course) IsPublished() bool { return c.Status == StatusPublished }

type Lesson struct {
	ID        string        `json:"id"`
	CourseID  string        `json:"course_id"`
	Position  int           `json:"position"`
	Title     string        `json:"title"`
	Content   string        `json:"content"`
	VideoURL  string        `json:"video_url,omitempty"`
	Duration  time.Duration `json:"duration,omitempty"`
	CreatedAt time.Time     `json:"created_at"` // UTC
	UpdatedAt time.Time     `json:"updated_at"` // UTC
}

type Enrollment struct {
	CourseID   string    `json:"course_id"`
	StudentID  string    `json:"student_id"`
	EnrolledAt time.Time `json:"enrolled_at"` // UTC
}

// NewCourse contains information needed to create a new Course.
type NewCourse struct {
	Code        string `json:"code" validate:"required,min=2,alphanum_"`
	Title       string `json:"title" validate:"required"`
	Description string `json:"description"`
	TeacherID   string `json:"teacher_id" validate:"omitempty,uuid4"`
}

func (nc *NewCourse) Validate(validate *validator.Validate, svc *Service) error {
	nc.Code = core.CleanString(nc.Code, true /* lower */)
	nc.Title = core.CleanString(nc.Title)
	nc.Description = core.CleanString(nc.Description)

	if err := validate.Struct(nc); err != nil {
		return err
	}
	return svc.CheckCodeUniqueness(nc.Code)
}

// UpdateCourse defines what information may be provided to modify an existing Course.
type UpdateCourse struct {
	Code        string `json:"code" validate:"omitempty,min=2,alphanum_"`
	Title       string `json:"title"`
	Description string `json:"description"`
	TeacherID   string `json:"teacher_id" validate:"omitempty,uuid4"`
}

func (uc *UpdateCourse) Validate(origCrs Course, validate *validator.Validate, svc *Service) error {
	code := core.CleanString(uc.Code, true /* lower */)
	if code != "" {
		uc.Code = code
	} else {
		uc.Code = origCrs.Code
	}

	title := core.CleanString(uc.Title)
	if title != "" {
		uc.Title = title
	} else {
		uc.Title = origCrs.Title
	}
	uc.Description = core.CleanString(uc.Description)

	if err := validate.Struct(uc); err != nil {
		return err
	}
	return svc.CheckCodeUniqueness(uc.Code, origCrs)
}

// NewLesson contains information needed to create a new Lesson.
type NewLesson struct {
	Title    string        `json:"title" validate:"required"`
	Content  string        `json:"content"`
	VideoURL string        `json:"video_url" validate:"omitempty,url"`
	Duration time.Duration `json:"duration" validate:"omitempty,min=0"`
	Position int           `json:"position" validate:"omitempty,min=0"`
}

func (nl *NewLesson) Validate(validate *validator.Validate) error {
	nl.Title = core.CleanString(nl.Title)
	return validate.Struct(nl)
}

// UpdateLesson defines what information may be provided to modify an existing Lesson.
type UpdateLesson struct {
	Title    string        `json:"title"`
	Content  string        `json:"content"`
	VideoURL string        `json:"video_url" validate:"omitempty,url"`
	Duration time.Duration `json:"duration" validate:"omitempty,min=0"`
	Position *int          `json:"position" validate:"omitempty,min=0"`
}

func (ul *UpdateLesson) Validate(origLsn Lesson, validate *validator.Validate) error {
	title := core.CleanString(ul.Title)
	if title != "" {
		ul.Title = title
	} else {
		ul.Title = origLsn.Title
	}
	return validate.Struct(ul)
}

// QueryFilter applies an AND operation on its set fields.
// Search does a case-insensitive match on one of Code or Title.
type QueryFilter struct {
	Search    string `query:"search"`
	Status    string `query:"status"`
	TeacherID string `query:"teacher_id"`
	StudentID string `query:"-"` // courses the student is enrolled in
}

func (qf *QueryFilter) Clean() {
	qf.Search = core.CleanString(qf.Search)
	qf.Status = core.CleanString(qf.Status, true /* lower */)
}
