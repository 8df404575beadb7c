package notification

import "time"

// Notification kinds
const (
	KindCoursePublished     = "course_published"
	KindAssessmentPublished = "assessment_published"
	KindAssessmentGraded    = "assessment_graded"
	KindDocumentIndexed     = "document_indexed"
	KindSystem              = "system"
)

type Notification struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Kind      string    `json:"kind"`
	Title     string    `json:"title"`
	Body      string    `json:"body,omitempty"`
	Ref       string    `json:"ref,omitempty"` // related entity ID
	IsRead    bool      `json:"is_read"`
	CreatedAt time.Time `json:"created_at"`         // UTC
	ReadAt    time.Time `json:"read_at"`  // UTC
}

// QueryFilter applies an AND operation on its set fields.
type QueryFilter struct {
	UserID string `query:"-"`
	Kind   string `query:"kind"`
	IsRead *bool  `query:"is_read"`
}
