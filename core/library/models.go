package library

import (
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/somahq/soma/core"
)

// Index states of a library document's AI file-search lifecycle.
const (
	IndexPending    = "pending"    // registered, not yet uploaded to the AI provider
	IndexProcessing = "processing" // uploaded, provider is indexing
	IndexActive     = "active"     // indexed; participates in retrieval
	IndexFailed     = "failed"     // indexing failed; document stays visible
)

type Document struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Filename    string `json:"filename"`
	ContentType string `json:"content_type"`
	SizeBytes   int64  `json:"size_bytes"`
	StorageKey  string `json:"storage_key"`
	OwnerID     string `json:"owner_id"`
	CourseID    string `json:"course_id,omitempty"`

	IndexState string `json:"index_state"`
	IndexError string `json:"index_error,omitempty"`
	AIFileID   string `json:"-"`
	AIFileName string `json:"-"`

	UploadedAt time.Time `json:"uploaded_at"`           // UTC
	IndexedAt  time.Time `json:"indexed_at"`  // UTC
}

// IsIndexed reports whether the document participates in retrieval.
func (d *Document) IsIndexed() bool { return d.IndexState == IndexActive }

// NewDocument contains information needed to register an uploaded document.
type NewDocument struct {
	Title       string `json:"title" validate:"required"`
	Description string `json:"description"`
	Filename    string `json:"filename" validate:"required"`
	ContentType string `json:"content_type" validate:"required"`
	SizeBytes   int64  `json:"size_bytes" validate:"required,gt=0"`
	StorageKey  string `json:"storage_key" validate:"required"`
	CourseID    string `json:"course_id" validate:"omitempty,uuid4"`
}

func (nd *NewDocument) Validate(validate *validator.Validate) error {
	nd.Title = core.CleanString(nd.Title)
	nd.Description = core.CleanString(nd.Description)
	return validate.Struct(nd)
}

// UpdateDocument defines what metadata may be modified after upload.
type UpdateDocument struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	CourseID    string `json:"course_id" validate:"omitempty,uuid4"`
}

func (ud *UpdateDocument) Validate(origDoc Document, validate *validator.Validate) error {
	title := core.CleanString(ud.Title)
	if title != "" {
		ud.Title = title
	} else {
		ud.Title = origDoc.Title
	}
	ud.Description = core.CleanString(ud.Description)
	return validate.Struct(ud)
}

// QueryFilter applies an AND operation on its set fields.
// Search does a case-insensitive match on one of Title or Filename.
type QueryFilter struct {
	Search     string `query:"search"`
	CourseID   string `query:"course_id"`
	OwnerID    string `query:"owner_id"`
	IndexState string `query:"index_state"`
}

func (qf *QueryFilter) Clean() {
	qf.Search = core.CleanString(qf.Search)
	qf.IndexState = core.CleanString(qf.IndexState, true /* lower */)
}
