package chat

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/somahq/soma/core"
)

type Request struct {
	SessionID string `json:"session_id" validate:"required"`
	Query     string `json:"query" validate:"required"`
	CourseID  string `json:"course_id" validate:"omitempty,uuid4"`
}

func (r *Request) Validate(validate *validator.Validate) error {
	r.Query = core.CleanString(r.Query)
	return validate.Struct(r)
}

// Source identifies a retrieved document chunk that grounded the answer.
type Source struct {
	DocumentID string  `json:"document_id"`
	Title      string  `json:"title"`
	Similarity float64 `json:"similarity"`
}

type Response struct {
	SessionID string   `json:"session_id"`
	Answer    string   `json:"answer"`
	Sources   []Source `json:"sources,omitempty"`
	Cached    bool     `json:"cached"`
}

// Context is a retrieved chunk of an indexed document.
type Context struct {
	DocumentID string
	Title      string
	Content    string
	Similarity float64
}

// CacheKey derives a deterministic cache key for a chat answer. Queries
// are case-folded and whitespace-collapsed so trivially different
// phrasings share an entry.
func CacheKey(model, courseID, query string) string {
	norm := strings.Join(strings.Fields(strings.ToLower(query)), " ")
	sum := sha256.Sum256([]byte(model + "|" + courseID + "|" + norm))
	return "soma:chat:" + hex.EncodeToString(sum[:])
}
