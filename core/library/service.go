package library

import (
	"context"
	"errors"
	"time"

	"github.com/somahq/soma/core"
)

var (
	// errors
	ErrNotFound  = errors.New("document not found")
	ErrBadState  = errors.New("invalid index state transition")
	ErrNotActive = errors.New("document is not indexed")
)

type (
	Repository interface {
		CreateDocument(ctx context.Context, doc Document) (Document, error)
		GetDocument(ctx context.Context, id string) (Document, error)
		// FilterDocuments applies AND operation on available QueryFilter fields.
		FilterDocuments(ctx context.Context, filter QueryFilter, ordering []core.DBOrdering) ([]Document, error)
		UpdateDocument(ctx context.Context, doc Document) (Document, error)
		DeleteDocumentsByID(ctx context.Context, ids ...string) error
	}

	// FileForgetter removes a provider-side AI file; implemented by the
	// gemini service. A nil forgetter skips provider clean-up.
	FileForgetter interface {
		DeleteFile(ctx context.Context, aiFileName string) error
	}

	Service struct {
		repo      Repository
		forgetter FileForgetter
		logger    core.Logger
	}
)

func NewService(repo Repository, forgetter FileForgetter, logger core.Logger) *Service {
	return &Service{repo: repo, forgetter: forgetter, logger: logger}
}

// Register records an uploaded document's metadata; indexing starts out pending.
func (svc *Service) Register(ctx context.Context, ownerID string, nd NewDocument) (Document, error) {
	doc := Document{
		Title:       nd.Title,
		Description: nd.Description,
		Filename:    nd.Filename,
		ContentType: nd.ContentType,
		SizeBytes:   nd.SizeBytes,
		StorageKey:  nd.StorageKey,
		OwnerID:     ownerID,
		CourseID:    nd.CourseID,
		IndexState:  IndexPending,
		UploadedAt:  time.Now().UTC(),
	}
	return svc.repo.CreateDocument(ctx, doc)
}

func (svc *Service) GetByID(ctx context.Context, id string) (Document, error) {
	return svc.repo.GetDocument(ctx, id)
}

func (svc *Service) Query(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering) ([]Document, error) {
	if filter == nil {
		filter = new(QueryFilter)
	}
	return svc.repo.FilterDocuments(ctx, *filter, ordering)
}

func (svc *Service) Update(ctx context.Context, id string, ud UpdateDocument) (Document, error) {
	doc, err := svc.repo.GetDocument(ctx, id)
	if err != nil {
		return Document{}, err
	}
	doc.Title = ud.Title
	if ud.Description != "" {
		doc.Description = ud.Description
	}
	if ud.CourseID != "" {
		doc.CourseID = ud.CourseID
	}
	return svc.repo.UpdateDocument(ctx, doc)
}

// Delete removes documents and forgets their provider-side AI files.
func (svc *Service) Delete(ctx context.Context, ids ...string) error {
	for _, id := range ids {
		doc, err := svc.repo.GetDocument(ctx, id)
		if err != nil {
			if err == ErrNotFound {
				continue
			}
			return err
		}
		if svc.forgetter != nil && doc.AIFileName != "" {
			if err := svc.forgetter.DeleteFile(ctx, doc.AIFileName); err != nil && svc.logger != nil {
				// provider clean-up is best effort; the local record still goes
				svc.logger.Warn("forgetting AI file failed", err)
			}
		}
	}
	return svc.repo.DeleteDocumentsByID(ctx, ids...)
}

// Indexing lifecycle; driven by the AI service's poller.

func (svc *Service) MarkProcessing(ctx context.Context, id, aiFileID, aiFileName string) (Document, error) {
	doc, err := svc.repo.GetDocument(ctx, id)
	if err != nil {
		return Document{}, err
	}
	if doc.IndexState != IndexPending && doc.IndexState != IndexFailed {
		return Document{}, ErrBadState
	}
	doc.IndexState = IndexProcessing
	doc.IndexError = ""
	doc.AIFileID = aiFileID
	doc.AIFileName = aiFileName
	return svc.repo.UpdateDocument(ctx, doc)
}

func (svc *Service) MarkActive(ctx context.Context, id string) (Document, error) {
	doc, err := svc.repo.GetDocument(ctx, id)
	if err != nil {
		return Document{}, err
	}
	if doc.IndexState != IndexProcessing {
		return Document{}, ErrBadState
	}
	doc.IndexState = IndexActive
	doc.IndexError = ""
	doc.IndexedAt = time.Now().UTC()
	return svc.repo.UpdateDocument(ctx, doc)
}

func (svc *Service) MarkFailed(ctx context.Context, id, reason string) (Document, error) {
	doc, err := svc.repo.GetDocument(ctx, id)
	if err != nil {
		return Document{}, err
	}
	doc.IndexState = IndexFailed
	doc.IndexError = reason
	return svc.repo.UpdateDocument(ctx, doc)
}

// QueryPending returns documents awaiting upload to the AI provider.
func (svc *Service) QueryPending(ctx context.Context) ([]Document, error) {
	return svc.repo.FilterDocuments(ctx, QueryFilter{IndexState: IndexPending}, nil)
}

// QueryProcessing returns documents whose provider indexing is in flight.
func (svc *Service) QueryProcessing(ctx context.Context) ([]Document, error) {
	return svc.repo.FilterDocuments(ctx, QueryFilter{IndexState: IndexProcessing}, nil)
}
