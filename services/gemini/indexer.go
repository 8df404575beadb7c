package geminisvc

import (
	"bytes"
	"context"
	"io"
	"strings"
	"time"

	"google.golang.org/genai"

	"github.com/somahq/soma/core"
	"github.com/somahq/soma/core/library"
	"github.com/somahq/soma/core/notification"
	"github.com/somahq/soma/storage/blob"
	"github.com/somahq/soma/storage/vector"
)

// Indexer sweeps library documents through the indexing lifecycle:
// pending documents are uploaded to the provider and chunked into the
// vector store, processing documents are polled until the provider
// reports them active or failed.
type Indexer struct {
	library  *library.Service
	notifier *notification.Service
	client   *Client
	blobs    blob.Storage
	vectors  *vector.Store
	logger   core.Logger
	interval time.Duration
}

func NewIndexer(
	librarySvc *library.Service,
	notifier *notification.Service,
	client *Client,
	blobs blob.Storage,
	vectors *vector.Store,
	logger core.Logger,
	interval time.Duration,
) *Indexer {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &Indexer{
		library:  librarySvc,
		notifier: notifier,
		client:   client,
		blobs:    blobs,
		vectors:  vectors,
		logger:   logger,
		interval: interval,
	}
}

// Run sweeps on a fixed interval until the context is cancelled.
func (ix *Indexer) Run(ctx context.Context) {
	ticker := time.NewTicker(ix.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			ix.Sweep(ctx)
		}
	}
}

// Sweep runs one indexing pass.
func (ix *Indexer) Sweep(ctx context.Context) {
	if docs, err := ix.library.QueryPending(ctx); err != nil {
		ix.logger.Error("querying pending documents failed", err)
	} else {
		for _, doc := range docs {
			ix.processPending(ctx, doc)
		}
	}

	if docs, err := ix.library.QueryProcessing(ctx); err != nil {
		ix.logger.Error("querying processing documents failed", err)
	} else {
		for _, doc := range docs {
			ix.pollProcessing(ctx, doc)
		}
	}
}

func (ix *Indexer) processPending(ctx context.Context, doc library.Document) {
	rc, err := ix.blobs.Download(ctx, doc.StorageKey)
	if err != nil {
		ix.fail(ctx, doc, "reading stored file: "+err.Error())
		return
	}
	content, err := io.ReadAll(rc)
	_ = rc.Close()
	if err != nil {
		ix.fail(ctx, doc, "reading stored file: "+err.Error())
		return
	}

	f, err := ix.client.UploadFile(ctx, bytes.NewReader(content), doc.Filename, doc.ContentType)
	if err != nil {
		ix.fail(ctx, doc, "uploading to provider: "+err.Error())
		return
	}

	if _, err = ix.library.MarkProcessing(ctx, doc.ID, f.URI, f.Name); err != nil {
		ix.logger.Error("marking document processing failed", err, doc.ID)
		return
	}

	// chunk text content locally so retrieval can quote it
	if isTextual(doc.ContentType) {
		if _, err = ix.vectors.IndexDocument(ctx, doc.ID, string(content)); err != nil {
			ix.fail(ctx, doc, "chunking content: "+err.Error())
		}
	}
}

func (ix *Indexer) pollProcessing(ctx context.Context, doc library.Document) {
	f, err := ix.client.GetFile(ctx, doc.AIFileName)
	if err != nil {
		ix.logger.Warn("polling provider file failed", err, doc.ID)
		return
	}

	switch f.State {
	case genai.FileStateActive:
		if _, err = ix.library.MarkActive(ctx, doc.ID); err != nil {
			ix.logger.Error("marking document active failed", err, doc.ID)
			return
		}
		ix.notifyIndexed(ctx, doc)
	case genai.FileStateFailed:
		reason := "provider indexing failed"
		if f.Error != nil && f.Error.Message != "" {
			reason = f.Error.Message
		}
		ix.fail(ctx, doc, reason)
	default:
		// still processing; check again next sweep
	}
}

func (ix *Indexer) fail(ctx context.Context, doc library.Document, reason string) {
	ix.logger.Warn("document indexing failed", doc.ID, reason)
	if _, err := ix.library.MarkFailed(ctx, doc.ID, reason); err != nil {
		ix.logger.Error("marking document failed failed", err, doc.ID)
	}
}

func (ix *Indexer) notifyIndexed(ctx context.Context, doc library.Document) {
	if ix.notifier == nil || doc.OwnerID == "" {
		return
	}
	_, err := ix.notifier.Notify(ctx, doc.OwnerID, notification.KindDocumentIndexed,
		"Document indexed", doc.Title+" is ready for AI chat", doc.ID)
	if err != nil {
		ix.logger.Warn("notifying document owner failed", err, doc.ID)
	}
}

func isTextual(contentType string) bool {
	if strings.HasPrefix(contentType, "text/") {
		return true
	}
	switch contentType {
	case "application/json", "application/xml", "application/x-ndjson":
		return true
	}
	return false
}
