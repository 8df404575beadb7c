package vector

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
	"github.com/pkg/errors"

	"github.com/somahq/soma/core"
	"github.com/somahq/soma/core/chat"
)

// Embedder turns text into an embedding vector; implemented by the gemini service.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Store keeps document chunks with their embeddings in postgres (pgvector)
// and serves similarity search for retrieval.
//
// Store is safe for concurrent use by multiple goroutines.
type Store struct {
	pool     *pgxpool.Pool
	embedder Embedder
	logger   core.Logger
}

func NewStore(pool *pgxpool.Pool, embedder Embedder, logger core.Logger) *Store {
	return &Store{pool: pool, embedder: embedder, logger: logger}
}

// Open connects a pgx pool to the app database.
func Open(ctx context.Context, connURL string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, connURL)
	if err != nil {
		return nil, errors.Wrap(err, "opening vector store pool")
	}
	if err = pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, errors.Wrap(err, "pinging vector store")
	}
	return pool, nil
}

// IndexDocument chunks the document content, embeds each chunk and replaces
// any previously stored chunks for the document.
func (s *Store) IndexDocument(ctx context.Context, documentID, content string) (int, error) {
	chunks := SplitText(content, DefaultChunkSize, DefaultChunkOverlap)
	if len(chunks) == 0 {
		return 0, errors.New("document has no indexable content")
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, errors.Wrap(err, "starting chunk transaction")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err = tx.Exec(ctx, `DELETE FROM document_chunk WHERE document_id = $1`, documentID); err != nil {
		return 0, errors.Wrap(err, "clearing old chunks")
	}

	for pos, chunk := range chunks {
		embedding, err := s.embedder.Embed(ctx, chunk)
		if err != nil {
			return 0, errors.Wrapf(err, "embedding chunk %d", pos)
		}
		_, err = tx.Exec(ctx, `
			INSERT INTO document_chunk (id, document_id, position, content, embedding)
			VALUES ($1, $2, $3, $4, $5)`,
			uuid.New().String(), documentID, pos, chunk, pgvector.NewVector(embedding))
		if err != nil {
			return 0, errors.Wrapf(err, "inserting chunk %d", pos)
		}
	}

	if err = tx.Commit(ctx); err != nil {
		return 0, errors.Wrap(err, "committing chunks")
	}

	s.logger.Debug("indexed document", documentID, len(chunks))
	return len(chunks), nil
}

// Search embeds the query and returns the topK most similar chunks from
// active documents, optionally scoped to a course.
func (s *Store) Search(ctx context.Context, query, courseID string, topK int) ([]chat.Context, error) {
	embedding, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, errors.Wrap(err, "embedding query")
	}

	sql := `
		SELECT c.document_id, d.title, c.content, 1 - (c.embedding <=> $1) AS similarity
		FROM document_chunk c
		JOIN library_document d ON d.id = c.document_id
		WHERE d.index_state = 'active'`
	args := []interface{}{pgvector.NewVector(embedding)}
	if courseID != "" {
		sql += ` AND (d.course_id = $3 OR d.course_id IS NULL)`
		args = append(args, topK, courseID)
	} else {
		args = append(args, topK)
	}
	sql += ` ORDER BY c.embedding <=> $1 LIMIT $2`

	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, errors.Wrap(err, "searching chunks")
	}
	defer rows.Close()

	var contexts []chat.Context
	for rows.Next() {
		var c chat.Context
		if err = rows.Scan(&c.DocumentID, &c.Title, &c.Content, &c.Similarity); err != nil {
			return nil, errors.Wrap(err, "scanning chunk")
		}
		contexts = append(contexts, c)
	}
	if err = rows.Err(); err != nil {
		return nil, errors.Wrap(err, "reading chunks")
	}
	return contexts, nil
}

// DeleteByDocument drops all chunks of a document.
func (s *Store) DeleteByDocument(ctx context.Context, documentID string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM document_chunk WHERE document_id = $1`, documentID)
	return errors.Wrap(err, "deleting chunks")
}
