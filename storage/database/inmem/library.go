package inmemdb

import (
	"context"
	"sort"

	"github.com/google/uuid"

	"github.com/somahq/soma/core"
	"github.com/somahq/soma/core/library"
)

type documentRepository struct {
	db *libraryTable
}

var _ library.Repository = (*documentRepository)(nil) // interface compliance check

func NewDocumentRepository(db *DB) *documentRepository {
	return &documentRepository{db: db.library}
}

func (repo *documentRepository) CreateDocument(_ context.Context, doc library.Document) (library.Document, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	doc.ID = uuid.New().String()
	repo.db.table[doc.ID] = &doc
	return doc, nil
}

func (repo *documentRepository) GetDocument(_ context.Context, id string) (library.Document, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if doc, ok := repo.db.table[id]; ok {
		return *doc, nil
	}
	return library.Document{}, library.ErrNotFound
}

func (repo *documentRepository) FilterDocuments(_ context.Context, filter library.QueryFilter, ordering []core.DBOrdering) ([]library.Document, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	var docs []library.Document
	for _, doc := range repo.db.table {
		if filter.Search != "" && !(containsFold(doc.Title, filter.Search) || containsFold(doc.Filename, filter.Search)) {
			continue
		}
		if filter.CourseID != "" && doc.CourseID != filter.CourseID {
			continue
		}
		if filter.OwnerID != "" && doc.OwnerID != filter.OwnerID {
			continue
		}
		if filter.IndexState != "" && doc.IndexState != filter.IndexState {
			continue
		}
		docs = append(docs, *doc)
	}

	sort.Slice(docs, func(i, j int) bool { return docs[i].UploadedAt.After(docs[j].UploadedAt) })
	return docs, nil
}

func (repo *documentRepository) UpdateDocument(_ context.Context, doc library.Document) (library.Document, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	if _, ok := repo.db.table[doc.ID]; !ok {
		return library.Document{}, library.ErrNotFound
	}
	repo.db.table[doc.ID] = &doc
	return doc, nil
}

func (repo *documentRepository) DeleteDocumentsByID(_ context.Context, ids ...string) error {
	repo.db.Lock()
	defer repo.db.Unlock()
	for _, id := range ids {
		delete(repo.db.table, id)
	}
	return nil
}
