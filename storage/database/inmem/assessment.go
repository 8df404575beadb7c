package inmemdb

import (
	"context"
	"sort"

	"github.com/google/uuid"

	"github.com/somahq/soma/core"
	"github.com/somahq/soma/core/assessment"
)

type assessmentRepository struct {
	db *assessmentTable
}

var _ assessment.Repository = (*assessmentRepository)(nil) // interface compliance check

func NewAssessmentRepository(db *DB) *assessmentRepository {
	return &assessmentRepository{db: db.assessment}
}

func (repo *assessmentRepository) CreateAssessment(_ context.Context, asm assessment.Assessment) (assessment.Assessment, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	asm.ID = uuid.New().String()
	repo.db.table[asm.ID] = &asm
	return asm, nil
}

func (repo *assessmentRepository) GetAssessment(_ context.Context, id string) (assessment.Assessment, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if asm, ok := repo.db.table[id]; ok {
		return *asm, nil
	}
	return assessment.Assessment{}, assessment.ErrNotFound
}

func (repo *assessmentRepository) FilterAssessments(_ context.Context, filter assessment.QueryFilter, ordering []core.DBOrdering) ([]assessment.Assessment, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	var asms []assessment.Assessment
	for _, asm := range repo.db.table {
		if filter.CourseID != "" && asm.CourseID != filter.CourseID {
			continue
		}
		if filter.Search != "" && !containsFold(asm.Title, filter.Search) {
			continue
		}
		if filter.IsPublished != nil && asm.IsPublished != *filter.IsPublished {
			continue
		}
		asms = append(asms, *asm)
	}

	sort.Slice(asms, func(i, j int) bool { return asms[i].CreatedAt.After(asms[j].CreatedAt) })
	return asms, nil
}

func (repo *assessmentRepository) UpdateAssessment(_ context.Context, asm assessment.Assessment) (assessment.Assessment, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	if _, ok := repo.db.table[asm.ID]; !ok {
		return assessment.Assessment{}, assessment.ErrNotFound
	}
	repo.db.table[asm.ID] = &asm
	return asm, nil
}

func (repo *assessmentRepository) DeleteAssessmentsByID(_ context.Context, ids ...string) error {
	repo.db.Lock()
	defer repo.db.Unlock()
	for _, id := range ids {
		delete(repo.db.table, id)
		for key, q := range repo.db.questions {
			if q.AssessmentID == id {
				delete(repo.db.questions, key)
			}
		}
		for key, res := range repo.db.results {
			if res.AssessmentID == id {
				delete(repo.db.results, key)
			}
		}
	}
	return nil
}

func (repo *assessmentRepository) CreateQuestion(_ context.Context, q assessment.Question) (assessment.Question, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	q.ID = uuid.New().String()
	repo.db.questions[q.ID] = &q
	return q, nil
}

func (repo *assessmentRepository) GetQuestion(_ context.Context, id string) (assessment.Question, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if q, ok := repo.db.questions[id]; ok {
		return *q, nil
	}
	return assessment.Question{}, assessment.ErrQuestionNotFound
}

func (repo *assessmentRepository) QueryQuestions(_ context.Context, assessmentID string) ([]assessment.Question, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	var questions []assessment.Question
	for _, q := range repo.db.questions {
		if q.AssessmentID == assessmentID {
			questions = append(questions, *q)
		}
	}
	sort.Slice(questions, func(i, j int) bool { return questions[i].Position < questions[j].Position })
	return questions, nil
}

func (repo *assessmentRepository) UpdateQuestion(_ context.Context, q assessment.Question) (assessment.Question, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	if _, ok := repo.db.questions[q.ID]; !ok {
		return assessment.Question{}, assessment.ErrQuestionNotFound
	}
	repo.db.questions[q.ID] = &q
	return q, nil
}

func (repo *assessmentRepository) DeleteQuestionsByID(_ context.Context, ids ...string) error {
	repo.db.Lock()
	defer repo.db.Unlock()
	for _, id := range ids {
		delete(repo.db.questions, id)
	}
	return nil
}

func (repo *assessmentRepository) CreateResult(_ context.Context, res assessment.TestResult) (assessment.TestResult, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	// mirrors the UNIQUE (assessment_id, student_id) constraint
	for _, existing := range repo.db.results {
		if existing.AssessmentID == res.AssessmentID && existing.StudentID == res.StudentID {
			return assessment.TestResult{}, assessment.ErrAlreadySubmitted
		}
	}

	res.ID = uuid.New().String()
	repo.db.results[res.ID] = &res
	return res, nil
}

func (repo *assessmentRepository) GetResult(_ context.Context, assessmentID, studentID string) (assessment.TestResult, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	for _, res := range repo.db.results {
		if res.AssessmentID == assessmentID && res.StudentID == studentID {
			return *res, nil
		}
	}
	return assessment.TestResult{}, assessment.ErrResultNotFound
}

func (repo *assessmentRepository) FilterResults(_ context.Context, filter assessment.ResultFilter) ([]assessment.TestResult, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	var results []assessment.TestResult
	for _, res := range repo.db.results {
		if filter.AssessmentID != "" && res.AssessmentID != filter.AssessmentID {
			continue
		}
		if filter.StudentID != "" && res.StudentID != filter.StudentID {
			continue
		}
		results = append(results, *res)
	}

	sort.Slice(results, func(i, j int) bool { return results[i].SubmittedAt.After(results[j].SubmittedAt) })
	return results, nil
}
