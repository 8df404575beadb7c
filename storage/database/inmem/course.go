package inmemdb

import (
	"context"
	"sort"

	"github.com/google/uuid"

	"github.com/somahq/soma/core"
	"github.com/somahq/soma/core/course"
)

type courseRepository struct {
	db *courseTable
}

var _ course.Repository = (*courseRepository)(nil) // interface compliance check

func NewCourseRepository(db *DB) *courseRepository {
	return &courseRepository{db: db.course}
}

func enrollmentKey(courseID, studentID string) string { return courseID + "/" + studentID }

func (repo *courseRepository) CheckCodeUniqueness(_ context.Context, code string, excludedCourses ...course.Course) error {
	repo.db.RLock()
	defer repo.db.RUnlock()

	excluded := make(map[string]bool, len(excludedCourses))
	for _, crs := range excludedCourses {
		excluded[crs.ID] = true
	}
	for _, crs := range repo.db.table {
		if crs.Code == code && !excluded[crs.ID] {
			return course.ErrCodeExists
		}
	}
	return nil
}

func (repo *courseRepository) CreateCourse(_ context.Context, crs course.Course) (course.Course, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	crs.ID = uuid.New().String()
	repo.db.table[crs.ID] = &crs
	return crs, nil
}

func (repo *courseRepository) GetCourse(_ context.Context, id string) (course.Course, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if crs, ok := repo.db.table[id]; ok {
		return *crs, nil
	}
	return course.Course{}, course.ErrNotFound
}

func (repo *courseRepository) FilterCourses(_ context.Context, filter course.QueryFilter, ordering []core.DBOrdering) ([]course.Course, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	var courses []course.Course
	for _, crs := range repo.db.table {
		if filter.Search != "" && !(containsFold(crs.Code, filter.Search) || containsFold(crs.Title, filter.Search)) {
			continue
		}
		if filter.Status != "" && crs.Status != filter.Status {
			continue
		}
		if filter.TeacherID != "" && crs.TeacherID != filter.TeacherID {
			continue
		}
		if filter.StudentID != "" {
			if _, ok := repo.db.enrollments[enrollmentKey(crs.ID, filter.StudentID)]; !ok {
				continue
			}
		}
		courses = append(courses, *crs)
	}

	sort.Slice(courses, func(i, j int) bool { return courses[i].CreatedAt.After(courses[j].CreatedAt) })
	return courses, nil
}

func (repo *courseRepository) UpdateCourse(_ context.Context, crs course.Course) (course.Course, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	if _, ok := repo.db.table[crs.ID]; !ok {
		return course.Course{}, course.ErrNotFound
	}
	repo.db.table[crs.ID] = &crs
	return crs, nil
}

func (repo *courseRepository) DeleteCoursesByID(_ context.Context, ids ...string) error {
	repo.db.Lock()
	defer repo.db.Unlock()
	for _, id := range ids {
		delete(repo.db.table, id)
		for key, lsn := range repo.db.lessons {
			if lsn.CourseID == id {
				delete(repo.db.lessons, key)
			}
		}
		for key, enr := range repo.db.enrollments {
			if enr.CourseID == id {
				delete(repo.db.enrollments, key)
			}
		}
	}
	return nil
}

func (repo *courseRepository) CreateLesson(_ context.Context, lsn course.Lesson) (course.Lesson, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	lsn.ID = uuid.New().String()
	repo.db.lessons[lsn.ID] = &lsn
	return lsn, nil
}

func (repo *courseRepository) GetLesson(_ context.Context, id string) (course.Lesson, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if lsn, ok := repo.db.lessons[id]; ok {
		return *lsn, nil
	}
	return course.Lesson{}, course.ErrLessonNotFound
}

func (repo *courseRepository) QueryLessons(_ context.Context, courseID string) ([]course.Lesson, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	var lessons []course.Lesson
	for _, lsn := range repo.db.lessons {
		if lsn.CourseID == courseID {
			lessons = append(lessons, *lsn)
		}
	}
	sort.Slice(lessons, func(i, j int) bool { return lessons[i].Position < lessons[j].Position })
	return lessons, nil
}

func (repo *courseRepository) UpdateLesson(_ context.Context, lsn course.Lesson) (course.Lesson, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	if _, ok := repo.db.lessons[lsn.ID]; !ok {
		return course.Lesson{}, course.ErrLessonNotFound
	}
	repo.db.lessons[lsn.ID] = &lsn
	return lsn, nil
}

func (repo *courseRepository) DeleteLessonsByID(_ context.Context, ids ...string) error {
	repo.db.Lock()
	defer repo.db.Unlock()
	for _, id := range ids {
		delete(repo.db.lessons, id)
	}
	return nil
}

func (repo *courseRepository) CreateEnrollment(_ context.Context, enr course.Enrollment) (course.Enrollment, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	repo.db.enrollments[enrollmentKey(enr.CourseID, enr.StudentID)] = &enr
	return enr, nil
}

func (repo *courseRepository) EnrollmentExists(_ context.Context, courseID, studentID string) (bool, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	_, ok := repo.db.enrollments[enrollmentKey(courseID, studentID)]
	return ok, nil
}

func (repo *courseRepository) QueryEnrollments(_ context.Context, courseID string) ([]course.Enrollment, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	var enrollments []course.Enrollment
	for _, enr := range repo.db.enrollments {
		if enr.CourseID == courseID {
			enrollments = append(enrollments, *enr)
		}
	}
	sort.Slice(enrollments, func(i, j int) bool { return enrollments[i].EnrolledAt.Before(enrollments[j].EnrolledAt) })
	return enrollments, nil
}

func (repo *courseRepository) DeleteEnrollment(_ context.Context, courseID, studentID string) error {
	repo.db.Lock()
	defer repo.db.Unlock()
	delete(repo.db.enrollments, enrollmentKey(courseID, studentID))
	return nil
}
