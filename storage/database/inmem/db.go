// Package inmemdb provides mutex-guarded in-memory repositories.
// It backs unit tests and local hacking; production uses the sqlx repositories.
package inmemdb

import (
	"sync"

	"github.com/somahq/soma/core/assessment"
	"github.com/somahq/soma/core/course"
	"github.com/somahq/soma/core/library"
	"github.com/somahq/soma/core/notification"
	"github.com/somahq/soma/core/user"
)

type (
	DB struct {
		user         *userTable
		course       *courseTable
		assessment   *assessmentTable
		library      *libraryTable
		notification *notificationTable
	}

	userTable struct {
		sync.RWMutex
		table map[string]*user.User
	}

	courseTable struct {
		sync.RWMutex
		table       map[string]*course.Course
		lessons     map[string]*course.Lesson
		enrollments map[string]*course.Enrollment // courseID + "/" + studentID
	}

	assessmentTable struct {
		sync.RWMutex
		table     map[string]*assessment.Assessment
		questions map[string]*assessment.Question
		results   map[string]*assessment.TestResult
	}

	libraryTable struct {
		sync.RWMutex
		table map[string]*library.Document
	}

	notificationTable struct {
		sync.RWMutex
		table map[string]*notification.Notification
	}
)

func Open() (*DB, error) {
	db := &DB{
		user: &userTable{table: make(map[string]*user.User)},
		course: &courseTable{
			table:       make(map[string]*course.Course),
			lessons:     make(map[string]*course.Lesson),
			enrollments: make(map[string]*course.Enrollment),
		},
		assessment: &assessmentTable{
			table:     make(map[string]*assessment.Assessment),
			questions: make(map[string]*assessment.Question),
			results:   make(map[string]*assessment.TestResult),
		},
		library:      &libraryTable{table: make(map[string]*library.Document)},
		notification: &notificationTable{table: make(map[string]*notification.Notification)},
	}
	return db, nil
}

// Reset drops all rows; tests call it between cases.
func (db *DB) Reset() {
	db.user.Lock()
	db.user.table = make(map[string]*user.User)
	db.user.Unlock()

	db.course.Lock()
	db.course.table = make(map[string]*course.Course)
	db.course.lessons = make(map[string]*course.Lesson)
	db.course.enrollments = make(map[string]*course.Enrollment)
	db.course.Unlock()

	db.assessment.Lock()
	db.assessment.table = make(map[string]*assessment.Assessment)
	db.assessment.questions = make(map[string]*assessment.Question)
	db.assessment.results = make(map[string]*assessment.TestResult)
	db.assessment.Unlock()

	db.library.Lock()
	db.library.table = make(map[string]*library.Document)
	db.library.Unlock()

	db.notification.Lock()
	db.notification.table = make(map[string]*notification.Notification)
	db.notification.Unlock()
}
