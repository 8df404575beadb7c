package echoapi

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/somahq/soma/core/course"
	"github.com/somahq/soma/core/notification"
	"github.com/somahq/soma/core/user"
)

func Test_courseApi_create(t *testing.T) {
	db.Reset()

	teacher := createUser(t, "Teacher", "teacher", "teacher@test.cd", "", []string{user.RoleTeacher}, true)
	student := createUser(t, "Hero", "herostu", "hero@test.cd", "", []string{user.RoleStudent}, true)

	tests := []httpTest{
		{
			name: "teacher creates", token: getToken(t, teacher),
			body:     []byte(`{"code": "go101", "title": "Intro to Go"}`),
			wantCode: http.StatusCreated,
		},
		{
			name: "student forbidden", token: getToken(t, student),
			body:     []byte(`{"code": "go102", "title": "More Go"}`),
			wantCode: http.StatusForbidden, wantData: marshallObj(t, errForbidden),
		},
		{
			name: "duplicate code", token: getToken(t, teacher),
			body:     []byte(`{"code": "go101", "title": "Intro to Go again"}`),
			wantCode: http.StatusBadRequest,
			wantData: marshallObj(t, map[string]string{"code": course.ErrCodeExists.Error()}),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, rec := newAuthRequest(http.MethodPost, "/v1/courses", tt.token, tt.body)
			app.ServeHTTP(rec, req)
			checkCodeAndData(t, tt, rec)

			if rec.Code == http.StatusCreated {
				var crs course.Course
				if err := json.Unmarshal(rec.Body.Bytes(), &crs); err != nil {
					t.Fatalf("unmarshalling course: %v", err)
				}
				if crs.TeacherID != teacher.ID {
					t.Errorf("teacher_id = %q; want %q", crs.TeacherID, teacher.ID)
				}
				if crs.Status != course.StatusDraft {
					t.Errorf("status = %q; want %q", crs.Status, course.StatusDraft)
				}
			}
		})
	}
}

func Test_courseApi_transitions(t *testing.T) {
	db.Reset()

	teacher := createUser(t, "Teacher", "teacher", "teacher@test.cd", "", []string{user.RoleTeacher}, true)
	rival := createUser(t, "Rival", "rival1", "rival@test.cd", "", []string{user.RoleTeacher}, true)
	crs := createCourse(t, "go101", "Intro to Go", teacher.ID, course.StatusDraft)

	t.Run("rival teacher cannot publish", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodPost, "/v1/courses/"+crs.ID+"/publish", getToken(t, rival))
		app.ServeHTTP(rec, req)
		if rec.Code != http.StatusForbidden {
			t.Fatalf("failed! code = %v; want %v", rec.Code, http.StatusForbidden)
		}
	})

	t.Run("cannot archive a draft", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodPost, "/v1/courses/"+crs.ID+"/archive", getToken(t, teacher))
		app.ServeHTTP(rec, req)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("failed! code = %v; want %v", rec.Code, http.StatusBadRequest)
		}
	})

	t.Run("publish then archive", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodPost, "/v1/courses/"+crs.ID+"/publish", getToken(t, teacher))
		app.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("publish failed! code = %v; body = %s", rec.Code, rec.Body.String())
		}

		req, rec = newAuthRequest(http.MethodPost, "/v1/courses/"+crs.ID+"/archive", getToken(t, teacher))
		app.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("archive failed! code = %v; body = %s", rec.Code, rec.Body.String())
		}

		var got course.Course
		if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
			t.Fatalf("unmarshalling course: %v", err)
		}
		if got.Status != course.StatusArchived {
			t.Errorf("status = %q; want %q", got.Status, course.StatusArchived)
		}
	})
}

func Test_courseApi_enroll(t *testing.T) {
	db.Reset()

	teacher := createUser(t, "Teacher", "teacher", "teacher@test.cd", "", []string{user.RoleTeacher}, true)
	student := createUser(t, "Hero", "herostu", "hero@test.cd", "", []string{user.RoleStudent}, true)
	published := createCourse(t, "go101", "Intro to Go", teacher.ID, course.StatusPublished)
	draft := createCourse(t, "go201", "Go Internals", teacher.ID, course.StatusDraft)

	studentToken := getToken(t, student)

	t.Run("enroll on published", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodPost, "/v1/courses/"+published.ID+"/enroll", studentToken)
		app.ServeHTTP(rec, req)
		if rec.Code != http.StatusCreated {
			t.Fatalf("failed! code = %v; body = %s", rec.Code, rec.Body.String())
		}
	})

	t.Run("double enrollment rejected", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodPost, "/v1/courses/"+published.ID+"/enroll", studentToken)
		app.ServeHTTP(rec, req)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("failed! code = %v; want %v", rec.Code, http.StatusBadRequest)
		}
	})

	t.Run("draft not enrollable", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodPost, "/v1/courses/"+draft.ID+"/enroll", studentToken)
		app.ServeHTTP(rec, req)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("failed! code = %v; want %v", rec.Code, http.StatusBadRequest)
		}
	})

	t.Run("teacher cannot enroll", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodPost, "/v1/courses/"+published.ID+"/enroll", getToken(t, teacher))
		app.ServeHTTP(rec, req)
		if rec.Code != http.StatusForbidden {
			t.Fatalf("failed! code = %v; want %v", rec.Code, http.StatusForbidden)
		}
	})

	t.Run("my courses", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodGet, "/v1/courses/mine", studentToken)
		app.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("failed! code = %v; body = %s", rec.Code, rec.Body.String())
		}
		var courses []course.Course
		if err := json.Unmarshal(rec.Body.Bytes(), &courses); err != nil {
			t.Fatalf("unmarshalling courses: %v", err)
		}
		if len(courses) != 1 || courses[0].ID != published.ID {
			t.Errorf("courses = %+v; want just %q", courses, published.ID)
		}
	})

	t.Run("unenroll", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodDelete, "/v1/courses/"+published.ID+"/enroll", studentToken)
		app.ServeHTTP(rec, req)
		if rec.Code != http.StatusNoContent {
			t.Fatalf("failed! code = %v; body = %s", rec.Code, rec.Body.String())
		}
	})
}

func Test_courseApi_publishNotifiesEnrolled(t *testing.T) {
	db.Reset()

	teacher := createUser(t, "Teacher", "teacher", "teacher@test.cd", "", []string{user.RoleTeacher}, true)
	student := createUser(t, "Hero", "herostu", "hero@test.cd", "", []string{user.RoleStudent}, true)
	crs := createCourse(t, "go101", "Intro to Go", teacher.ID, course.StatusDraft)

	// enrollment is created directly; the API only allows it post-publish
	if _, err := crsRepo.CreateEnrollment(t.Context(), course.Enrollment{CourseID: crs.ID, StudentID: student.ID}); err != nil {
		t.Fatalf("creating enrollment: %v", err)
	}

	req, rec := newAuthRequest(http.MethodPost, "/v1/courses/"+crs.ID+"/publish", getToken(t, teacher))
	app.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("failed! code = %v; body = %s", rec.Code, rec.Body.String())
	}

	notifications, err := notifSvc.Query(t.Context(), notification.QueryFilter{UserID: student.ID})
	if err != nil {
		t.Fatalf("querying notifications: %v", err)
	}
	if len(notifications) != 1 || notifications[0].Kind != notification.KindCoursePublished {
		t.Errorf("notifications = %+v; want one %q", notifications, notification.KindCoursePublished)
	}
}

func Test_courseApi_lessons(t *testing.T) {
	db.Reset()

	teacher := createUser(t, "Teacher", "teacher", "teacher@test.cd", "", []string{user.RoleTeacher}, true)
	student := createUser(t, "Hero", "herostu", "hero@test.cd", "", []string{user.RoleStudent}, true)
	crs := createCourse(t, "go101", "Intro to Go", teacher.ID, course.StatusPublished)

	teacherToken := getToken(t, teacher)

	t.Run("add lessons", func(t *testing.T) {
		for _, title := range []string{"Hello World", "Types"} {
			req, rec := newAuthRequest(http.MethodPost, "/v1/courses/"+crs.ID+"/lessons", teacherToken,
				[]byte(`{"title": "`+title+`"}`))
			app.ServeHTTP(rec, req)
			if rec.Code != http.StatusCreated {
				t.Fatalf("failed! code = %v; body = %s", rec.Code, rec.Body.String())
			}
		}
	})

	t.Run("student cannot add", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodPost, "/v1/courses/"+crs.ID+"/lessons", getToken(t, student),
			[]byte(`{"title": "Sneaky"}`))
		app.ServeHTTP(rec, req)
		if rec.Code != http.StatusForbidden {
			t.Fatalf("failed! code = %v; want %v", rec.Code, http.StatusForbidden)
		}
	})

	t.Run("positions assigned in order", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodGet, "/v1/courses/"+crs.ID+"/lessons", getToken(t, student))
		app.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("failed! code = %v; body = %s", rec.Code, rec.Body.String())
		}
		var lessons []course.Lesson
		if err := json.Unmarshal(rec.Body.Bytes(), &lessons); err != nil {
			t.Fatalf("unmarshalling lessons: %v", err)
		}
		if len(lessons) != 2 {
			t.Fatalf("len(lessons) = %d; want 2", len(lessons))
		}
		if lessons[0].Position != 1 || lessons[1].Position != 2 {
			t.Errorf("positions = %d, %d; want 1, 2", lessons[0].Position, lessons[1].Position)
		}
	})
}
