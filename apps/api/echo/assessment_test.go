package echoapi

import (
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/somahq/soma/core/assessment"
	"github.com/somahq/soma/core/course"
	"github.com/somahq/soma/core/notification"
	"github.com/somahq/soma/core/user"
)

func setupAssessment(t *testing.T) (teacher, student user.User, crs course.Course, asm assessment.Assessment) {
	t.Helper()
	db.Reset()

	teacher = createUser(t, "Teacher", "teacher", "teacher@test.cd", "", []string{user.RoleTeacher}, true)
	student = createUser(t, "Hero", "herostu", "hero@test.cd", "", []string{user.RoleStudent}, true)
	crs = createCourse(t, "go101", "Intro to Go", teacher.ID, course.StatusPublished)

	var err error
	asm, err = asmSvc.Create(t.Context(), assessment.NewAssessment{CourseID: crs.ID, Title: "Quiz 1"})
	if err != nil {
		t.Fatalf("creating assessment: %v", err)
	}
	return teacher, student, crs, asm
}

func addQuestion(t *testing.T, token, assessmentID string, nq assessment.NewQuestion) assessment.Question {
	t.Helper()
	req, rec := newAuthRequest(http.MethodPost, "/v1/assessments/"+assessmentID+"/questions", token, marshallObj(t, nq))
	app.ServeHTTP(rec, req)
	if rec.Code != http.StatusCreated {
		t.Fatalf("addQuestion failed! code = %v; body = %s", rec.Code, rec.Body.String())
	}
	var q assessment.Question
	if err := json.Unmarshal(rec.Body.Bytes(), &q); err != nil {
		t.Fatalf("unmarshalling question: %v", err)
	}
	return q
}

func Test_assessmentApi_publishFreezesMaxScore(t *testing.T) {
	teacher, _, _, asm := setupAssessment(t)
	token := getToken(t, teacher)

	addQuestion(t, token, asm.ID, assessment.NewQuestion{
		Prompt: "2 + 2 ?", Kind: assessment.KindSingle,
		Choices: []string{"3", "4"}, CorrectChoices: []int{1}, Points: 2,
	})
	addQuestion(t, token, asm.ID, assessment.NewQuestion{
		Prompt: "Name the zero value of a pointer", Kind: assessment.KindText,
		AcceptedAnswers: []string{"nil"}, Points: 3,
	})

	req, rec := newAuthRequest(http.MethodPost, "/v1/assessments/"+asm.ID+"/publish", token)
	app.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("failed! code = %v; body = %s", rec.Code, rec.Body.String())
	}

	var got assessment.Assessment
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("unmarshalling assessment: %v", err)
	}
	if !got.IsPublished {
		t.Error("expected assessment to be published")
	}
	if got.MaxScore != 5 {
		t.Errorf("max_score = %v; want 5", got.MaxScore)
	}
}

func Test_assessmentApi_questionsHideAnswerKey(t *testing.T) {
	teacher, student, _, asm := setupAssessment(t)
	teacherToken := getToken(t, teacher)

	addQuestion(t, teacherToken, asm.ID, assessment.NewQuestion{
		Prompt: "2 + 2 ?", Kind: assessment.KindSingle,
		Choices: []string{"3", "4"}, CorrectChoices: []int{1}, Points: 2,
	})

	t.Run("hidden until published", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodGet, "/v1/assessments/"+asm.ID+"/questions", getToken(t, student))
		app.ServeHTTP(rec, req)
		if rec.Code != http.StatusNotFound {
			t.Fatalf("failed! code = %v; want %v", rec.Code, http.StatusNotFound)
		}
	})

	if _, err := asmSvc.Publish(t.Context(), asm.ID); err != nil {
		t.Fatalf("publishing: %v", err)
	}

	t.Run("student gets stripped questions", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodGet, "/v1/assessments/"+asm.ID+"/questions", getToken(t, student))
		app.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("failed! code = %v; body = %s", rec.Code, rec.Body.String())
		}
		var questions []assessment.Question
		if err := json.Unmarshal(rec.Body.Bytes(), &questions); err != nil {
			t.Fatalf("unmarshalling questions: %v", err)
		}
		if len(questions) != 1 {
			t.Fatalf("len(questions) = %d; want 1", len(questions))
		}
		if questions[0].CorrectChoices != nil || questions[0].AcceptedAnswers != nil {
			t.Errorf("answer key leaked: %+v", questions[0])
		}
	})

	t.Run("teacher gets the answer key", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodGet, "/v1/assessments/"+asm.ID+"/questions", teacherToken)
		app.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("failed! code = %v; body = %s", rec.Code, rec.Body.String())
		}
		var questions []assessment.Question
		if err := json.Unmarshal(rec.Body.Bytes(), &questions); err != nil {
			t.Fatalf("unmarshalling questions: %v", err)
		}
		if len(questions) != 1 || len(questions[0].CorrectChoices) != 1 {
			t.Errorf("expected answer key; got %+v", questions)
		}
	})
}

func Test_assessmentApi_submit(t *testing.T) {
	teacher, student, _, asm := setupAssessment(t)
	teacherToken := getToken(t, teacher)
	studentToken := getToken(t, student)

	q1 := addQuestion(t, teacherToken, asm.ID, assessment.NewQuestion{
		Prompt: "2 + 2 ?", Kind: assessment.KindSingle,
		Choices: []string{"3", "4"}, CorrectChoices: []int{1}, Points: 2,
	})
	q2 := addQuestion(t, teacherToken, asm.ID, assessment.NewQuestion{
		Prompt: "Name the zero value of a pointer", Kind: assessment.KindText,
		AcceptedAnswers: []string{"nil"}, Points: 3,
	})

	submitBody := marshallObj(t, assessment.SubmitRequest{Answers: []assessment.Answer{
		{QuestionID: q1.ID, SelectedChoices: []int{1}},
		{QuestionID: q2.ID, Text: "NIL"},
	}})

	t.Run("unpublished rejects submit", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodPost, "/v1/assessments/"+asm.ID+"/submit", studentToken, submitBody)
		app.ServeHTTP(rec, req)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("failed! code = %v; want %v", rec.Code, http.StatusBadRequest)
		}
	})

	if _, err := asmSvc.Publish(t.Context(), asm.ID); err != nil {
		t.Fatalf("publishing: %v", err)
	}

	t.Run("graded submit", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodPost, "/v1/assessments/"+asm.ID+"/submit", studentToken, submitBody)
		app.ServeHTTP(rec, req)
		if rec.Code != http.StatusCreated {
			t.Fatalf("failed! code = %v; body = %s", rec.Code, rec.Body.String())
		}
		var res assessment.TestResult
		if err := json.Unmarshal(rec.Body.Bytes(), &res); err != nil {
			t.Fatalf("unmarshalling result: %v", err)
		}
		if res.Score != 5 || res.MaxScore != 5 {
			t.Errorf("score = %v/%v; want 5/5", res.Score, res.MaxScore)
		}

		notifications, err := notifSvc.Query(t.Context(), notification.QueryFilter{UserID: student.ID})
		if err != nil {
			t.Fatalf("querying notifications: %v", err)
		}
		if len(notifications) != 1 || notifications[0].Kind != notification.KindAssessmentGraded {
			t.Errorf("notifications = %+v; want one %q", notifications, notification.KindAssessmentGraded)
		}
	})

	t.Run("second submit rejected", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodPost, "/v1/assessments/"+asm.ID+"/submit", studentToken, submitBody)
		app.ServeHTTP(rec, req)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("failed! code = %v; want %v", rec.Code, http.StatusBadRequest)
		}
	})

	t.Run("own result", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodGet, "/v1/assessments/"+asm.ID+"/results/me", studentToken)
		app.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("failed! code = %v; body = %s", rec.Code, rec.Body.String())
		}
	})

	t.Run("teacher lists results", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodGet, "/v1/assessments/"+asm.ID+"/results", teacherToken)
		app.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("failed! code = %v; body = %s", rec.Code, rec.Body.String())
		}
		var results []assessment.TestResult
		if err := json.Unmarshal(rec.Body.Bytes(), &results); err != nil {
			t.Fatalf("unmarshalling results: %v", err)
		}
		if len(results) != 1 {
			t.Errorf("len(results) = %d; want 1", len(results))
		}
	})

	t.Run("student cannot list results", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodGet, "/v1/assessments/"+asm.ID+"/results", studentToken)
		app.ServeHTTP(rec, req)
		if rec.Code != http.StatusForbidden {
			t.Fatalf("failed! code = %v; want %v", rec.Code, http.StatusForbidden)
		}
	})
}

func Test_assessmentApi_submitDeadlines(t *testing.T) {
	teacher, _, crs, _ := setupAssessment(t)
	teacherToken := getToken(t, teacher)

	// one assessment per case; each only needs a single question to answer
	newPublished := func(t *testing.T, na assessment.NewAssessment) (asmID string, body []byte) {
		t.Helper()
		na.CourseID = crs.ID
		asm, err := asmSvc.Create(t.Context(), na)
		if err != nil {
			t.Fatalf("creating assessment: %v", err)
		}
		q := addQuestion(t, teacherToken, asm.ID, assessment.NewQuestion{
			Prompt: "2 + 2 ?", Kind: assessment.KindSingle,
			Choices: []string{"3", "4"}, CorrectChoices: []int{1}, Points: 2,
		})
		if _, err := asmSvc.Publish(t.Context(), asm.ID); err != nil {
			t.Fatalf("publishing: %v", err)
		}
		return asm.ID, marshallObj(t, assessment.SubmitRequest{Answers: []assessment.Answer{
			{QuestionID: q.ID, SelectedChoices: []int{1}},
		}})
	}

	now := time.Now().UTC()
	tests := []struct {
		name     string
		na       assessment.NewAssessment
		started  time.Time
		wantCode int
	}{
		{
			name:     "due but within grace is accepted",
			na:       assessment.NewAssessment{Title: "Grace", DueAt: now.Add(-assessment.SubmitGracePeriod / 2)},
			wantCode: http.StatusCreated,
		},
		{
			name:     "past due date and grace is rejected",
			na:       assessment.NewAssessment{Title: "Late", DueAt: now.Add(-assessment.SubmitGracePeriod - time.Minute)},
			wantCode: http.StatusBadRequest,
		},
		{
			name:     "within time limit is accepted",
			na:       assessment.NewAssessment{Title: "Quick", DurationLimit: time.Hour},
			started:  now.Add(-30 * time.Minute),
			wantCode: http.StatusCreated,
		},
		{
			name:     "time limit exceeded is rejected",
			na:       assessment.NewAssessment{Title: "Slow", DurationLimit: 30 * time.Minute},
			started:  now.Add(-time.Hour),
			wantCode: http.StatusBadRequest,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			student := createUser(t, "Student "+tt.name, "stu-"+tt.na.Title, tt.na.Title+"@test.cd", "", []string{user.RoleStudent}, true)
			asmID, body := newPublished(t, tt.na)
			if !tt.started.IsZero() {
				var sr assessment.SubmitRequest
				if err := json.Unmarshal(body, &sr); err != nil {
					t.Fatalf("unmarshalling submit body: %v", err)
				}
				sr.StartedAt = tt.started
				body = marshallObj(t, sr)
			}

			req, rec := newAuthRequest(http.MethodPost, "/v1/assessments/"+asmID+"/submit", getToken(t, student), body)
			app.ServeHTTP(rec, req)
			if rec.Code != tt.wantCode {
				t.Errorf("failed! code = %v, want %v; body = %s", rec.Code, tt.wantCode, rec.Body.String())
			}
		})
	}
}

func Test_assessmentApi_studentsOnlySeePublished(t *testing.T) {
	_, student, _, _ := setupAssessment(t)

	req, rec := newAuthRequest(http.MethodGet, "/v1/assessments", getToken(t, student))
	app.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("failed! code = %v; body = %s", rec.Code, rec.Body.String())
	}
	var assessments []assessment.Assessment
	if err := json.Unmarshal(rec.Body.Bytes(), &assessments); err != nil {
		t.Fatalf("unmarshalling assessments: %v", err)
	}
	if len(assessments) != 0 {
		t.Errorf("unpublished assessments leaked: %+v", assessments)
	}
}
