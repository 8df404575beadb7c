package echoapi

import (
	"bytes"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/somahq/soma/core/library"
	"github.com/somahq/soma/core/user"
)

func uploadDocument(t *testing.T, token, title, filename, content string) *httptest.ResponseRecorder {
	t.Helper()

	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	if title != "" {
		if err := w.WriteField("title", title); err != nil {
			t.Fatalf("writing title field: %v", err)
		}
	}
	fw, err := w.CreateFormFile("file", filename)
	if err != nil {
		t.Fatalf("creating form file: %v", err)
	}
	if _, err := io.WriteString(fw, content); err != nil {
		t.Fatalf("writing file content: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("closing multipart writer: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/v1/library", &body)
	req.Header.Set("Content-Type", w.FormDataContentType())
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	app.ServeHTTP(rec, req)
	return rec
}

func Test_libraryApi_upload(t *testing.T) {
	db.Reset()

	teacher := createUser(t, "Teacher", "teacher", "teacher@test.cd", "", []string{user.RoleTeacher}, true)
	student := createUser(t, "Hero", "herostu", "hero@test.cd", "", []string{user.RoleStudent}, true)

	t.Run("student forbidden", func(t *testing.T) {
		rec := uploadDocument(t, getToken(t, student), "Notes", "notes.txt", "hello")
		if rec.Code != http.StatusForbidden {
			t.Fatalf("failed! code = %v; want %v", rec.Code, http.StatusForbidden)
		}
	})

	t.Run("teacher uploads", func(t *testing.T) {
		rec := uploadDocument(t, getToken(t, teacher), "Syllabus", "syllabus.txt", "week 1: hello world")
		if rec.Code != http.StatusCreated {
			t.Fatalf("failed! code = %v; body = %s", rec.Code, rec.Body.String())
		}

		var doc library.Document
		if err := json.Unmarshal(rec.Body.Bytes(), &doc); err != nil {
			t.Fatalf("unmarshalling document: %v", err)
		}
		if doc.OwnerID != teacher.ID {
			t.Errorf("owner_id = %q; want %q", doc.OwnerID, teacher.ID)
		}
		if doc.IndexState != library.IndexPending {
			t.Errorf("index_state = %q; want %q", doc.IndexState, library.IndexPending)
		}

		// the stored blob is readable back
		req, drec := newAuthRequest(http.MethodGet, "/v1/library/"+doc.ID+"/download", getToken(t, student))
		app.ServeHTTP(drec, req)
		if drec.Code != http.StatusOK {
			t.Fatalf("download failed! code = %v; body = %s", drec.Code, drec.Body.String())
		}
		if drec.Body.String() != "week 1: hello world" {
			t.Errorf("download body = %q", drec.Body.String())
		}
	})

	t.Run("title defaults to filename", func(t *testing.T) {
		rec := uploadDocument(t, getToken(t, teacher), "", "handout.txt", "x")
		if rec.Code != http.StatusCreated {
			t.Fatalf("failed! code = %v; body = %s", rec.Code, rec.Body.String())
		}
		var doc library.Document
		if err := json.Unmarshal(rec.Body.Bytes(), &doc); err != nil {
			t.Fatalf("unmarshalling document: %v", err)
		}
		if doc.Title != "handout.txt" {
			t.Errorf("title = %q; want %q", doc.Title, "handout.txt")
		}
	})
}

func Test_libraryApi_updateAndDestroy(t *testing.T) {
	db.Reset()

	teacher := createUser(t, "Teacher", "teacher", "teacher@test.cd", "", []string{user.RoleTeacher}, true)
	rival := createUser(t, "Rival", "rival1", "rival@test.cd", "", []string{user.RoleTeacher}, true)
	admin := createUser(t, "Admin", "admin1", "admin@test.cd", "", []string{user.RoleAdmin}, true)

	rec := uploadDocument(t, getToken(t, teacher), "Syllabus", "syllabus.txt", "x")
	if rec.Code != http.StatusCreated {
		t.Fatalf("upload failed! code = %v; body = %s", rec.Code, rec.Body.String())
	}
	var doc library.Document
	if err := json.Unmarshal(rec.Body.Bytes(), &doc); err != nil {
		t.Fatalf("unmarshalling document: %v", err)
	}

	t.Run("non-owner cannot update", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodPut, "/v1/library/"+doc.ID, getToken(t, rival),
			[]byte(`{"title": "Mine now"}`))
		app.ServeHTTP(rec, req)
		if rec.Code != http.StatusForbidden {
			t.Fatalf("failed! code = %v; want %v", rec.Code, http.StatusForbidden)
		}
	})

	t.Run("owner updates", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodPut, "/v1/library/"+doc.ID, getToken(t, teacher),
			[]byte(`{"title": "Course Syllabus"}`))
		app.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("failed! code = %v; body = %s", rec.Code, rec.Body.String())
		}
	})

	t.Run("admin destroys", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodDelete, "/v1/library/"+doc.ID, getToken(t, admin))
		app.ServeHTTP(rec, req)
		if rec.Code != http.StatusNoContent {
			t.Fatalf("failed! code = %v; body = %s", rec.Code, rec.Body.String())
		}
		if _, err := docSvc.GetByID(t.Context(), doc.ID); err != library.ErrNotFound {
			t.Errorf("expected ErrNotFound; got %v", err)
		}
	})
}
