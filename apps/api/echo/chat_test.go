package echoapi

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/somahq/soma/core"
	"github.com/somahq/soma/core/chat"
	"github.com/somahq/soma/core/user"
)

type stubGenerator struct {
	answer string
	calls  int
}

func (g *stubGenerator) Generate(_ context.Context, _, _ string) (string, error) {
	g.calls++
	return g.answer, nil
}

func (g *stubGenerator) Stream(_ context.Context, _, _ string, onChunk func(string) error) (string, error) {
	g.calls++
	for _, chunk := range strings.SplitAfter(g.answer, " ") {
		if err := onChunk(chunk); err != nil {
			return "", err
		}
	}
	return g.answer, nil
}

type stubRetriever struct{}

func (stubRetriever) Search(_ context.Context, _, _ string, _ int) ([]chat.Context, error) {
	return []chat.Context{{DocumentID: "doc-1", Title: "Notes", Content: "go is fun", Similarity: 0.9}}, nil
}

type memCache struct {
	entries map[string]string
}

func (c *memCache) Get(_ context.Context, key string) (string, bool, error) {
	v, ok := c.entries[key]
	return v, ok, nil
}

func (c *memCache) SetEX(_ context.Context, key, value string, _ time.Duration) error {
	c.entries[key] = value
	return nil
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...interface{}) {}
func (nopLogger) Info(string, ...interface{})  {}
func (nopLogger) Warn(string, ...interface{})  {}
func (nopLogger) Error(string, ...interface{}) {}
func (nopLogger) Fatal(string, ...interface{}) {}

func newChatServer(gen *stubGenerator) Server {
	svc := chat.NewService(gen, stubRetriever{}, &memCache{entries: make(map[string]string)}, nopLogger{}, core.Conf)
	return NewServer("", nil, &Deps{ChatSvc: svc})
}

func chatToken(t *testing.T) string {
	t.Helper()
	return getToken(t, user.User{
		ID:       "5a2890ba-7a82-45d7-b2a3-1a6f1a27ef45",
		Username: "herostu",
		Roles:    []string{user.RoleStudent},
	})
}

func Test_chatApi_ask(t *testing.T) {
	gen := &stubGenerator{answer: "Go is a compiled language."}
	srv := newChatServer(gen)
	token := chatToken(t)

	body := []byte(`{"session_id": "s-1", "query": "what is Go?"}`)

	t.Run("auth required", func(t *testing.T) {
		req, rec := newRequest(http.MethodPost, "/v1/chat", body)
		srv.ServeHTTP(rec, req)
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("failed! code = %v; want %v", rec.Code, http.StatusUnauthorized)
		}
	})

	t.Run("answers and caches", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodPost, "/v1/chat", token, body)
		srv.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("failed! code = %v; body = %s", rec.Code, rec.Body.String())
		}
		var res chat.Response
		if err := json.Unmarshal(rec.Body.Bytes(), &res); err != nil {
			t.Fatalf("unmarshalling response: %v", err)
		}
		if res.Answer != gen.answer || res.Cached {
			t.Errorf("response = %+v", res)
		}
		if len(res.Sources) != 1 || res.Sources[0].DocumentID != "doc-1" {
			t.Errorf("sources = %+v", res.Sources)
		}

		// same question again comes from the cache
		req, rec = newAuthRequest(http.MethodPost, "/v1/chat", token, body)
		srv.ServeHTTP(rec, req)
		if err := json.Unmarshal(rec.Body.Bytes(), &res); err != nil {
			t.Fatalf("unmarshalling response: %v", err)
		}
		if !res.Cached {
			t.Error("expected a cached response")
		}
		if gen.calls != 1 {
			t.Errorf("generator calls = %d; want 1", gen.calls)
		}
	})

	t.Run("query required", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodPost, "/v1/chat", token, []byte(`{"session_id": "s-1"}`))
		srv.ServeHTTP(rec, req)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("failed! code = %v; want %v", rec.Code, http.StatusBadRequest)
		}
	})
}

func Test_chatApi_stream(t *testing.T) {
	gen := &stubGenerator{answer: "Go is fun"}
	srv := newChatServer(gen)
	token := chatToken(t)

	req, rec := newAuthRequest(http.MethodPost, "/v1/chat/stream", token,
		[]byte(`{"session_id": "s-1", "query": "is Go fun?"}`))
	srv.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("failed! code = %v; body = %s", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/event-stream") {
		t.Errorf("content type = %q", ct)
	}

	body := rec.Body.String()
	if !strings.Contains(body, "event: chunk") {
		t.Errorf("expected chunk events in %q", body)
	}
	if !strings.Contains(body, "event: done") {
		t.Errorf("expected a done event in %q", body)
	}

	// the done event carries the full answer
	var done chat.Response
	for _, block := range strings.Split(body, "\n\n") {
		if !strings.Contains(block, "event: done") {
			continue
		}
		for _, line := range strings.Split(block, "\n") {
			if data, ok := strings.CutPrefix(line, "data: "); ok {
				if err := json.Unmarshal([]byte(data), &done); err != nil {
					t.Fatalf("unmarshalling done event: %v", err)
				}
			}
		}
	}
	if done.Answer != gen.answer {
		t.Errorf("done.answer = %q; want %q", done.Answer, gen.answer)
	}
}

func Test_chatApi_rateLimit(t *testing.T) {
	gen := &stubGenerator{answer: "ok"}
	srv := newChatServer(gen)
	token := chatToken(t)

	var limited bool
	for i := 0; i < 20; i++ {
		req, rec := newAuthRequest(http.MethodPost, "/v1/chat", token,
			[]byte(`{"session_id": "s-1", "query": "spam"}`))
		srv.ServeHTTP(rec, req)
		if rec.Code == http.StatusTooManyRequests {
			limited = true
			break
		}
	}
	if !limited {
		t.Error("expected the rate limiter to kick in")
	}
}
