package cachesvc

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/somahq/soma/core"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	conf := core.TestConfig()
	conf.Cache.UpstashURL = srv.URL
	conf.Cache.UpstashToken = "test-token"
	return NewClient(conf)
}

func decodeCommand(t *testing.T, r *http.Request) []interface{} {
	t.Helper()
	var command []interface{}
	if err := json.NewDecoder(r.Body).Decode(&command); err != nil {
		t.Fatalf("decoding command: %v", err)
	}
	return command
}

func TestGet(t *testing.T) {
	t.Run("hit", func(t *testing.T) {
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			if got := r.Header.Get("Authorization"); got != "Bearer test-token" {
				t.Errorf("Authorization = %q", got)
			}
			command := decodeCommand(t, r)
			if len(command) != 2 || command[0] != "GET" || command[1] != "answer" {
				t.Errorf("command = %v", command)
			}
			_, _ = w.Write([]byte(`{"result":"42"}`))
		})

		value, ok, err := client.Get(context.Background(), "answer")
		if err != nil {
			t.Fatalf("Get() failed: %v", err)
		}
		if !ok || value != "42" {
			t.Errorf("Get() = %q, %v", value, ok)
		}
	})

	t.Run("miss", func(t *testing.T) {
		client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte(`{"result":null}`))
		})

		_, ok, err := client.Get(context.Background(), "missing")
		if err != nil {
			t.Fatalf("Get() failed: %v", err)
		}
		if ok {
			t.Error("Get() reported a hit for a miss")
		}
	})

	t.Run("redis error", func(t *testing.T) {
		client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"error":"invalid token"}`))
		})

		if _, _, err := client.Get(context.Background(), "k"); err == nil {
			t.Fatal("Get() should surface redis errors")
		}
	})
}

func TestSetEX(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		command := decodeCommand(t, r)
		want := []interface{}{"SET", "k", "v", "EX", "60"}
		if len(command) != len(want) {
			t.Fatalf("command = %v", command)
		}
		for i := range want {
			if command[i] != want[i] {
				t.Errorf("command[%d] = %v, want %v", i, command[i], want[i])
			}
		}
		_, _ = w.Write([]byte(`{"result":"OK"}`))
	})

	if err := client.SetEX(context.Background(), "k", "v", time.Minute); err != nil {
		t.Fatalf("SetEX() failed: %v", err)
	}
}

func TestIncr(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"result":3}`))
	})

	n, err := client.Incr(context.Background(), "counter")
	if err != nil {
		t.Fatalf("Incr() failed: %v", err)
	}
	if n != 3 {
		t.Errorf("Incr() = %d, want 3", n)
	}
}

func TestUnconfiguredCacheIsNoop(t *testing.T) {
	client := NewClient(core.TestConfig())

	if _, ok, err := client.Get(context.Background(), "k"); err != nil || ok {
		t.Errorf("Get() = %v, %v; want miss without error", ok, err)
	}
	if err := client.SetEX(context.Background(), "k", "v", time.Minute); err != nil {
		t.Errorf("SetEX() failed: %v", err)
	}
}
