// Package cachesvc talks to Upstash Redis over its REST API.
// A small REST client keeps the AI service cache free of a TCP
// connection pool; Upstash only exposes HTTPS anyway.
package cachesvc

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/pkg/errors"

	"github.com/somahq/soma/core"
	"github.com/somahq/soma/core/chat"
)

type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

var _ chat.Cache = (*Client)(nil)

func NewClient(conf *core.Config) *Client {
	return &Client{
		baseURL: conf.Cache.UpstashURL,
		token:   conf.Cache.UpstashToken,
		http:    &http.Client{Timeout: 5 * time.Second},
	}
}

// Enabled reports whether a cache endpoint is configured. An unconfigured
// cache is not an error; callers simply skip it.
func (c *Client) Enabled() bool { return c.baseURL != "" }

type restResponse struct {
	Result json.RawMessage `json:"result"`
	Error  string          `json:"error"`
}

// do POSTs a redis command as a JSON array and decodes the envelope.
func (c *Client) do(ctx context.Context, command ...interface{}) (json.RawMessage, error) {
	body, err := json.Marshal(command)
	if err != nil {
		return nil, errors.Wrap(err, "encoding redis command")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, bytes.NewReader(body))
	if err != nil {
		return nil, errors.Wrap(err, "creating redis request")
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Content-Type", "application/json")

	res, err := c.http.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "sending redis request")
	}
	defer func() { _ = res.Body.Close() }()

	var envelope restResponse
	if err = json.NewDecoder(res.Body).Decode(&envelope); err != nil {
		return nil, errors.Wrap(err, "decoding redis response")
	}
	if envelope.Error != "" {
		return nil, errors.Errorf("redis: %s", envelope.Error)
	}
	if res.StatusCode >= http.StatusBadRequest {
		return nil, errors.Errorf("redis: unexpected status %d", res.StatusCode)
	}
	return envelope.Result, nil
}

// Get returns the value at key; ok is false on a cache miss.
func (c *Client) Get(ctx context.Context, key string) (string, bool, error) {
	if !c.Enabled() {
		return "", false, nil
	}
	result, err := c.do(ctx, "GET", key)
	if err != nil {
		return "", false, err
	}
	if bytes.Equal(result, []byte("null")) {
		return "", false, nil
	}
	var value string
	if err = json.Unmarshal(result, &value); err != nil {
		return "", false, errors.Wrap(err, "decoding redis value")
	}
	return value, true, nil
}

// SetEX stores value at key with a TTL.
func (c *Client) SetEX(ctx context.Context, key, value string, ttl time.Duration) error {
	if !c.Enabled() {
		return nil
	}
	seconds := int(ttl / time.Second)
	if seconds < 1 {
		seconds = 1
	}
	_, err := c.do(ctx, "SET", key, value, "EX", strconv.Itoa(seconds))
	return err
}

// Del removes keys.
func (c *Client) Del(ctx context.Context, keys ...string) error {
	if !c.Enabled() || len(keys) == 0 {
		return nil
	}
	command := make([]interface{}, 0, len(keys)+1)
	command = append(command, "DEL")
	for _, key := range keys {
		command = append(command, key)
	}
	_, err := c.do(ctx, command...)
	return err
}

// Incr increments the counter at key and returns the new value.
func (c *Client) Incr(ctx context.Context, key string) (int64, error) {
	if !c.Enabled() {
		return 0, nil
	}
	result, err := c.do(ctx, "INCR", key)
	if err != nil {
		return 0, err
	}
	var value int64
	if err = json.Unmarshal(result, &value); err != nil {
		return 0, errors.Wrap(err, "decoding redis value")
	}
	return value, nil
}
