package echoapi

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
	"golang.org/x/time/rate"

	"github.com/somahq/soma/core"
	"github.com/somahq/soma/core/chat"
)

type chatApi struct {
	svc      *chat.Service
	validate *validator.Validate
}

func registerChatAPI(g *echo.Group, jwt echo.MiddlewareFunc, svc *chat.Service, validate *validator.Validate) {
	api := chatApi{svc: svc, validate: validate}

	limiter := rateLimitMiddleware(rate.Limit(core.Conf.AI.RateLimit), core.Conf.AI.RateBurst)

	cg := g.Group("/chat", jwt, limiter)
	cg.POST("", api.ask)
	cg.POST("/stream", api.stream)
}

// Handlers

func (api *chatApi) ask(ctx echo.Context) error {
	var data chat.Request
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to chat.Request")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	res, err := api.svc.Ask(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "answering chat request")
	}
	return ctx.JSON(http.StatusOK, res)
}

// stream answers over Server-Sent Events: "chunk" events carry partial
// text, a final "done" event carries the full response, "error" events
// report failures. The connection stays open until the answer completes.
func (api *chatApi) stream(ctx echo.Context) error {
	res := ctx.Response()
	res.Header().Set(echo.HeaderContentType, "text/event-stream")
	res.Header().Set("Cache-Control", "no-cache")
	res.Header().Set("Connection", "keep-alive")
	res.Header().Set("X-Accel-Buffering", "no") // disable nginx buffering

	var data chat.Request
	if err := ctx.Bind(&data); err != nil {
		return writeSSE(ctx, "error", sseError{Code: "INVALID_REQUEST", Message: err.Error()})
	}
	if err := data.Validate(api.validate); err != nil {
		return writeSSE(ctx, "error", sseError{Code: "INVALID_REQUEST", Message: err.Error()})
	}

	onChunk := func(text string) error {
		return writeSSE(ctx, "chunk", sseChunk{Text: text})
	}

	answer, err := api.svc.Stream(ctx.Request().Context(), data, onChunk)
	if err != nil {
		return writeSSE(ctx, "error", sseError{Code: "GENERATION_FAILED", Message: err.Error()})
	}
	return writeSSE(ctx, "done", answer)
}

type (
	sseChunk struct {
		Text string `json:"text"`
	}

	sseError struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	}
)

// writeSSE emits one event and flushes it to the client.
func writeSSE(ctx echo.Context, event string, data interface{}) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return errors.Wrap(err, "marshalling SSE payload")
	}
	if _, err := fmt.Fprintf(ctx.Response(), "event: %s\ndata: %s\n\n", event, payload); err != nil {
		return errors.Wrap(err, "writing SSE event")
	}
	ctx.Response().Flush()
	return nil
}
