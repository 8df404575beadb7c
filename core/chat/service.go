package chat

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/somahq/soma/core"
)

const systemPrompt = "You are Soma, a study assistant for an e-learning platform. " +
	"Answer using the provided course material excerpts when they are relevant. " +
	"When the excerpts do not cover the question, say so before answering from general knowledge. " +
	"Keep answers concise and cite no external links."

type (
	// Generator produces model completions; implemented by the gemini service.
	Generator interface {
		Generate(ctx context.Context, system, prompt string) (string, error)
		// Stream calls onChunk for each partial and returns the full answer.
		Stream(ctx context.Context, system, prompt string, onChunk func(chunk string) error) (string, error)
	}

	// Retriever finds document chunks relevant to a query; implemented by
	// the vector store.
	Retriever interface {
		Search(ctx context.Context, query, courseID string, topK int) ([]Context, error)
	}

	// Cache is a TTL'd answer cache; implemented by the upstash client.
	Cache interface {
		Get(ctx context.Context, key string) (string, bool, error)
		SetEX(ctx context.Context, key, value string, ttl time.Duration) error
	}

	Service struct {
		generator Generator
		retriever Retriever
		cache     Cache
		logger    core.Logger

		model    string
		topK     int
		cacheTTL time.Duration
	}
)

func NewService(generator Generator, retriever Retriever, cache Cache, logger core.Logger, conf *core.Config) *Service {
	return &Service{
		generator: generator,
		retriever: retriever,
		cache:     cache,
		logger:    logger,
		model:     conf.AI.ChatModel,
		topK:      conf.AI.TopK,
		cacheTTL:  conf.AI.CacheTTL,
	}
}

// cachedAnswer is the cache wire format.
type cachedAnswer struct {
	Answer  string   `json:"answer"`
	Sources []Source `json:"sources,omitempty"`
}

// Ask runs the full RAG flow: cache-check, retrieve, generate, cache-write.
// Cache and retrieval failures degrade the answer, never fail the request.
func (svc *Service) Ask(ctx context.Context, req Request) (Response, error) {
	key := CacheKey(svc.model, req.CourseID, req.Query)

	if res, ok := svc.cacheCheck(ctx, key, req.SessionID); ok {
		return res, nil
	}

	contexts := svc.retrieve(ctx, req)
	answer, err := svc.generator.Generate(ctx, systemPrompt, buildPrompt(req.Query, contexts))
	if err != nil {
		return Response{}, fmt.Errorf("generating answer: %w", err)
	}

	sources := toSources(contexts)
	svc.cacheWrite(ctx, key, answer, sources)

	return Response{SessionID: req.SessionID, Answer: answer, Sources: sources}, nil
}

// Stream is Ask with incremental delivery. Cache hits are delivered as a
// single chunk; only fully completed answers are cached.
func (svc *Service) Stream(ctx context.Context, req Request, onChunk func(chunk string) error) (Response, error) {
	key := CacheKey(svc.model, req.CourseID, req.Query)

	if res, ok := svc.cacheCheck(ctx, key, req.SessionID); ok {
		if err := onChunk(res.Answer); err != nil {
			return Response{}, err
		}
		return res, nil
	}

	contexts := svc.retrieve(ctx, req)
	answer, err := svc.generator.Stream(ctx, systemPrompt, buildPrompt(req.Query, contexts), onChunk)
	if err != nil {
		return Response{}, fmt.Errorf("streaming answer: %w", err)
	}

	sources := toSources(contexts)
	svc.cacheWrite(ctx, key, answer, sources)

	return Response{SessionID: req.SessionID, Answer: answer, Sources: sources}, nil
}

func (svc *Service) cacheCheck(ctx context.Context, key, sessionID string) (Response, bool) {
	if svc.cache == nil {
		return Response{}, false
	}
	raw, ok, err := svc.cache.Get(ctx, key)
	if err != nil {
		svc.logger.Warn("chat cache read failed", err)
		return Response{}, false
	}
	if !ok {
		return Response{}, false
	}
	var ca cachedAnswer
	if err := json.Unmarshal([]byte(raw), &ca); err != nil {
		svc.logger.Warn("chat cache entry corrupt", err)
		return Response{}, false
	}
	return Response{SessionID: sessionID, Answer: ca.Answer, Sources: ca.Sources, Cached: true}, true
}

func (svc *Service) cacheWrite(ctx context.Context, key, answer string, sources []Source) {
	if svc.cache == nil || answer == "" {
		return
	}
	raw, err := json.Marshal(cachedAnswer{Answer: answer, Sources: sources})
	if err != nil {
		return
	}
	if err := svc.cache.SetEX(ctx, key, string(raw), svc.cacheTTL); err != nil {
		svc.logger.Warn("chat cache write failed", err)
	}
}

// retrieve fetches grounding context; on failure the chat proceeds uncontexted.
func (svc *Service) retrieve(ctx context.Context, req Request) []Context {
	if svc.retriever == nil {
		return nil
	}
	contexts, err := svc.retriever.Search(ctx, req.Query, req.CourseID, svc.topK)
	if err != nil {
		svc.logger.Warn("context retrieval failed", err)
		return nil
	}
	return contexts
}

func buildPrompt(query string, contexts []Context) string {
	if len(contexts) == 0 {
		return query
	}
	var b strings.Builder
	b.WriteString("Course material excerpts:\n\n")
	for i, c := range contexts {
		fmt.Fprintf(&b, "[%d] %s\n%s\n\n", i+1, c.Title, c.Content)
	}
	b.WriteString("Question: ")
	b.WriteString(query)
	return b.String()
}

func toSources(contexts []Context) []Source {
	if len(contexts) == 0 {
		return nil
	}
	sources := make([]Source, 0, len(contexts))
	seen := make(map[string]bool, len(contexts))
	for _, c := range contexts {
		if seen[c.DocumentID] {
			continue
		}
		seen[c.DocumentID] = true
		sources = append(sources, Source{DocumentID: c.DocumentID, Title: c.Title, Similarity: c.Similarity})
	}
	return sources
}
