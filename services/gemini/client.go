// Package geminisvc wraps the Google Gemini API: chat generation,
// embeddings and the provider file store used for document indexing.
package geminisvc

import (
	"context"
	"io"
	"strings"

	"github.com/pkg/errors"
	"google.golang.org/genai"

	"github.com/somahq/soma/core"
	"github.com/somahq/soma/core/chat"
	"github.com/somahq/soma/storage/vector"
)

type Client struct {
	genai          *genai.Client
	logger         core.Logger
	chatModel      string
	embeddingModel string
	embeddingDim   int32
}

var (
	_ chat.Generator  = (*Client)(nil)
	_ vector.Embedder = (*Client)(nil)
)

func NewClient(ctx context.Context, conf *core.Config, logger core.Logger) (*Client, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  conf.AI.GeminiAPIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, errors.Wrap(err, "creating gemini client")
	}
	return &Client{
		genai:          client,
		logger:         logger,
		chatModel:      conf.AI.ChatModel,
		embeddingModel: conf.AI.EmbeddingModel,
		embeddingDim:   int32(conf.AI.EmbeddingDim),
	}, nil
}

func (c *Client) config(system string) *genai.GenerateContentConfig {
	if system == "" {
		return nil
	}
	return &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(system, genai.RoleUser),
	}
}

// Generate runs a single blocking completion.
func (c *Client) Generate(ctx context.Context, system, prompt string) (string, error) {
	res, err := c.genai.Models.GenerateContent(ctx, c.chatModel, genai.Text(prompt), c.config(system))
	if err != nil {
		return "", errors.Wrap(err, "generating content")
	}
	answer := res.Text()
	if answer == "" {
		return "", errors.New("model returned an empty answer")
	}
	return answer, nil
}

// Stream runs a completion and hands each chunk to onChunk as it arrives.
// It returns the full answer once the stream is done.
func (c *Client) Stream(ctx context.Context, system, prompt string, onChunk func(chunk string) error) (string, error) {
	var full strings.Builder
	for res, err := range c.genai.Models.GenerateContentStream(ctx, c.chatModel, genai.Text(prompt), c.config(system)) {
		if err != nil {
			return "", errors.Wrap(err, "streaming content")
		}
		text := res.Text()
		if text == "" {
			continue
		}
		full.WriteString(text)
		if err = onChunk(text); err != nil {
			return "", err
		}
	}
	if full.Len() == 0 {
		return "", errors.New("model returned an empty answer")
	}
	return full.String(), nil
}

// Embed turns text into an embedding vector.
func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	dim := c.embeddingDim
	res, err := c.genai.Models.EmbedContent(ctx, c.embeddingModel,
		genai.Text(text), &genai.EmbedContentConfig{OutputDimensionality: &dim})
	if err != nil {
		return nil, errors.Wrap(err, "embedding content")
	}
	if len(res.Embeddings) == 0 || len(res.Embeddings[0].Values) == 0 {
		return nil, errors.New("empty embedding response")
	}
	return res.Embeddings[0].Values, nil
}

// UploadFile pushes document content to the provider file store.
func (c *Client) UploadFile(ctx context.Context, r io.Reader, displayName, mimeType string) (*genai.File, error) {
	f, err := c.genai.Files.Upload(ctx, r, &genai.UploadFileConfig{
		DisplayName: displayName,
		MIMEType:    mimeType,
	})
	return f, errors.Wrap(err, "uploading file")
}

// GetFile reports the provider-side state of an uploaded file.
func (c *Client) GetFile(ctx context.Context, name string) (*genai.File, error) {
	f, err := c.genai.Files.Get(ctx, name, nil)
	return f, errors.Wrap(err, "getting file")
}

// DeleteFile forgets a provider-side file; used when documents are removed.
func (c *Client) DeleteFile(ctx context.Context, name string) error {
	_, err := c.genai.Files.Delete(ctx, name, nil)
	return errors.Wrap(err, "deleting file")
}
