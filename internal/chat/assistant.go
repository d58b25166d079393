package chat

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// DefaultSystemPrompt frames every chat turn.
const DefaultSystemPrompt = "You are a helpful reading assistant. Be concise and reference the provided text when possible."

// ErrEmptyQuestion is returned for a blank question.
var ErrEmptyQuestion = errors.New("question cannot be empty")

// KeyResolver supplies the API key for one turn.
type KeyResolver interface {
	APIKey() (string, error)
}

// ContextRetriever finds document context for a question. Failures are reported as an
// empty string.
type ContextRetriever interface {
	ContextOrEmpty(ctx context.Context, id uuid.UUID, question, apiKey string, maxChunks int) string
}

// Request is one chat turn about a document.
type Request struct {
	DocumentID uuid.UUID `json:"document_id"`
	Question   string    `json:"question"`
	// Context is the passage the reader selected; empty means retrieve from the index.
	Context string `json:"context,omitempty"`
}

// Answer is the outcome of a completed turn.
type Answer struct {
	Text          string `json:"text"`
	Context       string `json:"context,omitempty"`
	ContextWords  int    `json:"context_words"`
	UsedRetrieval bool   `json:"used_retrieval"`
}

// Assistant answers questions about documents.
type Assistant struct {
	streamers    StreamerFactory
	retriever    ContextRetriever
	keys         KeyResolver
	systemPrompt string
	maxChunks    int
	logger       *zap.Logger
}

// NewAssistant creates an assistant. retriever may be nil to disable retrieval.
func NewAssistant(streamers StreamerFactory, retriever ContextRetriever, keys KeyResolver, systemPrompt string, maxChunks int, logger *zap.Logger) *Assistant {
	if systemPrompt == "" {
		systemPrompt = DefaultSystemPrompt
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Assistant{
		streamers:    streamers,
		retriever:    retriever,
		keys:         keys,
		systemPrompt: systemPrompt,
		maxChunks:    maxChunks,
		logger:       logger,
	}
}

// Ask streams the answer to req through onDelta and returns the full answer. A retrieval
// failure only means the question goes out without context.
func (a *Assistant) Ask(ctx context.Context, req Request, onDelta func(string) error) (*Answer, error) {
	question := strings.TrimSpace(req.Question)
	if question == "" {
		return nil, ErrEmptyQuestion
	}
	apiKey, err := a.keys.APIKey()
	if err != nil {
		return nil, err
	}

	answer := &Answer{Context: strings.TrimSpace(req.Context)}
	if answer.Context == "" && a.retriever != nil && req.DocumentID != uuid.Nil {
		answer.Context = a.retriever.ContextOrEmpty(ctx, req.DocumentID, question, apiKey, a.maxChunks)
		answer.UsedRetrieval = answer.Context != ""
	}
	answer.ContextWords = WordCount(answer.Context)

	streamer, err := a.streamers(apiKey)
	if err != nil {
		return nil, err
	}
	var text strings.Builder
	err = streamer.Stream(ctx, a.systemPrompt, BuildPrompt(question, answer.Context), func(delta string) error {
		text.WriteString(delta)
		if onDelta != nil {
			return onDelta(delta)
		}
		return nil
	})
	answer.Text = text.String()
	if err != nil {
		a.logger.Warn("chat turn failed", zap.String("document_id", req.DocumentID.String()), zap.Error(err))
		return answer, err
	}
	return answer, nil
}
