// Package answer implements the conversational question answering engine.
// Each question is embedded, classified into a metadata facet when the
// caller asks for metadata-only retrieval, matched against the vector index,
// and answered by the configured LLM with the retrieved passages and prior
// conversation turns as context.
package answer

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"github.com/scichat/scichat-go/internal/budget"
	"github.com/scichat/scichat-go/internal/convo"
	"github.com/scichat/scichat-go/internal/facet"
	"github.com/scichat/scichat-go/internal/logging"
	"github.com/scichat/scichat-go/internal/rag"
)

// systemPrompt establishes the assistant's persona and grounding rules.
const systemPrompt = `You are SciChat, a research assistant that answers questions about
scientific papers uploaded by the user.

Ground every answer in the provided paper excerpts. When the excerpts contain
the answer, cite the relevant passage in your own words. When they do not,
say so plainly instead of guessing. Questions about a paper's title, authors,
organizations, or contact emails should be answered from the metadata
excerpts verbatim.

Keep answers concise and factual. Do not invent papers, authors, or results
that are not present in the excerpts.`

// FallbackAnswer is returned when the LLM call fails. The failed turn is not
// recorded, so the user can simply retry.
const FallbackAnswer = "I'm sorry, I wasn't able to generate an answer just now. Please try again."

// Config holds the dependencies required to construct an Engine.
type Config struct {
	// ChatModel is the LLM backend constructed by the provider factory.
	ChatModel model.BaseChatModel

	// Embedder converts the question into the query vector.
	Embedder rag.Embedder

	// Retriever finds the passages most similar to the question.
	Retriever rag.Retriever

	// Conversations stores multi-turn history. Must not be nil.
	Conversations *convo.Store

	// TopK is the number of passages retrieved per question. Defaults to 10.
	TopK int

	// HistoryDepth is the number of prior messages injected per question.
	// Defaults to 20 (ten turns).
	HistoryDepth int

	// MaxContextTokens is the estimated token budget for the full input
	// context. History is trimmed oldest-first to fit. Defaults to
	// budget.DefaultMaxContextTokens.
	MaxContextTokens int

	// Timeout bounds a single question end to end. Defaults to 30s.
	Timeout time.Duration
}

// Request is one question against the uploaded papers.
type Request struct {
	Question       string
	ConversationID string

	// MetadataOnly restricts retrieval to metadata facets, selected by
	// keyword classification of the question.
	MetadataOnly bool
}

// Response carries the answer and the conversation it belongs to.
type Response struct {
	Answer         string
	ConversationID string
}

// Engine answers questions over the indexed papers.
type Engine struct {
	chatModel        model.BaseChatModel
	embedder         rag.Embedder
	retriever        rag.Retriever
	conversations    *convo.Store
	topK             int
	historyDepth     int
	maxContextTokens int
	timeout          time.Duration
}

// New constructs an Engine from the provided Config.
func New(cfg *Config) (*Engine, error) {
	if cfg.ChatModel == nil {
		return nil, fmt.Errorf("answer: ChatModel must not be nil")
	}
	if cfg.Embedder == nil {
		return nil, fmt.Errorf("answer: Embedder must not be nil")
	}
	if cfg.Retriever == nil {
		return nil, fmt.Errorf("answer: Retriever must not be nil")
	}
	if cfg.Conversations == nil {
		return nil, fmt.Errorf("answer: Conversations must not be nil")
	}

	topK := cfg.TopK
	if topK <= 0 {
		topK = 10
	}
	depth := cfg.HistoryDepth
	if depth <= 0 {
		depth = 20
	}
	maxCtx := cfg.MaxContextTokens
	if maxCtx <= 0 {
		maxCtx = budget.DefaultMaxContextTokens
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	return &Engine{
		chatModel:        cfg.ChatModel,
		embedder:         cfg.Embedder,
		retriever:        cfg.Retriever,
		conversations:    cfg.Conversations,
		topK:             topK,
		historyDepth:     depth,
		maxContextTokens: maxCtx,
		timeout:          timeout,
	}, nil
}

// Ask answers one question. Errors from the vector index propagate to the
// caller (rag.ErrUnavailable maps to 503 at the HTTP layer); an LLM failure
// degrades to FallbackAnswer without recording the turn, so history is never
// polluted by a failed exchange.
func (e *Engine) Ask(ctx context.Context, req *Request) (*Response, error) {
	question := strings.TrimSpace(req.Question)
	if question == "" {
		return nil, fmt.Errorf("answer: question must not be empty")
	}

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	convID := e.conversations.Resolve(req.ConversationID)
	log := logging.FromContext(ctx)

	// Metadata-only requests are routed to the facet matching the question's
	// keywords; everything else searches the whole index.
	var f facet.Facet
	if req.MetadataOnly {
		f = facet.Classify(question)
		log.Debug("question classified",
			slog.String("facet", string(f)),
			slog.String("conversation_id", convID),
		)
	}

	vectors, err := e.embedder.Embed(ctx, []string{question})
	if err != nil {
		return nil, fmt.Errorf("answer: embedding question failed: %w", err)
	}
	if len(vectors) != 1 {
		return nil, fmt.Errorf("answer: embedder returned %d vectors for one question", len(vectors))
	}

	matches, err := e.retriever.Retrieve(ctx, vectors[0], f, e.topK)
	if err != nil {
		return nil, fmt.Errorf("answer: retrieval failed: %w", err)
	}

	messages := e.buildMessages(ctx, convID, question, matches)

	reply, err := e.chatModel.Generate(ctx, messages)
	if err != nil {
		log.Warn("LLM generation failed, returning fallback answer",
			slog.String("conversation_id", convID),
			slog.Any("error", err),
		)
		return &Response{Answer: FallbackAnswer, ConversationID: convID}, nil
	}

	answer := strings.TrimSpace(reply.Content)
	e.conversations.AppendTurn(convID, question, answer)

	return &Response{Answer: answer, ConversationID: convID}, nil
}

// buildMessages assembles [system, ...history, passages, question], trimming
// history oldest-first to fit the token budget.
func (e *Engine) buildMessages(ctx context.Context, convID, question string, matches []rag.Match) []*schema.Message {
	history := e.conversations.History(convID)
	if len(history) > e.historyDepth {
		history = history[len(history)-e.historyDepth:]
	}

	fixed := []*schema.Message{schema.SystemMessage(systemPrompt)}
	if len(matches) > 0 {
		fixed = append(fixed, schema.SystemMessage(buildPassageContext(matches)))
	}
	fixed = append(fixed, schema.UserMessage(question))

	before := len(history)
	history = budget.TrimHistory(fixed, history, e.maxContextTokens)
	if dropped := before - len(history); dropped > 0 {
		logging.FromContext(ctx).Warn("budget: dropped history messages to fit context window",
			slog.Int("dropped", dropped),
			slog.Int("retained", len(history)),
			slog.String("conversation_id", convID),
		)
	}

	result := make([]*schema.Message, 0, len(fixed)+len(history))
	result = append(result, fixed[0])
	result = append(result, history...)
	result = append(result, fixed[1:]...)
	return result
}

// buildPassageContext formats retrieved matches into a system message so the
// LLM can ground its answer in the indexed papers.
func buildPassageContext(matches []rag.Match) string {
	var sb strings.Builder
	sb.WriteString("## Paper Excerpts\n\n")
	sb.WriteString("The following excerpts from the uploaded papers are the most similar to the user's question. ")
	sb.WriteString("Ground your answer in them.\n\n")
	for i, m := range matches {
		fmt.Fprintf(&sb, "### Excerpt %d (document %s, %s)\n%s\n\n", i+1, m.DocumentID, m.Facet, m.Text)
	}
	return sb.String()
}
