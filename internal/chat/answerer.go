package chat

import (
	"context"
	"fmt"
	"time"

	"github.com/veritail/veritail/internal/connection"
	"github.com/veritail/veritail/internal/feedback"
	"github.com/veritail/veritail/internal/gate"
	"github.com/veritail/veritail/internal/knowledge"
	"github.com/veritail/veritail/internal/log"
)

// GenerateRequest is the input to the language model call.
type GenerateRequest struct {
	// AssistantName personalizes the system prompt.
	AssistantName string

	// Question is the visitor's current message.
	Question string

	// History is the session's prior messages, oldest first.
	History []Message

	// Citations are the retrieved knowledge items the model may ground
	// its answer in. SHADOW items never reach this list.
	Citations []knowledge.Citation
}

// GenerateResponse is the language model's answer.
type GenerateResponse struct {
	Text string

	// CitedSourceIDs names the citations the model actually used. Empty
	// means all provided citations are treated as cited.
	CitedSourceIDs []string
}

// Generator is the opaque language model boundary: prompt plus history
// in, completion plus citations out. Selected once at process start.
type Generator interface {
	Generate(ctx context.Context, req GenerateRequest) (GenerateResponse, error)
}

// Retriever is the slice of the knowledge store the answerer needs.
type Retriever interface {
	FindActive(ctx context.Context, connectionID, query string, topK int) ([]knowledge.Citation, error)
}

// Answer is a delivered, gate-checked response.
type Answer struct {
	SessionKey string
	Text       string
	Gated      bool
	GateReason string
	Sources    []SourceRef

	// AggregateConfidence is nil when no scored sources were cited,
	// mirroring how the metadata is persisted.
	AggregateConfidence *float64
}

// Answerer runs the retrieval-generation-gating pipeline for one visitor
// message and persists the exchange in the session history.
type Answerer struct {
	connections *connection.Store
	retriever   Retriever
	sessions    *Store
	generator   Generator
	adjuster    *feedback.Adjuster
	logger      *log.Logger

	// defaultPolicy applies when a connection has no policy of its own.
	// nil disables gating for such connections.
	defaultPolicy *connection.Policy

	topK int
}

// AnswererConfig wires an Answerer.
type AnswererConfig struct {
	Connections   *connection.Store
	Retriever     Retriever
	Sessions      *Store
	Generator     Generator
	Adjuster      *feedback.Adjuster
	DefaultPolicy *connection.Policy
	TopK          int
	Logger        *log.Logger
}

// NewAnswerer creates the chat pipeline.
func NewAnswerer(cfg AnswererConfig) *Answerer {
	logger := cfg.Logger
	if logger == nil {
		logger = log.NewNop()
	}
	topK := cfg.TopK
	if topK <= 0 {
		topK = 5
	}
	return &Answerer{
		connections:   cfg.Connections,
		retriever:     cfg.Retriever,
		sessions:      cfg.Sessions,
		generator:     cfg.Generator,
		adjuster:      cfg.Adjuster,
		defaultPolicy: cfg.DefaultPolicy,
		logger:        logger,
		topK:          topK,
	}
}

// Answer handles one visitor message: retrieve citable knowledge,
// generate a draft, gate it against the connection's policy, and persist
// both sides of the exchange.
//
// Returns connection.ErrNotFound for an unknown connection,
// ErrRetrievalFailed or ErrGenerationFailed on upstream failures.
func (a *Answerer) Answer(ctx context.Context, connectionID, sessionKey, message string) (*Answer, error) {
	conn, err := a.connections.Get(ctx, connectionID)
	if err != nil {
		return nil, err
	}

	sess, err := a.sessions.GetOrCreate(ctx, sessionKey, connectionID)
	if err != nil {
		return nil, err
	}

	citations, err := a.retriever.FindActive(ctx, connectionID, message, a.topK)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrRetrievalFailed, err)
	}

	resp, err := a.generator.Generate(ctx, GenerateRequest{
		AssistantName: conn.AssistantName,
		Question:      message,
		History:       sess.Messages,
		Citations:     citations,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrGenerationFailed, err)
	}

	cited := citedSources(citations, resp.CitedSourceIDs)
	confidences := make([]float64, len(cited))
	for i, src := range cited {
		confidences[i] = src.ConfidenceScore
	}

	result := a.evaluateGate(conn, confidences, resp.Text)
	if result.Gated {
		a.logger.Info("answer gated",
			"connection_id", connectionID,
			"session_key", sessionKey,
			"reason", result.Reason)
	}

	metadata := &AnswerMetadata{
		Sources:    cited,
		Gated:      result.Gated,
		GateReason: result.Reason,
	}
	if len(cited) > 0 {
		agg := result.AggregateConfidence
		metadata.AggregateConfidence = &agg
	}
	if result.Gated {
		metadata.OriginalAnswer = result.OriginalAnswer
	}

	now := time.Now().UTC()
	err = a.sessions.AppendMessages(ctx, sessionKey,
		Message{Role: RoleUser, Text: message, CreatedAt: now},
		Message{Role: RoleAssistant, Text: result.FinalText, Metadata: metadata, CreatedAt: now},
	)
	if err != nil {
		return nil, err
	}

	return &Answer{
		SessionKey:          sessionKey,
		Text:                result.FinalText,
		Gated:               result.Gated,
		GateReason:          result.Reason,
		Sources:             cited,
		AggregateConfidence: metadata.AggregateConfidence,
	}, nil
}

// evaluateGate picks the effective policy and applies it. A policy that
// fails validation cannot be trusted, so the answer fails closed rather
// than shipping on a half-read configuration.
func (a *Answerer) evaluateGate(conn *connection.Connection, confidences []float64, draft string) gate.Result {
	policy := conn.GatePolicy
	if policy == nil {
		policy = a.defaultPolicy
	}
	if policy != nil {
		if err := policy.Validate(); err != nil {
			a.logger.Error("gate policy invalid, failing closed",
				"connection_id", conn.ID, "error", err)
			return gate.FailClosed(draft)
		}
	}
	return gate.Evaluate(policy, confidences, draft)
}

// RateAnswer records feedback on a delivered answer and adjusts the
// confidence of every knowledge item it cited.
//
// Returns ErrSessionNotFound, ErrInvalidMessageIndex,
// ErrNotAssistantMessage, ErrAlreadyRated or feedback.ErrInvalidRating.
func (a *Answerer) RateAnswer(ctx context.Context, sessionKey string, messageIndex int, rating, notes string) (feedback.Summary, error) {
	if rating != feedback.RatingCorrect && rating != feedback.RatingIncorrect {
		return feedback.Summary{}, fmt.Errorf("%w: %q", feedback.ErrInvalidRating, rating)
	}

	sources, err := a.sessions.RateMessage(ctx, sessionKey, messageIndex, Feedback{
		Rating: rating,
		Notes:  notes,
	})
	if err != nil {
		return feedback.Summary{}, err
	}

	ids := make([]string, len(sources))
	for i, src := range sources {
		ids[i] = src.SourceID
	}
	return a.adjuster.Apply(ctx, rating, ids)
}

// citedSources maps the generator's cited IDs back to the retrieved
// citations. An empty ID list cites everything that was retrieved.
func citedSources(citations []knowledge.Citation, citedIDs []string) []SourceRef {
	if len(citedIDs) == 0 {
		refs := make([]SourceRef, len(citations))
		for i, c := range citations {
			refs[i] = SourceRef{SourceID: c.ID, ConfidenceScore: c.ConfidenceScore}
		}
		return refs
	}

	byID := make(map[string]knowledge.Citation, len(citations))
	for _, c := range citations {
		byID[c.ID] = c
	}
	refs := make([]SourceRef, 0, len(citedIDs))
	for _, id := range citedIDs {
		if c, ok := byID[id]; ok {
			refs = append(refs, SourceRef{SourceID: c.ID, ConfidenceScore: c.ConfidenceScore})
		}
	}
	return refs
}
