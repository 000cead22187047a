// Package ai provides the Genkit-backed language model boundary: provider
// initialization (Gemini, Ollama, OpenAI) and the answer generator used by
// the chat pipeline.
package ai

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"

	"github.com/veritail/veritail/internal/chat"
	"github.com/veritail/veritail/internal/log"
)

// generateTimeout limits how long a single model call can take.
const generateTimeout = 60 * time.Second

// fallbackAnswer is returned when the model produces an empty response.
const fallbackAnswer = "I apologize, but I couldn't generate a response. Please try rephrasing your question."

// Generator produces grounded answers with Genkit. It implements
// chat.Generator.
//
// Generator is stateless; all configuration is captured immutably at
// construction time, so concurrent calls are safe.
type Generator struct {
	g         *genkit.Genkit
	modelName string
	logger    *log.Logger
}

// NewGenerator creates a Generator bound to a provider-qualified model
// name (e.g. "googleai/gemini-2.5-flash", "ollama/llama3.3").
func NewGenerator(g *genkit.Genkit, modelName string, logger *log.Logger) *Generator {
	if logger == nil {
		logger = log.NewNop()
	}
	return &Generator{g: g, modelName: modelName, logger: logger}
}

// Generate builds a grounded prompt from the request's citations and
// history, calls the model, and returns the answer text.
//
// The model is instructed to answer only from the provided context;
// which sources were actually used is left to the confidence gate, so
// CitedSourceIDs stays empty and every retrieved citation counts.
func (gen *Generator) Generate(ctx context.Context, req chat.GenerateRequest) (chat.GenerateResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, generateTimeout)
	defer cancel()

	messages := buildMessages(req)

	opts := []ai.GenerateOption{
		ai.WithSystem(systemPrompt(req)),
		ai.WithMessages(messages...),
	}
	if gen.modelName != "" {
		opts = append(opts, ai.WithModelName(gen.modelName))
	}

	resp, err := genkit.Generate(ctx, gen.g, opts...)
	if err != nil {
		return chat.GenerateResponse{}, fmt.Errorf("generating answer: %w", err)
	}

	text := strings.TrimSpace(resp.Text())
	if text == "" {
		gen.logger.Warn("model returned empty response", "model", gen.modelName)
		text = fallbackAnswer
	}

	return chat.GenerateResponse{Text: text}, nil
}

// buildMessages assembles the conversation: prior history followed by
// the current question. The system prompt travels separately via
// ai.WithSystem.
func buildMessages(req chat.GenerateRequest) []*ai.Message {
	messages := make([]*ai.Message, 0, len(req.History)+1)

	for _, m := range req.History {
		switch m.Role {
		case chat.RoleUser:
			messages = append(messages, ai.NewUserMessage(ai.NewTextPart(m.Text)))
		case chat.RoleAssistant:
			messages = append(messages, ai.NewModelMessage(ai.NewTextPart(m.Text)))
		}
	}

	messages = append(messages, ai.NewUserMessage(ai.NewTextPart(req.Question)))
	return messages
}

// systemPrompt renders the assistant persona and the retrieved context.
func systemPrompt(req chat.GenerateRequest) string {
	name := req.AssistantName
	if name == "" {
		name = "Assistant"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "You are %s, a helpful website assistant.\n", name)
	b.WriteString("Answer the visitor's question using ONLY the context below. ")
	b.WriteString("If the context does not contain the answer, say you don't know. ")
	b.WriteString("Keep answers concise and factual.\n")

	if len(req.Citations) == 0 {
		b.WriteString("\nNo context is available for this question.\n")
		return b.String()
	}

	b.WriteString("\nContext:\n")
	for i, c := range req.Citations {
		fmt.Fprintf(&b, "[%d] %s\n", i+1, c.Content)
	}
	return b.String()
}
