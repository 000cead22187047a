package api

import (
	"net/http"
	"strings"

	"github.com/veritail/veritail/internal/chat"
	"github.com/veritail/veritail/internal/log"
)

// maxMessageLength caps visitor messages; anything longer is rejected
// before it reaches the embedder.
const maxMessageLength = 4000

// chatHandler serves the visitor chat endpoints.
type chatHandler struct {
	answerer *chat.Answerer
	logger   *log.Logger
}

// chatRequest is the visitor chat body.
type chatRequest struct {
	ConnectionID string `json:"connectionId"`
	SessionKey   string `json:"sessionKey"`
	Message      string `json:"message"`
}

// sourceRef is one cited source in a chat response.
type sourceRef struct {
	SourceID        string  `json:"sourceId"`
	ConfidenceScore float64 `json:"confidenceScore"`
}

// chatResponse is the gate-checked answer.
type chatResponse struct {
	SessionKey string      `json:"sessionKey"`
	Text       string      `json:"text"`
	Gated      bool        `json:"gated"`
	GateReason string      `json:"gateReason,omitempty"`
	Sources    []sourceRef `json:"sources"`

	// ConfidenceScore is the aggregate confidence of the cited sources,
	// omitted when nothing was cited.
	ConfidenceScore *float64 `json:"confidenceScore,omitempty"`
}

// send handles POST /api/v1/chat.
func (h *chatHandler) send(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := decodeBody(r, &req); err != nil {
		writeErrorCode(w, h.logger, http.StatusBadRequest, "invalid_request", "invalid request body")
		return
	}

	req.Message = strings.TrimSpace(req.Message)
	switch {
	case req.ConnectionID == "":
		writeErrorCode(w, h.logger, http.StatusBadRequest, "invalid_request", "connectionId is required")
		return
	case req.SessionKey == "":
		writeErrorCode(w, h.logger, http.StatusBadRequest, "invalid_request", "sessionKey is required")
		return
	case req.Message == "":
		writeErrorCode(w, h.logger, http.StatusBadRequest, "invalid_request", "message is required")
		return
	case len(req.Message) > maxMessageLength:
		writeErrorCode(w, h.logger, http.StatusBadRequest, "invalid_request", "message too long")
		return
	}

	answer, err := h.answerer.Answer(r.Context(), req.ConnectionID, req.SessionKey, req.Message)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	sources := make([]sourceRef, len(answer.Sources))
	for i, src := range answer.Sources {
		sources[i] = sourceRef{SourceID: src.SourceID, ConfidenceScore: src.ConfidenceScore}
	}

	writeJSON(w, h.logger, http.StatusOK, chatResponse{
		SessionKey:      answer.SessionKey,
		Text:            answer.Text,
		Gated:           answer.Gated,
		GateReason:      answer.GateReason,
		Sources:         sources,
		ConfidenceScore: answer.AggregateConfidence,
	})
}

// feedbackRequest rates one assistant message in a session.
type feedbackRequest struct {
	SessionKey   string `json:"sessionKey"`
	MessageIndex *int   `json:"messageIndex"`
	Rating       string `json:"rating"`
	Notes        string `json:"notes,omitempty"`
}

// feedbackResponse reports how the rating propagated to cited sources.
type feedbackResponse struct {
	Adjusted int `json:"adjusted"`
	Missing  int `json:"missing"`
	Failed   int `json:"failed"`
}

// feedback handles POST /api/v1/chat/feedback.
func (h *chatHandler) feedback(w http.ResponseWriter, r *http.Request) {
	var req feedbackRequest
	if err := decodeBody(r, &req); err != nil {
		writeErrorCode(w, h.logger, http.StatusBadRequest, "invalid_request", "invalid request body")
		return
	}
	switch {
	case req.SessionKey == "":
		writeErrorCode(w, h.logger, http.StatusBadRequest, "invalid_request", "sessionKey is required")
		return
	case req.MessageIndex == nil:
		writeErrorCode(w, h.logger, http.StatusBadRequest, "invalid_request", "messageIndex is required")
		return
	case req.Rating == "":
		writeErrorCode(w, h.logger, http.StatusBadRequest, "invalid_request", "rating is required")
		return
	}

	summary, err := h.answerer.RateAnswer(r.Context(), req.SessionKey, *req.MessageIndex, req.Rating, req.Notes)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	writeJSON(w, h.logger, http.StatusOK, feedbackResponse{
		Adjusted: summary.Adjusted,
		Missing:  summary.Missing,
		Failed:   summary.Failed,
	})
}
