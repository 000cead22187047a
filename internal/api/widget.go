package api

import (
	"net/http"
	"time"

	"github.com/veritail/veritail/internal/connection"
	"github.com/veritail/veritail/internal/extraction"
	"github.com/veritail/veritail/internal/log"
)

// widgetHandler serves the embedded widget's public endpoints: the
// handshake that activates a connection and the extraction submission.
type widgetHandler struct {
	connections *connection.Store
	intake      *extraction.Intake
	logger      *log.Logger
}

// helloRequest is the widget handshake body.
type helloRequest struct {
	ConnectionID string `json:"connectionId"`
}

// helloResponse is the widget boot configuration. The extraction block is
// present only while the connection is waiting for an extraction run with
// a live capability token.
type helloResponse struct {
	ConnectionID   string  `json:"connectionId"`
	Status         string  `json:"status"`
	AssistantName  string  `json:"assistantName"`
	WelcomeMessage string  `json:"welcomeMessage"`
	WebsiteName    *string `json:"websiteName,omitempty"`
	LogoURL        *string `json:"logoUrl,omitempty"`

	Extraction *extractionGrant `json:"extraction,omitempty"`
}

// extractionGrant tells the widget to run extractors and which token to
// submit results with.
type extractionGrant struct {
	Token             string    `json:"token"`
	AllowedExtractors []string  `json:"allowedExtractors"`
	ExpiresAt         time.Time `json:"expiresAt"`
}

// hello handles POST /api/v1/widget/hello.
//
// The first handshake advances CREATED to CONNECTED and marks the widget
// as seen; repeat handshakes never regress a later status.
func (h *widgetHandler) hello(w http.ResponseWriter, r *http.Request) {
	var req helloRequest
	if err := decodeBody(r, &req); err != nil {
		writeErrorCode(w, h.logger, http.StatusBadRequest, "invalid_request", "invalid request body")
		return
	}
	if req.ConnectionID == "" {
		writeErrorCode(w, h.logger, http.StatusBadRequest, "invalid_request", "connectionId is required")
		return
	}

	conn, err := h.connections.MarkConnected(r.Context(), req.ConnectionID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	resp := helloResponse{
		ConnectionID:   conn.ID,
		Status:         conn.Status,
		AssistantName:  conn.AssistantName,
		WelcomeMessage: conn.WelcomeMessage,
		WebsiteName:    conn.WebsiteName,
		LogoURL:        conn.LogoURL,
	}

	// Hand out the capability token only while extraction is pending and
	// the token is still live.
	if conn.Status == connection.StatusExtractionRequested &&
		conn.ExtractionEnabled &&
		conn.ExtractionToken != nil &&
		conn.ExtractionTokenExpires != nil &&
		time.Now().Before(*conn.ExtractionTokenExpires) {
		resp.Extraction = &extractionGrant{
			Token:             *conn.ExtractionToken,
			AllowedExtractors: conn.AllowedExtractors,
			ExpiresAt:         *conn.ExtractionTokenExpires,
		}
	}

	writeJSON(w, h.logger, http.StatusOK, resp)
}

// extractRequest is the widget extraction submission body.
type extractRequest struct {
	ConnectionID string                `json:"connectionId"`
	Token        string                `json:"token"`
	Submission   extraction.Submission `json:"submission"`
}

// extractResponse acknowledges accepted pending extractions.
type extractResponse struct {
	Accepted      int      `json:"accepted"`
	ExtractionIDs []string `json:"extractionIds"`
}

// extract handles POST /api/v1/widget/extract.
//
// Every accepted section lands as a PENDING extraction awaiting review;
// nothing the widget submits reaches the knowledge store directly.
func (h *widgetHandler) extract(w http.ResponseWriter, r *http.Request) {
	var req extractRequest
	if err := decodeBody(r, &req); err != nil {
		writeErrorCode(w, h.logger, http.StatusBadRequest, "invalid_request", "invalid request body")
		return
	}
	if req.ConnectionID == "" || req.Token == "" {
		writeErrorCode(w, h.logger, http.StatusBadRequest, "invalid_request", "connectionId and token are required")
		return
	}

	pending, err := h.intake.Submit(r.Context(), req.ConnectionID, req.Token, req.Submission)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	ids := make([]string, len(pending))
	for i, pe := range pending {
		ids[i] = pe.ID
	}

	writeJSON(w, h.logger, http.StatusAccepted, extractResponse{
		Accepted:      len(ids),
		ExtractionIDs: ids,
	})
}
