package api

import (
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/veritail/veritail/internal/connection"
	"github.com/veritail/veritail/internal/extraction"
	"github.com/veritail/veritail/internal/knowledge"
	"github.com/veritail/veritail/internal/log"
)

// defaultTokenTTL is the extraction token lifetime when the request does
// not name one.
const defaultTokenTTL = 15 * time.Minute

// adminHandler serves the operator endpoints: connection lifecycle,
// extraction review, policy management, knowledge curation, drift checks.
type adminHandler struct {
	connections *connection.Store
	extractions *extraction.Store
	reviewer    *extraction.Engine
	knowledge   *knowledge.Store
	logger      *log.Logger
}

// createConnectionRequest registers a new tenant.
type createConnectionRequest struct {
	ID                    string  `json:"id,omitempty"`
	AssistantName         string  `json:"assistantName"`
	WelcomeMessage        string  `json:"welcomeMessage,omitempty"`
	WebsiteName           *string `json:"websiteName,omitempty"`
	WebsiteDescription    *string `json:"websiteDescription,omitempty"`
	AutoActivateKnowledge bool    `json:"autoActivateKnowledge,omitempty"`
}

// connectionResponse is the operator view of a connection.
type connectionResponse struct {
	ID                     string             `json:"id"`
	Status                 string             `json:"status"`
	AssistantName          string             `json:"assistantName"`
	WelcomeMessage         string             `json:"welcomeMessage"`
	WebsiteName            *string            `json:"websiteName,omitempty"`
	WebsiteDescription     *string            `json:"websiteDescription,omitempty"`
	LogoURL                *string            `json:"logoUrl,omitempty"`
	WidgetSeen             bool               `json:"widgetSeen"`
	ExtractionEnabled      bool               `json:"extractionEnabled"`
	AllowedExtractors      []string           `json:"allowedExtractors,omitempty"`
	ExtractionTokenExpires *time.Time         `json:"extractionTokenExpires,omitempty"`
	AutoActivateKnowledge  bool               `json:"autoActivateKnowledge"`
	GatePolicy             *connection.Policy `json:"gatePolicy,omitempty"`
	CreatedAt              time.Time          `json:"createdAt"`
	UpdatedAt              time.Time          `json:"updatedAt"`
}

func toConnectionResponse(conn *connection.Connection) connectionResponse {
	return connectionResponse{
		ID:                     conn.ID,
		Status:                 conn.Status,
		AssistantName:          conn.AssistantName,
		WelcomeMessage:         conn.WelcomeMessage,
		WebsiteName:            conn.WebsiteName,
		WebsiteDescription:     conn.WebsiteDescription,
		LogoURL:                conn.LogoURL,
		WidgetSeen:             conn.WidgetSeen,
		ExtractionEnabled:      conn.ExtractionEnabled,
		AllowedExtractors:      conn.AllowedExtractors,
		ExtractionTokenExpires: conn.ExtractionTokenExpires,
		AutoActivateKnowledge:  conn.AutoActivateKnowledge,
		GatePolicy:             conn.GatePolicy,
		CreatedAt:              conn.CreatedAt,
		UpdatedAt:              conn.UpdatedAt,
	}
}

// createConnection handles POST /api/v1/admin/connections.
func (h *adminHandler) createConnection(w http.ResponseWriter, r *http.Request) {
	var req createConnectionRequest
	if err := decodeBody(r, &req); err != nil {
		writeErrorCode(w, h.logger, http.StatusBadRequest, "invalid_request", "invalid request body")
		return
	}
	if req.AssistantName == "" {
		writeErrorCode(w, h.logger, http.StatusBadRequest, "invalid_request", "assistantName is required")
		return
	}

	id := req.ID
	if id == "" {
		id = uuid.NewString()
	}

	conn := &connection.Connection{
		ID:                    id,
		AssistantName:         req.AssistantName,
		WelcomeMessage:        req.WelcomeMessage,
		WebsiteName:           req.WebsiteName,
		WebsiteDescription:    req.WebsiteDescription,
		AutoActivateKnowledge: req.AutoActivateKnowledge,
		Status:                connection.StatusCreated,
	}
	if err := h.connections.Create(r.Context(), conn); err != nil {
		writeError(w, h.logger, err)
		return
	}

	created, err := h.connections.Get(r.Context(), id)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, h.logger, http.StatusCreated, toConnectionResponse(created))
}

// getConnection handles GET /api/v1/admin/connections/{id}.
func (h *adminHandler) getConnection(w http.ResponseWriter, r *http.Request) {
	conn, err := h.connections.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, h.logger, http.StatusOK, toConnectionResponse(conn))
}

// tokenRequest asks for a fresh extraction capability token.
type tokenRequest struct {
	AllowedExtractors []string `json:"allowedExtractors,omitempty"`
	TTLSeconds        int      `json:"ttlSeconds,omitempty"`
}

// tokenResponse carries the issued token. The token is shown once here;
// afterwards the widget receives it through the handshake.
type tokenResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// issueToken handles POST /api/v1/admin/connections/{id}/extraction-token.
//
// Issuing a token flips the connection to EXTRACTION_REQUESTED; the next
// widget handshake picks it up.
func (h *adminHandler) issueToken(w http.ResponseWriter, r *http.Request) {
	var req tokenRequest
	if err := decodeBody(r, &req); err != nil {
		writeErrorCode(w, h.logger, http.StatusBadRequest, "invalid_request", "invalid request body")
		return
	}

	ttl := defaultTokenTTL
	if req.TTLSeconds > 0 {
		ttl = time.Duration(req.TTLSeconds) * time.Second
	}
	extractors := req.AllowedExtractors
	if len(extractors) == 0 {
		extractors = []string{
			extraction.TypeMetadata,
			extraction.TypeBranding,
			extraction.TypeKnowledge,
		}
	}

	token := uuid.NewString()
	expires := time.Now().Add(ttl)
	if err := h.connections.IssueExtractionToken(r.Context(), r.PathValue("id"), token, expires, extractors); err != nil {
		writeError(w, h.logger, err)
		return
	}

	writeJSON(w, h.logger, http.StatusCreated, tokenResponse{Token: token, ExpiresAt: expires})
}

// extractionView is the reviewer's listing of one pending extraction.
type extractionView struct {
	ID            string     `json:"id"`
	ConnectionID  string     `json:"connectionId"`
	Source        string     `json:"source"`
	ExtractorType string     `json:"extractorType"`
	RawData       any        `json:"rawData"`
	PageURL       *string    `json:"pageUrl,omitempty"`
	Status        string     `json:"status"`
	ReviewedBy    *string    `json:"reviewedBy,omitempty"`
	ReviewedAt    *time.Time `json:"reviewedAt,omitempty"`
	ReviewNotes   *string    `json:"reviewNotes,omitempty"`
	CreatedAt     time.Time  `json:"createdAt"`
}

func toExtractionView(pe *extraction.PendingExtraction) extractionView {
	return extractionView{
		ID:            pe.ID,
		ConnectionID:  pe.ConnectionID,
		Source:        pe.Source,
		ExtractorType: pe.ExtractorType,
		RawData:       pe.RawData,
		PageURL:       pe.PageURL,
		Status:        pe.Status,
		ReviewedBy:    pe.ReviewedBy,
		ReviewedAt:    pe.ReviewedAt,
		ReviewNotes:   pe.ReviewNotes,
		CreatedAt:     pe.CreatedAt,
	}
}

// listExtractions handles
// GET /api/v1/admin/connections/{id}/extractions?status=PENDING.
func (h *adminHandler) listExtractions(w http.ResponseWriter, r *http.Request) {
	connID := r.PathValue("id")
	if _, err := h.connections.Get(r.Context(), connID); err != nil {
		writeError(w, h.logger, err)
		return
	}

	items, err := h.extractions.ListByConnection(r.Context(), connID, r.URL.Query().Get("status"))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	views := make([]extractionView, len(items))
	for i, pe := range items {
		views[i] = toExtractionView(pe)
	}
	writeJSON(w, h.logger, http.StatusOK, map[string]any{"extractions": views})
}

// reviewRequest applies a terminal decision to a pending extraction.
type reviewRequest struct {
	Action     string `json:"action"`
	ReviewedBy string `json:"reviewedBy"`
	Notes      string `json:"notes,omitempty"`
}

// review handles POST /api/v1/admin/extractions/{id}/review.
func (h *adminHandler) review(w http.ResponseWriter, r *http.Request) {
	var req reviewRequest
	if err := decodeBody(r, &req); err != nil {
		writeErrorCode(w, h.logger, http.StatusBadRequest, "invalid_request", "invalid request body")
		return
	}
	if req.ReviewedBy == "" {
		writeErrorCode(w, h.logger, http.StatusBadRequest, "invalid_request", "reviewedBy is required")
		return
	}

	reviewed, err := h.reviewer.Review(r.Context(), extraction.ReviewParams{
		ExtractionID: r.PathValue("id"),
		Action:       req.Action,
		ReviewedBy:   req.ReviewedBy,
		Notes:        req.Notes,
	})
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, h.logger, http.StatusOK, toExtractionView(reviewed))
}

// getPolicy handles GET /api/v1/admin/connections/{id}/policy.
func (h *adminHandler) getPolicy(w http.ResponseWriter, r *http.Request) {
	conn, err := h.connections.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, h.logger, http.StatusOK, map[string]any{"policy": conn.GatePolicy})
}

// putPolicy handles PUT /api/v1/admin/connections/{id}/policy.
// A null body clears the policy, disabling the gate for the connection.
func (h *adminHandler) putPolicy(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Policy *connection.Policy `json:"policy"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeErrorCode(w, h.logger, http.StatusBadRequest, "invalid_request", "invalid request body")
		return
	}

	if err := h.connections.SetPolicy(r.Context(), r.PathValue("id"), body.Policy); err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, h.logger, http.StatusOK, map[string]any{"policy": body.Policy})
}

// ingestRequest is a direct operator knowledge ingest.
type ingestRequest struct {
	SourceKind  string   `json:"sourceKind"`
	SourceValue string   `json:"sourceValue"`
	Text        string   `json:"text"`
	Visibility  string   `json:"visibility,omitempty"`
	Confidence  *float64 `json:"confidence,omitempty"`
}

// knowledgeView is the operator listing of one knowledge item.
type knowledgeView struct {
	ID              string     `json:"id"`
	SourceKind      string     `json:"sourceKind"`
	SourceValue     string     `json:"sourceValue"`
	Status          string     `json:"status"`
	Visibility      string     `json:"visibility"`
	ConfidenceScore float64    `json:"confidenceScore"`
	ContentHash     string     `json:"contentHash"`
	LastCheckedAt   *time.Time `json:"lastCheckedAt,omitempty"`
	CreatedAt       time.Time  `json:"createdAt"`
	UpdatedAt       time.Time  `json:"updatedAt"`
}

func toKnowledgeView(item *knowledge.Item) knowledgeView {
	return knowledgeView{
		ID:              item.ID,
		SourceKind:      item.SourceKind,
		SourceValue:     item.SourceValue,
		Status:          item.Status,
		Visibility:      item.Visibility,
		ConfidenceScore: item.ConfidenceScore,
		ContentHash:     item.ContentHash,
		LastCheckedAt:   item.LastCheckedAt,
		CreatedAt:       item.CreatedAt,
		UpdatedAt:       item.UpdatedAt,
	}
}

// ingestKnowledge handles POST /api/v1/admin/connections/{id}/knowledge.
//
// Operator ingest is trusted: items land READY and, unless the request
// says otherwise, ACTIVE.
func (h *adminHandler) ingestKnowledge(w http.ResponseWriter, r *http.Request) {
	connID := r.PathValue("id")
	if _, err := h.connections.Get(r.Context(), connID); err != nil {
		writeError(w, h.logger, err)
		return
	}

	var req ingestRequest
	if err := decodeBody(r, &req); err != nil {
		writeErrorCode(w, h.logger, http.StatusBadRequest, "invalid_request", "invalid request body")
		return
	}
	if req.SourceKind != knowledge.SourceURL && req.SourceKind != knowledge.SourceText {
		writeErrorCode(w, h.logger, http.StatusBadRequest, "invalid_request", "sourceKind must be URL or TEXT")
		return
	}

	visibility := req.Visibility
	if visibility == "" {
		visibility = knowledge.VisibilityActive
	}

	item, err := h.knowledge.Ingest(r.Context(), nil, knowledge.IngestParams{
		ConnectionID: connID,
		SourceKind:   req.SourceKind,
		SourceValue:  req.SourceValue,
		RawText:      req.Text,
		Visibility:   visibility,
		Confidence:   req.Confidence,
		Metadata:     map[string]any{"provenance": "operator"},
	})
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, h.logger, http.StatusCreated, toKnowledgeView(item))
}

// listKnowledge handles GET /api/v1/admin/connections/{id}/knowledge.
func (h *adminHandler) listKnowledge(w http.ResponseWriter, r *http.Request) {
	connID := r.PathValue("id")
	if _, err := h.connections.Get(r.Context(), connID); err != nil {
		writeError(w, h.logger, err)
		return
	}

	items, err := h.knowledge.ListByConnection(r.Context(), connID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	views := make([]knowledgeView, len(items))
	for i, item := range items {
		views[i] = toKnowledgeView(item)
	}
	writeJSON(w, h.logger, http.StatusOK, map[string]any{"knowledge": views})
}

// driftRequest asks whether a stored source still matches its live
// content. Either the freshly fetched content or its precomputed hash
// must be supplied.
type driftRequest struct {
	SourceValue string `json:"sourceValue"`
	Content     string `json:"content,omitempty"`
	ContentHash string `json:"contentHash,omitempty"`
}

// driftResponse reports the drift outcome.
type driftResponse struct {
	Outcome string `json:"outcome"`
	ItemID  string `json:"itemId,omitempty"`
}

// checkDrift handles POST /api/v1/admin/connections/{id}/drift-check.
func (h *adminHandler) checkDrift(w http.ResponseWriter, r *http.Request) {
	var req driftRequest
	if err := decodeBody(r, &req); err != nil {
		writeErrorCode(w, h.logger, http.StatusBadRequest, "invalid_request", "invalid request body")
		return
	}
	if req.SourceValue == "" {
		writeErrorCode(w, h.logger, http.StatusBadRequest, "invalid_request", "sourceValue is required")
		return
	}

	hash := req.ContentHash
	if hash == "" {
		if req.Content == "" {
			writeErrorCode(w, h.logger, http.StatusBadRequest, "invalid_request", "content or contentHash is required")
			return
		}
		hash = knowledge.Fingerprint(req.Content)
	}

	result, err := h.knowledge.CheckDrift(r.Context(), r.PathValue("id"), req.SourceValue, hash)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, h.logger, http.StatusOK, driftResponse{
		Outcome: string(result.Outcome),
		ItemID:  result.ItemID,
	})
}
