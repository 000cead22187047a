package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/veritail/veritail/internal/chat"
	"github.com/veritail/veritail/internal/connection"
	"github.com/veritail/veritail/internal/extraction"
	"github.com/veritail/veritail/internal/feedback"
	"github.com/veritail/veritail/internal/knowledge"
	"github.com/veritail/veritail/internal/log"
)

// errorBody is the JSON error envelope.
type errorBody struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// writeJSON writes a JSON response with the given status code.
// Uses buffer-first strategy so headers are only sent after successful
// encoding; a failed encode still gets a proper 500.
func writeJSON(w http.ResponseWriter, logger *log.Logger, status int, data any) {
	buf := new(bytes.Buffer)
	if err := json.NewEncoder(buf).Encode(data); err != nil {
		logger.Error("encoding JSON response", "error", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(status)
	if _, err := w.Write(buf.Bytes()); err != nil {
		// Client disconnects are common and expected
		logger.Debug("writing response body", "error", err)
	}
}

// writeErrorCode writes a JSON error envelope with an explicit status.
func writeErrorCode(w http.ResponseWriter, logger *log.Logger, status int, code, message string) {
	var body errorBody
	body.Error.Code = code
	body.Error.Message = message
	writeJSON(w, logger, status, body)
}

// writeError maps a domain error to its HTTP status and writes the
// envelope. Unknown errors become opaque 500s; the underlying error is
// logged, never leaked.
func writeError(w http.ResponseWriter, logger *log.Logger, err error) {
	status, code := errorStatus(err)
	message := err.Error()
	if status == http.StatusInternalServerError {
		logger.Error("request failed", "error", err)
		message = "internal server error"
	}
	writeErrorCode(w, logger, status, code, message)
}

// errorStatus maps domain sentinel errors to HTTP statuses.
func errorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, connection.ErrNotFound),
		errors.Is(err, knowledge.ErrNotFound),
		errors.Is(err, extraction.ErrNotFound),
		errors.Is(err, chat.ErrSessionNotFound):
		return http.StatusNotFound, "not_found"

	case errors.Is(err, connection.ErrAlreadyExists),
		errors.Is(err, extraction.ErrAlreadyReviewed),
		errors.Is(err, chat.ErrAlreadyRated):
		return http.StatusConflict, "conflict"

	case errors.Is(err, connection.ErrInvalidPolicy),
		errors.Is(err, extraction.ErrInvalidPayload),
		errors.Is(err, extraction.ErrInvalidAction),
		errors.Is(err, extraction.ErrEmptySubmission),
		errors.Is(err, extraction.ErrUnknownExtractor),
		errors.Is(err, feedback.ErrInvalidRating),
		errors.Is(err, chat.ErrInvalidMessageIndex),
		errors.Is(err, chat.ErrNotAssistantMessage),
		errors.Is(err, knowledge.ErrEmptyContent):
		return http.StatusBadRequest, "invalid_request"

	case errors.Is(err, connection.ErrExtractionDisabled),
		errors.Is(err, connection.ErrInvalidToken),
		errors.Is(err, connection.ErrTokenExpired):
		return http.StatusForbidden, "forbidden"

	case errors.Is(err, chat.ErrGenerationFailed),
		errors.Is(err, chat.ErrRetrievalFailed):
		return http.StatusBadGateway, "upstream_error"

	default:
		return http.StatusInternalServerError, "internal_error"
	}
}

// decodeBody decodes a JSON request body into dst, rejecting unknown
// fields and trailing garbage.
func decodeBody(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return err
	}
	if dec.More() {
		return errors.New("unexpected trailing data")
	}
	return nil
}
