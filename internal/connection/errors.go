package connection

import "errors"

// Sentinel errors for connection operations.
// These are part of the store's public API and should be checked with errors.Is().
var (
	// ErrNotFound indicates the requested connection does not exist.
	ErrNotFound = errors.New("connection not found")

	// ErrAlreadyExists indicates a connection with the same ID exists.
	ErrAlreadyExists = errors.New("connection already exists")

	// ErrExtractionDisabled indicates extraction is not enabled for the connection.
	ErrExtractionDisabled = errors.New("extraction not enabled")

	// ErrInvalidToken indicates the capability token does not match the issued one.
	ErrInvalidToken = errors.New("invalid extraction token")

	// ErrTokenExpired indicates the capability token has expired.
	ErrTokenExpired = errors.New("extraction token expired")

	// ErrInvalidPolicy indicates a confidence policy failed validation.
	ErrInvalidPolicy = errors.New("invalid confidence policy")
)
