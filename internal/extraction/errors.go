package extraction

import "errors"

// Sentinel errors for extraction operations.
// These are part of the package's public API and should be checked with errors.Is().
var (
	// ErrNotFound indicates the requested extraction does not exist.
	ErrNotFound = errors.New("extraction not found")

	// ErrAlreadyReviewed indicates a review attempt on a terminal item.
	ErrAlreadyReviewed = errors.New("extraction already reviewed")

	// ErrUnknownExtractor indicates an unrecognized extractor type.
	ErrUnknownExtractor = errors.New("unknown extractor type")

	// ErrInvalidPayload indicates a payload that does not match its
	// extractor type's shape.
	ErrInvalidPayload = errors.New("invalid extraction payload")

	// ErrInvalidAction indicates a review action other than APPROVE or REJECT.
	ErrInvalidAction = errors.New("invalid review action")

	// ErrEmptySubmission indicates a widget submission with no extractable facts.
	ErrEmptySubmission = errors.New("submission contains no extractable data")
)
