package chat

import "errors"

// Sentinel errors for chat operations.
// These are part of the package's public API and should be checked with errors.Is().
var (
	// ErrSessionNotFound indicates the session key is unknown.
	ErrSessionNotFound = errors.New("chat session not found")

	// ErrInvalidMessageIndex indicates a feedback target outside the
	// session's history.
	ErrInvalidMessageIndex = errors.New("invalid message index")

	// ErrNotAssistantMessage indicates feedback aimed at a non-assistant
	// message.
	ErrNotAssistantMessage = errors.New("only assistant messages can be rated")

	// ErrAlreadyRated indicates a second rating on the same message.
	ErrAlreadyRated = errors.New("message already rated")

	// ErrGenerationFailed indicates the language model call failed.
	ErrGenerationFailed = errors.New("answer generation failed")

	// ErrRetrievalFailed indicates the knowledge retrieval step failed.
	ErrRetrievalFailed = errors.New("knowledge retrieval failed")
)
