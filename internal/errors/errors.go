package errors

import "errors"

// This package defines a centralized set of sentinel errors for the engine.
// Using sentinel errors allows the session and store layers to return
// specific, recognizable error types without coupling them to transport
// details like HTTP status codes. The API layer checks them with
// `errors.Is()` and maps them to the correct responses.

var (
	// ErrValidation signifies that user input failed the input gate or that
	// a request body failed structural validation.
	// Mapped to a 400 Bad Request HTTP status.
	ErrValidation = errors.New("validation failed")

	// ErrNotFound signifies that a requested resource (a message index, a
	// persisted key) could not be located.
	// Mapped to a 404 Not Found HTTP status.
	ErrNotFound = errors.New("resource not found")

	// ErrBusy signifies that a submission arrived while a previous exchange
	// was still awaiting its reply. The submission is ignored: no state
	// change, no network call.
	// Mapped to a 409 Conflict HTTP status.
	ErrBusy = errors.New("reply already in progress")

	// ErrTransport signifies a failure talking to the remote completion
	// endpoint: non-success status, unreadable stream, decode fault. It is
	// surfaced to the user as a single generic failure notice.
	ErrTransport = errors.New("completion request failed")

	// ErrInternal signifies an unexpected error. Used to avoid leaking
	// implementation details to the client.
	// Mapped to a 500 Internal Server Error HTTP status.
	ErrInternal = errors.New("internal error")
)
