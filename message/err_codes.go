package message

// Error codes for request decoding.
const (
	// CodeInvalidJSON is returned when the input is not a JSON document.
	CodeInvalidJSON = "INVALID_JSON"

	// CodeInvalidRequest is returned when the envelope (request_id, command) is malformed.
	CodeInvalidRequest = "INVALID_REQUEST"

	// CodeUnknownCommand is returned when the command tag is not recognized.
	CodeUnknownCommand = "UNKNOWN_COMMAND"

	// CodeInvalidPayload is returned when a command's payload is absent or mistyped.
	CodeInvalidPayload = "INVALID_PAYLOAD"
)
