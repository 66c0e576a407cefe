package message

import (
	"encoding/json"
	"fmt"

	"github.com/code19m/errx"
	"github.com/google/uuid"
)

// NotJSONMessage is the error text sent back for input that is not JSON at all.
const NotJSONMessage = "request is not a valid JSON"

// MaxBatchDepth is the number of batch levels a request may nest. A batch below that
// depth fails with CodeInvalidPayload without its elements being decoded.
const MaxBatchDepth = 64

var errMissingCommand = errx.New("request has no command", errx.WithCode(CodeInvalidRequest)) //nolint: gochecknoglobals // constant error

// DecodeError reports why a document could not be turned into a Request.
// RequestID is set when the request_id was read before the failure.
type DecodeError struct {
	RequestID *uuid.UUID
	Err       error
}

func (e *DecodeError) Error() string { return e.Err.Error() }

func (e *DecodeError) Unwrap() error { return e.Err }

// Response converts the failure into the error document sent to the client.
func (e *DecodeError) Response() Response {
	return ErrorResponse(e.RequestID, e.Error())
}

type calcPayload struct {
	Operation *string  `json:"operation" validate:"required,oneof=add subtract multiply divide"`
	A         *float64 `json:"a" validate:"required"`
	B         *float64 `json:"b" validate:"required"`
}

// DecodeRequest parses one request document.
//
// The envelope is strict: request_id must be a UUID string, command a known tag, and the payload
// must match the command. Echo accepts any JSON value as payload. Batch elements are decoded one by
// one, and an element that fails is kept as a BatchItem with Err set instead of failing the batch.
// Batches nested deeper than MaxBatchDepth are such failed elements.
func DecodeRequest(data []byte) (Request, error) {
	return decodeRequest(data, 0)
}

func decodeRequest(data []byte, depth int) (Request, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		if !json.Valid(data) {
			return Request{}, decodeErr(nil, CodeInvalidJSON, NotJSONMessage)
		}
		return Request{}, decodeErr(nil, CodeInvalidRequest, "request must be a JSON object")
	}
	if fields == nil {
		return Request{}, decodeErr(nil, CodeInvalidRequest, "request must be a JSON object")
	}

	id, err := decodeRequestID(fields)
	if err != nil {
		return Request{}, err
	}

	kind, err := decodeKind(id, fields)
	if err != nil {
		return Request{}, err
	}

	payload, hasPayload := fields["payload"]
	cmd, err := decodeCommand(id, kind, payload, hasPayload, depth)
	if err != nil {
		return Request{}, err
	}

	return Request{RequestID: id, Command: cmd}, nil
}

func decodeRequestID(fields map[string]json.RawMessage) (uuid.UUID, error) {
	raw, ok := fields["request_id"]
	if !ok {
		return uuid.Nil, decodeErr(nil, CodeInvalidRequest, "missing field `request_id`")
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return uuid.Nil, decodeErr(nil, CodeInvalidRequest, "invalid `request_id`: expected a UUID string")
	}
	id, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, decodeErr(nil, CodeInvalidRequest, fmt.Sprintf("invalid `request_id`: %v", err))
	}
	return id, nil
}

func decodeKind(id uuid.UUID, fields map[string]json.RawMessage) (CommandKind, error) {
	raw, ok := fields["command"]
	if !ok {
		return "", decodeErr(&id, CodeInvalidRequest, "missing field `command`")
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", decodeErr(&id, CodeInvalidRequest, "invalid `command`: expected a string")
	}
	kind := CommandKind(s)
	if !kind.Valid() {
		return "", decodeErr(&id, CodeUnknownCommand, fmt.Sprintf("unknown command `%s`", s))
	}
	return kind, nil
}

func decodeCommand(id uuid.UUID, kind CommandKind, payload json.RawMessage, hasPayload bool, depth int) (Command, error) {
	switch kind {
	case KindPing:
		return Ping{}, nil
	case KindTime:
		return Time{}, nil
	case KindEcho:
		if !hasPayload {
			return Echo{Value: json.RawMessage("null")}, nil
		}
		return Echo{Value: payload}, nil
	case KindCalculate:
		return decodeCalculate(id, payload, hasPayload)
	case KindBatch:
		return decodeBatch(id, payload, hasPayload, depth)
	}
	return nil, decodeErr(&id, CodeUnknownCommand, fmt.Sprintf("unknown command `%s`", kind))
}

func decodeCalculate(id uuid.UUID, payload json.RawMessage, hasPayload bool) (Command, error) {
	if !hasPayload || isNull(payload) {
		return nil, decodeErr(&id, CodeInvalidPayload, "missing `payload` field")
	}

	var p calcPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return nil, decodeErr(&id, CodeInvalidPayload, fmt.Sprintf("invalid calculate payload: %v", err))
	}
	if err := validateStruct(p); err != nil {
		return nil, decodeErr(&id, CodeInvalidPayload, fmt.Sprintf("invalid calculate payload: %v", err))
	}

	return Calculate{Operation: Operation(*p.Operation), A: *p.A, B: *p.B}, nil
}

func decodeBatch(id uuid.UUID, payload json.RawMessage, hasPayload bool, depth int) (Command, error) {
	if !hasPayload || isNull(payload) {
		return nil, decodeErr(&id, CodeInvalidPayload, "missing `payload` field")
	}
	if depth >= MaxBatchDepth {
		return nil, decodeErr(&id, CodeInvalidPayload, fmt.Sprintf("batch nesting exceeds %d levels", MaxBatchDepth))
	}

	var elems []json.RawMessage
	if err := json.Unmarshal(payload, &elems); err != nil {
		return nil, decodeErr(&id, CodeInvalidPayload, "batch payload must be an array of requests")
	}

	items := make([]BatchItem, len(elems))
	for i, elem := range elems {
		items[i].Raw = elem
		req, err := decodeRequest(elem, depth+1)
		if err != nil {
			items[i].Err = asDecodeError(err)
			continue
		}
		items[i].Request = req
	}
	return Batch{Items: items}, nil
}

func decodeErr(id *uuid.UUID, code, msg string) *DecodeError {
	return &DecodeError{
		RequestID: id,
		Err:       errx.New(msg, errx.WithCode(code), errx.WithType(errx.T_Validation)),
	}
}

func asDecodeError(err error) *DecodeError {
	if de, ok := err.(*DecodeError); ok { //nolint: errorlint // DecodeRequest returns *DecodeError unwrapped
		return de
	}
	return &DecodeError{Err: errx.Wrap(err)}
}

func isNull(raw json.RawMessage) bool {
	return string(raw) == "null"
}
