// Package message defines the documents exchanged between a client and the command server.
//
// A client sends exactly one Request per connection and receives exactly one Response:
//
//	Request:  {"request_id": "<uuid>", "command": "calculate", "payload": {"operation": "add", "a": 1, "b": 2}}
//	Ok:       {"request_id": "<uuid>", "status": "ok", "response": {"result": 3}}
//	Error:    {"request_id": "<uuid>"|null, "status": "error", "error": "division by zero"}
//
// Command is a closed set: Ping, Echo, Time, Calculate and Batch are the only implementations.
package message

import (
	"encoding/json"

	"github.com/google/uuid"
)

// CommandKind is the payload-less tag of a Command. It is also the "command" field on the wire.
type CommandKind string

const (
	KindPing      CommandKind = "ping"
	KindEcho      CommandKind = "echo"
	KindTime      CommandKind = "time"
	KindCalculate CommandKind = "calculate"
	KindBatch     CommandKind = "batch"
)

// Valid reports whether k names a known command.
func (k CommandKind) Valid() bool {
	switch k {
	case KindPing, KindEcho, KindTime, KindCalculate, KindBatch:
		return true
	}
	return false
}

// Operation is the arithmetic operation of a Calculate command.
type Operation string

const (
	OpAdd      Operation = "add"
	OpSubtract Operation = "subtract"
	OpMultiply Operation = "multiply"
	OpDivide   Operation = "divide"
)

// Request is a decoded client request. RequestID is supplied by the caller and echoed in the response.
type Request struct {
	RequestID uuid.UUID
	Command   Command
}

// NewRequest builds a request with a fresh random id.
func NewRequest(cmd Command) Request {
	return Request{RequestID: uuid.New(), Command: cmd}
}

// Command is implemented only by the command types of this package.
type Command interface {
	Kind() CommandKind
	// payload returns the value carried in the "payload" field, or false if the command has none.
	payload() (any, bool)
}

// Ping asks the server to answer "pong".
type Ping struct{}

// Echo asks the server to return Value unmodified. A nil Value is sent as null.
type Echo struct {
	Value json.RawMessage
}

// Time asks for the current UTC time.
type Time struct{}

// Calculate asks for A <Operation> B.
type Calculate struct {
	Operation Operation
	A         float64
	B         float64
}

// Batch carries nested requests that are executed in order.
type Batch struct {
	Items []BatchItem
}

// BatchItem is one element of a Batch. Err is set when the element could not be decoded;
// Request is meaningful only when Err is nil. When marshalled, Raw wins, and a failed item
// without Raw is written as its error document so later items keep their positions.
type BatchItem struct {
	Request Request
	Err     *DecodeError
	// Raw holds the element as received, if it came off the wire.
	Raw json.RawMessage
}

// NewBatch wraps already-built requests into a Batch command.
func NewBatch(reqs ...Request) Batch {
	items := make([]BatchItem, len(reqs))
	for i, r := range reqs {
		items[i] = BatchItem{Request: r}
	}
	return Batch{Items: items}
}

func (Ping) Kind() CommandKind      { return KindPing }
func (Echo) Kind() CommandKind      { return KindEcho }
func (Time) Kind() CommandKind      { return KindTime }
func (Calculate) Kind() CommandKind { return KindCalculate }
func (Batch) Kind() CommandKind     { return KindBatch }

func (Ping) payload() (any, bool) { return nil, false }
func (Time) payload() (any, bool) { return nil, false }

func (c Echo) payload() (any, bool) {
	if c.Value == nil {
		return json.RawMessage("null"), true
	}
	return c.Value, true
}

func (c Calculate) payload() (any, bool) {
	return calcPayload{Operation: (*string)(&c.Operation), A: &c.A, B: &c.B}, true
}

func (c Batch) payload() (any, bool) {
	items := make([]any, len(c.Items))
	for i, item := range c.Items {
		switch {
		case item.Raw != nil:
			items[i] = item.Raw
		case item.Err != nil:
			items[i] = item.Err.Response()
		default:
			items[i] = item.Request
		}
	}
	return items, true
}

type wireRequest struct {
	RequestID uuid.UUID   `json:"request_id"`
	Command   CommandKind `json:"command"`
	Payload   any         `json:"payload,omitempty"`
}

// MarshalJSON writes the request in its wire form.
func (r Request) MarshalJSON() ([]byte, error) {
	if r.Command == nil {
		return nil, errMissingCommand
	}
	w := wireRequest{RequestID: r.RequestID, Command: r.Command.Kind()}
	if p, ok := r.Command.payload(); ok {
		w.Payload = p
	}
	return json.Marshal(w)
}

// UnmarshalJSON decodes a request with the same rules as DecodeRequest.
func (r *Request) UnmarshalJSON(data []byte) error {
	req, err := DecodeRequest(data)
	if err != nil {
		return err
	}
	*r = req
	return nil
}
