package message

import (
	"encoding/json"
	"math"

	"github.com/code19m/errx"
	"github.com/google/uuid"
)

// Status is the discriminant of a Response on the wire.
type Status string

const (
	StatusOK    Status = "ok"
	StatusError Status = "error"
)

// Response is either a success carrying Value or a failure carrying Error.
//
// RequestID is nil only for failures where the id could not be read from the input.
// Value must hold a type with an infallible JSON encoding: string, json.RawMessage,
// TimeResult, CalcResult, []Response or nil.
type Response struct {
	RequestID *uuid.UUID
	Status    Status
	Value     any
	Error     string
}

// OKResponse builds a success response.
func OKResponse(id uuid.UUID, v any) Response {
	return Response{RequestID: &id, Status: StatusOK, Value: v}
}

// ErrorResponse builds a failure response. id may be nil.
func ErrorResponse(id *uuid.UUID, msg string) Response {
	return Response{RequestID: id, Status: StatusError, Error: msg}
}

// IsError reports whether r is a failure.
func (r Response) IsError() bool {
	return r.Status == StatusError
}

type okWire struct {
	RequestID *uuid.UUID `json:"request_id"`
	Status    Status     `json:"status"`
	Response  any        `json:"response"`
}

type errorWire struct {
	RequestID *uuid.UUID `json:"request_id"`
	Status    Status     `json:"status"`
	Error     string     `json:"error"`
}

// MarshalJSON writes the response in its wire form.
func (r Response) MarshalJSON() ([]byte, error) {
	if r.IsError() {
		return json.Marshal(errorWire{RequestID: r.RequestID, Status: StatusError, Error: r.Error})
	}
	return json.Marshal(okWire{RequestID: r.RequestID, Status: StatusOK, Response: r.Value})
}

type decodeWire struct {
	RequestID *uuid.UUID      `json:"request_id"`
	Status    Status          `json:"status"`
	Response  json.RawMessage `json:"response"`
	Error     *string         `json:"error"`
}

// UnmarshalJSON reads a response document. Value is left as json.RawMessage.
// When status is absent the shape decides: an "error" field marks a failure.
func (r *Response) UnmarshalJSON(data []byte) error {
	var w decodeWire
	if err := json.Unmarshal(data, &w); err != nil {
		return errx.Wrap(err)
	}

	status := w.Status
	if status == "" {
		status = StatusOK
		if w.Error != nil {
			status = StatusError
		}
	}

	switch status {
	case StatusOK:
		*r = Response{RequestID: w.RequestID, Status: StatusOK, Value: w.Response}
	case StatusError:
		msg := ""
		if w.Error != nil {
			msg = *w.Error
		}
		*r = Response{RequestID: w.RequestID, Status: StatusError, Error: msg}
	default:
		return errx.New("unknown response status: "+string(status), errx.WithCode(CodeInvalidRequest))
	}
	return nil
}

// TimeResult is the success value of a Time command.
type TimeResult struct {
	Time string `json:"time"`
}

// CalcResult is the success value of a Calculate command.
type CalcResult struct {
	Result float64
}

// MarshalJSON writes {"result": x}. JSON has no NaN or infinities, so those are written as null.
func (c CalcResult) MarshalJSON() ([]byte, error) {
	if math.IsNaN(c.Result) || math.IsInf(c.Result, 0) {
		return []byte(`{"result":null}`), nil
	}
	return json.Marshal(struct {
		Result float64 `json:"result"`
	}{c.Result})
}
