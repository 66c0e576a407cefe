package codec

import (
	"encoding/json"
	"errors"

	"github.com/code19m/errx"

	"mini-cmd/logger"
	"mini-cmd/message"
)

// encodeFailure is written when a response value cannot be marshalled.
// It cannot happen for values produced by the dispatcher.
const encodeFailure = `{"request_id":null,"status":"error","error":"failed to encode response"}`

// JSONCodec uses encoding/json through the message model's own marshalers.
type JSONCodec struct {
	logger logger.Logger
}

// NewJSONCodec creates a JSONCodec. A nil logger disables logging.
func NewJSONCodec(l logger.Logger) *JSONCodec {
	if l == nil {
		l = logger.NewNop()
	}
	return &JSONCodec{logger: l}
}

// Decode parses data into a Request.
func (c *JSONCodec) Decode(data []byte) (message.Request, error) {
	req, err := message.DecodeRequest(data)
	if err != nil {
		var de *message.DecodeError
		if !errors.As(err, &de) {
			de = &message.DecodeError{Err: errx.Wrap(err)}
		}
		return message.Request{}, de
	}
	return req, nil
}

// Encode marshals resp. If marshalling fails the error is logged and a generic
// error document is returned in its place.
func (c *JSONCodec) Encode(resp message.Response) []byte {
	data, err := json.Marshal(resp)
	if err == nil {
		return data
	}

	c.logger.Errorw("failed to encode response", "error", err)
	fallback, err := json.Marshal(message.ErrorResponse(resp.RequestID, "failed to encode response"))
	if err != nil {
		return []byte(encodeFailure)
	}
	return fallback
}
