// Package codec converts between wire bytes and the message model at the connection boundary.
package codec

import (
	"mini-cmd/message"
)

// Codec decodes one request document and encodes one response document.
type Codec interface {
	// Decode parses a request. Failures are *message.DecodeError values whose Response
	// is the document to send back.
	Decode(data []byte) (message.Request, error)
	// Encode always produces a JSON document.
	Encode(resp message.Response) []byte
}

// Default is the codec used by the server and client.
func Default() Codec {
	return NewJSONCodec(nil)
}
