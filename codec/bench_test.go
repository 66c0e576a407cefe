package codec_test

import (
	"testing"

	"github.com/google/uuid"

	"mini-cmd/codec"
	"mini-cmd/message"
)

func BenchmarkCodecJSON(b *testing.B) {
	c := codec.Default()
	data := []byte(`{"request_id":"` + uuid.NewString() + `","command":"calculate","payload":{"operation":"add","a":1,"b":2}}`)
	id := uuid.New()

	for b.Loop() {
		if _, err := c.Decode(data); err != nil {
			b.Fatal(err)
		}
		c.Encode(message.OKResponse(id, message.CalcResult{Result: 3}))
	}
}

func BenchmarkCodecDecodeBatch(b *testing.B) {
	c := codec.Default()
	payload := `{"request_id":"` + uuid.NewString() + `","command":"batch","payload":[`
	for i := range 64 {
		if i > 0 {
			payload += ","
		}
		payload += `{"request_id":"` + uuid.NewString() + `","command":"echo","payload":{"n":[1,2,3]}}`
	}
	data := []byte(payload + "]}")

	for b.Loop() {
		if _, err := c.Decode(data); err != nil {
			b.Fatal(err)
		}
	}
}
