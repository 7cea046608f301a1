package connect

import (
	"encoding/json"

	"github.com/cockroachdb/errors"
)

// codecName replaces connect's protobuf-backed JSON codec for the plain Go
// messages of this package.
const codecName = "json"

type jsonCodec struct{}

func (jsonCodec) Name() string { return codecName }

func (jsonCodec) Marshal(msg any) ([]byte, error) {
	data, err := json.Marshal(msg)
	return data, errors.Wrap(err, "failed to marshal message")
}

func (jsonCodec) Unmarshal(data []byte, msg any) error {
	if len(data) == 0 {
		return nil
	}
	return errors.Wrap(json.Unmarshal(data, msg), "failed to unmarshal message")
}
