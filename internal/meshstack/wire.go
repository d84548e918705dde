package meshstack

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// Frame types carried on the wire.
const (
	frameAnnounce uint8 = iota + 1
	frameData
	frameLink
)

// wireFrame is the CBOR-encoded unit exchanged between stacks over UDP and
// serial transports. Hashes travel as raw bytes, not hex.
type wireFrame struct {
	Type        uint8  `cbor:"t"`
	Source      []byte `cbor:"s,omitempty"`
	Destination []byte `cbor:"d,omitempty"`
	Payload     []byte `cbor:"p,omitempty"`
	PublicKey   []byte `cbor:"k,omitempty"`
}

func encodeFrame(f wireFrame) ([]byte, error) {
	raw, err := cbor.Marshal(f)
	if err != nil {
		return nil, fmt.Errorf("encode frame: %w", err)
	}
	return raw, nil
}

func decodeFrame(raw []byte) (wireFrame, error) {
	var f wireFrame
	if err := cbor.Unmarshal(raw, &f); err != nil {
		return wireFrame{}, fmt.Errorf("decode frame: %w", err)
	}
	if f.Type < frameAnnounce || f.Type > frameLink {
		return wireFrame{}, fmt.Errorf("unknown frame type %d", f.Type)
	}
	return f, nil
}
