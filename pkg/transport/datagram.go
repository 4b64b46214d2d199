package transport

import (
	"encoding/base64"
	"fmt"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// PeekType extracts just the "type" field from a raw inbound datagram
// without fully unmarshaling it, so a transport adapter can cheaply discard
// message kinds the coordinator does not recognize before doing the real
// decode.
func PeekType(raw []byte) DatagramType {
	return DatagramType(gjson.GetBytes(raw, "type").String())
}

// DecodeInbound decodes a raw inbound datagram. Only barge_in and vad_hint
// carry meaning for the coordinator; any other type decodes with its Type
// field set and everything else left zero.
func DecodeInbound(raw []byte) Datagram {
	dg := Datagram{Type: PeekType(raw)}
	if dg.Type == DatagramVADHint {
		dg.Speech = gjson.GetBytes(raw, "speech").Bool()
	}
	return dg
}

// EncodeOutbound serializes dg for the wire, field by field rather than
// through a tagged struct, so the hot tts_chunk path avoids round-tripping
// the whole Datagram through reflection for every 20ms frame.
func EncodeOutbound(dg Datagram) ([]byte, error) {
	out := []byte("{}")
	var err error

	if out, err = sjson.SetBytes(out, "type", string(dg.Type)); err != nil {
		return nil, fmt.Errorf("transport: encode type: %w", err)
	}
	if dg.Text != "" {
		if out, err = sjson.SetBytes(out, "text", dg.Text); err != nil {
			return nil, fmt.Errorf("transport: encode text: %w", err)
		}
	}
	if dg.Type == DatagramTTSChunk {
		if out, err = sjson.SetBytes(out, "segment", dg.Segment); err != nil {
			return nil, fmt.Errorf("transport: encode segment: %w", err)
		}
		if out, err = sjson.SetBytes(out, "frame", dg.Frame); err != nil {
			return nil, fmt.Errorf("transport: encode frame: %w", err)
		}
		if out, err = sjson.SetBytes(out, "audio", base64.StdEncoding.EncodeToString(dg.Audio)); err != nil {
			return nil, fmt.Errorf("transport: encode audio: %w", err)
		}
	}
	return out, nil
}
