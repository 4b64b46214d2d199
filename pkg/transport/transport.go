// Package transport defines the narrow capability set the coordinator needs
// from the surrounding real-time media transport, without depending on any
// particular signalling stack, SFU, or WebRTC library.
//
// The transport itself — room membership, token issuance, ICE negotiation —
// lives outside this module; a concrete adapter implements [Connection] on
// top of whatever stack a deployment chooses. This mirrors the narrow
// Platform/Connection split used elsewhere in this lineage for voice
// connectivity, but trades the participant-channel abstraction for the
// pair of sinks a pipeline session actually drives: a datagram publisher and
// an outbound audio track.
package transport

import "context"

// AudioFrame is one chunk of decoded PCM audio received from a participant.
// Samples are interleaved per channel, signed 16-bit, little-endian.
type AudioFrame struct {
	Samples            []byte
	SampleRate         int
	Channels           int
	SamplesPerChannel  int
}

// DatagramType enumerates the message kinds exchanged over the reliable or
// unreliable datagram channel: the server-to-client kinds a session
// publishes, and the client-to-server barge_in and vad_hint.
type DatagramType string

const (
	DatagramASRPartial       DatagramType = "asr_partial"
	DatagramASRFinal         DatagramType = "asr_final"
	DatagramLLMPartial       DatagramType = "llm_partial"
	DatagramLLMFinal         DatagramType = "llm_final"
	DatagramTTSChunk         DatagramType = "tts_chunk"
	DatagramAgentInterrupted DatagramType = "agent_interrupted"

	// DatagramBargeIn always arrives on the reliable channel.
	DatagramBargeIn DatagramType = "barge_in"

	// DatagramVADHint is an optional client-to-server message carrying the
	// client's own speech/silence detection, used to override a false-silent
	// server-side RMS read per the session's barge-in/finalization policy.
	DatagramVADHint DatagramType = "vad_hint"
)

// Datagram is a decoded inbound or outbound JSON datagram. Text carries the
// `text` field used by the ASR/LLM message types; Audio/Segment/Frame carry
// the tts_chunk fields; Speech carries vad_hint's detection result. Fields
// not relevant to Type are left zero.
type Datagram struct {
	Type    DatagramType
	Text    string
	Audio   []byte // raw PCM; base64 encoding happens at the wire boundary
	Segment int
	Frame   int
	Speech  bool
}

// Connection is the per-session handle a [Session] uses to move data in and
// out of the transport. Implementations must be safe for concurrent use;
// Publish and EmitAudioFrame are called concurrently from independent
// stages (ASR/LLM publish datagrams, TTS publishes both).
type Connection interface {
	// InboundAudio returns the channel of decoded PCM frames arriving from
	// the participant. Closed when the participant disconnects.
	InboundAudio() <-chan AudioFrame

	// InboundDatagrams returns the channel of decoded client-to-server
	// datagrams (barge_in and vad_hint). Closed when the participant
	// disconnects.
	InboundDatagrams() <-chan Datagram

	// Publish sends a datagram to the client. reliable selects the
	// delivery-guaranteed channel; tts_chunk datagrams are sent with
	// reliable=false. Publish must not block longer than the caller's
	// per-frame publish timeout — implementations should drop and log
	// rather than stall the pipeline.
	Publish(ctx context.Context, dg Datagram, reliable bool) error

	// EmitAudioFrame writes one 20ms frame to the outbound audio track.
	EmitAudioFrame(ctx context.Context, pcm []byte) error

	// Close releases the transport handle. Safe to call more than once.
	Close() error
}
