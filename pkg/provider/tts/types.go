package tts

// VoiceConfig selects the voice and language a Provider should synthesize
// a segment with.
type VoiceConfig struct {
	// VoiceID is the provider-specific voice identifier.
	VoiceID string

	// Language is the BCP-47 language tag, if the provider supports
	// multilingual voices.
	Language string
}
