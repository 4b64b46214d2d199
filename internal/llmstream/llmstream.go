// Package llmstream drives a streaming chat completion against an
// [llm.Provider], batching token deltas into partial callbacks and
// truncating conversation history to stay under a token budget.
//
// Conversation history is owned by the Streamer, not the provider. A
// completion only touches history once it finishes uninterrupted: the user
// turn and the assistant's reply are appended together, then the oldest
// messages are truncated if the estimated token count is over budget. A
// call cancelled mid-stream leaves history exactly as it found it.
package llmstream

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/voxstream/coordinator/pkg/provider/llm"
)

const (
	defaultPartialDeltaCount = 5
	defaultPartialMaxWait    = 100 * time.Millisecond
	defaultRequestTimeout    = 30 * time.Second
	charsPerToken            = 4
)

// Config parameterizes completion requests and partial batching.
type Config struct {
	MaxTokens   int
	Temperature float64

	// MaxContextTokens caps the conversation history kept in the prompt, in
	// an approximate charsPerToken accounting. Zero disables truncation.
	MaxContextTokens int

	// PartialDeltaCount is how many streamed chunks accumulate before a
	// partial callback fires. Defaults to 5.
	PartialDeltaCount int

	// PartialMaxWait is how long the stream may go without a new chunk
	// before a pending partial is flushed anyway; the wait restarts with
	// every chunk. Defaults to 100ms.
	PartialMaxWait time.Duration

	// RequestTimeout bounds one completion call end-to-end. Default 30s.
	RequestTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.PartialDeltaCount <= 0 {
		c.PartialDeltaCount = defaultPartialDeltaCount
	}
	if c.PartialMaxWait <= 0 {
		c.PartialMaxWait = defaultPartialMaxWait
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = defaultRequestTimeout
	}
	return c
}

// Streamer drives one session's chat completions against a provider,
// maintaining the conversation history between calls.
type Streamer struct {
	provider  llm.Provider
	cfg       Config
	sessionID string

	// OnPartial fires as token deltas accumulate, with the full text
	// generated so far in this completion.
	OnPartial func(text string)

	// OnFinal fires once a completion finishes uninterrupted. It does not
	// fire if the call context is cancelled mid-stream (barge-in): an
	// interrupted reply is never committed to history or reported.
	OnFinal func(text string)

	mu      sync.Mutex
	history []llm.Message
}

// New constructs a Streamer for sessionID. If systemPrompt is non-empty it
// seeds the conversation history as a system message.
func New(sessionID string, provider llm.Provider, cfg Config, systemPrompt string) *Streamer {
	var history []llm.Message
	if systemPrompt != "" {
		history = append(history, llm.Message{Role: "system", Content: systemPrompt})
	}
	return &Streamer{
		provider:  provider,
		cfg:       cfg.withDefaults(),
		sessionID: sessionID,
		history:   history,
	}
}

// History returns a snapshot of the current conversation history.
func (s *Streamer) History() []llm.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]llm.Message(nil), s.history...)
}

// Reset clears the conversation history, keeping a leading system message
// if one exists.
func (s *Streamer) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.history) > 0 && s.history[0].Role == "system" {
		s.history = s.history[:1]
		return
	}
	s.history = nil
}

// Complete streams a completion for userText and drives OnPartial/OnFinal.
// The user turn is only added to history once the completion finishes
// uninterrupted — committed together with the assistant's reply in commit.
// If ctx is cancelled before the stream completes, Complete returns
// ctx.Err() and history is left exactly as it was before the call: neither
// the user turn nor an assistant turn is recorded, and no OnFinal fires.
func (s *Streamer) Complete(ctx context.Context, userText string) error {
	s.mu.Lock()
	reqMessages := append(append([]llm.Message(nil), s.history...), llm.Message{Role: "user", Content: userText})
	s.mu.Unlock()

	reqCtx, cancel := context.WithTimeout(ctx, s.cfg.RequestTimeout)
	defer cancel()

	chunks, err := s.provider.StreamCompletion(reqCtx, llm.CompletionRequest{
		Messages:    reqMessages,
		Temperature: s.cfg.Temperature,
		MaxTokens:   s.cfg.MaxTokens,
	})
	if err != nil {
		return fmt.Errorf("llmstream: stream completion: %w", err)
	}

	var full, pending strings.Builder
	deltas := 0
	timer := time.NewTimer(s.cfg.PartialMaxWait)
	defer timer.Stop()

	flush := func() {
		if pending.Len() == 0 {
			return
		}
		full.WriteString(pending.String())
		pending.Reset()
		deltas = 0
		if s.OnPartial != nil {
			s.OnPartial(full.String())
		}
	}

	for {
		select {
		case <-reqCtx.Done():
			go drainChunks(chunks)
			return reqCtx.Err()

		case chunk, ok := <-chunks:
			if !ok {
				flush()
				return s.commit(userText, full.String())
			}
			pending.WriteString(chunk.Text)
			deltas++
			if chunk.FinishReason != "" {
				flush()
				return s.commit(userText, full.String())
			}
			if deltas >= s.cfg.PartialDeltaCount {
				flush()
			}
			timer.Reset(s.cfg.PartialMaxWait)

		case <-timer.C:
			flush()
			timer.Reset(s.cfg.PartialMaxWait)
		}
	}
}

// commit appends the user turn and the assistant's reply to history
// together, so a completion that never reaches here (cancelled mid-stream)
// leaves history untouched rather than holding a user turn with no reply.
func (s *Streamer) commit(userText, assistantText string) error {
	s.mu.Lock()
	s.history = append(s.history,
		llm.Message{Role: "user", Content: userText},
		llm.Message{Role: "assistant", Content: assistantText},
	)
	s.truncateLocked()
	s.mu.Unlock()

	if s.OnFinal != nil {
		s.OnFinal(assistantText)
	}
	return nil
}

// truncateLocked drops the oldest non-system messages until the
// conversation fits MaxContextTokens. Caller holds s.mu.
func (s *Streamer) truncateLocked() {
	if s.cfg.MaxContextTokens <= 0 {
		return
	}
	for estimateTokens(s.history) > s.cfg.MaxContextTokens {
		idx := 0
		if len(s.history) > 0 && s.history[0].Role == "system" {
			idx = 1
		}
		if idx >= len(s.history)-1 {
			return
		}
		s.history = append(s.history[:idx], s.history[idx+1:]...)
	}
}

func estimateTokens(msgs []llm.Message) int {
	total := 0
	for _, m := range msgs {
		total += len(m.Content)/charsPerToken + 1
	}
	return total
}

// drainChunks exhausts a chunk channel after the caller has stopped
// listening, so a provider goroutine blocked on a send does not leak.
func drainChunks(ch <-chan llm.Chunk) {
	for range ch {
	}
}
