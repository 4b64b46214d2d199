package pipeline

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voxstream/coordinator/pkg/provider/llm"
	llmmock "github.com/voxstream/coordinator/pkg/provider/llm/mock"
	"github.com/voxstream/coordinator/pkg/provider/stt"
	sttmock "github.com/voxstream/coordinator/pkg/provider/stt/mock"
	ttsmock "github.com/voxstream/coordinator/pkg/provider/tts/mock"
)

func TestNewSessionID_ReturnsDistinctIDs(t *testing.T) {
	a, b := NewSessionID(), NewSessionID()
	assert.NotEqual(t, a, b)
	assert.NotEmpty(t, a)
}

func TestCoordinator_StartRejectsDuplicateAndOverCapacity(t *testing.T) {
	c := NewCoordinator(1, nil, nil)
	deps := testDeps(&sttmock.Provider{Results: []stt.Transcript{{Text: "hi"}}}, &llmmock.Provider{StreamChunks: []llm.Chunk{{FinishReason: "stop"}}}, &ttsmock.Provider{})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	_, err := c.Start(ctx, "sess1", newFakeConn(), deps)
	require.NoError(t, err)

	_, err = c.Start(ctx, "sess1", newFakeConn(), deps)
	assert.ErrorIs(t, err, ErrSessionExists)

	_, err = c.Start(ctx, "sess2", newFakeConn(), deps)
	assert.ErrorIs(t, err, ErrAtCapacity)
}

func TestCoordinator_StopCancelsAndRemovesSession(t *testing.T) {
	c := NewCoordinator(5, nil, nil)
	deps := testDeps(&sttmock.Provider{Results: []stt.Transcript{{Text: "hi"}}}, &llmmock.Provider{StreamChunks: []llm.Chunk{{FinishReason: "stop"}}}, &ttsmock.Provider{})

	_, err := c.Start(context.Background(), "sess1", newFakeConn(), deps)
	require.NoError(t, err)

	require.NoError(t, c.Stop("sess1"))

	waitFor(t, time.Second, func() bool { return c.Count() == 0 })

	_, ok := c.Get("sess1")
	assert.False(t, ok)
}

func TestCoordinator_StopUnknownSessionErrors(t *testing.T) {
	c := NewCoordinator(5, nil, nil)
	assert.Error(t, c.Stop("ghost"))
}
