package ingress

import (
	"context"
	"encoding/binary"
	"testing"
	"time"

	"github.com/voxstream/coordinator/pkg/transport"
)

// fakeConn is a minimal transport.Connection backed by a channel, for Run tests.
type fakeConn struct {
	audioCh chan transport.AudioFrame
	dgCh    chan transport.Datagram
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		audioCh: make(chan transport.AudioFrame, 8),
		dgCh:    make(chan transport.Datagram, 1),
	}
}

func (c *fakeConn) InboundAudio() <-chan transport.AudioFrame         { return c.audioCh }
func (c *fakeConn) InboundDatagrams() <-chan transport.Datagram       { return c.dgCh }
func (c *fakeConn) Publish(context.Context, transport.Datagram, bool) error { return nil }
func (c *fakeConn) EmitAudioFrame(context.Context, []byte) error            { return nil }
func (c *fakeConn) Close() error                                            { close(c.audioCh); close(c.dgCh); return nil }

func mono16Samples(n int, value int16) []byte {
	buf := make([]byte, n*2)
	for i := 0; i < n; i++ {
		binary.LittleEndian.PutUint16(buf[i*2:], uint16(value))
	}
	return buf
}

func TestRollingBuffer_AppendAndSnapshot(t *testing.T) {
	buf := NewRollingBuffer(10)
	buf.Append(mono16Samples(4, 100))
	if buf.Len() != 4 {
		t.Fatalf("Len() = %d, want 4", buf.Len())
	}
	snap := buf.Snapshot()
	if len(snap) != 8 {
		t.Fatalf("snapshot bytes = %d, want 8", len(snap))
	}
}

func TestRollingBuffer_OverflowDiscardsOldest(t *testing.T) {
	buf := NewRollingBuffer(5)
	buf.Append(mono16Samples(3, 1))
	buf.Append(mono16Samples(3, 2))
	if buf.Len() != 5 {
		t.Fatalf("Len() = %d, want 5", buf.Len())
	}
	snap := buf.Snapshot()
	last := int16(binary.LittleEndian.Uint16(snap[len(snap)-2:]))
	if last != 2 {
		t.Errorf("last sample = %d, want 2", last)
	}
}

func TestIngress_Run_ConvertsAndAppends(t *testing.T) {
	buf := NewRollingBuffer(0)
	ig := New("sess-1", buf)
	conn := newFakeConn()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		ig.Run(ctx, conn)
		close(done)
	}()

	// 48kHz mono frame of 480 samples (10ms) should downsample to ~160 samples at 16kHz.
	conn.audioCh <- transport.AudioFrame{
		Samples:           mono16Samples(480, 1000),
		SampleRate:        48000,
		Channels:          1,
		SamplesPerChannel: 480,
	}

	deadline := time.After(time.Second)
	for buf.Len() == 0 {
		select {
		case <-deadline:
			t.Fatal("timed out waiting for buffered samples")
		default:
			time.Sleep(time.Millisecond)
		}
	}

	if got := buf.Len(); got < 150 || got > 170 {
		t.Errorf("buffered samples = %d, want ~160", got)
	}

	cancel()
	<-done
}

func TestIngress_Run_DropsMalformedFrame(t *testing.T) {
	buf := NewRollingBuffer(0)
	ig := New("sess-1", buf)
	conn := newFakeConn()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		ig.Run(ctx, conn)
		close(done)
	}()

	conn.audioCh <- transport.AudioFrame{Samples: []byte{0x01}, SampleRate: 48000, Channels: 1}
	cancel()
	<-done

	if buf.Len() != 0 {
		t.Errorf("buffer should remain empty after malformed frame, got len=%d", buf.Len())
	}
	if ig.droppedBad != 1 {
		t.Errorf("droppedBad = %d, want 1", ig.droppedBad)
	}
}

func TestIngress_Run_StopsOnClose(t *testing.T) {
	buf := NewRollingBuffer(0)
	ig := New("sess-1", buf)
	conn := newFakeConn()

	done := make(chan struct{})
	go func() {
		ig.Run(context.Background(), conn)
		close(done)
	}()

	close(conn.audioCh)
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after channel close")
	}
}

func TestIngress_LastFrameAt_AdvancesOnEveryFrame(t *testing.T) {
	buf := NewRollingBuffer(0)
	ig := New("sess-1", buf)
	conn := newFakeConn()

	createdAt := ig.LastFrameAt()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		ig.Run(ctx, conn)
		close(done)
	}()

	time.Sleep(5 * time.Millisecond)
	conn.audioCh <- transport.AudioFrame{Samples: mono16Samples(160, 1000), SampleRate: 16000, Channels: 1, SamplesPerChannel: 160}

	deadline := time.After(time.Second)
	for !ig.LastFrameAt().After(createdAt) {
		select {
		case <-deadline:
			t.Fatal("timed out waiting for LastFrameAt to advance")
		default:
			time.Sleep(time.Millisecond)
		}
	}

	cancel()
	<-done
}

func TestIngress_LastFrameAt_AdvancesOnMalformedFrameToo(t *testing.T) {
	buf := NewRollingBuffer(0)
	ig := New("sess-1", buf)
	conn := newFakeConn()

	createdAt := ig.LastFrameAt()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		ig.Run(ctx, conn)
		close(done)
	}()

	time.Sleep(5 * time.Millisecond)
	conn.audioCh <- transport.AudioFrame{Samples: []byte{0x01}, SampleRate: 48000, Channels: 1}

	deadline := time.After(time.Second)
	for !ig.LastFrameAt().After(createdAt) {
		select {
		case <-deadline:
			t.Fatal("timed out waiting for LastFrameAt to advance")
		default:
			time.Sleep(time.Millisecond)
		}
	}

	cancel()
	<-done
}
