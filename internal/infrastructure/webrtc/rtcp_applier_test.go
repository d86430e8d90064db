package webrtc

import (
	"context"
	"errors"
	"sync"
	"testing"

	"telemed/internal/core/domain"

	"github.com/pion/rtcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type recordingWriter struct {
	mu      sync.Mutex
	packets []rtcp.Packet
	err     error
}

func (w *recordingWriter) WriteRTCP(pkts []rtcp.Packet) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil {
		return w.err
	}
	// round-trip through the wire format like a real transport
	raw, err := rtcp.Marshal(pkts)
	if err != nil {
		return err
	}
	decoded, err := rtcp.Unmarshal(raw)
	if err != nil {
		return err
	}
	w.packets = append(w.packets, decoded...)
	return nil
}

func TestRTCPApplier_ApplyConstraintsSendsREMB(t *testing.T) {
	writer := &recordingWriter{}
	applier := NewRTCPApplier(writer, nil, zaptest.NewLogger(t).Sugar())
	applier.SetVideoSSRCs(1111, 2222)

	low := domain.DefaultQualityPresets()[domain.LevelLow]
	require.NoError(t, applier.ApplyConstraints(context.Background(), low))

	require.Len(t, writer.packets, 1)
	remb, ok := writer.packets[0].(*rtcp.ReceiverEstimatedMaximumBitrate)
	require.True(t, ok)
	assert.Equal(t, []uint32{1111, 2222}, remb.SSRCs)
	// 320*240*15*0.1 = 115200; REMB encoding keeps 18 bits of mantissa
	assert.InDelta(t, 115200, remb.Bitrate, 1)
}

func TestRTCPApplier_ApplyConstraintsErrors(t *testing.T) {
	logger := zaptest.NewLogger(t).Sugar()
	c := domain.DefaultQualityPresets()[domain.LevelMax]

	applier := NewRTCPApplier(&recordingWriter{}, nil, logger)
	assert.Error(t, applier.ApplyConstraints(context.Background(), c), "no ssrc")

	failing := NewRTCPApplier(&recordingWriter{err: errors.New("transport closed")}, nil, logger)
	failing.SetVideoSSRCs(1)
	assert.Error(t, failing.ApplyConstraints(context.Background(), c))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, failing.ApplyConstraints(ctx, c), context.Canceled)
}

func TestRTCPApplier_AudioOnly(t *testing.T) {
	writer := &recordingWriter{}
	gate := NewVideoGate()
	applier := NewRTCPApplier(writer, gate, zaptest.NewLogger(t).Sugar())
	applier.SetVideoSSRCs(42)

	require.NoError(t, applier.SetAudioOnly(context.Background(), true))
	assert.True(t, gate.AudioOnly())
	require.Len(t, writer.packets, 1)
	remb := writer.packets[0].(*rtcp.ReceiverEstimatedMaximumBitrate)
	assert.InDelta(t, audioOnlyBitrate, remb.Bitrate, 1)

	require.NoError(t, applier.SetAudioOnly(context.Background(), false))
	assert.False(t, gate.AudioOnly())
	require.Len(t, writer.packets, 2)
	pli, ok := writer.packets[1].(*rtcp.PictureLossIndication)
	require.True(t, ok)
	assert.Equal(t, uint32(42), pli.MediaSSRC)
}

func TestRTCPApplier_AudioOnlyWriteFailureKeepsGate(t *testing.T) {
	writer := &recordingWriter{err: errors.New("closed")}
	gate := NewVideoGate()
	applier := NewRTCPApplier(writer, gate, zaptest.NewLogger(t).Sugar())
	applier.SetVideoSSRCs(42)

	assert.Error(t, applier.SetAudioOnly(context.Background(), true))
	assert.False(t, gate.AudioOnly())
}

func TestBitrateFor(t *testing.T) {
	assert.InDelta(t, 2764800, BitrateFor(domain.DefaultQualityPresets()[domain.LevelMax]), 1)
}
