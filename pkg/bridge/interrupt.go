package bridge

import (
	"context"
	"log/slog"
	"strconv"

	"github.com/harunnryd/reliefline/pkg/metrics"
	"github.com/harunnryd/reliefline/pkg/realtime"
	"github.com/harunnryd/reliefline/pkg/telephony"
)

// Interrupter handles caller barge-in: it tells the AI how much of the
// playing response was heard and drops the audio still buffered at Twilio.
type Interrupter struct {
	state  *State
	tel    TelephonyChannel
	ai     AIChannel
	obs    metrics.Observer
	logger *slog.Logger
}

func NewInterrupter(state *State, tel TelephonyChannel, ai AIChannel, obs metrics.Observer, logger *slog.Logger) *Interrupter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Interrupter{state: state, tel: tel, ai: ai, obs: metrics.OrNoop(obs), logger: logger}
}

// Interrupt is a no-op when no response is playing, so a second call in a
// row does nothing. It reports whether an interruption took place.
func (i *Interrupter) Interrupt(ctx context.Context) bool {
	snap, ok := i.state.snapshotInterruption()
	if !ok {
		return false
	}
	tags := map[string]string{"stream_id": snap.streamID}
	i.obs.RecordEvent(metrics.NewEvent(metrics.EventInterruption, float64(snap.elapsedMs), tags))

	if snap.pendingMarks > 0 && snap.hasStart {
		ev := realtime.NewItemTruncate(snap.itemID, 0, snap.elapsedMs)
		if err := i.ai.Send(ev); err != nil {
			i.logger.WarnContext(ctx, "truncate_send_failed", "stream_id", snap.streamID, "item_id", snap.itemID, "error", err.Error())
		} else {
			i.obs.RecordEvent(metrics.NewEvent(metrics.EventTruncateSent, float64(snap.elapsedMs), tags))
			i.logger.DebugContext(ctx, "truncate_sent", "stream_id", snap.streamID, "item_id", snap.itemID, "audio_end_ms", strconv.FormatInt(snap.elapsedMs, 10))
		}
	}
	if err := i.tel.Send(telephony.ClearFrame(snap.streamID)); err != nil {
		i.logger.WarnContext(ctx, "clear_send_failed", "stream_id", snap.streamID, "error", err.Error())
	}
	i.state.resetResponse()
	i.logger.InfoContext(ctx, "response_interrupted", "stream_id", snap.streamID, "item_id", snap.itemID, "elapsed_ms", snap.elapsedMs, "pending_marks", snap.pendingMarks)
	return true
}
