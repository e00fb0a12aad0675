package bridge

import (
	"context"
	"log/slog"

	"github.com/harunnryd/reliefline/pkg/errorsx"
	"github.com/harunnryd/reliefline/pkg/metrics"
	"github.com/harunnryd/reliefline/pkg/realtime"
	"github.com/harunnryd/reliefline/pkg/telephony"
	"github.com/harunnryd/reliefline/pkg/transcript"
)

// InboundPump forwards caller audio from telephony to the AI and tracks the
// stream lifecycle.
type InboundPump struct {
	state    *State
	tel      TelephonyChannel
	ai       AIChannel
	recorder *transcript.Recorder
	obs      metrics.Observer
	logger   *slog.Logger
}

func NewInboundPump(state *State, tel TelephonyChannel, ai AIChannel, recorder *transcript.Recorder, obs metrics.Observer, logger *slog.Logger) *InboundPump {
	if logger == nil {
		logger = slog.Default()
	}
	return &InboundPump{state: state, tel: tel, ai: ai, recorder: recorder, obs: metrics.OrNoop(obs), logger: logger}
}

// Run reads frames until the channel closes or a stop frame arrives. A
// disconnect is the normal end of a call and returns nil.
func (p *InboundPump) Run(ctx context.Context) error {
	for {
		f, err := p.tel.Recv()
		if err != nil {
			if errorsx.HasReason(err, errorsx.ReasonTelephonyDecode) {
				p.dropped(ctx, "malformed", err)
				continue
			}
			p.logger.DebugContext(ctx, "telephony_closed", "stream_id", p.state.StreamID(), "error", err.Error())
			return nil
		}
		if done := p.handle(ctx, f); done {
			return nil
		}
	}
}

func (p *InboundPump) handle(ctx context.Context, f telephony.Frame) bool {
	switch f.Event {
	case telephony.EventMedia:
		if f.Media == nil || !f.Media.Timestamp.Valid {
			p.dropped(ctx, "media_without_timestamp", nil)
			return false
		}
		p.state.ObserveMedia(f.Media.Timestamp.Ms)
		p.obs.RecordEvent(metrics.NewEvent(metrics.EventMediaIn, 1, nil))
		if err := p.ai.Send(realtime.NewInputAudioAppend(f.Media.Payload)); err != nil {
			p.logger.WarnContext(ctx, "audio_append_failed", "stream_id", p.state.StreamID(), errorsx.Attr(err), "error", err.Error())
		}
	case telephony.EventStart:
		if f.Start == nil {
			p.dropped(ctx, "start_without_body", nil)
			return false
		}
		p.state.Start(f.Start.StreamSID, f.Start.CallSID)
		p.recorder.SetStreamID(f.Start.StreamSID)
		p.logger.InfoContext(ctx, "stream_started", "stream_id", f.Start.StreamSID, "call_sid", f.Start.CallSID)
	case telephony.EventMark:
		if _, ok := p.state.AckMark(); !ok {
			p.obs.RecordEvent(metrics.NewEvent(metrics.EventMarkAckEmpty, 1, nil))
			p.logger.DebugContext(ctx, "mark_ack_on_empty_queue", "stream_id", p.state.StreamID())
			return false
		}
		p.obs.RecordEvent(metrics.NewEvent(metrics.EventMarkAck, 1, nil))
	case telephony.EventStop:
		p.logger.InfoContext(ctx, "stream_stopped", "stream_id", p.state.StreamID())
		if p.recorder.Finalize(ctx, transcript.ReasonStreamStop) {
			p.obs.RecordEvent(metrics.NewEvent(metrics.EventTranscriptFinalized, 1, map[string]string{"reason": transcript.ReasonStreamStop}))
		}
		return true
	}
	return false
}

func (p *InboundPump) dropped(ctx context.Context, why string, err error) {
	p.obs.RecordEvent(metrics.NewEvent(metrics.EventFrameDropped, 1, map[string]string{"leg": "telephony", "why": why}))
	attrs := []any{"stream_id", p.state.StreamID(), "why", why}
	if err != nil {
		attrs = append(attrs, errorsx.Attr(err), "error", err.Error())
	}
	p.logger.WarnContext(ctx, "telephony_frame_dropped", attrs...)
}
