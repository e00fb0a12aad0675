package bridge

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/harunnryd/reliefline/pkg/errorsx"
	"github.com/harunnryd/reliefline/pkg/metrics"
	"github.com/harunnryd/reliefline/pkg/realtime"
	"github.com/harunnryd/reliefline/pkg/redact"
	"github.com/harunnryd/reliefline/pkg/telephony"
	"github.com/harunnryd/reliefline/pkg/transcript"
)

// OutboundPump plays AI audio to the caller, records AI turns and reacts to
// caller barge-in.
type OutboundPump struct {
	state       *State
	tel         TelephonyChannel
	ai          AIChannel
	recorder    *transcript.Recorder
	interrupter *Interrupter
	obs         metrics.Observer
	logger      *slog.Logger
}

func NewOutboundPump(state *State, tel TelephonyChannel, ai AIChannel, recorder *transcript.Recorder, interrupter *Interrupter, obs metrics.Observer, logger *slog.Logger) *OutboundPump {
	if logger == nil {
		logger = slog.Default()
	}
	if interrupter == nil {
		interrupter = NewInterrupter(state, tel, ai, obs, logger)
	}
	return &OutboundPump{
		state:       state,
		tel:         tel,
		ai:          ai,
		recorder:    recorder,
		interrupter: interrupter,
		obs:         metrics.OrNoop(obs),
		logger:      logger,
	}
}

// Run reads AI events until the channel closes. An event that cannot be
// decoded ends the pump with an error; a closed channel returns nil.
func (p *OutboundPump) Run(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("outbound pump panic: %v", r)
			p.logger.ErrorContext(ctx, "outbound_pump_panic", "stream_id", p.state.StreamID(), "panic", r)
		}
	}()
	for {
		ev, rerr := p.ai.Recv()
		if rerr != nil {
			if errorsx.HasReason(rerr, errorsx.ReasonRealtimeDecode) {
				p.logger.ErrorContext(ctx, "realtime_event_invalid", "stream_id", p.state.StreamID(), "reason_code", string(errorsx.ReasonRealtimeDecode), "error", rerr.Error())
				return rerr
			}
			p.logger.DebugContext(ctx, "realtime_closed", "stream_id", p.state.StreamID(), "error", rerr.Error())
			return nil
		}
		p.handle(ctx, ev)
	}
}

func (p *OutboundPump) handle(ctx context.Context, ev realtime.ServerEvent) {
	switch ev.Type {
	case realtime.EventTypeResponseDone:
		p.onResponseDone(ctx, ev)
	case realtime.EventTypeResponseAudioDelta:
		p.onAudioDelta(ctx, ev)
	case realtime.EventTypeInputAudioBufferSpeechStart:
		if item, _, _ := p.state.ActiveResponse(); item != "" {
			p.interrupter.Interrupt(ctx)
		}
	case realtime.EventTypeInputAudioBufferSpeechStop:
		p.obs.RecordEvent(metrics.NewEvent(metrics.EventSpeechStopped, 1, nil))
	case realtime.EventTypeInputAudioTranscriptionDone:
		if ev.Transcript != "" {
			p.recorder.Append(transcript.Turn{Role: transcript.RoleCaller, Text: ev.Transcript})
			p.logger.DebugContext(ctx, "caller_turn", "stream_id", p.state.StreamID(), "text", redact.Clip(ev.Transcript, 120))
		}
	case realtime.EventTypeError:
		attrs := []any{"stream_id", p.state.StreamID()}
		if ev.Error != nil {
			attrs = append(attrs, "code", ev.Error.Code, "error", ev.Error.Message)
		}
		p.logger.ErrorContext(ctx, "realtime_error_event", attrs...)
	}
}

func (p *OutboundPump) onResponseDone(ctx context.Context, ev realtime.ServerEvent) {
	text, ok := ev.Response.FirstTranscript()
	if !ok {
		return
	}
	p.recorder.Append(transcript.Turn{Role: transcript.RoleAI, Text: text})
	p.logger.DebugContext(ctx, "ai_turn", "stream_id", p.state.StreamID(), "text", redact.Clip(text, 120))

	term := transcript.Classify(text)
	if !term.Ends() {
		return
	}
	if term == transcript.TerminationEscalation {
		p.recorder.Append(transcript.Turn{Role: transcript.RoleAI, Text: transcript.EscalatedMarker})
	}
	if p.recorder.Finalize(ctx, term.String()) {
		p.obs.RecordEvent(metrics.NewEvent(metrics.EventTranscriptFinalized, 1, map[string]string{"reason": term.String()}))
	}
}

func (p *OutboundPump) onAudioDelta(ctx context.Context, ev realtime.ServerEvent) {
	if ev.Delta == "" {
		return
	}
	streamID := p.state.StreamID()
	if err := p.tel.Send(telephony.MediaFrame(streamID, ev.Delta)); err != nil {
		p.logger.WarnContext(ctx, "audio_forward_failed", "stream_id", streamID, errorsx.Attr(err), "error", err.Error())
		return
	}
	p.obs.RecordEvent(metrics.NewEvent(metrics.EventAudioOut, 1, nil))
	p.state.BeginAudio(ev.ItemID)
	if streamID == "" {
		return
	}
	// The mark is queued before it is sent so its ack can never arrive first.
	p.state.PushMark(telephony.ResponsePartMark)
	if err := p.tel.Send(telephony.MarkFrame(streamID, telephony.ResponsePartMark)); err != nil {
		p.logger.WarnContext(ctx, "mark_send_failed", "stream_id", streamID, "error", err.Error())
	}
}
