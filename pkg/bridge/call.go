// Package bridge relays one phone call between a Twilio media stream and the
// OpenAI realtime API. Two pumps share a per-call State; either one exiting
// ends the call, and the transcript is finalized once both have returned.
package bridge

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/harunnryd/reliefline/pkg/logging"
	"github.com/harunnryd/reliefline/pkg/metrics"
	"github.com/harunnryd/reliefline/pkg/transcript"
	"golang.org/x/sync/errgroup"
)

// CallConfig wires one call.
type CallConfig struct {
	ID        string
	Telephony TelephonyChannel
	AI        AIChannel
	Sink      transcript.Sink
	Session   SessionOptions
	Observer  metrics.Observer
	Logger    *slog.Logger
}

// Call owns the state and both pumps of one bridged call.
type Call struct {
	id       string
	tel      TelephonyChannel
	ai       AIChannel
	session  SessionOptions
	state    *State
	recorder *transcript.Recorder
	inbound  *InboundPump
	outbound *OutboundPump
	obs      metrics.Observer
	logger   *slog.Logger

	closeOnce sync.Once
}

func NewCall(cfg CallConfig) *Call {
	id := cfg.ID
	if id == "" {
		id = uuid.NewString()
	}
	base := cfg.Logger
	if base == nil {
		base = slog.Default()
	}
	logger := logging.NewComponentLogger(base, "bridge").With("call_id", id)
	state := NewState()
	obs := metrics.NewTaggedObserver(cfg.Observer, func() map[string]string {
		return map[string]string{"call_id": id, "stream_id": state.StreamID()}
	})
	recorder := transcript.NewRecorder(id, cfg.Sink, base)
	interrupter := NewInterrupter(state, cfg.Telephony, cfg.AI, obs, logger)
	return &Call{
		id:       id,
		tel:      cfg.Telephony,
		ai:       cfg.AI,
		session:  cfg.Session,
		state:    state,
		recorder: recorder,
		inbound:  NewInboundPump(state, cfg.Telephony, cfg.AI, recorder, obs, logger),
		outbound: NewOutboundPump(state, cfg.Telephony, cfg.AI, recorder, interrupter, obs, logger),
		obs:      obs,
		logger:   logger,
	}
}

func (c *Call) ID() string { return c.id }

func (c *Call) State() *State { return c.state }

func (c *Call) Recorder() *transcript.Recorder { return c.recorder }

// Run initializes the AI session and relays until either leg ends. Both
// channels are closed when it returns. The returned error is the first pump
// failure; a normal hang-up returns nil.
func (c *Call) Run(ctx context.Context) error {
	started := time.Now()
	c.obs.RecordEvent(metrics.NewEvent(metrics.EventCallStarted, 1, nil))
	c.logger.InfoContext(ctx, "call_started")
	defer func() {
		elapsed := time.Since(started)
		c.obs.RecordEvent(metrics.NewEvent(metrics.EventCallEnded, elapsed.Seconds(), nil))
		c.logger.InfoContext(ctx, "call_ended", "stream_id", c.state.StreamID(), "duration_ms", elapsed.Milliseconds())
	}()

	if err := InitSession(ctx, c.ai, c.session); err != nil {
		c.logger.ErrorContext(ctx, "session_init_failed", "error", err.Error())
		c.closeChannels()
		return err
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(runCtx, c.closeChannels)
	defer stop()

	var g errgroup.Group
	g.Go(func() error {
		defer cancel()
		return c.inbound.Run(runCtx)
	})
	g.Go(func() error {
		defer cancel()
		return c.outbound.Run(runCtx)
	})
	err := g.Wait()
	c.closeChannels()

	if c.recorder.Finalize(context.WithoutCancel(ctx), transcript.ReasonCallEnd) {
		c.obs.RecordEvent(metrics.NewEvent(metrics.EventTranscriptFinalized, 1, map[string]string{"reason": transcript.ReasonCallEnd}))
	}
	if err != nil {
		c.logger.ErrorContext(ctx, "call_failed", "stream_id", c.state.StreamID(), "error", err.Error())
	}
	return err
}

func (c *Call) closeChannels() {
	c.closeOnce.Do(func() {
		if c.tel != nil {
			_ = c.tel.Close()
		}
		if c.ai != nil {
			_ = c.ai.Close()
		}
	})
}
