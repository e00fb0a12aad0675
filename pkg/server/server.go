// Package server is the HTTP surface of the relief line: the voice webhook
// that opens a media stream, the media-stream websocket itself, the call
// status callback, health and metrics.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/harunnryd/reliefline/pkg/errorsx"
	"github.com/harunnryd/reliefline/pkg/logging"
	"github.com/harunnryd/reliefline/pkg/metrics"
	"github.com/harunnryd/reliefline/pkg/telephony"
)

// CallHandler runs one bridged call over an accepted media stream. It owns
// conn and returns when the call is over.
type CallHandler interface {
	HandleCall(ctx context.Context, callID string, conn *telephony.Conn) error
}

// CallHandlerFunc adapts a function to CallHandler.
type CallHandlerFunc func(ctx context.Context, callID string, conn *telephony.Conn) error

func (f CallHandlerFunc) HandleCall(ctx context.Context, callID string, conn *telephony.Conn) error {
	return f(ctx, callID, conn)
}

type Config struct {
	Addr           string
	PublicURL      string
	VoicePath      string
	StreamPath     string
	StatusPath     string
	VoiceGreeting  string
	AuthToken      string
	AllowAnyOrigin bool
	AllowedOrigins []string
}

func (c Config) withDefaults() Config {
	if c.Addr == "" {
		c.Addr = ":5050"
	}
	if c.VoicePath == "" {
		c.VoicePath = "/incoming-call"
	}
	if c.StreamPath == "" {
		c.StreamPath = "/media-stream"
	}
	if c.StatusPath == "" {
		c.StatusPath = "/status"
	}
	if !c.AllowAnyOrigin && len(c.AllowedOrigins) == 0 {
		c.AllowAnyOrigin = true
	}
	return c
}

type Server struct {
	cfg       Config
	calls     CallHandler
	validator *telephony.Validator
	upgrader  websocket.Upgrader
	metrics   http.Handler
	obs       metrics.Observer
	logger    *slog.Logger
	httpSrv   *http.Server

	// baseCtx parents every call. Shutdown and an expired Drain cancel it.
	baseCtx    context.Context
	cancelBase context.CancelFunc

	mu       sync.Mutex
	active   sync.WaitGroup
	count    atomic.Int64
	draining atomic.Bool
}

// New builds the server. metricsHandler may be nil to leave /metrics unrouted.
func New(cfg Config, calls CallHandler, metricsHandler http.Handler, obs metrics.Observer, logger *slog.Logger) *Server {
	cfg = cfg.withDefaults()
	if logger == nil {
		logger = slog.Default()
	}
	baseCtx, cancel := context.WithCancel(context.Background())
	s := &Server{
		cfg:        cfg,
		calls:      calls,
		validator:  telephony.NewValidator(cfg.AuthToken, cfg.PublicURL),
		metrics:    metricsHandler,
		obs:        metrics.OrNoop(obs),
		logger:     logging.NewComponentLogger(logger, "server"),
		baseCtx:    baseCtx,
		cancelBase: cancel,
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     s.checkOrigin,
	}
	return s
}

// Handler returns the routed mux.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleIndex)
	mux.HandleFunc(s.cfg.VoicePath, s.handleVoice)
	mux.HandleFunc(s.cfg.StreamPath, s.handleStream)
	mux.HandleFunc(s.cfg.StatusPath, s.handleStatus)
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		if s.draining.Load() {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	})
	if s.metrics != nil {
		mux.Handle("/metrics", s.metrics)
	}
	return mux
}

// Start listens in the background until ctx is done or Shutdown is called.
func (s *Server) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	s.httpSrv = &http.Server{
		Addr:              s.cfg.Addr,
		ReadHeaderTimeout: 5 * time.Second,
		Handler:           s.Handler(),
	}
	go func() {
		<-ctx.Done()
		_ = s.httpSrv.Close()
	}()
	go func() {
		if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("http_server_error", "error", err.Error())
		}
	}()
	s.logger.Info("http_server_listening", "addr", s.cfg.Addr, "voice_webhook", s.cfg.VoicePath, "stream", s.cfg.StreamPath)
	return nil
}

// ActiveCalls is the number of calls currently bridged.
func (s *Server) ActiveCalls() int {
	return int(s.count.Load())
}

// Drain refuses new streams and waits for active calls to finish or for ctx
// to end, in which case the remaining calls are cancelled.
func (s *Server) Drain(ctx context.Context) error {
	s.mu.Lock()
	s.draining.Store(true)
	s.mu.Unlock()
	done := make(chan struct{})
	go func() {
		s.active.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		s.cancelBase()
		<-done
		return ctx.Err()
	}
}

// Shutdown stops the listener and cancels any call still running.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.draining.Store(true)
	s.mu.Unlock()
	s.cancelBase()
	if s.httpSrv == nil {
		return nil
	}
	return s.httpSrv.Shutdown(ctx)
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write([]byte(indexPage))
}

const indexPage = "<html><body><h1>Twilio Media Stream Server is running!</h1></body></html>"

func (s *Server) handleVoice(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if !s.validator.ValidateRequest(r) {
		s.logger.Warn("twilio_invalid_signature", "path", r.URL.Path, "reason_code", string(errorsx.ReasonTransportInvalidSignature))
		w.WriteHeader(http.StatusForbidden)
		return
	}
	s.logger.Info("incoming_call", "remote", r.RemoteAddr, "call_sid", r.FormValue("CallSid"))
	twiml := telephony.ConnectTwiML(telephony.StreamURL(s.cfg.PublicURL, r.Host, s.cfg.StreamPath), s.cfg.VoiceGreeting)
	w.Header().Set("Content-Type", "application/xml")
	_, _ = w.Write([]byte(twiml))
}

func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	if s.draining.Load() {
		s.mu.Unlock()
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}
	s.active.Add(1)
	s.mu.Unlock()
	defer s.active.Done()

	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("stream_upgrade_failed", "error", err.Error())
		return
	}
	conn := telephony.NewConn(ws)
	s.count.Add(1)
	defer s.count.Add(-1)
	callID := uuid.NewString()
	if err := s.calls.HandleCall(s.baseCtx, callID, conn); err != nil {
		s.logger.Error("call_error", "call_id", callID, errorsx.Attr(err), "error", err.Error())
	}
	_ = conn.Close()
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if !s.validator.ValidateRequest(r) {
		s.logger.Warn("twilio_status_invalid_signature", "reason_code", string(errorsx.ReasonTransportInvalidSignature))
		w.WriteHeader(http.StatusForbidden)
		return
	}
	if err := r.ParseForm(); err != nil {
		w.WriteHeader(http.StatusOK)
		return
	}
	callSID := r.FormValue("CallSid")
	raw := r.FormValue("CallStatus")
	status := telephony.NormalizeCallStatus(raw)
	s.logger.Info("call_status", "call_sid", callSID, "status", raw, "normalized", status)
	if status != "" {
		s.obs.RecordEvent(metrics.NewEvent(metrics.EventCallStatus, 1, map[string]string{"status": status}))
	}
	w.WriteHeader(http.StatusOK)
}

func (s *Server) checkOrigin(r *http.Request) bool {
	if s.cfg.AllowAnyOrigin {
		return true
	}
	origin := strings.TrimSpace(r.Header.Get("Origin"))
	if origin == "" {
		return true
	}
	origin = strings.TrimRight(origin, "/")
	originHost := strings.TrimPrefix(origin, "https://")
	originHost = strings.TrimPrefix(originHost, "http://")
	for _, allowed := range s.cfg.AllowedOrigins {
		a := strings.TrimRight(strings.TrimSpace(allowed), "/")
		if a == "" {
			continue
		}
		if strings.HasPrefix(a, "http://") || strings.HasPrefix(a, "https://") {
			if strings.EqualFold(a, origin) {
				return true
			}
			continue
		}
		if strings.EqualFold(a, originHost) {
			return true
		}
	}
	return false
}
