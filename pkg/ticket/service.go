package ticket

import (
	"context"
	"log/slog"
	"time"

	"github.com/harunnryd/reliefline/pkg/errorsx"
	"github.com/harunnryd/reliefline/pkg/logging"
	"github.com/harunnryd/reliefline/pkg/metrics"
	"github.com/harunnryd/reliefline/pkg/transcript"
)

// Service is the transcript sink of the relief line: classify, then store.
type Service struct {
	classifier Classifier
	store      Store
	obs        metrics.Observer
	logger     *slog.Logger
	now        func() time.Time
}

var _ transcript.Sink = (*Service)(nil)

// NewService builds the sink. A nil classifier stores transcripts unclassified.
func NewService(classifier Classifier, store Store, obs metrics.Observer, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		classifier: classifier,
		store:      store,
		obs:        metrics.OrNoop(obs),
		logger:     logging.NewComponentLogger(logger, "ticket"),
		now:        time.Now,
	}
}

// Deliver creates a ticket for h. A classification failure still stores the
// transcript; only a storage failure is returned.
func (s *Service) Deliver(ctx context.Context, h transcript.Handoff) error {
	t := Ticket{
		ID:         NewID(),
		CallID:     h.CallID,
		StreamID:   h.StreamID,
		CreatedAt:  s.now().UTC(),
		Status:     StatusPending,
		Reason:     h.Reason,
		Escalated:  h.Escalated(),
		Transcript: h.Turns,
	}
	if s.classifier != nil {
		fields, err := s.classifier.Classify(ctx, h.Turns)
		if err != nil {
			s.obs.RecordEvent(metrics.NewEvent(metrics.EventClassifyFailed, 1, map[string]string{"reason_code": string(errorsx.Reason(err))}))
			s.logger.WarnContext(ctx, "ticket_classify_failed", "call_id", h.CallID, errorsx.Attr(err), "error", err.Error())
		} else {
			t.Fields = fields
			t.Classified = true
		}
	}
	if err := s.store.Put(ctx, t); err != nil {
		s.logger.ErrorContext(ctx, "ticket_store_failed", "call_id", h.CallID, "ticket_id", t.ID, "error", err.Error())
		return err
	}
	s.obs.RecordEvent(metrics.NewEvent(metrics.EventTicketCreated, 1, map[string]string{"escalated": boolTag(t.Escalated)}))
	s.logger.InfoContext(ctx, "ticket_created", "call_id", h.CallID, "ticket_id", t.ID, "escalated", t.Escalated, "classified", t.Classified, "type", t.Fields.TicketType)
	return nil
}

func boolTag(v bool) string {
	if v {
		return "true"
	}
	return "false"
}
