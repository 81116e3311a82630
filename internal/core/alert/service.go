package alert

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/MuhamadAgungGumelar/wa-chatbot-billing-be/internal/shared/utils"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/datatypes"
)

// ErrClosed is returned by Close when called twice.
var ErrClosed = errors.New("alert service closed")

// Config tunes the alert service.
type Config struct {
	Buffer        int
	SubjectPrefix string
}

// Service records alerts without ever blocking the caller. Emit queues the
// alert; a single worker persists it, publishes it and, for critical alerts,
// notifies the operator.
type Service struct {
	store     Store
	publisher Publisher
	notifier  Notifier
	prefix    string
	log       zerolog.Logger

	queue  chan *Alert
	mu     sync.RWMutex
	closed bool
	done   chan struct{}
	now    func() time.Time
}

// NewService starts the worker. publisher and notifier may be nil.
func NewService(cfg Config, store Store, publisher Publisher, notifier Notifier, logger zerolog.Logger) *Service {
	if cfg.Buffer <= 0 {
		cfg.Buffer = 256
	}
	s := &Service{
		store:     store,
		publisher: publisher,
		notifier:  notifier,
		prefix:    cfg.SubjectPrefix,
		log:       logger.With().Str("component", "alert").Logger(),
		queue:     make(chan *Alert, cfg.Buffer),
		done:      make(chan struct{}),
		now:       time.Now,
	}
	go s.run()
	return s
}

// Emit queues an alert. It never blocks and never fails: when the queue is
// full or the service is closed the alert is logged and dropped.
func (s *Service) Emit(ctx context.Context, a Alert) {
	if a.CorrelationID == "" {
		a.CorrelationID = utils.CorrelationID(ctx)
	}
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = s.now().UTC()
	}

	s.logAlert(&a)

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		s.log.Warn().Str("category", string(a.Category)).Msg("⚠️ Alert dropped, service closed")
		return
	}

	select {
	case s.queue <- &a:
	default:
		s.log.Warn().Str("category", string(a.Category)).Msg("⚠️ Alert dropped, queue full")
	}
}

// List returns stored alerts, newest first.
func (s *Service) List(ctx context.Context, filter Filter) (*ListResponse, error) {
	return s.store.List(ctx, filter)
}

// Close stops accepting alerts and waits for the queue to drain or ctx to
// expire.
func (s *Service) Close(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	s.closed = true
	close(s.queue)
	s.mu.Unlock()

	select {
	case <-s.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Service) run() {
	defer close(s.done)
	for a := range s.queue {
		s.deliver(a)
	}
}

func (s *Service) deliver(a *Alert) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	logger := s.log.With().
		Str("alert_id", a.ID.String()).
		Str("correlation_id", a.CorrelationID).
		Logger()

	if s.store != nil {
		if err := s.store.Save(ctx, a); err != nil {
			logger.Error().Err(err).Msg("❌ Failed to persist alert")
		}
	}

	if s.publisher != nil {
		data, err := json.Marshal(a)
		if err == nil {
			err = s.publisher.Publish(ctx, Subject(s.prefix, a.Severity, a.Category), data, map[string]string{
				"Correlation-Id": a.CorrelationID,
			})
		}
		if err != nil {
			logger.Warn().Err(err).Msg("⚠️ Failed to publish alert")
		}
	}

	if s.notifier != nil && a.Severity == SeverityCritical {
		if err := s.notifier.Notify(ctx, a); err != nil {
			logger.Warn().Err(err).Msg("⚠️ Failed to notify admin")
		}
	}
}

func (s *Service) logAlert(a *Alert) {
	var evt *zerolog.Event
	switch a.Severity {
	case SeverityCritical, SeverityHigh:
		evt = s.log.Error()
	case SeverityMedium:
		evt = s.log.Warn()
	default:
		evt = s.log.Info()
	}

	evt = evt.
		Str("severity", string(a.Severity)).
		Str("category", string(a.Category)).
		Str("correlation_id", a.CorrelationID)
	if a.OrganizationID != nil {
		evt = evt.Str("organization_id", a.OrganizationID.String())
	}
	if a.Phone != "" {
		evt = evt.Str("phone", a.Phone)
	}
	if a.Error != "" {
		evt = evt.Str("error", a.Error)
	}
	evt.Msg("🚨 " + a.Message)
}

// Metadata marshals v for Alert.Metadata and message rows, returning nil on
// failure. Nil and empty-string values of a field map are left out.
func Metadata(v interface{}) datatypes.JSON {
	if v == nil {
		return nil
	}
	if fields, ok := v.(map[string]interface{}); ok {
		for k, f := range fields {
			if f == nil || f == "" {
				delete(fields, k)
			}
		}
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return b
}
