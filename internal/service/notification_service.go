package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/cuadrilla-dispatch/internal/config"
	"github.com/spec-kit/cuadrilla-dispatch/internal/domain"
	"github.com/spec-kit/cuadrilla-dispatch/internal/events"
	"github.com/spec-kit/cuadrilla-dispatch/internal/integration/whatsapp"
	"github.com/spec-kit/cuadrilla-dispatch/internal/observability"
	"github.com/spec-kit/cuadrilla-dispatch/internal/queue"
)

// ComplaintLookup reads complaints from the Reclamos API.
type ComplaintLookup interface {
	Get(ctx context.Context, complaintID int64) (*domain.Complaint, error)
}

// TemplateSender delivers WhatsApp template messages.
type TemplateSender interface {
	SendTemplate(ctx context.Context, msg whatsapp.TemplateMessage) error
}

// NotificationService tells complainants about transitions they opted into.
// Delivery never runs on the caller's goroutine and its failures are only
// logged.
type NotificationService struct {
	dispatcher events.Dispatcher
	complaints ComplaintLookup
	sender     TemplateSender
	producer   queue.Producer
	logger     *zap.Logger
	metrics    *observability.Metrics
	cfg        config.NotificationConfig
	language   string
	now        func() time.Time

	inflight sync.WaitGroup
}

// NotificationDependencies bundles collaborators. Producer is optional; without
// it deliveries run in background goroutines owned by the service.
type NotificationDependencies struct {
	Dispatcher   events.Dispatcher
	Complaints   ComplaintLookup
	Sender       TemplateSender
	Producer     queue.Producer
	Logger       *zap.Logger
	Metrics      *observability.Metrics
	Config       config.NotificationConfig
	LanguageCode string
	Clock        func() time.Time
}

// NewNotificationService creates the service.
func NewNotificationService(deps NotificationDependencies) *NotificationService {
	n := &NotificationService{
		dispatcher: deps.Dispatcher,
		complaints: deps.Complaints,
		sender:     deps.Sender,
		producer:   deps.Producer,
		logger:     deps.Logger,
		metrics:    deps.Metrics,
		cfg:        deps.Config,
		language:   deps.LanguageCode,
		now:        deps.Clock,
	}
	if n.logger == nil {
		n.logger = zap.NewNop()
	}
	if n.now == nil {
		n.now = time.Now
	}
	if n.language == "" {
		n.language = "es_AR"
	}
	if n.cfg.CountryCode == "" {
		n.cfg.CountryCode = "54"
	}
	return n
}

// RegisterHandlers subscribes to transition events.
func (n *NotificationService) RegisterHandlers() {
	if n.dispatcher == nil {
		return
	}
	for _, eventType := range events.TransitionEvents {
		n.dispatcher.Subscribe(eventType, n.handleTransition)
	}
}

func (n *NotificationService) handleTransition(ctx context.Context, event events.Event) error {
	payload, ok := event.Payload.(events.TransitionPayload)
	if !ok || !payload.Notify {
		return nil
	}
	if n.sender == nil {
		n.logger.Debug("whatsapp not configured; skipping notification",
			zap.Int64("complaint_id", event.ComplaintID))
		return nil
	}

	job := queue.NotificationJob{
		ComplaintID: event.ComplaintID,
		RecordID:    payload.RecordID,
		Status:      payload.Status,
	}
	if n.producer != nil {
		enqueueCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
		err := n.producer.Enqueue(enqueueCtx, job)
		cancel()
		if err == nil {
			return nil
		}
		n.logger.Warn("notification enqueue failed; delivering in process",
			zap.Int64("complaint_id", job.ComplaintID),
			zap.Error(err))
	}

	n.inflight.Add(1)
	go func() {
		defer n.inflight.Done()
		deliverCtx, cancel := n.deliveryContext(context.WithoutCancel(ctx))
		defer cancel()
		_ = n.Deliver(deliverCtx, job.ComplaintID, job.Status)
	}()
	return nil
}

func (n *NotificationService) deliveryContext(parent context.Context) (context.Context, context.CancelFunc) {
	if timeout := n.cfg.Timeout(); timeout > 0 {
		return context.WithTimeout(parent, timeout)
	}
	return context.WithCancel(parent)
}

// Deliver looks up the complainant and sends the template for status. The
// outcome is logged and counted; the error is returned for queue retries.
func (n *NotificationService) Deliver(ctx context.Context, complaintID int64, status domain.AssignmentStatus) error {
	err := n.deliver(ctx, complaintID, status)
	n.metrics.RecordNotification(err)
	if err != nil {
		n.logger.Warn("complainant notification failed",
			zap.Int64("complaint_id", complaintID),
			zap.String("status", string(status)),
			zap.Error(err))
		return err
	}
	n.logger.Info("complainant notified",
		zap.Int64("complaint_id", complaintID),
		zap.String("status", string(status)))
	return nil
}

func (n *NotificationService) deliver(ctx context.Context, complaintID int64, status domain.AssignmentStatus) error {
	if n.sender == nil {
		return errors.New("whatsapp sender not configured")
	}
	template := n.templateFor(status)
	if template == "" {
		return fmt.Errorf("no template for status %s", status)
	}
	complaint, err := n.complaints.Get(ctx, complaintID)
	if err != nil {
		return fmt.Errorf("lookup complaint: %w", err)
	}
	number := NormalizePhone(complaint.Phone, n.cfg.CountryCode)
	if number == "" {
		return errors.New("complaint has no phone number")
	}
	msg := whatsapp.NewTemplateMessage(number, template, n.language,
		[]string{strconv.FormatInt(complaintID, 10)},
		[]string{complaint.Name, FormatDate(n.now())},
	)
	return n.sender.SendTemplate(ctx, msg)
}

func (n *NotificationService) templateFor(status domain.AssignmentStatus) string {
	switch status {
	case domain.AssignmentStatusAssigned:
		return n.cfg.TemplateAssigned
	case domain.AssignmentStatusInProgress:
		return n.cfg.TemplateInProgress
	case domain.AssignmentStatusCompleted:
		return n.cfg.TemplateCompleted
	}
	return ""
}

// Wait blocks until in-process deliveries finish.
func (n *NotificationService) Wait() {
	n.inflight.Wait()
}

var phoneSeparators = strings.NewReplacer(" ", "", "-", "", "(", "", ")", "", ".", "")

// NormalizePhone strips formatting and a leading "+" and prefixes the country
// code when the number does not already start with it. Normalizing twice
// gives the same result.
func NormalizePhone(raw, countryCode string) string {
	number := phoneSeparators.Replace(strings.TrimSpace(raw))
	number = strings.TrimLeft(number, "+")
	if number == "" {
		return ""
	}
	if !strings.HasPrefix(number, countryCode) {
		number = countryCode + number
	}
	return number
}

// FormatDate renders t the way es-AR short dates read: day/month/year with no
// zero padding.
func FormatDate(t time.Time) string {
	return t.Format("2/1/2006")
}
