package service

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/spec-kit/change-request-service/internal/config"
	"github.com/spec-kit/change-request-service/internal/domain"
	"github.com/spec-kit/change-request-service/internal/events"
	"github.com/spec-kit/change-request-service/internal/workflow"
)

// Recipient is either a single user or everyone holding a role.
type Recipient struct {
	UserID string
	Role   domain.Role
}

func (r Recipient) String() string {
	if r.UserID != "" {
		return "user:" + r.UserID
	}
	return "role:" + string(r.Role)
}

// NotificationService handles emitting notifications for domain events.
type NotificationService struct {
	logger *zap.Logger
	cfg    config.NotificationConfig
}

// NewNotificationService creates the service.
func NewNotificationService(logger *zap.Logger, cfg config.NotificationConfig) *NotificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NotificationService{
		logger: logger,
		cfg:    cfg,
	}
}

// Handle notifies everyone who has to act on, or learn about, the event.
func (n *NotificationService) Handle(ctx context.Context, event events.Event) error {
	recipients := Recipients(event)
	if len(recipients) == 0 {
		return nil
	}
	n.logger.Info("change request notification",
		zap.String("event_type", string(event.Type)),
		zap.String("cr_number", event.CRNumber),
		zap.Stringers("recipients", recipients),
	)
	n.sendEmailNotificationStub(ctx, event, recipients)
	n.sendWebhookNotificationStub(ctx, event)
	return nil
}

// Recipients resolves who is notified of event. The actor is never notified
// of their own action.
func Recipients(event events.Event) []Recipient {
	var out []Recipient
	switch event.Type {
	case events.EventChangeRequestApproved, events.EventDecisionEdited:
		payload, ok := event.Payload.(events.TransitionPayload)
		if !ok {
			return nil
		}
		if payload.ToStatus.IsTerminal() {
			out = append(out, Recipient{UserID: event.RequestedBy})
			break
		}
		out = append(out, decidersOf(payload.ToStage, event)...)
	case events.EventChangeRequestRejected, events.EventChangeRequestClosed, events.EventChangeRequestDeleted:
		out = append(out, Recipient{UserID: event.RequestedBy})
		if event.LineManagerID != "" {
			out = append(out, Recipient{UserID: event.LineManagerID})
		}
	}

	filtered := out[:0]
	for _, r := range out {
		if r.UserID != "" && r.UserID == event.Actor.ID {
			continue
		}
		if r.UserID == "" && r.Role == "" {
			continue
		}
		filtered = append(filtered, r)
	}
	return filtered
}

func decidersOf(stage domain.Stage, event events.Event) []Recipient {
	rule, ok := workflow.RuleFor(stage)
	if !ok {
		return nil
	}
	switch rule.Identity {
	case workflow.IdentityLineManager:
		return []Recipient{{UserID: event.LineManagerID}}
	case workflow.IdentityRequester:
		return []Recipient{{UserID: event.RequestedBy}}
	}
	out := make([]Recipient, 0, len(rule.Roles))
	for _, role := range rule.Roles {
		out = append(out, Recipient{Role: role})
	}
	return out
}

func (n *NotificationService) sendEmailNotificationStub(_ context.Context, event events.Event, recipients []Recipient) {
	if strings.TrimSpace(n.cfg.EmailFrom) == "" {
		return
	}
	n.logger.Debug("sendEmailNotificationStub",
		zap.String("from", n.cfg.EmailFrom),
		zap.String("cr_number", event.CRNumber),
		zap.Int("recipients", len(recipients)),
		zap.String("event_type", string(event.Type)))
}

func (n *NotificationService) sendWebhookNotificationStub(_ context.Context, event events.Event) {
	if strings.TrimSpace(n.cfg.WebhookURL) == "" {
		return
	}
	n.logger.Debug("sendWebhookNotificationStub",
		zap.String("url", n.cfg.WebhookURL),
		zap.String("cr_number", event.CRNumber),
		zap.String("event_type", string(event.Type)))
}
