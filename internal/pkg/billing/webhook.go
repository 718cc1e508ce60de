package billing

import (
	"context"
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2/log"
)

// WebhookOutcome reports how a gateway event was handled.
type WebhookOutcome struct {
	EventID   string
	EventType string
	Duplicate bool
	Plan      string
}

// HandleGatewayWebhook verifies, records and applies one gateway event.
// Redelivered events that were already processed are acknowledged as duplicates.
func (s *Service) HandleGatewayWebhook(ctx context.Context, payload []byte, signature string) (*WebhookOutcome, error) {
	if err := s.requireGateway(); err != nil {
		return nil, err
	}
	ev, err := s.gateway.ParseWebhook(payload, signature)
	if err != nil {
		return nil, err
	}

	created, stored, err := s.RecordWebhookEvent(ctx, WebhookEventInput{
		Provider:        s.gateway.Name(),
		ProviderEventID: ev.ID,
		EventType:       ev.Type,
		Payload:         payload,
		SignatureValid:  true,
	})
	if err != nil {
		return nil, err
	}
	out := &WebhookOutcome{EventID: ev.ID, EventType: ev.Type}
	if !created && stored.Processed() {
		out.Duplicate = true
		return out, nil
	}

	plan, procErr := s.applyEvent(ctx, ev)
	out.Plan = plan
	if err := s.MarkWebhookProcessed(ctx, stored.ID, procErr); err != nil {
		log.Errorf("[Billing] failed to mark webhook event %s processed: %v", ev.ID, err)
	}
	if procErr != nil {
		log.Errorf("[Billing] webhook event %s (%s) failed: %v", ev.ID, ev.Type, procErr)
		return out, procErr
	}
	return out, nil
}

func (s *Service) applyEvent(ctx context.Context, ev *GatewayEvent) (string, error) {
	switch {
	case strings.HasPrefix(ev.Type, "customer.subscription."):
		if ev.Subscription == nil {
			return "", errors.New("subscription event without subscription")
		}
		_, plan, err := s.SyncSubscription(ctx, *ev.Subscription)
		if errors.Is(err, ErrSubscriptionWithoutOwner) {
			log.Warnf("[Billing] subscription %s has no known workspace, skipping", ev.Subscription.ProviderSubscriptionID)
			return "", nil
		}
		return plan, err
	case strings.HasPrefix(ev.Type, "product."), strings.HasPrefix(ev.Type, "price."):
		return "", s.RefreshCatalog(ctx)
	default:
		log.Debugf("[Billing] ignoring webhook event type %s", ev.Type)
		return "", nil
	}
}
