package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"craftedge.io/chatsync/internal/core/domain"
	"craftedge.io/chatsync/internal/core/port"
)

// WebhookService applies normalized platform events. Each call is
// synchronous and idempotent: redelivered events converge on the same
// state, and an error return means nothing durable happened so the
// platform's at-least-once redelivery can safely retry.
type WebhookService struct {
	proj     *Projector
	deals    port.DealsStorage
	messages port.MessageStore
	notifier port.NotifierClient
}

func NewWebhookService(
	proj *Projector,
	deals port.DealsStorage,
	messages port.MessageStore,
	notifier port.NotifierClient,
) *WebhookService {
	return &WebhookService{
		proj:     proj,
		deals:    deals,
		messages: messages,
		notifier: notifier,
	}
}

func (s *WebhookService) Handle(ctx context.Context, upd *domain.Update) error {
	switch upd.Kind {
	case domain.KindBusinessConnection:
		return s.handleConnection(ctx, upd.Connection)
	case domain.KindBusinessMessage:
		return s.handleMessage(ctx, upd.Message)
	case domain.KindEditedMessage:
		return s.handleEdit(ctx, upd.Message)
	case domain.KindDeletedMessages:
		return s.handleDeleted(ctx, upd.Deleted)
	case domain.KindUnknown:
		log.WithField("update_id", upd.UpdateID).Warn("Dropping unknown event kind")
		return nil
	}
	return nil
}

func (s *WebhookService) handleConnection(ctx context.Context, ev *domain.ConnectionEvent) error {
	conn := &domain.Connection{
		ConnectionID: ev.ConnectionID,
		UserID:       ev.UserID,
		Username:     ev.Username,
		FirstName:    ev.FirstName,
		LastName:     ev.LastName,
		CanReply:     ev.CanReply,
		Enabled:      ev.Enabled,
	}
	if ev.Enabled {
		t := ev.Date
		conn.ConnectedAt = &t
	}
	if err := s.deals.UpsertConnection(ctx, conn); err != nil {
		return fmt.Errorf("upsert connection %s: %w", ev.ConnectionID, err)
	}

	log.WithFields(log.Fields{
		"connection_id": ev.ConnectionID,
		"enabled":       ev.Enabled,
	}).Info("Business connection updated")

	if err := s.notifier.NotifyConnectionStatus(ctx, &domain.Notification{
		Type:         domain.NotifyConnection,
		UserID:       ev.UserID,
		ConnectionID: ev.ConnectionID,
		Active:       ev.Enabled,
		OccurredAt:   time.Now().UTC(),
	}); err != nil {
		log.WithError(err).WithField("connection_id", ev.ConnectionID).Warn("Failed to publish connection status")
	}
	return nil
}

func (s *WebhookService) handleMessage(ctx context.Context, ev *domain.MessageEvent) error {
	conn, err := s.deals.GetConnection(ctx, ev.ConnectionID)
	if errors.Is(err, domain.ErrConnectionNotFound) {
		log.WithField("connection_id", ev.ConnectionID).Warn("Message for unknown connection, dropping")
		return nil
	}
	if err != nil {
		return err
	}

	// The customer is the non-business party: the chat itself when the
	// business account is the sender, the sender otherwise.
	outgoing := ev.SenderID == conn.UserID
	customer := domain.ChatCustomer{
		ExternalID: domain.WebhookCustomerID(ev.SenderID),
		Name:       ev.SenderName,
	}
	if outgoing {
		customer.ExternalID = domain.WebhookCustomerID(ev.ChatID)
		customer.Name = ev.ChatName
	}

	return s.proj.ApplyChat(ctx, domain.SourceWebhook, &domain.ChatRecord{
		ExternalID:  domain.DealExternalID(ev.ChatID, ev.ConnectionID),
		OwnerUserID: conn.UserID,
		Customer:    customer,
		Sender:      ev.SenderName,
		LastMessage: domain.ChatMessage{
			ID:     ev.MessageID,
			Text:   ev.Text,
			SentAt: ev.Date,
		},
	})
}

func (s *WebhookService) handleEdit(ctx context.Context, ev *domain.MessageEvent) error {
	dealExternalID := domain.DealExternalID(ev.ChatID, ev.ConnectionID)

	applied, err := s.messages.ApplyEdit(ctx, dealExternalID, ev.MessageID, ev.Text, ev.Date)
	if err != nil {
		return fmt.Errorf("apply edit %d on %s: %w", ev.MessageID, dealExternalID, err)
	}
	if !applied {
		log.WithFields(log.Fields{
			"deal":       dealExternalID,
			"message_id": ev.MessageID,
		}).Debug("Stale edit dropped")
		return nil
	}

	deal, err := s.deals.GetDealByExternalID(ctx, dealExternalID)
	if errors.Is(err, domain.ErrDealNotFound) {
		// Edit landed before the deal exists; the synthetic record is
		// stored and the create will reconcile it.
		return nil
	}
	if err != nil {
		return err
	}

	if deal.Visible() && deal.OwnerUserID != 0 {
		if err := s.notifier.NotifyMessageEdited(ctx, &domain.Notification{
			Type:           domain.NotifyMessageEdited,
			UserID:         deal.OwnerUserID,
			DealExternalID: dealExternalID,
			MessageID:      ev.MessageID,
			Text:           ev.Text,
			OccurredAt:     time.Now().UTC(),
		}); err != nil {
			log.WithError(err).WithField("deal", dealExternalID).Warn("Failed to publish edit notification")
		}
	}
	return nil
}

func (s *WebhookService) handleDeleted(ctx context.Context, ev *domain.DeletedEvent) error {
	dealExternalID := domain.DealExternalID(ev.ChatID, ev.ConnectionID)
	deletedAt := ev.Date
	if deletedAt.IsZero() {
		deletedAt = time.Now().UTC()
	}

	var deleted int
	for _, messageID := range ev.MessageIDs {
		applied, err := s.messages.ApplyDelete(ctx, dealExternalID, messageID, deletedAt)
		if err != nil {
			return fmt.Errorf("apply delete %d on %s: %w", messageID, dealExternalID, err)
		}
		if applied {
			deleted++
		}
	}
	if deleted == 0 {
		return nil
	}

	if err := s.deals.AdjustMessageCount(ctx, dealExternalID, -deleted); err != nil {
		return fmt.Errorf("adjust message count for %s: %w", dealExternalID, err)
	}

	deal, err := s.deals.GetDealByExternalID(ctx, dealExternalID)
	if errors.Is(err, domain.ErrDealNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	if deal.Visible() && deal.OwnerUserID != 0 {
		if err := s.notifier.NotifyMessagesDeleted(ctx, &domain.Notification{
			Type:           domain.NotifyMessagesDeleted,
			UserID:         deal.OwnerUserID,
			DealExternalID: dealExternalID,
			MessageIDs:     ev.MessageIDs,
			OccurredAt:     time.Now().UTC(),
		}); err != nil {
			log.WithError(err).WithField("deal", dealExternalID).Warn("Failed to publish deletion notification")
		}
	}
	return nil
}
