package service

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"time"

	log "github.com/sirupsen/logrus"

	"craftedge.io/chatsync/internal/core/domain"
	"craftedge.io/chatsync/internal/core/port"
)

// Projector is the shared write path both the batch scan and the webhook
// processor converge on. Every chat record flows customer -> deal ->
// message through the ledger-gated stores, then through the visibility
// gate, so the two paths can race on the same entities and still converge.
type Projector struct {
	deals    port.DealsStorage
	messages port.MessageStore
	avatars  port.AvatarStore
	notifier port.NotifierClient

	httpClient *http.Client
}

func NewProjector(
	deals port.DealsStorage,
	messages port.MessageStore,
	avatars port.AvatarStore,
	notifier port.NotifierClient,
) *Projector {
	return &Projector{
		deals:    deals,
		messages: messages,
		avatars:  avatars,
		notifier: notifier,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// ApplyChat applies one chat record from either path. Stale pieces are
// dropped silently by the ledger; a non-nil error means a store write
// failed and the unit of work was not durably applied.
func (p *Projector) ApplyChat(ctx context.Context, source domain.Source, rec *domain.ChatRecord) error {
	version := domain.Version{At: rec.LastMessage.SentAt}

	created, err := p.deals.UpsertCustomer(ctx, &domain.Customer{
		ExternalID: rec.Customer.ExternalID,
		Name:       rec.Customer.Name,
		AvatarURL:  rec.Customer.AvatarURL,
	}, version, source)
	if err != nil {
		return fmt.Errorf("upsert customer %s: %w", rec.Customer.ExternalID, err)
	}
	if created && rec.Customer.AvatarURL != "" {
		// Avatar upload is async and best effort; it never blocks the
		// write path.
		go p.fetchAvatar(rec.Customer.ExternalID, rec.Customer.AvatarURL)
	}

	dealApplied, err := p.deals.UpsertDeal(ctx, &domain.Deal{
		ExternalID:         rec.ExternalID,
		CustomerExternalID: rec.Customer.ExternalID,
		OwnerUserID:        rec.OwnerUserID,
		LastMessageID:      rec.LastMessage.ID,
		LastMessageAt:      rec.LastMessage.SentAt,
	}, domain.Version{Seq: rec.LastMessage.ID, At: rec.LastMessage.SentAt}, source)
	if err != nil {
		return fmt.Errorf("upsert deal %s: %w", rec.ExternalID, err)
	}

	appended, err := p.messages.Append(ctx, &domain.Message{
		DealExternalID: rec.ExternalID,
		MessageID:      rec.LastMessage.ID,
		Sender:         rec.Sender,
		Text:           rec.LastMessage.Text,
		SentAt:         rec.LastMessage.SentAt,
	})
	if err != nil {
		return fmt.Errorf("append message %d to %s: %w", rec.LastMessage.ID, rec.ExternalID, err)
	}

	deal, becameVisible, err := p.deals.MarkCustomerSynced(ctx, rec.ExternalID)
	if err != nil {
		return fmt.Errorf("mark customer synced for %s: %w", rec.ExternalID, err)
	}

	if appended {
		var visibleNow bool
		deal, visibleNow, err = p.deals.MarkMessageSynced(ctx, rec.ExternalID, rec.LastMessage.ID, rec.LastMessage.SentAt, 1)
		if err != nil {
			return fmt.Errorf("mark message synced for %s: %w", rec.ExternalID, err)
		}
		becameVisible = becameVisible || visibleNow
	}

	p.broadcast(ctx, deal, rec.LastMessage.ID, rec.LastMessage.Text, becameVisible, appended, dealApplied)
	return nil
}

// broadcast publishes the confirmed transition. The creation event fires
// exactly once, at the moment the deal crosses into the fully-synced
// state; everything after that is an update.
func (p *Projector) broadcast(ctx context.Context, deal *domain.Deal, messageID int64, text string, becameVisible, appended, dealApplied bool) {
	if deal == nil || deal.OwnerUserID == 0 {
		return
	}

	n := &domain.Notification{
		UserID:         deal.OwnerUserID,
		DealExternalID: deal.ExternalID,
		MessageID:      messageID,
		Text:           text,
		OccurredAt:     time.Now().UTC(),
	}

	var err error
	switch {
	case becameVisible:
		n.Type = domain.NotifyDealCreated
		err = p.notifier.NotifyDealCreated(ctx, n)
	case deal.Visible() && appended:
		n.Type = domain.NotifyMessageCreated
		err = p.notifier.NotifyMessageCreated(ctx, n)
	case deal.Visible() && dealApplied:
		n.Type = domain.NotifyDealUpdated
		err = p.notifier.NotifyDealUpdated(ctx, n)
	default:
		return
	}
	if err != nil {
		log.WithError(err).WithField("deal", deal.ExternalID).Warn("Failed to publish notification")
	}
}

func (p *Projector) fetchAvatar(customerExternalID, avatarURL string) {
	if p.avatars == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, avatarURL, nil)
	if err != nil {
		log.WithError(err).WithField("customer", customerExternalID).Warn("Invalid avatar URL")
		return
	}
	resp, err := p.httpClient.Do(req)
	if err != nil {
		log.WithError(err).WithField("customer", customerExternalID).Warn("Failed to download avatar")
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		log.WithFields(log.Fields{
			"customer": customerExternalID,
			"status":   resp.StatusCode,
		}).Warn("Avatar download rejected")
		return
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, 5<<20))
	if err != nil {
		log.WithError(err).WithField("customer", customerExternalID).Warn("Failed to read avatar body")
		return
	}

	hash := md5.Sum([]byte(avatarURL))
	key := fmt.Sprintf("avatars/%s/%s", customerExternalID, hex.EncodeToString(hash[:])[:8])

	stored, err := p.avatars.Upload(ctx, key, data, resp.Header.Get("Content-Type"))
	if err != nil {
		log.WithError(err).WithField("customer", customerExternalID).Warn("Failed to store avatar")
		return
	}
	if err := p.deals.SetCustomerAvatarKey(ctx, customerExternalID, stored); err != nil {
		log.WithError(err).WithField("customer", customerExternalID).Warn("Failed to record avatar key")
	}
}
