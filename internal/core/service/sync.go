package service

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"craftedge.io/chatsync/internal/core/domain"
	"craftedge.io/chatsync/internal/core/port"
)

// DefaultScope is the sync scope used when the caller does not name one.
const DefaultScope = "global"

// SyncConfig tunes the orchestrator. Zero values fall back to defaults
// sized so the lock TTL comfortably outlives one page of work.
type SyncConfig struct {
	LockTTL     time.Duration
	LockWait    time.Duration
	Heartbeat   time.Duration
	StaleAfter  time.Duration
	PageRetries uint64
}

func (c *SyncConfig) defaults() {
	if c.LockTTL == 0 {
		c.LockTTL = 5 * time.Minute
	}
	if c.LockWait == 0 {
		c.LockWait = 2 * time.Second
	}
	if c.Heartbeat == 0 {
		c.Heartbeat = time.Minute
	}
	if c.StaleAfter == 0 {
		c.StaleAfter = 5 * time.Minute
	}
	if c.PageRetries == 0 {
		c.PageRetries = 4
	}
}

// SyncService walks the external chat API page by page and feeds every
// record through the shared projector. At most one run per scope is
// enforced by the distributed lock; progress is checkpointed per page so
// a crashed run resumes with at most one page of rework.
type SyncService struct {
	client  port.ChatAPIClient
	proj    *Projector
	deals   port.DealsStorage
	cursors port.CursorStore
	locks   port.LockStore
	cfg     SyncConfig
}

func NewSyncService(
	client port.ChatAPIClient,
	proj *Projector,
	deals port.DealsStorage,
	cursors port.CursorStore,
	locks port.LockStore,
	cfg SyncConfig,
) *SyncService {
	cfg.defaults()
	return &SyncService{
		client:  client,
		proj:    proj,
		deals:   deals,
		cursors: cursors,
		locks:   locks,
		cfg:     cfg,
	}
}

type syncRun struct {
	cursor  *domain.SyncCursor
	holder  string
	resumed bool
	started time.Time
}

// Run executes a full sync synchronously.
func (s *SyncService) Run(ctx context.Context, scope string, maxDate *time.Time) (*domain.SyncResult, error) {
	run, err := s.begin(ctx, scope, maxDate)
	if err != nil {
		return nil, err
	}
	return s.process(ctx, run)
}

// Launch resolves lock and cursor synchronously so contention surfaces to
// the caller, then pages in the background. Returns the job id.
func (s *SyncService) Launch(ctx context.Context, scope string, maxDate *time.Time) (string, error) {
	run, err := s.begin(ctx, scope, maxDate)
	if err != nil {
		return "", err
	}

	go func() {
		result, err := s.process(context.WithoutCancel(ctx), run)
		if err != nil {
			log.WithError(err).WithField("task_id", run.cursor.TaskID).Error("Sync run failed")
			return
		}
		log.WithFields(log.Fields{
			"task_id":   result.TaskID,
			"processed": result.Processed,
			"pages":     result.Pages,
			"duration":  result.Duration,
		}).Info("Sync run completed")
	}()

	return run.cursor.TaskID, nil
}

func (s *SyncService) Status(ctx context.Context, taskID string) (*domain.SyncCursor, error) {
	return s.cursors.GetByTaskID(ctx, taskID)
}

// begin acquires the scope lock with a bounded wait and resolves the
// cursor: a fresh running cursor aborts, a stale one is resumed from its
// last checkpoint, otherwise a new run starts.
func (s *SyncService) begin(ctx context.Context, scope string, maxDate *time.Time) (*syncRun, error) {
	if scope == "" {
		scope = DefaultScope
	}
	holder := uuid.New().String()

	deadline := time.Now().Add(s.cfg.LockWait)
	for {
		ok, err := s.locks.Acquire(ctx, scope, holder, s.cfg.LockTTL)
		if err != nil {
			return nil, fmt.Errorf("acquire sync lock: %w", err)
		}
		if ok {
			break
		}
		if time.Now().After(deadline) {
			return nil, domain.ErrLockContended
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(200 * time.Millisecond):
		}
	}

	release := func() {
		if err := s.locks.Release(context.WithoutCancel(ctx), scope, holder); err != nil {
			log.WithError(err).WithField("scope", scope).Warn("Failed to release sync lock")
		}
	}

	cursor, err := s.cursors.GetActive(ctx, scope)
	if err != nil {
		release()
		return nil, fmt.Errorf("load sync cursor: %w", err)
	}

	run := &syncRun{holder: holder, started: time.Now()}

	if cursor != nil {
		if cursor.Status == domain.SyncRunning && time.Since(cursor.UpdatedAt) < s.cfg.StaleAfter {
			release()
			return nil, domain.ErrAlreadyRunning
		}
		log.WithFields(log.Fields{
			"task_id": cursor.TaskID,
			"token":   cursor.PageToken,
		}).Info("Resuming interrupted sync from last checkpoint")
		cursor.Status = domain.SyncRunning
		cursor.ErrorMessage = ""
		if err := s.cursors.Update(ctx, cursor); err != nil {
			release()
			return nil, fmt.Errorf("resume sync cursor: %w", err)
		}
		run.cursor = cursor
		run.resumed = true
		return run, nil
	}

	cursor = &domain.SyncCursor{
		Scope:   scope,
		TaskID:  uuid.New().String(),
		Status:  domain.SyncRunning,
		MaxDate: maxDate,
	}
	if err := s.cursors.Create(ctx, cursor); err != nil {
		release()
		return nil, fmt.Errorf("create sync cursor: %w", err)
	}
	run.cursor = cursor
	return run, nil
}

func (s *SyncService) process(ctx context.Context, run *syncRun) (*domain.SyncResult, error) {
	cursor := run.cursor
	logger := log.WithFields(log.Fields{"scope": cursor.Scope, "task_id": cursor.TaskID})

	defer func() {
		if err := s.locks.Release(context.WithoutCancel(ctx), cursor.Scope, run.holder); err != nil {
			logger.WithError(err).Warn("Failed to release sync lock")
		}
	}()

	// Renew the lock while pages are in flight; cursor checkpoints double
	// as the liveness heartbeat other orchestrators observe.
	stopHeartbeat := make(chan struct{})
	defer close(stopHeartbeat)
	go s.heartbeat(ctx, cursor.Scope, run.holder, stopHeartbeat, logger)

	for {
		select {
		case <-ctx.Done():
			// Leave the cursor resumable; the checkpoint reflects true
			// progress.
			cursor.Status = domain.SyncPending
			if err := s.cursors.Update(context.WithoutCancel(ctx), cursor); err != nil {
				logger.WithError(err).Warn("Failed to park sync cursor on shutdown")
			}
			return nil, ctx.Err()
		default:
		}

		page, err := s.fetchPage(ctx, cursor.PageToken)
		if err != nil {
			cursor.Status = domain.SyncFailed
			cursor.ErrorMessage = err.Error()
			if uerr := s.cursors.Update(context.WithoutCancel(ctx), cursor); uerr != nil {
				logger.WithError(uerr).Warn("Failed to mark sync cursor failed")
			}
			return nil, fmt.Errorf("fetch page after token %q: %w", cursor.PageToken, err)
		}

		stop := s.processPage(ctx, cursor, page, logger)

		// Checkpoint granularity is one page: a crash redoes at most the
		// page in flight.
		cursor.Pages++
		if page.NextCursor != "" {
			cursor.PageToken = page.NextCursor
		}
		if err := s.cursors.Update(ctx, cursor); err != nil {
			return nil, fmt.Errorf("checkpoint sync cursor: %w", err)
		}

		if stop || !page.HasMore {
			break
		}
	}

	cursor.Status = domain.SyncCompleted
	if err := s.cursors.Update(ctx, cursor); err != nil {
		return nil, fmt.Errorf("complete sync cursor: %w", err)
	}

	result := &domain.SyncResult{
		TaskID:    cursor.TaskID,
		Processed: cursor.Processed,
		Pages:     cursor.Pages,
		Resumed:   run.resumed,
		Duration:  time.Since(run.started),
	}
	logger.WithFields(log.Fields{
		"processed": result.Processed,
		"pages":     result.Pages,
	}).Info("Sync completed")
	return result, nil
}

// processPage feeds a page's records through the projector. Returns true
// when the run should stop early: the max-date bound was crossed, or an
// unchanged deal shows the incremental scan has caught up.
func (s *SyncService) processPage(ctx context.Context, cursor *domain.SyncCursor, page *domain.ChatPage, logger *log.Entry) bool {
	for i := range page.Chats {
		chat := &page.Chats[i]

		if cursor.MaxDate != nil && chat.LastMessage.SentAt.Before(*cursor.MaxDate) {
			logger.WithField("chat", chat.ExternalID).Debug("Reached max date bound, stopping")
			return true
		}

		existing, err := s.deals.GetDealByExternalID(ctx, chat.ExternalID)
		if err == nil && existing.LastMessageID == chat.LastMessage.ID {
			logger.WithField("chat", chat.ExternalID).Debug("Deal unchanged, incremental scan caught up")
			return true
		}

		if err := s.proj.ApplyChat(ctx, domain.SourceBatch, chat); err != nil {
			// One bad record must not sink the run; the next scheduled
			// scan retries it.
			logger.WithError(err).WithField("chat", chat.ExternalID).Error("Failed to sync chat")
			continue
		}
		cursor.Processed++
		cursor.LastExternalID = chat.ExternalID
	}
	return false
}

func (s *SyncService) fetchPage(ctx context.Context, token string) (*domain.ChatPage, error) {
	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewExponentialBackOff(), s.cfg.PageRetries),
		ctx,
	)
	return backoff.RetryWithData(func() (*domain.ChatPage, error) {
		page, err := s.client.GetChats(ctx, token)
		if err != nil {
			log.WithError(err).WithField("token", token).Warn("Chat API page fetch failed, backing off")
			return nil, err
		}
		return page, nil
	}, policy)
}

func (s *SyncService) heartbeat(ctx context.Context, scope, holder string, stop <-chan struct{}, logger *log.Entry) {
	ticker := time.NewTicker(s.cfg.Heartbeat)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			ok, err := s.locks.Renew(ctx, scope, holder, s.cfg.LockTTL)
			if err != nil {
				logger.WithError(err).Warn("Failed to renew sync lock")
			} else if !ok {
				logger.Warn("Sync lock lost; another run may take over")
			}
		}
	}
}
