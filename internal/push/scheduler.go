package push

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/dukerupert/writinggym/internal/model"
	"github.com/dukerupert/writinggym/internal/streak"
)

// reminderHour is the local hour after which streak reminders go out.
const reminderHour = 18

// sentRetention is how long sent records are kept for de-duplication.
const sentRetention = 7 * 24 * time.Hour

type Sender interface {
	Send(ctx context.Context, sub *model.PushSubscription, payload Payload) error
}

// ReminderStore is the persistence the scheduler needs.
type ReminderStore interface {
	ListStreakAtRisk(lastActiveDate string) ([]model.Profile, error)
	ListByUser(userID string) ([]model.PushSubscription, error)
	DeleteByEndpoint(endpoint string) error
	RecordSent(userID, notifType, date string) (bool, error)
	CleanupSent(beforeDate string) error
}

// Scheduler sends a daily reminder to writers whose streak ends tonight:
// they practiced yesterday, not yet today, and opted in.
type Scheduler struct {
	mu       sync.RWMutex
	sender   Sender
	store    ReminderStore
	loc      *time.Location
	now      func() time.Time
	interval time.Duration
	logger   *slog.Logger
	cancel   context.CancelFunc
	done     chan struct{}
}

func NewScheduler(sender Sender, store ReminderStore, loc *time.Location, logger *slog.Logger) *Scheduler {
	if loc == nil {
		loc = time.Local
	}
	return &Scheduler{
		sender:   sender,
		store:    store,
		loc:      loc,
		now:      time.Now,
		interval: 15 * time.Minute,
		logger:   logger,
	}
}

// Start begins the scheduler loop.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})
	s.mu.Unlock()

	go func() {
		defer close(s.done)
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if _, err := s.RunOnce(ctx); err != nil {
					s.logger.Error("streak reminders", "error", err)
				}
			}
		}
	}()
}

// Stop gracefully stops the scheduler.
func (s *Scheduler) Stop() {
	s.mu.RLock()
	cancel := s.cancel
	done := s.done
	s.mu.RUnlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}
}

// RunOnce sends today's reminders if it is late enough and returns how many
// users were notified. A user is claimed in the sent log before sending, so
// overlapping runs never notify twice.
func (s *Scheduler) RunOnce(ctx context.Context) (int, error) {
	now := s.now().In(s.loc)
	if now.Hour() < reminderHour {
		return 0, nil
	}
	today := streak.DateKey(now, s.loc)
	yesterday := streak.DateKey(now.AddDate(0, 0, -1), s.loc)

	if err := s.store.CleanupSent(streak.DateKey(now.Add(-sentRetention), s.loc)); err != nil {
		s.logger.Warn("cleanup sent reminders", "error", err)
	}

	profiles, err := s.store.ListStreakAtRisk(yesterday)
	if err != nil {
		return 0, fmt.Errorf("list streaks at risk: %w", err)
	}

	notified := 0
	for _, p := range profiles {
		if ctx.Err() != nil {
			return notified, ctx.Err()
		}
		subs, err := s.store.ListByUser(p.ID)
		if err != nil {
			s.logger.Error("list push subscriptions", "user_id", p.ID, "error", err)
			continue
		}
		if len(subs) == 0 {
			continue
		}

		claimed, err := s.store.RecordSent(p.ID, model.NotifTypeStreakReminder, today)
		if err != nil {
			s.logger.Error("record sent reminder", "user_id", p.ID, "error", err)
			continue
		}
		if !claimed {
			continue
		}

		payload := reminderPayload(p.CurrentStreak)
		delivered := false
		for i := range subs {
			err := s.sender.Send(ctx, &subs[i], payload)
			switch {
			case err == nil:
				delivered = true
			case errors.Is(err, ErrExpired):
				if err := s.store.DeleteByEndpoint(subs[i].Endpoint); err != nil {
					s.logger.Warn("delete expired subscription", "user_id", p.ID, "error", err)
				}
			default:
				s.logger.Warn("send streak reminder", "user_id", p.ID, "error", err)
			}
		}
		if delivered {
			notified++
		}
	}
	return notified, nil
}

func reminderPayload(days int) Payload {
	body := fmt.Sprintf("Your %d-day streak ends at midnight. One short session keeps it alive.", days)
	if next := streak.NextBadge(days); next != nil && next.Days-days == 1 {
		body = fmt.Sprintf("Write today to reach %s %s.", next.Emoji, next.Label)
	}
	return Payload{
		Title: "Keep your streak going",
		Body:  body,
		URL:   "/",
		Tag:   "streak-reminder",
	}
}
