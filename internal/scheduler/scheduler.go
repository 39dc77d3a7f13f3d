// Package scheduler drives the recurring subscription check for every
// registered user.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/gotohe11/issuebot/internal/engine"
	"github.com/gotohe11/issuebot/internal/models"
	"github.com/gotohe11/issuebot/internal/router"
)

// UserLister loads the users the periodic check walks over.
type UserLister interface {
	ListUserIDs() ([]string, error)
	LoadUser(id string) (*models.User, error)
}

// Notifier delivers check results to a user's chat.
type Notifier interface {
	Notify(userID string, frags []router.Fragment)
	NotifyError(userID string)
}

// Scheduler runs the bulk check on a fixed interval. A single cron
// goroutine executes the jobs, so two runs never interleave.
type Scheduler struct {
	cron     *cron.Cron
	engine   *engine.Engine
	store    UserLister
	notifier Notifier
}

// New creates a scheduler wired to the sync engine, the user store and the
// chat notifier.
func New(eng *engine.Engine, store UserLister, notifier Notifier) *Scheduler {
	return &Scheduler{
		cron:     cron.New(),
		engine:   eng,
		store:    store,
		notifier: notifier,
	}
}

// Start schedules the check to run every interval and begins the cron loop.
func (s *Scheduler) Start(ctx context.Context, interval time.Duration) error {
	spec := "@every " + interval.String()
	if _, err := s.cron.AddFunc(spec, func() { s.CheckNow(ctx) }); err != nil {
		return fmt.Errorf("failed to schedule check: %w", err)
	}
	s.cron.Start()
	slog.Info("subscription check scheduled", "interval", interval)
	return nil
}

// Stop halts the cron loop. A check already running finishes.
func (s *Scheduler) Stop() {
	s.cron.Stop()
}

// CheckNow walks all registered users sequentially and sends each one their
// fresh issues. A failure for one user is reported to that user and never
// stops the walk.
func (s *Scheduler) CheckNow(ctx context.Context) {
	slog.Info("checking updates for users")
	ids, err := s.store.ListUserIDs()
	if err != nil {
		slog.Error("listing users failed", "error", err)
		return
	}

	for _, id := range ids {
		if err := s.checkUser(ctx, id); err != nil {
			slog.Warn("user check failed", "user", id, "error", err)
			s.notifier.NotifyError(id)
		}
	}
}

func (s *Scheduler) checkUser(ctx context.Context, id string) error {
	user, err := s.store.LoadUser(id)
	if err != nil {
		return err
	}
	if user == nil {
		return nil
	}

	updates, err := s.engine.CheckAll(ctx, user)

	var frags []router.Fragment
	failed := false
	for _, update := range updates {
		if update.Err != nil {
			failed = true
			continue
		}
		frags = append(frags, router.Fragment{Text: update.Repo + " repository:", Header: true})
		for _, issue := range update.Issues {
			frags = append(frags, router.Fragment{Text: router.FormatIssue(issue)})
		}
	}

	if len(frags) > 0 {
		s.notifier.Notify(id, frags)
	}
	if err != nil {
		return err
	}
	if failed {
		return fmt.Errorf("some subscriptions of user %s could not be checked", id)
	}
	return nil
}
