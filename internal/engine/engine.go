// Package engine computes what a user has not seen yet in a repository's
// issue list and advances the subscription watermark in lockstep with what
// gets reported.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/gotohe11/issuebot/internal/models"
)

// ErrInvalidDate reports a cutoff string that is not a valid ISO calendar
// date.
var ErrInvalidDate = errors.New("invalid date")

// Fetcher returns a repository's full issue list, newest-first by creation
// date with positional numbering. Failures are api.ErrRepositoryNotFound or
// api.ErrUnavailable; the engine performs no retries either way.
type Fetcher interface {
	ListIssues(ctx context.Context, repoName string) ([]models.Issue, error)
}

// UserStore persists a user's full record. Writes must be atomic per user.
type UserStore interface {
	SaveUser(user *models.User) error
}

// Update is the outcome of refreshing one subscription during a bulk check:
// the fresh issues under their repository header, or the failure that kept
// the subscription from updating.
type Update struct {
	Repo   string
	Issues []models.Issue
	Err    error
}

// Engine diffs freshly fetched issue lists against per-subscription state.
// Watermark mode and cutoff mode share the same fetch-and-clamp core; they
// differ only in how the boundary of "new" is chosen.
type Engine struct {
	fetcher Fetcher
	store   UserStore
}

// New creates an engine on top of a fetcher and a user store.
func New(fetcher Fetcher, store UserStore) *Engine {
	return &Engine{fetcher: fetcher, store: store}
}

// Refresh runs watermark mode: everything past the stored watermark in the
// freshly fetched list is new. On success the subscription's list is
// replaced and the watermark moves to the new list's length. A fetch
// failure leaves the subscription exactly as it was. When the watermark
// already covers the whole fetched list nothing is returned and nothing is
// mutated, so back-to-back calls with no upstream change are no-ops.
func (e *Engine) Refresh(ctx context.Context, sub *models.Subscription) ([]models.Issue, error) {
	list, err := e.fetcher.ListIssues(ctx, sub.Name)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", sub.Name, err)
	}

	old := sub.LastIssueNum
	if old >= len(list) {
		return nil, nil
	}

	fresh := list[old:]
	sub.ReplaceIssues(list)
	sub.ReadIssues(len(list))
	return fresh, nil
}

// RefreshSince runs cutoff mode: issues created strictly after the cutoff
// date are new. The walk starts at the newest issue and stops at the first
// one not past the cutoff, which is only correct because the fetched list
// is newest-first; an out-of-order list would silently lose issues. With no
// qualifying issues the subscription is not mutated; otherwise the list is
// replaced and the watermark moves to the oldest qualifying position.
func (e *Engine) RefreshSince(ctx context.Context, sub *models.Subscription, cutoff time.Time) ([]models.Issue, error) {
	list, err := e.fetcher.ListIssues(ctx, sub.Name)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", sub.Name, err)
	}

	first, last := 0, 0
	for _, issue := range list {
		created, err := time.Parse(models.DateLayout, issue.CreatedAt)
		if err != nil || !created.After(cutoff) {
			break
		}
		if first == 0 {
			first = issue.Number
		}
		last = issue.Number
	}

	if last == 0 {
		return nil, nil
	}

	fresh := list[first-1 : last]
	sub.ReplaceIssues(list)
	sub.ReadIssues(last)
	return fresh, nil
}

// CheckAll refreshes every subscription of a user for the scheduled check.
// Each subscription is checked against the creation date of its own newest
// known issue (cutoff mode anchored to local state); a subscription with no
// cached issues falls back to watermark mode. The user record is persisted
// after each subscription that produced news, so a failure partway through
// leaves the already-reported subscriptions durably advanced. One failing
// repository never stops the rest: its failure is carried in the result.
// A user with no subscriptions yields nil.
func (e *Engine) CheckAll(ctx context.Context, user *models.User) ([]Update, error) {
	if len(user.Subs) == 0 {
		return nil, nil
	}

	var updates []Update
	for _, name := range user.SubNames() {
		sub := user.Subs[name]
		slog.Debug("checking subscription", "user", user.ID, "repo", name)

		fresh, err := e.refreshAnchored(ctx, sub)
		if err != nil {
			slog.Warn("subscription check failed", "user", user.ID, "repo", name, "error", err)
			updates = append(updates, Update{Repo: name, Err: err})
			continue
		}
		if len(fresh) == 0 {
			continue
		}

		updates = append(updates, Update{Repo: name, Issues: fresh})
		if err := e.store.SaveUser(user); err != nil {
			return updates, fmt.Errorf("save user %s: %w", user.ID, err)
		}
	}

	return updates, nil
}

// refreshAnchored picks the right mode for the scheduled check of a single
// subscription.
func (e *Engine) refreshAnchored(ctx context.Context, sub *models.Subscription) ([]models.Issue, error) {
	if len(sub.Issues) == 0 {
		return e.Refresh(ctx, sub)
	}
	cutoff, err := ParseCutoff(sub.Issues[0].CreatedAt)
	if err != nil {
		return nil, err
	}
	return e.RefreshSince(ctx, sub, cutoff)
}

// ParseCutoff validates a user-supplied cutoff date string.
func ParseCutoff(s string) (time.Time, error) {
	t, err := time.Parse(models.DateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidDate, s)
	}
	return t, nil
}
