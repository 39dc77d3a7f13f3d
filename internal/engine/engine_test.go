package engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gotohe11/issuebot/internal/api"
	"github.com/gotohe11/issuebot/internal/models"
)

// fakeFetcher serves canned lists per repository, or a canned error.
type fakeFetcher struct {
	lists map[string][]models.Issue
	errs  map[string]error
	calls int
}

func (f *fakeFetcher) ListIssues(_ context.Context, repoName string) ([]models.Issue, error) {
	f.calls++
	if err, ok := f.errs[repoName]; ok {
		return nil, err
	}
	return f.lists[repoName], nil
}

// fakeStore records every save so tests can observe persistence points.
type fakeStore struct {
	saves   int
	saveErr error
}

func (s *fakeStore) SaveUser(*models.User) error {
	s.saves++
	return s.saveErr
}

func list(dates ...string) []models.Issue {
	issues := make([]models.Issue, len(dates))
	for i, d := range dates {
		issues[i] = models.Issue{Number: i + 1, Title: "issue", CreatedAt: d, UpdatedAt: d}
	}
	return issues
}

func TestRefreshReturnsTail(t *testing.T) {
	fetcher := &fakeFetcher{lists: map[string][]models.Issue{
		"octocat/hello-world": list("2024-01-05", "2024-01-04", "2024-01-02", "2024-01-01", "2023-12-31"),
	}}
	eng := New(fetcher, &fakeStore{})

	sub := models.NewSubscription("octocat/hello-world", nil)
	sub.LastIssueNum = 2

	fresh, err := eng.Refresh(context.Background(), sub)
	require.NoError(t, err)
	require.Len(t, fresh, 3)
	assert.Equal(t, 3, fresh[0].Number)
	assert.Equal(t, 5, sub.LastIssueNum)
	assert.Len(t, sub.Issues, 5)
}

func TestRefreshIdempotentNoop(t *testing.T) {
	fetcher := &fakeFetcher{lists: map[string][]models.Issue{
		"octocat/hello-world": list("2024-01-02", "2024-01-01"),
	}}
	eng := New(fetcher, &fakeStore{})
	sub := models.NewSubscription("octocat/hello-world", nil)

	fresh, err := eng.Refresh(context.Background(), sub)
	require.NoError(t, err)
	assert.Len(t, fresh, 2)
	assert.Equal(t, 2, sub.LastIssueNum)

	// nothing changed upstream: second refresh reports nothing and leaves
	// the subscription alone
	fresh, err = eng.Refresh(context.Background(), sub)
	require.NoError(t, err)
	assert.Empty(t, fresh)
	assert.Equal(t, 2, sub.LastIssueNum)
}

func TestRefreshShrunkUpstreamIsNoop(t *testing.T) {
	fetcher := &fakeFetcher{lists: map[string][]models.Issue{
		"octocat/hello-world": list("2024-01-02"),
	}}
	eng := New(fetcher, &fakeStore{})

	sub := models.NewSubscription("octocat/hello-world", list("2024-01-02", "2024-01-01", "2023-12-30"))
	sub.ReadIssues(3)

	fresh, err := eng.Refresh(context.Background(), sub)
	require.NoError(t, err)
	assert.Empty(t, fresh)
	// the stored list and watermark are untouched by the no-op
	assert.Equal(t, 3, sub.LastIssueNum)
	assert.Len(t, sub.Issues, 3)
}

func TestRefreshFetchFailureLeavesStateAlone(t *testing.T) {
	fetcher := &fakeFetcher{errs: map[string]error{
		"octocat/hello-world": api.ErrRepositoryNotFound,
	}}
	eng := New(fetcher, &fakeStore{})

	sub := models.NewSubscription("octocat/hello-world", list("2024-01-02", "2024-01-01"))
	sub.ReadIssues(1)

	fresh, err := eng.Refresh(context.Background(), sub)
	assert.ErrorIs(t, err, api.ErrRepositoryNotFound)
	assert.Empty(t, fresh)
	assert.Equal(t, 1, sub.LastIssueNum)
	assert.Len(t, sub.Issues, 2)
}

func TestRefreshSinceShortCircuit(t *testing.T) {
	// newest-first: issues 1..3 are strictly after the cutoff, issue 4 is
	// on the cutoff day and stops the walk
	fetcher := &fakeFetcher{lists: map[string][]models.Issue{
		"octocat/hello-world": list("2024-01-05", "2024-01-04", "2024-01-02", "2024-01-01", "2023-12-31"),
	}}
	eng := New(fetcher, &fakeStore{})
	sub := models.NewSubscription("octocat/hello-world", nil)

	cutoff, err := ParseCutoff("2024-01-01")
	require.NoError(t, err)

	fresh, err := eng.RefreshSince(context.Background(), sub, cutoff)
	require.NoError(t, err)
	require.Len(t, fresh, 3)
	assert.Equal(t, 1, fresh[0].Number)
	assert.Equal(t, 3, fresh[2].Number)
	assert.Equal(t, 3, sub.LastIssueNum)
	assert.Len(t, sub.Issues, 5)
}

func TestRefreshSinceNothingNew(t *testing.T) {
	fetcher := &fakeFetcher{lists: map[string][]models.Issue{
		"octocat/hello-world": list("2024-01-02", "2024-01-01"),
	}}
	eng := New(fetcher, &fakeStore{})

	sub := models.NewSubscription("octocat/hello-world", list("2024-01-02"))
	sub.ReadIssues(1)

	cutoff, err := ParseCutoff("2024-06-01")
	require.NoError(t, err)

	fresh, err := eng.RefreshSince(context.Background(), sub, cutoff)
	require.NoError(t, err)
	assert.Empty(t, fresh)
	// no qualifying issues: subscription not mutated
	assert.Len(t, sub.Issues, 1)
	assert.Equal(t, 1, sub.LastIssueNum)
}

func TestParseCutoff(t *testing.T) {
	_, err := ParseCutoff("2024-01-01")
	assert.NoError(t, err)

	_, err = ParseCutoff("january first")
	assert.ErrorIs(t, err, ErrInvalidDate)

	_, err = ParseCutoff("2024-13-40")
	assert.ErrorIs(t, err, ErrInvalidDate)
}

func TestCheckAllNoSubscriptions(t *testing.T) {
	eng := New(&fakeFetcher{}, &fakeStore{})
	updates, err := eng.CheckAll(context.Background(), models.NewUser("42", ""))
	require.NoError(t, err)
	assert.Nil(t, updates)
}

func TestCheckAllAnchorsOnNewestKnownIssue(t *testing.T) {
	fetcher := &fakeFetcher{lists: map[string][]models.Issue{
		"octocat/hello-world": list("2024-01-10", "2024-01-05", "2024-01-04"),
	}}
	store := &fakeStore{}
	eng := New(fetcher, store)

	user := models.NewUser("42", "")
	sub := models.NewSubscription("octocat/hello-world", list("2024-01-05", "2024-01-04"))
	sub.ReadIssues(2)
	require.NoError(t, user.AddSubscription(sub))

	updates, err := eng.CheckAll(context.Background(), user)
	require.NoError(t, err)
	require.Len(t, updates, 1)
	assert.Equal(t, "octocat/hello-world", updates[0].Repo)
	require.Len(t, updates[0].Issues, 1)
	assert.Equal(t, "2024-01-10", updates[0].Issues[0].CreatedAt)
	assert.Equal(t, 1, store.saves)
	assert.Equal(t, 1, sub.LastIssueNum)
}

func TestCheckAllPartialFailureIsolation(t *testing.T) {
	fetcher := &fakeFetcher{
		lists: map[string][]models.Issue{
			"a/ok": list("2024-01-10", "2024-01-05"),
		},
		errs: map[string]error{
			"b/gone": api.ErrRepositoryNotFound,
		},
	}
	store := &fakeStore{}
	eng := New(fetcher, store)

	user := models.NewUser("42", "")
	okSub := models.NewSubscription("a/ok", list("2024-01-05"))
	okSub.ReadIssues(1)
	require.NoError(t, user.AddSubscription(okSub))
	require.NoError(t, user.AddSubscription(models.NewSubscription("b/gone", list("2024-01-01"))))

	updates, err := eng.CheckAll(context.Background(), user)
	require.NoError(t, err)
	require.Len(t, updates, 2)

	assert.Equal(t, "a/ok", updates[0].Repo)
	assert.NoError(t, updates[0].Err)
	assert.Len(t, updates[0].Issues, 1)

	assert.Equal(t, "b/gone", updates[1].Repo)
	assert.ErrorIs(t, updates[1].Err, api.ErrRepositoryNotFound)

	// a/ok was persisted even though b/gone failed
	assert.Equal(t, 1, store.saves)
}

func TestCheckAllEmptyListFallsBackToWatermark(t *testing.T) {
	fetcher := &fakeFetcher{lists: map[string][]models.Issue{
		"a/fresh": list("2024-01-10"),
	}}
	store := &fakeStore{}
	eng := New(fetcher, store)

	user := models.NewUser("42", "")
	require.NoError(t, user.AddSubscription(models.NewSubscription("a/fresh", nil)))

	updates, err := eng.CheckAll(context.Background(), user)
	require.NoError(t, err)
	require.Len(t, updates, 1)
	assert.Len(t, updates[0].Issues, 1)
	assert.Equal(t, 1, user.Subs["a/fresh"].LastIssueNum)
}

func TestWatermarkMonotonicAcrossRefreshes(t *testing.T) {
	fetcher := &fakeFetcher{lists: map[string][]models.Issue{}}
	eng := New(fetcher, &fakeStore{})
	sub := models.NewSubscription("a/b", nil)

	dates := []string{"2024-01-03", "2024-01-02", "2024-01-01"}
	for n := 1; n <= len(dates); n++ {
		fetcher.lists["a/b"] = list(dates[len(dates)-n:]...)
		before := sub.LastIssueNum
		_, err := eng.Refresh(context.Background(), sub)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, sub.LastIssueNum, before)
	}
	assert.Equal(t, 3, sub.LastIssueNum)
}
