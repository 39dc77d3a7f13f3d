package api

import (
	"testing"
	"time"

	"github.com/google/go-github/v57/github"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ghIssue(title string, created time.Time, comments int) *github.Issue {
	return &github.Issue{
		Title:     github.String(title),
		CreatedAt: &github.Timestamp{Time: created},
		UpdatedAt: &github.Timestamp{Time: created},
		Comments:  github.Int(comments),
	}
}

func TestConvertIssuesNumbersPositionally(t *testing.T) {
	day := func(d int) time.Time { return time.Date(2024, 1, d, 12, 0, 0, 0, time.UTC) }

	list := convertIssues([]*github.Issue{
		ghIssue("three", day(3), 1),
		ghIssue("two", day(2), 0),
		ghIssue("one", day(1), 5),
	})

	require.Len(t, list, 3)
	assert.Equal(t, 1, list[0].Number)
	assert.Equal(t, "three", list[0].Title)
	assert.Equal(t, "2024-01-03", list[0].CreatedAt)
	assert.Equal(t, 3, list[2].Number)
	assert.Equal(t, 5, list[2].Comments)
}

func TestConvertIssuesDropsPullRequests(t *testing.T) {
	day := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	pr := ghIssue("a pr", day, 0)
	pr.PullRequestLinks = &github.PullRequestLinks{URL: github.String("https://example.com")}

	list := convertIssues([]*github.Issue{
		ghIssue("real issue", day, 0),
		pr,
		ghIssue("another issue", day, 0),
	})

	require.Len(t, list, 2)
	// numbering stays contiguous after the drop
	assert.Equal(t, 1, list[0].Number)
	assert.Equal(t, 2, list[1].Number)
	assert.Equal(t, "another issue", list[1].Title)
}

func TestSplitRepoName(t *testing.T) {
	owner, name, err := SplitRepoName("octocat/hello-world")
	require.NoError(t, err)
	assert.Equal(t, "octocat", owner)
	assert.Equal(t, "hello-world", name)

	for _, bad := range []string{"octocat", "a/b/c", "/repo", "owner/", ""} {
		_, _, err := SplitRepoName(bad)
		assert.Error(t, err, "input %q", bad)
	}
}
