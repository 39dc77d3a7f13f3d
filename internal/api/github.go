package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/go-github/v57/github"
	"golang.org/x/oauth2"

	"github.com/gotohe11/issuebot/internal/models"
)

// Fetch failure taxonomy. ErrRepositoryNotFound means the repository does
// not exist upstream (a user input error); ErrUnavailable covers transient
// network or service failures. The client never retries on its own.
var (
	ErrRepositoryNotFound = errors.New("repository not found")
	ErrUnavailable        = errors.New("github unavailable")
)

// GitHubClient fetches repository issue lists from the GitHub API.
type GitHubClient struct {
	client *github.Client
}

// NewGitHubClient creates a new GitHub API client. An empty token yields an
// unauthenticated client subject to the lower anonymous rate limit.
func NewGitHubClient(token string) *GitHubClient {
	var tc *http.Client

	if token != "" {
		ts := oauth2.StaticTokenSource(
			&oauth2.Token{AccessToken: token},
		)
		tc = oauth2.NewClient(context.Background(), ts)
	}

	return &GitHubClient{client: github.NewClient(tc)}
}

// ListIssues fetches the full open-issue list of a repository, newest-first
// by creation date, numbered positionally from 1. Pull requests are dropped
// since the issues endpoint reports them too.
func (c *GitHubClient) ListIssues(ctx context.Context, repoName string) ([]models.Issue, error) {
	owner, name, err := SplitRepoName(repoName)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRepositoryNotFound, err)
	}

	var all []*github.Issue
	opts := &github.IssueListByRepoOptions{
		State:     "open",
		Sort:      "created",
		Direction: "desc",
		ListOptions: github.ListOptions{
			PerPage: 100,
		},
	}

	for {
		issues, resp, err := c.client.Issues.ListByRepo(ctx, owner, name, opts)
		if err != nil {
			return nil, classifyError(repoName, resp, err)
		}

		all = append(all, issues...)

		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}

	return convertIssues(all), nil
}

// convertIssues turns GitHub issue records into positional rows. Numbering
// restarts at 1 on every fetch; it only has meaning relative to this list.
func convertIssues(issues []*github.Issue) []models.Issue {
	list := make([]models.Issue, 0, len(issues))
	for _, issue := range issues {
		if issue.IsPullRequest() {
			continue
		}
		list = append(list, models.Issue{
			Number:    len(list) + 1,
			Title:     issue.GetTitle(),
			CreatedAt: issue.GetCreatedAt().Format(models.DateLayout),
			UpdatedAt: issue.GetUpdatedAt().Format(models.DateLayout),
			Comments:  issue.GetComments(),
		})
	}
	return list
}

func classifyError(repoName string, resp *github.Response, err error) error {
	if resp != nil && resp.StatusCode == http.StatusNotFound {
		return fmt.Errorf("%w: %q", ErrRepositoryNotFound, repoName)
	}
	return fmt.Errorf("%w: %v", ErrUnavailable, err)
}

// SplitRepoName parses a repository name in the format "owner/name".
func SplitRepoName(repoName string) (string, string, error) {
	parts := strings.Split(repoName, "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("invalid repository format, expected 'owner/name', got '%s'", repoName)
	}
	return parts[0], parts[1], nil
}
