// Package router dispatches textual chat commands to handlers working on
// one user's subscriptions. It is transport-agnostic: replies come back as
// fragments and the chat layer decides the final markup.
package router

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/gotohe11/issuebot/internal/api"
	"github.com/gotohe11/issuebot/internal/engine"
	"github.com/gotohe11/issuebot/internal/models"
)

// pageSize is how many issues /print and /next show at a time.
const pageSize = 10

// User-facing command errors. The texts go to the chat verbatim.
var (
	ErrUnknownCommand = errors.New("Command not found.")
	ErrWrongArgCount  = errors.New("Wrong number of arguments provided.")
	ErrNoCurrentRepo  = errors.New(`Firstly, try "/get <owner>/<repo>" command.`)
)

// Fragment is one piece of a reply. Header fragments are short status lines
// the transport may emphasize; the rest are issue rows.
type Fragment struct {
	Text   string
	Header bool
}

// Store is the persistence the router needs: point writes of one user's
// record plus the registered-user listing for /users.
type Store interface {
	SaveUser(user *models.User) error
	ListUserIDs() ([]string, error)
}

type handlerFunc func(ctx context.Context, user *models.User, args []string) ([]Fragment, error)

type command struct {
	name    string
	help    string
	minArgs int
	maxArgs int
	run     handlerFunc
}

// Router routes commands for all users. The repository a user most recently
// fetched with /get is session state held here per user ID; it never
// touches the store.
type Router struct {
	engine   *engine.Engine
	fetcher  engine.Fetcher
	store    Store
	commands []command
	current  map[string]*models.Subscription
}

// New creates a router wired to the sync engine, the issue fetcher and the
// user store.
func New(eng *engine.Engine, fetcher engine.Fetcher, store Store) *Router {
	r := &Router{
		engine:  eng,
		fetcher: fetcher,
		store:   store,
		current: make(map[string]*models.Subscription),
	}
	r.commands = []command{
		{"help", "commands info;", 0, 0, r.helpCommand},
		{"get", `gets repo issues list and prints the amount of them, format: get <owner>/<repo>;`, 1, 1, r.getCommand},
		{"print", "prints the N-th issue (if there is no N, prints 10 newest issues), format: print <N>;", 0, 1, r.printCommand},
		{"next", "prints the next 10 issues or the remainder;", 0, 0, r.nextCommand},
		{"sub", "to subscribe to the project, format: sub <owner>/<repo>;", 0, 1, r.subCommand},
		{"unsub", "to unsubscribe from the project, format: unsub <owner>/<repo>;", 0, 1, r.unsubCommand},
		{"update", "prints issues in all projects you subscribe since the last visit or date, format: update <date>;", 0, 1, r.updateCommand},
		{"status", "prints info about current user;", 0, 0, r.statusCommand},
		{"users", "prints a list of all registered users.", 0, 0, r.usersCommand},
	}
	return r
}

// Execute runs one textual command for a user. The returned fragments are
// the reply; an error means the command itself failed and the transport
// should apologize instead.
func (r *Router) Execute(ctx context.Context, user *models.User, text string) ([]Fragment, error) {
	parts := strings.Fields(strings.ToLower(text))
	if len(parts) == 0 {
		return nil, ErrUnknownCommand
	}
	name := strings.TrimPrefix(parts[0], "/")
	args := parts[1:]

	// Reattach the session's current repository; the store never carries it.
	user.Current = r.current[user.ID]

	for _, cmd := range r.commands {
		if cmd.name != name {
			continue
		}
		if len(args) < cmd.minArgs || len(args) > cmd.maxArgs {
			return nil, ErrWrongArgCount
		}
		return cmd.run(ctx, user, args)
	}
	return nil, ErrUnknownCommand
}

// Current returns the user's session repository, if any.
func (r *Router) Current(userID string) *models.Subscription {
	return r.current[userID]
}

func (r *Router) helpCommand(_ context.Context, _ *models.User, _ []string) ([]Fragment, error) {
	frags := []Fragment{{Text: "Available commands:", Header: true}}
	for _, cmd := range r.commands {
		frags = append(frags, Fragment{Text: fmt.Sprintf("/%s - %s", cmd.name, cmd.help)})
	}
	return frags, nil
}

func (r *Router) getCommand(ctx context.Context, user *models.User, args []string) ([]Fragment, error) {
	repoName := args[0]
	list, err := r.fetcher.ListIssues(ctx, repoName)
	if err != nil {
		if errors.Is(err, api.ErrRepositoryNotFound) {
			return headerf("Project %q not found, check your spelling.", repoName), nil
		}
		return nil, err
	}

	cur := models.NewSubscription(repoName, list)
	r.current[user.ID] = cur
	user.Current = cur

	return headerf("There are %d issues in the %q repository. Use /sub, /next or /print commands.",
		len(list), repoName), nil
}

func (r *Router) printCommand(_ context.Context, user *models.User, args []string) ([]Fragment, error) {
	cur := user.Current
	if cur == nil {
		return nil, ErrNoCurrentRepo
	}

	skip, limit := 0, pageSize
	if len(args) == 1 {
		n, err := strconv.Atoi(args[0])
		if err != nil {
			return nil, errors.New(`Enter a number with "/print" command, not a string.`)
		}
		if n < 1 || n > len(cur.Issues) {
			return nil, errors.New("Number out of issues list range.")
		}
		skip, limit = n-1, 1
	}

	if err := r.markRead(user, cur, skip+limit); err != nil {
		return nil, err
	}

	end := skip + limit
	if end > len(cur.Issues) {
		end = len(cur.Issues)
	}
	return issueFragments(cur.Issues[skip:end]), nil
}

func (r *Router) nextCommand(_ context.Context, user *models.User, _ []string) ([]Fragment, error) {
	cur := user.Current
	if cur == nil {
		return nil, ErrNoCurrentRepo
	}

	from := cur.LastIssueNum
	if from < 0 || from >= len(cur.Issues) {
		return nil, errors.New("You have seen the whole issues list.")
	}

	to := from + pageSize
	if err := r.markRead(user, cur, to); err != nil {
		return nil, err
	}
	if to > len(cur.Issues) {
		to = len(cur.Issues)
	}
	return issueFragments(cur.Issues[from:to]), nil
}

// markRead advances the session watermark and, when the user is subscribed
// to the same repository, keeps the subscription's watermark in step and
// persists it.
func (r *Router) markRead(user *models.User, cur *models.Subscription, n int) error {
	cur.ReadIssues(n)
	if sub, ok := user.Subs[cur.Name]; ok {
		sub.ReadIssues(n)
		if err := r.store.SaveUser(user); err != nil {
			return err
		}
	}
	return nil
}

func (r *Router) subCommand(ctx context.Context, user *models.User, args []string) ([]Fragment, error) {
	if len(args) == 0 {
		return nil, errors.New("You forgot to text a project name.")
	}
	repoName := args[0]

	var sub *models.Subscription
	if cur := user.Current; cur != nil && cur.Name == repoName {
		sub = cur
	} else {
		list, err := r.fetcher.ListIssues(ctx, repoName)
		if err != nil {
			return nil, err
		}
		sub = models.NewSubscription(repoName, list)
	}

	if err := user.AddSubscription(sub); err != nil {
		if errors.Is(err, models.ErrDuplicateSubscription) {
			return headerf("You have already subscribed to the %q repository.", repoName), nil
		}
		return nil, err
	}
	if err := r.store.SaveUser(user); err != nil {
		return nil, err
	}

	slog.Info("user subscribed", "user", user.ID, "repo", repoName)
	return headerf("%s, you subscribed to %q repository.", user.Name, repoName), nil
}

func (r *Router) unsubCommand(_ context.Context, user *models.User, args []string) ([]Fragment, error) {
	if len(args) == 0 {
		return nil, errors.New("You forgot to text a project name.")
	}
	repoName := args[0]

	if err := user.RemoveSubscription(repoName); err != nil {
		if errors.Is(err, models.ErrSubscriptionNotFound) {
			return headerf("You are not subscribed to the %q repository.", repoName), nil
		}
		return nil, err
	}
	if err := r.store.SaveUser(user); err != nil {
		return nil, err
	}

	slog.Info("user unsubscribed", "user", user.ID, "repo", repoName)
	return headerf("%s, you unsubscribed from the %q repository.", user.Name, repoName), nil
}

func (r *Router) updateCommand(ctx context.Context, user *models.User, args []string) ([]Fragment, error) {
	if len(user.Subs) == 0 {
		return headerf("You do not have any subscriptions yet."), nil
	}

	var (
		cutoff    time.Time
		useCutoff bool
	)
	if len(args) == 1 {
		t, err := engine.ParseCutoff(args[0])
		if err != nil {
			return headerf("Invalid isoformat string for date. Try again."), nil
		}
		cutoff, useCutoff = t, true
	}

	var frags []Fragment
	for _, name := range user.SubNames() {
		sub := user.Subs[name]

		var (
			fresh []models.Issue
			err   error
		)
		if useCutoff {
			fresh, err = r.engine.RefreshSince(ctx, sub, cutoff)
		} else {
			fresh, err = r.engine.Refresh(ctx, sub)
		}
		if err != nil {
			return nil, err
		}

		if len(fresh) == 0 {
			frags = append(frags, Fragment{
				Text:   fmt.Sprintf("There is nothing to update in %q repository.", name),
				Header: true,
			})
			continue
		}
		frags = append(frags, Fragment{Text: name + " repository:", Header: true})
		frags = append(frags, issueFragments(fresh)...)
	}

	if err := r.store.SaveUser(user); err != nil {
		return nil, err
	}
	return frags, nil
}

func (r *Router) statusCommand(_ context.Context, user *models.User, _ []string) ([]Fragment, error) {
	if len(user.Subs) == 0 {
		return headerf("%s, you have no subscriptions yet.", user.Name), nil
	}

	frags := headerf("%s, you have %d subscription(s):", user.Name, len(user.Subs))
	for i, name := range user.SubNames() {
		sub := user.Subs[name]
		frags = append(frags, Fragment{
			Text: fmt.Sprintf("%d • %s • %d issues • last time read issue - %d",
				i+1, sub.Name, len(sub.Issues), sub.LastIssueNum),
		})
	}
	return frags, nil
}

func (r *Router) usersCommand(_ context.Context, _ *models.User, _ []string) ([]Fragment, error) {
	ids, err := r.store.ListUserIDs()
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return headerf("No users yet."), nil
	}

	var frags []Fragment
	for _, id := range ids {
		frags = append(frags, Fragment{Text: id})
	}
	return frags, nil
}

// FormatIssue renders one issue row the way the chat shows it.
func FormatIssue(issue models.Issue) string {
	return fmt.Sprintf("%d • %s • %s • %s • %d",
		issue.Number, issue.Title, issue.CreatedAt, issue.UpdatedAt, issue.Comments)
}

func issueFragments(issues []models.Issue) []Fragment {
	frags := make([]Fragment, 0, len(issues))
	for _, issue := range issues {
		frags = append(frags, Fragment{Text: FormatIssue(issue)})
	}
	return frags
}

func headerf(format string, args ...any) []Fragment {
	return []Fragment{{Text: fmt.Sprintf(format, args...), Header: true}}
}
