package models

// Subscription tracks one repository for one user: the issue list as of the
// last fetch plus a watermark counting how many of those issues the user has
// already been shown. Invariant: 0 <= LastIssueNum <= len(Issues).
type Subscription struct {
	Name         string
	Issues       []Issue
	LastIssueNum int
}

// NewSubscription creates a subscription for a freshly fetched issue list
// with nothing read yet.
func NewSubscription(name string, issues []Issue) *Subscription {
	return &Subscription{Name: name, Issues: issues}
}

// ReadIssues advances the watermark to n, clamped to the list length. This
// is the only place the watermark is written.
func (s *Subscription) ReadIssues(n int) {
	if n < 0 {
		n = 0
	}
	if n > len(s.Issues) {
		n = len(s.Issues)
	}
	s.LastIssueNum = n
}

// ReplaceIssues swaps in a freshly fetched list. The watermark is left
// alone; callers that want it moved must call ReadIssues separately.
func (s *Subscription) ReplaceIssues(issues []Issue) {
	s.Issues = issues
}

// Unread reports how many fetched issues the user has not seen yet.
func (s *Subscription) Unread() int {
	return len(s.Issues) - s.LastIssueNum
}
