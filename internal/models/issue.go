package models

// DateLayout is the layout for issue creation/update dates. The bot only
// compares calendar days, never times of day.
const DateLayout = "2006-01-02"

// Issue is one row of a repository's fetched issue list. Number is the
// 1-based position within that list, which is ordered newest-first by
// creation date. It is not a stable GitHub issue ID: the same issue can
// carry a different Number on the next fetch.
type Issue struct {
	Number    int
	Title     string
	CreatedAt string
	UpdatedAt string
	Comments  int
}
