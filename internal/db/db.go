package db

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"

	"github.com/gotohe11/issuebot/internal/models"
)

// DB persists users and their subscriptions. A user's whole record is
// rewritten in one transaction on every save, so a reader never observes a
// partially written subscription list.
type DB struct {
	*sql.DB
}

// New creates a new database connection.
func New(dbPath string) (*DB, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &DB{DB: db}, nil
}

// Initialize creates the database schema if it doesn't exist.
func (db *DB) Initialize() error {
	schema := `
	CREATE TABLE IF NOT EXISTS users (
		id   TEXT PRIMARY KEY,
		name TEXT
	);

	CREATE TABLE IF NOT EXISTS subscriptions (
		user_id        TEXT NOT NULL,
		repo           TEXT NOT NULL,
		last_issue_num INTEGER NOT NULL DEFAULT 0,
		PRIMARY KEY (user_id, repo),
		FOREIGN KEY (user_id) REFERENCES users(id)
	);

	CREATE TABLE IF NOT EXISTS issues (
		user_id    TEXT NOT NULL,
		repo       TEXT NOT NULL,
		position   INTEGER NOT NULL,
		title      TEXT NOT NULL,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		comments   INTEGER NOT NULL DEFAULT 0,
		PRIMARY KEY (user_id, repo, position),
		FOREIGN KEY (user_id, repo) REFERENCES subscriptions(user_id, repo)
	);
	`

	_, err := db.Exec(schema)
	if err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}

	return nil
}

// SaveUser rewrites a user's record: profile row, subscriptions and their
// cached issue lists. The session-only current repository is not stored.
func (db *DB) SaveUser(user *models.User) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	query := `
	INSERT INTO users (id, name)
	VALUES (?, ?)
	ON CONFLICT(id) DO UPDATE SET
		name = excluded.name
	`
	if _, err := tx.Exec(query, user.ID, user.Name); err != nil {
		return fmt.Errorf("failed to save user %s: %w", user.ID, err)
	}

	if _, err := tx.Exec(`DELETE FROM issues WHERE user_id = ?`, user.ID); err != nil {
		return fmt.Errorf("failed to clear issues: %w", err)
	}
	if _, err := tx.Exec(`DELETE FROM subscriptions WHERE user_id = ?`, user.ID); err != nil {
		return fmt.Errorf("failed to clear subscriptions: %w", err)
	}

	for _, name := range user.SubNames() {
		sub := user.Subs[name]
		_, err := tx.Exec(
			`INSERT INTO subscriptions (user_id, repo, last_issue_num) VALUES (?, ?, ?)`,
			user.ID, sub.Name, sub.LastIssueNum,
		)
		if err != nil {
			return fmt.Errorf("failed to save subscription %s: %w", sub.Name, err)
		}

		for _, issue := range sub.Issues {
			_, err := tx.Exec(
				`INSERT INTO issues (user_id, repo, position, title, created_at, updated_at, comments)
				VALUES (?, ?, ?, ?, ?, ?, ?)`,
				user.ID, sub.Name, issue.Number, issue.Title, issue.CreatedAt, issue.UpdatedAt, issue.Comments,
			)
			if err != nil {
				return fmt.Errorf("failed to save issue %d of %s: %w", issue.Number, sub.Name, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit user %s: %w", user.ID, err)
	}

	return nil
}

// LoadUser loads a user and their subscriptions, or nil if the user is
// unknown. Watermarks from stale data are clamped back into range.
func (db *DB) LoadUser(id string) (*models.User, error) {
	var user models.User
	err := db.QueryRow(`SELECT id, name FROM users WHERE id = ?`, id).Scan(&user.ID, &user.Name)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to load user %s: %w", id, err)
	}
	user.Subs = make(map[string]*models.Subscription)

	rows, err := db.Query(
		`SELECT repo, last_issue_num FROM subscriptions WHERE user_id = ? ORDER BY repo`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load subscriptions: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var sub models.Subscription
		if err := rows.Scan(&sub.Name, &sub.LastIssueNum); err != nil {
			return nil, fmt.Errorf("failed to scan subscription: %w", err)
		}
		user.Subs[sub.Name] = &sub
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read subscriptions: %w", err)
	}

	for _, sub := range user.Subs {
		issues, err := db.loadIssues(id, sub.Name)
		if err != nil {
			return nil, err
		}
		sub.Issues = issues
		if sub.LastIssueNum < 0 || sub.LastIssueNum > len(sub.Issues) {
			sub.ReadIssues(sub.LastIssueNum)
		}
	}

	return &user, nil
}

func (db *DB) loadIssues(userID, repo string) ([]models.Issue, error) {
	rows, err := db.Query(
		`SELECT position, title, created_at, updated_at, comments
		FROM issues WHERE user_id = ? AND repo = ? ORDER BY position`,
		userID, repo,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load issues for %s: %w", repo, err)
	}
	defer rows.Close()

	var issues []models.Issue
	for rows.Next() {
		var issue models.Issue
		err := rows.Scan(&issue.Number, &issue.Title, &issue.CreatedAt, &issue.UpdatedAt, &issue.Comments)
		if err != nil {
			return nil, fmt.Errorf("failed to scan issue: %w", err)
		}
		issues = append(issues, issue)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read issues for %s: %w", repo, err)
	}

	return issues, nil
}

// LoadOrCreateUser loads an existing user or registers a new one. A known
// user's display name is refreshed when the chat platform reports a new one.
func (db *DB) LoadOrCreateUser(id, name string) (*models.User, error) {
	user, err := db.LoadUser(id)
	if err != nil {
		return nil, err
	}
	if user != nil {
		if name != "" && user.Name != name {
			user.Name = name
		}
		return user, nil
	}

	user = models.NewUser(id, name)
	if err := db.SaveUser(user); err != nil {
		return nil, err
	}
	return user, nil
}

// ListUserIDs returns the IDs of all registered users, for the scheduled
// subscription check.
func (db *DB) ListUserIDs() ([]string, error) {
	rows, err := db.Query(`SELECT id FROM users ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan user id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read user ids: %w", err)
	}

	return ids, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.DB.Close()
}
