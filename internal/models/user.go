package models

import (
	"errors"
	"fmt"
	"sort"
)

// Subscription logic errors. These are user mistakes, surfaced as chat
// messages, never fatal.
var (
	ErrDuplicateSubscription = errors.New("already subscribed")
	ErrSubscriptionNotFound  = errors.New("not subscribed")
)

// User is one chat-platform user: their subscriptions keyed by repository
// name, plus the repository they most recently fetched with /get. Current is
// session state and is not persisted; it may name the same repository as an
// entry in Subs without being the same object.
type User struct {
	ID      string
	Name    string
	Subs    map[string]*Subscription
	Current *Subscription
}

// NewUser creates a user with no subscriptions.
func NewUser(id, name string) *User {
	return &User{ID: id, Name: name, Subs: make(map[string]*Subscription)}
}

// AddSubscription inserts sub keyed by its repository name. Subscribing
// twice to the same repository fails with ErrDuplicateSubscription and
// leaves the existing entry untouched.
func (u *User) AddSubscription(sub *Subscription) error {
	if _, ok := u.Subs[sub.Name]; ok {
		return fmt.Errorf("%w: %q", ErrDuplicateSubscription, sub.Name)
	}
	u.Subs[sub.Name] = sub
	return nil
}

// RemoveSubscription deletes the subscription for the named repository,
// failing with ErrSubscriptionNotFound if there is none.
func (u *User) RemoveSubscription(name string) error {
	if _, ok := u.Subs[name]; !ok {
		return fmt.Errorf("%w: %q", ErrSubscriptionNotFound, name)
	}
	delete(u.Subs, name)
	return nil
}

// SubNames returns the subscribed repository names in insertion-independent
// sorted order so iteration is deterministic.
func (u *User) SubNames() []string {
	names := make([]string, 0, len(u.Subs))
	for name := range u.Subs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
