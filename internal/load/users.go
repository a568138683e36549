package load

import (
	"context"
	"crypto/rand"
	"fmt"
	"io"
	"sort"

	"github.com/ALT-F4-LLC/ferry/internal/jira"
	"github.com/ALT-F4-LLC/ferry/internal/model"
)

const (
	passwordLength   = 20
	passwordAlphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
)

// CollectUsers returns the distinct users referenced as assignee, reporter
// or comment author, sorted by login name. The first record seen for a
// login wins.
func CollectUsers(docs []*jira.Issue) []model.User {
	seen := make(map[string]model.User)
	add := func(u *jira.User) {
		if u == nil || u.Name == "" {
			return
		}
		if _, ok := seen[u.Name]; ok {
			return
		}
		seen[u.Name] = model.User{
			Name:        u.Name,
			DisplayName: u.DisplayName,
			Email:       u.EmailAddress,
			Active:      u.Active,
		}
	}

	for _, doc := range docs {
		add(doc.Fields.Assignee)
		add(doc.Fields.Reporter)
		for _, c := range doc.Fields.Comments() {
			add(c.Author)
		}
	}

	users := make([]model.User, 0, len(seen))
	for _, u := range seen {
		users = append(users, u)
	}
	sort.Slice(users, func(i, j int) bool { return users[i].Name < users[j].Name })
	return users
}

// Users derives the migrated users from the stored issue documents.
func (l *Loader) Users() ([]model.User, error) {
	issues, err := l.sourceIssues()
	if err != nil {
		return nil, err
	}
	docs := make([]*jira.Issue, len(issues))
	for i, si := range issues {
		docs[i] = si.doc
	}
	return CollectUsers(docs), nil
}

// CreateUsers creates every migrated user with the shared default password.
// Users that already exist make the admin form fail; a re-run needs a clean
// destination.
func (l *Loader) CreateUsers(ctx context.Context) error {
	users, err := l.Users()
	if err != nil {
		return err
	}
	for _, u := range users {
		l.out().Info("user %s", u.Name)
		if err := l.Admin.CreateUser(ctx, u, l.Settings.Destination.DefaultUserPassword); err != nil {
			return err
		}
	}
	return nil
}

// SetRandomPasswords replaces the shared default password of every migrated
// user except the destination admin.
func (l *Loader) SetRandomPasswords(ctx context.Context) error {
	users, err := l.Users()
	if err != nil {
		return err
	}
	for _, u := range users {
		if u.Name == l.Settings.Destination.Username {
			continue
		}
		password, err := RandomPassword(l.random(), passwordLength)
		if err != nil {
			return err
		}
		l.out().Info("password of %s", u.Name)
		if err := l.Admin.SetPassword(ctx, u.Name, password); err != nil {
			return err
		}
	}
	return nil
}

// DeactivateUsers deactivates users whose source account was inactive.
func (l *Loader) DeactivateUsers(ctx context.Context) error {
	users, err := l.Users()
	if err != nil {
		return err
	}
	for _, u := range users {
		if u.Active {
			continue
		}
		l.out().Info("deactivate %s", u.Name)
		if err := l.Admin.DeactivateUser(ctx, u); err != nil {
			return err
		}
	}
	return nil
}

func (l *Loader) random() io.Reader {
	if l.Rand == nil {
		return rand.Reader
	}
	return l.Rand
}

// RandomPassword returns n characters drawn uniformly from [a-zA-Z0-9].
// Bytes that would bias the distribution are discarded.
func RandomPassword(r io.Reader, n int) (string, error) {
	const limit = 256 - 256%len(passwordAlphabet)

	out := make([]byte, 0, n)
	buf := make([]byte, n)
	for len(out) < n {
		if _, err := io.ReadFull(r, buf); err != nil {
			return "", fmt.Errorf("reading random bytes: %w", err)
		}
		for _, b := range buf {
			if int(b) >= limit {
				continue
			}
			out = append(out, passwordAlphabet[int(b)%len(passwordAlphabet)])
			if len(out) == n {
				break
			}
		}
	}
	return string(out), nil
}
