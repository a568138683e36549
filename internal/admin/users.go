package admin

import (
	"context"
	"fmt"
	"net/url"

	"github.com/ALT-F4-LLC/ferry/internal/model"
)

// CreateUser adds a JIRA Software user with the given initial password.
func (c *Client) CreateUser(ctx context.Context, u model.User, password string) error {
	s, err := c.NewSudoSession(ctx)
	if err != nil {
		return fmt.Errorf("create user %s: %w", u.Name, err)
	}

	form := url.Values{
		"email":                {u.Email},
		"fullname":             {u.DisplayName},
		"username":             {u.Name},
		"password":             {password},
		"selectedApplications": {"jira-software"},
		"Create":               {"Create user"},
	}
	if _, err := s.PostForm(ctx, "add user", "/secure/admin/user/AddUser.jspa", form, ""); err != nil {
		return fmt.Errorf("create user %s: %w", u.Name, err)
	}
	return nil
}

// SetPassword replaces a user's password.
func (c *Client) SetPassword(ctx context.Context, username, password string) error {
	s, err := c.NewSudoSession(ctx)
	if err != nil {
		return fmt.Errorf("set password of %s: %w", username, err)
	}

	form := url.Values{
		"inline":    {"true"},
		"decorator": {"dialog"},
		"password":  {password},
		"confirm":   {password},
		"name":      {username},
	}
	if _, err := s.PostForm(ctx, "set password", "/secure/admin/user/SetPassword.jspa", form, ""); err != nil {
		return fmt.Errorf("set password of %s: %w", username, err)
	}
	return nil
}

// DeactivateUser submits the edit-user form without the active checkbox,
// which JIRA treats as unchecked.
func (c *Client) DeactivateUser(ctx context.Context, u model.User) error {
	s, err := c.NewSudoSession(ctx)
	if err != nil {
		return fmt.Errorf("deactivate user %s: %w", u.Name, err)
	}

	form := url.Values{
		"inline":    {"true"},
		"decorator": {"dialog"},
		"username":  {u.Name},
		"fullName":  {u.DisplayName},
		"email":     {u.Email},
		"editName":  {u.Name},
		"returnUrl": {"UserBrowser.jspa"},
	}
	if _, err := s.PostForm(ctx, "edit user", "/secure/admin/user/EditUser.jspa", form, ""); err != nil {
		return fmt.Errorf("deactivate user %s: %w", u.Name, err)
	}
	return nil
}
