// Package admin drives the JIRA web administration pages that have no REST
// equivalent: user management behind a sudo-elevated session and the
// issue-to-sub-task conversion wizard.
package admin

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"

	"golang.org/x/net/publicsuffix"
)

// XSRFCookie is the cookie JIRA issues its anti-CSRF token in. Every form
// POST must echo it back as atl_token.
const XSRFCookie = "atlassian.xsrf.token"

const maxErrorBody = 2048

// StepError reports a non-2xx response from one step of a form workflow.
type StepError struct {
	Step       string
	Method     string
	Path       string
	StatusCode int
	Body       string
}

func (e *StepError) Error() string {
	return fmt.Sprintf("%s: %s %s returned %d: %s", e.Step, e.Method, e.Path, e.StatusCode, e.Body)
}

// HTTPStatus returns the status code of the failed step.
func (e *StepError) HTTPStatus() int { return e.StatusCode }

// Client holds the destination host and admin credentials. It carries no
// session state; each high-level action starts a fresh Session.
type Client struct {
	Host     string
	Username string
	Password string

	// Transport is shared by every session. Nil means http.DefaultTransport.
	Transport http.RoundTripper
}

// NewClient creates an admin client for host.
func NewClient(host, username, password string) *Client {
	return &Client{
		Host:     strings.TrimSuffix(host, "/"),
		Username: username,
		Password: password,
	}
}

// Session is one cookie-bearing browser emulation. Token holds the most
// recent anti-CSRF token the server issued.
type Session struct {
	Token string

	client *Client
	http   *http.Client
	base   *url.URL
}

// NewSession starts an unauthenticated session with an empty cookie jar.
func (c *Client) NewSession() (*Session, error) {
	base, err := url.Parse(c.Host)
	if err != nil {
		return nil, fmt.Errorf("parse host %q: %w", c.Host, err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("host %q must be an absolute URL", c.Host)
	}

	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, fmt.Errorf("create cookie jar: %w", err)
	}

	return &Session{
		client: c,
		base:   base,
		http:   &http.Client{Jar: jar, Transport: c.Transport},
	}, nil
}

// NewSudoSession logs in through the login form and confirms the admin
// password on the websudo page, returning a session allowed to submit
// administration forms.
func (c *Client) NewSudoSession(ctx context.Context) (*Session, error) {
	s, err := c.NewSession()
	if err != nil {
		return nil, err
	}

	const destination = "/secure/admin/user/AddUser!default.jspa"

	// Sets the initial session and XSRF cookies.
	if _, err := s.Get(ctx, "open admin page", destination, true); err != nil {
		return nil, err
	}

	login := url.Values{
		"os_username":    {c.Username},
		"os_password":    {c.Password},
		"os_destination": {destination},
		"user_role":      {"ADMIN"},
		"login":          {"Log In"},
	}
	if _, err := s.PostForm(ctx, "login", "/login.jsp", login, ""); err != nil {
		return nil, err
	}

	sudo := url.Values{
		"webSudoPassword":    {c.Password},
		"webSudoDestination": {destination},
		"webSudoIsPost":      {"false"},
	}
	if _, err := s.PostForm(ctx, "websudo", "/secure/admin/WebSudoAuthenticate.jspa", sudo, ""); err != nil {
		return nil, err
	}

	return s, nil
}

// URL returns the absolute URL of a path on the session's host.
func (s *Session) URL(path string) string {
	return s.client.Host + path
}

// Get fetches a page and returns its body. With basicAuth the admin
// credentials are sent as an Authorization header.
func (s *Session) Get(ctx context.Context, step, path string, basicAuth bool) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.URL(path), nil)
	if err != nil {
		return nil, fmt.Errorf("%s: create request: %w", step, err)
	}
	if basicAuth {
		req.SetBasicAuth(s.client.Username, s.client.Password)
	}
	return s.do(step, path, req)
}

// PostForm submits form with the current anti-CSRF token added as atl_token.
func (s *Session) PostForm(ctx context.Context, step, path string, form url.Values, referer string) ([]byte, error) {
	values := url.Values{}
	for k, v := range form {
		values[k] = v
	}
	values.Set("atl_token", s.Token)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.URL(path), strings.NewReader(values.Encode()))
	if err != nil {
		return nil, fmt.Errorf("%s: create request: %w", step, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if referer != "" {
		req.Header.Set("Referer", referer)
	}
	return s.do(step, path, req)
}

func (s *Session) do(step, path string, req *http.Request) ([]byte, error) {
	resp, err := s.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", step, err)
	}
	defer func() { _ = resp.Body.Close() }()

	s.refreshToken()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, &StepError{
			Step:       step,
			Method:     req.Method,
			Path:       path,
			StatusCode: resp.StatusCode,
			Body:       string(bytes.TrimSpace(body)),
		}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%s: read response: %w", step, err)
	}
	return body, nil
}

func (s *Session) refreshToken() {
	for _, c := range s.http.Jar.Cookies(s.base) {
		if c.Name == XSRFCookie {
			s.Token = c.Value
			return
		}
	}
}
