package jira

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"strings"
)

const apiPath = "/rest/api/2"

// maxErrorBody bounds how much of an error response is kept in APIError.
const maxErrorBody = 2048

// APIError is returned for any non-2xx response.
type APIError struct {
	Method     string
	URL        string
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("jira API returned %d for %s %s: %s", e.StatusCode, e.Method, e.URL, e.Body)
}

// HTTPStatus returns the response status code.
func (e *APIError) HTTPStatus() int { return e.StatusCode }

// Client provides HTTP access to a Jira instance with basic auth.
type Client struct {
	URL        string
	Username   string
	Password   string
	UserAgent  string
	HTTPClient *http.Client
}

// NewClient creates a new Jira client. Requests have no timeout of their
// own; cancel the context to abandon one.
func NewClient(baseURL, username, password string) *Client {
	return &Client{
		URL:        strings.TrimSuffix(baseURL, "/"),
		Username:   username,
		Password:   password,
		UserAgent:  "ferry/1.0",
		HTTPClient: &http.Client{},
	}
}

// WithCredentials returns a copy of the client that authenticates as another
// user. The underlying http.Client is shared.
func (c *Client) WithCredentials(username, password string) *Client {
	cp := *c
	cp.Username = username
	cp.Password = password
	return &cp
}

// ProjectVersions fetches every version of a project.
func (c *Client) ProjectVersions(ctx context.Context, projectKey string) ([]Version, error) {
	body, err := c.doRequest(ctx, http.MethodGet, c.endpoint("/project/%s/versions", url.PathEscape(projectKey)), nil)
	if err != nil {
		return nil, fmt.Errorf("fetch versions of %s: %w", projectKey, err)
	}

	var raws []json.RawMessage
	if err := json.Unmarshal(body, &raws); err != nil {
		return nil, fmt.Errorf("parse versions response: %w", err)
	}

	versions := make([]Version, len(raws))
	for i, raw := range raws {
		if err := json.Unmarshal(raw, &versions[i]); err != nil {
			return nil, fmt.Errorf("parse version %d: %w", i, err)
		}
		versions[i].Raw = raw
	}
	return versions, nil
}

// SearchIssues runs one page of a JQL search returning only ids and keys.
func (c *Client) SearchIssues(ctx context.Context, jql string, startAt, maxResults int) (*SearchResult, error) {
	params := url.Values{
		"jql":        {jql},
		"fields":     {"id,key"},
		"maxResults": {strconv.Itoa(maxResults)},
		"startAt":    {strconv.Itoa(startAt)},
	}

	body, err := c.doRequest(ctx, http.MethodGet, c.endpoint("/search")+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("search issues: %w", err)
	}

	var result SearchResult
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("parse search response: %w", err)
	}
	return &result, nil
}

// GetIssue fetches the full document of an issue by id or key. The result
// is parsed but not validated.
func (c *Client) GetIssue(ctx context.Context, idOrKey string) (*Issue, error) {
	body, err := c.doRequest(ctx, http.MethodGet, c.endpoint("/issue/%s", url.PathEscape(idOrKey)), nil)
	if err != nil {
		return nil, fmt.Errorf("get issue %s: %w", idOrKey, err)
	}

	var issue Issue
	if err := json.Unmarshal(body, &issue); err != nil {
		return nil, fmt.Errorf("parse issue %s: %w", idOrKey, err)
	}
	issue.Raw = body
	return &issue, nil
}

// Download streams the content at an absolute URL (an attachment's content
// link) into w and returns the number of bytes copied.
func (c *Client) Download(ctx context.Context, contentURL string, w io.Writer) (int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, contentURL, nil)
	if err != nil {
		return 0, fmt.Errorf("create request: %w", err)
	}
	c.setHeaders(req)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return 0, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return 0, newAPIError(req, resp)
	}

	n, err := io.Copy(w, resp.Body)
	if err != nil {
		return n, fmt.Errorf("download %s: %w", contentURL, err)
	}
	return n, nil
}

// CreateIssue creates an issue from a fields object and returns its identity.
func (c *Client) CreateIssue(ctx context.Context, fields map[string]any) (*CreatedIssue, error) {
	data, err := json.Marshal(map[string]any{"fields": fields})
	if err != nil {
		return nil, fmt.Errorf("marshal create request: %w", err)
	}

	body, err := c.doRequest(ctx, http.MethodPost, c.endpoint("/issue"), data)
	if err != nil {
		return nil, fmt.Errorf("create issue: %w", err)
	}

	var created CreatedIssue
	if err := json.Unmarshal(body, &created); err != nil {
		return nil, fmt.Errorf("parse create response: %w", err)
	}
	return &created, nil
}

// SetFixVersions replaces an issue's fix versions with the named ones.
func (c *Client) SetFixVersions(ctx context.Context, key string, names []string) error {
	refs := make([]VersionRef, len(names))
	for i, name := range names {
		refs[i] = VersionRef{Name: name}
	}
	payload := map[string]any{
		"update": map[string]any{
			"fixVersions": []any{
				map[string]any{"set": refs},
			},
		},
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal update request: %w", err)
	}

	if _, err := c.doRequest(ctx, http.MethodPut, c.endpoint("/issue/%s", url.PathEscape(key)), data); err != nil {
		return fmt.Errorf("set fix versions of %s: %w", key, err)
	}
	return nil
}

// VersionInput is the body of POST /version.
type VersionInput struct {
	Name            string `json:"name"`
	Archived        bool   `json:"archived"`
	Released        bool   `json:"released"`
	Project         string `json:"project"`
	ProjectID       int64  `json:"projectId"`
	Description     string `json:"description,omitempty"`
	UserStartDate   string `json:"userStartDate,omitempty"`
	UserReleaseDate string `json:"userReleaseDate,omitempty"`
}

// CreateVersion creates a project version.
func (c *Client) CreateVersion(ctx context.Context, in VersionInput) error {
	data, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("marshal version: %w", err)
	}
	if _, err := c.doRequest(ctx, http.MethodPost, c.endpoint("/version"), data); err != nil {
		return fmt.Errorf("create version %q: %w", in.Name, err)
	}
	return nil
}

// DoTransition moves an issue through a workflow transition.
func (c *Client) DoTransition(ctx context.Context, key, transitionID string) error {
	data, err := json.Marshal(map[string]any{
		"transition": map[string]string{"id": transitionID},
	})
	if err != nil {
		return fmt.Errorf("marshal transition: %w", err)
	}
	if _, err := c.doRequest(ctx, http.MethodPost, c.endpoint("/issue/%s/transitions", url.PathEscape(key)), data); err != nil {
		return fmt.Errorf("transition %s via %s: %w", key, transitionID, err)
	}
	return nil
}

// IssueLinkInput is the body of POST /issueLink.
type IssueLinkInput struct {
	Type         LinkType `json:"type"`
	InwardIssue  IssueRef `json:"inwardIssue"`
	OutwardIssue IssueRef `json:"outwardIssue"`
}

// CreateIssueLink links two issues.
func (c *Client) CreateIssueLink(ctx context.Context, in IssueLinkInput) error {
	data, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("marshal issue link: %w", err)
	}
	if _, err := c.doRequest(ctx, http.MethodPost, c.endpoint("/issueLink"), data); err != nil {
		return fmt.Errorf("link %s %s %s: %w", in.InwardIssue.Key, in.Type.Name, in.OutwardIssue.Key, err)
	}
	return nil
}

// AddComment posts a comment as the client's user.
func (c *Client) AddComment(ctx context.Context, key, body string) error {
	data, err := json.Marshal(map[string]string{"body": body})
	if err != nil {
		return fmt.Errorf("marshal comment: %w", err)
	}
	if _, err := c.doRequest(ctx, http.MethodPost, c.endpoint("/issue/%s/comment", url.PathEscape(key)), data); err != nil {
		return fmt.Errorf("comment on %s as %s: %w", key, c.Username, err)
	}
	return nil
}

// AddAttachment uploads content as a multipart "file" part. Jira rejects the
// upload unless the XSRF check is disabled with X-Atlassian-Token.
func (c *Client) AddAttachment(ctx context.Context, key, filename string, content io.Reader) error {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return fmt.Errorf("create form file: %w", err)
	}
	if _, err := io.Copy(part, content); err != nil {
		return fmt.Errorf("read attachment %s: %w", filename, err)
	}
	if err := mw.Close(); err != nil {
		return fmt.Errorf("close multipart body: %w", err)
	}

	apiURL := c.endpoint("/issue/%s/attachments", url.PathEscape(key))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, apiURL, &buf)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	c.setHeaders(req)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("X-Atlassian-Token", "no-check")

	if _, err := c.do(req); err != nil {
		return fmt.Errorf("attach %s to %s as %s: %w", filename, key, c.Username, err)
	}
	return nil
}

func (c *Client) endpoint(format string, args ...any) string {
	return c.URL + apiPath + fmt.Sprintf(format, args...)
}

// doRequest executes an authenticated JSON request and returns the response body.
func (c *Client) doRequest(ctx context.Context, method, apiURL string, body []byte) ([]byte, error) {
	if c.URL == "" {
		return nil, fmt.Errorf("jira URL not configured")
	}

	var bodyReader io.Reader
	if body != nil {
		bodyReader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, apiURL, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	c.setHeaders(req)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	return c.do(req)
}

func (c *Client) do(req *http.Request) ([]byte, error) {
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, newAPIError(req, resp)
	}

	// PUT returns 204 No Content on success
	if resp.StatusCode == http.StatusNoContent {
		return nil, nil
	}

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	return respBody, nil
}

func (c *Client) setHeaders(req *http.Request) {
	if c.Username != "" {
		req.SetBasicAuth(c.Username, c.Password)
	}
	if c.UserAgent != "" {
		req.Header.Set("User-Agent", c.UserAgent)
	}
}

func newAPIError(req *http.Request, resp *http.Response) *APIError {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	return &APIError{
		Method:     req.Method,
		URL:        req.URL.Redacted(),
		StatusCode: resp.StatusCode,
		Body:       strings.TrimSpace(string(body)),
	}
}
