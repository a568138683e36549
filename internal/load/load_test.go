package load

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/ALT-F4-LLC/ferry/internal/admin"
	"github.com/ALT-F4-LLC/ferry/internal/config"
	"github.com/ALT-F4-LLC/ferry/internal/db"
	"github.com/ALT-F4-LLC/ferry/internal/filestore"
	"github.com/ALT-F4-LLC/ferry/internal/jira"
	"github.com/ALT-F4-LLC/ferry/internal/model"
)

type call struct {
	Method   string
	Path     string
	User     string
	Body     map[string]any
	Form     url.Values
	Filename string
	Content  string
}

// fakeDest emulates the destination REST API and admin pages.
type fakeDest struct {
	mu    sync.Mutex
	url   string
	calls []call

	// lastNumber is the number of the most recently created issue.
	lastNumber int
	// keyProject is the project prefix of created keys.
	keyProject string
	// summaries holds the summary of each issue by number. Issues numbered
	// up to lastNumber without an entry existed before the load.
	summaries map[int]string
	// unindexed hides every issue from search.
	unindexed bool
}

func (f *fakeDest) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	login, _, _ := r.BasicAuth()
	c := call{Method: r.Method, Path: r.URL.Path, User: login}

	switch {
	case strings.HasSuffix(r.URL.Path, "/attachments"):
		file, header, err := r.FormFile("file")
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		data, _ := io.ReadAll(file)
		file.Close()
		c.Filename, c.Content = header.Filename, string(data)
	case strings.HasPrefix(r.URL.Path, "/rest/"):
		if r.Body != nil {
			data, _ := io.ReadAll(r.Body)
			if len(data) > 0 {
				if err := json.Unmarshal(data, &c.Body); err != nil {
					http.Error(w, err.Error(), http.StatusBadRequest)
					return
				}
			}
		}
	default:
		_ = r.ParseForm()
		c.Form = r.PostForm
	}

	f.mu.Lock()
	f.calls = append(f.calls, c)
	f.mu.Unlock()

	switch {
	case r.Method == http.MethodPost && r.URL.Path == "/rest/api/2/issue":
		summary, _ := field(c.Body, "fields", "summary").(string)
		f.mu.Lock()
		f.lastNumber++
		n := f.lastNumber
		if f.summaries == nil {
			f.summaries = make(map[int]string)
		}
		f.summaries[n] = summary
		f.mu.Unlock()
		w.WriteHeader(http.StatusCreated)
		fmt.Fprintf(w, `{"id":"%d","key":"%s-%d","self":"%s/rest/api/2/issue/%d"}`, 20000+n, f.keyProject, n, f.url, 20000+n)
	case r.Method == http.MethodGet && r.URL.Path == "/rest/api/2/search":
		f.mu.Lock()
		n := f.lastNumber
		if f.unindexed {
			n = 0
		}
		f.mu.Unlock()
		if n == 0 {
			_, _ = w.Write([]byte(`{"startAt":0,"maxResults":1,"total":0,"issues":[]}`))
			return
		}
		fmt.Fprintf(w, `{"startAt":0,"maxResults":1,"total":%d,"issues":[{"id":"%d","key":"%s-%d"}]}`, n, 20000+n, f.keyProject, n)
	case r.Method == http.MethodGet && strings.HasPrefix(r.URL.Path, "/rest/api/2/issue/"):
		_, n, err := model.ParseKey(strings.TrimPrefix(r.URL.Path, "/rest/api/2/issue/"))
		f.mu.Lock()
		summary, ok := f.summaries[n]
		exists := err == nil && n >= 1 && n <= f.lastNumber
		f.mu.Unlock()
		if !exists {
			http.Error(w, `{"errorMessages":["Issue Does Not Exist"]}`, http.StatusNotFound)
			return
		}
		if !ok {
			summary = "Existing issue"
		}
		fmt.Fprintf(w, `{"id":"%d","key":"%s-%d","self":"%s/rest/api/2/issue/%d","fields":{"summary":%q}}`,
			20000+n, f.keyProject, n, f.url, 20000+n, summary)
	case r.Method == http.MethodPut, strings.HasSuffix(r.URL.Path, "/transitions"):
		w.WriteHeader(http.StatusNoContent)
	case strings.HasPrefix(r.URL.Path, "/rest/"):
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{}`))
	case r.Method == http.MethodGet:
		if _, err := r.Cookie(admin.XSRFCookie); err != nil {
			http.SetCookie(w, &http.Cookie{Name: admin.XSRFCookie, Value: "tok", Path: "/"})
		}
		_, _ = w.Write([]byte(`<input type="hidden" id="guid" value="g-1">`))
	default:
		_, _ = w.Write([]byte("ok"))
	}
}

// callsTo returns the recorded calls with method whose path starts with prefix.
func (f *fakeDest) callsTo(method, prefix string) []call {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []call
	for _, c := range f.calls {
		if c.Method == method && strings.HasPrefix(c.Path, prefix) {
			out = append(out, c)
		}
	}
	return out
}

func testSettings(host string) *config.Settings {
	return &config.Settings{
		Source: config.Source{
			Host:       "https://src.example.com",
			Username:   "reader",
			Password:   "x",
			ProjectKey: "PROJ",
		},
		Destination: config.Destination{
			Host:                host,
			Username:            "admin",
			Password:            "secret",
			ProjectKey:          "PROJ",
			ProjectID:           10100,
			DefaultUserPassword: "changeme",
		},
		Mappings: config.Mappings{
			IssueTypes:     map[string]string{"6": "10000"},
			StoryTypeID:    "10001",
			EpicTypeID:     "10000",
			EpicNameField:  "customfield_10004",
			SubtaskTypeIDs: []string{"5"},
			SubtaskTypeID:  "10000",
			Statuses:       map[string]string{"Open": "", "Done": "31", "In Progress": "21"},
			LinkTypes:      map[string]string{"Blocks": "Blocks", "Duplicate": "Duplicates"},
		},
	}
}

func newTestLoader(t *testing.T) (*Loader, *fakeDest) {
	t.Helper()
	f := &fakeDest{keyProject: "PROJ"}
	srv := httptest.NewServer(f)
	t.Cleanup(srv.Close)
	f.url = srv.URL

	d, err := db.Open(":memory:")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { d.Close() })
	if err := db.Initialize(d); err != nil {
		t.Fatalf("Initialize: %v", err)
	}

	s := testSettings(srv.URL)
	return &Loader{
		Dest:     jira.NewClient(srv.URL, s.Destination.Username, s.Destination.Password),
		Admin:    admin.NewClient(srv.URL, s.Destination.Username, s.Destination.Password),
		DB:       d,
		Files:    filestore.New(t.TempDir()),
		Settings: s,
	}, f
}

func user(name string, active bool) map[string]any {
	return map[string]any{
		"name":         name,
		"displayName":  strings.ToUpper(name[:1]) + name[1:],
		"emailAddress": name + "@example.com",
		"active":       active,
	}
}

// issueDoc builds a valid document for PROJ-n; mutate adjusts its fields.
func issueDoc(n int, mutate func(f map[string]any)) json.RawMessage {
	fields := map[string]any{
		"summary":     fmt.Sprintf("Issue %d", n),
		"description": nil,
		"issuetype":   map[string]any{"id": "3"},
		"status":      map[string]any{"name": "Open"},
		"priority":    map[string]any{"id": "3"},
		"reporter":    user("alice", true),
		"assignee":    nil,
		"labels":      []string{},
		"fixVersions": []any{},
		"issuelinks":  []any{},
		"comment":     map[string]any{"comments": []any{}},
		"attachment":  []any{},
		"created":     "2020-01-02T10:00:00.000+0000",
	}
	if mutate != nil {
		mutate(fields)
	}
	raw, err := json.Marshal(map[string]any{
		"id":     strconv.Itoa(10000 + n),
		"key":    model.FormatKey("PROJ", n),
		"fields": fields,
	})
	if err != nil {
		panic(err)
	}
	return raw
}

// seed stores the given documents keyed by issue number.
func seed(t *testing.T, d *sql.DB, docs map[int]json.RawMessage) map[int]*model.Issue {
	t.Helper()
	var issues []*model.Issue
	for n := range docs {
		issues = append(issues, &model.Issue{
			UID:  int64(10000 + n),
			Key:  model.FormatKey("PROJ", n),
			Link: fmt.Sprintf("https://src.example.com/rest/api/2/issue/%d", 10000+n),
		})
	}
	if err := db.ReplaceIssues(d, issues); err != nil {
		t.Fatalf("ReplaceIssues: %v", err)
	}
	byNumber := make(map[int]*model.Issue)
	for _, i := range issues {
		if err := db.SaveIssueDocument(d, i.ID, docs[i.Number]); err != nil {
			t.Fatalf("SaveIssueDocument: %v", err)
		}
		byNumber[i.Number] = i
	}
	return byNumber
}

func markLoaded(t *testing.T, d *sql.DB, issues map[int]*model.Issue) {
	t.Helper()
	for n, i := range issues {
		if err := db.SetIssueDestination(d, i.ID, int64(20000+n), "x"); err != nil {
			t.Fatalf("SetIssueDestination: %v", err)
		}
	}
}

func field(body map[string]any, path ...string) any {
	var cur any = body
	for _, p := range path {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil
		}
		cur = m[p]
	}
	return cur
}
