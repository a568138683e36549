package load

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/ALT-F4-LLC/ferry/internal/config"
	"github.com/ALT-F4-LLC/ferry/internal/db"
	"github.com/ALT-F4-LLC/ferry/internal/jira"
	"github.com/ALT-F4-LLC/ferry/internal/model"
)

func TestPhasesOrder(t *testing.T) {
	l := &Loader{}
	var names []string
	for _, p := range l.Phases() {
		names = append(names, p.Name)
	}
	want := "create-users,create-issues,create-versions,set-issue-versions,make-relations," +
		"do-transitions,make-links,create-comments,create-attachments,set-random-passwords," +
		"deactivate-users,creation-dates-csv"
	if strings.Join(names, ",") != want {
		t.Errorf("phases = %v", names)
	}
}

func TestRunUnknownPhase(t *testing.T) {
	l, _ := newTestLoader(t)
	if err := l.Run(context.Background(), "create-everything"); err == nil {
		t.Error("expected error for unknown phase")
	}
}

func TestCreateIssuesFillsGapsInOrder(t *testing.T) {
	l, f := newTestLoader(t)
	issues := seed(t, l.DB, map[int]json.RawMessage{
		1: issueDoc(1, func(fl map[string]any) {
			fl["assignee"] = user("bob", true)
			fl["labels"] = []string{"backend"}
			fl["description"] = "details"
		}),
		3: issueDoc(3, func(fl map[string]any) {
			fl["issuetype"] = map[string]any{"id": "6"}
			fl["customfield_10004"] = "Big Epic"
		}),
	})

	if err := l.Run(context.Background(), "create-issues"); err != nil {
		t.Fatalf("Run: %v", err)
	}

	creates := f.callsTo("POST", "/rest/api/2/issue")
	if len(creates) != 3 {
		t.Fatalf("created %d issues, want 3 (max number)", len(creates))
	}

	first := creates[0].Body
	if field(first, "fields", "summary") != "Issue 1" ||
		field(first, "fields", "assignee", "name") != "bob" ||
		field(first, "fields", "reporter", "name") != "alice" ||
		field(first, "fields", "priority", "id") != "3" ||
		field(first, "fields", "description") != "details" ||
		field(first, "fields", "issuetype", "id") != "10001" ||
		field(first, "fields", "project", "id") != "10100" {
		t.Errorf("issue payload = %v", first)
	}

	gap := creates[1].Body
	if field(gap, "fields", "summary") != "Empty" ||
		field(gap, "fields", "description") != "Empty" ||
		field(gap, "fields", "reporter", "name") != "admin" ||
		field(gap, "fields", "priority", "id") != "5" {
		t.Errorf("placeholder payload = %v", gap)
	}
	if labels, _ := field(gap, "fields", "labels").([]any); labels == nil || len(labels) != 0 {
		t.Errorf("placeholder labels = %v, want empty list", field(gap, "fields", "labels"))
	}

	epic := creates[2].Body
	if field(epic, "fields", "issuetype", "id") != "10000" || field(epic, "fields", "customfield_10004") != "Big Epic" {
		t.Errorf("epic payload = %v", epic)
	}

	for n, want := range map[int]int64{1: 20001, 3: 20003} {
		got, err := db.GetIssue(l.DB, issues[n].ID)
		if err != nil {
			t.Fatalf("GetIssue: %v", err)
		}
		if got.DestUID == nil || *got.DestUID != want {
			t.Errorf("PROJ-%d uid_dest = %v, want %d", n, got.DestUID, want)
		}
		if !strings.HasSuffix(got.DestLink, "/rest/api/2/issue/"+strconv.FormatInt(want, 10)) {
			t.Errorf("PROJ-%d link_dest = %q", n, got.DestLink)
		}
	}
}

func TestCreateIssuesEpicWithoutName(t *testing.T) {
	l, f := newTestLoader(t)
	seed(t, l.DB, map[int]json.RawMessage{
		1: issueDoc(1, func(fl map[string]any) {
			fl["issuetype"] = map[string]any{"id": "6"}
			fl["customfield_10004"] = nil
			fl["summary"] = nil
		}),
	})

	if err := l.CreateIssues(context.Background()); err != nil {
		t.Fatalf("CreateIssues: %v", err)
	}
	body := f.callsTo("POST", "/rest/api/2/issue")[0].Body
	if field(body, "fields", "customfield_10004") != "Empty" {
		t.Errorf("epic name = %v, want Empty", field(body, "fields", "customfield_10004"))
	}
	if field(body, "fields", "summary") != "Empty" {
		t.Errorf("summary = %v, want Empty", field(body, "fields", "summary"))
	}
}

func TestCreateIssuesKeyMismatchIsFatal(t *testing.T) {
	l, f := newTestLoader(t)
	f.lastNumber = 4 // destination already has issues search does not show yet
	f.unindexed = true
	seed(t, l.DB, map[int]json.RawMessage{1: issueDoc(1, nil), 2: issueDoc(2, nil)})

	err := l.Run(context.Background(), "create-issues")
	if !errors.Is(err, ErrKeyMismatch) {
		t.Fatalf("expected ErrKeyMismatch, got %v", err)
	}
	if n := len(f.callsTo("POST", "/rest/api/2/issue")); n != 1 {
		t.Errorf("created %d issues after mismatch, want 1", n)
	}
	total, loaded, _ := db.CountIssues(l.DB)
	if total != 2 || loaded != 0 {
		t.Errorf("count = %d/%d, mismatched issue must not be recorded", total, loaded)
	}
}

func TestCreateIssuesResumesAfterLoaded(t *testing.T) {
	l, f := newTestLoader(t)
	issues := seed(t, l.DB, map[int]json.RawMessage{1: issueDoc(1, nil), 2: issueDoc(2, nil)})
	markLoaded(t, l.DB, map[int]*model.Issue{1: issues[1]})
	f.lastNumber = 1

	if err := l.CreateIssues(context.Background()); err != nil {
		t.Fatalf("CreateIssues: %v", err)
	}
	creates := f.callsTo("POST", "/rest/api/2/issue")
	if len(creates) != 1 || field(creates[0].Body, "fields", "summary") != "Issue 2" {
		t.Errorf("creates = %v", creates)
	}
}

func TestCreateIssuesResumesAfterTrailingPlaceholder(t *testing.T) {
	l, f := newTestLoader(t)
	issues := seed(t, l.DB, map[int]json.RawMessage{1: issueDoc(1, nil), 3: issueDoc(3, nil)})
	markLoaded(t, l.DB, map[int]*model.Issue{1: issues[1]})
	// The interrupted run created PROJ-1 and placeholder PROJ-2.
	f.lastNumber = 2
	f.summaries = map[int]string{1: "Issue 1", 2: "Empty"}

	if err := l.CreateIssues(context.Background()); err != nil {
		t.Fatalf("CreateIssues: %v", err)
	}
	creates := f.callsTo("POST", "/rest/api/2/issue")
	if len(creates) != 1 || field(creates[0].Body, "fields", "summary") != "Issue 3" {
		t.Fatalf("creates = %v, want only Issue 3", creates)
	}
	got, err := db.GetIssue(l.DB, issues[3].ID)
	if err != nil {
		t.Fatalf("GetIssue: %v", err)
	}
	if got.DestUID == nil || *got.DestUID != 20003 {
		t.Errorf("PROJ-3 uid_dest = %v, want 20003", got.DestUID)
	}
}

func TestCreateIssuesRecordsCreatedButUnrecorded(t *testing.T) {
	l, f := newTestLoader(t)
	issues := seed(t, l.DB, map[int]json.RawMessage{1: issueDoc(1, nil), 2: issueDoc(2, nil)})
	// PROJ-1 was created but the run stopped before recording it.
	f.lastNumber = 1
	f.summaries = map[int]string{1: "Issue 1"}

	if err := l.CreateIssues(context.Background()); err != nil {
		t.Fatalf("CreateIssues: %v", err)
	}
	creates := f.callsTo("POST", "/rest/api/2/issue")
	if len(creates) != 1 || field(creates[0].Body, "fields", "summary") != "Issue 2" {
		t.Fatalf("creates = %v, want only Issue 2", creates)
	}
	for n, want := range map[int]int64{1: 20001, 2: 20002} {
		got, err := db.GetIssue(l.DB, issues[n].ID)
		if err != nil {
			t.Fatalf("GetIssue: %v", err)
		}
		if got.DestUID == nil || *got.DestUID != want {
			t.Errorf("PROJ-%d uid_dest = %v, want %d", n, got.DestUID, want)
		}
	}
}

func TestCreateIssuesRefusesForeignDestinationIssues(t *testing.T) {
	l, f := newTestLoader(t)
	f.lastNumber = 4 // destination project was not empty
	seed(t, l.DB, map[int]json.RawMessage{1: issueDoc(1, nil), 2: issueDoc(2, nil)})

	err := l.CreateIssues(context.Background())
	if !errors.Is(err, ErrKeyMismatch) {
		t.Fatalf("expected ErrKeyMismatch, got %v", err)
	}
	if n := len(f.callsTo("POST", "/rest/api/2/issue")); n != 0 {
		t.Errorf("created %d issues, want 0", n)
	}
	if _, loaded, _ := db.CountIssues(l.DB); loaded != 0 {
		t.Errorf("loaded = %d, want 0", loaded)
	}
}

func TestCreateIssuesUsesDestinationProject(t *testing.T) {
	l, f := newTestLoader(t)
	l.Settings.Destination.ProjectKey = "DEST"
	f.keyProject = "DEST"
	issues := seed(t, l.DB, map[int]json.RawMessage{1: issueDoc(1, nil)})

	if err := l.CreateIssues(context.Background()); err != nil {
		t.Fatalf("CreateIssues: %v", err)
	}
	got, _ := db.GetIssue(l.DB, issues[1].ID)
	if !got.Loaded() {
		t.Error("issue not recorded as loaded")
	}
}

func TestCreateVersions(t *testing.T) {
	l, f := newTestLoader(t)
	err := db.ReplaceVersions(l.DB, []*model.Version{
		{UID: "1", Name: "1.0", Document: json.RawMessage(`{"id":"1","name":"1.0","archived":true,"released":true,"description":"first","userReleaseDate":"02/Jan/20"}`)},
		{UID: "2", Name: "2.0", Document: json.RawMessage(`{"id":"2","name":"2.0","archived":false,"released":false}`)},
	})
	if err != nil {
		t.Fatalf("ReplaceVersions: %v", err)
	}

	if err := l.CreateVersions(context.Background()); err != nil {
		t.Fatalf("CreateVersions: %v", err)
	}
	calls := f.callsTo("POST", "/rest/api/2/version")
	if len(calls) != 2 {
		t.Fatalf("created %d versions, want 2", len(calls))
	}
	v1, v2 := calls[0].Body, calls[1].Body
	if v1["name"] != "1.0" || v1["archived"] != true || v1["released"] != true ||
		v1["description"] != "first" || v1["userReleaseDate"] != "02/Jan/20" ||
		v1["project"] != "PROJ" || v1["projectId"] != float64(10100) {
		t.Errorf("version 1 payload = %v", v1)
	}
	for _, k := range []string{"description", "userStartDate", "userReleaseDate"} {
		if _, ok := v2[k]; ok {
			t.Errorf("version 2 payload has empty optional %s", k)
		}
	}
}

func TestSetIssueVersions(t *testing.T) {
	l, f := newTestLoader(t)
	seed(t, l.DB, map[int]json.RawMessage{
		1: issueDoc(1, func(fl map[string]any) {
			fl["fixVersions"] = []any{map[string]any{"id": "1", "name": "1.0"}, map[string]any{"id": "2", "name": "2.0"}}
		}),
		2: issueDoc(2, nil),
	})

	if err := l.SetIssueVersions(context.Background()); err != nil {
		t.Fatalf("SetIssueVersions: %v", err)
	}
	puts := f.callsTo("PUT", "/rest/api/2/issue/")
	if len(puts) != 1 || puts[0].Path != "/rest/api/2/issue/PROJ-1" {
		t.Fatalf("puts = %v", puts)
	}
	set := field(puts[0].Body, "update", "fixVersions").([]any)[0].(map[string]any)["set"].([]any)
	var names []string
	for _, v := range set {
		names = append(names, v.(map[string]any)["name"].(string))
	}
	if strings.Join(names, ",") != "1.0,2.0" {
		t.Errorf("fix versions = %v", names)
	}
}

func TestDoTransitions(t *testing.T) {
	l, f := newTestLoader(t)
	seed(t, l.DB, map[int]json.RawMessage{
		1: issueDoc(1, nil), // Open maps to no transition
		2: issueDoc(2, func(fl map[string]any) { fl["status"] = map[string]any{"name": "Done"} }),
		3: issueDoc(3, func(fl map[string]any) { fl["status"] = map[string]any{"name": "In Progress"} }),
	})

	if err := l.DoTransitions(context.Background()); err != nil {
		t.Fatalf("DoTransitions: %v", err)
	}
	calls := f.callsTo("POST", "/rest/api/2/issue/")
	if len(calls) != 2 {
		t.Fatalf("transitions = %v", calls)
	}
	for i, want := range []struct{ path, id string }{
		{"/rest/api/2/issue/PROJ-2/transitions", "31"},
		{"/rest/api/2/issue/PROJ-3/transitions", "21"},
	} {
		if calls[i].Path != want.path || field(calls[i].Body, "transition", "id") != want.id {
			t.Errorf("transition %d = %s %v", i, calls[i].Path, calls[i].Body)
		}
	}
}

func TestDoTransitionsUnmappedFailsBeforeAnyCall(t *testing.T) {
	l, f := newTestLoader(t)
	seed(t, l.DB, map[int]json.RawMessage{
		1: issueDoc(1, func(fl map[string]any) { fl["status"] = map[string]any{"name": "Done"} }),
		2: issueDoc(2, func(fl map[string]any) { fl["status"] = map[string]any{"name": "Won't Fix"} }),
	})

	err := l.Run(context.Background(), "do-transitions")
	if !errors.Is(err, ErrUnmappedStatus) {
		t.Fatalf("expected ErrUnmappedStatus, got %v", err)
	}
	if !strings.Contains(err.Error(), "Won't Fix") {
		t.Errorf("error does not name the status: %v", err)
	}
	if n := len(f.callsTo("POST", "/rest/")); n != 0 {
		t.Errorf("%d transitions made before failing", n)
	}
}

func TestMakeLinksDirection(t *testing.T) {
	l, f := newTestLoader(t)
	seed(t, l.DB, map[int]json.RawMessage{
		1: issueDoc(1, func(fl map[string]any) {
			fl["issuelinks"] = []any{
				map[string]any{"id": "100", "type": map[string]any{"name": "Blocks"}, "outwardIssue": map[string]any{"key": "PROJ-2"}},
				map[string]any{"id": "101", "type": map[string]any{"name": "Duplicate"}, "inwardIssue": map[string]any{"key": "PROJ-3"}},
				map[string]any{"id": "102", "type": map[string]any{"name": "Blocks"}, "outwardIssue": map[string]any{"key": "OTHER-9"}},
			}
		}),
		2: issueDoc(2, func(fl map[string]any) {
			// The other side of link 100.
			fl["issuelinks"] = []any{
				map[string]any{"id": "100", "type": map[string]any{"name": "Blocks"}, "inwardIssue": map[string]any{"key": "PROJ-1"}},
			}
		}),
		3: issueDoc(3, nil),
	})

	if err := l.MakeLinks(context.Background()); err != nil {
		t.Fatalf("MakeLinks: %v", err)
	}
	calls := f.callsTo("POST", "/rest/api/2/issueLink")
	if len(calls) != 3 {
		t.Fatalf("created %d links, want 3", len(calls))
	}

	outward := calls[0].Body
	if field(outward, "type", "name") != "Blocks" ||
		field(outward, "inwardIssue", "key") != "PROJ-1" ||
		field(outward, "outwardIssue", "key") != "PROJ-2" {
		t.Errorf("outward link = %v", outward)
	}
	inward := calls[1].Body
	if field(inward, "type", "name") != "Duplicates" ||
		field(inward, "inwardIssue", "key") != "PROJ-3" ||
		field(inward, "outwardIssue", "key") != "PROJ-1" {
		t.Errorf("inward link = %v", inward)
	}
	external := calls[2].Body
	if field(external, "inwardIssue", "key") != "PROJ-1" || field(external, "outwardIssue", "key") != "OTHER-9" {
		t.Errorf("external link = %v", external)
	}
}

func TestMakeLinksSkipsExternalWhenConfigured(t *testing.T) {
	l, f := newTestLoader(t)
	l.Settings.Mappings.ExternalLinks = config.ExternalLinksSkip
	seed(t, l.DB, map[int]json.RawMessage{
		1: issueDoc(1, func(fl map[string]any) {
			fl["issuelinks"] = []any{
				map[string]any{"id": "100", "type": map[string]any{"name": "Blocks"}, "outwardIssue": map[string]any{"key": "PROJ-2"}},
				map[string]any{"id": "102", "type": map[string]any{"name": "Blocks"}, "outwardIssue": map[string]any{"key": "OTHER-9"}},
			}
		}),
		2: issueDoc(2, nil),
	})

	if err := l.MakeLinks(context.Background()); err != nil {
		t.Fatalf("MakeLinks: %v", err)
	}
	calls := f.callsTo("POST", "/rest/api/2/issueLink")
	if len(calls) != 1 || field(calls[0].Body, "outwardIssue", "key") != "PROJ-2" {
		t.Errorf("links = %v, want only PROJ-1 -> PROJ-2", calls)
	}
}

func TestMakeLinksUnmappedType(t *testing.T) {
	l, f := newTestLoader(t)
	seed(t, l.DB, map[int]json.RawMessage{
		1: issueDoc(1, func(fl map[string]any) {
			fl["issuelinks"] = []any{
				map[string]any{"id": "100", "type": map[string]any{"name": "Clones"}, "outwardIssue": map[string]any{"key": "PROJ-2"}},
			}
		}),
		2: issueDoc(2, nil),
	})

	if err := l.MakeLinks(context.Background()); !errors.Is(err, ErrUnmappedLinkType) {
		t.Fatalf("expected ErrUnmappedLinkType, got %v", err)
	}
	if n := len(f.callsTo("POST", "/rest/")); n != 0 {
		t.Errorf("%d links created before failing", n)
	}
}

func TestCreateCommentsAsAuthor(t *testing.T) {
	l, f := newTestLoader(t)
	seed(t, l.DB, map[int]json.RawMessage{
		1: issueDoc(1, func(fl map[string]any) {
			fl["comment"] = map[string]any{"comments": []any{
				map[string]any{"id": "1", "body": "first", "author": user("bob", true)},
				map[string]any{"id": "2", "body": "second", "author": user("carol", false)},
			}}
		}),
	})

	if err := l.CreateComments(context.Background()); err != nil {
		t.Fatalf("CreateComments: %v", err)
	}
	calls := f.callsTo("POST", "/rest/api/2/issue/PROJ-1/comment")
	if len(calls) != 2 {
		t.Fatalf("comments = %v", calls)
	}
	if calls[0].User != "bob" || calls[0].Body["body"] != "first" {
		t.Errorf("comment 0 = %+v", calls[0])
	}
	if calls[1].User != "carol" || calls[1].Body["body"] != "second" {
		t.Errorf("comment 1 = %+v", calls[1])
	}
}

func TestCreateAttachmentsAsAuthor(t *testing.T) {
	l, f := newTestLoader(t)
	issues := seed(t, l.DB, map[int]json.RawMessage{1: issueDoc(1, nil)})

	path := model.AttachmentPath("PROJ-1", "log.txt")
	if _, err := l.Files.Write(path, strings.NewReader("log content")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	_, err := db.CreateAttachment(l.DB, &model.Attachment{
		UID:      500,
		IssueID:  issues[1].ID,
		Filename: "log.txt",
		Path:     path,
		Size:     11,
		Document: json.RawMessage(`{"id":"500","filename":"log.txt","author":{"name":"dave"}}`),
	})
	if err != nil {
		t.Fatalf("CreateAttachment: %v", err)
	}

	if err := l.CreateAttachments(context.Background()); err != nil {
		t.Fatalf("CreateAttachments: %v", err)
	}
	calls := f.callsTo("POST", "/rest/api/2/issue/PROJ-1/attachments")
	if len(calls) != 1 {
		t.Fatalf("uploads = %v", calls)
	}
	if calls[0].User != "dave" || calls[0].Filename != "log.txt" || calls[0].Content != "log content" {
		t.Errorf("upload = %+v", calls[0])
	}
}

func TestCreateAttachmentsMissingFile(t *testing.T) {
	l, _ := newTestLoader(t)
	issues := seed(t, l.DB, map[int]json.RawMessage{1: issueDoc(1, nil)})
	_, err := db.CreateAttachment(l.DB, &model.Attachment{
		UID: 1, IssueID: issues[1].ID, Filename: "gone.txt",
		Path:     model.AttachmentPath("PROJ-1", "gone.txt"),
		Document: json.RawMessage(`{"author":{"name":"dave"}}`),
	})
	if err != nil {
		t.Fatalf("CreateAttachment: %v", err)
	}

	if err := l.CreateAttachments(context.Background()); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("expected missing file error, got %v", err)
	}
}

func TestMakeRelations(t *testing.T) {
	l, f := newTestLoader(t)
	issues := seed(t, l.DB, map[int]json.RawMessage{
		1: issueDoc(1, nil),
		2: issueDoc(2, func(fl map[string]any) {
			fl["issuetype"] = map[string]any{"id": "5"}
			fl["parent"] = map[string]any{"key": "PROJ-1"}
		}),
	})
	markLoaded(t, l.DB, issues)

	if err := l.MakeRelations(context.Background()); err != nil {
		t.Fatalf("MakeRelations: %v", err)
	}

	if gets := f.callsTo("GET", "/secure/ConvertIssueSetIssueType.jspa"); len(gets) != 1 {
		t.Fatalf("conversion start pages = %d, want 1", len(gets))
	}
	posts := f.callsTo("POST", "/secure/ConvertIssue")
	if len(posts) != 3 {
		t.Fatalf("conversion posts = %d, want 3", len(posts))
	}
	sel := posts[0].Form
	if sel.Get("id") != "20002" || sel.Get("parentIssueKey") != "PROJ-1" || sel.Get("issuetype") != "10000" || sel.Get("guid") != "g-1" {
		t.Errorf("select parent form = %v", sel)
	}
}

func TestMakeRelationsRequiresLoaded(t *testing.T) {
	l, _ := newTestLoader(t)
	seed(t, l.DB, map[int]json.RawMessage{
		1: issueDoc(1, nil),
		2: issueDoc(2, func(fl map[string]any) {
			fl["issuetype"] = map[string]any{"id": "5"}
			fl["parent"] = map[string]any{"key": "PROJ-1"}
		}),
	})

	if err := l.MakeRelations(context.Background()); !errors.Is(err, ErrNotLoaded) {
		t.Errorf("expected ErrNotLoaded, got %v", err)
	}
}

func TestCollectUsers(t *testing.T) {
	var docs []*jira.Issue
	for _, raw := range []json.RawMessage{
		issueDoc(1, func(fl map[string]any) {
			fl["assignee"] = user("carol", false)
			fl["comment"] = map[string]any{"comments": []any{
				map[string]any{"id": "1", "body": "x", "author": user("bob", true)},
			}}
		}),
		issueDoc(2, func(fl map[string]any) {
			fl["reporter"] = user("bob", true)
		}),
	} {
		doc, err := jira.DecodeIssue(raw)
		if err != nil {
			t.Fatalf("DecodeIssue: %v", err)
		}
		docs = append(docs, doc)
	}

	users := CollectUsers(docs)
	var names []string
	for _, u := range users {
		names = append(names, u.Name)
	}
	if strings.Join(names, ",") != "alice,bob,carol" {
		t.Fatalf("users = %v", names)
	}
	carol := users[2]
	if carol.Active || carol.Email != "carol@example.com" || carol.DisplayName != "Carol" {
		t.Errorf("carol = %+v", carol)
	}
}

func TestUserPhases(t *testing.T) {
	l, f := newTestLoader(t)
	seed(t, l.DB, map[int]json.RawMessage{
		1: issueDoc(1, func(fl map[string]any) {
			fl["reporter"] = user("admin", true)
			fl["assignee"] = user("carol", false)
		}),
		2: issueDoc(2, nil),
	})
	l.Rand = rand.Reader

	if err := l.Run(context.Background(), "create-users", "set-random-passwords", "deactivate-users"); err != nil {
		t.Fatalf("Run: %v", err)
	}

	var created []string
	for _, c := range f.callsTo("POST", "/secure/admin/user/AddUser.jspa") {
		created = append(created, c.Form.Get("username"))
		if c.Form.Get("password") != "changeme" {
			t.Errorf("user %s created with password %q", c.Form.Get("username"), c.Form.Get("password"))
		}
	}
	if strings.Join(created, ",") != "admin,alice,carol" {
		t.Errorf("created users = %v", created)
	}

	var reset []string
	for _, c := range f.callsTo("POST", "/secure/admin/user/SetPassword.jspa") {
		reset = append(reset, c.Form.Get("name"))
		pw := c.Form.Get("password")
		if len(pw) != 20 || pw != c.Form.Get("confirm") || pw == "changeme" {
			t.Errorf("password for %s = %q", c.Form.Get("name"), pw)
		}
	}
	if strings.Join(reset, ",") != "alice,carol" {
		t.Errorf("passwords reset for %v, admin must be skipped", reset)
	}

	deactivated := f.callsTo("POST", "/secure/admin/user/EditUser.jspa")
	if len(deactivated) != 1 || deactivated[0].Form.Get("username") != "carol" {
		t.Errorf("deactivated = %v", deactivated)
	}

	if logins := f.callsTo("POST", "/login.jsp"); len(logins) != 6 {
		t.Errorf("logins = %d, want one per action (6)", len(logins))
	}
}

func TestRandomPassword(t *testing.T) {
	// 255 and 248 fall outside the unbiased range and are skipped.
	r := bytes.NewReader([]byte{0, 255, 61, 62, 248, 25, 26, 1, 2, 3})
	got, err := RandomPassword(r, 5)
	if err != nil {
		t.Fatalf("RandomPassword: %v", err)
	}
	if got != "a9azA" {
		t.Errorf("password = %q, want %q", got, "a9azA")
	}

	if _, err := RandomPassword(bytes.NewReader([]byte{1, 2}), 5); err == nil {
		t.Error("expected error when the random source runs dry")
	}

	pw, err := RandomPassword(rand.Reader, 20)
	if err != nil {
		t.Fatalf("RandomPassword: %v", err)
	}
	if len(pw) != 20 {
		t.Errorf("len = %d, want 20", len(pw))
	}
	for _, c := range pw {
		if !strings.ContainsRune(passwordAlphabet, c) {
			t.Errorf("password contains %q", c)
		}
	}
}

func TestWriteCreationDates(t *testing.T) {
	l, _ := newTestLoader(t)
	seed(t, l.DB, map[int]json.RawMessage{
		7: issueDoc(7, func(fl map[string]any) {
			fl["summary"] = "Fix bug"
			fl["created"] = "2020-01-02T10:00:00.000+0000"
		}),
		8: issueDoc(8, func(fl map[string]any) {
			fl["summary"] = nil
			fl["created"] = "2021-06-30T23:15:01.000+0300"
		}),
		10: issueDoc(10, func(fl map[string]any) {
			fl["summary"] = "Quote, \"comma\""
		}),
	})

	var buf bytes.Buffer
	if err := l.WriteCreationDatesTo(&buf); err != nil {
		t.Fatalf("WriteCreationDatesTo: %v", err)
	}
	want := "PROJ-7,2020-01-02 10:00:00,Fix bug\n" +
		"PROJ-8,2021-06-30 23:15:01,Empty\n" +
		"PROJ-10,2020-01-02 10:00:00,\"Quote, \"\"comma\"\"\"\n"
	if buf.String() != want {
		t.Errorf("csv =\n%s\nwant\n%s", buf.String(), want)
	}

	l.CSVPath = filepath.Join(t.TempDir(), "dates.csv")
	if err := l.Run(context.Background(), "creation-dates-csv"); err != nil {
		t.Fatalf("Run: %v", err)
	}
	data, err := os.ReadFile(l.CSVPath)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if string(data) != want {
		t.Errorf("file content differs from writer output")
	}
}

func TestPhasesRequireDocuments(t *testing.T) {
	l, _ := newTestLoader(t)
	if err := db.ReplaceIssues(l.DB, []*model.Issue{{UID: 1, Key: "PROJ-1"}}); err != nil {
		t.Fatalf("ReplaceIssues: %v", err)
	}
	if err := l.DoTransitions(context.Background()); err == nil || !strings.Contains(err.Error(), "no document") {
		t.Errorf("expected missing document error, got %v", err)
	}
}
