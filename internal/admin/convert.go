package admin

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"

	"golang.org/x/net/html"
)

// Step is a position in the sub-task conversion wizard.
type Step int

const (
	StepStart Step = iota
	StepSelectParent
	StepUpdateFields
	StepConfirm
	StepDone
)

func (s Step) String() string {
	switch s {
	case StepStart:
		return "start"
	case StepSelectParent:
		return "select parent"
	case StepUpdateFields:
		return "update fields"
	case StepConfirm:
		return "confirm"
	case StepDone:
		return "done"
	default:
		return "step(" + strconv.Itoa(int(s)) + ")"
	}
}

// ErrConversionAborted is returned by Advance after an earlier step failed.
var ErrConversionAborted = errors.New("conversion aborted by an earlier failure")

// ErrConversionDone is returned by Advance once the wizard has finished.
var ErrConversionDone = errors.New("conversion already finished")

const convertStartPath = "/secure/ConvertIssueSetIssueType.jspa"

// Conversion turns a standalone issue into a sub-task of ParentKey. The
// server keys wizard state by session and guid, so every step runs on the
// same session in order.
type Conversion struct {
	IssueID       int64
	ParentKey     string
	SubtaskTypeID string

	client  *Client
	session *Session
	guid    string
	step    Step
	failed  bool
}

// NewConversion prepares a conversion of the destination issue issueID.
func (c *Client) NewConversion(issueID int64, parentKey, subtaskTypeID string) *Conversion {
	return &Conversion{
		IssueID:       issueID,
		ParentKey:     parentKey,
		SubtaskTypeID: subtaskTypeID,
		client:        c,
	}
}

// Step returns the next step Advance will perform.
func (cv *Conversion) Step() Step { return cv.step }

// GUID returns the wizard guid, empty before the start page was read.
func (cv *Conversion) GUID() string { return cv.guid }

// Run advances through every remaining step.
func (cv *Conversion) Run(ctx context.Context) error {
	for cv.step != StepDone {
		if err := cv.Advance(ctx); err != nil {
			return err
		}
	}
	return nil
}

// Advance performs the next step. A failed step leaves the conversion
// aborted; the wizard cannot be rolled back or resumed.
func (cv *Conversion) Advance(ctx context.Context) error {
	if cv.failed {
		return ErrConversionAborted
	}

	var err error
	switch cv.step {
	case StepStart:
		err = cv.start(ctx)
	case StepSelectParent:
		err = cv.post(ctx, convertStartPath, url.Values{
			"parentIssueKey": {cv.ParentKey},
			"issuetype":      {cv.SubtaskTypeID},
			"Next >>":        {"Next >>"},
		}, cv.startURL())
	case StepUpdateFields:
		err = cv.post(ctx, "/secure/ConvertIssueUpdateFields.jspa", url.Values{
			"Next >>": {"Next >>"},
		}, "")
	case StepConfirm:
		err = cv.post(ctx, "/secure/ConvertIssueConvert.jspa", url.Values{
			"Finish": {"Finish"},
		}, "")
	case StepDone:
		return ErrConversionDone
	}

	if err != nil {
		cv.failed = true
		return fmt.Errorf("convert issue %d to sub-task of %s: %w", cv.IssueID, cv.ParentKey, err)
	}
	cv.step++
	return nil
}

func (cv *Conversion) id() string {
	return strconv.FormatInt(cv.IssueID, 10)
}

func (cv *Conversion) startURL() string {
	return cv.client.Host + convertStartPath + "?id=" + cv.id()
}

func (cv *Conversion) start(ctx context.Context) error {
	s, err := cv.client.NewSession()
	if err != nil {
		return err
	}

	body, err := s.Get(ctx, StepStart.String(), convertStartPath+"?id="+cv.id(), true)
	if err != nil {
		return err
	}

	guid, err := FindGUID(body)
	if err != nil {
		return fmt.Errorf("%s: %w", StepStart, err)
	}

	cv.session = s
	cv.guid = guid
	return nil
}

func (cv *Conversion) post(ctx context.Context, path string, form url.Values, referer string) error {
	form.Set("id", cv.id())
	form.Set("guid", cv.guid)
	_, err := cv.session.PostForm(ctx, cv.step.String(), path, form, referer)
	return err
}

// FindGUID returns the value of the hidden input with id "guid" in a
// conversion wizard page.
func FindGUID(page []byte) (string, error) {
	doc, err := html.Parse(bytes.NewReader(page))
	if err != nil {
		return "", fmt.Errorf("parse conversion page: %w", err)
	}

	var find func(*html.Node) (string, bool)
	find = func(n *html.Node) (string, bool) {
		if n.Type == html.ElementNode && n.Data == "input" {
			attrs := make(map[string]string, len(n.Attr))
			for _, a := range n.Attr {
				attrs[a.Key] = a.Val
			}
			if attrs["type"] == "hidden" && attrs["id"] == "guid" {
				return attrs["value"], true
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if v, ok := find(c); ok {
				return v, true
			}
		}
		return "", false
	}

	guid, ok := find(doc)
	if !ok || guid == "" {
		return "", errors.New("conversion page has no guid input")
	}
	return guid, nil
}
