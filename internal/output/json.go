package output

import (
	"encoding/json"
	"errors"
	"io"
	"strings"
)

// ErrorCode represents a machine-readable error classification.
type ErrorCode string

// Error code constants.
const (
	ErrGeneral    ErrorCode = "GENERAL_ERROR"
	ErrNotFound   ErrorCode = "NOT_FOUND"
	ErrValidation ErrorCode = "VALIDATION_ERROR"
	ErrConflict   ErrorCode = "CONFLICT"
	ErrRemote     ErrorCode = "REMOTE_ERROR"
)

// Exit code constants.
const (
	ExitSuccess    = 0
	ExitGeneral    = 1
	ExitNotFound   = 2
	ExitValidation = 3
	ExitConflict   = 4
	ExitRemote     = 5
)

// ExitCodeForError maps an ErrorCode to its corresponding exit code.
func ExitCodeForError(code ErrorCode) int {
	switch code {
	case ErrNotFound:
		return ExitNotFound
	case ErrValidation:
		return ExitValidation
	case ErrConflict:
		return ExitConflict
	case ErrRemote:
		return ExitRemote
	default:
		return ExitGeneral
	}
}

// successEnvelope is the JSON structure for successful responses.
type successEnvelope struct {
	OK      bool   `json:"ok"`
	Data    any    `json:"data"`
	Message string `json:"message,omitempty"`
}

// errorEnvelope is the JSON structure for error responses. Status is the
// HTTP status of a failed remote call; Problems lists each error of a
// joined error, such as every unmapped status found by a load phase.
type errorEnvelope struct {
	OK       bool      `json:"ok"`
	Error    string    `json:"error"`
	Code     ErrorCode `json:"code"`
	Status   int       `json:"status,omitempty"`
	Problems []string  `json:"problems,omitempty"`
}

// httpStatusError is implemented by errors from a remote instance.
type httpStatusError interface {
	HTTPStatus() int
}

func remoteStatus(err error) int {
	var se httpStatusError
	if errors.As(err, &se) {
		return se.HTTPStatus()
	}
	return 0
}

// problems returns the messages of the outermost joined error in err's
// chain, or nil when there is none or it holds a single error.
func problems(err error) []string {
	var joined interface{ Unwrap() []error }
	if !errors.As(err, &joined) {
		return nil
	}
	errs := joined.Unwrap()
	if len(errs) < 2 {
		return nil
	}
	out := make([]string, 0, len(errs))
	for _, e := range errs {
		if e != nil {
			out = append(out, e.Error())
		}
	}
	return out
}

// errorHeadline is err's message without the joined problems, e.g. the
// phase name a load failure is prefixed with.
func errorHeadline(err error, probs []string) string {
	msg := err.Error()
	if len(probs) == 0 {
		return msg
	}
	joined := strings.Join(probs, "\n")
	if strings.HasSuffix(msg, joined) {
		msg = strings.TrimSuffix(msg, joined)
	} else if i := strings.Index(msg, "\n"); i >= 0 {
		msg = msg[:i]
	}
	msg = strings.TrimSuffix(strings.TrimSpace(msg), ":")
	if msg == "" {
		return "multiple problems"
	}
	return msg
}

// writeJSONSuccess writes a success envelope to w.
func writeJSONSuccess(w io.Writer, data any, message string) {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	enc.Encode(successEnvelope{
		OK:      true,
		Data:    data,
		Message: message,
	})
}

// writeJSONError writes an error envelope to w.
func writeJSONError(w io.Writer, err error, code ErrorCode) {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	enc.Encode(errorEnvelope{
		OK:       false,
		Error:    err.Error(),
		Code:     code,
		Status:   remoteStatus(err),
		Problems: problems(err),
	})
}
