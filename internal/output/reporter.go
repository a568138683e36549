package output

// Reporter receives progress diagnostics from long-running pipelines.
// *Writer implements it.
type Reporter interface {
	Info(format string, args ...any)
	Warn(format string, args ...any)
}

// Discard is a Reporter that drops every message.
var Discard Reporter = discard{}

type discard struct{}

func (discard) Info(string, ...any) {}
func (discard) Warn(string, ...any) {}

var _ Reporter = (*Writer)(nil)
