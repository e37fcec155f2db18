package render

// CompletionToken tracks one unit of submitted GPU work. Tokens are moved, not shared: the
// frame loop hands the previous token to the next submission and keeps the one it gets back.
type CompletionToken interface {
	// CleanupFinished releases whatever the work held once it has retired and reports
	// whether it has. It never blocks and may be called any number of times.
	CleanupFinished() bool
	// Wait blocks until the work has retired, then releases it.
	Wait() error
}

type readyToken struct{}

// Ready returns a token for work that has already completed.
func Ready() CompletionToken {
	return readyToken{}
}

func (readyToken) CleanupFinished() bool { return true }

func (readyToken) Wait() error { return nil }
