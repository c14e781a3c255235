package command_runner

import (
	"context"
	"strings"
	"sync"
)

// FakeRunner is a scripted Runner for tests. Responses and failures are
// matched by command-line prefix ("nmcli connection up"), longest first.
type FakeRunner struct {
	mu        sync.Mutex
	Calls     []string
	Responses map[string]string
	Failures  map[string]error
}

var _ Runner = (*FakeRunner)(nil)

// NewFakeRunner returns an empty FakeRunner where every command succeeds
// with no output.
func NewFakeRunner() *FakeRunner {
	return &FakeRunner{
		Responses: make(map[string]string),
		Failures:  make(map[string]error),
	}
}

// Respond scripts stdout for commands starting with prefix.
func (f *FakeRunner) Respond(prefix, stdout string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Responses[prefix] = stdout
}

// Fail scripts an error for commands starting with prefix.
func (f *FakeRunner) Fail(prefix string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Failures[prefix] = err
}

// Run records the call and returns the scripted result.
func (f *FakeRunner) Run(ctx context.Context, name string, args ...string) (string, error) {
	line := strings.TrimSpace(name + " " + strings.Join(args, " "))

	f.mu.Lock()
	defer f.mu.Unlock()
	f.Calls = append(f.Calls, line)

	if err := ctx.Err(); err != nil {
		return "", &ToolError{Command: line, ExitCode: -1, Cause: err}
	}
	if err, ok := longestMatch(f.Failures, line); ok {
		return "", err
	}
	out, _ := longestMatch(f.Responses, line)
	return out, nil
}

// CallsWithPrefix returns the recorded calls starting with prefix.
func (f *FakeRunner) CallsWithPrefix(prefix string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, c := range f.Calls {
		if strings.HasPrefix(c, prefix) {
			out = append(out, c)
		}
	}
	return out
}

// Reset forgets recorded calls, keeping the script.
func (f *FakeRunner) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Calls = nil
}

func longestMatch[V any](m map[string]V, line string) (V, bool) {
	var (
		best    V
		bestLen = -1
	)
	for prefix, v := range m {
		if strings.HasPrefix(line, prefix) && len(prefix) > bestLen {
			best, bestLen = v, len(prefix)
		}
	}
	return best, bestLen >= 0
}
