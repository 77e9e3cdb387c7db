package exec

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
)

// MockResponse is what a matched command returns.
// A non-zero ExitCode with a nil Err produces an *ExitError.
type MockResponse struct {
	Stdout   []byte
	Stderr   []byte
	ExitCode int
	Err      error
}

// MockCall records one invocation seen by the MockExecutor.
type MockCall struct {
	Dir  string
	Name string
	Args []string
}

// String renders the call the way a shell would show it.
func (c MockCall) String() string {
	return strings.TrimSpace(c.Name + " " + strings.Join(c.Args, " "))
}

type mockRule struct {
	match    func(dir, name string, args []string) bool
	response MockResponse
	once     bool
	used     bool
}

// MockExecutor matches commands against rules registered by tests.
// Rules are checked newest first, so later registrations override earlier ones.
// Unmatched commands fall back to the default response.
type MockExecutor struct {
	mu       sync.Mutex
	rules    []*mockRule
	calls    []MockCall
	fallback MockResponse
}

// NewMockExecutor creates a mock. A nil fallback makes unmatched commands
// succeed with empty output.
func NewMockExecutor(fallback *MockResponse) *MockExecutor {
	m := &MockExecutor{}
	if fallback != nil {
		m.fallback = *fallback
	}
	return m
}

// AddRule registers an arbitrary predicate.
func (m *MockExecutor) AddRule(match func(dir, name string, args []string) bool, resp MockResponse) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rules = append(m.rules, &mockRule{match: match, response: resp})
}

// AddOnce registers a predicate that is consumed by its first match.
func (m *MockExecutor) AddOnce(match func(dir, name string, args []string) bool, resp MockResponse) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rules = append(m.rules, &mockRule{match: match, response: resp, once: true})
}

// AddExactMatch matches name with exactly args.
func (m *MockExecutor) AddExactMatch(name string, args []string, resp MockResponse) {
	want := slices.Clone(args)
	m.AddRule(func(_, n string, a []string) bool {
		return n == name && slices.Equal(a, want)
	}, resp)
}

// AddPrefixMatch matches name whose args start with prefix.
func (m *MockExecutor) AddPrefixMatch(name string, prefix []string, resp MockResponse) {
	want := slices.Clone(prefix)
	m.AddRule(func(_, n string, a []string) bool {
		return n == name && len(a) >= len(want) && slices.Equal(a[:len(want)], want)
	}, resp)
}

// Run records the call and returns the first matching response.
func (m *MockExecutor) Run(ctx context.Context, dir, name string, args ...string) ([]byte, []byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.calls = append(m.calls, MockCall{Dir: dir, Name: name, Args: slices.Clone(args)})

	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}

	resp := m.fallback
	for i := len(m.rules) - 1; i >= 0; i-- {
		r := m.rules[i]
		if r.used || !r.match(dir, name, args) {
			continue
		}
		if r.once {
			r.used = true
		}
		resp = r.response
		break
	}

	err := resp.Err
	if err == nil && resp.ExitCode != 0 {
		err = &ExitError{Code: resp.ExitCode}
	} else if err != nil && resp.ExitCode != 0 {
		err = fmt.Errorf("%w: %w", &ExitError{Code: resp.ExitCode}, err)
	}
	return resp.Stdout, resp.Stderr, err
}

// GetCalls returns a copy of every call made so far.
func (m *MockExecutor) GetCalls() []MockCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.calls)
}

// CallsWithPrefix returns the calls whose args start with prefix.
func (m *MockExecutor) CallsWithPrefix(prefix ...string) []MockCall {
	var out []MockCall
	for _, c := range m.GetCalls() {
		if len(c.Args) >= len(prefix) && slices.Equal(c.Args[:len(prefix)], prefix) {
			out = append(out, c)
		}
	}
	return out
}

// Reset forgets recorded calls but keeps the rules.
func (m *MockExecutor) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = nil
}
