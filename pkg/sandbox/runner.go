package sandbox

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Engine names accepted by NewRunner-style factories and configuration.
const (
	EngineStarlark = "starlark"
	EngineDocker   = "docker"
	// EngineAuto picks docker when the daemon answers and starlark otherwise.
	EngineAuto = "auto"
)

// Runner executes untrusted source in a fresh, empty scope and reports the
// resulting top-level bindings. User code failures are reported through
// Result.Failure; the returned error is reserved for backend failures.
type Runner interface {
	Run(ctx context.Context, req Request) (Result, error)
}

// Limits bounds a single execution. Zero values disable the individual limit.
type Limits struct {
	Timeout        time.Duration
	MaxSteps       uint64
	MemoryLimitMB  int64
	CPUShares      int64
	MaxOutputBytes int
}

// Request describes one execution.
type Request struct {
	Source string
	Probes []Probe
	Limits Limits
}

// Probe asks the runner to call a function binding after the module ran.
type Probe struct {
	Function string  `json:"function"`
	Args     []Value `json:"args"`
}

// String renders the probe as a call expression, e.g. find_max([1, 100, -5]).
func (p Probe) String() string {
	args := make([]string, 0, len(p.Args))
	for _, arg := range p.Args {
		args = append(args, arg.String())
	}
	return fmt.Sprintf("%s(%s)", p.Function, strings.Join(args, ", "))
}

// CallResult is the outcome of one probe. Error is set when the call raised.
type CallResult struct {
	Value Value  `json:"value"`
	Error string `json:"error,omitempty"`
}

// Result captures the outcome of executing a submission.
type Result struct {
	Bindings map[string]Value
	Calls    []CallResult
	Failure  string
	TimedOut bool
	Output   string
	Duration time.Duration
}

// Failed reports whether the module itself did not run to completion.
func (r Result) Failed() bool {
	return r.Failure != "" || r.TimedOut
}

// Binding returns the named binding and whether it exists.
func (r Result) Binding(name string) (Value, bool) {
	v, ok := r.Bindings[name]
	return v, ok
}

// Call returns the result of the i-th probe.
func (r Result) Call(i int) (CallResult, bool) {
	if i < 0 || i >= len(r.Calls) {
		return CallResult{}, false
	}
	return r.Calls[i], true
}

const defaultMaxOutputBytes = 16 * 1024

type outputBuffer struct {
	builder strings.Builder
	limit   int
	clipped bool
}

func newOutputBuffer(limit int) *outputBuffer {
	if limit <= 0 {
		limit = defaultMaxOutputBytes
	}
	return &outputBuffer{limit: limit}
}

func (b *outputBuffer) WriteLine(line string) {
	if b.clipped {
		return
	}
	remaining := b.limit - b.builder.Len()
	if len(line)+1 > remaining {
		if remaining > 0 {
			b.builder.WriteString(line[:min(len(line), remaining)])
		}
		b.clipped = true
		return
	}
	b.builder.WriteString(line)
	b.builder.WriteByte('\n')
}

func (b *outputBuffer) String() string {
	if b.clipped {
		return b.builder.String() + "\n[output truncated]"
	}
	return b.builder.String()
}

func clipOutput(s string, limit int) string {
	if limit <= 0 {
		limit = defaultMaxOutputBytes
	}
	if len(s) <= limit {
		return s
	}
	return s[:limit] + "\n[output truncated]"
}

func timeoutMessage(limit time.Duration) string {
	if limit <= 0 {
		return "execution exceeded the time limit"
	}
	return fmt.Sprintf("execution exceeded the time limit of %s", limit)
}
