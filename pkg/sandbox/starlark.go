package sandbox

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"go.starlark.net/starlark"
	"go.starlark.net/syntax"
)

const (
	submissionFileName = "submission.py"
	maxValueDepth      = 32
)

// StarlarkRunner executes submissions with an embedded Starlark interpreter.
// The interpreter has no filesystem, network or load() access; every run gets
// its own thread and an empty global scope.
type StarlarkRunner struct {
	logger zerolog.Logger
}

// NewStarlarkRunner constructs an in-process runner.
func NewStarlarkRunner(logger zerolog.Logger) *StarlarkRunner {
	return &StarlarkRunner{
		logger: logger.With().Str("component", "starlark_runner").Logger(),
	}
}

// Run executes req.Source and then each probe against the resulting globals.
func (r *StarlarkRunner) Run(parent context.Context, req Request) (Result, error) {
	ctx := parent
	if req.Limits.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(parent, req.Limits.Timeout)
		defer cancel()
	}

	output := newOutputBuffer(req.Limits.MaxOutputBytes)
	thread := &starlark.Thread{
		Name: "submission",
		Print: func(_ *starlark.Thread, msg string) {
			output.WriteLine(msg)
		},
	}
	if req.Limits.MaxSteps > 0 {
		thread.SetMaxExecutionSteps(req.Limits.MaxSteps)
	}

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			thread.Cancel(ctx.Err().Error())
		case <-done:
		}
	}()

	start := time.Now()
	globals, err := r.exec(thread, req.Source)
	if err != nil {
		if errors.Is(parent.Err(), context.Canceled) {
			return Result{}, fmt.Errorf("run starlark: %w", parent.Err())
		}
		message, timedOut := r.describe(ctx, thread, req.Limits, err)
		result := Result{
			Failure:  message,
			TimedOut: timedOut,
			Output:   output.String(),
			Duration: time.Since(start),
		}
		r.logger.Debug().Bool("timed_out", timedOut).Str("failure", message).Msg("submission raised")
		return result, nil
	}

	bindings := make(map[string]Value, len(globals))
	for name, value := range globals {
		bindings[name] = fromStarlark(value, 0)
	}

	calls := make([]CallResult, 0, len(req.Probes))
	for _, probe := range req.Probes {
		calls = append(calls, r.call(ctx, thread, req.Limits, globals, probe))
	}

	return Result{
		Bindings: bindings,
		Calls:    calls,
		Output:   output.String(),
		Duration: time.Since(start),
	}, nil
}

func (r *StarlarkRunner) exec(thread *starlark.Thread, src string) (starlark.StringDict, error) {
	program, err := compileSubmission(src)
	if err != nil {
		return nil, err
	}
	globals, err := program.Init(thread, predeclared)
	globals.Freeze()
	return globals, err
}

func (r *StarlarkRunner) call(ctx context.Context, thread *starlark.Thread, limits Limits, globals starlark.StringDict, probe Probe) CallResult {
	fn, ok := globals[probe.Function]
	if !ok {
		return CallResult{Error: fmt.Sprintf("name '%s' is not defined", probe.Function)}
	}
	callable, ok := fn.(starlark.Callable)
	if !ok {
		return CallResult{Error: fmt.Sprintf("'%s' object is not callable", fn.Type())}
	}

	args := make(starlark.Tuple, 0, len(probe.Args))
	for _, arg := range probe.Args {
		converted, err := toStarlark(arg)
		if err != nil {
			return CallResult{Error: err.Error()}
		}
		args = append(args, converted)
	}

	out, err := starlark.Call(thread, callable, args, nil)
	if err != nil {
		message, _ := r.describe(ctx, thread, limits, err)
		return CallResult{Error: message}
	}
	return CallResult{Value: fromStarlark(out, 0)}
}

func (r *StarlarkRunner) describe(ctx context.Context, thread *starlark.Thread, limits Limits, err error) (string, bool) {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return timeoutMessage(limits.Timeout), true
	}
	if limits.MaxSteps > 0 && thread.ExecutionSteps() >= limits.MaxSteps {
		return fmt.Sprintf("execution exceeded the budget of %d steps", limits.MaxSteps), true
	}
	message := err.Error()
	var evalErr *starlark.EvalError
	if errors.As(err, &evalErr) {
		message = evalErr.Msg
	}
	return withDialectHint(message), false
}

// withDialectHint explains the few places where strings still do not behave
// like Python sequences, such as "".join(text).
func withDialectHint(message string) string {
	if strings.Contains(message, "string value is not iterable") || strings.Contains(message, "got string, want iterable") {
		return message + " (use list(text) to get its characters)"
	}
	return message
}

func fromStarlark(v starlark.Value, depth int) Value {
	if depth > maxValueDepth {
		return Value{Kind: KindOther, Type: v.Type()}
	}
	switch x := v.(type) {
	case starlark.NoneType:
		return None()
	case starlark.Bool:
		return Bool(bool(x))
	case starlark.Int:
		if i, ok := x.Int64(); ok {
			return Int(i)
		}
		return Value{Kind: KindOther, Type: "int"}
	case starlark.Float:
		return Float(float64(x))
	case starlark.String:
		return String(string(x))
	case *starlark.List:
		items := make([]Value, 0, x.Len())
		for i := 0; i < x.Len(); i++ {
			items = append(items, fromStarlark(x.Index(i), depth+1))
		}
		return Value{Kind: KindList, Items: items, Type: "list"}
	case starlark.Tuple:
		items := make([]Value, 0, len(x))
		for _, item := range x {
			items = append(items, fromStarlark(item, depth+1))
		}
		return Value{Kind: KindList, Items: items, Type: "tuple"}
	case starlark.Callable:
		return Value{Kind: KindFunction, Type: x.Name()}
	default:
		return Value{Kind: KindOther, Type: v.Type()}
	}
}

func toStarlark(v Value) (starlark.Value, error) {
	switch v.Kind {
	case KindNone:
		return starlark.None, nil
	case KindBool:
		return starlark.Bool(v.Bool), nil
	case KindInt:
		return starlark.MakeInt64(v.Int), nil
	case KindFloat:
		return starlark.Float(v.Float), nil
	case KindString:
		return starlark.String(v.Str), nil
	case KindList:
		items := make([]starlark.Value, 0, len(v.Items))
		for _, item := range v.Items {
			converted, err := toStarlark(item)
			if err != nil {
				return nil, err
			}
			items = append(items, converted)
		}
		if v.Type == "tuple" {
			return starlark.Tuple(items), nil
		}
		return starlark.NewList(items), nil
	default:
		return nil, fmt.Errorf("cannot pass %s value as an argument", v.Kind)
	}
}

func builtinSum(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var iterable starlark.Iterable
	var start starlark.Value = starlark.MakeInt(0)
	if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 1, &iterable, &start); err != nil {
		return nil, err
	}

	iter := iterable.Iterate()
	defer iter.Done()

	total := start
	var item starlark.Value
	for iter.Next(&item) {
		next, err := starlark.Binary(syntax.PLUS, total, item)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", b.Name(), err)
		}
		total = next
	}
	return total, nil
}
