package sandbox

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func runStarlark(t *testing.T, src string, probes []Probe, limits Limits) Result {
	t.Helper()
	runner := NewStarlarkRunner(zerolog.Nop())
	result, err := runner.Run(context.Background(), Request{Source: src, Probes: probes, Limits: limits})
	require.NoError(t, err)
	return result
}

func TestStarlarkRunnerCapturesBindings(t *testing.T) {
	defer goleak.VerifyNone(t)

	src := `numbers = [3, 4.5, -1]
label = "hi"
pair = (1, 2)
flag = True
nothing = None
total = 0
for n in numbers:
    total += n

def double(x):
    return x * 2
`
	result := runStarlark(t, src, nil, Limits{Timeout: time.Second})
	require.False(t, result.Failed())

	numbers, ok := result.Binding("numbers")
	require.True(t, ok)
	require.True(t, numbers.IsNumberList())
	require.Equal(t, "[3, 4.5, -1]", numbers.String())

	total, _ := result.Binding("total")
	require.Equal(t, KindFloat, total.Kind)
	require.True(t, total.Equal(Float(6.5)))

	label, _ := result.Binding("label")
	require.Equal(t, String("hi"), label)

	pair, _ := result.Binding("pair")
	require.Equal(t, "tuple", pair.Type)
	require.True(t, pair.IsNumberList())

	flag, _ := result.Binding("flag")
	require.Equal(t, KindBool, flag.Kind)
	require.False(t, flag.IsNumber())

	nothing, _ := result.Binding("nothing")
	require.Equal(t, KindNone, nothing.Kind)

	double, _ := result.Binding("double")
	require.True(t, double.IsCallable())
	require.Equal(t, "double", double.Type)

	_, ok = result.Binding("missing")
	require.False(t, ok)
}

func TestStarlarkRunnerRunsProbes(t *testing.T) {
	src := `def find_max(values):
    best = values[0]
    for v in values:
        if v > best:
            best = v
    return best

def boom(values):
    return 1 / 0

limit = 3
`
	probes := []Probe{
		{Function: "find_max", Args: []Value{Ints(1, 100, -5)}},
		{Function: "boom", Args: []Value{Ints(1)}},
		{Function: "absent"},
		{Function: "limit"},
	}
	result := runStarlark(t, src, probes, Limits{Timeout: time.Second})
	require.False(t, result.Failed())
	require.Len(t, result.Calls, 4)

	first, ok := result.Call(0)
	require.True(t, ok)
	require.Empty(t, first.Error)
	require.True(t, first.Value.Equal(Int(100)))

	second, _ := result.Call(1)
	require.Contains(t, second.Error, "division by zero")

	third, _ := result.Call(2)
	require.Equal(t, "name 'absent' is not defined", third.Error)

	fourth, _ := result.Call(3)
	require.Equal(t, "'int' object is not callable", fourth.Error)

	_, ok = result.Call(4)
	require.False(t, ok)
}

func TestStarlarkRunnerReportsRuntimeError(t *testing.T) {
	result := runStarlark(t, "x = 1 / 0\n", nil, Limits{Timeout: time.Second})
	require.True(t, result.Failed())
	require.False(t, result.TimedOut)
	require.Equal(t, "floating-point division by zero", result.Failure)
	require.Empty(t, result.Bindings)
}

func TestStarlarkRunnerReportsSyntaxError(t *testing.T) {
	result := runStarlark(t, "def broken(:\n    pass\n", nil, Limits{Timeout: time.Second})
	require.True(t, result.Failed())
	require.False(t, result.TimedOut)
	require.Contains(t, result.Failure, "submission.py:1")
}

func TestStarlarkRunnerHasNoFileAccess(t *testing.T) {
	result := runStarlark(t, "data = open('/etc/passwd')\n", nil, Limits{Timeout: time.Second})
	require.True(t, result.Failed())
	require.Contains(t, result.Failure, "undefined: open")
}

func TestStarlarkRunnerProvidesSum(t *testing.T) {
	result := runStarlark(t, "total = sum([1, 2, 3])\nmixed = sum([1, 2.5], 10)\n", nil, Limits{Timeout: time.Second})
	require.False(t, result.Failed())

	total, _ := result.Binding("total")
	require.Equal(t, Int(6), total)

	mixed, _ := result.Binding("mixed")
	require.True(t, mixed.Equal(Float(13.5)))
}

func TestStarlarkRunnerStopsInfiniteLoopAtDeadline(t *testing.T) {
	defer goleak.VerifyNone(t)

	start := time.Now()
	result := runStarlark(t, "while True:\n    pass\n", nil, Limits{Timeout: 100 * time.Millisecond})
	require.Less(t, time.Since(start), 5*time.Second)
	require.True(t, result.TimedOut)
	require.Equal(t, "execution exceeded the time limit of 100ms", result.Failure)
}

func TestStarlarkRunnerStopsAtStepBudget(t *testing.T) {
	src := "total = 0\nfor i in range(1000000):\n    total += i\n"
	result := runStarlark(t, src, nil, Limits{Timeout: 10 * time.Second, MaxSteps: 1000})
	require.True(t, result.TimedOut)
	require.Equal(t, "execution exceeded the budget of 1000 steps", result.Failure)
}

func TestStarlarkRunnerStopsRunawayProbe(t *testing.T) {
	src := "def spin(values):\n    while True:\n        pass\n"
	probes := []Probe{{Function: "spin", Args: []Value{Ints(1)}}}
	result := runStarlark(t, src, probes, Limits{Timeout: 100 * time.Millisecond})
	require.False(t, result.Failed())

	call, ok := result.Call(0)
	require.True(t, ok)
	require.Equal(t, "execution exceeded the time limit of 100ms", call.Error)
}

func TestStarlarkRunnerCapturesPrintOutput(t *testing.T) {
	result := runStarlark(t, "print('hello')\nprint(1, 2)\n", nil, Limits{Timeout: time.Second})
	require.Equal(t, "hello\n1 2\n", result.Output)

	clipped := runStarlark(t, "for i in range(100):\n    print('line')\n", nil, Limits{Timeout: time.Second, MaxOutputBytes: 10})
	require.Contains(t, clipped.Output, "[output truncated]")
}

func TestStarlarkRunnerReturnsErrorWhenCallerCancels(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	runner := NewStarlarkRunner(zerolog.Nop())
	_, err := runner.Run(ctx, Request{Source: "while True:\n    pass\n"})
	require.ErrorIs(t, err, context.Canceled)
}

func TestStarlarkRunnerIsolatesRuns(t *testing.T) {
	runner := NewStarlarkRunner(zerolog.Nop())

	first, err := runner.Run(context.Background(), Request{Source: "leaked = 1\n"})
	require.NoError(t, err)
	require.Contains(t, first.Bindings, "leaked")

	second, err := runner.Run(context.Background(), Request{Source: "seen = leaked\n"})
	require.NoError(t, err)
	require.True(t, second.Failed())
	require.Contains(t, second.Failure, "undefined: leaked")
}

func TestStarlarkRunnerTreatsStringsAsSequences(t *testing.T) {
	src := `text = "hello"
letters = [ch for ch in text]
vowels = 0
for ch in text:
    if ch in "aeiou":
        vowels += 1
backwards = ""
for ch in text:
    backwards = ch + backwards
joined = "".join(reversed(text))
pairs = len(list(enumerate("ab")))
biggest = max("abc")
larger = max("a", "b")
summary = f"{vowels} vowels, {1/3:.2f}"
`
	result := runStarlark(t, src, nil, Limits{Timeout: time.Second})
	require.False(t, result.Failed(), result.Failure)

	letters, _ := result.Binding("letters")
	require.Len(t, letters.Items, 5)
	require.Equal(t, String("h"), letters.Items[0])

	expect := map[string]Value{
		"vowels":    Int(2),
		"backwards": String("olleh"),
		"joined":    String("olleh"),
		"pairs":     Int(2),
		"biggest":   String("c"),
		"larger":    String("b"),
		"summary":   String("2 vowels, 0.33"),
	}
	for name, want := range expect {
		got, ok := result.Binding(name)
		require.True(t, ok, name)
		require.Equal(t, want, got, name)
	}
}

func TestStarlarkRunnerIteratesStringArguments(t *testing.T) {
	src := "def count_vowels(text):\n    return len([ch for ch in text if ch in 'aeiou'])\n"
	probes := []Probe{{Function: "count_vowels", Args: []Value{String("aeiou")}}}
	result := runStarlark(t, src, probes, Limits{Timeout: time.Second})

	call, ok := result.Call(0)
	require.True(t, ok)
	require.Empty(t, call.Error)
	require.Equal(t, Int(5), call.Value)
}

func TestStarlarkRunnerHintsAtStringJoin(t *testing.T) {
	result := runStarlark(t, "letters = ''.join('abc')\n", nil, Limits{Timeout: time.Second})
	require.True(t, result.Failed())
	require.Contains(t, result.Failure, "use list(text) to get its characters")
}
