package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/scorestream-api/internal/grader"
	"github.com/noah-isme/scorestream-api/pkg/sandbox"
)

func writeSubmission(t *testing.T, dir, name, code string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(code), 0o600))
	return path
}

func testGrader() *grader.Grader {
	return grader.New(grader.DefaultCatalogue(), sandbox.NewStarlarkRunner(zerolog.Nop()), sandbox.Limits{Timeout: time.Second, MaxSteps: 1_000_000}, zerolog.Nop())
}

func TestGradeFilesKeepsArgumentOrder(t *testing.T) {
	dir := t.TempDir()
	good := writeSubmission(t, dir, "good.py", "def reverse_string(text):\n    return text[::-1]\n\nreversed_str = reverse_string('python')\n")
	bad := writeSubmission(t, dir, "bad.py", "reversed_str = 'nohtyp'\n")
	loop := writeSubmission(t, dir, "loop.py", "while True:\n    pass\n")

	reports, err := gradeFiles(context.Background(), testGrader(), 5, []string{bad, good, loop}, 2)
	require.NoError(t, err)
	require.Len(t, reports, 3)

	require.Equal(t, bad, reports[0].Path)
	require.False(t, reports[0].Passed)
	require.Equal(t, good, reports[1].Path)
	require.True(t, reports[1].Passed)
	require.True(t, reports[2].TimedOut)
	for _, report := range reports {
		require.Equal(t, 5, report.ExerciseID)
	}
}

func TestGradeFilesResolvesUnknownExercise(t *testing.T) {
	path := writeSubmission(t, t.TempDir(), "sum.py", "numbers = [4, 5]\ntotal_sum = 0\nfor n in numbers:\n    total_sum += n\n")

	reports, err := gradeFiles(context.Background(), testGrader(), 77, []string{path}, 0)
	require.NoError(t, err)
	require.Equal(t, grader.DefaultExerciseID, reports[0].ExerciseID)
	require.True(t, reports[0].Passed)
}

func TestGradeFilesMissingFile(t *testing.T) {
	_, err := gradeFiles(context.Background(), testGrader(), 1, []string{filepath.Join(t.TempDir(), "missing.py")}, 1)
	require.Error(t, err)
	require.Contains(t, err.Error(), "missing.py")
}

func TestWriteReports(t *testing.T) {
	reports := []fileReport{
		{Path: "a.py", ExerciseID: 1, Passed: true, Feedback: []string{"Coach: Great job!"}, DurationMs: 3},
		{Path: "b.py", ExerciseID: 1, TimedOut: true, Feedback: []string{"Coach: too slow"}},
	}

	var text bytes.Buffer
	writeTextReports(&text, reports)
	require.Contains(t, text.String(), "PASS  a.py  (exercise 1, 3ms)")
	require.Contains(t, text.String(), "TIME  b.py")
	require.True(t, strings.HasSuffix(text.String(), "1 passed, 1 failed\n"))

	var lines bytes.Buffer
	require.NoError(t, writeJSONReports(&lines, reports))
	decoder := json.NewDecoder(&lines)
	var first fileReport
	require.NoError(t, decoder.Decode(&first))
	require.Equal(t, reports[0], first)
}

func TestListPrintsCatalogue(t *testing.T) {
	var out bytes.Buffer
	printExercises(&out, grader.DefaultCatalogue(), false)
	require.Contains(t, out.String(), "1. Sum a List")
	require.Contains(t, out.String(), "5. Reverse a String")
}
