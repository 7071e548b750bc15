package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/noah-isme/scorestream-api/internal/grader"
)

var errSubmissionsFailed = errors.New("one or more submissions did not pass")

var (
	checkExercise int
	checkParallel int
	checkJSON     bool
	requirePass   bool
)

var checkCmd = &cobra.Command{
	Use:   "check [files...]",
	Short: "Grade submission files against an exercise",
	Long: `Grade one or more Python files against an exercise and print the coach
feedback for each. Files are graded concurrently; output keeps argument order.

Exit status is non-zero when a file cannot be graded, or when --require-pass is
set and any file fails.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runCheck,
}

func init() {
	checkCmd.Flags().IntVarP(&checkExercise, "exercise", "e", grader.DefaultExerciseID, "exercise id; unknown ids fall back to exercise 1")
	checkCmd.Flags().IntVarP(&checkParallel, "parallel", "p", 4, "maximum concurrent gradings")
	checkCmd.Flags().BoolVar(&checkJSON, "json", false, "print one JSON object per file")
	checkCmd.Flags().BoolVar(&requirePass, "require-pass", false, "exit non-zero unless every file passes")
}

type fileReport struct {
	Path       string   `json:"path"`
	ExerciseID int      `json:"exercise_id"`
	Passed     bool     `json:"passed"`
	TimedOut   bool     `json:"timed_out"`
	Feedback   []string `json:"feedback"`
	Output     string   `json:"output,omitempty"`
	DurationMs int64    `json:"duration_ms"`
}

func runCheck(cmd *cobra.Command, args []string) error {
	logger := newLogger()

	g, cleanup, err := newGrader(logger)
	if err != nil {
		return err
	}
	defer cleanup()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	reports, err := gradeFiles(ctx, g, checkExercise, args, checkParallel)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if checkJSON {
		err = writeJSONReports(out, reports)
	} else {
		writeTextReports(out, reports)
	}
	if err != nil {
		return err
	}

	if requirePass {
		for _, report := range reports {
			if !report.Passed {
				return errSubmissionsFailed
			}
		}
	}
	return nil
}

// gradeFiles grades every path concurrently; reports keep the order of paths.
func gradeFiles(ctx context.Context, g *grader.Grader, exerciseID int, paths []string, parallel int) ([]fileReport, error) {
	exercise := g.Catalogue().Resolve(exerciseID)
	reports := make([]fileReport, len(paths))

	group, groupCtx := errgroup.WithContext(ctx)
	if parallel > 0 {
		group.SetLimit(parallel)
	}

	for i, path := range paths {
		i, path := i, path
		group.Go(func() error {
			code, err := os.ReadFile(path)
			if err != nil {
				return fmt.Errorf("read %s: %w", path, err)
			}

			result, err := g.Grade(groupCtx, exercise.ID, string(code))
			if err != nil {
				return fmt.Errorf("grade %s: %w", path, err)
			}

			reports[i] = fileReport{
				Path:       path,
				ExerciseID: result.ExerciseID,
				Passed:     result.Passed,
				TimedOut:   result.TimedOut,
				Feedback:   result.Feedback,
				Output:     result.Output,
				DurationMs: result.Duration.Milliseconds(),
			}
			return nil
		})
	}

	if err := group.Wait(); err != nil {
		return nil, err
	}
	return reports, nil
}

func writeTextReports(w io.Writer, reports []fileReport) {
	passed := 0
	for _, report := range reports {
		status := "FAIL"
		switch {
		case report.Passed:
			status = "PASS"
			passed++
		case report.TimedOut:
			status = "TIME"
		}

		fmt.Fprintf(w, "%s  %s  (exercise %d, %dms)\n", status, report.Path, report.ExerciseID, report.DurationMs)
		for _, line := range report.Feedback {
			fmt.Fprintf(w, "      %s\n", line)
		}
	}
	fmt.Fprintf(w, "\n%d passed, %d failed\n", passed, len(reports)-passed)
}

func writeJSONReports(w io.Writer, reports []fileReport) error {
	encoder := json.NewEncoder(w)
	for _, report := range reports {
		if err := encoder.Encode(report); err != nil {
			return err
		}
	}
	return nil
}
