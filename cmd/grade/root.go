package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/noah-isme/scorestream-api/internal/grader"
	dockerexec "github.com/noah-isme/scorestream-api/pkg/docker"
	"github.com/noah-isme/scorestream-api/pkg/sandbox"
)

var (
	engine      string
	pythonImage string
	timeout     time.Duration
	maxSteps    uint64
	verbose     bool
)

var rootCmd = &cobra.Command{
	Use:   "grade",
	Short: "Grade challenge submissions offline",
	Long: `grade runs the challenge grader against local files, using the same
exercises, rubrics and sandbox as the API.

Teachers use it to check reference solutions and to batch-grade a folder of
exported submissions.`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&engine, "engine", "starlark", "sandbox engine: starlark, docker or auto")
	rootCmd.PersistentFlags().StringVar(&pythonImage, "image", sandbox.DefaultPythonImage, "python image for the docker engine")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 2*time.Second, "wall-clock limit per submission")
	rootCmd.PersistentFlags().Uint64Var(&maxSteps, "max-steps", 10_000_000, "starlark execution step budget")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log sandbox activity to stderr")

	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(checkCmd)
}

func newLogger() zerolog.Logger {
	level := zerolog.WarnLevel
	if verbose {
		level = zerolog.DebugLevel
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}).
		Level(level).
		With().Timestamp().Logger()
}

// newGrader builds a grader for the selected engine. The returned cleanup
// releases the docker client, if any.
func newGrader(logger zerolog.Logger) (*grader.Grader, func(), error) {
	cleanup := func() {}

	selected := strings.ToLower(engine)
	var executor dockerexec.Executor
	if selected == sandbox.EngineDocker || selected == sandbox.EngineAuto {
		dockerExecutor, err := dockerexec.NewDockerExecutor(dockerexec.Config{Timeout: timeout, PullImages: true, Logger: logger})
		switch {
		case err == nil:
			selected = sandbox.ResolveEngine(context.Background(), selected, dockerExecutor.Ping)
		case selected == sandbox.EngineDocker:
			return nil, cleanup, fmt.Errorf("create docker executor: %w", err)
		default:
			selected = sandbox.EngineStarlark
		}
		if selected == sandbox.EngineDocker {
			executor = dockerExecutor
			cleanup = func() { _ = dockerExecutor.Close() }
		} else if dockerExecutor != nil {
			_ = dockerExecutor.Close()
		}
	}
	logger.Debug().Str("engine", selected).Msg("sandbox selected")

	runner, err := sandbox.NewRunner(selected, executor, sandbox.PythonConfig{Image: pythonImage}, logger)
	if err != nil {
		cleanup()
		return nil, func() {}, err
	}

	limits := sandbox.Limits{Timeout: timeout, MaxSteps: maxSteps}
	return grader.New(grader.DefaultCatalogue(), runner, limits, logger), cleanup, nil
}
