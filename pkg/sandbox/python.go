package sandbox

import (
	"bytes"
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
	"github.com/santhosh-tekuri/jsonschema/v5"

	dockerexec "github.com/noah-isme/scorestream-api/pkg/docker"
)

//go:embed assets/harness.py
var harnessSource []byte

//go:embed assets/report.schema.json
var reportSchemaSource string

const (
	harnessFileName = "harness.py"
	probesFileName  = "probes.json"
	reportFileName  = "report.json"

	// DefaultPythonImage is used when PythonConfig.Image is empty.
	DefaultPythonImage = "python:3.12-alpine"
)

// ErrInvalidReport indicates the harness produced output that does not match the report schema.
var ErrInvalidReport = errors.New("invalid harness report")

// Failure messages for submissions that keep the harness from reporting.
const (
	FailureExitedEarly    = "the program exited before it could be graded"
	FailureReportTampered = "the program interfered with the grading report"
)

// PythonConfig configures the container-backed CPython runner.
type PythonConfig struct {
	Image         string
	WorkspaceRoot string
	User          string
}

// PythonRunner executes submissions with CPython inside a network-less container.
// A harness script runs the submission in an empty dict scope, performs the
// probes and writes a JSON report into the mounted workspace.
type PythonRunner struct {
	executor dockerexec.Executor
	cfg      PythonConfig
	schema   *jsonschema.Schema
	logger   zerolog.Logger
}

type harnessReport struct {
	Error    string           `json:"error"`
	Bindings map[string]Value `json:"bindings"`
	Calls    []CallResult     `json:"calls"`
}

// NewPythonRunner builds a runner on top of the given container executor.
func NewPythonRunner(executor dockerexec.Executor, cfg PythonConfig, logger zerolog.Logger) (*PythonRunner, error) {
	if executor == nil {
		return nil, errors.New("executor is required")
	}
	if cfg.Image == "" {
		cfg.Image = DefaultPythonImage
	}
	if cfg.WorkspaceRoot == "" {
		cfg.WorkspaceRoot = os.TempDir()
	}
	if cfg.User == "" && os.Getuid() >= 0 {
		cfg.User = fmt.Sprintf("%d:%d", os.Getuid(), os.Getgid())
	}

	schema, err := jsonschema.CompileString("report.schema.json", reportSchemaSource)
	if err != nil {
		return nil, fmt.Errorf("compile report schema: %w", err)
	}

	return &PythonRunner{
		executor: executor,
		cfg:      cfg,
		schema:   schema,
		logger:   logger.With().Str("component", "python_runner").Logger(),
	}, nil
}

// Run executes req.Source in a fresh container.
func (r *PythonRunner) Run(ctx context.Context, req Request) (Result, error) {
	workspace, err := os.MkdirTemp(r.cfg.WorkspaceRoot, "attempt-")
	if err != nil {
		return Result{}, fmt.Errorf("create workspace: %w", err)
	}
	defer os.RemoveAll(workspace)

	if err := r.prepareWorkspace(workspace, req); err != nil {
		return Result{}, err
	}

	execReq := dockerexec.ExecutionRequest{
		Image:           r.cfg.Image,
		Cmd:             []string{"python", "-I", harnessFileName},
		Env:             []string{"PYTHONDONTWRITEBYTECODE=1", "PYTHONIOENCODING=utf-8"},
		Timeout:         req.Limits.Timeout,
		Workspace:       workspace,
		User:            r.cfg.User,
		MemoryLimitMB:   req.Limits.MemoryLimitMB,
		CPUShares:       req.Limits.CPUShares,
		NetworkDisabled: true,
		ReadOnlyFS:      true,
	}

	res, execErr := r.executor.Run(ctx, execReq)
	output := clipOutput(res.Stdout, req.Limits.MaxOutputBytes)

	if res.TimedOut {
		return Result{
			Failure:  timeoutMessage(req.Limits.Timeout),
			TimedOut: true,
			Output:   output,
			Duration: res.Duration,
		}, nil
	}
	if execErr != nil {
		return Result{}, fmt.Errorf("run python harness: %w", execErr)
	}

	report, err := r.readReport(workspace)
	if err != nil {
		// Submission code shares the interpreter with the harness, so a missing
		// or unreadable report is the submission's doing: an OOM kill, an early
		// exit, or code that wrote over report.json.
		var failure string
		switch {
		case errors.Is(err, os.ErrNotExist) && res.ExitCode != 0:
			failure = crashMessage(res.Stderr, res.ExitCode)
		case errors.Is(err, os.ErrNotExist):
			failure = FailureExitedEarly
		case errors.Is(err, ErrInvalidReport):
			failure = FailureReportTampered
		default:
			return Result{}, err
		}
		r.logger.Debug().Err(err).Int("exit_code", res.ExitCode).Msg("harness report unusable")
		return Result{Failure: failure, Output: output, Duration: res.Duration}, nil
	}

	if report.Error != "" {
		return Result{Failure: report.Error, Output: output, Duration: res.Duration}, nil
	}

	bindings := report.Bindings
	if bindings == nil {
		bindings = map[string]Value{}
	}

	return Result{
		Bindings: bindings,
		Calls:    report.Calls,
		Output:   output,
		Duration: res.Duration,
	}, nil
}

func (r *PythonRunner) prepareWorkspace(workspace string, req Request) error {
	probes := req.Probes
	if probes == nil {
		probes = []Probe{}
	}
	probePayload, err := json.Marshal(probes)
	if err != nil {
		return fmt.Errorf("encode probes: %w", err)
	}

	files := map[string][]byte{
		submissionFileName: []byte(req.Source),
		harnessFileName:    harnessSource,
		probesFileName:     probePayload,
	}
	for name, data := range files {
		if err := os.WriteFile(filepath.Join(workspace, name), data, 0o644); err != nil {
			return fmt.Errorf("write %s: %w", name, err)
		}
	}
	return nil
}

func (r *PythonRunner) readReport(workspace string) (harnessReport, error) {
	raw, err := os.ReadFile(filepath.Join(workspace, reportFileName))
	if err != nil {
		return harnessReport{}, fmt.Errorf("read report: %w", err)
	}

	decoder := json.NewDecoder(bytes.NewReader(raw))
	decoder.UseNumber()
	var document interface{}
	if err := decoder.Decode(&document); err != nil {
		return harnessReport{}, fmt.Errorf("%w: %v", ErrInvalidReport, err)
	}
	if err := r.schema.Validate(document); err != nil {
		r.logger.Warn().Err(err).Msg("harness report failed schema validation")
		return harnessReport{}, fmt.Errorf("%w: %v", ErrInvalidReport, err)
	}

	var report harnessReport
	if err := json.Unmarshal(raw, &report); err != nil {
		return harnessReport{}, fmt.Errorf("%w: %v", ErrInvalidReport, err)
	}
	return report, nil
}

func crashMessage(stderr string, exitCode int) string {
	lines := strings.Split(strings.TrimSpace(stderr), "\n")
	if last := strings.TrimSpace(lines[len(lines)-1]); last != "" {
		return last
	}
	return fmt.Sprintf("process exited with code %d", exitCode)
}
