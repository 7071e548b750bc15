package sandbox

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	dockerexec "github.com/noah-isme/scorestream-api/pkg/docker"
)

const enginePingTimeout = 3 * time.Second

// ResolveEngine normalises an engine name. EngineAuto becomes EngineDocker
// when ping succeeds, so submissions run on CPython wherever a daemon is
// reachable, and EngineStarlark otherwise. A nil ping means no daemon.
func ResolveEngine(ctx context.Context, engine string, ping func(context.Context) error) string {
	engine = strings.ToLower(strings.TrimSpace(engine))
	if engine != EngineAuto {
		return engine
	}
	if ping == nil {
		return EngineStarlark
	}
	ctx, cancel := context.WithTimeout(ctx, enginePingTimeout)
	defer cancel()
	if err := ping(ctx); err != nil {
		return EngineStarlark
	}
	return EngineDocker
}

// NewRunner resolves an engine name to a Runner. The executor is only
// consulted for the docker engine.
func NewRunner(engine string, executor dockerexec.Executor, cfg PythonConfig, logger zerolog.Logger) (Runner, error) {
	switch strings.ToLower(strings.TrimSpace(engine)) {
	case "", EngineStarlark:
		return NewStarlarkRunner(logger), nil
	case EngineDocker:
		runner, err := NewPythonRunner(executor, cfg, logger)
		if err != nil {
			return nil, err
		}
		return runner, nil
	default:
		return nil, fmt.Errorf("unknown sandbox engine %q", engine)
	}
}
