// Agentcore is the agent execution core's only user-facing control surface.
//
// Three subcommands:
//
//	agentcore run <identity>            — launch a single orchestrator in the foreground
//	agentcore supervisor <identity>...   — launch the supervisor with the given identities
//	agentcore version                    — print build version information and exit
//
// All configuration beyond the subcommand and its identity arguments comes
// from environment variables, matching the teacher's cmd/gitai and
// cmd/ruriko binaries (env/flag dispatch, no cobra/viper).
//
// Shared environment variables:
//
//	AGENTCORE_ROOT         - filesystem root for config/data/logs (default: /var/lib/agentcore)
//	AGENTCORE_SOCKET       - IPC socket path (default: {tmp}/agentcore-supervisor.sock)
//	AGENTCORE_TOKEN_FILE   - IPC auth token file (default: {tmp}/agentcore-supervisor.token)
//	LOG_LEVEL              - "debug", "info", "warn", "error" (default: "info")
//	LOG_FORMAT             - "text" or "json" (default: "text")
//	LLM_BACKEND_NAME       - name of the single configured LLM backend (default: "default")
//	LLM_BACKEND_KIND       - "local", "openai", or "hosted" (default: "openai")
//	LLM_BASE_URL           - backend base URL (required)
//	LLM_API_KEY            - backend API key
//	LLM_MODEL              - default model name
//	LLM_TIMEOUT            - backend call timeout (default: 60s)
//
// Supervisor-only:
//
//	AGENTCORE_MAX_RESTARTS - restart cap before an identity is left CRASHED (default: 5)
//	AGENTCORE_RUNTIME      - "process" (default) or "docker"
//	AGENTCORE_DOCKER_NETWORK - bridge network name for the docker runtime (default: "agentcore")
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/silverreef/agentcore/common/environment"
	"github.com/silverreef/agentcore/common/version"
	"github.com/silverreef/agentcore/internal/core/coreerrors"
	"github.com/silverreef/agentcore/internal/core/llmbackend"
	"github.com/silverreef/agentcore/internal/core/orchestrator"
	"github.com/silverreef/agentcore/internal/core/runtime"
	"github.com/silverreef/agentcore/internal/core/supervisor"
)

// frameworkName is the {framework_name} token in spec.md §6's filesystem
// layout (config/{framework_name}.yaml, {tmp}/{framework}-supervisor.sock).
const frameworkName = "agentcore"

// Exit codes per spec: 0 normal, 1 configuration error, 2 runtime crash.
const (
	exitOK           = 0
	exitConfigError  = 1
	exitRuntimeCrash = 2
)

func main() {
	if len(os.Args) >= 2 && os.Args[1] == "version" {
		fmt.Println(version.Info())
		os.Exit(exitOK)
	}

	configureLogging()
	slog.Info("agentcore starting", "version", version.Version, "commit", version.GitCommit)

	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, "usage: agentcore <run|supervisor|version> <identity>...")
		os.Exit(exitConfigError)
	}

	switch os.Args[1] {
	case "run":
		if len(os.Args) != 3 {
			fmt.Fprintln(os.Stderr, "usage: agentcore run <identity>")
			os.Exit(exitConfigError)
		}
		os.Exit(runIdentity(os.Args[2]))
	case "supervisor":
		identities := os.Args[2:]
		if len(identities) == 0 {
			fmt.Fprintln(os.Stderr, "usage: agentcore supervisor <identity>...")
			os.Exit(exitConfigError)
		}
		os.Exit(runSupervisor(identities))
	default:
		fmt.Fprintf(os.Stderr, "unknown subcommand %q; expected run, supervisor, or version\n", os.Args[1])
		os.Exit(exitConfigError)
	}
}

func configureLogging() {
	level := slog.LevelInfo
	switch environment.StringOr("LOG_LEVEL", "info") {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	var handler slog.Handler
	opts := &slog.HandlerOptions{Level: level}
	if environment.StringOr("LOG_FORMAT", "text") == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}
	slog.SetDefault(slog.New(handler))
}

func rootDir() string {
	return environment.StringOr("AGENTCORE_ROOT", "/var/lib/agentcore")
}

func backendsFromEnv() ([]llmbackend.Config, error) {
	baseURL, err := environment.RequiredString("LLM_BASE_URL")
	if err != nil {
		return nil, err
	}

	kind := llmbackend.Kind(environment.StringOr("LLM_BACKEND_KIND", "openai"))
	switch kind {
	case llmbackend.KindLocal, llmbackend.KindOpenAI, llmbackend.KindHosted:
	default:
		return nil, fmt.Errorf("agentcore: unknown LLM_BACKEND_KIND %q", kind)
	}

	return []llmbackend.Config{{
		Name:    environment.StringOr("LLM_BACKEND_NAME", "default"),
		Kind:    kind,
		BaseURL: baseURL,
		APIKey:  os.Getenv("LLM_API_KEY"),
		Model:   environment.StringOr("LLM_MODEL", ""),
		Timeout: environment.DurationOr("LLM_TIMEOUT", 60*time.Second),
	}}, nil
}

func runIdentity(identity string) int {
	backends, err := backendsFromEnv()
	if err != nil {
		slog.Error("agentcore: configuration error", "error", err)
		return exitConfigError
	}

	o := orchestrator.New(orchestrator.Config{
		Layout:   orchestrator.Layout{Root: rootDir()},
		Identity: identity,
		Backends: backends,
		Logger:   slog.Default(),
	})

	if err := o.Run(context.Background()); err != nil {
		slog.Error("agentcore: orchestrator exited with error", "identity", identity, "error", err)
		return exitCodeFor(err)
	}
	return exitOK
}

// exitCodeFor maps an error kind to spec's exit codes: configuration and
// secrets errors exit 1, anything else surfaced at this boundary is a
// runtime crash and exits 2.
func exitCodeFor(err error) int {
	if errors.Is(err, coreerrors.ErrConfig) || errors.Is(err, coreerrors.ErrSecrets) {
		return exitConfigError
	}
	return exitRuntimeCrash
}

func runSupervisor(identities []string) int {
	root := rootDir()
	socketPath := environment.StringOr("AGENTCORE_SOCKET", filepath.Join(os.TempDir(), frameworkName+"-supervisor.sock"))
	tokenPath := environment.StringOr("AGENTCORE_TOKEN_FILE", filepath.Join(os.TempDir(), frameworkName+"-supervisor.token"))

	var rt runtime.Runtime
	if environment.StringOr("AGENTCORE_RUNTIME", "process") == "docker" {
		dockerRt, err := runtime.NewDockerRuntime(environment.StringOr("AGENTCORE_DOCKER_NETWORK", ""), socketPath)
		if err != nil {
			slog.Error("agentcore: failed to initialize docker runtime", "error", err)
			return exitConfigError
		}
		rt = dockerRt
	}

	if err := os.MkdirAll(filepath.Dir(tokenPath), 0o700); err != nil {
		slog.Error("agentcore: failed to create token directory", "error", err)
		return exitConfigError
	}

	s, err := supervisor.New(supervisor.Config{
		Identities:  identities,
		Root:        root,
		Runtime:     rt,
		SocketPath:  socketPath,
		TokenPath:   tokenPath,
		MaxRestarts: environment.IntOr("AGENTCORE_MAX_RESTARTS", 5),
		Logger:      slog.Default(),
	})
	if err != nil {
		slog.Error("agentcore: failed to initialize supervisor", "error", err)
		return exitConfigError
	}

	if err := s.Run(context.Background()); err != nil {
		slog.Error("agentcore: supervisor exited with error", "error", err)
		return exitCodeFor(err)
	}
	return exitOK
}
