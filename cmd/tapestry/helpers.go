// Shared helpers for tapestry CLI commands.
package main

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/loomworks/tapestry/internal/sqlite"
	"github.com/loomworks/tapestry/pkg/engine"
	"github.com/loomworks/tapestry/pkg/types"
)

// openStore opens the backing store from the resolved configuration. The
// caller must defer store.Close().
func openStore() (*sqlite.Store, error) {
	cfg := types.Config{
		DataDir:       cfgDataDir,
		Actor:         cfgActor,
		SandboxPrefix: cfgSandbox,
	}

	level := slog.LevelWarn
	if flagVerbose {
		level = slog.LevelInfo
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	store, err := sqlite.Open(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	return store, nil
}

// openEngine opens the store and wires an engine over it. The caller must
// defer store.Close().
func openEngine() (*engine.Engine, *sqlite.Store, error) {
	store, err := openStore()
	if err != nil {
		return nil, nil, err
	}

	level := slog.LevelWarn
	if flagVerbose {
		level = slog.LevelInfo
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	return engine.New(store, logger), store, nil
}

// printJSON writes v as indented JSON to stdout.
func printJSON(v any) {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		fmt.Fprintln(os.Stderr, "marshal JSON:", err)
		os.Exit(exitSysError)
	}
	fmt.Println(string(out))
}

// userError prints a message and exits with the user-error code.
func userError(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(exitUserError)
}

// sysError prints a message and exits with the system-error code.
func sysError(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(exitSysError)
}

// confirmForce gates destructive commands behind --force.
func confirmForce(force bool, what string) {
	if !force {
		userError("%s is destructive; re-run with --force to confirm", what)
	}
}
