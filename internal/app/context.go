package app

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"sitepulse/internal/config"
	"sitepulse/internal/repo"
)

// ResolveConfig returns the active workspace config, seeding the database when
// it has none. A sitepulse.yml in the workspace is preferred as the seed,
// then the built-in defaults.
func ResolveConfig(ctx context.Context, workspace string, r repo.Repo) (*config.Config, error) {
	cfg, err := r.GetWorkspaceConfig(ctx)
	if err == nil {
		return cfg, nil
	}
	if !errors.Is(err, repo.ErrNotFound) {
		return nil, err
	}
	seed, err := config.LoadOptional(workspace)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", config.Path(workspace), err)
	}
	if seed == nil {
		seed = config.Default(workspaceID(workspace))
	}
	if err := r.UpsertWorkspaceConfig(ctx, seed); err != nil {
		return nil, fmt.Errorf("seed workspace config: %w", err)
	}
	return seed, nil
}

// ImportConfig validates the YAML file at path and makes it the active config.
func ImportConfig(ctx context.Context, path string, r repo.Repo) (*config.Config, error) {
	cfg, err := config.FromFile(path)
	if err != nil {
		return nil, err
	}
	if err := r.UpsertWorkspaceConfig(ctx, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func workspaceID(workspace string) string {
	abs, err := filepath.Abs(workspace)
	if err != nil || filepath.Base(abs) == string(filepath.Separator) {
		return "default"
	}
	return filepath.Base(abs)
}
