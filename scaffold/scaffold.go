// Package scaffold interprets scaffolding commands found in prompt text and
// generates project skeletons on disk.
//
// The interpreter (Parse) is a pure, heuristic pattern matcher: it decides
// whether text names a scaffold intent, extracts an optional project name,
// and collects feature tags. The engine (Engine.Run) performs the actual
// filesystem side effects, streaming one progress message per logical step
// and checking for cooperative cancellation between steps.
package scaffold

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/lnittman/turbokit-acp/config"
	"github.com/lnittman/turbokit-acp/errors"
)

// placeholderDirs are created inside every new project skeleton.
var placeholderDirs = []string{"apps", "packages", "docs"}

// ProgressFunc receives one human-readable line per scaffolding step, before
// the step's filesystem writes happen.
type ProgressFunc func(text string)

// Engine creates project skeletons relative to a session's working
// directory. It treats the filesystem as an external resource with no
// locking; concurrent scaffolds targeting the same path are a known race.
type Engine struct {
	cfg *config.Config
}

func NewEngine(cfg *config.Config) *Engine {
	return &Engine{cfg: cfg}
}

// Run creates the project skeleton for intent under cwd: the project
// directory, a root package.json manifest, and the placeholder
// subdirectories. Progress is reported step by step through progress, and
// cancelled is consulted between steps. On failure the partially created
// tree is left in place; the caller is expected to turn the error into a
// readable message.
func (e *Engine) Run(ctx context.Context, cwd string, intent Intent, progress ProgressFunc, cancelled func() bool) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	name := intent.Name
	if name == "" {
		name = e.cfg.Scaffold.DefaultName
	}
	features := intent.Features
	if len(features) == 0 {
		features = e.cfg.Scaffold.DefaultFeatures
	}

	target, err := e.resolveTarget(cwd, name)
	if err != nil {
		return "", err
	}

	progress(fmt.Sprintf("Creating project structure for %s...", name))
	if err := os.Mkdir(target, 0755); err != nil {
		return "", errors.Wrapf(err, "failed to create project directory '%s'", name)
	}
	if cancelled() {
		return cancelledMessage(name), nil
	}

	progress("Setting up packages...")
	for _, dir := range placeholderDirs {
		if err := os.Mkdir(filepath.Join(target, dir), 0755); err != nil {
			return "", errors.Wrapf(err, "failed to create '%s/%s'", name, dir)
		}
	}
	if cancelled() {
		return cancelledMessage(name), nil
	}

	progress("Writing project manifest...")
	if err := writeManifest(target, name); err != nil {
		return "", err
	}

	return fmt.Sprintf("Created project %s with features: %s. The skeleton has %s directories and a root package.json manifest.",
		name, strings.Join(features, ", "), strings.Join(placeholderDirs, ", ")), nil
}

func cancelledMessage(name string) string {
	return fmt.Sprintf("Stopped scaffolding %s early: cancellation was requested. Partially created files were left in place.", name)
}

// resolveTarget joins name onto cwd and rejects targets that escape the
// working directory or match a restricted glob.
func (e *Engine) resolveTarget(cwd, name string) (string, error) {
	root, err := filepath.Abs(cwd)
	if err != nil {
		return "", errors.Wrapf(err, "invalid working directory '%s'", cwd)
	}
	target := filepath.Join(root, name)
	if target != root && !strings.HasPrefix(target, root+string(filepath.Separator)) {
		return "", errors.New("path traversal attempt: '%s' escapes the working directory", name)
	}

	rel, err := filepath.Rel(root, target)
	if err != nil {
		return "", errors.Wrapf(err, "could not resolve '%s'", name)
	}
	for _, patterns := range [][]string{e.cfg.FilesystemAccess.Hidden, e.cfg.FilesystemAccess.ReadOnly} {
		restricted, err := isPathRestricted(rel, patterns)
		if err != nil {
			return "", err
		}
		if restricted {
			return "", errors.New("access denied: path '%s' is restricted", rel)
		}
	}
	return target, nil
}

type manifest struct {
	Name       string   `json:"name"`
	Version    string   `json:"version"`
	Private    bool     `json:"private"`
	Workspaces []string `json:"workspaces"`
}

func writeManifest(target, name string) error {
	m := manifest{
		Name:       name,
		Version:    "0.1.0",
		Private:    true,
		Workspaces: []string{"apps/*", "packages/*"},
	}
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return errors.Wrapf(err, "failed to serialize manifest")
	}
	path := filepath.Join(target, "package.json")
	if err := os.WriteFile(path, append(data, '\n'), 0644); err != nil {
		return errors.Wrapf(err, "failed to write manifest '%s'", path)
	}
	return nil
}

// isPathRestricted checks if a path matches any of the glob patterns.
func isPathRestricted(path string, patterns []string) (bool, error) {
	for _, pattern := range patterns {
		match, err := doublestar.PathMatch(pattern, path)
		if err != nil {
			return false, errors.Wrapf(err, "invalid glob pattern '%s'", pattern)
		}
		if match {
			return true, nil
		}
	}
	return false, nil
}
