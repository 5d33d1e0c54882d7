// Copyright 2024 LatentFS Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package commands

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"stagefs/internal/action"
	"stagefs/internal/cache"
	"stagefs/internal/config"
	"stagefs/internal/storage"
	"stagefs/internal/tree"
	"stagefs/internal/vfs"
)

// project is a directory opened for staging.
type project struct {
	root string
	cfg  *config.ProjectConfig

	// disk writes straight to root; base is what trees read through.
	disk vfs.Store
	base vfs.Store
}

// openProject resolves root, loads its config and prepares the stores.
func openProject(cmd *cobra.Command, root string) (*project, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve path: %w", err)
	}
	info, err := os.Stat(absRoot)
	if err != nil {
		return nil, fmt.Errorf("path not found: %s", absRoot)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("not a directory: %s", absRoot)
	}

	cfg, err := config.LoadProjectConfig(absRoot)
	if err != nil {
		return nil, fmt.Errorf("failed to load project config: %w", err)
	}
	if logLevel == "" && cfg.LogLevel() != "none" {
		if err := setupLogging(cfg.LogLevel(), cmd.ErrOrStderr()); err != nil {
			return nil, err
		}
	}

	p := &project{root: absRoot, cfg: cfg, disk: vfs.NewOSStore(absRoot)}
	p.base = p.disk
	if ttl := cfg.StatCacheDuration(); ttl > 0 && !cache.Disabled {
		p.base = cache.NewCachedStore(p.disk, ttl)
	}
	log.Debugf("[CLI] project root=%s strategy=%s", absRoot, cfg.Strategy)
	return p, nil
}

// newTree returns an empty tree staging over the project. Each tree and
// branch gets its own overlay, so nothing reaches disk until commit.
func (p *project) newTree() *tree.Tree {
	factory := func(ctx context.Context) (vfs.Store, error) {
		return vfs.NewOverlay(p.base), nil
	}
	return tree.New(factory, tree.WithFilter(config.BuildFilterFromConfig(p.root, p.cfg)))
}

// strategy returns the --strategy flag value, or the project default.
func (p *project) strategy(flag string) (tree.MergeStrategy, error) {
	if flag != "" {
		return tree.ParseMergeStrategy(flag)
	}
	return p.cfg.MergeStrategy()
}

// commit writes actions to disk in order.
func (p *project) commit(ctx context.Context, actions []action.Action) error {
	if err := action.List(actions).Apply(ctx, p.disk); err != nil {
		return fmt.Errorf("commit to %s: %w", p.root, err)
	}
	if inv, ok := p.base.(cache.Invalidator); ok {
		inv.Invalidate()
	}
	return nil
}

// openJournal opens the changeset journal in the config directory.
func openJournal() (*storage.Journal, error) {
	j, err := storage.Open(config.JournalPath())
	if err != nil {
		return nil, fmt.Errorf("failed to open journal: %w", err)
	}
	return j, nil
}

// printActions writes one action per line.
func printActions(w io.Writer, actions []action.Action) {
	if len(actions) == 0 {
		fmt.Fprintln(w, "No changes")
		return
	}
	for _, a := range actions {
		fmt.Fprintf(w, "  %s\n", a)
	}
}
