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

package tree

import (
	"bytes"
	"context"
	"fmt"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"stagefs/internal/action"
	"stagefs/internal/common"
	"stagefs/internal/vfs"
)

// Merge replays the actions exported by other onto t, resolving overlaps
// with strategy. Merging a tree into itself does nothing.
//
// Replay is sequential and not atomic: when an action fails, the actions
// before it stay applied.
func (t *Tree) Merge(ctx context.Context, other action.Exporter, strategy MergeStrategy) error {
	if o, ok := other.(*Tree); ok && o == t {
		return nil
	}

	actions, err := other.ExportActions(ctx)
	if err != nil {
		return err
	}

	log.Debugf("[Tree] Merge: %d actions strategy=%s", len(actions), strategy)

	for _, a := range actions {
		a.Path = common.CleanPath(a.Path)
		if a.Kind == action.KindMove {
			a.To = common.CleanPath(a.To)
		}

		switch a.Kind {
		case action.KindDelete:
			err = t.mergeDelete(ctx, a, strategy)
		case action.KindMove:
			err = t.mergeMove(ctx, a)
		case action.KindOverwrite:
			err = t.mergeOverwrite(ctx, a, strategy)
		case action.KindCreate:
			err = t.mergeCreate(ctx, a, strategy)
		default:
			err = fmt.Errorf("unknown action kind %v", a.Kind)
		}
		if err != nil {
			log.Debugf("[Tree] Merge: stopped at %s: %v", a, err)
			return err
		}
	}
	return nil
}

func (t *Tree) mergeDelete(ctx context.Context, a action.Action, strategy MergeStrategy) error {
	if t.collector.WillDelete(a.Path) {
		return nil
	}

	st, err := t.statIfExists(ctx, a.Path)
	if err != nil {
		return err
	}
	if st == nil {
		if !strategy.Has(AllowDeleteConflict) {
			return common.MergeConflict(a.Path)
		}
		// Already gone here; the delete has nothing left to do.
		return nil
	}
	return t.Delete(ctx, a.Path)
}

func (t *Tree) mergeMove(ctx context.Context, a action.Action) error {
	if t.collector.WillDelete(a.Path) {
		return common.MergeConflict(a.Path)
	}
	if t.collector.WillMove(a.Path) {
		if t.collector.WillMoveTo(a.Path, a.To) {
			return nil
		}
		return common.MergeConflict(a.Path)
	}
	return t.Move(ctx, a.Path, a.To)
}

func (t *Tree) mergeOverwrite(ctx context.Context, a action.Action, strategy MergeStrategy) error {
	allowed := strategy.Has(AllowOverwriteConflict)

	if t.collector.WillDelete(a.Path) {
		if !allowed {
			return common.MergeConflict(a.Path)
		}
		// The local delete stands; there is no file left to overwrite.
		return nil
	}

	if t.collector.WillOverwrite(a.Path) {
		same, err := t.sameAs(ctx, a, a.Content == nil)
		if err != nil {
			return err
		}
		if same {
			return nil
		}
		if !allowed {
			return common.MergeConflict(a.Path)
		}
	}
	return t.Overwrite(ctx, a.Path, a.Content, a.Stat)
}

func (t *Tree) mergeCreate(ctx context.Context, a action.Action, strategy MergeStrategy) error {
	if !t.collector.WillCreate(a.Path) && !t.collector.WillOverwrite(a.Path) {
		return t.Create(ctx, a.Path, a.Content, a.Stat)
	}

	same, err := t.sameAs(ctx, a, false)
	if err != nil {
		return err
	}
	if same {
		return nil
	}
	if !strategy.Has(AllowCreationConflict) {
		return common.MergeConflict(a.Path)
	}
	return t.Overwrite(ctx, a.Path, a.Content, a.Stat)
}

// sameAs reports whether the file at a.Path already has the action's content
// and stat. A nil stat always matches; nil content matches when ignoreContent.
func (t *Tree) sameAs(ctx context.Context, a action.Action, ignoreContent bool) (bool, error) {
	s, err := t.Store(ctx)
	if err != nil {
		return false, err
	}

	var content []byte
	var st vfs.Stat
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		content, err = s.Read(gctx, a.Path)
		return err
	})
	g.Go(func() error {
		var err error
		st, err = s.ReadStat(gctx, a.Path)
		return err
	})
	if err := g.Wait(); err != nil {
		return false, err
	}

	contentSame := ignoreContent || bytes.Equal(content, a.Content)
	statSame := a.Stat == nil || st.Mode == a.Stat.Mode
	return contentSame && statSame, nil
}
