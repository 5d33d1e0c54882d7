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

// Package action records staged file-tree mutations and compacts them into
// the smallest equivalent list of actions.
package action

import (
	"context"
	"fmt"

	"stagefs/internal/vfs"
)

// Kind identifies the mutation an Action performs.
type Kind int

const (
	KindOverwrite Kind = iota
	KindCreate
	KindDelete
	KindMove
)

var kindNames = map[Kind]string{
	KindOverwrite: "overwrite",
	KindCreate:    "create",
	KindDelete:    "delete",
	KindMove:      "move",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// ParseKind maps a kind name back to its Kind.
func ParseKind(name string) (Kind, error) {
	for k, n := range kindNames {
		if n == name {
			return k, nil
		}
	}
	return 0, fmt.Errorf("unknown action kind %q", name)
}

// Action is one materialized mutation.
//
// Path is the source for moves. To is only set for moves. Content is nil for
// deletes, moves and metadata-only overwrites. Stat is nil when the action
// leaves metadata alone.
type Action struct {
	Kind    Kind
	Path    string
	To      string
	Content []byte
	Stat    *vfs.StatOptions
}

func Overwrite(path string, content []byte, stat *vfs.StatOptions) Action {
	return Action{Kind: KindOverwrite, Path: path, Content: content, Stat: stat}
}

func Create(path string, content []byte, stat *vfs.StatOptions) Action {
	if content == nil {
		content = []byte{}
	}
	return Action{Kind: KindCreate, Path: path, Content: content, Stat: stat}
}

func Delete(path string) Action {
	return Action{Kind: KindDelete, Path: path}
}

func Move(from, to string) Action {
	return Action{Kind: KindMove, Path: from, To: to}
}

func (a Action) String() string {
	switch a.Kind {
	case KindMove:
		return fmt.Sprintf("move %s -> %s", a.Path, a.To)
	case KindDelete:
		return fmt.Sprintf("delete %s", a.Path)
	default:
		s := fmt.Sprintf("%s %s (%d bytes", a.Kind, a.Path, len(a.Content))
		if a.Stat != nil {
			s += fmt.Sprintf(", mode %04o", a.Stat.Mode)
		}
		return s + ")"
	}
}

// Exporter is anything that can produce a materialized action list.
type Exporter interface {
	ExportActions(ctx context.Context) ([]Action, error)
}

// List is a fixed action list, for example one loaded from the journal.
type List []Action

// ExportActions returns the list unchanged.
func (l List) ExportActions(ctx context.Context) ([]Action, error) {
	return l, nil
}

// Apply replays the actions directly onto a store, in order.
func (l List) Apply(ctx context.Context, s vfs.Store) error {
	for _, a := range l {
		var err error
		switch a.Kind {
		case KindDelete:
			err = s.Delete(ctx, a.Path)
		case KindMove:
			err = s.Move(ctx, a.Path, a.To)
		case KindCreate:
			err = s.Create(ctx, a.Path, a.Content, a.Stat)
		case KindOverwrite:
			err = s.Overwrite(ctx, a.Path, a.Content, a.Stat)
		default:
			err = fmt.Errorf("unknown action kind %v", a.Kind)
		}
		if err != nil {
			return fmt.Errorf("apply %s: %w", a, err)
		}
	}
	return nil
}
