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

// Package plan reads YAML files describing file operations to stage.
//
//	name: rename config
//	ops:
//	  - op: move
//	    path: /config.ini
//	    to: /config/app.ini
//	  - op: create
//	    path: /config/README
//	    content: "moved by plan\n"
//	    mode: "0644"
package plan

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"

	log "github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"stagefs/internal/action"
	"stagefs/internal/common"
	"stagefs/internal/tree"
	"stagefs/internal/vfs"
)

var ErrInvalidPlan = errors.New("invalid plan")

// Mode is a permission mode written in octal, quoted or not.
type Mode uint32

// UnmarshalYAML parses the node text as octal so that 644 and "0644" agree.
func (m *Mode) UnmarshalYAML(node *yaml.Node) error {
	v, err := strconv.ParseUint(node.Value, 8, 32)
	if err != nil {
		return fmt.Errorf("line %d: mode %q is not octal", node.Line, node.Value)
	}
	*m = Mode(v)
	return nil
}

// MarshalYAML writes the mode as a quoted octal string.
func (m Mode) MarshalYAML() (interface{}, error) {
	return fmt.Sprintf("%04o", uint32(m)), nil
}

// Op is one operation in a plan.
type Op struct {
	Op      string  `yaml:"op"`
	Path    string  `yaml:"path"`
	To      string  `yaml:"to,omitempty"`
	Content *string `yaml:"content,omitempty"` // nil keeps current bytes on overwrite
	Mode    *Mode   `yaml:"mode,omitempty"`
}

// Plan is an ordered list of operations.
type Plan struct {
	Name string `yaml:"name,omitempty"`
	Ops  []Op   `yaml:"ops"`
}

// Load reads and validates a plan file.
func Load(path string) (*Plan, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	p, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if p.Name == "" {
		p.Name = path
	}
	return p, nil
}

// Parse decodes and validates a plan.
func Parse(data []byte) (*Plan, error) {
	var p Plan
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPlan, err)
	}
	if _, err := p.Actions(); err != nil {
		return nil, err
	}
	return &p, nil
}

// Actions converts the plan into actions, checking each op.
func (p *Plan) Actions() (action.List, error) {
	actions := make(action.List, 0, len(p.Ops))
	for i, op := range p.Ops {
		a, err := op.action()
		if err != nil {
			return nil, fmt.Errorf("%w: op %d: %v", ErrInvalidPlan, i+1, err)
		}
		actions = append(actions, a)
	}
	return actions, nil
}

func (op Op) action() (action.Action, error) {
	if op.Path == "" {
		return action.Action{}, errors.New("path is required")
	}
	kind, err := action.ParseKind(op.Op)
	if err != nil {
		return action.Action{}, err
	}

	var content []byte
	if op.Content != nil {
		content = []byte(*op.Content)
	}
	var stat *vfs.StatOptions
	if op.Mode != nil {
		stat = &vfs.StatOptions{Mode: uint32(*op.Mode)}
	}

	path := common.CleanPath(op.Path)
	switch kind {
	case action.KindMove:
		if op.To == "" {
			return action.Action{}, errors.New("move requires to")
		}
		if op.Content != nil || op.Mode != nil {
			return action.Action{}, errors.New("move takes no content or mode")
		}
		return action.Move(path, common.CleanPath(op.To)), nil
	case action.KindDelete:
		if op.To != "" || op.Content != nil || op.Mode != nil {
			return action.Action{}, errors.New("delete takes only a path")
		}
		return action.Delete(path), nil
	case action.KindCreate:
		return action.Create(path, content, stat), nil
	default:
		if op.Content == nil && op.Mode == nil {
			return action.Action{}, errors.New("overwrite needs content or mode")
		}
		return action.Overwrite(path, content, stat), nil
	}
}

// Apply stages the plan's operations on t in order. It stops at the first
// failure, leaving earlier operations staged.
func (p *Plan) Apply(ctx context.Context, t *tree.Tree) error {
	actions, err := p.Actions()
	if err != nil {
		return err
	}

	log.Debugf("[Plan] Apply: %s (%d ops)", p.Name, len(actions))
	for _, a := range actions {
		switch a.Kind {
		case action.KindDelete:
			err = t.Delete(ctx, a.Path)
		case action.KindMove:
			err = t.Move(ctx, a.Path, a.To)
		case action.KindCreate:
			err = t.Create(ctx, a.Path, a.Content, a.Stat)
		case action.KindOverwrite:
			err = t.Overwrite(ctx, a.Path, a.Content, a.Stat)
		}
		if err != nil {
			return fmt.Errorf("plan %s: %s: %w", p.Name, a, err)
		}
	}
	return nil
}

// FromActions builds a plan that stages the same actions.
func FromActions(name string, actions []action.Action) *Plan {
	p := &Plan{Name: name, Ops: make([]Op, 0, len(actions))}
	for _, a := range actions {
		op := Op{Op: a.Kind.String(), Path: a.Path, To: a.To}
		if a.Content != nil {
			s := string(a.Content)
			op.Content = &s
		}
		if a.Stat != nil {
			m := Mode(a.Stat.Mode)
			op.Mode = &m
		}
		p.Ops = append(p.Ops, op)
	}
	return p
}

// Marshal encodes the plan as YAML.
func (p *Plan) Marshal() ([]byte, error) {
	return yaml.Marshal(p)
}
