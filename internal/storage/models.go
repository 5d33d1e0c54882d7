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


package storage

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/uptrace/bun"

	"stagefs/internal/action"
	"stagefs/internal/vfs"
)

// Bun ORM models for the journal tables.

// SchemaInfoModel represents the schema_info table
type SchemaInfoModel struct {
	bun.BaseModel `bun:"table:schema_info"`

	Key   string `bun:"key,pk"`
	Value string `bun:"value,notnull"`
}

// ChangesetModel represents the changesets table
type ChangesetModel struct {
	bun.BaseModel `bun:"table:changesets"`

	ID          string `bun:"id,pk"`
	Message     string `bun:"message,notnull"`
	Strategy    string `bun:"strategy,notnull"`
	ActionCount int64  `bun:"action_count,notnull"`
	CreatedAt   int64  `bun:"created_at,notnull"` // Unix nanoseconds
}

// ToChangeset converts a ChangesetModel to a Changeset
func (m *ChangesetModel) ToChangeset() Changeset {
	return Changeset{
		ID:          m.ID,
		Message:     m.Message,
		Strategy:    m.Strategy,
		ActionCount: int(m.ActionCount),
		CreatedAt:   time.Unix(0, m.CreatedAt),
	}
}

// ActionModel represents the actions table.
// HasContent is false and Mode NULL when the action leaves them unchanged.
type ActionModel struct {
	bun.BaseModel `bun:"table:actions"`

	ChangesetID string        `bun:"changeset_id,pk"`
	Seq         int64         `bun:"seq,pk"`
	Kind        string        `bun:"kind,notnull"`
	Path        string        `bun:"path,notnull"`
	Dest        string        `bun:"dest,notnull"`
	HasContent  bool          `bun:"has_content,notnull"`
	Content     []byte        `bun:"content"`
	Mode        sql.NullInt64 `bun:"mode"`
}

// ActionModelFromAction converts an action to its row at position seq.
func ActionModelFromAction(changesetID string, seq int, a action.Action) *ActionModel {
	m := &ActionModel{
		ChangesetID: changesetID,
		Seq:         int64(seq),
		Kind:        a.Kind.String(),
		Path:        a.Path,
		Dest:        a.To,
		HasContent:  a.Content != nil,
		Content:     a.Content,
	}
	if a.Stat != nil {
		m.Mode = sql.NullInt64{Int64: int64(a.Stat.Mode), Valid: true}
	}
	return m
}

// ToAction converts an ActionModel back to an action.
func (m *ActionModel) ToAction() (action.Action, error) {
	kind, err := action.ParseKind(m.Kind)
	if err != nil {
		return action.Action{}, fmt.Errorf("changeset %s seq %d: %w", m.ChangesetID, m.Seq, err)
	}

	a := action.Action{Kind: kind, Path: m.Path}
	switch kind {
	case action.KindMove:
		a.To = m.Dest
	case action.KindCreate, action.KindOverwrite:
		if m.HasContent {
			a.Content = m.Content
			if a.Content == nil {
				a.Content = []byte{}
			}
		}
	}
	if m.Mode.Valid && kind != action.KindDelete && kind != action.KindMove {
		a.Stat = &vfs.StatOptions{Mode: uint32(m.Mode.Int64)}
	}
	return a, nil
}
