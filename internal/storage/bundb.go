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
	"context"
	"database/sql"
	"errors"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
)

// BunDB wraps a Bun database instance for type-safe queries.
type BunDB struct {
	*bun.DB
}

// NewBunDB wraps an existing *sql.DB with Bun's type-safe query builder.
func NewBunDB(sqlDB *sql.DB) *BunDB {
	bunDB := bun.NewDB(sqlDB, sqlitedialect.New())
	return &BunDB{DB: bunDB}
}

// GetSchemaInfo retrieves a schema_info value by key.
func (db *BunDB) GetSchemaInfo(ctx context.Context, key string) (string, error) {
	var info SchemaInfoModel
	err := db.NewSelect().
		Model(&info).
		Where("key = ?", key).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return info.Value, nil
}

// --- Changeset Operations ---

// InsertChangeset stores a changeset row and its actions in one transaction.
func (db *BunDB) InsertChangeset(ctx context.Context, cs *ChangesetModel, actions []*ActionModel) error {
	return db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if _, err := tx.NewInsert().Model(cs).Exec(ctx); err != nil {
			return err
		}
		if len(actions) == 0 {
			return nil
		}
		_, err := tx.NewInsert().Model(&actions).Exec(ctx)
		return err
	})
}

// ListChangesets returns all changesets, newest first.
func (db *BunDB) ListChangesets(ctx context.Context) ([]ChangesetModel, error) {
	var models []ChangesetModel
	err := db.NewSelect().
		Model(&models).
		OrderExpr("created_at DESC, rowid DESC").
		Scan(ctx)
	return models, err
}

// GetChangeset returns the changeset with the given id, or nil if none exists.
func (db *BunDB) GetChangeset(ctx context.Context, id string) (*ChangesetModel, error) {
	var model ChangesetModel
	err := db.NewSelect().
		Model(&model).
		Where("id = ?", id).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &model, nil
}

// FindChangesetIDs returns the ids starting with prefix, at most limit of them.
func (db *BunDB) FindChangesetIDs(ctx context.Context, prefix string, limit int) ([]string, error) {
	var ids []string
	err := db.NewSelect().
		Model((*ChangesetModel)(nil)).
		Column("id").
		Where("substr(id, 1, ?) = ?", len(prefix), prefix).
		OrderExpr("id").
		Limit(limit).
		Scan(ctx, &ids)
	return ids, err
}

// GetActions returns the actions of a changeset in replay order.
func (db *BunDB) GetActions(ctx context.Context, changesetID string) ([]ActionModel, error) {
	var models []ActionModel
	err := db.NewSelect().
		Model(&models).
		Where("changeset_id = ?", changesetID).
		Order("seq").
		Scan(ctx)
	return models, err
}

// DeleteChangeset removes a changeset and its actions.
// Returns false if no changeset had that id.
func (db *BunDB) DeleteChangeset(ctx context.Context, id string) (bool, error) {
	var deleted bool
	err := db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if _, err := tx.NewDelete().Model((*ActionModel)(nil)).Where("changeset_id = ?", id).Exec(ctx); err != nil {
			return err
		}
		res, err := tx.NewDelete().Model((*ChangesetModel)(nil)).Where("id = ?", id).Exec(ctx)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		deleted = n > 0
		return nil
	})
	return deleted, err
}
