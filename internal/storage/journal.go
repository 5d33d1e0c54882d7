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
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	_ "github.com/tursodatabase/go-libsql"

	"stagefs/internal/action"
	"stagefs/internal/util"
)

var (
	ErrChangesetNotFound = errors.New("changeset not found")
	ErrAmbiguousID       = errors.New("ambiguous changeset id")
	ErrJournalLocked     = errors.New("journal is locked by another process")
)

// Changeset describes a saved action list.
type Changeset struct {
	ID          string
	Message     string
	Strategy    string
	ActionCount int
	CreatedAt   time.Time
}

// ShortID returns the first eight characters of the id.
func (c Changeset) ShortID() string {
	if len(c.ID) <= 8 {
		return c.ID
	}
	return c.ID[:8]
}

// Journal is a SQLite-backed store of changesets.
// Writers take an exclusive file lock next to the database so that
// concurrent CLI invocations serialize their saves.
type Journal struct {
	path  string
	db    *sql.DB
	bunDB *BunDB
	lock  *flock.Flock

	// LockPoll bounds how long writers wait for the file lock.
	LockPoll util.PollConfig
}

// LockPathFor returns the lock file used for the journal at path.
func LockPathFor(path string) string {
	return strings.TrimSuffix(path, filepath.Ext(path)) + ".lock"
}

// Open opens the journal at path, creating it if needed.
func Open(path string) (*Journal, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create journal directory: %w", err)
	}

	_, statErr := os.Stat(path)
	created := os.IsNotExist(statErr)

	db, err := sql.Open("libsql", BuildDSN(path))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	fail := func(err error) (*Journal, error) {
		db.Close()
		if created {
			os.Remove(path)
		}
		return nil, err
	}

	if err := applyPragmas(db); err != nil {
		return fail(err)
	}
	if err := execStatements(db, journalSchema); err != nil {
		return fail(fmt.Errorf("failed to create schema: %w", err))
	}
	if err := execStatements(db, initJournal, SchemaVersion); err != nil {
		return fail(fmt.Errorf("failed to initialize journal: %w", err))
	}

	bunDB := NewBunDB(db)
	fileType, err := bunDB.GetSchemaInfo(context.Background(), "type")
	if err != nil {
		return fail(fmt.Errorf("failed to read schema info: %w", err))
	}
	if fileType != "journal" {
		return fail(fmt.Errorf("not a journal file (type=%s)", fileType))
	}

	log.Debugf("[Journal] Open: path=%s created=%v", path, created)
	return &Journal{
		path:     path,
		db:       db,
		bunDB:    bunDB,
		lock:     flock.New(LockPathFor(path)),
		LockPoll: util.DefaultPollConfig(),
	}, nil
}

// Path returns the database file path.
func (j *Journal) Path() string {
	return j.path
}

// Close closes the database connection.
func (j *Journal) Close() error {
	return j.db.Close()
}

// Lock takes the journal's write lock, waiting up to LockPoll.Timeout.
// The returned function releases it.
func (j *Journal) Lock(ctx context.Context) (func(), error) {
	err := util.PollUntil(ctx, j.LockPoll, j.lock.TryLock)
	if errors.Is(err, context.DeadlineExceeded) {
		return nil, ErrJournalLocked
	}
	if err != nil {
		return nil, fmt.Errorf("failed to acquire lock: %w", err)
	}
	return func() {
		if err := j.lock.Unlock(); err != nil {
			log.Warnf("[Journal] Unlock: %v", err)
		}
	}, nil
}

// Save records actions as a new changeset and returns its id.
func (j *Journal) Save(ctx context.Context, message, strategy string, actions []action.Action) (string, error) {
	unlock, err := j.Lock(ctx)
	if err != nil {
		return "", err
	}
	defer unlock()

	if strategy == "" {
		strategy = "default"
	}
	cs := &ChangesetModel{
		ID:          uuid.NewString(),
		Message:     message,
		Strategy:    strategy,
		ActionCount: int64(len(actions)),
		CreatedAt:   time.Now().UnixNano(),
	}
	rows := make([]*ActionModel, len(actions))
	for i, a := range actions {
		rows[i] = ActionModelFromAction(cs.ID, i, a)
	}

	err = util.Retry(ctx, "save", func() error {
		return j.bunDB.InsertChangeset(ctx, cs, rows)
	})
	if err != nil {
		return "", fmt.Errorf("save changeset: %w", err)
	}

	log.Debugf("[Journal] Save: id=%s actions=%d", cs.ID, len(actions))
	return cs.ID, nil
}

// List returns all changesets, newest first.
func (j *Journal) List(ctx context.Context) ([]Changeset, error) {
	models, err := util.RetryWithResult(ctx, "list", func() ([]ChangesetModel, error) {
		return j.bunDB.ListChangesets(ctx)
	})
	if err != nil {
		return nil, fmt.Errorf("list changesets: %w", err)
	}

	result := make([]Changeset, len(models))
	for i := range models {
		result[i] = models[i].ToChangeset()
	}
	return result, nil
}

// Resolve expands a unique id prefix to a full changeset id.
func (j *Journal) Resolve(ctx context.Context, prefix string) (string, error) {
	if prefix == "" {
		return "", fmt.Errorf("%w: empty id", ErrChangesetNotFound)
	}
	ids, err := j.bunDB.FindChangesetIDs(ctx, prefix, 2)
	if err != nil {
		return "", fmt.Errorf("resolve changeset: %w", err)
	}
	switch len(ids) {
	case 0:
		return "", fmt.Errorf("%w: %s", ErrChangesetNotFound, prefix)
	case 1:
		return ids[0], nil
	default:
		return "", fmt.Errorf("%w: %s", ErrAmbiguousID, prefix)
	}
}

// Get returns the changeset header for id or an id prefix.
func (j *Journal) Get(ctx context.Context, id string) (Changeset, error) {
	id, err := j.Resolve(ctx, id)
	if err != nil {
		return Changeset{}, err
	}
	model, err := j.bunDB.GetChangeset(ctx, id)
	if err != nil {
		return Changeset{}, fmt.Errorf("get changeset: %w", err)
	}
	if model == nil {
		return Changeset{}, fmt.Errorf("%w: %s", ErrChangesetNotFound, id)
	}
	return model.ToChangeset(), nil
}

// Load returns the actions of a changeset in the order they were saved.
// The result can be merged into a tree like any other exporter.
func (j *Journal) Load(ctx context.Context, id string) (action.List, error) {
	cs, err := j.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	models, err := util.RetryWithResult(ctx, "load", func() ([]ActionModel, error) {
		return j.bunDB.GetActions(ctx, cs.ID)
	})
	if err != nil {
		return nil, fmt.Errorf("load changeset: %w", err)
	}

	actions := make(action.List, 0, len(models))
	for i := range models {
		a, err := models[i].ToAction()
		if err != nil {
			return nil, err
		}
		actions = append(actions, a)
	}

	log.Debugf("[Journal] Load: id=%s actions=%d", cs.ID, len(actions))
	return actions, nil
}

// Delete removes a changeset by id or id prefix.
func (j *Journal) Delete(ctx context.Context, id string) error {
	unlock, err := j.Lock(ctx)
	if err != nil {
		return err
	}
	defer unlock()

	id, err = j.Resolve(ctx, id)
	if err != nil {
		return err
	}
	deleted, err := util.RetryWithResult(ctx, "delete", func() (bool, error) {
		return j.bunDB.DeleteChangeset(ctx, id)
	})
	if err != nil {
		return fmt.Errorf("delete changeset: %w", err)
	}
	if !deleted {
		return fmt.Errorf("%w: %s", ErrChangesetNotFound, id)
	}

	log.Debugf("[Journal] Delete: id=%s", id)
	return nil
}
