package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/zenithlabs/nexus/internal/model"

	_ "modernc.org/sqlite"
)

const createWorkspacesTable = `
CREATE TABLE IF NOT EXISTS workspaces (
    id         TEXT PRIMARY KEY,
    user_id    TEXT NOT NULL UNIQUE,
    name       TEXT NOT NULL,
    created_at DATETIME NOT NULL,
    updated_at DATETIME NOT NULL
)`

const createFilesTable = `
CREATE TABLE IF NOT EXISTS files (
    id           TEXT PRIMARY KEY,
    workspace_id TEXT NOT NULL REFERENCES workspaces(id),
    name         TEXT NOT NULL,
    language     TEXT NOT NULL,
    content      TEXT NOT NULL DEFAULT '',
    path         TEXT NOT NULL,
    position     INTEGER NOT NULL,
    UNIQUE(workspace_id, name)
)`

// Compile-time interface satisfaction check.
var _ Store = (*SQLiteStore)(nil)

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens the SQLite database at dbPath and runs migrations.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}

	for _, stmt := range []string{createWorkspacesTable, createFilesTable} {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("run migration: %w", err)
		}
	}

	return &SQLiteStore{db: db}, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// GetWorkspace retrieves a workspace and its ordered files by ID.
func (s *SQLiteStore) GetWorkspace(ctx context.Context, id string) (*model.Workspace, error) {
	w := &model.Workspace{}
	err := s.db.QueryRowContext(ctx,
		`SELECT id, user_id, name, created_at, updated_at
		FROM workspaces WHERE id = ?`, id,
	).Scan(&w.ID, &w.UserID, &w.Name, &w.CreatedAt, &w.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get workspace: %w", err)
	}

	files, err := s.loadFiles(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	w.Files = files
	return w, nil
}

// CreateIfAbsent returns the user's workspace, provisioning it with the
// starter file on first access.
func (s *SQLiteStore) CreateIfAbsent(ctx context.Context, userID string) (*model.Workspace, error) {
	var id string
	err := s.db.QueryRowContext(ctx,
		"SELECT id FROM workspaces WHERE user_id = ?", userID,
	).Scan(&id)
	if err == nil {
		return s.GetWorkspace(ctx, id)
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("lookup workspace by user: %w", err)
	}

	now := time.Now().UTC()
	w := &model.Workspace{
		ID:        model.NewID(),
		UserID:    userID,
		Name:      model.DefaultWorkspaceName,
		CreatedAt: now,
		UpdatedAt: now,
	}
	seed := model.NewFile("Main.java", 0)
	seed.ID = model.NewID()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO workspaces (id, user_id, name, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)`,
		w.ID, w.UserID, w.Name, w.CreatedAt, w.UpdatedAt,
	); err != nil {
		return nil, fmt.Errorf("insert workspace: %w", err)
	}

	if err := insertFile(ctx, tx, w.ID, seed); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}

	w.Files = []model.File{seed}
	return w, nil
}

// SaveFiles replaces the workspace's file collection in one transaction.
// Duplicate names are rejected before any write. Provisional files (empty ID)
// are assigned durable IDs; the returned workspace reflects them.
func (s *SQLiteStore) SaveFiles(ctx context.Context, workspaceID string, files []model.File) (*model.Workspace, error) {
	seen := make(map[string]bool, len(files))
	for _, f := range files {
		if seen[f.Name] {
			return nil, fmt.Errorf("%w: %q", ErrDuplicateFileName, f.Name)
		}
		seen[f.Name] = true
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	res, err := tx.ExecContext(ctx,
		"UPDATE workspaces SET updated_at = ? WHERE id = ?", now, workspaceID,
	)
	if err != nil {
		return nil, fmt.Errorf("touch workspace: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("check rows affected: %w", err)
	}
	if affected == 0 {
		return nil, ErrNotFound
	}

	if _, err := tx.ExecContext(ctx,
		"DELETE FROM files WHERE workspace_id = ?", workspaceID,
	); err != nil {
		return nil, fmt.Errorf("clear files: %w", err)
	}

	saved := make([]model.File, len(files))
	for i, f := range files {
		if f.ID == "" {
			f.ID = model.NewID()
		}
		f.Position = i
		if err := insertFile(ctx, tx, workspaceID, f); err != nil {
			return nil, err
		}
		saved[i] = f
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}

	w, err := s.GetWorkspace(ctx, workspaceID)
	if err != nil {
		return nil, err
	}
	return w, nil
}

func insertFile(ctx context.Context, tx *sql.Tx, workspaceID string, f model.File) error {
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO files (id, workspace_id, name, language, content, path, position)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		f.ID, workspaceID, f.Name, f.Language, f.Content, f.Path, f.Position,
	); err != nil {
		return fmt.Errorf("insert file %s: %w", f.Name, err)
	}
	return nil
}

type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func (s *SQLiteStore) loadFiles(ctx context.Context, q querier, workspaceID string) ([]model.File, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT id, name, language, content, path, position
		FROM files WHERE workspace_id = ? ORDER BY position`, workspaceID,
	)
	if err != nil {
		return nil, fmt.Errorf("list files: %w", err)
	}
	defer rows.Close()

	var files []model.File
	for rows.Next() {
		var f model.File
		if err := rows.Scan(&f.ID, &f.Name, &f.Language, &f.Content, &f.Path, &f.Position); err != nil {
			return nil, fmt.Errorf("scan file: %w", err)
		}
		files = append(files, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate files: %w", err)
	}

	return files, nil
}
