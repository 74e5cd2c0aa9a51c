package store

import (
	"context"
	"errors"

	"github.com/zenithlabs/nexus/internal/model"
)

// ErrNotFound is returned when a workspace is not found.
var ErrNotFound = errors.New("workspace not found")

// ErrDuplicateFileName is returned when a save contains two files with the
// same name. The save is rejected before any write; no partial mutation is
// applied.
var ErrDuplicateFileName = errors.New("duplicate file name in workspace")

// Store defines the persistence operations for workspaces. SaveFiles is a
// full replace of the file collection and must be atomic: either the whole
// set is replaced or the previous state is retained.
type Store interface {
	GetWorkspace(ctx context.Context, id string) (*model.Workspace, error)
	CreateIfAbsent(ctx context.Context, userID string) (*model.Workspace, error)
	SaveFiles(ctx context.Context, workspaceID string, files []model.File) (*model.Workspace, error)
	Close() error
}
