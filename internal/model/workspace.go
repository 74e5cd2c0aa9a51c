package model

import "time"

// DefaultWorkspaceName is the name of the workspace auto-provisioned for each
// user on first access.
const DefaultWorkspaceName = "Master Workspace"

// File is a single source file inside a workspace. Language is always derived
// from the file name; Rename keeps it in sync. A file created client-side has
// an empty ID until a save round-trip assigns a durable one.
type File struct {
	ID       string `json:"id,omitempty"`
	Name     string `json:"name"`
	Language string `json:"language"`
	Content  string `json:"content"`
	Path     string `json:"path"`
	Position int    `json:"position"`
}

// Folder is a grouping node. Flat in v1; nesting is a stated future extension.
type Folder struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Path string `json:"path"`
}

// Workspace is the durable container of a user's files. One per user, created
// on first access, never hard-deleted while the owning user exists.
type Workspace struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Name      string    `json:"name"`
	Files     []File    `json:"files"`
	Folders   []Folder  `json:"folders,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// FileByID returns the file with the given ID, or nil.
func (w *Workspace) FileByID(id string) *File {
	for i := range w.Files {
		if w.Files[i].ID == id {
			return &w.Files[i]
		}
	}
	return nil
}

// FileByName returns the file with the given name, or nil.
func (w *Workspace) FileByName(name string) *File {
	for i := range w.Files {
		if w.Files[i].Name == name {
			return &w.Files[i]
		}
	}
	return nil
}

// Rename updates the file's name and path and re-derives its language from
// the new extension. The language tag is never left stale after a rename.
func (f *File) Rename(newName string) {
	f.Name = newName
	f.Path = newName
	f.Language = LanguageForFileName(newName)
}

// NewFile constructs a provisional file seeded with the starter template for
// the language implied by its name. The store assigns the durable ID on save.
func NewFile(name string, position int) File {
	lang := LanguageForFileName(name)
	return File{
		Name:     name,
		Language: lang,
		Content:  StarterTemplate(lang, name),
		Path:     name,
		Position: position,
	}
}
