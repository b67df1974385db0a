// Package models defines the domain types shared by Sidenote's packages.
package models

import "time"

// Node is one entry of the workspace file tree.
type Node struct {
	Name        string  `json:"name"`
	Path        string  `json:"path"`
	IsDirectory bool    `json:"is_directory"`
	Children    []*Node `json:"children,omitempty"`
}

// DocumentMeta is a lightweight representation returned by list operations.
type DocumentMeta struct {
	Path      string    `json:"path"`
	Checksum  string    `json:"checksum"`
	UpdatedAt time.Time `json:"updated_at"`
}

// RecentProject is a workspace the user opened before.
type RecentProject struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	RootPath   string    `json:"root_path"`
	CreatedAt  time.Time `json:"created_at"`
	LastOpened time.Time `json:"last_opened"`
}
