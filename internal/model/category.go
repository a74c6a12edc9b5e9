// Package model defines the core domain models used throughout the application.
package model

import (
	"strings"
	"time"
)

// MaxHierarchyDepth caps how deep the collection hierarchy goes.
const MaxHierarchyDepth = 3

// CategoryNode is one collection in the current hierarchy snapshot.
// The snapshot is rebuilt wholesale on every sync, so nodes carry no
// identity across syncs.
type CategoryNode struct {
	UpdatedAt    time.Time
	CollectionID string
	Handle       string
	Title        string
	ParentID     string
	FullPath     string
	ID           int64
	Level        int
	ProductCount int
}

// ParseCollectionTitle derives the hierarchy level and full path from a
// collection title split on the configured separator. Depth is capped at
// MaxHierarchyDepth; a title with no separator is a level-1 node.
func ParseCollectionTitle(title, separator string) (level int, fullPath string) {
	title = strings.TrimSpace(title)
	if title == "" {
		return 1, ""
	}

	var parts []string
	if strings.Contains(title, separator) {
		for _, p := range strings.Split(title, separator) {
			parts = append(parts, strings.TrimSpace(p))
		}
	} else {
		parts = []string{title}
	}

	level = len(parts)
	if level > MaxHierarchyDepth {
		level = MaxHierarchyDepth
	}

	return level, strings.Join(parts[:level], separator)
}

// NewCategoryNode builds a hierarchy node from a raw collection title.
func NewCategoryNode(collectionID, handle, title, separator string) CategoryNode {
	level, fullPath := ParseCollectionTitle(title, separator)
	return CategoryNode{
		CollectionID: collectionID,
		Handle:       handle,
		Title:        strings.TrimSpace(title),
		Level:        level,
		FullPath:     fullPath,
		UpdatedAt:    time.Now().UTC(),
	}
}
