package model

import "testing"

func TestParseCollectionTitle(t *testing.T) {
	tests := []struct {
		name      string
		title     string
		wantLevel int
		wantPath  string
	}{
		{
			name:      "top level",
			title:     "Men",
			wantLevel: 1,
			wantPath:  "Men",
		},
		{
			name:      "second level",
			title:     "Men > Shoes",
			wantLevel: 2,
			wantPath:  "Men > Shoes",
		},
		{
			name:      "third level",
			title:     "Men > Shoes > Running",
			wantLevel: 3,
			wantPath:  "Men > Shoes > Running",
		},
		{
			name:      "depth capped at three",
			title:     "Men > Shoes > Running > Trail",
			wantLevel: 3,
			wantPath:  "Men > Shoes > Running",
		},
		{
			name:      "whitespace around segments trimmed",
			title:     "  Men >  Shoes  ",
			wantLevel: 2,
			wantPath:  "Men > Shoes",
		},
		{
			name:      "empty title",
			title:     "",
			wantLevel: 1,
			wantPath:  "",
		},
		{
			name:      "separator-like text without full separator",
			title:     "Mix>Match",
			wantLevel: 1,
			wantPath:  "Mix>Match",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			level, path := ParseCollectionTitle(tt.title, " > ")
			if level != tt.wantLevel {
				t.Errorf("level = %d, want %d", level, tt.wantLevel)
			}
			if path != tt.wantPath {
				t.Errorf("path = %q, want %q", path, tt.wantPath)
			}
		})
	}
}

func TestNewCategoryNode(t *testing.T) {
	node := NewCategoryNode("123", "men-shoes", "Men > Shoes", " > ")

	if node.CollectionID != "123" {
		t.Errorf("CollectionID = %q, want %q", node.CollectionID, "123")
	}
	if node.Level != 2 {
		t.Errorf("Level = %d, want 2", node.Level)
	}
	if node.FullPath != "Men > Shoes" {
		t.Errorf("FullPath = %q, want %q", node.FullPath, "Men > Shoes")
	}
	if node.UpdatedAt.IsZero() {
		t.Error("UpdatedAt should be set")
	}
}
