package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestExpandPath(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Fatalf("Failed to get home directory: %v", err)
	}
	t.Setenv("SHELFSORT_TEST_DIR", "/var/data")

	tests := []struct {
		name string
		path string
		want string
	}{
		{"empty", "", ""},
		{"bare tilde", "~", home},
		{"tilde prefix", "~/db/app.db", filepath.Join(home, "db", "app.db")},
		{"env var", "$SHELFSORT_TEST_DIR/app.db", "/var/data/app.db"},
		{"plain path untouched", "/opt/shelfsort/app.db", "/opt/shelfsort/app.db"},
		{"tilde mid-path untouched", "/opt/~me/app.db", "/opt/~me/app.db"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ExpandPath(tt.path); got != tt.want {
				t.Errorf("ExpandPath(%q) = %q, want %q", tt.path, got, tt.want)
			}
		})
	}
}
