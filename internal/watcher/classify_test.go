package watcher

import (
	"path/filepath"
	"testing"
)

func TestIsMetadataDir(t *testing.T) {
	root := filepath.Join(string(filepath.Separator), "repo")
	cases := []struct {
		name        string
		metadataDir string
		dir         string
		expected    bool
	}{
		{name: "metadata root", dir: filepath.Join(root, ".git"), expected: true},
		{name: "nested metadata", dir: filepath.Join(root, ".git", "refs", "heads"), expected: true},
		{name: "sibling prefix", dir: filepath.Join(root, ".git-backup"), expected: false},
		{name: "gitignore-like name", dir: filepath.Join(root, ".gitignore"), expected: false},
		{name: "watch root", dir: root, expected: false},
		{name: "worktree dir", dir: filepath.Join(root, "src", ".git"), expected: false},
		{name: "outside root", dir: filepath.Join(string(filepath.Separator), "other", ".git"), expected: false},
		{name: "custom metadata dir", metadataDir: ".hg", dir: filepath.Join(root, ".hg", "store"), expected: true},
		{name: "custom metadata dir ignores git", metadataDir: ".hg", dir: filepath.Join(root, ".git"), expected: false},
		{
			name:        "absolute metadata dir",
			metadataDir: filepath.Join(string(filepath.Separator), "main", ".git", "worktrees", "feature"),
			dir:         filepath.Join(string(filepath.Separator), "main", ".git", "worktrees", "feature", "logs"),
			expected:    true,
		},
	}

	for _, testCase := range cases {
		t.Run(testCase.name, func(t *testing.T) {
			got := IsMetadataDir(root, testCase.metadataDir, testCase.dir)
			if got != testCase.expected {
				t.Fatalf("IsMetadataDir(%q) = %v, want %v", testCase.dir, got, testCase.expected)
			}
		})
	}
}

func TestNotificationType(t *testing.T) {
	if got := Notification(true).Type(); got != NotificationMetadataChanged {
		t.Fatalf("expected %q, got %q", NotificationMetadataChanged, got)
	}
	if got := Notification(false).Type(); got != NotificationWorktreeChanged {
		t.Fatalf("expected %q, got %q", NotificationWorktreeChanged, got)
	}
}
