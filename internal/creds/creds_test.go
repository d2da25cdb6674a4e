package creds

import (
	"os"
	"path/filepath"
	"testing"
)

func TestFileAccessor(t *testing.T) {
	path := filepath.Join(t.TempDir(), "credentials.toml")
	content := "primary_token = \"tok-abc\"\nsession_token = \"sess-123\"\n"
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}

	a := NewFileAccessor(path)
	p := a.Credentials()
	if p.PrimaryToken != "tok-abc" {
		t.Errorf("PrimaryToken = %q, want tok-abc", p.PrimaryToken)
	}
	if p.SessionToken != "sess-123" {
		t.Errorf("SessionToken = %q, want sess-123", p.SessionToken)
	}
	if !p.Ready() {
		t.Error("Ready() = false, want true")
	}
}

func TestFileAccessorMissingFile(t *testing.T) {
	a := NewFileAccessor(filepath.Join(t.TempDir(), "nope.toml"))
	if p := a.Credentials(); p.Ready() {
		t.Errorf("Ready() = true for missing file, pair = %+v", p)
	}
}

// TestFileAccessorPicksUpNewTokens verifies that tokens written after the
// accessor was constructed are visible, since the file is read on every call.
func TestFileAccessorPicksUpNewTokens(t *testing.T) {
	path := filepath.Join(t.TempDir(), "credentials.toml")
	a := NewFileAccessor(path)

	if a.Credentials().Ready() {
		t.Fatal("pair should not be ready before the file exists")
	}

	if err := os.WriteFile(path, []byte("session_token = \"late\"\n"), 0600); err != nil {
		t.Fatal(err)
	}
	p := a.Credentials()
	if !p.Ready() || p.SessionToken != "late" {
		t.Errorf("pair = %+v, want session token 'late'", p)
	}
}

func TestPairReady(t *testing.T) {
	tests := []struct {
		name string
		pair Pair
		want bool
	}{
		{"both empty", Pair{}, false},
		{"primary only", Pair{PrimaryToken: "a"}, true},
		{"session only", Pair{SessionToken: "b"}, true},
		{"both set", Pair{PrimaryToken: "a", SessionToken: "b"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.pair.Ready(); got != tt.want {
				t.Errorf("Ready() = %v, want %v", got, tt.want)
			}
		})
	}
}
