package creds

import (
	"github.com/BurntSushi/toml"
)

// Pair is a read-only snapshot of the tokens available for connecting.
// At least one token must be present for a connection attempt.
type Pair struct {
	PrimaryToken string
	SessionToken string
}

// Ready reports whether the pair carries at least one usable token.
func (p Pair) Ready() bool {
	return p.PrimaryToken != "" || p.SessionToken != ""
}

// Accessor yields the current credential pair. The zero Pair means
// "not ready"; callers poll rather than failing permanently.
type Accessor interface {
	Credentials() Pair
}

// FileAccessor reads credentials from a TOML file on every call, so tokens
// written by an external login flow are picked up without a restart.
type FileAccessor struct {
	path string
}

type credsFile struct {
	PrimaryToken string `toml:"primary_token"`
	SessionToken string `toml:"session_token"`
}

// NewFileAccessor creates an accessor backed by the given TOML file.
func NewFileAccessor(path string) *FileAccessor {
	return &FileAccessor{path: path}
}

// Credentials reads the file and returns the current pair. A missing or
// malformed file yields the zero Pair.
func (a *FileAccessor) Credentials() Pair {
	var f credsFile
	if _, err := toml.DecodeFile(a.path, &f); err != nil {
		return Pair{}
	}
	return Pair{
		PrimaryToken: f.PrimaryToken,
		SessionToken: f.SessionToken,
	}
}

// Static is an Accessor that always returns the same pair. Useful in tests
// and for hosts that inject tokens directly.
type Static struct {
	Pair Pair
}

// Credentials returns the fixed pair.
func (s Static) Credentials() Pair {
	return s.Pair
}
