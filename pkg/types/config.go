package types

import "errors"

// Config holds store parameters for opening a Tapestry database.
type Config struct {
	// DataDir is the directory holding the SQLite database file.
	DataDir string `json:"data_dir" yaml:"data_dir"`

	// Actor is the name recorded on audit entries for this process.
	Actor string `json:"actor" yaml:"actor"`

	// SandboxPrefix, when set, marks generated identifiers as sandbox
	// identifiers (single uppercase character, e.g. "X").
	SandboxPrefix string `json:"sandbox_prefix,omitempty" yaml:"sandbox_prefix,omitempty"`
}

// Config validation errors.
var (
	ErrDataDirEmpty         = errors.New("data_dir must not be empty")
	ErrActorEmpty           = errors.New("actor must not be empty")
	ErrSandboxPrefixInvalid = errors.New("sandbox_prefix must be a single uppercase letter")
)

// Validate checks that the Config is well-formed.
func (c Config) Validate() error {
	if c.DataDir == "" {
		return ErrDataDirEmpty
	}
	if c.Actor == "" {
		return ErrActorEmpty
	}
	if c.SandboxPrefix != "" {
		if len(c.SandboxPrefix) != 1 || c.SandboxPrefix[0] < 'A' || c.SandboxPrefix[0] > 'Z' {
			return ErrSandboxPrefixInvalid
		}
	}
	return nil
}
