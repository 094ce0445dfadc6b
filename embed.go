package gitwatch

import "embed"

// EmbeddedConfigFS provides the default gitwatch.toml.
//
//go:embed config
var EmbeddedConfigFS embed.FS

// DefaultConfigPath is the location of the defaults inside EmbeddedConfigFS.
const DefaultConfigPath = "config/gitwatch.toml"
