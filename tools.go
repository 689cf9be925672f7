//go:build tools

// Package tools pins command-line tools used by the build so that their
// versions are tracked in go.mod.
package tools

import (
	// Build targets in magefiles/.
	_ "github.com/magefile/mage"
)
