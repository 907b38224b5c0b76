// Package loader registers store drivers via blank imports.
// Import this package to ensure the default drivers are available.
//
// Usage in main.go:
//
//	import _ "github.com/addonforge/addon-authors-go/internal/platform/store/loader"
package loader

import (
	// Register the memory store driver
	_ "github.com/addonforge/addon-authors-go/internal/platform/store/memory"

	// Register the sqlite store driver
	_ "github.com/addonforge/addon-authors-go/internal/platform/store/sqlite"
)
