// Package fsutil provides file system helpers and the file mode constants used by plugdex.
package fsutil

// File and directory permission constants.
// These follow standard Unix permission conventions.
const (
	// Default file modes.
	FileModeDefault = 0o644 // -rw-r--r--: Default for regular files
	FileModeSecure  = 0o640 // -rw-r----: For settings and cached archives

	// Directory modes.
	DirModeDefault = 0o755 // drwxr-xr-x: Default for directories
	DirModeSecure  = 0o750 // drwxr-x---: For cache directories
)
