// Package errutils provides the error kinds shared across plugdex.
// Every failure is reported by wrapping one of the sentinel errors below,
// so callers classify errors with errors.Is and display the wrapped message.
package errutils

import (
	"fmt"
)

// Error kinds. Each guard violation or failure wraps exactly one of these.
var (
	// ErrTypeMismatch is returned for values of the wrong shape or kind.
	ErrTypeMismatch = fmt.Errorf("type mismatch")
	// ErrInvalidValue is returned for well-typed but illegal values, e.g. an empty id.
	ErrInvalidValue = fmt.Errorf("invalid value")
	// ErrNotFound is returned for unknown repository or plugin ids.
	ErrNotFound = fmt.Errorf("not found")

	ErrAlreadyInstalled = fmt.Errorf("already installed")
	ErrNotInstalled     = fmt.Errorf("not installed")
	ErrProtected        = fmt.Errorf("protected")

	// ErrIdentityCollision is returned when two installed plugins share an id.
	ErrIdentityCollision = fmt.Errorf("plugin identity collision")
	// ErrConfigurationInvariant is returned when the repository set is not valid,
	// e.g. zero or several native-extension repositories.
	ErrConfigurationInvariant = fmt.Errorf("configuration invariant violated")

	ErrParse          = fmt.Errorf("parse error")
	ErrRequestFailed  = fmt.Errorf("request failed")
	ErrNotImplemented = fmt.Errorf("not implemented")
)

// Config errors are related to the application configuration file.
var (
	ErrEmptyConfigPath   = fmt.Errorf("config file path cannot be empty")
	ErrInvalidConfigPath = fmt.Errorf("invalid config file path")
	ErrConfigParse       = fmt.Errorf("failed to parse config")
	ErrConfigValidation  = fmt.Errorf("invalid configuration")
	ErrConfigEncode      = fmt.Errorf("failed to encode config")
	ErrConfigDirectory   = fmt.Errorf("failed to create config directory")
	ErrConfigFileCreate  = fmt.Errorf("failed to create config file")
	ErrConfigFileRename  = fmt.Errorf("failed to rename temporary config file")
)

// Wrap wraps an error with a message. Returns nil if err is nil.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Wrapf wraps an error with a formatted message. Returns nil if err is nil.
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}

// ErrRepositoryNotFound returns ErrNotFound for a repository id.
func ErrRepositoryNotFound(id string) error {
	return fmt.Errorf("%w: repository %q", ErrNotFound, id)
}

// ErrPluginNotFound returns ErrNotFound for a plugin id.
func ErrPluginNotFound(id string) error {
	return fmt.Errorf("%w: plugin %q", ErrNotFound, id)
}

// ErrBackendNotFound returns ErrNotFound for a backend kind.
func ErrBackendNotFound(kind string) error {
	return fmt.Errorf("%w: backend %q", ErrNotFound, kind)
}

// ErrRepositoryExists returns ErrInvalidValue for a duplicate repository id.
func ErrRepositoryExists(id string) error {
	return fmt.Errorf("%w: repository %q already exists", ErrInvalidValue, id)
}

// ErrProtectedRepository returns ErrProtected for a repository id.
func ErrProtectedRepository(id string) error {
	return fmt.Errorf("%w: repository %q", ErrProtected, id)
}

// ErrProtectedPlugin returns ErrProtected for a plugin id.
func ErrProtectedPlugin(id string) error {
	return fmt.Errorf("%w: plugin %q", ErrProtected, id)
}

// ErrInvalidLogLevelWithDetails reports an unknown log level.
func ErrInvalidLogLevelWithDetails(level string) error {
	return fmt.Errorf("%w: invalid log level %q, must be one of: debug, info, warn, error", ErrConfigValidation, level)
}
