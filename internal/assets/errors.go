package assets

import (
	"errors"
	"fmt"
)

var (
	// ErrConfiguration indicates an invalid configuration or an unusable output location
	ErrConfiguration = errors.New("configuration error")
	// ErrResolution indicates an entry or import target that does not exist
	ErrResolution = errors.New("resolution error")
	// ErrTransform indicates a transform stage or the bundler failed on an input
	ErrTransform = errors.New("transform error")
	// ErrCapability indicates a stage produced a result it did not declare the capability for
	ErrCapability = errors.New("stage used an undeclared capability")
	// ErrNotBuilt indicates the pipeline has not produced a manifest yet
	ErrNotBuilt = errors.New("assets not built yet, call Build() first")
	// ErrEntryNotFound indicates a manifest lookup for an unknown entry
	ErrEntryNotFound = errors.New("entry not found in manifest")
)

// ConfigurationError is returned when the configuration is invalid or the output directory cannot be used
type ConfigurationError struct {
	Path string
	Err  error
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration error: %s: %v", e.Path, e.Err)
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

func (e *ConfigurationError) Is(target error) bool { return target == ErrConfiguration }

// ResolutionError is returned when an entry or one of its imports cannot be found
type ResolutionError struct {
	Path     string
	Importer string
	Err      error
}

func (e *ResolutionError) Error() string {
	if e.Importer != "" {
		return fmt.Sprintf("resolution error: %s (imported from %s): %v", e.Path, e.Importer, e.Err)
	}
	return fmt.Sprintf("resolution error: %s: %v", e.Path, e.Err)
}

func (e *ResolutionError) Unwrap() error { return e.Err }

func (e *ResolutionError) Is(target error) bool { return target == ErrResolution }

// TransformError is returned when a stage, or esbuild itself, fails on a source file
type TransformError struct {
	Path   string
	Plugin string
	Err    error
}

func (e *TransformError) Error() string {
	return fmt.Sprintf("transform error: %s (plugin %s): %v", e.Path, e.Plugin, e.Err)
}

func (e *TransformError) Unwrap() error { return e.Err }

func (e *TransformError) Is(target error) bool { return target == ErrTransform }
