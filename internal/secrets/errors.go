package secrets

import "fmt"

// ResolutionError wraps a failed secret lookup with enough context to
// report which provider/ref pair failed and why.
type ResolutionError struct {
	Provider string
	Ref      string
	Cause    error
}

func (e *ResolutionError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("secrets: resolving %s:%s: %v", e.Provider, e.Ref, e.Cause)
	}
	return fmt.Sprintf("secrets: resolving %s:%s", e.Provider, e.Ref)
}

func (e *ResolutionError) Unwrap() error { return e.Cause }

// UnknownProviderError is raised when a StringValue's secret reference
// names a provider the registry never registered.
type UnknownProviderError struct {
	Provider string
}

func (e *UnknownProviderError) Error() string {
	return fmt.Sprintf("secrets: unknown provider %q", e.Provider)
}
