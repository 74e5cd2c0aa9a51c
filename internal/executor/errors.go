package executor

import "fmt"

// errUnmappableRequest reports a request that cannot be translated into the
// backend's wire shape. Treated as a transport-level failure by the
// dispatcher, so the next candidate is tried.
func errUnmappableRequest(backend, language string) error {
	return fmt.Errorf("%s: cannot translate request for language %q", backend, language)
}
