// File: api/shutdown.go
// Package api defines the shutdown contract of long-lived components.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package api

// Stopper is implemented by components that own loops or descriptors.
// Stop is idempotent; the first call returns the teardown error, if any.
type Stopper interface {
	Stop() error
}
