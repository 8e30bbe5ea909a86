// Package pool
// Author: momentics <momentics@gmail.com>
//
// Memory layer for hioload-net.
// Size-classed byte pools back buffer storage; a scratch pool backs the
// overflow region of vectored socket reads.
// See bytepool.go and default.go for implementation details.
package pool
