// Copyright (c) 2025
// Author: momentics <momentics@gmail.com>

// Package tcp wraps non-blocking TCP socket descriptors and IPv4/IPv6
// endpoint addresses for the reactor.
package tcp
