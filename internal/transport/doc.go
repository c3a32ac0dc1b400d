// File: internal/transport/doc.go
// Package transport
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Raw socket plumbing for the relay event loop: host resolution, bind and
// listen with address reuse, non-blocking accept, and descriptor-level
// read, write and close. Linux implementation uses golang.org/x/sys/unix;
// other platforms get stubs that report api.ErrNotSupported.

package transport
