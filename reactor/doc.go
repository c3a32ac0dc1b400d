// Copyright (c) 2025
// Author: momentics <momentics@gmail.com>

// Package reactor provides the readiness-notification context used by the
// relay event loop. The Linux implementation wraps an epoll instance in
// level-triggered mode; other platforms get a stub that refuses to start.
package reactor
