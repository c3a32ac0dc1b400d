// File: server/command.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package server

import "bytes"

// The close command is "quit" followed by exactly two more bytes, which
// telnet-style clients fill with "\r\n". Any other length is ordinary data.
const quitCommandLen = 6

var quitPrefix = []byte("quit")

// IsQuitCommand reports whether one read chunk is the client close command:
// exactly 6 bytes whose first 4 are "quit". The trailing two bytes are not
// inspected.
func IsQuitCommand(chunk []byte) bool {
	return len(chunk) == quitCommandLen && bytes.HasPrefix(chunk, quitPrefix)
}
