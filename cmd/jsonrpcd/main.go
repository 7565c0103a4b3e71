// Command jsonrpcd serves a demonstration JSON-RPC 2.0 method registry over
// stdio, TCP, HTTP and WebSocket.
package main

import (
	"fmt"
	"os"
)

// Exit codes for different failure modes
const (
	ExitSuccess = 0
	ExitError   = 1
)

func main() {
	if err := execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(ExitError)
	}
}
