package cli

import (
	"bufio"
	"context"
	"fmt"
	"strings"

	"github.com/4th-ATechnologies/users.storm4.cloud-sub000/internal/upload"
)

// printlnFn is a test seam for user-facing output.
var printlnFn = fmt.Println

// controller is the part of the orchestrator the command loop drives.
type controller interface {
	Retry() error
	Restart()
	Status() upload.Status
}

// runREPL reads commands until EOF, quit, or ctx is done. It reports whether
// the user asked to quit.
func runREPL(ctx context.Context, c controller, scanner *bufio.Scanner) bool {
	for ctx.Err() == nil {
		if !scanner.Scan() {
			return false
		}
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}

		switch fields[0] {
		case "help":
			printlnFn("Available commands: retry, restart, status, quit")
		case "retry", "r":
			if err := c.Retry(); err != nil {
				printlnFn("Nothing to retry")
			}
		case "restart":
			c.Restart()
			printlnFn("Send abandoned")
		case "status", "s":
			printlnFn(renderStatus(c.Status()))
		case "quit", "exit", "q":
			c.Restart()
			return true
		default:
			printlnFn("Unknown command:", fields[0])
		}
	}
	return false
}
