// Package cli implements the send command: it builds the upload stack from
// configuration, starts one send and reports its progress until the send is
// done, fails, or is abandoned.
//
// While a send runs on a terminal, the user may type commands:
//
//	retry      skip the rest of the retry countdown
//	restart    abandon the send
//	status     print the current status
//	quit       abandon the send and exit
package cli
