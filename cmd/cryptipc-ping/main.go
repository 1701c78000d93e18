// cryptipc-ping connects to the crypto daemon endpoint and measures
// request/response round trips over the IPC transport.
package main

import "os"

func main() {
	os.Exit(run(ParseFlags(os.Args[1:])))
}
