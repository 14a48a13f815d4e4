// main.go
// Application entry point.
package main

import "github.com/commentboard/server/internal/cli"

func main() {
	cli.Main()
}
