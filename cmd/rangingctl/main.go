// Command rangingctl is the CLI client for the rangingd daemon.
package main

import "github.com/go-ranging/goranging/cmd/rangingctl/commands"

func main() {
	commands.Execute()
}
