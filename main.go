// Package main is the entry point for the querydesk CLI application.
package main

import (
	"querydesk/cli/cmd"
)

func main() {
	cmd.Execute()
}
