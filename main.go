// Package main is the entry point for the runnel CLI.
package main

import "runnel.dev/pkg/runnel/cmd"

func main() {
	cmd.Execute()
}
