// The main package for the sheets-relay executable.
package main

import (
	"github.com/JakeFAU/sheets-relay/cmd"
)

// main defers all execution to the Cobra CLI.
func main() {
	cmd.Execute()
}
