// The main package for the caseresolver executable.
package main

import (
	"github.com/JakeFAU/onbid-case-resolver/cmd"
)

// main defers all execution to the Cobra CLI.
func main() {
	cmd.Execute()
}
