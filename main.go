// The main package for the riawatch executable.
package main

import (
	"github.com/ria-tools/riawatch/cmd"
)

// main defers all execution to the CLI layer.
func main() {
	cmd.Execute()
}
