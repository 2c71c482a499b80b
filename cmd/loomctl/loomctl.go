// The loomctl binary is the CLI companion of the loom gateway.
package main

import (
	"github.com/loomhq/loom/internal/loomctl/cmd"
)

func main() {
	cmd.Execute()
}
