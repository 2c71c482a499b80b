// The loom binary serves the multi-tenant LLM API gateway.
package main

import (
	_ "go.uber.org/automaxprocs"

	"github.com/loomhq/loom/internal/gateway"
)

func main() {
	gateway.NewApp("loom").Run()
}
