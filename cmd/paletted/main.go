// paletted is the palette backend daemon. It owns the search providers and
// the state database, is spawned automatically when the palette opens, and
// exits after an idle timeout.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/palette-dev/palette/internal/cmd"
)

func main() {
	if err := cmd.RunDaemon(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "paletted: %v\n", err)
		os.Exit(1)
	}
}
