// Command avmerged runs the avmerge daemon in the foreground. It is
// equivalent to `avmerge daemon run` with the default configuration and is
// meant for service managers.
package main

import (
	"context"
	"fmt"
	"log"

	"avmerge/internal/config"
	"avmerge/internal/daemonrun"
)

func main() {
	if err := run(context.Background()); err != nil {
		log.Fatal(err)
	}
}

func run(ctx context.Context) error {
	cfg, _, _, err := config.Load("")
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	return daemonrun.Run(ctx, cfg, daemonrun.Options{})
}
