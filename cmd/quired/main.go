// Command quired runs the quire conversion daemon without the CLI wrapper.
// The config file is resolved like quire's, with QUIRE_CONFIG taking the
// place of --config.
package main

import (
	"context"
	"log"
	"os"

	"quire/internal/config"
	"quire/internal/daemonrun"
)

func main() {
	cfg, _, _, err := config.Load(os.Getenv("QUIRE_CONFIG"))
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	if err := daemonrun.Run(context.Background(), cfg, daemonrun.Options{
		LogLevel: os.Getenv("QUIRE_LOG_LEVEL"),
	}); err != nil {
		log.Fatalf("quired: %v", err)
	}
}
