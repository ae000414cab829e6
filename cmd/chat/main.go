package main

import (
	"context"
	"log"

	"bitcoin-gpt-client/internal/bootstrap"
	"bitcoin-gpt-client/internal/config"
	"bitcoin-gpt-client/internal/tracer"
)

func main() {
	// 1. Load Configuration
	cfg := config.Load()

	// 2. Initialize Tracer (no-op unless OTEL_ENABLED=true)
	shutdownTracer := tracer.InitTracer(cfg.Trace.Enabled, cfg.Trace.Endpoint)
	defer shutdownTracer(context.Background())

	// 3. Bootstrap Dependencies (Container)
	container, err := bootstrap.NewContainer(cfg)
	if err != nil {
		log.Fatalf("Unable to initialize client: %v", err)
	}
	defer container.Close()

	// 4. Run the interactive client
	app := newApp(container)
	if err := app.run(); err != nil {
		log.Fatal(err)
	}
}
