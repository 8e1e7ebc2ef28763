package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"phraseforge/internal/app/bootstrap"
)

// Worker process entrypoint.
// Data flow:
// 1) Load config.
// 2) Build app wiring.
// 3) Start schedulers (timeout sweep, outbox relay) until SIGINT/SIGTERM.
func main() {
	log.Println("phraseforge worker starting")
	app, err := bootstrap.BuildWorker()
	if err != nil {
		log.Fatalf("bootstrap worker failed: %v", err)
	}
	defer func() {
		if err := app.Close(); err != nil {
			log.Printf("worker shutdown close failed: %v", err)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := app.Run(ctx); err != nil {
		log.Fatalf("phraseforge worker stopped with error: %v", err)
	}
	log.Println("phraseforge worker stopped")
}
