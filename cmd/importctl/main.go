package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// flags read their defaults from the environment
	_ = godotenv.Load()

	if err := newApp().Run(ctx, os.Args); err != nil {
		log.Fatal(err)
	}
}
