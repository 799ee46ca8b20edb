package main

import (
	"context"
	"flag"
	"log"

	"github.com/custody_settlement/bootstrap"
)

func main() {
	configPath := flag.String("config", ".", "directory holding the .env file")
	flag.Parse()

	rt, err := bootstrap.NewRuntime(context.Background(), *configPath)
	if err != nil {
		log.Fatalf("bootstrap: %v", err)
	}
	if err := rt.Run(context.Background()); err != nil {
		log.Fatalf("run: %v", err)
	}
}
