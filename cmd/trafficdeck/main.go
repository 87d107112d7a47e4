package main

import (
	"log"

	"github.com/trafficdeck/trafficdeck/internal/app"
)

func main() {
	if err := app.New().Run(); err != nil {
		log.Fatalf("❌ trafficdeck failed to start: %v", err)
	}
}
