//go:build rp2040

package main

import (
	"context"
	"time"

	"energymon-go/internal/app"
	"energymon-go/internal/platform"
)

func main() {
	// Allow USB CDC to enumerate before we print.
	time.Sleep(2 * time.Second)
	println("energymon: boot")

	board, err := platform.Open()
	if err != nil {
		println("energymon: board init failed:", err.Error())
		for {
			time.Sleep(time.Second)
		}
	}

	if err := app.Run(context.Background(), board, app.Options{}); err != nil {
		println("energymon: stopped:", err.Error())
	}
}
