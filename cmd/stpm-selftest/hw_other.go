//go:build !linux && !baremetal

package main

import (
	"errors"

	"energymon-go/internal/platform"
)

func openHardware(string) (*platform.Board, error) {
	return nil, errors.New("hardware access needs Linux")
}
