//go:build linux && !baremetal

package main

import "energymon-go/internal/platform"

func openHardware(port string) (*platform.Board, error) {
	return platform.OpenHost(platform.HostOptions{
		SPIPort: port,
		SPIHz:   1_000_000,
		SCS:     "GPIO8",
		EN:      "GPIO24",
		SYN:     "GPIO25",
	})
}
