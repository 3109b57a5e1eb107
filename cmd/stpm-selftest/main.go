//go:build !baremetal

// stpm-selftest resets and configures a metering chip, reads every
// configuration register back and then prints a few calibrated windows.
// Without -spi it runs against the built-in chip model.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"energymon-go/bus"
	"energymon-go/drivers/stpm"
	"energymon-go/drivers/stpm/sim"
	"energymon-go/internal/platform"
	"energymon-go/services/metering"
	"energymon-go/services/persist"
	"energymon-go/types"
)

func main() {
	spiPort := flag.String("spi", "", "SPI port of real hardware (Linux); empty uses the model")
	windows := flag.Int("windows", 5, "calibrated windows to print")
	window := flag.Int("window", types.DefaultWindowSize, "ticks per window")
	flag.Parse()

	var board *platform.Board
	if *spiPort != "" {
		b, err := openHardware(*spiPort)
		if err != nil {
			fail("open %s: %v", *spiPort, err)
		}
		board = b
	} else {
		board, _ = platform.OpenSim(platform.SimOptions{
			Channels: [2]sim.Channel{
				{VoltageCode: 6575, CurrentCode: 3000, PowerActive: 500, PowerReactive: 40, EnergyStep: 10},
				{VoltageCode: 6575, CurrentCode: 1500, PowerActive: 250, EnergyStep: 5},
			},
		})
	}
	if board.Close != nil {
		defer board.Close()
	}

	cfg := types.DefaultMeterConfig()
	cfg.WindowSize = *window

	step("hardware reset", board.Chip.HardwareReset())
	chipCfg := stpm.DefaultChipConfig()
	step("configure", board.Chip.Configure(chipCfg))
	verify(board.Chip, chipCfg)

	run(board, cfg, *windows)
	fmt.Println("PASS")
}

func step(name string, err error) {
	if err != nil {
		fail("%s: %v", name, err)
	}
	fmt.Printf("ok   %s\n", name)
}

func fail(format string, args ...any) {
	fmt.Printf("FAIL "+format+"\n", args...)
	os.Exit(1)
}

// verify reads back every register of the configuration sequence.
func verify(chip *stpm.Chip, cfg stpm.ChipConfig) {
	seq := cfg.Sequence()
	got := make([]uint32, len(seq))
	reqs := make([]stpm.ReadRequest, len(seq))
	for i, w := range seq {
		reqs[i] = stpm.ReadU32(w.Reg, &got[i])
	}
	step("read back", chip.ReadRegisters(reqs...))

	bad := 0
	for i, w := range seq {
		v, want := got[i], w.Value
		if w.LSWOnly {
			v, want = v&0xFFFF, want&0xFFFF
		}
		if v != want {
			fmt.Printf("     %-9s got %#08x want %#08x\n", w.Reg, v, want)
			bad++
		}
	}
	if bad > 0 {
		fail("%d of %d registers differ", bad, len(seq))
	}
	fmt.Printf("ok   %d registers match\n", len(seq))
}

func run(board *platform.Board, cfg types.MeterConfig, n int) {
	mb := bus.NewBus(4)
	conn := mb.NewConnection("selftest")
	svc := metering.NewService(mb.NewConnection("metering"), board.Chip, &persist.MemStore{})
	samples := conn.SubscribeN(metering.SamplesTopic, 4)
	conn.Publish(conn.NewMessage(metering.ConfigTopic, cfg, true))

	timeout := time.Duration(n*cfg.WindowSize)*metering.TickInterval + 5*time.Second
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	go svc.Run(ctx)

	for i := 0; i < n; i++ {
		select {
		case <-ctx.Done():
			fail("only %d of %d windows before timeout", i, n)
		case m := <-samples.Channel():
			b := m.Payload.(metering.Batch)
			for ch, s := range b.Calibrated {
				fmt.Printf("     ch%d V=%d.%03d I=%d.%04d P=%d Q=%d E=%d\n", ch+1,
					s.VoltageRMS/1000, s.VoltageRMS%1000,
					s.CurrentRMS/10000, s.CurrentRMS%10000,
					s.PowerActive, s.PowerReactive, s.EnergyActive)
			}
		}
	}
	fmt.Printf("ok   %d windows\n", n)
}
