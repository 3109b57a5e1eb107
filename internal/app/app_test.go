package app

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"energymon-go/bus"
	"energymon-go/drivers/stpm/sim"
	"energymon-go/internal/platform"
	"energymon-go/services/metering"
	"energymon-go/types"
)

type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestRunOnSimulatedBoard(t *testing.T) {
	board, _ := platform.OpenSim(platform.SimOptions{
		Channels: [2]sim.Channel{{VoltageCode: 6575, CurrentCode: 3000, PowerActive: 500, EnergyStep: 10}},
		LineHz:   50,
	})
	defer board.Close()
	out := &lockedBuffer{}
	board.Report = out

	cfg := types.DefaultMeterConfig()
	cfg.WindowSize = 1
	cfg.Channels[0].Report.Frequency = true

	mb := bus.NewBus(8)
	samples := mb.NewConnection("test").SubscribeN(metering.SamplesTopic, 1)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- Run(ctx, board, Options{
			Config: &cfg,
			Bus:    mb,
			Log:    slog.New(slog.NewTextHandler(io.Discard, nil)),
		})
	}()

	// 20 crossings at exactly 20 ms of capture time read as 50.0000 Hz.
	deadline := time.After(5 * time.Second)
	for {
		var batch metering.Batch
		select {
		case msg := <-samples.Channel():
			batch = msg.Payload.(metering.Batch)
		case <-deadline:
			t.Fatal("frequency never settled")
		}
		if batch.Frequency == 500000 {
			break
		}
	}

	assert.Eventually(t, func() bool {
		return strings.Contains(out.String(), `"freq"`)
	}, 2*time.Second, 20*time.Millisecond)

	line := strings.SplitN(out.String(), "\n", 2)[0]
	var decoded map[string]any
	require.NoError(t, json.Unmarshal([]byte(line), &decoded))
	assert.Contains(t, decoded, "powa1")

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
