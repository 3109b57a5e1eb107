package platform

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"energymon-go/errcode"
)

func TestRunSetupStopsAtFirstFailure(t *testing.T) {
	baud := errors.New("baud out of range")
	var ran []string
	step := func(name string, err error) setup {
		return setup{name, func() error { ran = append(ran, name); return err }}
	}

	err := runSetup(step("spi0", nil), step("uart0", baud), step("flash", nil))
	require.Error(t, err)
	assert.True(t, errors.Is(err, baud))
	var e *errcode.E
	require.True(t, errors.As(err, &e))
	assert.Equal(t, "uart0", e.Op)
	assert.Equal(t, []string{"spi0", "uart0"}, ran)

	assert.NoError(t, runSetup(step("spi0", nil)))
}
