package errcode

import (
	"errors"
	"testing"
)

func TestCodesAreStableStrings(t *testing.T) {
	cases := map[string]Code{
		"bus_fault":             BusFault,
		"checksum_mismatch":     ChecksumMismatch,
		"configuration_failure": ConfigurationFailure,
		"store_unavailable":     StoreUnavailable,
		"corrupt_record":        CorruptRecord,
	}
	for want, c := range cases {
		if c.Error() != want {
			t.Fatalf("code %q mismatch: got %q", want, c.Error())
		}
	}
}

func TestWrapAndOf(t *testing.T) {
	if Wrap(BusFault, "tx", nil) != nil {
		t.Fatal("Wrap(nil) must stay nil")
	}
	cause := errors.New("spi timeout")
	err := Wrap(ConfigurationFailure, "DSP_CR3", Wrap(BusFault, "tx", cause))

	if got := Of(err); got != ConfigurationFailure {
		t.Fatalf("Of = %q, want %q", got, ConfigurationFailure)
	}
	if !errors.Is(err, BusFault) {
		t.Fatal("expected nested bus_fault to match")
	}
	if !errors.Is(err, cause) {
		t.Fatal("expected cause to be reachable")
	}
	if Of(nil) != OK || Of(cause) != Error {
		t.Fatal("unexpected default codes")
	}
	want := "configuration_failure (DSP_CR3): bus_fault (tx): spi timeout"
	if err.Error() != want {
		t.Fatalf("Error() = %q, want %q", err.Error(), want)
	}
}
