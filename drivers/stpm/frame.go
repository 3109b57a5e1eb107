package stpm

import (
	"encoding/binary"
	"strconv"

	"github.com/sigurn/crc8"

	"energymon-go/errcode"
)

// FrameLen is the size of one SPI transaction in both directions.
const FrameLen = 5

// CRC-8 with polynomial 0x07, init 0x00, no reflection, no final xor.
var crcTable = crc8.MakeTable(crc8.CRC8)

// Checksum computes the frame CRC over b.
func Checksum(b []byte) byte { return crc8.Checksum(b, crcTable) }

// Frame is a 5-byte STPM command/response:
// [read address, write address, data LSB, data MSB, crc].
type Frame [FrameLen]byte

// NewFrame builds an outgoing frame with a valid checksum.
func NewFrame(readAddr, writeAddr byte, value uint16) Frame {
	var f Frame
	f[0] = readAddr
	f[1] = writeAddr
	binary.LittleEndian.PutUint16(f[2:4], value)
	f[4] = Checksum(f[:4])
	return f
}

// Valid reports whether the trailing checksum matches the first four bytes.
func (f Frame) Valid() bool { return Checksum(f[:4]) == f[4] }

// Payload is the little-endian 32-bit word carried by bytes 0..3.
func (f Frame) Payload() uint32 { return binary.LittleEndian.Uint32(f[:4]) }

// ChecksumError reports a response frame whose CRC did not match.
type ChecksumError struct {
	Expected byte
	Received byte
}

func (e *ChecksumError) Error() string {
	return "stpm: checksum mismatch: expected 0x" + strconv.FormatUint(uint64(e.Expected), 16) +
		", received 0x" + strconv.FormatUint(uint64(e.Received), 16)
}

// Is lets errors.Is(err, errcode.ChecksumMismatch) match.
func (e *ChecksumError) Is(target error) bool { return target == errcode.ChecksumMismatch }

// Code satisfies the errcode coder interface.
func (e *ChecksumError) Code() errcode.Code { return errcode.ChecksumMismatch }

// checkResponse validates a received frame and returns its payload.
func checkResponse(rx []byte) (uint32, error) {
	var f Frame
	copy(f[:], rx)
	if want := Checksum(f[:4]); want != f[4] {
		return 0, &ChecksumError{Expected: want, Received: f[4]}
	}
	return f.Payload(), nil
}
