package persist

import (
	"encoding/binary"
	"fmt"
	"hash/crc32"

	"github.com/fxamacker/cbor/v2"

	"energymon-go/errcode"
)

// RecordVersion is bumped when the Record layout changes incompatibly.
const RecordVersion = 1

// Record is the durable copy of the energy accumulators.
type Record struct {
	Version uint8    `cbor:"1,keyasint"`
	Energy  [2]int64 `cbor:"2,keyasint"`
	Seq     uint32   `cbor:"3,keyasint"`
}

// Encoded layout: [len u16 BE][cbor body][crc32c(body) u32 BE].
const (
	headerLen  = 2
	trailerLen = 4
	maxBodyLen = 256
)

var (
	castagnoli = crc32.MakeTable(crc32.Castagnoli)

	recEncMode cbor.EncMode
	recDecMode cbor.DecMode
)

func init() {
	var err error
	recEncMode, err = cbor.EncOptions{
		Sort:        cbor.SortCanonical,
		IndefLength: cbor.IndefLengthForbidden,
	}.EncMode()
	if err != nil {
		panic(fmt.Sprintf("persist: cbor encoder mode: %v", err))
	}
	recDecMode, err = cbor.DecOptions{
		DupMapKey:   cbor.DupMapKeyEnforcedAPF,
		IndefLength: cbor.IndefLengthForbidden,
	}.DecMode()
	if err != nil {
		panic(fmt.Sprintf("persist: cbor decoder mode: %v", err))
	}
}

// EncodeRecord frames r for storage.
func EncodeRecord(r Record) ([]byte, error) {
	r.Version = RecordVersion
	body, err := recEncMode.Marshal(r)
	if err != nil {
		return nil, err
	}
	out := make([]byte, headerLen, headerLen+len(body)+trailerLen)
	binary.BigEndian.PutUint16(out, uint16(len(body)))
	out = append(out, body...)
	return binary.BigEndian.AppendUint32(out, crc32.Checksum(body, castagnoli)), nil
}

// DecodeRecord parses a framed record. Trailing bytes after the frame are
// ignored so flash pages can be passed in whole.
func DecodeRecord(b []byte) (Record, error) {
	if len(b) < headerLen+trailerLen {
		return Record{}, &errcode.E{C: errcode.CorruptRecord, Op: "decode", Msg: "short record"}
	}
	n := int(binary.BigEndian.Uint16(b))
	if n == 0 || n > maxBodyLen || len(b) < headerLen+n+trailerLen {
		return Record{}, &errcode.E{C: errcode.CorruptRecord, Op: "decode", Msg: "bad length"}
	}
	body := b[headerLen : headerLen+n]
	want := binary.BigEndian.Uint32(b[headerLen+n:])
	if crc32.Checksum(body, castagnoli) != want {
		return Record{}, &errcode.E{C: errcode.CorruptRecord, Op: "decode", Msg: "crc mismatch"}
	}
	var r Record
	if err := recDecMode.Unmarshal(body, &r); err != nil {
		return Record{}, errcode.Wrap(errcode.CorruptRecord, "decode", err)
	}
	if r.Version != RecordVersion {
		return Record{}, &errcode.E{C: errcode.CorruptRecord, Op: "decode", Msg: "unknown version"}
	}
	return r, nil
}
