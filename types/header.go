package types

import "encoding/binary"

// On-flash layout of a settings record header. The delete marker sits on its
// own 16-byte write granule so it can be programmed after the rest of the
// header.
//
//	off 0  key (2B)
//	off 2  flags (2B)
//	off 4  length (2B)
//	off 6  reserved (10B)
//	off 16 delete marker (1B)
//	off 17 reserved (15B)
const (
	WriteGranule       = 16
	HeaderSize         = 2 * WriteGranule
	DeleteMarkerOffset = WriteGranule
	MaxValueSize       = 256

	// MarkerSize is the in-use marker at the start of an active region.
	MarkerSize = WriteGranule
	InUseMagic = uint32(0xbe5cc5ee)
)

type Header struct {
	Key          uint16
	Flags        uint16
	Length       uint16
	DeleteMarker byte
}

// Encode lays h out in HeaderSize bytes. Reserved bytes keep the erase value
// so they are never programmed.
func (h Header) Encode(p Polarity) []byte {
	buf := make([]byte, HeaderSize)
	for i := range buf {
		buf[i] = byte(p)
	}
	binary.LittleEndian.PutUint16(buf[0:2], h.Key)
	binary.LittleEndian.PutUint16(buf[2:4], h.Flags)
	binary.LittleEndian.PutUint16(buf[4:6], h.Length)
	buf[DeleteMarkerOffset] = h.DeleteMarker
	return buf
}

// FlagsGranule is the first write granule of the encoded header.
func (h Header) FlagsGranule(p Polarity) []byte {
	return h.Encode(p)[:WriteGranule]
}

// DeleteGranule is the second write granule of the encoded header.
func (h Header) DeleteGranule(p Polarity) []byte {
	return h.Encode(p)[DeleteMarkerOffset:]
}

func DecodeHeader(buf []byte) Header {
	return Header{
		Key:          binary.LittleEndian.Uint16(buf[0:2]),
		Flags:        binary.LittleEndian.Uint16(buf[2:4]),
		Length:       binary.LittleEndian.Uint16(buf[4:6]),
		DeleteMarker: buf[DeleteMarkerOffset],
	}
}

// AlignLength returns the size of the payload slot of a record whose header
// starts at pos. Compacted records are packed to 2 bytes. Other records run
// to the end of the page so the next header starts on a fresh page; when the
// payload spills past the current page the slot ends with the page it spills
// into.
func AlignLength(pos int, compacted bool, length, pageSize int) int {
	if compacted {
		return (length + 1) &^ 1
	}
	inPage := pos % pageSize
	end := inPage + HeaderSize + length
	if rem := end % pageSize; rem != 0 {
		end += pageSize - rem
	}
	return end - inPage - HeaderSize
}

// RecordSize is header plus payload slot.
func RecordSize(pos int, h Header, p Polarity, pageSize int) int {
	return HeaderSize + AlignLength(pos, p.Has(h, FlagCompacted), int(h.Length), pageSize)
}

// Marker returns the in-use marker written at the base of the active region.
func Marker(p Polarity) []byte {
	buf := make([]byte, MarkerSize)
	for i := range buf {
		buf[i] = byte(p)
	}
	binary.LittleEndian.PutUint32(buf, InUseMagic)
	return buf
}

func IsMarker(buf []byte) bool {
	return len(buf) >= 4 && binary.LittleEndian.Uint32(buf) == InUseMagic
}
