package types

// RecordFlag is one bit of a settings record header. Which physical value
// means "set" depends on the flash erase value, see Polarity.
type RecordFlag uint16

const (
	FlagAddBegin RecordFlag = 1 << iota
	FlagAddComplete
	// FlagDeleted lives in the header's delete marker byte, not in Flags.
	FlagDeleted
	FlagPrimary
	// FlagCompacted marks a record written by compaction. Its payload slot is
	// 2-byte aligned instead of running to the end of the flash page.
	FlagCompacted
)

const (
	EraseOnes  Polarity = 0xFF
	EraseZeros Polarity = 0x00
)

// Polarity is the byte value flash cells take after a page erase. Setting a
// flag always moves its bit away from that value so it can be programmed
// without another erase.
type Polarity byte

func (p Polarity) Valid() bool {
	return p == EraseOnes || p == EraseZeros
}

// Set returns bits with flag marked as set.
func (p Polarity) Set(bits uint16, flag RecordFlag) uint16 {
	if p == EraseOnes {
		return bits &^ uint16(flag)
	}
	return bits | uint16(flag)
}

// IsSet reports whether flag is marked in bits.
func (p Polarity) IsSet(bits uint16, flag RecordFlag) bool {
	if p == EraseOnes {
		return bits&uint16(flag) == 0
	}
	return bits&uint16(flag) != 0
}

// Erased16 is the value a freshly erased 16-bit word reads as.
func (p Polarity) Erased16() uint16 {
	return uint16(p)<<8 | uint16(p)
}

// Has reports whether h carries flag. FlagDeleted is read from the delete
// marker, every other flag from Flags.
func (p Polarity) Has(h Header, flag RecordFlag) bool {
	if flag == FlagDeleted {
		return p.IsSet(uint16(h.DeleteMarker), FlagDeleted)
	}
	return p.IsSet(h.Flags, flag)
}

// Mark sets flag on h in place.
func (p Polarity) Mark(h *Header, flag RecordFlag) {
	if flag == FlagDeleted {
		h.DeleteMarker = byte(p.Set(uint16(h.DeleteMarker), FlagDeleted))
		return
	}
	h.Flags = p.Set(h.Flags, flag)
}

// Live reports whether the record is readable and not deleted.
func (p Polarity) Live(h Header) bool {
	return p.Has(h, FlagAddComplete) && !p.Has(h, FlagDeleted)
}

// Blank reports whether the flags word was never programmed.
func (p Polarity) Blank(h Header) bool {
	return h.Flags == p.Erased16()
}

// NewHeader returns a header for a record that has not been written yet:
// every flag is at the erase value.
func (p Polarity) NewHeader(key uint16, length int) Header {
	return Header{
		Key:          key,
		Flags:        p.Erased16(),
		Length:       uint16(length),
		DeleteMarker: byte(p),
	}
}
