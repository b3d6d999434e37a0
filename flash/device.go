// Package flash models the raw NOR flash the settings store lives on: byte
// reads, program writes that can only move bits away from the erase value,
// and whole-page erases.
package flash

import (
	"errors"
	"fmt"
)

var (
	ErrOutOfRange = errors.New("flash: address out of range")
	ErrUnaligned  = errors.New("flash: address not page aligned")
	// ErrBitFlip is returned by strict devices when a write would need a bit
	// to move back toward the erase value.
	ErrBitFlip = errors.New("flash: write needs an erase")
	ErrLocked  = errors.New("flash: image is locked by another process")
)

// Device is the flash access the settings store consumes. Addresses are
// absolute byte offsets into the device.
type Device interface {
	PageSize() int
	Size() int
	EraseValue() byte
	Read(addr uint32, buf []byte) error
	Write(addr uint32, data []byte) error
	ErasePage(addr uint32) error
}

func checkRange(addr uint32, n, size int) error {
	if int(addr)+n > size {
		return fmt.Errorf("%w: 0x%x+%d beyond %d", ErrOutOfRange, addr, n, size)
	}
	return nil
}

func checkPage(addr uint32, pageSize, size int) error {
	if int(addr)%pageSize != 0 {
		return fmt.Errorf("%w: 0x%x", ErrUnaligned, addr)
	}
	return checkRange(addr, pageSize, size)
}

// program merges data into cur the way NOR cells do: a bit can only move
// away from the erase value. In strict mode a write asking for the opposite
// move fails instead of being silently dropped.
func program(cur, data []byte, erase byte, strict bool, addr uint32) error {
	for i, b := range data {
		var next byte
		if erase == 0xFF {
			next = cur[i] & b
		} else {
			next = cur[i] | b
		}
		if strict && next != b {
			return fmt.Errorf("%w: byte 0x%x holds 0x%02x, want 0x%02x", ErrBitFlip, addr+uint32(i), cur[i], b)
		}
		cur[i] = next
	}
	return nil
}

func erased(n int, erase byte) []byte {
	buf := make([]byte, n)
	for i := range buf {
		buf[i] = erase
	}
	return buf
}
