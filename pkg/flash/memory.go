package flash

import (
	"bytes"

	"github.com/pkg/errors"
)

// MemoryMedium simulates a NOR part in RAM. Erase sets bytes to 0xFF and
// programming can only clear bits.
type MemoryMedium struct {
	data      []byte
	programs  int
	failAfter int
}

func NewMemoryMedium(size uint32) *MemoryMedium {
	return &MemoryMedium{
		data:      bytes.Repeat([]byte{ErasedByte}, int(size)),
		failAfter: -1,
	}
}

func (m *MemoryMedium) Probe() error { return nil }

func (m *MemoryMedium) Size() uint32 { return uint32(len(m.data)) }

func (m *MemoryMedium) PageRead(addr uint32, buf []byte) error {
	if err := checkRange(m.Size(), addr, len(buf)); err != nil {
		return err
	}
	copy(buf, m.data[addr:])
	return nil
}

func (m *MemoryMedium) PageProgram(addr uint32, buf []byte) error {
	if err := checkAligned(addr, len(buf)); err != nil {
		return err
	}
	if err := checkRange(m.Size(), addr, len(buf)); err != nil {
		return err
	}
	if m.failAfter >= 0 && m.programs >= m.failAfter {
		return errors.Errorf("injected program failure at 0x%x", addr)
	}
	if err := m.Erase(addr, uint32(len(buf))); err != nil {
		return err
	}
	m.programs++
	return m.Program(addr, buf)
}

// Program writes buf without erasing first; only 1->0 transitions land.
func (m *MemoryMedium) Program(addr uint32, buf []byte) error {
	if err := checkRange(m.Size(), addr, len(buf)); err != nil {
		return err
	}
	for i, b := range buf {
		m.data[int(addr)+i] &= b
	}
	return nil
}

func (m *MemoryMedium) Erase(addr, length uint32) error {
	if err := checkAligned(addr, int(length)); err != nil {
		return err
	}
	if err := checkRange(m.Size(), addr, int(length)); err != nil {
		return err
	}
	for i := addr; i < addr+length; i++ {
		m.data[i] = ErasedByte
	}
	return nil
}

// FailAfter makes every PageProgram after the next n successful ones fail.
// A negative n disables injection.
func (m *MemoryMedium) FailAfter(n int) {
	if n < 0 {
		m.failAfter = -1
		return
	}
	m.failAfter = m.programs + n
}

// Programs reports how many pages have been programmed.
func (m *MemoryMedium) Programs() int { return m.programs }

// Bytes returns a copy of the whole medium.
func (m *MemoryMedium) Bytes() []byte {
	out := make([]byte, len(m.data))
	copy(out, m.data)
	return out
}
