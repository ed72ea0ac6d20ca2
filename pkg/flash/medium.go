package flash

import (
	"fmt"

	"github.com/pkg/errors"
)

/////////////////////////////////////

// GEOMETRY OF THE SPI-NOR PART

/////////////////////////////////////

const (
	// Minimum erase and program granularity ("sf update" boundary)
	PageSize = 0x10000

	// Full part on the board, 16 MiB
	DefaultSize = 0x1000000

	// Value of every byte after an erase
	ErasedByte = 0xFF
)

var (
	// ErrIO is matched by every failure reported by the underlying medium
	ErrIO = errors.New("flash i/o error")
	// ErrOutOfRange errors when an access falls outside the medium
	ErrOutOfRange = errors.New("flash access out of range")
	// ErrUnaligned errors when a page operation is not on page boundaries
	ErrUnaligned = errors.New("flash access not page aligned")
)

// Medium is the block/command layer the flash is reached through.
// PageRead accepts any range; PageProgram and Erase only whole pages.
type Medium interface {
	Probe() error
	Size() uint32
	PageRead(addr uint32, buf []byte) error
	// PageProgram erases then programs the pages covered by buf.
	PageProgram(addr uint32, buf []byte) error
	Erase(addr, length uint32) error
}

// IOError carries a medium failure. errors.Is(err, ErrIO) holds for it.
type IOError struct {
	Op   string
	Addr uint32
	Err  error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("flash %s at 0x%x: %v", e.Op, e.Addr, e.Err)
}

func (e *IOError) Unwrap() error { return e.Err }

func (e *IOError) Is(target error) bool { return target == ErrIO }

func checkRange(size, addr uint32, length int) error {
	if uint64(addr)+uint64(length) > uint64(size) {
		return errors.Wrapf(ErrOutOfRange, "0x%x+0x%x exceeds 0x%x", addr, length, size)
	}
	return nil
}

func checkAligned(addr uint32, length int) error {
	if addr%PageSize != 0 || length%PageSize != 0 {
		return errors.Wrapf(ErrUnaligned, "0x%x+0x%x", addr, length)
	}
	return nil
}
