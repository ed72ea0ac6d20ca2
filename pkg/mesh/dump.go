package mesh

import (
	"context"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/zeebo/blake3"
)

type Dump struct {
	Offset uint32
	Data   []byte
	// Digest is the hex blake3 hash of Data
	Digest string
}

// Dump reads size raw bytes of flash at offset.
func (s *Service) Dump(ctx context.Context, offset, size uint32) (Dump, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return Dump{}, err
	}

	data, err := s.flash.Read(offset, size)
	if err != nil {
		return Dump{}, err
	}
	sum := blake3.Sum256(data)
	return Dump{Offset: offset, Data: data, Digest: hex.EncodeToString(sum[:])}, nil
}

// Hex renders the dump 16 bytes per row, each row prefixed by its offset
// relative to the start of the dump.
func (d Dump) Hex() string {
	var b strings.Builder
	for i, c := range d.Data {
		if i%16 == 0 {
			fmt.Fprintf(&b, "0x%06x ", i)
		}
		fmt.Fprintf(&b, "%02x ", c)
		if i%16 == 15 {
			b.WriteByte('\n')
		}
	}
	b.WriteByte('\n')
	return b.String()
}
