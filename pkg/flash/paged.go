// Package flash lets byte writes at any offset and length land on a medium
// that can only erase and program whole 64 KiB pages.
package flash

import (
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/rxanders35/mesh/pkg/metrics"
)

// PagedFlash stages every write as read-modify-write of the touched pages.
// It owns one page of scratch memory and is not safe for concurrent use.
type PagedFlash struct {
	medium  Medium
	page    []byte
	metrics *metrics.Metrics
}

type Option func(*PagedFlash)

func WithMetrics(m *metrics.Metrics) Option {
	return func(f *PagedFlash) {
		f.metrics = m
	}
}

func New(m Medium, opts ...Option) *PagedFlash {
	f := &PagedFlash{
		medium: m,
		page:   make([]byte, PageSize),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

func (f *PagedFlash) Probe() error {
	if err := f.medium.Probe(); err != nil {
		return &IOError{Op: "probe", Err: err}
	}
	return nil
}

func (f *PagedFlash) Size() uint32 { return f.medium.Size() }

// Read returns length bytes starting at offset.
func (f *PagedFlash) Read(offset, length uint32) ([]byte, error) {
	if err := checkRange(f.Size(), offset, int(length)); err != nil {
		return nil, err
	}
	buf := make([]byte, length)
	if err := f.ReadInto(offset, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

// ReadInto fills buf from offset.
func (f *PagedFlash) ReadInto(offset uint32, buf []byte) error {
	if err := checkRange(f.Size(), offset, len(buf)); err != nil {
		return err
	}
	if err := f.medium.PageRead(offset, buf); err != nil {
		return &IOError{Op: "read", Addr: offset, Err: err}
	}
	return nil
}

// Write stores data at offset. Bytes of the touched pages outside
// [offset, offset+len(data)) keep their previous value. A failure on one page
// leaves the pages before it written and the pages after it untouched.
func (f *PagedFlash) Write(offset uint32, data []byte) error {
	if len(data) < 1 {
		return nil
	}
	if err := checkRange(f.Size(), offset, len(data)); err != nil {
		return err
	}

	end := uint64(offset) + uint64(len(data))
	first := offset / PageSize
	last := uint32((end - 1) / PageSize)

	for p := first; p <= last; p++ {
		base := p * PageSize
		if err := f.medium.PageRead(base, f.page); err != nil {
			return &IOError{Op: "read", Addr: base, Err: err}
		}

		lo := uint64(max(offset, base))
		hi := min(end, uint64(base)+PageSize)
		copy(f.page[lo-uint64(base):hi-uint64(base)], data[lo-uint64(offset):hi-uint64(offset)])

		logrus.Debugf("flash: update page 0x%x bytes [0x%x, 0x%x)", base, lo, hi)
		if err := f.medium.PageProgram(base, f.page); err != nil {
			return &IOError{Op: "program", Addr: base, Err: err}
		}
		f.metrics.PageProgrammed()
	}
	return nil
}

// EraseAll returns every byte of the medium to 0xFF.
func (f *PagedFlash) EraseAll() error {
	logrus.Infof("flash: erasing 0x%x bytes", f.Size())
	if err := f.medium.Erase(0, f.Size()); err != nil {
		return &IOError{Op: "erase", Err: errors.Wrap(err, "erase all")}
	}
	f.metrics.Erased()
	return nil
}
