package flash

import (
	"bytes"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
)

var rwrw int = 0660

// FileMedium keeps a flash image in a host file, one byte per flash byte.
type FileMedium struct {
	file *os.File
	size uint32
}

// OpenFileMedium opens the image at path, creating an erased image of size
// bytes when it does not exist yet.
func OpenFileMedium(path string, size uint32) (*FileMedium, error) {
	if size == 0 || size%PageSize != 0 {
		return nil, errors.Errorf("image size 0x%x is not a multiple of page size", size)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, errors.Wrap(err, "could not create image directory")
	}

	file, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, os.FileMode(rwrw))
	if err != nil {
		return nil, errors.Wrapf(err, "open flash image %s", path)
	}
	m := &FileMedium{file: file, size: size}

	info, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, err
	}
	if info.Size() == 0 {
		if err := m.Erase(0, size); err != nil {
			file.Close()
			return nil, errors.Wrap(err, "format flash image")
		}
	}
	if err := m.Probe(); err != nil {
		file.Close()
		return nil, err
	}
	return m, nil
}

func (m *FileMedium) Probe() error {
	info, err := m.file.Stat()
	if err != nil {
		return errors.Wrap(err, "probe flash image")
	}
	if info.Size() != int64(m.size) {
		return errors.Errorf("flash image is 0x%x bytes, expected 0x%x", info.Size(), m.size)
	}
	return nil
}

func (m *FileMedium) Size() uint32 { return m.size }

func (m *FileMedium) PageRead(addr uint32, buf []byte) error {
	if err := checkRange(m.size, addr, len(buf)); err != nil {
		return err
	}
	if _, err := m.file.ReadAt(buf, int64(addr)); err != nil {
		return errors.Wrapf(err, "read image at 0x%x", addr)
	}
	return nil
}

func (m *FileMedium) PageProgram(addr uint32, buf []byte) error {
	if err := checkAligned(addr, len(buf)); err != nil {
		return err
	}
	if err := checkRange(m.size, addr, len(buf)); err != nil {
		return err
	}
	if _, err := m.file.WriteAt(buf, int64(addr)); err != nil {
		return errors.Wrapf(err, "write image at 0x%x", addr)
	}
	return m.file.Sync()
}

func (m *FileMedium) Erase(addr, length uint32) error {
	if err := checkAligned(addr, int(length)); err != nil {
		return err
	}
	if err := checkRange(m.size, addr, int(length)); err != nil {
		return err
	}
	erased := bytes.Repeat([]byte{ErasedByte}, PageSize)
	for off := addr; off < addr+length; off += PageSize {
		if _, err := m.file.WriteAt(erased, int64(off)); err != nil {
			return errors.Wrapf(err, "erase image at 0x%x", off)
		}
	}
	return m.file.Sync()
}

func (m *FileMedium) Close() error {
	return m.file.Close()
}
