package flash

import (
	"fmt"
	"os"

	"github.com/gofrs/flock"
	"github.com/rs/zerolog/log"
)

// File is a flash image kept in a regular file. The image is locked for the
// lifetime of the device so two processes never program it at once.
type File struct {
	file     *os.File
	lock     *flock.Flock
	pageSize int
	size     int
	erase    byte

	Strict bool
}

// OpenFile opens or creates the image at path. A new image starts fully
// erased; an existing one must have exactly pageSize*pages bytes.
func OpenFile(path string, pageSize, pages int, erase byte) (*File, error) {
	lock := flock.New(path + ".lock")
	locked, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("lock image: %w", err)
	}
	if !locked {
		return nil, fmt.Errorf("%w: %s", ErrLocked, path)
	}

	file, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		lock.Unlock()
		return nil, fmt.Errorf("open image: %w", err)
	}

	f := &File{
		file:     file,
		lock:     lock,
		pageSize: pageSize,
		size:     pageSize * pages,
		erase:    erase,
	}

	info, err := file.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("stat image: %w", err)
	}

	switch info.Size() {
	case 0:
		if _, err := file.WriteAt(erased(f.size, erase), 0); err != nil {
			f.Close()
			return nil, fmt.Errorf("format image: %w", err)
		}
		log.Info().Str("file", path).Int("bytes", f.size).Msg("Formatted new flash image!!")
	case int64(f.size):
	default:
		f.Close()
		return nil, fmt.Errorf("image %s has %d bytes, want %d", path, info.Size(), f.size)
	}

	return f, nil
}

func (f *File) PageSize() int    { return f.pageSize }
func (f *File) Size() int        { return f.size }
func (f *File) EraseValue() byte { return f.erase }

func (f *File) Read(addr uint32, buf []byte) error {
	if err := checkRange(addr, len(buf), f.size); err != nil {
		return err
	}
	if _, err := f.file.ReadAt(buf, int64(addr)); err != nil {
		return fmt.Errorf("read image at 0x%x: %w", addr, err)
	}
	return nil
}

func (f *File) Write(addr uint32, data []byte) error {
	if err := checkRange(addr, len(data), f.size); err != nil {
		return err
	}
	cur := make([]byte, len(data))
	if _, err := f.file.ReadAt(cur, int64(addr)); err != nil {
		return fmt.Errorf("read image at 0x%x: %w", addr, err)
	}
	if err := program(cur, data, f.erase, f.Strict, addr); err != nil {
		return err
	}
	if _, err := f.file.WriteAt(cur, int64(addr)); err != nil {
		return fmt.Errorf("write image at 0x%x: %w", addr, err)
	}
	return nil
}

func (f *File) ErasePage(addr uint32) error {
	if err := checkPage(addr, f.pageSize, f.size); err != nil {
		return err
	}
	if _, err := f.file.WriteAt(erased(f.pageSize, f.erase), int64(addr)); err != nil {
		return fmt.Errorf("erase page 0x%x: %w", addr, err)
	}
	return nil
}

// Close syncs the image and releases the lock.
func (f *File) Close() error {
	var err error
	if f.file != nil {
		if serr := f.file.Sync(); serr != nil {
			err = fmt.Errorf("sync image: %w", serr)
		}
		if cerr := f.file.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("close image: %w", cerr)
		}
		f.file = nil
	}
	if uerr := f.lock.Unlock(); uerr != nil {
		log.Warn().Err(uerr).Str("file", f.lock.Path()).Msg("Failed to release image lock")
	}
	return err
}
