package flash

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"
)

// Image is a flash device backed by a raw image file on disk. The file holds
// exactly one byte per device address.
type Image struct {
	mu   sync.Mutex
	path string
	size uint32
	f    *os.File
}

// OpenImage opens the image at path, creating an erased one of the given size
// when it does not exist. An existing file shorter than size is padded with
// Erased bytes.
func OpenImage(path string, size uint32) (*Image, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open flash image %s: %w", path, err)
	}

	st, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to stat flash image %s: %w", path, err)
	}

	img := &Image{path: path, size: size, f: f}
	if st.Size() < int64(size) {
		if err := img.fillFrom(st.Size()); err != nil {
			f.Close()
			return nil, err
		}
	}

	return img, nil
}

// Close closes the image file.
func (d *Image) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.f == nil {
		return nil
	}
	err := d.f.Close()
	d.f = nil
	return err
}

// Path returns the image file path.
func (d *Image) Path() string {
	return d.path
}

// Size returns the device capacity in bytes.
func (d *Image) Size() uint32 {
	return d.size
}

// ReadRange reads n bytes at addr.
func (d *Image) ReadRange(ctx context.Context, addr uint32, n int) ([]byte, error) {
	if err := ContextError(ctx); err != nil {
		return nil, err
	}
	if err := CheckRange(d.size, addr, n); err != nil {
		return nil, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.f == nil {
		return nil, fmt.Errorf("flash image %s is closed", d.path)
	}

	buf := make([]byte, n)
	if _, err := d.f.ReadAt(buf, int64(addr)); err != nil && err != io.EOF {
		return nil, fmt.Errorf("failed to read flash image at %d: %w", addr, err)
	}
	return buf, nil
}

// WriteSequential programs data at addr, clearing bits only.
func (d *Image) WriteSequential(ctx context.Context, addr uint32, data []byte) error {
	if err := ContextError(ctx); err != nil {
		return err
	}
	if err := CheckRange(d.size, addr, len(data)); err != nil {
		return err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.f == nil {
		return fmt.Errorf("flash image %s is closed", d.path)
	}

	cur := make([]byte, len(data))
	if _, err := d.f.ReadAt(cur, int64(addr)); err != nil && err != io.EOF {
		return fmt.Errorf("failed to read flash image at %d: %w", addr, err)
	}
	program(cur, data)

	if _, err := d.f.WriteAt(cur, int64(addr)); err != nil {
		return fmt.Errorf("failed to write flash image at %d: %w", addr, err)
	}
	if err := d.f.Sync(); err != nil {
		return fmt.Errorf("failed to sync flash image: %w", err)
	}
	return nil
}

// EraseAll rewrites the whole image with Erased bytes.
func (d *Image) EraseAll(ctx context.Context) error {
	if err := ContextError(ctx); err != nil {
		return err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.f == nil {
		return fmt.Errorf("flash image %s is closed", d.path)
	}
	if err := d.f.Truncate(0); err != nil {
		return fmt.Errorf("failed to truncate flash image: %w", err)
	}
	return d.fillFrom(0)
}

// fillFrom writes Erased bytes from offset up to the device size.
func (d *Image) fillFrom(offset int64) error {
	const chunk = 64 * 1024

	buf := make([]byte, chunk)
	fill(buf, Erased)

	for off := offset; off < int64(d.size); off += chunk {
		n := int64(d.size) - off
		if n > chunk {
			n = chunk
		}
		if _, err := d.f.WriteAt(buf[:n], off); err != nil {
			return fmt.Errorf("failed to erase flash image at %d: %w", off, err)
		}
	}
	if err := d.f.Sync(); err != nil {
		return fmt.Errorf("failed to sync flash image: %w", err)
	}
	return nil
}
