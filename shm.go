package wldecor

import (
	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

// SharedMemory is an anonymous memory segment mapped into this process,
// suitable for handing to the compositor through wl_shm.
type SharedMemory struct {
	fd   int
	size int
	data []byte
}

// NewSharedMemory creates and maps an anonymous segment of size bytes
func NewSharedMemory(size int) (*SharedMemory, error) {
	fd, err := CreateAnonymousFile(int64(size))
	if err != nil {
		return nil, errors.Wrap(err, "failed to create anonymous file")
	}

	data, err := MapMemory(fd, size)
	if err != nil {
		_ = unix.Close(fd)
		return nil, errors.Wrap(err, "failed to map memory")
	}

	return &SharedMemory{
		fd:   fd,
		size: size,
		data: data,
	}, nil
}

// Unmap releases the mapping but keeps the file descriptor open.
func (m *SharedMemory) Unmap() error {
	if m.data == nil {
		return nil
	}
	if err := UnmapMemory(m.data); err != nil {
		return err
	}
	m.data = nil
	return nil
}

// Close unmaps the segment and closes its file descriptor
func (m *SharedMemory) Close() error {
	if err := m.Unmap(); err != nil {
		return err
	}
	if m.fd >= 0 {
		if err := unix.Close(m.fd); err != nil {
			return err
		}
		m.fd = -1
	}
	return nil
}

// Data returns the memory-mapped data
func (m *SharedMemory) Data() []byte {
	return m.data
}

// FD returns the file descriptor
func (m *SharedMemory) FD() int {
	return m.fd
}

// Size returns the segment size
func (m *SharedMemory) Size() int {
	return m.size
}

// Wayland pixel formats
const (
	FormatARGB8888 = 0
	FormatXRGB8888 = 1
)

// Shm represents the wl_shm global
type Shm struct {
	BaseProxy
}

// NewShm creates an unbound wl_shm proxy
func NewShm(ctx *Context) *Shm {
	return &Shm{BaseProxy: BaseProxy{context: ctx}}
}

// CreatePool creates a wl_shm_pool backed by fd. The fd is duplicated for
// transmission, the caller keeps ownership of its copy.
func (s *Shm) CreatePool(fd int, size int32) (*ShmPool, error) {
	pool := &ShmPool{}
	s.context.newProxy(pool)

	// create_pool (opcode 0): new_id, fd, size
	if err := s.context.SendRequestWithFDs(s, 0, []int{fd}, pool.id, FD(fd), size); err != nil {
		s.context.Unregister(pool)
		return nil, err
	}
	return pool, nil
}

// ShmPool represents a wl_shm_pool
type ShmPool struct {
	BaseProxy
}

// CreateBuffer creates a wl_buffer from the pool
func (p *ShmPool) CreateBuffer(offset, width, height, stride int32, format uint32) (*Buffer, error) {
	buffer := &Buffer{}
	p.context.newProxy(buffer)

	// create_buffer (opcode 0)
	if err := p.context.SendRequest(p, 0, buffer.id, offset, width, height, stride, format); err != nil {
		p.context.Unregister(buffer)
		return nil, err
	}
	return buffer, nil
}

// Destroy destroys the pool. Buffers created from it stay valid.
func (p *ShmPool) Destroy() error {
	return destroy(p, 1)
}

// Buffer represents a wl_buffer
type Buffer struct {
	BaseProxy
}

// Destroy destroys the buffer
func (b *Buffer) Destroy() error {
	return destroy(b, 0)
}
