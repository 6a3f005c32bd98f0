//go:build linux
// +build linux

package wldecor

import (
	"fmt"
	"sync"
	"syscall"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

// Pre-allocated buffers for control messages
var controlBufferPool = sync.Pool{
	New: func() interface{} {
		return make([]byte, unix.CmsgSpace(28*4)) // libwayland's per-message fd limit
	},
}

// recvmsgWithFDs receives a message potentially containing file descriptors
func (d *Display) recvmsgWithFDs(buf []byte) (n int, fds []int, err error) {
	oob := controlBufferPool.Get().([]byte)
	defer controlBufferPool.Put(oob)

	n, oobn, _, _, err := d.conn.ReadMsgUnix(buf, oob)
	if err != nil {
		return 0, nil, err
	}

	if oobn > 0 {
		scms, err := syscall.ParseSocketControlMessage(oob[:oobn])
		if err != nil {
			return n, nil, errors.Wrap(err, "parse control message")
		}

		for _, scm := range scms {
			if scm.Header.Type == syscall.SCM_RIGHTS {
				parsedFDs, err := syscall.ParseUnixRights(&scm)
				if err != nil {
					return n, fds, errors.Wrap(err, "parse unix rights")
				}
				fds = append(fds, parsedFDs...)
			}
		}
	}

	return n, fds, nil
}

// sendmsgWithFDs writes buf, attaching fds to the first byte
func (d *Display) sendmsgWithFDs(buf []byte, fds []int) error {
	if len(fds) == 0 {
		_, err := d.conn.Write(buf)
		return err
	}

	oob := syscall.UnixRights(fds...)
	_, _, err := d.conn.WriteMsgUnix(buf, oob, nil)
	return err
}

// CreateAnonymousFile creates an anonymous file for shared memory
func CreateAnonymousFile(size int64) (fd int, err error) {
	// memfd_create first (Linux 3.17+)
	fd, err = unix.MemfdCreate("wldecor-shm", unix.MFD_CLOEXEC|unix.MFD_ALLOW_SEALING)
	if err == nil {
		if err = unix.Ftruncate(fd, size); err != nil {
			_ = unix.Close(fd)
			return -1, err
		}

		// Seal against resizing
		_, err = unix.FcntlInt(uintptr(fd), unix.F_ADD_SEALS,
			unix.F_SEAL_SHRINK|unix.F_SEAL_GROW|unix.F_SEAL_SEAL)
		if err != nil {
			_ = unix.Close(fd)
			return -1, err
		}

		return fd, nil
	}

	// O_TMPFILE fallback
	fd, err = unix.Open("/dev/shm", unix.O_TMPFILE|unix.O_RDWR|unix.O_CLOEXEC, 0600)
	if err == nil {
		if err = unix.Ftruncate(fd, size); err != nil {
			_ = unix.Close(fd)
			return -1, err
		}
		return fd, nil
	}

	// Final fallback: create and unlink immediately
	name := fmt.Sprintf("/dev/shm/wldecor-%d", unix.Getpid())
	fd, err = unix.Open(name, unix.O_RDWR|unix.O_CREAT|unix.O_EXCL|unix.O_CLOEXEC, 0600)
	if err != nil {
		return -1, err
	}
	_ = unix.Unlink(name)

	if err = unix.Ftruncate(fd, size); err != nil {
		_ = unix.Close(fd)
		return -1, err
	}

	return fd, nil
}

// MapMemory maps a file descriptor into memory
func MapMemory(fd int, size int) ([]byte, error) {
	return unix.Mmap(fd, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
}

// UnmapMemory unmaps memory
func UnmapMemory(data []byte) error {
	return unix.Munmap(data)
}
