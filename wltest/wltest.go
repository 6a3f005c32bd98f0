// Package wltest runs a wldecor Display against an in-process peer that
// stands in for the compositor, so protocol traffic can be asserted on
// without a running compositor.
package wltest

import (
	"bytes"
	"encoding/binary"
	"errors"
	"net"
	"os"
	"syscall"
	"testing"
	"time"

	"github.com/bnema/wldecor"
	"golang.org/x/sys/unix"
)

// readTimeout bounds every blocking read of the peer.
const readTimeout = 2 * time.Second

// Message is one request as the compositor would see it.
type Message struct {
	Object uint32
	Opcode uint16
	Args   []byte
	FDs    []int
}

// Reader returns a reader over the message arguments.
func (m Message) Reader() *Reader {
	return &Reader{data: m.Args}
}

// Reader decodes wire arguments in order.
type Reader struct {
	data []byte
	off  int
}

func (r *Reader) Uint32() uint32 {
	if r.off+4 > len(r.data) {
		return 0
	}
	v := binary.LittleEndian.Uint32(r.data[r.off:])
	r.off += 4
	return v
}

func (r *Reader) Int32() int32 {
	return int32(r.Uint32())
}

func (r *Reader) String() string {
	n := int(r.Uint32())
	if n == 0 || r.off+n > len(r.data) {
		return ""
	}
	s := string(r.data[r.off : r.off+n-1])
	r.off += (n + 3) &^ 3
	return s
}

// Peer is the compositor end of a connected socket pair.
type Peer struct {
	t    testing.TB
	conn *net.UnixConn
	buf  []byte
	fds  []int
}

// NewPair returns a Display and the peer at the other end of its socket.
// Both are closed when the test ends.
func NewPair(t testing.TB) (*wldecor.Display, *Peer) {
	t.Helper()
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		t.Fatalf("socketpair: %v", err)
	}
	client := fileConn(t, fds[0], "wltest-client")
	server := fileConn(t, fds[1], "wltest-server")

	d, err := wldecor.NewDisplay(client)
	if err != nil {
		t.Fatalf("new display: %v", err)
	}
	p := &Peer{t: t, conn: server}
	t.Cleanup(func() {
		_ = client.Close()
		_ = server.Close()
		for _, fd := range p.fds {
			_ = unix.Close(fd)
		}
	})
	return d, p
}

func fileConn(t testing.TB, fd int, name string) *net.UnixConn {
	t.Helper()
	f := os.NewFile(uintptr(fd), name)
	defer f.Close()
	c, err := net.FileConn(f)
	if err != nil {
		t.Fatalf("file conn: %v", err)
	}
	return c.(*net.UnixConn)
}

// fill reads once, waiting at most timeout. It reports whether bytes arrived.
func (p *Peer) fill(timeout time.Duration) bool {
	p.t.Helper()
	buf := make([]byte, 4096)
	oob := make([]byte, unix.CmsgSpace(28*4))
	_ = p.conn.SetReadDeadline(time.Now().Add(timeout))
	n, oobn, _, _, err := p.conn.ReadMsgUnix(buf, oob)
	if err != nil {
		if errors.Is(err, os.ErrDeadlineExceeded) {
			return false
		}
		p.t.Fatalf("peer read: %v", err)
	}
	p.buf = append(p.buf, buf[:n]...)
	if oobn > 0 {
		scms, err := syscall.ParseSocketControlMessage(oob[:oobn])
		if err != nil {
			p.t.Fatalf("parse control message: %v", err)
		}
		for _, scm := range scms {
			fds, err := syscall.ParseUnixRights(&scm)
			if err != nil {
				p.t.Fatalf("parse rights: %v", err)
			}
			p.fds = append(p.fds, fds...)
		}
	}
	return n > 0
}

func (p *Peer) complete() bool {
	if len(p.buf) < 8 {
		return false
	}
	size := binary.LittleEndian.Uint32(p.buf[4:8]) >> 16
	return len(p.buf) >= int(size)
}

// Next returns the next request, failing the test if none arrives in time.
// Every fd received so far is handed to the first message read after it.
func (p *Peer) Next() Message {
	p.t.Helper()
	for !p.complete() {
		if !p.fill(readTimeout) {
			p.t.Fatalf("peer: no request within %v", readTimeout)
		}
	}
	return p.pop()
}

func (p *Peer) pop() Message {
	header := binary.LittleEndian.Uint32(p.buf[4:8])
	size := int(header >> 16)
	m := Message{
		Object: binary.LittleEndian.Uint32(p.buf[0:4]),
		Opcode: uint16(header & 0xffff),
		Args:   append([]byte(nil), p.buf[8:size]...),
		FDs:    p.fds,
	}
	p.buf = p.buf[size:]
	p.fds = nil
	return m
}

// Drain returns every request already written to the socket.
func (p *Peer) Drain() []Message {
	p.t.Helper()
	for p.fill(50 * time.Millisecond) {
	}
	var msgs []Message
	for p.complete() {
		msgs = append(msgs, p.pop())
	}
	return msgs
}

// Send writes an event from the compositor. Arguments may be uint32, int32,
// wldecor.Fixed, string or []byte.
func (p *Peer) Send(object uint32, opcode uint16, args ...any) {
	p.t.Helper()
	var body bytes.Buffer
	for _, arg := range args {
		switch v := arg.(type) {
		case uint32:
			_ = binary.Write(&body, binary.LittleEndian, v)
		case int32:
			_ = binary.Write(&body, binary.LittleEndian, v)
		case wldecor.Fixed:
			_ = binary.Write(&body, binary.LittleEndian, int32(v))
		case string:
			_ = binary.Write(&body, binary.LittleEndian, uint32(len(v)+1))
			body.WriteString(v)
			body.Write(make([]byte, (4-(len(v)+1)%4)%4+1))
		case []byte:
			_ = binary.Write(&body, binary.LittleEndian, uint32(len(v)))
			body.Write(v)
			body.Write(make([]byte, (4-len(v)%4)%4))
		default:
			p.t.Fatalf("peer: unsupported argument %T", arg)
		}
	}
	msg := make([]byte, 8, 8+body.Len())
	binary.LittleEndian.PutUint32(msg[0:4], object)
	binary.LittleEndian.PutUint32(msg[4:8], uint32(8+body.Len())<<16|uint32(opcode))
	msg = append(msg, body.Bytes()...)
	if _, err := p.conn.Write(msg); err != nil {
		p.t.Fatalf("peer write: %v", err)
	}
}

// Filter returns the messages addressed to object.
func Filter(msgs []Message, object uint32) []Message {
	var out []Message
	for _, m := range msgs {
		if m.Object == object {
			out = append(out, m)
		}
	}
	return out
}
