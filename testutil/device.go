package testutil

import (
	"net"
	"sync"
	"testing"
	"time"
)

// opcode of data packets; every other packet kind is answered
const dataOpcode = 0x02

// FakeDevice is a UDP server that behaves like an LED controller
type FakeDevice struct {
	conn *net.UDPConn

	mu      sync.Mutex
	packets [][]byte
	drop    int
	silent  bool
	replies int

	closeOnce sync.Once
	done      chan struct{}
}

// NewFakeDevice starts a device on 127.0.0.1 and closes it when the test ends.
func NewFakeDevice(t testing.TB) *FakeDevice {
	t.Helper()

	conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	if err != nil {
		t.Fatalf("fake device listen: %v", err)
	}

	d := &FakeDevice{conn: conn, done: make(chan struct{})}
	go d.serve()
	t.Cleanup(d.Close)
	return d
}

// Addr returns the host:port the device listens on
func (d *FakeDevice) Addr() string {
	return d.conn.LocalAddr().String()
}

// DropReplies makes the device ignore the next n control packets
func (d *FakeDevice) DropReplies(n int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.drop = n
}

// SetSilent stops (or resumes) all replies
func (d *FakeDevice) SetSilent(silent bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.silent = silent
}

// Packets returns a copy of every packet received so far
func (d *FakeDevice) Packets() [][]byte {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([][]byte, len(d.packets))
	for i, p := range d.packets {
		out[i] = append([]byte(nil), p...)
	}
	return out
}

// PacketsWithOpcode returns the received packets whose first byte is op
func (d *FakeDevice) PacketsWithOpcode(op byte) [][]byte {
	var out [][]byte
	for _, p := range d.Packets() {
		if len(p) > 0 && p[0] == op {
			out = append(out, p)
		}
	}
	return out
}

// Replies returns how many replies the device sent
func (d *FakeDevice) Replies() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.replies
}

// WaitForPackets blocks until at least n packets arrived and returns them.
func (d *FakeDevice) WaitForPackets(t testing.TB, n int, timeout time.Duration) [][]byte {
	t.Helper()

	deadline := time.Now().Add(timeout)
	for {
		packets := d.Packets()
		if len(packets) >= n {
			return packets
		}
		if time.Now().After(deadline) {
			t.Fatalf("timeout waiting for %d packets (got %d)", n, len(packets))
			return nil
		}
		time.Sleep(5 * time.Millisecond)
	}
}

// Close stops the device. Sessions talking to it start receiving ICMP
// port-unreachable errors.
func (d *FakeDevice) Close() {
	d.closeOnce.Do(func() {
		_ = d.conn.Close()
		<-d.done
	})
}

func (d *FakeDevice) serve() {
	defer close(d.done)

	buf := make([]byte, 64*1024)
	for {
		n, addr, err := d.conn.ReadFromUDP(buf)
		if err != nil {
			return
		}
		packet := append([]byte(nil), buf[:n]...)

		d.mu.Lock()
		d.packets = append(d.packets, packet)
		reply := n > 0 && packet[0] != dataOpcode && !d.silent
		if reply && d.drop > 0 {
			d.drop--
			reply = false
		}
		if reply {
			d.replies++
		}
		d.mu.Unlock()

		if reply {
			_, _ = d.conn.WriteToUDP([]byte{packet[0]}, addr)
		}
	}
}
