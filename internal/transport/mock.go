package transport

import (
	"context"
	"net"
	"sync"

	"github.com/joshuafuller/linkbeacon/internal/errors"
)

// Sent is a packet captured by MockTransport.
type Sent struct {
	Packet []byte
	Dest   net.Addr
}

// MockTransport is an in-memory Transport for tests.
type MockTransport struct {
	mu      sync.Mutex
	sent    []Sent
	sendErr error

	inbound   chan []byte
	closed    chan struct{}
	closeOnce sync.Once
}

var _ Transport = (*MockTransport)(nil)

// NewMockTransport returns an open mock.
func NewMockTransport() *MockTransport {
	return &MockTransport{
		inbound: make(chan []byte, 16),
		closed:  make(chan struct{}),
	}
}

func (m *MockTransport) Send(ctx context.Context, packet []byte, dest net.Addr) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sendErr != nil {
		return m.sendErr
	}
	m.sent = append(m.sent, Sent{Packet: append([]byte(nil), packet...), Dest: dest})
	return nil
}

func (m *MockTransport) Receive(ctx context.Context) ([]byte, net.Addr, int, error) {
	select {
	case pkt := <-m.inbound:
		return pkt, &net.UDPAddr{IP: net.IPv4(192, 168, 1, 99), Port: 5353}, 1, nil
	case <-m.closed:
		return nil, nil, 0, &errors.NetworkError{Operation: "receive", Err: errors.ErrClosed}
	case <-ctx.Done():
		return nil, nil, 0, &errors.NetworkError{Operation: "receive", Err: ctx.Err()}
	}
}

func (m *MockTransport) Close() error {
	m.closeOnce.Do(func() { close(m.closed) })
	return nil
}

// Inject queues a packet for Receive.
func (m *MockTransport) Inject(packet []byte) {
	m.inbound <- packet
}

// Sent returns a copy of every packet sent so far.
func (m *MockTransport) Sent() []Sent {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Sent(nil), m.sent...)
}

// Reset forgets captured packets.
func (m *MockTransport) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = nil
}

// SetSendError makes every Send fail with err; nil restores success.
func (m *MockTransport) SetSendError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sendErr = err
}
