package transport

import (
	"context"
	goerrors "errors"
	"net"
	"testing"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joshuafuller/linkbeacon/internal/errors"
	"github.com/joshuafuller/linkbeacon/internal/protocol"
)

func logEntry() *log.Entry {
	l := log.New()
	l.SetLevel(log.ErrorLevel)
	return log.NewEntry(l)
}

func TestDestinations(t *testing.T) {
	dests := Destinations(false, protocol.Port)
	require.Len(t, dests, 2)
	assert.Equal(t, "224.0.0.251:5353", dests[0].String())
	assert.Equal(t, "255.255.255.255:5353", dests[1].String())

	dests = Destinations(true, protocol.Port)
	require.Len(t, dests, 3)
	assert.Equal(t, "[ff02::fb]:5353", dests[2].String())
}

func TestBufferPool(t *testing.T) {
	buf := GetBuffer()
	assert.Len(t, *buf, protocol.ReceiveBufferSize)
	PutBuffer(buf)
}

func TestMockTransport(t *testing.T) {
	m := NewMockTransport()
	ctx := context.Background()

	require.NoError(t, m.Send(ctx, []byte{1, 2}, Destinations(false, protocol.Port)[0]))
	sent := m.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, []byte{1, 2}, sent[0].Packet)

	m.SetSendError(goerrors.New("down"))
	assert.Error(t, m.Send(ctx, []byte{3}, nil))
	m.SetSendError(nil)
	m.Reset()
	assert.Empty(t, m.Sent())

	m.Inject([]byte{9})
	pkt, src, idx, err := m.Receive(ctx)
	require.NoError(t, err)
	assert.Equal(t, []byte{9}, pkt)
	assert.NotNil(t, src)
	assert.Equal(t, 1, idx)

	tctx, cancel := context.WithTimeout(ctx, 10*time.Millisecond)
	defer cancel()
	_, _, _, err = m.Receive(tctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	require.NoError(t, m.Close())
	require.NoError(t, m.Close())
	_, _, _, err = m.Receive(ctx)
	assert.ErrorIs(t, err, errors.ErrClosed)
}

func TestUDPTransport_UnknownInterface(t *testing.T) {
	_, err := NewUDPTransport(context.Background(), nil, Config{Interfaces: []string{"does-not-exist0"}})
	var netErr *errors.NetworkError
	require.True(t, goerrors.As(err, &netErr))
	assert.Equal(t, "lookup interface", netErr.Operation)
}

func TestUDPTransport_SendUnsupportedAddress(t *testing.T) {
	tr := &UDPTransport{done: make(chan struct{})}
	err := tr.Send(context.Background(), []byte{0}, &net.IPAddr{IP: net.IPv4(1, 2, 3, 4)})
	require.Error(t, err)

	close(tr.done)
	err = tr.Send(context.Background(), []byte{0}, &net.UDPAddr{})
	assert.ErrorIs(t, err, errors.ErrClosed)
}

func TestOpen_GivesUp(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	_, err := Open(ctx, logEntry(), Config{Interfaces: []string{"does-not-exist0"}}, time.Second)
	require.Error(t, err)
}

func TestReadLoop_RetriesWithBackoff(t *testing.T) {
	tr := &UDPTransport{log: logEntry(), packets: make(chan inbound, 1), done: make(chan struct{})}

	var calls []time.Time
	read := func(buf []byte) (int, int, net.Addr, error) {
		calls = append(calls, time.Now())
		if len(calls) <= 3 {
			return 0, 0, nil, goerrors.New("network is down")
		}
		if len(calls) > 4 {
			<-tr.done
			return 0, 0, nil, net.ErrClosed
		}
		return copy(buf, "pkt"), 2, &net.UDPAddr{IP: net.IPv4(10, 0, 0, 2), Port: 5353}, nil
	}

	tr.wg.Add(1)
	go tr.readLoop(read)

	select {
	case in := <-tr.packets:
		assert.Equal(t, []byte("pkt"), in.data)
		assert.Equal(t, 2, in.ifIndex)
	case <-time.After(5 * time.Second):
		t.Fatal("no packet after transient read errors")
	}
	close(tr.done)
	tr.wg.Wait()

	require.GreaterOrEqual(t, len(calls), 4)
	// three randomized delays of at least half of 20, 30 and 45 ms
	assert.GreaterOrEqual(t, calls[3].Sub(calls[0]), 40*time.Millisecond)
}

func TestReadLoop_CloseInterruptsRetry(t *testing.T) {
	tr := &UDPTransport{log: logEntry(), packets: make(chan inbound, 1), done: make(chan struct{})}

	failed := make(chan struct{}, 1)
	read := func([]byte) (int, int, net.Addr, error) {
		select {
		case failed <- struct{}{}:
		default:
		}
		return 0, 0, nil, goerrors.New("persistent failure")
	}

	tr.wg.Add(1)
	go tr.readLoop(read)
	<-failed
	close(tr.done)

	stopped := make(chan struct{})
	go func() {
		tr.wg.Wait()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-time.After(time.Second):
		t.Fatal("read loop kept retrying after close")
	}
}
