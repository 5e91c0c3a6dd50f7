package transport

import (
	"sync"

	"github.com/joshuafuller/linkbeacon/internal/protocol"
)

var bufferPool = sync.Pool{
	New: func() interface{} {
		buf := make([]byte, protocol.ReceiveBufferSize)
		return &buf
	},
}

// GetBuffer returns a receive buffer from the pool.
func GetBuffer() *[]byte {
	return bufferPool.Get().(*[]byte)
}

// PutBuffer returns a buffer obtained from GetBuffer.
func PutBuffer(buf *[]byte) {
	bufferPool.Put(buf)
}
