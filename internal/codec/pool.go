package codec

import "sync"

// maxMessageSize bounds a single pooled buffer: header + bitmap fields +
// four tech blocks' worth of config, comfortably over any real message.
const maxMessageSize = 1024

// PacketPool reuses fixed-size byte buffers across Marshal calls, mirroring
// the control-packet pooling idiom this codec's transport layer is built
// on. Buffers returned by Get are always maxMessageSize and must be reset
// to a zero length by the caller before reuse.
type PacketPool struct {
	pool sync.Pool
}

// NewPacketPool creates an empty pool.
func NewPacketPool() *PacketPool {
	return &PacketPool{
		pool: sync.Pool{
			New: func() any {
				buf := make([]byte, maxMessageSize)
				return &buf
			},
		},
	}
}

// Get returns a buffer of length maxMessageSize, zeroed only at
// allocation time -- callers must not assume stale contents are clean.
func (p *PacketPool) Get() []byte {
	bufp := p.pool.Get().(*[]byte)
	return *bufp
}

// Put returns buf to the pool for reuse. buf must have been obtained from
// Get and not resliced beyond maxMessageSize capacity.
func (p *PacketPool) Put(buf []byte) {
	if cap(buf) != maxMessageSize {
		return
	}
	buf = buf[:maxMessageSize]
	p.pool.Put(&buf)
}
