package codec

import (
	"sync"

	"github.com/wippyai/capnp-layout/wire"
)

const (
	poolInitBytes = 512
	// buffers grown past this are dropped rather than pooled
	poolMaxBytes = 1 << 20
)

var bufferPool = sync.Pool{
	New: func() any {
		return wire.NewBuffer(poolInitBytes)
	},
}

func getBuffer() *wire.Buffer {
	return bufferPool.Get().(*wire.Buffer)
}

func putBuffer(b *wire.Buffer) {
	if b == nil || cap(b.Bytes()) > poolMaxBytes {
		return
	}
	b.Reset()
	bufferPool.Put(b)
}
