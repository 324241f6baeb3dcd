package wasmmem

import (
	"github.com/tetratelabs/wazero/api"

	"github.com/wippyai/capnp-layout/errors"
	"github.com/wippyai/capnp-layout/wire"
)

// Message builds a framed single-segment message directly in guest
// memory: the stream header followed by the segment the Builder grows.
type Message struct {
	*wire.Builder
	arena  *Arena
	header uint32
}

// NewMessage reserves the stream header in arena and returns a message
// whose segment starts right after it.
func NewMessage(arena *Arena) (*Message, error) {
	header, err := arena.Alloc(8, 8)
	if err != nil {
		return nil, errors.AllocationFailed(errors.PhaseEncode, 8, err)
	}
	return &Message{
		Builder: wire.NewBuilderIn(arena, arena),
		arena:   arena,
		header:  header,
	}, nil
}

// Finish writes the stream header and returns the address and byte
// length of the framed message.
func (m *Message) Finish() (ptr, length uint32, err error) {
	if err := m.arena.WriteU32(m.header, 0); err != nil {
		return 0, 0, err
	}
	if err := m.arena.WriteU32(m.header+4, m.Words()); err != nil {
		return 0, 0, err
	}
	return m.header, 8 + m.Words()*8, nil
}

// Segment views the framed message of length bytes at ptr in guest
// memory without copying it out.
func Segment(mem api.Memory, ptr, length uint32) (*wire.Segment, error) {
	if length < 8 {
		return nil, errors.Truncated(errors.PhaseDecode, 8, int(length))
	}
	header, ok := mem.Read(ptr, 8)
	if !ok {
		return nil, errors.OutOfBounds(errors.PhaseDecode, nil, uint64(ptr)+8, uint64(mem.Size()))
	}
	words, err := wire.HeaderWords(header)
	if err != nil {
		return nil, err
	}
	if uint64(words)*8+8 > uint64(length) {
		return nil, errors.Truncated(errors.PhaseDecode, int(uint64(words)*8+8), int(length))
	}
	if uint64(ptr)+uint64(length) > uint64(mem.Size()) {
		return nil, errors.OutOfBounds(errors.PhaseDecode, nil, uint64(ptr)+uint64(length), uint64(mem.Size()))
	}
	return wire.NewSegment(Wrap(mem), ptr+8, words), nil
}
