package wire

import (
	"encoding/binary"
	"fmt"
	"io"

	"fortio.org/safecast"

	"github.com/wippyai/capnp-layout/errors"
)

// headerSize is the stream header of a single-segment message: the
// segment count minus one, then the segment size in words.
const headerSize = 8

// MaxMessageWords bounds what ReadMessage accepts from a stream.
const MaxMessageWords = 1 << 26

// Frame prefixes a segment with the single-segment stream header.
func Frame(seg []byte) ([]byte, error) {
	if len(seg)%8 != 0 {
		return nil, errors.InvalidInput(errors.PhaseEncode, fmt.Sprintf("segment of %d bytes is not word aligned", len(seg)))
	}
	words, err := safecast.Conv[uint32](len(seg) / 8)
	if err != nil {
		return nil, errors.Overflow(errors.PhaseEncode, nil, len(seg)/8, "uint32 segment size")
	}
	out := make([]byte, headerSize+len(seg))
	binary.LittleEndian.PutUint32(out[0:], 0)
	binary.LittleEndian.PutUint32(out[4:], words)
	copy(out[headerSize:], seg)
	return out, nil
}

// Unframe returns the segment of a single-segment stream message.
// Trailing bytes after the segment are ignored.
func Unframe(msg []byte) ([]byte, error) {
	if len(msg) < headerSize {
		return nil, errors.Truncated(errors.PhaseDecode, headerSize, len(msg))
	}
	words, err := HeaderWords(msg[:headerSize])
	if err != nil {
		return nil, err
	}
	need := headerSize + uint64(words)*8
	if uint64(len(msg)) < need {
		return nil, errors.Truncated(errors.PhaseDecode, int(need), len(msg))
	}
	return msg[headerSize:need], nil
}

// HeaderWords parses a stream header and returns the segment size in
// words. Messages with more than one segment are unsupported.
func HeaderWords(h []byte) (uint32, error) {
	if len(h) < headerSize {
		return 0, errors.Truncated(errors.PhaseDecode, headerSize, len(h))
	}
	if n := binary.LittleEndian.Uint32(h[0:]); n != 0 {
		return 0, errors.Unsupported(errors.PhaseDecode, fmt.Sprintf("message with %d segments", uint64(n)+1))
	}
	return binary.LittleEndian.Uint32(h[4:]), nil
}

// WriteMessage writes seg to w as a framed single-segment message.
func WriteMessage(w io.Writer, seg []byte) error {
	msg, err := Frame(seg)
	if err != nil {
		return err
	}
	_, err = w.Write(msg)
	return err
}

// ReadMessage reads one framed message from r and returns its segment.
func ReadMessage(r io.Reader) ([]byte, error) {
	var h [headerSize]byte
	if n, err := io.ReadFull(r, h[:]); err != nil {
		if err == io.EOF {
			return nil, err
		}
		return nil, errors.Truncated(errors.PhaseDecode, headerSize, n)
	}
	words, err := HeaderWords(h[:])
	if err != nil {
		return nil, err
	}
	if words > MaxMessageWords {
		return nil, errors.New(errors.PhaseDecode, errors.KindLimitExceeded).
			Detail("message of %d words exceeds %d", words, MaxMessageWords).
			Build()
	}
	seg := make([]byte, int(words)*8)
	if n, err := io.ReadFull(r, seg); err != nil {
		return nil, errors.Truncated(errors.PhaseDecode, len(seg), n)
	}
	return seg, nil
}
