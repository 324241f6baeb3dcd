package codec

import (
	"bytes"
	"encoding/binary"

	"github.com/wippyai/capnp-layout/catalog"
	"github.com/wippyai/capnp-layout/errors"
	"github.com/wippyai/capnp-layout/layout"
	"github.com/wippyai/capnp-layout/schema"
	"github.com/wippyai/capnp-layout/wire"
)

type defaultEncoder struct{}

func (defaultEncoder) EncodeDefault(src layout.StructSource, f *layout.Field) ([]byte, error) {
	return EncodeDefault(src, f)
}

// EncodeDefault encodes the default literal of pointer field f as a
// standalone message whose root pointer is the default object. It
// returns nil for fields without a default.
func EncodeDefault(src layout.StructSource, f *layout.Field) ([]byte, error) {
	if f.Default == nil {
		return nil, nil
	}
	if !f.IsPointer() {
		return nil, errors.InvalidInput(errors.PhaseDefault, "field "+f.DisplayPath()+" is not a pointer")
	}
	b := wire.NewBuilder()
	root, err := b.Allocate(1)
	if err != nil {
		return nil, err
	}
	opts := Options{}.withDefaults()
	w := &writer{
		src: src,
		b:   b,
		t:   wire.NewTraversal(opts.TraversalLimitWords, opts.MaxDepth),
		max: opts.MaxDepth,
	}
	if err := w.pointer(root, f.Type, f.Default, f.Path, 1); err != nil {
		return nil, err
	}
	return b.Message()
}

// IsDefault reports whether writing v to f would leave f's storage
// untouched: zero bits for a scalar, a null pointer otherwise.
func IsDefault(f *layout.Field, v schema.Value) (bool, error) {
	switch {
	case f.IsVoid():
		return true, nil
	case f.IsPointer():
		return f.DefaultBytes != nil && schema.Equal(v, f.Default), nil
	}
	bits, err := scalarBits(f.Type, v, f.Path)
	if err != nil {
		return false, err
	}
	return bits == f.DefaultBits, nil
}

// IsDefaultBytes compares a pointer field's stored object against its
// encoded default. Both are standalone messages in the form EncodeDefault
// produces. A null root always reads as the default.
func IsDefaultBytes(stored, defaultBytes []byte) (bool, error) {
	seg, err := wire.Unframe(stored)
	if err != nil {
		return false, err
	}
	if len(seg) < 8 {
		return false, errors.Truncated(errors.PhaseDefault, 8, len(seg))
	}
	if binary.LittleEndian.Uint64(seg) == 0 {
		return true, nil
	}
	return defaultBytes != nil && bytes.Equal(stored, defaultBytes), nil
}

// DefaultValue is the value a reader sees for f when the message leaves
// it unset.
func DefaultValue(f *layout.Field) schema.Value {
	switch {
	case f.IsVoid():
		return schema.Void{}
	case f.IsPointer():
		return f.Default
	}
	return catalog.ScalarValue(f.Type, f.DefaultBits)
}
