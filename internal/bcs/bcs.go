// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (C) 2026 aPlane Authors

// Package bcs is a minimal Binary Canonical Serialization encoder covering
// the shapes zkLogin signatures need: integers, byte vectors, strings and
// sequences. Lengths are ULEB128.
package bcs

import "encoding/binary"

// Encoder appends BCS values to an internal buffer.
type Encoder struct {
	buf []byte
}

// Len writes a ULEB128 length or enum tag.
func (e *Encoder) Len(n int) {
	e.buf = binary.AppendUvarint(e.buf, uint64(n))
}

// U8 writes a single byte.
func (e *Encoder) U8(v uint8) {
	e.buf = append(e.buf, v)
}

// U64 writes v little-endian.
func (e *Encoder) U64(v uint64) {
	e.buf = binary.LittleEndian.AppendUint64(e.buf, v)
}

// Bytes writes a length-prefixed byte vector.
func (e *Encoder) Bytes(b []byte) {
	e.Len(len(b))
	e.buf = append(e.buf, b...)
}

// String writes a length-prefixed UTF-8 string.
func (e *Encoder) String(s string) {
	e.Len(len(s))
	e.buf = append(e.buf, s...)
}

// Strings writes a vector of strings.
func (e *Encoder) Strings(ss []string) {
	e.Len(len(ss))
	for _, s := range ss {
		e.String(s)
	}
}

// Raw appends b without a length prefix.
func (e *Encoder) Raw(b []byte) {
	e.buf = append(e.buf, b...)
}

// Result returns the encoded bytes.
func (e *Encoder) Result() []byte {
	return e.buf
}
