// Copyright (C) 2022 Sneller, Inc.
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program.  If not, see <http://www.gnu.org/licenses/>.

// Package schedlog implements the SAVE_SCHEDULE dump path (spec §6):
// an append-only log of emitted schedules, each record
// zstd-compressed and content-digested, for offline inspection or
// replay tooling. It never participates in scheduling itself.
package schedlog

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"sort"

	"golang.org/x/crypto/blake2b"

	"github.com/klauspost/compress/zstd"

	"github.com/kernelsched/fusion/ir"
	"github.com/kernelsched/fusion/st"
)

// VarBinding is the flattened, deterministically-ordered form of one
// st.VarVals entry, suitable for JSON encoding (st.VarVals itself is
// keyed by *st.Variable, which JSON cannot marshal as a map key).
type VarBinding struct {
	Name  string
	Min   int64
	Max   int64
	Value int64
}

// Record is one decoded SAVE_SCHEDULE entry.
type Record struct {
	Items   []*ir.ScheduleItem
	VarVals []VarBinding
}

type payload struct {
	Items   []*ir.ScheduleItem
	VarVals []VarBinding
}

// digestSize is the length of the blake2b-256 content digest
// prepended to each record, grounded on the content-hashing idiom in
// ion/blockfmt/index.go.
const digestSize = 32

// Writer appends length-prefixed, zstd-compressed, content-digested
// schedule dumps to an underlying stream (spec §6 SAVE_SCHEDULE),
// grounded on compr/compression.go's compressor-registry pattern
// (here fixed to zstd, since SAVE_SCHEDULE names no algorithm choice).
type Writer struct {
	w   io.Writer
	enc *zstd.Encoder
}

// NewWriter constructs a Writer appending to w.
func NewWriter(w io.Writer) (*Writer, error) {
	enc, err := zstd.NewWriter(nil)
	if err != nil {
		return nil, fmt.Errorf("schedlog: %w", err)
	}
	return &Writer{w: w, enc: enc}, nil
}

// Append encodes one (schedule, var bindings) pair as a new record.
func (w *Writer) Append(items []*ir.ScheduleItem, vars st.VarVals) error {
	bindings := flattenVarVals(vars)
	raw, err := json.Marshal(payload{Items: items, VarVals: bindings})
	if err != nil {
		return fmt.Errorf("schedlog: encoding record: %w", err)
	}
	compressed := w.enc.EncodeAll(raw, nil)

	digest := blake2b.Sum256(compressed)

	var header [8 + digestSize]byte
	binary.LittleEndian.PutUint64(header[:8], uint64(len(compressed)))
	copy(header[8:], digest[:])

	if _, err := w.w.Write(header[:]); err != nil {
		return fmt.Errorf("schedlog: writing record header: %w", err)
	}
	if _, err := w.w.Write(compressed); err != nil {
		return fmt.Errorf("schedlog: writing record body: %w", err)
	}
	return nil
}

// Close releases the Writer's compressor. The underlying stream is
// the caller's to close.
func (w *Writer) Close() error {
	return w.enc.Close()
}

func flattenVarVals(vars st.VarVals) []VarBinding {
	out := make([]VarBinding, 0, len(vars))
	for v, val := range vars {
		out = append(out, VarBinding{Name: v.Name, Min: v.Min, Max: v.Max, Value: val})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Reader reads back records appended by a Writer.
type Reader struct {
	r   io.Reader
	dec *zstd.Decoder
}

// NewReader constructs a Reader over r.
func NewReader(r io.Reader) (*Reader, error) {
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("schedlog: %w", err)
	}
	return &Reader{r: r, dec: dec}, nil
}

// Next decodes the next record, returning io.EOF once the stream is
// exhausted.
func (r *Reader) Next() (*Record, error) {
	var header [8 + digestSize]byte
	if _, err := io.ReadFull(r.r, header[:]); err != nil {
		if err == io.ErrUnexpectedEOF {
			return nil, fmt.Errorf("schedlog: truncated record header")
		}
		return nil, err
	}
	n := binary.LittleEndian.Uint64(header[:8])
	wantDigest := header[8:]

	compressed := make([]byte, n)
	if _, err := io.ReadFull(r.r, compressed); err != nil {
		return nil, fmt.Errorf("schedlog: truncated record body: %w", err)
	}

	gotDigest := blake2b.Sum256(compressed)
	if !bytes.Equal(gotDigest[:], wantDigest) {
		return nil, fmt.Errorf("schedlog: record failed content digest check")
	}

	raw, err := r.dec.DecodeAll(compressed, nil)
	if err != nil {
		return nil, fmt.Errorf("schedlog: decompressing record: %w", err)
	}

	var p payload
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("schedlog: decoding record: %w", err)
	}
	return &Record{Items: p.Items, VarVals: p.VarVals}, nil
}

// Close releases the Reader's decompressor. The underlying stream is
// the caller's to close.
func (r *Reader) Close() error {
	r.dec.Close()
	return nil
}
