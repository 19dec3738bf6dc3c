// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package trace

import (
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/google/uuid"

	"github.com/ffutop/xypsu/modbus/rtu"
	"github.com/ffutop/xypsu/transaction"
)

// FileTracer appends every traced frame to a file. It is safe for
// concurrent use.
type FileTracer struct {
	session string
	now     func() time.Time

	mu      sync.Mutex
	file    *os.File
	encoder *cbor.Encoder
	closed  bool
	err     error
}

var _ transaction.Tracer = (*FileTracer)(nil)

// NewFileTracer opens path for appending, creating it with mode 0644.
func NewFileTracer(path string) (*FileTracer, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return nil, err
	}
	return &FileTracer{
		session: uuid.New().String(),
		now:     time.Now,
		file:    f,
		encoder: newEncoder(f),
	}, nil
}

// SessionID returns the id stamped on every event of this tracer.
func (t *FileTracer) SessionID() string { return t.session }

// TraceFrame implements transaction.Tracer. The frame is copied. The first
// encoding error is kept and returned by Close; tracing never fails a
// transaction.
func (t *FileTracer) TraceFrame(dir transaction.Direction, unitID byte, frame []byte) {
	event := Event{
		Timestamp: t.now(),
		SessionID: t.session,
		Direction: dir,
		UnitID:    unitID,
		Frame:     append([]byte(nil), frame...),
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return
	}
	if err := t.encoder.Encode(event); err != nil && t.err == nil {
		t.err = err
	}
}

// Close closes the file. It is safe to call Close multiple times.
func (t *FileTracer) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return nil
	}
	t.closed = true
	return errors.Join(t.err, t.file.Close())
}

// Reader reads trace events from a file.
type Reader struct {
	file    *os.File
	decoder *cbor.Decoder
}

// NewReader opens a trace file.
func NewReader(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	return &Reader{file: f, decoder: newDecoder(f)}, nil
}

// Next returns the next event, or io.EOF at the end of the file.
func (r *Reader) Next() (Event, error) {
	var event Event
	if err := r.decoder.Decode(&event); err != nil {
		if errors.Is(err, io.EOF) {
			return Event{}, io.EOF
		}
		return Event{}, err
	}
	return event, nil
}

func (r *Reader) Close() error {
	return r.file.Close()
}

// Dump writes one line per event of r to w and returns the number of
// events written.
func Dump(w io.Writer, r *Reader) (int, error) {
	n := 0
	for {
		event, err := r.Next()
		if errors.Is(err, io.EOF) {
			return n, nil
		}
		if err != nil {
			return n, err
		}
		if _, err := fmt.Fprintln(w, Format(event)); err != nil {
			return n, err
		}
		n++
	}
}

// Format renders an event as a single line. Frames failing the CRC check
// are marked, which usually means an echo prefix or a corrupted reply.
func Format(e Event) string {
	status := "ok"
	if _, err := rtu.Decode(e.Frame); err != nil {
		status = "bad-crc"
	}
	return fmt.Sprintf("%s %.8s %s unit=%d %-7s %s",
		e.Timestamp.Format(time.RFC3339Nano), e.SessionID, e.Direction, e.UnitID, status, hex.EncodeToString(e.Frame))
}
