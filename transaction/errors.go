// Copyright (c) 2025 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package transaction

import (
	"errors"
	"fmt"
)

var (
	// ErrTransport matches every *TransportError.
	ErrTransport = errors.New("transaction: transport error")
	// ErrInvalidResponse is returned when a reply arrived but failed
	// verification or decoding. The underlying codec error is wrapped.
	ErrInvalidResponse = errors.New("transaction: invalid response")
	// ErrTimeout is returned when the port reported no data before any
	// byte of the reply arrived.
	ErrTimeout = errors.New("transaction: no response")
	// ErrBufferExhausted is returned when the reply does not fit the
	// accumulation buffer.
	ErrBufferExhausted = errors.New("transaction: reply exceeds buffer capacity")
	// ErrEchoMismatch is returned by EchoVerifier when a write reply is not
	// an echo of the request.
	ErrEchoMismatch = errors.New("transaction: reply does not echo request")
)

// TransportError is a fatal error reported by the port while writing the
// request or reading the reply.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transaction: %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() []error {
	return []error{ErrTransport, e.Err}
}
