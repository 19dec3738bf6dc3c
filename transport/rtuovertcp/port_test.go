// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.
package rtuovertcp

import (
	"bytes"
	"errors"
	"io"
	"net"
	"testing"
	"time"

	"github.com/ffutop/xypsu/transport"
)

func TestPort_RoundTrip(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer l.Close()

	req := []byte{0x01, 0x03, 0x00, 0x20, 0x00, 0x01, 0x85, 0xC0}
	resp := []byte{0x01, 0x03, 0x02, 0x56, 0x78, 0x87, 0xC6}

	done := make(chan error, 1)
	go func() {
		conn, err := l.Accept()
		if err != nil {
			done <- err
			return
		}
		defer conn.Close()
		buf := make([]byte, len(req))
		if _, err := io.ReadFull(conn, buf); err != nil {
			done <- err
			return
		}
		if !bytes.Equal(buf, req) {
			t.Errorf("bridge received % X", buf)
		}
		_, err = conn.Write(resp)
		done <- err
	}()

	p := New(l.Addr().String(), nil)
	p.ReadTimeout = 100 * time.Millisecond
	defer p.Close()

	if _, err := p.Write(req); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := <-done; err != nil {
		t.Fatalf("bridge: %v", err)
	}

	var got []byte
	buf := make([]byte, 16)
	for len(got) < len(resp) {
		n, err := p.Read(buf)
		if errors.Is(err, transport.ErrNoData) {
			continue
		}
		if err != nil {
			t.Fatalf("Read: %v", err)
		}
		got = append(got, buf[:n]...)
	}
	if !bytes.Equal(got, resp) {
		t.Errorf("got % X, want % X", got, resp)
	}
}

func TestPort_IdleReadIsNoData(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer l.Close()
	go func() {
		conn, err := l.Accept()
		if err != nil {
			return
		}
		time.Sleep(500 * time.Millisecond)
		conn.Close()
	}()

	p := New(l.Addr().String(), nil)
	p.ReadTimeout = 20 * time.Millisecond
	defer p.Close()

	n, err := p.Read(make([]byte, 8))
	if n != 0 || !errors.Is(err, transport.ErrNoData) {
		t.Fatalf("Read() = %d, %v, want ErrNoData", n, err)
	}
}

func TestPort_DialError(t *testing.T) {
	p := New("127.0.0.1:1", nil)
	p.dial = func(string, string, time.Duration) (net.Conn, error) {
		return nil, errors.New("connection refused")
	}
	if _, err := p.Write([]byte{0x01}); err == nil {
		t.Fatal("expected dial error")
	}
}
