package main

import (
	"errors"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeListener struct {
	net.Listener
	name   string
	closed bool
}

func (l *fakeListener) Close() error {
	l.closed = true
	return nil
}

func TestSocketActivationPicksFirst(t *testing.T) {
	first := &fakeListener{name: "first"}
	second := &fakeListener{name: "second"}
	src := socketActivation{listeners: func() ([]net.Listener, error) {
		return []net.Listener{nil, first, second}, nil
	}}

	l, err := acquireListener(src, tcpBind{addr: "127.0.0.1:0"})
	require.NoError(t, err)
	assert.Same(t, first, l)
	assert.False(t, first.closed)
	assert.True(t, second.closed)
}

func TestSocketActivationError(t *testing.T) {
	boom := errors.New("bad LISTEN_FDS")
	src := socketActivation{listeners: func() ([]net.Listener, error) {
		return nil, boom
	}}

	_, err := acquireListener(src, tcpBind{addr: "127.0.0.1:0"})
	assert.ErrorIs(t, err, boom)
}

func TestFallsBackToTCP(t *testing.T) {
	none := socketActivation{listeners: func() ([]net.Listener, error) {
		return nil, nil
	}}

	for _, src := range []listenerSource{none, socketActivation{}} {
		l, err := acquireListener(src, tcpBind{addr: "127.0.0.1:0"})
		require.NoError(t, err)
		assert.Equal(t, "tcp", l.Addr().Network())
		l.Close()
	}
}

func TestNoListener(t *testing.T) {
	_, err := acquireListener(socketActivation{})
	assert.EqualError(t, err, "no listener available")
}
