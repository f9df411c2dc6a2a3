package main

import (
	"errors"
	"net"
)

// listenerSource is one way of getting the socket the server accepts on. A
// source with nothing to offer returns a nil listener and a nil error.
type listenerSource interface {
	Listen() (net.Listener, error)
}

// socketActivation takes over a socket passed in by a supervisor (systemd,
// systemfd) through LISTEN_FDS, so the process can restart without dropping
// connections.
type socketActivation struct {
	listeners func() ([]net.Listener, error)
}

func (s socketActivation) Listen() (net.Listener, error) {
	if s.listeners == nil {
		return nil, nil
	}
	ls, err := s.listeners()
	if err != nil {
		return nil, err
	}
	var picked net.Listener
	for _, l := range ls {
		if l == nil {
			continue
		}
		if picked == nil {
			picked = l
			continue
		}
		l.Close()
	}
	return picked, nil
}

// tcpBind binds a fresh socket on addr.
type tcpBind struct {
	addr string
}

func (b tcpBind) Listen() (net.Listener, error) {
	return net.Listen("tcp", b.addr)
}

// acquireListener returns the listener of the first source that has one.
func acquireListener(sources ...listenerSource) (net.Listener, error) {
	for _, src := range sources {
		l, err := src.Listen()
		if err != nil {
			return nil, err
		}
		if l != nil {
			return l, nil
		}
	}
	return nil, errors.New("no listener available")
}
