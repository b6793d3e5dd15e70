package transport

import (
	"fmt"
	"net"
	"time"
)

// DecodeError wraps a malformed-datagram error so callers can tell it
// apart from a fatal socket error (spec.md §7: malformed datagrams are
// dropped and logged; only socket errors are fatal).
type DecodeError struct {
	Err error
}

func (e *DecodeError) Error() string { return fmt.Sprintf("raftkv: malformed datagram: %v", e.Err) }
func (e *DecodeError) Unwrap() error { return e.Err }

// UDPConn is a PacketConn backed by a real UDP socket. Every datagram is
// a single JSON object; malformed datagrams are dropped by the caller
// (Recv reports them as a *DecodeError, so the loop can log-and-continue per
// spec.md §7's "malformed inbound datagram: dropped, logged").
//
// spec.md §6's CLI row gives replicas only bare ids for their peers, no
// host:port pairs, so this adapter resolves a peer id to an address
// itself: a peer's id doubles as its UDP port on localhost, the same
// convention used throughout the pack's MIT/NTHU-style labs where the
// "port" and "id" positional arguments line up one-to-one
// (xapon-raft, Markz2z-MIT6.824, onlyyao-mit-6.824-2017 all take
// port+id pairs per server). Addresses for ids other than localhost
// ports can be supplied explicitly via AddPeer for non-local deployments.
type UDPConn struct {
	conn  *net.UDPConn
	buf   []byte
	peers map[string]*net.UDPAddr
}

// ListenUDP opens a UDP socket on the given port, ready to exchange
// raftkv datagrams. Peer ids default to "peer id == localhost UDP port";
// call AddPeer to override for a specific id.
func ListenUDP(port int) (*UDPConn, error) {
	addr := &net.UDPAddr{Port: port}
	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("raftkv: listen udp :%d: %w", port, err)
	}
	return &UDPConn{conn: conn, buf: make([]byte, 64*1024), peers: make(map[string]*net.UDPAddr)}, nil
}

// AddPeer registers an explicit address for a peer id, overriding the
// "id is a localhost port" default.
func (u *UDPConn) AddPeer(id string, addr *net.UDPAddr) {
	u.peers[id] = addr
}

// SeedPeers resolves and registers the cluster's fixed peer ids up
// front, so a Broadcast send (e.g. the startup "hello") has somewhere
// to go before any datagram has been received from them.
func (u *UDPConn) SeedPeers(ids []string) error {
	for _, id := range ids {
		addr, err := u.resolve(id)
		if err != nil {
			return err
		}
		u.peers[id] = addr
	}
	return nil
}

func (u *UDPConn) resolve(id string) (*net.UDPAddr, error) {
	if addr, ok := u.peers[id]; ok {
		return addr, nil
	}
	addr, err := net.ResolveUDPAddr("udp", fmt.Sprintf("127.0.0.1:%s", id))
	if err != nil {
		return nil, fmt.Errorf("raftkv: resolve peer %q: %w", id, err)
	}
	return addr, nil
}

func (u *UDPConn) Send(m Message) error {
	b, err := Encode(m)
	if err != nil {
		return fmt.Errorf("raftkv: encode message: %w", err)
	}

	if m.Dst == Broadcast {
		for id := range u.peers {
			addr, err := u.resolve(id)
			if err != nil {
				continue
			}
			u.conn.WriteToUDP(b, addr)
		}
		return nil
	}

	addr, err := u.resolve(m.Dst)
	if err != nil {
		return err
	}
	_, err = u.conn.WriteToUDP(b, addr)
	return err
}

func (u *UDPConn) Recv(timeout time.Duration) (Message, bool, error) {
	if err := u.conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		return Message{}, false, fmt.Errorf("raftkv: set read deadline: %w", err)
	}

	n, from, err := u.conn.ReadFromUDP(u.buf)
	if err != nil {
		if ne, ok := err.(net.Error); ok && ne.Timeout() {
			return Message{}, false, nil
		}
		return Message{}, false, fmt.Errorf("raftkv: read datagram: %w", err)
	}

	m, err := Decode(u.buf[:n])
	if err != nil {
		return Message{}, false, &DecodeError{Err: err}
	}

	// Learn the sender's address so future replies (e.g. to a client
	// whose id is not one of the fixed peer ids) can be routed back
	// without guessing a port from the id alone.
	if m.Src != "" {
		u.peers[m.Src] = from
	}

	return m, true, nil
}

func (u *UDPConn) Close() error {
	return u.conn.Close()
}
