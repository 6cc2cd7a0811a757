// Package tcp is a loopback-friendly substitute RFCOMM transport, carrying
// raw AT bytes over a plain TCP socket instead of a real RFCOMM channel.
// It exists for interactive end-to-end testing of the hfp package (see
// cmd/hfpctl), the same role a TCP-framed substitute transport plays in
// place of a real serial or RFCOMM link.
package tcp

import (
	"net"
	"sync"

	"github.com/zb3/gofp/transport"
)

// Listener accepts inbound TCP connections and treats each one as an
// RFCOMM channel opening on chanNr.
type Listener struct {
	ln      net.Listener
	chanNr  uint8
	handler transport.RFCOMMHandler

	mu      sync.Mutex
	conns   map[transport.RFCOMMCID]net.Conn
	nextCID transport.RFCOMMCID
}

// Listen starts accepting connections on addr (e.g. "localhost:8000").
func Listen(addr string, chanNr uint8, handler transport.RFCOMMHandler) (*Listener, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	l := &Listener{
		ln:      ln,
		chanNr:  chanNr,
		handler: handler,
		conns:   make(map[transport.RFCOMMCID]net.Conn),
		nextCID: 1,
	}
	return l, nil
}

// AcceptLoop accepts connections until the listener is closed. Run it in
// its own goroutine.
func (l *Listener) AcceptLoop() {
	for {
		conn, err := l.ln.Accept()
		if err != nil {
			return
		}
		l.mu.Lock()
		cid := l.nextCID
		l.nextCID++
		l.conns[cid] = conn
		l.mu.Unlock()

		var addr transport.Address
		if tcpAddr, ok := conn.RemoteAddr().(*net.TCPAddr); ok {
			copy(addr[:], tcpAddr.IP.To4())
		}
		l.handler.Opened(cid, addr, l.chanNr)
		go l.readLoop(cid, conn)
	}
}

func (l *Listener) readLoop(cid transport.RFCOMMCID, conn net.Conn) {
	buf := make([]byte, 256)
	for {
		n, err := conn.Read(buf)
		if n > 0 {
			l.handler.Data(cid, append([]byte(nil), buf[:n]...))
		}
		if err != nil {
			l.mu.Lock()
			delete(l.conns, cid)
			l.mu.Unlock()
			l.handler.Closed(cid)
			return
		}
	}
}

// Send implements transport.RFCOMM.
func (l *Listener) Send(cid transport.RFCOMMCID, data []byte) error {
	l.mu.Lock()
	conn, ok := l.conns[cid]
	l.mu.Unlock()
	if !ok {
		return net.ErrClosed
	}
	_, err := conn.Write(data)
	return err
}

// CanSend implements transport.RFCOMM.
func (l *Listener) CanSend(cid transport.RFCOMMCID) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.conns[cid]
	return ok
}

// Close stops accepting new connections and closes every open one.
func (l *Listener) Close() error {
	l.mu.Lock()
	for _, c := range l.conns {
		c.Close()
	}
	l.mu.Unlock()
	return l.ln.Close()
}

// Dial connects out to addr and treats the resulting connection as one
// RFCOMM channel, for the HF-role side of an end-to-end test.
func Dial(addr string, chanNr uint8, handler transport.RFCOMMHandler) (*Listener, transport.RFCOMMCID, error) {
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		return nil, 0, err
	}
	l := &Listener{conns: make(map[transport.RFCOMMCID]net.Conn), chanNr: chanNr, handler: handler, nextCID: 2}
	cid := transport.RFCOMMCID(1)
	l.conns[cid] = conn
	var peer transport.Address
	handler.Opened(cid, peer, chanNr)
	go l.readLoop(cid, conn)
	return l, cid, nil
}
