package netpeer

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"grapple-arena/internal/logger"
	"grapple-arena/internal/protocol"
)

const (
	writeWait      = 10 * time.Second
	maxMessageSize = 64 * 1024 // SDP offers are a few KB
	sendBufSize    = 256
)

var (
	ErrSendBufferFull = errors.New("signal send buffer full")
	errSignalClosed   = errors.New("signal connection closed")
)

// SignalConn is the participant's persistent connection to the relay
type SignalConn struct {
	conn *websocket.Conn
	send chan []byte
	log  *logger.Logger

	closeOnce sync.Once
	done      chan struct{}
}

// DialSignal connects to the relay's websocket endpoint and starts the write pump
func DialSignal(ctx context.Context, url string, log *logger.Logger) (*SignalConn, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, err
	}
	s := &SignalConn{
		conn: conn,
		send: make(chan []byte, sendBufSize),
		log:  logger.OrDefault(log),
		done: make(chan struct{}),
	}
	go s.writePump()
	return s, nil
}

// Send queues a relay message. It never blocks.
func (s *SignalConn) Send(t string, payload any) error {
	b, err := protocol.Encode(t, payload)
	if err != nil {
		return err
	}
	select {
	case <-s.done:
		return errSignalClosed
	default:
	}
	select {
	case s.send <- b:
		return nil
	default:
		return ErrSendBufferFull
	}
}

// ReadLoop hands every relay message to handle until the connection ends. It returns
// nil after a clean close.
func (s *SignalConn) ReadLoop(handle func([]byte)) error {
	defer s.Close()
	s.conn.SetReadLimit(maxMessageSize)
	for {
		_, message, err := s.conn.ReadMessage()
		if err != nil {
			select {
			case <-s.done:
				return nil
			default:
			}
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				return err
			}
			return nil
		}
		handle(message)
	}
}

func (s *SignalConn) writePump() {
	defer s.conn.Close()
	for {
		select {
		case message := <-s.send:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				s.log.Printf("signal write: %v", err)
				s.Close()
				return
			}
		case <-s.done:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			s.flush()
			s.conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}

// flush writes whatever was queued before Close, such as leave notices
func (s *SignalConn) flush() {
	for {
		select {
		case message := <-s.send:
			if err := s.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		default:
			return
		}
	}
}

// Close ends the connection
func (s *SignalConn) Close() {
	s.closeOnce.Do(func() { close(s.done) })
}

// Done is closed once the connection has ended
func (s *SignalConn) Done() <-chan struct{} {
	return s.done
}
