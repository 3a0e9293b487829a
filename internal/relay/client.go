package relay

import (
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"grapple-arena/internal/protocol"
)

const (
	writeWait         = 10 * time.Second
	pongWait          = 60 * time.Second
	pingPeriod        = (pongWait * 9) / 10
	maxMessageSize    = 64 * 1024
	sendBufSize       = 256
	maxMessagesPerSec = 400 // a host relaying several players sends a few hundred
	maxNameLen        = 30
	maxModeLen        = 16
)

// Client is one participant's websocket connection to the relay
type Client struct {
	hub        *Hub
	conn       *websocket.Conn
	send       chan []byte
	id         int // guarded by hub.mu, 0 while unregistered
	sessionID  string
	remoteAddr string
	msgCount   int
	msgResetAt time.Time
}

func NewClient(hub *Hub, conn *websocket.Conn, remoteAddr string) *Client {
	return &Client{
		hub:        hub,
		conn:       conn,
		send:       make(chan []byte, sendBufSize),
		sessionID:  uuid.NewString(),
		remoteAddr: remoteAddr,
	}
}

// ReadPump reads messages from the WebSocket connection
func (c *Client) ReadPump() {
	defer func() {
		c.hub.TrackDisconnect(c.remoteAddr)
		c.hub.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.log.Printf("ws error: %v", err)
			}
			break
		}
		c.conn.SetReadDeadline(time.Now().Add(pongWait))

		now := time.Now()
		if now.After(c.msgResetAt) {
			c.msgCount = 0
			c.msgResetAt = now.Add(time.Second)
		}
		c.msgCount++
		if c.msgCount > maxMessagesPerSec {
			c.hub.log.Printf("rate limit exceeded for %s, disconnecting", c.remoteAddr)
			break
		}

		c.handleMessage(message)
	}
}

// WritePump writes messages to the WebSocket connection
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// Send encodes and queues a relay message
func (c *Client) Send(t string, payload any) {
	b, err := protocol.Encode(t, payload)
	if err != nil {
		c.hub.log.Printf("encode %s: %v", t, err)
		return
	}
	c.SendRaw(b)
}

// SendRaw queues pre-encoded bytes. Slow clients lose messages.
func (c *Client) SendRaw(data []byte) {
	defer func() { recover() }()
	select {
	case c.send <- data:
	default:
	}
}

// handleMessage routes one relay message. Malformed or unknown messages are logged
// and dropped.
func (c *Client) handleMessage(raw []byte) {
	env, err := protocol.DecodeEnvelope(raw)
	if err != nil {
		c.hub.log.Printf("%s: dropping message: %v", c.remoteAddr, err)
		return
	}

	switch env.Type {
	case protocol.RelayGetID:
		c.handleGetID()
	case protocol.RelayListGames:
		c.sendGames()
	case protocol.RelayPing:
		c.handlePing()
	case protocol.RelayRTCSignal, protocol.RelayPassthrough, protocol.RelayPassthroughSignal:
		c.forward(env, raw)
	case protocol.RelaySetGameVis:
		setField(c, env, func(p *participant, v bool) { p.public = v })
	case protocol.RelaySetName:
		setField(c, env, func(p *participant, v string) { p.name = truncate(v, maxNameLen) })
	case protocol.RelaySetPlayers:
		setField(c, env, func(p *participant, v int) { p.players = max(v, 0) })
	case protocol.RelaySetMode:
		setField(c, env, func(p *participant, v string) { p.mode = truncate(v, maxModeLen) })
	default:
		c.hub.log.Printf("%s: ignoring %q", c.remoteAddr, env.Type)
	}
}

func (c *Client) handleGetID() {
	id := c.hub.IDOf(c)
	if id == 0 {
		var err error
		if id, err = c.hub.Assign(c); err != nil {
			c.hub.log.Printf("%s: %v", c.remoteAddr, err)
			return
		}
	}
	c.Send(protocol.RelayGiveID, id)
}

func (c *Client) handlePing() {
	id, fresh, err := c.hub.Ping(c)
	switch {
	case err != nil:
		c.hub.log.Printf("%s: %v", c.remoteAddr, err)
	case fresh:
		c.hub.log.Printf("ping from unregistered %s, assigned %d", c.remoteAddr, id)
		c.Send(protocol.RelayGiveID, id)
	default:
		c.Send(protocol.RelayPong, nil)
	}
}

func (c *Client) sendGames() {
	c.Send(protocol.RelayGamesList, c.hub.GamesList())
}

// forward relays a signaling or passthrough message verbatim to data.dst
func (c *Client) forward(env protocol.Envelope, raw []byte) {
	route, err := decodeRouted(env)
	if err != nil {
		c.hub.log.Printf("%s: bad %s: %v", c.remoteAddr, env.Type, err)
		return
	}
	dst := route.Destination()
	// passthrough runs at game rate, only negotiation is recorded
	if env.Type != protocol.RelayPassthrough {
		c.hub.analytics.Track(EvtForward, c.hub.IDOf(c), c.sessionID, fmt.Sprintf("%s->%d", env.Type, dst))
	}
	if !c.hub.Forward(dst, raw) {
		c.hub.log.Printf("%s: %s to unknown id %d", c.remoteAddr, env.Type, dst)
	}
}

func decodeRouted(env protocol.Envelope) (protocol.Routed, error) {
	var (
		route protocol.Routed
		err   error
	)
	switch env.Type {
	case protocol.RelayRTCSignal:
		route, err = protocol.DecodePayload[protocol.RTCSignal](env)
	case protocol.RelayPassthrough:
		route, err = protocol.DecodePayload[protocol.Passthrough](env)
	case protocol.RelayPassthroughSignal:
		route, err = protocol.DecodePayload[protocol.PassthroughSignal](env)
	default:
		err = fmt.Errorf("%q is not routed", env.Type)
	}
	return route, err
}

// setField decodes the payload as T, applies it to the caller's registry entry and
// answers with the games list
func setField[T any](c *Client, env protocol.Envelope, apply func(p *participant, v T)) {
	v, err := protocol.DecodePayload[T](env)
	if err != nil {
		c.hub.log.Printf("%s: bad %s: %v", c.remoteAddr, env.Type, err)
		return
	}
	if !c.hub.update(c, func(p *participant) { apply(p, v) }) {
		c.hub.log.Printf("%s: %s before registering", c.remoteAddr, env.Type)
	}
	c.sendGames()
}

// truncate keeps the first n runes of s
func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}
