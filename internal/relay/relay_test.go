package relay

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/gorilla/websocket"

	"grapple-arena/internal/logger"
	"grapple-arena/internal/protocol"
)

// ---------- helpers ----------

type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *testClock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

// startTestServer spins up an httptest.Server with a running Hub and returns the
// server, its WebSocket URL, the hub and its clock.
func startTestServer(t *testing.T, cfg Config, analytics *Analytics) (*httptest.Server, string, *Hub, *testClock) {
	t.Helper()
	if cfg.PruneInterval == 0 {
		cfg.PruneInterval = time.Hour // tests prune by hand
	}
	hub := NewHub(cfg, analytics, logger.Discard())
	clk := &testClock{t: time.Unix(1000, 0)}
	hub.now = clk.now

	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)

	srv := httptest.NewServer(Routes(hub))
	t.Cleanup(func() {
		srv.Close()
		cancel()
	})
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	return srv, wsURL, hub, clk
}

func dialWS(t *testing.T, wsURL string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial WS: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func sendMsg(t *testing.T, conn *websocket.Conn, typ string, payload any) {
	t.Helper()
	b, err := protocol.Encode(typ, payload)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
		t.Fatalf("write WS: %v", err)
	}
}

func readRaw(t *testing.T, conn *websocket.Conn) []byte {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, raw, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read WS: %v", err)
	}
	return raw
}

func readEnvelope(t *testing.T, conn *websocket.Conn) protocol.Envelope {
	t.Helper()
	env, err := protocol.DecodeEnvelope(readRaw(t, conn))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	return env
}

// readType reads until a message of type typ arrives
func readType(t *testing.T, conn *websocket.Conn, typ string) protocol.Envelope {
	t.Helper()
	for i := 0; i < 20; i++ {
		if env := readEnvelope(t, conn); env.Type == typ {
			return env
		}
	}
	t.Fatalf("no %s message received", typ)
	return protocol.Envelope{}
}

func getID(t *testing.T, conn *websocket.Conn) int {
	t.Helper()
	sendMsg(t, conn, protocol.RelayGetID, nil)
	env := readType(t, conn, protocol.RelayGiveID)
	id, err := protocol.DecodePayload[int](env)
	if err != nil {
		t.Fatalf("give-id: %v", err)
	}
	return id
}

func readGames(t *testing.T, conn *websocket.Conn) []protocol.GameInfo {
	t.Helper()
	env := readType(t, conn, protocol.RelayGamesList)
	var games []protocol.GameInfo
	if err := json.Unmarshal(env.Data, &games); err != nil {
		t.Fatalf("games-list: %v", err)
	}
	return games
}

// ---------- tests ----------

func TestGetIDAssignsStableID(t *testing.T) {
	_, wsURL, _, _ := startTestServer(t, Config{}, nil)
	conn := dialWS(t, wsURL)
	id := getID(t, conn)
	if id < minID || id >= maxID {
		t.Errorf("id %d out of range", id)
	}
	if again := getID(t, conn); again != id {
		t.Errorf("get-id should return the same id, got %d then %d", id, again)
	}
}

func TestDistinctIDs(t *testing.T) {
	_, wsURL, _, _ := startTestServer(t, Config{}, nil)
	seen := map[int]bool{}
	for i := 0; i < 5; i++ {
		id := getID(t, dialWS(t, wsURL))
		if seen[id] {
			t.Fatalf("id %d handed out twice", id)
		}
		seen[id] = true
	}
}

func TestIndexShowsCount(t *testing.T) {
	srv, wsURL, _, _ := startTestServer(t, Config{}, nil)
	getID(t, dialWS(t, wsURL))
	getID(t, dialWS(t, wsURL))

	resp, err := http.Get(srv.URL + "/")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if string(body) != "Connected: 2" {
		t.Errorf("unexpected index %q", body)
	}
}

func TestPingPong(t *testing.T) {
	_, wsURL, _, _ := startTestServer(t, Config{}, nil)
	conn := dialWS(t, wsURL)
	getID(t, conn)
	sendMsg(t, conn, protocol.RelayPing, nil)
	if env := readEnvelope(t, conn); env.Type != protocol.RelayPong {
		t.Errorf("expected pong, got %s", env.Type)
	}
}

func TestForwardVerbatim(t *testing.T) {
	_, wsURL, _, _ := startTestServer(t, Config{}, nil)
	a, b := dialWS(t, wsURL), dialWS(t, wsURL)
	idA, idB := getID(t, a), getID(t, b)

	for _, typ := range []string{protocol.RelayRTCSignal, protocol.RelayPassthrough, protocol.RelayPassthroughSignal} {
		var payload any
		switch typ {
		case protocol.RelayRTCSignal:
			payload = protocol.RTCSignal{Src: idA, Dst: idB, MessageType: protocol.SignalOffer,
				SessionDescription: &protocol.SessionDescription{Type: "offer", SDP: "v=0"}}
		case protocol.RelayPassthrough:
			payload = protocol.Passthrough{Src: idA, Dst: idB, Message: json.RawMessage(`{"type":"pong","frame":3}`)}
		default:
			payload = protocol.PassthroughSignal{Src: idA, Dst: idB, Type: protocol.FallbackOffer}
		}
		want, _ := protocol.Encode(typ, payload)
		if err := a.WriteMessage(websocket.TextMessage, want); err != nil {
			t.Fatal(err)
		}
		if got := readRaw(t, b); string(got) != string(want) {
			t.Errorf("%s not forwarded verbatim:\n got %s\nwant %s", typ, got, want)
		}
	}
}

func TestForwardUnknownAndMalformed(t *testing.T) {
	_, wsURL, _, _ := startTestServer(t, Config{}, nil)
	conn := dialWS(t, wsURL)
	id := getID(t, conn)

	sendMsg(t, conn, protocol.RelayPassthroughSignal, protocol.PassthroughSignal{Src: id, Dst: 1, Type: protocol.FallbackOffer})
	conn.WriteMessage(websocket.TextMessage, []byte("not json"))
	conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"mystery"}`))
	conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"rtc-signal","data":"oops"}`))

	// the connection survives all of it
	sendMsg(t, conn, protocol.RelayPing, nil)
	if env := readEnvelope(t, conn); env.Type != protocol.RelayPong {
		t.Errorf("expected pong, got %s", env.Type)
	}
}

func TestPublicRegistry(t *testing.T) {
	srv, wsURL, _, _ := startTestServer(t, Config{}, nil)
	hostConn, other := dialWS(t, wsURL), dialWS(t, wsURL)
	hostID := getID(t, hostConn)
	getID(t, other)

	sendMsg(t, other, protocol.RelayListGames, nil)
	if games := readGames(t, other); len(games) != 0 {
		t.Fatalf("expected no public games, got %+v", games)
	}

	sendMsg(t, hostConn, protocol.RelaySetGameVis, true)
	games := readGames(t, hostConn)
	if len(games) != 1 || games[0].ID != hostID || games[0].Name != defaultName || games[0].Mode != defaultMode || games[0].Players != 1 {
		t.Fatalf("unexpected games %+v", games)
	}

	sendMsg(t, hostConn, protocol.RelaySetName, "friday arena")
	readGames(t, hostConn)
	sendMsg(t, hostConn, protocol.RelaySetPlayers, 3)
	readGames(t, hostConn)
	sendMsg(t, hostConn, protocol.RelaySetMode, "ffa")
	readGames(t, hostConn)

	sendMsg(t, other, protocol.RelayListGames, nil)
	games = readGames(t, other)
	if len(games) != 1 || games[0].Name != "friday arena" || games[0].Players != 3 || games[0].Mode != "ffa" {
		t.Errorf("metadata not applied: %+v", games)
	}

	resp, err := http.Get(srv.URL + "/games")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	var listed []protocol.GameInfo
	if err := json.NewDecoder(resp.Body).Decode(&listed); err != nil {
		t.Fatal(err)
	}
	if len(listed) != 1 || listed[0].ID != hostID {
		t.Errorf("unexpected /games %+v", listed)
	}

	sendMsg(t, hostConn, protocol.RelaySetGameVis, false)
	if games := readGames(t, hostConn); len(games) != 0 {
		t.Errorf("hidden game still listed: %+v", games)
	}
}

func TestPruneAndReregister(t *testing.T) {
	_, wsURL, hub, clk := startTestServer(t, Config{ClientTimeout: 10 * time.Second}, nil)
	conn := dialWS(t, wsURL)
	first := getID(t, conn)

	clk.advance(5 * time.Second)
	if hub.Prune() != 0 {
		t.Fatal("pruned too early")
	}
	clk.advance(6 * time.Second)
	if hub.Prune() != 1 || hub.ParticipantCount() != 0 {
		t.Fatal("silent participant should be pruned")
	}

	// the next ping re-registers the open connection under a new id
	sendMsg(t, conn, protocol.RelayPing, nil)
	env := readEnvelope(t, conn)
	if env.Type != protocol.RelayGiveID {
		t.Fatalf("expected give-id, got %s", env.Type)
	}
	id, _ := protocol.DecodePayload[int](env)
	if id < minID || id >= maxID || hub.ParticipantCount() != 1 {
		t.Errorf("unexpected re-registration %d (was %d)", id, first)
	}
}

func TestPingKeepsAlive(t *testing.T) {
	_, wsURL, hub, clk := startTestServer(t, Config{ClientTimeout: 10 * time.Second}, nil)
	conn := dialWS(t, wsURL)
	getID(t, conn)
	for i := 0; i < 3; i++ {
		clk.advance(8 * time.Second)
		sendMsg(t, conn, protocol.RelayPing, nil)
		readType(t, conn, protocol.RelayPong)
		if hub.Prune() != 0 {
			t.Fatal("pinging participant was pruned")
		}
	}
}

func TestDisconnectFreesID(t *testing.T) {
	_, wsURL, hub, _ := startTestServer(t, Config{}, nil)
	conn := dialWS(t, wsURL)
	getID(t, conn)
	conn.Close()
	deadline := time.Now().Add(2 * time.Second)
	for hub.ParticipantCount() != 0 || hub.TotalConns() != 0 {
		if time.Now().After(deadline) {
			t.Fatalf("participant not released: %d registered, %d conns", hub.ParticipantCount(), hub.TotalConns())
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestPerIPLimit(t *testing.T) {
	_, wsURL, _, _ := startTestServer(t, Config{MaxPerIP: 1}, nil)
	dialWS(t, wsURL)
	_, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err == nil {
		t.Fatal("second connection from the same ip should be refused")
	}
	if resp == nil || resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("expected 503, got %+v", resp)
	}
}

func TestQRCode(t *testing.T) {
	srv, _, _, _ := startTestServer(t, Config{}, nil)
	resp, err := http.Get(srv.URL + "/qr/4321")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK || resp.Header.Get("Content-Type") != "image/png" {
		t.Fatalf("unexpected response %d %s", resp.StatusCode, resp.Header.Get("Content-Type"))
	}
	if len(body) < 8 || string(body[1:4]) != "PNG" {
		t.Error("body is not a PNG")
	}

	for _, bad := range []string{"/qr/abc", "/qr/12"} {
		resp, err := http.Get(srv.URL + bad)
		if err != nil {
			t.Fatal(err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("%s: expected 400, got %d", bad, resp.StatusCode)
		}
	}
}

func TestHealth(t *testing.T) {
	srv, _, _, _ := startTestServer(t, Config{}, nil)
	req, _ := http.NewRequest(http.MethodGet, srv.URL+"/health", nil)
	req.Header.Set("Origin", "https://example.com")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	var h map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&h); err != nil {
		t.Fatal(err)
	}
	if h["status"] != "ok" {
		t.Errorf("unexpected health %+v", h)
	}
	if got := resp.Header.Get("Access-Control-Allow-Origin"); got != "*" {
		t.Errorf("expected open CORS, got %q", got)
	}
}

func TestIDsExhausted(t *testing.T) {
	hub := NewHub(Config{}, nil, logger.Discard())
	for id := minID; id < maxID; id++ {
		hub.participants[id] = &participant{}
	}
	if _, err := hub.Assign(&Client{hub: hub}); err != ErrIDsExhausted {
		t.Errorf("expected ErrIDsExhausted, got %v", err)
	}
}

func TestAnalyticsRecordsEvents(t *testing.T) {
	db, err := OpenDB(filepath.Join(t.TempDir(), "relay.db"))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	defer db.Close()
	analytics := NewAnalytics(db)

	_, wsURL, hub, _ := startTestServer(t, Config{}, analytics)
	a, b := dialWS(t, wsURL), dialWS(t, wsURL)
	idA, idB := getID(t, a), getID(t, b)
	sendMsg(t, a, protocol.RelayPassthroughSignal, protocol.PassthroughSignal{Src: idA, Dst: idB, Type: protocol.FallbackOffer})
	readType(t, b, protocol.RelayPassthroughSignal)

	if hub.analytics.ConcurrentPeers() != 2 {
		t.Errorf("expected 2 live peers, got %d", hub.analytics.ConcurrentPeers())
	}
	analytics.Stop()

	counts, err := db.EventCounts()
	if err != nil {
		t.Fatal(err)
	}
	if counts[EvtConnect] != 2 || counts[EvtAssignID] != 2 || counts[EvtForward] != 1 {
		t.Errorf("unexpected event counts %+v", counts)
	}
	sessions, err := db.SessionIDs(idA)
	if err != nil || len(sessions) != 1 || len(sessions[0]) != 36 {
		t.Errorf("expected one uuid session for %d, got %v (%v)", idA, sessions, err)
	}
}

func TestNameTruncatedByRune(t *testing.T) {
	_, wsURL, _, _ := startTestServer(t, Config{}, nil)
	conn := dialWS(t, wsURL)
	getID(t, conn)

	sendMsg(t, conn, protocol.RelaySetGameVis, true)
	readGames(t, conn)
	name := strings.Repeat("é", maxNameLen+5)
	sendMsg(t, conn, protocol.RelaySetName, name)
	games := readGames(t, conn)
	if len(games) != 1 {
		t.Fatalf("unexpected games %+v", games)
	}
	got := games[0].Name
	if !utf8.ValidString(got) || strings.ContainsRune(got, utf8.RuneError) {
		t.Errorf("name is not valid UTF-8: %q", got)
	}
	if n := utf8.RuneCountInString(got); n != maxNameLen {
		t.Errorf("name has %d runes, want %d", n, maxNameLen)
	}
	if truncate("ffa", maxModeLen) != "ffa" {
		t.Error("short values must be kept")
	}
}

func TestDecodeRouted(t *testing.T) {
	for _, tc := range []struct {
		typ     string
		payload any
	}{
		{protocol.RelayRTCSignal, protocol.RTCSignal{Src: 1001, Dst: 2002, MessageType: protocol.SignalCandidate}},
		{protocol.RelayPassthrough, protocol.Passthrough{Src: 1001, Dst: 2002, Message: json.RawMessage(`{"type":"pong","frame":1}`)}},
		{protocol.RelayPassthroughSignal, protocol.PassthroughSignal{Src: 1001, Dst: 2002, Type: protocol.FallbackLeave}},
	} {
		raw, _ := protocol.Encode(tc.typ, tc.payload)
		env, err := protocol.DecodeEnvelope(raw)
		if err != nil {
			t.Fatal(err)
		}
		route, err := decodeRouted(env)
		if err != nil || route.Destination() != 2002 {
			t.Errorf("%s: destination %v (%v)", tc.typ, route, err)
		}
	}
	if _, err := decodeRouted(protocol.Envelope{Type: protocol.RelayPing}); err == nil {
		t.Error("ping has no destination")
	}
}
