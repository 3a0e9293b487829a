package netpeer

import (
	"errors"
	"testing"
	"time"

	"github.com/pion/webrtc/v4"

	"grapple-arena/internal/protocol"
)

// loopbackAPI gathers loopback candidates so two links in one process can connect
// without any network, and gives up on unconnectable pairs quickly.
func loopbackAPI() *webrtc.API {
	se := webrtc.SettingEngine{}
	se.SetIncludeLoopbackCandidate(true)
	se.SetNetworkTypes([]webrtc.NetworkType{webrtc.NetworkTypeUDP4})
	se.SetICETimeouts(time.Second, 2*time.Second, 200*time.Millisecond)
	return webrtc.NewAPI(webrtc.WithSettingEngine(se))
}

type linkWatch struct {
	opened   chan struct{}
	closed   chan struct{}
	messages chan []byte
}

func newLinkWatch() *linkWatch {
	return &linkWatch{
		opened:   make(chan struct{}, 1),
		closed:   make(chan struct{}, 4),
		messages: make(chan []byte, 8),
	}
}

func (w *linkWatch) events(onCandidate func(protocol.ICECandidate)) LinkEvents {
	return LinkEvents{
		OnCandidate: onCandidate,
		OnOpen:      func() { w.opened <- struct{}{} },
		OnClose:     func() { w.closed <- struct{}{} },
		OnMessage:   func(b []byte) { w.messages <- b },
	}
}

func waitChan[T any](t *testing.T, what string, ch <-chan T) T {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(10 * time.Second):
		t.Fatalf("timed out waiting for %s", what)
	}
	var zero T
	return zero
}

func TestWebRTCLinkRoundTrip(t *testing.T) {
	api := loopbackAPI()
	pa, pb := newLinkWatch(), newLinkWatch()
	candA := make(chan protocol.ICECandidate, 32)
	candB := make(chan protocol.ICECandidate, 32)

	a, err := newWebRTCLink(api, "", pa.events(func(c protocol.ICECandidate) { candA <- c }))
	if err != nil {
		t.Fatal(err)
	}
	defer a.Close()
	b, err := newWebRTCLink(api, "", pb.events(func(c protocol.ICECandidate) { candB <- c }))
	if err != nil {
		t.Fatal(err)
	}
	defer b.Close()

	if err := a.Send([]byte("early")); !errors.Is(err, errChannelNotOpen) {
		t.Errorf("send before open: %v, want errChannelNotOpen", err)
	}

	// candidates cross over like they would through the relay
	done := make(chan struct{})
	defer close(done)
	go func() {
		for {
			select {
			case c := <-candA:
				b.AddCandidate(c)
			case c := <-candB:
				a.AddCandidate(c)
			case <-done:
				return
			}
		}
	}()

	offer, err := a.CreateOffer()
	if err != nil {
		t.Fatal(err)
	}
	answer, err := b.Accept(offer)
	if err != nil {
		t.Fatal(err)
	}
	if answer.Type != "answer" {
		t.Errorf("answer type %q", answer.Type)
	}
	if err := a.SetAnswer(answer); err != nil {
		t.Fatal(err)
	}

	waitChan(t, "a open", pa.opened)
	waitChan(t, "b open", pb.opened)

	if err := a.Send([]byte("ping")); err != nil {
		t.Fatal(err)
	}
	if got := waitChan(t, "message at b", pb.messages); string(got) != "ping" {
		t.Errorf("b got %q", got)
	}
	if err := b.Send([]byte("pong")); err != nil {
		t.Fatal(err)
	}
	if got := waitChan(t, "message at a", pa.messages); string(got) != "pong" {
		t.Errorf("a got %q", got)
	}

	a.Close()
	waitChan(t, "a close", pa.closed)
	if err := a.Send([]byte("late")); err == nil {
		t.Error("send after close should fail")
	}
	time.Sleep(100 * time.Millisecond)
	if n := len(pa.closed); n != 0 {
		t.Errorf("close reported %d extra times", n)
	}
}

func TestWebRTCLinkFailsWithoutCandidates(t *testing.T) {
	api := loopbackAPI()
	pa, pb := newLinkWatch(), newLinkWatch()
	a, err := newWebRTCLink(api, "", pa.events(nil))
	if err != nil {
		t.Fatal(err)
	}
	defer a.Close()
	b, err := newWebRTCLink(api, "", pb.events(nil))
	if err != nil {
		t.Fatal(err)
	}
	defer b.Close()

	offer, err := a.CreateOffer()
	if err != nil {
		t.Fatal(err)
	}
	answer, err := b.Accept(offer)
	if err != nil {
		t.Fatal(err)
	}
	if err := a.SetAnswer(answer); err != nil {
		t.Fatal(err)
	}

	// no candidates cross, so ICE gives up and the link reports closing
	waitChan(t, "a close", pa.closed)
	select {
	case <-pa.opened:
		t.Error("link without candidates should never open")
	default:
	}
}

func TestFailedLinkKeepsRelaySession(t *testing.T) {
	api := loopbackAPI()
	linkClosed := make(chan struct{}, 1)
	tn := newTestNet(t, 20*time.Millisecond)
	tn.cfg.Links = func(ev LinkEvents) (Link, error) {
		inner := ev.OnClose
		ev.OnClose = func() {
			inner()
			linkClosed <- struct{}{}
		}
		return newWebRTCLink(api, "", ev)
	}

	if err := tn.Join(555); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "relay offer", func() bool {
		_, ok := tn.sig.find(protocol.RelayPassthroughSignal)
		return ok
	})
	tn.relay(t, protocol.RelayPassthroughSignal, protocol.PassthroughSignal{Src: 555, Dst: 100, Type: protocol.FallbackAccept})

	waitChan(t, "direct link closed", linkClosed)
	p, ok := tn.Peer(555)
	if !ok || p.State() != Relay {
		t.Fatalf("relay session should survive its failed link (present=%v)", ok)
	}
	if _, left := tn.obs.counts(); left != 0 {
		t.Errorf("no departure expected, got %d", left)
	}
	tn.sig.take()
	tn.Send(protocol.PlayerInput{InputX: 1}, protocol.HostID)
	if _, ok := tn.sig.find(protocol.RelayPassthrough); !ok {
		t.Error("relayed input should still go through the relay")
	}
}
