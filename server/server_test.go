package server

import (
	"errors"
	"io"
	"net"
	"testing"
	"time"

	"fishshoot.dev/server/config"
	"fishshoot.dev/server/wire"
)

func testServer(t *testing.T) *Server {
	t.Helper()
	cfg := config.DefaultConfig()
	s := New(cfg, testRules(t, cfg), &fakeSink{})
	t.Cleanup(s.Close)
	return s
}

// testClient drives the client side of the protocol over one half of a
// pipe. net.Pipe has no buffering, so a background goroutine drains
// inbound frames into a channel; without it a server broadcast would
// block whenever the test goroutine is not reading.
type testClient struct {
	t      *testing.T
	conn   net.Conn
	keys   wire.SessionKeys
	nonce  uint64
	frames chan []byte

	lastServerNonce uint64
}

func connect(t *testing.T, s *Server, ip string) *testClient {
	t.Helper()
	serverSide, clientSide := net.Pipe()
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.HandleStream(serverSide, ip)
	}()
	_ = clientSide.SetDeadline(time.Now().Add(30 * time.Second))

	priv, req, werr := wire.ClientHandshakeStart()
	if werr != nil {
		t.Fatal(werr)
	}
	if werr := wire.WriteHandshakeFrame(clientSide, req.Encode()); werr != nil {
		t.Fatal(werr)
	}
	respPayload, werr := wire.ReadHandshakeFrame(clientSide, wire.HandshakeResponseSize)
	if werr != nil {
		t.Fatal(werr)
	}
	resp, werr := wire.DecodeHandshakeResponse(respPayload)
	if werr != nil {
		t.Fatal(werr)
	}
	keys, werr := wire.ClientHandshakeFinish(priv, req, resp)
	if werr != nil {
		t.Fatal(werr)
	}
	c := &testClient{t: t, conn: clientSide, keys: keys, frames: make(chan []byte, 1024)}
	go c.pump()
	t.Cleanup(func() { clientSide.Close() })
	return c
}

func (c *testClient) pump() {
	defer close(c.frames)
	for {
		frame, werr := wire.ReadFrame(c.conn)
		if werr != nil {
			return
		}
		c.frames <- frame
	}
}

// seal builds the next outgoing frame without sending it.
func (c *testClient) seal(id wire.PacketID, payload []byte) []byte {
	c.t.Helper()
	c.nonce++
	frame, werr := wire.Seal(c.keys, id, c.nonce, payload)
	if werr != nil {
		c.t.Fatal(werr)
	}
	return frame
}

func (c *testClient) send(id wire.PacketID, payload []byte) {
	c.t.Helper()
	c.write(c.seal(id, payload))
}

func (c *testClient) write(frame []byte) {
	c.t.Helper()
	if werr := wire.WriteFrame(c.conn, frame); werr != nil {
		c.t.Fatal(werr)
	}
}

// recv opens the next server frame.
func (c *testClient) recv() (wire.PacketID, []byte, error) {
	select {
	case frame, ok := <-c.frames:
		if !ok {
			return 0, nil, io.EOF
		}
		h, payload, werr := wire.Open(c.keys, frame, c.lastServerNonce)
		if werr != nil {
			return 0, nil, werr
		}
		c.lastServerNonce = h.Nonce
		return h.PacketID, payload, nil
	case <-time.After(5 * time.Second):
		return 0, nil, errors.New("recv timeout")
	}
}

// recvUntil skips frames until one with the wanted id arrives.
func (c *testClient) recvUntil(want wire.PacketID) []byte {
	c.t.Helper()
	for i := 0; i < 200; i++ {
		id, payload, err := c.recv()
		if err != nil {
			c.t.Fatalf("waiting for %s: %v", want, err)
		}
		if id == want {
			return payload
		}
	}
	c.t.Fatalf("no %s in 200 frames", want)
	return nil
}

func nowMsWall() uint64 { return uint64(time.Now().UnixMilli()) }

func TestTimeSyncRoundTrip(t *testing.T) {
	s := testServer(t)
	c := connect(t, s, "198.51.100.10")

	c.send(wire.PacketTimeSyncPing, wire.TimeSyncPing{Seq: 7, ClientTS: nowMsWall()}.Encode())
	payload := c.recvUntil(wire.PacketTimeSyncPong)
	pong, werr := wire.DecodeTimeSyncPong(payload)
	if werr != nil {
		t.Fatal(werr)
	}
	if pong.Seq != 7 || pong.ServerTS == 0 {
		t.Fatalf("pong %+v", pong)
	}
}

// Replaying an already accepted encrypted frame must fail the nonce
// check and close the socket.
func TestNonceReplayIsFatal(t *testing.T) {
	s := testServer(t)
	c := connect(t, s, "198.51.100.11")

	frame := c.seal(wire.PacketTimeSyncPing, wire.TimeSyncPing{Seq: 1, ClientTS: nowMsWall()}.Encode())
	c.write(frame)
	c.recvUntil(wire.PacketTimeSyncPong)

	c.write(frame)
	payload := c.recvUntil(wire.PacketError)
	ep, werr := wire.DecodeErrorPacket(payload)
	if werr != nil {
		t.Fatal(werr)
	}
	if ep.Code != wire.INVALID_NONCE {
		t.Fatalf("replay error %s", ep.Code)
	}
	if _, _, err := c.recv(); err == nil {
		t.Fatalf("socket still open after replay")
	}
}

func TestRoomCreateJoinLifecycle(t *testing.T) {
	s := testServer(t)
	host := connect(t, s, "198.51.100.12")

	host.send(wire.PacketRoomCreate, wire.RoomCreate{ClientTS: nowMsWall(), Name: "alice", MaxPlayers: 2}.Encode())
	pjPayload := host.recvUntil(wire.PacketPlayerJoin)
	hostJoin, werr := wire.DecodePlayerJoin(pjPayload)
	if werr != nil {
		t.Fatal(werr)
	}
	if !hostJoin.IsHost || hostJoin.RoomCode == "" {
		t.Fatalf("host join %+v", hostJoin)
	}
	if hostJoin.BalanceFp != startingBalanceFp {
		t.Fatalf("starting balance %d", hostJoin.BalanceFp)
	}
	if s.rooms.Count() != 1 {
		t.Fatalf("rooms %d", s.rooms.Count())
	}

	guest := connect(t, s, "198.51.100.13")
	guest.send(wire.PacketRoomJoin, wire.RoomJoin{ClientTS: nowMsWall(), Name: "bob", RoomCode: hostJoin.RoomCode}.Encode())
	guestJoin, werr := wire.DecodePlayerJoin(guest.recvUntil(wire.PacketPlayerJoin))
	if werr != nil {
		t.Fatal(werr)
	}
	if guestJoin.IsHost || guestJoin.RoomCode != hostJoin.RoomCode {
		t.Fatalf("guest join %+v", guestJoin)
	}

	// The room is at capacity now.
	third := connect(t, s, "198.51.100.14")
	third.send(wire.PacketRoomJoin, wire.RoomJoin{ClientTS: nowMsWall(), Name: "carol", RoomCode: hostJoin.RoomCode}.Encode())
	ep, werr := wire.DecodeErrorPacket(third.recvUntil(wire.PacketError))
	if werr != nil {
		t.Fatal(werr)
	}
	if ep.Code != wire.ROOM_FULL {
		t.Fatalf("full room join: %s", ep.Code)
	}

	// Host starts the game; snapshots flip to the playing phase.
	host.send(wire.PacketGameStart, wire.GameStart{ClientTS: nowMsWall()}.Encode())
	deadline := time.Now().Add(5 * time.Second)
	for {
		snap, werr := wire.DecodeRoomSnapshot(host.recvUntil(wire.PacketRoomSnapshot))
		if werr != nil {
			t.Fatal(werr)
		}
		if snap.Phase == phasePlaying {
			if len(snap.Players) != 2 {
				t.Fatalf("snapshot players %d", len(snap.Players))
			}
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("game never started")
		}
	}

	// Both players leaving deletes the room.
	host.conn.Close()
	guest.conn.Close()
	for i := 0; i < 100 && s.rooms.Count() != 0; i++ {
		time.Sleep(20 * time.Millisecond)
	}
	if s.rooms.Count() != 0 {
		t.Fatalf("empty room survived")
	}
}

func TestShotOutsideRoomIsReported(t *testing.T) {
	s := testServer(t)
	c := connect(t, s, "198.51.100.15")

	c.send(wire.PacketShotFired, wire.ShotFired{Seq: 1, ClientTS: nowMsWall(), Weapon: "1x"}.Encode())
	ep, werr := wire.DecodeErrorPacket(c.recvUntil(wire.PacketError))
	if werr != nil {
		t.Fatal(werr)
	}
	if ep.Code != wire.INVALID_ROOM {
		t.Fatalf("code %s", ep.Code)
	}
	// The session survives a reported error.
	c.send(wire.PacketTimeSyncPing, wire.TimeSyncPing{Seq: 1, ClientTS: nowMsWall()}.Encode())
	c.recvUntil(wire.PacketTimeSyncPong)
}

func TestSequenceReplayIsReported(t *testing.T) {
	s := testServer(t)
	c := connect(t, s, "198.51.100.16")

	c.send(wire.PacketShotFired, wire.ShotFired{Seq: 5, ClientTS: nowMsWall(), Weapon: "1x"}.Encode())
	c.recvUntil(wire.PacketError) // INVALID_ROOM, not in a room

	// Same action sequence again: rejected before room routing.
	c.send(wire.PacketShotFired, wire.ShotFired{Seq: 5, ClientTS: nowMsWall(), Weapon: "1x"}.Encode())
	ep, werr := wire.DecodeErrorPacket(c.recvUntil(wire.PacketError))
	if werr != nil {
		t.Fatal(werr)
	}
	if ep.Code != wire.RATE_LIMITED || ep.Msg != "replay_detected" {
		t.Fatalf("replayed seq: %s %q", ep.Code, ep.Msg)
	}
}

func TestClientSendingServerPacketIsFatal(t *testing.T) {
	s := testServer(t)
	c := connect(t, s, "198.51.100.17")

	c.send(wire.PacketBalanceUpdate, wire.BalanceUpdate{}.Encode())
	ep, werr := wire.DecodeErrorPacket(c.recvUntil(wire.PacketError))
	if werr != nil {
		t.Fatal(werr)
	}
	if ep.Code != wire.INVALID_PACKET {
		t.Fatalf("code %s", ep.Code)
	}
	if _, _, err := c.recv(); err == nil {
		t.Fatalf("socket still open")
	}
}

func TestTimeSyncBucketExhaustion(t *testing.T) {
	s := testServer(t)
	c := connect(t, s, "198.51.100.18")

	budget := int(config.DefaultConfig().RateLimits.TimeSync.Capacity)
	for i := 0; i < budget; i++ {
		c.send(wire.PacketTimeSyncPing, wire.TimeSyncPing{Seq: uint32(i), ClientTS: nowMsWall()}.Encode())
		c.recvUntil(wire.PacketTimeSyncPong)
	}
	c.send(wire.PacketTimeSyncPing, wire.TimeSyncPing{Seq: 99, ClientTS: nowMsWall()}.Encode())
	ep, werr := wire.DecodeErrorPacket(c.recvUntil(wire.PacketError))
	if werr != nil {
		t.Fatal(werr)
	}
	if ep.Code != wire.RATE_LIMITED {
		t.Fatalf("exhausted bucket: %s", ep.Code)
	}
}

func TestSessionManagerSweep(t *testing.T) {
	m := NewSessionManager()
	fresh := &Session{}
	fresh.ID[0] = 1
	fresh.Touch(100_000)
	stale := &Session{}
	stale.ID[0] = 2
	stale.Touch(0)
	m.Add(fresh)
	m.Add(stale)

	idle := m.SweepIdle(100_000+sessionIdleMs, sessionIdleMs)
	if len(idle) != 1 || idle[0] != stale {
		t.Fatalf("sweep returned %d sessions", len(idle))
	}
	if m.Count() != 2 {
		t.Fatalf("sweep removed sessions itself")
	}
}
