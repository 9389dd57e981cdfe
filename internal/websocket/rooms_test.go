package websocket

import (
	"encoding/json"
	"errors"
	"sort"
	"testing"

	"telehealth/internal/models"
)

func TestPresence_MultipleConnections(t *testing.T) {
	t.Parallel()

	p := NewPresence()
	a1 := newTestClient("alice", models.RolePatient)
	a2 := newTestClient("alice", models.RolePatient)

	if online, err := p.Register(a1); err != nil || !online {
		t.Fatalf("first connection should bring alice online: %v %v", online, err)
	}
	if online, _ := p.Register(a2); online {
		t.Fatalf("second connection must not report a new online transition")
	}
	if online, _ := p.Register(a2); online {
		t.Fatalf("re-registering is a no-op")
	}
	if users, conns := p.Count(); users != 1 || conns != 2 {
		t.Fatalf("expected 1 user 2 connections, got %d %d", users, conns)
	}

	if p.Unregister(a1) {
		t.Fatalf("alice still has a connection")
	}
	if !p.IsOnline("alice") {
		t.Fatalf("alice should be online")
	}
	if !p.Unregister(a2) {
		t.Fatalf("last connection should report offline")
	}
	if p.Unregister(a2) {
		t.Fatalf("unknown client must be ignored")
	}
	if p.IsOnline("alice") || len(p.Lookup("alice")) != 0 {
		t.Fatalf("alice should be offline")
	}
}

func TestPresence_RejectsClosedClient(t *testing.T) {
	t.Parallel()

	p := NewPresence()
	c := newTestClient("bob", models.RoleTherapist)
	c.Close()
	if _, err := p.Register(c); !errors.Is(err, ErrClientClosed) {
		t.Fatalf("expected ErrClientClosed, got %v", err)
	}
	if p.IsOnline("bob") {
		t.Fatalf("closed client must not be registered")
	}
}

func TestRooms_JoinAnnouncesToOthersOnly(t *testing.T) {
	t.Parallel()

	r := NewRooms()
	alice := newTestClient("alice", models.RolePatient)
	bob := newTestClient("bob", models.RoleTherapist)

	peers, err := r.Join("room1", alice)
	if err != nil || len(peers) != 0 {
		t.Fatalf("first join: %v %v", peers, err)
	}
	peers, err = r.Join("room1", bob)
	if err != nil {
		t.Fatal(err)
	}
	if len(peers) != 1 || peers[0].UserID != "alice" {
		t.Fatalf("bob should see alice, got %+v", peers)
	}

	got := drain(t, alice)
	if len(got) != 1 || got[0].Type != models.EventPeerJoined {
		t.Fatalf("alice expected peer_joined, got %v", eventTypes(got))
	}
	var info PeerInfo
	if err := json.Unmarshal(got[0].Data, &info); err != nil || info.UserID != "bob" || info.ConnectionID != bob.ID {
		t.Fatalf("unexpected peer info %+v %v", info, err)
	}
	if got := drain(t, bob); len(got) != 0 {
		t.Fatalf("joiner must not receive its own peer_joined: %v", eventTypes(got))
	}

	// a repeated join announces nothing
	if _, err := r.Join("room1", bob); err != nil {
		t.Fatal(err)
	}
	if got := drain(t, alice); len(got) != 0 {
		t.Fatalf("repeat join announced: %v", eventTypes(got))
	}
}

func TestRooms_LeaveAndEmptyRoomCleanup(t *testing.T) {
	t.Parallel()

	r := NewRooms()
	alice := newTestClient("alice", models.RolePatient)
	bob := newTestClient("bob", models.RoleTherapist)
	r.Join("room1", alice)
	r.Join("room1", bob)
	drain(t, alice)

	if !r.Leave("room1", bob) {
		t.Fatalf("leave should report true")
	}
	if r.Leave("room1", bob) {
		t.Fatalf("second leave should report false")
	}
	got := drain(t, alice)
	if len(got) != 1 || got[0].Type != models.EventPeerLeft {
		t.Fatalf("alice expected peer_left, got %v", eventTypes(got))
	}

	r.Leave("room1", alice)
	if rooms, members := r.RoomCount(); rooms != 0 || members != 0 {
		t.Fatalf("empty room should be removed, got %d rooms %d members", rooms, members)
	}
}

func TestRooms_BroadcastExcludesSender(t *testing.T) {
	t.Parallel()

	r := NewRooms()
	alice := newTestClient("alice", models.RolePatient)
	bob := newTestClient("bob", models.RoleTherapist)
	carol := newTestClient("carol", models.RoleAdmin)
	for _, c := range []*Client{alice, bob, carol} {
		r.Join("room1", c)
	}
	for _, c := range []*Client{alice, bob, carol} {
		drain(t, c)
	}

	if n := r.Broadcast("room1", models.EventSignal, map[string]string{"sdp": "offer"}, alice); n != 2 {
		t.Fatalf("expected 2 recipients, got %d", n)
	}
	if got := drain(t, alice); len(got) != 0 {
		t.Fatalf("sender received its own broadcast")
	}
	for _, c := range []*Client{bob, carol} {
		if got := drain(t, c); len(got) != 1 || got[0].Type != models.EventSignal {
			t.Fatalf("%s expected signal, got %v", c.UserID(), eventTypes(got))
		}
	}

	if n := r.Broadcast("nowhere", models.EventSignal, nil, nil); n != 0 {
		t.Fatalf("unknown room should reach nobody, got %d", n)
	}
}

func TestRooms_LeaveAllAndHasUser(t *testing.T) {
	t.Parallel()

	r := NewRooms()
	a1 := newTestClient("alice", models.RolePatient)
	a2 := newTestClient("alice", models.RolePatient)
	bob := newTestClient("bob", models.RoleTherapist)
	r.Join("room1", a1)
	r.Join("room2", a1)
	r.Join("room1", a2)
	r.Join("room2", bob)
	drain(t, bob)

	left := r.LeaveAll(a1)
	sort.Strings(left)
	if len(left) != 2 || left[0] != "room1" || left[1] != "room2" {
		t.Fatalf("unexpected rooms left: %v", left)
	}
	if len(r.RoomsOf(a1)) != 0 {
		t.Fatalf("a1 should have no rooms")
	}
	if !r.HasUser("room1", "alice") {
		t.Fatalf("alice's second connection is still in room1")
	}
	if r.HasUser("room2", "alice") {
		t.Fatalf("alice has no connection left in room2")
	}
	if got := drain(t, bob); len(got) != 1 || got[0].Type != models.EventPeerLeft {
		t.Fatalf("bob expected peer_left, got %v", eventTypes(got))
	}
}

func TestRooms_RejectsClosedClient(t *testing.T) {
	t.Parallel()

	r := NewRooms()
	c := newTestClient("alice", models.RolePatient)
	c.Close()
	if _, err := r.Join("room1", c); !errors.Is(err, ErrClientClosed) {
		t.Fatalf("expected ErrClientClosed, got %v", err)
	}
	if rooms, _ := r.RoomCount(); rooms != 0 {
		t.Fatalf("closed client must not create a room")
	}
}
