package main

import (
	"testing"

	"github.com/horgh/catbox/internal/config"
	"github.com/horgh/catbox/internal/registry"
	"github.com/horgh/catbox/internal/wire"
)

func testCatbox(t *testing.T) *Catbox {
	t.Helper()
	cfg := &config.Config{
		ServerName:    "test.example",
		ServerInfo:    "Test server",
		Version:       "catbox-test",
		CreatedDate:   "2020-01-01",
		Numeric:       "AA",
		MaxNickLength: 15,
	}
	return NewCatbox(cfg, 0)
}

// fakeLocalServer builds a LocalServer not backed by a real connection, for
// exercising handlers directly without running the goroutine/event-loop
// machinery.
func fakeLocalServer(t *testing.T, cb *Catbox, name string) *LocalServer {
	t.Helper()
	s := cb.Reg.AddServer(name, "", cb.SelfHandle)
	lc := &LocalClient{Catbox: cb, WriteChan: make(chan wire.Message, 16)}
	return &LocalServer{LocalClient: lc, ServerHandle: s.Handle}
}

// fakeLocalUser builds a registered LocalUser not backed by a real
// connection, for exercising handlers directly the same way
// fakeLocalServer does for server links.
func fakeLocalUser(t *testing.T, cb *Catbox, nick, numeric string) *LocalUser {
	t.Helper()
	u, err := cb.Reg.AddUser(nick, numeric, cb.SelfHandle, cb.SelfHandle)
	if err != nil {
		t.Fatalf("AddUser(%q) = %s", nick, err)
	}
	u.Username = nick
	u.Host = "host"
	lc := &LocalClient{Catbox: cb, WriteChan: make(chan wire.Message, 16)}
	lu := &LocalUser{LocalClient: lc, UserHandle: u.Handle}
	cb.LocalUsers[cb.nextID()] = lu
	return lu
}

// TestSJOINReconciliationLowerTSWins exercises the cross-server channel TS
// property (spec §8): a channel that already exists locally with a higher
// TS than an incoming SJOIN adopts the lower remote TS and deops its
// members.
func TestSJOINReconciliationLowerTSWins(t *testing.T) {
	cb := testCatbox(t)
	u, err := cb.Reg.AddUser("alice", "AAAAA", cb.SelfHandle, cb.SelfHandle)
	if err != nil {
		t.Fatalf("AddUser = %s", err)
	}

	ch, _ := cb.Reg.GetOrCreateChannel("#test", 500)
	cb.Reg.JoinChannel(u.Handle, ch.Handle, registry.FlagChanOp)

	ls := fakeLocalServer(t, cb, "peer.example")
	ls.sjoinCommand(wire.Message{
		Command: "SJOIN",
		Params:  []string{"100", "#test", "+nt", ""},
	})

	if ch.TS != 100 {
		t.Errorf("channel TS = %d, wanted 100 (the lower, remote TS)", ch.TS)
	}
	m := cb.Reg.Membership(u.Handle, ch.Handle)
	if m.HasFlag(registry.FlagChanOp) {
		t.Error("expected local op flag dropped once the remote TS won")
	}
	if _, ok := ch.Modes['n']; !ok {
		t.Error("expected adopted remote mode 'n'")
	}
}

// TestKillChaseFollowsNickChange exercises kill-chase (spec §4.5): a KILL
// naming a nick that changed moments ago should still reach the user.
func TestKillChaseFollowsNickChange(t *testing.T) {
	cb := testCatbox(t)
	u, err := cb.Reg.AddUser("alice", "AAAAA", cb.SelfHandle, cb.SelfHandle)
	if err != nil {
		t.Fatalf("AddUser = %s", err)
	}

	cb.recordNickChange("alice", u.Numeric)
	if err := cb.Reg.RenameUser(u.Handle, "alice2", 1000); err != nil {
		t.Fatalf("RenameUser = %s", err)
	}

	target := cb.chaseKillTarget("alice")
	if target != u.Numeric {
		t.Errorf("chaseKillTarget(\"alice\") = %q, wanted %q (the renamed user's numeric)", target, u.Numeric)
	}
}

// TestNickCollisionTieKillsBoth exercises the symmetric tie branch of
// CollisionCore's decision table as applied from the server-link path.
func TestNickCollisionTieKillsBoth(t *testing.T) {
	cb := testCatbox(t)
	u1, _ := cb.Reg.AddUser("bob", "AAAAA", cb.SelfHandle, cb.SelfHandle)
	u1.LastNickTS = 100
	u1.IP = "1.1.1.1"
	u1.Username = "bob"

	ls := fakeLocalServer(t, cb, "peer.example")
	ls.introduceRemoteUser(wire.Message{
		Command: "NICK",
		Params:  []string{"bob", "100", "bobx", "host", "+i", "2.2.2.2", "AAAAB", "host"},
	})

	if cb.Reg.FindUser("bob") != nil {
		t.Error("expected both colliding nicks to be killed, but \"bob\" still resolves")
	}
}

// TestJoinZeroBoundaryDiscardsEarlierChannels exercises the "last 0 wins"
// JOIN boundary rule (spec §8/§9): "#a,0,#b,0,#c" should leave the user on
// #c only. It checks the resulting memberships, not what was relayed.
func TestJoinZeroBoundaryDiscardsEarlierChannels(t *testing.T) {
	cb := testCatbox(t)
	lu := fakeLocalUser(t, cb, "alice", "AAAAA")

	lu.joinCommand(wire.Message{Command: "JOIN", Params: []string{"#pre"}})

	lu.joinCommand(wire.Message{Command: "JOIN", Params: []string{"#a,0,#b,0,#c"}})

	u := lu.user()
	if len(u.Channels) != 1 {
		t.Fatalf("user is on %d channels, wanted 1 (#c only)", len(u.Channels))
	}
	if cb.Reg.FindChannel("#c") == nil || cb.Reg.Membership(u.Handle, cb.Reg.FindChannel("#c").Handle) == nil {
		t.Error("expected membership on #c")
	}
	for _, name := range []string{"#pre", "#a", "#b"} {
		ch := cb.Reg.FindChannel(name)
		if ch != nil && cb.Reg.Membership(u.Handle, ch.Handle) != nil {
			t.Errorf("expected no membership on %s", name)
		}
	}
}

// TestKickRemovesMembership exercises KICK, the membership operation that
// was entirely missing from both dispatch tables (spec §4.4).
func TestKickRemovesMembership(t *testing.T) {
	cb := testCatbox(t)
	op := fakeLocalUser(t, cb, "op", "AAAAA")
	target := fakeLocalUser(t, cb, "target", "AAAAB")

	op.joinCommand(wire.Message{Command: "JOIN", Params: []string{"#test"}})
	ch := cb.Reg.FindChannel("#test")
	cb.Reg.JoinChannel(target.UserHandle, ch.Handle, 0)

	op.kickCommand(wire.Message{Command: "KICK", Params: []string{"#test", "target", "bye"}})

	if cb.Reg.Membership(target.UserHandle, ch.Handle) != nil {
		t.Error("expected target's membership removed after KICK")
	}
}

// TestSilenceBlocksDelivery exercises SILENCE (spec §4.6): a silenced
// sender's PRIVMSG must not reach the target's write queue.
func TestSilenceBlocksDelivery(t *testing.T) {
	cb := testCatbox(t)
	sender := fakeLocalUser(t, cb, "bob", "AAAAA")
	target := fakeLocalUser(t, cb, "alice", "AAAAB")

	target.silenceCommand(wire.Message{Command: "SILENCE", Params: []string{"*!*@host"}})
	select {
	case <-target.WriteChan: // SILENCE's own confirmation notice to the caller
	default:
		t.Fatal("expected SILENCE confirmation queued to the caller")
	}

	sender.privmsgCommand(wire.Message{Command: "PRIVMSG", Params: []string{"alice", "hi"}})

	select {
	case m := <-target.WriteChan:
		t.Errorf("expected no delivery to silenced recipient, got %+v", m)
	default:
	}
}

// TestAwayReplyOnPrivmsg exercises AWAY's reply numeric (spec §4.6): a
// PRIVMSG to an away user should get a 301 back. The NOTICE case is not
// checked here.
func TestAwayReplyOnPrivmsg(t *testing.T) {
	cb := testCatbox(t)
	sender := fakeLocalUser(t, cb, "bob", "AAAAA")
	target := fakeLocalUser(t, cb, "alice", "AAAAB")

	target.awayCommand(wire.Message{Command: "AWAY", Params: []string{"gone fishing"}})

	sender.privmsgCommand(wire.Message{Command: "PRIVMSG", Params: []string{"alice", "hi"}})
	select {
	case m := <-sender.WriteChan:
		if m.Command != "301" {
			t.Errorf("expected a 301 away-reply, got %+v", m)
		}
	default:
		t.Error("expected a 301 away-reply queued to the sender")
	}
}

// TestSquitTimestampGuardDropsStaleRequest exercises the SQUIT
// link-timestamp guard (spec §4.6, §8 scenario 6): a SQUIT naming a link
// generation that no longer matches must be ignored.
func TestSquitTimestampGuardDropsStaleRequest(t *testing.T) {
	cb := testCatbox(t)
	ls := fakeLocalServer(t, cb, "peer.example")
	target := cb.Reg.AddServer("lost.example", "", ls.ServerHandle)
	target.LinkTS = 1000

	ls.squitCommand(wire.Message{Command: "SQUIT", Params: []string{"lost.example", "999"}})
	if cb.Reg.FindServer("lost.example") == nil {
		t.Error("stale-timestamp SQUIT should have been ignored, but server is now gone")
	}

	ls.squitCommand(wire.Message{Command: "SQUIT", Params: []string{"lost.example", "1000"}})
	if cb.Reg.FindServer("lost.example") != nil {
		t.Error("expected a matching-timestamp SQUIT to actually split the server")
	}
}

// TestZombieReclaimRestoresMembership exercises the netsplit zombie-member
// path (spec §3's glossary): a user's channel membership preserved across a
// split should be restored, not lost, if the same nick reappears promptly.
func TestZombieReclaimRestoresMembership(t *testing.T) {
	cb := testCatbox(t)
	lost := cb.Reg.AddServer("lost.example", "", cb.SelfHandle)
	u, _ := cb.Reg.AddUser("carol", "AAAAA", lost.Handle, lost.Handle)
	ch, _ := cb.Reg.GetOrCreateChannel("#test", 100)
	cb.Reg.JoinChannel(u.Handle, ch.Handle, registry.FlagChanOp)

	cb.splitServer(lost)

	if cb.Reg.FindUser("carol") != nil {
		t.Fatal("expected user removed from the registry by the split")
	}
	if len(cb.zombies) != 1 {
		t.Fatalf("len(cb.zombies) = %d, wanted 1", len(cb.zombies))
	}

	ls := fakeLocalServer(t, cb, "peer.example")
	ls.introduceRemoteUser(wire.Message{
		Command: "NICK",
		Params:  []string{"carol", "200", "carol", "host", "+i", "1.2.3.4", "AAAAB", "host"},
	})

	u2 := cb.Reg.FindUser("carol")
	if u2 == nil {
		t.Fatal("expected carol reintroduced")
	}
	m := cb.Reg.Membership(u2.Handle, ch.Handle)
	if m == nil {
		t.Fatal("expected reclaimed membership on #test")
	}
	if !m.HasFlag(registry.FlagChanOp) {
		t.Error("expected the preserved op flag restored on reclaim")
	}
	if m.HasFlag(registry.FlagZombie) {
		t.Error("expected FlagZombie cleared once reclaimed")
	}
}

func TestNumericAllocatorDistinctPerUser(t *testing.T) {
	cb := testCatbox(t)
	a, err := cb.Numeric.Next()
	if err != nil {
		t.Fatalf("Next() = %s", err)
	}
	b, err := cb.Numeric.Next()
	if err != nil {
		t.Fatalf("Next() = %s", err)
	}
	if a == b {
		t.Error("expected two distinct numeric allocations")
	}
}
