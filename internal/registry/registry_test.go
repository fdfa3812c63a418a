package registry

import "testing"

func TestAddUserRejectsDuplicateNick(t *testing.T) {
	r := New()
	if _, err := r.AddUser("foo", "AAAAA", 1, 1); err != nil {
		t.Fatalf("AddUser = %s", err)
	}
	if _, err := r.AddUser("Foo", "AAAAB", 1, 1); err != ErrInUse {
		t.Errorf("AddUser duplicate = %v, wanted ErrInUse", err)
	}
}

func TestJoinPartChannel(t *testing.T) {
	r := New()
	u, _ := r.AddUser("foo", "AAAAA", 1, 1)
	ch, created := r.GetOrCreateChannel("#test", 100)
	if !created {
		t.Fatal("expected channel to be created")
	}

	r.JoinChannel(u.Handle, ch.Handle, FlagChanOp)
	if ch.IsEmpty() {
		t.Fatal("channel should not be empty after join")
	}
	m := r.Membership(u.Handle, ch.Handle)
	if m == nil || !m.HasFlag(FlagChanOp) {
		t.Fatal("expected membership with FlagChanOp")
	}

	r.PartChannel(u.Handle, ch.Handle)
	if !ch.IsEmpty() {
		t.Fatal("channel should be empty after part")
	}
	if r.Membership(u.Handle, ch.Handle) != nil {
		t.Fatal("expected no membership after part")
	}
}

func TestJoinChannelIdempotent(t *testing.T) {
	r := New()
	u, _ := r.AddUser("foo", "AAAAA", 1, 1)
	ch, _ := r.GetOrCreateChannel("#test", 100)

	m1 := r.JoinChannel(u.Handle, ch.Handle, FlagChanOp)
	m2 := r.JoinChannel(u.Handle, ch.Handle, 0)
	if m1 != m2 {
		t.Fatal("expected second JoinChannel to return the existing membership")
	}
	if !m2.HasFlag(FlagChanOp) {
		t.Fatal("expected the original flags to survive the no-op rejoin")
	}
}

func TestReconcileTSLowerWins(t *testing.T) {
	r := New()
	u, _ := r.AddUser("foo", "AAAAA", 1, 1)
	ch, _ := r.GetOrCreateChannel("#test", 100)
	r.JoinChannel(u.Handle, ch.Handle, FlagChanOp)

	r.ReconcileTS(ch, 50, map[byte]string{'n': "", 's': ""})

	if ch.TS != 50 {
		t.Errorf("TS = %d, wanted 50", ch.TS)
	}
	m := r.Membership(u.Handle, ch.Handle)
	if m.HasFlag(FlagChanOp) {
		t.Error("expected op flag dropped when the remote TS wins")
	}
	if !m.HasFlag(FlagDeopped) {
		t.Error("expected FlagDeopped set")
	}
	if _, ok := ch.Modes['n']; !ok {
		t.Error("expected adopted remote mode 'n'")
	}
}

func TestReconcileTSTieKeepsOps(t *testing.T) {
	r := New()
	u, _ := r.AddUser("foo", "AAAAA", 1, 1)
	ch, _ := r.GetOrCreateChannel("#test", 100)
	ch.Modes['t'] = ""
	r.JoinChannel(u.Handle, ch.Handle, FlagChanOp)

	r.ReconcileTS(ch, 100, map[byte]string{'n': ""})

	m := r.Membership(u.Handle, ch.Handle)
	if !m.HasFlag(FlagChanOp) {
		t.Error("expected op flag kept on a TS tie")
	}
	if _, ok := ch.Modes['t']; !ok {
		t.Error("expected local mode 't' to survive a merge")
	}
	if _, ok := ch.Modes['n']; !ok {
		t.Error("expected remote mode 'n' merged in")
	}
}

func TestReconcileTSLocalWinsNoOp(t *testing.T) {
	r := New()
	u, _ := r.AddUser("foo", "AAAAA", 1, 1)
	ch, _ := r.GetOrCreateChannel("#test", 50)
	r.JoinChannel(u.Handle, ch.Handle, FlagChanOp)

	r.ReconcileTS(ch, 100, map[byte]string{'n': ""})

	if ch.TS != 50 {
		t.Errorf("TS = %d, wanted unchanged 50", ch.TS)
	}
	m := r.Membership(u.Handle, ch.Handle)
	if !m.HasFlag(FlagChanOp) {
		t.Error("expected op flag kept when the local TS wins")
	}
}

func TestReconcileTSUnknownRemoteNeverWins(t *testing.T) {
	r := New()
	ch, _ := r.GetOrCreateChannel("#test", 100)
	r.ReconcileTS(ch, 0, map[byte]string{'n': ""})
	if ch.TS != 100 {
		t.Errorf("TS = %d, wanted unchanged 100 (remoteTS=0 is unknown)", ch.TS)
	}
}

func TestCanJoinBannedUnlessExcepted(t *testing.T) {
	r := New()
	ch, _ := r.GetOrCreateChannel("#test", 100)
	ch.Bans["*!*@bad.example"] = struct{}{}

	mask := "foo!foo@bad.example"
	if fail := CanJoin(ch, "foo", mask, ""); fail != JoinBannedFromChan {
		t.Errorf("CanJoin = %v, wanted JoinBannedFromChan", fail)
	}

	ch.Excepts["*!*@bad.example"] = struct{}{}
	if fail := CanJoin(ch, "foo", mask, ""); fail != JoinOK {
		t.Errorf("CanJoin with except = %v, wanted JoinOK", fail)
	}
}

func TestCanJoinBadKey(t *testing.T) {
	r := New()
	ch, _ := r.GetOrCreateChannel("#test", 100)
	ch.Modes['k'] = "hunter2"

	if fail := CanJoin(ch, "foo", "foo!foo@host", "wrong"); fail != JoinBadChannelKey {
		t.Errorf("CanJoin with wrong key = %v, wanted JoinBadChannelKey", fail)
	}
	if fail := CanJoin(ch, "foo", "foo!foo@host", "hunter2"); fail != JoinOK {
		t.Errorf("CanJoin with right key = %v, wanted JoinOK", fail)
	}
}

func TestCanJoinChannelFull(t *testing.T) {
	r := New()
	u, _ := r.AddUser("existing", "AAAAA", 1, 1)
	ch, _ := r.GetOrCreateChannel("#test", 100)
	ch.Modes['l'] = "1"
	r.JoinChannel(u.Handle, ch.Handle, FlagChanOp)

	if fail := CanJoin(ch, "foo", "foo!foo@host", ""); fail != JoinChannelIsFull {
		t.Errorf("CanJoin over limit = %v, wanted JoinChannelIsFull", fail)
	}
}

func TestCanJoinInviteOnlyRequiresInvite(t *testing.T) {
	r := New()
	ch, _ := r.GetOrCreateChannel("#test", 100)
	ch.Modes['i'] = ""

	if fail := CanJoin(ch, "foo", "foo!foo@host", ""); fail != JoinInviteOnlyChan {
		t.Errorf("CanJoin without invite = %v, wanted JoinInviteOnlyChan", fail)
	}

	ch.Invites["foo"] = struct{}{}
	if fail := CanJoin(ch, "foo", "foo!foo@host", ""); fail != JoinOK {
		t.Errorf("CanJoin with invite = %v, wanted JoinOK", fail)
	}
}
