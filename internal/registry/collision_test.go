package registry

import "testing"

func TestResolveNickCollision(t *testing.T) {
	tests := []struct {
		name string
		in   CollisionInput
		want CollisionAction
	}{
		{
			"same user case change",
			CollisionInput{SptrIsSameUser: true, NewNickDiffersOnlyInCase: true},
			ActionAcceptNickChange,
		},
		{
			"same user identical",
			CollisionInput{SptrIsSameUser: true, NewNickIdentical: true},
			ActionDropSilently,
		},
		{
			"unfinished local handshake overridden",
			CollisionInput{AcptrIsUnfinishedLocalHandshake: true},
			ActionOverrideLocalHandshake,
		},
		{
			"server nick rejected",
			CollisionInput{AcptrIsServer: true},
			ActionRejectServerNick,
		},
		{
			"tie with differing identity kills both",
			CollisionInput{LastNick: 100, AcptrLastNick: 100, Differ: true},
			ActionKillBoth,
		},
		{
			"differ, new is newer: kill new",
			CollisionInput{LastNick: 200, AcptrLastNick: 100, Differ: true},
			ActionKillNew,
		},
		{
			"differ, new is older: kill existing",
			CollisionInput{LastNick: 50, AcptrLastNick: 100, Differ: true},
			ActionKillExisting,
		},
		{
			"same identity, new is older or equal: kill new",
			CollisionInput{LastNick: 50, AcptrLastNick: 100, Differ: false},
			ActionKillNew,
		},
		{
			"same identity, new is newer: kill existing",
			CollisionInput{LastNick: 200, AcptrLastNick: 100, Differ: false},
			ActionKillExisting,
		},
	}

	for _, test := range tests {
		got := ResolveNickCollision(test.in)
		if got != test.want {
			t.Errorf("%s: ResolveNickCollision(%+v) = %v, wanted %v", test.name, test.in, got, test.want)
		}
	}
}
