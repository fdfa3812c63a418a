package registry

// CollisionAction is the outcome CollisionCore hands back to the caller
// (dispatcher/RelayCore), which performs the actual side effects (killing a
// connection, sending a numeric, relaying a KILL). Registry itself never
// disconnects anyone; spec §5 reserves mutation/side-effects for the single
// event loop, and spec §9 says "no implicit side-channel returns."
type CollisionAction int

// Collision outcomes (spec §4.5's decision table).
const (
	// ActionAcceptNickChange: acptr == sptr, case-only difference. Accept.
	ActionAcceptNickChange CollisionAction = iota
	// ActionDropSilently: acptr == sptr, identical name. No-op.
	ActionDropSilently
	// ActionOverrideLocalHandshake: acptr is an unfinished local registration;
	// exit it with "Overridden by other sign on", then accept the new nick.
	ActionOverrideLocalHandshake
	// ActionRejectServerNick: acptr is a Server entity; reject with NickInUse.
	ActionRejectServerNick
	// ActionKillNew: kill sptr (the nick being introduced/changed to).
	ActionKillNew
	// ActionKillExisting: kill acptr (the nick's current holder).
	ActionKillExisting
	// ActionKillBoth: the symmetric tie case — kill both sides.
	ActionKillBoth
)

// CollisionInput bundles the values the decision table in spec §4.5 is keyed
// on, letting ResolveNickCollision stay a pure function.
type CollisionInput struct {
	// SptrIsSameUser is true when the existing occupant IS the same User
	// entity sending the NICK (a nick-change, not a new introduction/link).
	SptrIsSameUser bool
	// NewNickDiffersOnlyInCase is only meaningful when SptrIsSameUser.
	NewNickDiffersOnlyInCase bool
	// NewNickIdentical is only meaningful when SptrIsSameUser.
	NewNickIdentical bool

	// AcptrIsServer: the existing occupant of the nick is a Server entity
	// (only possible in malformed/adversarial input; still named in the
	// table).
	AcptrIsServer bool

	// AcptrIsUnfinishedLocalHandshake: the existing occupant is a LocalClient
	// that has not completed registration yet.
	AcptrIsUnfinishedLocalHandshake bool

	// LastNick is the TS the wire supplied for the incoming nick.
	LastNick int64
	// AcptrLastNick is the existing occupant's last-nick-change TS.
	AcptrLastNick int64
	// Differ is true iff (acptr.ip, acptr.username) != (sptr.ip, sptr.username).
	Differ bool
}

// ResolveNickCollision implements the decision table in spec §4.5 exactly.
func ResolveNickCollision(in CollisionInput) CollisionAction {
	if in.SptrIsSameUser {
		if in.NewNickIdentical {
			return ActionDropSilently
		}
		if in.NewNickDiffersOnlyInCase {
			return ActionAcceptNickChange
		}
	}

	if in.AcptrIsUnfinishedLocalHandshake {
		return ActionOverrideLocalHandshake
	}

	if in.AcptrIsServer {
		return ActionRejectServerNick
	}

	if in.LastNick == in.AcptrLastNick && in.Differ {
		return ActionKillBoth
	}

	if in.Differ {
		if in.LastNick >= in.AcptrLastNick {
			return ActionKillNew
		}
		return ActionKillExisting
	}

	// !Differ
	if in.LastNick <= in.AcptrLastNick {
		return ActionKillNew
	}
	return ActionKillExisting
}
