package registry

import "github.com/horgh/catbox/internal/wire"

// ReconcileTS implements the channel timestamp reconciliation rule (spec
// §4.4): when two servers' records of the same channel meet (a remote BURST
// or JOIN references a channel that already exists locally with a different
// creation TS), the record with the lower TS wins. Ties keep both sides' op
// grants; the higher-TS side drops op flags (all members become Deopped) and
// adopts the winner's modes. Membership sets are unioned by the caller (the
// remote side's members are joined in separately via JoinChannel).
//
// remoteTS == 0 is treated as "unknown" per spec §8 and never lower-wins a
// known local TS.
func (r *Registry) ReconcileTS(ch *Channel, remoteTS int64, remoteModes map[byte]string) {
	if remoteTS == 0 {
		return
	}

	switch {
	case remoteTS < ch.TS:
		ch.TS = remoteTS
		deopAllMembers(r, ch)
		adoptModes(ch, remoteModes)
	case remoteTS == ch.TS:
		mergeModes(ch, remoteModes)
	default:
		// Local TS is lower: local wins, nothing changes locally. The caller
		// is responsible for telling the remote side to deop its members (by
		// emitting the appropriate MODE burst back), which is a RelayCore
		// concern, not a Registry one.
	}
}

func deopAllMembers(r *Registry, ch *Channel) {
	for uh, mh := range ch.Members {
		m := r.memberships[mh]
		if m == nil {
			continue
		}
		m.Flags &^= FlagChanOp
		m.Flags |= FlagDeopped
		_ = uh
	}
}

func adoptModes(ch *Channel, modes map[byte]string) {
	ch.Modes = make(map[byte]string, len(modes))
	for k, v := range modes {
		ch.Modes[k] = v
	}
}

func mergeModes(ch *Channel, modes map[byte]string) {
	for k, v := range modes {
		if _, exists := ch.Modes[k]; !exists {
			ch.Modes[k] = v
		}
	}
}

// ArmDestruct marks a channel's destruct timer armed at time at (unix
// seconds). The caller (ChannelCore in the root package) owns the actual
// timer/heap and calls RemoveChannel once the configured delay has elapsed
// and the channel is still empty.
func (c *Channel) ArmDestruct(at int64) {
	c.DestructArmed = true
	c.DestructArmedAt = at
}

// DisarmDestruct cancels a pending destruct, called when a join lands before
// the timer fires.
func (c *Channel) DisarmDestruct() {
	c.DestructArmed = false
	c.DestructArmedAt = 0
}

// IsEmpty reports whether a channel currently has zero members.
func (c *Channel) IsEmpty() bool { return len(c.Members) == 0 }

// JoinFailure is why CanJoin refused a join, matching the numeric replies
// named in spec §7.
type JoinFailure int

// Join failure reasons (spec §4.4's can_join decision table).
const (
	JoinOK JoinFailure = iota
	JoinChannelIsFull
	JoinInviteOnlyChan
	JoinBannedFromChan
	JoinBadChannelKey
)

// CanJoin implements ChannelCore's can_join check (spec §4.4): a join is
// refused if the channel is invite-only and the nick holds no invite, if the
// nick is banned and not excepted, if the channel is at its +l limit, or if
// a +k key was set and none or the wrong one was given. Order follows
// original_source/ircd/m_join.c's can_join: ban check first, then key, then
// limit, then invite-only.
func CanJoin(ch *Channel, nick, mask, key string) JoinFailure {
	for b := range ch.Bans {
		if !wire.MatchMask(b, mask) {
			continue
		}
		excused := false
		for e := range ch.Excepts {
			if wire.MatchMask(e, mask) {
				excused = true
				break
			}
		}
		if !excused {
			return JoinBannedFromChan
		}
	}

	if wantKey, ok := ch.Modes['k']; ok && wantKey != "" && wantKey != key {
		return JoinBadChannelKey
	}

	if limitStr, ok := ch.Modes['l']; ok && limitStr != "" {
		limit := 0
		for _, r := range limitStr {
			if r < '0' || r > '9' {
				limit = 0
				break
			}
			limit = limit*10 + int(r-'0')
		}
		if limit > 0 && len(ch.Members) >= limit {
			return JoinChannelIsFull
		}
	}

	if _, inviteOnly := ch.Modes['i']; inviteOnly {
		if _, invited := ch.Invites[wire.CanonicalizeNick(nick)]; !invited {
			return JoinInviteOnlyChan
		}
	}

	return JoinOK
}
