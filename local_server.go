package main

import (
	"strconv"
	"strings"
	"time"

	"github.com/horgh/catbox/internal/numeric"
	"github.com/horgh/catbox/internal/registry"
	"github.com/horgh/catbox/internal/wire"
)

// LocalServer is a LocalClient that has completed the server-to-server
// handshake (PASS/SERVER, spec §6). It owns the registry.Server entry for
// its peer and carries burst bookkeeping.
type LocalServer struct {
	*LocalClient
	ServerHandle registry.Handle
	GotPING      bool
	GotPONG      bool
	Bursting     bool
}

// registerLocalServer completes the server link: inserts a registry.Server
// entry, sends the burst, and marks the link as bursting until the
// end-of-burst exchange completes (spec §4.10).
func registerLocalServer(c *LocalClient) {
	cb := c.Catbox
	s := cb.Reg.AddServer(c.PreRegServerName, "", cb.SelfHandle)
	s.BurstState = registry.Bursting
	s.LinkTS = time.Now().Unix()

	ls := &LocalServer{LocalClient: c, ServerHandle: s.Handle, Bursting: true}
	cb.LocalServers[c.ID] = ls

	ls.sendBurst()
	ls.maybeQueueMessage(wire.Message{Command: "PING", Params: []string{cb.Config.ServerName}})

	cb.noticeOpers("Link with %s established.", s.Name)
}

func (ls *LocalServer) Server() *registry.Server { return ls.Catbox.Reg.Server(ls.ServerHandle) }

// sendBurst emits this server's full view of the network to a freshly
// linked peer: every other known server, every known user, and SJOIN for
// every channel (spec §4.10). Grounded on the teacher's sendBurst, which
// carries a TODO about combining multiple users into one SJOIN line --
// preserved here unaddressed for the same reason (P10 actually permits it,
// but doing so correctly requires tracking per-line length budgets the
// teacher's version never built either).
func (ls *LocalServer) sendBurst() {
	cb := ls.Catbox
	selfNum, _ := numeric.EncodeServer(cb.SelfNumeric)

	for _, s := range cb.Reg.Servers() {
		if s.Handle == cb.SelfHandle || s.Handle == ls.ServerHandle {
			continue
		}
		ls.maybeQueueMessage(wire.Message{
			Prefix: selfNum, Command: "SERVER",
			Params: []string{s.Name, "2", "0", "P10"},
		})
	}

	for _, u := range cb.Reg.Users() {
		ls.maybeQueueMessage(wire.Message{
			Command: "NICK",
			Params: []string{
				u.Nick, "1", strconv.FormatInt(u.LastNickTS, 10), u.Username, u.Host,
				"+i", u.IP, u.Numeric, u.RealHost,
			},
		})
	}

	for _, ch := range cb.Reg.Channels() {
		if ch.IsEmpty() {
			continue
		}
		var members []string
		for _, u := range cb.Reg.MemberUsers(ch.Handle) {
			prefix := ""
			if mm := cb.Reg.Membership(u.Handle, ch.Handle); mm != nil && mm.HasFlag(registry.FlagChanOp) {
				prefix = "@"
			}
			members = append(members, prefix+u.Numeric)
		}
		ls.maybeQueueMessage(wire.Message{
			Command: "SJOIN",
			Params:  []string{strconv.FormatInt(ch.TS, 10), ch.Name, "+" + modeString(ch), strings.Join(members, " ")},
		})
	}
}

func modeString(ch *registry.Channel) string {
	var out strings.Builder
	for k := range ch.Modes {
		out.WriteByte(k)
	}
	return out.String()
}

// handleMessage dispatches one line from a registered server link (spec
// §4.6's RelayCore plus the per-verb handlers named in spec §4.2/§4.4/§4.5).
func (ls *LocalServer) handleMessage(m wire.Message) {
	ls.LastActivity = time.Now()
	ls.SentPing = false

	switch wire.CanonicalVerb(m.Command) {
	case "PING":
		ls.pingCommand(m)
	case "PONG":
		ls.pongCommand(m)
	case "ERROR":
		ls.quit("ERROR from peer")
	case "NICK":
		ls.nickCommand(m)
	case "SERVER":
		ls.serverIntroCommand(m)
	case "SJOIN":
		ls.sjoinCommand(m)
	case "JOIN":
		ls.joinCommand(m)
	case "PART":
		ls.partCommand(m)
	case "KICK":
		ls.kickCommand(m)
	case "AWAY":
		ls.awayCommand(m)
	case "PRIVMSG", "NOTICE":
		ls.privmsgCommand(m)
	case "MODE":
		ls.modeCommand(m)
	case "TOPIC":
		ls.topicCommand(m)
	case "QUIT":
		ls.quitCommand(m)
	case "KILL":
		ls.killCommand(m)
	case "SQUIT":
		ls.squitCommand(m)
	case "WALLOPS":
		ls.relayVerbatim(m)
	default:
		if wire.IsNumericCommand(m.Command) {
			ls.relayVerbatim(m)
		}
	}
}

func (ls *LocalServer) relayVerbatim(m wire.Message) {
	ls.Catbox.relayToAllServersExcept(ls, m)
}

// pingCommand/pongCommand double as the end-of-burst signal in this core's
// dialect, grounded directly on the teacher's local_server.go pingCommand/
// pongCommand pair. A separate EB token is not handled: it falls to
// handleMessage's default case and, not being numeric, is ignored.
func (ls *LocalServer) pingCommand(m wire.Message) {
	ls.maybeQueueMessage(wire.Message{Command: "PONG", Params: []string{ls.Catbox.Config.ServerName}})
	ls.GotPING = true
	ls.maybeEndBurst()
}

func (ls *LocalServer) pongCommand(m wire.Message) {
	ls.GotPONG = true
	ls.maybeEndBurst()
}

func (ls *LocalServer) maybeEndBurst() {
	if !ls.Bursting {
		return
	}
	if ls.GotPING && ls.GotPONG {
		ls.Bursting = false
		if s := ls.Server(); s != nil {
			s.BurstState = registry.Done
		}
		ls.Catbox.noticeOpers("Burst with %s over.", ls.Server().Name)
	}
}

// serverIntroCommand handles a SERVER line received mid-link: an
// introduction of a third server behind our peer (spec §6).
func (ls *LocalServer) serverIntroCommand(m wire.Message) {
	if len(m.Params) < 1 {
		return
	}
	name := m.Params[0]
	if ls.Catbox.Reg.FindServer(name) != nil {
		return
	}
	s := ls.Catbox.Reg.AddServer(name, "", ls.ServerHandle)
	s.LinkTS = time.Now().Unix()
}

// nickCommand handles both user introduction (long param form, the
// NICK-as-burst-record shape) and a plain nick change (single param),
// matching real P10's dual use of the NICK verb. This is where
// CollisionCore's full decision table (spec §4.5) is consulted -- the
// teacher's uidCommand/nickCommand only compared timestamps; this adds the
// differ (ip/username mismatch) dimension the spec's table also keys on.
func (ls *LocalServer) nickCommand(m wire.Message) {
	cb := ls.Catbox

	if len(m.Params) >= 8 {
		ls.introduceRemoteUser(m)
		return
	}
	if len(m.Params) < 2 {
		return
	}

	srcNum := m.Prefix
	u := cb.Reg.FindUserByNumeric(srcNum)
	if u == nil {
		return
	}
	newNick := m.Params[0]
	newTS, _ := strconv.ParseInt(m.Params[1], 10, 64)

	// Jupes are a local policy layer, not a network-wide collision rule
	// (spec §4.11): a remote nick change landing on a juped name is not
	// killed, only logged as an anomaly for opers to act on.
	if _, juped := cb.Jupes[wire.CanonicalizeNick(newNick)]; juped {
		cb.noticeOpers("Juped nick %s introduced via NICK from %s.", newNick, ls.Server().Name)
	}

	existing := cb.Reg.FindUser(newNick)
	if existing != nil && existing.Handle != u.Handle {
		action := registry.ResolveNickCollision(registry.CollisionInput{
			LastNick:      newTS,
			AcptrLastNick: existing.LastNickTS,
			Differ:        existing.IP != u.IP || existing.Username != u.Username,
		})
		switch action {
		case registry.ActionKillBoth:
			cb.issueKill(cb.Config.ServerName, existing.Numeric, "Nick collision")
			cb.issueKill(cb.Config.ServerName, u.Numeric, "Nick collision")
			return
		case registry.ActionKillExisting:
			cb.issueKill(cb.Config.ServerName, existing.Numeric, "Nick collision")
		case registry.ActionKillNew:
			cb.issueKill(cb.Config.ServerName, u.Numeric, "Nick collision")
			return
		}
	}

	oldNick := u.Nick
	if err := cb.Reg.RenameUser(u.Handle, newNick, newTS); err != nil {
		return
	}
	cb.recordNickChange(oldNick, u.Numeric)
	cb.relayToAllServersExcept(ls, m)
}

func (ls *LocalServer) introduceRemoteUser(m wire.Message) {
	cb := ls.Catbox
	nick := m.Params[0]
	lastTS, _ := strconv.ParseInt(m.Params[1], 10, 64)
	username := m.Params[2]
	host := m.Params[3]
	ip := m.Params[5]
	num := m.Params[6]

	if _, juped := cb.Jupes[wire.CanonicalizeNick(nick)]; juped {
		cb.noticeOpers("Juped nick %s introduced by %s.", nick, ls.Server().Name)
	}

	if existing := cb.Reg.FindUser(nick); existing != nil {
		action := registry.ResolveNickCollision(registry.CollisionInput{
			LastNick:      lastTS,
			AcptrLastNick: existing.LastNickTS,
			Differ:        existing.IP != ip || existing.Username != username,
		})
		switch action {
		case registry.ActionKillBoth:
			cb.issueKill(cb.Config.ServerName, existing.Numeric, "Nick collision")
			return
		case registry.ActionKillExisting:
			cb.issueKill(cb.Config.ServerName, existing.Numeric, "Nick collision")
		case registry.ActionKillNew:
			return
		}
	}

	u, err := cb.Reg.AddUser(nick, num, ls.ServerHandle, ls.ServerHandle)
	if err != nil {
		return
	}
	u.Username = username
	u.Host = host
	u.RealHost = host
	u.IP = ip
	u.LastNickTS = lastTS

	for _, z := range cb.reclaimZombies(nick) {
		ch, _ := cb.Reg.GetOrCreateChannel(z.Channel, time.Now().Unix())
		cb.Reg.JoinChannel(u.Handle, ch.Handle, z.Flags&^registry.FlagZombie)
		ch.DisarmDestruct()
	}

	cb.relayToAllServersExcept(ls, m)
}

// sjoinCommand reconciles a remote SJOIN against any existing local record
// of the channel via ChannelCore's full TS-reconciliation rule (spec §4.4),
// replacing the teacher's simplified "adopt the lower TS, touch nothing
// else" version with one that also merges/adopts modes and deops the
// losing side's members.
func (ls *LocalServer) sjoinCommand(m wire.Message) {
	if len(m.Params) < 3 {
		return
	}
	cb := ls.Catbox
	remoteTS, _ := strconv.ParseInt(m.Params[0], 10, 64)
	name := m.Params[1]
	modeStr := strings.TrimPrefix(m.Params[2], "+")

	remoteModes := make(map[byte]string, len(modeStr))
	for i := 0; i < len(modeStr); i++ {
		remoteModes[modeStr[i]] = ""
	}

	ch, created := cb.Reg.GetOrCreateChannel(name, remoteTS)
	if !created {
		cb.Reg.ReconcileTS(ch, remoteTS, remoteModes)
	} else {
		for k, v := range remoteModes {
			ch.Modes[k] = v
		}
	}

	if len(m.Params) >= 4 {
		for _, tok := range strings.Fields(m.Params[3]) {
			flags := registry.MembershipFlag(0)
			for len(tok) > 0 && (tok[0] == '@' || tok[0] == '+') {
				if tok[0] == '@' {
					flags |= registry.FlagChanOp
				} else {
					flags |= registry.FlagVoice
				}
				tok = tok[1:]
			}
			u := cb.Reg.FindUserByNumeric(tok)
			if u == nil {
				continue
			}
			cb.Reg.JoinChannel(u.Handle, ch.Handle, flags)
		}
	}

	cb.relayToAllServersExcept(ls, m)
}

func (ls *LocalServer) joinCommand(m wire.Message) {
	if len(m.Params) < 2 {
		return
	}
	cb := ls.Catbox
	u := cb.Reg.FindUserByNumeric(m.Params[0])
	if u == nil {
		return
	}
	name := m.Params[1]
	if name == "0" {
		for chH := range u.Channels {
			cb.Reg.PartChannel(u.Handle, chH)
			if ch := cb.Reg.Channel(chH); ch != nil && ch.IsEmpty() {
				ch.ArmDestruct(time.Now().Unix())
			}
		}
		cb.relayToAllServersExcept(ls, m)
		return
	}
	ts := int64(0)
	if len(m.Params) >= 3 {
		ts, _ = strconv.ParseInt(m.Params[2], 10, 64)
	}
	ch, created := cb.Reg.GetOrCreateChannel(name, ts)
	if !created && ts != 0 {
		cb.Reg.ReconcileTS(ch, ts, ch.Modes)
	}
	ch.DisarmDestruct()
	cb.Reg.JoinChannel(u.Handle, ch.Handle, 0)

	cb.relayToAllServersExcept(ls, m)
}

func (ls *LocalServer) partCommand(m wire.Message) {
	if len(m.Params) < 2 {
		return
	}
	cb := ls.Catbox
	u := cb.Reg.FindUserByNumeric(m.Params[0])
	ch := cb.Reg.FindChannel(m.Params[1])
	if u == nil || ch == nil {
		return
	}
	cb.Reg.PartChannel(u.Handle, ch.Handle)
	if ch.IsEmpty() {
		ch.ArmDestruct(time.Now().Unix())
	}
	cb.relayToAllServersExcept(ls, m)
}

// kickCommand relays a remote KICK, removing the target's membership (spec
// §4.4's ChannelCore membership operations: PART/KICK/MODE).
func (ls *LocalServer) kickCommand(m wire.Message) {
	if len(m.Params) < 2 {
		return
	}
	cb := ls.Catbox
	ch := cb.Reg.FindChannel(m.Params[0])
	target := cb.Reg.FindUserByNumeric(m.Params[1])
	if ch == nil || target == nil {
		return
	}
	reason := ""
	if len(m.Params) > 2 {
		reason = m.Params[2]
	}

	for _, mu := range cb.Reg.MemberUsers(ch.Handle) {
		if mlu := cb.findLocalUserByHandle(mu.Handle); mlu != nil {
			mlu.maybeQueueMessage(wire.Message{Prefix: m.Prefix, Command: "KICK", Params: []string{ch.Name, target.Nick, reason}})
		}
	}
	cb.Reg.PartChannel(target.Handle, ch.Handle)
	if ch.IsEmpty() {
		ch.ArmDestruct(time.Now().Unix())
	}
	cb.relayToAllServersExcept(ls, m)
}

// awayCommand relays a remote AWAY, keeping the target's away string in
// sync network-wide so a local PRIVMSG to them still triggers the
// away-reply numeric (spec §4.6).
func (ls *LocalServer) awayCommand(m wire.Message) {
	cb := ls.Catbox
	u := cb.Reg.FindUserByNumeric(m.Prefix)
	if u == nil {
		return
	}
	if len(m.Params) > 0 {
		u.Away = m.Params[0]
	} else {
		u.Away = ""
	}
	cb.relayToAllServersExcept(ls, m)
}

// privmsgCommand relays a message one hop further, deduping by downstream
// link (spec §4.6's "emit once per link" rule is automatically satisfied
// here since relayToAllServersExcept only skips the link the message
// arrived on).
func (ls *LocalServer) privmsgCommand(m wire.Message) {
	if len(m.Params) < 2 {
		return
	}
	cb := ls.Catbox
	target := m.Params[0]

	if strings.HasPrefix(target, "#") {
		ch := cb.Reg.FindChannel(target)
		if ch != nil {
			for _, mu := range cb.Reg.MemberUsers(ch.Handle) {
				if mlu := cb.findLocalUserByHandle(mu.Handle); mlu != nil {
					mlu.maybeQueueMessage(wire.Message{Prefix: m.Prefix, Command: m.Command, Params: m.Params})
				}
			}
		}
		cb.relayToAllServersExcept(ls, m)
		return
	}

	dest := cb.Reg.FindUserByNumeric(target)
	if dest == nil {
		return
	}
	if mlu := cb.findLocalUserByHandle(dest.Handle); mlu != nil {
		mlu.maybeQueueMessage(wire.Message{Prefix: m.Prefix, Command: m.Command, Params: m.Params})
		return
	}
	cb.relayToAllServersExcept(ls, m)
}

func (ls *LocalServer) modeCommand(m wire.Message) {
	if len(m.Params) < 2 {
		return
	}
	cb := ls.Catbox
	ch := cb.Reg.FindChannel(m.Params[0])
	if ch == nil {
		return
	}
	applyChannelModeString(ch, m.Params[1], m.Params[2:])
	cb.relayToAllServersExcept(ls, m)
}

func (ls *LocalServer) topicCommand(m wire.Message) {
	if len(m.Params) < 4 {
		return
	}
	cb := ls.Catbox
	ch := cb.Reg.FindChannel(m.Params[0])
	if ch == nil {
		return
	}
	ch.TopicSetter = m.Params[1]
	ch.TopicTS, _ = strconv.ParseInt(m.Params[2], 10, 64)
	ch.Topic = m.Params[3]
	cb.relayToAllServersExcept(ls, m)
}

func (ls *LocalServer) quitCommand(m wire.Message) {
	cb := ls.Catbox
	u := cb.Reg.FindUserByNumeric(m.Prefix)
	if u == nil {
		return
	}
	cb.recordNickChange(u.Nick, u.Numeric)
	cb.Reg.RemoveUser(u.Handle)
	cb.relayToAllServersExcept(ls, m)
}

// killCommand applies kill-chase (spec §4.5) before acting: if the named
// target nick no longer resolves to a user but recently did, the KILL is
// rewritten to follow the intervening NICK change rather than silently
// failing.
func (ls *LocalServer) killCommand(m wire.Message) {
	if len(m.Params) < 2 {
		return
	}
	cb := ls.Catbox
	target := cb.chaseKillTarget(m.Params[0])
	u := cb.Reg.FindUser(target)
	if u == nil {
		u = cb.Reg.FindUserByNumeric(target)
	}
	if u == nil {
		return
	}
	cb.issueKill(m.Prefix, u.Numeric, m.Params[1])
}

// squitCommand tears down a server (and every server behind it) from the
// registry, quitting every user that was homed there with a netsplit
// message, then propagates the SQUIT onward (spec §4.2 invariant 1, spec
// §4.6).
func (ls *LocalServer) squitCommand(m wire.Message) {
	if len(m.Params) < 1 {
		return
	}
	cb := ls.Catbox
	s := cb.Reg.FindServer(m.Params[0])
	if s == nil {
		return
	}

	// The optional second argument is the link timestamp the sender last
	// saw for this server; if it no longer matches, the SQUIT refers to a
	// link that has already been replaced and must be dropped rather than
	// tearing down the current one (spec §4.6, §8 scenario 6).
	if len(m.Params) >= 2 {
		if guardTS, err := strconv.ParseInt(m.Params[1], 10, 64); err == nil && guardTS != s.LinkTS {
			return
		}
	}

	cb.splitServer(s)
	cb.relayToAllServersExcept(ls, m)
}

// serverSplitCleanUp is called when this link itself dies (our direct peer
// quit/dropped), tearing down everything behind it the same way an explicit
// SQUIT would.
func (ls *LocalServer) serverSplitCleanUp() {
	if s := ls.Server(); s != nil {
		ls.Catbox.splitServer(s)
	}
}

// splitServer tears s and everything behind it out of the registry. Each
// split user's channel memberships are preserved as zombie entries (spec
// §3's "Zombie member") rather than simply discarded, so a reburst of the
// same nick within zombieRetention reclaims them instead of rejoining cold.
func (cb *Catbox) splitServer(s *registry.Server) {
	for _, lost := range cb.Reg.LinkedServers(s.Handle) {
		for _, u := range cb.Reg.Users() {
			if u.Home != lost.Handle {
				continue
			}

			var affected []registry.Handle
			for chH := range u.Channels {
				ch := cb.Reg.Channel(chH)
				if ch == nil {
					continue
				}
				affected = append(affected, chH)

				flags := registry.MembershipFlag(0)
				if mm := cb.Reg.Membership(u.Handle, chH); mm != nil {
					flags = mm.Flags
				}
				cb.recordZombie(u.Nick, ch.Name, flags)

				for _, mu := range cb.Reg.MemberUsers(ch.Handle) {
					if mlu := cb.findLocalUserByHandle(mu.Handle); mlu != nil && mlu.UserHandle != u.Handle {
						mlu.maybeQueueMessage(wire.Message{
							Prefix: u.Nick + "!" + u.Username + "@" + u.Host, Command: "QUIT",
							Params: []string{cb.Config.ServerName + " " + lost.Name},
						})
					}
				}
			}

			cb.Reg.RemoveUser(u.Handle)

			for _, chH := range affected {
				if ch := cb.Reg.Channel(chH); ch != nil && ch.IsEmpty() {
					ch.ArmDestruct(time.Now().Unix())
				}
			}
		}
		cb.Reg.RemoveServer(lost.Handle)
	}
	cb.noticeOpers("Netsplit from %s.", s.Name)
}
