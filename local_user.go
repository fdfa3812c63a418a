package main

import (
	"strconv"
	"strings"
	"time"

	"github.com/horgh/catbox/internal/feature"
	"github.com/horgh/catbox/internal/registry"
	"github.com/horgh/catbox/internal/wire"
)

// LocalUser is a LocalClient that has completed client registration (NICK +
// USER, spec §6). It owns no state the Registry doesn't already hold except
// what is purely connection-local (the embedded LocalClient).
type LocalUser struct {
	*LocalClient
	UserHandle registry.Handle
	IsOper     bool
}

// registerLocalUser completes NICK+USER registration: it allocates a P10
// user numeric, inserts the user into the Registry, and sends the welcome
// burst (spec §6).
func registerLocalUser(c *LocalClient) {
	cb := c.Catbox

	num, err := cb.Numeric.Next()
	if err != nil {
		c.quit("Numeric address space exhausted")
		return
	}

	u, err := cb.Reg.AddUser(c.PreRegNick, num, cb.SelfHandle, cb.SelfHandle)
	if err != nil {
		c.messageFromServer("433", []string{c.PreRegNick, "Nickname is already in use"})
		return
	}
	u.Username = c.PreRegUser
	u.Host = c.Hostname
	u.RealHost = c.Hostname
	u.IP = c.Hostname
	u.LastNickTS = time.Now().Unix()
	u.Modes['i'] = struct{}{}

	lu := &LocalUser{LocalClient: c, UserHandle: u.Handle}
	cb.LocalUsers[c.ID] = lu

	lu.messageFromServer("001", []string{"Welcome to the network, " + u.Nick})
	lu.messageFromServer("002", []string{"Your host is " + cb.Config.ServerName + ", running version " + cb.Config.Version})
	lu.messageFromServer("003", []string{"This server was created " + cb.Config.CreatedDate})
	lu.messageFromServer("004", []string{cb.Config.ServerName, cb.Config.Version, "io", "nt"})
	lu.lusersCommand()
	lu.motdCommand()

	cb.relayToAllServersExcept(nil, wire.Message{
		Command: "NICK",
		Params: []string{
			u.Nick, "1", strconv.FormatInt(u.LastNickTS, 10), u.Username, u.Host,
			"+i", u.IP, u.Numeric, u.RealHost,
		},
	})
}

// handleMessage dispatches one line from a registered local user (spec
// §4.3/§6).
func (lu *LocalUser) handleMessage(m wire.Message) {
	lu.LastActivity = time.Now()
	lu.SentPing = false

	switch wire.CanonicalVerb(m.Command) {
	case "NICK":
		lu.nickCommand(m)
	case "JOIN":
		lu.joinCommand(m)
	case "PART":
		lu.partCommand(m)
	case "KICK":
		lu.kickCommand(m)
	case "INVITE":
		lu.inviteCommand(m)
	case "AWAY":
		lu.awayCommand(m)
	case "SILENCE":
		lu.silenceCommand(m)
	case "PRIVMSG", "NOTICE":
		lu.privmsgCommand(m)
	case "MODE":
		lu.modeCommand(m)
	case "TOPIC":
		lu.topicCommand(m)
	case "WHO":
		lu.whoCommand(m)
	case "WHOIS":
		lu.whoisCommand(m)
	case "OPER":
		lu.operCommand(m)
	case "PING":
		lu.maybeQueueMessage(wire.Message{Command: "PONG", Params: m.Params})
	case "QUIT":
		lu.quit(quitMsgFromParams(m))
	case "SET":
		lu.setCommand(m)
	case "RESET":
		lu.resetCommand(m)
	case "GET":
		lu.getCommand(m)
	case "KILL":
		lu.operKillCommand(m)
	case "SQUIT":
		lu.operSquitCommand(m)
	case "CONNECT":
		lu.operConnectCommand(m)
	case "LINKS":
		lu.linksCommand(m)
	default:
		lu.messageFromServer("421", []string{m.Command, "Unknown command"})
	}
}

func quitMsgFromParams(m wire.Message) string {
	if len(m.Params) > 0 {
		return m.Params[0]
	}
	return "Client quit"
}

func (lu *LocalUser) user() *registry.User { return lu.Catbox.Reg.User(lu.UserHandle) }

// selfPrefix returns the user's own nick!user@host mask, used as the prefix
// of user-originated lines (JOIN/PART/PRIVMSG echoes etc.) delivered to
// local users; numerics still go via messageFromServer and the server name.
func (lu *LocalUser) selfPrefix() string {
	u := lu.user()
	return u.Nick + "!" + u.Username + "@" + u.Host
}

// nickCommand handles a nick change from an already-registered local user,
// consulting CollisionCore (spec §4.5): on ActionKillNew the change is
// refused with 433; any other outcome kills the current holder of the nick
// and the change proceeds.
func (lu *LocalUser) nickCommand(m wire.Message) {
	if len(m.Params) < 1 {
		return
	}
	newNick, ok := wire.DoNickName(m.Params[0], lu.Catbox.Config.MaxNickLength)
	if !ok {
		lu.messageFromServer("432", []string{m.Params[0], "Erroneous nickname"})
		return
	}

	u := lu.user()
	cb := lu.Catbox

	// Jupes are a local policy layer (spec §4.11): a nick reserved via jupe
	// is rejected outright for a local nick change, unlike a true collision
	// which goes through CollisionCore's decision table below.
	if _, juped := cb.Jupes[wire.CanonicalizeNick(newNick)]; juped {
		lu.messageFromServer("437", []string{newNick, "Nick/channel is temporarily unavailable"})
		return
	}

	existing := cb.Reg.FindUser(newNick)
	if existing != nil && existing.Handle != u.Handle {
		action := registry.ResolveNickCollision(registry.CollisionInput{
			SptrIsSameUser: false,
			LastNick:       time.Now().Unix(),
			AcptrLastNick:  existing.LastNickTS,
			Differ:         existing.IP != u.IP || existing.Username != u.Username,
		})
		switch action {
		case registry.ActionKillNew:
			lu.messageFromServer("433", []string{newNick, "Nickname is already in use"})
			return
		default:
			cb.issueKill(cb.Config.ServerName, existing.Numeric, "Nick collision")
		}
	}

	oldNick := u.Nick
	if err := cb.Reg.RenameUser(u.Handle, newNick, time.Now().Unix()); err != nil {
		lu.messageFromServer("433", []string{newNick, "Nickname is already in use"})
		return
	}
	cb.recordNickChange(oldNick, u.Numeric)

	lu.maybeQueueMessage(wire.Message{Prefix: oldNick, Command: "NICK", Params: []string{newNick}})
	cb.relayToAllServersExcept(nil, wire.Message{Prefix: u.Numeric, Command: "NICK", Params: []string{newNick, strconv.FormatInt(u.LastNickTS, 10)}})
}

// joinCommand implements JOIN, including the "JOIN 0" part-all-channels
// shorthand and can_join admission (spec §4.4). The comma-list boundary
// case from spec §8/§9 ("#a,0,#b,0,#c" leaves the user on #c only) is
// handled by discarding everything up to and including the LAST "0" token
// in one pass, rather than parting channels one at a time as each "0" is
// seen -- that sequential approach would relay a PART for every channel
// joined before a later "0", which the spec's "discarded" wording rules
// out.
func (lu *LocalUser) joinCommand(m wire.Message) {
	if len(m.Params) < 1 {
		return
	}
	cb := lu.Catbox
	u := lu.user()

	names := strings.Split(m.Params[0], ",")
	var keys []string
	if len(m.Params) > 1 {
		keys = strings.Split(m.Params[1], ",")
	}

	lastZero := -1
	for i, name := range names {
		if name == "0" {
			lastZero = i
		}
	}
	if lastZero >= 0 {
		lu.joinZero()
		names = names[lastZero+1:]
		if len(keys) > lastZero+1 {
			keys = keys[lastZero+1:]
		} else {
			keys = nil
		}
	}

	maxChansV, _ := cb.Feature.Get(feature.FeatMaxChannelsPerUser)
	maxChans, _ := maxChansV.(int)
	operOverrideV, _ := cb.Feature.Get(feature.FeatOperJoinOverride)
	operOverride, _ := operOverrideV.(bool)

	for i, name := range names {
		if name == "" || name == "0" {
			continue
		}
		if !wire.IsValidChannelName(name, 50) {
			lu.messageFromServer("403", []string{name, "No such channel"})
			continue
		}

		existing := cb.Reg.FindChannel(name)
		alreadyMember := existing != nil && cb.Reg.Membership(u.Handle, existing.Handle) != nil
		if !alreadyMember && maxChans > 0 && len(u.Channels) >= maxChans {
			lu.messageFromServer("405", []string{name, "You have joined too many channels"})
			continue
		}

		ch, created := cb.Reg.GetOrCreateChannel(name, time.Now().Unix())
		var flags registry.MembershipFlag
		if created {
			flags = registry.FlagChanOp
		} else if !alreadyMember {
			key := ""
			if i < len(keys) {
				key = keys[i]
			}
			mask := u.Nick + "!" + u.Username + "@" + u.Host
			if fail := registry.CanJoin(ch, u.Nick, mask, key); fail != registry.JoinOK {
				if lu.IsOper && operOverride {
					cb.noticeOpers("%s overrode can_join on %s", u.Nick, name)
				} else {
					switch fail {
					case registry.JoinChannelIsFull:
						lu.messageFromServer("471", []string{name, "Cannot join channel (+l)"})
					case registry.JoinInviteOnlyChan:
						lu.messageFromServer("473", []string{name, "Cannot join channel (+i)"})
					case registry.JoinBannedFromChan:
						lu.messageFromServer("474", []string{name, "Cannot join channel (+b)"})
					case registry.JoinBadChannelKey:
						lu.messageFromServer("475", []string{name, "Cannot join channel (+k)"})
					}
					continue
				}
			}
			delete(ch.Invites, wire.CanonicalizeNick(u.Nick))
		}
		ch.DisarmDestruct()
		cb.Reg.JoinChannel(u.Handle, ch.Handle, flags)

		lu.maybeQueueMessage(wire.Message{Prefix: lu.selfPrefix(), Command: "JOIN", Params: []string{name}})
		lu.sendNames(ch)

		cb.relayToAllServersExcept(nil, wire.Message{
			Command: "JOIN",
			Params:  []string{u.Numeric, name, strconv.FormatInt(ch.TS, 10)},
		})
	}
}

func (lu *LocalUser) sendNames(ch *registry.Channel) {
	var nicks []string
	for _, mu := range lu.Catbox.Reg.MemberUsers(ch.Handle) {
		mm := lu.Catbox.Reg.Membership(mu.Handle, ch.Handle)
		prefix := ""
		if mm != nil && mm.HasFlag(registry.FlagChanOp) {
			prefix = "@"
		} else if mm != nil && mm.HasFlag(registry.FlagVoice) {
			prefix = "+"
		}
		nicks = append(nicks, prefix+mu.Nick)
	}
	lu.messageFromServer("353", []string{"=", ch.Name, strings.Join(nicks, " ")})
	lu.messageFromServer("366", []string{ch.Name, "End of /NAMES list"})
}

func (lu *LocalUser) partCommand(m wire.Message) {
	if len(m.Params) < 1 {
		return
	}
	reason := ""
	if len(m.Params) > 1 {
		reason = m.Params[1]
	}
	for _, name := range strings.Split(m.Params[0], ",") {
		ch := lu.Catbox.Reg.FindChannel(name)
		if ch == nil {
			lu.messageFromServer("403", []string{name, "No such channel"})
			continue
		}
		lu.partOne(ch.Handle, reason)
	}
}

func (lu *LocalUser) partOne(chH registry.Handle, reason string) {
	cb := lu.Catbox
	u := lu.user()
	ch := cb.Reg.Channel(chH)
	if ch == nil {
		return
	}

	lu.maybeQueueMessage(wire.Message{Prefix: lu.selfPrefix(), Command: "PART", Params: []string{ch.Name, reason}})
	cb.Reg.PartChannel(u.Handle, chH)
	if ch.IsEmpty() {
		ch.ArmDestruct(time.Now().Unix())
	}

	cb.relayToAllServersExcept(nil, wire.Message{Command: "PART", Params: []string{u.Numeric, ch.Name, reason}})
}

// partOneLocal removes one membership exactly like partOne, but without
// relaying a per-channel PART -- used by joinZero, which relays the whole
// "JOIN 0" as a single combined message instead of one PART per channel.
func (lu *LocalUser) partOneLocal(chH registry.Handle) {
	cb := lu.Catbox
	u := lu.user()
	ch := cb.Reg.Channel(chH)
	if ch == nil {
		return
	}

	lu.maybeQueueMessage(wire.Message{Prefix: lu.selfPrefix(), Command: "PART", Params: []string{ch.Name}})
	cb.Reg.PartChannel(u.Handle, chH)
	if ch.IsEmpty() {
		ch.ArmDestruct(time.Now().Unix())
	}
}

// joinZero implements the "JOIN 0" shorthand: leave every channel the user
// is on in one pass, relayed upstream as a single combined JOIN 0 rather
// than one PART per channel (spec §8 scenario 3).
func (lu *LocalUser) joinZero() {
	cb := lu.Catbox
	u := lu.user()
	if len(u.Channels) == 0 {
		return
	}
	for chH := range u.Channels {
		lu.partOneLocal(chH)
	}
	cb.relayToAllServersExcept(nil, wire.Message{Command: "JOIN", Params: []string{u.Numeric, "0"}})
}

// privmsgCommand implements RelayCore's message-routing policy (spec §4.6):
// channel fan-out to local members plus one relay per downstream server
// link, direct-to-nick routing (delivered locally, or relayed by numeric
// to every server link when the target is remote), and "$*mask"-style
// masked delivery to every user whose host
// matches. Channel delivery enforces +n (no-external-messages): a
// non-member may not PRIVMSG/NOTICE a +n channel unless they carry the
// services mode (+k). Direct delivery consults the target's silence list
// and away string.
func (lu *LocalUser) privmsgCommand(m wire.Message) {
	if len(m.Params) < 2 {
		lu.messageFromServer("411", []string{"No recipient given"})
		return
	}
	cb := lu.Catbox
	u := lu.user()
	verb := m.Command
	target := m.Params[0]
	text := m.Params[1]

	if strings.HasPrefix(target, "#") || strings.HasPrefix(target, "&") || strings.HasPrefix(target, "+") {
		ch := cb.Reg.FindChannel(target)
		if ch == nil {
			lu.messageFromServer("401", []string{target, "No such nick/channel"})
			return
		}

		if _, noExternal := ch.Modes['n']; noExternal {
			if _, isMember := u.Modes['k']; !isMember {
				if cb.Reg.Membership(u.Handle, ch.Handle) == nil {
					if verb == "PRIVMSG" {
						lu.messageFromServer("404", []string{target, "Cannot send to channel"})
					}
					return
				}
			}
		}

		for _, mu := range cb.Reg.MemberUsers(ch.Handle) {
			if mu.Handle == u.Handle {
				continue
			}
			if mlu := cb.findLocalUserByHandle(mu.Handle); mlu != nil {
				mlu.maybeQueueMessage(wire.Message{Prefix: lu.selfPrefix(), Command: verb, Params: []string{target, text}})
			}
		}
		cb.relayToAllServersExcept(nil, wire.Message{Prefix: u.Numeric, Command: verb, Params: []string{target, text}})
		return
	}

	if strings.HasPrefix(target, "$") {
		mask := target[1:]
		for _, mu := range cb.Reg.Users() {
			if !wire.MatchMask(mask, mu.Host) {
				continue
			}
			if mlu := cb.findLocalUserByHandle(mu.Handle); mlu != nil {
				mlu.maybeQueueMessage(wire.Message{Prefix: lu.selfPrefix(), Command: verb, Params: []string{target, text}})
			}
		}
		cb.relayToAllServersExcept(nil, wire.Message{Prefix: u.Numeric, Command: verb, Params: []string{target, text}})
		return
	}

	dest := cb.Reg.FindUser(target)
	if dest == nil {
		lu.messageFromServer("401", []string{target, "No such nick"})
		return
	}

	mask := u.Nick + "!" + u.Username + "@" + u.Host
	for s := range dest.Silences {
		if wire.MatchMask(s, mask) {
			return
		}
	}
	if verb == "PRIVMSG" && dest.Away != "" {
		lu.messageFromServer("301", []string{dest.Nick, dest.Away})
	}

	if mlu := cb.findLocalUserByHandle(dest.Handle); mlu != nil {
		mlu.maybeQueueMessage(wire.Message{Prefix: lu.selfPrefix(), Command: verb, Params: []string{target, text}})
		return
	}
	cb.relayToAllServersExcept(nil, wire.Message{Prefix: u.Numeric, Command: verb, Params: []string{dest.Numeric, text}})
}

func (cb *Catbox) findLocalUserByHandle(h registry.Handle) *LocalUser {
	for _, lu := range cb.LocalUsers {
		if lu.UserHandle == h {
			return lu
		}
	}
	return nil
}

func (lu *LocalUser) modeCommand(m wire.Message) {
	if len(m.Params) < 1 {
		return
	}
	target := m.Params[0]
	if strings.HasPrefix(target, "#") {
		lu.channelModeCommand(m)
		return
	}
	lu.userModeCommand(m)
}

func (lu *LocalUser) userModeCommand(m wire.Message) {
	u := lu.user()
	if len(m.Params) < 2 {
		var modes []byte
		for c := range u.Modes {
			modes = append(modes, c)
		}
		lu.messageFromServer("221", []string{"+" + string(modes)})
		return
	}
	applyUserModeString(u, m.Params[1])
	lu.maybeQueueMessage(wire.Message{Prefix: lu.selfPrefix(), Command: "MODE", Params: []string{u.Nick, m.Params[1]}})
}

func applyUserModeString(u *registry.User, spec string) {
	adding := true
	for i := 0; i < len(spec); i++ {
		switch spec[i] {
		case '+':
			adding = true
		case '-':
			adding = false
		default:
			if adding {
				u.Modes[spec[i]] = struct{}{}
			} else {
				delete(u.Modes, spec[i])
			}
		}
	}
}

func (lu *LocalUser) channelModeCommand(m wire.Message) {
	cb := lu.Catbox
	ch := cb.Reg.FindChannel(m.Params[0])
	if ch == nil {
		lu.messageFromServer("403", []string{m.Params[0], "No such channel"})
		return
	}
	if len(m.Params) < 2 {
		var parts []string
		for k, v := range ch.Modes {
			parts = append(parts, string(k)+v)
		}
		lu.messageFromServer("324", []string{ch.Name, "+" + strings.Join(parts, "")})
		return
	}

	mm := cb.Reg.Membership(lu.UserHandle, ch.Handle)
	if mm == nil || !mm.HasFlag(registry.FlagChanOp) {
		lu.messageFromServer("482", []string{ch.Name, "You're not channel operator"})
		return
	}

	applyChannelModeString(ch, m.Params[1], m.Params[2:])
	lu.maybeQueueMessage(wire.Message{Prefix: lu.selfPrefix(), Command: "MODE", Params: append([]string{ch.Name}, m.Params[1:]...)})
	cb.relayToAllServersExcept(nil, wire.Message{
		Command: "MODE",
		Params:  append([]string{ch.Name}, m.Params[1:]...),
	})
}

// applyChannelModeString applies a +/-flags spec to ch, consuming params
// positionally for the mode letters that take one: 'k' (key) and 'l'
// (limit) are stored directly on ch.Modes, while 'b' (ban) and 'e' (ban
// exception) instead populate ch.Bans/ch.Excepts, since those are lists
// rather than single values (spec §3/§4.4).
func applyChannelModeString(ch *registry.Channel, spec string, params []string) {
	adding := true
	pi := 0
	nextParam := func() string {
		if pi >= len(params) {
			return ""
		}
		p := params[pi]
		pi++
		return p
	}

	for i := 0; i < len(spec); i++ {
		switch spec[i] {
		case '+':
			adding = true
		case '-':
			adding = false
		case 'k':
			if adding {
				ch.Modes['k'] = nextParam()
			} else {
				nextParam()
				delete(ch.Modes, 'k')
			}
		case 'l':
			if adding {
				ch.Modes['l'] = nextParam()
			} else {
				delete(ch.Modes, 'l')
			}
		case 'b':
			mask := nextParam()
			if mask == "" {
				continue
			}
			if adding {
				ch.Bans[mask] = struct{}{}
			} else {
				delete(ch.Bans, mask)
			}
		case 'e':
			mask := nextParam()
			if mask == "" {
				continue
			}
			if adding {
				ch.Excepts[mask] = struct{}{}
			} else {
				delete(ch.Excepts, mask)
			}
		default:
			if adding {
				ch.Modes[spec[i]] = ""
			} else {
				delete(ch.Modes, spec[i])
			}
		}
	}
}

// kickCommand implements KICK, the third of ChannelCore's three required
// membership operations alongside PART/MODE (spec §4.4).
func (lu *LocalUser) kickCommand(m wire.Message) {
	if len(m.Params) < 2 {
		lu.messageFromServer("461", []string{"KICK", "Not enough parameters"})
		return
	}
	cb := lu.Catbox
	u := lu.user()
	ch := cb.Reg.FindChannel(m.Params[0])
	if ch == nil {
		lu.messageFromServer("403", []string{m.Params[0], "No such channel"})
		return
	}

	mm := cb.Reg.Membership(lu.UserHandle, ch.Handle)
	if mm == nil || !mm.HasFlag(registry.FlagChanOp) {
		lu.messageFromServer("482", []string{ch.Name, "You're not channel operator"})
		return
	}

	reason := u.Nick
	if len(m.Params) > 2 {
		reason = m.Params[2]
	}

	for _, nick := range strings.Split(m.Params[1], ",") {
		target := cb.Reg.FindUser(nick)
		if target == nil {
			lu.messageFromServer("401", []string{nick, "No such nick"})
			continue
		}
		if cb.Reg.Membership(target.Handle, ch.Handle) == nil {
			lu.messageFromServer("441", []string{nick, ch.Name, "They aren't on that channel"})
			continue
		}

		for _, mu := range cb.Reg.MemberUsers(ch.Handle) {
			if mlu := cb.findLocalUserByHandle(mu.Handle); mlu != nil {
				mlu.maybeQueueMessage(wire.Message{Prefix: lu.selfPrefix(), Command: "KICK", Params: []string{ch.Name, nick, reason}})
			}
		}
		cb.Reg.PartChannel(target.Handle, ch.Handle)
		if ch.IsEmpty() {
			ch.ArmDestruct(time.Now().Unix())
		}

		cb.relayToAllServersExcept(nil, wire.Message{
			Prefix: u.Numeric, Command: "KICK", Params: []string{ch.Name, target.Numeric, reason},
		})
	}
}

// inviteCommand implements INVITE, populating Channel.Invites -- a
// per-(user,channel) record consumed on a successful invite-bypassed join,
// grounded on original_source/ircd/m_join.c's del_invite.
func (lu *LocalUser) inviteCommand(m wire.Message) {
	if len(m.Params) < 2 {
		lu.messageFromServer("461", []string{"INVITE", "Not enough parameters"})
		return
	}
	cb := lu.Catbox
	target := cb.Reg.FindUser(m.Params[0])
	if target == nil {
		lu.messageFromServer("401", []string{m.Params[0], "No such nick"})
		return
	}
	ch := cb.Reg.FindChannel(m.Params[1])
	if ch == nil {
		lu.messageFromServer("403", []string{m.Params[1], "No such channel"})
		return
	}

	mm := cb.Reg.Membership(lu.UserHandle, ch.Handle)
	if mm == nil {
		lu.messageFromServer("442", []string{ch.Name, "You're not on that channel"})
		return
	}
	if _, inviteOnly := ch.Modes['i']; inviteOnly && !mm.HasFlag(registry.FlagChanOp) {
		lu.messageFromServer("482", []string{ch.Name, "You're not channel operator"})
		return
	}

	ch.Invites[wire.CanonicalizeNick(target.Nick)] = struct{}{}
	lu.messageFromServer("341", []string{target.Nick, ch.Name})
	if mlu := cb.findLocalUserByHandle(target.Handle); mlu != nil {
		mlu.maybeQueueMessage(wire.Message{Prefix: lu.selfPrefix(), Command: "INVITE", Params: []string{target.Nick, ch.Name}})
	}
}

// awayCommand implements AWAY: an empty parameter clears it (spec §4.6's
// away-reply numeric is emitted from the PRIVMSG path, not here).
func (lu *LocalUser) awayCommand(m wire.Message) {
	u := lu.user()
	if len(m.Params) < 1 || m.Params[0] == "" {
		u.Away = ""
		lu.messageFromServer("305", []string{"You are no longer marked as being away"})
	} else {
		u.Away = m.Params[0]
		lu.messageFromServer("306", []string{"You have been marked as being away"})
	}
	lu.Catbox.relayToAllServersExcept(nil, wire.Message{Prefix: u.Numeric, Command: "AWAY", Params: m.Params})
}

// silenceCommand implements SILENCE: a bare mask adds it to the caller's
// silence list, "-mask" removes it, and no argument lists the current
// entries (spec §4.6).
func (lu *LocalUser) silenceCommand(m wire.Message) {
	u := lu.user()
	if len(m.Params) < 1 {
		for s := range u.Silences {
			lu.messageFromServer("271", []string{u.Nick, s})
		}
		lu.messageFromServer("272", []string{"End of /SILENCE list"})
		return
	}

	mask := m.Params[0]
	if strings.HasPrefix(mask, "-") {
		mask = mask[1:]
		delete(u.Silences, mask)
		lu.messageFromServer("NOTICE", []string{u.Nick, "*** Removed " + mask + " from your silence list"})
		return
	}
	mask = strings.TrimPrefix(mask, "+")
	u.Silences[mask] = struct{}{}
	lu.messageFromServer("NOTICE", []string{u.Nick, "*** Added " + mask + " to your silence list"})
}

func (lu *LocalUser) topicCommand(m wire.Message) {
	if len(m.Params) < 1 {
		return
	}
	cb := lu.Catbox
	ch := cb.Reg.FindChannel(m.Params[0])
	if ch == nil {
		lu.messageFromServer("403", []string{m.Params[0], "No such channel"})
		return
	}
	if len(m.Params) < 2 {
		if ch.Topic == "" {
			lu.messageFromServer("331", []string{ch.Name, "No topic is set"})
			return
		}
		lu.messageFromServer("332", []string{ch.Name, ch.Topic})
		return
	}

	topic := m.Params[1]
	if len(topic) > 300 {
		topic = topic[:300]
	}
	ch.Topic = topic
	ch.TopicSetter = lu.user().Nick
	ch.TopicTS = time.Now().Unix()

	cb.relayToAllServersExcept(nil, wire.Message{
		Command: "TOPIC",
		Params:  []string{ch.Name, ch.TopicSetter, strconv.FormatInt(ch.TopicTS, 10), topic},
	})
}

func (lu *LocalUser) whoCommand(m wire.Message) {
	if len(m.Params) < 1 {
		lu.messageFromServer("315", []string{"*", "End of /WHO list"})
		return
	}
	ch := lu.Catbox.Reg.FindChannel(m.Params[0])
	if ch == nil {
		lu.messageFromServer("315", []string{m.Params[0], "End of /WHO list"})
		return
	}
	for _, mu := range lu.Catbox.Reg.MemberUsers(ch.Handle) {
		lu.messageFromServer("352", []string{
			ch.Name, mu.Username, mu.Host, lu.Catbox.Config.ServerName, mu.Nick, "H", "0 " + mu.Nick,
		})
	}
	lu.messageFromServer("315", []string{ch.Name, "End of /WHO list"})
}

func (lu *LocalUser) whoisCommand(m wire.Message) {
	if len(m.Params) < 1 {
		return
	}
	target := lu.Catbox.Reg.FindUser(m.Params[0])
	if target == nil {
		lu.messageFromServer("401", []string{m.Params[0], "No such nick"})
		return
	}
	lu.messageFromServer("311", []string{target.Nick, target.Username, target.Host, "*", target.Username})
	lu.messageFromServer("318", []string{target.Nick, "End of /WHOIS list"})
}

func (lu *LocalUser) operCommand(m wire.Message) {
	if len(m.Params) < 2 {
		lu.messageFromServer("461", []string{"OPER", "Not enough parameters"})
		return
	}
	if !lu.Catbox.Config.VerifyOperPassword(m.Params[0], m.Params[1]) {
		lu.messageFromServer("464", []string{"Password incorrect"})
		return
	}
	lu.IsOper = true
	lu.user().Modes['o'] = struct{}{}
	lu.messageFromServer("381", []string{"You are now an IRC operator"})
}

// setCommand/resetCommand/getCommand wire the Feature subsystem's
// administrative surface (spec §4.7); only opers with at least
// feature.PrivOper may SET or RESET.
func (lu *LocalUser) setCommand(m wire.Message) {
	if !lu.IsOper {
		lu.messageFromServer("481", []string{"Permission Denied- You're not an IRC operator"})
		return
	}
	if len(m.Params) < 2 {
		lu.messageFromServer("461", []string{"SET", "Not enough parameters"})
		return
	}
	name := feature.Name(strings.ToUpper(m.Params[0]))
	if err := lu.Catbox.Feature.Set(name, m.Params[1]); err != nil {
		lu.messageFromServer("NOTICE", []string{lu.user().Nick, "*** No such feature"})
		return
	}
	lu.messageFromServer("NOTICE", []string{lu.user().Nick, "*** Feature " + string(name) + " set"})
}

func (lu *LocalUser) resetCommand(m wire.Message) {
	if !lu.IsOper {
		lu.messageFromServer("481", []string{"Permission Denied- You're not an IRC operator"})
		return
	}
	if len(m.Params) < 1 {
		return
	}
	name := feature.Name(strings.ToUpper(m.Params[0]))
	_ = lu.Catbox.Feature.Reset(name)
	lu.messageFromServer("NOTICE", []string{lu.user().Nick, "*** Feature " + string(name) + " reset"})
}

func (lu *LocalUser) getCommand(m wire.Message) {
	if len(m.Params) < 1 {
		return
	}
	name := feature.Name(strings.ToUpper(m.Params[0]))
	v, err := lu.Catbox.Feature.Get(name)
	if err != nil {
		lu.messageFromServer("NOTICE", []string{lu.user().Nick, "*** No such feature"})
		return
	}
	lu.messageFromServer("NOTICE", []string{lu.user().Nick, "*** " + string(name) + " = " + toStr(v)})
}

func toStr(v interface{}) string {
	switch t := v.(type) {
	case string:
		return t
	case bool:
		if t {
			return "true"
		}
		return "false"
	case int:
		return strconv.Itoa(t)
	default:
		return ""
	}
}

func (lu *LocalUser) operKillCommand(m wire.Message) {
	if !lu.IsOper {
		lu.messageFromServer("481", []string{"Permission Denied- You're not an IRC operator"})
		return
	}
	if len(m.Params) < 2 {
		return
	}
	target := lu.Catbox.chaseKillTarget(m.Params[0])
	u := lu.Catbox.Reg.FindUser(target)
	if u == nil {
		u = lu.Catbox.Reg.FindUserByNumeric(target)
	}
	if u == nil {
		lu.messageFromServer("401", []string{m.Params[0], "No such nick"})
		return
	}
	lu.Catbox.issueKill(lu.user().Nick, u.Numeric, m.Params[1])
}

func (lu *LocalUser) operSquitCommand(m wire.Message) {
	if !lu.IsOper {
		lu.messageFromServer("481", []string{"Permission Denied- You're not an IRC operator"})
		return
	}
	if len(m.Params) < 1 {
		return
	}
	for _, ls := range lu.Catbox.LocalServers {
		if ls.Server().Name == m.Params[0] {
			ls.quit("SQUIT by " + lu.user().Nick)
			return
		}
	}
	lu.messageFromServer("402", []string{m.Params[0], "No such server"})
}

func (lu *LocalUser) operConnectCommand(m wire.Message) {
	if !lu.IsOper {
		lu.messageFromServer("481", []string{"Permission Denied- You're not an IRC operator"})
		return
	}
	if len(m.Params) < 1 {
		return
	}
	link, ok := lu.Catbox.Config.FindServerLink(m.Params[0])
	if !ok {
		lu.messageFromServer("NOTICE", []string{lu.user().Nick, "*** No such configured server"})
		return
	}
	go lu.Catbox.connectOut(link)
}

func (lu *LocalUser) linksCommand(m wire.Message) {
	for _, s := range lu.Catbox.Reg.Servers() {
		lu.messageFromServer("364", []string{s.Name, lu.Catbox.Config.ServerName, "1 " + s.Name})
	}
	lu.messageFromServer("365", []string{"*", "End of /LINKS list"})
}

func (lu *LocalUser) lusersCommand() {
	lu.messageFromServer("251", []string{"There are " + strconv.Itoa(lu.Catbox.Reg.UserCount()) + " users on " + strconv.Itoa(len(lu.Catbox.Reg.Servers())) + " servers"})
}

func (lu *LocalUser) motdCommand() {
	lu.messageFromServer("375", []string{"- Message of the day -"})
	lu.messageFromServer("376", []string{"End of /MOTD command"})
}

func (lu *LocalUser) quit(reason string) {
	cb := lu.Catbox
	u := lu.user()
	if u != nil {
		for chH := range u.Channels {
			if ch := cb.Reg.Channel(chH); ch != nil {
				cb.relayToAllServersExcept(nil, wire.Message{Command: "PART", Params: []string{u.Numeric, ch.Name, reason}})
			}
		}
		cb.relayToAllServersExcept(nil, wire.Message{Prefix: u.Numeric, Command: "QUIT", Params: []string{reason}})
		cb.recordNickChange(u.Nick, u.Numeric)
		cb.Reg.RemoveUser(u.Handle)
	}
	lu.LocalClient.quit(reason)
}

// quitUser is called by Catbox.removeClient when a connection dies rather
// than issuing QUIT explicitly.
func (cb *Catbox) quitUser(lu *LocalUser, reason string) {
	u := lu.user()
	if u == nil {
		return
	}
	for chH := range u.Channels {
		if ch := cb.Reg.Channel(chH); ch != nil {
			cb.relayToAllServersExcept(nil, wire.Message{Command: "PART", Params: []string{u.Numeric, ch.Name, reason}})
		}
	}
	cb.relayToAllServersExcept(nil, wire.Message{Prefix: u.Numeric, Command: "QUIT", Params: []string{reason}})
	cb.recordNickChange(u.Nick, u.Numeric)
	cb.Reg.RemoveUser(u.Handle)
}
