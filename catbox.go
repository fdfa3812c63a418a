package main

import (
	"fmt"
	"log"
	"net"
	"sync"
	"time"

	"github.com/horgh/catbox/internal/config"
	"github.com/horgh/catbox/internal/feature"
	"github.com/horgh/catbox/internal/numeric"
	"github.com/horgh/catbox/internal/registry"
	"github.com/horgh/catbox/internal/wire"
)

// EventType identifies what woke the event loop.
type EventType int

// Event kinds. Every suspension point in the system funnels through one of
// these onto Catbox.newEvent; the event loop (Catbox.Run) is the only
// goroutine that ever touches the Registry (spec §5).
const (
	EventNewClient EventType = iota
	EventMessage
	EventDeadClient
	EventWakeup
)

// Event is what a connection goroutine (or the wakeup ticker) posts to the
// event loop.
type Event struct {
	Type   EventType
	ID     uint64
	Client *LocalClient
	Conn   net.Conn
	Msg    wire.Message
	Err    error

	// OutgoingLink is set only for EventNewClient events produced by an
	// oper CONNECT: it tells the event loop to speak first (send our own
	// PASS/SERVER) rather than wait for the peer's greeting.
	OutgoingLink *config.ServerLink
}

// nickHistoryEntry is one record in the kill-chase / WHOWAS ring (spec
// §4.5): a nick that recently belonged to someone, kept long enough that a
// KILL naming it can be chased to whoever holds the nick now.
type nickHistoryEntry struct {
	Nick    string
	Numeric string
	When    time.Time
}

// zombieEntry is one preserved membership from a netsplit (spec §3's
// glossary "Zombie member": a membership preserved silently across a
// netsplit, neither signalled as parted nor active, pending
// reconciliation). Recorded by splitServer, mirroring the kill-chase ring's
// shape, and reclaimed by introduceRemoteUser if the same nick reappears
// before the entry is pruned.
type zombieEntry struct {
	Nick    string
	Channel string
	Flags   registry.MembershipFlag
	When    time.Time
}

// zombieRetention is how long a zombie membership is held pending the same
// nick reappearing via a server reburst before it is pruned for good.
const zombieRetention = 90 * time.Second

// Catbox is the whole running server: the registry, configuration, feature
// set, every live connection, and the single event queue that serializes
// all of it. Grounded on the teacher's own Catbox struct (reconstructed here
// from its call sites across local_client.go/local_server.go, since the
// struct itself lived in a now-superseded source file) and on spec §5's
// single-owner concurrency model.
type Catbox struct {
	Config  *config.Config
	Reg     *registry.Registry
	Feature *feature.Set
	Numeric *numeric.Allocator

	// SelfNumeric is this server's own 2-character P10 numeric.
	SelfNumeric numeric.Server
	SelfHandle  registry.Handle

	LocalClients map[uint64]*LocalClient
	LocalUsers   map[uint64]*LocalUser
	LocalServers map[uint64]*LocalServer

	// KLines is a flat list of host/user masks refused at registration.
	KLines []KLine

	// Jupes is the set of administratively reserved names
	// (original_source/ircd/s_conf.c's jupe list, spec §4.11): server names
	// that may never link, and nicknames that local users may not take.
	Jupes map[string]struct{}

	nickHistory []nickHistoryEntry
	zombies     []zombieEntry

	newEvent chan Event

	nextClientID uint64

	WG           sync.WaitGroup
	ShutdownChan chan struct{}

	shuttingDown bool
}

// KLine is a refused user@host mask, with a reason echoed back to the
// connecting client.
type KLine struct {
	UserMask string
	HostMask string
	Reason   string
}

// NewCatbox creates a Catbox from a loaded configuration. selfNumeric is
// this server's own P10 server numeric, already resolved from config/CLI
// (spec §4.1).
func NewCatbox(cfg *config.Config, selfNumeric numeric.Server) *Catbox {
	reg := registry.New()
	self := reg.AddServer(cfg.ServerName, encodeSelf(selfNumeric), 0)
	self.BurstState = registry.Done

	cb := &Catbox{
		Config:       cfg,
		Reg:          reg,
		Feature:      feature.NewSet(),
		Numeric:      numeric.NewAllocator(selfNumeric),
		SelfNumeric:  selfNumeric,
		SelfHandle:   self.Handle,
		LocalClients: make(map[uint64]*LocalClient),
		LocalUsers:   make(map[uint64]*LocalUser),
		LocalServers: make(map[uint64]*LocalServer),
		Jupes:        make(map[string]struct{}),
		newEvent:     make(chan Event, 4096),
		ShutdownChan: make(chan struct{}),
	}

	for name, v := range cfg.Features {
		cb.Feature.Set(feature.Name(name), v)
	}

	return cb
}

func encodeSelf(n numeric.Server) string {
	s, err := numeric.EncodeServer(n)
	if err != nil {
		log.Fatalf("invalid self numeric: %s", err)
	}
	return s
}

// nextID allocates a connection ID, used as the key for LocalClients et al.
func (cb *Catbox) nextID() uint64 {
	cb.nextClientID++
	return cb.nextClientID
}

// AcceptLoop accepts connections on ln forever, handing each to its own
// goroutine pair (readLoop/writeLoop) per spec §5's "one goroutine per
// connection, blocking I/O only" model.
func (cb *Catbox) AcceptLoop(ln net.Listener) {
	for {
		conn, err := ln.Accept()
		if err != nil {
			if cb.isShuttingDown() {
				return
			}
			log.Printf("accept error: %s", err)
			continue
		}
		cb.newEvent <- Event{Type: EventNewClient, Conn: conn}
	}
}

// Run is the single event-loop goroutine. It is the only code in the
// process that ever reads or mutates cb.Reg (spec §5 invariant).
func (cb *Catbox) Run() {
	wakeup := time.NewTicker(cb.Config.WakeupTime)
	defer wakeup.Stop()

	for {
		select {
		case <-cb.ShutdownChan:
			return
		case <-wakeup.C:
			cb.onWakeup()
		case ev := <-cb.newEvent:
			cb.handleEvent(ev)
		}
	}
}

func (cb *Catbox) handleEvent(ev Event) {
	switch ev.Type {
	case EventNewClient:
		id := cb.nextID()
		lc := NewLocalClient(cb, id, ev.Conn)
		cb.LocalClients[id] = lc
		cb.WG.Add(2)
		go lc.readLoop()
		go lc.writeLoop()
		if ev.OutgoingLink != nil {
			lc.sendServerIntro(ev.OutgoingLink.Pass)
		}
	case EventMessage:
		cb.dispatch(ev.Client, ev.Msg)
	case EventDeadClient:
		cb.removeClient(ev.Client, ev.Err)
	}
}

// dispatch routes one decoded line to the right handler set depending on
// what ev.Client has become: a not-yet-registered connection, a registered
// user, or a registered server link.
func (cb *Catbox) dispatch(lc *LocalClient, m wire.Message) {
	verb := wire.CanonicalVerb(m.Command)

	if lu, ok := cb.LocalUsers[lc.ID]; ok {
		if !lu.Limiter.Allow() {
			return
		}
		lu.handleMessage(m)
		return
	}
	if ls, ok := cb.LocalServers[lc.ID]; ok {
		ls.handleMessage(m)
		return
	}
	lc.handlePreRegMessage(verb, m)
}

// onWakeup runs periodic housekeeping: SendQ-overflow disconnects, ping
// sweeps, dead-connection timeouts, and destruct-timer sweeps for empty
// channels (spec §4.4's "destruct-event timers").
func (cb *Catbox) onWakeup() {
	now := time.Now()

	for _, lc := range cb.LocalClients {
		if lc.SendQueueExceeded {
			lc.quit("SendQ Exceeded")
			continue
		}
		if now.Sub(lc.LastActivity) > cb.Config.DeadTime {
			lc.quit("Ping timeout")
			continue
		}
		if now.Sub(lc.LastActivity) > cb.Config.PingTime && !lc.SentPing {
			lc.maybeQueueMessage(wire.Message{Command: "PING", Params: []string{cb.Config.ServerName}})
			lc.SentPing = true
		}
	}

	cb.sweepDestructs(now)
	cb.pruneNickHistory(now)
	cb.pruneZombies(now)
}

// destructDelay is how long an armed, empty channel survives before
// RemoveChannel actually destroys it (spec §3/§4.4: "1 minute normally, 48
// hours if configured" via EMPTY_CHANNEL_RETAIN_HOURS). A retain value of 0
// keeps the normal short delay; a positive value switches to the long
// retention path in hours.
func (cb *Catbox) destructDelay() time.Duration {
	v, err := cb.Feature.Get(feature.FeatEmptyChannelRetain)
	if err != nil {
		return time.Minute
	}
	hours, _ := v.(int)
	if hours <= 0 {
		return time.Minute
	}
	return time.Duration(hours) * time.Hour
}

func (cb *Catbox) sweepDestructs(now time.Time) {
	delay := cb.destructDelay()
	for _, ch := range cb.Reg.Channels() {
		if !ch.IsEmpty() || !ch.DestructArmed {
			continue
		}
		if now.Sub(time.Unix(ch.DestructArmedAt, 0)) < delay {
			continue
		}
		cb.Reg.RemoveChannel(ch.Handle)
	}
}

func (cb *Catbox) pruneNickHistory(now time.Time) {
	cutoff := now.Add(-15 * time.Second)
	i := 0
	for _, e := range cb.nickHistory {
		if e.When.After(cutoff) {
			cb.nickHistory[i] = e
			i++
		}
	}
	cb.nickHistory = cb.nickHistory[:i]
}

// recordNickChange appends a kill-chase history entry for a nick that just
// stopped belonging to numeric (either by changing nick or quitting).
func (cb *Catbox) recordNickChange(oldNick, num string) {
	cb.nickHistory = append(cb.nickHistory, nickHistoryEntry{
		Nick: oldNick, Numeric: num, When: time.Now(),
	})
}

func (cb *Catbox) pruneZombies(now time.Time) {
	cutoff := now.Add(-zombieRetention)
	i := 0
	for _, z := range cb.zombies {
		if z.When.After(cutoff) {
			cb.zombies[i] = z
			i++
		}
	}
	cb.zombies = cb.zombies[:i]
}

// recordZombie preserves one membership a netsplit is about to tear down,
// so a reburst of the same nick within zombieRetention can restore it
// instead of the user simply rejoining cold (spec §3's "Zombie member").
func (cb *Catbox) recordZombie(nick, channel string, flags registry.MembershipFlag) {
	cb.zombies = append(cb.zombies, zombieEntry{
		Nick: nick, Channel: channel, Flags: flags | registry.FlagZombie, When: time.Now(),
	})
}

// reclaimZombies removes and returns every zombie entry recorded for nick,
// called when introduceRemoteUser sees that nick reappear.
func (cb *Catbox) reclaimZombies(nick string) []zombieEntry {
	canon := wire.CanonicalizeNick(nick)
	var matched []zombieEntry
	i := 0
	for _, z := range cb.zombies {
		if wire.CanonicalizeNick(z.Nick) == canon {
			matched = append(matched, z)
			continue
		}
		cb.zombies[i] = z
		i++
	}
	cb.zombies = cb.zombies[:i]
	return matched
}

// chaseKillTarget implements kill-chase (spec §4.5): if target does not
// currently resolve to a user but recently did (within 15s per the ring
// above), rewrite the KILL to the numeric that nick now maps to via the
// intervening NICK change.
func (cb *Catbox) chaseKillTarget(target string) string {
	if u := cb.Reg.FindUser(target); u != nil {
		return target
	}
	for i := len(cb.nickHistory) - 1; i >= 0; i-- {
		e := cb.nickHistory[i]
		if e.Nick == target {
			return e.Numeric
		}
	}
	return target
}

func (cb *Catbox) removeClient(lc *LocalClient, err error) {
	delete(cb.LocalClients, lc.ID)

	if lu, ok := cb.LocalUsers[lc.ID]; ok {
		cb.quitUser(lu, quitReason(err))
		delete(cb.LocalUsers, lc.ID)
	}
	if ls, ok := cb.LocalServers[lc.ID]; ok {
		ls.serverSplitCleanUp()
		delete(cb.LocalServers, lc.ID)
	}

	_ = lc.Conn.Close()
}

func quitReason(err error) string {
	if err == nil {
		return "Client quit"
	}
	return "Connection reset"
}

func (cb *Catbox) isShuttingDown() bool { return cb.shuttingDown }

// noticeOpers sends a server notice to every local user carrying the oper
// (+o) mode, the teacher's NOTICE-to-opers convention preserved verbatim.
func (cb *Catbox) noticeOpers(format string, args ...interface{}) {
	msg := "*** Notice -- " + sprintf(format, args...)
	for _, lu := range cb.LocalUsers {
		u := cb.Reg.User(lu.UserHandle)
		if u == nil {
			continue
		}
		if _, isOper := u.Modes['o']; !isOper {
			continue
		}
		lu.messageFromServer("NOTICE", []string{u.Nick, msg})
	}
}

func sprintf(format string, args ...interface{}) string {
	if len(args) == 0 {
		return format
	}
	return fmt.Sprintf(format, args...)
}

// isLinkedToServer reports whether name is currently a known (directly or
// transitively linked) server, used by SQUIT/CONNECT validation.
func (cb *Catbox) isLinkedToServer(name string) bool {
	return cb.Reg.FindServer(name) != nil
}

// issueKill forcibly disconnects a user, local or remote, and relays the
// KILL on every server link (RelayCore, spec §4.6), including the link a
// relayed KILL arrived on.
func (cb *Catbox) issueKill(source, targetNumeric, reason string) {
	u := cb.Reg.FindUserByNumeric(targetNumeric)
	if u == nil {
		return
	}

	for _, lu := range cb.LocalUsers {
		if lu.UserHandle == u.Handle {
			lu.quit("Killed (" + source + " (" + reason + "))")
			break
		}
	}

	cb.relayToAllServersExcept(nil, wire.Message{
		Prefix:  source,
		Command: "KILL",
		Params:  []string{targetNumeric, reason},
	})

	cb.recordNickChange(u.Nick, u.Numeric)
	cb.Reg.RemoveUser(u.Handle)
}

// connectOut dials a configured peer and starts its connection goroutines;
// the resulting LocalClient proceeds through the same PASS/SERVER handshake
// as an inbound link once it reads the peer's greeting (spec §6, teacher's
// oper CONNECT command idiom preserved).
func (cb *Catbox) connectOut(link config.ServerLink) {
	addr := net.JoinHostPort(link.Host, itoa(link.Port))
	conn, err := net.DialTimeout("tcp", addr, 10*time.Second)
	if err != nil {
		log.Printf("unable to connect to %s: %s", link.Name, err)
		return
	}
	cb.newEvent <- Event{Type: EventNewClient, Conn: conn, OutgoingLink: &link}
}

func itoa(n int) string {
	return fmt.Sprintf("%d", n)
}

// relayToAllServersExcept emits m once to every directly linked server
// except skip (RelayCore's "emit once per downstream link" policy, spec
// §4.6). It does no filtering by a link's burst state.
func (cb *Catbox) relayToAllServersExcept(skip *LocalServer, m wire.Message) {
	for _, ls := range cb.LocalServers {
		if ls == skip {
			continue
		}
		ls.maybeQueueMessage(m)
	}
}
