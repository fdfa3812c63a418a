// Package registry implements Registry and EntityGraph (spec §4.2, §9): the
// arena-of-slots entity graph for Server/User/Channel/Membership, plus the
// dual-key name/numeric indexes that enforce uniqueness over it.
//
// Grounded on the teacher's Catbox struct (local_server.go), which owns flat
// maps (Users, Servers, Channels, Nicks) directly; this package pulls that
// ownership out into its own type so it can be unit tested without a running
// event loop, per spec §9's "collapse into one Server value owning the
// registry ... pass it explicitly through handlers as context."
package registry

import (
	"strings"

	"github.com/horgh/catbox/internal/wire"
	"github.com/pkg/errors"
)

// Handle is a stable arena index. The zero Handle is never valid; valid
// handles start at 1.
type Handle uint32

// MembershipFlag records standing within a channel (spec §3).
type MembershipFlag int

// Membership flags.
const (
	FlagChanOp MembershipFlag = 1 << iota
	FlagVoice
	FlagDeopped
	FlagServOpOk
	FlagZombie
)

// Membership is a first-class (User, Channel) record, owned by neither side
// but referenced by both (spec §9).
type Membership struct {
	User    Handle
	Channel Handle
	Flags   MembershipFlag
}

// HasFlag reports whether flag is set.
func (m Membership) HasFlag(flag MembershipFlag) bool { return m.Flags&flag != 0 }

// Server is an entry in the server entity table (spec §3).
type Server struct {
	Handle   Handle
	Name     string
	Numeric  string // 2-char P10 numeric
	Uplink   Handle // 0 means "self"
	Downlinks map[Handle]struct{}
	LinkTS   int64
	BurstState BurstState
	Lag      int64
}

// BurstState is the link-establishment state of a Server entry.
type BurstState int

// Burst states (spec §3).
const (
	NotBursted BurstState = iota
	Bursting
	BurstAck
	Done
)

// User is an entry in the user entity table (spec §3).
type User struct {
	Handle      Handle
	Nick        string
	Numeric     string // 5-char SSNNN numeric
	Home        Handle // Server handle
	From        Handle // immediate uplink through which messages arrive
	Username    string
	Host        string
	RealHost    string
	IP          string
	Modes       map[byte]struct{}
	Account     string
	LastNickTS  int64
	Away        string
	Silences    map[string]struct{}
	Killed      bool
	Channels    map[Handle]struct{} // Channel handles
}

// Channel is an entry in the channel entity table (spec §3).
type Channel struct {
	Handle      Handle
	Name        string
	TS          int64
	Topic       string
	TopicSetter string
	TopicTS     int64
	Modes       map[byte]string // mode char -> parameter (empty if none)
	Bans        map[string]struct{}
	Excepts     map[string]struct{}
	Invites     map[string]struct{}
	Members     map[Handle]Handle // user handle -> membership handle
	DestructArmed bool
	DestructArmedAt int64
}

// Registry owns the entity arena and the name/numeric indexes over it.
// It is not safe for concurrent use: per spec §5, exactly one goroutine (the
// event loop) may call into it.
type Registry struct {
	servers     map[Handle]*Server
	users       map[Handle]*User
	channels    map[Handle]*Channel
	memberships map[Handle]*Membership

	nickIndex    map[string]Handle // casefolded nick -> user handle
	channelIndex map[string]Handle // casefolded name -> channel handle
	serverIndex  map[string]Handle // exact server name -> server handle
	userNumeric  map[string]Handle // numeric -> user handle
	serverNumeric map[string]Handle // numeric -> server handle

	nextHandle Handle
}

// New creates an empty Registry.
func New() *Registry {
	return &Registry{
		servers:       make(map[Handle]*Server),
		users:         make(map[Handle]*User),
		channels:      make(map[Handle]*Channel),
		memberships:   make(map[Handle]*Membership),
		nickIndex:     make(map[string]Handle),
		channelIndex:  make(map[string]Handle),
		serverIndex:   make(map[string]Handle),
		userNumeric:   make(map[string]Handle),
		serverNumeric: make(map[string]Handle),
	}
}

func (r *Registry) allocHandle() Handle {
	r.nextHandle++
	return r.nextHandle
}

// ErrInUse is returned by AddUser and RenameUser when the nick is already
// taken.
var ErrInUse = errors.New("nickname in use")

// AddServer inserts a new Server entry.
func (r *Registry) AddServer(name, numericStr string, uplink Handle) *Server {
	h := r.allocHandle()
	s := &Server{
		Handle:    h,
		Name:      name,
		Numeric:   numericStr,
		Uplink:    uplink,
		Downlinks: make(map[Handle]struct{}),
	}
	r.servers[h] = s
	r.serverIndex[name] = h
	if numericStr != "" {
		r.serverNumeric[numericStr] = h
	}
	if uplink != 0 {
		if up, ok := r.servers[uplink]; ok {
			up.Downlinks[h] = struct{}{}
		}
	}
	return s
}

// RemoveServer deletes a Server entry and its index rows. Callers are
// responsible for having already exited its users (EntityGraph invariant 1).
func (r *Registry) RemoveServer(h Handle) {
	s, ok := r.servers[h]
	if !ok {
		return
	}
	delete(r.serverIndex, s.Name)
	delete(r.serverNumeric, s.Numeric)
	if s.Uplink != 0 {
		if up, ok := r.servers[s.Uplink]; ok {
			delete(up.Downlinks, h)
		}
	}
	delete(r.servers, h)
}

// FindServer looks up a server by exact name (spec §4.2).
func (r *Registry) FindServer(name string) *Server {
	h, ok := r.serverIndex[name]
	if !ok {
		return nil
	}
	return r.servers[h]
}

// FindServerByNumeric looks up a server by its numeric.
func (r *Registry) FindServerByNumeric(num string) *Server {
	h, ok := r.serverNumeric[num]
	if !ok {
		return nil
	}
	return r.servers[h]
}

// LinkedServers returns all servers transitively downlinked from h
// (inclusive of h itself), used by SQUIT/netsplit cleanup.
func (r *Registry) LinkedServers(h Handle) []*Server {
	var out []*Server
	var walk func(Handle)
	walk = func(cur Handle) {
		s, ok := r.servers[cur]
		if !ok {
			return
		}
		out = append(out, s)
		for d := range s.Downlinks {
			walk(d)
		}
	}
	walk(h)
	return out
}

// AddUser inserts a new User entry under the given home server, provided the
// nick is not already taken. The collision path (CollisionCore) must be
// consulted by the caller before calling this when a collision is possible
// (spec §4.2: "the collision path is consulted before forcing registration").
func (r *Registry) AddUser(nick, numericStr string, home, from Handle) (*User, error) {
	canon := wire.CanonicalizeNick(nick)
	if _, exists := r.nickIndex[canon]; exists {
		return nil, ErrInUse
	}

	h := r.allocHandle()
	u := &User{
		Handle:   h,
		Nick:     nick,
		Numeric:  numericStr,
		Home:     home,
		From:     from,
		Modes:    make(map[byte]struct{}),
		Silences: make(map[string]struct{}),
		Channels: make(map[Handle]struct{}),
	}
	r.users[h] = u
	r.nickIndex[canon] = h
	if numericStr != "" {
		r.userNumeric[numericStr] = h
	}
	return u, nil
}

// RemoveUser deletes a User entry, its memberships, and its index rows.
func (r *Registry) RemoveUser(h Handle) {
	u, ok := r.users[h]
	if !ok {
		return
	}
	for chHandle := range u.Channels {
		r.PartChannel(h, chHandle)
	}
	delete(r.nickIndex, wire.CanonicalizeNick(u.Nick))
	delete(r.userNumeric, u.Numeric)
	delete(r.users, h)
}

// RenameUser updates the nick index for a nick change, validating
// uniqueness. Callers must have already resolved any collision.
func (r *Registry) RenameUser(h Handle, newNick string, newTS int64) error {
	u, ok := r.users[h]
	if !ok {
		return errors.New("no such user")
	}
	canon := wire.CanonicalizeNick(newNick)
	if existing, exists := r.nickIndex[canon]; exists && existing != h {
		return ErrInUse
	}
	delete(r.nickIndex, wire.CanonicalizeNick(u.Nick))
	u.Nick = newNick
	u.LastNickTS = newTS
	r.nickIndex[canon] = h
	return nil
}

// FindUser looks up a user by nick, case-insensitively (spec §4.2).
func (r *Registry) FindUser(nick string) *User {
	h, ok := r.nickIndex[wire.CanonicalizeNick(nick)]
	if !ok {
		return nil
	}
	return r.users[h]
}

// FindUserByNumeric looks up a user by numeric.
func (r *Registry) FindUserByNumeric(num string) *User {
	h, ok := r.userNumeric[num]
	if !ok {
		return nil
	}
	return r.users[h]
}

// User returns the User for a handle, or nil.
func (r *Registry) User(h Handle) *User { return r.users[h] }

// Server returns the Server for a handle, or nil.
func (r *Registry) Server(h Handle) *Server { return r.servers[h] }

// Channel returns the Channel for a handle, or nil.
func (r *Registry) Channel(h Handle) *Channel { return r.channels[h] }

// Users returns every User entry. Iteration order is unspecified.
func (r *Registry) Users() []*User {
	out := make([]*User, 0, len(r.users))
	for _, u := range r.users {
		out = append(out, u)
	}
	return out
}

// Servers returns every Server entry.
func (r *Registry) Servers() []*Server {
	out := make([]*Server, 0, len(r.servers))
	for _, s := range r.servers {
		out = append(out, s)
	}
	return out
}

// FindChannel looks up a channel by name, case-insensitively.
func (r *Registry) FindChannel(name string) *Channel {
	h, ok := r.channelIndex[wire.CanonicalizeChannel(name)]
	if !ok {
		return nil
	}
	return r.channels[h]
}

// GetOrCreateChannel returns the existing channel by name, or creates one
// with the given creation TS if it does not exist (spec §4.4 remote JOIN /
// local JOIN-creates-channel paths share this primitive).
func (r *Registry) GetOrCreateChannel(name string, ts int64) (*Channel, bool) {
	if c := r.FindChannel(name); c != nil {
		return c, false
	}
	h := r.allocHandle()
	c := &Channel{
		Handle:  h,
		Name:    name,
		TS:      ts,
		Modes:   make(map[byte]string),
		Bans:    make(map[string]struct{}),
		Excepts: make(map[string]struct{}),
		Invites: make(map[string]struct{}),
		Members: make(map[Handle]Handle),
	}
	r.channels[h] = c
	r.channelIndex[wire.CanonicalizeChannel(name)] = h
	return c, true
}

// RemoveChannel deletes a channel and its index row. Callers must ensure it
// has no members (spec invariant: a channel has >=1 member or an armed
// destruct timer; otherwise it is destroyed).
func (r *Registry) RemoveChannel(h Handle) {
	c, ok := r.channels[h]
	if !ok {
		return
	}
	delete(r.channelIndex, wire.CanonicalizeChannel(c.Name))
	delete(r.channels, h)
}

// JoinChannel adds user h as a member of channel ch with the given flags,
// creating the bidirectional membership invariant (spec invariant 4).
func (r *Registry) JoinChannel(userH, chH Handle, flags MembershipFlag) *Membership {
	if c, ok := r.channels[chH]; ok {
		if existing, onChan := c.Members[userH]; onChan {
			return r.memberships[existing]
		}
	}

	mh := r.allocHandle()
	m := &Membership{User: userH, Channel: chH, Flags: flags}
	r.memberships[mh] = m

	if c, ok := r.channels[chH]; ok {
		c.Members[userH] = mh
	}
	if u, ok := r.users[userH]; ok {
		u.Channels[chH] = struct{}{}
	}
	return m
}

// PartChannel removes user h's membership in channel ch. A channel left
// empty stays in the registry; arming its destruct timer is the caller's
// job.
func (r *Registry) PartChannel(userH, chH Handle) {
	c, ok := r.channels[chH]
	if !ok {
		return
	}
	mh, onChan := c.Members[userH]
	if !onChan {
		return
	}
	delete(c.Members, userH)
	delete(r.memberships, mh)

	if u, ok := r.users[userH]; ok {
		delete(u.Channels, chH)
	}
}

// Membership returns the Membership record for (user, channel), or nil.
func (r *Registry) Membership(userH, chH Handle) *Membership {
	c, ok := r.channels[chH]
	if !ok {
		return nil
	}
	mh, onChan := c.Members[userH]
	if !onChan {
		return nil
	}
	return r.memberships[mh]
}

// SetMembershipFlags overwrites the flags on an existing membership.
func (r *Registry) SetMembershipFlags(userH, chH Handle, flags MembershipFlag) {
	m := r.Membership(userH, chH)
	if m == nil {
		return
	}
	m.Flags = flags
}

// MemberUsers returns the User entities on a channel.
func (r *Registry) MemberUsers(chH Handle) []*User {
	c, ok := r.channels[chH]
	if !ok {
		return nil
	}
	out := make([]*User, 0, len(c.Members))
	for uh := range c.Members {
		if u, ok := r.users[uh]; ok {
			out = append(out, u)
		}
	}
	return out
}

// Channels returns every known channel, including empty ones pending their
// destruct timer. Iteration order is unspecified.
func (r *Registry) Channels() []*Channel {
	out := make([]*Channel, 0, len(r.channels))
	for _, c := range r.channels {
		out = append(out, c)
	}
	return out
}

// ChannelCount returns the number of known channels, for metrics/LUSERS.
func (r *Registry) ChannelCount() int { return len(r.channels) }

// UserCount returns the number of known users.
func (r *Registry) UserCount() int { return len(r.users) }

// NormalizeChannelName strips surrounding whitespace. It does not casefold;
// the registry index applies rfc1459 folding via wire.CanonicalizeChannel.
func NormalizeChannelName(name string) string {
	return strings.TrimSpace(name)
}
