package main

import (
	"log"
	"net"
	"strings"
	"time"

	"github.com/horgh/catbox/internal/feature"
	"github.com/horgh/catbox/internal/numeric"
	"github.com/horgh/catbox/internal/wire"
	"golang.org/x/time/rate"
)

// LocalClient is a raw connection that has not yet (or may never) become a
// registered user or server link. Both LocalUser and LocalServer embed one,
// "upgrading" it once registration completes (spec §4.3's connection-layer
// framing, teacher's local_client.go idiom kept as-is).
type LocalClient struct {
	Catbox *Catbox
	ID     uint64
	Conn   net.Conn
	conn   Conn

	Hostname string

	WriteChan chan wire.Message

	ConnectionStartTime time.Time
	LastActivity        time.Time
	SentPing            bool
	SendQueueExceeded   bool

	Cap *feature.CapState

	quitting bool

	// Limiter paces inbound command processing (flood control), separate
	// from the outbound SendQ cap above. Only registered users are paced
	// (2 commands/s, burst 10); a command over the rate is dropped. Server
	// links and unregistered connections are not paced.
	Limiter *rate.Limiter

	// Pre-registration state (client path).
	PreRegNick     string
	PreRegUser     string
	PreRegRealName string

	// Pre-registration state (server-link path).
	PreRegPass       string
	PreRegServerName string
	GotPASS          bool
	GotSERVER        bool
	SentSERVER       bool
}

// NewLocalClient wraps a freshly accepted connection.
func NewLocalClient(cb *Catbox, id uint64, conn net.Conn) *LocalClient {
	host, _, err := net.SplitHostPort(conn.RemoteAddr().String())
	if err != nil {
		host = conn.RemoteAddr().String()
	}

	return &LocalClient{
		Catbox:              cb,
		ID:                  id,
		Conn:                conn,
		conn:                NewConn(conn, cb.Config.DeadTime),
		Hostname:            host,
		WriteChan:           make(chan wire.Message, 32768),
		ConnectionStartTime: time.Now(),
		LastActivity:        time.Now(),
		Cap:                 feature.NewCapState(),
		Limiter:             rate.NewLimiter(rate.Every(time.Second/2), 10),
	}
}

func (c *LocalClient) String() string {
	return c.Hostname
}

// maybeQueueMessage enqueues m without blocking; if the write queue is full
// the client is marked SendQueueExceeded and dropped on the next wakeup
// sweep, matching the teacher's SendQ-exceeded convention.
func (c *LocalClient) maybeQueueMessage(m wire.Message) {
	select {
	case c.WriteChan <- m:
	default:
		c.SendQueueExceeded = true
	}
}

func (c *LocalClient) readLoop() {
	defer c.Catbox.WG.Done()
	for {
		line, err := c.conn.Read()
		if err != nil {
			c.Catbox.newEvent <- Event{Type: EventDeadClient, Client: c, Err: err}
			return
		}

		m, err := wire.ParseMessage(line)
		if err != nil {
			log.Printf("malformed line from %s: %s", c, err)
			continue
		}

		c.Catbox.newEvent <- Event{Type: EventMessage, Client: c, Msg: m}
	}
}

func (c *LocalClient) writeLoop() {
	defer c.Catbox.WG.Done()
	for m := range c.WriteChan {
		if err := c.conn.WriteMessage(m); err != nil {
			c.Catbox.newEvent <- Event{Type: EventDeadClient, Client: c, Err: err}
			return
		}
	}
}

// quit is idempotent: the same client can be told to quit twice (once
// explicitly via a QUIT command, once more from a ping-timeout sweep that
// runs before the resulting EventDeadClient is processed) and must not
// double-close WriteChan.
func (c *LocalClient) quit(reason string) {
	if c.quitting {
		return
	}
	c.quitting = true
	c.maybeQueueMessage(wire.Message{Command: "ERROR", Params: []string{reason}})
	close(c.WriteChan)
	if c.Conn != nil {
		_ = c.Conn.Close()
	}
}

// handlePreRegMessage dispatches messages from a connection that has not
// yet completed either the client-registration or server-link handshake
// (spec §6's external interface / handshake sequencing).
func (c *LocalClient) handlePreRegMessage(verb string, m wire.Message) {
	c.LastActivity = time.Now()
	c.SentPing = false

	switch verb {
	case "PASS":
		c.passCommand(m)
	case "CAP":
		c.capCommand(m)
	case "NICK":
		c.preRegNickCommand(m)
	case "USER":
		c.preRegUserCommand(m)
	case "SERVER":
		c.serverCommand(m)
	case "PING":
		c.maybeQueueMessage(wire.Message{Command: "PONG", Params: m.Params})
	case "QUIT":
		c.quit("Client quit")
	default:
		c.messageFromServer("451", []string{"*", "You have not registered"})
	}
}

func (c *LocalClient) messageFromServer(command string, params []string) {
	prefix := c.Catbox.Config.ServerName
	if wire.IsNumericCommand(command) {
		nick := c.PreRegNick
		if nick == "" {
			nick = "*"
		}
		full := append([]string{nick}, params...)
		c.maybeQueueMessage(wire.Message{Prefix: prefix, Command: command, Params: full})
		return
	}
	c.maybeQueueMessage(wire.Message{Prefix: prefix, Command: command, Params: params})
}

// capCommand handles the subset of CAP needed for LS/REQ/ACK/END
// negotiation (spec §4.7); registration is held open while negotiating.
func (c *LocalClient) capCommand(m wire.Message) {
	if len(m.Params) < 1 {
		return
	}
	sub := strings.ToUpper(m.Params[0])
	nick := c.PreRegNick
	if nick == "" {
		nick = "*"
	}

	switch sub {
	case "LS":
		c.Cap.Begin()
		c.maybeQueueMessage(wire.Message{
			Prefix: c.Catbox.Config.ServerName, Command: "CAP",
			Params: []string{nick, "LS", strings.Join(feature.Advertised(), " ")},
		})
	case "REQ":
		if len(m.Params) < 2 {
			return
		}
		var accepted []string
		ok := true
		for _, name := range strings.Fields(m.Params[1]) {
			if c.Cap.Request(name) {
				accepted = append(accepted, name)
			} else {
				ok = false
			}
		}
		reply := "ACK"
		if !ok {
			reply = "NAK"
		}
		c.maybeQueueMessage(wire.Message{
			Prefix: c.Catbox.Config.ServerName, Command: "CAP",
			Params: []string{nick, reply, strings.Join(accepted, " ")},
		})
	case "LIST":
		c.maybeQueueMessage(wire.Message{
			Prefix: c.Catbox.Config.ServerName, Command: "CAP",
			Params: []string{nick, "LIST", strings.Join(c.Cap.Enabled(), " ")},
		})
	case "END":
		c.Cap.End()
		c.maybeAttemptUserRegistration()
	}
}

func (c *LocalClient) preRegNickCommand(m wire.Message) {
	if len(m.Params) < 1 {
		c.messageFromServer("431", []string{"No nickname given"})
		return
	}
	nick, ok := wire.DoNickName(m.Params[0], c.Catbox.Config.MaxNickLength)
	if !ok {
		c.messageFromServer("432", []string{m.Params[0], "Erroneous nickname"})
		return
	}
	if c.Catbox.Reg.FindUser(nick) != nil {
		c.messageFromServer("433", []string{nick, "Nickname is already in use"})
		return
	}
	if _, juped := c.Catbox.Jupes[wire.CanonicalizeNick(nick)]; juped {
		c.messageFromServer("437", []string{nick, "Nick/channel is temporarily unavailable"})
		return
	}
	c.PreRegNick = nick
	c.maybeAttemptUserRegistration()
}

func (c *LocalClient) preRegUserCommand(m wire.Message) {
	if len(m.Params) < 4 {
		c.messageFromServer("461", []string{"USER", "Not enough parameters"})
		return
	}
	c.PreRegUser = m.Params[0]
	c.PreRegRealName = m.Params[3]
	c.maybeAttemptUserRegistration()
}

func (c *LocalClient) maybeAttemptUserRegistration() {
	if c.Cap.Negotiating() {
		return
	}
	if c.PreRegNick == "" || c.PreRegUser == "" {
		return
	}
	registerLocalUser(c)
}

// passCommand handles the server-link handshake's PASS line: "PASS <pass>
// TS 10 :<numeric>" in this core's P10 dialect, grounded on local_client.go's
// TS6 passCommand but keyed on a P10 numeric rather than a TS6 SID.
func (c *LocalClient) passCommand(m wire.Message) {
	if len(m.Params) < 4 {
		c.quit("Malformed PASS")
		return
	}
	c.PreRegPass = m.Params[0]
	c.GotPASS = true
}

// serverCommand handles the inbound SERVER line completing (or initiating)
// a server-to-server link (spec §6's burst sequence).
func (c *LocalClient) serverCommand(m wire.Message) {
	if len(m.Params) < 2 {
		c.quit("Malformed SERVER")
		return
	}
	name := m.Params[0]

	if _, juped := c.Catbox.Jupes[strings.ToLower(name)]; juped {
		c.quit("Server is juped")
		return
	}

	link, ok := c.Catbox.Config.FindServerLink(name)
	if !ok {
		c.quit("Not configured to link with " + name)
		return
	}
	if !c.GotPASS || c.PreRegPass != link.Pass {
		c.quit("Bad password")
		return
	}
	if c.Catbox.isLinkedToServer(name) {
		c.quit("Already linked")
		return
	}

	c.PreRegServerName = name
	c.GotSERVER = true

	if !c.SentSERVER {
		c.sendServerIntro(link.Pass)
	}

	registerLocalServer(c)
}

func (c *LocalClient) sendServerIntro(pass string) {
	selfNum, _ := numeric.EncodeServer(c.Catbox.SelfNumeric)
	c.maybeQueueMessage(wire.Message{Command: "PASS", Params: []string{pass, "TS", "10", selfNum}})
	c.maybeQueueMessage(wire.Message{
		Command: "SERVER",
		Params:  []string{c.Catbox.Config.ServerName, "1", c.Catbox.Config.ServerInfo},
	})
	c.SentSERVER = true
}
