package feature

// CapFlag holds the per-capability negotiation flags (spec §4.7).
type CapFlag int

// Capability flag bits.
const (
	// CapHidden: not advertised in CAP LS.
	CapHidden CapFlag = 1 << iota
	// CapProhibit: client cannot request this capability.
	CapProhibit
	// CapProto: must be ACKed before it takes effect.
	CapProto
	// CapSticky: cannot be cleared once set.
	CapSticky
)

// CapDefinition is one entry in the closed capability table (spec §9's
// design note applies here too: one table, not macros).
type CapDefinition struct {
	Name  string
	Flags CapFlag
}

// Capabilities is the expanded capability header variant named in spec §9's
// Open Questions resolution: the spec adopts the expanded list, and "NONE"
// capability tokens are treated as Hidden|Prohibit.
var Capabilities = []CapDefinition{
	{"multi-prefix", 0},
	{"sasl", CapProhibit}, // SASL auth itself is an external collaborator (spec §1)
	{"server-time", 0},
	{"echo-message", 0},
	{"userhost-in-names", 0},
	{"NONE", CapHidden | CapProhibit},
}

func definitionFor(name string) (CapDefinition, bool) {
	for _, c := range Capabilities {
		if c.Name == name {
			return c, true
		}
	}
	return CapDefinition{}, false
}

// CapState tracks one local client's capability negotiation across
// LS/REQ/ACK/END (spec §4.7).
type CapState struct {
	negotiating bool
	enabled     map[string]struct{}
}

// NewCapState creates an empty CapState.
func NewCapState() *CapState {
	return &CapState{enabled: make(map[string]struct{})}
}

// Begin marks negotiation as started (CAP LS seen); registration is held
// until End() is called.
func (c *CapState) Begin() { c.negotiating = true }

// Negotiating reports whether CAP negotiation is in progress (registration
// should be held).
func (c *CapState) Negotiating() bool { return c.negotiating }

// End completes negotiation (CAP END), releasing registration.
func (c *CapState) End() { c.negotiating = false }

// Advertised returns the capability names visible in CAP LS: every
// capability without the Hidden flag.
func Advertised() []string {
	var out []string
	for _, c := range Capabilities {
		if c.Flags&CapHidden == 0 {
			out = append(out, c.Name)
		}
	}
	return out
}

// Request attempts to enable a capability by name (CAP REQ), returning
// whether it was accepted. A Prohibit-flagged capability is always refused.
func (c *CapState) Request(name string) bool {
	def, ok := definitionFor(name)
	if !ok {
		return false
	}
	if def.Flags&CapProhibit != 0 {
		return false
	}
	c.enabled[name] = struct{}{}
	return true
}

// Clear disables a capability, refusing to do so if it is Sticky.
func (c *CapState) Clear(name string) bool {
	def, ok := definitionFor(name)
	if ok && def.Flags&CapSticky != 0 {
		return false
	}
	delete(c.enabled, name)
	return true
}

// Has reports whether a capability is currently enabled.
func (c *CapState) Has(name string) bool {
	_, ok := c.enabled[name]
	return ok
}

// Enabled returns all currently enabled capability names.
func (c *CapState) Enabled() []string {
	out := make([]string, 0, len(c.enabled))
	for name := range c.enabled {
		out = append(out, name)
	}
	return out
}
