package wire

// Verb tokens appear in two forms on the wire: the long name used over
// client links, and the short token used between servers (spec §6). The
// tables below let the codec accept and the relay emit either, by dialect.

var longToShort = map[string]string{
	"PRIVMSG": "P",
	"NOTICE":  "O",
	"NICK":    "N",
	"JOIN":    "J",
	"PART":    "L",
	"MODE":    "M",
	"TOPIC":   "T",
	"KILL":    "D",
	"QUIT":    "Q",
	"SQUIT":   "SQ",
	"SERVER":  "S",
	"PASS":    "PA",
	"PING":    "G",
	"PONG":    "Z",
	"BURST":   "B",
	"WALLOPS": "WA",
	"ENCAP":   "ENCAP",
	"WHOIS":   "W",
	"AWAY":    "A",
	"CAP":     "CAP",
	"KICK":    "K",
	"INVITE":  "I",
	"SILENCE": "SILENCE",
}

var shortToLong map[string]string

func init() {
	shortToLong = make(map[string]string, len(longToShort))
	for long, short := range longToShort {
		shortToLong[short] = long
	}
}

// CanonicalVerb maps either a long-name or short-token verb to its long-name
// form, which the Dispatcher keys its handler table on (spec §4.3: "the
// codec table maps both").
func CanonicalVerb(verb string) string {
	if long, ok := shortToLong[verb]; ok {
		return long
	}
	return verb
}

// ShortVerb returns the short inter-server token for a long-name verb, or the
// verb unchanged if no short form is registered (numerics and commands with
// no short form, e.g. SVINFO, CAPAB, UID-equivalent NICK-with-numeric
// introduction, pass through as-is).
func ShortVerb(verb string) string {
	if short, ok := longToShort[verb]; ok {
		return short
	}
	return verb
}

// IsNumericCommand reports whether a command is a 3-digit numeric reply.
func IsNumericCommand(command string) bool {
	if len(command) != 3 {
		return false
	}
	for _, c := range command {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}
