package wire

// Character-class validation for nicknames and channel names, grounded on
// ircu2's do_nick_name()/IsNickChar table (original_source/ircd/m_nick.c) and
// generalized from the teacher's isValidNick/isValidChannel in util.go.

const specialChars = "-[]\\`^{}_|"

// IsNickChar reports whether r is legal anywhere in a nickname after the
// first character.
func IsNickChar(r byte) bool {
	if r >= 'a' && r <= 'z' {
		return true
	}
	if r >= 'A' && r <= 'Z' {
		return true
	}
	if r >= '0' && r <= '9' {
		return true
	}
	for i := 0; i < len(specialChars); i++ {
		if specialChars[i] == r {
			return true
		}
	}
	return false
}

// IsNickLeadChar reports whether r may be the first character of a nickname.
// Digits are excluded: a leading digit is reserved for the numeric address
// space (spec §4.1).
func IsNickLeadChar(r byte) bool {
	if r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' {
		return true
	}
	for i := 0; i < len(specialChars); i++ {
		if specialChars[i] == r {
			return true
		}
	}
	return false
}

// DoNickName validates and truncates a candidate nick to maxLen, the
// ircu2-grounded equivalent of do_nick_name(): truncate first, then
// character-class check the truncated result (spec §8 boundary case: a nick
// of length NICKLEN+1 is truncated to NICKLEN at entry).
func DoNickName(nick string, maxLen int) (string, bool) {
	if len(nick) == 0 {
		return "", false
	}
	if len(nick) > maxLen {
		nick = nick[:maxLen]
	}
	if !IsNickLeadChar(nick[0]) {
		return "", false
	}
	for i := 1; i < len(nick); i++ {
		if !IsNickChar(nick[i]) {
			return "", false
		}
	}
	return nick, true
}

// IsChannelChar reports whether r is legal in a channel name after the sigil.
func IsChannelChar(r byte) bool {
	switch r {
	case ' ', ',', '\x07', '\x00', '\r', '\n':
		return false
	}
	return true
}

// IsValidChannelName reports whether name is a well-formed channel name:
// '#'/'&'/'+' sigil (spec §3: "#... &... local, +... modeless") followed by
// at least one legal character, within maxLen.
func IsValidChannelName(name string, maxLen int) bool {
	if len(name) < 2 || len(name) > maxLen {
		return false
	}
	switch name[0] {
	case '#', '&', '+':
	default:
		return false
	}
	for i := 1; i < len(name); i++ {
		if !IsChannelChar(name[i]) {
			return false
		}
	}
	return true
}

// IsValidUser reports whether u is a well-formed username/ident token.
func IsValidUser(maxLen int, u string) bool {
	if len(u) == 0 || len(u) > maxLen {
		return false
	}
	for i := 0; i < len(u); i++ {
		c := u[i]
		if c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9' {
			continue
		}
		return false
	}
	return true
}

// CanonicalizeNick casefolds a nickname using the traditional rfc1459
// mapping, where {|}~ are the lowercase equivalents of [\]^ (spec §4.2).
func CanonicalizeNick(n string) string {
	return rfc1459Fold(n)
}

// CanonicalizeChannel casefolds a channel name the same way.
func CanonicalizeChannel(c string) string {
	return rfc1459Fold(c)
}

func rfc1459Fold(s string) string {
	out := make([]byte, len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= 'A' && c <= 'Z':
			c += 'a' - 'A'
		case c == '[':
			c = '{'
		case c == ']':
			c = '}'
		case c == '\\':
			c = '|'
		case c == '^':
			c = '~'
		}
		out[i] = c
	}
	return string(out)
}
