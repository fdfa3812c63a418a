package wire

import "strings"

// MatchMask reports whether s matches the glob pattern (case-insensitive),
// where "*" matches any run of characters and "?" matches exactly one. This
// is the matching rule shared by RelayCore's "$mask" routing and
// ChannelCore's ban/except lists (spec §4.4, §4.6) — both compare against a
// nick!user@host-shaped string.
func MatchMask(pattern, s string) bool {
	return matchFold(strings.ToLower(pattern), strings.ToLower(s))
}

func matchFold(pattern, s string) bool {
	for len(pattern) > 0 {
		switch pattern[0] {
		case '*':
			// Collapse runs of '*' and try every split point.
			for len(pattern) > 1 && pattern[1] == '*' {
				pattern = pattern[1:]
			}
			if len(pattern) == 1 {
				return true
			}
			for i := 0; i <= len(s); i++ {
				if matchFold(pattern[1:], s[i:]) {
					return true
				}
			}
			return false
		case '?':
			if len(s) == 0 {
				return false
			}
			pattern = pattern[1:]
			s = s[1:]
		default:
			if len(s) == 0 || s[0] != pattern[0] {
				return false
			}
			pattern = pattern[1:]
			s = s[1:]
		}
	}
	return len(s) == 0
}
