package wire

import "testing"

func TestDoNickName(t *testing.T) {
	tests := []struct {
		nick    string
		maxLen  int
		want    string
		success bool
	}{
		{"foo", 9, "foo", true},
		{"foo123456789", 9, "foo123456", true}, // truncated first, then validated
		{"1foo", 9, "", false},                 // leading digit reserved for numerics
		{"", 9, "", false},
		{"foo-bar", 9, "foo-bar", true},
	}

	for _, test := range tests {
		got, ok := DoNickName(test.nick, test.maxLen)
		if ok != test.success {
			t.Errorf("DoNickName(%q, %d) ok = %v, wanted %v", test.nick, test.maxLen, ok, test.success)
			continue
		}
		if ok && got != test.want {
			t.Errorf("DoNickName(%q, %d) = %q, wanted %q", test.nick, test.maxLen, got, test.want)
		}
	}
}

func TestCanonicalizeNick(t *testing.T) {
	tests := []struct{ in, out string }{
		{"Foo", "foo"},
		{"Fo[o]", "fo{o}"},
		{"a^b", "a~b"},
		{`a\b`, "a|b"},
	}
	for _, test := range tests {
		if got := CanonicalizeNick(test.in); got != test.out {
			t.Errorf("CanonicalizeNick(%q) = %q, wanted %q", test.in, got, test.out)
		}
	}
}

func TestIsValidChannelName(t *testing.T) {
	tests := []struct {
		name string
		want bool
	}{
		{"#general", true},
		{"&local", true},
		{"+modeless", true},
		{"general", false},
		{"#", false},
		{"#with space", false},
	}
	for _, test := range tests {
		if got := IsValidChannelName(test.name, 50); got != test.want {
			t.Errorf("IsValidChannelName(%q) = %v, wanted %v", test.name, got, test.want)
		}
	}
}
