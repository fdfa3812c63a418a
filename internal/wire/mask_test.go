package wire

import "testing"

func TestMatchMask(t *testing.T) {
	tests := []struct {
		pattern, s string
		want       bool
	}{
		{"*!*@*.example.net", "foo!bar@irc.example.net", true},
		{"*!*@*.example.net", "foo!bar@irc.example.com", false},
		{"nick?!*@*", "nick1!user@host", true},
		{"nick?!*@*", "nick12!user@host", false},
		{"Foo!*@*", "foo!bar@host", true}, // case-insensitive
		{"*", "anything", true},
		{"exact", "exact", true},
		{"exact", "notexact", false},
	}
	for _, test := range tests {
		if got := MatchMask(test.pattern, test.s); got != test.want {
			t.Errorf("MatchMask(%q, %q) = %v, wanted %v", test.pattern, test.s, got, test.want)
		}
	}
}
