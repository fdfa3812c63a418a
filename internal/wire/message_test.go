package wire

import "testing"

func TestSourceNick(t *testing.T) {
	tests := []struct {
		input  Message
		output string
	}{
		{Message{}, ""},
		{Message{Prefix: "blah"}, ""},
		{Message{Prefix: "!"}, ""},
		{Message{Prefix: "hi!"}, "hi"},
		{Message{Prefix: "hi!~hello@hey"}, "hi"},
	}

	for _, test := range tests {
		got := test.input.SourceNick()
		if got != test.output {
			t.Errorf("%+v.SourceNick() = %s, wanted %s", test.input, got, test.output)
		}
	}
}

func TestParseMessage(t *testing.T) {
	tests := []struct {
		input   string
		prefix  string
		command string
		params  []string
		success bool
	}{
		{":AB PRIVMSG\r\n", "AB", "PRIVMSG", []string{}, true},
		{":AB PRIVMSG", "", "", []string{}, false},
		{":AB \r\n", "", "", []string{}, false},
		{"PRIVMSG\r\n", "", "PRIVMSG", []string{}, true},
		{"PRIVMSG :hi there\r\n", "", "PRIVMSG", []string{"hi there"}, true},
		{": PRIVMSG \r\n", "", "", []string{}, false},
		{":AB PRIVMSG blah\r\n", "AB", "PRIVMSG", []string{"blah"}, true},
		{":AB 001 :Welcome\r\n", "AB", "001", []string{"Welcome"}, true},
		{":AB 001\r\n", "AB", "001", []string{}, true},
		{":AB PRIVMSG \r\n", "AB", "PRIVMSG", []string{}, true},
	}

	for _, test := range tests {
		m, err := ParseMessage(test.input)
		if test.success && err != nil {
			t.Errorf("ParseMessage(%q) = error %s, wanted success", test.input, err)
			continue
		}
		if !test.success {
			if err == nil {
				t.Errorf("ParseMessage(%q) = success, wanted error", test.input)
			}
			continue
		}
		if m.Prefix != test.prefix || m.Command != test.command || len(m.Params) != len(test.params) {
			t.Errorf("ParseMessage(%q) = %+v, wanted prefix=%s command=%s params=%v",
				test.input, m, test.prefix, test.command, test.params)
		}
	}
}

func TestEncodeRoundTrip(t *testing.T) {
	m := Message{Prefix: "AB", Command: "PRIVMSG", Params: []string{"#chan", "hi there"}}
	line, err := m.Encode()
	if err != nil {
		t.Fatalf("Encode() = %s", err)
	}

	decoded, err := ParseMessage(line)
	if err != nil {
		t.Fatalf("ParseMessage(%q) = %s", line, err)
	}
	if decoded.Prefix != m.Prefix || decoded.Command != m.Command {
		t.Errorf("round trip = %+v, wanted %+v", decoded, m)
	}
	if len(decoded.Params) != 2 || decoded.Params[1] != "hi there" {
		t.Errorf("round trip params = %v", decoded.Params)
	}
}

func TestEncodeTruncatesOversizeTrailing(t *testing.T) {
	big := make([]byte, 600)
	for i := range big {
		big[i] = 'x'
	}
	m := Message{Command: "PRIVMSG", Params: []string{"#chan", string(big)}}
	line, err := m.Encode()
	if err != ErrTruncated {
		t.Fatalf("Encode() err = %v, wanted ErrTruncated", err)
	}
	if len(line) > MaxLineLength {
		t.Errorf("Encode() produced a line longer than MaxLineLength: %d", len(line))
	}
}
