// Package wire implements the P10 line codec: decoding and encoding a single
// wire line of the shape "[:prefix] verb [params...] [:trailing]".
//
// Grounded on the teacher's github.com/horgh/irc decode.go/encode.go, adapted
// from TS6's long-name-only verbs to P10's dual long/short verb tokens and
// numeric (not alphanumeric SID/UID) prefixes.
package wire

import (
	"strings"

	"github.com/pkg/errors"
)

// MaxLineLength is the maximum wire line length, including the terminating
// CRLF, per the P10 line shape (spec §4.3).
const MaxLineLength = 512

// ErrTruncated is returned by Encode when the message had to be shortened to
// fit within MaxLineLength. The returned string is still a well-formed line.
var ErrTruncated = errors.New("message truncated")

var errEmptyParam = errors.New("parameter with zero characters")

// Message holds one decoded protocol line.
//
// Between servers Prefix holds a numeric (2 or 5 characters, see
// internal/numeric). Between a server and a local client it holds a nickname,
// or is blank ("source = connection peer").
type Message struct {
	Prefix  string
	Command string
	Params  []string
}

func (m Message) String() string {
	return "Prefix [" + m.Prefix + "] Command [" + m.Command + "] Params " +
		strings.Join(m.Params, ", ")
}

// SourceNick returns the nick portion of a client-shaped prefix
// (nick!user@host), or "" if the prefix isn't in that shape.
func (m Message) SourceNick() string {
	idx := strings.Index(m.Prefix, "!")
	if idx == -1 {
		return ""
	}
	return m.Prefix[:idx]
}

// ParseMessage decodes one line. line must include the trailing CRLF (a bare
// LF is tolerated and normalized).
//
// Failure modes map to the two decode error kinds named in spec §4.3:
// MalformedLine (returned as a plain error here; callers drop the line and
// log it) and OversizeLine (a line longer than MaxLineLength is refused with
// an "oversize line" error; ErrTruncated is never returned by the parser).
func ParseMessage(line string) (Message, error) {
	line, err := fixLineEnding(line)
	if err != nil {
		return Message{}, errors.Wrap(err, "malformed line ending")
	}

	if len(line) > MaxLineLength {
		return Message{}, errors.New("oversize line")
	}

	message := Message{}
	index := 0

	if line[0] == ':' {
		prefix, prefixIndex, err := parsePrefix(line)
		if err != nil {
			return Message{}, errors.Wrap(err, "malformed prefix")
		}
		index = prefixIndex
		message.Prefix = prefix

		if index >= len(line) {
			return Message{}, errors.New("malformed message: prefix only")
		}
	}

	command, index, err := parseCommand(line, index)
	if err != nil {
		return Message{}, errors.Wrap(err, "malformed command")
	}
	message.Command = command

	params, index, err := parseParams(line, index)
	if err != nil {
		return Message{}, errors.Wrap(err, "malformed params")
	}
	if len(params) > 15 {
		return Message{}, errors.New("too many parameters")
	}
	message.Params = params

	if index != len(line)-2 || line[index] != '\r' || line[index+1] != '\n' {
		return Message{}, errors.New("malformed message: no CRLF found")
	}

	return message, nil
}

func fixLineEnding(line string) (string, error) {
	if len(line) == 0 {
		return "", errors.New("line is blank")
	}
	if len(line) == 1 {
		if line[0] == '\n' {
			return "\r\n", nil
		}
		return "", errors.New("line does not end with LF")
	}

	last := len(line) - 1
	secondLast := last - 1

	if line[secondLast] == '\r' && line[last] == '\n' {
		return line, nil
	}
	if line[last] == '\n' {
		return line[:last] + "\r\n", nil
	}
	return "", errors.New("line has no CRLF or LF ending")
}

func parsePrefix(line string) (string, int, error) {
	pos := 0

	if line[pos] != ':' {
		return "", -1, errors.New("line does not start with ':'")
	}

	for pos < len(line) {
		if line[pos] == ' ' {
			break
		}
		if line[pos] == '\x00' || line[pos] == '\n' || line[pos] == '\r' {
			return "", -1, errors.Errorf("invalid character in prefix: %q", line[pos])
		}
		pos++
	}

	if pos == len(line) {
		return "", -1, errors.New("no space found after prefix")
	}
	if pos == 1 {
		return "", -1, errors.New("prefix is zero length")
	}

	return line[1:pos], pos + 1, nil
}

func parseCommand(line string, index int) (string, int, error) {
	newIndex := index

	for newIndex < len(line) {
		c := line[newIndex]
		if c >= '0' && c <= '9' {
			newIndex++
			continue
		}
		if c >= 'A' && c <= 'Z' || c >= 'a' && c <= 'z' {
			newIndex++
			continue
		}
		if c != ' ' && c != '\r' {
			return "", -1, errors.Errorf("unexpected character after command: %q", c)
		}
		break
	}

	if newIndex == index {
		return "", -1, errors.New("zero length command")
	}

	return strings.ToUpper(line[index:newIndex]), newIndex, nil
}

func parseParams(line string, index int) ([]string, int, error) {
	newIndex := index
	var params []string

	for newIndex < len(line) {
		if line[newIndex] != ' ' {
			return params, newIndex, nil
		}

		param, paramIndex, err := parseParam(line, newIndex)
		if err != nil {
			if errors.Cause(err) == errEmptyParam {
				crIndex := isTrailingSpace(line, newIndex)
				if crIndex != -1 {
					return params, crIndex, nil
				}
			}
			return nil, -1, err
		}

		newIndex = paramIndex
		params = append(params, param)
	}

	return nil, -1, errors.New("params not terminated properly")
}

func parseParam(line string, index int) (string, int, error) {
	newIndex := index

	if line[newIndex] != ' ' {
		return "", -1, errors.New("malformed param: no leading space")
	}
	newIndex++

	if len(line) == newIndex {
		return "", -1, errors.New("malformed param: end of string after space")
	}

	if line[newIndex] == ':' {
		newIndex++
		start := newIndex
		for newIndex < len(line) {
			if line[newIndex] == '\x00' || line[newIndex] == '\r' || line[newIndex] == '\n' {
				break
			}
			newIndex++
		}
		return line[start:newIndex], newIndex, nil
	}

	start := newIndex
	for newIndex < len(line) {
		c := line[newIndex]
		if c == '\x00' || c == '\r' || c == '\n' || c == ' ' {
			break
		}
		newIndex++
	}

	if start == newIndex {
		return "", -1, errEmptyParam
	}

	return line[start:newIndex], newIndex, nil
}

func isTrailingSpace(line string, index int) int {
	for i := index; i < len(line); i++ {
		if line[i] == ' ' {
			continue
		}
		if line[i] == '\r' {
			return i
		}
		return -1
	}
	return -1
}

// Encode renders the message as a wire line terminated by CRLF.
//
// Per spec §4.3, encoding always produces <= 510 bytes of payload (excluding
// CRLF); a trailing parameter that would overflow that is truncated at a byte
// boundary and ErrTruncated is returned, but the returned line is still a
// complete, well-formed line.
func (m Message) Encode() (string, error) {
	s := ""

	if len(m.Prefix) > 0 {
		s += ":" + m.Prefix + " "
	}
	s += m.Command

	if len(s)+2 > MaxLineLength {
		return "", errors.New("message with only prefix/command is too long")
	}

	if len(m.Params) > 15 {
		return "", errors.New("too many parameters")
	}

	truncated := false

	for i, param := range m.Params {
		if idx := strings.IndexByte(param, ' '); idx != -1 ||
			(param != "" && param[0] == ':') ||
			param == "" {
			param = ":" + param

			if i+1 != len(m.Params) {
				return "", errors.New("':' or ' ' outside last parameter")
			}
		}

		if len(s)+1+len(param)+2 > MaxLineLength {
			lengthUsed := len(s) + 1 + 2
			lengthAvailable := MaxLineLength - lengthUsed

			if lengthAvailable > 0 {
				s += " " + param[0:lengthAvailable]
			}

			truncated = true
			break
		}

		s += " " + param
	}

	s += "\r\n"

	if truncated {
		return s, ErrTruncated
	}
	return s, nil
}
