// Package numeric implements IdSpace (spec §4.1): allocation and
// encode/decode of P10 base-64 server and user numerics.
//
// Servers are addressed by a 2-character numeric; users by a 5-character
// SSNNN numeric where SS is the home server's numeric. The alphabet is the
// 64-character set A-Z a-z 0-9 [ ] in the canonical P10 order.
package numeric

import "github.com/pkg/errors"

// alphabet is the P10 base-64 alphabet in canonical order.
const alphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789[]"

var charToValue [256]int8

func init() {
	for i := range charToValue {
		charToValue[i] = -1
	}
	for i := 0; i < len(alphabet); i++ {
		charToValue[alphabet[i]] = int8(i)
	}
}

// ErrInvalidNumeric is returned when a numeric token cannot be decoded (spec
// §4.1: "malformed numerics return InvalidNumeric").
var ErrInvalidNumeric = errors.New("invalid numeric")

// Server is a decoded 2-character server numeric, 0..4095 (64*64).
type Server uint16

// User is a decoded 5-character user numeric's per-server index, 0..262143
// (64^3).
type User uint32

// EncodeServer renders a server numeric as its 2-character wire form.
func EncodeServer(n Server) (string, error) {
	if n > 4095 {
		return "", errors.Wrapf(ErrInvalidNumeric, "server index %d out of range", n)
	}
	hi := alphabet[n/64]
	lo := alphabet[n%64]
	return string([]byte{hi, lo}), nil
}

// DecodeServer parses a 2-character server numeric.
func DecodeServer(s string) (Server, error) {
	if len(s) != 2 {
		return 0, errors.Wrapf(ErrInvalidNumeric, "server numeric %q wrong length", s)
	}
	hi := charToValue[s[0]]
	lo := charToValue[s[1]]
	if hi < 0 || lo < 0 {
		return 0, errors.Wrapf(ErrInvalidNumeric, "server numeric %q has invalid character", s)
	}
	return Server(int(hi)*64 + int(lo)), nil
}

// EncodeUser renders a user numeric as its 5-character SSNNN wire form: the
// 2-character server numeric followed by the 3-character per-server index.
func EncodeUser(server Server, index User) (string, error) {
	if index > 262143 {
		return "", errors.Wrapf(ErrInvalidNumeric, "user index %d out of range", index)
	}
	s, err := EncodeServer(server)
	if err != nil {
		return "", err
	}
	a := alphabet[(index/4096)%64]
	b := alphabet[(index/64)%64]
	c := alphabet[index%64]
	return s + string([]byte{a, b, c}), nil
}

// DecodeUser parses a 5-character SSNNN user numeric into its server numeric
// and per-server index.
func DecodeUser(u string) (Server, User, error) {
	if len(u) != 5 {
		return 0, 0, errors.Wrapf(ErrInvalidNumeric, "user numeric %q wrong length", u)
	}
	server, err := DecodeServer(u[:2])
	if err != nil {
		return 0, 0, err
	}
	a := charToValue[u[2]]
	b := charToValue[u[3]]
	c := charToValue[u[4]]
	if a < 0 || b < 0 || c < 0 {
		return 0, 0, errors.Wrapf(ErrInvalidNumeric, "user numeric %q has invalid character", u)
	}
	index := User(int(a)*4096 + int(b)*64 + int(c))
	return server, index, nil
}

// Allocator hands out sequential per-server user indices, wrapping within
// the 18-bit index space. A real deployment would also recycle indices freed
// by departed users; this core keeps the simple monotonic-with-wraparound
// scheme, matching the "stable for the duration of the link session"
// requirement in the glossary.
type Allocator struct {
	server Server
	next   User
}

// NewAllocator creates an Allocator for the given server numeric.
func NewAllocator(server Server) *Allocator {
	return &Allocator{server: server}
}

// Next allocates the next user numeric for this server.
func (a *Allocator) Next() (string, error) {
	for i := 0; i < 1<<18; i++ {
		idx := a.next
		a.next = (a.next + 1) % 262144
		n, err := EncodeUser(a.server, idx)
		if err != nil {
			return "", err
		}
		return n, nil
	}
	return "", errors.New("user numeric space exhausted")
}
