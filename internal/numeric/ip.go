package numeric

import (
	"net"

	"github.com/pkg/errors"
)

// Base64ToIP decodes a P10 base-64 encoded IP address (spec §4.1): 6
// characters for an IPv4 address (the 32-bit address as six base-64 digits,
// most significant first, the form IPToBase64 emits), 4 characters for a
// short IPv4 form with one base-64 digit per octet (so only octets 0..63),
// 24 characters for an IPv6 address. A literal "_" may
// appear as a zero-run marker depending on the configured dialect;
// implementations must accept both forms and emit the current dialect, so
// decoding tolerates "_" wherever a valid base-64 digit is expected by
// treating it as the value 0.
func Base64ToIP(s string) (net.IP, error) {
	switch len(s) {
	case 4:
		return decodeIPv4(s)
	case 6:
		var v uint32
		for i := 0; i < 6; i++ {
			d, err := valueOf(s[i])
			if err != nil {
				return nil, err
			}
			v = v<<6 | uint32(d)
		}
		return net.IPv4(byte(v>>24), byte(v>>16), byte(v>>8), byte(v)), nil
	case 24:
		return decodeIPv6(s)
	default:
		return nil, errors.Errorf("base64 IP %q has unsupported length", s)
	}
}

func decodeIPv4(s string) (net.IP, error) {
	var octets [4]byte
	for i := 0; i < 4; i++ {
		v, err := valueOf(s[i])
		if err != nil {
			return nil, err
		}
		octets[i] = v
	}
	return net.IPv4(octets[0], octets[1], octets[2], octets[3]), nil
}

// decodeIPv6 unpacks 24 base-64 characters as 8 groups of 3 characters (18
// bits), taking the top 16 bits of each group as one IPv6 16-bit word. This
// is the inverse of the packing ipv6Group below uses for encoding.
func decodeIPv6(s string) (net.IP, error) {
	out := make(net.IP, 16)
	for i := 0; i < 8; i++ {
		a, err := valueOf(s[i*3])
		if err != nil {
			return nil, err
		}
		b, err := valueOf(s[i*3+1])
		if err != nil {
			return nil, err
		}
		c, err := valueOf(s[i*3+2])
		if err != nil {
			return nil, err
		}
		group := uint32(a)<<12 | uint32(b)<<6 | uint32(c)
		word := uint16(group >> 2)
		out[i*2] = byte(word >> 8)
		out[i*2+1] = byte(word)
	}
	return out, nil
}

func valueOf(c byte) (byte, error) {
	if c == '_' {
		return 0, nil
	}
	v := charToValue[c]
	if v < 0 {
		return 0, errors.Errorf("invalid base64 IP digit %q", c)
	}
	return byte(v), nil
}

// IPToBase64 encodes an IP address in the current (non-underscore) dialect.
func IPToBase64(ip net.IP) (string, error) {
	if v4 := ip.To4(); v4 != nil {
		v := uint32(v4[0])<<24 | uint32(v4[1])<<16 | uint32(v4[2])<<8 | uint32(v4[3])
		out := make([]byte, 6)
		for i := 5; i >= 0; i-- {
			out[i] = alphabet[v&0x3f]
			v >>= 6
		}
		return string(out), nil
	}
	v6 := ip.To16()
	if v6 == nil {
		return "", errors.New("not a valid IP address")
	}
	out := make([]byte, 24)
	for i := 0; i < 8; i++ {
		word := uint32(v6[i*2])<<8 | uint32(v6[i*2+1])
		group := word << 2
		out[i*3] = alphabet[(group>>12)&0x3f]
		out[i*3+1] = alphabet[(group>>6)&0x3f]
		out[i*3+2] = alphabet[group&0x3f]
	}
	return string(out), nil
}
