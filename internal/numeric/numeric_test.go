package numeric

import (
	"net"
	"testing"
)

func TestServerRoundTrip(t *testing.T) {
	for _, n := range []Server{0, 1, 63, 64, 4095} {
		enc, err := EncodeServer(n)
		if err != nil {
			t.Fatalf("EncodeServer(%d) = %s", n, err)
		}
		if len(enc) != 2 {
			t.Fatalf("EncodeServer(%d) = %q, wanted length 2", n, enc)
		}
		dec, err := DecodeServer(enc)
		if err != nil {
			t.Fatalf("DecodeServer(%q) = %s", enc, err)
		}
		if dec != n {
			t.Errorf("round trip %d -> %q -> %d", n, enc, dec)
		}
	}
}

func TestUserRoundTrip(t *testing.T) {
	for _, idx := range []User{0, 1, 4095, 262143} {
		enc, err := EncodeUser(5, idx)
		if err != nil {
			t.Fatalf("EncodeUser(5, %d) = %s", idx, err)
		}
		if len(enc) != 5 {
			t.Fatalf("EncodeUser(5, %d) = %q, wanted length 5", idx, enc)
		}
		server, dec, err := DecodeUser(enc)
		if err != nil {
			t.Fatalf("DecodeUser(%q) = %s", enc, err)
		}
		if server != 5 || dec != idx {
			t.Errorf("round trip server=5 idx=%d -> %q -> server=%d idx=%d", idx, enc, server, dec)
		}
	}
}

func TestDecodeServerInvalid(t *testing.T) {
	if _, err := DecodeServer("x"); err == nil {
		t.Error("DecodeServer(\"x\") = nil error, wanted error (wrong length)")
	}
	if _, err := DecodeServer("!!"); err == nil {
		t.Error("DecodeServer(\"!!\") = nil error, wanted error (invalid char)")
	}
}

func TestAllocatorSequential(t *testing.T) {
	a := NewAllocator(1)
	first, err := a.Next()
	if err != nil {
		t.Fatalf("Next() = %s", err)
	}
	second, err := a.Next()
	if err != nil {
		t.Fatalf("Next() = %s", err)
	}
	if first == second {
		t.Errorf("Next() returned the same numeric twice: %q", first)
	}
}

func TestIPv4RoundTrip(t *testing.T) {
	ip := net.IPv4(127, 0, 0, 1)
	enc, err := IPToBase64(ip)
	if err != nil {
		t.Fatalf("IPToBase64 = %s", err)
	}
	dec, err := Base64ToIP(enc)
	if err != nil {
		t.Fatalf("Base64ToIP(%q) = %s", enc, err)
	}
	if !dec.Equal(ip) {
		t.Errorf("round trip %v -> %q -> %v", ip, enc, dec)
	}
}
