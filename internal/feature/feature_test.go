package feature

import "testing"

func TestSetGetReset(t *testing.T) {
	s := NewSet()

	v, err := s.Get(FeatNickLen)
	if err != nil {
		t.Fatalf("Get(FeatNickLen) = %s", err)
	}
	if v != 15 {
		t.Errorf("default NICKLEN = %v, wanted 15", v)
	}

	if err := s.Set(FeatNickLen, 20); err != nil {
		t.Fatalf("Set = %s", err)
	}
	v, _ = s.Get(FeatNickLen)
	if v != 20 {
		t.Errorf("NICKLEN after Set = %v, wanted 20", v)
	}

	if err := s.Reset(FeatNickLen); err != nil {
		t.Fatalf("Reset = %s", err)
	}
	v, _ = s.Get(FeatNickLen)
	if v != 15 {
		t.Errorf("NICKLEN after Reset = %v, wanted 15", v)
	}
}

func TestUnknownFeature(t *testing.T) {
	s := NewSet()
	if _, err := s.Get("NOT_A_FEATURE"); err != ErrUnknownFeature {
		t.Errorf("Get(unknown) = %v, wanted ErrUnknownFeature", err)
	}
}

func TestRevertUnmarked(t *testing.T) {
	s := NewSet()
	_ = s.Set(FeatNickLen, 20)
	s.UnmarkAll()
	// NICKLEN was not re-marked by a subsequent config parse; it should
	// revert to default.
	s.RevertUnmarked()
	v, _ := s.Get(FeatNickLen)
	if v != 15 {
		t.Errorf("NICKLEN after unmark+revert = %v, wanted default 15", v)
	}
}

func TestCapRequestRefusesProhibit(t *testing.T) {
	c := NewCapState()
	if c.Request("sasl") {
		t.Error("Request(\"sasl\") succeeded, wanted refusal (CapProhibit)")
	}
	if c.Has("sasl") {
		t.Error("Has(\"sasl\") = true after a refused request")
	}
}

func TestCapRequestAccepted(t *testing.T) {
	c := NewCapState()
	if !c.Request("multi-prefix") {
		t.Fatal("Request(\"multi-prefix\") failed, wanted success")
	}
	if !c.Has("multi-prefix") {
		t.Error("Has(\"multi-prefix\") = false after accepted request")
	}
}

func TestAdvertisedExcludesHidden(t *testing.T) {
	for _, name := range Advertised() {
		if name == "NONE" {
			t.Error("Advertised() included the Hidden \"NONE\" capability")
		}
	}
}
