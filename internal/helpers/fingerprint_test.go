package helpers

import "testing"

func TestContentHashIgnoresCaseAndSpacing(t *testing.T) {
	a := ContentHash("VPN  tunnel\n drops")
	b := ContentHash("  vpn tunnel drops ")
	if a != b {
		t.Fatalf("expected equal hashes, got %s and %s", a, b)
	}
	if len(a) != 64 {
		t.Fatalf("expected hex sha256, got %q", a)
	}
	if ContentHash("vpn tunnel drops") == ContentHash("vpn tunnel stable") {
		t.Fatalf("different content must not collide")
	}
}

func TestNormalizeForHashEmpty(t *testing.T) {
	if got := NormalizeForHash(" \t\n"); got != "" {
		t.Fatalf("expected empty, got %q", got)
	}
}
