package idempotency

import "testing"

func TestFingerprintIdentity(t *testing.T) {
	a := FingerprintIdentity("Jane Perera", "1991-04-02", "0771234567")
	b := FingerprintIdentity("JANE PERERA", "1991-04-02", "0771234567")
	if a != b {
		t.Fatal("fingerprint should be case-insensitive on name")
	}

	c := FingerprintIdentity("Jane Perera", "1991-04-03", "0771234567")
	if a == c {
		t.Fatal("different date of birth should change fingerprint")
	}

	d := FingerprintIdentity("Jane Perera", "1991-04-02", "0770000000")
	if a == d {
		t.Fatal("different contact should change fingerprint")
	}
}
