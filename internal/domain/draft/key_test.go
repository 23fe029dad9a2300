package draft

import "testing"

func TestNormalizeName(t *testing.T) {
	cases := []struct{ in, want string }{
		{"Jane  Perera", "jane perera"},
		{"  JANE\tperera ", "jane perera"},
		{"jane perera", "jane perera"},
		{"", ""},
	}
	for _, c := range cases {
		if got := NormalizeName(c.in); got != c.want {
			t.Errorf("NormalizeName(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestTemporaryKeyStableAcrossEdits(t *testing.T) {
	a := TemporaryKey("Jane Perera")
	b := TemporaryKey("  jane   PERERA ")
	if a != b {
		t.Fatalf("keys differ: %v vs %v", a, b)
	}
}

func TestKeyKinds(t *testing.T) {
	o := OriginalKey("p-1")
	if !o.IsOriginal() || o.IsTemporary() {
		t.Fatal("original key misclassified")
	}
	tk := TemporaryKey("x")
	if !tk.IsTemporary() {
		t.Fatal("temporary key misclassified")
	}
	pk := PersistedKey("rx-1")
	if pk.IsTemporary() || pk.IsOriginal() {
		t.Fatal("persisted key misclassified")
	}

	// Keys are comparable map keys; distinct kinds never collide.
	m := map[SlotKey]int{o: 1, tk: 2, pk: 3, UnnamedTemporaryKey(): 4}
	if len(m) != 4 {
		t.Fatalf("expected 4 distinct keys, got %d", len(m))
	}
}

func TestKeyString(t *testing.T) {
	if s := OriginalKey("p-1").String(); s != "original:p-1" {
		t.Errorf("got %q", s)
	}
	if s := TemporaryKey("Jane P").String(); s != "temp:jane p" {
		t.Errorf("got %q", s)
	}
	if s := UnnamedTemporaryKey().String(); s != "temp:unnamed" {
		t.Errorf("got %q", s)
	}
	if s := PersistedKey("rx-9").String(); s != "rx:rx-9" {
		t.Errorf("got %q", s)
	}
}
