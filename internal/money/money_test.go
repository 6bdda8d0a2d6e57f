package money

import "testing"

func TestParseRoundTrip(t *testing.T) {
	cases := []string{"0", "1", "0.5", "0.000001", "123456.654321", "0.1", "99.999999"}
	for _, s := range cases {
		m, err := Parse(s)
		if err != nil {
			t.Fatalf("Parse(%q): %v", s, err)
		}
		back, err := Parse(m.String())
		if err != nil {
			t.Fatalf("re-Parse(%q): %v", m.String(), err)
		}
		if back != m {
			t.Errorf("round trip for %q: got %d then %d", s, m, back)
		}
	}
}

func TestParseRejectsExcessPrecision(t *testing.T) {
	if _, err := Parse("0.0000001"); err == nil {
		t.Error("expected error for 7 decimal places")
	}
}

func TestParseRejectsGarbage(t *testing.T) {
	for _, s := range []string{"", "abc", "1.2.3"} {
		if _, err := Parse(s); err == nil {
			t.Errorf("expected error for %q", s)
		}
	}
}

func TestSubFloor(t *testing.T) {
	if got := Micros(100).SubFloor(150); got != 0 {
		t.Errorf("expected 0, got %d", got)
	}
	if got := Micros(150).SubFloor(100); got != 50 {
		t.Errorf("expected 50, got %d", got)
	}
}

func TestFromFloat(t *testing.T) {
	if got := FromFloat(0.5); got != 500000 {
		t.Errorf("expected 500000, got %d", got)
	}
	if got := FromFloat(25.0); got != 25000000 {
		t.Errorf("expected 25000000, got %d", got)
	}
}

func TestMin(t *testing.T) {
	if got := Min(Micros(100), Micros(75)); got != 75 {
		t.Errorf("expected 75, got %d", got)
	}
}
