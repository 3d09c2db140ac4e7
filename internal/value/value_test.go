package value

import "testing"

// TestStringIntRoundTrip checks spec.md section 8's property:
// forall integers n: S2I(I2S(n)) = n.
func TestStringIntRoundTrip(t *testing.T) {
	cases := []int64{0, 1, -1, 42, -42, 1 << 40, -(1 << 40), 9223372036854775807, -9223372036854775808}
	for _, n := range cases {
		s := FormatInt(n)
		got := ParseInt(s)
		if got != n {
			t.Errorf("S2I(I2S(%d)) = %d, want %d", n, got, n)
		}
	}
}

func TestParseIntSaturatesOnOverflow(t *testing.T) {
	got := ParseInt(NewString("99999999999999999999999999"))
	if got != (1<<63 - 1) {
		t.Errorf("expected saturation to max int64, got %d", got)
	}
	got = ParseInt(NewString("-99999999999999999999999999"))
	if got != (-1 << 63) {
		t.Errorf("expected saturation to min int64, got %d", got)
	}
}

func TestParseIntLeadingWhitespace(t *testing.T) {
	if got := ParseInt(NewString("   123")); got != 123 {
		t.Errorf("got %d, want 123", got)
	}
}

func TestParseIntGarbageYieldsZero(t *testing.T) {
	if got := ParseInt(NewString("not a number")); got != 0 {
		t.Errorf("got %d, want 0", got)
	}
}

func TestConcatLengthAndBytes(t *testing.T) {
	a := NewString("hello, ")
	b := NewString("world")
	c := Concat(a, b)
	if c.Len() != a.Len()+b.Len() {
		t.Fatalf("length mismatch: got %d want %d", c.Len(), a.Len()+b.Len())
	}
	if c.String() != "hello, world" {
		t.Fatalf("got %q", c.String())
	}
}

func TestPrefixSuffix(t *testing.T) {
	s := NewString("hello world")
	if !HasPrefix(s, NewString("hello")) {
		t.Error("expected prefix match")
	}
	if HasPrefix(s, NewString("world")) {
		t.Error("expected prefix mismatch")
	}
	if !HasSuffix(s, NewString("world")) {
		t.Error("expected suffix match")
	}
}

// TestIPRoundTrip checks spec.md section 8: forall IP p: P2S(p) is
// accepted by the IP parser and round-trips to an equal value.
func TestIPRoundTrip(t *testing.T) {
	for _, s := range []string{"127.0.0.1", "10.0.0.1", "::1", "2001:db8::1"} {
		ip, ok := ParseIP(s)
		if !ok {
			t.Fatalf("failed to parse %q", s)
		}
		rendered := ip.String()
		ip2, ok := ParseIP(rendered)
		if !ok {
			t.Fatalf("re-parse of %q failed", rendered)
		}
		if !ip.Equal(ip2) {
			t.Fatalf("round trip mismatch: %s != %s", ip, ip2)
		}
	}
}

// TestCidrContains checks spec.md section 8: forall CIDR (p,k), IP q:
// PINCIDR(q,(p,k)) = 1 iff q falls within the network of (p,k).
func TestCidrContains(t *testing.T) {
	cidr, ok := ParseCIDR("192.168.0.0/24")
	if !ok {
		t.Fatal("failed to parse cidr")
	}
	inside, _ := ParseIP("192.168.0.42")
	outside, _ := ParseIP("192.168.1.1")

	if !cidr.Contains(inside) {
		t.Error("expected 192.168.0.42 to be inside 192.168.0.0/24")
	}
	if cidr.Contains(outside) {
		t.Error("expected 192.168.1.1 to be outside 192.168.0.0/24")
	}
}

func TestRegexMatchAndGroups(t *testing.T) {
	re, err := CompileRegex(`(\d+)-(\d+)`)
	if err != nil {
		t.Fatal(err)
	}
	groups := re.Match(NewString("range 10-20 here"))
	if groups == nil {
		t.Fatal("expected a match")
	}
	if groups[0].Text != "10-20" {
		t.Errorf("group 0 = %q, want %q", groups[0].Text, "10-20")
	}
	if groups[1].Text != "10" || groups[2].Text != "20" {
		t.Errorf("groups = %+v", groups)
	}
}

func TestRegexNoMatch(t *testing.T) {
	re, err := CompileRegex(`^abc$`)
	if err != nil {
		t.Fatal(err)
	}
	if re.Match(NewString("xyz")) != nil {
		t.Error("expected no match")
	}
}
