package referral

import (
	"testing"
)

func TestGenerate_LengthAndAlphabet(t *testing.T) {
	code, err := Generate()
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}

	if len(code) != CodeLength {
		t.Errorf("code length: got %d, want %d", len(code), CodeLength)
	}
	if !Valid(code) {
		t.Errorf("generated code %q failed Valid()", code)
	}
}

func TestGenerate_NotConstant(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		code, err := Generate()
		if err != nil {
			t.Fatalf("Generate() error = %v", err)
		}
		seen[code] = true
	}

	// 100 draws from a 62^8 space colliding down to a handful would mean a
	// broken randomness source.
	if len(seen) < 95 {
		t.Errorf("expected ~100 distinct codes, got %d", len(seen))
	}
}

func TestValid_RejectsMalformed(t *testing.T) {
	cases := []string{
		"",
		"short",
		"toolongtoolong",
		"abc!defg",
		"abc defg",
		"abcdefg\n",
	}

	for _, c := range cases {
		if Valid(c) {
			t.Errorf("Valid(%q) = true, want false", c)
		}
	}
}

func TestValid_AcceptsWellFormed(t *testing.T) {
	cases := []string{"a1B2c3D4", "00000000", "ZZZZZZZZ"}
	for _, c := range cases {
		if !Valid(c) {
			t.Errorf("Valid(%q) = false, want true", c)
		}
	}
}
