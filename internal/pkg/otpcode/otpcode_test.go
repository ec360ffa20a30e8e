package otpcode

import (
	"bytes"
	"errors"
	"io"
	"testing"
)

func TestGenerator_Generate_LengthAndDigits(t *testing.T) {
	g := New()

	for range 500 {
		code, err := g.Generate(6)
		if err != nil {
			t.Fatalf("Generate() error = %v", err)
		}
		if len(code) != 6 {
			t.Fatalf("len(%q) = %d, want 6", code, len(code))
		}
		for _, c := range code {
			if c < '0' || c > '9' {
				t.Fatalf("non-digit %q in %q", c, code)
			}
		}
	}
}

func TestGenerator_Generate_RejectsBiasedBytes(t *testing.T) {
	// Arrange: 250..255 are discarded, everything else maps to b%10.
	src := bytes.NewReader([]byte{
		255, 250, 7, 10, 249, 253, 0, 0, 0, 0,
		100, 31, 0, 0, 0, 0, 0, 0, 0, 0,
	})
	g := NewWithReader(src)

	// Act
	code, err := g.Generate(6)

	// Assert
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if code != "709000" {
		t.Fatalf("Generate() = %q, want %q", code, "709000")
	}
}

func TestGenerator_Generate_LeadingZerosKept(t *testing.T) {
	g := NewWithReader(bytes.NewReader(make([]byte, 64)))

	code, err := g.Generate(6)
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if code != "000000" {
		t.Fatalf("Generate() = %q", code)
	}
}

func TestGenerator_Generate_SourceFailure(t *testing.T) {
	g := NewWithReader(io.LimitReader(bytes.NewReader(nil), 0))

	_, err := g.Generate(6)

	if !errors.Is(err, io.EOF) {
		t.Fatalf("Generate() error = %v, want wrapped EOF", err)
	}
}

func TestGenerator_Generate_InvalidLength(t *testing.T) {
	for _, n := range []int{0, -1, MaxLength + 1} {
		if _, err := New().Generate(n); !errors.Is(err, ErrInvalidLength) {
			t.Fatalf("Generate(%d) error = %v", n, err)
		}
	}
}

func TestGenerator_Generate_RoughlyUniform(t *testing.T) {
	g := New()
	var counts [10]int
	const draws = 20000

	for range draws / 10 {
		code, err := g.Generate(10)
		if err != nil {
			t.Fatalf("Generate() error = %v", err)
		}
		for _, c := range code {
			counts[c-'0']++
		}
	}

	for d, n := range counts {
		if n < 1700 || n > 2300 {
			t.Fatalf("digit %d drawn %d times out of %d", d, n, draws)
		}
	}
}
