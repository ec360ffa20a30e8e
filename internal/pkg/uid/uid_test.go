package uid

import (
	"testing"

	"github.com/google/uuid"
)

func TestSnowflake_Monotonic(t *testing.T) {
	gen, err := NewSnowflake(1)
	if err != nil {
		t.Fatalf("NewSnowflake() error = %v", err)
	}

	prev := gen.Generate()
	for range 1000 {
		next := gen.Generate()
		if next <= prev {
			t.Fatalf("ids not increasing: %d then %d", prev, next)
		}
		prev = next
	}
}

func TestNewSnowflake_InvalidNode(t *testing.T) {
	if _, err := NewSnowflake(4096); err == nil {
		t.Fatalf("expected error for out-of-range node")
	}
}

func TestUUID_Generate(t *testing.T) {
	id, err := uuid.Parse(NewUUID().Generate())
	if err != nil {
		t.Fatalf("invalid uuid: %v", err)
	}
	if id.Version() != 7 {
		t.Fatalf("version = %d, want 7", id.Version())
	}
}
