package trace

import (
	"context"
	"testing"
)

func TestEnsureKeepsExistingID(t *testing.T) {
	ctx := WithContext(context.Background(), "abc")
	if got := FromContext(Ensure(ctx)); got != "abc" {
		t.Errorf("FromContext = %q, want abc", got)
	}
}

func TestEnsureGeneratesID(t *testing.T) {
	ctx := Ensure(context.Background())
	if FromContext(ctx) == "" {
		t.Fatal("Ensure should attach a trace id")
	}
	if a, b := GenerateTraceID(), GenerateTraceID(); a == b {
		t.Errorf("GenerateTraceID returned duplicate %q", a)
	}
}
