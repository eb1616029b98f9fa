package agent

import (
	"context"
	"testing"
)

func TestSessionKeyFromContext_RoundTrips(t *testing.T) {
	ctx := WithSessionKey(context.Background(), "user1:discord:direct:chan1")
	got, ok := SessionKeyFromContext(ctx)
	if !ok {
		t.Fatal("SessionKeyFromContext returned ok=false for a tagged context")
	}
	if got != "user1:discord:direct:chan1" {
		t.Errorf("SessionKeyFromContext = %q, want user1:discord:direct:chan1", got)
	}
}

func TestSessionKeyFromContext_AbsentWhenUntagged(t *testing.T) {
	_, ok := SessionKeyFromContext(context.Background())
	if ok {
		t.Error("SessionKeyFromContext returned ok=true for a plain context")
	}
}
