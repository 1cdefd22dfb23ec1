package auth

import (
	"errors"
	"strings"
	"testing"

	"github.com/google/uuid"
)

func TestIssueVerifyRevoke(t *testing.T) {
	tokens := NewTokens()
	matchA, matchB := uuid.New(), uuid.New()

	tok, err := tokens.Issue(matchA, "alice")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if !strings.HasPrefix(tok, "lc_") {
		t.Fatalf("unexpected token format %q", tok)
	}
	other, err := tokens.Issue(matchB, "alice")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	claims, err := tokens.Verify(tok)
	if err != nil || claims.MatchID != matchA || claims.Player != "alice" {
		t.Fatalf("verify: %+v %v", claims, err)
	}
	if _, err := tokens.Verify("lc_nope"); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}

	if n := tokens.RevokeMatch(matchA); n != 1 {
		t.Fatalf("revoked %d tokens, want 1", n)
	}
	if _, err := tokens.Verify(tok); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("revoked token still valid")
	}
	if _, err := tokens.Verify(other); err != nil {
		t.Fatalf("token of another match revoked: %v", err)
	}
}

func TestBearerToken(t *testing.T) {
	tests := []struct{ header, want string }{
		{header: "Bearer abc", want: "abc"},
		{header: "bearer  abc ", want: "abc"},
		{header: "Basic abc", want: ""},
		{header: "abc", want: ""},
		{header: "", want: ""},
	}
	for _, tc := range tests {
		if got := BearerToken(tc.header); got != tc.want {
			t.Fatalf("BearerToken(%q)=%q want %q", tc.header, got, tc.want)
		}
	}
}
