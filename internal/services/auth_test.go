package services

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/yungbote/echoworld-backend/internal/data/repos/testutil"
	domain "github.com/yungbote/echoworld-backend/internal/domain/messaging"
	"github.com/yungbote/echoworld-backend/internal/platform/ctxutil"
)

func TestAuthServiceRoundTrip(t *testing.T) {
	as := NewAuthService(testutil.Logger(t), "secret", "echoworld")
	uid := uuid.New()

	token, err := as.IssueToken(uid, time.Minute)
	if err != nil {
		t.Fatalf("IssueToken: %v", err)
	}
	ctx, err := as.SetContextFromToken(context.Background(), token)
	if err != nil {
		t.Fatalf("SetContextFromToken: %v", err)
	}
	if got := ctxutil.UserID(ctx); got != uid {
		t.Fatalf("user id=%s want %s", got, uid)
	}
	rd := ctxutil.GetRequestData(ctx)
	if rd == nil || rd.SessionID == uuid.Nil || rd.TokenString != token {
		t.Fatalf("request data not populated: %+v", rd)
	}
}

func TestAuthServiceRejects(t *testing.T) {
	issuer := NewAuthService(testutil.Logger(t), "secret", "echoworld")
	other := NewAuthService(testutil.Logger(t), "other-secret", "echoworld")
	foreignIssuer := NewAuthService(testutil.Logger(t), "secret", "someone-else")

	good, err := issuer.IssueToken(uuid.New(), time.Minute)
	if err != nil {
		t.Fatalf("IssueToken: %v", err)
	}
	defaulted, err := issuer.IssueToken(uuid.New(), 0)
	if err != nil {
		t.Fatalf("IssueToken: %v", err)
	}

	tests := []struct {
		name  string
		svc   AuthService
		token string
	}{
		{"empty", issuer, "  "},
		{"garbage", issuer, "not.a.token"},
		{"wrong key", other, good},
		{"wrong issuer", foreignIssuer, good},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.svc.SetContextFromToken(context.Background(), tt.token)
			if !domain.IsCode(err, domain.CodeAuthentication) {
				t.Fatalf("expected authentication error, got %v", err)
			}
		})
	}

	// A non-positive ttl falls back to the default lifetime.
	if _, err := issuer.SetContextFromToken(context.Background(), defaulted); err != nil {
		t.Fatalf("default ttl token rejected: %v", err)
	}
	if _, err := issuer.IssueToken(uuid.Nil, time.Minute); !domain.IsCode(err, domain.CodeValidation) {
		t.Fatalf("expected validation error for nil user, got %v", err)
	}
}
