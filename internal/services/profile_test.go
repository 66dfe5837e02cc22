package services

import (
	"context"
	"testing"

	"github.com/google/uuid"

	"github.com/yungbote/echoworld-backend/internal/data/repos"
	"github.com/yungbote/echoworld-backend/internal/data/repos/testutil"
	domain "github.com/yungbote/echoworld-backend/internal/domain/messaging"
	"github.com/yungbote/echoworld-backend/internal/platform/dbctx"
)

func TestProfileService(t *testing.T) {
	db := testutil.DB(t)
	log := testutil.Logger(t)
	svc := NewProfileService(db, log, repos.NewProfileRepo(db, log))

	if _, err := svc.Me(dbctx.Context{Ctx: context.Background()}); !domain.IsCode(err, domain.CodeAuthentication) {
		t.Fatalf("expected authentication error, got %v", err)
	}

	uid := uuid.New()
	handle := "Zoe" + uuid.NewString()[:6]
	if _, err := svc.Me(as(uid)); !domain.IsCode(err, domain.CodeNotFound) {
		t.Fatalf("expected not found before EnsureMe, got %v", err)
	}
	if _, err := svc.EnsureMe(as(uid), "has space", ""); !domain.IsCode(err, domain.CodeValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	p, err := svc.EnsureMe(as(uid), "@"+handle, "")
	if err != nil {
		t.Fatalf("EnsureMe: %v", err)
	}
	if p.ID != uid || p.DisplayName != handle {
		t.Fatalf("unexpected profile %+v", p)
	}
	again, err := svc.EnsureMe(as(uid), "other", "Other")
	if err != nil || again.Handle != p.Handle {
		t.Fatalf("EnsureMe should keep the existing profile: %+v err=%v", again, err)
	}

	found, err := svc.GetByHandle(as(uuid.New()), "@"+handle)
	if err != nil || found.ID != uid {
		t.Fatalf("GetByHandle: %+v err=%v", found, err)
	}
	if _, err := svc.GetByHandle(as(uid), "nobody-"+uuid.NewString()[:6]); !domain.IsCode(err, domain.CodeNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}
