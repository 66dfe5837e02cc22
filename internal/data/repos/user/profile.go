package user

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/yungbote/echoworld-backend/internal/domain"
	"github.com/yungbote/echoworld-backend/internal/data/repos/messaging"
	"github.com/yungbote/echoworld-backend/internal/platform/dbctx"
	"github.com/yungbote/echoworld-backend/internal/platform/logger"
)

type ProfileRepo interface {
	Create(dbc dbctx.Context, profiles []*types.Profile) ([]*types.Profile, error)
	GetByIDs(dbc dbctx.Context, ids []uuid.UUID) ([]*types.Profile, error)
	GetByHandle(dbc dbctx.Context, handle string) (*types.Profile, error)
}

type profileRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewProfileRepo(db *gorm.DB, baseLog *logger.Logger) ProfileRepo {
	repoLog := baseLog.With("repo", "ProfileRepo")
	return &profileRepo{db: db, log: repoLog}
}

func (pr *profileRepo) Create(dbc dbctx.Context, profiles []*types.Profile) ([]*types.Profile, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = pr.db
	}

	if len(profiles) == 0 {
		return []*types.Profile{}, nil
	}
	for _, p := range profiles {
		if p != nil {
			p.Handle = normalizeHandle(p.Handle)
		}
	}

	if err := transaction.WithContext(dbc.Ctx).Create(&profiles).Error; err != nil {
		return nil, messaging.MapError("create profile", err)
	}
	return profiles, nil
}

func (pr *profileRepo) GetByIDs(dbc dbctx.Context, ids []uuid.UUID) ([]*types.Profile, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = pr.db
	}

	var results []*types.Profile
	if len(ids) == 0 {
		return results, nil
	}

	if err := transaction.WithContext(dbc.Ctx).
		Where("id IN ?", ids).
		Find(&results).Error; err != nil {
		return nil, messaging.MapError("get profiles", err)
	}
	return results, nil
}

func (pr *profileRepo) GetByHandle(dbc dbctx.Context, handle string) (*types.Profile, error) {
	handle = normalizeHandle(handle)
	if handle == "" {
		return nil, fmt.Errorf("missing handle")
	}
	transaction := dbc.Tx
	if transaction == nil {
		transaction = pr.db
	}

	var out types.Profile
	if err := transaction.WithContext(dbc.Ctx).
		Where("handle = ?", handle).
		Take(&out).Error; err != nil {
		return nil, messaging.MapError("get profile by handle", err)
	}
	return &out, nil
}

func normalizeHandle(h string) string {
	return strings.ToLower(strings.TrimPrefix(strings.TrimSpace(h), "@"))
}
