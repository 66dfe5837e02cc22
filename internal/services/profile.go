package services

import (
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/yungbote/echoworld-backend/internal/data/repos"
	types "github.com/yungbote/echoworld-backend/internal/domain"
	domain "github.com/yungbote/echoworld-backend/internal/domain/messaging"
	"github.com/yungbote/echoworld-backend/internal/platform/ctxutil"
	"github.com/yungbote/echoworld-backend/internal/platform/dbctx"
	"github.com/yungbote/echoworld-backend/internal/platform/logger"
)

const maxHandleLen = 32

// ProfileService exposes the public profile lookups messaging needs.
type ProfileService interface {
	Me(dbc dbctx.Context) (*types.Profile, error)
	// EnsureMe creates the caller's profile on first use; an existing profile is returned untouched.
	EnsureMe(dbc dbctx.Context, handle, displayName string) (*types.Profile, error)
	GetByHandle(dbc dbctx.Context, handle string) (*types.Profile, error)
	GetByID(dbc dbctx.Context, id uuid.UUID) (*types.Profile, error)
}

type profileService struct {
	db       *gorm.DB
	log      *logger.Logger
	profiles repos.ProfileRepo
}

func NewProfileService(db *gorm.DB, baseLog *logger.Logger, profileRepo repos.ProfileRepo) ProfileService {
	return &profileService{
		db:       db,
		log:      baseLog.With("service", "ProfileService"),
		profiles: profileRepo,
	}
}

func (s *profileService) Me(dbc dbctx.Context) (*types.Profile, error) {
	uid := ctxutil.UserID(dbc.Ctx)
	if uid == uuid.Nil {
		return nil, domain.AuthenticationError("Me")
	}
	return s.GetByID(dbc, uid)
}

func (s *profileService) GetByID(dbc dbctx.Context, id uuid.UUID) (*types.Profile, error) {
	if id == uuid.Nil {
		return nil, domain.ValidationError("GetProfile", "missing user id")
	}
	rows, err := s.profiles.GetByIDs(dbc, []uuid.UUID{id})
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, domain.NotFoundError("GetProfile", "profile not found")
	}
	return rows[0], nil
}

func (s *profileService) GetByHandle(dbc dbctx.Context, handle string) (*types.Profile, error) {
	if strings.Trim(strings.TrimSpace(handle), "@") == "" {
		return nil, domain.ValidationError("GetProfile", "missing handle")
	}
	return s.profiles.GetByHandle(dbc, handle)
}

func (s *profileService) EnsureMe(dbc dbctx.Context, handle, displayName string) (*types.Profile, error) {
	const op = "EnsureMe"
	uid := ctxutil.UserID(dbc.Ctx)
	if uid == uuid.Nil {
		return nil, domain.AuthenticationError(op)
	}
	existing, err := s.GetByID(dbc, uid)
	if err == nil {
		return existing, nil
	}
	if !domain.IsCode(err, domain.CodeNotFound) {
		return nil, err
	}
	handle = strings.Trim(strings.TrimSpace(handle), "@")
	if handle == "" || len(handle) > maxHandleLen || strings.ContainsAny(handle, " \t\n/") {
		return nil, domain.ValidationError(op, "handle must be 1-32 characters without spaces")
	}
	displayName = strings.TrimSpace(displayName)
	if displayName == "" {
		displayName = handle
	}
	created, err := s.profiles.Create(dbc, []*types.Profile{{
		ID:          uid,
		Handle:      handle,
		DisplayName: displayName,
	}})
	if err != nil {
		return nil, err
	}
	s.log.Info("profile created", "user_id", uid)
	return created[0], nil
}
