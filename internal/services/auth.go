package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	domain "github.com/yungbote/echoworld-backend/internal/domain/messaging"
	"github.com/yungbote/echoworld-backend/internal/platform/ctxutil"
	"github.com/yungbote/echoworld-backend/internal/platform/logger"
)

// JWTClaims carries the user id in the subject and the session id in the token id.
type JWTClaims struct {
	jwt.RegisteredClaims
}

// AuthService verifies access tokens issued by the identity provider and, for
// local development, issues them.
type AuthService interface {
	IssueToken(userID uuid.UUID, ttl time.Duration) (string, error)
	SetContextFromToken(ctx context.Context, tokenString string) (context.Context, error)
}

type authService struct {
	log          *logger.Logger
	jwtSecretKey string
	issuer       string
}

func NewAuthService(log *logger.Logger, jwtSecretKey, issuer string) AuthService {
	return &authService{
		log:          log.With("service", "AuthService"),
		jwtSecretKey: jwtSecretKey,
		issuer:       strings.TrimSpace(issuer),
	}
}

func (as *authService) IssueToken(userID uuid.UUID, ttl time.Duration) (string, error) {
	if userID == uuid.Nil {
		return "", domain.ValidationError("IssueToken", "missing user id")
	}
	if as.jwtSecretKey == "" {
		return "", fmt.Errorf("jwt secret not configured")
	}
	if ttl <= 0 {
		ttl = time.Hour
	}
	now := time.Now()
	claims := JWTClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID.String(),
			ID:        uuid.NewString(),
			Issuer:    as.issuer,
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(as.jwtSecretKey))
}

func (as *authService) SetContextFromToken(ctx context.Context, tokenString string) (context.Context, error) {
	tokenString = strings.TrimSpace(tokenString)
	if tokenString == "" {
		return ctx, domain.AuthenticationError("SetContextFromToken")
	}
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if as.issuer != "" {
		opts = append(opts, jwt.WithIssuer(as.issuer))
	}
	parsedToken, err := jwt.ParseWithClaims(tokenString, &JWTClaims{}, func(token *jwt.Token) (interface{}, error) {
		return []byte(as.jwtSecretKey), nil
	}, opts...)
	if err != nil {
		return ctx, domain.NewError(domain.CodeAuthentication, "SetContextFromToken", "invalid or expired token", err)
	}
	claims, ok := parsedToken.Claims.(*JWTClaims)
	if !ok || !parsedToken.Valid {
		return ctx, domain.NewError(domain.CodeAuthentication, "SetContextFromToken", "invalid or expired token", nil)
	}
	userID, err := uuid.Parse(claims.Subject)
	if err != nil || userID == uuid.Nil {
		return ctx, domain.NewError(domain.CodeAuthentication, "SetContextFromToken", "invalid user id in token", err)
	}
	sessionID, _ := uuid.Parse(claims.ID)

	rd := &ctxutil.RequestData{
		TokenString: tokenString,
		UserID:      userID,
		SessionID:   sessionID,
	}
	return ctxutil.WithRequestData(ctx, rd), nil
}
