package services

import (
	"context"
	"time"

	"tripchat/internal/apperrors"
	"tripchat/internal/utils"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// TokenService verifies access tokens issued by the account service.
type TokenService struct {
	secret string
	issuer string
	ttl    time.Duration
}

func NewTokenService(secret, issuer string, ttl time.Duration) *TokenService {
	return &TokenService{secret: secret, issuer: issuer, ttl: ttl}
}

func (t *TokenService) VerifyToken(ctx context.Context, token string) (primitive.ObjectID, error) {
	userID, err := utils.ExtractUserIDFromToken(token, t.secret, t.issuer)
	if err != nil {
		return primitive.NilObjectID, apperrors.Wrap(apperrors.KindAuthenticationFailed, utils.ErrInvalidToken, err)
	}
	return userID, nil
}

func (t *TokenService) ParseClaims(token string) (*utils.JWTClaims, error) {
	claims, err := utils.ValidateToken(token, t.secret, t.issuer)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindAuthenticationFailed, utils.ErrInvalidToken, err)
	}
	return claims, nil
}

// IssueToken signs a token with the verifier's own settings.
func (t *TokenService) IssueToken(userID primitive.ObjectID, role string) (string, error) {
	return utils.GenerateAccessToken(userID, role, t.secret, t.issuer, t.ttl)
}
