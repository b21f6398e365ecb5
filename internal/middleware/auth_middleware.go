package middleware

import (
	"context"
	"crypto/subtle"
	"strings"

	"tripchat/internal/apperrors"
	"tripchat/internal/utils"
	"tripchat/pkg/logger"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// ClaimsParser validates a bearer token and returns its claims.
type ClaimsParser interface {
	ParseClaims(token string) (*utils.JWTClaims, error)
}

// AuthRequired middleware validates the JWT and sets the caller's id and role
func AuthRequired(parser ClaimsParser) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			abortWithError(c, apperrors.New(apperrors.KindAuthenticationFailed, "authorization header required"))
			return
		}

		tokenString := strings.TrimPrefix(authHeader, "Bearer ")
		if tokenString == authHeader {
			abortWithError(c, apperrors.New(apperrors.KindAuthenticationFailed, "bearer token required"))
			return
		}

		claims, err := parser.ParseClaims(tokenString)
		if err != nil {
			abortWithError(c, err)
			return
		}

		subject := claims.UserID
		if subject == "" {
			subject = claims.Subject
		}
		userID, err := primitive.ObjectIDFromHex(subject)
		if err != nil {
			abortWithError(c, apperrors.New(apperrors.KindAuthenticationFailed, "invalid user id in token"))
			return
		}

		c.Set(utils.ContextUserID, userID)
		c.Set(utils.ContextUserRole, claims.Role)
		c.Request = c.Request.WithContext(context.WithValue(c.Request.Context(), logger.UserIDKey, userID))

		c.Next()
	}
}

// InternalKeyRequired guards trusted service-to-service callbacks. An empty
// key disables the routes it protects.
func InternalKeyRequired(key string) gin.HandlerFunc {
	return func(c *gin.Context) {
		provided := c.GetHeader("X-Internal-API-Key")
		if key == "" || subtle.ConstantTimeCompare([]byte(provided), []byte(key)) != 1 {
			abortWithError(c, apperrors.New(apperrors.KindNotAuthorized, "internal api key required"))
			return
		}
		c.Next()
	}
}

// UserID returns the authenticated caller set by AuthRequired.
func UserID(c *gin.Context) (primitive.ObjectID, bool) {
	value, exists := c.Get(utils.ContextUserID)
	if !exists {
		return primitive.NilObjectID, false
	}
	userID, ok := value.(primitive.ObjectID)
	return userID, ok
}

func abortWithError(c *gin.Context, err error) {
	utils.AppErrorResponse(c, err)
	c.Abort()
}
