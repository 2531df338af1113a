package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/nasda-team/nasda/utils"
)

const (
	// ContextUserIDKey is the key used to store authenticated user ID in Gin context.
	ContextUserIDKey = "user_id"
	// ContextNicknameKey stores the nickname carried by the token.
	ContextNicknameKey = "nickname"
	// ContextTokenKey stores the raw bearer token, used by logout.
	ContextTokenKey = "token"
	// ContextClaimsKey stores the parsed *utils.Claims.
	ContextClaimsKey = "claims"
)

type authFailure struct {
	code    int
	message string
}

// resolveIdentity reads and validates the bearer token. A nil claims with a nil
// failure means the request carries no credentials at all.
func resolveIdentity(ctx *gin.Context) (string, *utils.Claims, *authFailure) {
	authHeader := ctx.GetHeader("Authorization")
	if authHeader == "" {
		return "", nil, nil
	}
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", nil, &authFailure{40102, "invalid authorization header format"}
	}
	token := strings.TrimSpace(parts[1])
	if token == "" {
		return "", nil, &authFailure{40103, "empty bearer token"}
	}
	if utils.IsTokenBlacklisted(token) {
		return "", nil, &authFailure{40104, "token revoked"}
	}
	claims, err := utils.ParseToken(token)
	if err != nil {
		return "", nil, &authFailure{40105, "invalid token"}
	}
	return token, claims, nil
}

func setIdentity(ctx *gin.Context, token string, claims *utils.Claims) {
	ctx.Set(ContextUserIDKey, claims.UserID)
	ctx.Set(ContextNicknameKey, claims.Nickname)
	ctx.Set(ContextTokenKey, token)
	ctx.Set(ContextClaimsKey, claims)
}

// AuthRequired ensures the request is authenticated via JWT. Anonymous callers
// get 401, which clients treat as "log in first".
func AuthRequired() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		token, claims, failure := resolveIdentity(ctx)
		if failure == nil && claims == nil {
			failure = &authFailure{40101, "login required"}
		}
		if failure != nil {
			utils.Error(ctx, http.StatusUnauthorized, failure.code, failure.message)
			ctx.Abort()
			return
		}
		setIdentity(ctx, token, claims)
		ctx.Next()
	}
}

// OptionalAuth attaches the identity when a valid token is present and lets
// anonymous or badly authenticated requests through as anonymous.
func OptionalAuth() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		if token, claims, failure := resolveIdentity(ctx); failure == nil && claims != nil {
			setIdentity(ctx, token, claims)
		}
		ctx.Next()
	}
}

// CurrentUserID returns the authenticated user id, or 0 for anonymous requests.
func CurrentUserID(ctx *gin.Context) uint {
	v, ok := ctx.Get(ContextUserIDKey)
	if !ok {
		return 0
	}
	id, _ := v.(uint)
	return id
}
