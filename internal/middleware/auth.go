package middleware

import (
	"strings"

	"github.com/golang-jwt/jwt/v4"
	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/chatline/backend/domain"
)

// PrincipalKey is the fasthttp user-value key carrying the authenticated
// principal.
const PrincipalKey = "principal"

// JWTAuth validates the bearer token and stores the extracted principal on
// the request context.
func JWTAuth(secret string, logger *zap.Logger) func(fasthttp.RequestHandler) fasthttp.RequestHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(next fasthttp.RequestHandler) fasthttp.RequestHandler {
		return func(ctx *fasthttp.RequestCtx) {
			tokenString := extractToken(ctx)
			if tokenString == "" {
				ctx.SetStatusCode(fasthttp.StatusUnauthorized)
				return
			}

			token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
				return []byte(secret), nil
			})
			if err != nil || !token.Valid {
				logger.Warn("invalid jwt token", zap.Error(err))
				ctx.SetStatusCode(fasthttp.StatusUnauthorized)
				return
			}

			claims, ok := token.Claims.(jwt.MapClaims)
			if !ok {
				ctx.SetStatusCode(fasthttp.StatusUnauthorized)
				return
			}

			principal := principalFromClaims(claims)
			if principal.UserID == "" {
				ctx.SetStatusCode(fasthttp.StatusUnauthorized)
				return
			}

			ctx.SetUserValue(PrincipalKey, principal)
			next(ctx)
		}
	}
}

// Principal returns the authenticated principal stored by JWTAuth, or a zero
// value when the route skipped authentication.
func Principal(ctx *fasthttp.RequestCtx) domain.Principal {
	if p, ok := ctx.UserValue(PrincipalKey).(domain.Principal); ok {
		return p
	}
	return domain.Principal{}
}

func principalFromClaims(claims jwt.MapClaims) domain.Principal {
	principal := domain.Principal{}
	if userID, ok := claims["user_id"].(string); ok {
		principal.UserID = userID
	} else if sub, ok := claims["sub"].(string); ok {
		principal.UserID = sub
	}
	if raw, ok := claims["roles"].([]interface{}); ok {
		for _, r := range raw {
			if role, ok := r.(string); ok {
				principal.Roles = append(principal.Roles, role)
			}
		}
	}
	return principal
}

func extractToken(ctx *fasthttp.RequestCtx) string {
	header := string(ctx.Request.Header.Peek("Authorization"))
	if header == "" {
		return ""
	}
	if strings.HasPrefix(header, "Bearer ") {
		return strings.TrimPrefix(header, "Bearer ")
	}
	return header
}
