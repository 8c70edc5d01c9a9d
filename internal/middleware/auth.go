package middleware

import (
	"log"
	"net/http"
	"strings"

	"github.com/go-redis/redis/v8"
	"github.com/golang-jwt/jwt/v5"
	"github.com/spf13/viper"

	"github.com/nexushours/backend/internal/models"
)

var redisClient *redis.Client

// InitAuthMiddleware wires the optional redis client used for token
// revocation checks.
func InitAuthMiddleware(client *redis.Client) {
	redisClient = client
}

// AuthMiddleware validates the bearer token and attaches a RequestContext
// carrying the caller's user and tenant IDs. Downstream code never reads
// tenant state from anywhere else.
func AuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			http.Error(w, "Authorization header required", http.StatusUnauthorized)
			return
		}

		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			http.Error(w, "Invalid authorization header format", http.StatusUnauthorized)
			return
		}

		tokenString := parts[1]

		if redisClient != nil {
			revoked, err := redisClient.Exists(r.Context(), "revoked:"+tokenString).Result()
			if err != nil {
				log.Printf("[AUTH] Revocation check failed: %v", err)
			} else if revoked > 0 {
				http.Error(w, "Token revoked", http.StatusUnauthorized)
				return
			}
		}

		rc, err := validateToken(tokenString)
		if err != nil {
			http.Error(w, "Invalid token", http.StatusUnauthorized)
			return
		}

		next.ServeHTTP(w, r.WithContext(models.WithRequestContext(r.Context(), rc)))
	})
}

func validateToken(tokenString string) (models.RequestContext, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (any, error) {
		return []byte(viper.GetString("jwt.secret_key")), nil
	})
	if err != nil || !token.Valid {
		return models.RequestContext{}, jwt.ErrTokenUnverifiable
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return models.RequestContext{}, jwt.ErrTokenInvalidClaims
	}

	userID, uok := claims["user_id"].(float64)
	tenantID, tok := claims["tenant_id"].(float64)
	if !uok || !tok {
		return models.RequestContext{}, jwt.ErrTokenInvalidClaims
	}

	return models.RequestContext{
		TenantID: int64(tenantID),
		UserID:   int64(userID),
	}, nil
}
