package middleware

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
)

// GuestUserID - пользователь запросов, когда JWT не настроен.
const GuestUserID = "guest"

// UserHeader позволяет выбрать пользователя в анонимном режиме.
const UserHeader = "X-User-ID"

var (
	errMissingToken   = errors.New("missing token")
	errMalformedToken = errors.New("malformed authorization header")
	errNoSubject      = errors.New("token has no subject")
)

// QueryTokenParam - параметр запроса с токеном для WebSocket: браузер не умеет ставить заголовки.
const QueryTokenParam = "token"

type authOptions struct {
	queryToken bool
}

// AuthOption настраивает Auth.
type AuthOption func(*authOptions)

// WithQueryToken разрешает передавать токен в ?token=, если нет заголовка Authorization.
func WithQueryToken() AuthOption {
	return func(o *authOptions) { o.queryToken = true }
}

// Auth проверяет Bearer JWT (HMAC) и кладет claim sub в контекст как id пользователя.
// С пустым secret все запросы выполняются от имени guest или пользователя из X-User-ID.
func Auth(secret string, logger *zap.Logger, opts ...AuthOption) gin.HandlerFunc {
	var o authOptions
	for _, opt := range opts {
		opt(&o)
	}

	log := logger.Named("AuthMiddleware")
	if secret == "" {
		log.Warn("JWT secret is not configured, running in guest mode")
		return func(c *gin.Context) {
			userID := strings.TrimSpace(c.GetHeader(UserHeader))
			if userID == "" {
				userID = GuestUserID
			}
			SetUserID(c, userID)
			c.Next()
		}
	}

	key := []byte(secret)
	return func(c *gin.Context) {
		tokenString, err := bearerToken(c, o.queryToken)
		if err != nil {
			log.Warn("Authorization header rejected", zap.Error(err), zap.String("path", c.Request.URL.Path))
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
			return
		}

		userID, err := verify(tokenString, key)
		if err != nil {
			msg := "Unauthorized: Invalid token"
			if errors.Is(err, jwt.ErrTokenExpired) {
				msg = "Unauthorized: Token expired"
			}
			log.Warn("Token verification failed", zap.Error(err), zap.String("tokenSnippet", tokenSnippet(tokenString)))
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": msg})
			return
		}

		SetUserID(c, userID)
		c.Next()
	}
}

func bearerToken(c *gin.Context, allowQuery bool) (string, error) {
	header := c.GetHeader("Authorization")
	if header == "" {
		if allowQuery {
			if t := c.Query(QueryTokenParam); t != "" {
				return t, nil
			}
		}
		return "", errMissingToken
	}
	parts := strings.Split(header, " ")
	if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" || parts[1] == "" {
		return "", errMalformedToken
	}
	return parts[1], nil
}

func verify(tokenString string, key []byte) (string, error) {
	claims := &jwt.RegisteredClaims{}
	_, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return key, nil
	})
	if err != nil {
		return "", err
	}
	if claims.Subject == "" {
		return "", errNoSubject
	}
	return claims.Subject, nil
}

func tokenSnippet(tokenString string) string {
	const limit = 15
	if len(tokenString) > limit {
		return tokenString[:limit] + "..."
	}
	return tokenString
}
