package auth

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/MicahParks/keyfunc/v2"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"

	"chat-relay/internal/config"
	"chat-relay/internal/utils/platformerrors"
)

const (
	// UserIDHeader names the caller when auth is disabled.
	UserIDHeader = "X-User-ID"
	// GuestUserID is used when auth is disabled and no header is sent.
	GuestUserID = "guest"

	userIDKey = "user_id"
	maxUserID = 255
)

// Validator validates JWTs using JWKS.
type Validator struct {
	cfg  *config.Config
	log  zerolog.Logger
	jwks *keyfunc.JWKS
}

// NewValidator initializes JWKS fetching when auth is enabled.
func NewValidator(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*Validator, error) {
	log = log.With().Str("component", "auth").Logger()
	if !cfg.AuthEnabled {
		log.Warn().Msg("auth disabled; callers are identified by the X-User-ID header")
		return &Validator{cfg: cfg, log: log}, nil
	}

	options := keyfunc.Options{
		Ctx:               ctx,
		RefreshInterval:   time.Hour,
		RefreshUnknownKID: true,
		RefreshErrorHandler: func(err error) {
			log.Error().Err(err).Msg("jwks refresh error")
		},
	}

	jwks, err := keyfunc.Get(cfg.AuthJWKSURL, options)
	if err != nil {
		return nil, err
	}
	return NewValidatorWithJWKS(cfg, jwks, log), nil
}

// NewValidatorWithJWKS uses an already loaded key set.
func NewValidatorWithJWKS(cfg *config.Config, jwks *keyfunc.JWKS, log zerolog.Logger) *Validator {
	return &Validator{cfg: cfg, log: log, jwks: jwks}
}

// Middleware resolves the caller and stores the user id on the context. With auth
// enabled a valid bearer token is required and the user id is its subject.
func (v *Validator) Middleware() gin.HandlerFunc {
	if v == nil || !v.cfg.AuthEnabled {
		return func(c *gin.Context) {
			userID := strings.TrimSpace(c.GetHeader(UserIDHeader))
			if userID == "" {
				userID = GuestUserID
			}
			if len(userID) > maxUserID {
				abortUnauthorized(c, "invalid user id")
				return
			}
			c.Set(userIDKey, userID)
			c.Next()
		}
	}

	return func(c *gin.Context) {
		tokenString := bearerToken(c.GetHeader("Authorization"))
		if tokenString == "" {
			abortUnauthorized(c, "missing bearer token")
			return
		}

		claims := jwt.MapClaims{}
		token, err := jwt.ParseWithClaims(tokenString, claims, v.jwks.Keyfunc,
			jwt.WithAudience(v.cfg.Account),
			jwt.WithIssuer(v.cfg.AuthIssuer),
			jwt.WithValidMethods([]string{"RS256", "RS384", "RS512"}),
		)
		if err != nil || !token.Valid {
			v.log.Debug().Err(err).Msg("token rejected")
			abortUnauthorized(c, "invalid token")
			return
		}
		subject, err := claims.GetSubject()
		if err != nil || strings.TrimSpace(subject) == "" {
			abortUnauthorized(c, "token has no subject")
			return
		}

		c.Set("auth_token", token)
		c.Set(userIDKey, subject)
		c.Next()
	}
}

// UserID returns the caller resolved by Middleware.
func UserID(c *gin.Context) string {
	return c.GetString(userIDKey)
}

func bearerToken(header string) string {
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

func abortUnauthorized(c *gin.Context, message string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, platformerrors.HTTPErrorResponse{
		Error: &platformerrors.HTTPErrorDetail{
			Message:   message,
			Type:      "unauthorized_error",
			RequestID: platformerrors.RequestIDFromContext(c.Request.Context()),
		},
	})
}
