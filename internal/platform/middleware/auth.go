package middleware

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	id "everkeep/pkg/domain"
	"everkeep/pkg/requestcontext"
)

// Claims are the token claims this subsystem consumes. Tokens are issued by
// the identity collaborator; we only validate and read them.
type Claims struct {
	SessionID string `json:"sid,omitempty"`
	Role      string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// Validator validates inbound bearer tokens.
type Validator interface {
	ValidateToken(tokenString string) (*Claims, error)
}

// HMACValidator validates HS256 tokens against a shared signing key.
type HMACValidator struct {
	key []byte
}

func NewHMACValidator(signingKey string) *HMACValidator {
	return &HMACValidator{key: []byte(signingKey)}
}

func (v *HMACValidator) ValidateToken(tokenString string) (*Claims, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return v.key, nil
	}, jwt.WithValidMethods([]string{"HS256"}))
	if err != nil {
		return nil, err
	}
	return claims, nil
}

func writeUnauthorized(w http.ResponseWriter, description string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"error":   "unauthorized",
		"message": description,
	})
}

// RequireAuth validates the bearer token and injects the actor and session
// IDs into the request context.
func RequireAuth(validator Validator, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !ok || token == "" {
				writeUnauthorized(w, "missing bearer token")
				return
			}
			claims, err := validator.ValidateToken(token)
			if err != nil {
				logger.WarnContext(ctx, "unauthorized access - invalid token",
					"error", err,
					"request_id", requestcontext.RequestID(ctx),
				)
				writeUnauthorized(w, "invalid or expired token")
				return
			}
			actorID, err := id.ParseActorID(claims.Subject)
			if err != nil {
				writeUnauthorized(w, "invalid subject claim")
				return
			}
			ctx = requestcontext.WithActorID(ctx, actorID)
			if claims.SessionID != "" {
				if sessionID, err := id.ParseSessionID(claims.SessionID); err == nil {
					ctx = requestcontext.WithSessionID(ctx, sessionID)
				}
			}
			if claims.Role == "reviewer" {
				if reviewerID, err := id.ParseReviewerID(claims.Subject); err == nil {
					ctx = requestcontext.WithReviewerID(ctx, reviewerID)
				}
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireReviewer gates review endpoints: the token must carry the reviewer
// role. Runs after RequireAuth.
func RequireReviewer(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			if requestcontext.ReviewerID(ctx).IsNil() {
				logger.WarnContext(ctx, "forbidden - reviewer role required",
					"request_id", requestcontext.RequestID(ctx),
				)
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusForbidden)
				_ = json.NewEncoder(w).Encode(map[string]string{
					"error":   "forbidden",
					"message": "reviewer role required",
				})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
