package middleware

import (
	"net/http"

	"duka-be/internal/auth"
	"duka-be/internal/logger"
	"duka-be/internal/user"
	"duka-be/internal/utils"

	"go.uber.org/zap"
)

type Authenticator struct {
	jwtSecret      []byte
	serviceKeyHash string
}

func NewAuthenticator(jwtSecret, serviceKeyHash string) *Authenticator {
	return &Authenticator{
		jwtSecret:      []byte(jwtSecret),
		serviceKeyHash: serviceKeyHash,
	}
}

// AuthMiddleware attaches the caller's Principal when credentials are
// present. Requests without credentials pass through anonymous; bad
// credentials are rejected.
func (a *Authenticator) AuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		log := logger.FromCtx(r.Context())

		if key := auth.ExtractServiceKey(r); key != "" {
			ok, err := user.CheckServiceKey(key, a.serviceKeyHash)
			if err != nil {
				log.Warn("service key presented but none configured", zap.Error(err))
			}
			if !ok {
				utils.WriteJSONError(w, "invalid service key", http.StatusUnauthorized)
				return
			}
			ctx := auth.WithPrincipal(r.Context(), auth.Principal{System: true})
			next.ServeHTTP(w, r.WithContext(ctx))
			return
		}

		tokenStr := auth.ExtractAccessToken(r)
		if tokenStr == "" {
			next.ServeHTTP(w, r)
			return
		}

		claims, err := user.ParseJWT(a.jwtSecret, tokenStr)
		if err != nil {
			log.Info("rejected access token", zap.Error(err), zap.String("path", r.URL.Path))
			utils.WriteJSONError(w, "invalid or expired token", http.StatusUnauthorized)
			return
		}

		ctx := auth.WithPrincipal(r.Context(), auth.Principal{
			UserID: claims.UserID,
			Email:  claims.Email,
			Role:   claims.Role,
		})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := auth.PrincipalFrom(r.Context()); !ok {
			utils.WriteJSONError(w, "authentication required", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequireRole admits only principals holding role. Trusted system callers
// are not admitted implicitly.
func RequireRole(role string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p, ok := auth.PrincipalFrom(r.Context())
		if !ok {
			utils.WriteJSONError(w, "authentication required", http.StatusUnauthorized)
			return
		}
		if p.Role != role {
			utils.WriteJSONError(w, "forbidden", http.StatusForbidden)
			return
		}
		next.ServeHTTP(w, r)
	})
}
