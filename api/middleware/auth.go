package middleware

import (
	"net/http"
	"strings"

	"github.com/angelmondragon/mandi-backend/api/responses"
	pkgAuth "github.com/angelmondragon/mandi-backend/pkg/auth"
	"github.com/angelmondragon/mandi-backend/pkg/config"
	"github.com/angelmondragon/mandi-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/mandi-backend/pkg/errors"
	"github.com/angelmondragon/mandi-backend/pkg/logger"
)

// Auth validates the bearer token and seeds the request context with the
// actor it names.
func Auth(cfg config.JWTConfig, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := bearerToken(r.Header.Get("Authorization"))
			if token == "" {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing credentials"))
				return
			}

			claims, err := pkgAuth.ParseAccessToken(cfg, token)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid token"))
				return
			}
			actor := claims.Actor()
			if err := actor.Validate(); err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}

			ctx := WithActor(r.Context(), actor)
			if logg != nil {
				ctx = logg.WithActor(ctx, actor.ID.String(), actor.Role.String())
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireRole admits only actors holding one of roles; mount it after Auth.
// Anonymous requests get 401, authenticated ones with the wrong role 403.
func RequireRole(logg *logger.Logger, roles ...enums.ActorRole) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var err error
			if actor, ok := ActorFromContext(r.Context()); !ok {
				err = pkgerrors.New(pkgerrors.CodeUnauthorized, "missing credentials")
			} else {
				err = actor.RequireRole(roles...)
			}
			if err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func bearerToken(header string) string {
	raw := strings.TrimSpace(header)
	if len(raw) > 7 && strings.EqualFold(raw[:7], "bearer ") {
		return strings.TrimSpace(raw[7:])
	}
	return raw
}
