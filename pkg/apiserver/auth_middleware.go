package apiserver

import (
	"context"
	"errors"
	"net/http"
	"strings"

	oidc "github.com/coreos/go-oidc"
	"github.com/sirupsen/logrus"

	"github.com/datafundament/pandregister/pkg/backend"
	"github.com/datafundament/pandregister/pkg/model"
)

type ContextKey string

const actorKey ContextKey = "actor"

const sessionCookie = "register_session"

// authMiddleware resolves the caller to an actor and stores it on the
// request context. Requests without usable credentials proceed as the
// anonymous actor; the read handlers narrow what anonymous callers see
// and requireStaff guards the rest.
func authMiddleware(b backend.Backend, verifier *oidc.IDTokenVerifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			actor := model.Anonymous

			token := bearerToken(r)
			if token == "" {
				if cookie, err := r.Cookie(sessionCookie); err == nil {
					token = cookie.Value
				}
			}

			if token != "" {
				if verifier != nil && strings.Count(token, ".") == 2 {
					actor = verifyIDToken(r.Context(), verifier, token)
				}
				if actor.IsAnonymous() {
					resolved, err := b.VerifySession(token)
					if err != nil {
						writeError(w, http.StatusInternalServerError, err)
						return
					}
					actor = resolved
				}
			}

			ctx := context.WithValue(r.Context(), actorKey, actor)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func bearerToken(r *http.Request) string {
	authorization := r.Header.Get("Authorization")
	if authorization == "" {
		return ""
	}
	return strings.TrimPrefix(authorization, "Bearer ")
}

// verifyIDToken accepts an OIDC identity token from the configured
// issuer. Everyone the issuer knows is staff; the register has no finer
// roles on that path.
func verifyIDToken(ctx context.Context, verifier *oidc.IDTokenVerifier, raw string) model.Actor {
	idToken, err := verifier.Verify(ctx, raw)
	if err != nil {
		logrus.Debugf("id token rejected: %v", err)
		return model.Anonymous
	}

	var claims struct {
		Email             string `json:"email"`
		PreferredUsername string `json:"preferred_username"`
	}
	if err := idToken.Claims(&claims); err != nil {
		logrus.Debugf("id token claims unreadable: %v", err)
		return model.Anonymous
	}

	username := claims.PreferredUsername
	if username == "" {
		username = claims.Email
	}
	if username == "" {
		username = idToken.Subject
	}
	return model.Actor{Username: username, Staff: true}
}

func actorFromContext(ctx context.Context) model.Actor {
	actor, _ := ctx.Value(actorKey).(model.Actor)
	return actor
}

// requireStaff rejects anonymous and non-staff callers.
func requireStaff(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor := actorFromContext(r.Context())
		if !actor.Staff {
			writeError(w, http.StatusForbidden, errors.New("forbidden to use"))
			return
		}
		next(w, r)
	}
}
