package httpx

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/alanta/DevOpsReleaseReport/internal/service/auth"
)

type authContextKey string

type authInfo struct {
	Subject string
	Name    string
	Method  string
}

const contextKeyAuth authContextKey = "releasereport-auth-info"

const functionKeyHeader = "x-functions-key"

type contextSetter interface {
	SetContext(context.Context)
}

// requireAuth admits requests carrying a valid bearer token or function key.
func (r *Router) requireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		ctx, ok := r.ensureAuth(w, req)
		if !ok {
			return
		}
		if setter, ok := w.(contextSetter); ok {
			setter.SetContext(ctx)
		}
		next(w, req.WithContext(ctx))
	}
}

// ensureAuth validates the request credentials and enriches the context.
func (r *Router) ensureAuth(w http.ResponseWriter, req *http.Request) (context.Context, bool) {
	principal, err := r.authenticate(req)
	if err != nil {
		r.logger.Warn("authentication failed", "error", err, "path", req.URL.Path)
		writeError(w, http.StatusUnauthorized, "authentication required")
		return req.Context(), false
	}
	info := authInfo{Subject: principal.Subject, Name: principal.Name, Method: principal.Method}
	return context.WithValue(req.Context(), contextKeyAuth, info), true
}

func (r *Router) authenticate(req *http.Request) (auth.Principal, error) {
	if header := req.Header.Get("Authorization"); strings.TrimSpace(header) != "" {
		token, err := bearerToken(header)
		if err != nil {
			return auth.Principal{}, err
		}
		return r.auth.Authorize(req.Context(), token)
	}
	key := strings.TrimSpace(req.Header.Get(functionKeyHeader))
	if key == "" {
		key = strings.TrimSpace(req.URL.Query().Get("code"))
	}
	if key == "" {
		return auth.Principal{}, errors.New("missing credentials")
	}
	return r.auth.AuthorizeKey(req.Context(), key)
}

// authInfoFromContext extracts auth metadata from context.
func authInfoFromContext(ctx context.Context) (authInfo, bool) {
	value := ctx.Value(contextKeyAuth)
	if value == nil {
		return authInfo{}, false
	}
	info, ok := value.(authInfo)
	return info, ok
}

func bearerToken(header string) (string, error) {
	parts := strings.Fields(header)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", errors.New("invalid authorization header format")
	}
	token := strings.TrimSpace(parts[1])
	if token == "" {
		return "", errors.New("empty bearer token")
	}
	return token, nil
}
