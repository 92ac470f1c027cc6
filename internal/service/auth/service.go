// Package auth authenticates report API callers.
package auth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/alanta/DevOpsReleaseReport/pkg/crypto"
	jwtpkg "github.com/alanta/DevOpsReleaseReport/pkg/jwt"
)

var (
	ErrUnauthenticated = errors.New("auth: unauthenticated")
	ErrNotConfigured   = errors.New("auth: no credentials configured")
)

// Authentication methods reported on a Principal.
const (
	MethodBearer      = "bearer"
	MethodFunctionKey = "function_key"
)

// Principal identifies an authenticated caller.
type Principal struct {
	Subject string
	Name    string
	Method  string
}

// Service validates bearer tokens and function keys.
type Service struct {
	secret    string
	keyHashes []string
	logger    *slog.Logger
	accepted  *sync.Map
}

// New constructs a Service. keyHashes are bcrypt hashes of accepted function keys.
func New(secret string, keyHashes []string, logger *slog.Logger) Service {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return Service{
		secret:    secret,
		keyHashes: keyHashes,
		logger:    logger.With("component", "auth"),
		accepted:  &sync.Map{},
	}
}

// Configured reports whether any credential type can succeed.
func (s Service) Configured() bool {
	return s.secret != "" || len(s.keyHashes) > 0
}

// Authorize validates a bearer token.
func (s Service) Authorize(_ context.Context, token string) (Principal, error) {
	trimmed := strings.TrimSpace(token)
	if trimmed == "" {
		return Principal{}, ErrUnauthenticated
	}
	if s.secret == "" {
		return Principal{}, ErrNotConfigured
	}
	claims, err := jwtpkg.Parse(trimmed, s.secret)
	if err != nil {
		return Principal{}, errors.Join(ErrUnauthenticated, err)
	}
	return Principal{Subject: claims.Subject, Name: claims.Name, Method: MethodBearer}, nil
}

// AuthorizeKey validates a function key against the configured hashes.
// Accepted keys are remembered by digest so bcrypt runs once per key.
func (s Service) AuthorizeKey(_ context.Context, key string) (Principal, error) {
	trimmed := strings.TrimSpace(key)
	if trimmed == "" {
		return Principal{}, ErrUnauthenticated
	}
	if len(s.keyHashes) == 0 {
		return Principal{}, ErrNotConfigured
	}
	digest := keyDigest(trimmed)
	if _, ok := s.accepted.Load(digest); !ok {
		if !crypto.MatchAny(s.keyHashes, trimmed) {
			return Principal{}, ErrUnauthenticated
		}
		s.accepted.Store(digest, struct{}{})
	}
	return Principal{Subject: "key:" + digest[:12], Method: MethodFunctionKey}, nil
}

// IssueToken signs a bearer token for subject.
func (s Service) IssueToken(subject, name string, ttl time.Duration) (string, error) {
	if strings.TrimSpace(subject) == "" {
		return "", errors.New("auth: subject required")
	}
	token, err := jwtpkg.GenerateToken(subject, name, s.secret, ttl)
	if err != nil {
		return "", err
	}
	s.logger.Info("token issued", "subject", subject, "ttl", ttl.String())
	return token, nil
}

func keyDigest(key string) string {
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])
}
