package reseller

import (
	"context"
	"errors"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"
)

// Authenticator performs the service-level login.
type Authenticator interface {
	Login(ctx context.Context, email, password string) (string, error)
}

// Session holds the process-wide reseller bearer token. Concurrent callers
// that need a new token share a single in-flight login.
type Session struct {
	auth     Authenticator
	email    string
	password string
	ttl      time.Duration
	timeout  time.Duration

	mu        sync.Mutex
	token     string
	expiresAt time.Time

	group   singleflight.Group
	nowFunc func() time.Time
}

// NewSession returns a session that logs in lazily. Tokens are reused for ttl
// and every login is bounded by timeout.
func NewSession(auth Authenticator, email, password string, ttl, timeout time.Duration) *Session {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Session{
		auth:     auth,
		email:    email,
		password: password,
		ttl:      ttl,
		timeout:  timeout,
		nowFunc:  time.Now,
	}
}

// Token returns the cached token or waits for a (shared) login.
func (s *Session) Token(ctx context.Context) (string, error) {
	if tok, ok := s.cached(); ok {
		return tok, nil
	}

	ch := s.group.DoChan("login", func() (interface{}, error) {
		if tok, ok := s.cached(); ok {
			return tok, nil
		}
		// one waiter giving up must not fail the login for the others
		lctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.timeout)
		defer cancel()

		tok, err := s.auth.Login(lctx, s.email, s.password)
		if err != nil {
			return "", err
		}
		if tok == "" {
			return "", errors.New("reseller login returned an empty token")
		}

		s.mu.Lock()
		s.token = tok
		if s.ttl > 0 {
			s.expiresAt = s.nowFunc().Add(s.ttl)
		} else {
			s.expiresAt = time.Time{}
		}
		s.mu.Unlock()
		log.Debug("reseller session authenticated")
		return tok, nil
	})

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil
	}
}

// Invalidate drops the token only if it is still stale. Callers that saw a 401
// for an already replaced token do nothing.
func (s *Session) Invalidate(stale string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if stale == "" || s.token != stale {
		return false
	}
	s.token = ""
	s.expiresAt = time.Time{}
	return true
}

func (s *Session) cached() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.token == "" {
		return "", false
	}
	if !s.expiresAt.IsZero() && !s.nowFunc().Before(s.expiresAt) {
		return "", false
	}
	return s.token, true
}
