// Package auth is the authentication security core: login attempt tracking
// with lockout, session lifecycle, and the composed authenticate operation.
// All state is process-wide and in-memory; nothing here survives a restart.
package auth

import (
	"context"
	"errors"
	"time"

	"medguard.org/internal/cache"
	"medguard.org/internal/fieldcipher"
	"medguard.org/internal/obs"
	"medguard.org/internal/validate"
)

const directoryCacheTTL = 30 * time.Second

// Service composes the tracker, session registry, cipher and input rules
// behind the operations the rest of the application calls.
type Service struct {
	dir      Directory
	tracker  *AttemptTracker
	sessions *SessionRegistry
	cipher   *fieldcipher.Cipher
	metrics  *obs.Registry
	cache    cache.Cache
	now      func() time.Time
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithDirectoryCache caches directory lookups for a short TTL.
func WithDirectoryCache(c cache.Cache) ServiceOption {
	return func(s *Service) { s.cache = c }
}

// WithServiceClock overrides the time source (tests).
func WithServiceClock(fn func() time.Time) ServiceOption {
	return func(s *Service) {
		if fn != nil {
			s.now = fn
		}
	}
}

// NewService wires the core together. All collaborators are explicit
// arguments; there is no ambient singleton behind any of them.
func NewService(
	dir Directory,
	tracker *AttemptTracker,
	sessions *SessionRegistry,
	cipher *fieldcipher.Cipher,
	metrics *obs.Registry,
	opts ...ServiceOption,
) *Service {
	s := &Service{
		dir:      dir,
		tracker:  tracker,
		sessions: sessions,
		cipher:   cipher,
		metrics:  metrics,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Authenticate validates the username, checks the lockout state, verifies
// the password against the credential store and on success opens a session
// and returns its token.
func (s *Service) Authenticate(ctx context.Context, username, password string) (string, error) {
	start := s.now()
	defer func() {
		if s.metrics != nil {
			s.metrics.RecordDuration("login.duration", s.now().Sub(start))
		}
	}()

	if !validate.Valid(username, validate.KindUsername) || password == "" {
		return "", ErrInvalidInput
	}
	if s.tracker.IsLocked(username) {
		return "", ErrLocked
	}

	rec, err := s.lookup(ctx, username)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			s.tracker.RecordAttempt(username, false)
			return "", ErrAuthentication
		}
		return "", err
	}
	if err := VerifyPassword(rec.PasswordHash, password); err != nil {
		s.tracker.RecordAttempt(username, false)
		return "", ErrAuthentication
	}

	s.tracker.RecordAttempt(username, true)
	token, err := s.sessions.Create(rec.ID)
	if err != nil {
		return "", err
	}
	return token, nil
}

// Logout invalidates the session identified by token. Unknown tokens are a
// no-op.
func (s *Service) Logout(_ context.Context, token string) {
	userID, ok := s.sessions.UserOf(token)
	if !ok {
		return
	}
	s.sessions.Invalidate(userID)
}

// ValidSession reports whether token identifies a live session.
func (s *Service) ValidSession(token string) bool {
	return s.sessions.Valid(token)
}

// TouchSession refreshes the session's idle clock.
func (s *Service) TouchSession(token string) {
	s.sessions.Touch(token)
}

// EncryptField encrypts a single sensitive value. Check Degraded before
// treating the result as ciphertext.
func (s *Service) EncryptField(value string) fieldcipher.Result {
	return s.cipher.Encrypt(value)
}

// DecryptField is the inverse of EncryptField.
func (s *Service) DecryptField(value string) fieldcipher.Result {
	return s.cipher.Decrypt(value)
}

// ValidateField checks value against the named rule.
func (s *Service) ValidateField(value string, kind validate.Kind) bool {
	return validate.Valid(value, kind)
}

// SanitizeField strips denylisted characters and trims.
func (s *Service) SanitizeField(value string) string {
	return validate.Sanitize(value)
}

func (s *Service) lookup(ctx context.Context, username string) (*UserRecord, error) {
	key := "user:" + username
	if s.cache != nil {
		if v, ok := s.cache.Get(key); ok {
			return v.(*UserRecord), nil
		}
	}
	rec, err := s.dir.Lookup(ctx, username)
	if err != nil {
		return nil, err
	}
	if s.cache != nil {
		s.cache.Put(key, rec, directoryCacheTTL)
	}
	return rec, nil
}
