package auth

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/dmitrijs2005/billsync/internal/logging"
	"github.com/dmitrijs2005/billsync/internal/repositories/metadata"
)

// Session holds the signed-in user. The token and user id are persisted in
// local metadata so a restart can restore the session without a network.
type Session struct {
	meta   metadata.Repository
	secret []byte
	log    logging.Logger

	mu     sync.RWMutex
	userID string
	hooks  []func(userID string)
}

func NewSession(meta metadata.Repository, secret []byte, log logging.Logger) *Session {
	return &Session{meta: meta, secret: secret, log: log.With("component", "auth")}
}

// CurrentUser returns the signed-in user id.
func (s *Session) CurrentUser() (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.userID, s.userID != ""
}

// OnChange registers fn to run after every sign-in and sign-out. A sign-out
// passes "".
func (s *Session) OnChange(fn func(userID string)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hooks = append(s.hooks, fn)
}

func (s *Session) SignIn(ctx context.Context, token string) error {
	userID, err := GetUserIDFromToken(token, s.secret)
	if err != nil {
		return fmt.Errorf("sign in: %w", err)
	}
	if err := metadata.SetString(ctx, s.meta, metadata.KeyAuthToken, token); err != nil {
		return fmt.Errorf("sign in: %w", err)
	}
	if err := metadata.SetString(ctx, s.meta, metadata.KeyUserID, userID); err != nil {
		return fmt.Errorf("sign in: %w", err)
	}

	s.set(userID)
	s.log.Info(ctx, "signed in", "user_id", userID)
	return nil
}

func (s *Session) SignOut(ctx context.Context) error {
	if err := s.clear(ctx); err != nil {
		return fmt.Errorf("sign out: %w", err)
	}
	if _, ok := s.CurrentUser(); !ok {
		return nil
	}
	s.set("")
	s.log.Info(ctx, "signed out")
	return nil
}

// Restore re-validates the persisted token. Without one the session stays
// signed out. A token that no longer validates is discarded and its error
// returned.
func (s *Session) Restore(ctx context.Context) error {
	token, err := metadata.GetString(ctx, s.meta, metadata.KeyAuthToken)
	if err != nil {
		return fmt.Errorf("restore session: %w", err)
	}
	if token == "" {
		return nil
	}

	userID, err := GetUserIDFromToken(token, s.secret)
	if err != nil {
		s.log.Warn(ctx, "stored session is no longer valid", "error", err)
		return errors.Join(fmt.Errorf("restore session: %w", err), s.clear(ctx))
	}

	s.set(userID)
	s.log.Info(ctx, "session restored", "user_id", userID)
	return nil
}

func (s *Session) clear(ctx context.Context) error {
	return errors.Join(
		s.meta.Delete(ctx, metadata.KeyAuthToken),
		s.meta.Delete(ctx, metadata.KeyUserID),
	)
}

func (s *Session) set(userID string) {
	s.mu.Lock()
	s.userID = userID
	hooks := append([]func(string){}, s.hooks...)
	s.mu.Unlock()

	for _, fn := range hooks {
		fn(userID)
	}
}
