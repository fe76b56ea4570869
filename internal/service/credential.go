package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"dealerhub-api/internal/crypto"
	"dealerhub-api/internal/model"
	"dealerhub-api/internal/repository"
)

// ErrCredentialNotFound is returned when no active credential exists.
var ErrCredentialNotFound = errors.New("credential not found")

// ErrInvalidCredential is returned for a blank username or secret.
var ErrInvalidCredential = errors.New("username and secret are required")

// CredentialService manages the connect/disconnect lifecycle of inventory accounts.
type CredentialService struct {
	repo   repository.CredentialRepository
	cipher crypto.SecretCipher
	now    func() time.Time
}

// NewCredentialService creates a new credential service.
func NewCredentialService(repo repository.CredentialRepository, cipher crypto.SecretCipher) *CredentialService {
	return &CredentialService{repo: repo, cipher: cipher, now: time.Now}
}

// Connect stores login data for userID and provider. Depending on the current
// state this connects, updates or reconnects the account.
func (s *CredentialService) Connect(ctx context.Context, userID string, provider model.Provider, username, secret string) (*model.Credential, error) {
	username = strings.TrimSpace(username)
	if username == "" || secret == "" {
		return nil, ErrInvalidCredential
	}

	current, err := s.repo.GetAny(ctx, userID, provider)
	if err != nil {
		return nil, err
	}
	from := current.State()
	event := model.SaveEvent(from)
	if _, err := model.Transition(from, event); err != nil {
		return nil, err
	}

	ciphertext, iv, err := s.cipher.Encrypt(secret)
	if err != nil {
		return nil, fmt.Errorf("encrypt secret: %w", err)
	}

	switch event {
	case model.EventConnect:
		c := &model.Credential{
			UserID:          userID,
			Provider:        provider,
			Username:        username,
			EncryptedSecret: ciphertext,
			SecretIV:        iv,
		}
		if err := s.repo.Create(ctx, c); err != nil {
			return nil, err
		}
	case model.EventUpdate:
		err = s.repo.UpdateSecret(ctx, userID, provider, username, ciphertext, iv)
	case model.EventReconnect:
		err = s.repo.Reactivate(ctx, userID, provider, username, ciphertext, iv)
	}
	if err != nil {
		return nil, err
	}

	log.Printf("[CredentialService] %s/%s: %s (%s -> active)", userID, provider, event, from)
	return s.repo.Get(ctx, userID, provider)
}

// Disconnect soft-deletes the active credential. Stored listings are kept.
func (s *CredentialService) Disconnect(ctx context.Context, userID string, provider model.Provider) error {
	current, err := s.repo.Get(ctx, userID, provider)
	if err != nil {
		return err
	}
	if current == nil {
		return ErrCredentialNotFound
	}
	if _, err := model.Transition(current.State(), model.EventDisconnect); err != nil {
		return err
	}

	if err := s.repo.SoftDelete(ctx, userID, provider, s.now()); err != nil {
		return err
	}
	log.Printf("[CredentialService] %s/%s: disconnected", userID, provider)
	return nil
}

// Get returns the active credential, or ErrCredentialNotFound.
func (s *CredentialService) Get(ctx context.Context, userID string, provider model.Provider) (*model.Credential, error) {
	c, err := s.repo.Get(ctx, userID, provider)
	if err != nil {
		return nil, err
	}
	if c == nil {
		return nil, ErrCredentialNotFound
	}
	return c, nil
}
