package model

import (
	"errors"
	"fmt"
	"time"
)

// Provider identifies an upstream inventory source.
type Provider string

const (
	ProviderMobileDe    Provider = "mobilede"
	ProviderAutoScout24 Provider = "autoscout24"
)

// Providers lists every supported inventory source in sweep order.
var Providers = []Provider{ProviderMobileDe, ProviderAutoScout24}

// ParseProvider converts a raw string to a Provider.
func ParseProvider(s string) (Provider, error) {
	p := Provider(s)
	switch p {
	case ProviderMobileDe, ProviderAutoScout24:
		return p, nil
	}
	return "", fmt.Errorf("unknown inventory provider %q", s)
}

// Credential is a stored inventory-account login for one user and provider.
type Credential struct {
	ID              int64      `json:"id"`
	UserID          string     `json:"user_id"`
	Provider        Provider   `json:"provider"`
	Username        string     `json:"username"`
	EncryptedSecret string     `json:"-"`
	SecretIV        string     `json:"-"`
	LastSyncAt      *time.Time `json:"last_sync_at"`
	DeletedAt       *time.Time `json:"deleted_at,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// State reports the lifecycle state of a stored row. A nil credential is absent.
func (c *Credential) State() CredentialState {
	switch {
	case c == nil:
		return CredentialAbsent
	case c.DeletedAt != nil:
		return CredentialDisconnected
	default:
		return CredentialActive
	}
}

// CredentialState is a node in the credential lifecycle.
//
//	absent ──connect──► active ──disconnect──► disconnected
//	                     ▲  │                       │
//	                     └──┘ update                │
//	                     ▲                          │
//	                     └────────reconnect─────────┘
type CredentialState string

const (
	CredentialAbsent       CredentialState = "absent"
	CredentialActive       CredentialState = "active"
	CredentialDisconnected CredentialState = "disconnected"
)

// CredentialEvent is an edge in the credential lifecycle.
type CredentialEvent string

const (
	EventConnect    CredentialEvent = "connect"
	EventUpdate     CredentialEvent = "update"
	EventDisconnect CredentialEvent = "disconnect"
	EventReconnect  CredentialEvent = "reconnect"
)

// ErrInvalidTransition is returned for an event not allowed from the current state.
var ErrInvalidTransition = errors.New("invalid credential transition")

var credentialTransitions = map[CredentialState]map[CredentialEvent]CredentialState{
	CredentialAbsent: {
		EventConnect: CredentialActive,
	},
	CredentialActive: {
		EventUpdate:     CredentialActive,
		EventDisconnect: CredentialDisconnected,
	},
	CredentialDisconnected: {
		EventReconnect: CredentialActive,
	},
}

// Transition returns the state reached by applying ev in from.
func Transition(from CredentialState, ev CredentialEvent) (CredentialState, error) {
	if to, ok := credentialTransitions[from][ev]; ok {
		return to, nil
	}
	return from, fmt.Errorf("%w: %s from %s", ErrInvalidTransition, ev, from)
}

// SaveEvent picks the event that stores fresh login data in the given state.
func SaveEvent(s CredentialState) CredentialEvent {
	switch s {
	case CredentialActive:
		return EventUpdate
	case CredentialDisconnected:
		return EventReconnect
	default:
		return EventConnect
	}
}
