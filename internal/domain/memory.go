package domain

import (
	"context"
	"sync"
)

// MemoryCredentials is a CredentialRepository that keeps the credential in
// process memory only. The credential is gone when the process exits.
type MemoryCredentials struct {
	mu   sync.Mutex
	cred Credential
}

func (m *MemoryCredentials) LoadCredential(context.Context) (Credential, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cred, nil
}

func (m *MemoryCredentials) SaveCredential(_ context.Context, cred Credential) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cred = cred
	return nil
}

func (m *MemoryCredentials) ClearCredential(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cred = Credential{}
	return nil
}
