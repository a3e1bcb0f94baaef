package session

import "sync"

// MemoryStore is an in-process CredentialStore. Host applications with a
// durable credential location (keychain, browser storage bridge) supply
// their own implementation.
type MemoryStore struct {
	mu         sync.Mutex
	creds      Credentials
	ok         bool
	returnPath string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Load() (Credentials, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.creds, s.ok
}

func (s *MemoryStore) Save(c Credentials) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.creds = c
	s.ok = true
	return nil
}

func (s *MemoryStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.creds = Credentials{}
	s.ok = false
	return nil
}

func (s *MemoryStore) SetReturnPath(path string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.returnPath = path
}

// ReturnPath reports the recorded post-password-change destination.
func (s *MemoryStore) ReturnPath() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.returnPath
}
