package store

import (
	"path/filepath"
	"sync"

	"cipherline/internal/domain"
)

const profilesFilename = "profiles.json"

// Profile is what relayctl remembers about one account on one relay.
type Profile struct {
	Relay    string          `json:"relay"`
	Username domain.Username `json:"username"`
	UserID   domain.UserID   `json:"user_id"`
	Token    string          `json:"token,omitempty"`
}

// ProfileFileStore persists client profiles keyed by username.
type ProfileFileStore struct {
	dir string
	mu  sync.Mutex
}

// NewProfileFileStore returns a ProfileFileStore rooted at dir.
func NewProfileFileStore(dir string) *ProfileFileStore {
	return &ProfileFileStore{dir: dir}
}

// SaveProfile writes or replaces the profile for p.Username.
func (s *ProfileFileStore) SaveProfile(p Profile) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	path := filepath.Join(s.dir, profilesFilename)
	profiles := map[domain.Username]Profile{}
	if err := readJSON(path, &profiles); err != nil {
		return err
	}
	profiles[p.Username] = p
	return writeJSON(path, profiles, 0o600)
}

// LoadProfile returns the stored profile for username.
func (s *ProfileFileStore) LoadProfile(username domain.Username) (Profile, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	profiles := map[domain.Username]Profile{}
	if err := readJSON(filepath.Join(s.dir, profilesFilename), &profiles); err != nil {
		return Profile{}, false, err
	}
	p, ok := profiles[username]
	return p, ok, nil
}

// SigningKeyPath is where username's sealed signing key lives under dir.
func SigningKeyPath(dir string, username domain.Username) string {
	return filepath.Join(dir, "keys", username.String()+".key")
}
