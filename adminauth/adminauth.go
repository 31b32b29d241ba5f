// Package adminauth manages the server-held admin credential. The password
// lives in a small JSON file next to the server so it survives restarts and
// can be rotated at runtime; a file lock guards concurrent access from the
// admin CLI.
package adminauth

import (
	"encoding/json"
	"errors"
	"os"
	"strings"

	"github.com/gofrs/flock"
)

const defaultAdminPassword = "glowchat-admin"

var (
	ErrEmptyPassword = errors.New("password cannot be empty")
	ErrShortPassword = errors.New("password must be at least 4 characters long")
)

type credentialFile struct {
	AdminPassword string `json:"adminPassword"`
}

// Manager reads and rotates the admin password. The bearer token handed out
// at login is the password itself, so rotating it invalidates every
// previously issued token.
type Manager struct {
	path string
	lock *flock.Flock
}

func NewManager(path string) *Manager {
	return &Manager{
		path: path,
		lock: flock.New(path + ".lock"),
	}
}

// Password returns the current admin password, bootstrapping the credential
// file with the default on first use.
func (m *Manager) Password() (string, error) {
	if err := m.lock.Lock(); err != nil {
		return "", err
	}
	defer m.lock.Unlock() //nolint
	raw, err := os.ReadFile(m.path)
	if err != nil {
		if !os.IsNotExist(err) {
			return "", err
		}
		if err := m.write(defaultAdminPassword); err != nil {
			return "", err
		}
		return defaultAdminPassword, nil
	}
	var cred credentialFile
	if err := json.Unmarshal(raw, &cred); err != nil {
		return "", err
	}
	return cred.AdminPassword, nil
}

// Validate checks a bearer token against the current password.
func (m *Manager) Validate(token string) (bool, error) {
	password, err := m.Password()
	if err != nil {
		return false, err
	}
	return token != "" && token == password, nil
}

// Change rotates the admin password. The new password is trimmed and must be
// at least 4 characters; previously issued tokens stop validating.
func (m *Manager) Change(newPassword string) error {
	newPassword = strings.TrimSpace(newPassword)
	if newPassword == "" {
		return ErrEmptyPassword
	}
	if len(newPassword) < 4 {
		return ErrShortPassword
	}
	if err := m.lock.Lock(); err != nil {
		return err
	}
	defer m.lock.Unlock() //nolint
	return m.write(newPassword)
}

func (m *Manager) write(password string) error {
	raw, err := json.MarshalIndent(credentialFile{AdminPassword: password}, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(m.path, raw, 0600)
}
