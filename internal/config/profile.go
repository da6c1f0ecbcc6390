package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// ErrNoProfile indicates the profile file does not exist yet.
var ErrNoProfile = errors.New("profile not found")

// Profile is the signed-in identity shared by every client command.
type Profile struct {
	Username string `yaml:"username"`
	UserID   string `yaml:"userId"`
	Email    string `yaml:"email,omitempty"`
	Token    string `yaml:"token"`
}

// Validate reports the first missing field needed to open a chat session.
func (p Profile) Validate() error {
	switch {
	case p.Username == "":
		return fmt.Errorf("profile: username is empty")
	case p.Token == "":
		return fmt.Errorf("profile: token is empty")
	}
	return nil
}

// LoadProfile reads the profile at path.
func LoadProfile(path string) (Profile, error) {
	var p Profile

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return p, fmt.Errorf("%w: %s", ErrNoProfile, path)
	}
	if err != nil {
		return p, fmt.Errorf("read profile: %w", err)
	}

	if err := yaml.Unmarshal(data, &p); err != nil {
		return p, fmt.Errorf("parse profile: %w", err)
	}
	return p, nil
}

// SaveProfile writes p to path, creating parent directories. The file holds a
// bearer token, so it is only readable by the owner.
func SaveProfile(path string, p Profile) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("create profile dir: %w", err)
	}

	data, err := yaml.Marshal(p)
	if err != nil {
		return fmt.Errorf("marshal profile: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("write profile: %w", err)
	}
	return nil
}
