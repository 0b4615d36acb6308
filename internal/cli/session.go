package cli

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
)

var ErrNoSession = errors.New("not logged in, run `fruitctl login` first")

type Session struct {
	AccessToken string    `json:"access_token"`
	PlayerID    string    `json:"player_id"`
	Username    string    `json:"username"`
	ExpiresAt   time.Time `json:"expires_at"`
}

func (s Session) Expired(now time.Time) bool {
	return !s.ExpiresAt.IsZero() && now.After(s.ExpiresAt)
}

// BaseDir resolves the fruitctl state directory, creating it if needed.
// An empty home means ~/.fruitctl.
func BaseDir(home string) (string, error) {
	dir := strings.TrimSpace(home)
	if dir == "" {
		userHome, err := os.UserHomeDir()
		if err != nil {
			return "", errors.Wrap(err, "resolve home dir")
		}
		dir = filepath.Join(userHome, ".fruitctl")
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", errors.Wrap(err, "create state dir")
	}
	return dir, nil
}

func sessionPath(dir string) string {
	return filepath.Join(dir, "session.json")
}

func SaveSession(dir string, s Session) error {
	body, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return errors.Wrap(err, "encode session")
	}
	return errors.Wrap(os.WriteFile(sessionPath(dir), body, 0o600), "write session")
}

func LoadSession(dir string) (Session, error) {
	body, err := os.ReadFile(sessionPath(dir))
	if err != nil {
		if os.IsNotExist(err) {
			return Session{}, ErrNoSession
		}
		return Session{}, errors.Wrap(err, "read session")
	}
	var s Session
	if err := json.Unmarshal(body, &s); err != nil {
		return Session{}, errors.Wrap(err, "decode session")
	}
	if strings.TrimSpace(s.AccessToken) == "" {
		return Session{}, ErrNoSession
	}
	return s, nil
}

func ClearSession(dir string) error {
	path := sessionPath(dir)
	if _, err := os.Stat(path); err != nil {
		return nil
	}
	return errors.Wrap(os.Remove(path), "remove session")
}
