// Package device keeps a stable identifier for the device running the engine.
package device

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// ErrInvalidID is returned when the persisted file holds something other than a UUID.
var ErrInvalidID = errors.New("device: invalid persisted id")

const filePerm = 0o600

// LoadOrCreate returns the id stored at path, creating and persisting a new
// random UUID when the file does not exist. An empty path yields an
// ephemeral id.
func LoadOrCreate(path string) (string, error) {
	if path == "" {
		return uuid.NewString(), nil
	}

	b, err := os.ReadFile(path)
	switch {
	case err == nil:
		id := strings.TrimSpace(string(b))
		if _, perr := uuid.Parse(id); perr != nil {
			return "", fmt.Errorf("%w: %s: %w", ErrInvalidID, path, perr)
		}
		return id, nil
	case !errors.Is(err, os.ErrNotExist):
		return "", fmt.Errorf("read device id %s: %w", path, err)
	}

	id := uuid.NewString()
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return "", fmt.Errorf("create device id dir: %w", err)
	}
	if err := os.WriteFile(path, []byte(id+"\n"), filePerm); err != nil {
		return "", fmt.Errorf("write device id %s: %w", path, err)
	}
	return id, nil
}
