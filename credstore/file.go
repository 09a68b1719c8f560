package credstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/onetoweb/mybusiness-go/client"

	"github.com/adrg/xdg"
)

// Relative to the XDG state directory (eg, ~/.local/state on Linux).
const DefaultStateFile = "mybusiness/credentials.json"

// Stores credentials for any number of accounts in a single JSON file, readable only by the current user.
type FileStore struct {
	Path string

	lk sync.Mutex
}

var _ Store = (*FileStore)(nil)

// Opens the default credentials file in the XDG state directory, creating parent directories as needed.
func NewFileStore() (*FileStore, error) {
	fPath, err := xdg.StateFile(DefaultStateFile)
	if err != nil {
		return nil, err
	}
	return &FileStore{Path: fPath}, nil
}

func (s *FileStore) readAll() (map[string]client.Credential, error) {
	out := map[string]client.Credential{}
	b, err := os.ReadFile(s.Path)
	if errors.Is(err, os.ErrNotExist) {
		return out, nil
	}
	if err != nil {
		return nil, err
	}
	if len(b) == 0 {
		return out, nil
	}
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, fmt.Errorf("parsing credentials file %s: %w", s.Path, err)
	}
	return out, nil
}

func (s *FileStore) writeAll(creds map[string]client.Credential) error {
	b, err := json.MarshalIndent(creds, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(s.Path), 0o700); err != nil {
		return err
	}
	// write to a temporary file and rename, so a crash never leaves a truncated file
	tmp := s.Path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, s.Path)
}

func (s *FileStore) Load(ctx context.Context, account string) (client.Credential, error) {
	s.lk.Lock()
	defer s.lk.Unlock()

	creds, err := s.readAll()
	if err != nil {
		return client.Credential{}, err
	}
	cred, ok := creds[account]
	if !ok {
		return client.Credential{}, ErrNotFound
	}
	return cred, nil
}

func (s *FileStore) Save(ctx context.Context, account string, cred client.Credential) error {
	s.lk.Lock()
	defer s.lk.Unlock()

	creds, err := s.readAll()
	if err != nil {
		return err
	}
	creds[account] = cred
	return s.writeAll(creds)
}

func (s *FileStore) Delete(ctx context.Context, account string) error {
	s.lk.Lock()
	defer s.lk.Unlock()

	creds, err := s.readAll()
	if err != nil {
		return err
	}
	if _, ok := creds[account]; !ok {
		return nil
	}
	delete(creds, account)
	if len(creds) == 0 {
		if err := os.Remove(s.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return err
		}
		return nil
	}
	return s.writeAll(creds)
}
