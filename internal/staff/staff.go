// Package staff loads the directory of check-in officials and resolves a
// PIN to a staff member.
package staff

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"

	"gopkg.in/yaml.v3"

	"github.com/iliyamo/convention-desk/internal/model"
	"github.com/iliyamo/convention-desk/internal/utils"
)

var (
	ErrInvalidPIN = errors.New("invalid pin")
	ErrNotFound   = errors.New("staff member not found")
)

type file struct {
	Staff []model.Staff `yaml:"staff"`
}

// Directory is safe for concurrent use.  Reload swaps the whole entry set.
type Directory struct {
	path string
	log  *slog.Logger

	mu      sync.RWMutex
	entries []model.Staff
	byID    map[string]model.Staff
}

// Open reads the directory at path.
func Open(path string, logger *slog.Logger) (*Directory, error) {
	if logger == nil {
		logger = slog.Default()
	}
	d := &Directory{path: path, log: logger.With("component", "staff")}
	if err := d.Reload(); err != nil {
		return nil, err
	}
	return d, nil
}

// Parse validates a directory document without touching the filesystem.
func Parse(data []byte) ([]model.Staff, error) {
	var f file
	dec := yaml.NewDecoder(strings.NewReader(string(data)))
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		return nil, fmt.Errorf("decode staff directory: %w", err)
	}
	seen := make(map[string]bool, len(f.Staff))
	for i, s := range f.Staff {
		s.ID = strings.TrimSpace(s.ID)
		s.Role = strings.ToUpper(strings.TrimSpace(s.Role))
		switch {
		case s.ID == "":
			return nil, fmt.Errorf("staff entry %d: id is required", i)
		case seen[s.ID]:
			return nil, fmt.Errorf("staff entry %d: duplicate id %q", i, s.ID)
		case s.Role != model.RoleScanner && s.Role != model.RoleAdmin:
			return nil, fmt.Errorf("staff %s: unknown role %q", s.ID, s.Role)
		case !strings.HasPrefix(s.PINHash, "$2"):
			return nil, fmt.Errorf("staff %s: pin_hash is not a bcrypt hash", s.ID)
		}
		if strings.TrimSpace(s.Name) == "" {
			s.Name = s.ID
		}
		seen[s.ID] = true
		f.Staff[i] = s
	}
	return f.Staff, nil
}

// Reload re-reads the file.  On error the previous entries stay in place.
func (d *Directory) Reload() error {
	data, err := os.ReadFile(d.path)
	if err != nil {
		return fmt.Errorf("read staff directory: %w", err)
	}
	entries, err := Parse(data)
	if err != nil {
		return err
	}
	byID := make(map[string]model.Staff, len(entries))
	for _, s := range entries {
		byID[s.ID] = s
	}
	d.mu.Lock()
	d.entries, d.byID = entries, byID
	d.mu.Unlock()
	d.log.Info("staff directory loaded", "path", d.path, "entries", len(entries))
	return nil
}

// Login returns the active staff member whose PIN matches.  Entries are
// tried in file order; the first match wins.
func (d *Directory) Login(pin string) (model.Staff, error) {
	pin = strings.TrimSpace(pin)
	if pin == "" {
		return model.Staff{}, ErrInvalidPIN
	}
	d.mu.RLock()
	entries := d.entries
	d.mu.RUnlock()
	for _, s := range entries {
		if s.IsActive() && utils.VerifyPIN(s.PINHash, pin) {
			return s, nil
		}
	}
	return model.Staff{}, ErrInvalidPIN
}

// Get looks a staff member up by id.
func (d *Directory) Get(id string) (model.Staff, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	s, ok := d.byID[id]
	if !ok || !s.IsActive() {
		return model.Staff{}, ErrNotFound
	}
	return s, nil
}

// Len reports the number of loaded entries.
func (d *Directory) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.entries)
}

// ReloadOnSignal reloads the directory on every SIGHUP until ctx is done.
func (d *Directory) ReloadOnSignal(ctx context.Context) {
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, syscall.SIGHUP)
	go func() {
		defer signal.Stop(ch)
		for {
			select {
			case <-ctx.Done():
				return
			case <-ch:
				if err := d.Reload(); err != nil {
					d.log.Error("staff directory reload failed", "error", err)
				}
			}
		}
	}()
}
