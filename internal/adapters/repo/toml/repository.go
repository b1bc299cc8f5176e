package toml

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/bnema/idiom-relay/internal/domain"
	"github.com/bnema/idiom-relay/internal/ports"
	toml "github.com/pelletier/go-toml/v2"
	"github.com/spf13/viper"
)

const (
	SessionsDirKey     = "storage.sessions-dir"
	DefaultSessionsDir = "data/sessions"
	sessionFileMode    = 0o600
	sessionDirMode     = 0o700
	sessionFileExt     = ".toml"
	tempFilePattern    = ".session-*.toml.tmp"
)

// Repository keeps one TOML snapshot per room inside a directory.
type Repository struct {
	dir string
	mu  *sync.RWMutex
}

var (
	lockRegistryMu sync.Mutex
	pathLockMap    = map[string]*sync.RWMutex{}
)

var _ ports.SessionRepository = (*Repository)(nil)

func NewRepository(cfg *viper.Viper) (*Repository, error) {
	if cfg == nil {
		cfg = viper.New()
	}
	cfg.SetDefault(SessionsDirKey, DefaultSessionsDir)

	dir := cfg.GetString(SessionsDirKey)
	if strings.TrimSpace(dir) == "" {
		return nil, errors.New("sessions directory is empty")
	}
	dir, err := normalizeDir(dir)
	if err != nil {
		return nil, err
	}

	return &Repository{dir: dir, mu: lockForPath(dir)}, nil
}

func (r *Repository) Dir() string {
	return r.dir
}

// LoadAll reads every snapshot in the directory. Unreadable snapshots are
// skipped and reported through a *ports.PartialLoadError.
func (r *Repository) LoadAll(ctx context.Context) ([]*domain.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	paths, err := filepath.Glob(filepath.Join(r.dir, "*"+sessionFileExt))
	if err != nil {
		return nil, fmt.Errorf("list session files: %w", err)
	}

	sessions := make([]*domain.Session, 0, len(paths))
	skipped := map[string]error{}
	for _, path := range paths {
		session, err := readSession(path)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			skipped[filepath.Base(path)] = err
			continue
		}
		sessions = append(sessions, session)
	}

	if len(skipped) > 0 {
		return sessions, &ports.PartialLoadError{Skipped: skipped}
	}

	return sessions, nil
}

// SaveAll makes the directory hold exactly the given sessions.
func (r *Repository) SaveAll(ctx context.Context, sessions []*domain.Session) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if err := os.MkdirAll(r.dir, sessionDirMode); err != nil {
		return fmt.Errorf("create sessions directory: %w", err)
	}

	keep := make(map[string]struct{}, len(sessions))
	var errs []error
	for _, session := range sessions {
		if session == nil || !session.Active {
			continue
		}
		path := r.pathFor(session.RoomID)
		keep[path] = struct{}{}
		if err := r.writeSession(path, toSchema(session)); err != nil {
			errs = append(errs, err)
		}
	}

	if err := ctx.Err(); err != nil {
		return err
	}

	existing, err := filepath.Glob(filepath.Join(r.dir, "*"+sessionFileExt))
	if err != nil {
		return fmt.Errorf("list session files: %w", err)
	}
	for _, path := range existing {
		if _, ok := keep[path]; ok {
			continue
		}
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			errs = append(errs, fmt.Errorf("remove stale session file: %w", err))
		}
	}

	return errors.Join(errs...)
}

func (r *Repository) pathFor(room domain.RoomID) string {
	return filepath.Join(r.dir, url.PathEscape(string(room))+sessionFileExt)
}

func readSession(path string) (*domain.Session, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read session file: %w", err)
	}

	var file fileSchema
	if err := toml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("decode session file: %w", err)
	}
	if err := file.validateVersion(); err != nil {
		return nil, err
	}
	file.applyDefaults()

	return fromSchema(file.Session)
}

func (r *Repository) writeSession(path string, file fileSchema) error {
	file.applyDefaults()

	data, err := toml.Marshal(file)
	if err != nil {
		return fmt.Errorf("encode session file: %w", err)
	}

	tempFile, err := os.CreateTemp(r.dir, tempFilePattern)
	if err != nil {
		return fmt.Errorf("create temp session file: %w", err)
	}

	tempName := tempFile.Name()
	cleanup := true
	defer func() {
		if cleanup {
			_ = os.Remove(tempName)
		}
	}()

	if _, err := tempFile.Write(data); err != nil {
		_ = tempFile.Close()
		return fmt.Errorf("write temp session file: %w", err)
	}

	if err := tempFile.Chmod(sessionFileMode); err != nil {
		_ = tempFile.Close()
		return fmt.Errorf("chmod temp session file: %w", err)
	}

	if err := tempFile.Close(); err != nil {
		return fmt.Errorf("close temp session file: %w", err)
	}

	if err := os.Rename(tempName, path); err != nil {
		return fmt.Errorf("replace session file: %w", err)
	}

	cleanup = false

	return nil
}

func normalizeDir(path string) (string, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("resolve sessions directory: %w", err)
	}

	return filepath.Clean(absPath), nil
}

func lockForPath(path string) *sync.RWMutex {
	lockRegistryMu.Lock()
	defer lockRegistryMu.Unlock()

	if mu, ok := pathLockMap[path]; ok {
		return mu
	}

	mu := &sync.RWMutex{}
	pathLockMap[path] = mu
	return mu
}
