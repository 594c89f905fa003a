package spool

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"math"
	"math/big"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"quire/internal/logging"
	"quire/internal/services"
)

const (
	partialPrefix = "_"
	fileMode      = 0o600

	// maxIdentifierAttempts bounds identifier generation when candidates collide.
	maxIdentifierAttempts = 16
)

// ErrIdentifierSpaceExhausted is returned when every generated identifier
// candidate collided with an existing entry.
var ErrIdentifierSpaceExhausted = errors.New("spool: could not allocate a fresh identifier")

// State describes whether an entry is still receiving chunks.
type State string

const (
	StatePartial State = "partial"
	StateFinal   State = "final"
)

// Entry describes one spool file as found on disk.
type Entry struct {
	Key        string
	State      State
	Path       string
	Size       int64
	ModifiedAt time.Time
}

// IdentifierSource produces candidate identifiers for new uploads.
type IdentifierSource func() (string, error)

// Option configures a Store.
type Option func(*Store)

// WithIdentifierSource overrides random identifier generation.
func WithIdentifierSource(source IdentifierSource) Option {
	return func(s *Store) {
		if source != nil {
			s.nextIdentifier = source
		}
	}
}

// WithLogger sets the logger used for chunk diagnostics.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		s.logger = logging.NewComponentLogger(logger, "spool")
	}
}

// Store is a directory-backed spool. It is safe for concurrent use on distinct
// identifiers; concurrent writers to the same identifier must coordinate
// themselves.
type Store struct {
	dir            string
	logger         *slog.Logger
	nextIdentifier IdentifierSource
}

// New opens (creating if needed) the spool directory.
func New(dir string, opts ...Option) (*Store, error) {
	dir = strings.TrimSpace(dir)
	if dir == "" {
		return nil, services.Wrap(services.ErrConfiguration, "spool", "open", "spool directory not configured", nil)
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create spool directory: %w", err)
	}
	s := &Store{
		dir:            dir,
		logger:         logging.NewComponentLogger(nil, "spool"),
		nextIdentifier: randomIdentifier,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s, nil
}

// Dir returns the spool directory.
func (s *Store) Dir() string {
	return s.dir
}

// StorageKey derives the on-disk name for an identifier.
func StorageKey(identifier string) string {
	sum := sha256.Sum256([]byte(identifier))
	return hex.EncodeToString(sum[:])
}

// ParseName reports whether name is a spool file and, if so, its key and state.
func ParseName(name string) (string, State, bool) {
	state := StateFinal
	key := name
	if strings.HasPrefix(name, partialPrefix) {
		state = StatePartial
		key = strings.TrimPrefix(name, partialPrefix)
	}
	if len(key) != sha256.Size*2 {
		return "", "", false
	}
	for _, r := range key {
		if (r < '0' || r > '9') && (r < 'a' || r > 'f') {
			return "", "", false
		}
	}
	return key, state, true
}

func (s *Store) partialPath(key string) string {
	return filepath.Join(s.dir, partialPrefix+key)
}

func (s *Store) finalPath(key string) string {
	return filepath.Join(s.dir, key)
}

// PutChunk appends data to the upload named by identifier, allocating a fresh
// identifier when none is given. When isLast is set the entry is finalized and
// becomes readable. The (possibly new) identifier is returned.
func (s *Store) PutChunk(identifier string, data []byte, isLast bool) (string, error) {
	identifier = strings.TrimSpace(identifier)

	var (
		file *os.File
		key  string
		err  error
	)
	if identifier != "" {
		key = StorageKey(identifier)
		file, err = os.OpenFile(s.partialPath(key), os.O_WRONLY|os.O_APPEND, fileMode)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return "", services.Wrap(services.ErrNoIdentifier, "spool", "put chunk", "no partial upload for identifier", nil)
			}
			return "", fmt.Errorf("open partial upload: %w", err)
		}
		if len(data) == 0 {
			file.Close()
			return "", services.Wrap(services.ErrNoData, "spool", "put chunk", "empty chunk", nil)
		}
	} else {
		if len(data) == 0 {
			return "", services.Wrap(services.ErrNoData, "spool", "put chunk", "empty chunk", nil)
		}
		identifier, key, file, err = s.claim()
		if err != nil {
			return "", err
		}
		s.logger.Debug("assigned new identifier", logging.String("identifier", identifier))
	}

	if _, err := file.Write(data); err != nil {
		file.Close()
		return "", fmt.Errorf("append chunk: %w", err)
	}
	if err := file.Close(); err != nil {
		return "", fmt.Errorf("close partial upload: %w", err)
	}
	s.logger.Debug("chunk stored",
		logging.String("identifier", identifier),
		logging.Int("bytes", len(data)),
		logging.Bool("last", isLast),
	)

	if isLast {
		if err := os.Rename(s.partialPath(key), s.finalPath(key)); err != nil {
			return "", fmt.Errorf("finalize upload: %w", err)
		}
		s.logger.Debug("upload finalized", logging.String("identifier", identifier))
	}
	return identifier, nil
}

// claim generates identifiers until one maps to a key with neither a Partial
// nor a Final file, creating the Partial file exclusively.
func (s *Store) claim() (string, string, *os.File, error) {
	for attempt := 1; attempt <= maxIdentifierAttempts; attempt++ {
		candidate, err := s.nextIdentifier()
		if err != nil {
			return "", "", nil, fmt.Errorf("generate identifier: %w", err)
		}
		key := StorageKey(candidate)
		if _, err := os.Lstat(s.finalPath(key)); err == nil {
			continue
		} else if !errors.Is(err, fs.ErrNotExist) {
			return "", "", nil, fmt.Errorf("check spool entry: %w", err)
		}
		file, err := os.OpenFile(s.partialPath(key), os.O_WRONLY|os.O_CREATE|os.O_EXCL, fileMode)
		if err != nil {
			if errors.Is(err, fs.ErrExist) {
				continue
			}
			return "", "", nil, fmt.Errorf("create partial upload: %w", err)
		}
		return candidate, key, file, nil
	}
	return "", "", nil, ErrIdentifierSpaceExhausted
}

// Read returns the content of a Final entry.
func (s *Store) Read(identifier string) ([]byte, error) {
	identifier = strings.TrimSpace(identifier)
	if identifier == "" {
		return nil, services.Wrap(services.ErrNoIdentifier, "spool", "read", "empty identifier", nil)
	}
	data, err := os.ReadFile(s.finalPath(StorageKey(identifier)))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, services.Wrap(services.ErrNoIdentifier, "spool", "read", "no finished upload for identifier", nil)
		}
		return nil, fmt.Errorf("read spool entry: %w", err)
	}
	return data, nil
}

// Entries lists spool files. Names that are not spool keys are skipped.
func (s *Store) Entries() ([]Entry, error) {
	dirEntries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("list spool: %w", err)
	}
	entries := make([]Entry, 0, len(dirEntries))
	for _, de := range dirEntries {
		if de.IsDir() {
			continue
		}
		key, state, ok := ParseName(de.Name())
		if !ok {
			continue
		}
		info, err := de.Info()
		if err != nil {
			// Removed between ReadDir and Info.
			continue
		}
		entries = append(entries, Entry{
			Key:        key,
			State:      state,
			Path:       filepath.Join(s.dir, de.Name()),
			Size:       info.Size(),
			ModifiedAt: info.ModTime(),
		})
	}
	return entries, nil
}

// Remove deletes an entry. A missing file is not an error.
func (s *Store) Remove(entry Entry) error {
	if filepath.Dir(entry.Path) != filepath.Clean(s.dir) {
		return fmt.Errorf("remove %s: path outside spool", entry.Path)
	}
	if err := os.Remove(entry.Path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

// Counts returns the number of Partial and Final entries.
func (s *Store) Counts() (partial, final int, err error) {
	entries, err := s.Entries()
	if err != nil {
		return 0, 0, err
	}
	for _, e := range entries {
		if e.State == StatePartial {
			partial++
		} else {
			final++
		}
	}
	return partial, final, nil
}

var identifierRange = big.NewInt(math.MaxInt64)

// randomIdentifier returns the decimal form of a random integer in [1, 2^63-1].
func randomIdentifier() (string, error) {
	n, err := rand.Int(rand.Reader, identifierRange)
	if err != nil {
		return "", err
	}
	return strconv.FormatInt(n.Int64()+1, 10), nil
}
