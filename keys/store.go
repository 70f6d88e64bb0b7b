package keys

import (
	"crypto/ed25519"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Store keeps seeds on the local filesystem:
//
//	<dir>/<name>/root.key
//	<dir>/<name>/roles/<role>.key
//
// Each file holds one hex-encoded 32-byte seed. The same seed serves both
// algorithms; the algorithm is chosen when a Signer is built.
type Store struct {
	Dir string
}

// Entry lists one root and the roles derived from it.
type Entry struct {
	Name  string
	Roles []string
}

func DefaultDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".xdao", "libreg", "keys"), nil
}

// OpenStore returns a store rooted at dir, or at DefaultDir when dir is empty.
func OpenStore(dir string) (*Store, error) {
	if dir == "" {
		var err error
		dir, err = DefaultDir()
		if err != nil {
			return nil, err
		}
	}
	return &Store{Dir: dir}, nil
}

func (s *Store) rootPath(name string) string {
	return filepath.Join(s.Dir, name, "root.key")
}

func (s *Store) rolePath(name, role string) string {
	return filepath.Join(s.Dir, name, "roles", role+".key")
}

// CheckName accepts letters, digits, '-' and '_'.
func CheckName(name string) error {
	if name == "" {
		return errors.New("name cannot be empty")
	}
	for _, r := range name {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '-' || r == '_' {
			continue
		}
		return fmt.Errorf("invalid character %q in %q", r, name)
	}
	return nil
}

func ParseSeedHex(seedHex string) ([]byte, error) {
	seedHex = strings.TrimPrefix(strings.TrimSpace(seedHex), "0x")
	data, err := hex.DecodeString(seedHex)
	if err != nil {
		return nil, err
	}
	if len(data) != ed25519.SeedSize {
		return nil, fmt.Errorf("expected seed length of %d bytes, got %d", ed25519.SeedSize, len(data))
	}
	return data, nil
}

func writeSeed(path string, seed []byte, overwrite bool) error {
	if len(seed) != ed25519.SeedSize {
		return fmt.Errorf("expected seed length of %d bytes", ed25519.SeedSize)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	flags := os.O_WRONLY | os.O_CREATE
	if overwrite {
		flags |= os.O_TRUNC
	} else {
		flags |= os.O_EXCL
	}
	f, err := os.OpenFile(path, flags, 0o600)
	if err != nil {
		return err
	}
	defer f.Close()
	if _, err := f.WriteString(hex.EncodeToString(seed) + "\n"); err != nil {
		return err
	}
	return f.Close()
}

func readSeed(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseSeedHex(string(data))
}

// Init stores seed as the root of name and returns the file path.
func (s *Store) Init(name string, seed []byte, overwrite bool) (string, error) {
	if err := CheckName(name); err != nil {
		return "", err
	}
	path := s.rootPath(name)
	if err := writeSeed(path, seed, overwrite); err != nil {
		return "", err
	}
	return path, nil
}

// Derive stores the role seed derived from name's root and returns the file
// path.
func (s *Store) Derive(name, role string, overwrite bool) (string, error) {
	if err := CheckName(name); err != nil {
		return "", err
	}
	root, err := readSeed(s.rootPath(name))
	if err != nil {
		return "", err
	}
	seed, err := DeriveRoleSeed(root, role)
	if err != nil {
		return "", err
	}
	path := s.rolePath(name, role)
	if err := writeSeed(path, seed, overwrite); err != nil {
		return "", err
	}
	return path, nil
}

// Seed loads the root seed of name, or the role seed when role is non-empty.
func (s *Store) Seed(name, role string) ([]byte, error) {
	if err := CheckName(name); err != nil {
		return nil, err
	}
	if role == "" {
		return readSeed(s.rootPath(name))
	}
	if err := CheckName(role); err != nil {
		return nil, err
	}
	return readSeed(s.rolePath(name, role))
}

// LoadSeed resolves a signing seed from, in order: a hex seed, a key file, or
// a stored name and optional role.
func (s *Store) LoadSeed(seedHex, keyFile, name, role string) ([]byte, error) {
	switch {
	case seedHex != "":
		return ParseSeedHex(seedHex)
	case keyFile != "":
		return readSeed(keyFile)
	case name != "":
		return s.Seed(name, role)
	default:
		return nil, errors.New("no signer provided")
	}
}

// List returns stored names and their roles, sorted.
func (s *Store) List() ([]Entry, error) {
	dirEntries, err := os.ReadDir(s.Dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var out []Entry
	for _, de := range dirEntries {
		if !de.IsDir() {
			continue
		}
		e := Entry{Name: de.Name()}
		roleEntries, rerr := os.ReadDir(filepath.Join(s.Dir, de.Name(), "roles"))
		if rerr == nil {
			for _, re := range roleEntries {
				if !re.IsDir() && strings.HasSuffix(re.Name(), ".key") {
					e.Roles = append(e.Roles, strings.TrimSuffix(re.Name(), ".key"))
				}
			}
			sort.Strings(e.Roles)
		}
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}
