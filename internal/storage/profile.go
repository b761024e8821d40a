package storage

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/hammamikhairi/glowroutine/internal/domain"
)

//go:embed demo.yaml
var demoProfile []byte

// Profiles is the on-disk shape of a seed file.
type Profiles struct {
	Users []domain.UserRoutineData `yaml:"users"`
}

// ParseProfiles decodes a seed file. Unknown fields are rejected.
func ParseProfiles(r io.Reader) (*Profiles, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var p Profiles
	if err := dec.Decode(&p); err != nil {
		if errors.Is(err, io.EOF) {
			return &p, nil
		}
		return nil, fmt.Errorf("decoding profiles: %w", err)
	}
	for i, u := range p.Users {
		if u.UserID == "" {
			return nil, fmt.Errorf("profile %d: user_id is required", i)
		}
	}
	return &p, nil
}

// LoadProfile seeds the store from a YAML file and returns how many users
// it loaded.
func (s *MemoryStore) LoadProfile(path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("opening profile: %w", err)
	}
	defer f.Close()

	p, err := ParseProfiles(f)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", path, err)
	}
	s.seedAll(p)
	s.log.Info("loaded %d user profile(s) from %s", len(p.Users), path)
	return len(p.Users), nil
}

// SeedDemo loads the bundled demo user.
func (s *MemoryStore) SeedDemo() error {
	p, err := ParseProfiles(bytes.NewReader(demoProfile))
	if err != nil {
		return fmt.Errorf("bundled demo profile: %w", err)
	}
	s.seedAll(p)
	return nil
}

func (s *MemoryStore) seedAll(p *Profiles) {
	for i := range p.Users {
		s.Seed(&p.Users[i])
	}
}
