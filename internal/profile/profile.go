// Package profile keeps the local user's matchmaking profile on disk.
package profile

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/vmihailenco/msgpack/v5"
)

var (
	ErrNotFound     = errors.New("profile not found")
	ErrInvalidField = errors.New("invalid profile field")
)

type Gender string

const (
	GenderUnspecified Gender = ""
	GenderMale        Gender = "male"
	GenderFemale      Gender = "female"
	GenderOther       Gender = "other"
)

// Preference is who the user wants to be matched with.
type Preference string

const (
	PreferAny    Preference = "any"
	PreferMale   Preference = "male"
	PreferFemale Preference = "female"
)

type Profile struct {
	ID         string     `msgpack:"id"`
	Gender     Gender     `msgpack:"gender"`
	Preference Preference `msgpack:"preference"`
	Credits    int        `msgpack:"credits"`
	Premium    bool       `msgpack:"premium"`
}

func New() Profile {
	return Profile{ID: uuid.NewString(), Preference: PreferAny}
}

func ParseGender(s string) (Gender, error) {
	switch g := Gender(strings.ToLower(strings.TrimSpace(s))); g {
	case GenderUnspecified, GenderMale, GenderFemale, GenderOther:
		return g, nil
	}
	return "", fmt.Errorf("%w: gender %q", ErrInvalidField, s)
}

func ParsePreference(s string) (Preference, error) {
	switch p := Preference(strings.ToLower(strings.TrimSpace(s))); p {
	case PreferAny, PreferMale, PreferFemale:
		return p, nil
	case "":
		return PreferAny, nil
	}
	return "", fmt.Errorf("%w: preference %q", ErrInvalidField, s)
}

func (p Profile) Validate() error {
	if _, err := uuid.Parse(p.ID); err != nil {
		return fmt.Errorf("%w: id: %v", ErrInvalidField, err)
	}
	if _, err := ParseGender(string(p.Gender)); err != nil {
		return err
	}
	if _, err := ParsePreference(string(p.Preference)); err != nil {
		return err
	}
	if p.Credits < 0 {
		return fmt.Errorf("%w: credits %d", ErrInvalidField, p.Credits)
	}
	return nil
}

// EffectivePreference is the filter actually applied when matching. Only
// premium users get to narrow it.
func (p Profile) EffectivePreference() Preference {
	if !p.Premium || p.Preference == "" {
		return PreferAny
	}
	return p.Preference
}

// Store persists a single profile as msgpack.
type Store struct {
	path string
}

func NewStore(path string) *Store {
	return &Store{path: path}
}

func (s *Store) Path() string { return s.path }

func (s *Store) Load() (Profile, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return Profile{}, ErrNotFound
	}
	if err != nil {
		return Profile{}, fmt.Errorf("read profile: %w", err)
	}

	var p Profile
	if err := msgpack.Unmarshal(data, &p); err != nil {
		return Profile{}, fmt.Errorf("decode profile: %w", err)
	}
	if err := p.Validate(); err != nil {
		return Profile{}, err
	}
	return p, nil
}

// Save writes p atomically.
func (s *Store) Save(p Profile) error {
	if err := p.Validate(); err != nil {
		return err
	}
	data, err := msgpack.Marshal(&p)
	if err != nil {
		return fmt.Errorf("encode profile: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("create profile dir: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".profile-*")
	if err != nil {
		return fmt.Errorf("write profile: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write profile: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("write profile: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("write profile: %w", err)
	}
	return nil
}

// LoadOrCreate returns the stored profile, creating and saving a fresh one
// on first use.
func (s *Store) LoadOrCreate() (Profile, error) {
	p, err := s.Load()
	if !errors.Is(err, ErrNotFound) {
		return p, err
	}
	p = New()
	if err := s.Save(p); err != nil {
		return Profile{}, err
	}
	return p, nil
}
