package idgen

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/nrednav/cuid2"
	"github.com/segmentio/ksuid"
)

const (
	DefaultCUID2Length    = 24
	DefaultNanoIDSize     = 21
	DefaultNanoIDAlphabet = "_-0123456789abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ"

	// CodeAlphabet leaves out 0/O and 1/I/L so room codes survive being
	// read aloud.
	CodeAlphabet = "23456789ABCDEFGHJKMNPQRSTUVWXYZ"
	CodeSize     = 8
)

// format is a stateless Generator built from a pair of functions.
type format struct {
	name     string
	generate func() (string, error)
	check    func(id string) error
}

func (f *format) Generate() (string, error) {
	id, err := f.generate()
	if err != nil {
		return "", fmt.Errorf("generate %s: %w", f.name, err)
	}
	return id, nil
}

func (f *format) Validate(id string) error {
	if err := f.check(id); err != nil {
		return fmt.Errorf("invalid %s %q: %w", f.name, id, err)
	}
	return nil
}

func exactLen(id string, n int) error {
	if len(id) != n {
		return fmt.Errorf("length %d, want %d", len(id), n)
	}
	return nil
}

// NewUUIDGenerator issues random (v4) UUIDs, the default entity id.
func NewUUIDGenerator() Generator {
	return &format{
		name: KindUUID,
		generate: func() (string, error) {
			id, err := uuid.NewRandom()
			return id.String(), err
		},
		check: func(id string) error {
			parsed, err := uuid.Parse(id)
			if err != nil {
				return err
			}
			if parsed.Version() != 4 {
				return fmt.Errorf("version %d, want 4", parsed.Version())
			}
			return nil
		},
	}
}

// NewKSUIDGenerator issues 27 character ids sortable to the second.
func NewKSUIDGenerator() Generator {
	return &format{
		name: KindKSUID,
		generate: func() (string, error) {
			id, err := ksuid.NewRandom()
			return id.String(), err
		},
		check: func(id string) error {
			if err := exactLen(id, 27); err != nil {
				return err
			}
			_, err := ksuid.Parse(id)
			return err
		},
	}
}

// NewCUID2Generator issues ids that reveal nothing about creation time.
// length must be 2..32.
func NewCUID2Generator(length int) (Generator, error) {
	if length < 2 || length > 32 {
		return nil, fmt.Errorf("cuid2 length must be between 2 and 32, got %d", length)
	}
	next, err := cuid2.Init(cuid2.WithLength(length))
	if err != nil {
		return nil, fmt.Errorf("init cuid2: %w", err)
	}
	return &format{
		name:     KindCUID2,
		generate: func() (string, error) { return next(), nil },
		check: func(id string) error {
			if err := exactLen(id, length); err != nil {
				return err
			}
			if !cuid2.IsCuid(id) {
				return fmt.Errorf("not a cuid2")
			}
			return nil
		},
	}, nil
}

// NewNanoIDGenerator issues size characters drawn from alphabet.
func NewNanoIDGenerator(size int, alphabet string) (Generator, error) {
	if size < 1 || size > 256 {
		return nil, fmt.Errorf("nanoid size must be between 1 and 256, got %d", size)
	}
	if len(alphabet) < 2 {
		return nil, fmt.Errorf("nanoid alphabet needs at least 2 characters, got %d", len(alphabet))
	}
	return newNanoID(KindNanoID, size, alphabet), nil
}

// NewCodeGenerator issues room join codes.
func NewCodeGenerator() Generator {
	return newNanoID("room code", CodeSize, CodeAlphabet)
}

func newNanoID(name string, size int, alphabet string) *format {
	return &format{
		name:     name,
		generate: func() (string, error) { return gonanoid.Generate(alphabet, size) },
		check: func(id string) error {
			if err := exactLen(id, size); err != nil {
				return err
			}
			if i := strings.IndexFunc(id, func(r rune) bool { return !strings.ContainsRune(alphabet, r) }); i >= 0 {
				return fmt.Errorf("character %q not in alphabet", id[i])
			}
			return nil
		},
	}
}
