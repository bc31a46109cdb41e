// Package idgen generates identifiers for persisted entities, chat
// messages and human-facing codes.
package idgen

import "fmt"

// Generator creates and validates identifiers of one format.
type Generator interface {
	Generate() (string, error)
	Validate(id string) error
}

// Kinds accepted by New.
const (
	KindUUID   = "uuid"
	KindULID   = "ulid"
	KindKSUID  = "ksuid"
	KindCUID2  = "cuid2"
	KindNanoID = "nanoid"
)

// New returns the generator for kind with default parameters.
func New(kind string) (Generator, error) {
	switch kind {
	case KindUUID, "":
		return NewUUIDGenerator(), nil
	case KindULID:
		return NewULIDGenerator(), nil
	case KindKSUID:
		return NewKSUIDGenerator(), nil
	case KindCUID2:
		return NewCUID2Generator(DefaultCUID2Length)
	case KindNanoID:
		return NewNanoIDGenerator(DefaultNanoIDSize, DefaultNanoIDAlphabet)
	default:
		return nil, fmt.Errorf("unknown id kind %q", kind)
	}
}

// MustGenerate panics when the generator fails. Generators only fail when
// the system random source does.
func MustGenerate(g Generator) string {
	id, err := g.Generate()
	if err != nil {
		panic(err)
	}
	return id
}
