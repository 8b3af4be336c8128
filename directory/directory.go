// Package directory holds the static set of identities a user can log in as.
package directory

import (
	"cmp"
	"fmt"
	"slices"

	"github.com/google/uuid"
)

// Identity is a user that can approve an authorization request
type Identity struct {
	ID    uuid.UUID `json:"id"`
	Name  string    `json:"name"`
	Email string    `json:"email"`
}

//go:generate mockgen -destination=mocks/mock_directory.go -package=mocks -source=directory.go Source

// Source looks up identities. Implementations must be safe for concurrent use.
type Source interface {
	// Lookup returns the identity with the given id
	Lookup(id uuid.UUID) (Identity, bool)

	// List returns every identity ordered by name
	List() []Identity
}

// Directory is an immutable in-memory Source
type Directory struct {
	byID   map[uuid.UUID]Identity
	sorted []Identity
}

var _ Source = (*Directory)(nil)

// New builds a directory. Identity ids must be unique and non-nil.
func New(identities []Identity) (*Directory, error) {
	d := &Directory{
		byID:   make(map[uuid.UUID]Identity, len(identities)),
		sorted: make([]Identity, 0, len(identities)),
	}
	for _, ident := range identities {
		if ident.ID == uuid.Nil {
			return nil, fmt.Errorf("identity %q has no id", ident.Name)
		}
		if _, dup := d.byID[ident.ID]; dup {
			return nil, fmt.Errorf("duplicate identity id %s", ident.ID)
		}
		d.byID[ident.ID] = ident
		d.sorted = append(d.sorted, ident)
	}

	slices.SortStableFunc(d.sorted, func(a, b Identity) int {
		return cmp.Compare(a.Name, b.Name)
	})
	return d, nil
}

// Lookup implements Source
func (d *Directory) Lookup(id uuid.UUID) (Identity, bool) {
	ident, ok := d.byID[id]
	return ident, ok
}

// LookupString parses id and looks it up. Malformed ids are not found.
func LookupString(src Source, id string) (Identity, bool) {
	parsed, err := uuid.Parse(id)
	if err != nil {
		return Identity{}, false
	}
	return src.Lookup(parsed)
}

// List implements Source. The returned slice is a copy.
func (d *Directory) List() []Identity {
	return slices.Clone(d.sorted)
}

// Len returns the number of identities
func (d *Directory) Len() int {
	return len(d.byID)
}
