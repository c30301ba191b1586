package domain

import (
	"errors"
	"fmt"
)

// Error kinds. Every failure the catalog reports matches exactly one of
// these with errors.Is, so callers can tell them apart.
var (
	// ErrNotFound indicates a lookup or load miss.
	ErrNotFound = errors.New("not found")

	// ErrDuplicateIdentity indicates an insert for an identity that is
	// already catalogued. Callers must delete before re-adding.
	ErrDuplicateIdentity = errors.New("duplicate identity")

	// ErrStorage indicates an I/O failure persisting, loading or removing
	// a collection.
	ErrStorage = errors.New("storage error")

	// ErrCatalogInconsistency indicates the catalog and the on-disk
	// collections disagree.
	ErrCatalogInconsistency = errors.New("catalog inconsistency")

	// ErrBackend indicates the index backend failed to build, search,
	// merge or decode an index.
	ErrBackend = errors.New("index backend error")
)

var kinds = []error{ErrNotFound, ErrDuplicateIdentity, ErrStorage, ErrCatalogInconsistency, ErrBackend}

// CatalogError carries the kind of a failure plus enough context to
// diagnose it without re-deriving identity or collection id.
type CatalogError struct {
	Kind         error
	Op           string
	Identity     Identity
	CollectionID string
	Err          error
}

func (e *CatalogError) Error() string {
	msg := e.Op + ": " + e.Kind.Error()
	if e.Identity != "" {
		msg += fmt.Sprintf(" (identity=%s", e.Identity)
		if e.CollectionID != "" {
			msg += fmt.Sprintf(", collection=%s", e.CollectionID)
		}
		msg += ")"
	} else if e.CollectionID != "" {
		msg += fmt.Sprintf(" (collection=%s)", e.CollectionID)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *CatalogError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// NewError builds a CatalogError. If err already carries a kind and kind
// is nil, that kind is kept.
func NewError(kind error, op string, id Identity, collectionID string, err error) *CatalogError {
	if kind == nil {
		kind = KindOf(err)
		if kind == nil {
			kind = ErrStorage
		}
	}
	return &CatalogError{Kind: kind, Op: op, Identity: id, CollectionID: collectionID, Err: err}
}

// KindOf returns the error kind err matches, or nil if it matches none.
func KindOf(err error) error {
	if err == nil {
		return nil
	}
	var ce *CatalogError
	if errors.As(err, &ce) {
		return ce.Kind
	}
	for _, k := range kinds {
		if errors.Is(err, k) {
			return k
		}
	}
	return nil
}
