package rbac

import (
	"fmt"
	"strconv"
	"strings"
)

// Ref is a tagged reference to a role or permission: either a stable id or a
// slug. String tokens are disambiguated exactly once, at the boundary where
// they enter the engine; nothing deeper branches on "is this numeric".
type Ref struct {
	id   int64
	slug string
	byID bool
}

// RefByID builds a reference by stable identifier.
func RefByID(id int64) Ref { return Ref{id: id, byID: true} }

// RefBySlug builds a reference by slug.
func RefBySlug(slug string) Ref { return Ref{slug: slug} }

// ParseRef resolves an untyped string token into a tagged reference. Purely
// numeric tokens are treated as identifiers, everything else as a slug. Slugs
// are rejected at creation time if purely numeric, so the rule is unambiguous
// for data created through this engine.
func ParseRef(token string) (Ref, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return Ref{}, fmt.Errorf("%w: empty token", ErrInvalidReference)
	}
	if id, err := strconv.ParseInt(token, 10, 64); err == nil {
		return RefByID(id), nil
	}
	return RefBySlug(token), nil
}

// ParseRefs parses a slice of tokens, failing on the first invalid one.
func ParseRefs(tokens []string) ([]Ref, error) {
	refs := make([]Ref, 0, len(tokens))
	for _, t := range tokens {
		ref, err := ParseRef(t)
		if err != nil {
			return nil, err
		}
		refs = append(refs, ref)
	}
	return refs, nil
}

// String renders the reference for logs and error messages.
func (r Ref) String() string {
	if r.byID {
		return strconv.FormatInt(r.id, 10)
	}
	return r.slug
}

// Requirement is a parsed guard expression: one or more references combined
// under ANY or ALL semantics.
type Requirement struct {
	Refs []Ref
	Mode Mode
}

// ParseRequirement parses a guard token as used in route annotations.
// Pipe-delimited alternatives ("edit-posts|delete-posts") combine under ANY.
func ParseRequirement(token string) (Requirement, error) {
	parts := strings.Split(token, "|")
	refs := make([]Ref, 0, len(parts))
	for _, p := range parts {
		ref, err := ParseRef(p)
		if err != nil {
			return Requirement{}, err
		}
		refs = append(refs, ref)
	}
	return Requirement{Refs: refs, Mode: ModeAny}, nil
}
