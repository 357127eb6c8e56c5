// Package model defines the core data types used throughout the followscope sync system.
package model

import "sort"

// Relation names a per-user relationship collection in the document store.
type Relation string

const (
	// RelationFollowers holds accounts that follow the user.
	RelationFollowers Relation = "followers"
	// RelationFollowing holds accounts the user follows.
	RelationFollowing Relation = "followings"
	// RelationNonFollowers holds accounts the user follows that do not follow back.
	RelationNonFollowers Relation = "non_followers"
)

// Valid returns true if the Relation is a known collection name.
func (r Relation) Valid() bool {
	return r == RelationFollowers || r == RelationFollowing || r == RelationNonFollowers
}

// IdentifierSet is a set of relationship identifiers (usernames).
type IdentifierSet map[string]struct{}

// NewIdentifierSet builds a set from the given identifiers.
func NewIdentifierSet(identifiers ...string) IdentifierSet {
	s := make(IdentifierSet, len(identifiers))
	for _, id := range identifiers {
		s[id] = struct{}{}
	}
	return s
}

// Contains reports whether the identifier is in the set.
func (s IdentifierSet) Contains(identifier string) bool {
	_, ok := s[identifier]
	return ok
}

// Add inserts an identifier into the set.
func (s IdentifierSet) Add(identifier string) {
	s[identifier] = struct{}{}
}

// Diff returns the identifiers present in s but not in other.
func (s IdentifierSet) Diff(other IdentifierSet) IdentifierSet {
	out := make(IdentifierSet)
	for id := range s {
		if !other.Contains(id) {
			out[id] = struct{}{}
		}
	}
	return out
}

// Intersect returns the identifiers present in both s and other.
func (s IdentifierSet) Intersect(other IdentifierSet) IdentifierSet {
	out := make(IdentifierSet)
	for id := range s {
		if other.Contains(id) {
			out[id] = struct{}{}
		}
	}
	return out
}

// Sorted returns the set's identifiers in lexical order.
func (s IdentifierSet) Sorted() []string {
	out := make([]string, 0, len(s))
	for id := range s {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// RelationshipRecord is one stored relationship edge: the natural key
// (username) plus the opaque document id needed to delete it.
type RelationshipRecord struct {
	Identifier string
	DocID      string
}

// RelationshipSet holds a collection snapshot loaded from the store: the set
// of identifiers plus the identifier-to-document-id mapping.
//
// Identifiers are unique by construction (one record per identifier in a
// collection). If the store ever holds duplicates, the record encountered
// last wins arbitrarily.
type RelationshipSet struct {
	byIdentifier map[string]string
}

// NewRelationshipSet builds a RelationshipSet from loaded records.
func NewRelationshipSet(records ...RelationshipRecord) *RelationshipSet {
	set := &RelationshipSet{byIdentifier: make(map[string]string, len(records))}
	for _, rec := range records {
		set.Put(rec)
	}
	return set
}

// Put adds or replaces a record in the set.
func (r *RelationshipSet) Put(rec RelationshipRecord) {
	r.byIdentifier[rec.Identifier] = rec.DocID
}

// Has reports whether the identifier is present.
func (r *RelationshipSet) Has(identifier string) bool {
	_, ok := r.byIdentifier[identifier]
	return ok
}

// DocID resolves the document id for an identifier. The boolean is false when
// the identifier is unknown, which indicates the in-memory snapshot and the
// store have diverged since load.
func (r *RelationshipSet) DocID(identifier string) (string, bool) {
	id, ok := r.byIdentifier[identifier]
	return id, ok
}

// Identifiers returns the set of identifiers in the snapshot.
func (r *RelationshipSet) Identifiers() IdentifierSet {
	out := make(IdentifierSet, len(r.byIdentifier))
	for id := range r.byIdentifier {
		out[id] = struct{}{}
	}
	return out
}

// Len returns the number of records in the snapshot.
func (r *RelationshipSet) Len() int {
	return len(r.byIdentifier)
}
