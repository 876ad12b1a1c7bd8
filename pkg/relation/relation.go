// Package relation normalizes the free-form relationship labels an
// extraction model produces into a closed vocabulary. The model's output is
// unreliable, so nothing here ever fails: unknown labels degrade to the
// generic related_to type and survive for human review instead of being
// dropped.
package relation

import (
	"math"
	"strings"
)

// RelationshipType is a canonical relationship label. Values outside the
// canonical set never leave this package; Normalize maps everything onto it.
type RelationshipType string

const (
	TypeAlliedWith    RelationshipType = "allied_with"
	TypeEnemyOf       RelationshipType = "enemy_of"
	TypeRivalOf       RelationshipType = "rival_of"
	TypeMarriedTo     RelationshipType = "married_to"
	TypeParentOf      RelationshipType = "parent_of"
	TypeChildOf       RelationshipType = "child_of"
	TypeMemberOf      RelationshipType = "member_of"
	TypeLeaderOf      RelationshipType = "leader_of"
	TypeLocatedIn     RelationshipType = "located_in"
	TypeAdjacentTo    RelationshipType = "adjacent_to"
	TypeOwns          RelationshipType = "owns"
	TypeOwnedBy       RelationshipType = "owned_by"
	TypeCreatedBy     RelationshipType = "created_by"
	TypeParticipatedIn RelationshipType = "participated_in"
	TypeConnectedTo   RelationshipType = "connected_to"
	TypeRelatedTo     RelationshipType = "related_to"
)

// canonical is the closed vocabulary. Membership is what Normalize checks
// first, which also makes it idempotent.
var canonical = map[RelationshipType]struct{}{
	TypeAlliedWith:     {},
	TypeEnemyOf:        {},
	TypeRivalOf:        {},
	TypeMarriedTo:      {},
	TypeParentOf:       {},
	TypeChildOf:        {},
	TypeMemberOf:       {},
	TypeLeaderOf:       {},
	TypeLocatedIn:      {},
	TypeAdjacentTo:     {},
	TypeOwns:           {},
	TypeOwnedBy:        {},
	TypeCreatedBy:      {},
	TypeParticipatedIn: {},
	TypeConnectedTo:    {},
	TypeRelatedTo:      {},
}

// synonyms maps cleaned-up raw labels onto canonical types. Keys are in the
// same normalized form Normalize produces (lower case, underscores).
var synonyms = map[string]RelationshipType{
	"ally":          TypeAlliedWith,
	"allies":        TypeAlliedWith,
	"alliance":      TypeAlliedWith,
	"allied":        TypeAlliedWith,
	"friend_of":     TypeAlliedWith,
	"friends_with":  TypeAlliedWith,
	"enemy":         TypeEnemyOf,
	"enemies":       TypeEnemyOf,
	"enmity":        TypeEnemyOf,
	"hostile_to":    TypeEnemyOf,
	"at_war_with":   TypeEnemyOf,
	"rival":         TypeRivalOf,
	"rivals":        TypeRivalOf,
	"rivalry":       TypeRivalOf,
	"married":       TypeMarriedTo,
	"marriage":      TypeMarriedTo,
	"spouse_of":     TypeMarriedTo,
	"wife_of":       TypeMarriedTo,
	"husband_of":    TypeMarriedTo,
	"parent":        TypeParentOf,
	"father_of":     TypeParentOf,
	"mother_of":     TypeParentOf,
	"child":         TypeChildOf,
	"son_of":        TypeChildOf,
	"daughter_of":   TypeChildOf,
	"member":        TypeMemberOf,
	"belongs_to":    TypeMemberOf,
	"part_of":       TypeMemberOf,
	"leader":        TypeLeaderOf,
	"leads":         TypeLeaderOf,
	"rules":         TypeLeaderOf,
	"ruler_of":      TypeLeaderOf,
	"commands":      TypeLeaderOf,
	"located":       TypeLocatedIn,
	"location":      TypeLocatedIn,
	"lives_in":      TypeLocatedIn,
	"resides_in":    TypeLocatedIn,
	"found_in":      TypeLocatedIn,
	"adjacent":      TypeAdjacentTo,
	"adjacency":     TypeAdjacentTo,
	"borders":       TypeAdjacentTo,
	"neighbor_of":   TypeAdjacentTo,
	"next_to":       TypeAdjacentTo,
	"owner_of":      TypeOwns,
	"possesses":     TypeOwns,
	"holds":         TypeOwns,
	"owned":         TypeOwnedBy,
	"property_of":   TypeOwnedBy,
	"created":       TypeCreatedBy,
	"made_by":       TypeCreatedBy,
	"forged_by":     TypeCreatedBy,
	"author_of":     TypeCreatedBy,
	"participated":  TypeParticipatedIn,
	"participates":  TypeParticipatedIn,
	"took_part_in":  TypeParticipatedIn,
	"fought_in":     TypeParticipatedIn,
	"connected":     TypeConnectedTo,
	"connection":    TypeConnectedTo,
	"linked_to":     TypeConnectedTo,
	"related":       TypeRelatedTo,
	"relation":      TypeRelatedTo,
	"relationship":  TypeRelatedTo,
	"associated_with": TypeRelatedTo,
	"knows":         TypeRelatedTo,
}

// bidirectional is the subset of canonical types whose edges are symmetric.
// The store synthesizes the reverse edge for these.
var bidirectional = map[RelationshipType]struct{}{
	TypeAlliedWith:  {},
	TypeEnemyOf:     {},
	TypeRivalOf:     {},
	TypeMarriedTo:   {},
	TypeAdjacentTo:  {},
	TypeConnectedTo: {},
	TypeRelatedTo:   {},
}

// Normalize maps a raw relationship label onto the canonical vocabulary.
// The label is trimmed, lower-cased and whitespace runs become underscores.
// Canonical values pass through unchanged; otherwise the synonym table is
// consulted, then consulted again with non-alphabetic characters stripped.
// Anything still unknown, including the empty string, becomes TypeRelatedTo.
func Normalize(raw string) RelationshipType {
	cleaned := strings.ToLower(strings.TrimSpace(raw))
	cleaned = strings.Join(strings.Fields(cleaned), "_")
	if cleaned == "" {
		return TypeRelatedTo
	}

	if _, ok := canonical[RelationshipType(cleaned)]; ok {
		return RelationshipType(cleaned)
	}
	if t, ok := synonyms[cleaned]; ok {
		return t
	}

	stripped := stripNonAlpha(cleaned)
	if _, ok := canonical[RelationshipType(stripped)]; ok {
		return RelationshipType(stripped)
	}
	if t, ok := synonyms[stripped]; ok {
		return t
	}

	return TypeRelatedTo
}

// IsBidirectional reports whether edges of the given type are symmetric.
func IsBidirectional(t RelationshipType) bool {
	_, ok := bidirectional[t]
	return ok
}

// Reciprocal returns the type of the reverse edge the store should create
// for t, and whether one should exist at all. Bidirectional types mirror
// with the same type; directed types have no synthesized reverse.
func Reciprocal(t RelationshipType) (RelationshipType, bool) {
	if IsBidirectional(t) {
		return t, true
	}
	return "", false
}

// NormalizeStrength validates a confidence value. Finite values in [0,1]
// pass through; values above 1 are read as a percentage, divided by 100 and
// clamped to [0,1]. Negative, NaN and infinite values mean "no strength
// provided" and return nil rather than an error.
func NormalizeStrength(value float64) *float64 {
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return nil
	}
	switch {
	case value >= 0 && value <= 1:
		return &value
	case value > 1:
		v := min(value/100, 1)
		return &v
	default:
		return nil
	}
}

func stripNonAlpha(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if (r >= 'a' && r <= 'z') || r == '_' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
