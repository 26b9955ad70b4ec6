// Package model defines the data structures shared across the quickreply engine.
package model

import "time"

// Group represents one node of the per-account reply-group hierarchy.
// ParentID is nil for root groups. Order is scoped to the sibling list and
// kept as a dense 1..N range by the group manager.
type Group struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	ParentID  *string   `json:"parentId"`
	Order     int       `json:"order"`
	Expanded  bool      `json:"expanded"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// GroupPatch describes a partial update to a group. Nil fields are left
// untouched. Setting ParentID to the empty string moves the group to the root.
type GroupPatch struct {
	Name     *string
	ParentID *string
	Expanded *bool
}

// IsRoot reports whether the group sits at the top level of the hierarchy.
func (g *Group) IsRoot() bool {
	return g.ParentID == nil
}
