package game

// World is the static geometry the simulation collides with.
type World interface {
	HeightAt(x, z float64) float64
	// IntersectsAny reports whether box overlaps a tree, building wall or border.
	IntersectsAny(box AABB) bool
	// Solids are the boxes a player is pushed out of: platforms, building
	// walls and borders.
	Solids() []AABB
	// Platforms are the solids that count as ground for jumping.
	Platforms() []AABB
	Roofs() []AABB
}
