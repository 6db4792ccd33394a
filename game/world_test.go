package game

// testWorld is flat terrain at height zero with explicit boxes.
type testWorld struct {
	obstacles []AABB
	solids    []AABB
	platforms []AABB
	roofs     []AABB
}

func (w *testWorld) HeightAt(float64, float64) float64 { return 0 }

func (w *testWorld) IntersectsAny(box AABB) bool {
	for _, o := range w.obstacles {
		if box.Intersects(o) {
			return true
		}
	}
	return false
}

func (w *testWorld) Solids() []AABB    { return w.solids }
func (w *testWorld) Platforms() []AABB { return w.platforms }
func (w *testWorld) Roofs() []AABB     { return w.roofs }

// blockedWorld rejects every spawn candidate.
type blockedWorld struct{ testWorld }

func (w *blockedWorld) IntersectsAny(AABB) bool { return true }
