package world

import (
	"math"
	"math/rand/v2"
	"peertag/game"
)

// DefaultSeed is used when peers do not agree on another layout. Both peers
// must build the arena from the same seed or their collisions diverge.
const DefaultSeed int64 = 20240601

const (
	terrainFrequency = 0.1
	terrainAmplitude = 3.0

	borderThickness = 1.0
	borderHeight    = 50.0

	treeCount        = 50
	treeScatter      = 90.0
	treeClearing     = 20.0
	treeCanopyRadius = 1.5
	treeHeight       = 6.5

	spiralPlatforms       = 30
	spiralBaseX           = 20.0
	spiralBaseZ           = 0.0
	spiralRadius          = 10.0
	spiralAngleIncrement  = math.Pi / 6
	spiralHeightIncrement = 2.0

	houseCount        = 15
	houseScatter      = 75.0
	houseMinSpacing   = 15.0
	housePlaceRetries = 100
	houseSize         = 10.0
	houseWallWidth    = 0.5
	houseMinHeight    = 8.0
	houseHeightRange  = 12.0
	cityHeight        = 0.1
	roofOffset        = 0.05
	roofFootprint     = houseSize * 0.8
	roofThickness     = 0.2
)

// Terrain is the rolling ground height shared by every arena.
func Terrain(x, z float64) float64 {
	return math.Sin(x*terrainFrequency) * math.Cos(z*terrainFrequency) * terrainAmplitude
}

// Arena is the static collision geometry of the play field.
type Arena struct {
	flat bool

	trees     []game.AABB
	walls     []game.AABB
	borders   []game.AABB
	platforms []game.AABB
	roofs     []game.AABB

	solids    []game.AABB
	obstacles []game.AABB
}

// NewArena builds the default field: rolling terrain, a spiral parkour
// course, a block of hollow houses and scattered trees, fenced by invisible
// borders.
func NewArena(seed int64) *Arena {
	rng := rand.New(rand.NewPCG(uint64(seed), uint64(seed)>>1|1))
	a := &Arena{}

	a.addBorders()
	a.addPlatform(spiralBaseX, Terrain(spiralBaseX, spiralBaseZ)+2, spiralBaseZ, 4, 1, 4)
	a.addSpiral()
	a.addHouses(rng)
	a.addTrees(rng)
	a.index()
	return a
}

// NewFlatArena is an empty field at height zero with only the borders.
func NewFlatArena() *Arena {
	a := &Arena{flat: true}
	a.addBorders()
	a.index()
	return a
}

func (a *Arena) HeightAt(x, z float64) float64 {
	if a.flat {
		return 0
	}
	return Terrain(x, z)
}

func (a *Arena) IntersectsAny(box game.AABB) bool {
	for _, o := range a.obstacles {
		if box.Intersects(o) {
			return true
		}
	}
	return false
}

func (a *Arena) Solids() []game.AABB    { return a.solids }
func (a *Arena) Platforms() []game.AABB { return a.platforms }
func (a *Arena) Roofs() []game.AABB     { return a.roofs }
func (a *Arena) Trees() []game.AABB     { return a.trees }
func (a *Arena) Walls() []game.AABB     { return a.walls }
func (a *Arena) Borders() []game.AABB   { return a.borders }

func (a *Arena) index() {
	a.solids = concat(a.platforms, a.walls, a.borders)
	a.obstacles = concat(a.trees, a.walls, a.borders)
}

func concat(groups ...[]game.AABB) []game.AABB {
	var out []game.AABB
	for _, g := range groups {
		out = append(out, g...)
	}
	return out
}

func (a *Arena) addBorders() {
	const half = game.ArenaHalfExtent
	a.borders = append(a.borders,
		game.AABB{Min: game.Vec3{X: -half - borderThickness, Z: -half}, Max: game.Vec3{X: -half, Y: borderHeight, Z: half}},
		game.AABB{Min: game.Vec3{X: half, Z: -half}, Max: game.Vec3{X: half + borderThickness, Y: borderHeight, Z: half}},
		game.AABB{Min: game.Vec3{X: -half - borderThickness, Z: -half - borderThickness}, Max: game.Vec3{X: half + borderThickness, Y: borderHeight, Z: -half}},
		game.AABB{Min: game.Vec3{X: -half - borderThickness, Z: half}, Max: game.Vec3{X: half + borderThickness, Y: borderHeight, Z: half + borderThickness}},
	)
}

// addPlatform adds a box whose top face sits at y.
func (a *Arena) addPlatform(x, y, z, width, height, depth float64) {
	a.platforms = append(a.platforms, game.AABB{
		Min: game.Vec3{X: x - width/2, Y: y - height, Z: z - depth/2},
		Max: game.Vec3{X: x + width/2, Y: y, Z: z + depth/2},
	})
}

func (a *Arena) addSpiral() {
	baseY := Terrain(spiralBaseX, spiralBaseZ) + 3
	for i := 0; i <= spiralPlatforms; i++ {
		angle := float64(i) * spiralAngleIncrement
		x := spiralBaseX + spiralRadius*math.Cos(angle)
		z := spiralBaseZ + spiralRadius*math.Sin(angle)
		y := baseY + float64(i)*spiralHeightIncrement

		if i == spiralPlatforms {
			// Summit.
			a.addPlatform(x, y, z, 4, 1, 4)
			continue
		}
		a.addPlatform(x, y, z, 2.5, 0.8, 2.5)
	}
}

func (a *Arena) addHouses(rng *rand.Rand) {
	var placed [][2]float64
	for i := 0; i < houseCount; i++ {
		for attempt := 0; attempt < housePlaceRetries; attempt++ {
			x := rng.Float64()*2*houseScatter - houseScatter
			z := rng.Float64()*2*houseScatter - houseScatter
			if tooClose(placed, x, z) {
				continue
			}
			placed = append(placed, [2]float64{x, z})
			a.addHouse(x, z, houseMinHeight+rng.Float64()*houseHeightRange)
			break
		}
	}
}

func tooClose(placed [][2]float64, x, z float64) bool {
	for _, p := range placed {
		if math.Hypot(p[0]-x, p[1]-z) < houseMinSpacing {
			return true
		}
	}
	return false
}

func (a *Arena) addHouse(x, z, height float64) {
	const half = houseSize / 2
	top := cityHeight + height

	a.walls = append(a.walls,
		game.AABB{Min: game.Vec3{X: x - half, Y: cityHeight, Z: z - half}, Max: game.Vec3{X: x - half + houseWallWidth, Y: top, Z: z + half}},
		game.AABB{Min: game.Vec3{X: x + half - houseWallWidth, Y: cityHeight, Z: z - half}, Max: game.Vec3{X: x + half, Y: top, Z: z + half}},
		game.AABB{Min: game.Vec3{X: x - half, Y: cityHeight, Z: z + half - houseWallWidth}, Max: game.Vec3{X: x + half, Y: top, Z: z + half}},
		game.AABB{Min: game.Vec3{X: x - half, Y: cityHeight, Z: z - half}, Max: game.Vec3{X: x + half, Y: top, Z: z - half + houseWallWidth}},
	)

	roofBottom := top + roofOffset
	a.roofs = append(a.roofs, game.AABB{
		Min: game.Vec3{X: x - roofFootprint/2, Y: roofBottom, Z: z - roofFootprint/2},
		Max: game.Vec3{X: x + roofFootprint/2, Y: roofBottom + roofThickness, Z: z + roofFootprint/2},
	})
}

func (a *Arena) addTrees(rng *rand.Rand) {
	for len(a.trees) < treeCount {
		x := rng.Float64()*2*treeScatter - treeScatter
		z := rng.Float64()*2*treeScatter - treeScatter
		if math.Abs(x) < treeClearing && math.Abs(z) < treeClearing {
			continue
		}
		base := Terrain(x, z)
		a.trees = append(a.trees, game.AABB{
			Min: game.Vec3{X: x - treeCanopyRadius, Y: base, Z: z - treeCanopyRadius},
			Max: game.Vec3{X: x + treeCanopyRadius, Y: base + treeHeight, Z: z + treeCanopyRadius},
		})
	}
}
