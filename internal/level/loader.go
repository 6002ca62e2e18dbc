// Package level is the Level Loader (§4.1.1/§3.1): it reads a JSON level
// document and registers the static geometry with the physics world, the
// same JSON-file-under-a-data-directory discipline the teacher's MapLoader
// used for Tiled maps, generalised from a 2D tile/object grid to a flat 3D
// object list.
package level

import (
	"encoding/json"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"

	"github.com/heroiclabs/nakama-common/runtime"

	"github.com/the-coop/coop-api/internal/physics"
	"github.com/the-coop/coop-api/internal/world"
)

// Document is the on-disk JSON shape described in SPEC_FULL.md §3.1.
type Document struct {
	Ground struct {
		HalfExtents [3]float64 `json:"halfExtents"`
		Position    [3]float64 `json:"position"`
	} `json:"ground"`
	Obstacles []struct {
		HalfExtents [3]float64 `json:"halfExtents"`
		Position    [3]float64 `json:"position"`
	} `json:"obstacles"`
	Vehicles []struct {
		Type     string     `json:"type"`
		Position [3]float64 `json:"position"`
	} `json:"vehicles"`
	Ghosts []struct {
		Shape    string     `json:"shape"`
		Dims     [3]float64 `json:"dims"`
		Mass     float64    `json:"mass"`
		Position [3]float64 `json:"position"`
		Colour   string     `json:"colour"`
	} `json:"ghosts"`
	SpawnPoints [][3]float64      `json:"spawnPoints"`
	Scripts     map[string]string `json:"scripts"`
}

type VehiclePlacement struct {
	Type     world.VehicleType
	Position world.Position
}

type GhostPlacement struct {
	Shape    world.GhostShape
	Dims     world.Position
	Mass     float64
	Position world.Position
	Colour   string
}

// Loaded is everything MatchInit needs to populate the Entity Registry.
type Loaded struct {
	StaticObjects []world.StaticObject
	Vehicles      []VehiclePlacement
	Ghosts        []GhostPlacement
	SpawnPoints   []world.Position
}

type Loader struct {
	logger  runtime.Logger
	baseDir string
}

func NewLoader(logger runtime.Logger, baseDir string) *Loader {
	return &Loader{logger: logger, baseDir: baseDir}
}

// Load reads filename from the loader's base directory, falling back to a
// procedural default level (ground + ten random obstacles, one spawn point,
// no vehicles/ghosts) if the file is absent — so a fresh deployment without
// authored level content still produces a playable world.
func (l *Loader) Load(filename string, seed int64) (Document, error) {
	path := filepath.Join(l.baseDir, filename)
	data, err := os.ReadFile(path)
	if err != nil {
		l.logger.Warn("level file %s not found, using procedural default: %v", path, err)
		return proceduralDefault(seed), nil
	}

	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return Document{}, fmt.Errorf("parse level JSON %s: %w", path, err)
	}
	if len(doc.Obstacles) == 0 {
		doc.Obstacles = proceduralDefault(seed).Obstacles
	}
	return doc, nil
}

// proceduralDefault builds the ground slab + ten random obstacles described
// in §4.1, seeded so the same seed (MatchInit passes its `matchSeed` param,
// 0 when absent) reproduces the same layout.
func proceduralDefault(seed int64) Document {
	rng := rand.New(rand.NewSource(seed))
	var doc Document
	doc.Ground.HalfExtents = [3]float64{50, 0.5, 50}
	doc.Ground.Position = [3]float64{0, -0.5, 0}
	doc.SpawnPoints = [][3]float64{{0, 5, 0}}

	for i := 0; i < 10; i++ {
		x := rng.Float64()*90 - 45
		z := rng.Float64()*90 - 45
		doc.Obstacles = append(doc.Obstacles, struct {
			HalfExtents [3]float64 `json:"halfExtents"`
			Position    [3]float64 `json:"position"`
		}{
			HalfExtents: [3]float64{1, 1, 1},
			Position:    [3]float64{x, 1, z},
		})
	}
	return doc
}

// Apply registers the document's static geometry as fixed colliders in w
// and returns the placements MatchInit instantiates into the registry.
func Apply(w *physics.World, doc Document) Loaded {
	var out Loaded

	groundHalf := vecOf(doc.Ground.HalfExtents)
	groundPos := vecOf(doc.Ground.Position)
	w.CreateCuboid(groundHalf, groundPos, physics.Identity(), physics.MotionFixed, physics.ColliderParams{
		Friction: 0.8, Restitution: 0,
	})
	out.StaticObjects = append(out.StaticObjects, world.StaticObject{
		Position: world.FromVec3(groundPos), HalfExtent: world.FromVec3(groundHalf),
		Script: doc.Scripts["0"],
	})

	for i, o := range doc.Obstacles {
		half := vecOf(o.HalfExtents)
		pos := vecOf(o.Position)
		w.CreateCuboid(half, pos, physics.Identity(), physics.MotionFixed, physics.ColliderParams{
			Friction: 0.8, Restitution: 0,
		})
		out.StaticObjects = append(out.StaticObjects, world.StaticObject{
			Position: world.FromVec3(pos), HalfExtent: world.FromVec3(half),
			// index i+1: slot 0 is reserved for the ground slab above, the
			// same "object id" addressing scheme the teacher's map objects
			// used (a flat integer id space scripts are keyed by).
			Script: doc.Scripts[fmt.Sprintf("%d", i+1)],
		})
	}

	for _, v := range doc.Vehicles {
		out.Vehicles = append(out.Vehicles, VehiclePlacement{
			Type:     vehicleTypeOf(v.Type),
			Position: world.FromVec3(vecOf(v.Position)),
		})
	}

	for _, g := range doc.Ghosts {
		out.Ghosts = append(out.Ghosts, GhostPlacement{
			Shape:    ghostShapeOf(g.Shape),
			Dims:     world.FromVec3(vecOf(g.Dims)),
			Mass:     g.Mass,
			Position: world.FromVec3(vecOf(g.Position)),
			Colour:   g.Colour,
		})
	}

	for _, sp := range doc.SpawnPoints {
		out.SpawnPoints = append(out.SpawnPoints, world.FromVec3(vecOf(sp)))
	}
	if len(out.SpawnPoints) == 0 {
		out.SpawnPoints = []world.Position{{X: 0, Y: 5, Z: 0}}
	}

	return out
}

func vecOf(a [3]float64) physics.Vec3 { return physics.Vec3{X: a[0], Y: a[1], Z: a[2]} }

func vehicleTypeOf(s string) world.VehicleType {
	switch s {
	case "HELICOPTER":
		return world.Helicopter
	case "PLANE":
		return world.Plane
	default:
		return world.Car
	}
}

func ghostShapeOf(s string) world.GhostShape {
	switch s {
	case "SPHERE":
		return world.GhostSphere
	case "CYLINDER":
		return world.GhostCylinder
	default:
		return world.GhostBox
	}
}
