// Package world is the Entity Registry (§4.2): four keyed maps from id to
// entity record. Each record holds its own physics body handle, so there
// are no separate id-to-body maps; RemovePlayer and RemoveProjectile
// destroy the body in the same call that deletes the record, the way the
// teacher's GameMatchState kept gameObjects, playerObjects,
// gameObjectsByOwner and rbOwner in lockstep under a mutex.
package world

import (
	"fmt"
	"math/rand"
	"sync/atomic"

	"github.com/the-coop/coop-api/internal/physics"
)

// ControlContext tags how a player's input intent should be interpreted
// (§4.3, §9 "dynamic control flow by context").
type ControlContext int

const (
	OnFoot ControlContext = iota
	DrivingCar
	DrivingHelicopter
	DrivingPlane
)

type Player struct {
	ID   string
	Body physics.BodyHandle

	Position Position
	Rotation physics.Quat
	Velocity Position

	Health       int
	LastFireTime float64 // wall-clock seconds
	LookDir      Position

	Context   ControlContext
	VehicleID string // non-empty iff Context is one of the Driving* values
	GhostID   string // non-empty iff CARRYING

	Grounded     bool
	GroundNormal Position
	GroundDist   float64

	SpawnPoint Position
}

// Position is the plain (x,y,z) triple used on wire snapshots; keeping it
// distinct from physics.Vec3 means internal/world has no dependency beyond
// what it registers bodies with.
type Position struct {
	X, Y, Z float64
}

func FromVec3(v physics.Vec3) Position { return Position{v.X, v.Y, v.Z} }
func (p Position) ToVec3() physics.Vec3 { return physics.Vec3{X: p.X, Y: p.Y, Z: p.Z} }

type VehicleType int

const (
	Car VehicleType = iota
	Helicopter
	Plane
)

type Vehicle struct {
	ID       string
	Type     VehicleType
	Body     physics.BodyHandle
	Position Position
	Rotation physics.Quat
	Velocity Position

	DriverID string // player id, or "" if unoccupied

	EngineOn bool    // helicopter
	Throttle float64 // plane, in [0,1]
}

type GhostShape int

const (
	GhostBox GhostShape = iota
	GhostSphere
	GhostCylinder
)

type Ghost struct {
	ID       string
	Shape    GhostShape
	Dims     Position // box: w,h,d; sphere: r,_,_; cylinder: r,h,_
	Mass     float64
	Body     physics.BodyHandle
	Position Position
	Rotation physics.Quat
	Velocity Position
	Colour   string

	CarrierID string // player id, or "" if not carried
}

type Projectile struct {
	ID        string
	OwnerID   string
	Body      physics.BodyHandle
	CreatedAt float64 // wall-clock seconds
}

type StaticObject struct {
	Position   Position
	HalfExtent Position
	Colour     string
	Script     string // optional Lua hook path (§4.4.4)
}

// Registry owns the entity maps and a reference to the physics world so
// destruction can remove the matching body in the same call (resource
// ownership rule, §5).
type Registry struct {
	World *physics.World

	Players      map[string]*Player
	Vehicles     map[string]*Vehicle
	Ghosts       map[string]*Ghost
	Projectiles  map[string]*Projectile
	StaticObjects []StaticObject

	vehicleSeq atomic.Int64
	ghostSeq   atomic.Int64
	projSeq    atomic.Int64

	rng *rand.Rand
}

func NewRegistry(w *physics.World, seed int64) *Registry {
	return &Registry{
		World:       w,
		Players:     make(map[string]*Player),
		Vehicles:    make(map[string]*Vehicle),
		Ghosts:      make(map[string]*Ghost),
		Projectiles: make(map[string]*Projectile),
		rng:         rand.New(rand.NewSource(seed)),
	}
}

const base36 = "0123456789abcdefghijklmnopqrstuvwxyz"

// NewPlayerID returns a short random base-36 id (§4.2).
func (r *Registry) NewPlayerID() string {
	for {
		buf := make([]byte, 8)
		for i := range buf {
			buf[i] = base36[r.rng.Intn(len(base36))]
		}
		id := string(buf)
		if _, exists := r.Players[id]; !exists {
			return id
		}
	}
}

func (r *Registry) NewVehicleID() string {
	return fmt.Sprintf("vehicle_%d", r.vehicleSeq.Add(1))
}

func (r *Registry) NewGhostID() string {
	return fmt.Sprintf("ghost_%d", r.ghostSeq.Add(1))
}

func (r *Registry) NewProjectileID() string {
	return fmt.Sprintf("proj_%d", r.projSeq.Add(1))
}

// AddPlayer registers a player record; Body must already be created.
func (r *Registry) AddPlayer(p *Player) { r.Players[p.ID] = p }

// RemovePlayer destroys the player's body and deletes the record. Callers
// are responsible for having already released any vehicle/ghost link.
func (r *Registry) RemovePlayer(id string) {
	p, ok := r.Players[id]
	if !ok {
		return
	}
	r.World.RemoveBody(p.Body)
	delete(r.Players, id)
}

func (r *Registry) AddVehicle(v *Vehicle)   { r.Vehicles[v.ID] = v }
func (r *Registry) AddGhost(g *Ghost)       { r.Ghosts[g.ID] = g }

func (r *Registry) AddProjectile(p *Projectile) { r.Projectiles[p.ID] = p }

// RemoveProjectile destroys the projectile's body and deletes the record.
func (r *Registry) RemoveProjectile(id string) {
	p, ok := r.Projectiles[id]
	if !ok {
		return
	}
	r.World.RemoveBody(p.Body)
	delete(r.Projectiles, id)
}
