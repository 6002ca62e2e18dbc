// Package physics wraps a native 3D rigid-body engine (Jolt, via CGO
// bindings) the way the teacher's PhysicsEngine wrapped Physix-go: a single
// domain type owns the engine lifecycle and exposes only the vocabulary the
// simulation needs (bodies, colliders, damping, impulses, kinematic
// switching, raycasts), so no other package imports the engine directly.
package physics

import (
	"math"
	"sync"

	jolt "github.com/bbitechnologies/jolt-go"
)

// Vec3 is this package's vector type; every other package works in terms of
// it rather than the engine's native float32 vector.
type Vec3 struct {
	X, Y, Z float64
}

func (v Vec3) Add(o Vec3) Vec3    { return Vec3{v.X + o.X, v.Y + o.Y, v.Z + o.Z} }
func (v Vec3) Sub(o Vec3) Vec3    { return Vec3{v.X - o.X, v.Y - o.Y, v.Z - o.Z} }
func (v Vec3) Scale(s float64) Vec3 { return Vec3{v.X * s, v.Y * s, v.Z * s} }
func (v Vec3) Dot(o Vec3) float64 { return v.X*o.X + v.Y*o.Y + v.Z*o.Z }
func (v Vec3) Length() float64    { return math.Sqrt(v.Dot(v)) }

func (v Vec3) Normalize() Vec3 {
	l := v.Length()
	if l < 1e-9 {
		return Vec3{}
	}
	return v.Scale(1 / l)
}

func (v Vec3) jolt() jolt.Vec3 {
	return jolt.Vec3{X: float32(v.X), Y: float32(v.Y), Z: float32(v.Z)}
}

func fromJolt(v jolt.Vec3) Vec3 {
	return Vec3{X: float64(v.X), Y: float64(v.Y), Z: float64(v.Z)}
}

// Quat is a unit quaternion orientation, Y-up, right-handed.
type Quat struct {
	X, Y, Z, W float64
}

// Identity returns the identity rotation.
func Identity() Quat { return Quat{0, 0, 0, 1} }

// Forward returns the unit forward vector (+Z rotated by q) this package's
// bodies use as their "facing" direction; see Input Resolver's
// quaternion-to-forward derivation (§4.3).
func (q Quat) Forward() Vec3 {
	x, y, z, w := q.X, q.Y, q.Z, q.W
	return Vec3{
		X: 2 * (x*z + w*y),
		Y: 2 * (y*z - w*x),
		Z: 1 - 2*(x*x+y*y),
	}
}

// FromAxisAngle builds a quaternion rotating by angle radians around axis.
func FromAxisAngle(axis Vec3, angle float64) Quat {
	axis = axis.Normalize()
	s := math.Sin(angle / 2)
	return Quat{X: axis.X * s, Y: axis.Y * s, Z: axis.Z * s, W: math.Cos(angle / 2)}
}

// Shape enumerates the collider primitives the simulation creates.
type Shape int

const (
	ShapeCuboid Shape = iota
	ShapeBall
	ShapeCapsule
	ShapeCylinder
)

// MotionType mirrors the engine's dynamic/fixed/kinematic distinction.
type MotionType int

const (
	MotionDynamic MotionType = iota
	MotionFixed
	MotionKinematic
)

// BodyHandle is an opaque reference to a body owned by exactly one entity
// record (Entity Registry invariant 1, §3).
type BodyHandle struct {
	id *jolt.BodyID
}

// RayHit describes the closest contact of a raycast.
type RayHit struct {
	Body     BodyHandle
	Point    Vec3
	Normal   Vec3
	Fraction float64
}

// ColliderParams configures friction/restitution/damping/rotation lock/sensor
// at creation time (§4.1). Density is accepted but applyCreationParams does
// not pass it to the engine.
type ColliderParams struct {
	Density     float64
	Friction    float64
	Restitution float64
	LinearDamp  float64
	AngularDamp float64
	LockRotation bool
	IsSensor    bool
}

// World owns the single shared physics simulation; all mutation happens on
// the tick goroutine (§5 concurrency model).
type World struct {
	mu     sync.Mutex // guards Close only; stepping is single-threaded
	system *jolt.PhysicsSystem
	bi     *jolt.BodyInterface
	// sensor/meta side-table, keyed by body id pointer identity, since the
	// CGO handle itself carries no Go-side metadata.
	meta map[*jolt.BodyID]*bodyMeta
}

type bodyMeta struct {
	isSensor bool
}

var engineInitOnce sync.Once
var engineInitErr error

// NewWorld creates a physics world with the given gravity vector.
func NewWorld(gravity Vec3) (*World, error) {
	engineInitOnce.Do(func() {
		engineInitErr = jolt.Init()
	})
	if engineInitErr != nil {
		return nil, engineInitErr
	}
	system := jolt.NewPhysicsSystem()
	system.SetGravity(gravity.jolt())
	return &World{
		system: system,
		bi:     system.GetBodyInterface(),
		meta:   make(map[*jolt.BodyID]*bodyMeta),
	}, nil
}

// Close releases the world's native resources. It does not call
// jolt.Shutdown: that call is process-global, so a single match's world
// does not make it, and nothing else in this module calls it either (see
// SPEC_FULL.md §4.6).
func (w *World) Close() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.system != nil {
		w.system.Destroy()
		w.system = nil
	}
}

// Step advances the simulation by dt seconds, exactly once per tick (§4.5).
func (w *World) Step(dt float64) {
	w.system.Update(float32(dt))
}

func (w *World) registerMeta(id *jolt.BodyID, p ColliderParams) BodyHandle {
	w.meta[id] = &bodyMeta{isSensor: p.IsSensor}
	return BodyHandle{id: id}
}

// CreateCuboid creates a body with a box collider. Used for the ground
// slab, the ten static obstacles, and vehicle hulls.
func (w *World) CreateCuboid(halfExtents Vec3, position Vec3, rotation Quat, motion MotionType, p ColliderParams) BodyHandle {
	id := w.bi.CreateBox(jolt.Vec3{X: float32(halfExtents.X), Y: float32(halfExtents.Y), Z: float32(halfExtents.Z)}, position.jolt(), motion == MotionDynamic)
	w.applyCreationParams(id, rotation, motion, p)
	return w.registerMeta(id, p)
}

// CreateBall creates a body with a sphere collider. Used for projectiles.
func (w *World) CreateBall(radius float64, position Vec3, motion MotionType, p ColliderParams) BodyHandle {
	id := w.bi.CreateSphere(float32(radius), position.jolt(), motion == MotionDynamic)
	w.applyCreationParams(id, Identity(), motion, p)
	return w.registerMeta(id, p)
}

// CreateCapsule creates a body with a capsule collider. Used for the player
// controller body.
func (w *World) CreateCapsule(halfHeight, radius float64, position Vec3, rotation Quat, motion MotionType, p ColliderParams) BodyHandle {
	id := w.bi.CreateCapsule(float32(halfHeight), float32(radius), position.jolt(), motion == MotionDynamic)
	w.applyCreationParams(id, rotation, motion, p)
	return w.registerMeta(id, p)
}

// CreateCylinder creates a body with a cylinder collider. Used for
// carriable "ghosts" whose shape is CYLINDER.
func (w *World) CreateCylinder(halfHeight, radius float64, position Vec3, rotation Quat, motion MotionType, p ColliderParams) BodyHandle {
	id := w.bi.CreateCylinder(float32(halfHeight), float32(radius), position.jolt(), motion == MotionDynamic)
	w.applyCreationParams(id, rotation, motion, p)
	return w.registerMeta(id, p)
}

func (w *World) applyCreationParams(id *jolt.BodyID, rotation Quat, motion MotionType, p ColliderParams) {
	w.bi.SetRotation(id, quatJolt(rotation))
	w.bi.SetDamping(id, float32(p.LinearDamp), float32(p.AngularDamp))
	w.bi.SetFriction(id, float32(p.Friction))
	w.bi.SetRestitution(id, float32(p.Restitution))
	if p.LockRotation {
		w.bi.SetRotationLocked(id, true)
	}
	if p.IsSensor {
		w.bi.SetIsSensor(id, true)
	}
	switch motion {
	case MotionFixed:
		w.bi.SetMotionType(id, jolt.MotionTypeStatic)
	case MotionKinematic:
		w.bi.SetMotionType(id, jolt.MotionTypeKinematic)
	default:
		w.bi.SetMotionType(id, jolt.MotionTypeDynamic)
	}
}

func quatJolt(q Quat) jolt.Quat {
	return jolt.Quat{X: float32(q.X), Y: float32(q.Y), Z: float32(q.Z), W: float32(q.W)}
}

func quatFromJolt(q jolt.Quat) Quat {
	return Quat{X: float64(q.X), Y: float64(q.Y), Z: float64(q.Z), W: float64(q.W)}
}

// RemoveBody destroys the engine-side body. Callers must also drop the
// BodyHandle from their own registry in the same call (Entity Registry
// invariant: registration/deregistration stay in lockstep).
func (w *World) RemoveBody(h BodyHandle) {
	if h.id == nil {
		return
	}
	delete(w.meta, h.id)
	w.bi.RemoveBody(h.id)
	w.bi.DestroyBody(h.id)
}

// SetMotionType switches a body between dynamic and kinematic-position-based
// (spec §4.1, §4.4 ENTER_VEHICLE/EXIT_VEHICLE and GRAB_GHOST/DROP_GHOST).
func (w *World) SetMotionType(h BodyHandle, motion MotionType) {
	switch motion {
	case MotionFixed:
		w.bi.SetMotionType(h.id, jolt.MotionTypeStatic)
	case MotionKinematic:
		w.bi.SetMotionType(h.id, jolt.MotionTypeKinematic)
	default:
		w.bi.SetMotionType(h.id, jolt.MotionTypeDynamic)
	}
}

// SetTranslation teleports a body (used for kinematic follow/teleport and
// respawn; also the mechanism for "switch to kinematic and teleport
// off-world" on vehicle entry).
func (w *World) SetTranslation(h BodyHandle, pos Vec3) {
	w.bi.SetPosition(h.id, pos.jolt())
}

// GetTranslation reads a body's current world position.
func (w *World) GetTranslation(h BodyHandle) Vec3 {
	return fromJolt(w.bi.GetPosition(h.id))
}

// SetRotation sets a body's orientation.
func (w *World) SetRotation(h BodyHandle, q Quat) {
	w.bi.SetRotation(h.id, quatJolt(q))
}

// GetRotation reads a body's current orientation.
func (w *World) GetRotation(h BodyHandle) Quat {
	return quatFromJolt(w.bi.GetRotation(h.id))
}

// SetLinearVelocity directly sets a body's linear velocity — the mechanism
// behind the ON_FOOT "no-slide" discipline (§4.3): the authoritative server
// sets velocity rather than integrating an impulse.
func (w *World) SetLinearVelocity(h BodyHandle, v Vec3) {
	w.bi.SetLinearVelocity(h.id, v.jolt())
}

// GetLinearVelocity reads a body's current linear velocity.
func (w *World) GetLinearVelocity(h BodyHandle) Vec3 {
	return fromJolt(w.bi.GetLinearVelocity(h.id))
}

// ApplyImpulse applies a one-shot linear impulse at the body's centre of mass.
func (w *World) ApplyImpulse(h BodyHandle, impulse Vec3) {
	w.bi.AddImpulse(h.id, impulse.jolt())
}

// ApplyTorqueImpulse applies a one-shot angular impulse.
func (w *World) ApplyTorqueImpulse(h BodyHandle, torque Vec3) {
	w.bi.AddAngularImpulse(h.id, torque.jolt())
}

// RayCastFilter controls which bodies a raycast ignores.
type RayCastFilter struct {
	ExcludeBody    BodyHandle
	ExcludeSensors bool
}

// RayCast casts from origin along direction (need not be normalised) up to
// maxDistance, honouring the filter-out-body and sensor-exclusion options
// the spec requires for ground detection (§4.5 step 3).
func (w *World) RayCast(origin, direction Vec3, maxDistance float64, filter RayCastFilter) (RayHit, bool) {
	dir := direction.Normalize()
	var excludeID *jolt.BodyID
	if filter.ExcludeBody.id != nil {
		excludeID = filter.ExcludeBody.id
	}
	result, hit := w.system.CastRay(origin.jolt(), dir.jolt(), float32(maxDistance), excludeID, filter.ExcludeSensors)
	if !hit {
		return RayHit{}, false
	}
	return RayHit{
		Body:     BodyHandle{id: result.Body},
		Point:    fromJolt(result.Point),
		Normal:   fromJolt(result.Normal),
		Fraction: float64(result.Fraction),
	}, true
}
