// Package interact implements the Interaction Handlers (§4.4): FIRE,
// ENTER_VEHICLE, EXIT_VEHICLE, GRAB_GHOST, DROP_GHOST, THROW_GHOST. Every
// handler validates preconditions against current authoritative state and
// rejects silently on failure (§7 "Precondition failure"), the same
// discipline the teacher's handleInteract used for unknown object ids.
package interact

import (
	"math"

	"github.com/the-coop/coop-api/internal/config"
	"github.com/the-coop/coop-api/internal/physics"
	"github.com/the-coop/coop-api/internal/world"
)

type Handlers struct {
	cfg *config.Config
	reg *world.Registry
	w   *physics.World
}

func NewHandlers(cfg *config.Config, reg *world.Registry, w *physics.World) *Handlers {
	return &Handlers{cfg: cfg, reg: reg, w: w}
}

func distance(a, b world.Position) float64 {
	dx, dy, dz := a.X-b.X, a.Y-b.Y, a.Z-b.Z
	return math.Sqrt(dx*dx + dy*dy + dz*dz)
}

// FireResult carries what the caller needs to broadcast PROJECTILE_SPAWN.
type FireResult struct {
	Projectile *world.Projectile
	Position   world.Position
	Velocity   world.Position
}

// Fire creates a projectile if the player's fire cooldown has elapsed.
// now and direction/origin come from the caller (now is wall-clock
// seconds; §4.4 FIRE).
func (h *Handlers) Fire(p *world.Player, direction, origin world.Position, now float64) (FireResult, bool) {
	if now-p.LastFireTime < h.cfg.FireRate {
		return FireResult{}, false
	}
	p.LastFireTime = now

	dir := direction.ToVec3().Normalize()
	vel := dir.Scale(h.cfg.ProjectileSpeed)

	body := h.w.CreateBall(h.cfg.ProjectileRadius, origin.ToVec3(), physics.MotionDynamic, physics.ColliderParams{
		Density: 1, Friction: 0, Restitution: 0,
	})
	h.w.SetLinearVelocity(body, vel)

	proj := &world.Projectile{
		ID:        h.reg.NewProjectileID(),
		OwnerID:   p.ID,
		Body:      body,
		CreatedAt: now,
	}
	h.reg.AddProjectile(proj)

	return FireResult{Projectile: proj, Position: origin, Velocity: world.FromVec3(vel)}, true
}

// EnterVehicle seats p in vehicle v if unoccupied, in range, and p is
// ON_FOOT (the spec's documented open-question resolution: carrying
// players may not enter a vehicle, see SPEC_FULL.md §9).
func (h *Handlers) EnterVehicle(p *world.Player, v *world.Vehicle) bool {
	if v == nil || v.DriverID != "" {
		return false
	}
	if p.Context != world.OnFoot || p.GhostID != "" {
		return false
	}
	if distance(p.Position, v.Position) > h.cfg.InteractionRange {
		return false
	}

	v.DriverID = p.ID
	switch v.Type {
	case world.Car:
		p.Context = world.DrivingCar
	case world.Helicopter:
		p.Context = world.DrivingHelicopter
	case world.Plane:
		p.Context = world.DrivingPlane
	}
	p.VehicleID = v.ID

	h.w.SetMotionType(p.Body, physics.MotionKinematic)
	h.w.SetTranslation(p.Body, physics.Vec3{X: 0, Y: -1000, Z: 0})
	return true
}

// ExitVehicle is the inverse of EnterVehicle.
func (h *Handlers) ExitVehicle(p *world.Player) bool {
	if p.VehicleID == "" {
		return false
	}
	v, ok := h.reg.Vehicles[p.VehicleID]
	if !ok {
		p.VehicleID = ""
		p.Context = world.OnFoot
		return false
	}

	v.DriverID = ""
	p.Context = world.OnFoot
	p.VehicleID = ""

	h.w.SetMotionType(p.Body, physics.MotionDynamic)
	exitPos := v.Position.ToVec3().Add(physics.Vec3{X: 3, Y: 1, Z: 0})
	h.w.SetTranslation(p.Body, exitPos)
	h.w.SetLinearVelocity(p.Body, physics.Vec3{})
	return true
}

// GrabGhost picks up a carriable if it is unheld, in range, the player
// isn't already carrying, and its mass is within the carry limit.
func (h *Handlers) GrabGhost(p *world.Player, g *world.Ghost) bool {
	if g == nil || g.CarrierID != "" {
		return false
	}
	if p.GhostID != "" {
		return false
	}
	if g.Mass > h.cfg.MaxCarryMass {
		return false
	}
	if distance(p.Position, g.Position) > h.cfg.GhostInteractRange {
		return false
	}

	g.CarrierID = p.ID
	p.GhostID = g.ID
	h.w.SetMotionType(g.Body, physics.MotionKinematic)
	return true
}

// DropGhost releases the carried ghost with a small downward velocity.
func (h *Handlers) DropGhost(p *world.Player) bool {
	if p.GhostID == "" {
		return false
	}
	g, ok := h.reg.Ghosts[p.GhostID]
	if !ok {
		p.GhostID = ""
		return false
	}

	g.CarrierID = ""
	p.GhostID = ""
	h.w.SetMotionType(g.Body, physics.MotionDynamic)
	h.w.SetLinearVelocity(g.Body, physics.Vec3{Y: -1})
	return true
}

// ThrowGhost releases the carried ghost with velocity direction*THROW_FORCE.
func (h *Handlers) ThrowGhost(p *world.Player, direction world.Position) bool {
	if p.GhostID == "" {
		return false
	}
	g, ok := h.reg.Ghosts[p.GhostID]
	if !ok {
		p.GhostID = ""
		return false
	}

	g.CarrierID = ""
	p.GhostID = ""
	h.w.SetMotionType(g.Body, physics.MotionDynamic)
	h.w.SetLinearVelocity(g.Body, direction.ToVec3().Normalize().Scale(h.cfg.ThrowForce))
	return true
}
