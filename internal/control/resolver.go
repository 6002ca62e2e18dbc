// Package control is the Input Resolver (§4.3): it maps a player's latest
// input intent to physics actions, dispatched by the player's control
// context, the way the teacher's InputProcessor mapped a PlayerInput.Action
// to a handler — generalised here from a single "move" action applying a
// 2D velocity to four physics-driven, context-dependent mappings.
package control

import (
	"math"

	"github.com/the-coop/coop-api/internal/config"
	"github.com/the-coop/coop-api/internal/physics"
	"github.com/the-coop/coop-api/internal/world"
)

// Intent is the client-submitted input for one tick (§4.3).
type Intent struct {
	MoveForward  bool
	MoveBackward bool
	MoveLeft     bool
	MoveRight    bool
	Jump         bool
	ShiftDescend bool
	LookDir      *world.Position // nil if the client omitted it this frame
}

type Resolver struct {
	cfg *config.Config
}

func NewResolver(cfg *config.Config) *Resolver {
	return &Resolver{cfg: cfg}
}

// Resolve dispatches on p.Context and mutates the physics world accordingly.
func (r *Resolver) Resolve(w *physics.World, p *world.Player, v *world.Vehicle, intent Intent) {
	switch p.Context {
	case world.OnFoot:
		r.resolveOnFoot(w, p, intent)
	case world.DrivingCar:
		r.resolveCar(w, v, intent)
	case world.DrivingHelicopter:
		r.resolveHelicopter(w, v, intent)
	case world.DrivingPlane:
		r.resolvePlane(w, v, intent)
	}
}

func planarForwardRight(look world.Position) (forward, right world.Position) {
	f := physics.Vec3{X: look.X, Y: 0, Z: look.Z}.Normalize()
	forward = world.Position{X: f.X, Y: 0, Z: f.Z}
	right = world.Position{X: -f.Z, Y: 0, Z: f.X}
	return
}

func moveDirection(intent Intent, forward, right world.Position) physics.Vec3 {
	var d physics.Vec3
	if intent.MoveForward {
		d = d.Add(forward.ToVec3())
	}
	if intent.MoveBackward {
		d = d.Sub(forward.ToVec3())
	}
	if intent.MoveRight {
		d = d.Add(right.ToVec3())
	}
	if intent.MoveLeft {
		d = d.Sub(right.ToVec3())
	}
	if d.Length() < 1e-9 {
		return physics.Vec3{}
	}
	return d.Normalize()
}

// resolveOnFoot implements §4.3 ON_FOOT exactly: the server *sets* horizontal
// velocity rather than integrating an impulse when grounded (the "no-slide"
// discipline), applies a sustaining downward impulse to hold slope contact,
// and falls back to a weak horizontal impulse while airborne.
func (r *Resolver) resolveOnFoot(w *physics.World, p *world.Player, intent Intent) {
	if intent.LookDir != nil {
		p.LookDir = *intent.LookDir
	}

	forward, right := planarForwardRight(p.LookDir)
	dir := moveDirection(intent, forward, right)

	vel := w.GetLinearVelocity(p.Body)

	if p.Grounded {
		if dir.Length() > 0 {
			horiz := physics.Vec3{X: vel.X, Z: vel.Z}
			target := horiz.Scale(0.9).Add(dir.Scale(r.cfg.Speed * 0.15))
			w.SetLinearVelocity(p.Body, physics.Vec3{X: target.X, Y: vel.Y, Z: target.Z})
		} else {
			w.SetLinearVelocity(p.Body, physics.Vec3{X: vel.X * 0.8, Y: vel.Y, Z: vel.Z * 0.8})
		}
		w.ApplyImpulse(p.Body, physics.Vec3{X: 0, Y: -0.2, Z: 0})

		if intent.Jump {
			vel = w.GetLinearVelocity(p.Body)
			if vel.Y < 0.5 {
				w.ApplyImpulse(p.Body, physics.Vec3{X: 0, Y: r.cfg.JumpForce, Z: 0})
			}
		}
		return
	}

	// Airborne: weak horizontal impulse, jump ignored.
	if dir.Length() > 0 {
		w.ApplyImpulse(p.Body, dir.Scale(0.02))
	}
}

// resolveCar implements §4.3 DRIVING(CAR).
func (r *Resolver) resolveCar(w *physics.World, v *world.Vehicle, intent Intent) {
	if v == nil {
		return
	}
	forward := v.Rotation.Forward()
	forward.Y = 0
	forward = forward.Normalize()

	if intent.MoveForward {
		w.ApplyImpulse(v.Body, forward.Scale(r.cfg.CarSpeed*2))
	}
	if intent.MoveBackward {
		w.ApplyImpulse(v.Body, forward.Scale(-r.cfg.CarSpeed))
	}

	vel := w.GetLinearVelocity(v.Body)
	planarSpeed := math.Hypot(vel.X, vel.Z)
	throttle := intent.MoveForward || intent.MoveBackward
	if planarSpeed > 0.5 || throttle {
		if intent.MoveLeft {
			w.ApplyTorqueImpulse(v.Body, physics.Vec3{Y: r.cfg.CarTurnSpeed})
		}
		if intent.MoveRight {
			w.ApplyTorqueImpulse(v.Body, physics.Vec3{Y: -r.cfg.CarTurnSpeed})
		}
	}

	w.ApplyImpulse(v.Body, physics.Vec3{Y: -1})
}

// resolveHelicopter implements §4.3 DRIVING(HELICOPTER).
func (r *Resolver) resolveHelicopter(w *physics.World, v *world.Vehicle, intent Intent) {
	if v == nil {
		return
	}
	forward := v.Rotation.Forward()
	forward.Y = 0
	forward = forward.Normalize()

	pos := w.GetTranslation(v.Body)

	var vertical float64
	switch {
	case intent.Jump:
		vertical = r.cfg.HeliLift
		v.EngineOn = true
	case intent.ShiftDescend:
		vertical = -r.cfg.HeliLift * 0.5
	default:
		vertical = 2.0
	}
	if pos.Y > r.cfg.HeliMaxAlt && vertical > 0 {
		vertical = 0
	}
	w.ApplyImpulse(v.Body, physics.Vec3{Y: vertical})

	if intent.MoveForward {
		w.ApplyImpulse(v.Body, forward.Scale(r.cfg.HeliLift))
	} else if intent.MoveBackward {
		w.ApplyImpulse(v.Body, forward.Scale(-r.cfg.HeliLift*0.5))
	}

	if intent.MoveForward {
		w.ApplyTorqueImpulse(v.Body, physics.Vec3{X: -r.cfg.HeliTiltAngle})
	}
	if intent.MoveBackward {
		w.ApplyTorqueImpulse(v.Body, physics.Vec3{X: r.cfg.HeliTiltAngle})
	}
	if intent.MoveLeft {
		w.ApplyTorqueImpulse(v.Body, physics.Vec3{Y: r.cfg.HeliTurnSpeed})
	}
	if intent.MoveRight {
		w.ApplyTorqueImpulse(v.Body, physics.Vec3{Y: -r.cfg.HeliTurnSpeed})
	}
}

// resolvePlane implements §4.3 DRIVING(PLANE). Throttle is stored on the
// vehicle record and ramped 0.02/tick per input, matching the scalar
// accumulation the spec describes rather than a per-tick impulse alone.
func (r *Resolver) resolvePlane(w *physics.World, v *world.Vehicle, intent Intent) {
	if v == nil {
		return
	}
	if intent.MoveForward {
		v.Throttle = math.Min(1, v.Throttle+0.02)
	}
	if intent.MoveBackward {
		v.Throttle = math.Max(0, v.Throttle-0.02)
	}

	forward3d := v.Rotation.Forward()
	thrust := forward3d.Scale(v.Throttle * r.cfg.PlaneAccel)
	w.ApplyImpulse(v.Body, thrust)

	vel := w.GetLinearVelocity(v.Body)
	speed := vel.Length()
	if speed > r.cfg.PlaneMinSpeed {
		lift := math.Min(speed*r.cfg.PlaneLiftCoef, 15)
		w.ApplyImpulse(v.Body, physics.Vec3{Y: lift})
	}

	if intent.Jump {
		w.ApplyTorqueImpulse(v.Body, physics.Vec3{X: r.cfg.PlanePitchSpeed})
	}
	if intent.ShiftDescend {
		w.ApplyTorqueImpulse(v.Body, physics.Vec3{X: -r.cfg.PlanePitchSpeed})
	}

	var roll float64
	if intent.MoveLeft {
		roll = r.cfg.PlaneTurnSpeed
	} else if intent.MoveRight {
		roll = -r.cfg.PlaneTurnSpeed
	}
	if roll != 0 {
		w.ApplyTorqueImpulse(v.Body, physics.Vec3{Z: roll})
		w.ApplyTorqueImpulse(v.Body, physics.Vec3{Y: roll * 0.5})
	}
}
