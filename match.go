package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/heroiclabs/nakama-common/runtime"

	"github.com/the-coop/coop-api/internal/config"
	"github.com/the-coop/coop-api/internal/control"
	"github.com/the-coop/coop-api/internal/interact"
	"github.com/the-coop/coop-api/internal/level"
	"github.com/the-coop/coop-api/internal/physics"
	"github.com/the-coop/coop-api/internal/script"
	gworld "github.com/the-coop/coop-api/internal/world"
)

// GameMatch is the authoritative per-match simulation, the Nakama
// runtime.Match implementation the whole server hangs off (§1.1).
type GameMatch struct{}

// GameMatchState is the per-match mutable world: the Entity Registry plus
// everything MatchLoop needs each tick. Nakama serialises access to it by
// running one match on one goroutine (§5), so it carries no mutex of its
// own — unlike the teacher's GameMatchState, which guarded ad-hoc slice
// mutation with gs.mu because its helpers could in principle be called
// from outside the match loop.
type GameMatchState struct {
	cfg      *config.Config
	world    *physics.World
	registry *gworld.Registry
	resolver *control.Resolver
	handlers *interact.Handlers
	scripts  *script.Engine
	level    level.Loaded
	objState []script.ObjectState

	presences map[string]runtime.Presence
	tick      int64

	// pendingIntent holds each player's latest submitted INPUT, applied once
	// per tick by the resolver (§4.5 step "drain input").
	pendingIntent map[string]control.Intent

	startedAt time.Time
}

func (m *GameMatch) MatchInit(ctx context.Context, logger runtime.Logger, db *sql.DB, nk runtime.NakamaModule, params map[string]interface{}) (interface{}, int, string) {
	cfg := config.Default()
	cfg.ApplyParams(params)

	w, err := physics.NewWorld(physics.Vec3{X: cfg.Gravity.X, Y: cfg.Gravity.Y, Z: cfg.Gravity.Z})
	if err != nil {
		logger.Error("failed to initialise physics world: %v", err)
		panic(fmt.Sprintf("physics world init failed: %v", err))
	}

	seed := int64(0)
	if mid, ok := params["matchSeed"].(float64); ok {
		seed = int64(mid)
	}

	registry := gworld.NewRegistry(w, seed)

	loader := level.NewLoader(logger, "/nakama/data/levels")
	levelFile := "default.json"
	if name, ok := params["level"].(string); ok && name != "" {
		levelFile = name
	}
	doc, err := loader.Load(levelFile, seed)
	if err != nil {
		logger.Error("failed to load level %s: %v", levelFile, err)
		panic(fmt.Sprintf("level load failed: %v", err))
	}
	loaded := level.Apply(w, doc)
	registry.StaticObjects = loaded.StaticObjects

	objState := make([]script.ObjectState, len(loaded.StaticObjects))
	for i := range objState {
		objState[i] = script.ObjectState{Index: i, Props: make(map[string]interface{})}
	}

	for _, vp := range loaded.Vehicles {
		spawnVehicle(registry, w, vp)
	}
	for _, gp := range loaded.Ghosts {
		spawnGhost(registry, w, gp)
	}

	state := &GameMatchState{
		cfg:           cfg,
		world:         w,
		registry:      registry,
		resolver:      control.NewResolver(cfg),
		handlers:      interact.NewHandlers(cfg, registry, w),
		scripts:       script.NewEngine(logger, "/nakama/data/scripts"),
		level:         loaded,
		objState:      objState,
		presences:     make(map[string]runtime.Presence),
		pendingIntent: make(map[string]control.Intent),
		startedAt:     time.Now(),
	}

	logger.Info("match initialised: level=%s tickRate=%d seed=%d", levelFile, cfg.TickRate, seed)

	return state, cfg.TickRate, "action_arena"
}

func spawnVehicle(reg *gworld.Registry, w *physics.World, vp level.VehiclePlacement) {
	half := physics.Vec3{X: 1, Y: 0.5, Z: 2}
	body := w.CreateCuboid(half, vp.Position.ToVec3(), physics.Identity(), physics.MotionDynamic, physics.ColliderParams{
		Density: 200, Friction: 0.6, Restitution: 0.1,
	})
	reg.AddVehicle(&gworld.Vehicle{
		ID:       reg.NewVehicleID(),
		Type:     vp.Type,
		Body:     body,
		Position: vp.Position,
		Rotation: physics.Identity(),
	})
}

func spawnGhost(reg *gworld.Registry, w *physics.World, gp level.GhostPlacement) {
	var body physics.BodyHandle
	params := physics.ColliderParams{Density: gp.Mass, Friction: 0.5, Restitution: 0.2}
	switch gp.Shape {
	case gworld.GhostSphere:
		body = w.CreateBall(gp.Dims.X, gp.Position.ToVec3(), physics.MotionDynamic, params)
	case gworld.GhostCylinder:
		body = w.CreateCylinder(gp.Dims.Y/2, gp.Dims.X, gp.Position.ToVec3(), physics.Identity(), physics.MotionDynamic, params)
	default:
		half := physics.Vec3{X: gp.Dims.X / 2, Y: gp.Dims.Y / 2, Z: gp.Dims.Z / 2}
		body = w.CreateCuboid(half, gp.Position.ToVec3(), physics.Identity(), physics.MotionDynamic, params)
	}
	reg.AddGhost(&gworld.Ghost{
		ID:       reg.NewGhostID(),
		Shape:    gp.Shape,
		Dims:     gp.Dims,
		Mass:     gp.Mass,
		Body:     body,
		Position: gp.Position,
		Rotation: physics.Identity(),
		Colour:   gp.Colour,
	})
}

func (m *GameMatch) MatchJoinAttempt(ctx context.Context, logger runtime.Logger, db *sql.DB, nk runtime.NakamaModule, dispatcher runtime.MatchDispatcher, tick int64, state interface{}, presence runtime.Presence, metadata map[string]string) (interface{}, bool, string) {
	gs, ok := state.(*GameMatchState)
	if !ok {
		logger.Error("state not a valid game state object")
		return nil, false, "internal error"
	}
	return gs, true, ""
}

func (m *GameMatch) MatchJoin(ctx context.Context, logger runtime.Logger, db *sql.DB, nk runtime.NakamaModule, dispatcher runtime.MatchDispatcher, tick int64, state interface{}, presences []runtime.Presence) interface{} {
	gs, ok := state.(*GameMatchState)
	if !ok {
		logger.Error("state not a valid game state object")
		return nil
	}

	for _, presence := range presences {
		gs.presences[presence.GetUserId()] = presence

		spawn := gs.level.SpawnPoints[len(gs.registry.Players)%len(gs.level.SpawnPoints)]

		halfHeight := (gs.cfg.Height - 2*gs.cfg.Radius) / 2
		body := gs.world.CreateCapsule(halfHeight, gs.cfg.Radius, spawn.ToVec3(), physics.Identity(), physics.MotionDynamic, physics.ColliderParams{
			Density:      1,
			Friction:     0.5,
			Restitution:  0,
			LinearDamp:   0,
			AngularDamp:  10.0,
			LockRotation: true,
		})

		player := &gworld.Player{
			ID:         presence.GetUserId(),
			Body:       body,
			Position:   spawn,
			Rotation:   physics.Identity(),
			Health:     gs.cfg.MaxHealth,
			LookDir:    gworld.Position{X: 0, Y: 0, Z: 1},
			Context:    gworld.OnFoot,
			SpawnPoint: spawn,
		}
		gs.registry.AddPlayer(player)

		init := InitPayload{PlayerID: player.ID, Level: levelWire(gs.level)}
		gs.send(dispatcher, OpCodeInit, "INIT", init, []runtime.Presence{presence})

		joined := GameMessage{Type: "PLAYER_JOINED", Data: PlayerSnapshot{
			ID: player.ID, Position: vecOf(player.Position), Rotation: quatOf(player.Rotation),
			Health: player.Health, Context: contextString(player.Context),
		}}
		gs.broadcast(dispatcher, OpCodePlayerJoined, joined, nil)

		logger.Info("player joined: %s at (%.1f, %.1f, %.1f)", player.ID, spawn.X, spawn.Y, spawn.Z)
	}

	return gs
}

func levelWire(l level.Loaded) []LevelObjectWire {
	out := make([]LevelObjectWire, 0, len(l.StaticObjects))
	for _, o := range l.StaticObjects {
		out = append(out, LevelObjectWire{
			Position:   vecOf(o.Position),
			HalfExtent: vecOf(o.HalfExtent),
			Colour:     o.Colour,
		})
	}
	return out
}

func (m *GameMatch) MatchLeave(ctx context.Context, logger runtime.Logger, db *sql.DB, nk runtime.NakamaModule, dispatcher runtime.MatchDispatcher, tick int64, state interface{}, presences []runtime.Presence) interface{} {
	gs, ok := state.(*GameMatchState)
	if !ok {
		logger.Error("state not a valid game state object")
		return nil
	}

	for _, presence := range presences {
		uid := presence.GetUserId()
		if p, exists := gs.registry.Players[uid]; exists {
			if p.VehicleID != "" {
				v := gs.registry.Vehicles[p.VehicleID]
				if gs.handlers.ExitVehicle(p) {
					gs.broadcastVehicleUpdate(dispatcher, v)
				}
			}
			if p.GhostID != "" {
				gs.handlers.DropGhost(p)
			}
			gs.registry.RemovePlayer(uid)
		}
		delete(gs.presences, uid)
		delete(gs.pendingIntent, uid)

		left := GameMessage{Type: "PLAYER_LEFT", Data: map[string]string{"id": uid}}
		gs.broadcast(dispatcher, OpCodePlayerLeft, left, nil)
		logger.Info("player left: %s", uid)
	}

	return gs
}

func (m *GameMatch) MatchTerminate(ctx context.Context, logger runtime.Logger, db *sql.DB, nk runtime.NakamaModule, dispatcher runtime.MatchDispatcher, tick int64, state interface{}, graceSeconds int) interface{} {
	gs, ok := state.(*GameMatchState)
	if !ok {
		logger.Error("state not a valid game state object")
		return nil
	}
	gs.world.Close()
	logger.Info("match terminating, physics world released")
	return gs
}

func (m *GameMatch) MatchSignal(ctx context.Context, logger runtime.Logger, db *sql.DB, nk runtime.NakamaModule, dispatcher runtime.MatchDispatcher, tick int64, state interface{}, data string) (interface{}, string) {
	gs, ok := state.(*GameMatchState)
	if !ok {
		logger.Error("state not a valid game state object")
		return nil, "internal error"
	}
	// No signals are defined for this match type yet.
	return gs, ""
}

// MatchLoop is the fixed-rate Tick Driver (§4.5): drain input, step physics,
// sync records, ground detection, carry-follow, projectile lifecycle,
// snapshot + broadcast.
func (m *GameMatch) MatchLoop(ctx context.Context, logger runtime.Logger, db *sql.DB, nk runtime.NakamaModule, dispatcher runtime.MatchDispatcher, tick int64, state interface{}, messages []runtime.MatchData) interface{} {
	gs, ok := state.(*GameMatchState)
	if !ok {
		logger.Error("state not a valid game state object")
		return nil
	}
	gs.tick = tick
	now := float64(time.Now().UnixNano()) / 1e9
	dt := 1.0 / float64(gs.cfg.TickRate)

	gs.drainMessages(messages, dispatcher, logger, now)

	for uid, intent := range gs.pendingIntent {
		p, ok := gs.registry.Players[uid]
		if !ok {
			continue
		}
		var v *gworld.Vehicle
		if p.VehicleID != "" {
			v = gs.registry.Vehicles[p.VehicleID]
		}
		gs.resolver.Resolve(gs.world, p, v, intent)
	}

	gs.world.Step(dt)

	gs.syncPlayers()
	gs.groundDetection()
	gs.carryFollow()
	gs.syncVehiclesAndGhosts()
	gs.updateProjectiles(dispatcher, now)

	gs.broadcastState(dispatcher)

	return gs
}

func (gs *GameMatchState) drainMessages(messages []runtime.MatchData, dispatcher runtime.MatchDispatcher, logger runtime.Logger, now float64) {
	for _, msg := range messages {
		uid := msg.GetUserId()
		var env struct {
			Type string          `json:"type"`
			Data json.RawMessage `json:"data"`
		}
		if err := json.Unmarshal(msg.GetData(), &env); err != nil {
			logger.Warn("malformed client message from %s: %v", uid, err)
			continue
		}

		p, exists := gs.registry.Players[uid]
		if !exists {
			continue
		}

		switch env.Type {
		case "INPUT":
			var payload InputIntentPayload
			if err := json.Unmarshal(env.Data, &payload); err != nil {
				continue
			}
			gs.pendingIntent[uid] = payload.Input.ToIntent()

		case "FIRE":
			var payload FirePayload
			if err := json.Unmarshal(env.Data, &payload); err != nil {
				continue
			}
			if res, ok := gs.handlers.Fire(p, posOf(payload.Direction), posOf(payload.Origin), now); ok {
				spawn := GameMessage{Type: "PROJECTILE_SPAWN", Data: ProjectileSnapshot{
					ID: res.Projectile.ID, Position: vecOf(res.Position), Velocity: vecOf(res.Velocity), OwnerID: p.ID,
				}}
				gs.broadcast(dispatcher, OpCodeProjectileSpawn, spawn, nil)
			}

		case "ENTER_VEHICLE":
			var payload EnterVehiclePayload
			if err := json.Unmarshal(env.Data, &payload); err != nil {
				continue
			}
			v := gs.registry.Vehicles[payload.VehicleID]
			if gs.handlers.EnterVehicle(p, v) {
				gs.broadcastVehicleUpdate(dispatcher, v)
			}

		case "EXIT_VEHICLE":
			v := gs.registry.Vehicles[p.VehicleID]
			if gs.handlers.ExitVehicle(p) {
				gs.broadcastVehicleUpdate(dispatcher, v)
			}

		case "GRAB_GHOST":
			var payload GrabGhostPayload
			if err := json.Unmarshal(env.Data, &payload); err != nil {
				continue
			}
			g := gs.registry.Ghosts[payload.GhostID]
			if gs.handlers.GrabGhost(p, g) {
				gs.broadcastGhostUpdate(dispatcher, g)
			}

		case "DROP_GHOST":
			g := gs.registry.Ghosts[p.GhostID]
			if gs.handlers.DropGhost(p) {
				gs.broadcastGhostUpdate(dispatcher, g)
			}

		case "THROW_GHOST":
			var payload ThrowGhostPayload
			if err := json.Unmarshal(env.Data, &payload); err != nil {
				continue
			}
			g := gs.registry.Ghosts[p.GhostID]
			if gs.handlers.ThrowGhost(p, posOf(payload.Direction)) {
				gs.broadcastGhostUpdate(dispatcher, g)
			}

		case "INTERACT_OBJECT":
			var payload InteractObjectPayload
			if err := json.Unmarshal(env.Data, &payload); err != nil {
				continue
			}
			gs.interactObject(dispatcher, p, payload.Index, logger)

		default:
			logger.Debug("unknown client message type %q from %s", env.Type, uid)
		}
	}
}

// broadcastVehicleUpdate announces a driver change (§4.4 ENTER_VEHICLE/
// EXIT_VEHICLE, §6 outbound VEHICLE_UPDATE). v is nil if the referenced
// vehicle no longer exists, in which case there is nothing to announce.
func (gs *GameMatchState) broadcastVehicleUpdate(dispatcher runtime.MatchDispatcher, v *gworld.Vehicle) {
	if v == nil {
		return
	}
	msg := GameMessage{Type: "VEHICLE_UPDATE", Data: VehicleSnapshot{
		ID: v.ID, Type: vehicleTypeString(v.Type), Position: vecOf(v.Position),
		Rotation: quatOf(v.Rotation), Velocity: vecOf(v.Velocity), DriverID: v.DriverID,
	}}
	gs.broadcast(dispatcher, OpCodeVehicleUpdate, msg, nil)
}

// broadcastGhostUpdate announces a carry-state change (§4.4 GRAB_GHOST/
// DROP_GHOST/THROW_GHOST, §6 outbound GHOST_UPDATE).
func (gs *GameMatchState) broadcastGhostUpdate(dispatcher runtime.MatchDispatcher, g *gworld.Ghost) {
	if g == nil {
		return
	}
	msg := GameMessage{Type: "GHOST_UPDATE", Data: GhostSnapshot{
		ID: g.ID, Position: vecOf(g.Position), Rotation: quatOf(g.Rotation),
		Velocity: vecOf(g.Velocity), CarrierID: g.CarrierID, Colour: g.Colour,
	}}
	gs.broadcast(dispatcher, OpCodeGhostUpdate, msg, nil)
}

// syncPlayers copies physics state back into the registry records for every
// ON_FOOT player. DRIVING players are skipped: their body sits parked
// off-world (§4.4 ENTER_VEHICLE) so it isn't authoritative, and
// syncVehiclesAndGhosts copies their vehicle's state into their record.
func (gs *GameMatchState) syncPlayers() {
	for _, p := range gs.registry.Players {
		if p.Context != gworld.OnFoot {
			continue
		}
		p.Position = gworld.FromVec3(gs.world.GetTranslation(p.Body))
		p.Rotation = gs.world.GetRotation(p.Body)
		p.Velocity = gworld.FromVec3(gs.world.GetLinearVelocity(p.Body))
	}
}

// groundDetection casts five short rays downward from the capsule centre
// (the centre itself, then ±0.7R along X and ±0.7R along Z), each out to
// maxDistance = HEIGHT/2 + 0.5.
// The closest hit's normal and distance are recorded regardless of whether
// it falls within the grounded threshold of HEIGHT/2 + 0.1 (§4.5 step 3).
func (gs *GameMatchState) groundDetection() {
	offsets := []physics.Vec3{
		{X: 0, Z: 0},
		{X: gs.cfg.Radius * 0.7},
		{X: -gs.cfg.Radius * 0.7},
		{Z: gs.cfg.Radius * 0.7},
		{Z: -gs.cfg.Radius * 0.7},
	}
	maxDist := gs.cfg.Height/2 + 0.5
	groundedThreshold := gs.cfg.Height/2 + 0.1

	for _, p := range gs.registry.Players {
		if p.Context != gworld.OnFoot {
			p.Grounded = false
			continue
		}
		base := p.Position.ToVec3()
		found := false
		var normal physics.Vec3
		dist := maxDist
		for _, off := range offsets {
			origin := base.Add(off)
			hit, ok := gs.world.RayCast(origin, physics.Vec3{Y: -1}, maxDist, physics.RayCastFilter{
				ExcludeBody: p.Body, ExcludeSensors: true,
			})
			if !ok {
				continue
			}
			toi := hit.Fraction * maxDist
			if !found || toi < dist {
				found = true
				normal = hit.Normal
				dist = toi
			}
		}
		p.Grounded = found && dist <= groundedThreshold
		p.GroundNormal = gworld.FromVec3(normal)
		p.GroundDist = dist
	}
}

// carryFollow teleports a carried ghost to a fixed offset in front of its
// carrier each tick (§4.4 GRAB_GHOST "kinematic follow") and writes that
// position into the ghost's record.
func (gs *GameMatchState) carryFollow() {
	for _, p := range gs.registry.Players {
		if p.GhostID == "" {
			continue
		}
		g, ok := gs.registry.Ghosts[p.GhostID]
		if !ok {
			p.GhostID = ""
			continue
		}
		forward := p.LookDir.ToVec3().Normalize()
		target := p.Position.ToVec3().Add(forward.Scale(gs.cfg.CarryDistance)).Add(physics.Vec3{Y: 0.5})
		gs.world.SetTranslation(g.Body, target)
		gs.world.SetLinearVelocity(g.Body, physics.Vec3{})
		g.Position = gworld.FromVec3(target)
		g.Velocity = gworld.Position{}
	}
}

func (gs *GameMatchState) syncVehiclesAndGhosts() {
	for _, v := range gs.registry.Vehicles {
		v.Position = gworld.FromVec3(gs.world.GetTranslation(v.Body))
		v.Rotation = gs.world.GetRotation(v.Body)
		v.Velocity = gworld.FromVec3(gs.world.GetLinearVelocity(v.Body))

		if v.DriverID != "" {
			if p, ok := gs.registry.Players[v.DriverID]; ok {
				p.Position = v.Position
				p.Rotation = v.Rotation
				p.Velocity = v.Velocity
			}
		}
	}
	for _, g := range gs.registry.Ghosts {
		if g.CarrierID != "" {
			continue // position driven by carryFollow, not physics read-back
		}
		g.Position = gworld.FromVec3(gs.world.GetTranslation(g.Body))
		g.Rotation = gs.world.GetRotation(g.Body)
		g.Velocity = gworld.FromVec3(gs.world.GetLinearVelocity(g.Body))
	}
}

// updateProjectiles expires projectiles past their TTL or outside the
// world bounds, and resolves hits against players within contact range
// (§4.4 FIRE "lifecycle", §9 world-bounds cull).
func (gs *GameMatchState) updateProjectiles(dispatcher runtime.MatchDispatcher, now float64) {
	cfg := gs.cfg
	var expired []string

	for id, proj := range gs.registry.Projectiles {
		pos := gs.world.GetTranslation(proj.Body)

		if now-proj.CreatedAt > cfg.ProjectileTTL {
			expired = append(expired, id)
			continue
		}
		if pos.X < -cfg.WorldBoundXZ || pos.X > cfg.WorldBoundXZ ||
			pos.Z < -cfg.WorldBoundXZ || pos.Z > cfg.WorldBoundXZ ||
			pos.Y < cfg.WorldBoundYMin || pos.Y > cfg.WorldBoundYMax {
			expired = append(expired, id)
			continue
		}

		for _, p := range gs.registry.Players {
			if p.ID == proj.OwnerID || p.Context != gworld.OnFoot {
				continue
			}
			if pos.Sub(p.Position.ToVec3()).Length() > cfg.Radius+gs.cfg.ProjectileRadius {
				continue
			}
			p.Health -= cfg.ProjectileDamage
			hit := GameMessage{Type: "HIT", Data: HitPayload{Target: p.ID, Damage: cfg.ProjectileDamage, Health: p.Health}}
			gs.broadcast(dispatcher, OpCodeHit, hit, nil)

			if p.Health <= 0 {
				gs.respawn(p)
			}
			expired = append(expired, id)
			break
		}
	}

	for _, id := range expired {
		gs.registry.RemoveProjectile(id)
		remove := GameMessage{Type: "PROJECTILE_REMOVE", Data: map[string]string{"id": id}}
		gs.broadcast(dispatcher, OpCodeProjectileRemove, remove, nil)
	}
}

// interactObject runs the Lua hook (if any) bound to a nearby static
// object. Out-of-range or script-less objects are silently ignored, the
// same precondition-failure discipline the interaction handlers use.
func (gs *GameMatchState) interactObject(dispatcher runtime.MatchDispatcher, p *gworld.Player, index int, logger runtime.Logger) {
	if index < 0 || index >= len(gs.registry.StaticObjects) {
		return
	}
	obj := gs.registry.StaticObjects[index]
	if obj.Script == "" {
		return
	}
	if p.Position.ToVec3().Sub(obj.Position.ToVec3()).Length() > gs.cfg.InteractionRange {
		return
	}

	params := map[string]interface{}{"playerId": p.ID}
	effects, err := gs.scripts.Execute(obj.Script, params, &gs.objState[index])
	if err != nil {
		logger.Warn("script hook %s failed: %v", obj.Script, err)
		return
	}
	for _, eff := range effects {
		if eff.AckMessage == "" {
			continue
		}
		msg := GameMessage{Type: "SCRIPT_ACK", Data: ScriptAckPayload{Index: index, Message: eff.AckMessage}}
		if presence, ok := gs.presences[p.ID]; ok {
			gs.broadcast(dispatcher, OpCodeScriptAck, msg, []runtime.Presence{presence})
		}
	}
}

func (gs *GameMatchState) respawn(p *gworld.Player) {
	p.Health = gs.cfg.MaxHealth
	if p.VehicleID != "" {
		if v, ok := gs.registry.Vehicles[p.VehicleID]; ok {
			v.DriverID = ""
		}
		p.VehicleID = ""
		p.Context = gworld.OnFoot
		gs.world.SetMotionType(p.Body, physics.MotionDynamic)
	}
	if p.GhostID != "" {
		if g, ok := gs.registry.Ghosts[p.GhostID]; ok {
			g.CarrierID = ""
			gs.world.SetMotionType(g.Body, physics.MotionDynamic)
		}
		p.GhostID = ""
	}
	gs.world.SetTranslation(p.Body, p.SpawnPoint.ToVec3())
	gs.world.SetLinearVelocity(p.Body, physics.Vec3{})
	p.Position = p.SpawnPoint
	p.Velocity = gworld.Position{}
}

func (gs *GameMatchState) broadcastState(dispatcher runtime.MatchDispatcher) {
	payload := GameStatePayload{}
	for _, p := range gs.registry.Players {
		payload.Players = append(payload.Players, PlayerSnapshot{
			ID: p.ID, Position: vecOf(p.Position), Rotation: quatOf(p.Rotation),
			Velocity: vecOf(p.Velocity), Health: p.Health, Context: contextString(p.Context),
		})
	}
	for _, v := range gs.registry.Vehicles {
		payload.Vehicles = append(payload.Vehicles, VehicleSnapshot{
			ID: v.ID, Type: vehicleTypeString(v.Type), Position: vecOf(v.Position),
			Rotation: quatOf(v.Rotation), Velocity: vecOf(v.Velocity), DriverID: v.DriverID,
		})
	}
	for _, g := range gs.registry.Ghosts {
		payload.Ghosts = append(payload.Ghosts, GhostSnapshot{
			ID: g.ID, Position: vecOf(g.Position), Rotation: quatOf(g.Rotation),
			Velocity: vecOf(g.Velocity), CarrierID: g.CarrierID, Colour: g.Colour,
		})
	}
	for _, proj := range gs.registry.Projectiles {
		pos := gworld.FromVec3(gs.world.GetTranslation(proj.Body))
		vel := gworld.FromVec3(gs.world.GetLinearVelocity(proj.Body))
		payload.Projectiles = append(payload.Projectiles, ProjectileSnapshot{
			ID: proj.ID, Position: vecOf(pos), Velocity: vecOf(vel), OwnerID: proj.OwnerID,
		})
	}

	msg := GameMessage{Type: "GAME_STATE", Data: payload}
	gs.broadcast(dispatcher, OpCodeGameState, msg, nil)
}

func vehicleTypeString(t gworld.VehicleType) string {
	switch t {
	case gworld.Helicopter:
		return "HELICOPTER"
	case gworld.Plane:
		return "PLANE"
	default:
		return "CAR"
	}
}

func quatOf(q physics.Quat) Quat { return Quat{X: q.X, Y: q.Y, Z: q.Z, W: q.W} }

func (gs *GameMatchState) broadcast(dispatcher runtime.MatchDispatcher, opCode int64, msg GameMessage, presences []runtime.Presence) {
	data, err := json.Marshal(msg)
	if err != nil {
		return
	}
	dispatcher.BroadcastMessage(opCode, data, presences, nil, true)
}

func (gs *GameMatchState) send(dispatcher runtime.MatchDispatcher, opCode int64, msgType string, data interface{}, to []runtime.Presence) {
	gs.broadcast(dispatcher, opCode, GameMessage{Type: msgType, Data: data}, to)
}
