package main

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/heroiclabs/nakama-common/runtime"
	"github.com/the-coop/coop-api/internal/level"
	"github.com/the-coop/coop-api/internal/physics"
	gworld "github.com/the-coop/coop-api/internal/world"
)

type fakeLogger struct{}

func (fakeLogger) Debug(string, ...interface{})                     {}
func (fakeLogger) Info(string, ...interface{})                      {}
func (fakeLogger) Warn(string, ...interface{})                      {}
func (fakeLogger) Error(string, ...interface{})                     {}
func (fakeLogger) WithField(string, interface{}) runtime.Logger     { return fakeLogger{} }
func (fakeLogger) WithFields(map[string]interface{}) runtime.Logger { return fakeLogger{} }
func (fakeLogger) Fields() map[string]interface{}                   { return nil }

type fakePresence struct {
	userID string
}

func (p fakePresence) GetUserId() string                    { return p.userID }
func (p fakePresence) GetSessionId() string                  { return "session-" + p.userID }
func (p fakePresence) GetNodeId() string                     { return "node" }
func (p fakePresence) GetHidden() bool                       { return false }
func (p fakePresence) GetPersistence() bool                  { return true }
func (p fakePresence) GetUsername() string                   { return p.userID }
func (p fakePresence) GetStatus() string                     { return "" }
func (p fakePresence) GetReason() runtime.PresenceReason     { return runtime.PresenceReasonJoin }

type recordedBroadcast struct {
	opCode int64
	data   []byte
}

type fakeDispatcher struct {
	sent []recordedBroadcast
}

func (d *fakeDispatcher) BroadcastMessage(opCode int64, data []byte, presences []runtime.Presence, sender runtime.Presence, reliable bool) error {
	d.sent = append(d.sent, recordedBroadcast{opCode: opCode, data: data})
	return nil
}

func (d *fakeDispatcher) BroadcastMessageDeferred(opCode int64, data []byte, presences []runtime.Presence, sender runtime.Presence, reliable bool) error {
	return d.BroadcastMessage(opCode, data, presences, sender, reliable)
}

func (d *fakeDispatcher) MatchKick(presences []runtime.Presence) error { return nil }

func (d *fakeDispatcher) MatchLabelUpdate(label string) error { return nil }

type fakeMatchData struct {
	userID string
	opCode int64
	data   []byte
}

func (m fakeMatchData) GetUserId() string                { return m.userID }
func (m fakeMatchData) GetSessionId() string              { return "session-" + m.userID }
func (m fakeMatchData) GetNodeId() string                 { return "node" }
func (m fakeMatchData) GetHidden() bool                   { return false }
func (m fakeMatchData) GetPersistence() bool               { return true }
func (m fakeMatchData) GetUsername() string                { return m.userID }
func (m fakeMatchData) GetStatus() string                  { return "" }
func (m fakeMatchData) GetOpCode() int64                   { return m.opCode }
func (m fakeMatchData) GetData() []byte                    { return m.data }
func (m fakeMatchData) GetReceiveTime() int64               { return 0 }
func (m fakeMatchData) GetReason() runtime.PresenceReason  { return runtime.PresenceReasonJoin }

func initTestMatch(t *testing.T) (*GameMatch, *GameMatchState) {
	t.Helper()
	m := &GameMatch{}
	rawState, tickRate, label := m.MatchInit(context.Background(), fakeLogger{}, nil, nil, map[string]interface{}{
		"matchSeed": float64(7),
	})
	if tickRate <= 0 {
		t.Fatalf("expected positive tick rate, got %d", tickRate)
	}
	if label == "" {
		t.Fatal("expected non-empty match label")
	}
	gs, ok := rawState.(*GameMatchState)
	if !ok {
		t.Fatal("MatchInit did not return a *GameMatchState")
	}
	t.Cleanup(gs.world.Close)
	return m, gs
}

func TestMatchJoinRegistersPlayerAndBroadcastsInit(t *testing.T) {
	m, gs := initTestMatch(t)
	dispatcher := &fakeDispatcher{}
	presences := []runtime.Presence{fakePresence{userID: "alice"}}

	m.MatchJoin(context.Background(), fakeLogger{}, nil, nil, dispatcher, 1, gs, presences)

	if _, ok := gs.registry.Players["alice"]; !ok {
		t.Fatal("expected alice to be registered as a player")
	}
	if len(dispatcher.sent) < 2 {
		t.Fatalf("expected at least INIT and PLAYER_JOINED broadcasts, got %d", len(dispatcher.sent))
	}
	if dispatcher.sent[0].opCode != OpCodeInit {
		t.Fatalf("expected first broadcast to be INIT (opcode %d), got %d", OpCodeInit, dispatcher.sent[0].opCode)
	}
}

func TestMatchLeaveRemovesPlayer(t *testing.T) {
	m, gs := initTestMatch(t)
	dispatcher := &fakeDispatcher{}
	presence := fakePresence{userID: "bob"}

	m.MatchJoin(context.Background(), fakeLogger{}, nil, nil, dispatcher, 1, gs, []runtime.Presence{presence})
	m.MatchLeave(context.Background(), fakeLogger{}, nil, nil, dispatcher, 2, gs, []runtime.Presence{presence})

	if _, ok := gs.registry.Players["bob"]; ok {
		t.Fatal("expected bob to be removed from the registry")
	}
}

func TestMatchLoopProcessesFireMessage(t *testing.T) {
	m, gs := initTestMatch(t)
	dispatcher := &fakeDispatcher{}
	presence := fakePresence{userID: "carol"}
	m.MatchJoin(context.Background(), fakeLogger{}, nil, nil, dispatcher, 1, gs, []runtime.Presence{presence})

	fireMsg, err := json.Marshal(GameMessage{Type: "FIRE", Data: FirePayload{
		Direction: Vec3{Z: 1}, Origin: Vec3{Y: 1},
	}})
	if err != nil {
		t.Fatalf("marshal fire message: %v", err)
	}

	messages := []runtime.MatchData{fakeMatchData{userID: "carol", opCode: OpCodeClientAction, data: fireMsg}}
	m.MatchLoop(context.Background(), fakeLogger{}, nil, nil, dispatcher, 2, gs, messages)

	if len(gs.registry.Projectiles) != 1 {
		t.Fatalf("expected exactly one projectile after FIRE, got %d", len(gs.registry.Projectiles))
	}
}

func TestInteractObjectIgnoresOutOfRangeAndMissingScript(t *testing.T) {
	_, gs := initTestMatch(t)
	dispatcher := &fakeDispatcher{}
	p := &gworld.Player{ID: "dana", Position: gworld.Position{}}

	// Ground slab (index 0) never carries a script in the procedural
	// default level, so this must be a silent no-op, not a panic.
	gs.interactObject(dispatcher, p, 0, fakeLogger{})
	if len(dispatcher.sent) != 0 {
		t.Fatalf("expected no broadcast for a script-less object, got %d", len(dispatcher.sent))
	}

	gs.interactObject(dispatcher, p, len(gs.registry.StaticObjects)+5, fakeLogger{})
	if len(dispatcher.sent) != 0 {
		t.Fatalf("expected out-of-range index to be ignored, got %d broadcasts", len(dispatcher.sent))
	}
}

func sentOpCode(dispatcher *fakeDispatcher, opCode int64) bool {
	for _, b := range dispatcher.sent {
		if b.opCode == opCode {
			return true
		}
	}
	return false
}

func TestEnterExitVehicleBroadcastsVehicleUpdate(t *testing.T) {
	m, gs := initTestMatch(t)
	dispatcher := &fakeDispatcher{}
	presence := fakePresence{userID: "erin"}
	m.MatchJoin(context.Background(), fakeLogger{}, nil, nil, dispatcher, 1, gs, []runtime.Presence{presence})

	spawnVehicle(gs.registry, gs.world, level.VehiclePlacement{Type: gworld.Car, Position: gworld.Position{X: 0, Y: 1, Z: 0}})
	var vehicleID string
	for id, v := range gs.registry.Vehicles {
		vehicleID = id
		_ = v
	}
	gs.registry.Players["erin"].Position = gworld.Position{X: 0, Y: 1, Z: 0}

	dispatcher.sent = nil
	enterMsg, err := json.Marshal(GameMessage{Type: "ENTER_VEHICLE", Data: EnterVehiclePayload{VehicleID: vehicleID}})
	if err != nil {
		t.Fatalf("marshal enter message: %v", err)
	}
	m.MatchLoop(context.Background(), fakeLogger{}, nil, nil, dispatcher, 2, gs,
		[]runtime.MatchData{fakeMatchData{userID: "erin", opCode: OpCodeClientAction, data: enterMsg}})

	if !sentOpCode(dispatcher, OpCodeVehicleUpdate) {
		t.Fatal("expected a VEHICLE_UPDATE broadcast after ENTER_VEHICLE")
	}
	if gs.registry.Vehicles[vehicleID].DriverID != "erin" {
		t.Fatalf("expected erin to be the driver, got %q", gs.registry.Vehicles[vehicleID].DriverID)
	}

	dispatcher.sent = nil
	exitMsg, err := json.Marshal(GameMessage{Type: "EXIT_VEHICLE"})
	if err != nil {
		t.Fatalf("marshal exit message: %v", err)
	}
	m.MatchLoop(context.Background(), fakeLogger{}, nil, nil, dispatcher, 3, gs,
		[]runtime.MatchData{fakeMatchData{userID: "erin", opCode: OpCodeClientAction, data: exitMsg}})

	if !sentOpCode(dispatcher, OpCodeVehicleUpdate) {
		t.Fatal("expected a VEHICLE_UPDATE broadcast after EXIT_VEHICLE")
	}
	if gs.registry.Vehicles[vehicleID].DriverID != "" {
		t.Fatal("expected vehicle to be unoccupied after EXIT_VEHICLE")
	}
}

func TestGrabDropGhostBroadcastsGhostUpdate(t *testing.T) {
	m, gs := initTestMatch(t)
	dispatcher := &fakeDispatcher{}
	presence := fakePresence{userID: "finn"}
	m.MatchJoin(context.Background(), fakeLogger{}, nil, nil, dispatcher, 1, gs, []runtime.Presence{presence})

	spawnGhost(gs.registry, gs.world, level.GhostPlacement{
		Shape: gworld.GhostBox, Dims: gworld.Position{X: 1, Y: 1, Z: 1}, Mass: 1,
		Position: gworld.Position{X: 0, Y: 1, Z: 0},
	})
	var ghostID string
	for id := range gs.registry.Ghosts {
		ghostID = id
	}
	gs.registry.Players["finn"].Position = gworld.Position{X: 0, Y: 1, Z: 0}

	dispatcher.sent = nil
	grabMsg, err := json.Marshal(GameMessage{Type: "GRAB_GHOST", Data: GrabGhostPayload{GhostID: ghostID}})
	if err != nil {
		t.Fatalf("marshal grab message: %v", err)
	}
	m.MatchLoop(context.Background(), fakeLogger{}, nil, nil, dispatcher, 2, gs,
		[]runtime.MatchData{fakeMatchData{userID: "finn", opCode: OpCodeClientAction, data: grabMsg}})

	if !sentOpCode(dispatcher, OpCodeGhostUpdate) {
		t.Fatal("expected a GHOST_UPDATE broadcast after GRAB_GHOST")
	}
	if gs.registry.Ghosts[ghostID].CarrierID != "finn" {
		t.Fatalf("expected finn to carry the ghost, got %q", gs.registry.Ghosts[ghostID].CarrierID)
	}

	dispatcher.sent = nil
	dropMsg, err := json.Marshal(GameMessage{Type: "DROP_GHOST"})
	if err != nil {
		t.Fatalf("marshal drop message: %v", err)
	}
	m.MatchLoop(context.Background(), fakeLogger{}, nil, nil, dispatcher, 3, gs,
		[]runtime.MatchData{fakeMatchData{userID: "finn", opCode: OpCodeClientAction, data: dropMsg}})

	if !sentOpCode(dispatcher, OpCodeGhostUpdate) {
		t.Fatal("expected a GHOST_UPDATE broadcast after DROP_GHOST")
	}
	if gs.registry.Ghosts[ghostID].CarrierID != "" {
		t.Fatal("expected ghost to be released after DROP_GHOST")
	}
}

func TestRespawnUpdatesRegistryPositionAndVelocity(t *testing.T) {
	_, gs := initTestMatch(t)
	body := gs.world.CreateCapsule(0.5, gs.cfg.Radius, physics.Vec3{X: 40, Y: 2, Z: 40}, physics.Identity(), physics.MotionDynamic, physics.ColliderParams{Density: 1})
	p := &gworld.Player{
		ID:         "gwen",
		Body:       body,
		SpawnPoint: gworld.Position{X: 0, Y: 5, Z: 0},
		Position:   gworld.Position{X: 40, Y: 2, Z: 40},
		Velocity:   gworld.Position{X: 9, Y: -3, Z: 1},
	}

	gs.respawn(p)

	if p.Position != p.SpawnPoint {
		t.Fatalf("expected registry position to reset to spawn point, got %+v", p.Position)
	}
	if p.Velocity != (gworld.Position{}) {
		t.Fatalf("expected registry velocity to reset to zero, got %+v", p.Velocity)
	}
}

func TestMatchLoopBroadcastsGameState(t *testing.T) {
	m, gs := initTestMatch(t)
	dispatcher := &fakeDispatcher{}

	m.MatchLoop(context.Background(), fakeLogger{}, nil, nil, dispatcher, 1, gs, nil)

	found := false
	for _, b := range dispatcher.sent {
		if b.opCode == OpCodeGameState {
			found = true
		}
	}
	if !found {
		t.Fatal("expected a GAME_STATE broadcast every tick")
	}
}
