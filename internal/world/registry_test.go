package world

import "testing"

func TestNewPlayerIDUnique(t *testing.T) {
	reg := NewRegistry(nil, 42)
	seen := make(map[string]bool)
	for i := 0; i < 500; i++ {
		id := reg.NewPlayerID()
		if seen[id] {
			t.Fatalf("duplicate player id generated: %s", id)
		}
		seen[id] = true
		reg.AddPlayer(&Player{ID: id})
	}
}

func TestSequentialIDsIncrement(t *testing.T) {
	reg := NewRegistry(nil, 1)
	if got := reg.NewVehicleID(); got != "vehicle_1" {
		t.Fatalf("expected vehicle_1, got %s", got)
	}
	if got := reg.NewVehicleID(); got != "vehicle_2" {
		t.Fatalf("expected vehicle_2, got %s", got)
	}
	if got := reg.NewGhostID(); got != "ghost_1" {
		t.Fatalf("expected ghost_1, got %s", got)
	}
	if got := reg.NewProjectileID(); got != "proj_1" {
		t.Fatalf("expected proj_1, got %s", got)
	}
}

func TestAddRemoveProjectileLockstep(t *testing.T) {
	// Projectile.Body is left as its zero value; World.RemoveBody treats a
	// zero BodyHandle as "nothing to destroy" and returns before touching
	// the receiver, so a nil *physics.World is safe here.
	reg := NewRegistry(nil, 7)
	proj := &Projectile{ID: "proj_1"}
	reg.AddProjectile(proj)
	if _, ok := reg.Projectiles["proj_1"]; !ok {
		t.Fatal("expected projectile to be registered")
	}
	reg.RemoveProjectile("proj_1")
	if _, ok := reg.Projectiles["proj_1"]; ok {
		t.Fatal("expected projectile to be removed")
	}
	// Removing an id that was never registered must be a no-op, not a panic.
	reg.RemoveProjectile("does-not-exist")
}
