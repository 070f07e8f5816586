package core

import "testing"

func TestMovedBeyond(t *testing.T) {
	tests := []struct {
		a, b Vec3
		want bool
	}{
		{Vec3{0, 0, 0}, Vec3{512, 0, 0}, false},
		{Vec3{0, 0, 0}, Vec3{512.5, 0, 0}, true},
		{Vec3{0, 0, 0}, Vec3{0, -600, 0}, true},
		{Vec3{100, 100, 100}, Vec3{400, 400, 400}, false},
	}
	for _, tt := range tests {
		if got := MovedBeyond(tt.a, tt.b, TeleportThreshold); got != tt.want {
			t.Errorf("MovedBeyond(%v, %v) = %v, want %v", tt.a, tt.b, got, tt.want)
		}
	}
}

func TestLerpAngleTakesShortPath(t *testing.T) {
	if got := LerpAngle(350, 0.5, 10); got != 360 {
		t.Fatalf("LerpAngle(350, .5, 10) = %v", got)
	}
	if got := LerpAngle(10, 0.5, 350); got != 0 {
		t.Fatalf("LerpAngle(10, .5, 350) = %v", got)
	}
}

func TestLinearMovement(t *testing.T) {
	s := EntityState{
		Origin2:                 Vec3{100, 0, 0},
		LinearMovement:          true,
		LinearMovementTimeStamp: 1000,
		LinearMovementVelocity:  Vec3{1000, 0, 500},
	}
	origin, moveTime := LinearMovement(&s, 1050)
	if moveTime != 50 {
		t.Fatalf("moveTime = %d", moveTime)
	}
	if !origin.ApproxEqualThreshold(Vec3{150, 0, 25}, 1e-3) {
		t.Fatalf("origin = %v", origin)
	}

	_, moveTime = LinearMovement(&s, 990)
	if moveTime != -10 {
		t.Fatalf("moveTime before launch = %d", moveTime)
	}
}

func TestWorldLifecycle(t *testing.T) {
	w := NewWorld()
	w.Step(0)

	ent := w.SpawnPlayer(2)
	if ent == nil || ent.Number != 3 || !ent.Teleported {
		t.Fatalf("SpawnPlayer = %+v", ent)
	}
	w.Step(50)
	if w.PlayerEntity(2).Teleported {
		t.Fatal("teleport flag must last one frame")
	}

	cmd := UserCmd{ServerTimeStamp: 60, Msec: 16, Buttons: ButtonAttack, ForwardMove: 127}
	if !ApplyUsercmd(w, 2, &cmd, 0) {
		t.Fatal("attack did not fire")
	}
	cmd.ServerTimeStamp = 70
	if ApplyUsercmd(w, 2, &cmd, 0) {
		t.Fatal("fired again before FireInterval")
	}

	var rockets, events int
	for _, e := range w.Entities() {
		switch {
		case e.Type == ETRocket:
			rockets++
			if !e.LinearMovement || e.OwnerNum != 3 {
				t.Errorf("rocket = %+v", e)
			}
		case IsEventEntity(&e):
			events++
		}
	}
	if rockets != 1 || events != 1 {
		t.Fatalf("rockets=%d events=%d", rockets, events)
	}
	for _, e := range w.Baselines() {
		if IsEventEntity(&e) {
			t.Fatal("event entity in baselines")
		}
	}

	// 事件只存活一帧
	w.Step(100)
	for _, e := range w.Entities() {
		if IsEventEntity(&e) {
			t.Fatal("event survived a second frame")
		}
	}

	// 抛射物到期后释放
	w.Step(60 + ProjectileLifetime + 1)
	for _, e := range w.Entities() {
		if e.Type == ETRocket {
			t.Fatal("rocket outlived its lifetime")
		}
	}

	w.RemovePlayer(2)
	if w.PlayerEntity(2) != nil {
		t.Fatal("player still present")
	}
}

func TestWorldMoverIsBrushModel(t *testing.T) {
	w := NewWorld()
	var found bool
	for _, e := range w.Entities() {
		if IsBrushModel(e.Model) {
			found = true
			before := e.Origin
			w.Step(MoverPeriodMsec / 4)
			if w.Entity(e.Number).Origin == before {
				t.Fatal("mover did not move")
			}
		}
	}
	if !found {
		t.Fatal("no brush model entity in a new world")
	}
}
