package cgame

import (
	"errors"
	"strings"
	"testing"

	"github.com/go-gl/mathgl/mgl32"

	"snapsync/pkg/core"
	"snapsync/pkg/snapshot"
)

func newTestState(opts Options) *State {
	s := New(opts, nil)
	s.SetPrecacheDone(true)
	return s
}

func testFrame(num, serverTime int64, ents ...core.EntityState) *snapshot.Frame {
	return &snapshot.Frame{
		ServerFrame:  num,
		ServerTime:   serverTime,
		Valid:        true,
		PlayerStates: []core.PlayerState{{PlayerNum: 0, POVNum: 1}},
		Entities:     ents,
	}
}

func genericAt(num int, x float32) core.EntityState {
	return core.EntityState{Number: num, Type: core.ETGeneric, Model: 10, Origin: core.Vec3{x, 0, 0}}
}

func near(a, b float32) bool {
	return mgl32.FloatEqualThreshold(a, b, 1e-5)
}

func mustSnap(t *testing.T, s *State, frame, lerp *snapshot.Frame) {
	t.Helper()
	ready, err := s.NewFrameSnap(frame, lerp)
	if err != nil {
		t.Fatalf("NewFrameSnap(%d): %v", frame.ServerFrame, err)
	}
	if !ready {
		t.Fatalf("NewFrameSnap(%d) not ready", frame.ServerFrame)
	}
}

func genericAtOrigin(num int, origin core.Vec3) core.EntityState {
	e := genericAt(num, 0)
	e.Origin = origin
	return e
}

func TestTeleportThresholdCollapsesPrev(t *testing.T) {
	tests := []struct {
		name     string
		next     core.EntityState
		wantPrev core.Vec3
	}{
		{"small move interpolates", genericAt(70, 100), core.Vec3{}},
		{"x exactly 512 interpolates", genericAt(70, 512), core.Vec3{}},
		{"x 512.5 collapses", genericAt(70, 512.5), core.Vec3{512.5, 0, 0}},
		{"jump beyond threshold", genericAt(70, 600), core.Vec3{600, 0, 0}},
		{"y exactly -512 interpolates", genericAtOrigin(70, core.Vec3{0, -512, 0}), core.Vec3{}},
		{"y -600 collapses", genericAtOrigin(70, core.Vec3{0, -600, 0}), core.Vec3{0, -600, 0}},
		{"z exactly 512 interpolates", genericAtOrigin(70, core.Vec3{0, 0, 512}), core.Vec3{}},
		{"z 512.5 collapses", genericAtOrigin(70, core.Vec3{0, 0, 512.5}), core.Vec3{0, 0, 512.5}},
		{"all axes at 512 interpolates", genericAtOrigin(70, core.Vec3{512, 512, 512}), core.Vec3{}},
		{"teleport flag", func() core.EntityState {
			e := genericAt(70, 10)
			e.Teleported = true
			return e
		}(), core.Vec3{10, 0, 0}},
		{"model change", func() core.EntityState {
			e := genericAt(70, 10)
			e.Model = 11
			return e
		}(), core.Vec3{10, 0, 0}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestState(Options{})
			f1 := testFrame(1, 1000, genericAt(70, 0))
			f2 := testFrame(2, 1050, tt.next)
			mustSnap(t, s, f1, nil)
			mustSnap(t, s, f2, f1)

			cent := s.Entity(70)
			if cent.Prev.Origin != tt.wantPrev {
				t.Fatalf("prev = %v, want %v", cent.Prev.Origin, tt.wantPrev)
			}
			if cent.Current.Origin != tt.next.Origin {
				t.Fatalf("current = %v", cent.Current.Origin)
			}
		})
	}
}

func TestVelocityEstimate(t *testing.T) {
	s := newTestState(Options{})
	f1 := testFrame(1, 1000, genericAt(70, 0))
	f2 := testFrame(2, 1050, genericAt(70, 10))
	mustSnap(t, s, f1, nil)
	mustSnap(t, s, f2, f1)
	if v := s.Entity(70).Velocity; v != (core.Vec3{200, 0, 0}) {
		t.Fatalf("velocity = %v", v)
	}

	// 两帧时间相同时按快照间隔计算
	s = newTestState(Options{SnapFrameTime: 100})
	f2.ServerTime = 1000
	mustSnap(t, s, f1, nil)
	mustSnap(t, s, f2, f1)
	if v := s.Entity(70).Velocity; v != (core.Vec3{100, 0, 0}) {
		t.Fatalf("velocity with degenerate snap time = %v", v)
	}
}

func TestPlayerVelocityFromOrigin2(t *testing.T) {
	s := newTestState(Options{ExtrapolationTime: 50})
	player := core.EntityState{Number: 5, Type: core.ETPlayer, Team: core.TeamPlayers, Origin2: core.Vec3{320, 0, 0}}
	f1 := testFrame(1, 1000, player)
	player.Origin = core.Vec3{16, 0, 0}
	f2 := testFrame(2, 1050, player)
	mustSnap(t, s, f1, nil)
	mustSnap(t, s, f2, f1)

	cent := s.Entity(5)
	if cent.Velocity != (core.Vec3{320, 0, 0}) || !cent.CanExtrapolate || !cent.CanExtrapolatePrev {
		t.Fatalf("cent = %+v", cent)
	}
}

func TestBrushModelNeverExtrapolates(t *testing.T) {
	for _, typ := range []core.EntityType{core.ETGeneric, core.ETPlayer, core.ETGrenade, core.ETCorpse} {
		s := newTestState(Options{ExtrapolationTime: 50})
		e := core.EntityState{Number: 80, Type: typ, Team: core.TeamPlayers, Model: core.ModelBrushFlag | 1}
		mustSnap(t, s, testFrame(1, 1000, e), nil)
		if s.Entity(80).CanExtrapolate {
			t.Errorf("%s brush model can extrapolate", typ)
		}

		e.Model = 10
		mustSnap(t, s, testFrame(2, 1050, e), testFrame(1, 1000, e))
		if !s.Entity(80).CanExtrapolate {
			t.Errorf("%s non-brush model cannot extrapolate", typ)
		}
	}

	s := newTestState(Options{ExtrapolationTime: 50})
	mustSnap(t, s, testFrame(1, 1000, core.EntityState{Number: 80, Type: core.ETDecal}), nil)
	if s.Entity(80).CanExtrapolate {
		t.Error("decal can extrapolate")
	}
}

func TestEventEntityHasNoInterpolation(t *testing.T) {
	s := newTestState(Options{ExtrapolationTime: 50})
	ev := core.EntityState{Number: 90, Type: core.ETEvent, Origin: core.Vec3{1, 2, 3}}
	mustSnap(t, s, testFrame(1, 1000, ev), nil)
	cent := s.Entity(90)
	if cent.CanExtrapolate || cent.Velocity != (core.Vec3{}) || cent.Current.Origin != ev.Origin {
		t.Fatalf("event cent = %+v", cent)
	}
	if !s.Present(cent) {
		t.Fatal("event entity not present")
	}
}

func linearRocket(owner int, timeDelta int32) core.EntityState {
	return core.EntityState{
		Number:                  100,
		Type:                    core.ETRocket,
		Model:                   core.ModelRocket,
		OwnerNum:                owner,
		Origin:                  core.Vec3{999, 999, 999},
		Origin2:                 core.Vec3{0, 0, 0},
		LinearMovement:          true,
		LinearMovementTimeStamp: 1000,
		LinearMovementTimeDelta: timeDelta,
		LinearMovementVelocity:  core.Vec3{1000, 0, 0},
	}
}

func TestLinearProjectileAnalyticPosition(t *testing.T) {
	tests := []struct {
		name      string
		pov       int
		timeDelta int32
		at        int64
		wantX     float32
		drawable  bool
	}{
		{"own view ignores antilag", 1, 20, 1050, 50, true},
		{"chasing applies antilag", 3, 20, 1050, 70, true},
		{"slightly before launch", 3, 0, 970, -30, true},
		{"too far before launch", 3, 0, 940, -60, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestState(Options{PlayerNum: 0, ProjectileAntilag: 1})
			f := testFrame(1, 1050, linearRocket(5, tt.timeDelta))
			f.PlayerStates[0] = core.PlayerState{PlayerNum: tt.pov - 1, POVNum: tt.pov}
			mustSnap(t, s, f, nil)
			s.LerpEntities(tt.at)

			cent := s.Entity(100)
			want := core.Vec3{tt.wantX, 0, 0}
			if !cent.Interpolated.Origin.ApproxEqualThreshold(want, 1e-3) {
				t.Fatalf("origin = %v, want %v", cent.Interpolated.Origin, want)
			}
			if cent.LinearProjectileCanDraw != tt.drawable {
				t.Fatalf("drawable = %v", cent.LinearProjectileCanDraw)
			}
			var listed bool
			for _, d := range s.Drawables() {
				listed = listed || d.Number == 100
			}
			if listed != tt.drawable {
				t.Fatalf("Drawables listed = %v", listed)
			}
		})
	}
}

func TestLinearProjectileKeepsPrevForSameMovement(t *testing.T) {
	s := newTestState(Options{})
	rocket := linearRocket(5, 0)
	f1 := testFrame(1, 1000, rocket)
	f2 := testFrame(2, 1050, rocket)
	mustSnap(t, s, f1, nil)
	mustSnap(t, s, f2, f1)
	cent := s.Entity(100)
	if cent.Velocity != rocket.LinearMovementVelocity {
		t.Fatalf("velocity = %v", cent.Velocity)
	}
	if cent.Prev.Origin == rocket.Origin {
		t.Fatal("prev was reset although movement is unchanged")
	}

	rocket.LinearMovementTimeStamp = 1040
	f3 := testFrame(3, 1100, rocket)
	mustSnap(t, s, f3, f2)
	if s.Entity(100).Prev.Origin != rocket.Origin {
		t.Fatal("prev must restart when the movement changes")
	}
}

func TestMicroSmoothResetOnTeleport(t *testing.T) {
	s := newTestState(Options{ExtrapolationTime: 100})
	f1 := testFrame(1, 1000, genericAt(70, 0))
	f2 := testFrame(2, 1050, genericAt(70, 10))
	mustSnap(t, s, f1, nil)
	mustSnap(t, s, f2, f1)

	for i, now := range []int64{1060, 1070, 1080} {
		s.LerpEntities(now)
		if want := min(2, i+1); s.Entity(70).MicroSmooth != want {
			t.Fatalf("tick %d microSmooth = %d, want %d", i, s.Entity(70).MicroSmooth, want)
		}
	}

	teleported := genericAt(70, 20)
	teleported.Teleported = true
	mustSnap(t, s, testFrame(3, 1100, teleported), f2)
	if ms := s.Entity(70).MicroSmooth; ms != 0 {
		t.Fatalf("microSmooth after teleport = %d", ms)
	}
}

func TestPlainInterpolation(t *testing.T) {
	s := newTestState(Options{})
	f1 := testFrame(1, 1000, genericAt(70, 0))
	f2 := testFrame(2, 1050, genericAt(70, 10))
	mustSnap(t, s, f1, nil)
	mustSnap(t, s, f2, f1)

	s.LerpEntities(1025)
	if v := s.View(); v.LerpFrac != 0.5 || v.XerpTime != 0 {
		t.Fatalf("view = %+v", v)
	}
	if x := s.Entity(70).Interpolated.Origin[0]; x != 5 {
		t.Fatalf("interpolated x = %v", x)
	}

	s.LerpEntities(2000)
	if s.View().LerpFrac != 1 {
		t.Fatalf("lerpfrac not clamped: %v", s.View().LerpFrac)
	}
}

func TestViewTimingExtrapolation(t *testing.T) {
	s := newTestState(Options{ExtrapolationTime: 20})
	mustSnap(t, s, testFrame(2, 1050), testFrame(1, 1000))

	s.LerpEntities(1060)
	v := s.View()
	if !near(v.LerpFrac, 0.8) || !near(v.XerpTime, 0.01) || !near(v.OldXerpTime, 0.06) || !near(v.XerpSmoothFrac, 0.5) {
		t.Fatalf("view ahead = %+v", v)
	}

	// 外推时间不能落后超过 extrapolationTime
	s.LerpEntities(1000)
	if v := s.View(); !near(v.XerpTime, -0.02) || v.XerpSmoothFrac != 0 {
		t.Fatalf("view behind = %+v", v)
	}
}

func TestViewerUsesPredictedOrigin(t *testing.T) {
	s := newTestState(Options{})
	f := testFrame(1, 1000, core.EntityState{Number: 1, Type: core.ETPlayer, Team: core.TeamPlayers})
	f.PlayerStates[0].PMove.Origin = core.Vec3{7, 8, 9}
	mustSnap(t, s, f, nil)
	s.LerpEntities(1000)
	if o := s.Entity(1).Interpolated.Origin; o != (core.Vec3{7, 8, 9}) {
		t.Fatalf("viewer origin = %v", o)
	}
}

func TestMultiviewPOV(t *testing.T) {
	spectator := func(n int) core.PlayerState {
		return core.PlayerState{PlayerNum: n, POVNum: n + 1, PMove: core.PlayerMove{Type: core.PMSpectator}}
	}
	player := func(n int) core.PlayerState {
		return core.PlayerState{PlayerNum: n, POVNum: n + 1}
	}

	tests := []struct {
		name    string
		follow  int
		players []core.PlayerState
		want    int
	}{
		{"target present", 7, []core.PlayerState{spectator(0), player(3), player(7)}, 7},
		{"closest non-spectator", 4, []core.PlayerState{spectator(0), player(3), player(7)}, 3},
		{"target became spectator", 3, []core.PlayerState{spectator(3), player(9)}, 9},
		{"only spectators", 4, []core.PlayerState{spectator(0), spectator(5)}, 5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestState(Options{DemoPlaying: true})
			s.SetMultiviewPlayerNum(tt.follow)
			f := testFrame(1, 1000)
			f.MultiPOV = true
			f.PlayerStates = tt.players
			mustSnap(t, s, f, nil)

			if s.MultiviewPlayerNum() != tt.want {
				t.Fatalf("following %d, want %d", s.MultiviewPlayerNum(), tt.want)
			}
			ps := s.PredictedPlayerState()
			if ps.PlayerNum != tt.want || ps.PMove.Flags&core.PMFNoPrediction == 0 {
				t.Fatalf("predicted = %+v", ps)
			}
			if !ps.IsSpectator() && ps.PMove.Type != core.PMChasecam {
				t.Fatalf("pm type = %v", ps.PMove.Type)
			}
		})
	}
}

func TestOldFrameFallsBackToCurrentPOV(t *testing.T) {
	s := newTestState(Options{})
	s.SetMultiviewPlayerNum(3)
	old := testFrame(1, 1000)
	old.MultiPOV = true
	old.PlayerStates = []core.PlayerState{{PlayerNum: 1, POVNum: 2}}
	cur := testFrame(2, 1050)
	cur.MultiPOV = true
	cur.PlayerStates = []core.PlayerState{{PlayerNum: 3, POVNum: 4, Health: 50}}
	mustSnap(t, s, cur, old)
	if s.OldFrame().PlayerState.PlayerNum != 3 || s.OldFrame().PlayerState.Health != 50 {
		t.Fatalf("old frame player = %+v", s.OldFrame().PlayerState)
	}
}

func TestGameCommandTargeting(t *testing.T) {
	s := newTestState(Options{})
	f := testFrame(1, 1000)
	f.PlayerStates[0] = core.PlayerState{PlayerNum: 2, POVNum: 3}

	var mine, other snapshot.GameCommand
	mine.Text = `cp "for player 2"`
	mine.SetTarget(2)
	other.Text = "cp for-player-5"
	other.SetTarget(5)
	f.GameCommands = []snapshot.GameCommand{
		{Text: "pr hello", All: true},
		mine,
		other,
		{Text: "nosuchcommand", All: true},
	}
	mustSnap(t, s, f, nil)

	msgs := s.TakeMessages()
	want := []Message{{"pr", "hello"}, {"cp", "for player 2"}}
	if len(msgs) != len(want) {
		t.Fatalf("messages = %+v", msgs)
	}
	for i := range want {
		if msgs[i] != want[i] {
			t.Errorf("message %d = %+v, want %+v", i, msgs[i], want[i])
		}
	}
	if len(s.TakeMessages()) != 0 {
		t.Fatal("TakeMessages did not drain")
	}
}

func TestNotReady(t *testing.T) {
	s := New(Options{}, nil)
	ready, err := s.NewFrameSnap(testFrame(1, 1000, genericAt(70, 0)), nil)
	if err != nil || ready {
		t.Fatalf("before precache: ready=%v err=%v", ready, err)
	}
	// 实体记录仍然更新
	if !s.Present(s.Entity(70)) {
		t.Fatal("entity not recorded before precache")
	}

	s.SetPrecacheDone(true)
	f := testFrame(2, 1050, genericAt(70, 0))
	f.Valid = false
	f.GameCommands = []snapshot.GameCommand{{Text: "pr x", All: true}}
	ready, err = s.NewFrameSnap(f, nil)
	if err != nil || ready {
		t.Fatalf("invalid frame: ready=%v err=%v", ready, err)
	}
	if len(s.TakeMessages()) != 0 || s.Started() {
		t.Fatal("invalid frame dispatched commands")
	}
}

func TestLaserBeamRequiresOwner(t *testing.T) {
	beam := core.EntityState{Number: 200, Type: core.ETLaserBeam, OwnerNum: 9, Origin2: core.Vec3{0, 0, 100}}

	s := newTestState(Options{})
	_, err := s.NewFrameSnap(testFrame(1, 1000, beam), nil)
	if !errors.Is(err, ErrLaserBeamOwner) {
		t.Fatalf("err = %v", err)
	}

	s = newTestState(Options{})
	owner := core.EntityState{Number: 9, Type: core.ETPlayer, Team: core.TeamPlayers}
	mustSnap(t, s, testFrame(1, 1000, owner, beam), nil)
	if lb := s.Entity(9).LaserBeam; lb.Point != beam.Origin2 || lb.Until != 10 {
		t.Fatalf("owner laser beam = %+v", lb)
	}
}

func TestUnknownEntityType(t *testing.T) {
	s := newTestState(Options{})
	_, err := s.NewFrameSnap(testFrame(1, 1000, core.EntityState{Number: 3, Type: core.EntityTypeCount}), nil)
	if !errors.Is(err, ErrUnknownEntityType) {
		t.Fatalf("err = %v", err)
	}
}

type fakeModels map[uint32]CModel

func (m fakeModels) FindModel(model uint32) (CModel, bool) {
	cm, ok := m[model]
	return cm, ok
}

func TestCModelForEntity(t *testing.T) {
	brush := core.ModelBrushFlag | 1
	s := newTestState(Options{Models: fakeModels{
		brush: {Kind: CModelBrush, Mins: core.Vec3{-64, -64, 0}, Maxs: core.Vec3{64, 64, 16}},
	}})
	f := testFrame(1, 1000,
		core.EntityState{Number: 2, Type: core.ETPlayer, Team: core.TeamPlayers},
		core.EntityState{Number: 65, Type: core.ETGeneric, Model: brush, Origin: core.Vec3{0, 0, 64}},
		core.EntityState{Number: 66, Type: core.ETGeneric, Radius: 8},
	)
	mustSnap(t, s, f, nil)

	tests := []struct {
		number int
		kind   CModelKind
		ok     bool
	}{
		{2, CModelOctagon, true},
		{65, CModelBrush, true},
		{66, CModelBox, true},
		{67, 0, false},
		{-1, 0, false},
		{core.MaxEdicts, 0, false},
	}
	for _, tt := range tests {
		cm, ok := s.CModelForEntity(tt.number)
		if ok != tt.ok || cm.Kind != tt.kind {
			t.Errorf("CModelForEntity(%d) = %+v, %v", tt.number, cm, ok)
		}
	}

	solids := s.Solids()
	if len(solids) != 2 || solids[0] != 2 || solids[1] != 65 {
		t.Fatalf("solids = %v", solids)
	}

	s.LerpEntities(1000)
	if origin, _ := s.Spatialize(65); origin != (core.Vec3{0, 0, 72}) {
		t.Fatalf("brush spatialization = %v", origin)
	}

	// 下一帧不再包含实体 2
	mustSnap(t, s, testFrame(2, 1050), f)
	if _, ok := s.CModelForEntity(2); ok {
		t.Fatal("absent entity still has a collision model")
	}
}

func TestSpikesPhaseSounds(t *testing.T) {
	var sounds []string
	s := newTestState(Options{Sound: func(_ int, name string) { sounds = append(sounds, name) }})
	spikes := core.EntityState{Number: 120, Type: core.ETSpikes, LinearMovementTimeStamp: 1000}

	frames := []*snapshot.Frame{
		testFrame(1, 950, spikes),
		testFrame(2, 1000, spikes),
		testFrame(3, 2000, spikes),
		testFrame(4, 2050, spikes),
	}
	mustSnap(t, s, frames[0], nil)
	for i := 1; i < len(frames); i++ {
		mustSnap(t, s, frames[i], frames[i-1])
	}
	want := []string{"sounds/spikes/arm", "sounds/spikes/retract", "sounds/spikes/glint"}
	if strings.Join(sounds, ",") != strings.Join(want, ",") {
		t.Fatalf("sounds = %v", sounds)
	}

	// 触发 1050 毫秒后完全伸出
	s.LerpEntities(2050)
	if z := s.Entity(120).Interpolated.Origin[2]; z != spikesExtended {
		t.Fatalf("spikes z = %v", z)
	}
}

func TestDemoVisibilityFilter(t *testing.T) {
	s := newTestState(Options{DemoPlaying: true})
	f := testFrame(1, 1000,
		core.EntityState{Number: 70, Type: core.ETGeneric, SVFlags: core.SVFOnlyTeam, Team: core.TeamBeta},
		core.EntityState{Number: 71, Type: core.ETGeneric, SVFlags: core.SVFOnlyOwner, OwnerNum: 1},
		core.EntityState{Number: 72, Type: core.ETGeneric, SVFlags: core.SVFOwnerAndChasers, OwnerNum: 4},
	)
	f.PlayerStates[0] = core.PlayerState{PlayerNum: 0, POVNum: 1, Team: core.TeamAlpha}
	mustSnap(t, s, f, nil)
	s.LerpEntities(1000)

	got := map[int]bool{}
	for _, d := range s.Drawables() {
		got[d.Number] = true
	}
	if got[70] || !got[71] || got[72] {
		t.Fatalf("drawables = %v", got)
	}
}

func TestEntitiesBounds(t *testing.T) {
	table := NewEntities(8)
	if _, err := table.Num(8); err == nil {
		t.Fatal("Num accepted capacity")
	}
	if table.Lookup(-1) != nil {
		t.Fatal("Lookup accepted negative index")
	}
	num, err := table.Num(7)
	if err != nil || table.At(num).ServerFrame != notPresent {
		t.Fatalf("Num(7) = %v, %v", num, err)
	}

	s := newTestState(Options{})
	if _, err := s.NewFrameSnap(testFrame(1, 1000, core.EntityState{Number: core.MaxEdicts}), nil); err == nil {
		t.Fatal("entity number beyond the table accepted")
	}
}
