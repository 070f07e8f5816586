package bt

import "testing"

type counter struct{ ticks []string }

func leaf(name string, status Status) Node[*counter] {
	return &Action[*counter]{Do: func(c *counter) Status {
		c.ticks = append(c.ticks, name)
		return status
	}}
}

func TestSelectorStopsAtFirstNonFailure(t *testing.T) {
	c := &counter{}
	tree := &Selector[*counter]{Children: []Node[*counter]{
		leaf("a", StatusFailure),
		leaf("b", StatusRunning),
		leaf("c", StatusSuccess),
	}}
	if got := tree.Tick(c); got != StatusRunning {
		t.Fatalf("status = %v", got)
	}
	if len(c.ticks) != 2 || c.ticks[1] != "b" {
		t.Fatalf("ticks = %v", c.ticks)
	}
}

func TestSequenceStopsAtFirstNonSuccess(t *testing.T) {
	c := &counter{}
	tree := &Sequence[*counter]{Children: []Node[*counter]{
		leaf("a", StatusSuccess),
		&Condition[*counter]{Check: func(*counter) bool { return false }},
		leaf("c", StatusSuccess),
	}}
	if got := tree.Tick(c); got != StatusFailure {
		t.Fatalf("status = %v", got)
	}
	if len(c.ticks) != 1 {
		t.Fatalf("ticks = %v", c.ticks)
	}
}

func TestNilFuncsFail(t *testing.T) {
	if (&Action[int]{}).Tick(0) != StatusFailure {
		t.Fatal("nil action should fail")
	}
	if (&Condition[int]{}).Tick(0) != StatusFailure {
		t.Fatal("nil condition should fail")
	}
}
