package grid

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStepWraps(t *testing.T) {
	p, ok := Step(Pos{0, 5}, Left, false)
	assert.True(t, ok)
	assert.Equal(t, Pos{Width - 1, 5}, p)

	p, ok = Step(Pos{Width - 1, 5}, Right, false)
	assert.True(t, ok)
	assert.Equal(t, Pos{0, 5}, p)

	p, ok = Step(Pos{5, 0}, Up, false)
	assert.True(t, ok)
	assert.Equal(t, Pos{5, Height - 1}, p)

	p, ok = Step(Pos{5, Height - 1}, Down, false)
	assert.True(t, ok)
	assert.Equal(t, Pos{5, 0}, p)
}

func TestStepWallMode(t *testing.T) {
	_, ok := Step(Pos{0, 5}, Left, true)
	assert.False(t, ok)

	_, ok = Step(Pos{5, Height - 1}, Down, true)
	assert.False(t, ok)

	p, ok := Step(Pos{0, 5}, Right, true)
	assert.True(t, ok)
	assert.Equal(t, Pos{1, 5}, p)
}

func TestAdmissibleRejectsReversal(t *testing.T) {
	for _, d := range Directions {
		assert.False(t, Admissible(d, Opposite(d)))
		assert.True(t, Admissible(d, d))
	}
	assert.True(t, Admissible(Up, Left))
	assert.False(t, Admissible(Up, "diagonal"))
}

func TestDeltaWrapMinimality(t *testing.T) {
	dx, dy := Delta(Pos{1, 1}, Pos{Width - 2, Height - 2}, true)
	assert.Equal(t, -3, dx)
	assert.Equal(t, -3, dy)

	dx, dy = Delta(Pos{1, 1}, Pos{Width - 2, Height - 2}, false)
	assert.Equal(t, Width-3, dx)
	assert.Equal(t, Height-3, dy)

	// Exactly half the board stays positive.
	dx, _ = Delta(Pos{0, 0}, Pos{Width / 2, 0}, true)
	assert.Equal(t, Width/2, dx)
}

func TestManhattan(t *testing.T) {
	assert.Equal(t, 7, Manhattan(Pos{2, 3}, Pos{6, 6}, false))
	assert.Equal(t, 2, Manhattan(Pos{0, 0}, Pos{Width - 1, Height - 1}, true))
}

func TestWallDistance(t *testing.T) {
	assert.Equal(t, 0, WallDistance(Pos{0, 10}))
	assert.Equal(t, 0, WallDistance(Pos{10, Height - 1}))
	assert.Equal(t, 5, WallDistance(Pos{5, 14}))
	assert.Equal(t, 14, WallDistance(Center()))
}

func TestStartAnchorsDistinct(t *testing.T) {
	seen := map[Pos]bool{}
	for i := 0; i < 4; i++ {
		p, d := StartAnchor(i)
		assert.False(t, seen[p], "anchor %d reused position %v", i, p)
		seen[p] = true
		assert.True(t, Valid(d))
		// Facing points inward so a spawned snake has room to move.
		n, ok := Step(p, d, true)
		assert.True(t, ok)
		assert.Greater(t, WallDistance(n), WallDistance(p)-1)
	}
	p0, _ := StartAnchor(0)
	p4, _ := StartAnchor(4)
	assert.Equal(t, p0, p4)
}
