package grid

// Board dimensions. Cell size is presentational and lives client-side.
const (
	Width  = 30
	Height = 30
)

// Pos is a cell on the board.
type Pos struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// Direction is a movement direction. Values match the wire protocol.
type Direction string

const (
	Up    Direction = "up"
	Down  Direction = "down"
	Left  Direction = "left"
	Right Direction = "right"
)

// Directions lists all four directions in a stable order.
var Directions = []Direction{Up, Down, Left, Right}

var vectors = map[Direction]Pos{
	Up:    {0, -1},
	Down:  {0, 1},
	Left:  {-1, 0},
	Right: {1, 0},
}

var opposites = map[Direction]Direction{
	Up:    Down,
	Down:  Up,
	Left:  Right,
	Right: Left,
}

// Valid reports whether d is one of the four directions.
func Valid(d Direction) bool {
	_, ok := vectors[d]
	return ok
}

// Vec returns the unit vector for d.
func Vec(d Direction) Pos {
	return vectors[d]
}

// Opposite returns the reverse of d.
func Opposite(d Direction) Direction {
	return opposites[d]
}

// Admissible reports whether changing from cur to next is allowed.
// Reversal onto the opposite direction is rejected.
func Admissible(cur, next Direction) bool {
	return Valid(next) && next != opposites[cur]
}

// Step computes the head position one cell from p in direction d.
// In wall mode the second return is false when the move leaves the board;
// otherwise coordinates wrap modulo the board size.
func Step(p Pos, d Direction, wallMode bool) (Pos, bool) {
	v := vectors[d]
	n := Pos{p.X + v.X, p.Y + v.Y}
	if wallMode {
		if n.X < 0 || n.X >= Width || n.Y < 0 || n.Y >= Height {
			return n, false
		}
		return n, true
	}
	n.X = ((n.X % Width) + Width) % Width
	n.Y = ((n.Y % Height) + Height) % Height
	return n, true
}

// Delta returns the signed per-axis distance from a to b. With wrapping
// enabled each axis takes the minimal wrapped delta.
func Delta(a, b Pos, wrap bool) (dx, dy int) {
	dx = b.X - a.X
	dy = b.Y - a.Y
	if wrap {
		if dx > Width/2 {
			dx -= Width
		} else if dx < -Width/2 {
			dx += Width
		}
		if dy > Height/2 {
			dy -= Height
		} else if dy < -Height/2 {
			dy += Height
		}
	}
	return dx, dy
}

// Manhattan returns the Manhattan distance from a to b, wrap-aware when
// wrap is true.
func Manhattan(a, b Pos, wrap bool) int {
	dx, dy := Delta(a, b, wrap)
	return abs(dx) + abs(dy)
}

// WallDistance returns the distance from p to the nearest board edge.
func WallDistance(p Pos) int {
	d := p.X
	if v := Width - 1 - p.X; v < d {
		d = v
	}
	if p.Y < d {
		d = p.Y
	}
	if v := Height - 1 - p.Y; v < d {
		d = v
	}
	return d
}

// Center returns the board center cell.
func Center() Pos {
	return Pos{Width / 2, Height / 2}
}

// StartAnchor returns the fixed spawn position and facing for join order i
// (mod 4): the four corner anchors.
func StartAnchor(i int) (Pos, Direction) {
	switch i % 4 {
	case 0:
		return Pos{5, 5}, Right
	case 1:
		return Pos{Width - 6, Height - 6}, Left
	case 2:
		return Pos{5, Height - 6}, Right
	default:
		return Pos{Width - 6, 5}, Left
	}
}

// Palette is the fixed player color palette, assigned by join order.
var Palette = []string{"#e74c3c", "#3498db", "#2ecc71", "#f39c12"}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
