/*
	Package sampler draws random content-bearing tiles from a population of slides.
*/
package sampler

import (
	"fmt"
	"math/rand"

	"github.com/histion/slidetile/slide"
)

// Coord identifies one tile of one slide.
type Coord struct {
	ID    slide.SlideID
	X, Y  int
	Level int
}

func (c Coord) String() string {
	return fmt.Sprintf("[%s, %d, %d, level %d]", c.ID, c.X, c.Y, c.Level)
}

// RandomCoord returns a uniformly drawn tile position with 0 <= x < maxX and
// 0 <= y < maxY.  Non-positive bounds yield (0, 0).
func RandomCoord(rng *rand.Rand, maxX, maxY int) (x, y int) {
	if maxX <= 0 || maxY <= 0 {
		return 0, 0
	}
	return rng.Intn(maxX), rng.Intn(maxY)
}
