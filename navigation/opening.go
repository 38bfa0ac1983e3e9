package navigation

import (
	"sync"

	"github.com/corentings/chess/v2/opening"
)

var (
	bookOnce sync.Once
	book     *opening.BookECO
)

func ecoBook() *opening.BookECO {
	bookOnce.Do(func() {
		book = opening.NewBookECO()
	})
	return book
}

// Opening names the most specific ECO opening the mainline passes through.
// Both strings are empty when the moves match no known opening.
func (c *Cursor) Opening() (code, title string) {
	if c.Len() == 0 {
		return "", ""
	}
	b := ecoBook()
	if b == nil {
		return "", ""
	}
	if eco := b.Find(c.record.Moves()); eco != nil {
		return eco.Code(), eco.Title()
	}
	return "", ""
}
