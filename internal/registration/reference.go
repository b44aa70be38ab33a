package registration

import (
	"encoding/hex"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Generator synthesises reference identifiers of the form
// PREFIX-<last 6 digits of the unix millisecond clock>-<8 uppercase hex>.
type Generator struct {
	prefix string
	now    func() time.Time
	rand   io.Reader
}

// NewGenerator returns a generator using the wall clock and crypto randomness.
func NewGenerator(prefix string) *Generator {
	if prefix == "" {
		prefix = "GD2025"
	}
	return &Generator{prefix: prefix, now: time.Now}
}

// Next returns a fresh identifier. Uniqueness is enforced by storage, not here.
func (g *Generator) Next() (string, error) {
	var (
		id  uuid.UUID
		err error
	)
	if g.rand != nil {
		id, err = uuid.NewRandomFromReader(g.rand)
	} else {
		id, err = uuid.NewRandom()
	}
	if err != nil {
		return "", fmt.Errorf("reference entropy: %w", err)
	}
	ms := g.now().UnixMilli() % 1_000_000
	// the first four bytes of a v4 uuid carry no version bits
	suffix := strings.ToUpper(hex.EncodeToString(id[:4]))
	return fmt.Sprintf("%s-%06d-%s", g.prefix, ms, suffix), nil
}
