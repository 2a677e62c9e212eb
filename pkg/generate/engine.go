// Package generate synthesizes text with a weighted random walk over the relation graph.
package generate

import (
	"database/sql"
	"fmt"
	"math"
	"strings"
	"unicode/utf8"

	"github.com/japaniel/chain/pkg/db"
	"github.com/japaniel/chain/pkg/logger"
	"github.com/japaniel/chain/pkg/metrics"
	"go.uber.org/zap"
)

const (
	// DefaultBranchLimit is how many of the heaviest outgoing relations each step picks from.
	DefaultBranchLimit = 2
	// DefaultFallback is returned when the graph has no sentence start.
	DefaultFallback = "..."

	// seedShare is the fraction of start relations, by rank, eligible as a seed.
	seedShare = 0.8
)

// Rand is the random source used for every choice. *math/rand.Rand satisfies it.
type Rand interface {
	Intn(n int) int
}

// Engine walks the relation graph.
type Engine struct {
	DB      *sql.DB
	Rand    Rand
	Logger  *zap.Logger
	Metrics *metrics.Collector
}

// NewEngine creates an Engine drawing from r.
func NewEngine(conn *sql.DB, r Rand) *Engine {
	return &Engine{DB: conn, Rand: r}
}

type transition struct{ from, to int64 }

// Generate returns text of roughly targetLength runes. It picks a seed among the most common
// sentence starts, then repeatedly appends one of the branchLimit heaviest successors of the
// tail term until the text reaches targetLength, the tail has no successor, or the tail is a
// likely sentence ending for the current length. fallback is returned when no seed exists.
func (e *Engine) Generate(targetLength, branchLimit int, fallback string) (string, error) {
	if branchLimit <= 0 {
		branchLimit = DefaultBranchLimit
	}
	log := logger.OrNop(e.Logger)

	starts, err := db.CountStarts(e.DB)
	if err != nil {
		return "", fmt.Errorf("count starts: %w", err)
	}
	head := int(math.Ceil(float64(starts) * seedShare))
	seeds, err := db.TopStartRelations(e.DB, head)
	if err != nil {
		return "", fmt.Errorf("load starts: %w", err)
	}
	if len(seeds) == 0 {
		log.Debug("no sentence start available, using fallback")
		e.Metrics.RecordGeneration(true)
		return fallback, nil
	}

	seedID := seeds[e.Rand.Intn(len(seeds))]
	seed, ok, err := db.GetRelation(e.DB, seedID)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", fmt.Errorf("start relation %d has no relation row", seedID)
	}
	first, err := e.surface(seed.FromID)
	if err != nil {
		return "", err
	}
	second, err := e.surface(seed.ToID)
	if err != nil {
		return "", err
	}

	var text strings.Builder
	text.WriteString(first)
	text.WriteString(second)
	tail := seed.ToID

	// used records every transition taken. Nothing reads it when choosing the next step.
	used := map[transition]struct{}{{seed.FromID, seed.ToID}: {}}

	for utf8.RuneCountInString(text.String()) < targetLength {
		next, err := db.OutgoingRelations(e.DB, tail, branchLimit)
		if err != nil {
			return "", fmt.Errorf("load successors of %d: %w", tail, err)
		}
		if len(next) == 0 {
			break
		}

		relID := next[e.Rand.Intn(len(next))]
		rel, ok, err := db.GetRelation(e.DB, relID)
		if err != nil {
			return "", err
		}
		if !ok {
			return "", fmt.Errorf("weighted relation %d has no relation row", relID)
		}
		used[transition{rel.FromID, rel.ToID}] = struct{}{}

		s, err := e.surface(rel.ToID)
		if err != nil {
			return "", err
		}
		text.WriteString(s)
		tail = rel.ToID

		stop, err := e.shouldStop(utf8.RuneCountInString(text.String()), targetLength, tail)
		if err != nil {
			return "", err
		}
		if stop {
			break
		}
	}

	log.Debug("generated text",
		zap.Int("target", targetLength),
		zap.Int("transitions", len(used)),
	)
	e.Metrics.RecordGeneration(false)
	return text.String(), nil
}

// shouldStop reports whether (length/target) * (terminal(tail)/avgTerminal) exceeds 1.
func (e *Engine) shouldStop(length, target int, tail int64) (bool, error) {
	avg, ok, err := db.AverageTerminal(e.DB)
	if err != nil {
		return false, fmt.Errorf("average terminal: %w", err)
	}
	if !ok || avg == 0 || target <= 0 {
		return false, nil
	}
	n, err := db.CounterValue(e.DB, db.Terminal, tail)
	if err != nil {
		return false, fmt.Errorf("terminal count: %w", err)
	}
	return (float64(length)/float64(target))*(float64(n)/avg) > 1.0, nil
}

func (e *Engine) surface(termID int64) (string, error) {
	t, ok, err := db.GetTerm(e.DB, termID)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", fmt.Errorf("relation references missing term %d", termID)
	}
	return t.Surface, nil
}
