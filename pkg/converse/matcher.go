// Package converse picks a past reply that fits the current conversation.
package converse

import (
	"database/sql"
	"fmt"

	"github.com/japaniel/chain/pkg/db"
	"github.com/japaniel/chain/pkg/generate"
	"github.com/japaniel/chain/pkg/logger"
	"github.com/japaniel/chain/pkg/metrics"
	"go.uber.org/zap"
)

const (
	// DefaultExcludeDistance skips candidates whose id is this close to the context.
	DefaultExcludeDistance = 2
	// candidatesPerTerm is how many top-scoring utterances each salient term contributes.
	candidatesPerTerm = 3
)

// Generator produces unconditioned text. *generate.Engine satisfies it.
type Generator interface {
	Generate(targetLength, branchLimit int, fallback string) (string, error)
}

// Matcher finds the self-authored utterance closest in topic to a context utterance and
// answers with whatever followed it historically.
type Matcher struct {
	DB          *sql.DB
	Rand        generate.Rand
	Generator   Generator
	BranchLimit int
	Fallback    string
	Logger      *zap.Logger
	Metrics     *metrics.Collector
}

// NewMatcher creates a Matcher falling back to gen.
func NewMatcher(conn *sql.DB, r generate.Rand, gen Generator) *Matcher {
	return &Matcher{
		DB:          conn,
		Rand:        r,
		Generator:   gen,
		BranchLimit: generate.DefaultBranchLimit,
		Fallback:    generate.DefaultFallback,
	}
}

// MatchAndReply returns the stored text of the utterance that followed the best match for
// contextID. When no match or no successor exists it generates text of targetLength.
func (m *Matcher) MatchAndReply(contextID int64, targetLength, excludeDistance int) (string, error) {
	log := logger.OrNop(m.Logger)

	match, ok, err := m.Same(contextID, excludeDistance)
	if err != nil {
		return "", err
	}
	if !ok {
		log.Debug("no topical match, generating", zap.Int64("context", contextID))
		return m.generate(targetLength)
	}

	next, ok, err := db.GetUtterance(m.DB, match+1)
	if err != nil {
		return "", fmt.Errorf("load successor of %d: %w", match, err)
	}
	if !ok {
		log.Debug("matched utterance has no successor, generating",
			zap.Int64("context", contextID),
			zap.Int64("match", match),
		)
		return m.generate(targetLength)
	}

	log.Debug("replying with successor of match",
		zap.Int64("context", contextID),
		zap.Int64("match", match),
		zap.Int64("reply", next.ID),
	)
	m.Metrics.RecordReply(true)
	return next.Text, nil
}

// Same returns the self-authored utterance most topically similar to contextID, ignoring
// utterances within excludeDistance ids of it. found is false when nothing qualifies.
func (m *Matcher) Same(contextID int64, excludeDistance int) (int64, bool, error) {
	ctx, ok, err := db.GetUtterance(m.DB, contextID)
	if err != nil {
		return 0, false, fmt.Errorf("load context %d: %w", contextID, err)
	}
	if !ok {
		return 0, false, nil
	}

	var candidates [][]int64
	for _, surface := range ctx.Salient {
		termID, ok, err := db.TermIDBySurface(m.DB, surface)
		if err != nil {
			return 0, false, err
		}
		if !ok {
			continue
		}

		ids, err := db.TopTopicUtterances(m.DB, termID, contextID, excludeDistance, candidatesPerTerm)
		if err != nil {
			return 0, false, fmt.Errorf("topic candidates for term %d: %w", termID, err)
		}
		var replies []int64
		for _, id := range ids {
			u, ok, err := db.GetUtterance(m.DB, id)
			if err != nil {
				return 0, false, err
			}
			if ok && u.Reply {
				replies = append(replies, id)
			}
		}
		if len(replies) > 0 {
			candidates = append(candidates, replies)
		}
	}

	if len(candidates) == 0 {
		return 0, false, nil
	}
	return ChooseOne(m.Rand, candidates), true, nil
}

func (m *Matcher) generate(targetLength int) (string, error) {
	m.Metrics.RecordReply(false)
	return m.Generator.Generate(targetLength, m.BranchLimit, m.Fallback)
}

// ChooseOne flips a coin. Heads picks uniformly among the ids found in the most candidate
// lists; tails picks a random list and then a random id within it. candidates must be
// non-empty and hold no empty list.
func ChooseOne(r generate.Rand, candidates [][]int64) int64 {
	if r.Intn(2) == 1 {
		tally := map[int64]int{}
		var order []int64
		for _, list := range candidates {
			seen := map[int64]bool{}
			for _, id := range list {
				if seen[id] {
					continue
				}
				seen[id] = true
				if _, ok := tally[id]; !ok {
					order = append(order, id)
				}
				tally[id]++
			}
		}

		best := 0
		for _, n := range tally {
			if n > best {
				best = n
			}
		}
		var top []int64
		for _, id := range order {
			if tally[id] == best {
				top = append(top, id)
			}
		}
		return top[r.Intn(len(top))]
	}

	list := candidates[r.Intn(len(candidates))]
	return list[r.Intn(len(list))]
}
