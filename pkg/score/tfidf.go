// Package score rebuilds the tf-idf topic scores linking salient terms to utterances.
package score

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"time"

	"github.com/japaniel/chain/pkg/db"
	"github.com/japaniel/chain/pkg/logger"
	"github.com/japaniel/chain/pkg/metrics"
	"go.uber.org/zap"
)

// Scorer recomputes the topic score table from scratch.
type Scorer struct {
	DB      *sql.DB
	Logger  *zap.Logger
	Metrics *metrics.Collector
}

// NewScorer creates a Scorer.
func NewScorer(conn *sql.DB) *Scorer {
	return &Scorer{DB: conn}
}

// RebuildTopicScores replaces the topic table with a fresh tf-idf row for every salient
// term and every utterance, zero scores included.
func (s *Scorer) RebuildTopicScores() error {
	start := time.Now()

	terms, err := db.CandidateTerms(s.DB)
	if err != nil {
		return fmt.Errorf("load candidate terms: %w", err)
	}
	utterances, err := db.AllUtterances(s.DB)
	if err != nil {
		return fmt.Errorf("load utterances: %w", err)
	}

	rows := ComputeTopicScores(terms, utterances)
	if err := db.ReplaceTopicScores(context.Background(), s.DB, rows); err != nil {
		return err
	}

	elapsed := time.Since(start)
	s.Metrics.RecordRebuild(len(rows), elapsed)
	logger.OrNop(s.Logger).Info("topic scores rebuilt",
		zap.Int("terms", len(terms)),
		zap.Int("utterances", len(utterances)),
		zap.Int("rows", len(rows)),
		zap.Duration("elapsed", elapsed),
	)
	return nil
}

// ComputeTopicScores returns tf(T,U) * idf(T) for every term and utterance, ordered by term
// then utterance. tf is the raw occurrence count of the term's surface in the utterance's
// salient list; idf is ln(n/df + 1), or 0 when the term appears in no utterance.
func ComputeTopicScores(terms []db.Term, utterances []db.Utterance) []db.TopicScore {
	if len(terms) == 0 || len(utterances) == 0 {
		return nil
	}

	counts := make([]map[string]int, len(utterances))
	for i, u := range utterances {
		m := make(map[string]int, len(u.Salient))
		for _, s := range u.Salient {
			m[s]++
		}
		counts[i] = m
	}

	n := float64(len(utterances))
	out := make([]db.TopicScore, 0, len(terms)*len(utterances))
	for _, t := range terms {
		df := 0
		for _, m := range counts {
			if m[t.Surface] > 0 {
				df++
			}
		}
		idf := 0.0
		if df > 0 {
			idf = math.Log(n/float64(df) + 1)
		}
		for i, u := range utterances {
			out = append(out, db.TopicScore{
				TermID:      t.ID,
				UtteranceID: u.ID,
				Score:       float64(counts[i][t.Surface]) * idf,
			})
		}
	}
	return out
}
