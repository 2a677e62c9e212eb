// Package graph turns tokenized utterances into term, relation and utterance records.
package graph

import (
	"database/sql"
	"fmt"
	"unicode/utf8"

	"github.com/japaniel/chain/pkg/db"
	"github.com/japaniel/chain/pkg/logger"
	"github.com/japaniel/chain/pkg/metrics"
	"github.com/japaniel/chain/pkg/morph"
	"go.uber.org/zap"
)

// Authorship says who produced an ingested text.
type Authorship int

const (
	// User is input typed by the conversation partner.
	User Authorship = iota
	// Reply is text the system said.
	Reply
	// Vocabulary only grows the relation graph; no utterance is stored.
	Vocabulary
)

func (a Authorship) String() string {
	switch a {
	case User:
		return "user"
	case Reply:
		return "reply"
	case Vocabulary:
		return "vocabulary"
	}
	return "unknown"
}

// Tokenizer splits raw text into tokens. *morph.Analyzer satisfies it.
type Tokenizer interface {
	Analyze(text string) ([]morph.Token, error)
}

// Builder applies utterances to the store. Every counter update is written immediately.
type Builder struct {
	DB        *sql.DB
	Tokenizer Tokenizer
	Logger    *zap.Logger
	Metrics   *metrics.Collector
}

// NewBuilder creates a Builder.
func NewBuilder(conn *sql.DB, tok Tokenizer) *Builder {
	return &Builder{DB: conn, Tokenizer: tok}
}

// Register tokenizes text and ingests it.
func (b *Builder) Register(text string, a Authorship) (int64, bool, error) {
	if b.Tokenizer == nil {
		return 0, false, fmt.Errorf("graph: no tokenizer configured")
	}
	tokens, err := b.Tokenizer.Analyze(text)
	if err != nil {
		return 0, false, fmt.Errorf("tokenize: %w", err)
	}
	return b.Ingest(text, tokens, a)
}

// Ingest records tokens as terms, their adjacencies as relations, and the last term as a
// terminal. Unless a is Vocabulary it also stores the utterance and returns its id.
func (b *Builder) Ingest(text string, tokens []morph.Token, a Authorship) (int64, bool, error) {
	if len(tokens) == 0 {
		return 0, false, nil
	}
	// Surfaces are checked before any counter moves. Salient surfaces are stored as JSON,
	// which cannot carry invalid UTF-8.
	for i, t := range tokens {
		if t.Surface == "" {
			return 0, false, fmt.Errorf("token %d has an empty surface", i)
		}
		if !utf8.ValidString(t.Surface) {
			return 0, false, fmt.Errorf("token %d surface %q is not valid UTF-8", i, t.Surface)
		}
	}

	termIDs := make([]int64, 0, len(tokens))
	for _, t := range tokens {
		id, err := db.ResolveTerm(b.DB, t.Surface, t.Category)
		if err != nil {
			return 0, false, fmt.Errorf("failed to persist term %s: %w", t.Surface, err)
		}
		termIDs = append(termIDs, id)
	}

	for i := 0; i+1 < len(termIDs); i++ {
		rid, err := db.ResolveRelation(b.DB, termIDs[i], termIDs[i+1])
		if err != nil {
			return 0, false, err
		}
		if err := db.IncrementCounter(b.DB, db.TransitionWeight, rid); err != nil {
			return 0, false, err
		}
		if i == 0 {
			if err := db.IncrementCounter(b.DB, db.StartWeight, rid); err != nil {
				return 0, false, err
			}
		}
	}

	if err := db.IncrementCounter(b.DB, db.Terminal, termIDs[len(termIDs)-1]); err != nil {
		return 0, false, err
	}

	b.Metrics.RecordIngest(a.String())

	if a == Vocabulary {
		return 0, false, nil
	}

	id, err := db.InsertUtterance(b.DB, text, morph.Salient(tokens), a == Reply)
	if err != nil {
		return 0, false, err
	}
	logger.OrNop(b.Logger).Debug("utterance stored",
		zap.Int64("id", id),
		zap.String("authorship", a.String()),
		zap.Int("terms", len(termIDs)),
	)
	return id, true, nil
}
