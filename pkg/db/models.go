package db

import "github.com/japaniel/chain/pkg/morph"

// Term is a distinct (surface, category) pair.
type Term struct {
	ID       int64
	Surface  string
	Category morph.Category
	Count    int64
}

// Relation is a directed edge between two terms observed as adjacent.
type Relation struct {
	ID     int64
	FromID int64
	ToID   int64
}

// Utterance is a stored user input or self-authored reply.
type Utterance struct {
	ID      int64
	Text    string
	Salient []string
	Reply   bool
}

// TopicScore links a term to an utterance with its tf-idf value.
type TopicScore struct {
	TermID      int64
	UtteranceID int64
	Score       float64
}

// Counter names one of the id-keyed counter tables.
type Counter int

const (
	// TransitionWeight counts every traversal of a relation.
	TransitionWeight Counter = iota
	// StartWeight counts relations that began a sentence.
	StartWeight
	// Terminal counts terms that ended a sentence. Keyed by term id.
	Terminal
)

func (c Counter) table() string {
	switch c {
	case TransitionWeight:
		return "relation_weights"
	case StartWeight:
		return "start_weights"
	case Terminal:
		return "terminals"
	}
	panic("db: unknown counter")
}

func (c Counter) String() string {
	switch c {
	case TransitionWeight:
		return "transition"
	case StartWeight:
		return "start"
	case Terminal:
		return "terminal"
	}
	return "unknown"
}
