package db

import "fmt"

// tableNames lists every table in creation order. ResetDB drops them in reverse.
var tableNames = []string{
	"terms",
	"relations",
	"relation_weights",
	"start_weights",
	"terminals",
	"utterances",
	"topics",
}

// topicsDDL returns the CREATE statement for a topic score table with the given name so the
// live table and its rebuild shadow share one definition.
func topicsDDL(name string) string {
	return fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	term_id INTEGER NOT NULL REFERENCES terms(id),
	utterance_id INTEGER NOT NULL REFERENCES utterances(id),
	score REAL NOT NULL DEFAULT 0.0,
	PRIMARY KEY (term_id, utterance_id)
)`, name)
}

const topicsIndexDDL = `CREATE INDEX IF NOT EXISTS idx_topics_term_score ON topics(term_id, score)`

var migrationsSQL = `
CREATE TABLE IF NOT EXISTS terms (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	surface TEXT NOT NULL,
	kind TEXT NOT NULL,
	count INTEGER NOT NULL DEFAULT 1,
	UNIQUE (surface, kind)
);
CREATE INDEX IF NOT EXISTS idx_terms_surface ON terms(surface);

CREATE TABLE IF NOT EXISTS relations (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	from_id INTEGER NOT NULL REFERENCES terms(id),
	to_id INTEGER NOT NULL REFERENCES terms(id),
	UNIQUE (from_id, to_id)
);
CREATE INDEX IF NOT EXISTS idx_relations_from ON relations(from_id);

CREATE TABLE IF NOT EXISTS relation_weights (
	id INTEGER PRIMARY KEY REFERENCES relations(id),
	count INTEGER NOT NULL DEFAULT 1
);

CREATE TABLE IF NOT EXISTS start_weights (
	id INTEGER PRIMARY KEY REFERENCES relations(id),
	count INTEGER NOT NULL DEFAULT 1
);

CREATE TABLE IF NOT EXISTS terminals (
	id INTEGER PRIMARY KEY REFERENCES terms(id),
	count INTEGER NOT NULL DEFAULT 1
);

CREATE TABLE IF NOT EXISTS utterances (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	text TEXT NOT NULL,
	salient TEXT NOT NULL,
	reply INTEGER NOT NULL DEFAULT 1
);
` + topicsDDL("topics") + `;
` + topicsIndexDDL + `;
`
