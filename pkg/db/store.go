package db

import (
	"database/sql"
	"fmt"

	"github.com/japaniel/chain/pkg/morph"
)

// DBExecutor is an interface that allows methods to accept either *sql.DB or *sql.Tx
type DBExecutor interface {
	Exec(query string, args ...interface{}) (sql.Result, error)
	Query(query string, args ...interface{}) (*sql.Rows, error)
	QueryRow(query string, args ...interface{}) *sql.Row
}

// ResolveTerm returns the id for (surface, category), inserting the term with count 1 or
// incrementing the count of the existing row.
func ResolveTerm(db DBExecutor, surface string, category morph.Category) (int64, error) {
	if surface == "" {
		return 0, fmt.Errorf("surface must be non-empty")
	}

	var id int64
	err := db.QueryRow(`INSERT INTO terms (surface, kind, count) VALUES (?, ?, 1)
		ON CONFLICT(surface, kind) DO UPDATE SET count = terms.count + 1
		RETURNING id`, surface, category.String()).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("upsert term: %w", err)
	}
	return id, nil
}

// TermID looks up the id of (surface, category) without creating or counting it.
func TermID(db DBExecutor, surface string, category morph.Category) (int64, bool, error) {
	var id int64
	err := db.QueryRow(`SELECT id FROM terms WHERE surface = ? AND kind = ?`, surface, category.String()).Scan(&id)
	if err == sql.ErrNoRows {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return id, true, nil
}

// GetTerm loads a term by id.
func GetTerm(db DBExecutor, id int64) (Term, bool, error) {
	var t Term
	var kind string
	err := db.QueryRow(`SELECT id, surface, kind, count FROM terms WHERE id = ?`, id).
		Scan(&t.ID, &t.Surface, &kind, &t.Count)
	if err == sql.ErrNoRows {
		return Term{}, false, nil
	}
	if err != nil {
		return Term{}, false, err
	}
	t.Category = morph.CategoryFromLabel(kind)
	return t, true, nil
}

// TermIDBySurface resolves a salient surface to a term id. When the surface is known under
// several salient categories the oldest term wins.
func TermIDBySurface(db DBExecutor, surface string) (int64, bool, error) {
	args := append([]interface{}{surface}, salientArgs()...)
	var id int64
	err := db.QueryRow(`SELECT id FROM terms WHERE surface = ? AND kind IN (?, ?, ?)
		ORDER BY id LIMIT 1`, args...).Scan(&id)
	if err == sql.ErrNoRows {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return id, true, nil
}

// CandidateTerms returns every term whose category is salient, ordered by id.
func CandidateTerms(db DBExecutor) ([]Term, error) {
	rows, err := db.Query(`SELECT id, surface, kind, count FROM terms WHERE kind IN (?, ?, ?) ORDER BY id`,
		salientArgs()...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Term
	for rows.Next() {
		var t Term
		var kind string
		if err := rows.Scan(&t.ID, &t.Surface, &kind, &t.Count); err != nil {
			return nil, err
		}
		t.Category = morph.CategoryFromLabel(kind)
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func salientArgs() []interface{} {
	return []interface{}{morph.Noun.String(), morph.Verb.String(), morph.Interjection.String()}
}

// ResolveRelation returns the id of the (from, to) relation, creating it if absent.
func ResolveRelation(db DBExecutor, fromID, toID int64) (int64, error) {
	if fromID <= 0 || toID <= 0 {
		return 0, fmt.Errorf("term ids must be positive, got %d and %d", fromID, toID)
	}
	if _, err := db.Exec(`INSERT OR IGNORE INTO relations (from_id, to_id) VALUES (?, ?)`, fromID, toID); err != nil {
		return 0, fmt.Errorf("insert relation: %w", err)
	}
	var id int64
	if err := db.QueryRow(`SELECT id FROM relations WHERE from_id = ? AND to_id = ?`, fromID, toID).Scan(&id); err != nil {
		return 0, fmt.Errorf("select relation: %w", err)
	}
	return id, nil
}

// GetRelation loads a relation by id.
func GetRelation(db DBExecutor, id int64) (Relation, bool, error) {
	var r Relation
	err := db.QueryRow(`SELECT id, from_id, to_id FROM relations WHERE id = ?`, id).Scan(&r.ID, &r.FromID, &r.ToID)
	if err == sql.ErrNoRows {
		return Relation{}, false, nil
	}
	if err != nil {
		return Relation{}, false, err
	}
	return r, true, nil
}

// RelationIDByTerms looks up a relation without creating it.
func RelationIDByTerms(db DBExecutor, fromID, toID int64) (int64, bool, error) {
	var id int64
	err := db.QueryRow(`SELECT id FROM relations WHERE from_id = ? AND to_id = ?`, fromID, toID).Scan(&id)
	if err == sql.ErrNoRows {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return id, true, nil
}

// IncrementCounter adds one to the counter keyed by id, creating it at 1 when absent.
func IncrementCounter(db DBExecutor, c Counter, id int64) error {
	if id <= 0 {
		return fmt.Errorf("%s counter id must be positive", c)
	}
	_, err := db.Exec(`INSERT INTO `+c.table()+` (id, count) VALUES (?, 1)
		ON CONFLICT(id) DO UPDATE SET count = count + 1`, id)
	if err != nil {
		return fmt.Errorf("increment %s counter: %w", c, err)
	}
	return nil
}

// CounterValue returns the counter for id, or 0 when it was never incremented.
func CounterValue(db DBExecutor, c Counter, id int64) (int64, error) {
	var n int64
	err := db.QueryRow(`SELECT count FROM `+c.table()+` WHERE id = ?`, id).Scan(&n)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	return n, err
}

// CountStarts returns how many relations have ever started a sentence.
func CountStarts(db DBExecutor) (int, error) {
	var n int
	err := db.QueryRow(`SELECT COUNT(*) FROM start_weights`).Scan(&n)
	return n, err
}

// TopStartRelations returns up to limit relation ids ranked by start weight.
func TopStartRelations(db DBExecutor, limit int) ([]int64, error) {
	return queryIDs(db, `SELECT id FROM start_weights ORDER BY count DESC, id LIMIT ?`, limit)
}

// OutgoingRelations returns up to limit relations leaving fromID ranked by transition weight.
func OutgoingRelations(db DBExecutor, fromID int64, limit int) ([]int64, error) {
	return queryIDs(db, `SELECT w.id FROM relation_weights w
		JOIN relations r ON r.id = w.id
		WHERE r.from_id = ?
		ORDER BY w.count DESC, w.id LIMIT ?`, fromID, limit)
}

// AverageTerminal returns the mean terminal counter across all terms that ever ended a
// sentence. found is false when no terminal has been recorded.
func AverageTerminal(db DBExecutor) (float64, bool, error) {
	var avg sql.NullFloat64
	if err := db.QueryRow(`SELECT AVG(count) FROM terminals`).Scan(&avg); err != nil {
		return 0, false, err
	}
	if !avg.Valid {
		return 0, false, nil
	}
	return avg.Float64, true, nil
}

func queryIDs(db DBExecutor, query string, args ...interface{}) ([]int64, error) {
	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
