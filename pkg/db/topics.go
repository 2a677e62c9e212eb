package db

import (
	"context"
	"database/sql"
	"fmt"
)

// ReplaceTopicScores swaps the topic table for one holding exactly rows. The new table is
// staged under a shadow name and renamed inside one transaction, so readers see either the
// old scores or the complete new set.
func ReplaceTopicScores(ctx context.Context, conn *sql.DB, rows []TopicScore) error {
	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin topic rebuild: %w", err)
	}
	defer func() {
		_ = tx.Rollback() // ignored if committed
	}()

	if _, err := tx.Exec(`DROP TABLE IF EXISTS topics_next`); err != nil {
		return fmt.Errorf("drop shadow table: %w", err)
	}
	if _, err := tx.Exec(topicsDDL("topics_next")); err != nil {
		return fmt.Errorf("create shadow table: %w", err)
	}

	stmt, err := tx.Prepare(`INSERT INTO topics_next (term_id, utterance_id, score) VALUES (?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare topic insert: %w", err)
	}
	defer stmt.Close()
	for _, r := range rows {
		if _, err := stmt.Exec(r.TermID, r.UtteranceID, r.Score); err != nil {
			return fmt.Errorf("insert topic (%d, %d): %w", r.TermID, r.UtteranceID, err)
		}
	}

	for _, s := range []string{
		`DROP TABLE IF EXISTS topics`,
		`ALTER TABLE topics_next RENAME TO topics`,
		topicsIndexDDL,
	} {
		if _, err := tx.Exec(s); err != nil {
			return fmt.Errorf("swap topic table: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit topic rebuild (%d rows): %w", len(rows), err)
	}
	return nil
}

// TopTopicUtterances returns up to limit utterance ids scoring above zero for termID, skipping
// utterances within distance of contextID, best score first.
func TopTopicUtterances(db DBExecutor, termID, contextID int64, distance, limit int) ([]int64, error) {
	return queryIDs(db, `SELECT utterance_id FROM topics
		WHERE term_id = ? AND score > 0 AND abs(utterance_id - ?) > ?
		ORDER BY score DESC, utterance_id LIMIT ?`, termID, contextID, distance, limit)
}

// AllTopicScores returns the full score table ordered by (term, utterance).
func AllTopicScores(db DBExecutor) ([]TopicScore, error) {
	rows, err := db.Query(`SELECT term_id, utterance_id, score FROM topics ORDER BY term_id, utterance_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []TopicScore
	for rows.Next() {
		var s TopicScore
		if err := rows.Scan(&s.TermID, &s.UtteranceID, &s.Score); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
