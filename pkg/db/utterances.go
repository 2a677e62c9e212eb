package db

import (
	"database/sql"
	"encoding/json"
	"fmt"
)

// InsertUtterance stores text with its salient term surfaces and returns the new id.
func InsertUtterance(db DBExecutor, text string, salient []string, reply bool) (int64, error) {
	if salient == nil {
		salient = []string{}
	}
	encoded, err := json.Marshal(salient)
	if err != nil {
		return 0, fmt.Errorf("encode salient terms: %w", err)
	}
	res, err := db.Exec(`INSERT INTO utterances (text, salient, reply) VALUES (?, ?, ?)`, text, string(encoded), reply)
	if err != nil {
		return 0, fmt.Errorf("insert utterance: %w", err)
	}
	return res.LastInsertId()
}

// GetUtterance loads an utterance by id.
func GetUtterance(db DBExecutor, id int64) (Utterance, bool, error) {
	row := db.QueryRow(`SELECT id, text, salient, reply FROM utterances WHERE id = ?`, id)
	u, err := scanUtterance(row)
	if err == sql.ErrNoRows {
		return Utterance{}, false, nil
	}
	if err != nil {
		return Utterance{}, false, err
	}
	return u, true, nil
}

// AllUtterances returns every stored utterance in insertion order.
func AllUtterances(db DBExecutor) ([]Utterance, error) {
	rows, err := db.Query(`SELECT id, text, salient, reply FROM utterances ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Utterance
	for rows.Next() {
		u, err := scanUtterance(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// CountUtterances returns the number of stored utterances.
func CountUtterances(db DBExecutor) (int, error) {
	var n int
	err := db.QueryRow(`SELECT COUNT(*) FROM utterances`).Scan(&n)
	return n, err
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanUtterance(s scanner) (Utterance, error) {
	var u Utterance
	var salient string
	if err := s.Scan(&u.ID, &u.Text, &salient, &u.Reply); err != nil {
		return Utterance{}, err
	}
	if err := json.Unmarshal([]byte(salient), &u.Salient); err != nil {
		return Utterance{}, fmt.Errorf("decode salient terms of utterance %d: %w", u.ID, err)
	}
	return u, nil
}
