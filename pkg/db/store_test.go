package db

import (
	"context"
	"database/sql"
	"reflect"
	"testing"

	"github.com/japaniel/chain/pkg/morph"
	_ "github.com/mattn/go-sqlite3"
)

func setupTestDB(t *testing.T) *sql.DB {
	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	// Ensure single connection to avoid separate in-memory DBs per connection.
	db.SetMaxOpenConns(1)
	if err := InitDB(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func TestResolveTermStableAndCounted(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	id1, err := ResolveTerm(db, "犬", morph.Noun)
	if err != nil {
		t.Fatalf("create term: %v", err)
	}
	id2, err := ResolveTerm(db, "犬", morph.Noun)
	if err != nil {
		t.Fatalf("get term: %v", err)
	}
	if id1 != id2 {
		t.Fatalf("expected same id, got %d and %d", id1, id2)
	}

	other, err := ResolveTerm(db, "犬", morph.Other)
	if err != nil {
		t.Fatalf("create term: %v", err)
	}
	if other == id1 {
		t.Fatalf("expected a distinct id per category")
	}

	term, ok, err := GetTerm(db, id1)
	if err != nil || !ok {
		t.Fatalf("get term: ok=%v err=%v", ok, err)
	}
	if term.Count != 2 || term.Category != morph.Noun || term.Surface != "犬" {
		t.Fatalf("unexpected term %+v", term)
	}

	if _, err := ResolveTerm(db, "", morph.Noun); err == nil {
		t.Fatalf("expected error for empty surface")
	}
	// Whitespace is a surface like any other; analyzers filter it upstream.
	if _, err := ResolveTerm(db, " ", morph.Other); err != nil {
		t.Fatalf("whitespace surface: %v", err)
	}
}

func TestTermIDDoesNotCount(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	want, err := ResolveTerm(db, "猫", morph.Noun)
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 2; i++ {
		got, ok, err := TermID(db, "猫", morph.Noun)
		if err != nil || !ok || got != want {
			t.Fatalf("lookup: id=%d ok=%v err=%v, want %d", got, ok, err, want)
		}
	}
	term, _, err := GetTerm(db, want)
	if err != nil {
		t.Fatal(err)
	}
	if term.Count != 1 {
		t.Fatalf("lookup changed count to %d", term.Count)
	}

	if _, ok, err := TermID(db, "猫", morph.Verb); err != nil || ok {
		t.Fatalf("expected no verb term, got ok=%v err=%v", ok, err)
	}
}

func TestTermIDBySurfacePrefersSalient(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	if _, err := ResolveTerm(db, "はい", morph.Other); err != nil {
		t.Fatal(err)
	}
	want, err := ResolveTerm(db, "はい", morph.Interjection)
	if err != nil {
		t.Fatal(err)
	}
	got, ok, err := TermIDBySurface(db, "はい")
	if err != nil || !ok {
		t.Fatalf("lookup: ok=%v err=%v", ok, err)
	}
	if got != want {
		t.Fatalf("expected salient term %d, got %d", want, got)
	}

	if _, ok, err := TermIDBySurface(db, "未知"); err != nil || ok {
		t.Fatalf("expected not found, got ok=%v err=%v", ok, err)
	}
}

func TestResolveRelationUnique(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	a, _ := ResolveTerm(db, "A", morph.Noun)
	b, _ := ResolveTerm(db, "B", morph.Noun)

	r1, err := ResolveRelation(db, a, b)
	if err != nil {
		t.Fatalf("relation: %v", err)
	}
	r2, err := ResolveRelation(db, a, b)
	if err != nil {
		t.Fatalf("relation: %v", err)
	}
	if r1 != r2 {
		t.Fatalf("expected one relation id, got %d and %d", r1, r2)
	}
	back, err := ResolveRelation(db, b, a)
	if err != nil {
		t.Fatalf("relation: %v", err)
	}
	if back == r1 {
		t.Fatalf("expected reverse relation to be distinct")
	}

	rel, ok, err := GetRelation(db, r1)
	if err != nil || !ok {
		t.Fatalf("get relation: ok=%v err=%v", ok, err)
	}
	if rel.FromID != a || rel.ToID != b {
		t.Fatalf("unexpected relation %+v", rel)
	}
	if _, ok, _ := GetRelation(db, 999); ok {
		t.Fatalf("expected missing relation")
	}
}

func TestCounters(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	a, _ := ResolveTerm(db, "A", morph.Noun)
	b, _ := ResolveTerm(db, "B", morph.Noun)
	c, _ := ResolveTerm(db, "C", morph.Noun)
	ab, _ := ResolveRelation(db, a, b)
	ac, _ := ResolveRelation(db, a, c)

	for i := 0; i < 3; i++ {
		if err := IncrementCounter(db, TransitionWeight, ab); err != nil {
			t.Fatalf("increment: %v", err)
		}
	}
	if err := IncrementCounter(db, TransitionWeight, ac); err != nil {
		t.Fatalf("increment: %v", err)
	}
	if err := IncrementCounter(db, StartWeight, ac); err != nil {
		t.Fatalf("increment: %v", err)
	}

	if n, _ := CounterValue(db, TransitionWeight, ab); n != 3 {
		t.Fatalf("expected transition weight 3, got %d", n)
	}
	if n, _ := CounterValue(db, StartWeight, ab); n != 0 {
		t.Fatalf("expected absent start weight to read 0, got %d", n)
	}

	out, err := OutgoingRelations(db, a, 1)
	if err != nil {
		t.Fatalf("outgoing: %v", err)
	}
	if !reflect.DeepEqual(out, []int64{ab}) {
		t.Fatalf("expected heaviest relation %d, got %v", ab, out)
	}

	starts, err := TopStartRelations(db, 5)
	if err != nil {
		t.Fatalf("starts: %v", err)
	}
	if !reflect.DeepEqual(starts, []int64{ac}) {
		t.Fatalf("unexpected starts %v", starts)
	}

	if _, ok, err := AverageTerminal(db); err != nil || ok {
		t.Fatalf("expected no terminal average yet, ok=%v err=%v", ok, err)
	}
	_ = IncrementCounter(db, Terminal, b)
	_ = IncrementCounter(db, Terminal, b)
	_ = IncrementCounter(db, Terminal, c)
	avg, ok, err := AverageTerminal(db)
	if err != nil || !ok {
		t.Fatalf("average: ok=%v err=%v", ok, err)
	}
	if avg != 1.5 {
		t.Fatalf("expected average 1.5, got %v", avg)
	}

	if err := IncrementCounter(db, Terminal, 0); err == nil {
		t.Fatalf("expected error for zero id")
	}
}

func TestUtteranceRoundTrip(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	id, err := InsertUtterance(db, "猫が走る", []string{"猫", "走る", "猫"}, true)
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	empty, err := InsertUtterance(db, "の", nil, false)
	if err != nil {
		t.Fatalf("insert: %v", err)
	}

	u, ok, err := GetUtterance(db, id)
	if err != nil || !ok {
		t.Fatalf("get: ok=%v err=%v", ok, err)
	}
	if !reflect.DeepEqual(u.Salient, []string{"猫", "走る", "猫"}) || !u.Reply || u.Text != "猫が走る" {
		t.Fatalf("unexpected utterance %+v", u)
	}

	all, err := AllUtterances(db)
	if err != nil {
		t.Fatalf("all: %v", err)
	}
	if len(all) != 2 || all[1].ID != empty || all[1].Reply || len(all[1].Salient) != 0 {
		t.Fatalf("unexpected utterances %+v", all)
	}
	if _, ok, _ := GetUtterance(db, 42); ok {
		t.Fatalf("expected unknown utterance")
	}
}

func TestReplaceTopicScores(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	ctx := context.Background()
	first := []TopicScore{{TermID: 1, UtteranceID: 1, Score: 0.5}, {TermID: 1, UtteranceID: 5, Score: 2}}
	if err := ReplaceTopicScores(ctx, db, first); err != nil {
		t.Fatalf("replace: %v", err)
	}
	second := []TopicScore{
		{TermID: 1, UtteranceID: 1, Score: 0},
		{TermID: 1, UtteranceID: 5, Score: 1},
		{TermID: 1, UtteranceID: 6, Score: 3},
		{TermID: 1, UtteranceID: 7, Score: 2},
		{TermID: 1, UtteranceID: 8, Score: 0.5},
	}
	if err := ReplaceTopicScores(ctx, db, second); err != nil {
		t.Fatalf("replace: %v", err)
	}

	all, err := AllTopicScores(db)
	if err != nil {
		t.Fatalf("all: %v", err)
	}
	if !reflect.DeepEqual(all, second) {
		t.Fatalf("expected rebuilt table %v, got %v", second, all)
	}

	// context 4 with distance 2 excludes utterance 5 and 6; score 0 is never returned.
	got, err := TopTopicUtterances(db, 1, 4, 2, 3)
	if err != nil {
		t.Fatalf("top: %v", err)
	}
	if !reflect.DeepEqual(got, []int64{7, 8}) {
		t.Fatalf("unexpected candidates %v", got)
	}

	if err := ReplaceTopicScores(ctx, db, nil); err != nil {
		t.Fatalf("replace: %v", err)
	}
	all, _ = AllTopicScores(db)
	if len(all) != 0 {
		t.Fatalf("expected empty table, got %v", all)
	}
}

func TestResetDB(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	if _, err := ResolveTerm(db, "犬", morph.Noun); err != nil {
		t.Fatal(err)
	}
	if err := ResetDB(db); err != nil {
		t.Fatalf("reset: %v", err)
	}
	var n int
	if err := db.QueryRow(`SELECT COUNT(*) FROM terms`).Scan(&n); err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 0 {
		t.Fatalf("expected empty terms after reset, got %d", n)
	}
	for _, name := range tableNames {
		var got string
		if err := db.QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name=?", name).Scan(&got); err != nil {
			t.Fatalf("%s table missing: %v", name, err)
		}
	}
}
