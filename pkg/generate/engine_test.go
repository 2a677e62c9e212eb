package generate

import (
	"database/sql"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/japaniel/chain/pkg/db"
	"github.com/japaniel/chain/pkg/graph"
	"github.com/japaniel/chain/pkg/morph"
	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedRand returns its values in order, wrapped into [0, n), then repeats the last one.
type scriptedRand struct {
	values []int
	calls  int
}

func (r *scriptedRand) Intn(n int) int {
	v := 0
	if len(r.values) > 0 {
		i := r.calls
		if i >= len(r.values) {
			i = len(r.values) - 1
		}
		v = r.values[i]
	}
	r.calls++
	return v % n
}

func setupDB(t *testing.T) *sql.DB {
	conn, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	conn.SetMaxOpenConns(1)
	require.NoError(t, db.InitDB(conn))
	t.Cleanup(func() { conn.Close() })
	return conn
}

func learn(t *testing.T, conn *sql.DB, sentences ...string) {
	t.Helper()
	b := graph.NewBuilder(conn, nil)
	for _, s := range sentences {
		var tokens []morph.Token
		for _, f := range strings.Fields(s) {
			tokens = append(tokens, morph.Token{Surface: f, Category: morph.Noun})
		}
		_, _, err := b.Ingest(s, tokens, graph.Vocabulary)
		require.NoError(t, err)
	}
}

func TestGenerateFallbackOnEmptyGraph(t *testing.T) {
	conn := setupDB(t)
	e := NewEngine(conn, &scriptedRand{})

	text, err := e.Generate(10, DefaultBranchLimit, DefaultFallback)
	require.NoError(t, err)
	assert.Equal(t, "...", text)

	text, err = e.Generate(10, DefaultBranchLimit, "zzz")
	require.NoError(t, err)
	assert.Equal(t, "zzz", text)
}

func TestGenerateSeedAlwaysApplied(t *testing.T) {
	conn := setupDB(t)
	learn(t, conn, "A B")
	e := NewEngine(conn, &scriptedRand{})

	text, err := e.Generate(1, DefaultBranchLimit, DefaultFallback)
	require.NoError(t, err)
	assert.Equal(t, "AB", text)
}

func TestGenerateWalksUntilNoSuccessor(t *testing.T) {
	conn := setupDB(t)
	learn(t, conn, "A B C")
	e := NewEngine(conn, &scriptedRand{})

	text, err := e.Generate(100, DefaultBranchLimit, DefaultFallback)
	require.NoError(t, err)
	assert.Equal(t, "ABC", text)
}

func TestGenerateStopsOnFrequentTerminal(t *testing.T) {
	conn := setupDB(t)
	sentences := []string{"A B C", "Y Z", "C D"}
	for i := 0; i < 9; i++ {
		sentences = append(sentences, "X C")
	}
	learn(t, conn, sentences...)

	// Starts ranked: X->C, A->B, Y->Z, C->D. Pick A->B, then first successor each step.
	e := NewEngine(conn, &scriptedRand{values: []int{1, 0}})
	text, err := e.Generate(5, DefaultBranchLimit, DefaultFallback)
	require.NoError(t, err)
	// C ended 10 of the sentences against an average of 4, so (3/5)*(10/4) > 1 stops at C.
	assert.Equal(t, "ABC", text)
}

func TestGenerateTerminatesOnCycle(t *testing.T) {
	conn := setupDB(t)
	learn(t, conn, "A B A")
	e := NewEngine(conn, &scriptedRand{})

	text, err := e.Generate(50, DefaultBranchLimit, DefaultFallback)
	require.NoError(t, err)
	assert.Equal(t, 50, utf8.RuneCountInString(text))
	assert.True(t, strings.HasPrefix(text, "ABAB"))
}

func TestGenerateRespectsBranchLimit(t *testing.T) {
	conn := setupDB(t)
	learn(t, conn, "A B C", "B C", "B D", "B E")
	e := NewEngine(conn, &scriptedRand{values: []int{0, 7, 7, 7}})

	// Only B->C (weight 2) is eligible with a branch limit of 1.
	text, err := e.Generate(3, 1, DefaultFallback)
	require.NoError(t, err)
	assert.Equal(t, "ABC", text)
}

func TestGenerateCountsRunes(t *testing.T) {
	conn := setupDB(t)
	learn(t, conn, "猫 が 走る")
	e := NewEngine(conn, &scriptedRand{})

	// "猫が" is two runes but six bytes; a rune-based target of 3 still takes one more step.
	text, err := e.Generate(3, DefaultBranchLimit, DefaultFallback)
	require.NoError(t, err)
	assert.Equal(t, "猫が走る", text)
}

func TestGenerateSeedsFromTopStartsOnly(t *testing.T) {
	conn := setupDB(t)
	learn(t, conn,
		"A B", "A B", "A B",
		"C D", "C D",
		"E F", "E F",
		"G H", "G H",
		"Y Z",
	)

	// Five starts leave ceil(0.8*5) = 4 eligible seeds; the single Y->Z start is never one.
	seen := map[string]bool{}
	for v := 0; v < 5; v++ {
		e := NewEngine(conn, &scriptedRand{values: []int{v}})
		text, err := e.Generate(1, DefaultBranchLimit, DefaultFallback)
		require.NoError(t, err)
		seen[text] = true
	}
	assert.Equal(t, map[string]bool{"AB": true, "CD": true, "EF": true, "GH": true}, seen)
}
