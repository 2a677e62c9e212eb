// Package corpus feeds directories of conversation logs and vocabulary text into the graph.
package corpus

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-shiori/go-readability"
	"github.com/japaniel/chain/pkg/graph"
	"github.com/japaniel/chain/pkg/logger"
	"github.com/japaniel/chain/pkg/morph"
	"go.uber.org/zap"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/japanese"
)

// Loader reads corpus directories. Tokenization is spread over Workers goroutines, but every
// piece is ingested on the calling goroutine in file order.
type Loader struct {
	Builder *graph.Builder
	// Encoding names the corpus file encoding: utf-8 (default), shift_jis, euc-jp, iso-2022-jp.
	Encoding string
	Workers  int
	Logger   *zap.Logger

	// PoolFactory allows tests to inject custom worker pool implementations.
	PoolFactory func(workers, queue int) WorkerPoolInterface
}

// NewLoader creates a Loader ingesting through b.
func NewLoader(b *graph.Builder) *Loader {
	return &Loader{
		Builder:  b,
		Encoding: "utf-8",
		Workers:  4,
	}
}

type piece struct {
	text       string
	authorship graph.Authorship
}

// LoadConversation ingests every file in dir as a dialogue: lines alternate between user
// input and reply, starting with user input on the first line of each file. Returns the
// number of pieces ingested.
func (l *Loader) LoadConversation(ctx context.Context, dir string) (int, error) {
	return l.loadDir(ctx, dir, func(line int) graph.Authorship {
		if line%2 == 0 {
			return graph.User
		}
		return graph.Reply
	})
}

// LoadVocabulary ingests every file in dir into the relation graph only.
func (l *Loader) LoadVocabulary(ctx context.Context, dir string) (int, error) {
	return l.loadDir(ctx, dir, func(int) graph.Authorship { return graph.Vocabulary })
}

func (l *Loader) loadDir(ctx context.Context, dir string, authorship func(line int) graph.Authorship) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, fmt.Errorf("read corpus dir: %w", err)
	}
	log := logger.OrNop(l.Logger)

	total := 0
	for _, entry := range entries {
		if !entry.Type().IsRegular() {
			continue
		}
		if err := ctx.Err(); err != nil {
			return total, err
		}

		path := filepath.Join(dir, entry.Name())
		lines, err := l.readLines(path)
		if err != nil {
			return total, err
		}

		var pieces []piece
		for i, line := range lines {
			for _, s := range morph.SplitSentences(line) {
				pieces = append(pieces, piece{text: s, authorship: authorship(i)})
			}
		}

		tokens, err := l.tokenize(ctx, pieces)
		if err != nil {
			return total, fmt.Errorf("%s: %w", path, err)
		}
		for i, p := range pieces {
			if _, _, err := l.Builder.Ingest(p.text, tokens[i], p.authorship); err != nil {
				return total, fmt.Errorf("%s: ingest %q: %w", path, p.text, err)
			}
			total++
		}
		log.Info("corpus file ingested", zap.String("path", path), zap.Int("pieces", len(pieces)))
	}
	return total, nil
}

// tokenize analyzes every piece on the worker pool and returns tokens in piece order.
func (l *Loader) tokenize(ctx context.Context, pieces []piece) ([][]morph.Token, error) {
	if l.Builder == nil || l.Builder.Tokenizer == nil {
		return nil, fmt.Errorf("corpus: no tokenizer configured")
	}
	tok := l.Builder.Tokenizer

	out := make([][]morph.Token, len(pieces))
	errs := make([]error, len(pieces))

	var wp WorkerPoolInterface
	if l.PoolFactory != nil {
		wp = l.PoolFactory(l.Workers, l.Workers*2)
	} else {
		wp = NewWorkerPool(l.Workers, l.Workers*2)
	}
	wp.Start(ctx)

	for i := range pieces {
		idx := i
		err := wp.SubmitCtx(ctx, func(ctx context.Context) error {
			out[idx], errs[idx] = tok.Analyze(pieces[idx].text)
			return errs[idx]
		})
		if err != nil {
			wp.Close()
			return nil, err
		}
	}
	wp.Close()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	for i, err := range errs {
		if err != nil {
			return nil, fmt.Errorf("tokenize %q: %w", pieces[i].text, err)
		}
	}
	return out, nil
}

// readLines decodes a corpus file and splits it into lines. HTML files are reduced to their
// article text first.
func (l *Loader) readLines(path string) ([]string, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	enc, err := lookupEncoding(l.Encoding)
	if err != nil {
		return nil, err
	}
	content := raw
	if enc != nil {
		if content, err = enc.NewDecoder().Bytes(raw); err != nil {
			return nil, fmt.Errorf("decode %s as %s: %w", path, l.Encoding, err)
		}
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".html", ".htm":
		content = morph.SanitizeRuby(content)
		pageURL := &url.URL{Scheme: "file", Path: filepath.ToSlash(path)}
		article, err := readability.FromReader(bytes.NewReader(content), pageURL)
		if err != nil {
			return nil, fmt.Errorf("extract article from %s: %w", path, err)
		}
		content = []byte(article.TextContent)
	}

	return strings.Split(strings.ReplaceAll(string(content), "\r\n", "\n"), "\n"), nil
}

// lookupEncoding returns nil for UTF-8, which needs no decoding.
func lookupEncoding(name string) (encoding.Encoding, error) {
	switch strings.ToLower(strings.ReplaceAll(name, "_", "-")) {
	case "", "utf-8", "utf8":
		return nil, nil
	case "shift-jis", "sjis", "cp932":
		return japanese.ShiftJIS, nil
	case "euc-jp":
		return japanese.EUCJP, nil
	case "iso-2022-jp":
		return japanese.ISO2022JP, nil
	}
	return nil, fmt.Errorf("unsupported corpus encoding %q", name)
}
