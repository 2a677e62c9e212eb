// Package chat runs a conversation against the learned model: every input and every reply is
// fed back into the graph, and topic scores are rebuilt periodically.
package chat

import (
	"bufio"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/japaniel/chain/pkg/config"
	"github.com/japaniel/chain/pkg/converse"
	"github.com/japaniel/chain/pkg/corpus"
	"github.com/japaniel/chain/pkg/db"
	"github.com/japaniel/chain/pkg/generate"
	"github.com/japaniel/chain/pkg/graph"
	"github.com/japaniel/chain/pkg/logger"
	"github.com/japaniel/chain/pkg/metrics"
	"github.com/japaniel/chain/pkg/score"
	"go.uber.org/zap"
)

// ErrUnknownCommand is returned by Handle for a ':' line naming no known command.
var ErrUnknownCommand = errors.New("command not found")

// Turn is the outcome of one handled line. A zero InputID with an empty Command means the
// line was blank.
type Turn struct {
	Command string
	InputID int64
	ReplyID int64
	Reply   string
}

// Session owns every component of the model. It is not safe for concurrent use; callers
// sharing a Session must serialize access.
type Session struct {
	DB      *sql.DB
	Config  *config.Config
	Builder *graph.Builder
	Engine  *generate.Engine
	Matcher *converse.Matcher
	Scorer  *score.Scorer
	Loader  *corpus.Loader
	Logger  *zap.Logger

	turns int
}

// NewSession wires the model components over conn. m and log may be nil.
func NewSession(conn *sql.DB, cfg *config.Config, tok graph.Tokenizer, r generate.Rand, m *metrics.Collector, log *zap.Logger) *Session {
	builder := graph.NewBuilder(conn, tok)
	builder.Logger, builder.Metrics = log, m

	engine := generate.NewEngine(conn, r)
	engine.Logger, engine.Metrics = log, m

	matcher := converse.NewMatcher(conn, r, engine)
	matcher.BranchLimit = cfg.BranchLimit
	matcher.Fallback = cfg.Fallback
	matcher.Logger, matcher.Metrics = log, m

	scorer := score.NewScorer(conn)
	scorer.Logger, scorer.Metrics = log, m

	loader := corpus.NewLoader(builder)
	loader.Encoding = cfg.CorpusEncoding
	loader.Workers = cfg.Workers
	loader.Logger = log

	return &Session{
		DB:      conn,
		Config:  cfg,
		Builder: builder,
		Engine:  engine,
		Matcher: matcher,
		Scorer:  scorer,
		Loader:  loader,
		Logger:  log,
	}
}

// Handle processes one line of input. Lines starting with ':' run a command. Any other
// non-blank line is stored as user input and answered; the answer is stored as a reply.
func (s *Session) Handle(line string) (Turn, error) {
	line = strings.TrimSpace(line)
	if line == "" {
		return Turn{}, nil
	}
	if strings.HasPrefix(line, ":") {
		name := line[1:]
		switch name {
		case "sleep":
			return Turn{Command: name}, s.Sleep()
		}
		return Turn{Command: name}, fmt.Errorf("%w: %s", ErrUnknownCommand, name)
	}

	inputID, _, err := s.Builder.Register(line, graph.User)
	if err != nil {
		return Turn{}, fmt.Errorf("register input: %w", err)
	}
	reply, err := s.Matcher.MatchAndReply(inputID, s.Config.ReplyLength, s.Config.ExcludeDistance)
	if err != nil {
		return Turn{}, fmt.Errorf("reply to %d: %w", inputID, err)
	}
	replyID, _, err := s.Builder.Register(reply, graph.Reply)
	if err != nil {
		return Turn{}, fmt.Errorf("register reply: %w", err)
	}

	s.turns++
	if s.turns > s.Config.SleepEvery {
		if err := s.Sleep(); err != nil {
			return Turn{}, err
		}
		s.turns = 0
	}
	return Turn{InputID: inputID, ReplyID: replyID, Reply: reply}, nil
}

// Sleep rebuilds the topic scores.
func (s *Session) Sleep() error {
	if err := s.Scorer.RebuildTopicScores(); err != nil {
		return fmt.Errorf("rebuild topic scores: %w", err)
	}
	return nil
}

// Generate returns unconditioned text of about length runes.
func (s *Session) Generate(length int) (string, error) {
	return s.Engine.Generate(length, s.Config.BranchLimit, s.Config.Fallback)
}

// Tweets generates n independent texts of the configured tweet length.
func (s *Session) Tweets(n int) ([]string, error) {
	out := make([]string, 0, n)
	for i := 0; i < n; i++ {
		text, err := s.Generate(s.Config.TweetLength)
		if err != nil {
			return out, err
		}
		out = append(out, text)
	}
	return out, nil
}

// Initialize wipes the store, relearns the configured conversation and vocabulary corpora,
// and rebuilds topic scores.
func (s *Session) Initialize(ctx context.Context) error {
	log := logger.OrNop(s.Logger)

	if err := db.ResetDB(s.DB); err != nil {
		return fmt.Errorf("reset store: %w", err)
	}
	if dir := s.Config.CorpusDir; dir != "" {
		n, err := s.Loader.LoadConversation(ctx, dir)
		if err != nil {
			return fmt.Errorf("load conversation corpus: %w", err)
		}
		log.Info("conversation corpus loaded", zap.String("dir", dir), zap.Int("pieces", n))
	}
	if dir := s.Config.VocabularyDir; dir != "" {
		n, err := s.Loader.LoadVocabulary(ctx, dir)
		if err != nil {
			return fmt.Errorf("load vocabulary: %w", err)
		}
		log.Info("vocabulary loaded", zap.String("dir", dir), zap.Int("pieces", n))
	}
	s.turns = 0
	return s.Sleep()
}

// Run reads lines from in until EOF or ctx is done, writing a prompt before each line and
// the reply after it. Topic scores are rebuilt once input ends.
func (s *Session) Run(ctx context.Context, in io.Reader, out io.Writer) error {
	scanner := bufio.NewScanner(in)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		fmt.Fprint(out, ">>> ")
		if !scanner.Scan() {
			break
		}

		turn, err := s.Handle(scanner.Text())
		switch {
		case errors.Is(err, ErrUnknownCommand):
			fmt.Fprintln(out, ErrUnknownCommand.Error())
			continue
		case err != nil:
			return err
		}
		if turn.Reply != "" {
			fmt.Fprintln(out, "***", turn.Reply)
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read input: %w", err)
	}
	fmt.Fprintln(out)
	return s.Sleep()
}
