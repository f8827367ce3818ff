package research

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rustyeddy/equitytrader/internal/logging"
	"github.com/rustyeddy/equitytrader/plan"
	"github.com/rustyeddy/equitytrader/risk"
	"go.uber.org/zap"
)

// Generator returns the model's raw reply to prompt.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// GeneratorFunc adapts a function to Generator.
type GeneratorFunc func(ctx context.Context, prompt string) (string, error)

func (f GeneratorFunc) Generate(ctx context.Context, prompt string) (string, error) {
	return f(ctx, prompt)
}

type Researcher struct {
	Gen    Generator
	Bars   BarSource
	Policy *risk.Policy

	// LogPath, when set, receives one JSON line per generation.
	LogPath string

	Log *zap.Logger
	Now func() time.Time

	mu sync.Mutex
}

type logEntry struct {
	TS       int64    `json:"ts"`
	Universe []string `json:"prompt_universe"`
	Raw      string   `json:"raw"`
	Ideas    []Idea   `json:"ideas"`
}

// GeneratePlans screens universe, prompts the model with the survivors and
// turns its ideas into plan items. Nothing is generated when no symbol
// survives the screen.
func (r *Researcher) GeneratePlans(ctx context.Context, universe []string, strategy string, maxCandidates int) ([]plan.Item, error) {
	log := logging.OrNop(r.Log)
	now := time.Now
	if r.Now != nil {
		now = r.Now
	}

	cands, err := Screen(ctx, r.Bars, universe, r.Policy, maxCandidates, log)
	if err != nil {
		return nil, err
	}
	symbols := Symbols(cands)
	log.Info("screened universe", zap.Int("universe", len(universe)), zap.Strings("candidates", symbols))
	if len(symbols) == 0 {
		return nil, nil
	}

	started := now()
	prompt := BuildPrompt(symbols, strategy, r.Policy) + CandidateNotes(cands)
	raw, err := r.Gen.Generate(ctx, prompt)
	if err != nil {
		return nil, fmt.Errorf("generate ideas: %w", err)
	}
	ideas, err := ParseIdeas(raw)
	if err != nil {
		return nil, err
	}

	if err := r.appendLog(logEntry{TS: started.Unix(), Universe: symbols, Raw: raw, Ideas: ideas}); err != nil {
		log.Warn("research log write failed", zap.String("path", r.LogPath), zap.Error(err))
	}
	log.Info("model ideas", zap.Int("count", len(ideas)))
	return IdeasToPlans(ideas), nil
}

func (r *Researcher) appendLog(e logEntry) error {
	if r.LogPath == "" {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(r.LogPath), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(r.LogPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	if err := json.NewEncoder(f).Encode(e); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
