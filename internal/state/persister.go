package state

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ducminhle1904/tradeguard/internal/bracket"
	"github.com/ducminhle1904/tradeguard/internal/health"
	"github.com/ducminhle1904/tradeguard/internal/logger"
	"github.com/ducminhle1904/tradeguard/internal/risk"
)

// Keys under which snapshots are stored
const (
	KeyRiskState      = "risk:state"
	KeyActiveBrackets = "brackets:active"
	KeyBracketHistory = "brackets:history"
	KeyExecutions     = "health:executions"
	snapshotVersion   = "1.0.0"
)

// RiskSnapshotter is the part of the risk gate the persister needs
type RiskSnapshotter interface {
	Snapshot() risk.State
	Restore(st risk.State)
}

// BracketSnapshotter is the part of the bracket manager the persister needs
type BracketSnapshotter interface {
	Snapshot() []bracket.Order
	History() []bracket.Order
	Restore(orders []bracket.Order, history []bracket.Order) error
}

// ExecutionSnapshotter is the part of the health monitor the persister needs
type ExecutionSnapshotter interface {
	ExecutionHistory() []health.ExecutionRecord
	RestoreExecutions(records []health.ExecutionRecord)
}

type envelope[T any] struct {
	Version string    `json:"version"`
	SavedAt time.Time `json:"saved_at"`
	Data    T         `json:"data"`
}

// Persister saves and restores guard state through a Store
type Persister struct {
	store    Store
	risk     RiskSnapshotter
	brackets BracketSnapshotter
	execs    ExecutionSnapshotter
	logger   *logger.Logger
	now      func() time.Time
}

// NewPersister creates a persister. Either component may be nil.
func NewPersister(store Store, gate RiskSnapshotter, brackets BracketSnapshotter, log *logger.Logger) *Persister {
	if log == nil {
		log = logger.Nop()
	}
	return &Persister{store: store, risk: gate, brackets: brackets, logger: log, now: time.Now}
}

// WithExecutions also persists the execution history of src
func (p *Persister) WithExecutions(src ExecutionSnapshotter) *Persister {
	p.execs = src
	return p
}

func put[T any](ctx context.Context, s Store, key string, v T, at time.Time) error {
	data, err := json.MarshalIndent(envelope[T]{Version: snapshotVersion, SavedAt: at, Data: v}, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", key, err)
	}
	return s.Set(ctx, key, data)
}

func fetch[T any](ctx context.Context, s Store, key string) (T, bool, error) {
	var env envelope[T]
	data, ok, err := s.Get(ctx, key)
	if err != nil || !ok {
		return env.Data, ok, err
	}
	if err := json.Unmarshal(data, &env); err != nil {
		return env.Data, false, fmt.Errorf("failed to parse %s: %w", key, err)
	}
	return env.Data, true, nil
}

// Save writes every configured snapshot. It keeps going after a failed key
// and returns the joined errors.
func (p *Persister) Save(ctx context.Context) error {
	at := p.now()
	var errs []error

	if p.risk != nil {
		errs = append(errs, put(ctx, p.store, KeyRiskState, p.risk.Snapshot(), at))
	}
	if p.brackets != nil {
		errs = append(errs,
			put(ctx, p.store, KeyActiveBrackets, p.brackets.Snapshot(), at),
			put(ctx, p.store, KeyBracketHistory, p.brackets.History(), at))
	}
	if p.execs != nil {
		errs = append(errs, put(ctx, p.store, KeyExecutions, p.execs.ExecutionHistory(), at))
	}

	if err := errors.Join(errs...); err != nil {
		return err
	}
	p.logger.Debug("State saved")
	return nil
}

// Load restores every snapshot that exists. Missing keys leave the component untouched.
func (p *Persister) Load(ctx context.Context) error {
	if p.risk != nil {
		st, ok, err := fetch[risk.State](ctx, p.store, KeyRiskState)
		if err != nil {
			return err
		}
		if ok {
			p.risk.Restore(st)
			p.logger.Info("Restored risk state (%d open positions)", len(st.Positions))
		}
	}

	if p.brackets != nil {
		active, okActive, err := fetch[[]bracket.Order](ctx, p.store, KeyActiveBrackets)
		if err != nil {
			return err
		}
		history, okHistory, err := fetch[[]bracket.Order](ctx, p.store, KeyBracketHistory)
		if err != nil {
			return err
		}
		if okActive || okHistory {
			if err := p.brackets.Restore(active, history); err != nil {
				p.logger.LogWarning("State Restore", "Some brackets were not restored: %v", err)
			}
		}
	}

	if p.execs != nil {
		records, ok, err := fetch[[]health.ExecutionRecord](ctx, p.store, KeyExecutions)
		if err != nil {
			return err
		}
		if ok {
			p.execs.RestoreExecutions(records)
		}
	}

	if p.risk == nil && p.brackets == nil && p.execs == nil {
		return nil
	}
	p.logger.Info("State loaded")
	return nil
}

// LoadHistory reads closed brackets without touching any live component
func (p *Persister) LoadHistory(ctx context.Context) ([]bracket.Order, error) {
	history, _, err := fetch[[]bracket.Order](ctx, p.store, KeyBracketHistory)
	return history, err
}

// LoadExecutions reads the persisted execution history without touching any live component
func (p *Persister) LoadExecutions(ctx context.Context) ([]health.ExecutionRecord, error) {
	records, _, err := fetch[[]health.ExecutionRecord](ctx, p.store, KeyExecutions)
	return records, err
}

// Run saves every interval until ctx is done, then saves once more
func (p *Persister) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := p.Save(ctx); err != nil {
				p.logger.LogError("State Save", err)
			}
		case <-ctx.Done():
			final, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
			if err := p.Save(final); err != nil {
				p.logger.LogError("State Save", err)
			}
			cancel()
			return
		}
	}
}
