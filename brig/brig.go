// Package brig is an in-memory jail for abusive peers. It receives reports
// from the HTTP engine and tells it which addresses to drop.
package brig

import (
	"context"
	"log/slog"
	"time"

	"github.com/freekieb7/wicket/http"
	"github.com/puzpuzpuz/xsync/v3"
)

// Brig jails a reported address for a fixed duration per classification.
// It is safe for concurrent use.
type Brig struct {
	cells     *xsync.MapOf[string, cell]
	durations map[http.Classification]time.Duration
	fallback  time.Duration
	now       func() time.Time
	logger    *slog.Logger
}

type cell struct {
	class    http.Classification
	releases time.Time
	reports  int
}

// Inmate describes one jailed address.
type Inmate struct {
	Addr     string
	Class    http.Classification
	Releases time.Time
	Reports  int
}

type Option func(*Brig)

// WithDuration sets the sentence for one classification.
func WithDuration(class http.Classification, d time.Duration) Option {
	return func(b *Brig) {
		b.durations[class] = d
	}
}

func WithClock(now func() time.Time) Option {
	return func(b *Brig) {
		b.now = now
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(b *Brig) {
		b.logger = logger
	}
}

// New jails for sentence unless an option sets a per-class duration.
func New(sentence time.Duration, opts ...Option) *Brig {
	b := &Brig{
		cells:     xsync.NewMapOf[string, cell](),
		durations: make(map[http.Classification]time.Duration),
		fallback:  sentence,
		now:       time.Now,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Report jails addr. A repeat offender's sentence restarts and doubles per
// prior report.
func (b *Brig) Report(addr string, class http.Classification) {
	sentence, ok := b.durations[class]
	if !ok {
		sentence = b.fallback
	}

	now := b.now()
	updated, _ := b.cells.Compute(addr, func(old cell, loaded bool) (cell, bool) {
		reports := 1
		if loaded {
			reports = old.reports + 1
		}
		return cell{
			class:    class,
			releases: now.Add(sentence << min(reports-1, 8)),
			reports:  reports,
		}, false
	})

	b.logger.Info("peer jailed",
		"addr", addr,
		"class", class,
		"reports", updated.reports,
		"releases", updated.releases)
}

// IsJailed reports whether addr is serving a sentence right now.
func (b *Brig) IsJailed(addr string) bool {
	c, ok := b.cells.Load(addr)
	return ok && b.now().Before(c.releases)
}

// Release frees addr early.
func (b *Brig) Release(addr string) {
	b.cells.Delete(addr)
}

// Inmates lists everyone currently held, expired sentences included until
// the next Sweep.
func (b *Brig) Inmates() []Inmate {
	inmates := make([]Inmate, 0, b.cells.Size())
	b.cells.Range(func(addr string, c cell) bool {
		inmates = append(inmates, Inmate{Addr: addr, Class: c.class, Releases: c.releases, Reports: c.reports})
		return true
	})
	return inmates
}

// Sweep forgets addresses whose sentence has ended. It has the
// schedule.Task signature.
func (b *Brig) Sweep(ctx context.Context) error {
	now := b.now()
	released := 0
	b.cells.Range(func(addr string, c cell) bool {
		if !now.Before(c.releases) {
			b.cells.Delete(addr)
			released++
		}
		return ctx.Err() == nil
	})
	if released > 0 {
		b.logger.DebugContext(ctx, "released peers", "count", released)
	}
	return ctx.Err()
}
