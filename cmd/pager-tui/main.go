package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"os/signal"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/docopt/docopt-go"
	"github.com/oklog/ulid/v2"
	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"

	"github.com/sour-is/pager"
	memsource "github.com/sour-is/pager/driver/mem-source"
	walsource "github.com/sour-is/pager/driver/wal-source"
	"github.com/sour-is/pager/internal/lg"
	"github.com/sour-is/pager/pkg/session"
	"github.com/sour-is/pager/pkg/source"
)

var usage = `pager-tui - scroll an unbounded list through a materialized window

Usage:
  pager-tui [options]

Options:
  --config FILE    read settings from FILE
  --records N      number of seeded records [default: 10000]
  --permalink ID   jump directly to record ID
  --wal PATH       back the list with a write-ahead log at PATH
  --follow         keep appending records while the list is open
`

type settings struct {
	Records         int           `yaml:"records"`
	MinPageSize     int           `yaml:"min_page_size"`
	RecenterFactor  int64         `yaml:"recenter_factor"`
	PersistDebounce time.Duration `yaml:"persist_debounce"`
	SessionTTL      time.Duration `yaml:"session_ttl"`
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, os.Kill)
	go func() {
		<-ctx.Done()
		defer cancel() // restore interrupt function
	}()

	opts, err := docopt.ParseDoc(usage)
	if err != nil {
		log.Fatal(err)
	}
	if err := run(ctx, opts); err != nil {
		log.Fatal(err)
	}
}

// Entry is a demo record. Sequence order is append order.
type Entry struct {
	ID   string `json:"id"`
	Seq  int    `json:"seq"`
	Text string `json:"text"`
}

func entryKey(e Entry) string { return e.ID }

func run(ctx context.Context, opts docopt.Opts) error {
	ctx, stop := lg.Init(ctx, "pager-tui")
	defer stop()

	cfg := settings{
		Records:         10_000,
		MinPageSize:     100,
		RecenterFactor:  2,
		PersistDebounce: 100 * time.Millisecond,
		SessionTTL:      session.DefaultTTL,
	}
	if file, _ := opts.String("--config"); file != "" {
		b, err := os.ReadFile(file)
		if err != nil {
			return err
		}
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return err
		}
	}
	if n, err := opts.Int("--records"); err == nil && n > 0 {
		cfg.Records = n
	}
	permalink, _ := opts.String("--permalink")
	walPath, _ := opts.String("--wal")
	follow, _ := opts.Bool("--follow")

	var src source.Source[Entry]
	var extract source.ExtractCursor[Entry]
	var app appender

	switch {
	case walPath != "":
		wlog, err := walsource.Open(ctx, walPath, walsource.Codec[Entry]{
			Key:    entryKey,
			Encode: func(e Entry) ([]byte, error) { return json.Marshal(e) },
			Decode: func(b []byte) (Entry, error) { var e Entry; err := json.Unmarshal(b, &e); return e, err },
		})
		if err != nil {
			return err
		}
		defer wlog.Close(context.Background())
		if err := seedWal(ctx, wlog, cfg.Records); err != nil {
			return err
		}
		src, extract, app = wlog, wlog.ExtractCursor, wlog
	default:
		mlog := memsource.New(entryKey, seed(cfg.Records)...)
		src, extract, app = mlog, mlog.ExtractCursor, mlog
	}

	view := newViewState()
	p, err := pager.New(ctx, src, extract,
		pager.WithRowHeight(1),
		pager.WithMinPageSize(cfg.MinPageSize),
		pager.WithRecenterFactor(cfg.RecenterFactor),
		pager.WithPersistDebounce(cfg.PersistDebounce),
		pager.WithSessionStore(session.NewStore(cfg.SessionTTL)),
		pager.WithViewport(view),
	)
	if err != nil {
		return err
	}

	if err := p.Mount(ctx, "demo", permalink); err != nil {
		return err
	}

	prog := tea.NewProgram(
		newModel(ctx, p, view),
		tea.WithAltScreen(),
		tea.WithContext(ctx),
	)
	view.notify(prog.Send)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer cancel()
		_, err := prog.Run()
		return err
	})
	if follow {
		g.Go(func() error {
			defer prog.Quit()
			return followAppend(ctx, app, cfg.Records)
		})
	}
	return g.Wait()
}

type appender interface {
	Append(ctx context.Context, records ...Entry) error
}

// followAppend grows the sequence while the list is open, one record
// a second, so the estimated total can be watched catching up.
func followAppend(ctx context.Context, app appender, seq int) error {
	tick := time.NewTicker(time.Second)
	defer tick.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-tick.C:
		}
		err := app.Append(ctx, Entry{
			ID:   ulid.Make().String(),
			Seq:  seq,
			Text: fmt.Sprintf("entry %d (live)", seq+1),
		})
		if err != nil {
			return err
		}
		seq++
	}
}

func seed(n int) []Entry {
	entries := make([]Entry, n)
	for i := range entries {
		entries[i] = Entry{
			ID:   ulid.Make().String(),
			Seq:  i,
			Text: fmt.Sprintf("entry %d of %d", i+1, n),
		}
	}
	return entries
}

func seedWal(ctx context.Context, wlog *walsource.Log[Entry], n int) error {
	// Seed only a fresh log; an existing one keeps its records.
	if page, err := wlog.FetchPage(ctx, 1, nil, source.Forward); err != nil {
		return err
	} else if len(page) > 0 {
		return nil
	}
	return wlog.Append(ctx, seed(n)...)
}
