package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"snapdiff/internal/catalog"
	"snapdiff/internal/config"
	"snapdiff/internal/delta"
	"snapdiff/internal/ingest"
	"snapdiff/internal/manifest"
	"snapdiff/internal/narrate"
	"snapdiff/internal/storage"

	"golang.org/x/sync/errgroup"
)

// Mode selects which read passes run after ingestion.
type Mode string

const (
	ModeAll     Mode = "run"
	ModeChanges Mode = "changes"
	ModeDeltas  Mode = "deltas"
)

func (m Mode) narrates() bool { return m == ModeAll || m == ModeChanges }
func (m Mode) deltas() bool   { return m == ModeAll || m == ModeDeltas }

// Result is what a run produced.
type Result struct {
	Catalog    *catalog.Catalog
	Files      []ingest.Stats
	Sections   []narrate.Section
	Deltas     []delta.Written
	ReportFile string
	DeltaDir   string
	HistoryDB  string
	RunReport  string
}

// ChangeLines counts the narrated lines of all sections.
func (r *Result) ChangeLines() int {
	n := 0
	for _, s := range r.Sections {
		n += len(s.Changes)
	}
	return n
}

type Runner struct {
	DataDir string
	Config  config.Config
	Logger  *slog.Logger
}

func NewRunner(dataDir string, cfg config.Config, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{DataDir: dataDir, Config: cfg, Logger: logger}
}

// resolve places relative output paths inside the data directory.
func (r *Runner) resolve(path string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(r.DataDir, path)
}

// Run ingests every snapshot of the manifest and then runs the read passes of
// mode concurrently.
func (r *Runner) Run(ctx context.Context, mode Mode) (res *Result, err error) {
	report := NewRunReport(mode, r.DataDir)
	res = &Result{
		HistoryDB: r.resolve(r.Config.HistoryDB),
		RunReport: r.resolve(r.Config.RunReport),
	}
	if res.RunReport != "" {
		defer func() {
			if saveErr := report.Save(res.RunReport); saveErr != nil && err == nil {
				err = fmt.Errorf("failed to save run report: %w", saveErr)
			}
		}()
	}

	cat, files, err := r.build(ctx, report)
	if err != nil {
		return res, err
	}
	res.Catalog = cat
	res.Files = files

	g, gctx := errgroup.WithContext(ctx)
	if mode.narrates() {
		res.ReportFile = r.resolve(r.Config.ReportFile)
		g.Go(func() error {
			sections, err := r.changesStage(report, cat, res.ReportFile)
			res.Sections = sections
			return err
		})
	}
	if mode.deltas() {
		res.DeltaDir = r.resolve(r.Config.DeltaDir)
		g.Go(func() error {
			written, err := r.deltaStage(gctx, report, cat, res.DeltaDir)
			res.Deltas = written
			return err
		})
	}
	var store *storage.SQLiteStore
	if res.HistoryDB != "" {
		store, err = storage.NewSQLiteStore(res.HistoryDB)
		if err != nil {
			return res, fmt.Errorf("failed to open history database: %w", err)
		}
		defer store.Close()
		g.Go(func() error {
			return r.historyStage(gctx, report, store, cat)
		})
	}
	if err := g.Wait(); err != nil {
		return res, err
	}

	if store != nil && len(res.Sections) > 0 {
		if err := store.SaveChanges(ctx, res.Sections); err != nil {
			return res, fmt.Errorf("failed to export change lines: %w", err)
		}
	}
	report.Count("change_lines", float64(res.ChangeLines()))
	report.Count("delta_documents", float64(len(res.Deltas)))
	return res, nil
}

// Build ingests the manifest of the data directory and returns the sealed catalog.
func (r *Runner) Build(ctx context.Context) (*catalog.Catalog, error) {
	cat, _, err := r.build(ctx, nil)
	return cat, err
}

func (r *Runner) build(ctx context.Context, report *RunReport) (*catalog.Catalog, []ingest.Stats, error) {
	m, err := r.manifestStage(report)
	if err != nil {
		return nil, nil, err
	}
	return r.ingestStage(ctx, report, m)
}

func (r *Runner) manifestStage(report *RunReport) (*manifest.Manifest, error) {
	h := report.BeginStage("manifest")
	m, err := manifest.Load(r.DataDir, r.Config.Manifest)
	if err == nil {
		err = m.Check()
	}
	if err != nil {
		report.EndStage(h, nil, err)
		return nil, fmt.Errorf("failed to load manifest: %w", err)
	}
	report.EndStage(h, map[string]float64{"files": float64(len(m.Entries))}, nil)
	r.Logger.Info("manifest loaded", "dir", r.DataDir, "files", len(m.Entries))
	return m, nil
}

func (r *Runner) ingestStage(ctx context.Context, report *RunReport, m *manifest.Manifest) (*catalog.Catalog, []ingest.Stats, error) {
	h := report.BeginStage("ingest")
	b := catalog.NewBuilder(r.Config.IdentityAttribute)
	in := ingest.New(b, ingest.Options{Wrapper: r.Config.WrapperElement, Logger: r.Logger})

	files := make([]ingest.Stats, 0, len(m.Entries))
	for i, entry := range m.Entries {
		st, err := in.IngestFile(ctx, entry)
		if err != nil {
			report.EndStage(h, nil, err)
			return nil, files, fmt.Errorf("failed to ingest %s: %w", entry.Name, err)
		}
		files = append(files, st)
		if i > 0 && st.Versions == 0 {
			report.AddSignal("unchanged_file", "ingest", "info",
				fmt.Sprintf("%s changed nothing relative to its predecessors", entry.Name), 0)
		}
	}
	cat := b.Finish()

	stats := cat.Stats()
	counters := map[string]float64{
		"files":    float64(len(files)),
		"entities": float64(stats.Entities),
		"nodes":    float64(stats.Nodes),
		"versions": float64(stats.Versions),
	}
	report.EndStage(h, counters, nil)
	for k, v := range counters {
		report.Count(k, v)
	}
	r.Logger.Info("catalog sealed", "entities", stats.Entities, "nodes", stats.Nodes, "versions", stats.Versions)
	return cat, files, nil
}

func (r *Runner) changesStage(report *RunReport, cat *catalog.Catalog, path string) ([]narrate.Section, error) {
	h := report.BeginStage("changes")
	sections := narrate.New(cat, narrate.Options{IncludeNewEmptyFields: r.Config.IncludeNewEmptyFields}).Sections()
	if err := narrate.SaveReport(path, sections); err != nil {
		report.EndStage(h, nil, err)
		return nil, fmt.Errorf("failed to write change report: %w", err)
	}
	report.EndStage(h, map[string]float64{"sections": float64(len(sections))}, nil)
	r.Logger.Info("change report written", "path", path, "sections", len(sections))
	return sections, nil
}

func (r *Runner) deltaStage(ctx context.Context, report *RunReport, cat *catalog.Catalog, dir string) ([]delta.Written, error) {
	h := report.BeginStage("deltas")
	s := delta.New(cat, delta.Options{
		IncludeNewEmptyFields: r.Config.IncludeNewEmptyFields,
		Wrapper:               r.Config.WrapperElement,
	})
	written, err := s.Export(ctx, dir)
	if err != nil {
		report.EndStage(h, nil, err)
		return written, fmt.Errorf("failed to export deltas: %w", err)
	}
	empty := 0
	for _, w := range written {
		if w.Entities == 0 {
			empty++
		}
	}
	report.EndStage(h, map[string]float64{"documents": float64(len(written)), "empty": float64(empty)}, nil)
	r.Logger.Info("deltas written", "dir", dir, "documents", len(written), "empty", empty)
	return written, nil
}

func (r *Runner) historyStage(ctx context.Context, report *RunReport, store storage.HistoryStore, cat *catalog.Catalog) error {
	h := report.BeginStage("history")
	if err := store.SaveCatalog(ctx, cat); err != nil {
		report.EndStage(h, nil, err)
		return fmt.Errorf("failed to export history: %w", err)
	}
	report.EndStage(h, map[string]float64{"versions": float64(cat.Stats().Versions)}, nil)
	r.Logger.Info("history exported")
	return nil
}
