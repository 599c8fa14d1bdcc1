package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"cosmicdocflow/internal/checkpoint"
	"cosmicdocflow/internal/config"
	"cosmicdocflow/internal/generation"
	"cosmicdocflow/internal/llm"
	"cosmicdocflow/internal/logging"
	"cosmicdocflow/internal/pipeline"
	"cosmicdocflow/internal/ports"
	"cosmicdocflow/internal/prompt"
	"cosmicdocflow/internal/publish"
	"cosmicdocflow/internal/session"
	"cosmicdocflow/internal/stages"
	"cosmicdocflow/internal/track"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	inputRoot := flag.String("input", "", "override paths.input_root")
	outputRoot := flag.String("output", "", "override paths.output_root")
	provider := flag.String("provider", "", "override providers.default")
	flag.Parse()

	if err := run(*configPath, *inputRoot, *outputRoot, *provider); err != nil {
		slog.Error("run failed", "error", err)
		os.Exit(1)
	}
}

func run(configPath, inputRoot, outputRoot, provider string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if inputRoot != "" {
		cfg.Paths.InputRoot = inputRoot
	}
	if outputRoot != "" {
		cfg.Paths.OutputRoot = outputRoot
	}
	if provider != "" {
		cfg.Providers.Default = provider
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	logging.Setup(cfg.Log.Level)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	providerCfg := cfg.Providers.Table[cfg.Providers.Default]
	gateway, err := llm.New(ctx, cfg.Providers.Default, providerCfg)
	if err != nil {
		return err
	}

	transport := generation.DefaultTransportPolicy()
	if providerCfg.TransportAttempts > 0 {
		transport.MaxAttempts = providerCfg.TransportAttempts
	}
	registry := session.NewRegistry(cfg.Generation.SessionCache)
	loop := generation.NewLoop(gateway, registry, cfg.Generation, cfg.Paths.TranscriptDir, transport)

	renderer, err := prompt.New(cfg.Paths.PromptDir)
	if err != nil {
		return err
	}
	store := checkpoint.NewStore(cfg.Paths.OutputRoot)
	env := &stages.Env{
		Loop:     loop,
		Renderer: renderer,
		Store:    store,
		Rules:    cfg.Rules,
		Pipeline: cfg.Pipeline,
	}

	analysis, err := stages.NewAnalysis(env)
	if err != nil {
		return err
	}
	report, err := stages.NewReport(env)
	if err != nil {
		return err
	}
	stageList := []pipeline.Stage{
		stages.Extract{Env: env},
		analysis,
		stages.Table{Env: env},
		stages.Necessity{Env: env},
		report,
	}

	var tracker ports.StatusTracker = ports.NoopTracker{}
	if cfg.Track.Project != "" {
		ft, err := track.NewFirestoreTracker(ctx, cfg.Track.Project, cfg.Track.Collection)
		if err != nil {
			return err
		}
		defer ft.Close()
		tracker = ft
	}
	var publisher ports.ArtifactWriter
	if cfg.Publish.Bucket != "" {
		gp, err := publish.NewGCSPublisher(ctx, cfg.Publish.Bucket)
		if err != nil {
			return err
		}
		defer gp.Close()
		publisher = gp
	}

	units, err := discoverUnits(cfg.Paths.InputRoot)
	if err != nil {
		return err
	}
	if len(units) == 0 {
		return fmt.Errorf("no source documents found under %s", cfg.Paths.InputRoot)
	}
	slog.Info("starting pipeline",
		"units", len(units), "provider", cfg.Providers.Default, "workers", cfg.Pipeline.Workers)

	runner := &pipeline.Runner{
		Store:     store,
		Reader:    pipeline.FileReader{},
		Tracker:   tracker,
		Publisher: publisher,
		Stages:    stageList,
		Workers:   cfg.Pipeline.Workers,
	}
	return runner.Run(ctx, units)
}

// discoverUnits walks inputRoot/<owner>/<document> and builds one work unit
// per document file. The unit name is the file name without its extension.
func discoverUnits(root string) ([]pipeline.WorkUnit, error) {
	owners, err := os.ReadDir(root)
	if err != nil {
		return nil, fmt.Errorf("read input root %s: %w", root, err)
	}
	var units []pipeline.WorkUnit
	for _, owner := range owners {
		if !owner.IsDir() {
			continue
		}
		docs, err := os.ReadDir(filepath.Join(root, owner.Name()))
		if err != nil {
			return nil, fmt.Errorf("read owner dir %s: %w", owner.Name(), err)
		}
		for _, doc := range docs {
			if doc.IsDir() || strings.HasPrefix(doc.Name(), ".") {
				continue
			}
			name := strings.TrimSuffix(doc.Name(), filepath.Ext(doc.Name()))
			units = append(units, pipeline.WorkUnit{
				Owner:      owner.Name(),
				Name:       name,
				SourcePath: filepath.Join(root, owner.Name(), doc.Name()),
			})
		}
	}
	return units, nil
}
