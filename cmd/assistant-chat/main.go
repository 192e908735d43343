package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/joho/godotenv"

	"assistant/internal/app"
	"assistant/internal/config"
	"assistant/internal/domain"
	"assistant/internal/logging"
	"assistant/internal/summarizer"
	"assistant/internal/tui"
)

func main() {
	_ = godotenv.Load()

	var cfgPath string
	flag.StringVar(&cfgPath, "config", "", "Path to YAML config file (optional; uses ~/.config/assistant/config.yaml if not provided)")
	flag.Parse()
	inputs := flag.Args()

	var cfg *config.AppConfig
	var err error
	if cfgPath == "" {
		cfg, _, err = config.LoadDefault()
	} else {
		cfg, err = config.Load(cfgPath)
	}
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := logging.New(cfg.Log)
	if err != nil {
		log.Fatalf("failed to build logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	components, err := app.Build(cfg, logger)
	if err != nil {
		log.Fatalf("failed to assemble components: %v", err)
	}

	// Files named on the command line are ingested before the chat starts;
	// the status line carries a short digest of what came in.
	status := ""
	if len(inputs) > 0 {
		ctx := context.Background()
		total := 0
		var texts []string
		for _, path := range inputs {
			data, err := os.ReadFile(path)
			if err != nil {
				log.Fatalf("failed to read %s: %v", path, err)
			}
			res, err := components.Knowledge.Ingest(ctx, domain.Document{
				Source: filepath.Base(path),
				Text:   string(data),
			})
			if err != nil {
				log.Fatalf("failed to ingest %s: %v", path, err)
			}
			total += res.ChunksCreated
			texts = append(texts, string(data))
		}
		digest := summarizer.New().Summarize(strings.Join(texts, "\n\n"), 2)
		status = fmt.Sprintf("Ingested %d chunks from %d file(s). %s", total, len(inputs), digest)
	}

	m := tui.New(components.Assistant, status)
	if _, err := tea.NewProgram(m).Run(); err != nil {
		log.Fatal(err)
	}
}
