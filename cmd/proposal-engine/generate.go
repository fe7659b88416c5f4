// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/pdiddy/proposal-engine/internal/document"
	"github.com/pdiddy/proposal-engine/internal/gateway"
	"github.com/pdiddy/proposal-engine/internal/template"
)

var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Generate a full proposal document from a template",
	Long: `Generate runs full-document generation over every section of a template
and writes the finished document to stdout as Markdown. Sections the backend
cannot generate receive placeholder text, so the output is always complete.

By default generation talks to the request/response backend endpoint. With
--stream the engine connects to the backend's websocket push channel instead
and mirrors chunked text as it arrives.`,
	RunE: runGenerate,
}

func init() {
	generateCmd.Flags().String("template", "", "path to template YAML (required)")
	generateCmd.Flags().String("backend", "", "generation backend endpoint URL")
	generateCmd.Flags().String("stream", "", "backend websocket push channel URL (overrides --backend)")
	generateCmd.Flags().String("mode", "", "sequencing policy: serial or staggered (default staggered)")
	generateCmd.Flags().Duration("section-delay", 0, "pause between sections in serial mode (default 500ms)")
	generateCmd.Flags().Duration("stagger-interval", 0, "launch interval in staggered mode (default 200ms)")
	generateCmd.Flags().String("divergence", "", "policy when generated text diverges from existing content: append or overwrite (default append)")
	generateCmd.Flags().Bool("paced", false, "reveal text with interactive typing pacing instead of at full speed")

	rootCmd.AddCommand(generateCmd)
}

func runGenerate(cmd *cobra.Command, args []string) error {
	templatePath, _ := cmd.Flags().GetString("template")
	if templatePath == "" {
		return fmt.Errorf("provide a template with --template")
	}
	tpl, err := template.Load(templatePath)
	if err != nil {
		return err
	}

	logger := newLogger(cmd)
	cfg := engineConfig(cmd)
	if cfg.Gateway.URL == "" && cfg.Stream.URL == "" {
		return fmt.Errorf("provide a backend with --backend or --stream")
	}

	var gw *gateway.Gateway
	if cfg.Gateway.URL != "" {
		gw = gateway.New(cfg.Gateway, nil, logger)
	}
	session := document.New(cfg, gw, logger)
	defer session.Close()
	session.InitializeFromTemplate(tpl)

	ctx := cmd.Context()
	if cfg.Stream.URL != "" {
		if err := session.ConnectStream(ctx); err != nil {
			return fmt.Errorf("connecting push channel: %w", err)
		}
	}

	report, started := session.GenerateDocument(ctx)
	if !started {
		return fmt.Errorf("generation already running")
	}
	for id, outcome := range report.Outcomes {
		logger.Debug("section finished", "section", id, "outcome", outcome)
	}

	return writeMarkdown(os.Stdout, tpl.Name, session)
}

// writeMarkdown renders the document's sections in order.
func writeMarkdown(w *os.File, title string, session *document.Session) error {
	if title != "" {
		if _, err := fmt.Fprintf(w, "# %s\n\n", title); err != nil {
			return fmt.Errorf("writing document: %w", err)
		}
	}
	for _, sec := range session.Sections() {
		if _, err := fmt.Fprintf(w, "## %s\n\n%s\n\n", sec.Title, sec.Content); err != nil {
			return fmt.Errorf("writing document: %w", err)
		}
	}
	return nil
}
