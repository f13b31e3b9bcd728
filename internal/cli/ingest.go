package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"docingest/internal/adapter/fs"
	"docingest/internal/domain"
	"docingest/internal/usecase"
)

var (
	ingestUser     string
	ingestCategory string
	ingestTitle    string
)

var ingestCmd = &cobra.Command{
	Use:   "ingest [path]",
	Short: "Chunk, embed and store a file or every matching file in a directory",
	Long: `Ingest a single document or all matching documents under a directory.
Each file is an independent run: it is extracted, normalized, chunked,
validated, embedded in one batch and written to the store atomically.

Examples:
  docingest ingest notes.pdf --user alice --title "Q3 notes"
  docingest ingest ./manuals --user alice --category manuals`,
	Args: cobra.MaximumNArgs(1),
	RunE: runIngest,
}

func init() {
	ingestCmd.Flags().StringVarP(&ingestUser, "user", "u", "", "user id the records belong to (required)")
	ingestCmd.Flags().StringVar(&ingestCategory, "category", "", "category stored with every chunk")
	ingestCmd.Flags().StringVar(&ingestTitle, "title", "", "title stored with every chunk (single file only)")
	rootCmd.AddCommand(ingestCmd)
}

func runIngest(cmd *cobra.Command, args []string) error {
	path := GetRootDir()
	if len(args) > 0 {
		var err error
		path, err = filepath.Abs(args[0])
		if err != nil {
			return fmt.Errorf("invalid path: %w", err)
		}
	}

	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("path does not exist: %w", err)
	}

	cfg := GetConfig()

	st, err := openStore(cfg, GetRootDir())
	if err != nil {
		return err
	}
	defer st.close()

	ingestUC, err := newIngestUseCase(cfg, st.writer, nil)
	if err != nil {
		return err
	}

	if !info.IsDir() {
		return ingestOne(cmd, ingestUC, path)
	}

	walker := fs.NewWalker(cfg.Ingest.Includes, cfg.Ingest.Excludes)
	batch := usecase.NewBatchUseCase(ingestUC, walker, cfg.Ingest.Concurrency, cfg.Ingest.MaxFileBytes)

	fmt.Printf("Scanning %s...\n", path)

	var bar *progressbar.ProgressBar
	var barMu sync.Mutex
	var startTime time.Time

	progressCallback := func(processed, total int, currentFile string) {
		barMu.Lock()
		defer barMu.Unlock()

		if bar == nil {
			startTime = time.Now()
			bar = progressbar.NewOptions(total,
				progressbar.OptionEnableColorCodes(true),
				progressbar.OptionShowBytes(false),
				progressbar.OptionSetWidth(40),
				progressbar.OptionShowCount(),
				progressbar.OptionSetDescription("[cyan]Ingesting[reset]"),
				progressbar.OptionSetTheme(progressbar.Theme{
					Saucer:        "[green]=[reset]",
					SaucerHead:    "[green]>[reset]",
					SaucerPadding: " ",
					BarStart:      "[",
					BarEnd:        "]",
				}),
				progressbar.OptionOnCompletion(func() {
					fmt.Println()
				}),
			)
		}

		bar.Set(processed)

		if processed > 0 {
			elapsed := time.Since(startTime)
			rate := float64(processed) / elapsed.Seconds()
			remaining := total - processed
			if rate > 0 {
				eta := time.Duration(float64(remaining)/rate) * time.Second
				bar.Describe(fmt.Sprintf("[cyan]Ingesting[reset] ETA: %s", formatDuration(eta)))
			}
		}
	}

	result, err := batch.Run(cmd.Context(), usecase.BatchRequest{
		Root:     path,
		UserID:   ingestUser,
		Category: ingestCategory,
	}, progressCallback)
	if err != nil {
		return fmt.Errorf("ingestion failed: %w", err)
	}

	fmt.Printf("\nIngestion complete:\n")
	fmt.Printf("  Files ingested: %d\n", result.Succeeded)
	fmt.Printf("  Files failed:   %d\n", result.Failed)
	fmt.Printf("  Chunks stored:  %d\n", result.Chunks)

	var gapped []usecase.FileOutcome
	for _, o := range result.Outcomes {
		if o.Err == nil && o.Gaps > 0 {
			gapped = append(gapped, o)
		}
	}
	if len(gapped) > 0 {
		fmt.Printf("\nCoverage gaps:\n")
		for _, o := range gapped {
			fmt.Printf("  - %s: %d gaps\n", o.Path, o.Gaps)
		}
	}

	if result.Failed > 0 {
		fmt.Printf("\nFailures:\n")
		for _, o := range result.Outcomes {
			if o.Err != nil {
				fmt.Printf("  - %s: %v\n", o.Path, o.Err)
			}
		}
	}

	fmt.Printf("\nStore: %s\n", cfg.StorePath(GetRootDir()))
	return nil
}

func ingestOne(cmd *cobra.Command, ingestUC *usecase.IngestUseCase, path string) error {
	data, err := fs.ReadFile(path, GetConfig().Ingest.MaxFileBytes)
	if err != nil {
		return err
	}

	res, err := ingestUC.Ingest(cmd.Context(), domain.Upload{
		Filename: filepath.Base(path),
		Data:     data,
		UserID:   ingestUser,
		Category: ingestCategory,
		Title:    ingestTitle,
	})
	if err != nil {
		return err
	}

	fmt.Println(res.Message())
	fmt.Printf("  Document ID: %s\n", res.DocumentID)
	if !res.Report.IsValid {
		fmt.Printf("  Coverage gaps: %d (%d characters)\n", len(res.Report.Gaps), res.Report.TotalGap())
	}
	return nil
}

// formatDuration formats a duration in a human-readable way.
func formatDuration(d time.Duration) string {
	if d < time.Second {
		return "<1s"
	}
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	if d < time.Hour {
		m := int(d.Minutes())
		s := int(d.Seconds()) % 60
		return fmt.Sprintf("%dm%ds", m, s)
	}
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	return fmt.Sprintf("%dh%dm", h, m)
}
