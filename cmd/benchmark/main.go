package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"docingest/config"
	"docingest/internal/adapter/chunker"
	"docingest/internal/adapter/extract"
	"docingest/internal/adapter/fs"
)

// setting is one target:overlap pair under test.
type setting struct {
	target  int
	overlap int
}

type totals struct {
	files    int
	skipped  int
	chars    int
	chunks   int
	gapped   int
	gapChars int
	elapsed  time.Duration
}

func main() {
	dir := flag.String("dir", ".", "Directory of documents to chunk")
	settings := flag.String("settings", "500:50,1000:200,2000:300", "Comma-separated target:overlap pairs")
	flag.Parse()

	cfg, err := config.LoadFromDir(*dir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}

	pairs, err := parseSettings(*settings)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	texts, skipped, err := loadTexts(*dir, cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error reading documents: %v\n", err)
		os.Exit(1)
	}
	if len(texts) == 0 {
		fmt.Println("No extractable documents found.")
		os.Exit(1)
	}

	fmt.Println("CHUNKING BENCHMARK")
	fmt.Println(strings.Repeat("=", 70))
	fmt.Printf("Documents: %d (skipped %d)\n", len(texts), skipped)
	fmt.Printf("Min chunk size: %d, sentences: %v, paragraphs: %v\n\n",
		cfg.Chunking.MinChunkSize, cfg.Chunking.RespectSentences, cfg.Chunking.RespectParagraphs)

	fmt.Printf("%-12s %8s %10s %8s %10s %12s\n", "SETTING", "CHUNKS", "AVG LEN", "GAPPED", "GAP CHARS", "THROUGHPUT")
	fmt.Println(strings.Repeat("-", 70))

	for _, p := range pairs {
		seg, err := chunker.NewSegmenter(p.target, p.overlap, cfg.Chunking.Options())
		if err != nil {
			fmt.Printf("%-12s %v\n", fmt.Sprintf("%d:%d", p.target, p.overlap), err)
			continue
		}

		t := run(seg, texts)
		t.skipped = skipped

		avg := 0.0
		if t.chunks > 0 {
			avg = float64(t.chars) / float64(t.chunks)
		}
		throughput := float64(t.chars) / t.elapsed.Seconds() / (1 << 20)

		fmt.Printf("%-12s %8d %10.1f %8d %10d %9.2f MB/s\n",
			fmt.Sprintf("%d:%d", p.target, p.overlap), t.chunks, avg, t.gapped, t.gapChars, throughput)
	}
}

// run segments every text and sums chunk statistics. chars counts chunk
// content, so overlap inflates it.
func run(seg *chunker.Segmenter, texts []string) totals {
	var t totals
	start := time.Now()
	for _, text := range texts {
		chunks := seg.Segment(text)
		t.files++
		t.chunks += len(chunks)
		for _, c := range chunks {
			t.chars += c.Length
		}
		report := chunker.Validate(chunks)
		if !report.IsValid {
			t.gapped++
			t.gapChars += report.TotalGap()
		}
	}
	t.elapsed = time.Since(start)
	return t
}

func loadTexts(dir string, cfg *config.Config) ([]string, int, error) {
	files, err := fs.NewWalker(cfg.Ingest.Includes, cfg.Ingest.Excludes).Walk(dir)
	if err != nil {
		return nil, 0, err
	}

	router := extract.NewRouter()
	var texts []string
	skipped := 0
	for _, f := range files {
		data, err := fs.ReadFile(f.Path, cfg.Ingest.MaxFileBytes)
		if err != nil {
			skipped++
			continue
		}
		text, err := router.Extract(context.Background(), filepath.Base(f.Path), data)
		if err != nil {
			skipped++
			continue
		}
		texts = append(texts, chunker.Normalize(text))
	}
	return texts, skipped, nil
}

func parseSettings(s string) ([]setting, error) {
	var out []setting
	for _, part := range strings.Split(s, ",") {
		target, overlap, ok := strings.Cut(strings.TrimSpace(part), ":")
		if !ok {
			return nil, fmt.Errorf("invalid setting %q, want target:overlap", part)
		}
		t, err := strconv.Atoi(target)
		if err != nil {
			return nil, fmt.Errorf("invalid target in %q: %w", part, err)
		}
		o, err := strconv.Atoi(overlap)
		if err != nil {
			return nil, fmt.Errorf("invalid overlap in %q: %w", part, err)
		}
		out = append(out, setting{target: t, overlap: o})
	}
	return out, nil
}
