// Runs the extraction engine on a local file and prints the chosen strategy,
// every batch and the assembled text size
// Usage: go run ./cmd/extract [-ocr URL] [-no-ocr] [-text] <file>
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/sahilchouksey/study-artifacts/model"
	"github.com/sahilchouksey/study-artifacts/services/extraction"
	"github.com/sahilchouksey/study-artifacts/services/ocr"
	"github.com/sahilchouksey/study-artifacts/services/pagesource"
	"github.com/sahilchouksey/study-artifacts/services/storage"
)

func main() {
	ocrURL := flag.String("ocr", os.Getenv("OCR_SERVICE_URL"), "OCR service base URL")
	noOCR := flag.Bool("no-ocr", false, "disable optical recognition (extraction_only mode)")
	printText := flag.Bool("text", false, "print the assembled text")
	flag.Parse()

	if flag.NArg() != 1 {
		log.Fatal("usage: extract [-ocr URL] [-no-ocr] [-text] <file>")
	}
	path := flag.Arg(0)

	kind, err := kindFor(path)
	if err != nil {
		log.Fatal(err)
	}

	store, err := storage.NewLocalStore(filepath.Dir(path))
	if err != nil {
		log.Fatalf("Failed to open directory: %v", err)
	}

	engine, err := extraction.NewEngine(pagesource.NewResolver(store), ocr.NewClient(*ocrURL, 0), extraction.DefaultConfig())
	if err != nil {
		log.Fatalf("Failed to create engine: %v", err)
	}

	doc := &model.Document{
		ID:           "local",
		Kind:         kind,
		Filename:     filepath.Base(path),
		SourceHandle: filepath.Base(path),
	}

	fmt.Println("══════════════════════════════════════════════════════════════")
	fmt.Printf("  EXTRACTION REPORT: %s (%s)\n", doc.Filename, doc.Kind)
	fmt.Println("══════════════════════════════════════════════════════════════")

	start := time.Now()
	result := engine.Run(context.Background(), doc, extraction.RunOptions{
		AllowOCR: !*noOCR,
		OnStrategy: func(d extraction.Decision) {
			fmt.Printf("\n📋 STRATEGY:\n")
			fmt.Printf("   Strategy:      %s\n", d.Strategy)
			fmt.Printf("   Pages:         %d\n", d.PageCount)
			fmt.Printf("   Sampled Pages: %d\n", d.SampledPages)
			fmt.Printf("   Density:       %.1f chars/page\n", d.Density)
			fmt.Printf("\n📦 BATCHES:\n")
		},
		OnBatch: func(res model.ExtractionResult, completed, total int) {
			icon := "✅"
			if res.Status != model.BatchStatusOK {
				icon = "❌"
			}
			fmt.Printf("   %s [%d/%d] batch %d pages %d-%d: %d chars\n", icon, completed, total,
				res.Batch.BatchIndex, res.Batch.PageRange.Start, res.Batch.PageRange.End, len(res.TextContent))
		},
	})

	fmt.Printf("\n⏱️  Took %s\n", time.Since(start).Round(time.Millisecond))

	if failures := result.Failures(); len(failures) > 0 {
		fmt.Printf("\n⚠️  FAILED BATCHES:\n")
		for _, f := range failures {
			fmt.Printf("   batch %d (pages %d-%d): %s\n", f.BatchIndex, f.StartPage, f.EndPage, f.Error)
		}
	}

	fmt.Println("\n══════════════════════════════════════════════════════════════")
	switch result.Status() {
	case model.ExtractionStatusOK:
		fmt.Printf("  ✅ EXTRACTED %d CHARACTERS\n", len(result.Text))
	case model.ExtractionStatusDegraded:
		fmt.Printf("  ⚠️  PARTIALLY EXTRACTED %d CHARACTERS\n", len(result.Text))
	default:
		fmt.Println("  ❌ EXTRACTION FAILED")
		if result.Err != nil {
			fmt.Printf("     Error: %v\n", result.Err)
		}
	}
	fmt.Println("══════════════════════════════════════════════════════════════")

	if *printText && result.Text != "" {
		fmt.Println()
		fmt.Println(result.Text)
	}
	if result.Failed() {
		os.Exit(1)
	}
}

func kindFor(path string) (model.DocumentKind, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".pdf":
		return model.DocumentKindPDF, nil
	case ".pptx":
		return model.DocumentKindSlides, nil
	case ".png", ".jpg", ".jpeg", ".gif", ".bmp", ".tif", ".tiff", ".webp":
		return model.DocumentKindImage, nil
	}
	return "", fmt.Errorf("unsupported file type %q", filepath.Ext(path))
}
