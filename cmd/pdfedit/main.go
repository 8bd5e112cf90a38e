package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/Fatal777/applyx-pdfedit/coords"
	"github.com/Fatal777/applyx-pdfedit/document"
	"github.com/Fatal777/applyx-pdfedit/engine"
	"github.com/Fatal777/applyx-pdfedit/export"
	"github.com/Fatal777/applyx-pdfedit/fonts"
	"github.com/Fatal777/applyx-pdfedit/observability"
	"github.com/Fatal777/applyx-pdfedit/script"
)

type options struct {
	pdfPath    string
	outPath    string
	opsPath    string
	scriptPath string
	verbose    bool
}

// opsFile is the batch edit format: text replacements applied in order,
// then annotations.
type opsFile struct {
	Edits []struct {
		Page int    `json:"page"`
		Run  string `json:"run"`
		Text string `json:"text"`
	} `json:"edits"`
	Annotations []struct {
		Kind   string  `json:"kind"`
		Page   int     `json:"page"`
		X      float64 `json:"x"`
		Y      float64 `json:"y"`
		W      float64 `json:"w"`
		H      float64 `json:"h"`
		Points []struct {
			X float64 `json:"x"`
			Y float64 `json:"y"`
		} `json:"points"`
		Text        string  `json:"text"`
		Color       string  `json:"color"`
		StrokeWidth float64 `json:"stroke_width"`
		FontSize    float64 `json:"font_size"`
		Bold        bool    `json:"bold"`
		Italic      bool    `json:"italic"`
	} `json:"annotations"`
}

func main() {
	opts, err := parseFlags()
	if err != nil {
		fmt.Fprintf(os.Stderr, "pdfedit: %v\n", err)
		os.Exit(2)
	}
	if err := run(opts); err != nil {
		fmt.Fprintf(os.Stderr, "pdfedit: %v\n", err)
		os.Exit(1)
	}
}

func parseFlags() (options, error) {
	var opts options
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "Usage: pdfedit [flags] <pdf>\n")
		flag.PrintDefaults()
	}
	flag.StringVar(&opts.outPath, "out", "", "Output path (default <input>_edited.pdf)")
	flag.StringVar(&opts.opsPath, "ops", "", "JSON file of edits and annotations to apply")
	flag.StringVar(&opts.scriptPath, "script", "", "JavaScript file run against the document")
	flag.BoolVar(&opts.verbose, "v", false, "Log progress to stderr")
	flag.Parse()

	if flag.NArg() != 1 {
		return opts, fmt.Errorf("expected exactly one input PDF")
	}
	opts.pdfPath = flag.Arg(0)
	if opts.opsPath == "" && opts.scriptPath == "" {
		return opts, fmt.Errorf("nothing to do: pass -ops or -script")
	}
	if opts.outPath == "" {
		ext := filepath.Ext(opts.pdfPath)
		opts.outPath = opts.pdfPath[:len(opts.pdfPath)-len(ext)] + "_edited" + ext
	}
	return opts, nil
}

func run(opts options) error {
	data, err := os.ReadFile(opts.pdfPath)
	if err != nil {
		return err
	}

	obs := observability.NewNopLogger()
	if opts.verbose {
		obs = observability.NewStdLogger(observability.LevelDebug)
	}

	eng := engine.New()
	store := document.NewStore(eng, obs)
	if err := store.Load(filepath.Base(opts.pdfPath), data); err != nil {
		return err
	}
	defer store.Close()

	if opts.opsPath != "" {
		if err := applyOps(store, opts.opsPath); err != nil {
			return err
		}
	}
	if opts.scriptPath != "" {
		if err := applyScript(store, obs, opts.scriptPath); err != nil {
			return err
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	res, err := export.Render(ctx, eng, fonts.NewStandardMeasurer(fonts.Helvetica), export.Input{
		Name:     store.Name(),
		Source:   store.SourceBytes(),
		Snapshot: store.Snapshot(),
	}, nil)
	if err != nil {
		return err
	}
	if err := os.WriteFile(opts.outPath, res.Bytes, 0o644); err != nil {
		return err
	}
	fmt.Printf("wrote %s (%d pages, %d bytes)\n", opts.outPath, res.PageCount, len(res.Bytes))
	return nil
}

func applyOps(store document.Store, path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	var ops opsFile
	if err := json.Unmarshal(raw, &ops); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	for _, e := range ops.Edits {
		if _, err := store.UpdateTextRun(e.Page, e.Run, e.Text); err != nil {
			return fmt.Errorf("edit %s: %w", e.Run, err)
		}
	}
	for _, a := range ops.Annotations {
		annot := document.Annotation{
			Kind: document.AnnotationKind(a.Kind),
			Page: a.Page,
			X:    a.X,
			Y:    a.Y,
			W:    a.W,
			H:    a.H,
			Text: a.Text,
			Style: document.Style{
				Color:       a.Color,
				StrokeWidth: a.StrokeWidth,
				FontSize:    a.FontSize,
				Bold:        a.Bold,
				Italic:      a.Italic,
			},
		}
		for _, p := range a.Points {
			annot.Points = append(annot.Points, coords.Point{X: p.X, Y: p.Y})
		}
		if _, err := store.AddAnnotation(annot); err != nil {
			return fmt.Errorf("annotation on page %d: %w", a.Page, err)
		}
	}
	return nil
}

func applyScript(store document.Store, obs observability.Logger, path string) error {
	src, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	eng, err := script.NewEngine(store, obs)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	if _, err := eng.Execute(ctx, string(src)); err != nil {
		return fmt.Errorf("script %s: %w", path, err)
	}
	return nil
}
