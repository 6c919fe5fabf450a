package main

import (
	"context"
	"flag"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"log"
	"os"
	"path/filepath"
	"time"

	"klvviewer/internal/models"
	"klvviewer/pkg/annotation"
	"klvviewer/pkg/cache"
	"klvviewer/pkg/config"
	"klvviewer/pkg/embed"
	"klvviewer/pkg/fetch"
	"klvviewer/pkg/klv"
	"klvviewer/pkg/pixels"
	"klvviewer/pkg/postprocess"
	"klvviewer/pkg/viewport"
	"klvviewer/pkg/visualization"
)

func usage() {
	fmt.Fprintf(os.Stderr, "usage: %s <command> [flags]\n\n", filepath.Base(os.Args[0]))
	fmt.Fprintln(os.Stderr, "commands:")
	fmt.Fprintln(os.Stderr, "  pack     embed a source image into one container per quality")
	fmt.Fprintln(os.Stderr, "  view     load an image progressively and save what the viewport shows")
	fmt.Fprintln(os.Stderr, "  inspect  print the metadata and sample statistics of a container")
	fmt.Fprintln(os.Stderr, "  config   write a default configuration file")
}

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	var err error
	switch os.Args[1] {
	case "pack":
		err = runPack(os.Args[2:])
	case "view":
		err = runView(os.Args[2:])
	case "inspect":
		err = runInspect(os.Args[2:])
	case "config":
		err = runConfig(os.Args[2:])
	default:
		usage()
		os.Exit(1)
	}
	if err != nil {
		log.Fatalf("%s failed: %v", os.Args[1], err)
	}
}

func newLogger(verbose bool) *log.Logger {
	if !verbose {
		return log.New(io.Discard, "", 0)
	}
	return log.New(os.Stderr, "", log.LstdFlags)
}

func runPack(args []string) error {
	fs := flag.NewFlagSet("pack", flag.ExitOnError)
	configPath := fs.String("config", "klvviewer.yaml", "Configuration file")
	input := fs.String("input", "", "Source image (PNG or JPEG)")
	imageID := fs.String("id", "", "Image id as instance[:frame]")
	outputDir := fs.String("output", "", "Container directory (default: fetch.directory)")
	signed := fs.Bool("signed", false, "Treat mono samples as two's complement")
	compress := fs.Bool("compress", false, "Compress containers with zstd")
	fs.Parse(args) //nolint:errcheck

	if *input == "" || *imageID == "" {
		fs.Usage()
		os.Exit(1)
	}

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		return err
	}
	dir := cfg.Fetch.Directory
	if *outputDir != "" {
		dir = *outputDir
	}

	id, err := models.ParseImageID(*imageID)
	if err != nil {
		return err
	}

	file, err := os.Open(*input)
	if err != nil {
		return err
	}
	defer file.Close()
	img, format, err := image.Decode(file)
	if err != nil {
		return fmt.Errorf("error decoding %s: %w", *input, err)
	}
	fmt.Printf("Packing %s (%s, %dx%d) as %s\n", *input, format, img.Bounds().Dx(), img.Bounds().Dy(), id)

	for _, q := range models.Qualities {
		data, err := embed.Embed(img, *signed, q)
		if err != nil {
			return fmt.Errorf("%s: %w", q, err)
		}
		path, err := fetch.WriteDir(dir, id, q, data, *compress || cfg.Output.Compress)
		if err != nil {
			return err
		}
		fmt.Printf("- %-8s %8d bytes -> %s\n", q, len(data), path)
	}
	return nil
}

func runView(args []string) error {
	fs := flag.NewFlagSet("view", flag.ExitOnError)
	configPath := fs.String("config", "klvviewer.yaml", "Configuration file")
	imageID := fs.String("id", "", "Image id as instance[:frame][|processor[~arg]...]")
	baseURL := fs.String("base-url", "", "Image API root (overrides fetch.baseURL)")
	dir := fs.String("dir", "", "Container directory (overrides fetch.directory)")
	purpose := fs.String("purpose", "", "diagnostic or thumbnail (overrides viewport.purpose)")
	outputDir := fs.String("output", "", "Snapshot directory (overrides output.dir)")
	timeout := fs.Duration("timeout", 2*time.Minute, "Maximum time to wait for every quality")
	fs.Parse(args) //nolint:errcheck

	if *imageID == "" {
		fs.Usage()
		os.Exit(1)
	}

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		return err
	}
	if *baseURL != "" {
		cfg.Fetch.BaseURL = *baseURL
	}
	if *dir != "" {
		cfg.Fetch.BaseURL = ""
		cfg.Fetch.Directory = *dir
	}
	if *purpose != "" {
		cfg.Viewport.Purpose = *purpose
	}
	if *outputDir != "" {
		cfg.Output.Dir = *outputDir
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	id, chain, err := postprocess.Parse(*imageID)
	if err != nil {
		return err
	}
	logger := newLogger(cfg.Output.Verbose)
	policy, _ := cfg.FailurePolicy()
	p, _ := cfg.Purpose()

	var fetcher fetch.Fetcher
	if cfg.Fetch.BaseURL != "" {
		fetcher = fetch.NewHTTPFetcher(cfg.Fetch.BaseURL, cfg.Fetch.Timeout)
		fmt.Printf("Fetching from %s\n", cfg.Fetch.BaseURL)
	} else {
		fetcher = fetch.DirFetcher{Root: cfg.Fetch.Directory}
		fmt.Printf("Reading containers from %s\n", cfg.Fetch.Directory)
	}

	store := annotation.NewStore()
	if cfg.Viewport.Annotations != "" {
		if err := store.LoadFile(cfg.Viewport.Annotations); err != nil {
			return err
		}
	}

	canvas := models.Resolution{Width: cfg.Viewport.CanvasWidth, Height: cfg.Viewport.CanvasHeight}
	surface := visualization.NewViewer(cfg.Output.Dir, canvas)
	c := cache.New(fetcher, cache.Options{Units: cfg.Cache.Units, Policy: policy, Logger: logger})
	v := viewport.New(c, viewport.Options{
		Purpose:     p,
		Canvas:      canvas,
		Surface:     surface,
		Annotations: store,
		Logger:      logger,
		PostProcess: chain,
	})
	defer v.Destroy()

	v.OnLoadingFailed(func(q models.Quality, err error) {
		if fetch.IsNotFound(err) {
			fmt.Printf("- %-8s not available\n", q)
			return
		}
		fmt.Printf("- %-8s failed: %v\n", q, err)
	})

	if len(chain) > 0 {
		fmt.Printf("Post-processing %s%s\n", id, chain)
	}
	start := time.Now()
	if err := v.SetImage(id, true); err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()
	if err := v.Wait(ctx); err != nil {
		return fmt.Errorf("waiting for %s: %w", id, err)
	}

	written := surface.Written()
	for _, path := range written {
		fmt.Printf("- saved %s\n", path)
	}
	if len(written) == 0 {
		return fmt.Errorf("no quality of %s could be displayed", id)
	}

	_, q, _ := v.Image()
	t := v.Transform()
	fmt.Printf("\nDisplayed %s at %s quality (%s) in %.2f seconds\n", id, q, v.Resolution(), time.Since(start).Seconds())
	fmt.Printf("Scale %.3f, pan (%.1f, %.1f), window %.1f/%.1f\n", t.Scale, t.Pan[0], t.Pan[1], t.WindowCenter, t.WindowWidth)
	fmt.Printf("Cached qualities: %v (%d submissions)\n", c.ListCached(id), c.Submissions())

	if cfg.Viewport.Annotations != "" {
		inside, total := annotation.Inside(store.Get(id), v.Resolution())
		fmt.Printf("Annotations on the raster: %d of %d\n", inside, total)

		path := filepath.Join(cfg.Output.Dir, "annotations.yaml")
		if err := store.SaveFile(path); err != nil {
			return err
		}
		fmt.Printf("Annotations at displayed resolution saved to %s\n", path)
	}
	return nil
}

func runInspect(args []string) error {
	fs := flag.NewFlagSet("inspect", flag.ExitOnError)
	fs.Parse(args) //nolint:errcheck
	if fs.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: inspect <container.klv>")
		os.Exit(1)
	}

	data, err := os.ReadFile(fs.Arg(0))
	if err != nil {
		return err
	}
	c, err := klv.Parse(data)
	if err != nil {
		return err
	}
	buf, err := pixels.Decode(c)
	if err != nil {
		return err
	}

	m := c.Metadata
	st := pixels.Stats(buf)
	fmt.Printf("Compression:   %s\n", c.Compression)
	fmt.Printf("Size:          %s (original %s)\n", m.Resolution(), m.OriginalResolution())
	fmt.Printf("Format:        %s x%d\n", buf.Format, buf.Channels)
	fmt.Printf("Pixel range:   [%d, %d], stretched=%v signed=%v\n", m.MinPixelValue, m.MaxPixelValue, m.Stretched, m.IsSigned)
	fmt.Printf("Window:        %.1f/%.1f\n", m.WindowCenter, m.WindowWidth)
	fmt.Printf("Rescale:       slope %.3f intercept %.3f\n", m.Slope, m.Intercept)
	fmt.Printf("Spacing:       %.3f x %.3f mm\n", m.ColumnPixelSpacing, m.RowPixelSpacing)
	fmt.Printf("Samples:       min %.0f max %.0f mean %.2f std %.2f\n", st.Min, st.Max, st.Mean, st.StdDev)
	return nil
}

func runConfig(args []string) error {
	fs := flag.NewFlagSet("config", flag.ExitOnError)
	output := fs.String("output", "klvviewer.yaml", "Configuration file to write")
	fs.Parse(args) //nolint:errcheck

	if err := config.CreateDefaultConfigFile(*output); err != nil {
		return err
	}
	fmt.Printf("Default configuration written to %s\n", *output)
	return nil
}
