package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"sort"
	"syscall"

	"github.com/JonathonClaypool/MilMap-sub001/internal/app"
	"github.com/JonathonClaypool/MilMap-sub001/internal/tilecache"
	"github.com/JonathonClaypool/MilMap-sub001/internal/tilemath"
	"github.com/JonathonClaypool/MilMap-sub001/pkg/config"
	"github.com/JonathonClaypool/MilMap-sub001/pkg/logger"
	"github.com/cheggaaa/pb/v3"
	"github.com/dustin/go-humanize"
	"github.com/urfave/cli/v3"
	_ "go.uber.org/automaxprocs"
)

func main() {
	bboxFlags := []cli.Flag{
		&cli.Float64Flag{Name: "min-lat", Required: true},
		&cli.Float64Flag{Name: "max-lat", Required: true},
		&cli.Float64Flag{Name: "min-lon", Required: true},
		&cli.Float64Flag{Name: "max-lon", Required: true},
	}

	app := &cli.App{
		Name:        "tilectl",
		Description: "Maintenance tool for the tile and elevation caches",
		Commands: []*cli.Command{
			{
				Name:    "prefetch",
				Aliases: []string{"p"},
				Usage:   "download every tile covering a bounding box into the cache",
				Flags: append(bboxFlags,
					&cli.IntFlag{Name: "min-zoom", Value: 0},
					&cli.IntFlag{Name: "max-zoom", Required: true},
					&cli.BoolFlag{Name: "elevation", Usage: "also prefetch elevation tiles"},
				),
				Action: prefetch,
			},
			{
				Name:   "size",
				Usage:  "print the size of every cache",
				Action: size,
			},
			{
				Name:   "cleanup",
				Usage:  "remove expired entries and enforce size limits",
				Action: cleanup,
			},
			{
				Name:   "clear",
				Usage:  "remove every cached entry",
				Action: clearCaches,
			},
			{
				Name:  "zoom",
				Usage: "recommend a zoom level for a print scale",
				Flags: []cli.Flag{
					&cli.Float64Flag{Name: "scale", Required: true},
					&cli.Float64Flag{Name: "dpi", Value: 300},
					&cli.Float64Flag{Name: "lat", Value: 0},
				},
				Action: zoom,
			},
		},
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := app.RunContext(ctx, os.Args); err != nil {
		log.Fatal(err)
	}
}

func withComponents(cCtx *cli.Context, fn func(ctx context.Context, c *app.Components) error) error {
	cfg, err := config.New()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	l, err := logger.NewZapLogger(cfg.Logger)
	if err != nil {
		return err
	}
	defer func() { _ = l.Sync() }()

	ctx := logger.WithLogger(cCtx.Context, l)

	c, err := app.NewComponents(ctx, cfg, l)
	if err != nil {
		return err
	}
	defer c.Close()

	return fn(ctx, c)
}

func prefetch(cCtx *cli.Context) error {
	box := tilemath.BoundingBox{
		MinLat: cCtx.Float64("min-lat"),
		MaxLat: cCtx.Float64("max-lat"),
		MinLon: cCtx.Float64("min-lon"),
		MaxLon: cCtx.Float64("max-lon"),
	}
	minZoom, maxZoom := cCtx.Int("min-zoom"), cCtx.Int("max-zoom")
	if minZoom > maxZoom {
		return fmt.Errorf("min-zoom %d is above max-zoom %d", minZoom, maxZoom)
	}

	var coords []tilemath.Coordinate
	for z := minZoom; z <= maxZoom; z++ {
		zc, err := tilemath.CalculateTileCoordinates(box.MinLat, box.MaxLat, box.MinLon, box.MaxLon, z)
		if err != nil {
			return err
		}
		coords = append(coords, zc...)
	}

	return withComponents(cCtx, func(ctx context.Context, c *app.Components) error {
		fmt.Printf("Prefetching %d tiles (zoom %d-%d)\n", len(coords), minZoom, maxZoom)

		bar := pb.StartNew(len(coords))
		res, err := c.Raster.GetTileBatch(ctx, coords, func(tilemath.Coordinate) { bar.Increment() })
		bar.Finish()
		if err != nil && !errors.Is(err, tilecache.ErrNoTiles) {
			return err
		}

		var bytes uint64
		for _, t := range res.Tiles {
			bytes += uint64(len(t.Data))
		}
		fmt.Printf("Fetched %d tiles (%s), %d failed\n", len(res.Tiles), humanize.IBytes(bytes), len(res.Errors))
		for _, e := range res.Errors {
			fmt.Printf("  %d/%d/%d: %s\n", e.Zoom, e.X, e.Y, e.Message)
		}

		if cCtx.Bool("elevation") {
			g, gerr := c.Elevation.GetElevationGrid(ctx, box, 2, 2)
			if gerr != nil {
				return fmt.Errorf("elevation prefetch failed: %w", gerr)
			}
			fmt.Printf("Elevation tiles cached, corner coverage %.0f%%\n", g.Coverage()*100)
		}
		return err
	})
}

func size(cCtx *cli.Context) error {
	return withComponents(cCtx, func(ctx context.Context, c *app.Components) error {
		stats, err := c.UseCase.CacheStats(ctx)
		if err != nil {
			return err
		}
		for _, s := range stats {
			limit := "unlimited"
			if s.MaxSizeBytes > 0 {
				limit = humanize.IBytes(uint64(s.MaxSizeBytes))
			}
			fmt.Printf("%-10s %10s / %s\n", s.Name, humanize.IBytes(uint64(s.SizeBytes)), limit)
		}
		return nil
	})
}

func cleanup(cCtx *cli.Context) error {
	return withComponents(cCtx, func(ctx context.Context, c *app.Components) error {
		reports, err := c.UseCase.CleanupCaches(ctx)

		names := make([]string, 0, len(reports))
		for name := range reports {
			names = append(names, name)
		}
		sort.Strings(names)

		for _, name := range names {
			r := reports[name]
			fmt.Printf("%-10s scanned %d, expired %d, evicted %d, freed %s, remaining %s\n",
				name, r.Scanned, r.ExpiredRemoved, r.EvictedRemoved,
				humanize.IBytes(uint64(r.BytesFreed)), humanize.IBytes(uint64(r.BytesRemaining)))
		}
		return err
	})
}

func clearCaches(cCtx *cli.Context) error {
	return withComponents(cCtx, func(ctx context.Context, c *app.Components) error {
		if err := c.UseCase.ClearCaches(ctx); err != nil {
			return err
		}
		fmt.Println("Caches cleared")
		return nil
	})
}

func zoom(cCtx *cli.Context) error {
	res, err := tilemath.CalculateZoom(cCtx.Float64("scale"), cCtx.Float64("dpi"), cCtx.Float64("lat"))
	if err != nil {
		return err
	}

	fmt.Printf("zoom %d (%.2f m/px, actual scale 1:%s)\n", res.Zoom, res.MetersPerPixel, humanize.Comma(int64(res.ActualScale)))
	if res.Warning != "" {
		fmt.Println(res.Warning)
	}
	return nil
}
