package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync/atomic"

	"github.com/dustin/go-humanize"
	_ "github.com/joho/godotenv/autoload"
	"github.com/schollz/progressbar/v3"
	"github.com/urfave/cli/v3"

	"github.com/starford/lockchime/internal"
	pkgconfig "github.com/starford/lockchime/pkg/config"
)

func loadConfig(cmd *cli.Command) (*internal.Config, error) {
	cfg := internal.NewDefaultConfig()
	if err := pkgconfig.LoadOptional(cmd.String("config"), cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return cfg, nil
}

// open loads the config and wires the application with logs on stderr so
// command output stays readable.
func open(ctx context.Context, cmd *cli.Command) (*internal.App, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	return internal.Open(ctx, internal.WithConfig(cfg), internal.WithLogOutput(os.Stderr))
}

func serve(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if err := internal.Run(ctx, internal.WithConfig(cfg)); err != nil {
		return fmt.Errorf("app run error: %w", err)
	}
	return nil
}

func serveMCP(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	return internal.RunMCP(ctx, internal.WithConfig(cfg))
}

func validate(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	store, err := internal.OpenCatalog(internal.WithConfig(cfg), internal.WithLogOutput(os.Stderr))
	if err != nil {
		return err
	}
	issues := store.Validate(ctx)
	if len(issues) == 0 {
		stats := store.Statistics()
		fmt.Printf("catalog ok: %d sounds from %d sources\n", stats.TotalSounds, stats.TotalSources)
		return nil
	}
	for _, issue := range issues {
		fmt.Println(issue.Error())
	}
	return fmt.Errorf("catalog has %d issue(s)", len(issues))
}

func prefetch(ctx context.Context, cmd *cli.Command) error {
	app, err := open(ctx, cmd)
	if err != nil {
		return err
	}
	defer app.Close()

	targets, err := app.Service.PrefetchTargets(cmd.Args().Slice())
	if err != nil {
		return err
	}
	if len(targets) == 0 {
		fmt.Println("nothing to download")
		return nil
	}

	bar := progressbar.NewOptions(len(targets),
		progressbar.OptionSetDescription("downloading sounds"),
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionSetTheme(progressbar.ThemeASCII),
		progressbar.OptionFullWidth(),
		progressbar.OptionShowCount(),
		progressbar.OptionClearOnFinish(),
	)
	var failed atomic.Int64
	paths := app.Service.Prefetch(ctx, targets, func(_ string, err error) {
		if err != nil {
			failed.Add(1)
		}
		_ = bar.Add(1)
	})
	_ = bar.Finish()

	sum, err := app.Service.CacheStatus(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("%d of %d sounds cached (%s total)\n", len(paths), len(targets), sum.TotalSizeHuman)
	if n := failed.Load(); n > 0 {
		return fmt.Errorf("%d download(s) failed", n)
	}
	return nil
}

func cacheSize(ctx context.Context, cmd *cli.Command) error {
	app, err := open(ctx, cmd)
	if err != nil {
		return err
	}
	defer app.Close()

	sum, err := app.Service.CacheStatus(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("%d sounds, %s\n", sum.Count, sum.TotalSizeHuman)
	return nil
}

func cacheList(ctx context.Context, cmd *cli.Command) error {
	app, err := open(ctx, cmd)
	if err != nil {
		return err
	}
	defer app.Close()

	sum, err := app.Service.CacheStatus(ctx)
	if err != nil {
		return err
	}
	for _, e := range sum.Entries {
		fmt.Printf("%-28s %10s  %s\n", e.SoundID, humanize.IBytes(uint64(e.FileSize)), humanize.Time(e.DownloadedAt))
	}
	return nil
}

func cacheClear(ctx context.Context, cmd *cli.Command) error {
	app, err := open(ctx, cmd)
	if err != nil {
		return err
	}
	defer app.Close()

	before, err := app.Service.CacheStatus(ctx)
	if err != nil {
		return err
	}
	if err := app.Service.ClearCache(ctx); err != nil {
		return err
	}
	fmt.Printf("removed %d sounds, freed %s\n", before.Count, before.TotalSizeHuman)
	return nil
}

func cacheRemove(ctx context.Context, cmd *cli.Command) error {
	if cmd.Args().Len() == 0 {
		return errors.New("sound id is required")
	}
	app, err := open(ctx, cmd)
	if err != nil {
		return err
	}
	defer app.Close()

	for _, id := range cmd.Args().Slice() {
		if err := app.Service.RemoveCached(ctx, id); err != nil {
			return err
		}
		fmt.Printf("removed %s\n", id)
	}
	return nil
}

func main() {
	cmd := &cli.Command{
		Name:   "lockchime",
		Usage:  "Sound catalog and download cache for custom vehicle lock chimes",
		Action: serve,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "config",
				Aliases:     []string{"c"},
				Usage:       "Path to config file (optional)",
				DefaultText: "config/config.yaml",
				Value:       "config/config.yaml",
				Sources:     cli.EnvVars("APP_CONFIG_FILE"),
			},
		},
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "Run the HTTP API (default)",
				Action: serve,
			},
			{
				Name:   "mcp",
				Usage:  "Serve MCP tools over stdio",
				Action: serveMCP,
			},
			{
				Name:   "validate",
				Usage:  "Check the catalog document and print any issues",
				Action: validate,
			},
			{
				Name:      "prefetch",
				Usage:     "Download sounds into the cache (all when no ids are given)",
				ArgsUsage: "[sound-id...]",
				Action:    prefetch,
			},
			{
				Name:  "cache",
				Usage: "Inspect or empty the download cache",
				Commands: []*cli.Command{
					{Name: "size", Usage: "Print the cache size", Action: cacheSize},
					{Name: "list", Usage: "List cached sounds", Action: cacheList},
					{Name: "clear", Usage: "Delete every cached sound", Action: cacheClear},
					{Name: "rm", Usage: "Delete cached sounds by id", ArgsUsage: "<sound-id...>", Action: cacheRemove},
				},
			},
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		slog.Error("application error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
