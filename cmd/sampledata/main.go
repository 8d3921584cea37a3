// Command sampledata manages the local cache of land-monitoring sample
// datasets: fetching them from their remote origins, listing the
// registry, and inspecting what a cached dataset contains.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/alecthomas/kong"
	"github.com/lmittmann/tint"

	"github.com/landmonitor/sampledata"
	"github.com/landmonitor/sampledata/metadb"
)

var cli struct {
	LogLevel string `help:"Log level." enum:"debug,info,warn,error" default:"info"`
	CacheDir string `help:"Override the cache directory." type:"path"`

	Fetch  fetchCmd  `cmd:"" help:"Fetch a sample dataset into the local cache."`
	List   listCmd   `cmd:"" help:"List registered sample datasets."`
	Status statusCmd `cmd:"" help:"Show cache status for registered datasets."`
	Info   infoCmd   `cmd:"" help:"Show dimensions and variables of a dataset."`
}

type appContext struct {
	fetcher *sampledata.Fetcher
}

func main() {
	ktx := kong.Parse(&cli,
		kong.Name("sampledata"),
		kong.Description("Manage the local cache of land-monitoring sample datasets."),
		kong.UsageOnError(),
	)

	var level slog.Level
	_ = level.UnmarshalText([]byte(cli.LogLevel))
	slog.SetDefault(slog.New(tint.NewHandler(os.Stderr, &tint.Options{Level: level})))

	var opts []sampledata.FetcherOption
	if cli.CacheDir != "" {
		opts = append(opts, sampledata.WithCacheDir(cli.CacheDir))
	}

	fetcher, err := sampledata.NewFetcher(opts...)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = fetcher.Close() }()

	ktx.FatalIfErrorf(ktx.Run(&appContext{fetcher: fetcher}))
}

type fetchCmd struct {
	Name string `arg:"" help:"Logical asset name."`
}

func (c *fetchCmd) Run(app *appContext) error {
	path, err := app.fetcher.Fetch(context.Background(), c.Name)
	if err != nil {
		return err
	}
	fmt.Println(path)
	return nil
}

type listCmd struct{}

func (c *listCmd) Run(app *appContext) error {
	reg := app.fetcher.Registry()
	for _, name := range reg.Names() {
		asset, err := reg.Get(name)
		if err != nil {
			return err
		}
		verified := "verified"
		if asset.Unverified {
			verified = "unverified"
		}
		fmt.Printf("%-36s %-18s %-10s %s\n", name, asset.Kind, verified, asset.URL)
	}
	return nil
}

type statusCmd struct{}

func (c *statusCmd) Run(app *appContext) error {
	fmt.Printf("cache directory: %s\n\n", app.fetcher.CacheDir())

	for _, name := range app.fetcher.Registry().Names() {
		entry, err := app.fetcher.Metadata(name)
		switch {
		case errors.Is(err, metadb.ErrNotFound):
			fmt.Printf("%-36s not fetched\n", name)
		case err != nil:
			return err
		default:
			fmt.Printf("%-36s %10d bytes  fetched %dx  verified %s\n",
				name, entry.Size, entry.FetchCount,
				entry.VerifiedAt.Format(time.RFC3339))
		}
	}
	return nil
}

type infoCmd struct {
	Name string `arg:"" help:"Logical asset name."`
}

func (c *infoCmd) Run(app *appContext) error {
	ds, err := app.fetcher.Open(context.Background(), c.Name)
	if err != nil {
		return err
	}
	defer func() { _ = ds.Close() }()

	switch ds.Kind {
	case sampledata.KindCube:
		fmt.Printf("%s: %s\n", c.Name, ds.Kind)
		for _, dim := range ds.Cube.Dims() {
			fmt.Printf("  dim %-6s %d\n", dim.Name, dim.Len)
		}
		for _, name := range ds.Cube.Vars() {
			v, err := ds.Cube.Var(name)
			if err != nil {
				return err
			}
			fmt.Printf("  var %-6s %v\n", name, v.Shape())
		}
	case sampledata.KindRaster:
		h, w := ds.Grid.Shape()
		fmt.Printf("%s: %s, %d x %d\n", c.Name, ds.Kind, h, w)
	}
	return nil
}
