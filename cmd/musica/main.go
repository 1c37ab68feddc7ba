// Command musica is the CLI entrypoint: ingest reference audio, serve
// the REST/WebSocket API, or erase the index — adapted from the
// teacher's flag-dispatch main.go.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"runtime"
	"sync"
	"time"

	"github.com/fatih/color"
	"github.com/schollz/progressbar/v3"

	"musica/internal/api"
	"musica/internal/config"
	"musica/internal/ingest"
	"musica/internal/store"
	"musica/internal/workpool"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "ingest":
		cmdIngest(os.Args[2:])
	case "serve":
		cmdServe(os.Args[2:])
	case "erase":
		cmdErase(os.Args[2:])
	default:
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("usage: musica <command>")
	fmt.Println()
	fmt.Println("commands:")
	fmt.Println(`  ingest [path] [--title T] [--artist A] [--album B] [--stats]`)
	fmt.Println(`  serve  [--host H] [--port P]`)
	fmt.Println(`  erase`)
}

func openStore() *store.Store {
	cfg := config.Load()
	st, err := store.Open(cfg.DBPath)
	if err != nil {
		color.Red("error: could not open database at %s: %v", cfg.DBPath, err)
		os.Exit(1)
	}
	return st
}

func cmdIngest(args []string) {
	fs := flag.NewFlagSet("ingest", flag.ExitOnError)
	title := fs.String("title", "", "override title")
	artist := fs.String("artist", "", "override artist")
	album := fs.String("album", "", "override album")
	statsOnly := fs.Bool("stats", false, "print index stats and exit")
	fs.Parse(args)
	// flag stops at the first non-flag argument; resume after each
	// positional so flags may also follow the path.
	var positional []string
	for fs.NArg() > 0 {
		positional = append(positional, fs.Arg(0))
		fs.Parse(fs.Args()[1:])
	}

	st := openStore()
	defer st.Close()

	ctx := context.Background()

	if *statsOnly {
		songs, fingerprints, err := st.Stats(ctx)
		if err != nil {
			color.Red("error: %v", err)
			os.Exit(1)
		}
		fmt.Printf("songs: %d, fingerprints: %d\n", songs, fingerprints)
		return
	}

	if len(positional) < 1 {
		fmt.Println("usage: musica ingest <path> [--title T] [--artist A] [--album B]")
		os.Exit(1)
	}
	path := positional[0]

	if _, err := os.Stat(path); err != nil {
		color.Red("error: path not found: %s", path)
		os.Exit(1)
	}

	override := ingest.Override{Title: *title, Artist: *artist, Album: *album}

	info, _ := os.Stat(path)
	if !info.IsDir() {
		result := ingest.File(ctx, st, path, override)
		reportIngestResult(result)
		if result.Err != nil {
			os.Exit(1)
		}
		return
	}

	bar := progressbar.Default(-1, "indexing")
	results, err := ingestWithProgress(ctx, st, path, override, bar)
	if err != nil {
		color.Red("error: %v", err)
		os.Exit(1)
	}

	fmt.Println()
	var ok, failed, skipped int
	for _, r := range results {
		reportIngestResult(r)
		switch {
		case r.Err != nil:
			failed++
		case r.Skipped:
			skipped++
		default:
			ok++
		}
	}
	color.Green("indexed %d file(s)", ok)
	if skipped > 0 {
		color.Yellow("skipped %d already-indexed file(s)", skipped)
	}
	if failed > 0 {
		color.Red("failed to index %d file(s)", failed)
		os.Exit(1)
	}
}

// ingestWithProgress mirrors ingest.Walk's directory discovery but
// drives the same per-file ingest.File through the CLI's own worker
// pool so progress can be reported as files complete.
func ingestWithProgress(ctx context.Context, st *store.Store, root string, override ingest.Override, bar *progressbar.ProgressBar) ([]ingest.Result, error) {
	paths, err := ingest.DiscoverFiles(root)
	if err != nil {
		return nil, err
	}
	bar.ChangeMax(len(paths))

	var mu sync.Mutex
	var results []ingest.Result
	workpool.Run(paths, func(p string) error {
		r := ingest.File(ctx, st, p, override)
		bar.Add(1)
		mu.Lock()
		results = append(results, r)
		mu.Unlock()
		return r.Err
	})
	return results, nil
}

func reportIngestResult(r ingest.Result) {
	switch {
	case r.Err != nil:
		color.Red("failed: %v", r.Err)
	case r.Skipped:
		color.Yellow("already indexed: %s", r.Path)
	default:
		color.Green("indexed %s (%d fingerprints, %s)", r.Path, r.Fingerprints, r.Elapsed.Round(time.Millisecond))
	}
}

func cmdServe(args []string) {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	host := fs.String("host", "", "override MUSICA_HOST")
	port := fs.String("port", "", "override MUSICA_PORT")
	fs.Parse(args)

	cfg := config.Load()
	if *host != "" {
		cfg.Host = *host
	}
	if *port != "" {
		cfg.Port = *port
	}

	st := openStore()
	defer st.Close()

	pool := workpool.NewPool(runtime.NumCPU(), 64)
	defer pool.Close()

	server := api.NewServer(st, pool, cfg.CORSOrigins)

	addr := cfg.Host + ":" + cfg.Port
	color.Green("musica listening on %s", addr)
	if err := http.ListenAndServe(addr, server.Routes()); err != nil {
		color.Red("server error: %v", err)
		os.Exit(1)
	}
}

func cmdErase(args []string) {
	st := openStore()
	defer st.Close()

	if err := st.EraseAll(context.Background()); err != nil {
		color.Red("error: %v", err)
		os.Exit(1)
	}
	color.Green("database cleared")
}
