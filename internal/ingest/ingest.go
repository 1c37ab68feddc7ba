// Package ingest implements Component H (Ingestor): MD5-keyed,
// idempotent bulk indexing of reference audio, run single-file or
// walked recursively over a directory with a worker pool, mirroring
// ingest.py's ingest_file and the teacher's processFilesConcurrently.
package ingest

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"musica/internal/audio"
	"musica/internal/config"
	"musica/internal/fingerprint"
	"musica/internal/peaks"
	"musica/internal/spectral"
	"musica/internal/store"
	"musica/internal/waveform"
	"musica/internal/workpool"
	"musica/internal/xerr"
)

// Override supplies title/artist/album values that take precedence
// over both tag and filename metadata (the CLI's --title/--artist/--album
// flags).
type Override struct {
	Title  string
	Artist string
	Album  string
}

// Result reports the outcome of indexing a single file.
type Result struct {
	Path         string
	Skipped      bool // already indexed by file hash
	SongID       int64
	Fingerprints int
	Elapsed      time.Duration
	Err          error
}

// File indexes a single audio file: hashes it, skips if already
// present, otherwise decodes, fingerprints, and stores it. It never
// returns an error for a decode failure — that is reported on
// Result.Err so a batch can continue past it (spec.md §7).
func File(ctx context.Context, st *store.Store, path string, override Override) Result {
	start := time.Now()
	res := Result{Path: path}

	fileHash, err := hashFile(path)
	if err != nil {
		res.Err = xerr.Wrap(fmt.Errorf("hash %s: %w", path, err))
		return res
	}

	exists, err := st.SongExists(ctx, fileHash)
	if err != nil {
		res.Err = xerr.Wrap(err)
		return res
	}
	if exists {
		res.Skipped = true
		return res
	}

	wf, err := audio.Decode(path)
	if err != nil {
		res.Err = fmt.Errorf("decode %s: %w", path, err)
		return res
	}

	meta := audio.ReadMetadata(path)
	title := firstNonEmpty(override.Title, meta.Title, strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)))
	artist := firstNonEmpty(override.Artist, meta.Artist, "Unknown")
	album := firstNonEmpty(override.Album, meta.Album, "")

	fps := fingerprint.Generate(peaks.Extract(spectral.STFT(wf.Samples)))
	if len(fps) == 0 {
		res.Err = fmt.Errorf("no fingerprints extracted from %s", path)
		return res
	}

	songID, err := st.AddSong(ctx, title, artist, album, wf.Duration(), fileHash, "")
	if err != nil {
		res.Err = xerr.Wrap(fmt.Errorf("add song %s: %w", path, err))
		return res
	}

	hashes := make([]string, len(fps))
	anchors := make([]int, len(fps))
	for i, fp := range fps {
		hashes[i] = fp.Hash
		anchors[i] = fp.AnchorTime
	}
	if err := st.AddFingerprints(ctx, songID, hashes, anchors); err != nil {
		res.Err = xerr.Wrap(fmt.Errorf("add fingerprints %s: %w", path, err))
		return res
	}

	res.SongID = songID
	res.Fingerprints = len(fps)
	res.Elapsed = time.Since(start)
	return res
}

// Walk recursively discovers recognized audio files under root (or
// returns root itself if it's a single file), and indexes them
// concurrently via the worker pool. A single file's failure never
// aborts the rest of the batch.
func Walk(ctx context.Context, st *store.Store, root string, override Override) ([]Result, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, xerr.Wrap(fmt.Errorf("stat %s: %w", root, err))
	}

	if !info.IsDir() {
		return []Result{File(ctx, st, root, override)}, nil
	}

	paths, err := DiscoverFiles(root)
	if err != nil {
		return nil, err
	}

	var mu sync.Mutex
	var out []Result
	workpool.Run(paths, func(p string) error {
		r := File(ctx, st, p, override)
		mu.Lock()
		out = append(out, r)
		mu.Unlock()
		return r.Err
	})
	return out, nil
}

// DiscoverFiles recursively lists every recognized audio file under
// root, erroring if none are found.
func DiscoverFiles(root string) ([]string, error) {
	var paths []string
	err := filepath.Walk(root, func(p string, fi os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if fi.IsDir() {
			return nil
		}
		if config.IsAudioFile(p) {
			paths = append(paths, p)
		}
		return nil
	})
	if err != nil {
		return nil, xerr.Wrap(err)
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("no recognized audio files under %s", root)
	}
	return paths, nil
}

func hashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := md5.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
