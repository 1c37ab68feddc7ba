// Package audio decodes reference and query audio files into the
// mono-float PCM form internal/waveform.Normalize expects, and reads
// embedded tag metadata, shelling out to ffmpeg/ffprobe for any
// container the embedded WAV decoder can't read directly — the same
// split the teacher's wav package makes between go-audio/wav (native)
// and ffmpeg (everything else).
package audio

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"github.com/dhowden/tag"

	"musica/internal/waveform"
	"musica/internal/xerr"
)

// Metadata is what an ingest can recover from a file before falling
// back to filename parsing.
type Metadata struct {
	Title  string
	Artist string
	Album  string
}

var nativeExtensions = map[string]bool{".wav": true}

// Decode reads path and returns a normalized mono waveform at the
// canonical sample rate. WAV files are decoded natively; every other
// recognized extension is transcoded via ffmpeg first.
func Decode(path string) (waveform.Waveform, error) {
	ext := strings.ToLower(filepath.Ext(path))

	wavPath := path
	if !nativeExtensions[ext] {
		converted, err := transcodeToWAV(path)
		if err != nil {
			return waveform.Waveform{}, xerr.Wrap(fmt.Errorf("decode %s: %w", path, err))
		}
		defer os.Remove(converted)
		wavPath = converted
	}

	samples, channels, sampleRate, err := readWAV(wavPath)
	if err != nil {
		return waveform.Waveform{}, xerr.Wrap(fmt.Errorf("decode %s: %w", path, err))
	}

	return waveform.Normalize(samples, channels, sampleRate)
}

func readWAV(path string) (samples []float32, channels, sampleRate int, err error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, 0, err
	}
	defer f.Close()

	decoder := wav.NewDecoder(f)
	if !decoder.IsValidFile() {
		return nil, 0, 0, fmt.Errorf("not a valid WAV file")
	}

	buf, err := decoder.FullPCMBuffer()
	if err != nil {
		return nil, 0, 0, fmt.Errorf("read PCM buffer: %w", err)
	}
	if buf == nil || len(buf.Data) == 0 {
		return nil, 0, 0, fmt.Errorf("empty audio buffer")
	}

	samples = normalizeIntSamples(buf)

	return samples, buf.Format.NumChannels, int(buf.Format.SampleRate), nil
}

// normalizeIntSamples converts an IntBuffer's integer PCM samples to
// the [-1, 1] float32 range implied by its source bit depth.
func normalizeIntSamples(buf *goaudio.IntBuffer) []float32 {
	scale := float32(1 << 15) // default to 16-bit PCM, the overwhelming common case
	if buf.SourceBitDepth > 0 {
		scale = float32(int(1) << (buf.SourceBitDepth - 1))
	}
	out := make([]float32, len(buf.Data))
	for i, v := range buf.Data {
		out[i] = float32(v) / scale
	}
	return out
}

func transcodeToWAV(inputPath string) (string, error) {
	outputFile := filepath.Join(os.TempDir(), fmt.Sprintf("musica_%d.wav", os.Getpid())+"_"+filepath.Base(inputPath)+".wav")

	cmd := exec.Command(
		"ffmpeg", "-y",
		"-i", inputPath,
		"-c", "pcm_s16le",
		"-ac", "1",
		outputFile,
	)
	output, err := cmd.CombinedOutput()
	if err != nil {
		return "", fmt.Errorf("ffmpeg transcode failed: %w, output: %s", err, output)
	}
	return outputFile, nil
}

// Duration returns a file's duration in seconds via ffprobe, without
// decoding its samples. The ingestor does not call it; it takes the
// Song Record's duration from the decoded waveform.
func Duration(path string) (float64, error) {
	cmd := exec.Command(
		"ffprobe",
		"-v", "quiet",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		path,
	)
	out, err := cmd.Output()
	if err != nil {
		return 0, xerr.Wrap(fmt.Errorf("ffprobe duration query failed: %w", err))
	}
	return strconv.ParseFloat(strings.TrimSpace(string(out)), 64)
}

// ReadMetadata extracts embedded tag metadata, falling back to the
// "Artist - Title.ext" filename convention (spec.md §4.H) for any
// field the tags don't supply.
func ReadMetadata(path string) Metadata {
	meta := metadataFromTags(path)

	if meta.Title == "" || meta.Artist == "" {
		fileArtist, fileTitle := parseArtistTitleFilename(path)
		if meta.Title == "" {
			meta.Title = fileTitle
		}
		if meta.Artist == "" {
			meta.Artist = fileArtist
		}
	}
	return meta
}

func metadataFromTags(path string) Metadata {
	f, err := os.Open(path)
	if err != nil {
		return Metadata{}
	}
	defer f.Close()

	m, err := tag.ReadFrom(f)
	if err != nil {
		return Metadata{} // not all audio files carry readable tags
	}
	return Metadata{Title: m.Title(), Artist: m.Artist(), Album: m.Album()}
}

// parseArtistTitleFilename parses "Artist - Title.ext"; any other
// shape yields an empty artist and the bare filename as title.
func parseArtistTitleFilename(path string) (artist, title string) {
	base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	parts := strings.SplitN(base, " - ", 2)
	if len(parts) == 2 {
		return strings.TrimSpace(parts[0]), strings.TrimSpace(parts[1])
	}
	return "", base
}
