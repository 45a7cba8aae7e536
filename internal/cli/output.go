package cli

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/alnah/go-minutes/internal/metrics"
)

// Output formats of the transcribe command.
const (
	FormatText = "text"
	FormatJSON = "json"
)

// outputExt maps an output format to its file extension.
func outputExt(f string) string {
	if f == FormatJSON {
		return ".json"
	}
	return ".txt"
}

// deriveOutputPath replaces the extension of inputPath with the one of the
// output format. Example: "meeting.ogg" -> "meeting.txt"
func deriveOutputPath(inputPath, outputFormat string) string {
	ext := filepath.Ext(inputPath)
	return strings.TrimSuffix(inputPath, ext) + outputExt(outputFormat)
}

// deriveReportPath places the report next to the transcript.
// Example: "meeting.txt" + concise -> "meeting.concise.md"
func deriveReportPath(transcriptPath, kind string) string {
	ext := filepath.Ext(transcriptPath)
	return strings.TrimSuffix(transcriptPath, ext) + "." + kind + ".md"
}

// checkOutputFree fails early when path already exists, before any
// expensive work is done.
func checkOutputFree(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("%s: %w", path, ErrOutputExists)
	}
	return nil
}

// progressPrinter returns a job progress callback that writes one line
// per chunk and a line every tenth of the segments.
func progressPrinter(w io.Writer) func(stage string, done, total int) {
	return func(stage string, done, total int) {
		switch stage {
		case metrics.StageDiarize:
			_, _ = fmt.Fprintf(w, "  Diarized chunk %d/%d\n", done, total)
		case metrics.StageTranscribe:
			step := max(1, total/10)
			if done == total || done%step == 0 {
				_, _ = fmt.Fprintf(w, "  Transcribed %d/%d segments\n", done, total)
			}
		}
	}
}

// writeFileAtomic writes content to path atomically.
// It fails if the file already exists (O_EXCL), preventing accidental overwrites.
// On write failure, the partial file is removed.
func writeFileAtomic(path, content string) error {
	// #nosec G302 G304 -- user-specified output file with standard permissions
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
	if err != nil {
		if errors.Is(err, os.ErrExist) {
			return fmt.Errorf("output file already exists: %s: %w", path, ErrOutputExists)
		}
		return fmt.Errorf("cannot create output file: %w", err)
	}

	writeErr := func() error {
		defer func() { _ = f.Close() }()
		if _, err := f.WriteString(content); err != nil {
			return fmt.Errorf("failed to write output: %w", err)
		}
		return nil
	}()

	if writeErr != nil {
		_ = os.Remove(path)
		return writeErr
	}

	return nil
}
