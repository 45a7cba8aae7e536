package cli

import (
	"context"
	"errors"
	"strings"

	"github.com/alnah/go-minutes/internal/apierr"
	"github.com/alnah/go-minutes/internal/audio"
	"github.com/alnah/go-minutes/internal/config"
	"github.com/alnah/go-minutes/internal/diarize"
	"github.com/alnah/go-minutes/internal/ffmpeg"
	"github.com/alnah/go-minutes/internal/lang"
	"github.com/alnah/go-minutes/internal/llm"
	"github.com/alnah/go-minutes/internal/report"
	"github.com/alnah/go-minutes/internal/speakers"
	"github.com/alnah/go-minutes/internal/voice"
)

// Process exit codes.
const (
	ExitOK            = 0
	ExitGeneral       = 1
	ExitUsage         = 2
	ExitSetup         = 3
	ExitValidation    = 4
	ExitTranscription = 5
	ExitReport        = 6
	ExitInterrupt     = 130
)

// ExitCode maps an error returned by a command to the process exit code.
func ExitCode(err error) int {
	if err == nil {
		return ExitOK
	}

	if errors.Is(err, ErrInterrupted) || errors.Is(err, context.Canceled) {
		return ExitInterrupt
	}

	if isCobraUsageError(err) {
		return ExitUsage
	}

	// Report errors come first: they also wrap API sentinels.
	if errors.Is(err, ErrReportFailed) || errors.Is(err, llm.ErrInputTooLong) ||
		errors.Is(err, report.ErrEmptyTranscript) {
		return ExitReport
	}

	if errors.Is(err, ffmpeg.ErrNotFound) || errors.Is(err, ErrAPIKeyMissing) ||
		errors.Is(err, llm.ErrEmptyAPIKey) || errors.Is(err, diarize.ErrAPIKeyMissing) ||
		errors.Is(err, diarize.ErrServiceURLMissing) || errors.Is(err, voice.ErrServiceURLMissing) {
		return ExitSetup
	}

	if errors.Is(err, ErrUnsupportedFormat) || errors.Is(err, ErrInvalidOutputFormat) ||
		errors.Is(err, ErrFileNotFound) || errors.Is(err, ErrOutputExists) ||
		errors.Is(err, lang.ErrInvalid) || errors.Is(err, report.ErrUnknownKind) ||
		errors.Is(err, config.ErrUnknownKey) || errors.Is(err, config.ErrInvalidValue) ||
		errors.Is(err, speakers.ErrNotFound) || errors.Is(err, speakers.ErrUnknownKey) ||
		errors.Is(err, audio.ErrInvalidAudio) || errors.Is(err, audio.ErrFileNotFound) {
		return ExitValidation
	}

	if errors.Is(err, apierr.ErrRateLimit) || errors.Is(err, apierr.ErrQuotaExceeded) ||
		errors.Is(err, apierr.ErrTimeout) || errors.Is(err, apierr.ErrAuthFailed) ||
		errors.Is(err, apierr.ErrBadRequest) {
		return ExitTranscription
	}

	return ExitGeneral
}

// cobraUsageErrorPatterns contains error message substrings that indicate Cobra usage errors.
// Cobra doesn't expose typed errors, so string matching is the only reliable approach.
var cobraUsageErrorPatterns = []string{
	"required flag",
	"unknown flag",
	"unknown shorthand",
	"flag needs an argument",
	"invalid argument",
	"unknown command",
	"accepts ",
	"requires at least",
	"requires at most",
}

func isCobraUsageError(err error) bool {
	msg := err.Error()
	for _, pattern := range cobraUsageErrorPatterns {
		if strings.Contains(msg, pattern) {
			return true
		}
	}
	return false
}
