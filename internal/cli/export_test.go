package cli

// Export internal functions for testing.

// RunTranscribe exports runTranscribe for testing.
var RunTranscribe = runTranscribe

// TranscribeOptions exports transcribeOptions for testing.
type TranscribeOptions = transcribeOptions

// RunReport exports runReport for testing.
var RunReport = runReport

// ReportOptions exports reportOptions for testing.
type ReportOptions = reportOptions

// RunConfigSet exports runConfigSet for testing.
var RunConfigSet = runConfigSet

// RunConfigGet exports runConfigGet for testing.
var RunConfigGet = runConfigGet

// RunConfigList exports runConfigList for testing.
var RunConfigList = runConfigList

// ClampParallel exports clampParallel for testing.
var ClampParallel = clampParallel

// DeriveOutputPath exports deriveOutputPath for testing.
var DeriveOutputPath = deriveOutputPath

// DeriveReportPath exports deriveReportPath for testing.
var DeriveReportPath = deriveReportPath

// SupportedFormatsList exports supportedFormatsList for testing.
var SupportedFormatsList = supportedFormatsList

// WriteFileAtomic exports writeFileAtomic for testing.
var WriteFileAtomic = writeFileAtomic

// ProgressPrinter exports progressPrinter for testing.
var ProgressPrinter = progressPrinter
