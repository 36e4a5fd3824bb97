package guide

// Status is the guide's single source of truth for pipeline progress.
// Values are stable strings surfaced verbatim in API responses.
type Status string

const (
	StatusQueued             Status = "QUEUED"
	StatusExtractingText     Status = "EXTRACTING_TEXT"
	StatusTextExtracted      Status = "TEXT_EXTRACTED"
	StatusParsingMatrix      Status = "PARSING_MATRIX"
	StatusMatrixParsed       Status = "MATRIX_PARSED"
	StatusGeneratingExamples Status = "GENERATING_EXAMPLES"
	StatusDone               Status = "DONE"
	StatusFailedBadPDF       Status = "FAILED_BAD_PDF"
	StatusFailedParse        Status = "FAILED_PARSE"
	StatusFailedGeneration   Status = "FAILED_GENERATION"
)

// terminal holds the four states a Guide never transitions out of.
var terminal = map[Status]bool{
	StatusDone:             true,
	StatusFailedBadPDF:     true,
	StatusFailedParse:      true,
	StatusFailedGeneration: true,
}

// IsTerminal reports whether s is one of the pipeline's end states.
func (s Status) IsTerminal() bool { return terminal[s] }

// legalTransitions enumerates the only (from, to) pairs a claim may request.
// Anything not listed here is a programming error, not a runtime race.
var legalTransitions = map[Status]map[Status]bool{
	StatusQueued:             {StatusExtractingText: true},
	StatusExtractingText:     {StatusTextExtracted: true, StatusFailedBadPDF: true},
	StatusTextExtracted:      {StatusParsingMatrix: true},
	StatusParsingMatrix:      {StatusMatrixParsed: true, StatusFailedParse: true},
	StatusMatrixParsed:       {StatusGeneratingExamples: true},
	StatusGeneratingExamples: {StatusDone: true, StatusFailedGeneration: true},
}

// IsLegalTransition reports whether moving from `from` to `to` is one of
// the transitions enumerated in spec.md 4.1. It does not perform the
// transition; see Claim for the atomic compare-and-set.
func IsLegalTransition(from, to Status) bool {
	return legalTransitions[from][to]
}
