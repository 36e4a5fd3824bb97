package llm

// CallRecord is the structured telemetry record emitted once per terminal
// generate_structured outcome (success or failure), per spec.md 4.2 step 6.
// A repair round-trip does not emit its own record: the whole call,
// including any repair attempt, is one record.
type CallRecord struct {
	TraceID       string
	Provider      string
	Model         string
	Purpose       string
	PromptName    string
	PromptVersion string
	LatencyMs     int64
	Retries       int
	OK            bool
	ErrorType     string
}

// TelemetrySink receives one CallRecord per generate_structured invocation.
// A nil sink is valid and simply discards telemetry.
type TelemetrySink func(CallRecord)
