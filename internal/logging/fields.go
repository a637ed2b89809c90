package logging

// Standardized attribute keys shared across components so console output and
// downstream log processing stay consistent.
const (
	FieldComponent = "component"
	FieldEventType = "event_type"
	FieldErrorHint = "error_hint"
	FieldAlert     = "alert"

	FieldSeries    = "series"
	FieldEpisode   = "episode"
	FieldSearcher  = "searcher"
	FieldRetriever = "retriever"
	FieldNotifier  = "notifier"
	FieldCandidate = "candidate"
	FieldRequestID = "request_id"
)

// Alert tags a log record as an operator-facing alert.
func Alert(value string) Attr { return String(FieldAlert, value) }
