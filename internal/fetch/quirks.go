package fetch

// Quirks are workarounds for data sources that deviate from what the fetch
// layer otherwise expects.
type Quirks struct {
	// NulTerminatedText: text values end at the first NUL byte and empty
	// text stands for NULL.
	NulTerminatedText bool
	// TextualTemporals: date and timestamp values may be delivered as text.
	TextualTemporals bool
	// IntervalTime: TIME is an interval that may be negative or longer than
	// a day ("-01:00:00", "838:59:59"). Such columns are fetched as text.
	IntervalTime bool
}

var knownQuirks = map[string]Quirks{
	"DB2/LINUX": {NulTerminatedText: true},
	"DB2/6000":  {NulTerminatedText: true},
	"DB2/NT":    {NulTerminatedText: true},
	"DB2/NT64":  {NulTerminatedText: true},
	"MySQL":     {TextualTemporals: true, IntervalTime: true},
}

// QuirksFor looks up the workarounds for a DBMS by its exact product name.
// Unknown names get none.
func QuirksFor(dbmsName string) Quirks {
	return knownQuirks[dbmsName]
}
