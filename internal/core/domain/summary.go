package domain

// Summary aggregates item statuses for progress messages and reports.
type Summary struct {
	Total        int `json:"total"`
	Paid         int `json:"paid"`
	Unpaid       int `json:"unpaid"`
	Invalid      int `json:"invalid"`
	Unknown      int `json:"unknown"`
	Error        int `json:"error"`
	Pending      int `json:"pending"`
	TotalRetries int `json:"total_retries"`
}

// Failed is invalid + error + unknown.
func (s Summary) Failed() int {
	return s.Invalid + s.Error + s.Unknown
}

func (s Summary) Settled() int {
	return s.Paid + s.Unpaid
}

func Summarize(items []ItemRecord) Summary {
	out := Summary{Total: len(items)}
	for _, item := range items {
		switch item.Status {
		case StatusPaid:
			out.Paid++
		case StatusUnpaid:
			out.Unpaid++
		case StatusInvalid:
			out.Invalid++
		case StatusUnknown:
			out.Unknown++
		case StatusError:
			out.Error++
		default:
			out.Pending++
		}
		out.TotalRetries += item.Retries()
	}
	return out
}

// RunKind separates a first pass over a batch from a follow-up pass.
type RunKind string

const (
	RunInitial RunKind = "initial"
	RunRetry   RunKind = "retry"
)

// ClassifyRun labels a run as a retry when any item already has a settled
// answer. The label only changes messaging.
func ClassifyRun(items []ItemRecord) RunKind {
	for _, item := range items {
		if item.Status.Settled() {
			return RunRetry
		}
	}
	return RunInitial
}

// EligibleIndices returns, in sequence order, the items the next run will
// attempt.
func EligibleIndices(items []ItemRecord) []int {
	out := make([]int, 0, len(items))
	for i, item := range items {
		if item.Status.Eligible() {
			out = append(out, i)
		}
	}
	return out
}

// RunResult describes a finished batch run.
type RunResult struct {
	RunID       string  `json:"run_id"`
	Kind        RunKind `json:"kind"`
	Selected    int     `json:"selected"`
	Attempted   int     `json:"attempted"`
	Interrupted bool    `json:"interrupted"`
	Summary     Summary `json:"summary"`
}
