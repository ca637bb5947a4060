package telemetry

import (
	"strings"
	"sync"
)

type Report struct {
	ID     string
	Params []any
}

// Recorder keeps every report in memory, it is meant for tests.
type Recorder struct {
	lock     sync.Mutex
	Broken   []Report
	Warnings []Report
	Counts   map[string]int64
}

func NewRecorder() *Recorder {
	return &Recorder{Counts: map[string]int64{}}
}

func (r *Recorder) ReportBroken(id string, params ...any) {
	r.lock.Lock()
	defer r.lock.Unlock()
	r.Broken = append(r.Broken, Report{ID: id, Params: params})
}

func (r *Recorder) ReportWarning(id string, params ...any) {
	r.lock.Lock()
	defer r.lock.Unlock()
	r.Warnings = append(r.Warnings, Report{ID: id, Params: params})
}

func (r *Recorder) ReportDebug(string, ...any) {}

func (r *Recorder) ReportCount(id string, count int64) {
	r.lock.Lock()
	defer r.lock.Unlock()
	r.Counts[id] = count
}

// WarningsWithSuffix returns the warnings whose id ends with suffix, scoped
// ids look like "<namespace>: <id>".
func (r *Recorder) WarningsWithSuffix(suffix string) []Report {
	r.lock.Lock()
	defer r.lock.Unlock()
	var out []Report
	for _, w := range r.Warnings {
		if strings.HasSuffix(w.ID, suffix) {
			out = append(out, w)
		}
	}
	return out
}
