// Package buildstate holds the persisted state of the last indexing run.
package buildstate

import "time"

// Record describes the last (possibly partial) indexing pass. It is the
// single input the planner compares current fingerprints against.
// Partial failures still persist a record reflecting what did succeed,
// so subsequent incremental runs stay correct.
type Record struct {
	fingerprints map[string]string
	lastBuild    time.Time
	embedVersion string
	processed    int
	skipped      int
	failed       int
}

// New creates a build record.
func New(
	fingerprints map[string]string, lastBuild time.Time,
	embedVersion string, processed, skipped, failed int,
) Record {
	return Record{
		fingerprints: cloneFingerprints(fingerprints),
		lastBuild:    lastBuild,
		embedVersion: embedVersion,
		processed:    processed,
		skipped:      skipped,
		failed:       failed,
	}
}

// Fingerprint returns the recorded fingerprint for a unit, if any.
func (r *Record) Fingerprint(unitID string) (string, bool) {
	fp, ok := r.fingerprints[unitID]
	return fp, ok
}

// Fingerprints returns a copy of all recorded fingerprints.
func (r *Record) Fingerprints() map[string]string {
	return cloneFingerprints(r.fingerprints)
}

// LastBuild returns the timestamp of the last successful build.
func (r *Record) LastBuild() time.Time { return r.lastBuild }

// EmbedVersion returns the embedding-configuration version used.
func (r *Record) EmbedVersion() string { return r.embedVersion }

// Processed returns the processed item count of the last run.
func (r *Record) Processed() int { return r.processed }

// Skipped returns the skipped item count of the last run.
func (r *Record) Skipped() int { return r.skipped }

// Failed returns the failed item count of the last run.
func (r *Record) Failed() int { return r.failed }

func cloneFingerprints(m map[string]string) map[string]string {
	if m == nil {
		return map[string]string{}
	}
	c := make(map[string]string, len(m))
	for k, v := range m {
		c[k] = v
	}
	return c
}
