package upload

import "sync/atomic"

// Stats counts what the orchestrator has done since it was created.
type Stats struct {
	Submitted       int64
	Rejected        int64
	Completed       int64
	Failed          int64
	Cancelled       int64
	SharingWarnings int64
	BytesUploaded   int64
}

// statsAccumulator is updated from task goroutines without taking the orchestrator lock.
type statsAccumulator struct {
	submitted       int64
	rejected        int64
	completed       int64
	failed          int64
	cancelled       int64
	sharingWarnings int64
	bytesUploaded   int64
}

func (s *statsAccumulator) addSubmitted(n int) {
	atomic.AddInt64(&s.submitted, int64(n))
}

func (s *statsAccumulator) addRejected(n int) {
	atomic.AddInt64(&s.rejected, int64(n))
}

func (s *statsAccumulator) incrementCompleted(bytes int64) {
	atomic.AddInt64(&s.completed, 1)
	atomic.AddInt64(&s.bytesUploaded, bytes)
}

func (s *statsAccumulator) incrementFailed() {
	atomic.AddInt64(&s.failed, 1)
}

func (s *statsAccumulator) incrementCancelled() {
	atomic.AddInt64(&s.cancelled, 1)
}

func (s *statsAccumulator) incrementSharingWarnings() {
	atomic.AddInt64(&s.sharingWarnings, 1)
}

func (s *statsAccumulator) snapshot() Stats {
	return Stats{
		Submitted:       atomic.LoadInt64(&s.submitted),
		Rejected:        atomic.LoadInt64(&s.rejected),
		Completed:       atomic.LoadInt64(&s.completed),
		Failed:          atomic.LoadInt64(&s.failed),
		Cancelled:       atomic.LoadInt64(&s.cancelled),
		SharingWarnings: atomic.LoadInt64(&s.sharingWarnings),
		BytesUploaded:   atomic.LoadInt64(&s.bytesUploaded),
	}
}
