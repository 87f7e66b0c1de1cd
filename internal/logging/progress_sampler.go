package logging

// ProgressSampler suppresses repetitive progress logs while preserving signal
// when the active pair or the percentage bucket changes.
type ProgressSampler struct {
	bucketSize float64
	lastPair   int
	lastBucket int
}

// NewProgressSampler constructs a sampler that emits when the percent crosses
// bucket boundaries (default 10%) or when the pair index changes.
func NewProgressSampler(bucketSize float64) *ProgressSampler {
	if bucketSize <= 0 {
		bucketSize = 10
	}
	return &ProgressSampler{bucketSize: bucketSize, lastPair: -1, lastBucket: -1}
}

// ShouldLog reports whether a progress sample should be logged. A negative
// percent means unknown and only pair changes emit.
func (s *ProgressSampler) ShouldLog(pair int, percent float64) bool {
	if s == nil {
		return true
	}
	emit := false
	if pair != s.lastPair {
		s.lastPair = pair
		s.lastBucket = -1
		emit = true
	}
	if percent >= 0 {
		if percent > 100 {
			percent = 100
		}
		bucket := int(percent / s.bucketSize)
		if bucket > s.lastBucket {
			s.lastBucket = bucket
			emit = true
		}
	}
	return emit
}

// Reset clears the sampler state when a new batch starts.
func (s *ProgressSampler) Reset() {
	if s == nil {
		return
	}
	s.lastPair = -1
	s.lastBucket = -1
}
