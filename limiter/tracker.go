package limiter

const windowMs = 1000

// Tracker answers whether an entity is over its rps limit and records admitted requests.
// Implementations are SlidingWindowTracker and UnlimitedTracker.
type Tracker interface {
	OutOfLimit(nowMs int64) bool
	AddRequest(nowMs int64)
	// Limit returns the configured rps, 0 when unlimited.
	Limit() int

	tracker()
}

// NewTracker returns an UnlimitedTracker for rps <= 0 and a sliding window otherwise.
func NewTracker(rps int, bucketWidthMs int64) Tracker {
	if rps <= 0 {
		return UnlimitedTracker{}
	}
	return NewSlidingWindowTracker(rps, bucketWidthMs)
}

// SlidingWindowTracker counts requests over the trailing second in buckets of bucketWidthMs.
// windowTotal always equals the sum of the counts held in buckets.
type SlidingWindowTracker struct {
	buckets       *BucketDeque
	rps           int
	bucketWidthMs int64
	windowTotal   int64
}

func NewSlidingWindowTracker(rps int, bucketWidthMs int64) *SlidingWindowTracker {
	if bucketWidthMs <= 0 {
		bucketWidthMs = DefaultBucketWidthMs
	}
	return &SlidingWindowTracker{
		buckets:       NewBucketDeque(int(windowMs/bucketWidthMs) + 2),
		rps:           rps,
		bucketWidthMs: bucketWidthMs,
	}
}

func (s *SlidingWindowTracker) OutOfLimit(nowMs int64) bool {
	s.evictExpired(nowMs)
	return s.windowTotal >= int64(s.rps)
}

func (s *SlidingWindowTracker) AddRequest(nowMs int64) {
	s.evictExpired(nowMs)

	cur := s.tickOf(nowMs)
	tail := s.buckets.tail()
	switch {
	case tail == nil:
		s.buckets.Append(Bucket{Tick: cur, Count: 1})
	case tail.Tick == cur:
		tail.Count++
	case cur < tail.Tick:
		// clock went backwards, keep ticks ascending
		tail.Count++
	default:
		s.buckets.Append(Bucket{Tick: cur, Count: 1})
	}
	s.windowTotal++
}

func (s *SlidingWindowTracker) Limit() int {
	return s.rps
}

func (s *SlidingWindowTracker) WindowTotal() int64 {
	return s.windowTotal
}

func (s *SlidingWindowTracker) tracker() {}

func (s *SlidingWindowTracker) evictExpired(nowMs int64) {
	boundary := s.tickOf(nowMs - windowMs)
	for {
		head, ok := s.buckets.PeekHead()
		if !ok || head.Tick > boundary {
			return
		}
		s.buckets.RemoveHead()
		s.windowTotal -= head.Count
	}
}

// tickOf floors towards negative infinity so negative timestamps quantize consistently.
func (s *SlidingWindowTracker) tickOf(ms int64) int64 {
	t := ms / s.bucketWidthMs
	if ms%s.bucketWidthMs != 0 && ms < 0 {
		t--
	}
	return t
}

// UnlimitedTracker never limits and keeps no state.
type UnlimitedTracker struct{}

func (UnlimitedTracker) OutOfLimit(int64) bool { return false }

func (UnlimitedTracker) AddRequest(int64) {}

func (UnlimitedTracker) Limit() int { return 0 }

func (UnlimitedTracker) tracker() {}
