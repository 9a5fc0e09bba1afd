package engine

// Smoother keeps a bounded history of raw angle samples and blends them into
// a low-jitter signal. The ring buffer is its only state.
type Smoother struct {
	buf   []float64
	head  int // index of the oldest sample once the ring is full
	n     int
	alpha float64
}

// NewSmoother returns a Smoother holding up to capacity samples. Capacity
// below 1 is treated as 1, which disables smoothing.
func NewSmoother(capacity int, alpha float64) *Smoother {
	if capacity < 1 {
		capacity = 1
	}
	return &Smoother{buf: make([]float64, capacity), alpha: alpha}
}

// Len returns how many samples are currently held.
func (s *Smoother) Len() int { return s.n }

// Push records a raw sample, overwriting the oldest one when full.
func (s *Smoother) Push(x float64) {
	if s.n < len(s.buf) {
		s.buf[(s.head+s.n)%len(s.buf)] = x
		s.n++
		return
	}
	s.buf[s.head] = x
	s.head = (s.head + 1) % len(s.buf)
}

// Smooth records x and returns the blended value. With fewer than two
// samples the raw value is returned; otherwise s = α·x + (1−α)·s is applied
// from the oldest sample to the newest.
func (s *Smoother) Smooth(x float64) float64 {
	s.Push(x)
	if s.n < 2 {
		return x
	}
	v := s.buf[s.head]
	for i := 1; i < s.n; i++ {
		v = s.alpha*s.buf[(s.head+i)%len(s.buf)] + (1-s.alpha)*v
	}
	return v
}
