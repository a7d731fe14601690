package logger

import (
	"strconv"
	"strings"
	"sync"
)

// ratioSampler passes the first n of every d events. With no ratio set
// it passes everything.
type ratioSampler struct {
	mu   sync.Mutex
	pass int
	of   int
	seen int
}

func newRatioSampler(pass, of int) *ratioSampler {
	s := &ratioSampler{}
	s.Set(pass, of)
	return s
}

// Set replaces the ratio and restarts the cycle. Non-positive values
// disable sampling.
func (s *ratioSampler) Set(pass, of int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if pass <= 0 || of <= 0 {
		s.pass, s.of, s.seen = 0, 0, 0
		return
	}
	if pass > of {
		pass = of
	}
	s.pass = pass
	s.of = of
	s.seen = 0
}

// Allow reports whether the current event falls inside the pass window.
func (s *ratioSampler) Allow() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.of <= 0 {
		return true
	}
	s.seen++
	if s.seen > s.of {
		s.seen = 1
	}
	return s.seen <= s.pass
}

// parseRatioSpec accepts "n/d" or a bare "d" (meaning 1/d). Anything
// unparsable disables sampling.
func parseRatioSpec(spec string) (int, int) {
	spec = strings.TrimSpace(spec)
	if spec == "" {
		return 0, 0
	}
	if left, right, found := strings.Cut(spec, "/"); found {
		pass, err1 := strconv.Atoi(strings.TrimSpace(left))
		of, err2 := strconv.Atoi(strings.TrimSpace(right))
		if err1 == nil && err2 == nil {
			return pass, of
		}
		return 0, 0
	}
	if v, err := strconv.Atoi(spec); err == nil && v > 0 {
		return 1, v
	}
	return 0, 0
}
