// Package simulate replays recorded request streams through a RateLimiter.
package simulate

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/Dzaakk/sliding-rate-limiter/limiter"
)

type Scenario struct {
	Name          string         `yaml:"name"`
	BucketWidthMs int64          `yaml:"bucketWidthMs"`
	GlobalLimit   int            `yaml:"globalLimit"`
	Limits        map[string]int `yaml:"limits"`
	Requests      []Request      `yaml:"requests"`
}

// Request is one replayed call. Expect is optional.
type Request struct {
	At     int64  `yaml:"at"`
	User   string `yaml:"user"`
	Expect *bool  `yaml:"expect,omitempty"`
}

type Result struct {
	Request
	Allowed bool
}

func (r Result) Mismatch() bool {
	return r.Expect != nil && *r.Expect != r.Allowed
}

type Report struct {
	Scenario   string
	Results    []Result
	Mismatches int
}

func Load(path string) (*Scenario, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open scenario: %w", err)
	}
	defer f.Close()

	s, err := Parse(f)
	if err != nil {
		return nil, fmt.Errorf("scenario %s: %w", path, err)
	}
	return s, nil
}

func Parse(r io.Reader) (*Scenario, error) {
	var s Scenario
	if err := yaml.NewDecoder(r).Decode(&s); err != nil {
		return nil, fmt.Errorf("decode scenario: %w", err)
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

func (s *Scenario) Validate() error {
	if len(s.Requests) == 0 {
		return errors.New("scenario has no requests")
	}
	if s.BucketWidthMs < 0 {
		return fmt.Errorf("bucketWidthMs must not be negative, got %d", s.BucketWidthMs)
	}
	return nil
}

// Run replays the requests in order against a fresh limiter.
func (s *Scenario) Run(logger *slog.Logger) Report {
	times := make([]int64, len(s.Requests))
	for i, req := range s.Requests {
		times[i] = req.At
	}

	opts := []limiter.Option{limiter.WithLogger(logger)}
	if s.BucketWidthMs > 0 {
		opts = append(opts, limiter.WithBucketWidth(s.BucketWidthMs))
	}
	rl := limiter.NewRateLimiter(limiter.NewSequenceClock(times...), opts...)
	rl.ConfigureGlobalLimit(s.GlobalLimit)
	for user, rps := range s.Limits {
		rl.ConfigureLimit(user, rps)
	}

	report := Report{Scenario: s.Name, Results: make([]Result, 0, len(s.Requests))}
	for _, req := range s.Requests {
		res := Result{Request: req, Allowed: rl.ProcessRequest(req.User)}
		if res.Mismatch() {
			report.Mismatches++
		}
		report.Results = append(report.Results, res)
	}
	return report
}

func (r Report) Print(w io.Writer) {
	fmt.Fprintf(w, "scenario: %s\n", r.Scenario)
	for _, res := range r.Results {
		verdict := "reject"
		if res.Allowed {
			verdict = "admit"
		}
		mark := ""
		if res.Mismatch() {
			mark = "  MISMATCH"
		}
		fmt.Fprintf(w, "%8d ms  user=%-10q %s%s\n", res.At, res.User, verdict, mark)
	}
	fmt.Fprintf(w, "mismatches: %d\n", r.Mismatches)
}
