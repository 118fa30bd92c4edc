package report

// profile.go exports a session as a pprof profile so the time spent per
// outcome can be explored with `go tool pprof`.

import (
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/google/pprof/profile"
	"github.com/perfgo/deflake/model"
)

// OutcomeClass names the kind of result an attempt had.
func OutcomeClass(o model.AttemptOutcome) string {
	switch {
	case o.Success:
		return "pass"
	case o.ReturnCode == model.ReturnCodeTimeout:
		return "timeout"
	case o.ReturnCode == model.ReturnCodeExecError:
		return "exec_error"
	case o.ReturnCode == model.ReturnCodeWorkerError:
		return "worker_error"
	default:
		return fmt.Sprintf("fail(rc=%d)", o.ReturnCode)
	}
}

type classTotal struct {
	count int64
	wall  time.Duration
}

// BuildProfile turns a session into a profile with one sample per outcome
// class. Each sample carries the attempt count and the wall time spent,
// and its stack is the outcome class on top of the test name.
func BuildProfile(s model.SessionStats) (*profile.Profile, error) {
	totals := make(map[string]*classTotal)
	add := func(class string, d time.Duration) {
		t, ok := totals[class]
		if !ok {
			t = &classTotal{}
			totals[class] = t
		}
		t.count++
		t.wall += d
	}

	var all, failed time.Duration
	for _, d := range s.Durations {
		all += d
	}
	for _, f := range s.Failures {
		add(OutcomeClass(f), f.Duration)
		failed += f.Duration
	}
	if s.SuccessCount > 0 {
		totals["pass"] = &classTotal{count: int64(s.SuccessCount), wall: all - failed}
	}

	classes := make([]string, 0, len(totals))
	for class := range totals {
		classes = append(classes, class)
	}
	sort.Strings(classes)

	root := &profile.Function{ID: 1, Name: s.TestCase.FullName, SystemName: s.TestCase.FullName}
	rootLoc := &profile.Location{ID: 1, Line: []profile.Line{{Function: root}}}

	p := &profile.Profile{
		SampleType: []*profile.ValueType{
			{Type: "attempts", Unit: "count"},
			{Type: "wall", Unit: "nanoseconds"},
		},
		DefaultSampleType: "wall",
		PeriodType:        &profile.ValueType{Type: "wall", Unit: "nanoseconds"},
		Period:            1,
		TimeNanos:         s.StartedAt.UnixNano(),
		DurationNanos:     s.Elapsed.Nanoseconds(),
		Function:          []*profile.Function{root},
		Location:          []*profile.Location{rootLoc},
	}

	for i, class := range classes {
		id := uint64(i + 2)
		fn := &profile.Function{ID: id, Name: class, SystemName: class}
		loc := &profile.Location{ID: id, Line: []profile.Line{{Function: fn}}}
		p.Function = append(p.Function, fn)
		p.Location = append(p.Location, loc)

		t := totals[class]
		p.Sample = append(p.Sample, &profile.Sample{
			Location: []*profile.Location{loc, rootLoc},
			Value:    []int64{t.count, t.wall.Nanoseconds()},
			Label:    map[string][]string{"outcome": {class}},
		})
	}

	if err := p.CheckValid(); err != nil {
		return nil, fmt.Errorf("invalid session profile: %w", err)
	}
	return p, nil
}

// WriteProfile writes the session profile to w in gzipped protobuf form.
func WriteProfile(w io.Writer, s model.SessionStats) error {
	p, err := BuildProfile(s)
	if err != nil {
		return err
	}
	if err := p.Write(w); err != nil {
		return fmt.Errorf("failed to write profile: %w", err)
	}
	return nil
}
