package sandbox

import (
	"math"
	"time"

	"github.com/dustin/go-humanize"
)

// Stats is one status sample. Averages are per living organism.
type Stats struct {
	Tick    int
	Orgs    int
	IPS     float64 // completed program passes per organism per second
	LPS     float64 // executed instructions per second
	Energy  float64
	Changes float64 // |adds| + changes
	Fitness float64
	Code    float64 // program size
}

// Status aggregates execution counters and reports a sample every Period
// ticks.
type Status struct {
	Period  int
	OnStats func(Stats)

	lines, passes int
	stamp         time.Time
	now           func() time.Time
}

// NewStatus creates a reporter. Period < 1 disables reporting.
func NewStatus(period int) *Status {
	s := &Status{Period: period, now: time.Now}
	s.stamp = s.now()
	return s
}

// Record adds the instructions and passes executed in one tick.
func (s *Status) Record(lines, passes int) {
	s.lines += lines
	s.passes += passes
}

// Update emits a sample when the world tick is a multiple of Period.
func (s *Status) Update(w *World) (Stats, bool) {
	if !every(w.Tick, s.Period) {
		return Stats{}, false
	}
	now := s.now()
	st := s.sample(w, now.Sub(s.stamp).Seconds())
	s.lines, s.passes, s.stamp = 0, 0, now

	log.Infof("tick:%s ips:%s lps:%s org:%d nrg:%s che:%s fit:%s cod:%s",
		humanize.Comma(int64(st.Tick)),
		humanize.FormatFloat("#,###.##", st.IPS),
		humanize.Comma(int64(st.LPS)),
		st.Orgs,
		humanize.Comma(int64(st.Energy)),
		humanize.FormatFloat("#,###.##", st.Changes),
		humanize.Comma(int64(st.Fitness)),
		humanize.FormatFloat("#,###.#", st.Code))
	if s.OnStats != nil {
		s.OnStats(st)
	}
	return st, true
}

func (s *Status) sample(w *World, secs float64) Stats {
	st := Stats{Tick: w.Tick}
	for _, o := range w.Orgs {
		if !o.Alive() {
			continue
		}
		st.Orgs++
		st.Energy += o.Energy
		st.Changes += math.Abs(o.Adds) + o.Changes
		st.Fitness += o.Fitness()
		st.Code += float64(o.VM.Size())
	}
	if st.Orgs > 0 {
		n := float64(st.Orgs)
		st.Energy /= n
		st.Changes /= n
		st.Fitness /= n
		st.Code /= n
	}
	if secs > 0 {
		st.LPS = float64(s.lines) / secs
		if st.Orgs > 0 {
			st.IPS = float64(s.passes) / float64(st.Orgs) / secs
		}
	}
	return st
}
