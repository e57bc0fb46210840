package archon

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/nidhogg/demiurge/internal/resonance"
	"go.uber.org/zap"
)

// DefaultAnomalyThreshold is the minimum acceptable health.
const DefaultAnomalyThreshold = 0.7

// entropyCeiling is the entropy above which state is considered disordered.
const entropyCeiling = 0.5

// AnomalyType classifies a detection.
type AnomalyType string

const (
	PerformanceDegradation AnomalyType = "performance_degradation"
	StateCorruption        AnomalyType = "state_corruption"
	InvariantViolation     AnomalyType = "invariant_violation"
)

// Anomaly is one detection.
type Anomaly struct {
	Type        AnomalyType `json:"type"`
	Severity    float64     `json:"severity"`
	Subsystem   string      `json:"subsystem"`
	Description string      `json:"description"`
	Timestamp   time.Time   `json:"timestamp"`
}

// Sample is a snapshot of system health.
type Sample struct {
	Health     float64
	Entropy    float64
	Invariants map[string]bool
	Timestamp  time.Time
}

// Sampler produces the current sample.
type Sampler func() Sample

// AnomalyWatcher flags unhealthy samples and keeps a bounded log.
type AnomalyWatcher struct {
	threshold float64
	sampler   Sampler
	log       *resonance.Window
	palace    *MemoryPalace
	logger    *zap.Logger
}

// NewAnomalyWatcher creates a watcher. threshold <= 0 uses the default.
func NewAnomalyWatcher(threshold float64, sampler Sampler, logger *zap.Logger) *AnomalyWatcher {
	if threshold <= 0 {
		threshold = DefaultAnomalyThreshold
	}
	return &AnomalyWatcher{
		threshold: threshold,
		sampler:   sampler,
		log:       resonance.NewWindow(256, resonance.DropOldest),
		logger:    logger,
	}
}

// SetPalace files every detected anomaly into the anomalies chamber.
func (w *AnomalyWatcher) SetPalace(p *MemoryPalace) { w.palace = p }

// Watch evaluates s and records any anomalies.
func (w *AnomalyWatcher) Watch(s Sample) []Anomaly {
	if s.Timestamp.IsZero() {
		s.Timestamp = time.Now().UTC()
	}
	var out []Anomaly
	if s.Health < w.threshold {
		out = append(out, Anomaly{
			Type:        PerformanceDegradation,
			Severity:    resonance.Clamp(1 - s.Health),
			Subsystem:   "global",
			Description: fmt.Sprintf("global health below threshold: %.3f", s.Health),
			Timestamp:   s.Timestamp,
		})
	}
	if s.Entropy > entropyCeiling {
		out = append(out, Anomaly{
			Type:        StateCorruption,
			Severity:    resonance.Clamp(s.Entropy),
			Subsystem:   "global",
			Description: fmt.Sprintf("high entropy detected: %.3f", s.Entropy),
			Timestamp:   s.Timestamp,
		})
	}
	names := make([]string, 0, len(s.Invariants))
	for name := range s.Invariants {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if !s.Invariants[name] {
			out = append(out, Anomaly{
				Type:        InvariantViolation,
				Severity:    1,
				Subsystem:   name,
				Description: "invariant violation detected",
				Timestamp:   s.Timestamp,
			})
		}
	}

	for _, a := range out {
		w.log.Add(resonance.Record{
			Timestamp: a.Timestamp,
			Score:     a.Severity,
			Text:      a.Description,
			Labels:    map[string]string{"type": string(a.Type), "subsystem": a.Subsystem},
		})
		w.logger.Warn("anomaly detected",
			zap.String("type", string(a.Type)),
			zap.String("subsystem", a.Subsystem),
			zap.Float64("severity", a.Severity))
	}
	if w.palace != nil && len(out) > 0 {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		for _, a := range out {
			w.palace.Store(ctx, Memory{
				Chamber:    ChamberAnomalies,
				Content:    fmt.Sprintf("%s in %s: %s", a.Type, a.Subsystem, a.Description),
				Timestamp:  a.Timestamp,
				Importance: a.Severity,
			})
		}
	}
	return out
}

// Recent returns up to n logged anomalies, oldest first.
func (w *AnomalyWatcher) Recent(n int) []Anomaly {
	recs := w.log.Last(n)
	out := make([]Anomaly, 0, len(recs))
	for _, r := range recs {
		out = append(out, Anomaly{
			Type:        AnomalyType(r.Labels["type"]),
			Severity:    r.Score,
			Subsystem:   r.Labels["subsystem"],
			Description: r.Text,
			Timestamp:   r.Timestamp,
		})
	}
	return out
}

// OnTick samples and watches.
func (w *AnomalyWatcher) OnTick(t time.Time) {
	if w.sampler == nil {
		return
	}
	s := w.sampler()
	if s.Timestamp.IsZero() {
		s.Timestamp = t
	}
	if found := w.Watch(s); len(found) > 0 {
		w.logger.Debug("anomaly sweep", zap.Int("anomalies", len(found)))
	}
}
