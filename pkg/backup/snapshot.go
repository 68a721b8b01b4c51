// Package backup captures the world state and writes it to snapshot
// stores.
package backup

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/tliron/commonlog"

	"github.com/psilLang/evo/pkg/sandbox"
)

var log = commonlog.GetLogger("evo.backup")

// Snapshot is the persisted state of a world at one tick.
type Snapshot struct {
	RunID   string      `cbor:"1,keyasint"`
	Tick    int         `cbor:"2,keyasint"`
	Created int64       `cbor:"3,keyasint"` // unix seconds
	Width   int         `cbor:"4,keyasint"`
	Height  int         `cbor:"5,keyasint"`
	Orgs    []OrgRecord `cbor:"6,keyasint"`
	Energy  []int       `cbor:"7,keyasint"` // flat x, y list of energy cells
}

// OrgRecord is one organism in a snapshot.
type OrgRecord struct {
	ID                   uint64    `cbor:"1,keyasint"`
	X                    int       `cbor:"2,keyasint"`
	Y                    int       `cbor:"3,keyasint"`
	Energy               float64   `cbor:"4,keyasint"`
	Iterations           int       `cbor:"5,keyasint"`
	Adds                 float64   `cbor:"6,keyasint"`
	Changes              float64   `cbor:"7,keyasint"`
	Color                float64   `cbor:"8,keyasint"`
	MutationProbs        []int     `cbor:"9,keyasint"`
	MutationPeriod       int       `cbor:"10,keyasint"`
	MutationPercent      float64   `cbor:"11,keyasint"`
	CloneMutationPercent float64   `cbor:"12,keyasint"`
	CloneEnergyPercent   float64   `cbor:"13,keyasint"`
	Vars                 []float64 `cbor:"14,keyasint"`
	Mem                  []float64 `cbor:"15,keyasint,omitempty"`
	Code                 []uint32  `cbor:"16,keyasint"`
}

// Store persists snapshots.
type Store interface {
	Save(ctx context.Context, s *Snapshot) error
	Close() error
}

// Build captures the living organisms and energy cells of w.
func Build(runID string, w *sandbox.World) *Snapshot {
	s := &Snapshot{
		RunID:   runID,
		Tick:    w.Tick,
		Created: time.Now().Unix(),
		Width:   w.Width,
		Height:  w.Height,
		Orgs:    make([]OrgRecord, 0, len(w.Orgs)),
		Energy:  w.EnergyCells(),
	}
	for _, o := range w.Orgs {
		if !o.Alive() {
			continue
		}
		s.Orgs = append(s.Orgs, OrgRecord{
			ID:                   o.ID,
			X:                    o.X,
			Y:                    o.Y,
			Energy:               o.Energy,
			Iterations:           o.Iterations,
			Adds:                 o.Adds,
			Changes:              o.Changes,
			Color:                o.Color,
			MutationProbs:        slices.Clone(o.MutationProbs),
			MutationPeriod:       o.MutationPeriod,
			MutationPercent:      o.MutationPercent,
			CloneMutationPercent: o.CloneMutationPercent,
			CloneEnergyPercent:   o.CloneEnergyPercent,
			Vars:                 slices.Clone(o.VM.Vars),
			Mem:                  o.Mem.Values(),
			Code:                 slices.Clone(o.VM.Code),
		})
	}
	return s
}

// canonical CBOR encoding for deterministic snapshot bytes
var cborEncMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("backup: failed to create CBOR enc mode: %v", err))
	}
	cborEncMode = em
}

// Marshal serializes a Snapshot to CBOR bytes.
func Marshal(s *Snapshot) ([]byte, error) {
	return cborEncMode.Marshal(s)
}

// Unmarshal deserializes a Snapshot from CBOR bytes.
func Unmarshal(data []byte) (*Snapshot, error) {
	var s Snapshot
	if err := cbor.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("backup: unmarshal snapshot: %w", err)
	}
	return &s, nil
}
