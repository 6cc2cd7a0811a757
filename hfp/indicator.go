package hfp

import "github.com/zb3/gofp/internal/bitfield"

// MaxListLen bounds every per-connection list: remote codecs, AG
// indicators, HF generic status indicators, and call-hold service tokens.
const MaxListLen = 20

// MaxIndicatorNameLen is the wire-format limit on an AG indicator's
// descriptive name. Nothing in this package checks names against it;
// NewIndicatorSet accepts names of any length.
const MaxIndicatorNameLen = 20

// Indicator is one AG status indicator: call, callsetup, callheld,
// signal, roam, battchg, service, and any vendor-specific indicator
// appended after the three mandatory ones.
type Indicator struct {
	Index     int // 1-based, dense, stable for the life of the SLC
	Name      string
	Min, Max  int
	Status    int
	Mandatory bool
	Enabled   bool
	Changed   bool
}

// Mandatory AG indicator names, required to be present on every connection.
const (
	IndicatorCall      = "call"
	IndicatorCallSetup = "callsetup"
	IndicatorCallHeld  = "callheld"
)

// GenericIndicator is one HF generic status indicator: a 16-bit UUID and
// whether the HF currently has it enabled.
type GenericIndicator struct {
	UUID    uint16
	Enabled bool
}

// DefaultGenericIndicators is the process-wide seed list copied into every
// new connection's GenericIndicators. The two values are the HFP-assigned
// UUIDs for "enhanced safety" and "battery level".
var DefaultGenericIndicators = []GenericIndicator{
	{UUID: 0x0001, Enabled: false}, // enhanced safety
	{UUID: 0x0002, Enabled: true},  // battery level
}

// IndicatorSet is the ordered collection of AG indicators carried by one
// connection, along with the per-indicator enable bitmap and the single
// master enable flag.
type IndicatorSet struct {
	items        []Indicator
	enabledMask  uint32 // mirrors each Indicator.Enabled bit by position; nothing reads it at present
	masterEnable bool
}

// NewIndicatorSet builds an IndicatorSet from AG indicator descriptors in
// declaration order, assigning dense 1-based indexes. It returns
// ErrResourceExhausted if more than MaxListLen descriptors are given, or if
// the mandatory subset (call, callsetup, callheld) is not present.
func NewIndicatorSet(descriptors []Indicator) (*IndicatorSet, error) {
	if len(descriptors) > MaxListLen {
		return nil, ErrResourceExhausted
	}
	set := &IndicatorSet{items: make([]Indicator, len(descriptors))}
	haveCall, haveCallSetup, haveCallHeld := false, false, false
	for i, d := range descriptors {
		d.Index = i + 1
		set.items[i] = d
		if d.Enabled {
			set.enabledMask = bitfield.StoreBit(set.enabledMask, i, true)
		}
		switch d.Name {
		case IndicatorCall:
			haveCall = true
		case IndicatorCallSetup:
			haveCallSetup = true
		case IndicatorCallHeld:
			haveCallHeld = true
		}
	}
	if !haveCall || !haveCallSetup || !haveCallHeld {
		return nil, ErrResourceExhausted
	}
	return set, nil
}

// Len returns the number of AG indicators.
func (s *IndicatorSet) Len() int { return len(s.items) }

// All returns the indicators in declared (index) order.
func (s *IndicatorSet) All() []Indicator { return s.items }

// ByName looks up an indicator by its exact name.
func (s *IndicatorSet) ByName(name string) (*Indicator, bool) {
	for i := range s.items {
		if s.items[i].Name == name {
			return &s.items[i], true
		}
	}
	return nil, false
}

// ByIndex looks up an indicator by its 1-based index.
func (s *IndicatorSet) ByIndex(index int) (*Indicator, bool) {
	if index < 1 || index > len(s.items) {
		return nil, false
	}
	return &s.items[index-1], true
}

// SetEnabledAt implements +BIA: toggling enabled for one indicator by its
// 1-based index. Out-of-range indexes are silently ignored, matching the
// AG's lenient treatment of the bitmap overflow case in the HFP
// specification; the wire form's "leave this slot unchanged" case (an
// empty comma-separated value) is the caller's job, since there's nothing
// to skip at this layer.
func (s *IndicatorSet) SetEnabledAt(index int, enabled bool) {
	ind, ok := s.ByIndex(index)
	if !ok {
		return
	}
	ind.Enabled = enabled
	s.enabledMask = bitfield.StoreBit(s.enabledMask, index-1, enabled)
}

// SetMasterEnable implements the AT+CMER master switch.
func (s *IndicatorSet) SetMasterEnable(enabled bool) { s.masterEnable = enabled }

// MasterEnabled reports the AT+CMER master switch state.
func (s *IndicatorSet) MasterEnabled() bool { return s.masterEnable }

// UpdateStatus sets an indicator's current value by name and marks it
// changed if the value actually moved.
func (s *IndicatorSet) UpdateStatus(name string, status int) {
	ind, ok := s.ByName(name)
	if !ok {
		return
	}
	if ind.Status == status {
		return
	}
	ind.Status = status
	ind.Changed = true
}

// PendingUpdates returns, in index order, every indicator that is both
// Changed and Enabled, provided the master enable switch is set; it
// clears Changed on each one returned. A disabled master-enable switch
// yields no updates without clearing any Changed flag, so they remain
// pending until it is set.
func (s *IndicatorSet) PendingUpdates() []Indicator {
	if !s.masterEnable {
		return nil
	}
	var out []Indicator
	for i := range s.items {
		if s.items[i].Changed && s.items[i].Enabled {
			out = append(out, s.items[i])
			s.items[i].Changed = false
		}
	}
	return out
}

// NetworkOperator is the AG's network-operator record reported via
// +COPS.
type NetworkOperator struct {
	Mode   int
	Format int
	Name   string // at most 16 characters
}
