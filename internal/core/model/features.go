package model

import (
	"fmt"
	"strings"
)

// Feature is one geographical feature a region search can require.
type Feature uint8

// Declaration order is the canonical query order.
const (
	FeatureInternationalAirports Feature = iota
	FeaturePeaks
	FeatureSeaBeaches
	FeatureSaltLakes
	featureCount
)

// PropMinPeakHeight holds the minimum peak elevation in meters.
const PropMinPeakHeight = "minPeakHeight"

var featureNames = [featureCount]string{
	FeatureInternationalAirports: "airports",
	FeaturePeaks:                 "peaks",
	FeatureSeaBeaches:            "beaches",
	FeatureSaltLakes:             "saltlakes",
}

func (f Feature) String() string {
	if f < featureCount {
		return featureNames[f]
	}
	return fmt.Sprintf("feature(%d)", uint8(f))
}

func ParseFeature(s string) (Feature, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for i, name := range featureNames {
		if name == s {
			return Feature(i), nil
		}
	}
	return 0, fmt.Errorf("unknown feature %q", s)
}

// FeatureSet is a set of features with a fixed iteration order.
type FeatureSet struct {
	bits uint32
}

func NewFeatureSet(fs ...Feature) FeatureSet {
	var s FeatureSet
	for _, f := range fs {
		s = s.With(f)
	}
	return s
}

func (s FeatureSet) With(f Feature) FeatureSet {
	if f < featureCount {
		s.bits |= 1 << f
	}
	return s
}

func (s FeatureSet) Has(f Feature) bool {
	return f < featureCount && s.bits&(1<<f) != 0
}

func (s FeatureSet) Empty() bool { return s.bits == 0 }

// Features lists the enabled features in canonical order.
func (s FeatureSet) Features() []Feature {
	out := make([]Feature, 0, featureCount)
	for f := Feature(0); f < featureCount; f++ {
		if s.Has(f) {
			out = append(out, f)
		}
	}
	return out
}

// ParseFeatureSet parses a comma separated feature list.
func ParseFeatureSet(raw string) (FeatureSet, error) {
	var s FeatureSet
	for p := range strings.SplitSeq(raw, ",") {
		if strings.TrimSpace(p) == "" {
			continue
		}
		f, err := ParseFeature(p)
		if err != nil {
			return FeatureSet{}, err
		}
		s = s.With(f)
	}
	return s, nil
}

// Preferences select which regions a discovery session reports.
type Preferences struct {
	Features   FeatureSet
	Properties map[string]string
}

func (p Preferences) Property(k string) (string, bool) {
	v, ok := p.Properties[k]
	return v, ok
}
