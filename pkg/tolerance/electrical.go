package tolerance

import (
	"math"

	pkgerrors "github.com/pkg/errors"
)

// Verdict is the PASS/FAIL outcome used by BS 7580 style checks.
type Verdict string

const (
	Pass   Verdict = "PASS"
	Failed Verdict = "FAIL"
)

func verdict(ok bool) Verdict {
	if ok {
		return Pass
	}
	return Failed
}

// VerdictOf maps a class to the PASS/FAIL column of 60651 sheets.
func VerdictOf(c Class) Verdict {
	return verdict(c != Fail)
}

// ToneburstOption is one burst of the toneburst response test
// (IEC 61672-3 clause 16).
type ToneburstOption struct {
	// Delay is the burst duration in seconds.
	Delay     float64 `json:"delay"`
	Cycles    int     `json:"cycles"`
	Offset    float64 `json:"offset"`
	Tolerance Bounds  `json:"tolerance"`
}

// ToneburstRun is an SLM setting and the bursts applied with it.
type ToneburstRun struct {
	Setting string            `json:"setting"`
	Options []ToneburstOption `json:"options"`
}

var (
	burst800 = ToneburstOption{Delay: 0.2, Cycles: 800, Offset: -1, Tolerance: Bounds{-0.8, 0.8}}
	burst8   = ToneburstOption{Delay: 0.002, Cycles: 8, Offset: -18, Tolerance: Bounds{-1.8, 1.3}}
	burst1   = ToneburstOption{Delay: 0.00025, Cycles: 1, Offset: -27, Tolerance: Bounds{-3.3, 1.3}}
)

// ToneburstRuns returns the runs of the toneburst response test.
func ToneburstRuns() []ToneburstRun {
	return []ToneburstRun{
		{Setting: "Fast (LAF MAX)", Options: []ToneburstOption{burst800, burst8, burst1}},
		{Setting: "Slow (LAS MAX)", Options: []ToneburstOption{burst800, burst8}},
		{Setting: "LA eq (equivalent)", Options: []ToneburstOption{burst800, burst8, burst1}},
	}
}

// ClassifyToneburst returns Class1 when deviation is inside the option's
// tolerance and Class2 otherwise.
func ClassifyToneburst(opt ToneburstOption, deviation float64) Class {
	if opt.Tolerance.Contains(deviation) {
		return Class1
	}
	return Class2
}

// PeakCCheck describes one C-weighted peak test signal (IEC 61672-3 clause 17).
type PeakCCheck struct {
	Label string `json:"label"`
	// Offset is LCpeak - LC in dB.
	Offset float64 `json:"offset"`
	// Limit is exclusive: |deviation| < Limit is class 1.
	Limit float64 `json:"limit"`
}

var (
	PeakCOneCycle8k        = PeakCCheck{Label: "1 cycle 8kHz", Offset: 3.4, Limit: 1.4}
	PeakCPositiveHalf500Hz = PeakCCheck{Label: "Positive half cycle 500Hz", Offset: 2.4, Limit: 2.4}
	PeakCNegativeHalf500Hz = PeakCCheck{Label: "Negative half cycle 500Hz", Offset: 2.4, Limit: 2.4}
)

// ClassifyPeakC classifies a peak C deviation.
func ClassifyPeakC(check PeakCCheck, deviation float64) Class {
	if math.Abs(deviation) < check.Limit {
		return Class1
	}
	return Class2
}

// OverloadLimit bounds the difference between the overload reading and the
// reading of the continuous signal (IEC 61672-3 clause 18).
const OverloadLimit = 1.8

// ClassifyOverload classifies an overload level difference.
func ClassifyOverload(diff float64) Class {
	if -OverloadLimit <= diff && diff <= OverloadLimit {
		return Class1
	}
	return Class2
}

// Detector is the time weighting under test in BS 7580.
type Detector string

const (
	DetectorFast       Detector = "F"
	DetectorSlow       Detector = "S"
	DetectorImpulse2k  Detector = "I1"
	DetectorImpulse100 Detector = "I2"
)

var detectorOffsets = map[Detector]float64{
	DetectorFast:       1.0,
	DetectorSlow:       4.1,
	DetectorImpulse2k:  8.8,
	DetectorImpulse100: 2.7,
}

// BS 7580 Part 1 time weighting limits per SLM type (0..3).
var detectorLimits = map[Detector]map[int]Bounds{
	DetectorFast: {
		0: {-0.5, 0.5},
		1: {-1.0, 1.0},
		2: {-2.0, 1.0},
		3: {-3.0, 1.0},
	},
	DetectorSlow: {
		0: {-0.5, 0.5},
		1: {-1.0, 1.0},
		2: {-2.0, 2.0},
		3: {-2.0, 2.0},
	},
	DetectorImpulse2k: {
		0: {-2.0, 2.0},
		1: {-2.0, 2.0},
		2: {-3.0, 3.0},
	},
	DetectorImpulse100: {
		0: {-1.0, 1.0},
		1: {-1.0, 1.0},
		2: {-2.0, 2.0},
	},
}

// TimeWeightingOffset returns the nominal burst response of a detector
// below the continuous level.
func TimeWeightingOffset(d Detector) (float64, error) {
	off, ok := detectorOffsets[d]
	if !ok {
		return 0, pkgerrors.Errorf("unknown detector %q", string(d))
	}
	return off, nil
}

// JudgeTimeWeighting removes the detector offset from diff (burst average
// minus continuous level) and checks it against the SLM type's limits.
func JudgeTimeWeighting(slmType int, d Detector, diff float64) (Verdict, error) {
	off, err := TimeWeightingOffset(d)
	if err != nil {
		return Failed, err
	}
	b, ok := detectorLimits[d][slmType]
	if !ok {
		return Failed, pkgerrors.Errorf("no %s time weighting limits for SLM type %d", d, slmType)
	}
	return verdict(b.Contains(diff - off)), nil
}

// TimeAveragingLimit returns the allowed Leq difference of the 60 s burst
// sequence for an SLM type.
func TimeAveragingLimit(slmType int) float64 {
	switch slmType {
	case 0:
		return 0.5
	case 1:
		return 1.0
	default:
		return 1.5
	}
}

// TimeAveragingLongLimit is the allowed Leq difference of the 300 s sequence.
const TimeAveragingLongLimit = 1.0

// JudgeTimeAveraging checks |diff| <= limit.
func JudgeTimeAveraging(limit, diff float64) Verdict {
	return verdict(-limit <= diff && diff <= limit)
}

// PeakResponseLimit is the maximum difference between rectangular and sine
// pulse indications.
const PeakResponseLimit = 2.0

// JudgePeakResponse checks |diff| < PeakResponseLimit.
func JudgePeakResponse(diff float64) Verdict {
	return verdict(math.Abs(diff) < PeakResponseLimit)
}

// JudgeAcoustic checks |average - corrected| <= tolerance.
func JudgeAcoustic(average, corrected, tolerance float64) Verdict {
	return verdict(math.Abs(average-corrected) <= tolerance)
}
