package violation

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Class is a raw detector output category.
type Class int

const (
	ClassHelmet Class = iota
	ClassNoHelmet
	ClassMobilePhone
	ClassTripleRiding
	ClassLicensePlate
	ClassMotorcycle
)

// Classes lists every recognized detection class.
var Classes = []Class{
	ClassHelmet,
	ClassNoHelmet,
	ClassMobilePhone,
	ClassTripleRiding,
	ClassLicensePlate,
	ClassMotorcycle,
}

var classNames = map[Class]string{
	ClassHelmet:       "helmet",
	ClassNoHelmet:     "no_helmet",
	ClassMobilePhone:  "mobile_phone",
	ClassTripleRiding: "triple_riding",
	ClassLicensePlate: "license_plate",
	ClassMotorcycle:   "motorcycle",
}

func (c Class) String() string {
	if name, ok := classNames[c]; ok {
		return name
	}
	return fmt.Sprintf("class(%d)", int(c))
}

func (c Class) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.String())
}

// ParseClass resolves a class by its snake_case name.
func ParseClass(name string) (Class, bool) {
	name = strings.ToLower(strings.TrimSpace(name))
	for c, n := range classNames {
		if n == name {
			return c, true
		}
	}
	return 0, false
}

// Type is a legally meaningful violation outcome.
type Type string

const (
	TypeNoHelmet     Type = "No Helmet Violation"
	TypePhoneUsage   Type = "Phone Usage While Riding"
	TypeTripleRiding Type = "Triple Riding Violation"
)

// Types is the fixed priority order used when listing candidates.
var Types = []Type{TypeNoHelmet, TypePhoneUsage, TypeTripleRiding}

var typeInfo = map[Type]struct {
	class Class
	key   string
	alias string
}{
	TypeNoHelmet:     {class: ClassNoHelmet, key: "no_helmet", alias: "No Helmet"},
	TypePhoneUsage:   {class: ClassMobilePhone, key: "phone_usage", alias: "Mobile Usage"},
	TypeTripleRiding: {class: ClassTripleRiding, key: "triple_riding", alias: "Triple Riding"},
}

// Class returns the detection class that produces this violation type.
func (t Type) Class() Class {
	return typeInfo[t].class
}

// Key is the configuration key of the type, e.g. "phone_usage".
func (t Type) Key() string {
	return typeInfo[t].key
}

func (t Type) Valid() bool {
	_, ok := typeInfo[t]
	return ok
}

// ParseType accepts the canonical name, the short form used by upload forms
// ("Mobile Usage") or the configuration key ("phone_usage").
func ParseType(s string) (Type, bool) {
	s = strings.TrimSpace(s)
	for t, info := range typeInfo {
		if strings.EqualFold(s, string(t)) || strings.EqualFold(s, info.alias) || strings.EqualFold(s, info.key) {
			return t, true
		}
	}
	return "", false
}

// TypeForClass maps a violation-producing class to its type.
func TypeForClass(c Class) (Type, bool) {
	for t, info := range typeInfo {
		if info.class == c {
			return t, true
		}
	}
	return "", false
}

// BBox is a pixel bounding box, serialized as [x1, y1, x2, y2].
type BBox struct {
	X1, Y1, X2, Y2 int
}

func (b BBox) Area() int {
	w, h := b.X2-b.X1, b.Y2-b.Y1
	if w <= 0 || h <= 0 {
		return 0
	}
	return w * h
}

func (b BBox) MarshalJSON() ([]byte, error) {
	return json.Marshal([4]int{b.X1, b.Y1, b.X2, b.Y2})
}

func (b *BBox) UnmarshalJSON(data []byte) error {
	var coords []int
	if err := json.Unmarshal(data, &coords); err != nil {
		return err
	}
	if len(coords) == 0 {
		*b = BBox{}
		return nil
	}
	if len(coords) != 4 {
		return fmt.Errorf("bbox: expected 4 coordinates, got %d", len(coords))
	}
	*b = BBox{X1: coords[0], Y1: coords[1], X2: coords[2], Y2: coords[3]}
	return nil
}

type RawDetection struct {
	ClassID    int     `json:"class_id"`
	Confidence float64 `json:"confidence"`
	BBox       BBox    `json:"bbox"`
}

// DetectionResult is what the detection adapter returns for one image.
type DetectionResult struct {
	Success    bool           `json:"success"`
	Detections []RawDetection `json:"detections"`
	Error      string         `json:"error,omitempty"`
}

type Candidate struct {
	Type        Type    `json:"type"`
	Confidence  float64 `json:"confidence"`
	BBox        BBox    `json:"bbox"`
	SourceClass Class   `json:"class"`
}

// VehicleIdentity is a best-effort vehicle token. Plate-derived tokens carry
// the "LP_" prefix, synthetic ones "VEH_". Officer-entered plate numbers are
// stored as-is.
type VehicleIdentity string

const (
	PlateIdentityPrefix     = "LP_"
	SyntheticIdentityPrefix = "VEH_"
)

func (v VehicleIdentity) IsSynthetic() bool {
	return v == "" || strings.HasPrefix(string(v), SyntheticIdentityPrefix)
}

func (v VehicleIdentity) String() string {
	return string(v)
}

type Confirmed struct {
	ID              uuid.UUID       `json:"id"`
	VehicleIdentity VehicleIdentity `json:"vehicle_number"`
	Type            Type            `json:"violation_type"`
	Confidence      float64         `json:"confidence"`
	BBox            BBox            `json:"bbox"`
	SourceClass     Class           `json:"detection_class"`
	FineAmount      float64         `json:"fine_amount"`
	Timestamp       time.Time       `json:"timestamp"`
	Location        string          `json:"location"`
	CameraID        string          `json:"camera_id,omitempty"`
	OfficerID       string          `json:"officer_id,omitempty"`
}

type CooldownEntry struct {
	Type            Type
	VehicleIdentity VehicleIdentity
	RegisteredAt    time.Time
}

type FrameStatus string

const (
	StatusDetectionFailed      FrameStatus = "detection_failed"
	StatusNoViolationsDetected FrameStatus = "no_violations_detected"
	StatusProcessed            FrameStatus = "processed"
)

type SkipReason string

const (
	SkippedLowConfidence SkipReason = "low_confidence"
	SkippedDuplicate     SkipReason = "duplicate"
	SkippedCapacity      SkipReason = "capacity"
	PersistenceFailed    SkipReason = "persistence_failed"
)

type Skipped struct {
	Candidate
	Reason SkipReason `json:"reason"`
}

type FrameStats struct {
	TotalDetections      int `json:"total_detections"`
	Candidates           int `json:"candidates"`
	Confirmed            int `json:"confirmed"`
	SkippedLowConfidence int `json:"skipped_low_confidence"`
	SkippedDuplicate     int `json:"skipped_duplicate"`
	SkippedCapacity      int `json:"skipped_capacity"`
	PersistenceFailed    int `json:"persistence_failed"`
	NotificationFailed   int `json:"notification_failed"`
}

type FrameResult struct {
	Status          FrameStatus     `json:"status"`
	Success         bool            `json:"success"`
	Error           string          `json:"error,omitempty"`
	VehicleIdentity VehicleIdentity `json:"vehicle_number,omitempty"`
	LicensePlates   int             `json:"license_plates"`
	NeedsReview     bool            `json:"needs_review"`
	Candidates      []Candidate     `json:"violations"`
	Confirmed       []Confirmed     `json:"confirmed"`
	Skipped         []Skipped       `json:"skipped"`
	Stats           FrameStats      `json:"stats"`
	ProcessedAt     time.Time       `json:"timestamp"`
}
