// Package model defines the core triage types: cases, opinions, decisions,
// feedback records, and the fixed urgency-code enumeration.
package model

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"
)

// VitalSigns holds structured biometric readings taken at intake.
// Nil pointers mean the reading was not taken.
type VitalSigns struct {
	HeartRate        *int     `json:"heart_rate,omitempty"`
	SystolicBP       *int     `json:"systolic_bp,omitempty"`
	DiastolicBP      *int     `json:"diastolic_bp,omitempty"`
	OxygenSaturation *float64 `json:"oxygen_saturation,omitempty"`
	TemperatureC     *float64 `json:"temperature_c,omitempty"`
	RespiratoryRate  *int     `json:"respiratory_rate,omitempty"`
}

// MultimodalFeatures carries pre-extracted signal scores from non-text
// channels. Extraction itself happens upstream.
type MultimodalFeatures struct {
	AudioUrgencyScore   *float64 `json:"audio_urgency_score,omitempty"`
	ImageLesionSeverity *float64 `json:"image_lesion_severity,omitempty"`
	ImageLesionAreaCm2  *float64 `json:"image_lesion_area_cm2,omitempty"`
}

// Demographics holds optional protected attributes used only by the
// fairness auditor, never by the classification path.
type Demographics struct {
	AgeBand string `json:"age_band,omitempty"`
	Sex     string `json:"sex,omitempty"`
	Region  string `json:"region,omitempty"`
}

// Case is the immutable input bundle for one triage request.
type Case struct {
	ID           string              `json:"id"`
	Complaint    string              `json:"complaint"`
	Answers      map[string]string   `json:"answers"`
	Vitals       *VitalSigns         `json:"vitals,omitempty"`
	Features     *MultimodalFeatures `json:"features,omitempty"`
	Demographics *Demographics       `json:"demographics,omitempty"`
	PatientRef   string              `json:"patient_ref,omitempty"`
	ReceivedAt   time.Time           `json:"received_at"`

	// Diversion eligibility context, filled at intake.
	Comorbidities     []string `json:"comorbidities,omitempty"`
	WaitToleranceMins int      `json:"wait_tolerance_mins,omitempty"`
	UrgentProcedure   bool     `json:"urgent_procedure,omitempty"`
}

// SubjectHash derives the anonymized subject identifier recorded on the
// Decision. The raw patient reference never leaves the process.
func (c Case) SubjectHash() string {
	ref := c.PatientRef
	if ref == "" {
		ref = "ANONYMOUS"
	}
	input := ref + "|" + c.ReceivedAt.UTC().Format(time.RFC3339Nano)
	if c.Vitals != nil {
		if c.Vitals.HeartRate != nil {
			input += fmt.Sprintf("|hr=%d", *c.Vitals.HeartRate)
		}
		if c.Vitals.SystolicBP != nil {
			input += fmt.Sprintf("|sbp=%d", *c.Vitals.SystolicBP)
		}
	}
	sum := sha256.Sum256([]byte(input))
	return hex.EncodeToString(sum[:])
}
