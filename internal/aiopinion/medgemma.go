package aiopinion

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/orion-triage/internal/model"
	"github.com/sells-group/orion-triage/pkg/medgemma"
)

// medgemmaClassifier maps the adapter request onto the classification
// service's wire contract.
type medgemmaClassifier struct {
	client medgemma.Client
	model  string
}

// NewMedGemmaClassifier wraps a classification service client as a
// Classifier backend.
func NewMedGemmaClassifier(client medgemma.Client, modelName string) Classifier {
	return &medgemmaClassifier{client: client, model: modelName}
}

func (m *medgemmaClassifier) Classify(ctx context.Context, req Request) (*RawOpinion, error) {
	resp, err := m.client.Classify(ctx, medgemma.ClassifyRequest{
		Model:      m.model,
		CaseText:   req.CaseText,
		Answers:    req.Answers,
		VitalSigns: vitalsMap(req.Vitals),
		Features:   featuresMap(req.Features),
	})
	if err != nil {
		return nil, eris.Wrap(err, "aiopinion: medgemma classify")
	}

	return &RawOpinion{
		Code:          resp.Code,
		Confidence:    resp.Confidence,
		Reasoning:     resp.Reasoning,
		Differentials: resp.Differentials,
	}, nil
}

// vitalsMap includes only measured readings so the service never sees
// zero-filled placeholders.
func vitalsMap(v *model.VitalSigns) map[string]float64 {
	if v == nil {
		return nil
	}
	out := make(map[string]float64)
	if v.HeartRate != nil {
		out["heart_rate"] = float64(*v.HeartRate)
	}
	if v.SystolicBP != nil {
		out["systolic_bp"] = float64(*v.SystolicBP)
	}
	if v.DiastolicBP != nil {
		out["diastolic_bp"] = float64(*v.DiastolicBP)
	}
	if v.OxygenSaturation != nil {
		out["oxygen_saturation"] = *v.OxygenSaturation
	}
	if v.TemperatureC != nil {
		out["temperature_c"] = *v.TemperatureC
	}
	if v.RespiratoryRate != nil {
		out["respiratory_rate"] = float64(*v.RespiratoryRate)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func featuresMap(f *model.MultimodalFeatures) map[string]float64 {
	if f == nil {
		return nil
	}
	out := make(map[string]float64)
	if f.AudioUrgencyScore != nil {
		out["audio_urgency_score"] = *f.AudioUrgencyScore
	}
	if f.ImageLesionSeverity != nil {
		out["image_lesion_severity"] = *f.ImageLesionSeverity
	}
	if f.ImageLesionAreaCm2 != nil {
		out["image_lesion_area_cm2"] = *f.ImageLesionAreaCm2
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
