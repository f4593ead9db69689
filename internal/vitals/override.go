// Package vitals checks structured biometric readings against fixed
// clinical thresholds and can force escalation to the most urgent code.
package vitals

import (
	"fmt"
	"strings"

	"github.com/sells-group/orion-triage/internal/config"
	"github.com/sells-group/orion-triage/internal/model"
)

// Override is the result of the vital-sign check. It can only escalate:
// when Fired, the forced code is always the most urgent one.
type Override struct {
	Fired  bool
	Code   model.UrgencyCode
	Reason string
}

// Check evaluates the readings against the configured thresholds. Missing
// readings never fire; only measured values can escalate. This is a pure
// function: same readings, same thresholds, same result.
func Check(v *model.VitalSigns, cfg config.VitalsConfig) Override {
	if v == nil {
		return Override{}
	}

	var reasons []string

	if v.OxygenSaturation != nil && *v.OxygenSaturation < cfg.HypoxiaSpO2 {
		reasons = append(reasons, fmt.Sprintf("hypoxia: SpO2 %.1f%% below %.1f%%", *v.OxygenSaturation, cfg.HypoxiaSpO2))
	}
	if v.HeartRate != nil {
		if *v.HeartRate > cfg.TachycardiaHR {
			reasons = append(reasons, fmt.Sprintf("tachycardia: HR %d above %d", *v.HeartRate, cfg.TachycardiaHR))
		} else if *v.HeartRate < cfg.BradycardiaHR {
			reasons = append(reasons, fmt.Sprintf("bradycardia: HR %d below %d", *v.HeartRate, cfg.BradycardiaHR))
		}
	}
	if v.SystolicBP != nil && *v.SystolicBP < cfg.HypotensionSBP {
		reasons = append(reasons, fmt.Sprintf("hypotension: systolic %d below %d (shock pattern)", *v.SystolicBP, cfg.HypotensionSBP))
	}
	if v.TemperatureC != nil && *v.TemperatureC >= cfg.HyperthermiaTemp {
		reasons = append(reasons, fmt.Sprintf("hyperthermia: %.1fC at or above %.1fC", *v.TemperatureC, cfg.HyperthermiaTemp))
	}

	if len(reasons) == 0 {
		return Override{}
	}

	return Override{
		Fired:  true,
		Code:   model.CodeEmergency,
		Reason: "vital-sign override: " + strings.Join(reasons, "; "),
	}
}

// Stable reports whether readings were taken and no critical threshold is
// met. Unlike Check, absent readings count as NOT stable: diversion needs
// measured evidence, while escalation needs a measured breach.
func Stable(v *model.VitalSigns, cfg config.VitalsConfig) bool {
	return v != nil && !Check(v, cfg).Fired
}
