package security

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/akylbek/payment-system/credential-payments/internal/models"
	"github.com/akylbek/payment-system/credential-payments/internal/telemetry"
)

const (
	DefaultAlertThreshold  = 3
	DefaultRevokeThreshold = 5
)

// Policy holds the process-wide failure thresholds. It always satisfies
// 1 <= AlertThreshold < RevokeThreshold.
type Policy struct {
	AlertThreshold  int `json:"alert_threshold" yaml:"alert_threshold"`
	RevokeThreshold int `json:"revoke_threshold" yaml:"revoke_threshold"`
}

func DefaultPolicy() Policy {
	return Policy{AlertThreshold: DefaultAlertThreshold, RevokeThreshold: DefaultRevokeThreshold}
}

// NewPolicy clamps the supplied thresholds into a valid policy. Each
// adjustment is logged and returned as a warning; none is fatal.
func NewPolicy(alert, revoke int) (Policy, []string) {
	var warnings []string
	if revoke < 2 {
		warnings = append(warnings, fmt.Sprintf("revoke threshold %d is below 2, using 2", revoke))
		revoke = 2
	}
	if alert < 1 {
		warnings = append(warnings, fmt.Sprintf("alert threshold %d is below 1, using 1", alert))
		alert = 1
	}
	if alert >= revoke {
		warnings = append(warnings, fmt.Sprintf("alert threshold %d must be below revoke threshold %d, using %d",
			alert, revoke, revoke-1))
		alert = revoke - 1
	}
	for _, w := range warnings {
		telemetry.Logger.Warn("Security policy adjusted", zap.String("warning", w))
	}
	return Policy{AlertThreshold: alert, RevokeThreshold: revoke}, warnings
}

func (p Policy) ShouldAlert(consecutive int) bool {
	return consecutive >= p.AlertThreshold
}

func (p Policy) ShouldRevoke(consecutive int) bool {
	return consecutive >= p.RevokeThreshold
}

// RiskLevel classifies a consecutive failure count against the thresholds.
func (p Policy) RiskLevel(consecutive int) models.RiskLevel {
	switch {
	case consecutive >= p.RevokeThreshold:
		return models.RiskCritical
	case consecutive >= p.AlertThreshold:
		return models.RiskHigh
	case consecutive >= (p.AlertThreshold+1)/2:
		return models.RiskMedium
	default:
		return models.RiskLow
	}
}
