package ai

import (
	"regexp"
	"strings"

	"github.com/hpungsan/whispr/internal/classify"
	"github.com/hpungsan/whispr/internal/item"
)

var keyToken = regexp.MustCompile(`(?i)(^|[^a-z0-9_])key-[a-z0-9_\-]+`)

// Assessment is the sensitivity verdict for an item.
type Assessment struct {
	RiskLevel      item.RiskLevel `json:"risk_level"`
	RewriteAllowed bool           `json:"rewrite_allowed"`
	Reasons        []string       `json:"reasons,omitempty"`
}

// AssessRisk flags payment cards and secret-looking text as high risk.
// High-risk items may not be rewritten and get no AI suggestions.
func AssessRisk(it *item.Item) Assessment {
	var reasons []string
	if it.Type == item.TypeCreditCard || classify.IsCreditCard(it.Content) {
		reasons = append(reasons, "credit card number")
	}
	if strings.Contains(strings.ToLower(it.Content), "password") {
		reasons = append(reasons, "password")
	}
	if keyToken.MatchString(it.Content) {
		reasons = append(reasons, "key token")
	}

	if len(reasons) > 0 {
		return Assessment{RiskLevel: item.RiskHigh, RewriteAllowed: false, Reasons: reasons}
	}
	return Assessment{RiskLevel: item.RiskLow, RewriteAllowed: true}
}
