package pool

import "github.com/arcrelay/geminiproxy/internal/model"

// Score implements spec §4.2's weighted scoring function:
//
//	score = 0.8*quotaHealth + 0.1*usageScore + 0.1*recencyScore
//
// quotaHealth is the 0-100 health value from the quota cache, 40 when no
// quota info has been observed yet for the account, or 0 when its quota is
// exhausted (callers filter exhausted accounts out before scoring, so this
// function never sees that case directly). usageScore decays linearly with
// lifetime usageCount; recencyScore rewards accounts idle longer, capped at
// 100, with a floor of 10 for accounts that have never been used.
func Score(acct *model.Account, healthScore float64, hasQuotaInfo bool) float64 {
	if !hasQuotaInfo {
		healthScore = 40
	}

	usageScore := 100 - float64(acct.UsageCount)/10
	if usageScore < 0 {
		usageScore = 0
	}

	recencyScore := 10.0
	if acct.LastUsedAt != nil {
		minutesSinceUse := nowFunc().Sub(*acct.LastUsedAt).Minutes()
		if minutesSinceUse < 0 {
			minutesSinceUse = 0
		}
		recencyScore = minutesSinceUse
		if recencyScore > 100 {
			recencyScore = 100
		}
	}

	return 0.8*healthScore + 0.1*usageScore + 0.1*recencyScore
}
