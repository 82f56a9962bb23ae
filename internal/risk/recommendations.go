package risk

import (
	"github.com/parser06/first-responder-risk/internal/models"
)

// Recommendations 根据风险等级与特征指标生成处置建议。
// 纯函数, 输出顺序固定: 先按等级输出分档话术, 再追加各指标触发的补充项,
// 全部未触发时返回 all-clear 单条。
func Recommendations(level models.RiskLevel, score float64, fv *models.FeatureVector, anomaly bool) []string {
	recs := make([]string, 0, 6)

	switch {
	case level == models.RiskCritical || score > 0.9:
		recs = append(recs,
			"IMMEDIATE ATTENTION REQUIRED",
			"Consider emergency response",
			"Check officer status immediately",
			"Activate backup support",
		)
	case level == models.RiskHigh || score > 0.7:
		recs = append(recs,
			"High risk detected - monitor closely",
			"Consider taking a break",
			"Check for signs of stress or fatigue",
			"Ensure backup is available",
		)
	case level == models.RiskMedium || score > 0.4:
		recs = append(recs,
			"Moderate risk - continue monitoring",
			"Consider reducing intensity",
			"Stay alert for changes",
		)
	}

	if fv != nil {
		if fv.StressIndicator > 0.7 {
			recs = append(recs, "High stress detected - consider stress management")
		}
		if fv.FatigueIndicator > 0.6 {
			recs = append(recs, "Fatigue detected - consider rest")
		}
		if fv.HRAnomalyScore > 0.8 {
			recs = append(recs, "Unusual heart rate pattern - investigate")
		}
	}
	if anomaly {
		recs = append(recs, "Anomalous pattern detected - manual review recommended")
	}

	if len(recs) == 0 {
		recs = append(recs, "All clear - continue normal operations")
	}
	return recs
}
