package model

// 報酬ユニットまたはプレミアムで利用できる機能名
const (
	FeatureAdvancedAnalytics   = "advancedAnalytics"
	FeatureUnlimitedProperties = "unlimitedProperties"
)

// featureCosts は機能の一時解放に必要な最小報酬ユニット数。
var featureCosts = map[string]int{
	FeatureAdvancedAnalytics:   2,
	FeatureUnlimitedProperties: 1,
}

// FeatureCost は機能の解放コストを返す。未定義の機能の場合はfalseを返す。
func FeatureCost(feature string) (int, bool) {
	cost, ok := featureCosts[feature]
	return cost, ok
}
