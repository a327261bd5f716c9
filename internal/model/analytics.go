package model

// Analytics is the body of GET analytics?period=week|month|year
type Analytics struct {
	Period             string           `json:"period"`
	DailyStats         []DailyStat      `json:"daily_stats"`
	HourlyDistribution []HourlyCount    `json:"hourly_distribution"`
	Summary            AnalyticsSummary `json:"summary"`
}

type DailyStat struct {
	Date           string  `json:"date"`
	TotalEvents    int64   `json:"total_events"`
	Threats        int64   `json:"threats"`
	AvgProbability float64 `json:"avg_probability"`
	AvgSyscallRate float64 `json:"avg_syscall_rate"`
	AvgChurnRate   float64 `json:"avg_churn_rate"`
}

type HourlyCount struct {
	Hour  string `json:"hour"`
	Count int64  `json:"count"`
}

type AnalyticsSummary struct {
	TotalThreats  int64   `json:"total_threats"`
	AvgThreatProb float64 `json:"avg_threat_prob"`
	MaxThreatProb float64 `json:"max_threat_prob"`
}

// Analytics periods accepted by the backend
const (
	PeriodWeek  = "week"
	PeriodMonth = "month"
	PeriodYear  = "year"
)

// ValidPeriod reports whether p is a known analytics period
func ValidPeriod(p string) bool {
	switch p {
	case PeriodWeek, PeriodMonth, PeriodYear:
		return true
	}
	return false
}
