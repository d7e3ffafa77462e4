package service

import (
	"context"
	"math"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/telavo/telavo/pkg/database"
	"github.com/telavo/telavo/pkg/logger"
)

type UsageForecast struct {
	PhoneNumber    string  `json:"phone_number"`
	PlanName       string  `json:"plan_name"`
	MonthlyLimit   int     `json:"monthly_limit"`
	CreditsUsed    int     `json:"credits_used"`
	DailyRate      float64 `json:"daily_rate"`
	ProjectedUsage int     `json:"projected_usage"`
	WillExceed     bool    `json:"will_exceed"`
}

// UsageService projects whether a user will exhaust their monthly
// credit before the period ends, from a linear fit over their daily
// message counts.
type UsageService struct {
	subs   SubscriptionStore
	sms    SMSStore
	logger logger.Logger
	now    func() time.Time
}

func NewUsageService(subs SubscriptionStore, sms SMSStore, log logger.Logger) *UsageService {
	return &UsageService{subs: subs, sms: sms, logger: log, now: time.Now}
}

func (s *UsageService) Forecast(ctx context.Context, userID string) (*UsageForecast, error) {
	sub, err := s.subs.FindLatestActiveByUser(ctx, userID)
	if err != nil {
		if err == database.ErrNotFound {
			return nil, ErrNoActiveSubscription
		}
		return nil, err
	}

	now := s.now()
	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
	daysElapsed := now.Day()
	daysInMonth := time.Date(now.Year(), now.Month()+1, 0, 0, 0, 0, 0, now.Location()).Day()

	counts, err := s.sms.DailyCounts(ctx, userID, monthStart)
	if err != nil {
		return nil, err
	}

	forecast := &UsageForecast{
		PhoneNumber:  sub.PhoneNumber,
		PlanName:     sub.PlanName,
		MonthlyLimit: sub.MonthlyLimit,
		CreditsUsed:  sub.CreditsUsed,
	}

	xs := make([]float64, 0, daysElapsed)
	ys := make([]float64, 0, daysElapsed)
	for day := 1; day <= daysElapsed; day++ {
		key := time.Date(now.Year(), now.Month(), day, 0, 0, 0, 0, now.Location()).Format("2006-01-02")
		xs = append(xs, float64(day))
		ys = append(ys, float64(counts[key]))
	}

	switch {
	case len(xs) < 2:
		// Not enough history for a trend; assume the current pace.
		forecast.DailyRate = float64(sub.CreditsUsed) / math.Max(float64(daysElapsed), 1)
	default:
		alpha, beta := stat.LinearRegression(xs, ys, nil, false)
		forecast.DailyRate = math.Max(alpha+beta*float64(daysElapsed), 0)
	}

	remaining := float64(daysInMonth - daysElapsed)
	forecast.ProjectedUsage = sub.CreditsUsed + int(math.Ceil(forecast.DailyRate*remaining))
	forecast.WillExceed = forecast.ProjectedUsage > sub.MonthlyLimit
	return forecast, nil
}
