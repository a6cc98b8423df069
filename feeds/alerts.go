package feeds

import (
	"context"
	"errors"
	"time"

	"github.com/wikifeed/feedengine/monitoring"
)

type AlertsResponse struct {
	Timestamp time.Time             `json:"timestamp"`
	Active    []monitoring.Alert    `json:"active"`
	Resolved  []monitoring.Alert    `json:"resolved"`
	Stats     monitoring.AlertStats `json:"stats"`
}

// GetAlerts returns active alerts and the most recently resolved ones.
//
//encore:api public method=GET path=/api/posts/alerts
func GetAlerts(ctx context.Context) (*AlertsResponse, error) {
	if svc == nil {
		return nil, errors.New("service not initialized")
	}
	return svc.GetAlerts(ctx)
}

func (s *Service) GetAlerts(ctx context.Context) (*AlertsResponse, error) {
	return &AlertsResponse{
		Timestamp: time.Now(),
		Active:    s.alerts.GetActiveAlerts(),
		Resolved:  s.alerts.GetRecentResolvedAlerts(20),
		Stats:     s.alerts.GetStats(),
	}, nil
}

func (s *Service) evaluateAlerts() []monitoring.Alert {
	warm := s.warmer.Status().Metrics
	return s.alerts.Evaluate(monitoring.Counters{
		Engine:       s.engine.Stats(),
		WarmSuccess:  warm.SuccessTotal,
		WarmFailures: warm.FailureTotal,
	})
}
