package client

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"sentinel-monitor/internal/model"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func newTestBackend(t *testing.T, handler http.HandlerFunc, opts ...BackendOption) *BackendClient {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c, err := NewBackendClient(srv.URL+"/api", quietLogger(), opts...)
	require.NoError(t, err)
	return c
}

func TestNewBackendClientRejectsBadURL(t *testing.T) {
	_, err := NewBackendClient("ftp://example.com", quietLogger())
	assert.Error(t, err)
	_, err = NewBackendClient("://nope", quietLogger())
	assert.Error(t, err)
}

func TestStatsSendsBearerToken(t *testing.T) {
	c := newTestBackend(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/stats", r.URL.Path)
		assert.Equal(t, "Bearer s3cret", r.Header.Get("Authorization"))
		w.Write([]byte(`{"status":"CRITICAL","probability":0.91,"syscall_rate":1200,"churn_rate":35,"total_anomalies":4,"total_events":120,"today_anomalies":1,"ai_analysis":null,"timestamp":"2024-05-01 10:00:00"}`))
	}, WithTokenSource(StaticToken("s3cret")))

	stats, err := c.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, model.StatusCritical, stats.Status)
	assert.Equal(t, 0.91, stats.Probability)
	assert.Equal(t, int64(120), stats.TotalEvents)
	assert.Empty(t, stats.AIAnalysis)
}

func TestStatsPlaceholderStatus(t *testing.T) {
	c := newTestBackend(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status":"Waiting for data..."}`))
	})

	stats, err := c.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, model.StatusUnknown, stats.Status)
	assert.False(t, stats.Status.IsCritical())
}

func TestHistorySkipsMalformedEntries(t *testing.T) {
	c := newTestBackend(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/history", r.URL.Path)
		assert.Equal(t, "25", r.URL.Query().Get("limit"))
		w.Write([]byte(`[
			{"id":1,"status":"SECURE","probability":0.1,"timestamp":"2024-05-01 10:00:00"},
			{"id":"oops","probability":"high"},
			{"id":2,"status":"CRITICAL","probability":0.9,"timestamp":"2024-05-01 10:00:01"}
		]`))
	}, WithHistoryLimit(25))

	entries, err := c.History(context.Background())
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, int64(1), entries[0].ID)
	assert.Equal(t, model.StatusCritical, entries[1].Status)
}

func TestProcessTree(t *testing.T) {
	c := newTestBackend(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"processes":[{"pid":1,"name":"systemd","children":[{"pid":"42","name":"xmrig","cpu":97.5,"suspicious":true}]}]}`))
	})

	forest, err := c.ProcessTree(context.Background())
	require.NoError(t, err)
	require.Len(t, forest, 1)
	assert.Equal(t, "1", forest[0].PID)
	require.Len(t, forest[0].Children, 1)
	assert.True(t, forest[0].Children[0].Suspicious)
	assert.False(t, forest[0].Children[0].HasChildren())
}

func TestProcessTreeMissingKey(t *testing.T) {
	c := newTestBackend(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{}`))
	})

	forest, err := c.ProcessTree(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, forest)
	assert.Empty(t, forest)
}

func TestAnalyzeThreat(t *testing.T) {
	c := newTestBackend(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var body struct {
			Event model.HistoryEntry `json:"event"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, int64(7), body.Event.ID)
		assert.Equal(t, 0.97, body.Event.Probability)

		w.Write([]byte(`{"analysis":{"classification":"Ransomware","severity":"Critical","explanation":"Mass file rewrites","recommendations":"Isolate host"}}`))
	})

	analysis, err := c.AnalyzeThreat(context.Background(), model.HistoryEntry{
		ID:    7,
		Stats: model.Stats{Status: model.StatusCritical, Probability: 0.97},
	})
	require.NoError(t, err)
	assert.Equal(t, "Ransomware", analysis.Classification)
	assert.Equal(t, []string{"Isolate host"}, analysis.Recommendations)
}

func TestAnalyzeThreatBackendError(t *testing.T) {
	c := newTestBackend(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"error":"AI service not configured"}`))
	})

	_, err := c.AnalyzeThreat(context.Background(), model.HistoryEntry{})
	var statusErr *StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusInternalServerError, statusErr.StatusCode)
	assert.Equal(t, "AI service not configured", err.Error())
}

func TestSendAlert(t *testing.T) {
	c := newTestBackend(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/alerts/send", r.URL.Path)
		var body model.AlertRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, []string{"email", "slack"}, body.Channels)
		w.Write([]byte(`{"results":{"email":"sent","slack":null}}`))
	})

	resp, err := c.SendAlert(context.Background(), model.HistoryEntry{ID: 3}, []string{"email", "slack"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"email":"sent","slack":null}`, string(resp.Results))
}

func TestAlertHistory(t *testing.T) {
	c := newTestBackend(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[
			{"id":2,"event_id":17,"alert_type":"[\"email\"]","sent_at":"2024-05-01T10:00:00","status":"{\"email\": \"sent\", \"slack\": null}"},
			"garbage",
			{"id":1,"alert_type":null,"status":null}
		]`))
	})

	records, err := c.AlertHistory(context.Background())
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "2", records[0].ID)
	assert.Equal(t, "17", records[0].EventID)
	assert.Equal(t, `["email"]`, records[0].AlertType)
	assert.Empty(t, records[1].Status)
}

func TestAnalytics(t *testing.T) {
	c := newTestBackend(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "month", r.URL.Query().Get("period"))
		w.Write([]byte(`{"period":"month","daily_stats":[{"date":"2024-05-01","total_events":10,"threats":2,"avg_probability":0.4,"avg_syscall_rate":null,"avg_churn_rate":3}],"hourly_distribution":[{"hour":"07","count":2}],"summary":{"total_threats":2,"avg_threat_prob":0.9,"max_threat_prob":0.97}}`))
	})

	analytics, err := c.Analytics(context.Background(), model.PeriodMonth)
	require.NoError(t, err)
	require.Len(t, analytics.DailyStats, 1)
	assert.Equal(t, int64(2), analytics.DailyStats[0].Threats)
	assert.Equal(t, "07", analytics.HourlyDistribution[0].Hour)
	assert.Equal(t, 0.97, analytics.Summary.MaxThreatProb)

	_, err = c.Analytics(context.Background(), "decade")
	assert.Error(t, err)
}

func TestErrorTaxonomy(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		check  func(t *testing.T, err error)
	}{
		{
			name:   "unauthorized",
			status: http.StatusUnauthorized,
			body:   `{"error":"Token has expired"}`,
			check: func(t *testing.T, err error) {
				var authErr *AuthError
				require.ErrorAs(t, err, &authErr)
				assert.ErrorIs(t, err, ErrUnauthenticated)
				assert.Equal(t, "Token has expired", err.Error())
			},
		},
		{
			name:   "forbidden",
			status: http.StatusForbidden,
			body:   `{"error":"Admin access required"}`,
			check: func(t *testing.T, err error) {
				assert.ErrorIs(t, err, ErrUnauthenticated)
			},
		},
		{
			name:   "server error with plain body",
			status: http.StatusBadGateway,
			body:   "upstream down",
			check: func(t *testing.T, err error) {
				var statusErr *StatusError
				require.ErrorAs(t, err, &statusErr)
				assert.Equal(t, "upstream down", statusErr.Message)
				assert.False(t, errors.Is(err, ErrUnauthenticated))
			},
		},
		{
			name:   "malformed body",
			status: http.StatusOK,
			body:   `{"status":`,
			check: func(t *testing.T, err error) {
				var decodeErr *DecodeError
				require.ErrorAs(t, err, &decodeErr)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestBackend(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			})
			_, err := c.Stats(context.Background())
			require.Error(t, err)
			tt.check(t, err)
		})
	}
}

func TestTransportError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c, err := NewBackendClient(url, quietLogger())
	require.NoError(t, err)

	_, err = c.Stats(context.Background())
	var transportErr *TransportError
	require.ErrorAs(t, err, &transportErr)
	assert.Equal(t, "GET stats", transportErr.Op)
}

type failingToken struct{}

func (failingToken) Token() (string, error) { return "", errors.New("not logged in") }

func TestTokenSourceFailure(t *testing.T) {
	called := false
	c := newTestBackend(t, func(w http.ResponseWriter, r *http.Request) {
		called = true
	}, WithTokenSource(failingToken{}))

	_, err := c.Stats(context.Background())
	assert.ErrorIs(t, err, ErrUnauthenticated)
	assert.False(t, called)
}

func TestTimeoutIsTransportError(t *testing.T) {
	release := make(chan struct{})
	c := newTestBackend(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}, WithHTTPClient(&http.Client{}), WithTimeout(50*time.Millisecond))
	defer close(release)

	_, err := c.Stats(context.Background())
	var transportErr *TransportError
	assert.ErrorAs(t, err, &transportErr)
}
