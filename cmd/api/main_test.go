package main

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/fkhayef/splitledger/internal/expense"
	expensesplit "github.com/fkhayef/splitledger/internal/expense/split"
	"github.com/fkhayef/splitledger/internal/group"
	"github.com/fkhayef/splitledger/internal/ledger"
	"github.com/fkhayef/splitledger/internal/metrics"
	"github.com/fkhayef/splitledger/internal/notification"
	"github.com/fkhayef/splitledger/internal/settlement"
	"github.com/fkhayef/splitledger/internal/user"
)

// testRouter wires every handler over repositories without a database; only
// routes that fail before reaching storage are exercised.
func testRouter() http.Handler {
	m := metrics.New()
	notifications := notification.NewService(notification.NewRepository(nil))
	ledgerRepo := ledger.NewRepository(nil)

	return newRouter(routers{
		users:         user.NewHandler(user.NewService(user.NewRepository(nil))),
		groups:        group.NewHandler(group.NewService(group.NewRepository(nil), notifications)),
		expenses:      expense.NewHandler(expense.NewService(ledgerRepo, notifications, expensesplit.NewSplitStrategyFactory())),
		settlements:   settlement.NewHandler(settlement.NewService(ledgerRepo, notifications, m, 0)),
		notifications: notification.NewHandler(notifications),
	}, m)
}

func TestRouter(t *testing.T) {
	r := testRouter()

	tests := []struct {
		name       string
		method     string
		path       string
		wantStatus int
		wantBody   string
	}{
		{"health", http.MethodGet, "/health", http.StatusOK, `"status":"ok"`},
		{"metrics", http.MethodGet, "/metrics", http.StatusOK, "go_goroutines"},
		{"swagger doc", http.MethodGet, "/swagger/doc.json", http.StatusOK, "/groups/{groupId}/settle-up/preview"},
		{"settle-up routes win over groups", http.MethodGet, "/api/v1/groups/abc/settle-up/debts", http.StatusBadRequest, "Invalid group ID"},
		{"settlement records", http.MethodGet, "/api/v1/settlements/records/abc", http.StatusBadRequest, "Invalid record ID"},
		{"notifications", http.MethodPost, "/api/v1/notifications/abc/read", http.StatusBadRequest, "Invalid notification ID"},
		{"notification type", http.MethodGet, "/api/v1/notifications?type=BILL", http.StatusBadRequest, "unknown notification type"},
		{"unknown route", http.MethodGet, "/api/v1/nope", http.StatusNotFound, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			r.ServeHTTP(rec, httptest.NewRequest(tt.method, tt.path, nil))

			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d (body %s)", rec.Code, tt.wantStatus, rec.Body.String())
			}
			if !strings.Contains(rec.Body.String(), tt.wantBody) {
				t.Errorf("body %q does not contain %q", rec.Body.String(), tt.wantBody)
			}
		})
	}
}
