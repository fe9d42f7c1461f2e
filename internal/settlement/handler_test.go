package settlement

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/fkhayef/splitledger/internal/currency"
	"github.com/fkhayef/splitledger/internal/ledger"
	"github.com/fkhayef/splitledger/pkg/middleware"
)

func newTestRouter(t *testing.T) (http.Handler, *fakeStore) {
	t.Helper()

	svc, store, _, _ := newTestService(t)
	h := NewHandler(svc)

	r := chi.NewRouter()
	r.Use(middleware.TestUserMiddleware)
	r.Mount("/groups/{groupId}/settle-up", h.GroupRoutes())
	r.Mount("/settlements", h.Routes())
	return r, store
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func do(t *testing.T, h http.Handler, method, path string, user string, body any) (*httptest.ResponseRecorder, envelope) {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}

	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("X-Test-User-ID", user)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var env envelope
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
	return rec, env
}

func TestHandler_PreviewAndConfirm(t *testing.T) {
	h, store := newTestRouter(t)

	rec, env := do(t, h, http.MethodPost, "/groups/1/settle-up/preview", "1", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("preview status = %d, body %s", rec.Code, rec.Body.String())
	}

	var preview PreviewResponse
	if err := json.Unmarshal(env.Data, &preview); err != nil {
		t.Fatalf("decode preview: %v", err)
	}
	if len(preview.Entries) != 2 || preview.Entries[1].Change.String() != "-15.00" {
		t.Errorf("preview entries = %+v", preview.Entries)
	}

	rec, env = do(t, h, http.MethodPost, "/groups/1/settle-up/confirm", "1", ConfirmSettleUpRequest{Hash: preview.Hash})
	if rec.Code != http.StatusCreated {
		t.Fatalf("confirm status = %d, body %s", rec.Code, rec.Body.String())
	}
	if store.recordCount() != 1 {
		t.Errorf("record count = %d, want 1", store.recordCount())
	}

	var record RecordResponse
	if err := json.Unmarshal(env.Data, &record); err != nil {
		t.Fatalf("decode record: %v", err)
	}
	path := "/settlements/records/" + strconv.FormatInt(record.ID, 10)

	rec, env = do(t, h, http.MethodGet, path, "2", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get record status = %d, body %s", rec.Code, rec.Body.String())
	}
	var fetched RecordResponse
	if err := json.Unmarshal(env.Data, &fetched); err != nil {
		t.Fatalf("decode fetched record: %v", err)
	}
	if len(fetched.Entries) != 2 || !fetched.Entries[1].Pending {
		t.Errorf("fetched entries = %+v, want payer + pending counterparty", fetched.Entries)
	}

	rec, _ = do(t, h, http.MethodGet, path, "8", nil)
	if rec.Code != http.StatusForbidden {
		t.Errorf("outsider status = %d, want 403", rec.Code)
	}
}

func TestHandler_Errors(t *testing.T) {
	tests := []struct {
		name       string
		method     string
		path       string
		user       string
		body       any
		wantStatus int
		wantCode   string
	}{
		{
			name:       "stale hash",
			method:     http.MethodPost,
			path:       "/groups/1/settle-up/confirm",
			user:       "1",
			body:       ConfirmSettleUpRequest{Hash: "outdated"},
			wantStatus: http.StatusConflict,
			wantCode:   "CONFLICT",
		},
		{
			name:       "missing hash",
			method:     http.MethodPost,
			path:       "/groups/1/settle-up/confirm",
			user:       "1",
			body:       ConfirmSettleUpRequest{},
			wantStatus: http.StatusBadRequest,
			wantCode:   "BAD_REQUEST",
		},
		{
			name:       "too many counterparties",
			method:     http.MethodPost,
			path:       "/groups/1/settle-up/preview",
			user:       "1",
			body:       SettleUpRequest{WithMembers: []int64{2, 3}},
			wantStatus: http.StatusBadRequest,
			wantCode:   "BAD_REQUEST",
		},
		{
			name:       "amount increases the debt",
			method:     http.MethodPost,
			path:       "/groups/1/settle-up/preview",
			user:       "1",
			body:       SettleUpRequest{WithMembers: []int64{4}, Amounts: []currency.Money{currency.MustParse("7.50")}},
			wantStatus: http.StatusBadRequest,
			wantCode:   "BAD_REQUEST",
		},
		{
			name:       "debtor with debtor",
			method:     http.MethodPost,
			path:       "/groups/1/settle-up/preview",
			user:       "1",
			body:       SettleUpRequest{WithMembers: []int64{5}},
			wantStatus: http.StatusBadRequest,
			wantCode:   "BAD_REQUEST",
		},
		{
			name:       "zero balance",
			method:     http.MethodPost,
			path:       "/groups/1/settle-up/preview",
			user:       "8",
			wantStatus: http.StatusBadRequest,
			wantCode:   "BAD_REQUEST",
		},
		{
			name:       "unknown group",
			method:     http.MethodGet,
			path:       "/groups/99/settle-up/group",
			user:       "1",
			wantStatus: http.StatusNotFound,
			wantCode:   "NOT_FOUND",
		},
		{
			name:       "invalid group id",
			method:     http.MethodGet,
			path:       "/groups/abc/settle-up/debts",
			user:       "1",
			wantStatus: http.StatusBadRequest,
			wantCode:   "BAD_REQUEST",
		},
		{
			name:       "non-member",
			method:     http.MethodPost,
			path:       "/groups/1/settle-up/preview",
			user:       "42",
			wantStatus: http.StatusForbidden,
			wantCode:   "FORBIDDEN",
		},
		{
			name:       "unknown entry",
			method:     http.MethodPost,
			path:       "/settlements/entries/12345/confirm",
			user:       "2",
			wantStatus: http.StatusNotFound,
			wantCode:   "NOT_FOUND",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, _ := newTestRouter(t)

			rec, env := do(t, h, tt.method, tt.path, tt.user, tt.body)
			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d (body %s)", rec.Code, tt.wantStatus, rec.Body.String())
			}
			if env.Success || env.Error == nil || env.Error.Code != tt.wantCode {
				t.Errorf("envelope = %+v, want error code %s", env, tt.wantCode)
			}
		})
	}
}

func TestHandler_GroupFlow(t *testing.T) {
	h, _ := newTestRouter(t)

	rec, env := do(t, h, http.MethodGet, "/groups/1/settle-up/group", "1", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("group preview status = %d", rec.Code)
	}
	var preview GroupPreviewResponse
	if err := json.Unmarshal(env.Data, &preview); err != nil {
		t.Fatalf("decode group preview: %v", err)
	}

	rec, env = do(t, h, http.MethodPost, "/groups/1/settle-up/group/confirm", "1", ConfirmGroupSettleUpRequest{Hash: preview.Hash})
	if rec.Code != http.StatusCreated {
		t.Fatalf("group confirm status = %d, body %s", rec.Code, rec.Body.String())
	}
	var records []RecordResponse
	if err := json.Unmarshal(env.Data, &records); err != nil {
		t.Fatalf("decode records: %v", err)
	}
	if len(records) == 0 {
		t.Fatal("group confirm returned no records")
	}

	// the first counterparty confirms its entry
	entry := records[0].Entries[1]
	path := "/settlements/entries/" + strconv.FormatInt(entry.ID, 10) + "/confirm"
	rec, _ = do(t, h, http.MethodPost, path, strconv.FormatInt(entry.UserID, 10), nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("entry confirm status = %d, body %s", rec.Code, rec.Body.String())
	}

	rec, env = do(t, h, http.MethodGet, "/groups/1/settle-up/debts", "1", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("debts status = %d", rec.Code)
	}
	var debts DebtsResponse
	if err := json.Unmarshal(env.Data, &debts); err != nil {
		t.Fatalf("decode debts: %v", err)
	}
	if len(debts.Transactions) != 0 {
		t.Errorf("debts = %+v, want none", debts.Transactions)
	}
}

func TestWriteError(t *testing.T) {
	tests := []struct {
		err        error
		wantStatus int
	}{
		{ledger.ErrEntryNotPending, http.StatusBadRequest},
		{fmt.Errorf("failed to confirm entry: %w", ledger.ErrEntryNotPending), http.StatusBadRequest},
		{ledger.ErrRecordNotFound, http.StatusNotFound},
		{ledger.ErrNotGroupMember, http.StatusForbidden},
		{ErrAmountOutOfRange, http.StatusBadRequest},
		{ErrSameSideCounterparty, http.StatusBadRequest},
		{ErrStaleSettleUp, http.StatusConflict},
		{errors.New("connection reset"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			rec := httptest.NewRecorder()
			writeError(rec, tt.err, "failed")
			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
		})
	}
}
