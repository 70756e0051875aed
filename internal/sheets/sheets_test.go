package sheets

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"go.uber.org/zap"
	"google.golang.org/api/option"

	"github.com/ferraceros/ferrabot/internal/circuitbreaker"
	"github.com/ferraceros/ferrabot/internal/config"
	apperrors "github.com/ferraceros/ferrabot/internal/errors"
	"github.com/ferraceros/ferrabot/internal/repository"
)

var sampleRow = []string{"573001112233", "Ana", "Láminas y placas de acero", "500", "kilos", "Bogotá", "2024-05-02 14:30:05"}

type appendRecorder struct {
	backends []string
	failures int
}

func (r *appendRecorder) RecordRowAppend(backend string, err error) {
	r.backends = append(r.backends, backend)
	if err != nil {
		r.failures++
	}
}

type stubAppender struct{ err error }

func (s stubAppender) AppendRow(context.Context, []string) error { return s.err }

func TestInstrumented(t *testing.T) {
	rec := &appendRecorder{}

	ok := Instrument("bolt", stubAppender{}, rec, nil)
	if err := ok.AppendRow(context.Background(), sampleRow); err != nil {
		t.Fatal(err)
	}

	failing := Instrument("google", stubAppender{err: errors.New("quota exceeded")}, rec, nil)
	err := failing.AppendRow(context.Background(), sampleRow)
	if apperrors.GetCode(err) != apperrors.CodeSheet {
		t.Errorf("error = %v, want sheet error", err)
	}
	if len(rec.backends) != 2 || rec.failures != 1 {
		t.Errorf("recorder = %+v", rec)
	}
	if failing.Backend() != "google" {
		t.Errorf("Backend() = %q", failing.Backend())
	}
}

func newGoogleTestAppender(t *testing.T, handler http.HandlerFunc, cb *circuitbreaker.CircuitBreaker) *GoogleAppender {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	cfg := &config.SheetsConfig{SpreadsheetID: "sheet-123", Range: "cotizacion"}
	g, err := NewGoogleAppender(context.Background(), cfg, cb, zap.NewNop(),
		option.WithEndpoint(srv.URL+"/"),
		option.WithoutAuthentication(),
		option.WithHTTPClient(srv.Client()),
	)
	if err != nil {
		t.Fatal(err)
	}
	return g
}

func TestGoogleAppender_AppendRow(t *testing.T) {
	var path string
	var query map[string]string
	var body struct {
		Values [][]string `json:"values"`
	}

	g := newGoogleTestAppender(t, func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		query = map[string]string{
			"valueInputOption": r.URL.Query().Get("valueInputOption"),
			"insertDataOption": r.URL.Query().Get("insertDataOption"),
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"spreadsheetId":"sheet-123","updates":{"updatedRange":"cotizacion!A2:G2","updatedRows":1}}`))
	}, nil)

	if err := g.AppendRow(context.Background(), sampleRow); err != nil {
		t.Fatalf("AppendRow() error = %v", err)
	}

	if path != "/v4/spreadsheets/sheet-123/values/cotizacion:append" {
		t.Errorf("path = %q", path)
	}
	if query["valueInputOption"] != "RAW" || query["insertDataOption"] != "INSERT_ROWS" {
		t.Errorf("query = %v", query)
	}
	if len(body.Values) != 1 || len(body.Values[0]) != 7 || body.Values[0][5] != "Bogotá" {
		t.Errorf("values = %v", body.Values)
	}
}

func TestGoogleAppender_FailsFastWhenOpen(t *testing.T) {
	cb := circuitbreaker.New("google-sheets", &circuitbreaker.Config{
		FailureThreshold:    1,
		SuccessThreshold:    1,
		OpenTimeout:         time.Hour,
		HalfOpenMaxRequests: 1,
	}, zap.NewNop())

	var calls int
	g := newGoogleTestAppender(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":{"code":500,"message":"backend error"}}`))
	}, cb)

	if err := g.AppendRow(context.Background(), sampleRow); err == nil {
		t.Fatal("expected error")
	}
	if !g.IsCircuitOpen() {
		t.Fatal("breaker should open after one failure")
	}
	err := g.AppendRow(context.Background(), sampleRow)
	if !errors.Is(err, circuitbreaker.ErrCircuitOpen) {
		t.Errorf("error = %v, want circuit open", err)
	}
	if calls != 1 {
		t.Errorf("upstream called %d times, want 1", calls)
	}
}

func TestBoltAppender(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data", "rows.db")
	b, err := NewBoltAppender(path)
	if err != nil {
		t.Fatal(err)
	}
	defer b.Close()

	contact := []string{"573001112233", "Ana", "", "", "", "", "2024-05-02 09:00:00"}
	for _, row := range [][]string{contact, sampleRow} {
		if err := b.AppendRow(context.Background(), row); err != nil {
			t.Fatal(err)
		}
	}

	rows, err := b.Rows()
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 2 {
		t.Fatalf("got %d rows, want 2", len(rows))
	}
	if rows[0][6] != "2024-05-02 09:00:00" || rows[1][2] != "Láminas y placas de acero" {
		t.Errorf("rows out of order: %v", rows)
	}
}

func TestBoltAppender_CancelledContext(t *testing.T) {
	b, err := NewBoltAppender(filepath.Join(t.TempDir(), "rows.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer b.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := b.AppendRow(ctx, sampleRow); err == nil {
		t.Error("expected context error")
	}
}

type fakeInserter struct {
	got *repository.QuotationRow
}

func (f *fakeInserter) Insert(_ context.Context, row *repository.QuotationRow) error {
	f.got = row
	return nil
}

func TestPostgresAppender(t *testing.T) {
	ins := &fakeInserter{}
	p := NewPostgresAppender(ins)

	if err := p.AppendRow(context.Background(), sampleRow); err != nil {
		t.Fatal(err)
	}
	if ins.got == nil || ins.got.Unit != "kilos" || ins.got.DisplayName != "Ana" {
		t.Errorf("inserted = %+v", ins.got)
	}

	if err := p.AppendRow(context.Background(), []string{"x"}); err == nil {
		t.Error("expected error for malformed row")
	}
}
