package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/veicheck/veicheck/engine/chassis"
	"github.com/veicheck/veicheck/engine/domain"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestValidate(t *testing.T) {
	out, err := run(t, "validate", "9bwhe21jx24060831")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(out, "9BWHE21JX24060831") || !strings.Contains(out, "check digit: ok (X)") {
		t.Fatalf("unexpected output:\n%s", out)
	}
}

func TestValidate_Mismatch(t *testing.T) {
	out, err := run(t, "validate", "9BWHE21JA24060831")
	if err != nil {
		t.Fatalf("mismatch is advisory by default: %v", err)
	}
	if !strings.Contains(out, "expected X, informed A") {
		t.Fatalf("unexpected output:\n%s", out)
	}

	_, err = run(t, "validate", "--strict", "9BWHE21JA24060831")
	if !errors.Is(err, chassis.ErrChecksumMismatch) {
		t.Fatalf("expected ErrChecksumMismatch with --strict, got %v", err)
	}
}

func TestValidate_FormatError(t *testing.T) {
	_, err := run(t, "validate", "ABC")
	if !errors.Is(err, chassis.ErrWrongLength) {
		t.Fatalf("expected ErrWrongLength, got %v", err)
	}
}

func TestNormalize(t *testing.T) {
	out, err := run(t, "normalize", "--kind", "renavam", "--uf", "sp", "0012.345.678-9")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var q domain.Query
	if err := json.Unmarshal([]byte(out), &q); err != nil {
		t.Fatalf("decode %q: %v", out, err)
	}
	if q.Kind != domain.KindRenavam || q.Value != "00123456789" || q.UF != "SP" {
		t.Fatalf("unexpected query: %+v", q)
	}

	if _, err := run(t, "normalize", "AB"); !errors.Is(err, domain.ErrInvalidQuery) {
		t.Fatalf("expected ErrInvalidQuery, got %v", err)
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		args []string
		want string
	}{
		{[]string{"classify", "200"}, "200\tok"},
		{[]string{"classify", "601"}, "601\tauthentication"},
		{[]string{"classify", "612", "-e", "CHASSI NAO CADASTRADO"}, "612\twrong_endpoint"},
		{[]string{"classify", "612"}, "612\tnot_found"},
		{[]string{"classify", "999"}, "999\tgeneric"},
	}
	for _, tt := range tests {
		out, err := run(t, tt.args...)
		if err != nil {
			t.Fatalf("%v: %v", tt.args, err)
		}
		if !strings.HasPrefix(out, tt.want) {
			t.Errorf("%v: got %q, want prefix %q", tt.args, out, tt.want)
		}
	}
	if _, err := run(t, "classify", "abc"); err == nil {
		t.Fatal("expected error for non-numeric code")
	}
}

func TestLookup_RetriesUnavailable(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/vehicles/lookup" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		var body map[string]any
		json.NewDecoder(r.Body).Decode(&body)
		if body["kind"] != "plate" || body["value"] != "ABC1D23" || body["ttl_days"] != float64(3) {
			t.Errorf("unexpected body %+v", body)
		}
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			w.Write([]byte(`{"code":615,"category":"provider_unavailable"}`))
			return
		}
		w.Write([]byte(`{"record":{"plate":"ABC1D23"},"from_cache":false}`))
	}))
	defer srv.Close()

	out, err := run(t, "lookup", "--api", srv.URL, "--retries", "2", "--retry-wait", "1ms", "--ttl-days", "3", "ABC1D23")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls.Load() != 2 {
		t.Fatalf("expected 2 calls, got %d", calls.Load())
	}
	if !strings.Contains(out, `"plate": "ABC1D23"`) || !strings.Contains(out, "attempt 1 failed") {
		t.Fatalf("unexpected output:\n%s", out)
	}
}

func TestLookup_DoesNotRetryNotFound(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"code":612,"category":"not_found"}`))
	}))
	defer srv.Close()

	_, err := run(t, "lookup", "--api", srv.URL, "--retries", "3", "--retry-wait", "1ms", "ABC1D23")
	var ae *apiError
	if !errors.As(err, &ae) || ae.Status != http.StatusNotFound {
		t.Fatalf("expected 404 apiError, got %v", err)
	}
	if calls.Load() != 1 {
		t.Fatalf("not_found must not be retried, got %d calls", calls.Load())
	}
}
