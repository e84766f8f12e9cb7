package gateway

import (
	"database/sql"
	"encoding/json"
	"errors"
	"math"
	"net"
	"reflect"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/f7las/gatekeeper/internal/executor"
)

type opaque struct {
	A int
	B string
}

type panicStringer struct{}

func (panicStringer) String() string { panic("no") }

func TestNormalizeValue_MapsToJSONSafePrimitives(t *testing.T) {
	ts := time.Date(2026, 3, 1, 12, 30, 0, 500, time.FixedZone("X", 3600))
	s := "ptr"
	var nilPtr *string
	id := uuid.MustParse("7d444840-9dc0-11d1-b245-5ffdce74fad2")
	cell := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	var nilTime *time.Time

	tests := []struct {
		name string
		in   any
		want any
	}{
		{"nil", nil, nil},
		{"string", "x", "x"},
		{"bool", true, true},
		{"int", 3, 3},
		{"float", 2.5, 2.5},
		{"nan", math.NaN(), "NaN"},
		{"inf", math.Inf(1), "+Inf"},
		{"json number", json.Number("42"), int64(42)},
		{"time", ts, "2026-03-01T11:30:00.0000005Z"},
		{"time pointer", &cell, "2024-01-02T03:04:05Z"},
		{"nil time pointer", nilTime, nil},
		{"null time valid", sql.NullTime{Time: cell, Valid: true}, "2024-01-02T03:04:05Z"},
		{"null time invalid", sql.NullTime{}, nil},
		{"null string", sql.NullString{String: "s", Valid: true}, "s"},
		{"null int", sql.NullInt64{Int64: 7, Valid: true}, int64(7)},
		{"bytes", []byte("abc"), "abc"},
		{"pointer", &s, "ptr"},
		{"nil pointer", nilPtr, nil},
		{"uuid", id, "7d444840-9dc0-11d1-b245-5ffdce74fad2"},
		{"ip", net.ParseIP("10.0.0.1"), "10.0.0.1"},
		{"error", errors.New("bad"), "bad"},
		{"struct", opaque{A: 1, B: "b"}, `{"A":1,"B":"b"}`},
		{"map", map[string]int{"k": 1}, `{"k":1}`},
		{"duration", 1500 * time.Millisecond, "1.5s"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NormalizeValue(tt.in)
			if !reflect.DeepEqual(got, tt.want) {
				t.Fatalf("expected %#v, got %#v", tt.want, got)
			}
		})
	}
}

func TestNormalizeValue_NeverPanics(t *testing.T) {
	got := NormalizeValue(panicStringer{})
	if _, ok := got.(string); !ok {
		t.Fatalf("expected a string fallback, got %#v", got)
	}
}

func TestNormalizeRows_IsIdempotent(t *testing.T) {
	rows := []executor.Row{
		executor.Values{"a", 1, 2.5, true, nil},
		executor.Values{time.Unix(0, 0), []byte("x"), json.Number("1.5"), math.Inf(-1), opaque{}},
	}

	once := NormalizeRows(rows, 0)
	again := make([]executor.Row, len(once))
	for i, r := range once {
		again[i] = executor.Values(r)
	}
	twice := NormalizeRows(again, 0)

	if !reflect.DeepEqual(once, twice) {
		t.Fatalf("expected idempotent normalization, got %#v then %#v", once, twice)
	}
	if _, err := json.Marshal(once); err != nil {
		t.Fatalf("expected JSON-safe rows, got %v", err)
	}
}

func TestNormalizeRows_Caps(t *testing.T) {
	rows := make([]executor.Row, 10)
	for i := range rows {
		rows[i] = executor.Values{i}
	}
	if got := NormalizeRows(rows, 3); len(got) != 3 {
		t.Fatalf("expected 3 rows, got %d", len(got))
	}
	if got := NormalizeRows(nil, 3); got == nil || len(got) != 0 {
		t.Fatalf("expected empty non-nil slice, got %#v", got)
	}
}
