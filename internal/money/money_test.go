package money

import (
	"encoding/json"
	"testing"
)

func TestParse(t *testing.T) {
	cases := []struct {
		in   string
		want Amount
	}{
		{"12.50", 1250},
		{"0.01", 1},
		{"100", 10_000},
		{" 7.5 ", 750},
		{"12.500", 1250},
		{"-3.25", -325},
	}
	for _, tc := range cases {
		got, err := Parse(tc.in)
		if err != nil {
			t.Fatalf("parse %q: %v", tc.in, err)
		}
		if got != tc.want {
			t.Fatalf("parse %q: expected %d got %d", tc.in, tc.want, got)
		}
	}
}

func TestParseRejects(t *testing.T) {
	for _, in := range []string{"", "abc", "1.005", "99999999999999999999999"} {
		if _, err := Parse(in); err == nil {
			t.Fatalf("expected error for %q", in)
		}
	}
}

func TestStringAndJSON(t *testing.T) {
	if got := Amount(1250).String(); got != "12.50" {
		t.Fatalf("expected 12.50 got %s", got)
	}
	if got := Amount(-5).String(); got != "-0.05" {
		t.Fatalf("expected -0.05 got %s", got)
	}

	payload, err := json.Marshal(struct {
		Amount Amount `json:"amount"`
	}{Amount: 60_00})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(payload) != `{"amount":"60.00"}` {
		t.Fatalf("unexpected json %s", payload)
	}

	var decoded struct {
		A Amount `json:"a"`
		B Amount `json:"b"`
	}
	if err := json.Unmarshal([]byte(`{"a":"1.25","b":3}`), &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if decoded.A != 125 || decoded.B != 300 {
		t.Fatalf("unexpected decode %+v", decoded)
	}
}
