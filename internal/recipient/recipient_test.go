package recipient

import (
	"reflect"
	"strings"
	"testing"
)

func TestNormalizeExactHeaders(t *testing.T) {
	headers := []string{"Timestamp", "Full Name", "Email Address", "College Name", "Phone", "Year", "Event Participated"}
	row := []string{"2024/01/01 10:00", " Ada Lovelace ", "ada@example.com", "MIT", "555", "3", "Hackathon"}

	got := Normalize(headers, row)
	want := Recipient{
		Name:      "Ada Lovelace",
		Email:     "ada@example.com",
		EventName: "Hackathon",
		Phone:     "555",
		College:   "MIT",
		Year:      "3",
		Timestamp: "2024/01/01 10:00",
	}
	if got != want {
		t.Fatalf("Normalize() = %+v, want %+v", got, want)
	}
}

func TestNormalizeRegexHeaders(t *testing.T) {
	headers := []string{"Student", "E-mail ID", "Contest"}
	got := Normalize(headers, []string{"Grace", "grace@example.com", "Code Sprint"})
	if got.Name != "Grace" || got.Email != "grace@example.com" || got.EventName != "Code Sprint" {
		t.Fatalf("unexpected %+v", got)
	}
}

func TestNormalizeFallbacks(t *testing.T) {
	headers := []string{"Timestamp", "Who", "Contact Info"}
	got := Normalize(headers, []string{"2024-01-01", "Linus", "linus@example.com"})
	if got.Name != "Linus" {
		t.Fatalf("expected first non-timestamp column as name, got %q", got.Name)
	}
	if got.Email != "linus@example.com" {
		t.Fatalf("expected email found by '@', got %q", got.Email)
	}
}

func TestNormalizeShortRow(t *testing.T) {
	got := Normalize([]string{"Name", "Email", "College"}, []string{"Ken"})
	if got.Name != "Ken" || got.Email != "" || got.College != "" {
		t.Fatalf("unexpected %+v", got)
	}
}

func TestParseCSV(t *testing.T) {
	in := "\xef\xbb\xbfName,Email,College\n" +
		"Ada,ada@example.com,MIT\n" +
		",,\n" +
		"\"Hopper, Grace\",grace@example.com\n"

	got, err := ParseCSV(strings.NewReader(in))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	want := []Recipient{
		{Name: "Ada", Email: "ada@example.com", College: "MIT"},
		{Name: "Hopper, Grace", Email: "grace@example.com"},
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("ParseCSV() = %+v, want %+v", got, want)
	}
}

func TestParseCSVEmpty(t *testing.T) {
	if _, err := ParseCSV(strings.NewReader("")); err == nil {
		t.Fatalf("expected error for empty csv")
	}
}

func TestFilterByEmails(t *testing.T) {
	rs := []Recipient{{Email: "a@x"}, {Email: "b@x"}, {Email: "c@x"}}
	if got := FilterByEmails(rs, nil); len(got) != 3 {
		t.Fatalf("empty filter must keep everyone")
	}
	got := FilterByEmails(rs, []string{"c@x", " a@x", "zz@x"})
	if len(got) != 2 || got[0].Email != "a@x" || got[1].Email != "c@x" {
		t.Fatalf("unexpected filtered %+v", got)
	}
}
