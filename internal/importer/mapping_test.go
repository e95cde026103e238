package importer

import (
	"errors"
	"testing"
)

func TestNormalizeHeader(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Email", "email"},
		{"E-mail Address", "emailaddress"},
		{"email_address", "emailaddress"},
		{"  First Name  ", "firstname"},
		{"PHONE #", "phone"},
		{"123", ""},
		{"", ""},
	}

	for _, tt := range tests {
		if got := NormalizeHeader(tt.in); got != tt.want {
			t.Errorf("NormalizeHeader(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestMatchHeader(t *testing.T) {
	catalog := Catalog()

	tests := []struct {
		header string
		want   string
		ok     bool
	}{
		// Exact label/key matches
		{"First Name", "firstName", true},
		{"firstname", "firstName", true},
		{"Email", "email", true},
		{"Date of Birth", "dateOfBirth", true},

		// Substring matches
		{"Member Email", "email", true},
		{"Primary Phone", "phone", true},

		// Synonym matches
		{"Given Name", "firstName", true},
		{"Surname", "lastName", true},
		{"DOB", "dateOfBirth", true},
		{"Mobile", "phone", true},

		// No match
		{"Favorite Color", "", false},
		{"", "", false},
	}

	for _, tt := range tests {
		got, ok := MatchHeader(tt.header, catalog)
		if ok != tt.ok || got != tt.want {
			t.Errorf("MatchHeader(%q) = %q, %v, want %q, %v", tt.header, got, ok, tt.want, tt.ok)
		}
	}
}

func TestResolveMapping_AutoDetect(t *testing.T) {
	headers := []string{"First Name", "Last Name", "E-mail", "Mobile", "Favorite Color"}

	m, err := ResolveMapping(headers, Catalog(), nil)
	if err != nil {
		t.Fatalf("ResolveMapping() error = %v", err)
	}

	wantKeys := []string{"firstName", "lastName", "email", "phone", ""}
	for col, want := range wantKeys {
		if got := m.KeyFor(col); got != want {
			t.Errorf("KeyFor(%d) = %q, want %q", col, got, want)
		}
	}

	col, ok := m.Column("email")
	if !ok || col != 2 {
		t.Errorf("Column(email) = %d, %v, want 2, true", col, ok)
	}
}

func TestResolveMapping_FileOrderClaimWins(t *testing.T) {
	// Both headers could match email; only the first claims it.
	headers := []string{"Email", "Mail"}

	m, err := ResolveMapping(headers, Catalog(), nil)
	if err != nil {
		t.Fatalf("ResolveMapping() error = %v", err)
	}

	if got := m.KeyFor(0); got != "email" {
		t.Errorf("KeyFor(0) = %q, want email", got)
	}
	if got := m.KeyFor(1); got != "" {
		t.Errorf("KeyFor(1) = %q, want unmapped", got)
	}
}

func TestResolveMapping_OverrideDisplacesAuto(t *testing.T) {
	headers := []string{"Email", "Contact"}

	m, err := ResolveMapping(headers, Catalog(), map[string]string{
		"Contact": "email",
	})
	if err != nil {
		t.Fatalf("ResolveMapping() error = %v", err)
	}

	if got := m.KeyFor(1); got != "email" {
		t.Errorf("KeyFor(1) = %q, want email", got)
	}
	// The auto-claimed column loses its binding.
	if got := m.KeyFor(0); got != "" {
		t.Errorf("KeyFor(0) = %q, want unmapped", got)
	}
}

func TestResolveMapping_UnknownOverrideKey(t *testing.T) {
	headers := []string{"Name", "Email"}

	_, err := ResolveMapping(headers, Catalog(), map[string]string{
		"Name": "nickname",
	})
	if err == nil {
		t.Fatal("expected error for unknown canonical key")
	}

	var mappingErr *MappingError
	if !errors.As(err, &mappingErr) {
		t.Fatalf("error type = %T, want *MappingError", err)
	}
	if len(mappingErr.UnknownKeys) != 1 || mappingErr.UnknownKeys[0] != "nickname" {
		t.Errorf("UnknownKeys = %v, want [nickname]", mappingErr.UnknownKeys)
	}
}

func TestResolveMapping_OverrideForAbsentHeaderIgnored(t *testing.T) {
	headers := []string{"First Name", "Last Name", "Email"}

	m, err := ResolveMapping(headers, Catalog(), map[string]string{
		"Phone Number": "phone",
	})
	if err != nil {
		t.Fatalf("ResolveMapping() error = %v", err)
	}
	if _, ok := m.Column("phone"); ok {
		t.Error("phone should not be mapped when its header is absent")
	}
}

func TestFieldMapping_Missing(t *testing.T) {
	headers := []string{"First Name", "Phone"}

	m, err := ResolveMapping(headers, Catalog(), nil)
	if err != nil {
		t.Fatalf("ResolveMapping() error = %v", err)
	}

	missing := m.Missing([]string{"firstName", "lastName", "email"})
	if len(missing) != 2 {
		t.Fatalf("Missing() = %v, want 2 entries", missing)
	}
	if missing[0] != "lastName" || missing[1] != "email" {
		t.Errorf("Missing() = %v, want [lastName email]", missing)
	}
}

func TestFieldMapping_Value(t *testing.T) {
	headers := []string{"First Name", "Email"}
	m, err := ResolveMapping(headers, Catalog(), nil)
	if err != nil {
		t.Fatalf("ResolveMapping() error = %v", err)
	}

	row := Row{Line: 2, Fields: []string{"John", "john@example.com"}}

	v, ok := m.Value(row, "email")
	if !ok || v != "john@example.com" {
		t.Errorf("Value(email) = %q, %v", v, ok)
	}
	if _, ok := m.Value(row, "phone"); ok {
		t.Error("Value(phone) should report unmapped")
	}
}
