package utils

import "testing"

func TestHashAndCheckPassword(t *testing.T) {
	hash, err := HashPassword("secret123")
	if err != nil {
		t.Fatalf("HashPassword returned error: %v", err)
	}
	if hash == "secret123" {
		t.Fatal("hash must not equal the plain password")
	}
	if err := CheckPassword("secret123", hash); err != nil {
		t.Fatalf("CheckPassword rejected the correct password: %v", err)
	}
	if err := CheckPassword("wrong", hash); err == nil {
		t.Fatal("CheckPassword accepted a wrong password")
	}
}

func TestIsValidRole(t *testing.T) {
	tests := []struct {
		role string
		want bool
	}{
		{"admin", true},
		{"treasurer", true},
		{"auditor", true},
		{"guardian", true},
		{"owner", false},
		{"", false},
		{"Admin", false},
	}
	for _, tt := range tests {
		if got := IsValidRole(tt.role); got != tt.want {
			t.Errorf("IsValidRole(%q) = %v, want %v", tt.role, got, tt.want)
		}
	}
}

func TestFormatPeso(t *testing.T) {
	tests := []struct {
		amount float64
		want   string
	}{
		{0, "₱0.00"},
		{250, "₱250.00"},
		{1234.5, "₱1234.50"},
	}
	for _, tt := range tests {
		if got := FormatPeso(tt.amount); got != tt.want {
			t.Errorf("FormatPeso(%v) = %q, want %q", tt.amount, got, tt.want)
		}
	}
}

func TestIsValidFileExtension(t *testing.T) {
	allowed := []string{"csv", "xlsx"}

	tests := []struct {
		filename string
		want     bool
	}{
		{"masterlist.csv", true},
		{"masterlist.XLSX", true},
		{"masterlist.pdf", false},
		{"noextension", false},
		{"", false},
	}
	for _, tt := range tests {
		if got := IsValidFileExtension(tt.filename, allowed); got != tt.want {
			t.Errorf("IsValidFileExtension(%q) = %v, want %v", tt.filename, got, tt.want)
		}
	}
}

func TestNormalizeName(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"  Dela Cruz  ", "dela cruz"},
		{"SANTOS", "santos"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := NormalizeName(tt.in); got != tt.want {
			t.Errorf("NormalizeName(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
