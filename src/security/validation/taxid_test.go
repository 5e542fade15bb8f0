package validation

import (
	"errors"
	"strings"
	"testing"
)

func TestValidateTaxIDAcceptsKnownValidIDs(t *testing.T) {
	tests := []struct {
		raw  string
		want string
	}{
		{"529.982.247-25", "52998224725"},
		{"52998224725", "52998224725"},
		{"111.444.777-35", "11144477735"},
		{" 123.456.789-09 ", "12345678909"},
		{"390 533 447 05", "39053344705"},
		{"000.000.001-91", "00000000191"},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got, err := ValidateTaxID(tt.raw)
			if err != nil {
				t.Fatalf("ValidateTaxID(%q) returned error: %v", tt.raw, err)
			}
			if got != tt.want {
				t.Errorf("ValidateTaxID(%q) = %q, want %q", tt.raw, got, tt.want)
			}
		})
	}
}

func TestValidateTaxIDRejectsRepeatedDigits(t *testing.T) {
	for d := '0'; d <= '9'; d++ {
		raw := strings.Repeat(string(d), 11)
		_, err := ValidateTaxID(raw)
		if !errors.Is(err, ErrInvalidChecksum) {
			t.Errorf("ValidateTaxID(%q) error = %v, want ErrInvalidChecksum", raw, err)
		}
		if !errors.Is(err, ErrValidationFailed) {
			t.Errorf("ValidateTaxID(%q) error should match ErrValidationFailed", raw)
		}
	}
}

func TestValidateTaxIDRejectsBadInput(t *testing.T) {
	tests := []struct {
		name   string
		raw    string
		reason error
	}{
		{"empty", "", ErrInvalidFormat},
		{"too short", "5299822472", ErrInvalidFormat},
		{"too long", "529982247250", ErrInvalidFormat},
		{"letters only", "abc.def.ghi-jk", ErrInvalidFormat},
		{"wrong second digit", "529.982.247-24", ErrInvalidChecksum},
		{"wrong first digit", "529.982.247-35", ErrInvalidChecksum},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ValidateTaxID(tt.raw)
			if err == nil {
				t.Fatalf("ValidateTaxID(%q) = %q, want error", tt.raw, got)
			}
			if !errors.Is(err, tt.reason) {
				t.Errorf("ValidateTaxID(%q) error = %v, want reason %v", tt.raw, err, tt.reason)
			}
			var vErr *ValidationError
			if !errors.As(err, &vErr) || vErr.Input != tt.raw {
				t.Errorf("expected *ValidationError carrying the input, got %#v", err)
			}
		})
	}
}

func TestNormalizeTaxIDIsIdempotent(t *testing.T) {
	inputs := []string{"", "529.982.247-25", "abc", "12 34-56/78", "٣٤٥ 678", "CPF: 111.444.777-35 (titular)"}
	for _, in := range inputs {
		once := NormalizeTaxID(in)
		if twice := NormalizeTaxID(once); twice != once {
			t.Errorf("NormalizeTaxID not idempotent for %q: %q then %q", in, once, twice)
		}
		for _, r := range once {
			if r < '0' || r > '9' {
				t.Errorf("NormalizeTaxID(%q) = %q contains non-ASCII-digit %q", in, once, r)
			}
		}
	}
}

func TestFormatTaxID(t *testing.T) {
	if got := FormatTaxID("52998224725"); got != "529.982.247-25" {
		t.Errorf("FormatTaxID = %q", got)
	}
	if got := FormatTaxID("123"); got != "123" {
		t.Errorf("FormatTaxID should leave short input unchanged, got %q", got)
	}
}

func TestSanitizeQuery(t *testing.T) {
	if got := SanitizeQuery("  Maria \x00 da\tSilva  "); got != "Maria da Silva" {
		t.Errorf("SanitizeQuery = %q", got)
	}
	long := strings.Repeat("á", maxQueryLength+50)
	if got := SanitizeQuery(long); len([]rune(got)) != maxQueryLength {
		t.Errorf("SanitizeQuery should truncate to %d runes, got %d", maxQueryLength, len([]rune(got)))
	}
}

func TestIsSafeFilename(t *testing.T) {
	tests := []struct {
		name string
		want bool
	}{
		{"Declaracao_IR_52998224725_20240101_120000.html", true},
		{"", false},
		{"..", false},
		{"../etc/passwd", false},
		{`..\\windows`, false},
		{"dir/file.html", false},
		{"bad\x00name.html", false},
	}
	for _, tt := range tests {
		if got := IsSafeFilename(tt.name); got != tt.want {
			t.Errorf("IsSafeFilename(%q) = %v, want %v", tt.name, got, tt.want)
		}
	}
}
