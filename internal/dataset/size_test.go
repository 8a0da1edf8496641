package dataset

import "testing"

func TestFormatSizeMB(t *testing.T) {
	var table = []struct {
		n      int64
		expect string
	}{
		{0, "0.00 MB"},
		{44, "0.00 MB"},
		{bytesPerMB, "1.00 MB"},
		{1289748, "1.23 MB"},
		{5 * bytesPerMB / 2, "2.50 MB"},
	}
	for _, row := range table {
		if got := FormatSizeMB(row.n); got != row.expect {
			t.Errorf("FormatSizeMB(%d) = %q, expected %q", row.n, got, row.expect)
		}
	}
}

func TestParseSizeMB(t *testing.T) {
	var table = []struct {
		size   string
		expect float64
	}{
		{"1.23 MB", 1.23},
		{"0.00 MB", 0},
		{"  12MB", 12},
		{"3.5", 3.5},
		{".5 MB", 0.5},
		{"1e2 MB", 100},
		{"1e MB", 1},
		{"-2 MB", -2},
		{"MB", 0},
		{"", 0},
		{"unknown", 0},
	}
	for _, row := range table {
		if got := ParseSizeMB(row.size); got != row.expect {
			t.Errorf("ParseSizeMB(%q) = %v, expected %v", row.size, got, row.expect)
		}
	}
}

func TestFormatMB(t *testing.T) {
	if got := FormatMB(3.14159); got != "3.14" {
		t.Errorf("expected 3.14, got %s", got)
	}
	if got := FormatMB(0); got != "0.00" {
		t.Errorf("expected 0.00, got %s", got)
	}
}
