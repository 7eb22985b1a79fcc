package normalize

import "testing"

func TestText(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"", ""},
		{"Sunroof", "sunroof"},
		{"  LEATHER   Seats ", "leather seats"},
		{"Heated\tFront\nSeats", "heated front seats"},
		{"panoramic  roof", "panoramic roof"},
		{" \n\t ", ""},
	}
	for _, tt := range tests {
		if got := Text(tt.in); got != tt.want {
			t.Errorf("Text(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
