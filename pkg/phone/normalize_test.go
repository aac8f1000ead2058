package phone

import "testing"

func TestNormalizeE164(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"+573001112233", "+573001112233"},
		{"  +573001112233  ", "+573001112233"},
		{"3001112233", "+573001112233"}, // default region applies
		{"not-a-number", "not-a-number"},
		{"+99999", "+99999"}, // invalid stays as typed
		{"", ""},
	}
	for _, tc := range cases {
		if got := NormalizeE164(tc.in); got != tc.want {
			t.Fatalf("%q: expected %q, got %q", tc.in, tc.want, got)
		}
	}
}
