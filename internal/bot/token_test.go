package bot

import "testing"

func TestExtractOrderToken(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"ST999999", "ST999999"},
		{"st999999", "ST999999"},
		{"  ST999999  ", "ST999999"},
		{"ORD-123456", "ORD-123456"},
		{"123456", "123456"},
		{"auth 123456", "123456"},
		{"authenticate ST999999", "ST999999"},
		{"ORD-AB12CD", "ORD-AB12CD"},
		{"ord-ab12cd", "ORD-AB12CD"},
		{"ST9X9Y9Z", "ST9X9Y9Z"},
		{"12345", ""},       // too short
		{"ST12345", ""},     // tail too short
		{"A123456", ""},     // prefix too short
		{"hello there", ""},
		{"tomorrow", ""},   // fits the shape but carries no digit
		{"ORD-ABCDEF", ""}, // all-letter tail is chat, not a token
		{"will I win 1000000 yen", ""}, // digits embedded in chat text
		{"ST999999 please", ""},        // trailing text is chat, not a token
		{"", ""},
	}
	for _, tc := range cases {
		if got := ExtractOrderToken(tc.in); got != tc.want {
			t.Errorf("ExtractOrderToken(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
