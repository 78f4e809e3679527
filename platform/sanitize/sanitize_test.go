package sanitize

import "testing"

func TestStripHTML(t *testing.T) {
	cases := []struct {
		name  string
		input string
		want  string
	}{
		{"plain text untouched", "Kari Nordmann", "Kari Nordmann"},
		{"tags removed, text kept", "<b>Kari</b> Nordmann", "Kari Nordmann"},
		{"script content dropped", "<script>alert(1)</script>Kari", "Kari"},
		{"style content dropped", "<style>body{display:none}</style>Oslo", "Oslo"},
		{"script with attributes", `<script type="text/javascript">steal()</script>Per`, "Per"},
		{"case insensitive script", "<SCRIPT>alert(1)</SCRIPT>Ola", "Ola"},
		{"encoded script dropped after decode", "&lt;script&gt;alert(1)&lt;/script&gt;Nina", "Nina"},
		{"entities decoded", "Bakeri &amp; Konditori", "Bakeri & Konditori"},
		{"surrounding whitespace trimmed", "  Karl Johans gate 2  ", "Karl Johans gate 2"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := StripHTML(tc.input); got != tc.want {
				t.Fatalf("StripHTML(%q) = %q, want %q", tc.input, got, tc.want)
			}
		})
	}
}

func TestText(t *testing.T) {
	if got := Text("<script>alert(1)</script>Kari"); got != "Kari" {
		t.Fatalf("Text = %q, want %q", got, "Kari")
	}
}
