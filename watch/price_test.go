package watch

import (
	"errors"
	"testing"
)

func TestParsePrice(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"Cardmarket€12.34 (some note)", "12.34"},
		{"€9.00", "9"},
		{"Cardmarket€1,234.50 (100 cards)", "1234.5"},
		{"  Cardmarket€ 25 ", "25"},
		{"Cardmarket$7.5", "7.5"},
		{"TCGplayer$0.99", "0.99"},
		{"42", "42"},
		{"Cardmarket€3.10 €", "3.1"},
	}
	for _, c := range cases {
		got, err := ParsePrice(c.in)
		if err != nil {
			t.Errorf("ParsePrice(%q) error: %v", c.in, err)
			continue
		}
		if got.String() != c.want {
			t.Errorf("ParsePrice(%q) = %s, want %s", c.in, got, c.want)
		}
	}
}

func TestParsePriceRejects(t *testing.T) {
	for _, in := range []string{"", "Cardmarket€", "(35 cards)", "n/a", "€12.3.4", "€-5.00", "€12abc34"} {
		_, err := ParsePrice(in)
		var pe *PriceParseError
		if !errors.As(err, &pe) {
			t.Errorf("ParsePrice(%q) err = %v, want *PriceParseError", in, err)
			continue
		}
		if pe.Text != in {
			t.Errorf("PriceParseError.Text = %q, want %q", pe.Text, in)
		}
	}
}

func TestProofFileName(t *testing.T) {
	cases := map[string]string{
		"Atraxa Superfriends": "Atraxa Superfriends_proof.png",
		"Yuriko: Ninja/Tempo": "Yuriko_ Ninja_Tempo_proof.png",
		"  ":                  "fallback_proof.png",
		"..":                  "__proof.png",
	}
	for title, want := range cases {
		if got := proofFileName(title, "fallback"); got != want {
			t.Errorf("proofFileName(%q) = %q, want %q", title, got, want)
		}
	}
}
