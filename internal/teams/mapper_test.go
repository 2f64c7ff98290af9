package teams

import "testing"

func TestToCode(t *testing.T) {
	tests := []struct {
		sport string
		in    string
		want  string
	}{
		{"NBA", "GS", "GSW"},
		{"NBA", "PHO", "PHX"},
		{"NBA", "SA", "SAS"},
		{"NBA", "BOS", "BOS"},
		{"NBA", " lal ", "LAL"},
		{"NFL", "JAX", "JAC"},
		{"NFL", "OAK", "LV"},
		{"NFL", "KC", "KC"},
		{"NHL", "TB", "TBL"},
		{"NHL", "VGS", "VGK"},
		{"NHL", "VEG", "VGK"},
		{"NHL", "EDM", "EDM"},
		{"MLB", "CWS", "CHW"},
		{"MLB", "SFG", "SF"},
		{"MLB", "TB", "TB"},
		{"Soccer", "MCI", "MCI"},
		{"Soccer", "ars", "ARS"},
		{"NBA", "XYZ", "XYZ"},
	}
	for _, tt := range tests {
		if got := ToCode(tt.sport, tt.in); got != tt.want {
			t.Errorf("ToCode(%s,%s)=%s want %s", tt.sport, tt.in, got, tt.want)
		}
	}
}
