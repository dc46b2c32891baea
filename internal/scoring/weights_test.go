package scoring

import (
	"strings"
	"testing"
)

func TestDefaultWeights(t *testing.T) {
	w, err := DefaultWeights()
	if err != nil {
		t.Fatalf("embedded defaults failed to parse: %v", err)
	}

	for _, vertical := range []string{"snf", "alf", "hha"} {
		if _, ok := w.Verticals[vertical]; !ok {
			t.Errorf("defaults missing vertical %q", vertical)
		}
	}
	if len(w.CRID.MDS) != 4 || len(w.CRID.Claims) != 2 {
		t.Errorf("defaults have %d MDS and %d claims measures, want 4 and 2",
			len(w.CRID.MDS), len(w.CRID.Claims))
	}
}

func TestParseWeights_Validation(t *testing.T) {
	cases := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{
			name:    "unknown factor",
			yaml:    withVertical(`- name: made_up_metric` + "\n        weight: 1.0"),
			wantErr: "unknown factor",
		},
		{
			name:    "weights do not sum to one",
			yaml:    withVertical(`- name: median_income` + "\n        weight: 0.4"),
			wantErr: "sum to",
		},
		{
			name:    "negative weight",
			yaml:    withVertical(`- name: median_income` + "\n        weight: -1.0"),
			wantErr: "non-positive",
		},
		{
			name:    "no verticals",
			yaml:    "verticals: {}\n" + validCRIDBlock,
			wantErr: "no verticals",
		},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			_, err := parseWeights([]byte(c.yaml))
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), c.wantErr) {
				t.Errorf("error %q does not mention %q", err, c.wantErr)
			}
		})
	}
}

func TestLoadWeights_EmptyPathUsesDefaults(t *testing.T) {
	w, err := LoadWeights("")
	if err != nil {
		t.Fatal(err)
	}
	if len(w.Verticals) == 0 {
		t.Error("empty path should load embedded defaults")
	}
}

const validCRIDBlock = `crid:
  mds:
    "410": 0.3
    "453": 0.3
    "407": 0.2
    "409": 0.2
  claims:
    "551": 0.5
    "552": 0.5
`

func withVertical(factors string) string {
	return "verticals:\n  snf:\n    factors:\n      " + factors + "\n" + validCRIDBlock
}
