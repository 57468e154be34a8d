package sequence

import (
	"reflect"
	"testing"
)

func TestParseAssignment(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    Assignment
		wantErr bool
	}{
		{"single", "lead=0", Assignment{"lead": {0}}, false},
		{"several", " lead=0,2 ; bass=1 ", Assignment{"lead": {0, 2}, "bass": {1}}, false},
		{"role without devices", "lead=", Assignment{"lead": {}}, false},
		{"empty", "", Assignment{}, false},
		{"missing equals", "lead", nil, true},
		{"negative device", "lead=-1", nil, true},
		{"not a number", "lead=x", nil, true},
		{"repeated role", "lead=0;lead=1", nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseAssignment(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && !reflect.DeepEqual(got, tt.want) {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestAssignmentString(t *testing.T) {
	a := Assignment{"lead": {2, 0, 2}, "bass": {1}}
	if got := a.String(); got != "bass=1;lead=0,2" {
		t.Errorf("String() = %q", got)
	}
	back, _ := ParseAssignment(a.String())
	if !reflect.DeepEqual(back.Devices("lead"), []int{0, 2}) {
		t.Errorf("round trip lost devices: %v", back)
	}
}
