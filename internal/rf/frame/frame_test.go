package frame

import "testing"

func TestParseState(t *testing.T) {
	tests := []struct {
		in     string
		want   State
		wantOK bool
	}{
		{"on", StateOn, true},
		{"1", StateOn, true},
		{"true", StateOn, true},
		{"off", StateOff, true},
		{"0", StateOff, true},
		{"dim", StateUnknown, false},
	}
	for _, tt := range tests {
		got, ok := ParseState(tt.in)
		if got != tt.want || ok != tt.wantOK {
			t.Errorf("ParseState(%q) = (%v, %v), want (%v, %v)", tt.in, got, ok, tt.want, tt.wantOK)
		}
	}
}

func TestFrameField(t *testing.T) {
	f := Frame{ID: "u:0101", UUID: "u", Address: "01", Unit: "0101", State: StateOn}

	if v, ok := f.Field("state"); !ok || v != "1" {
		t.Errorf("Field(state) = (%q, %v)", v, ok)
	}
	if v, ok := f.Field("unit"); !ok || v != "0101" {
		t.Errorf("Field(unit) = (%q, %v)", v, ok)
	}
	if _, ok := f.Field("colour"); ok {
		t.Error("Field(colour) should not exist")
	}
}
