package status

import "testing"

func TestParse(t *testing.T) {
	for _, s := range []string{"pending", "sent", "delivered", "read", "failed"} {
		if _, ok := Parse(s); !ok {
			t.Errorf("Parse(%q) ok = false", s)
		}
	}
	if _, ok := Parse("deleted"); ok {
		t.Error("Parse(deleted) ok = true, want false")
	}
}

func TestCheckForward(t *testing.T) {
	tests := []struct {
		from Status
		to   Status
	}{
		{Pending, Sent},
		{Pending, Failed},
		{Sent, Delivered},
		{Sent, Read},
		{Delivered, Read},
		{Delivered, Failed},
		{Read, Read},
	}
	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			if err := Check(tt.from, tt.to); err != nil {
				t.Errorf("Check(%s, %s) error = %v", tt.from, tt.to, err)
			}
		})
	}
}

func TestCheckRegression(t *testing.T) {
	tests := []struct {
		from Status
		to   Status
	}{
		{Read, Sent},
		{Delivered, Sent},
		{Failed, Delivered},
		{Read, Status("bogus")},
		{Status("bogus"), Read},
	}
	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			if err := Check(tt.from, tt.to); err == nil {
				t.Errorf("Check(%s, %s) should fail", tt.from, tt.to)
			}
		})
	}
}

func TestIsTerminal(t *testing.T) {
	if !Failed.IsTerminal() || !Read.IsTerminal() {
		t.Error("failed and read should be terminal")
	}
	if Sent.IsTerminal() {
		t.Error("sent should not be terminal")
	}
}
