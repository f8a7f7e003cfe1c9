package session

import "testing"

func TestCronSchedulerValidate(t *testing.T) {
	s := NewCronScheduler()

	valid := []string{
		"5 */2 * * * *",
		"0 */5 * * * *",
		"30 0 12 * * *",
	}
	for _, spec := range valid {
		if err := s.Validate(spec); err != nil {
			t.Errorf("Validate(%q) = %v, want nil", spec, err)
		}
	}

	invalid := []string{
		"",
		"not a spec",
		"* * * * *", // missing seconds column
		"99 * * * * *",
	}
	for _, spec := range invalid {
		if err := s.Validate(spec); err == nil {
			t.Errorf("Validate(%q) = nil, want error", spec)
		}
	}
}

func TestCronSchedulerArmReplacesAndDisarms(t *testing.T) {
	s := NewCronScheduler()

	// A spec that will not fire during the test.
	spec := "0 0 0 1 1 *"
	if err := s.Arm(spec, func() {}); err != nil {
		t.Fatalf("Arm: %v", err)
	}
	if err := s.Arm(spec, func() {}); err != nil {
		t.Fatalf("re-Arm: %v", err)
	}
	s.Disarm()
	s.Disarm() // idempotent
}

func TestNextPeriod(t *testing.T) {
	cases := []struct {
		in, want string
		wantErr  bool
	}{
		{in: "123", want: "124"},
		{in: "9007199254740993", want: "9007199254740994"},
		{in: " 42 ", want: "43"},
		{in: "abc", wantErr: true},
		{in: "", wantErr: true},
	}
	for _, tc := range cases {
		got, err := nextPeriod(tc.in)
		if tc.wantErr {
			if err == nil {
				t.Errorf("nextPeriod(%q) = %q, want error", tc.in, got)
			}
			continue
		}
		if err != nil {
			t.Errorf("nextPeriod(%q): %v", tc.in, err)
			continue
		}
		if got != tc.want {
			t.Errorf("nextPeriod(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
