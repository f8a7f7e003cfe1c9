package predict

import "testing"

func outcomes(numbers ...int) []outcome {
	out := make([]outcome, len(numbers))
	for i, n := range numbers {
		out[i] = outcome{IssueNumber: "100", Number: n}
	}
	return out
}

func TestPredictPickShortHistoryFallsBack(t *testing.T) {
	got := predictPick(outcomes(1, 2, 3), "12345")
	if got.BigSmall != PickBig || got.Number != 7 {
		t.Fatalf("got %+v, want BIG 7", got)
	}
}

func TestPredictPickDigitSumStrategy(t *testing.T) {
	// last digit 0 -> strategy 0: (7+8) mod 10 = 5 -> BIG
	got := predictPick(outcomes(7, 8, 0, 0, 0, 0, 0, 0, 0, 0), "1230")
	if got.BigSmall != PickBig || got.Number != 5 {
		t.Fatalf("got %+v, want BIG 5", got)
	}

	// (1+2) mod 10 = 3 -> SMALL
	got = predictPick(outcomes(1, 2, 0, 0, 0, 0, 0, 0, 0, 0), "1230")
	if got.BigSmall != PickSmall || got.Number != 3 {
		t.Fatalf("got %+v, want SMALL 3", got)
	}
}

func TestPredictPickFollowStrategy(t *testing.T) {
	// last digit 1 -> strategy 1: six big outcomes, 7 is the most frequent big number.
	got := predictPick(outcomes(5, 5, 6, 7, 7, 7, 1, 2, 3, 4), "1231")
	if got.BigSmall != PickBig || got.Number != 7 {
		t.Fatalf("got %+v, want BIG 7", got)
	}

	// Small majority follows the small side.
	got = predictPick(outcomes(1, 1, 1, 2, 3, 4, 5, 6, 0, 0), "1231")
	if got.BigSmall != PickSmall || got.Number != 1 {
		t.Fatalf("got %+v, want SMALL 1", got)
	}
}

func TestPredictPickFadeStrategy(t *testing.T) {
	// last digit 2 -> strategy 2: big majority is faded with the rarest small number.
	got := predictPick(outcomes(5, 5, 6, 7, 7, 7, 1, 2, 3, 4), "1232")
	if got.BigSmall != PickSmall || got.Number != 0 {
		t.Fatalf("got %+v, want SMALL 0", got)
	}

	// Tie counts as small-or-even, so the big side is picked.
	got = predictPick(outcomes(5, 6, 7, 8, 9, 0, 1, 2, 3, 4), "1232")
	if got.BigSmall != PickBig {
		t.Fatalf("got %+v, want BIG", got)
	}
}

func TestLastDigit(t *testing.T) {
	cases := []struct {
		in   string
		want int
	}{
		{"20250601123", 3},
		{"9", 9},
		{"", 0},
		{"12a", 0},
	}
	for _, tc := range cases {
		if got := lastDigit(tc.in); got != tc.want {
			t.Errorf("lastDigit(%q) = %d, want %d", tc.in, got, tc.want)
		}
	}
}
