package predict

// Pick labels for the big/small market.
const (
	PickBig   = "BIG"
	PickSmall = "SMALL"
)

type outcome struct {
	IssueNumber string
	Number      int
}

type prediction struct {
	BigSmall string
	Number   int
}

// predictPick selects one of three strategies from the last digit of the
// latest period, using the ten most recent outcomes:
//
//	0: digit sum of the two freshest numbers, mod 10
//	1: follow the majority side, announcing its most frequent number
//	2: fade the majority side, announcing the opposite side's rarest number
func predictPick(history []outcome, latestIssue string) prediction {
	if len(history) < 10 {
		return prediction{BigSmall: PickBig, Number: 7}
	}

	recent := history[:10]
	strategy := lastDigit(latestIssue) % 3

	if strategy == 0 {
		sum := recent[0].Number + recent[1].Number
		n := sum % 10
		if n >= 5 {
			return prediction{BigSmall: PickBig, Number: n}
		}
		return prediction{BigSmall: PickSmall, Number: n}
	}

	freq := make(map[int]int, 10)
	bigCount := 0
	for _, o := range recent {
		freq[o.Number]++
		if o.Number >= 5 {
			bigCount++
		}
	}
	smallCount := len(recent) - bigCount

	bigNumbers := []int{5, 6, 7, 8, 9}
	smallNumbers := []int{0, 1, 2, 3, 4}

	if strategy == 1 {
		if bigCount >= smallCount {
			return prediction{BigSmall: PickBig, Number: mostFrequent(bigNumbers, freq)}
		}
		return prediction{BigSmall: PickSmall, Number: mostFrequent(smallNumbers, freq)}
	}

	// strategy 2: fade
	if bigCount > smallCount {
		return prediction{BigSmall: PickSmall, Number: leastFrequent(smallNumbers, freq)}
	}
	return prediction{BigSmall: PickBig, Number: leastFrequent(bigNumbers, freq)}
}

// mostFrequent keeps the earliest candidate on ties.
func mostFrequent(candidates []int, freq map[int]int) int {
	best := candidates[0]
	for _, n := range candidates[1:] {
		if freq[n] > freq[best] {
			best = n
		}
	}
	return best
}

// leastFrequent keeps the earliest candidate on ties.
func leastFrequent(candidates []int, freq map[int]int) int {
	best := candidates[0]
	for _, n := range candidates[1:] {
		if freq[n] < freq[best] {
			best = n
		}
	}
	return best
}

func lastDigit(issue string) int {
	if issue == "" {
		return 0
	}
	last := issue[len(issue)-1]
	if last < '0' || last > '9' {
		return 0
	}
	return int(last - '0')
}
