package assessment

import "strings"

// Grade scores an answer sheet against the assessment's questions.
// Choice questions award full points on an exact match of the correct
// choice set; text questions on a case-insensitive match against any
// accepted answer. There is no partial credit.
func Grade(questions []Question, answers []Answer) (score, maxScore float64) {
	byQuestion := make(map[string]Answer, len(answers))
	for _, ans := range answers {
		byQuestion[ans.QuestionID] = ans
	}

	for _, q := range questions {
		maxScore += q.Points
		ans, ok := byQuestion[q.ID]
		if !ok {
			continue
		}
		if gradeOne(q, ans) {
			score += q.Points
		}
	}
	return score, maxScore
}

func gradeOne(q Question, ans Answer) bool {
	switch q.Kind {
	case KindSingle:
		return len(ans.SelectedChoices) == 1 &&
			len(q.CorrectChoices) == 1 &&
			ans.SelectedChoices[0] == q.CorrectChoices[0]
	case KindMultiple:
		return sameChoiceSet(q.CorrectChoices, ans.SelectedChoices)
	case KindText:
		got := strings.ToLower(strings.TrimSpace(ans.Text))
		if got == "" {
			return false
		}
		for _, accepted := range q.AcceptedAnswers {
			if got == strings.ToLower(strings.TrimSpace(accepted)) {
				return true
			}
		}
	}
	return false
}

// sameChoiceSet compares two choice index slices as sets.
func sameChoiceSet(want, got []int) bool {
	if len(want) == 0 || len(want) != len(got) {
		return false
	}
	seen := make(map[int]bool, len(want))
	for _, idx := range want {
		seen[idx] = true
	}
	for _, idx := range got {
		if !seen[idx] {
			return false
		}
		delete(seen, idx)
	}
	return len(seen) == 0
}
