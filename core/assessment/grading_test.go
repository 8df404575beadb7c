package assessment

import "testing"

func TestGrade(t *testing.T) {
	questions := []Question{
		{ID: "q1", Kind: KindSingle, Choices: []string{"a", "b", "c"}, CorrectChoices: []int{1}, Points: 2},
		{ID: "q2", Kind: KindMultiple, Choices: []string{"a", "b", "c", "d"}, CorrectChoices: []int{0, 2}, Points: 3},
		{ID: "q3", Kind: KindText, AcceptedAnswers: []string{"Nairobi", "nairobi city"}, Points: 1},
	}

	tests := []struct {
		name      string
		answers   []Answer
		wantScore float64
	}{
		{name: "no answers", answers: nil, wantScore: 0},
		{
			name: "all correct",
			answers: []Answer{
				{QuestionID: "q1", SelectedChoices: []int{1}},
				{QuestionID: "q2", SelectedChoices: []int{2, 0}},
				{QuestionID: "q3", Text: "  NAIROBI "},
			},
			wantScore: 6,
		},
		{
			name: "single wrong choice",
			answers: []Answer{
				{QuestionID: "q1", SelectedChoices: []int{0}},
				{QuestionID: "q2", SelectedChoices: []int{0, 2}},
				{QuestionID: "q3", Text: "nairobi city"},
			},
			wantScore: 4,
		},
		{
			name: "multiple needs exact set",
			answers: []Answer{
				{QuestionID: "q2", SelectedChoices: []int{0}},
			},
			wantScore: 0,
		},
		{
			name: "multiple superset fails",
			answers: []Answer{
				{QuestionID: "q2", SelectedChoices: []int{0, 2, 3}},
			},
			wantScore: 0,
		},
		{
			name: "duplicate selections are not a match",
			answers: []Answer{
				{QuestionID: "q2", SelectedChoices: []int{0, 0}},
			},
			wantScore: 0,
		},
		{
			name: "text mismatch",
			answers: []Answer{
				{QuestionID: "q3", Text: "Mombasa"},
			},
			wantScore: 0,
		},
		{
			name: "unknown question ignored",
			answers: []Answer{
				{QuestionID: "nope", SelectedChoices: []int{1}},
				{QuestionID: "q1", SelectedChoices: []int{1}},
			},
			wantScore: 2,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			score, maxScore := Grade(questions, tt.answers)
			if score != tt.wantScore {
				t.Errorf("Grade() score = %v, want %v", score, tt.wantScore)
			}
			if maxScore != 6 {
				t.Errorf("Grade() maxScore = %v, want 6", maxScore)
			}
		})
	}
}
