package app

import "engagement-service/internal/domain"

// scoreAnswers computes the automatic part of a quiz result. A multiple choice
// answer counts only on an exact string match with the stored option index.
// Short answers never score automatically; their points are reported as pending
// but still count toward maxScore.
func scoreAnswers(questions []domain.Question, answers map[string]string) (score, maxScore, pending int) {
	for _, q := range questions {
		maxScore += q.Points
		switch q.Kind {
		case domain.QuestionMultipleChoice:
			if answer, ok := answers[q.ID]; ok && answer == q.CorrectOption {
				score += q.Points
			}
		case domain.QuestionShortAnswer:
			pending += q.Points
		}
	}
	return score, maxScore, pending
}

func totalPoints(questions []domain.Question) int {
	total := 0
	for _, q := range questions {
		total += q.Points
	}
	return total
}

func hasQuestion(questions []domain.Question, id string) bool {
	for i := range questions {
		if questions[i].ID == id {
			return true
		}
	}
	return false
}
