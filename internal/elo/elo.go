package elo

import "math"

// KFactor is the fixed development coefficient applied to every game.
const KFactor = 32

const (
	ScoreWin  = 1.0
	ScoreLoss = 0.0
	ScoreDraw = 0.5
)

// Update computes the post-game rating for one side. score is 1 for a win,
// 0 for a loss and 0.5 for a draw; opponent must be the other side's rating
// from before the game. The fractional result truncates toward zero.
func Update(rating, opponent int, score float64) int {
	expected := 1 / (1 + math.Pow(10, float64(opponent-rating)/400))
	return int(float64(rating) + KFactor*(score-expected))
}
