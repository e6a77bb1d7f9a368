package rules

import (
	"fmt"
	"regexp"
	"strings"

	nchess "github.com/corentings/chess/v2"

	"github.com/kr1s01/cfuv-chess/internal/domain"
)

// Verdict tags the result of an Apply attempt. The pipeline switches on the
// tag instead of inspecting error strings.
type Verdict int

const (
	// VerdictApplied means the move was legal and has been applied.
	VerdictApplied Verdict = iota
	// VerdictBadNotation means the input parsed in neither accepted form.
	VerdictBadNotation
	// VerdictIllegal means the input parsed but names no legal move here.
	VerdictIllegal
)

// Application is the outcome of submitting one notation string against one
// position. Position, SAN and UCI are set only for VerdictApplied.
type Application struct {
	Verdict  Verdict
	Position string
	SAN      string
	UCI      string
}

// Engine is the rule-engine contract the move pipeline depends on. Positions
// are opaque FEN strings; callers never interpret them beyond equality.
type Engine interface {
	StartingPosition() string
	Apply(position, notation string) (Application, error)
	IsTerminal(position string) (bool, domain.Outcome, error)
	SideToMove(position string) (domain.Color, error)
}

// Standard implements Engine on top of corentings/chess.
type Standard struct{}

func NewStandard() Standard { return Standard{} }

func (Standard) StartingPosition() string {
	return nchess.NewGame().FEN()
}

var (
	uciShape = regexp.MustCompile(`^[a-h][1-8][a-h][1-8][nbrq]?$`)
	sanShape = regexp.MustCompile(`^([KQRBN]?[a-h]?[1-8]?x?[a-h][1-8](=[QRBN])?|O-O(-O)?|0-0(-0)?)[+#]?$`)
)

// Apply attempts the notation as algebraic first and falls back to
// coordinate form, matching how players actually type moves.
func (Standard) Apply(position, notation string) (Application, error) {
	game, err := gameAt(position)
	if err != nil {
		return Application{}, err
	}
	pos := game.Position()

	raw := strings.TrimSpace(notation)
	if raw == "" {
		return Application{Verdict: VerdictBadNotation}, nil
	}

	mv, derr := nchess.AlgebraicNotation{}.Decode(pos, raw)
	if derr != nil {
		mv, derr = nchess.UCINotation{}.Decode(pos, strings.ToLower(raw))
	}
	if derr != nil {
		// Decode conflates "unreadable" with "readable but impossible".
		// Classify by shape so the caller can tell the two apart.
		if uciShape.MatchString(strings.ToLower(raw)) || sanShape.MatchString(raw) {
			return Application{Verdict: VerdictIllegal}, nil
		}
		return Application{Verdict: VerdictBadNotation}, nil
	}

	san := nchess.AlgebraicNotation{}.Encode(pos, mv)
	if err := game.Move(mv, nil); err != nil {
		return Application{Verdict: VerdictIllegal}, nil
	}
	return Application{
		Verdict:  VerdictApplied,
		Position: game.FEN(),
		SAN:      san,
		UCI:      mv.String(),
	}, nil
}

func (Standard) IsTerminal(position string) (bool, domain.Outcome, error) {
	game, err := gameAt(position)
	if err != nil {
		return false, "", err
	}
	switch game.Outcome() {
	case nchess.WhiteWon:
		return true, domain.OutcomeWhiteWins, nil
	case nchess.BlackWon:
		return true, domain.OutcomeBlackWins, nil
	case nchess.Draw:
		return true, domain.OutcomeDraw, nil
	default:
		return false, "", nil
	}
}

func (Standard) SideToMove(position string) (domain.Color, error) {
	game, err := gameAt(position)
	if err != nil {
		return "", err
	}
	if game.Position().Turn() == nchess.White {
		return domain.White, nil
	}
	return domain.Black, nil
}

func gameAt(position string) (*nchess.Game, error) {
	opt, err := nchess.FEN(strings.TrimSpace(position))
	if err != nil {
		return nil, fmt.Errorf("parse position: %w", err)
	}
	return nchess.NewGame(opt), nil
}
