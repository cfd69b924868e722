package keywordhierarchy

import (
	"testing"

	"deepquery.app/engine/internal/model"
)

func kw(text string, confidence float64) model.Keyword {
	return model.Keyword{Text: text, Confidence: confidence}
}

func TestValidateChildAnswerExactMatch(t *testing.T) {
	parents := []model.Keyword{kw("NASA", 0.9)}
	got := ValidateChildAnswer("NASA", parents)
	if !got.Matched || got.Rule != 1 {
		t.Fatalf("expected exact match rule 1, got %+v", got)
	}
}

func TestValidateChildAnswerAbbreviationVariant(t *testing.T) {
	parents := []model.Keyword{kw("United States", 0.8)}
	got := ValidateChildAnswer("USA", parents)
	if !got.Matched || got.Rule != 2 {
		t.Fatalf("expected abbreviation variant rule 2, got %+v", got)
	}
}

func TestValidateChildAnswerPluralVariant(t *testing.T) {
	parents := []model.Keyword{kw("telescope", 0.8)}
	got := ValidateChildAnswer("telescopes", parents)
	if !got.Matched || got.Rule != 2 {
		t.Fatalf("expected plural variant rule 2, got %+v", got)
	}
}

func TestValidateChildAnswerNumericVariant(t *testing.T) {
	parents := []model.Keyword{kw("2021", 0.8)}
	got := ValidateChildAnswer("2021", parents)
	if !got.Matched || got.Rule != 1 {
		t.Fatalf("expected identical numeric to match rule 1, got %+v", got)
	}
}

func TestValidateChildAnswerProperNounExtension(t *testing.T) {
	parents := []model.Keyword{kw("Webb", 0.8)}
	got := ValidateChildAnswer("James Webb Space Telescope", parents)
	if !got.Matched || got.Rule != 3 {
		t.Fatalf("expected proper noun extension rule 3, got %+v", got)
	}
}

func TestValidateChildAnswerWeightedOverlap(t *testing.T) {
	// More than 3 child tokens are absent from the parent set, so rule 3
	// (proper-noun extension) does not fire; the majority overlap still
	// clears the weighted-overlap threshold for rule 4.
	parents := []model.Keyword{kw("alpha beta gamma delta epsilon zeta", 0.9)}
	got := ValidateChildAnswer("alpha beta gamma delta epsilon zeta eta theta iota kappa", parents)
	if !got.Matched || got.Rule != 4 {
		t.Fatalf("expected weighted overlap rule 4, got %+v", got)
	}
}

func TestValidateChildAnswerTechnicalRelation(t *testing.T) {
	parents := []model.Keyword{kw("telescope", 0.8)}
	got := ValidateChildAnswer("mirror", parents)
	if !got.Matched || got.Rule != 5 {
		t.Fatalf("expected technical relation rule 5, got %+v", got)
	}
}

func TestValidateChildAnswerNoMatch(t *testing.T) {
	parents := []model.Keyword{kw("telescope", 0.8)}
	got := ValidateChildAnswer("banana", parents)
	if got.Matched {
		t.Fatalf("expected no match, got %+v", got)
	}
}

func TestMinimumKeywordCheckRange(t *testing.T) {
	keywords := []model.Keyword{kw("a", 0.9), kw("b", 0.9), kw("c", 0.9)}
	out := MinimumKeywordCheck(keywords, func(idx int) bool { return idx != 1 })

	if !out[0].Essential || out[1].Essential || !out[2].Essential {
		t.Fatalf("expected essential flags [true,false,true], got %+v", out)
	}
}

func TestCheckShortcutLeaksAncestorAnswer(t *testing.T) {
	got := CheckShortcut("What telescope did NASA launch in 2021 near Lagrange point two?", "James Webb Space Telescope",
		[]string{"NASA"}, nil)
	if got.Passed {
		t.Fatalf("expected ancestor-answer leak to fail shortcut check, got %+v", got)
	}
}

func TestCheckShortcutPassesCleanQuestion(t *testing.T) {
	got := CheckShortcut("What instrument observes in infrared aboard the spacecraft?", "NIRCam", nil, nil)
	if !got.Passed {
		t.Fatalf("expected clean structurally specific question to pass, got %+v", got)
	}
}

func TestCheckShortcutRejectsTooShort(t *testing.T) {
	got := CheckShortcut("What is it?", "NIRCam", nil, nil)
	if got.Passed {
		t.Fatalf("expected short question to fail structural specificity, got %+v", got)
	}
}
