package circular

import (
	"testing"

	"deepquery.app/engine/internal/model"
)

func question(text, answer string, qType model.QuestionType, aType model.ShortAnswerType) model.Question {
	return model.Question{
		Text:           text,
		ExpectedAnswer: answer,
		QuestionType:   qType,
		AnswerType:     aType,
	}
}

func TestCheckExactReversal(t *testing.T) {
	d := New()
	d.Record(question("What telescope succeeded Hubble?", "James Webb Space Telescope", model.QuestionWhat, model.ShortAnswerProperNoun), "telescope")

	candidate := question("What is named James Webb Space Telescope?", "Hubble", model.QuestionWhat, model.ShortAnswerProperNoun)
	result := d.Check(candidate, "Hubble")
	if !result.IsCircular {
		t.Fatalf("expected exact reversal to be flagged circular, got %+v", result)
	}
}

func TestCheckExactReversalSameAnswerDifferentWording(t *testing.T) {
	d := New()
	d.Record(question("Which telescope launched in 2021 succeeded Hubble?", "2021", model.QuestionWhich, model.ShortAnswerDate), "2021")

	candidate := question("In what year was the James Webb Space Telescope launched?", "2021", model.QuestionWhen, model.ShortAnswerDate)
	result := d.Check(candidate, "2021")
	if !result.IsCircular {
		t.Fatalf("expected same-answer candidate to be flagged circular even without literal wording overlap, got %+v", result)
	}
}

func TestCheckSubstringCollision(t *testing.T) {
	d := New()
	d.Record(question("What agency launched the telescope?", "NASA", model.QuestionWhat, model.ShortAnswerProperNoun), "agency")

	candidate := question("When did NASA launch its telescope?", "2021", model.QuestionWhen, model.ShortAnswerDate)
	result := d.Check(candidate, "launch date")
	if !result.IsCircular {
		t.Fatalf("expected substring collision to be flagged circular, got %+v", result)
	}
}

func TestCheckTemplateLoop(t *testing.T) {
	d := New()
	d.Record(question("What instrument observes in infrared?", "NIRCam", model.QuestionWhat, model.ShortAnswerTechnicalTerm), "instrument")

	candidate := question("What instrument measures distance?", "NIRSpec", model.QuestionWhat, model.ShortAnswerTechnicalTerm)
	result := d.Check(candidate, "instrument")
	if !result.IsCircular {
		t.Fatalf("expected template loop to be flagged circular, got %+v", result)
	}
}

func TestCheckAcceptsNovelQuestion(t *testing.T) {
	d := New()
	d.Record(question("What agency launched the telescope?", "NASA", model.QuestionWhat, model.ShortAnswerProperNoun), "agency")

	candidate := question("Where does the telescope orbit?", "second Lagrange point", model.QuestionWhere, model.ShortAnswerLocation)
	result := d.Check(candidate, "orbit")
	if result.IsCircular {
		t.Fatalf("expected novel question to pass, got %+v", result)
	}
}

func TestCheckToleratesShortProperNounFragment(t *testing.T) {
	d := New()
	d.Record(question("Who designed the mirror?", "Ball Aerospace", model.QuestionWho, model.ShortAnswerProperNoun), "designer")

	candidate := question("What company based in Colorado built the sunshield for Ball Aerospace's instrument package?", "Northrop Grumman", model.QuestionWhat, model.ShortAnswerProperNoun)
	result := d.Check(candidate, "sunshield")
	if result.IsCircular {
		t.Fatalf("expected short proper-noun fragment overlap to be tolerated, got %+v", result)
	}
}
