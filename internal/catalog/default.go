package catalog

import "github.com/stemsi/wellcheck-backend/internal/model"

const questionsPerSection = 8

var agreementScale = []string{
	"Not true for me",
	"Sometimes true",
	"Often true",
	"Almost always true",
}

type sectionItems struct {
	key        string
	name       string
	statements []string
}

// The last two statements of every section are positively worded and
// scored in reverse.
var defaultSections = []sectionItems{
	{
		key:  "A",
		name: "Focus & Attention",
		statements: []string{
			"I feel mentally tired before I begin my work",
			"I delay starting tasks that feel big or difficult.",
			"My mind keeps jumping between thoughts when I try to study.",
			"I feel pressure or stress when I need to concentrate.",
			"I feel overwhelmed when I have many things to do.",
			"Even simple work feels exhausting sometimes.",
			"I can stay focused once I begin a task.",
			"I feel calm and steady while working on something.",
		},
	},
	{
		key:  "B",
		name: "Self-Esteem & Inner Confidence",
		statements: []string{
			"I am very hard on myself when I make mistakes.",
			"I compare myself to others and feel less capable.",
			"I doubt my abilities even when I try sincerely.",
			"I feel disappointed in myself easily.",
			"I replay my mistakes in my mind for a long time.",
			"I judge myself more harshly than others judge me.",
			"I feel okay about myself even when I don't do well.",
			"I can encourage myself after making a mistake.",
		},
	},
	{
		key:  "C",
		name: "Social Confidence & Interaction",
		statements: []string{
			"I hesitate to speak up even when I know the answer.",
			"I worry about what others think of me.",
			"I feel awkward or uncomfortable in group situations.",
			"I avoid participating in class discussions.",
			"I stay quiet to avoid saying the wrong thing.",
			"I feel left out or invisible at school.",
			"I feel comfortable sharing my thoughts in groups.",
			"I feel confident interacting with classmates.",
		},
	},
	{
		key:  "D",
		name: "Digital Hygiene & Self-Control",
		statements: []string{
			"I use my phone or screen when I feel bored or restless.",
			"I lose track of time while scrolling or gaming.",
			"I feel irritated when my screen time is limited.",
			"I check my phone even when I know I should not.",
			"I use screens to avoid uncomfortable feelings or tasks.",
			"I find it hard to stop using screens once I start.",
			"I can put my phone away when I decide to.",
			"I feel comfortable being offline for some time.",
		},
	},
}

// Default returns the standard 32-question wellness instrument.
func Default() *model.Instrument {
	inst := &model.Instrument{
		Title:       "Student Wellness Assessment",
		Description: "A comprehensive 32-question assessment to understand your current mental wellness and skill areas.",
		Buckets: []model.Bucket{
			{Label: "Skill Stable", MinScore: 8, MaxScore: 14, Color: "#4CAF50"},
			{Label: "Skill Emerging", MinScore: 15, MaxScore: 22, Color: "#FF9800"},
			{Label: "Skill Support Needed", MinScore: 23, MaxScore: 32, Color: "#F44336"},
		},
		IsActive: true,
	}

	for _, sec := range defaultSections {
		inst.Sections = append(inst.Sections, model.Section{Key: sec.key, DisplayName: sec.name})
		for i, text := range sec.statements {
			positive := i >= questionsPerSection-2
			inst.Questions = append(inst.Questions, model.Question{
				Text:       text,
				Section:    sec.key,
				IsPositive: positive,
				Options:    scaleOptions(positive),
			})
		}
	}

	inst.ApplyDefaults()
	return inst
}

func scaleOptions(reversed bool) []model.Option {
	opts := make([]model.Option, len(agreementScale))
	for i, label := range agreementScale {
		marks := i + 1
		if reversed {
			marks = len(agreementScale) - i
		}
		opts[i] = model.Option{Label: label, Marks: marks}
	}
	return opts
}
