package ai

import "context"

// StudyGuideInput describes the guide a learner asked for.
type StudyGuideInput struct {
	Language string
	Level    string
	Topic    string
}

// StudyGuideSection is one chapter of a generated guide.
type StudyGuideSection struct {
	Heading   string   `json:"heading"`
	Content   string   `json:"content"`
	Exercises []string `json:"exercises,omitempty"`
}

// StudyGuide is the structured output returned by a generator.
type StudyGuide struct {
	Title    string              `json:"title"`
	Summary  string              `json:"summary"`
	Sections []StudyGuideSection `json:"sections"`
	Model    string              `json:"-"`
}

// StudyGuideGenerator describes an AI model capable of writing study guides.
type StudyGuideGenerator interface {
	Generate(ctx context.Context, input StudyGuideInput) (StudyGuide, error)
}
