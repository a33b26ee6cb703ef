package schema

import "github.com/starford/dastan/internal/models"

// Lengths accepted for a summary.
var Lengths = []string{models.LengthShort, models.LengthMedium, models.LengthLong}

// Importance levels of a timeline event.
var Importance = []string{"low", "medium", "high"}

// WordInfo is the canonical lookup shape. cultural_note is only asked for in heritage mode.
var WordInfo = Descriptor{
	Name: "WordInfo",
	Fields: []Field{
		{Name: "word", Kind: KindString},
		{Name: "definition", Kind: KindString, Description: "Definition in Persian"},
		{Name: "translation", Kind: KindString, Description: "English translation"},
		{Name: "pronunciation", Kind: KindString, Description: "IPA pronunciation"},
		{Name: "partOfSpeech", Kind: KindString},
		{Name: "example", Kind: KindString, Description: "Example sentence in Persian"},
		{Name: "exampleTranslation", Kind: KindString},
		{Name: "synonyms", Kind: KindStringArray},
		{Name: "antonyms", Kind: KindStringArray},
		{Name: "cultural_note", Kind: KindString, Optional: true},
	},
}

var SentenceInfo = Descriptor{
	Name: "sentence_paraphrase",
	Fields: []Field{
		{Name: "original_sentence", Kind: KindString},
		{Name: "paraphrase_persian", Kind: KindString, Description: "Simplified Persian paraphrase"},
		{Name: "paraphrase_english", Kind: KindString},
		{Name: "explanation", Kind: KindString},
	},
}

var NarrativeAnalysis = Descriptor{
	Name: "narrative_analysis",
	Fields: []Field{
		{Name: "narrative_structure", Kind: KindObject, Fields: []Field{
			{Name: "beginning", Kind: KindString},
			{Name: "middle", Kind: KindString},
			{Name: "end", Kind: KindString},
		}},
		{Name: "themes", Kind: KindStringArray},
		{Name: "tone", Kind: KindString},
		{Name: "key_insights", Kind: KindStringArray},
		{Name: "symbolism", Kind: KindString},
	},
}

var Summary = Descriptor{
	Name: "summary_response",
	Fields: []Field{
		{Name: "full_summary", Kind: KindString},
		{Name: "key_points", Kind: KindStringArray},
		{Name: "length", Kind: KindEnum, Enum: Lengths},
	},
}

var Questions = Descriptor{
	Name: "questions",
	Fields: []Field{
		{Name: "questions", Kind: KindObjectArray, Fields: []Field{
			{Name: "question", Kind: KindString},
			{Name: "options", Kind: KindStringArray},
			{Name: "correct_answer", Kind: KindString, Description: "Must be one of options"},
			{Name: "explanation", Kind: KindString},
		}},
	},
}

var Timeline = Descriptor{
	Name: "timeline",
	Fields: []Field{
		{Name: "events", Kind: KindObjectArray, Fields: []Field{
			{Name: "event", Kind: KindString},
			{Name: "description", Kind: KindString},
			{Name: "date", Kind: KindString},
			{Name: "entities", Kind: KindStringArray},
			{Name: "importance", Kind: KindEnum, Enum: Importance},
		}},
	},
}

// All lists every descriptor in the catalog.
func All() []Descriptor {
	return []Descriptor{WordInfo, SentenceInfo, NarrativeAnalysis, Summary, Questions, Timeline}
}

// ByName returns the catalog descriptor with the given schema name.
func ByName(name string) (Descriptor, bool) {
	for _, d := range All() {
		if d.Name == name {
			return d, true
		}
	}
	return Descriptor{}, false
}
