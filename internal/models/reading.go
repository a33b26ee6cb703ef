// Package models defines the domain types for the reader tools.
package models

import "time"

// WordInfo is a dictionary entry for a single word.
type WordInfo struct {
	Word               string   `json:"word"`
	Definition         string   `json:"definition"`
	Translation        string   `json:"translation"`
	Pronunciation      string   `json:"pronunciation"`
	PartOfSpeech       string   `json:"partOfSpeech"`
	Example            string   `json:"example"`
	ExampleTranslation string   `json:"exampleTranslation"`
	Synonyms           []string `json:"synonyms"`
	Antonyms           []string `json:"antonyms"`
	CulturalNote       string   `json:"cultural_note,omitempty"`
}

// SentenceInfo is a paraphrase of one sentence.
type SentenceInfo struct {
	OriginalSentence  string `json:"original_sentence"`
	ParaphrasePersian string `json:"paraphrase_persian"`
	ParaphraseEnglish string `json:"paraphrase_english"`
	Explanation       string `json:"explanation"`
}

// NarrativeStructure splits a story in three acts.
type NarrativeStructure struct {
	Beginning string `json:"beginning"`
	Middle    string `json:"middle"`
	End       string `json:"end"`
}

// NarrativeAnalysis holds literary insights about a text.
type NarrativeAnalysis struct {
	NarrativeStructure NarrativeStructure `json:"narrative_structure"`
	Themes             []string           `json:"themes"`
	Tone               string             `json:"tone"`
	KeyInsights        []string           `json:"key_insights"`
	Symbolism          string             `json:"symbolism"`
}

// Summary lengths.
const (
	LengthShort  = "short"
	LengthMedium = "medium"
	LengthLong   = "long"
)

// Summary is a condensed version of a text.
type Summary struct {
	FullSummary string   `json:"full_summary"`
	KeyPoints   []string `json:"key_points"`
	Length      string   `json:"length"`
}

// Question is a multiple-choice comprehension question.
type Question struct {
	Question      string   `json:"question"`
	Options       []string `json:"options"`
	CorrectAnswer string   `json:"correct_answer"`
	Explanation   string   `json:"explanation"`
}

// QuestionSet is the envelope the model fills in.
type QuestionSet struct {
	Questions []Question `json:"questions"`
}

// TimelineEvent is one dated event of a story.
type TimelineEvent struct {
	Event       string   `json:"event"`
	Description string   `json:"description"`
	Date        string   `json:"date"`
	Entities    []string `json:"entities"`
	Importance  string   `json:"importance"`
}

// Timeline is the envelope the model fills in.
type Timeline struct {
	Events []TimelineEvent `json:"events"`
}

// Settings are the reader preferences shared by every tool.
type Settings struct {
	HeritageMode     bool      `json:"heritage_mode"`
	ShowTranslations bool      `json:"show_translations"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// SettingsPatch is a partial settings update; nil fields are left alone.
type SettingsPatch struct {
	HeritageMode     *bool `json:"heritage_mode,omitempty"`
	ShowTranslations *bool `json:"show_translations,omitempty"`
}

// Apply returns s with the non-nil fields of p set.
func (p SettingsPatch) Apply(s Settings) Settings {
	if p.HeritageMode != nil {
		s.HeritageMode = *p.HeritageMode
	}
	if p.ShowTranslations != nil {
		s.ShowTranslations = *p.ShowTranslations
	}
	return s
}

// Empty reports whether p changes nothing.
func (p SettingsPatch) Empty() bool {
	return p.HeritageMode == nil && p.ShowTranslations == nil
}
