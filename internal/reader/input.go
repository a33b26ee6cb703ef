package reader

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/dastan/internal/apperr"
	"github.com/starford/dastan/internal/schema"
)

// maxTextRunes bounds whole-text inputs.
const maxTextRunes = 50000

// notBlank rejects strings made only of whitespace, which Required lets through.
var notBlank = validation.By(func(value any) error {
	if s, _ := value.(string); s != "" && strings.TrimSpace(s) == "" {
		return errors.New("cannot be blank")
	}
	return nil
})

// LookupInput is the request of the word lookup tool.
// A nil HeritageMode falls back to the saved setting.
type LookupInput struct {
	Word         string `json:"word"`
	Context      string `json:"context"`
	HeritageMode *bool  `json:"heritage_mode"`
}

func (in LookupInput) Validate() error {
	return validation.ValidateStruct(&in,
		validation.Field(&in.Word, validation.Required, notBlank, validation.RuneLength(1, 200)),
		validation.Field(&in.Context, validation.RuneLength(0, maxTextRunes)),
	)
}

// ParaphraseInput is the request of the sentence paraphrase tool.
type ParaphraseInput struct {
	Sentence     string `json:"sentence"`
	HeritageMode *bool  `json:"heritage_mode"`
}

func (in ParaphraseInput) Validate() error {
	return validation.ValidateStruct(&in,
		validation.Field(&in.Sentence, validation.Required, notBlank, validation.RuneLength(1, 2000)),
	)
}

// TextInput is the request of the whole-text tools.
type TextInput struct {
	Text string `json:"text"`
}

func (in TextInput) Validate() error {
	return validation.ValidateStruct(&in,
		validation.Field(&in.Text, validation.Required, notBlank, validation.RuneLength(1, maxTextRunes)),
	)
}

// SummarizeInput is the request of the summary tool.
type SummarizeInput struct {
	Text   string `json:"text"`
	Length string `json:"length"`
}

func (in SummarizeInput) Validate() error {
	return validation.ValidateStruct(&in,
		validation.Field(&in.Text, validation.Required, notBlank, validation.RuneLength(1, maxTextRunes)),
		validation.Field(&in.Length, validation.Required, validation.In(stringsToAny(schema.Lengths)...)),
	)
}

func validate(v validation.Validatable) error {
	err := v.Validate()
	if err == nil {
		return nil
	}
	var errs validation.Errors
	if errors.As(err, &errs) && len(errs) > 0 {
		fields := slices.Sorted(maps.Keys(errs))
		return apperr.Invalid(fields[0], errs[fields[0]].Error())
	}
	return fmt.Errorf("%w: %v", apperr.ErrInvalidRequest, err)
}

func stringsToAny(in []string) []any {
	out := make([]any, len(in))
	for i, s := range in {
		out[i] = s
	}
	return out
}
