package model

// Polarity is the vocabulary-independent meaning of an answer state.
type Polarity int

const (
	PolarityUnknown Polarity = iota
	PolarityPositive
	PolarityNegative
)

// Vocabulary is the pair of answer states an inspection type uses.
type Vocabulary struct {
	Positive AnswerState
	Negative AnswerState
}

var (
	receptionVocabulary = Vocabulary{Positive: StateConforme, Negative: StateNonConforme}
	deliveryVocabulary  = Vocabulary{Positive: StateAccepted, Negative: StateRejected}
)

// VocabularyFor returns the answer vocabulary of the inspection type.
func VocabularyFor(t InspectionType) Vocabulary {
	if t == TypeDelivery {
		return deliveryVocabulary
	}
	return receptionVocabulary
}

// Polarity maps s to positive or negative within v. States of the other
// vocabulary are PolarityUnknown.
func (v Vocabulary) Polarity(s AnswerState) Polarity {
	switch s {
	case v.Positive:
		return PolarityPositive
	case v.Negative:
		return PolarityNegative
	}
	return PolarityUnknown
}

// IsNegative reports whether s is a negative state of either vocabulary.
func (s AnswerState) IsNegative() bool {
	return s == StateNonConforme || s == StateRejected
}
