package morph

// Category is the closed set of lexical categories the model distinguishes.
type Category int

const (
	Other Category = iota
	Noun
	Verb
	Interjection
)

// IPA dictionary part-of-speech labels.
const (
	posNoun         = "名詞"
	posVerb         = "動詞"
	posInterjection = "感動詞"
)

// ParseCategory maps the primary IPA part of speech to a Category.
func ParseCategory(pos string) Category {
	switch pos {
	case posNoun:
		return Noun
	case posVerb:
		return Verb
	case posInterjection:
		return Interjection
	default:
		return Other
	}
}

// CategoryFromLabel is the inverse of Category.String.
func CategoryFromLabel(label string) Category {
	switch label {
	case "noun":
		return Noun
	case "verb":
		return Verb
	case "interjection":
		return Interjection
	default:
		return Other
	}
}

// Salient reports whether terms of this category take part in topical comparison.
func (c Category) Salient() bool {
	return c == Noun || c == Verb || c == Interjection
}

func (c Category) String() string {
	switch c {
	case Noun:
		return "noun"
	case Verb:
		return "verb"
	case Interjection:
		return "interjection"
	default:
		return "other"
	}
}
