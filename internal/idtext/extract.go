// Package idtext pulls a fixed-length numeric ID out of noisy OCR text.
//
// The cascade is deliberately lossy: it keeps the trailing MinDigits digits of
// the best digit run and prepends the scheme prefix. Rules are tried in order
// and the first one that matches wins.
package idtext

import (
	"errors"
	"fmt"
	"regexp"

	"golang.org/x/text/width"
)

const (
	// DefaultPrefix is prepended to every extracted ID.
	DefaultPrefix = "HS"
	// DefaultMinDigits is the number of digits an ID keeps.
	DefaultMinDigits = 7
)

// ErrIDNotFound is returned by ExtractStrict when no rule matched.
var ErrIDNotFound = errors.New("could not extract ID number")

// Tier names the cascade rule that produced an ID.
type Tier int

const (
	TierNone Tier = iota
	TierEightDigit
	TierSevenPlusDigit
	TierLongestDigitRun
)

// Tiers lists every Tier value in cascade order, TierNone last.
var Tiers = []Tier{TierEightDigit, TierSevenPlusDigit, TierLongestDigitRun, TierNone}

func (t Tier) String() string {
	switch t {
	case TierEightDigit:
		return "eight_digit"
	case TierSevenPlusDigit:
		return "seven_plus_digit"
	case TierLongestDigitRun:
		return "longest_digit_run"
	case TierNone:
		return "none"
	default:
		return fmt.Sprintf("tier(%d)", int(t))
	}
}

// MarshalText implements encoding.TextMarshaler.
func (t Tier) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// ExtractedID is the outcome of one extraction. Raw is the OCR text as
// given and Match the digit run the rule picked. ID and Match are empty for
// TierNone.
type ExtractedID struct {
	Raw   string `json:"raw,omitempty"   yaml:"raw,omitempty"`
	Match string `json:"match,omitempty" yaml:"match,omitempty"`
	ID    string `json:"id,omitempty"    yaml:"id,omitempty"`
	Tier  Tier   `json:"tier"            yaml:"tier"`
}

// Found reports whether a rule matched.
func (x ExtractedID) Found() bool {
	return x.Tier != TierNone
}

// Extractor runs the cascade. The zero value is not usable; use New.
type Extractor struct {
	prefix    string
	minDigits int

	exact   *regexp.Regexp
	atLeast *regexp.Regexp
}

var digitRun = regexp.MustCompile(`\d+`)

// New builds an Extractor for IDs of minDigits digits with the given prefix.
func New(prefix string, minDigits int) (*Extractor, error) {
	if minDigits < 1 {
		return nil, fmt.Errorf("minimum digits must be positive, got %d", minDigits)
	}
	return &Extractor{
		prefix:    prefix,
		minDigits: minDigits,
		exact:     regexp.MustCompile(fmt.Sprintf(`\b(\d{%d})\b`, minDigits+1)),
		atLeast:   regexp.MustCompile(fmt.Sprintf(`\b(\d{%d,})\b`, minDigits)),
	}, nil
}

// Default returns the extractor for "HS" + 7 digits.
func Default() *Extractor {
	e, _ := New(DefaultPrefix, DefaultMinDigits)
	return e
}

// Normalize folds full-width and other compatibility digits to ASCII.
func Normalize(text string) string {
	return width.Fold.String(text)
}

// Extract runs the cascade over text.
func (e *Extractor) Extract(text string) ExtractedID {
	normalized := Normalize(text)

	if m := e.exact.FindStringSubmatch(normalized); m != nil {
		return e.result(text, m[1], TierEightDigit)
	}
	if m := e.atLeast.FindStringSubmatch(normalized); m != nil {
		return e.result(text, m[1], TierSevenPlusDigit)
	}

	longest := ""
	for _, run := range digitRun.FindAllString(normalized, -1) {
		if len(run) > len(longest) {
			longest = run
		}
	}
	if len(longest) >= e.minDigits {
		return e.result(text, longest, TierLongestDigitRun)
	}

	return ExtractedID{Raw: text, Tier: TierNone}
}

// ExtractStrict is Extract but reports a miss as ErrIDNotFound.
func (e *Extractor) ExtractStrict(text string) (ExtractedID, error) {
	id := e.Extract(text)
	if !id.Found() {
		return id, ErrIDNotFound
	}
	return id, nil
}

func (e *Extractor) result(text, run string, tier Tier) ExtractedID {
	return ExtractedID{
		Raw:   text,
		Match: run,
		ID:    e.prefix + run[len(run)-e.minDigits:],
		Tier:  tier,
	}
}

var unsafeFilenameChars = regexp.MustCompile(`[^a-zA-Z0-9]`)

// SanitizeFilename replaces every character outside [a-zA-Z0-9] with '_'.
func SanitizeFilename(s string) string {
	return unsafeFilenameChars.ReplaceAllString(s, "_")
}
