package store

import (
	"context"
	"fmt"
	"regexp"
	"strings"
)

// MaxContentWords bounds the size of a single memory.
const MaxContentWords = 1000

var (
	keywordPattern = regexp.MustCompile(`^[a-z0-9]+$`)
	wordPattern    = regexp.MustCompile(`[a-zA-Z0-9]+`)
)

// Verdict is a quality oracle's judgement of candidate content.
type Verdict struct {
	Accepted bool
	Reason   string
}

// QualityOracle judges whether content is worth persisting under the given
// keywords. Implementations may be slow; callers bound them with the
// context. A returned error means the judgement could not be produced at
// all.
type QualityOracle interface {
	Evaluate(ctx context.Context, keywords []string, content string) (Verdict, error)
}

// ValidateKeywords checks that a keyword set can identify a memory: at
// least one keyword, each lowercase alphanumeric with at least one letter,
// no duplicates.
func ValidateKeywords(keywords []string) error {
	if len(keywords) == 0 {
		return &ErrValidation{Field: "keywords", Hint: "at least one keyword is required"}
	}

	seen := make(map[string]struct{}, len(keywords))
	for _, kw := range keywords {
		if !keywordPattern.MatchString(kw) {
			return &ErrValidation{
				Field: fmt.Sprintf("keyword %q", kw),
				Hint:  "keywords must contain only lowercase letters and digits",
			}
		}
		if !strings.ContainsFunc(kw, func(r rune) bool { return r >= 'a' && r <= 'z' }) {
			return &ErrValidation{
				Field: fmt.Sprintf("keyword %q", kw),
				Hint:  "keywords must contain at least one letter",
			}
		}
		if _, dup := seen[kw]; dup {
			return &ErrValidation{
				Field: fmt.Sprintf("keyword %q", kw),
				Hint:  "keywords must not repeat within one memory",
			}
		}
		seen[kw] = struct{}{}
	}
	return nil
}

// CountWords counts words in mixed-script text. CJK ideographs count one
// word each; the rest is counted as alphanumeric runs.
func CountWords(s string) int {
	cjk := 0
	var rest strings.Builder
	for _, r := range s {
		if r >= 0x4E00 && r <= 0x9FFF {
			cjk++
			rest.WriteByte(' ')
			continue
		}
		rest.WriteRune(r)
	}
	return cjk + len(wordPattern.FindAllString(rest.String(), -1))
}

// ValidateContentSize rejects content over the word limit.
func ValidateContentSize(content string) error {
	if n := CountWords(content); n > MaxContentWords {
		return &ErrValidation{
			Field: "content",
			Hint:  fmt.Sprintf("content is %d words but the limit is %d; split it into separate memories", n, MaxContentWords),
		}
	}
	return nil
}

// validateContent runs the full content gate: size first, then the quality
// oracle. Oracle failures and cancellations both surface as validation
// errors so an abandoned evaluation is indistinguishable from a rejection.
func validateContent(ctx context.Context, oracle QualityOracle, keywords []string, content string) error {
	if err := ValidateContentSize(content); err != nil {
		return err
	}
	if oracle == nil {
		return nil
	}

	verdict, err := oracle.Evaluate(ctx, keywords, content)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return &ErrValidation{Field: "content", Hint: "quality evaluation was cancelled", cause: ctxErr}
		}
		return &ErrValidation{Field: "content", Hint: "quality evaluation failed; try again", cause: err}
	}
	if !verdict.Accepted {
		reason := verdict.Reason
		if reason == "" {
			reason = "content was judged not worth storing"
		}
		return &ErrValidation{
			Field: "content",
			Hint: reason + "; rename the keywords or split out unrelated content, " +
				"and replace redundant code or quotes with a pointer to their source",
		}
	}
	return nil
}
