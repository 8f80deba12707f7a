package fix

import (
	"fmt"
	"strings"

	"github.com/melih/lighthouse-autobuild/internal/core/domain"
)

// Select picks the reaction to the errors classified from a failed attempt.
//
// Local rewrites win whenever at least one applies. Otherwise the decision is
// delegated to a generator while attempts remain; on the final attempt there
// is no build left to validate a generated definition, so Select gives up.
func Select(errs []domain.ClassifiedError, current string, attempt, maxRetries int, manifest []string) Decision {
	if len(errs) == 0 {
		return Decision{Kind: KindGiveUp, Reason: "no recognised errors in build output"}
	}

	if def, applied := applyRules(errs, current); len(applied) > 0 {
		return Decision{
			Kind:       KindRewrite,
			Definition: def,
			Rules:      applied,
			Reason:     "applied " + strings.Join(applied, ", "),
		}
	}

	if attempt < maxRetries {
		return Decision{
			Kind: KindDelegate,
			Prompt: PromptContext{
				Definition: current,
				Manifest:   manifest,
				Errors:     errs,
				Attempt:    attempt,
				MaxRetries: maxRetries,
			},
			Reason: fmt.Sprintf("%d error(s) without a local rewrite", len(errs)),
		}
	}

	return Decision{Kind: KindGiveUp, Reason: fmt.Sprintf("no local rewrite and attempt %d reached the limit of %d", attempt, maxRetries)}
}
