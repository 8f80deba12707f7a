// Package fix decides how to react to a failed build: rewrite the definition
// locally, delegate to a definition generator, or give up.
package fix

// Kind tags the variant held by a Decision.
type Kind int

const (
	KindGiveUp Kind = iota
	KindRewrite
	KindDelegate
)

func (k Kind) String() string {
	switch k {
	case KindRewrite:
		return "rewrite"
	case KindDelegate:
		return "delegate"
	default:
		return "give_up"
	}
}

// Decision is the outcome of Select. Only the fields of the tagged kind are
// meaningful: Definition and Rules for KindRewrite, Prompt for KindDelegate.
type Decision struct {
	Kind       Kind
	Definition string
	Rules      []string
	Prompt     PromptContext
	Reason     string
}
