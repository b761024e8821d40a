package domain

// IntentType classifies what the user wants to do.
type IntentType int

const (
	IntentUnknown IntentType = iota
	IntentListSections
	IntentStartSection
	IntentDone
	IntentNext
	IntentSkipStep
	IntentSkipWait
	IntentStatus
	IntentQuit
	IntentHelp
	IntentHaveProduct  // pending product: "I have it", payload = product name
	IntentDontHave     // pending product: "I don't have it"
	IntentDeferProduct // payload = days
	IntentSkipProduct  // pending product: stop reminding me
	IntentCancel
)

// String returns a human-readable intent type.
func (i IntentType) String() string {
	switch i {
	case IntentListSections:
		return "list_sections"
	case IntentStartSection:
		return "start_section"
	case IntentDone:
		return "done"
	case IntentNext:
		return "next"
	case IntentSkipStep:
		return "skip_step"
	case IntentSkipWait:
		return "skip_wait"
	case IntentStatus:
		return "status"
	case IntentQuit:
		return "quit"
	case IntentHelp:
		return "help"
	case IntentHaveProduct:
		return "have_product"
	case IntentDontHave:
		return "dont_have"
	case IntentDeferProduct:
		return "defer_product"
	case IntentSkipProduct:
		return "skip_product"
	case IntentCancel:
		return "cancel"
	default:
		return "unknown"
	}
}

// Intent represents a parsed user action.
type Intent struct {
	Type    IntentType
	Payload string // optional context, e.g. section name or product name
}

// intentNames maps snake_case names to IntentType values.
var intentNames = map[string]IntentType{
	"list_sections": IntentListSections,
	"start_section": IntentStartSection,
	"done":          IntentDone,
	"next":          IntentNext,
	"skip_step":     IntentSkipStep,
	"skip_wait":     IntentSkipWait,
	"status":        IntentStatus,
	"quit":          IntentQuit,
	"help":          IntentHelp,
	"have_product":  IntentHaveProduct,
	"dont_have":     IntentDontHave,
	"defer_product": IntentDeferProduct,
	"skip_product":  IntentSkipProduct,
	"cancel":        IntentCancel,
	"unknown":       IntentUnknown,
}

// IntentFromString converts a snake_case intent name to an IntentType.
// Returns IntentUnknown for unrecognized names.
func IntentFromString(name string) IntentType {
	if t, ok := intentNames[name]; ok {
		return t
	}
	return IntentUnknown
}
