package conversation

import (
	"context"
	"testing"

	"github.com/hammamikhairi/glowroutine/internal/domain"
	"github.com/hammamikhairi/glowroutine/internal/logger"
)

func TestKeywordParser(t *testing.T) {
	log := logger.New(logger.LevelOff, nil)
	parser := NewKeywordParser(log)
	ctx := context.Background()

	tests := []struct {
		input       string
		wantType    domain.IntentType
		wantPayload string
	}{
		// Done
		{"done", domain.IntentDone, ""},
		{"d", domain.IntentDone, ""},
		{"applied", domain.IntentDone, ""},

		// Next
		{"next", domain.IntentNext, ""},
		{"n", domain.IntentNext, ""},

		// Skips
		{"skip", domain.IntentSkipStep, ""},
		{"s", domain.IntentSkipStep, ""},
		{"skip wait", domain.IntentSkipWait, ""},
		{"SKIP TIMER", domain.IntentSkipWait, ""},
		{"skip product", domain.IntentSkipProduct, ""},

		// Status
		{"status", domain.IntentStatus, ""},
		{"xp", domain.IntentStatus, ""},

		// Quit
		{"quit", domain.IntentQuit, ""},
		{"q", domain.IntentQuit, ""},

		// Help
		{"help", domain.IntentHelp, ""},
		{"?", domain.IntentHelp, ""},

		// Sections
		{"sections", domain.IntentListSections, ""},
		{"morning", domain.IntentStartSection, "morning"},
		{"Evening", domain.IntentStartSection, "evening"},
		{"start exercises", domain.IntentStartSection, "exercises"},
		{"go Morning", domain.IntentStartSection, "morning"},

		// Pending product
		{"have", domain.IntentHaveProduct, ""},
		{"i have it", domain.IntentHaveProduct, ""},
		{"have Glow Tonic 5%", domain.IntentHaveProduct, "Glow Tonic 5%"},
		{"got CeraVe", domain.IntentHaveProduct, "CeraVe"},
		{"later", domain.IntentDontHave, ""},
		{"don't have it", domain.IntentDontHave, ""},
		{"defer 3", domain.IntentDeferProduct, "3"},
		{"remind me in 7 days", domain.IntentDeferProduct, "7"},
		{"1", domain.IntentDeferProduct, "1"},
		{"cancel", domain.IntentCancel, ""},

		// Unknown
		{"exfoliate the cat", domain.IntentUnknown, "exfoliate the cat"},
		{"", domain.IntentUnknown, ""},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			intent, err := parser.Parse(ctx, tt.input)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if intent.Type != tt.wantType {
				t.Errorf("input=%q: got type %s, want %s", tt.input, intent.Type, tt.wantType)
			}
			if intent.Payload != tt.wantPayload {
				t.Errorf("input=%q: got payload %q, want %q", tt.input, intent.Payload, tt.wantPayload)
			}
		})
	}
}
