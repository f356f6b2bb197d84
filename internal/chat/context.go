package chat

import (
	"fmt"
	"time"

	"github.com/parley-chat/parley/internal/llm"
	"github.com/parley-chat/parley/internal/models"
	"github.com/pkoukk/tiktoken-go"
)

const contextEncoding = "cl100k_base"

// Assembler converts a conversation's persisted messages into the turn list
// sent to the completion service. The system turn embeds the current date and
// time, which is why context is rebuilt per request rather than stored.
type Assembler struct {
	enc *tiktoken.Tiktoken
}

// NewAssembler builds an assembler. The tiktoken encoding backs the prompt
// size estimate only, so a failed load (e.g. no network to fetch the BPE
// table) disables the estimate instead of failing startup.
func NewAssembler() *Assembler {
	enc, err := tiktoken.GetEncoding(contextEncoding)
	if err != nil {
		enc = nil
	}
	return &Assembler{enc: enc}
}

// Assemble returns the system turn followed by every persisted message in
// created-at order, role-mapped for the completion service. The latest user
// message is expected to be persisted already, so it arrives via history and
// is never appended twice. No truncation is applied.
func (a *Assembler) Assemble(now time.Time, history []models.Message) []llm.Turn {
	turns := make([]llm.Turn, 0, len(history)+1)
	turns = append(turns, llm.Turn{
		Role:    llm.RoleSystem,
		Content: systemTurn(now),
	})
	for _, msg := range history {
		role := llm.RoleUser
		if msg.Role == models.RoleAI {
			role = llm.RoleAssistant
		}
		turns = append(turns, llm.Turn{Role: role, Content: msg.Text})
	}
	return turns
}

// EstimateTokens reports the approximate size of the assembled context. Used
// for logging only; the service sends the full history regardless. Returns 0
// when no encoding is available.
func (a *Assembler) EstimateTokens(turns []llm.Turn) int {
	if a.enc == nil {
		return 0
	}
	total := 0
	for _, turn := range turns {
		total += len(a.enc.Encode(turn.Content, nil, nil))
	}
	return total
}

func systemTurn(now time.Time) string {
	return fmt.Sprintf("Today is %s, and the current time is %s. Please use this real-time information if needed.",
		now.Format("Monday, January 2, 2006"),
		now.Format("03:04:05 PM"))
}
