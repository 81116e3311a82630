package llm

import (
	"fmt"
	"strings"
)

// Profile is the chatbot configuration that shapes the system prompt.
type Profile struct {
	BusinessName string
	BotName      string
	SystemPrompt string
	Topics       []string
}

// BuildSystemPrompt returns the chatbot's own prompt when configured and a
// generic assistant prompt otherwise. Known intent names are listed so the
// model stays on the tenant's topics.
func BuildSystemPrompt(p Profile) string {
	var sb strings.Builder

	if strings.TrimSpace(p.SystemPrompt) != "" {
		sb.WriteString(strings.TrimSpace(p.SystemPrompt))
		sb.WriteString("\n")
	} else {
		name := p.BusinessName
		if name == "" {
			name = "this business"
		}
		sb.WriteString(fmt.Sprintf("You are the WhatsApp assistant for %s.\n", name))
		if p.BotName != "" {
			sb.WriteString(fmt.Sprintf("Your name is %s.\n", p.BotName))
		}
	}

	if len(p.Topics) > 0 {
		sb.WriteString("\nTopics customers usually ask about:\n")
		for _, topic := range p.Topics {
			if strings.TrimSpace(topic) == "" {
				continue
			}
			sb.WriteString(fmt.Sprintf("- %s\n", topic))
		}
	}

	sb.WriteString("\nInstructions:\n")
	sb.WriteString("- Answer briefly, this is a chat on WhatsApp\n")
	sb.WriteString("- If you do not know the answer, say so honestly\n")
	sb.WriteString("- Do not invent prices, stock or policies\n")

	return sb.String()
}
