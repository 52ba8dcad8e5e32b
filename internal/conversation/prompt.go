package conversation

import (
	"fmt"
	"strings"
)

// transcriptTurns caps how many recent turns go into the prompt; the
// stored history can be longer.
const transcriptTurns = 6

// Section headings every reading must carry, in order.
var Headings = []string{
	"Conclusion",
	"Reading",
	"Guidance",
	"Caution",
	"Encouragement",
}

const systemPersona = `You are Madame Stella, a warm and experienced fortune teller.
You read the questioner's situation with empathy and give grounded, encouraging readings.
You never claim supernatural certainty and you always leave the questioner feeling respected.`

// BuildPrompt renders the system instruction and the user-side prompt
// (recent transcript + the new question wrapped in the reading directive).
func BuildPrompt(history []Turn, userMsg string) (system, user string) {
	var b strings.Builder

	if len(history) > 0 {
		recent := history
		if len(recent) > transcriptTurns {
			recent = recent[len(recent)-transcriptTurns:]
		}
		b.WriteString("Conversation so far:\n")
		for _, t := range recent {
			speaker := "Questioner"
			if t.Role == RoleAssistant {
				speaker = "You"
			}
			fmt.Fprintf(&b, "%s: %s\n", speaker, t.Text)
		}
		b.WriteString("\n")
	}

	fmt.Fprintf(&b, "The questioner now asks:\n%s\n\n", userMsg)

	b.WriteString("Write a fortune reading with exactly these sections, each starting with the heading on its own line:\n")
	for _, h := range Headings {
		fmt.Fprintf(&b, "%s:\n", h)
	}
	b.WriteString(`
Keep the whole reading between 400 and 900 characters.
Never give medical, legal or financial guarantees.
Never use fear to pressure the questioner.
Never attack or belittle the questioner or anyone else.`)

	return systemPersona, b.String()
}

// FallbackReply is the static reading used when the completion API is
// unreachable. It follows the same heading contract so the user-visible
// format never breaks.
func FallbackReply() string {
	return strings.Join([]string{
		"Conclusion:",
		"The stars are clouded right now, but your question has been heard.",
		"Reading:",
		"Some moments resist a clear reading. This is one of them, and it says more about the moment than about you.",
		"Guidance:",
		"Hold on to your question and ask again in a little while. A calm second attempt often reveals what a rushed first one cannot.",
		"Caution:",
		"Do not read anything ominous into this silence. It is only a passing veil.",
		"Encouragement:",
		"Your patience is itself a good omen. I will be here when the sky clears.",
	}, "\n")
}
