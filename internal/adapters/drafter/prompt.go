// Package drafter generates reply drafts for customer reviews.
package drafter

import (
	"fmt"
	"strings"

	"reviewflow/internal/domain"
)

var toneWording = map[domain.Tone]string{
	domain.ToneProfessional: "professional",
	domain.ToneFriendly:     "friendly",
	domain.ToneEmpathetic:   "empathetic",
	domain.ToneWitty:        "witty",
}

func systemMessage(businessName string) string {
	return fmt.Sprintf("You are a customer-relations expert for the business %q.", businessName)
}

func buildPrompt(pc domain.PromptContext) string {
	tone := toneWording[pc.Tone]
	if tone == "" {
		tone = toneWording[domain.ToneProfessional]
	}

	var b strings.Builder
	b.WriteString("Write a reply to the following customer review.\n\n")
	b.WriteString("Review details:\n")
	fmt.Fprintf(&b, "- Customer: %s\n", pc.AuthorName)
	fmt.Fprintf(&b, "- Rating: %d/5\n", pc.Rating)
	fmt.Fprintf(&b, "- Comment: %q\n\n", pc.ReviewText)
	b.WriteString("Guidelines:\n")
	fmt.Fprintf(&b, "- Tone: %s\n", tone)
	b.WriteString("- Be concise, polite and personal.\n")
	b.WriteString("- If the review is negative, be empathetic and offer a solution or invite the customer to contact support.\n")
	b.WriteString("- If the review is positive, thank the customer warmly.\n")
	fmt.Fprintf(&b, "- Do not sign with placeholders like \"[Your Name]\"; sign simply as \"The %s team\".\n", pc.BusinessName)
	return b.String()
}
