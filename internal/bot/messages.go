package bot

import (
	"fmt"
	"time"

	"github.com/example/fortune-bot/internal/commerce"
	"github.com/example/fortune-bot/internal/entitlement"
)

// User-facing message catalog. Every business failure maps to one of
// these; raw errors never reach the user.
const (
	msgHelp = `Welcome to Madame Stella's fortune readings.

How it works:
- Send your order number (e.g. ST999999) to unlock readings.
- Then simply ask your question and receive your reading.

Commands:
- "help" or "menu" shows this message.
- "reset" clears our conversation history.`

	msgHistoryReset = "Our conversation history has been cleared. Ask away - we start fresh."

	msgPurchaseGuide = "To receive a reading, please purchase a plan in the shop first, then send me your order number (e.g. ST999999)."

	msgOrderNotFound = "I could not find an order with that number. Please check it against your purchase confirmation and try again."

	msgOrderNotPaid = "That order has not been paid yet. Once the payment is confirmed, send me the order number again."

	msgPlanUnknown = "I found your order but could not identify the purchased plan. Please contact support and we will sort it out."

	msgAlreadyUsed = "That order number has already been used. If you would like another reading, a new purchase opens a fresh window."

	msgOwnedByOther = "That order number was already redeemed by someone else, so I cannot accept it."

	msgExpired = "Your pass has expired. If you would like to continue, please purchase a new plan and send me the order number."

	msgTrialUsed = "Your trial reading has been used. To receive another reading, please purchase a plan and send me the new order number."

	msgCapacity = "The stars are very busy right now and I could not reach them. Please try again in a few minutes."

	msgTransient = "Something went wrong on my side. Please send your message again in a moment."

	msgTrialNotice = "\n\n(This was your single trial reading. A new purchase unlocks the next one.)"
)

// redeemedMessage confirms a fresh entitlement in plan-specific words.
func redeemedMessage(ent *entitlement.Entitlement) string {
	switch ent.Kind {
	case commerce.PlanTrial:
		return "Your order is confirmed. You have one reading waiting - ask your question whenever you are ready."
	case commerce.PlanDayPass:
		until := ""
		if ent.ExpiresAt != nil {
			until = fmt.Sprintf(" until %s", ent.ExpiresAt.UTC().Format(time.RFC822))
		}
		return fmt.Sprintf("Your day pass is active%s. Ask as many questions as you like before then.", until)
	case commerce.PlanSubscription:
		return "Your subscription is confirmed. Ask your questions whenever you wish."
	default:
		return "Your order is confirmed. Ask your question whenever you are ready."
	}
}
