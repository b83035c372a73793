package model

// EventTypeCheckoutCompleted is the only payment event that issues a code.
const EventTypeCheckoutCompleted = "checkout.session.completed"

// PaymentEvent is a payment-completion notification already authenticated
// by the transport layer.
type PaymentEvent struct {
	ID        string
	Type      string
	SessionID string
	Email     string
	Name      string
	Product   string
}
