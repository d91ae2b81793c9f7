// Package events defines the platform events the co-host reacts to, decoded
// from EventSub notifications and chat notices into plain structs so the
// reaction logic never touches wire formats.
package events

// Raid is an incoming raid.
type Raid struct {
	// FromBroadcaster is the raiding channel's display name.
	FromBroadcaster string

	// FromLogin is the raiding channel's login name, used for shout-outs.
	FromLogin string

	// Viewers is the raiding party size.
	Viewers int
}

// Cheer is a bit donation.
type Cheer struct {
	// User is the cheering user's display name; empty when anonymous.
	User string

	// Bits is the donated amount.
	Bits int

	// Message is the attached chat message, cheermotes included.
	Message string

	// Anonymous reports whether the cheer was sent anonymously.
	Anonymous bool
}

// Resub is a resubscription share with cumulative-month information.
type Resub struct {
	// User is the resubscriber's display name.
	User string

	// CumulativeMonths is the total months subscribed.
	CumulativeMonths int

	// StreakMonths is the current streak; zero when not shared.
	StreakMonths int

	// Tier is the subscription tier ("1000", "2000", "3000").
	Tier string

	// Message is the optional message attached to the share.
	Message string
}

// GiftTotals is a gifter's declaration: one event announcing how many subs
// are being gifted, ahead of the per-recipient events.
type GiftTotals struct {
	// Gifter is the gifting user's display name; empty when anonymous.
	Gifter string

	// Count is the number of subs in this burst.
	Count int

	// Tier is the gifted subscription tier.
	Tier string

	// CumulativeTotal is the gifter's lifetime gift count; zero when hidden.
	CumulativeTotal int

	// Anonymous reports whether the gifter chose to stay anonymous.
	Anonymous bool
}

// Subscribe is a single new subscription. Gifted subs arrive as one of these
// per recipient, alongside the gifter's GiftTotals.
type Subscribe struct {
	// User is the subscribing (or gifted-to) user's display name.
	User string

	// Tier is the subscription tier.
	Tier string

	// Gifted reports whether this sub was a gift.
	Gifted bool
}

// ChatMessage is one chat line, kept for the respond-to-chat flow.
type ChatMessage struct {
	// User is the sender's display name.
	User string

	// Text is the message body.
	Text string
}
