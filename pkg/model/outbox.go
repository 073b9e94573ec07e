package model

import "time"

type OutboxStatus string

const (
	OutboxPending   OutboxStatus = "pending"
	OutboxDelivered OutboxStatus = "delivered"
	OutboxFailed    OutboxStatus = "failed"
)

// Audit event types.
const (
	EventProposalCreated   = "swap.proposal.created"
	EventProposalAccepted  = "swap.proposal.accepted"
	EventProposalRejected  = "swap.proposal.rejected"
	EventProposalCancelled = "swap.proposal.cancelled"
	EventProposalExpired   = "swap.proposal.expired"
	EventListingCreated    = "swap.listing.created"
	EventListingCommitted  = "swap.listing.committed"
	EventListingCancelled  = "swap.listing.cancelled"
	EventListingCompleted  = "swap.listing.completed"
	EventAuctionClosed     = "swap.auction.closed"
)

// OutboxRecord is an audit event written in the same transaction as the
// transition it describes and delivered later by the relay.
type OutboxRecord struct {
	ID             string         `json:"id" bson:"_id"`
	EventType      string         `json:"event_type" bson:"event_type"`
	AggregateID    string         `json:"aggregate_id" bson:"aggregate_id"`
	RecipientIDs   []string       `json:"recipient_ids,omitempty" bson:"recipient_ids,omitempty"`
	Payload        map[string]any `json:"payload" bson:"payload"`
	Status         OutboxStatus   `json:"status" bson:"status"`
	Attempts       int            `json:"attempts" bson:"attempts"`
	NextAttemptAt  time.Time      `json:"next_attempt_at" bson:"next_attempt_at"`
	TransactionRef string         `json:"transaction_ref,omitempty" bson:"transaction_ref,omitempty"`
	LastError      string         `json:"last_error,omitempty" bson:"last_error,omitempty"`
	CreatedAt      time.Time      `json:"created_at" bson:"created_at"`
	DeliveredAt    *time.Time     `json:"delivered_at,omitempty" bson:"delivered_at,omitempty"`
}

func (r *OutboxRecord) Clone() *OutboxRecord {
	if r == nil {
		return nil
	}
	c := *r
	if r.RecipientIDs != nil {
		c.RecipientIDs = append([]string(nil), r.RecipientIDs...)
	}
	if r.Payload != nil {
		c.Payload = make(map[string]any, len(r.Payload))
		for k, v := range r.Payload {
			c.Payload[k] = v
		}
	}
	c.DeliveredAt = cloneTime(r.DeliveredAt)
	return &c
}
