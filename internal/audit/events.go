// Package audit records every state transition of the swap engine. Events are
// appended to the outbox inside the transition's transaction and delivered to
// the ledger and to the notification service by the Relay.
package audit

import (
	"strconv"
	"time"

	"bookswap/pkg/model"

	"github.com/google/uuid"
)

// Payload values are always strings so they survive every backend unchanged.
const (
	FieldEventID         = "event_id"
	FieldEventType       = "event_type"
	FieldAggregateID     = "aggregate_id"
	FieldOccurredAt      = "occurred_at"
	FieldEdgeID          = "edge_id"
	FieldListingID       = "listing_id"
	FieldSourceListingID = "source_listing_id"
	FieldTargetListingID = "target_listing_id"
	FieldSourceOwnerID   = "source_owner_id"
	FieldTargetOwnerID   = "target_owner_id"
	FieldOwnerID         = "owner_id"
	FieldBookingID       = "booking_id"
	FieldMode            = "mode"
	FieldStatus          = "status"
	FieldResolution      = "resolution"
	FieldCashAmountMinor = "cash_amount_minor"
	FieldCashCurrency    = "cash_currency"
	FieldExpiredCount    = "expired_proposals"
	FieldPolicy          = "policy"
)

func newRecord(eventType, aggregateID string, recipients []string, payload map[string]any, at time.Time) *model.OutboxRecord {
	id := uuid.NewString()
	payload[FieldEventID] = id
	payload[FieldEventType] = eventType
	payload[FieldAggregateID] = aggregateID
	payload[FieldOccurredAt] = at.UTC().Format(time.RFC3339Nano)

	return &model.OutboxRecord{
		ID:            id,
		EventType:     eventType,
		AggregateID:   aggregateID,
		RecipientIDs:  dedupe(recipients),
		Payload:       payload,
		Status:        model.OutboxPending,
		NextAttemptAt: at,
		CreatedAt:     at,
	}
}

// ProposalEvent describes a targeting edge transition. Both owners are notified.
func ProposalEvent(eventType string, edge *model.TargetingEdge, at time.Time) *model.OutboxRecord {
	payload := map[string]any{
		FieldEdgeID:          edge.ID,
		FieldSourceListingID: edge.SourceListingID,
		FieldTargetListingID: edge.TargetListingID,
		FieldSourceOwnerID:   edge.SourceOwnerID,
		FieldTargetOwnerID:   edge.TargetOwnerID,
		FieldStatus:          string(edge.Status),
	}
	if edge.Resolution != "" {
		payload[FieldResolution] = edge.Resolution
	}
	if edge.CashOffer != nil {
		payload[FieldCashAmountMinor] = strconv.FormatInt(edge.CashOffer.AmountMinor, 10)
		payload[FieldCashCurrency] = edge.CashOffer.Currency
	}
	return newRecord(eventType, edge.ID, []string{edge.SourceOwnerID, edge.TargetOwnerID}, payload, at)
}

// ListingEvent describes a listing transition. The owner is notified.
func ListingEvent(eventType string, listing *model.SwapListing, at time.Time) *model.OutboxRecord {
	payload := map[string]any{
		FieldListingID: listing.ID,
		FieldOwnerID:   listing.OwnerID,
		FieldBookingID: listing.BookingID,
		FieldMode:      string(listing.Mode),
		FieldStatus:    string(listing.Status),
	}
	return newRecord(eventType, listing.ID, []string{listing.OwnerID}, payload, at)
}

func AuctionClosedEvent(listing *model.SwapListing, expired int, policy string, at time.Time) *model.OutboxRecord {
	payload := map[string]any{
		FieldListingID:    listing.ID,
		FieldOwnerID:      listing.OwnerID,
		FieldStatus:       string(listing.Status),
		FieldExpiredCount: strconv.Itoa(expired),
		FieldPolicy:       policy,
	}
	return newRecord(model.EventAuctionClosed, listing.ID, []string{listing.OwnerID}, payload, at)
}

// ProposalEventType maps a terminal edge status to its event type.
func ProposalEventType(status model.EdgeStatus) string {
	switch status {
	case model.EdgeAccepted:
		return model.EventProposalAccepted
	case model.EdgeRejected:
		return model.EventProposalRejected
	case model.EdgeExpired:
		return model.EventProposalExpired
	case model.EdgeCancelled:
		return model.EventProposalCancelled
	default:
		return model.EventProposalCreated
	}
}

func ListingEventType(status model.ListingStatus) string {
	switch status {
	case model.ListingCommitted:
		return model.EventListingCommitted
	case model.ListingCancelled:
		return model.EventListingCancelled
	case model.ListingCompleted:
		return model.EventListingCompleted
	default:
		return model.EventListingCreated
	}
}

func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
