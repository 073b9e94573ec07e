package model

import "time"

type EdgeStatus string

const (
	EdgeActive    EdgeStatus = "active"
	EdgeAccepted  EdgeStatus = "accepted"
	EdgeRejected  EdgeStatus = "rejected"
	EdgeCancelled EdgeStatus = "cancelled"
	EdgeExpired   EdgeStatus = "expired"
)

// Resolutions recorded on a terminal edge.
const (
	ResolutionAccepted         = "accepted_by_owner"
	ResolutionRejected         = "rejected_by_owner"
	ResolutionWithdrawn        = "withdrawn"
	ResolutionSuperseded       = "superseded"
	ResolutionCompetingCommit  = "competing_commit"
	ResolutionListingCancelled = "listing_cancelled"
	ResolutionDeadlinePassed   = "deadline_passed"
	ResolutionAuctionClosed    = "auction_closed"
)

const (
	MaxMessageLength   = 1000
	MaxConditions      = 20
	MaxConditionLength = 200
)

type Direction string

const (
	DirectionIncoming Direction = "incoming"
	DirectionOutgoing Direction = "outgoing"
	DirectionAll      Direction = "all"
)

// TargetingEdge is a proposal: the owner of Source offers it in exchange for Target.
type TargetingEdge struct {
	ID              string     `json:"id" bson:"_id"`
	SourceListingID string     `json:"source_listing_id" bson:"source_listing_id"`
	TargetListingID string     `json:"target_listing_id" bson:"target_listing_id"`
	SourceOwnerID   string     `json:"source_owner_id" bson:"source_owner_id"`
	TargetOwnerID   string     `json:"target_owner_id" bson:"target_owner_id"`
	Status          EdgeStatus `json:"status" bson:"status"`
	Message         string     `json:"message,omitempty" bson:"message,omitempty"`
	Conditions      []string   `json:"conditions,omitempty" bson:"conditions,omitempty"`
	CashOffer       *CashOffer `json:"cash_offer,omitempty" bson:"cash_offer,omitempty"`
	CreatedAt       time.Time  `json:"created_at" bson:"created_at"`
	ExpiresAt       *time.Time `json:"expires_at,omitempty" bson:"expires_at,omitempty"`
	ResolvedAt      *time.Time `json:"resolved_at,omitempty" bson:"resolved_at,omitempty"`
	Resolution      string     `json:"resolution,omitempty" bson:"resolution,omitempty"`
}

// CashOffer is recorded with a proposal and never settled by this service.
type CashOffer struct {
	AmountMinor int64  `json:"amount_minor" bson:"amount_minor" validate:"gt=0"`
	Currency    string `json:"currency" bson:"currency" validate:"required,iso4217"`
}

func (e *TargetingEdge) IsActive() bool {
	return e != nil && e.Status == EdgeActive
}

// Touches reports whether the edge has listingID at either end.
func (e *TargetingEdge) Touches(listingID string) bool {
	return e.SourceListingID == listingID || e.TargetListingID == listingID
}

// Other returns the listing at the opposite end from listingID.
func (e *TargetingEdge) Other(listingID string) string {
	if e.SourceListingID == listingID {
		return e.TargetListingID
	}
	return e.SourceListingID
}

func (e *TargetingEdge) Clone() *TargetingEdge {
	if e == nil {
		return nil
	}
	c := *e
	if e.Conditions != nil {
		c.Conditions = append([]string(nil), e.Conditions...)
	}
	if e.CashOffer != nil {
		offer := *e.CashOffer
		c.CashOffer = &offer
	}
	c.ExpiresAt = cloneTime(e.ExpiresAt)
	c.ResolvedAt = cloneTime(e.ResolvedAt)
	return &c
}

type TargetRequest struct {
	SourceListingID string     `json:"-" validate:"required"`
	TargetListingID string     `json:"target_listing_id" validate:"required"`
	RequesterID     string     `json:"-" validate:"required"`
	Message         string     `json:"message,omitempty" validate:"max=1000"`
	Conditions      []string   `json:"conditions,omitempty" validate:"max=20,dive,required,max=200"`
	CashOffer       *CashOffer `json:"cash_offer,omitempty" validate:"omitempty"`
}

// CommitResult is the outcome of an accepted proposal.
type CommitResult struct {
	Accepted  *TargetingEdge   `json:"accepted"`
	Source    *SwapListing     `json:"source"`
	Target    *SwapListing     `json:"target"`
	Cancelled []*TargetingEdge `json:"cancelled"`
}

// Eligibility lists every reason a source cannot currently target a target.
type Eligibility struct {
	Eligible bool                `json:"eligible"`
	Reasons  []EligibilityReason `json:"reasons,omitempty"`
}

type EligibilityReason struct {
	Code    string   `json:"code"`
	Message string   `json:"message"`
	Cycle   []string `json:"cycle,omitempty"`
}
