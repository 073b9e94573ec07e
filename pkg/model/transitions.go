package model

var edgeTransitions = map[EdgeStatus]map[EdgeStatus]struct{}{
	EdgeActive: {
		EdgeAccepted:  {},
		EdgeRejected:  {},
		EdgeCancelled: {},
		EdgeExpired:   {},
	},
}

var listingTransitions = map[ListingStatus]map[ListingStatus]struct{}{
	ListingOpen: {
		ListingCommitted: {},
		ListingCancelled: {},
	},
	ListingCommitted: {
		ListingCompleted: {},
	},
}

// CanTransition reports whether an edge may move from one status to another.
func CanTransition(from, to EdgeStatus) bool {
	_, ok := edgeTransitions[from][to]
	return ok
}

func CanTransitionListing(from, to ListingStatus) bool {
	_, ok := listingTransitions[from][to]
	return ok
}

func (s EdgeStatus) Terminal() bool {
	return len(edgeTransitions[s]) == 0
}

func (s ListingStatus) Terminal() bool {
	return len(listingTransitions[s]) == 0
}
