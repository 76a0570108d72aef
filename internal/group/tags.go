package group

// Operation tags carried as the first application argument of a validator
// call. Each tag selects exactly one canonical group shape; the protocol
// never accepts variable-shape groups for a given tag.
const (
	TagNewPosition   = "NewPosition"
	TagMoreGARD      = "MoreGARD"
	TagCloseFee      = "CloseFee"
	TagCloseNoFee    = "CloseNoFee"
	TagAuction       = "Auction"
	TagAppCheck      = "AppCheck"
	TagClearApp      = "ClearApp"
	TagChangePricing = "ChangePricing"
)
