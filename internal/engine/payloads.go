package engine

// AdjustHedgePayload is the msgpack-encoded job payload for
// ChannelAdjustHedge, carrying the decision already made by
// conditionallySpawnAdjustHedge so the job handler only has to execute it
// (re-reading inputs itself to guard against staleness).
type AdjustHedgePayload struct {
	CorrelationID string
	Kind          string
	Contracts     int64
}

// AdjustFundingPayload is the ChannelAdjustFunding analog.
type AdjustFundingPayload struct {
	CorrelationID string
	Kind          string
	AmountBtc     string
}
