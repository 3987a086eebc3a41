package escrow

// EventSink receives trade lifecycle notifications. All snapshots are deep
// copies taken at emission time; sinks may retain them. Sinks are invoked
// synchronously under the engine lock and must not call back into the engine.
type EventSink interface {
	TradeCreated(t Trade)
	TradeRemoved(t Trade)
	TradesMatched(a, b Trade)
	TradesPartiallyMatched(a, b Trade)
}

// NopSink discards all events.
type NopSink struct{}

func (NopSink) TradeCreated(Trade)                  {}
func (NopSink) TradeRemoved(Trade)                  {}
func (NopSink) TradesMatched(Trade, Trade)          {}
func (NopSink) TradesPartiallyMatched(Trade, Trade) {}
