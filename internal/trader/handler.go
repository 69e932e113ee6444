package trader

// EventHandler processes one event type inside an instrument actor.
type EventHandler interface {
	Type() EventType
	Handle(ctx *HandlerContext, payload any, traceID string) error
}

// HandlerContext gives handlers access to the actor they run in.
type HandlerContext struct {
	trader *Trader
	actor  *actor
}

func newHandlerContext(t *Trader, a *actor) *HandlerContext {
	return &HandlerContext{trader: t, actor: a}
}

// State returns the mutable state of the instrument. Only handlers may write it.
func (c *HandlerContext) State() *PositionState {
	return &c.actor.state
}

func (c *HandlerContext) Trader() *Trader {
	return c.trader
}
