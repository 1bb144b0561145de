package domain

// Reply is an outbound message produced for an Event.
type Reply struct {
	Channel    string
	EventID    string
	ReplyToken string
	Text       string
}

// MessageBus routes events from channels to the dispatcher and replies back.
type MessageBus interface {
	Publish(ev Event)
	Subscribe() <-chan Event
	SendOutbound(r Reply)
	OnOutbound(channelName string, handler func(Reply))
	Close()
}
