package transport

import "context"

// Notification is one message received on a push topic.
type Notification struct {
    Topic string
    Body  []byte
}

// Subscription is a live registration on a PushChannel.
type Subscription interface {
    Topic() string
    // Unsubscribe releases the registration. Calling it more than once is a no-op.
    Unsubscribe() error
}

// PushChannel is a publish/subscribe notification transport. Callbacks for a
// single subscription are invoked sequentially in arrival order.
type PushChannel interface {
    Subscribe(ctx context.Context, topic string, onMsg func(Notification)) (Subscription, error)
    Close() error
}
