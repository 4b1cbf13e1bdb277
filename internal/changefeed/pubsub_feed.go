package changefeed

import (
	"context"
	"fmt"
	"strings"
	"sync"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"

	"github.com/angelmondragon/storefront/pkg/enums"
	"github.com/angelmondragon/storefront/pkg/logger"
	"github.com/angelmondragon/storefront/pkg/outbox/payloads"
	"github.com/angelmondragon/storefront/pkg/outbox/registry"
)

// Message attributes set by the outbox publisher.
const (
	AttrEventType = "event_type"
	AttrUserID    = "user_id"
	AttrEventID   = "event_id"
)

type receiver interface {
	Receive(ctx context.Context, f func(context.Context, *gcppubsub.Message)) error
}

type subscriptionChecker func(ctx context.Context) error

// PubSubFeed reads order_updated events from this instance's subscription and
// hands the ones addressed to the subscribed user to onChange.
type PubSubFeed struct {
	receiver receiver
	check    subscriptionChecker
	decoder  *registry.DecoderRegistry
	logg     *logger.Logger
}

// PubSubFeedParams wires a PubSubFeed. Check is optional.
type PubSubFeedParams struct {
	Receiver receiver
	Check    func(ctx context.Context) error
	Decoder  *registry.DecoderRegistry
	Logger   *logger.Logger
}

// NewPubSubFeed validates the dependencies.
func NewPubSubFeed(params PubSubFeedParams) (*PubSubFeed, error) {
	if params.Receiver == nil {
		return nil, fmt.Errorf("pubsub subscription required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	decoder := params.Decoder
	if decoder == nil {
		decoder = registry.NewConsumerRegistry()
	}
	check := params.Check
	if check == nil {
		check = func(context.Context) error { return nil }
	}
	return &PubSubFeed{
		receiver: params.Receiver,
		check:    check,
		decoder:  decoder,
		logg:     params.Logger,
	}, nil
}

// Subscribe confirms the subscription exists and starts receiving in the
// background. The receive loop outlives ctx's cancellation but keeps its
// values; it ends on Unsubscribe.
func (f *PubSubFeed) Subscribe(ctx context.Context, userID uuid.UUID, onChange func(context.Context, Change)) (Subscription, error) {
	if onChange == nil {
		return nil, fmt.Errorf("change handler required")
	}
	if err := f.check(ctx); err != nil {
		return nil, err
	}

	recvCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	sub := &pubsubSubscription{cancel: cancel, done: make(chan struct{})}
	logCtx := f.logg.WithUserID(recvCtx, userID.String())

	go func() {
		defer close(sub.done)
		err := f.receiver.Receive(recvCtx, func(msgCtx context.Context, msg *gcppubsub.Message) {
			f.deliver(msgCtx, userID, msg, onChange)
			msg.Ack()
		})
		if err != nil && recvCtx.Err() == nil {
			f.logg.Warn(f.logg.WithError(logCtx, err), "order feed receive stopped")
		}
	}()
	return sub, nil
}

// deliver always lets the caller ack: a message that cannot be decoded now
// will not decode on redelivery either.
func (f *PubSubFeed) deliver(ctx context.Context, userID uuid.UUID, msg *gcppubsub.Message, onChange func(context.Context, Change)) {
	if strings.TrimSpace(msg.Attributes[AttrUserID]) != userID.String() {
		return
	}
	eventType := enums.OutboxEventType(strings.TrimSpace(msg.Attributes[AttrEventType]))
	if eventType != enums.EventOrderUpdated {
		return
	}

	logCtx := f.logg.WithFields(ctx, map[string]any{
		"message_id": msg.ID,
		"event_type": eventType,
		"event_id":   msg.Attributes[AttrEventID],
	})
	_, payload, err := f.decoder.DecodeEnvelope(eventType, msg.Data)
	if err != nil {
		f.logg.Warn(f.logg.WithError(logCtx, err), "invalid order update envelope")
		return
	}
	event, ok := payload.(*payloads.OrderUpdatedEvent)
	if !ok || event == nil {
		f.logg.Warn(logCtx, "unexpected order update payload")
		return
	}
	onChange(ctx, Change{Old: event.Old, New: event.New})
}

type pubsubSubscription struct {
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

func (s *pubsubSubscription) Unsubscribe() {
	s.once.Do(func() {
		s.cancel()
		<-s.done
	})
}
