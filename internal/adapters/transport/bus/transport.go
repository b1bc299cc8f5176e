package bus

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	rstream "github.com/ThreeDotsLabs/watermill-redisstream/pkg/redisstream"
	"github.com/bnema/idiom-relay/internal/domain"
	"github.com/bnema/idiom-relay/internal/ports"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

const (
	DefaultInboundTopic  = "idiom.inbound"
	DefaultOutboundTopic = "idiom.outbound"
	DefaultWorkers       = 16
)

type Topics struct {
	Inbound  string
	Outbound string
}

func (t Topics) withDefaults() Topics {
	if t.Inbound == "" {
		t.Inbound = DefaultInboundTopic
	}
	if t.Outbound == "" {
		t.Outbound = DefaultOutboundTopic
	}
	return t
}

type RedisSettings struct {
	Addr     string
	Group    string
	Consumer string
}

// InboundPayload is the JSON body of messages on the inbound topic.
type InboundPayload struct {
	RoomID   string `json:"room_id"`
	SenderID string `json:"sender_id"`
	Content  string `json:"content"`
}

// OutboundPayload is the JSON body of notices published for the chat side.
type OutboundPayload struct {
	RoomID  string    `json:"room_id"`
	Content string    `json:"content"`
	SentAt  time.Time `json:"sent_at"`
}

// Transport moves chat traffic over a watermill publisher and subscriber.
type Transport struct {
	pub     message.Publisher
	sub     message.Subscriber
	topics  Topics
	workers int
	log     zerolog.Logger
	closers []func() error
}

var (
	_ ports.Sender = (*Transport)(nil)
	_ ports.Inbox  = (*Transport)(nil)
)

func New(pub message.Publisher, sub message.Subscriber, topics Topics, workers int, log zerolog.Logger) *Transport {
	if workers <= 0 {
		workers = DefaultWorkers
	}

	return &Transport{
		pub:     pub,
		sub:     sub,
		topics:  topics.withDefaults(),
		workers: workers,
		log:     log,
	}
}

// NewMemory runs both directions over an in-process channel.
func NewMemory(topics Topics, workers int, log zerolog.Logger, wlog watermill.LoggerAdapter) *Transport {
	ch := gochannel.NewGoChannel(gochannel.Config{OutputChannelBuffer: 64}, wlog)
	t := New(ch, ch, topics, workers, log)
	t.closers = append(t.closers, ch.Close)

	return t
}

// NewRedis reads and writes Redis streams through a consumer group.
func NewRedis(settings RedisSettings, topics Topics, workers int, log zerolog.Logger, wlog watermill.LoggerAdapter) (*Transport, error) {
	if strings.TrimSpace(settings.Addr) == "" {
		return nil, errors.New("redis address is empty")
	}

	client := redis.NewClient(&redis.Options{Addr: settings.Addr})
	marshaler := rstream.DefaultMarshallerUnmarshaller{}

	pub, err := rstream.NewPublisher(rstream.PublisherConfig{
		Client:     client,
		Marshaller: marshaler,
	}, wlog)
	if err != nil {
		_ = client.Close()
		return nil, errors.Wrap(err, "create redis publisher")
	}

	sub, err := rstream.NewSubscriber(rstream.SubscriberConfig{
		Client:        client,
		Unmarshaller:  marshaler,
		ConsumerGroup: settings.Group,
		Consumer:      settings.Consumer,
	}, wlog)
	if err != nil {
		_ = pub.Close()
		_ = client.Close()
		return nil, errors.Wrap(err, "create redis subscriber")
	}

	t := New(pub, sub, topics, workers, log)
	t.closers = append(t.closers, sub.Close, pub.Close, client.Close)

	return t, nil
}

func (t *Transport) Topics() Topics {
	return t.topics
}

func (t *Transport) SendText(ctx context.Context, room domain.RoomID, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	payload, err := json.Marshal(OutboundPayload{RoomID: string(room), Content: text, SentAt: time.Now().UTC()})
	if err != nil {
		return errors.Wrap(err, "encode outbound notice")
	}

	msg := message.NewMessage(uuid.NewString(), payload)
	msg.Metadata.Set("room_id", string(room))

	return errors.Wrap(t.pub.Publish(t.topics.Outbound, msg), "publish outbound notice")
}

// Inject publishes a chat message onto the inbound topic.
func (t *Transport) Inject(ctx context.Context, in ports.InboundMessage) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	payload, err := json.Marshal(InboundPayload{RoomID: string(in.RoomID), SenderID: string(in.SenderID), Content: in.Content})
	if err != nil {
		return errors.Wrap(err, "encode inbound message")
	}

	return errors.Wrap(t.pub.Publish(t.topics.Inbound, message.NewMessage(uuid.NewString(), payload)), "publish inbound message")
}

// Listen consumes the inbound topic until ctx is cancelled. Messages are
// acked on receipt and handled on a bounded pool of goroutines.
func (t *Transport) Listen(ctx context.Context, handle ports.MessageHandler) error {
	messages, err := t.sub.Subscribe(ctx, t.topics.Inbound)
	if err != nil {
		return errors.Wrap(err, "subscribe inbound topic")
	}

	g := new(errgroup.Group)
	g.SetLimit(t.workers)
	defer func() { _ = g.Wait() }()

	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-messages:
			if !ok {
				return nil
			}

			in, err := decodeInbound(msg.Payload)
			msg.Ack()
			if err != nil {
				t.log.Warn().Err(err).Str("message_id", msg.UUID).Msg("dropping malformed inbound message")
				continue
			}

			g.Go(func() error {
				handle(ctx, in)
				return nil
			})
		}
	}
}

// Outbound subscribes to published notices, for echoing them in development.
func (t *Transport) Outbound(ctx context.Context) (<-chan *message.Message, error) {
	messages, err := t.sub.Subscribe(ctx, t.topics.Outbound)
	if err != nil {
		return nil, errors.Wrap(err, "subscribe outbound topic")
	}
	return messages, nil
}

func (t *Transport) Close() error {
	var first error
	for _, closeFn := range t.closers {
		if err := closeFn(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func decodeInbound(payload []byte) (ports.InboundMessage, error) {
	var in InboundPayload
	if err := json.Unmarshal(payload, &in); err != nil {
		return ports.InboundMessage{}, errors.Wrap(err, "decode inbound message")
	}
	if in.RoomID == "" || in.SenderID == "" {
		return ports.InboundMessage{}, errors.New("inbound message is missing room_id or sender_id")
	}

	return ports.InboundMessage{
		RoomID:   domain.RoomID(in.RoomID),
		SenderID: domain.PlayerID(in.SenderID),
		Content:  in.Content,
	}, nil
}

// DecodeOutbound reads a notice published by SendText.
func DecodeOutbound(payload []byte) (OutboundPayload, error) {
	var out OutboundPayload
	if err := json.Unmarshal(payload, &out); err != nil {
		return OutboundPayload{}, errors.Wrap(err, "decode outbound notice")
	}
	return out, nil
}
