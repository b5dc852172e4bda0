// Package nats binds the queue contracts to NATS JetStream: a durable pull
// consumer serves as the inbound transaction queue and a stream publish
// serves as the decision notification channel.
package nats

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog/log"

	"github.com/payguard/frauddetect/go/internal/queue"
)

// Config holds the JetStream connection and topology settings.
type Config struct {
	URL string

	// Inbound transaction stream.
	Stream   string
	Subject  string
	Consumer string
	// AckWait is the visibility timeout: how long a received message stays
	// hidden before the broker redelivers it.
	AckWait time.Duration
	// MaxAckPending caps the broker-side in-flight message count.
	MaxAckPending int

	// Outbound decision stream.
	DecisionStream  string
	DecisionSubject string

	MaxReconnects int
	ReconnectWait time.Duration
}

func (c Config) withDefaults() Config {
	if c.URL == "" {
		c.URL = nats.DefaultURL
	}
	if c.Stream == "" {
		c.Stream = "TRANSACTIONS"
	}
	if c.Subject == "" {
		c.Subject = "transactions.inbound"
	}
	if c.Consumer == "" {
		c.Consumer = "fraud-detector"
	}
	if c.AckWait <= 0 {
		c.AckWait = 30 * time.Second
	}
	if c.DecisionStream == "" {
		c.DecisionStream = "DECISIONS"
	}
	if c.DecisionSubject == "" {
		c.DecisionSubject = "transactions.decisions"
	}
	if c.MaxReconnects == 0 {
		c.MaxReconnects = -1
	}
	if c.ReconnectWait <= 0 {
		c.ReconnectWait = 2 * time.Second
	}
	return c
}

// Client wraps a NATS connection with a JetStream context.
type Client struct {
	nc  *nats.Conn
	js  jetstream.JetStream
	cfg Config
}

// Connect dials NATS and creates the JetStream context.
func Connect(cfg Config) (*Client, error) {
	cfg = cfg.withDefaults()

	opts := []nats.Option{
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			log.Error().Err(err).Msg("NATS disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("NATS reconnected")
		}),
		nats.ErrorHandler(func(nc *nats.Conn, sub *nats.Subscription, err error) {
			log.Error().Err(err).Msg("NATS error")
		}),
	}

	nc, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("create JetStream context: %w", err)
	}

	return &Client{nc: nc, js: js, cfg: cfg}, nil
}

// Close closes the underlying connection.
func (c *Client) Close() {
	if c.nc != nil {
		c.nc.Close()
	}
}

// EnsureStreams creates the transaction and decision streams if missing.
func (c *Client) EnsureStreams(ctx context.Context) error {
	if err := c.ensureStream(ctx, c.cfg.Stream, c.cfg.Subject); err != nil {
		return err
	}
	return c.ensureStream(ctx, c.cfg.DecisionStream, c.cfg.DecisionSubject)
}

func (c *Client) ensureStream(ctx context.Context, name, subject string) error {
	if _, err := c.js.Stream(ctx, name); err == nil {
		return nil
	}

	_, err := c.js.CreateStream(ctx, jetstream.StreamConfig{
		Name:      name,
		Subjects:  []string{subject},
		Retention: jetstream.LimitsPolicy,
		Storage:   jetstream.FileStorage,
	})
	if err != nil {
		return fmt.Errorf("create stream %s: %w", name, err)
	}
	log.Info().Str("stream", name).Str("subject", subject).Msg("created JetStream stream")
	return nil
}

// Source returns the inbound transaction source, creating the durable pull
// consumer if needed.
func (c *Client) Source(ctx context.Context) (*Source, error) {
	stream, err := c.js.Stream(ctx, c.cfg.Stream)
	if err != nil {
		return nil, fmt.Errorf("get stream %s: %w", c.cfg.Stream, err)
	}

	consumerConfig := jetstream.ConsumerConfig{
		Name:          c.cfg.Consumer,
		Durable:       c.cfg.Consumer,
		FilterSubject: c.cfg.Subject,
		AckPolicy:     jetstream.AckExplicitPolicy,
		AckWait:       c.cfg.AckWait,
	}
	if c.cfg.MaxAckPending > 0 {
		consumerConfig.MaxAckPending = c.cfg.MaxAckPending
	}

	consumer, err := stream.Consumer(ctx, c.cfg.Consumer)
	if err != nil {
		consumer, err = stream.CreateConsumer(ctx, consumerConfig)
		if err != nil {
			return nil, fmt.Errorf("create consumer %s: %w", c.cfg.Consumer, err)
		}
		log.Info().Str("consumer", c.cfg.Consumer).Msg("created JetStream consumer")
	}

	return &Source{consumer: consumer}, nil
}

// Notifier returns the decision notification channel.
func (c *Client) Notifier() *Notifier {
	return &Notifier{
		js:      c.js,
		stream:  c.cfg.DecisionStream,
		subject: c.cfg.DecisionSubject,
	}
}

// Source adapts a JetStream pull consumer to queue.Source.
type Source struct {
	consumer jetstream.Consumer
}

var _ queue.Source = (*Source)(nil)

// Receive fetches up to maxMessages messages, long-polling up to wait.
func (s *Source) Receive(ctx context.Context, maxMessages int, wait time.Duration) ([]queue.Message, error) {
	opts := []jetstream.FetchOpt{}
	if wait > 0 {
		opts = append(opts, jetstream.FetchMaxWait(wait))
	}

	batch, err := s.consumer.Fetch(maxMessages, opts...)
	if err != nil {
		return nil, fmt.Errorf("fetch messages: %w", err)
	}

	var msgs []queue.Message
	for msg := range batch.Messages() {
		msgs = append(msgs, &message{msg: msg})
	}
	if err := batch.Error(); err != nil {
		return msgs, fmt.Errorf("fetch messages: %w", err)
	}
	return msgs, nil
}

type message struct {
	msg jetstream.Msg
}

var _ queue.Message = (*message)(nil)

func (m *message) ID() string {
	if id := m.msg.Headers().Get(nats.MsgIdHdr); id != "" {
		return id
	}
	if meta, err := m.msg.Metadata(); err == nil {
		return strconv.FormatUint(meta.Sequence.Stream, 10)
	}
	return ""
}

func (m *message) Body() []byte {
	return m.msg.Data()
}

func (m *message) Ack(ctx context.Context) error {
	return m.msg.Ack()
}

// Notifier publishes decision payloads to the decision stream.
type Notifier struct {
	js      jetstream.JetStream
	stream  string
	subject string
}

var _ queue.Notifier = (*Notifier)(nil)

// Send publishes the payload and waits for the stream acknowledgement. The
// id doubles as the JetStream message id, so a republish of the same decision
// is deduplicated by the broker.
func (n *Notifier) Send(ctx context.Context, id string, payload []byte) error {
	opts := []jetstream.PublishOpt{jetstream.WithExpectStream(n.stream)}
	if id != "" {
		opts = append(opts, jetstream.WithMsgID(id))
	}
	if _, err := n.js.Publish(ctx, n.subject, payload, opts...); err != nil {
		return fmt.Errorf("publish decision: %w", err)
	}
	return nil
}
