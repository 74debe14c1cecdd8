package collect

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"stockwatch/internal/types"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// KafkaConfig represents broker configuration for work-item intake and
// diff fan-out
type KafkaConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	Brokers      []string      `mapstructure:"brokers"`
	TickersTopic string        `mapstructure:"tickers_topic"`
	DiffsTopic   string        `mapstructure:"diffs_topic"`
	GroupID      string        `mapstructure:"group_id"`
	MaxMessages  int           `mapstructure:"max_messages"`
	PollTimeout  time.Duration `mapstructure:"poll_timeout"`
}

// KafkaWorkList consumes ticker symbols from a topic. Each cycle drains up
// to MaxMessages symbols, waiting at most PollTimeout for the first batch.
type KafkaWorkList struct {
	reader *kafka.Reader
	config *KafkaConfig
	logger *zap.Logger
}

// NewKafkaWorkList creates a kafka-backed work list
func NewKafkaWorkList(cfg *KafkaConfig, logger *zap.Logger) *KafkaWorkList {
	if cfg.MaxMessages == 0 {
		cfg.MaxMessages = 10
	}
	if cfg.PollTimeout == 0 {
		cfg.PollTimeout = 10 * time.Second
	}

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  cfg.Brokers,
		GroupID:  cfg.GroupID,
		Topic:    cfg.TickersTopic,
		MinBytes: 1,
		MaxBytes: 10e6,
	})

	return &KafkaWorkList{
		reader: reader,
		config: cfg,
		logger: logger,
	}
}

// Tickers drains one batch of symbols from the topic
func (l *KafkaWorkList) Tickers(ctx context.Context) ([]string, error) {
	pollCtx, cancel := context.WithTimeout(ctx, l.config.PollTimeout)
	defer cancel()

	seen := make(map[string]struct{})
	var symbols []string

	for len(symbols) < l.config.MaxMessages {
		msg, err := l.reader.ReadMessage(pollCtx)
		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
				break
			}
			return symbols, fmt.Errorf("read ticker message: %w", err)
		}

		symbol := strings.ToUpper(strings.TrimSpace(string(msg.Value)))
		if symbol == "" {
			continue
		}
		if _, dup := seen[symbol]; dup {
			continue
		}
		seen[symbol] = struct{}{}
		symbols = append(symbols, symbol)
	}

	return symbols, nil
}

// Close closes the underlying reader
func (l *KafkaWorkList) Close() error {
	return l.reader.Close()
}

// Publisher fans accepted diffs out to downstream consumers
type Publisher interface {
	Publish(ctx context.Context, diffs []*types.Diff) error
}

// KafkaPublisher publishes accepted diffs to the diffs topic
type KafkaPublisher struct {
	writer *kafka.Writer
	logger *zap.Logger
}

// NewKafkaPublisher creates a kafka diff publisher
func NewKafkaPublisher(cfg *KafkaConfig, logger *zap.Logger) *KafkaPublisher {
	writer := &kafka.Writer{
		Addr:     kafka.TCP(cfg.Brokers...),
		Topic:    cfg.DiffsTopic,
		Balancer: &kafka.LeastBytes{},
	}

	return &KafkaPublisher{
		writer: writer,
		logger: logger,
	}
}

// Publish writes one message per ticker batch
func (p *KafkaPublisher) Publish(ctx context.Context, diffs []*types.Diff) error {
	if len(diffs) == 0 {
		return nil
	}

	payload, err := json.Marshal(diffs)
	if err != nil {
		return fmt.Errorf("marshal diffs: %w", err)
	}

	err = p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(diffs[0].Ticker),
		Value: payload,
	})
	if err != nil {
		return fmt.Errorf("publish diffs: %w", err)
	}
	return nil
}

// Close closes the underlying writer
func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}
