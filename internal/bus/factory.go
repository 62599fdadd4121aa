package bus

import (
	"fmt"
	"strings"

	"github.com/evalstudio/eval-studio/internal/pkg/errors"
)

// Options selects and configures a bus implementation.
type Options struct {
	// Type is "memory" (default) or "kafka".
	Type string

	// KafkaBrokers is a comma-separated broker list.
	KafkaBrokers string

	// KafkaGroup is the consumer group id.
	KafkaGroup string
}

// NewBus creates a new Bus instance from options.
func NewBus(opts Options) (Bus, error) {
	switch strings.ToLower(opts.Type) {
	case "memory", "":
		return NewMemoryBus(), nil

	case "kafka":
		brokers := ParseKafkaBrokers(opts.KafkaBrokers)
		if len(brokers) == 0 {
			return nil, errors.New(errors.CodeValidation, "kafka brokers not configured")
		}

		consumerGroup := opts.KafkaGroup
		if consumerGroup == "" {
			consumerGroup = "eval-studio"
		}

		return NewKafkaBus(KafkaConfig{
			Brokers:       brokers,
			ConsumerGroup: consumerGroup,
			ClientID:      "eval-studio-bus",
		})

	default:
		return nil, errors.New(errors.CodeValidation, fmt.Sprintf("unknown bus type: %s", opts.Type))
	}
}
