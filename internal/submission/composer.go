// Package submission composes reduction requests and publishes them on the
// DataReady queue.
package submission

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/autoreduction/autosubmit/internal/queue"
	"github.com/autoreduction/autosubmit/pkg/message"
	"go.uber.org/zap"
)

var (
	// ErrTransportNotConnected is returned when no queue transport is available.
	ErrTransportNotConnected = errors.New("queue transport not connected")

	// ErrInvalidMessage is returned when the composed message fails validation.
	// Nothing is published.
	ErrInvalidMessage = errors.New("invalid reduction message")
)

// Request holds the inputs of one submission. RBNumbers, Locations and
// RunNumbers are parallel, one element per run.
type Request struct {
	Instrument         string
	RBNumbers          []string
	Locations          []string
	RunNumbers         []int
	RunTitle           string
	ReductionArguments map[string]any
	// StartedBy is the user id of the requester; nil means autoreduction.
	StartedBy   *int
	Description string
}

// Receipt describes a published message.
type Receipt struct {
	Message *message.Message
	Payload []byte
}

// Composer publishes reduction requests on one transport.
type Composer struct {
	transport      queue.Transport
	publishTimeout time.Duration
	logger         *zap.Logger
}

// NewComposer creates a composer. A zero publishTimeout leaves publishes
// bounded only by the caller's context.
func NewComposer(transport queue.Transport, publishTimeout time.Duration, logger *zap.Logger) *Composer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Composer{
		transport:      transport,
		publishTimeout: publishTimeout,
		logger:         logger.Named("submission"),
	}
}

// Connected reports whether the composer has a transport to publish on.
func (c *Composer) Connected() bool {
	return c != nil && c.transport != nil
}

// Build composes the message for a request without publishing it.
func Build(req Request) *message.Message {
	args := req.ReductionArguments
	if args == nil {
		args = map[string]any{}
	}
	startedBy := message.StartedByAutoreduction
	if req.StartedBy != nil {
		startedBy = *req.StartedBy
	}

	return &message.Message{
		RBNumbers:          append([]string(nil), req.RBNumbers...),
		Instrument:         req.Instrument,
		Locations:          append([]string(nil), req.Locations...),
		RunNumbers:         append([]int(nil), req.RunNumbers...),
		RunTitle:           req.RunTitle,
		Facility:           message.FacilityISIS,
		StartedBy:          startedBy,
		ReductionArguments: args,
		Description:        req.Description,
	}
}

// Submit composes, validates and publishes one message to the DataReady queue
// at priority 1. It publishes at most once and never retries.
func (c *Composer) Submit(ctx context.Context, req Request) (*Receipt, error) {
	if !c.Connected() {
		return nil, ErrTransportNotConnected
	}

	msg := Build(req)
	if err := msg.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidMessage, err)
	}

	payload, err := msg.Serialize()
	if err != nil {
		return nil, fmt.Errorf("failed to serialize message: %w", err)
	}

	pubCtx, cancel := ctx, context.CancelFunc(func() {})
	if c.publishTimeout > 0 {
		pubCtx, cancel = context.WithTimeout(ctx, c.publishTimeout)
	}
	defer cancel()

	if err := c.transport.Publish(pubCtx, message.DataReadyQueue, payload, message.DataReadyPriority); err != nil {
		if errors.Is(err, queue.ErrNotConnected) {
			return nil, fmt.Errorf("%w: %w", ErrTransportNotConnected, err)
		}
		return nil, fmt.Errorf("failed to publish to %s: %w", message.DataReadyQueue, err)
	}

	c.logger.Debug("Published reduction request",
		zap.String("instrument", msg.Instrument),
		zap.Ints("runs", msg.RunNumbers),
		zap.Int("bytes", len(payload)))

	return &Receipt{Message: msg, Payload: payload}, nil
}
