package command

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/vmihailenco/msgpack/v5"

	"mqtt-dispatcher/internal/logger"
	"mqtt-dispatcher/internal/payload"
)

// Publisher is the outbound half of a transport
type Publisher interface {
	Publish(topic string, payload []byte) error
}

// Envelope is what the relay publishes for every execution
type Envelope struct {
	ID       string        `json:"id" msgpack:"id"`
	Kind     string        `json:"kind" msgpack:"kind"`
	IssuedAt time.Time     `json:"issued_at" msgpack:"issued_at"`
	Command  string        `json:"command,omitempty" msgpack:"command,omitempty"`
	Columns  []string      `json:"columns,omitempty" msgpack:"columns,omitempty"`
	Rows     []payload.Row `json:"rows,omitempty" msgpack:"rows,omitempty"`
}

// Relay executes by publishing an envelope to a downstream topic where the
// actual command engine listens
type Relay struct {
	pub      Publisher
	topic    string
	encoding string
	logger   *logger.Logger
	now      func() time.Time
}

// NewRelay creates a relay executor. encoding is "json" or "msgpack".
func NewRelay(pub Publisher, topic, encoding string, log *logger.Logger) (*Relay, error) {
	if pub == nil {
		return nil, fmt.Errorf("relay publisher is required")
	}
	if topic == "" {
		return nil, fmt.Errorf("relay topic is required")
	}
	switch encoding {
	case "", "json":
		encoding = "json"
	case "msgpack":
	default:
		return nil, fmt.Errorf("unsupported relay encoding: %s", encoding)
	}

	return &Relay{
		pub:      pub,
		topic:    topic,
		encoding: encoding,
		logger:   log,
		now:      time.Now,
	}, nil
}

// Execute publishes in to the relay topic
func (r *Relay) Execute(ctx context.Context, in Input) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	if in.Raw == "" && in.Rows == nil {
		return Result{}, ErrEmptyInput
	}

	env := Envelope{
		ID:       uuid.NewString(),
		Kind:     in.Kind(),
		IssuedAt: r.now().UTC(),
		Command:  in.Raw,
	}
	if in.Rows != nil {
		env.Columns = in.Rows.Columns
		env.Rows = in.Rows.Rows
	}

	data, err := r.encode(env)
	if err != nil {
		return Result{ID: env.ID, Status: "error"}, fmt.Errorf("failed to encode relay envelope: %w", err)
	}

	if err := r.pub.Publish(r.topic, data); err != nil {
		return Result{ID: env.ID, Status: "error"}, fmt.Errorf("failed to relay %s: %w", env.Kind, err)
	}

	r.logger.Debug("relayed execution",
		"id", env.ID,
		"kind", env.Kind,
		"topic", r.topic,
		"size", len(data))

	return Result{ID: env.ID, Status: "relayed", Output: r.topic}, nil
}

func (r *Relay) encode(env Envelope) ([]byte, error) {
	if r.encoding == "msgpack" {
		return msgpack.Marshal(env)
	}
	return json.Marshal(env)
}

// LogExecutor only records executions in the log. It is used when no relay
// topic is configured.
type LogExecutor struct {
	logger *logger.Logger
}

// NewLogExecutor creates a log-only executor
func NewLogExecutor(log *logger.Logger) *LogExecutor {
	return &LogExecutor{logger: log}
}

// Execute logs in and reports it as accepted
func (e *LogExecutor) Execute(ctx context.Context, in Input) (Result, error) {
	if in.Raw == "" && in.Rows == nil {
		return Result{}, ErrEmptyInput
	}
	id := uuid.NewString()
	if in.Rows != nil {
		e.logger.Info("executing interrupt", "id", id, "rows", in.Rows.Len(), "columns", in.Rows.Columns)
	} else {
		e.logger.Info("executing command", "id", id, "command", in.Raw)
	}
	return Result{ID: id, Status: "logged"}, nil
}
