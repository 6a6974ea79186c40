package stream

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/recipeflow/recipeflow/execution"
	"github.com/recipeflow/recipeflow/hook"
	"github.com/recipeflow/recipeflow/id"
	"github.com/recipeflow/recipeflow/recipe"
	"github.com/recipeflow/recipeflow/schedule"
)

// Compile-time interface checks.
var (
	_ hook.Extension          = (*Broker)(nil)
	_ hook.ExecutionStarted   = (*Broker)(nil)
	_ hook.ExecutionCompleted = (*Broker)(nil)
	_ hook.ExecutionFailed    = (*Broker)(nil)
	_ hook.ExecutionPaused    = (*Broker)(nil)
	_ hook.ExecutionResumed   = (*Broker)(nil)
	_ hook.StepCompleted      = (*Broker)(nil)
	_ hook.StepFailed         = (*Broker)(nil)
	_ hook.StepRetrying       = (*Broker)(nil)
	_ hook.ScheduleFired      = (*Broker)(nil)
	_ hook.Shutdown           = (*Broker)(nil)
)

// DefaultBufferSize is the default per-subscriber event buffer.
const DefaultBufferSize = 256

// DefaultCredits is the default initial credits for new subscribers.
const DefaultCredits int64 = 1000

// Broker is the real-time stream broker. It implements the hook
// extension interfaces to receive lifecycle events and fans them out to
// subscribers via topic-based pub/sub.
type Broker struct {
	topics *TopicRegistry
	logger *slog.Logger

	// Subscriber management.
	subscribers sync.Map // subscriberID → *Subscriber

	// Metrics.
	totalPublished atomic.Int64
	totalDropped   atomic.Int64

	// Config.
	bufferSize     int
	defaultCredits int64
}

// BrokerOption configures a Broker.
type BrokerOption func(*Broker)

// WithBufferSize sets the per-subscriber event buffer size.
func WithBufferSize(size int) BrokerOption {
	return func(b *Broker) { b.bufferSize = size }
}

// WithDefaultCredits sets the initial credits for new subscribers.
func WithDefaultCredits(credits int64) BrokerOption {
	return func(b *Broker) { b.defaultCredits = credits }
}

// NewBroker creates a new stream broker.
func NewBroker(logger *slog.Logger, opts ...BrokerOption) *Broker {
	b := &Broker{
		topics:         NewTopicRegistry(),
		logger:         logger,
		bufferSize:     DefaultBufferSize,
		defaultCredits: DefaultCredits,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Name implements hook.Extension.
func (b *Broker) Name() string { return "stream-broker" }

// Topics returns the topic registry for external use.
func (b *Broker) Topics() *TopicRegistry { return b.topics }

// Subscribe creates a new subscriber on the given topics.
func (b *Broker) Subscribe(subscriberID string, topics ...string) *Subscriber {
	sub := NewSubscriber(subscriberID, b.bufferSize, b.defaultCredits)
	b.subscribers.Store(subscriberID, sub)
	for _, topic := range topics {
		b.topics.Subscribe(topic, sub)
	}
	return sub
}

// SubscribeTo adds an existing subscriber to additional topics.
func (b *Broker) SubscribeTo(subscriberID string, topics ...string) {
	val, ok := b.subscribers.Load(subscriberID)
	if !ok {
		return
	}
	sub := val.(*Subscriber) //nolint:errcheck // sync.Map always stores *Subscriber
	for _, topic := range topics {
		b.topics.Subscribe(topic, sub)
	}
}

// Unsubscribe removes a subscriber from specific topics.
func (b *Broker) Unsubscribe(subscriberID string, topics ...string) {
	for _, topic := range topics {
		b.topics.Unsubscribe(topic, subscriberID)
	}
}

// RemoveSubscriber removes a subscriber from all topics and closes it.
func (b *Broker) RemoveSubscriber(subscriberID string) {
	b.topics.UnsubscribeAll(subscriberID)
	if val, ok := b.subscribers.LoadAndDelete(subscriberID); ok {
		val.(*Subscriber).Close() //nolint:errcheck // sync.Map always stores *Subscriber
	}
}

// GetSubscriber returns a subscriber by ID.
func (b *Broker) GetSubscriber(subscriberID string) (*Subscriber, bool) {
	val, ok := b.subscribers.Load(subscriberID)
	if !ok {
		return nil, false
	}
	return val.(*Subscriber), true //nolint:errcheck // sync.Map always stores *Subscriber
}

// Stats returns broker statistics.
func (b *Broker) Stats() BrokerStats {
	count := 0
	b.subscribers.Range(func(_, _ any) bool {
		count++
		return true
	})
	return BrokerStats{
		TopicCount:      b.topics.TopicCount(),
		SubscriberCount: count,
		TotalPublished:  b.totalPublished.Load(),
		TotalDropped:    b.totalDropped.Load(),
	}
}

// BrokerStats contains broker metrics.
type BrokerStats struct {
	TopicCount      int   `json:"topic_count"`
	SubscriberCount int   `json:"subscriber_count"`
	TotalPublished  int64 `json:"total_published"`
	TotalDropped    int64 `json:"total_dropped"`
}

// publish creates an event and broadcasts it to all matching topics.
func (b *Broker) publish(evt *Event, recipeID id.RecipeID) {
	var recipeTopic string
	if !recipeID.IsNil() {
		recipeTopic = RecipeTopic(recipeID.String())
	}
	topics := resolveTopics(evt, recipeTopic)
	delivered := b.topics.Broadcast(topics, evt)
	b.totalPublished.Add(int64(delivered))
}

// mustMarshal marshals data to JSON, panicking on error (programming error).
func mustMarshal(v any) json.RawMessage {
	data, err := json.Marshal(v)
	if err != nil {
		panic("stream: marshal event data: " + err.Error())
	}
	return data
}

// executionData builds the shared payload for execution-level events.
func executionData(e *execution.Execution) ExecutionEventData {
	return ExecutionEventData{
		ExecutionID: e.ID.String(),
		RecipeID:    e.RecipeID.String(),
		Status:      string(e.Status),
	}
}

// ── Execution lifecycle hooks ───────────────────────

func (b *Broker) OnExecutionStarted(_ context.Context, e *execution.Execution) error {
	b.publish(&Event{
		Type:      EventExecutionStarted,
		Timestamp: time.Now().UTC(),
		Topic:     ExecutionTopic(e.ID.String()),
		Data:      mustMarshal(executionData(e)),
	}, e.RecipeID)
	return nil
}

func (b *Broker) OnExecutionCompleted(_ context.Context, e *execution.Execution, elapsed time.Duration) error {
	data := executionData(e)
	data.ElapsedMs = elapsed.Milliseconds()
	b.publish(&Event{
		Type:      EventExecutionCompleted,
		Timestamp: time.Now().UTC(),
		Topic:     ExecutionTopic(e.ID.String()),
		Data:      mustMarshal(data),
	}, e.RecipeID)
	return nil
}

func (b *Broker) OnExecutionFailed(_ context.Context, e *execution.Execution, execErr error) error {
	data := executionData(e)
	data.Error = execErr.Error()
	b.publish(&Event{
		Type:      EventExecutionFailed,
		Timestamp: time.Now().UTC(),
		Topic:     ExecutionTopic(e.ID.String()),
		Data:      mustMarshal(data),
	}, e.RecipeID)
	return nil
}

func (b *Broker) OnExecutionPaused(_ context.Context, e *execution.Execution) error {
	b.publish(&Event{
		Type:      EventExecutionPaused,
		Timestamp: time.Now().UTC(),
		Topic:     ExecutionTopic(e.ID.String()),
		Data:      mustMarshal(executionData(e)),
	}, e.RecipeID)
	return nil
}

func (b *Broker) OnExecutionResumed(_ context.Context, e *execution.Execution) error {
	b.publish(&Event{
		Type:      EventExecutionResumed,
		Timestamp: time.Now().UTC(),
		Topic:     ExecutionTopic(e.ID.String()),
		Data:      mustMarshal(executionData(e)),
	}, e.RecipeID)
	return nil
}

// ── Step lifecycle hooks ────────────────────────────

func (b *Broker) OnStepCompleted(_ context.Context, e *execution.Execution, step *recipe.Step, elapsed time.Duration) error {
	data := executionData(e)
	data.StepName = step.Name
	data.StepType = string(step.Type)
	data.ElapsedMs = elapsed.Milliseconds()
	b.publish(&Event{
		Type:      EventStepCompleted,
		Timestamp: time.Now().UTC(),
		Topic:     ExecutionTopic(e.ID.String()),
		Data:      mustMarshal(data),
	}, e.RecipeID)
	return nil
}

func (b *Broker) OnStepFailed(_ context.Context, e *execution.Execution, step *recipe.Step, stepErr error) error {
	data := executionData(e)
	data.StepName = step.Name
	data.StepType = string(step.Type)
	data.Error = stepErr.Error()
	b.publish(&Event{
		Type:      EventStepFailed,
		Timestamp: time.Now().UTC(),
		Topic:     ExecutionTopic(e.ID.String()),
		Data:      mustMarshal(data),
	}, e.RecipeID)
	return nil
}

func (b *Broker) OnStepRetrying(_ context.Context, e *execution.Execution, step *recipe.Step, attempt int, delay time.Duration) error {
	data := executionData(e)
	data.StepName = step.Name
	data.StepType = string(step.Type)
	data.Attempt = attempt
	data.DelayMs = delay.Milliseconds()
	b.publish(&Event{
		Type:      EventStepRetrying,
		Timestamp: time.Now().UTC(),
		Topic:     ExecutionTopic(e.ID.String()),
		Data:      mustMarshal(data),
	}, e.RecipeID)
	return nil
}

// ── Schedule lifecycle hooks ────────────────────────

func (b *Broker) OnScheduleFired(_ context.Context, s *schedule.Schedule, executionID id.ExecutionID) error {
	b.publish(&Event{
		Type:      EventScheduleFired,
		Timestamp: time.Now().UTC(),
		Data: mustMarshal(ScheduleEventData{
			ScheduleID:   s.ID.String(),
			ScheduleName: s.Name,
			RecipeID:     s.RecipeID.String(),
			ExecutionID:  executionID.String(),
		}),
	}, s.RecipeID)
	return nil
}

// ── Shutdown ────────────────────────────────────────

func (b *Broker) OnShutdown(_ context.Context) error {
	b.subscribers.Range(func(key, value any) bool {
		sub := value.(*Subscriber) //nolint:errcheck // sync.Map always stores *Subscriber
		sub.Close()
		b.subscribers.Delete(key)
		return true
	})
	b.logger.Info("stream broker shut down")
	return nil
}
