package analytics

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"hash/fnv"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/platinummonkey/funnelpulse/pkg/observability"
	"github.com/platinummonkey/funnelpulse/pkg/storage"
)

// IngestBatch is the body accepted by the telemetry endpoint
type IngestBatch struct {
	Events    []RawTelemetryEvent `json:"events"`
	UserAgent string              `json:"user_agent,omitempty"`
	Referrer  string              `json:"referrer,omitempty"`
}

const lockStripes = 32

// MaxEventSkew is how far ahead of the server clock an event timestamp may be
const MaxEventSkew = time.Hour

// EventTracker appends incoming events to their day's raw event list.
// Appends to the same day are serialized within this process only; two
// processes appending to the same day concurrently can lose events.
type EventTracker struct {
	store   storage.KV
	config  AggregationConfig
	logger  *observability.Logger
	metrics *observability.Metrics
	now     func() time.Time

	locks [lockStripes]sync.Mutex
}

// TrackerOption configures an EventTracker
type TrackerOption func(*EventTracker)

// WithTrackerLogger sets the tracker logger
func WithTrackerLogger(logger *observability.Logger) TrackerOption {
	return func(t *EventTracker) { t.logger = logger }
}

// WithTrackerMetrics records ingest counters
func WithTrackerMetrics(metrics *observability.Metrics) TrackerOption {
	return func(t *EventTracker) { t.metrics = metrics }
}

// WithTrackerClock overrides the clock used for missing timestamps
func WithTrackerClock(now func() time.Time) TrackerOption {
	return func(t *EventTracker) { t.now = now }
}

// NewEventTracker creates a tracker writing to store
func NewEventTracker(store storage.KV, config AggregationConfig, opts ...TrackerOption) *EventTracker {
	t := &EventTracker{
		store:  store,
		config: config,
		logger: observability.NopLogger(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(t)
	}
	t.logger = t.logger.WithComponent("event_tracker")
	return t
}

// Track stamps and stores a batch. It returns how many events were
// persisted. Events without an event type or session id are dropped, as are
// events timestamped before the retention window or more than MaxEventSkew
// in the future.
func (t *EventTracker) Track(ctx context.Context, batch IngestBatch, clientIP string) (int, error) {
	ctx, span := tracer.Start(ctx, "EventTracker.Track")
	defer span.End()

	now := t.now()
	oldest := now.AddDate(0, 0, -t.retentionDays()).UnixMilli()
	newest := now.Add(MaxEventSkew).UnixMilli()

	byDate := make(map[string][]RawTelemetryEvent)
	rejected := 0
	for _, event := range batch.Events {
		if event.EventType == "" || event.SessionID == "" {
			rejected++
			continue
		}
		event = t.stamp(event, batch, clientIP)
		if event.Timestamp < oldest || event.Timestamp > newest {
			rejected++
			continue
		}
		date := time.UnixMilli(event.Timestamp).In(t.config.location()).Format(DateLayout)
		byDate[date] = append(byDate[date], event)
	}
	t.count("rejected", rejected)

	dates := make([]string, 0, len(byDate))
	for date := range byDate {
		dates = append(dates, date)
	}
	sort.Strings(dates)

	stored := 0
	var errs []error
	for _, date := range dates {
		events := byDate[date]
		if err := t.appendEvents(ctx, date, events); err != nil {
			t.count("failed", len(events))
			errs = append(errs, fmt.Errorf("failed to store events for %s: %w", date, err))
			span.RecordError(err)
			continue
		}
		stored += len(events)
	}
	t.count("accepted", stored)

	if err := errors.Join(errs...); err != nil {
		t.logger.WithError(err).WithField("stored", stored).Error("Failed to store telemetry events")
		return stored, err
	}

	t.logger.WithFields(map[string]interface{}{
		"stored":   stored,
		"rejected": rejected,
		"days":     len(dates),
	}).Debug("Telemetry batch stored")
	return stored, nil
}

func (t *EventTracker) retentionDays() int {
	if t.config.RetentionDays > 0 {
		return t.config.RetentionDays
	}
	return DefaultAggregationConfig().RetentionDays
}

func (t *EventTracker) stamp(event RawTelemetryEvent, batch IngestBatch, clientIP string) RawTelemetryEvent {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp == 0 {
		event.Timestamp = t.now().UnixMilli()
	}
	if clientIP != "" {
		event.IPAddress = clientIP
	}
	if event.UserAgent == "" {
		event.UserAgent = batch.UserAgent
	}
	if batch.Referrer != "" {
		props := make(map[string]interface{}, len(event.Properties)+1)
		for k, v := range event.Properties {
			props[k] = v
		}
		if _, ok := props["referrer"]; !ok {
			props["referrer"] = batch.Referrer
		}
		event.Properties = props
	}
	return event
}

func (t *EventTracker) appendEvents(ctx context.Context, date string, events []RawTelemetryEvent) error {
	key := RawEventsKey(date)

	mu := t.lockFor(key)
	mu.Lock()
	defer mu.Unlock()

	var existing []RawTelemetryEvent
	data, err := t.store.Get(ctx, key)
	switch {
	case errors.Is(err, storage.ErrNotFound):
	case err != nil:
		return err
	default:
		if err := json.Unmarshal(data, &existing); err != nil {
			return fmt.Errorf("stored raw events are malformed: %w", err)
		}
	}

	data, err = json.Marshal(append(existing, events...))
	if err != nil {
		return fmt.Errorf("failed to marshal raw events: %w", err)
	}
	return t.store.Put(ctx, key, data)
}

func (t *EventTracker) lockFor(key string) *sync.Mutex {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return &t.locks[h.Sum32()%lockStripes]
}

func (t *EventTracker) count(status string, n int) {
	if t.metrics == nil || n == 0 {
		return
	}
	t.metrics.EventsIngestedTotal.WithLabelValues(status).Add(float64(n))
}
