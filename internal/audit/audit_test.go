package audit

import (
	"context"
	"errors"
	"testing"
	"time"

	"bookswap/internal/audit/repository"
	"bookswap/pkg/db"
	"bookswap/pkg/db/memory"
	"bookswap/pkg/kafka"
	"bookswap/pkg/logger"
	"bookswap/pkg/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockRecorder struct {
	RecordFunc func(ctx context.Context, eventType string, payload map[string]any) (string, error)
	calls      int
}

func (m *mockRecorder) Record(ctx context.Context, eventType string, payload map[string]any) (string, error) {
	m.calls++
	if m.RecordFunc != nil {
		return m.RecordFunc(ctx, eventType, payload)
	}
	return "ref-" + stringField(payload, FieldEventID), nil
}

type mockNotifier struct {
	NotifyFunc func(ctx context.Context, userID, eventType string, payload map[string]any) error
	users      []string
}

func (m *mockNotifier) Notify(ctx context.Context, userID, eventType string, payload map[string]any) error {
	m.users = append(m.users, userID)
	if m.NotifyFunc != nil {
		return m.NotifyFunc(ctx, userID, eventType, payload)
	}
	return nil
}

type mockPublisher struct {
	err  error
	msgs []kafka.Message
}

func (m *mockPublisher) Publish(_ context.Context, msg kafka.Message) error {
	if m.err != nil {
		return m.err
	}
	m.msgs = append(m.msgs, msg)
	return nil
}

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func sampleEdge() *model.TargetingEdge {
	return &model.TargetingEdge{
		ID:              "edge-1",
		SourceListingID: "listing-a",
		TargetListingID: "listing-b",
		SourceOwnerID:   "alice",
		TargetOwnerID:   "bob",
		Status:          model.EdgeAccepted,
		Resolution:      model.ResolutionAccepted,
		CashOffer:       &model.CashOffer{AmountMinor: 2500, Currency: "EUR"},
	}
}

func newOutbox(t *testing.T) repository.OutboxRepository {
	t.Helper()
	return repository.NewMemoryOutboxRepository(memory.New(db.RetryPolicy{}))
}

func TestProposalEvent(t *testing.T) {
	rec := ProposalEvent(model.EventProposalAccepted, sampleEdge(), t0)

	assert.Equal(t, model.EventProposalAccepted, rec.EventType)
	assert.Equal(t, "edge-1", rec.AggregateID)
	assert.Equal(t, []string{"alice", "bob"}, rec.RecipientIDs)
	assert.Equal(t, model.OutboxPending, rec.Status)
	assert.Equal(t, t0, rec.NextAttemptAt)
	assert.Equal(t, rec.ID, rec.Payload[FieldEventID])
	assert.Equal(t, "2500", rec.Payload[FieldCashAmountMinor])
	assert.Equal(t, model.ResolutionAccepted, rec.Payload[FieldResolution])
}

func TestListingEvent_SingleRecipient(t *testing.T) {
	listing := &model.SwapListing{ID: "listing-a", OwnerID: "alice", BookingID: "bk-1", Mode: model.ModeAuction, Status: model.ListingCommitted}
	rec := ListingEvent(ListingEventType(listing.Status), listing, t0)

	assert.Equal(t, model.EventListingCommitted, rec.EventType)
	assert.Equal(t, []string{"alice"}, rec.RecipientIDs)
	assert.Equal(t, "auction", rec.Payload[FieldMode])
}

func TestProposalEventType(t *testing.T) {
	assert.Equal(t, model.EventProposalAccepted, ProposalEventType(model.EdgeAccepted))
	assert.Equal(t, model.EventProposalRejected, ProposalEventType(model.EdgeRejected))
	assert.Equal(t, model.EventProposalCancelled, ProposalEventType(model.EdgeCancelled))
	assert.Equal(t, model.EventProposalExpired, ProposalEventType(model.EdgeExpired))
	assert.Equal(t, model.EventProposalCreated, ProposalEventType(model.EdgeActive))
}

func TestRelay_DeliversAndNotifiesEveryRecipient(t *testing.T) {
	ctx := context.Background()
	outbox := newOutbox(t)
	rec := ProposalEvent(model.EventProposalAccepted, sampleEdge(), t0)
	require.NoError(t, NewOutboxEmitter(outbox).Emit(ctx, rec))

	recorder := &mockRecorder{}
	notifier := &mockNotifier{}
	relay := NewRelay(outbox, recorder, notifier, logger.Discard(), withRelayClock(func() time.Time { return t0 }))

	report, err := relay.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Delivered)
	assert.Equal(t, []string{"alice", "bob"}, notifier.users)

	stored, err := outbox.FindByAggregate(ctx, "edge-1")
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, model.OutboxDelivered, stored[0].Status)
	assert.Equal(t, "ref-"+rec.ID, stored[0].TransactionRef)
	assert.Equal(t, 1, stored[0].Attempts)

	report, err = relay.RunOnce(ctx)
	require.NoError(t, err)
	assert.Zero(t, report.RecordsExamined)
}

func TestRelay_RecorderFailureReschedulesWithBackoff(t *testing.T) {
	ctx := context.Background()
	outbox := newOutbox(t)
	require.NoError(t, outbox.Append(ctx, ProposalEvent(model.EventProposalCreated, sampleEdge(), t0)))

	now := t0
	recorder := &mockRecorder{RecordFunc: func(context.Context, string, map[string]any) (string, error) {
		return "", errors.New("ledger unavailable")
	}}
	notifier := &mockNotifier{}
	relay := NewRelay(outbox, recorder, notifier, logger.Discard(),
		WithRelayRetryDelay(time.Second),
		WithRelayMaxAttempts(3),
		withRelayClock(func() time.Time { return now }),
	)

	report, err := relay.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Rescheduled)
	assert.Empty(t, notifier.users)

	stored, _ := outbox.FindByAggregate(ctx, "edge-1")
	require.Len(t, stored, 1)
	assert.Equal(t, model.OutboxPending, stored[0].Status)
	assert.Equal(t, 1, stored[0].Attempts)
	assert.Equal(t, t0.Add(time.Second), stored[0].NextAttemptAt)
	assert.Equal(t, "ledger unavailable", stored[0].LastError)

	report, err = relay.RunOnce(ctx)
	require.NoError(t, err)
	assert.Zero(t, report.RecordsExamined, "not due before the backoff elapses")

	now = t0.Add(time.Second)
	_, err = relay.RunOnce(ctx)
	require.NoError(t, err)
	stored, _ = outbox.FindByAggregate(ctx, "edge-1")
	assert.Equal(t, 2, stored[0].Attempts)
	assert.Equal(t, now.Add(2*time.Second), stored[0].NextAttemptAt)

	now = now.Add(2 * time.Second)
	report, err = relay.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Failed)
	stored, _ = outbox.FindByAggregate(ctx, "edge-1")
	assert.Equal(t, model.OutboxFailed, stored[0].Status)
	assert.Equal(t, 3, recorder.calls)
}

func TestRelay_NotifyFailureStillDelivers(t *testing.T) {
	ctx := context.Background()
	outbox := newOutbox(t)
	require.NoError(t, outbox.Append(ctx, ProposalEvent(model.EventProposalRejected, sampleEdge(), t0)))

	notifier := &mockNotifier{NotifyFunc: func(_ context.Context, userID, _ string, _ map[string]any) error {
		if userID == "bob" {
			return errors.New("push gateway down")
		}
		return nil
	}}
	relay := NewRelay(outbox, &mockRecorder{}, notifier, logger.Discard(), withRelayClock(func() time.Time { return t0 }))

	report, err := relay.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Delivered)
	assert.Equal(t, 1, report.NotifyFailures)
}

func TestRelay_Delay(t *testing.T) {
	relay := NewRelay(nil, nil, nil, logger.Discard(), WithRelayRetryDelay(time.Second))

	assert.Equal(t, time.Second, relay.delay(1))
	assert.Equal(t, 2*time.Second, relay.delay(2))
	assert.Equal(t, 8*time.Second, relay.delay(4))
	assert.Equal(t, maxRelayRetryDelay, relay.delay(40))
}

func TestKafkaRecorder_KeysByAggregate(t *testing.T) {
	pub := &mockPublisher{}
	rec := ProposalEvent(model.EventProposalAccepted, sampleEdge(), t0)

	ref, err := NewKafkaRecorder(pub).Record(context.Background(), rec.EventType, rec.Payload)
	require.NoError(t, err)
	assert.Equal(t, rec.ID, ref)
	require.Len(t, pub.msgs, 1)
	assert.Equal(t, "edge-1", pub.msgs[0].Key)
	assert.Equal(t, rec.ID, pub.msgs[0].GetEventID())
	assert.Equal(t, model.EventProposalAccepted, pub.msgs[0].GetEventType())
}

func TestKafkaNotifier_PublishError(t *testing.T) {
	pub := &mockPublisher{err: errors.New("broker down")}
	err := NewKafkaNotifier(pub).Notify(context.Background(), "alice", model.EventProposalCreated, map[string]any{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "alice")
}
