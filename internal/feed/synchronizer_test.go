package feed_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"coach-chat/internal/feed"
	"coach-chat/internal/mocks"
	"coach-chat/internal/models"
)

type harness struct {
	gateway *mocks.GatewayMock
	blobs   *mocks.BlobStorageMock
	events  *mocks.EventFeedMock
	sync    *feed.Synchronizer
	changes []feed.Change
}

func newHarness(userID string) *harness {
	h := &harness{
		gateway: &mocks.GatewayMock{},
		blobs:   &mocks.BlobStorageMock{},
		events:  &mocks.EventFeedMock{},
	}
	h.sync = feed.NewSynchronizer(h.gateway, h.blobs, h.events, userID, feed.WithResolveTimeout(time.Second))
	h.sync.OnChange(func(c feed.Change) { h.changes = append(h.changes, c) })
	return h
}

// activate runs a successful activation with the given newest-first fetch result.
func (h *harness) activate(t *testing.T, scope models.Scope, sub feed.Subscription, newestFirst ...models.Message) {
	t.Helper()
	h.gateway.On("FetchMessages", mock.Anything, scope, feed.DefaultLimit).Return(newestFirst, nil).Once()
	h.events.On("Subscribe", mock.Anything, scope, mock.Anything).Return(sub, nil).Once()
	require.NoError(t, h.sync.Activate(context.Background(), scope))
}

func rowOf(m models.Message) models.InsertRow {
	return models.InsertRow{
		ID:            m.ID,
		Scope:         m.Scope,
		AuthorID:      m.AuthorID,
		RecipientID:   m.RecipientID,
		Body:          m.Body,
		AttachmentURL: m.AttachmentURL,
		CreatedAt:     m.CreatedAt,
	}
}

func withAuthor(m models.Message, email string) models.Message {
	m.Author = models.AuthorSnapshot{Email: email, Role: models.RoleTrainer}
	return m
}

func TestActivateLoadsOldestFirst(t *testing.T) {
	h := newHarness("u1")
	h.activate(t, models.GlobalRoom(), 1, msgAt("c", 3), msgAt("b", 2), msgAt("a", 1))

	assert.Equal(t, feed.StateLive, h.sync.State())
	assert.Equal(t, []string{"a", "b", "c"}, ids(h.sync.Store().Snapshot()))
	require.Len(t, h.changes, 1)
	assert.Equal(t, feed.ChangeReset, h.changes[0].Kind)
}

func TestActivateRejectsInvalidScope(t *testing.T) {
	h := newHarness("u1")

	err := h.sync.Activate(context.Background(), models.PlanThread(""))

	var verr *feed.ValidationError
	require.ErrorAs(t, err, &verr)
	h.gateway.AssertNotCalled(t, "FetchMessages", mock.Anything, mock.Anything, mock.Anything)
	h.events.AssertNotCalled(t, "Subscribe", mock.Anything, mock.Anything, mock.Anything)
}

func TestActivateFetchFailureLeavesErrored(t *testing.T) {
	h := newHarness("u1")
	h.gateway.On("FetchMessages", mock.Anything, models.GlobalRoom(), feed.DefaultLimit).Return(nil, errors.New("db down")).Once()

	err := h.sync.Activate(context.Background(), models.GlobalRoom())

	var gerr *feed.GatewayError
	require.ErrorAs(t, err, &gerr)
	assert.Equal(t, feed.StateErrored, h.sync.State())
	h.events.AssertNotCalled(t, "Subscribe", mock.Anything, mock.Anything, mock.Anything)
}

func TestActivateSubscribeFailureLeavesErrored(t *testing.T) {
	h := newHarness("u1")
	h.gateway.On("FetchMessages", mock.Anything, models.GlobalRoom(), feed.DefaultLimit).Return([]models.Message{msgAt("a", 1)}, nil).Once()
	h.events.On("Subscribe", mock.Anything, models.GlobalRoom(), mock.Anything).Return(feed.Subscription(0), errors.New("listener closed")).Once()

	err := h.sync.Activate(context.Background(), models.GlobalRoom())

	var serr *feed.SubscriptionError
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, feed.StateErrored, h.sync.State())
	assert.Equal(t, []string{"a"}, ids(h.sync.Store().Snapshot()))
}

func TestActivateDiscardsFetchAfterDeactivate(t *testing.T) {
	h := newHarness("u1")
	h.gateway.On("FetchMessages", mock.Anything, models.GlobalRoom(), feed.DefaultLimit).
		Run(func(mock.Arguments) { h.sync.Deactivate() }).
		Return([]models.Message{msgAt("a", 1)}, nil).Once()

	err := h.sync.Activate(context.Background(), models.GlobalRoom())

	require.ErrorIs(t, err, feed.ErrSuperseded)
	assert.Equal(t, 0, h.sync.Store().Len())
	assert.Equal(t, feed.StateIdle, h.sync.State())
	h.events.AssertNotCalled(t, "Subscribe", mock.Anything, mock.Anything, mock.Anything)
}

func TestActivateReleasesPreviousSubscription(t *testing.T) {
	h := newHarness("u1")
	h.activate(t, models.GlobalRoom(), 1, msgAt("a", 1))
	h.events.On("Unsubscribe", feed.Subscription(1)).Return(nil).Once()

	plan := models.PlanThread("plan-7")
	h.activate(t, plan, 2)

	h.events.AssertExpectations(t)
	assert.Equal(t, plan, h.sync.Scope())
	assert.Equal(t, 0, h.sync.Store().Len())
}

func TestInsertEventMergesResolvedMessage(t *testing.T) {
	h := newHarness("u1")
	h.activate(t, models.GlobalRoom(), 1, msgAt("a", 1))

	incoming := msgAt("b", 2)
	h.gateway.On("FetchOne", mock.Anything, "b").Return(withAuthor(incoming, "coach@example.com"), nil).Once()

	h.events.Emit(rowOf(incoming))

	snap := h.sync.Store().Snapshot()
	assert.Equal(t, []string{"a", "b"}, ids(snap))
	assert.Equal(t, "coach@example.com", snap[1].Author.Email)
	assert.Equal(t, feed.ChangeInsert, h.changes[len(h.changes)-1].Kind)
}

func TestInsertEventAlreadyFetchedIsNotDuplicated(t *testing.T) {
	h := newHarness("u1")
	existing := msgAt("a", 1)
	h.activate(t, models.GlobalRoom(), 1, existing)

	h.events.Emit(rowOf(existing))

	assert.Equal(t, []string{"a"}, ids(h.sync.Store().Snapshot()))
	h.gateway.AssertNotCalled(t, "FetchOne", mock.Anything, mock.Anything)
}

func TestInsertEventOutOfOrderKeepsStoreSorted(t *testing.T) {
	h := newHarness("u1")
	h.activate(t, models.GlobalRoom(), 1, msgAt("c", 10), msgAt("a", 1))

	late := msgAt("b", 5)
	h.gateway.On("FetchOne", mock.Anything, "b").Return(withAuthor(late, "x@example.com"), nil).Once()
	h.events.Emit(rowOf(late))

	snap := h.sync.Store().Snapshot()
	assert.Equal(t, []string{"a", "b", "c"}, ids(snap))
	assertOrdered(t, snap)
}

func TestInsertEventFallsBackToUnknownAuthor(t *testing.T) {
	h := newHarness("u1")
	h.activate(t, models.GlobalRoom(), 1)

	incoming := msgAt("b", 2)
	h.gateway.On("FetchOne", mock.Anything, "b").Return(nil, errors.New("timeout")).Once()
	h.events.Emit(rowOf(incoming))

	snap := h.sync.Store().Snapshot()
	require.Len(t, snap, 1)
	assert.Equal(t, models.UnknownAuthor, snap[0].Author)
	assert.Equal(t, "body b", snap[0].Body)
}

func TestInsertEventFromOtherScopeIsIgnored(t *testing.T) {
	h := newHarness("u1")
	h.activate(t, models.DirectConversation("u1", "u2"), 1)

	stray := msgAt("x", 1)
	stray.Scope = models.DirectConversation("u2", "u3")
	h.events.Emit(rowOf(stray))

	assert.Equal(t, 0, h.sync.Store().Len())
	h.gateway.AssertNotCalled(t, "FetchOne", mock.Anything, mock.Anything)
}

func TestDeactivateStopsStoreChanges(t *testing.T) {
	h := newHarness("u1")
	h.activate(t, models.GlobalRoom(), 1, msgAt("a", 1))
	h.events.On("Unsubscribe", feed.Subscription(1)).Return(nil).Once()

	h.sync.Deactivate()
	h.sync.Deactivate()
	h.events.Emit(rowOf(msgAt("late", 2)))

	assert.Equal(t, feed.StateIdle, h.sync.State())
	assert.Equal(t, []string{"a"}, ids(h.sync.Store().Snapshot()))
	h.events.AssertNumberOfCalls(t, "Unsubscribe", 1)
	h.gateway.AssertNotCalled(t, "FetchOne", mock.Anything, mock.Anything)
}

func TestSendRejectsEmptyMessageWithoutIO(t *testing.T) {
	h := newHarness("u1")
	h.activate(t, models.GlobalRoom(), 1)

	for _, body := range []string{"", "   ", "\n\t"} {
		err := h.sync.Send(context.Background(), body, nil)
		var verr *feed.ValidationError
		require.ErrorAs(t, err, &verr, "body %q", body)
	}
	err := h.sync.Send(context.Background(), "", &feed.Attachment{ContentType: "image/png"})
	var verr *feed.ValidationError
	require.ErrorAs(t, err, &verr)

	h.blobs.AssertNotCalled(t, "Upload", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	h.gateway.AssertNotCalled(t, "InsertMessage", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestSendWithoutScopeFails(t *testing.T) {
	h := newHarness("u1")

	err := h.sync.Send(context.Background(), "hi", nil)

	var verr *feed.ValidationError
	require.ErrorAs(t, err, &verr)
	h.gateway.AssertNotCalled(t, "InsertMessage", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestSendTrimsBodyAndDoesNotAppendLocally(t *testing.T) {
	h := newHarness("u1")
	h.activate(t, models.GlobalRoom(), 1)
	h.gateway.On("InsertMessage", mock.Anything, models.GlobalRoom(), "u1", "hello", "").Return(msgAt("m1", 1), nil).Once()

	require.NoError(t, h.sync.Send(context.Background(), "  hello \n", nil))

	assert.Equal(t, 0, h.sync.Store().Len())
	h.gateway.AssertExpectations(t)
}

func TestSendAttachmentOnlyUsesPlaceholder(t *testing.T) {
	h := newHarness("u1")
	scope := models.DirectConversation("u1", "u2")
	h.activate(t, scope, 1)

	data := []byte{0x89, 'P', 'N', 'G'}
	h.blobs.On("Upload", mock.Anything, "u1", data, "image/png").Return("https://media/u1/1.png", nil).Once()
	h.gateway.On("InsertMessage", mock.Anything, scope, "u1", models.AttachmentPlaceholder, "https://media/u1/1.png").Return(models.Message{}, nil).Once()

	require.NoError(t, h.sync.Send(context.Background(), "", &feed.Attachment{Data: data, ContentType: "image/png"}))

	h.blobs.AssertExpectations(t)
	h.gateway.AssertExpectations(t)
}

func TestSendUploadFailureSkipsInsert(t *testing.T) {
	h := newHarness("u1")
	h.activate(t, models.GlobalRoom(), 1)
	h.blobs.On("Upload", mock.Anything, "u1", mock.Anything, "image/jpeg").Return("", errors.New("bucket full")).Once()

	err := h.sync.Send(context.Background(), "look", &feed.Attachment{Data: []byte("jpg"), ContentType: "image/jpeg"})

	var serr *feed.StorageError
	require.ErrorAs(t, err, &serr)
	h.gateway.AssertNotCalled(t, "InsertMessage", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestSendInsertFailureDeletesUploadOnce(t *testing.T) {
	h := newHarness("u1")
	h.activate(t, models.GlobalRoom(), 1)
	url := "https://media/u1/2.jpeg"
	h.blobs.On("Upload", mock.Anything, "u1", mock.Anything, "image/jpeg").Return(url, nil).Once()
	h.gateway.On("InsertMessage", mock.Anything, models.GlobalRoom(), "u1", "look", url).Return(nil, errors.New("constraint")).Once()
	h.blobs.On("Delete", mock.Anything, url).Return(nil).Once()

	err := h.sync.Send(context.Background(), "look", &feed.Attachment{Data: []byte("jpg"), ContentType: "image/jpeg"})

	var gerr *feed.GatewayError
	require.ErrorAs(t, err, &gerr)
	h.blobs.AssertNumberOfCalls(t, "Delete", 1)
	assert.Equal(t, 0, h.sync.Store().Len())
}

func TestSendThenInsertEventRoundTrip(t *testing.T) {
	h := newHarness("u1")
	h.activate(t, models.GlobalRoom(), 1)
	assert.Empty(t, h.sync.Store().Snapshot())

	saved := msgAt("m1", 1)
	saved.Body = "hello"
	h.gateway.On("InsertMessage", mock.Anything, models.GlobalRoom(), "u1", "hello", "").Return(saved, nil).Once()
	require.NoError(t, h.sync.Send(context.Background(), "hello", nil))

	h.gateway.On("FetchOne", mock.Anything, "m1").Return(withAuthor(saved, "u1@example.com"), nil).Once()
	h.events.Emit(rowOf(saved))

	snap := h.sync.Store().Snapshot()
	require.Len(t, snap, 1)
	assert.Equal(t, "hello", snap[0].Body)
	assert.Equal(t, "u1@example.com", snap[0].Author.Email)
}

func TestDeleteOthersMessageIsRejected(t *testing.T) {
	h := newHarness("u1")
	other := msgAt("a", 1)
	other.AuthorID = "u2"
	h.activate(t, models.GlobalRoom(), 1, other)

	err := h.sync.Delete(context.Background(), "a")

	var aerr *feed.AuthorizationError
	require.ErrorAs(t, err, &aerr)
	assert.Equal(t, []string{"a"}, ids(h.sync.Store().Snapshot()))
	h.gateway.AssertNotCalled(t, "DeleteMessage", mock.Anything, mock.Anything, mock.Anything)
}

func TestDeleteRemovesMessageAndAttachment(t *testing.T) {
	h := newHarness("u1")
	own := msgAt("a", 1)
	own.AttachmentURL = "https://media/u1/3.png"
	h.activate(t, models.GlobalRoom(), 1, msgAt("b", 2), own)
	h.gateway.On("DeleteMessage", mock.Anything, "a", "u1").Return(nil).Once()
	h.blobs.On("Delete", mock.Anything, own.AttachmentURL).Return(nil).Once()

	require.NoError(t, h.sync.Delete(context.Background(), "a"))

	assert.Equal(t, []string{"b"}, ids(h.sync.Store().Snapshot()))
	assert.Equal(t, feed.ChangeRemove, h.changes[len(h.changes)-1].Kind)
	h.blobs.AssertExpectations(t)
}

func TestDeleteMapsGatewayAuthorRefusal(t *testing.T) {
	h := newHarness("u1")
	h.gateway.On("FetchOne", mock.Anything, "z").Return(msgAt("z", 1), nil).Once()
	h.gateway.On("DeleteMessage", mock.Anything, "z", "u1").Return(feed.ErrNotAuthor).Once()

	err := h.sync.Delete(context.Background(), "z")

	var aerr *feed.AuthorizationError
	require.ErrorAs(t, err, &aerr)
	assert.ErrorIs(t, err, feed.ErrNotAuthor)
}

func TestDeleteUnknownMessage(t *testing.T) {
	h := newHarness("u1")
	h.gateway.On("FetchOne", mock.Anything, "nope").Return(nil, feed.ErrNotFound).Once()

	err := h.sync.Delete(context.Background(), "nope")

	var gerr *feed.GatewayError
	require.ErrorAs(t, err, &gerr)
	assert.ErrorIs(t, err, feed.ErrNotFound)
}

func TestMarkReadFlagsPeerMessages(t *testing.T) {
	h := newHarness("me")
	scope := models.DirectConversation("me", "coach")
	fromPeer := msgAt("a", 1)
	fromPeer.Scope = scope
	fromPeer.AuthorID = "coach"
	h.activate(t, scope, 1, fromPeer)
	h.gateway.On("MarkRead", mock.Anything, scope, "me").Return(nil).Once()

	require.NoError(t, h.sync.MarkRead(context.Background()))

	got, ok := h.sync.Store().Get("a")
	require.True(t, ok)
	assert.True(t, got.Read)
	assert.Equal(t, feed.ChangeRead, h.changes[len(h.changes)-1].Kind)
}

func TestMarkReadIgnoresRoom(t *testing.T) {
	h := newHarness("me")
	h.activate(t, models.GlobalRoom(), 1)

	require.NoError(t, h.sync.MarkRead(context.Background()))
	h.gateway.AssertNotCalled(t, "MarkRead", mock.Anything, mock.Anything, mock.Anything)
}

func TestReloadRefetchesKeepingSubscription(t *testing.T) {
	h := newHarness("u1")
	h.activate(t, models.GlobalRoom(), 1, msgAt("a", 1))
	h.gateway.On("FetchMessages", mock.Anything, models.GlobalRoom(), feed.DefaultLimit).Return([]models.Message{msgAt("b", 2), msgAt("a", 1)}, nil).Once()

	require.NoError(t, h.sync.Reload(context.Background()))

	assert.Equal(t, []string{"a", "b"}, ids(h.sync.Store().Snapshot()))
	assert.Equal(t, feed.StateLive, h.sync.State())
	h.events.AssertNumberOfCalls(t, "Subscribe", 1)
}

func TestReloadKeepsMessagesMergedDuringFetch(t *testing.T) {
	h := newHarness("u1")
	h.activate(t, models.GlobalRoom(), 1, msgAt("a", 1))

	live := msgAt("b", 2)
	h.gateway.On("FetchOne", mock.Anything, "b").Return(withAuthor(live, "coach@example.com"), nil).Once()
	h.gateway.On("FetchMessages", mock.Anything, models.GlobalRoom(), feed.DefaultLimit).
		Run(func(mock.Arguments) { h.events.Emit(rowOf(live)) }).
		Return([]models.Message{msgAt("a", 1)}, nil).Once()

	require.NoError(t, h.sync.Reload(context.Background()))

	snap := h.sync.Store().Snapshot()
	assert.Equal(t, []string{"a", "b"}, ids(snap))
	assert.Equal(t, "coach@example.com", snap[1].Author.Email)
	assertOrdered(t, snap)
}

func TestReloadDropsMessagesGoneFromGateway(t *testing.T) {
	h := newHarness("u1")
	h.activate(t, models.GlobalRoom(), 1, msgAt("b", 2), msgAt("a", 1))
	h.gateway.On("FetchMessages", mock.Anything, models.GlobalRoom(), feed.DefaultLimit).Return([]models.Message{msgAt("a", 1)}, nil).Once()

	require.NoError(t, h.sync.Reload(context.Background()))

	assert.Equal(t, []string{"a"}, ids(h.sync.Store().Snapshot()))
}

func TestActivateReleasesSubscriptionGrantedAfterDeactivate(t *testing.T) {
	h := newHarness("u1")
	h.gateway.On("FetchMessages", mock.Anything, models.GlobalRoom(), feed.DefaultLimit).Return([]models.Message{msgAt("a", 1)}, nil).Once()
	h.events.On("Subscribe", mock.Anything, models.GlobalRoom(), mock.Anything).
		Run(func(mock.Arguments) { h.sync.Deactivate() }).
		Return(feed.Subscription(7), nil).Once()
	h.events.On("Unsubscribe", feed.Subscription(7)).Return(nil).Once()

	err := h.sync.Activate(context.Background(), models.GlobalRoom())

	require.ErrorIs(t, err, feed.ErrSuperseded)
	assert.Equal(t, feed.StateIdle, h.sync.State())
	h.events.AssertExpectations(t)

	// the released subscription no longer reaches the store
	h.events.Emit(rowOf(msgAt("late", 2)))
	assert.Equal(t, []string{"a"}, ids(h.sync.Store().Snapshot()))
	h.gateway.AssertNotCalled(t, "FetchOne", mock.Anything, mock.Anything)
}

func TestInsertEventDiscardedWhenDeactivatedDuringResolve(t *testing.T) {
	h := newHarness("u1")
	h.activate(t, models.GlobalRoom(), 1, msgAt("a", 1))
	h.events.On("Unsubscribe", feed.Subscription(1)).Return(nil).Once()

	incoming := msgAt("b", 2)
	h.gateway.On("FetchOne", mock.Anything, "b").
		Run(func(mock.Arguments) { h.sync.Deactivate() }).
		Return(withAuthor(incoming, "coach@example.com"), nil).Once()
	changes := len(h.changes)

	h.events.Emit(rowOf(incoming))

	assert.Equal(t, []string{"a"}, ids(h.sync.Store().Snapshot()))
	assert.Len(t, h.changes, changes)
	h.events.AssertExpectations(t)
}

func TestWritesAfterDeactivateAreRejected(t *testing.T) {
	h := newHarness("me")
	scope := models.DirectConversation("me", "coach")
	h.activate(t, scope, 1)
	h.events.On("Unsubscribe", feed.Subscription(1)).Return(nil).Once()
	h.sync.Deactivate()

	var verr *feed.ValidationError
	require.ErrorAs(t, h.sync.Send(context.Background(), "still there?", nil), &verr)
	require.ErrorAs(t, h.sync.MarkRead(context.Background()), &verr)

	assert.Equal(t, scope, h.sync.Scope())
	h.gateway.AssertNotCalled(t, "InsertMessage", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	h.gateway.AssertNotCalled(t, "MarkRead", mock.Anything, mock.Anything, mock.Anything)
}
