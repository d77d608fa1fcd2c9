package domain

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockReactionGateway struct {
	mock.Mock
}

func (m *mockReactionGateway) Reaction(ctx context.Context, token, postID string) (*Reaction, error) {
	args := m.Called(ctx, token, postID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Reaction), args.Error(1)
}

func (m *mockReactionGateway) PutReaction(ctx context.Context, token, postID string, kind ReactionKind) error {
	args := m.Called(ctx, token, postID, kind)
	return args.Error(0)
}

func (m *mockReactionGateway) DeleteReaction(ctx context.Context, token, postID string) error {
	args := m.Called(ctx, token, postID)
	return args.Error(0)
}

func TestReactionToggle_SwitchKinds(t *testing.T) {
	gw := new(mockReactionGateway)
	gw.On("PutReaction", mock.Anything, "tok", "post-1", ReactionLike).Return(nil).Once()
	gw.On("PutReaction", mock.Anything, "tok", "post-1", ReactionHeart).Return(nil).Once()

	toggle := NewReactionToggle("post-1", map[ReactionKind]int{ReactionLike: 4, ReactionHeart: 2}, gw, staticToken("tok"), nil)
	ctx := context.Background()

	require.NoError(t, toggle.Select(ctx, ReactionLike))
	assert.Equal(t, ReactionLike, toggle.Selected())
	assert.Equal(t, 5, toggle.Displayed(ReactionLike))
	assert.Equal(t, 2, toggle.Displayed(ReactionHeart))

	require.NoError(t, toggle.Select(ctx, ReactionHeart))
	assert.Equal(t, ReactionHeart, toggle.Selected())
	assert.Equal(t, 4, toggle.Displayed(ReactionLike), "previous kind drops by one")
	assert.Equal(t, 3, toggle.Displayed(ReactionHeart))

	gw.AssertNumberOfCalls(t, "PutReaction", 2)
	gw.AssertNotCalled(t, "DeleteReaction", mock.Anything, mock.Anything, mock.Anything)
	gw.AssertExpectations(t)
}

func TestReactionToggle_SelectSameKindDeselects(t *testing.T) {
	gw := new(mockReactionGateway)
	gw.On("PutReaction", mock.Anything, "tok", "post-1", ReactionHeart).Return(nil).Once()
	gw.On("DeleteReaction", mock.Anything, "tok", "post-1").Return(nil).Once()

	toggle := NewReactionToggle("post-1", map[ReactionKind]int{ReactionHeart: 1}, gw, staticToken("tok"), nil)
	ctx := context.Background()

	require.NoError(t, toggle.Select(ctx, ReactionHeart))
	require.NoError(t, toggle.Select(ctx, ReactionHeart))

	assert.Empty(t, toggle.Selected())
	assert.Equal(t, 1, toggle.Displayed(ReactionHeart))
	assert.Equal(t, map[ReactionKind]int{ReactionLike: 0, ReactionHeart: 1}, toggle.Counts())
	gw.AssertExpectations(t)
}

func TestReactionToggle_FailureKeepsOptimisticState(t *testing.T) {
	gw := new(mockReactionGateway)
	gw.On("PutReaction", mock.Anything, "tok", "post-1", ReactionLike).Return(fmt.Errorf("down: %w", ErrServer))

	toggle := NewReactionToggle("post-1", nil, gw, staticToken("tok"), nil)

	err := toggle.Select(context.Background(), ReactionLike)
	require.ErrorIs(t, err, ErrServer)
	assert.Equal(t, ReactionLike, toggle.Selected())
	assert.Equal(t, 1, toggle.Displayed(ReactionLike))
}

func TestReactionToggle_Validation(t *testing.T) {
	gw := new(mockReactionGateway)
	toggle := NewReactionToggle("post-1", nil, gw, staticToken("tok"), nil)
	assert.ErrorIs(t, toggle.Select(context.Background(), "shrug"), ErrInvalidReaction)

	anonymous := NewReactionToggle("post-1", nil, gw, staticToken(""), nil)
	assert.ErrorIs(t, anonymous.Select(context.Background(), ReactionLike), ErrNoCredential)

	gw.AssertNotCalled(t, "PutReaction", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestReactionToggle_LoadExcludesOwnReaction(t *testing.T) {
	gw := new(mockReactionGateway)
	gw.On("Reaction", mock.Anything, "tok", "post-1").
		Return(&Reaction{PostID: "post-1", User: User{ID: "me"}, Type: ReactionLike}, nil)
	gw.On("DeleteReaction", mock.Anything, "tok", "post-1").Return(nil)

	toggle := NewReactionToggle("post-1", nil, gw, staticToken("tok"), nil)
	assert.False(t, toggle.Loaded())
	require.NoError(t, toggle.Load(context.Background(), map[ReactionKind]int{ReactionLike: 3}))
	assert.True(t, toggle.Loaded())

	assert.Equal(t, ReactionLike, toggle.Selected())
	assert.Equal(t, 3, toggle.Displayed(ReactionLike))

	require.NoError(t, toggle.Deselect(context.Background()))
	assert.Equal(t, 2, toggle.Displayed(ReactionLike))
	gw.AssertNumberOfCalls(t, "DeleteReaction", 1)
}

func TestReactionToggle_ConcurrentSelectsReachBackendInOrder(t *testing.T) {
	gw := new(mockReactionGateway)
	started := make(chan struct{})
	release := make(chan struct{})
	var deleted atomic.Bool
	gw.On("PutReaction", mock.Anything, "tok", "post-1", ReactionLike).
		Run(func(mock.Arguments) {
			close(started)
			<-release
		}).
		Return(nil).Once()
	gw.On("DeleteReaction", mock.Anything, "tok", "post-1").
		Run(func(mock.Arguments) { deleted.Store(true) }).
		Return(nil).Once()

	toggle := NewReactionToggle("post-1", nil, gw, staticToken("tok"), nil)
	ctx := context.Background()

	first := make(chan error, 1)
	go func() { first <- toggle.Select(ctx, ReactionLike) }()
	<-started

	second := make(chan error, 1)
	go func() { second <- toggle.Select(ctx, ReactionLike) }()
	assert.Never(t, deleted.Load, 50*time.Millisecond, 5*time.Millisecond, "delete must wait for the put")

	close(release)
	require.NoError(t, <-first)
	require.NoError(t, <-second)

	require.Len(t, gw.Calls, 2)
	assert.Equal(t, "PutReaction", gw.Calls[0].Method)
	assert.Equal(t, "DeleteReaction", gw.Calls[1].Method)
	assert.Empty(t, toggle.Selected())
	gw.AssertExpectations(t)
}
