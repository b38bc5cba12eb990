package realtime

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/lifeblood-api/internal/model"
	"github.com/jwalitptl/lifeblood-api/internal/repository/memory"
	"github.com/jwalitptl/lifeblood-api/pkg/logger"
	"github.com/jwalitptl/lifeblood-api/pkg/messaging"
	"github.com/jwalitptl/lifeblood-api/pkg/metrics"
)

func notificationsQuery(store *memory.Store, recipient uuid.UUID) Query {
	return Query{
		Collection: model.CollectionNotifications,
		Load: func(ctx context.Context) (interface{}, error) {
			return store.Notifications().List(ctx, &model.NotificationFilters{RecipientID: recipient})
		},
	}
}

func notify(t *testing.T, store *memory.Store, recipient uuid.UUID) {
	t.Helper()
	require.NoError(t, store.Notifications().Create(context.Background(), &model.Notification{
		RecipientID: recipient,
		Type:        model.NotificationOfferAccepted,
		Message:     "accepted",
	}))
}

func TestSubscriptionSnapshots(t *testing.T) {
	ctx := context.Background()
	broker := messaging.NewLocalBroker(16)
	store := memory.New(broker, logger.Nop())
	recipient := uuid.New()

	sub, err := Subscribe(ctx, broker, notificationsQuery(store, recipient), metrics.NewNop())
	require.NoError(t, err)

	first, err := sub.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), first.Seq)
	assert.Empty(t, first.Items)

	notify(t, store, recipient)
	notify(t, store, recipient)

	second, err := sub.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), second.Seq)
	assert.Len(t, second.Items, 2)

	waitCtx, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
	defer cancel()
	_, err = sub.Next(waitCtx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	require.NoError(t, sub.Close())
	require.NoError(t, sub.Close())
	_, err = sub.Next(ctx)
	assert.ErrorIs(t, err, ErrClosed)

	channel := model.ChangeChannel(model.CollectionNotifications)
	assert.Eventually(t, func() bool { return broker.Subscribers(channel) == 0 }, time.Second, 10*time.Millisecond)
}

func TestSubscriptionEndsWhenBrokerCloses(t *testing.T) {
	ctx := context.Background()
	broker := messaging.NewLocalBroker(4)
	store := memory.New(broker, logger.Nop())

	sub, err := Subscribe(ctx, broker, notificationsQuery(store, uuid.New()), metrics.NewNop())
	require.NoError(t, err)
	_, err = sub.Next(ctx)
	require.NoError(t, err)

	require.NoError(t, broker.Close())
	_, err = sub.Next(ctx)
	assert.ErrorIs(t, err, ErrClosed)
}

func TestStreamerServe(t *testing.T) {
	gin.SetMode(gin.TestMode)
	broker := messaging.NewLocalBroker(16)
	store := memory.New(broker, logger.Nop())
	recipient := uuid.New()

	streamer := NewStreamer(broker, []string{"*"}, logger.Nop(), metrics.NewNop())
	r := gin.New()
	r.GET("/ws", func(c *gin.Context) {
		streamer.Serve(c, notificationsQuery(store, recipient))
	})
	srv := httptest.NewServer(r)
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/ws", nil)
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))

	var snap struct {
		Seq   uint64                `json:"seq"`
		Items []*model.Notification `json:"items"`
	}
	require.NoError(t, conn.ReadJSON(&snap))
	assert.Equal(t, uint64(1), snap.Seq)
	assert.Empty(t, snap.Items)

	notify(t, store, recipient)

	require.NoError(t, conn.ReadJSON(&snap))
	assert.Equal(t, uint64(2), snap.Seq)
	require.Len(t, snap.Items, 1)
	assert.Equal(t, recipient, snap.Items[0].RecipientID)
}
