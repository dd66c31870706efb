package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xaenox/moodmate/internal/models"
	"github.com/xaenox/moodmate/internal/storage"
	"go.uber.org/zap/zaptest"
)

type recordingSink struct {
	mu    sync.Mutex
	name  string
	got   []*models.Notification
	err   error
	panic bool
}

func (s *recordingSink) Name() string { return s.name }

func (s *recordingSink) Deliver(ctx context.Context, n *models.Notification) error {
	if s.panic {
		panic("sink blew up")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.got = append(s.got, n)
	return s.err
}

func TestBroadcastFormatsConsoleLine(t *testing.T) {
	var buf bytes.Buffer
	console, err := NewConsoleSink(&buf, "utf-8")
	require.NoError(t, err)

	n := New(zaptest.NewLogger(t), console)
	n.Broadcast(context.Background(), models.ChannelMorning, "Good morning! 😄 Don't forget water 💧")

	assert.Equal(t, "[NOTIFY][morning] Good morning! 😄 Don't forget water 💧\n", buf.String())
}

func TestDirectFormatsConsoleLine(t *testing.T) {
	var buf bytes.Buffer
	console, err := NewConsoleSink(&buf, "")
	require.NoError(t, err)

	New(zaptest.NewLogger(t), console).Direct(context.Background(), "alice@example.com", "Your weekly summary is ready")

	assert.Equal(t, "[NOTIFY][user:alice@example.com] Your weekly summary is ready\n", buf.String())
}

func TestConsoleSinkReplacesUnencodableCharacters(t *testing.T) {
	var buf bytes.Buffer
	console, err := NewConsoleSink(&buf, "windows-1252")
	require.NoError(t, err)
	assert.Equal(t, "windows-1252", console.Charset())

	n := New(zaptest.NewLogger(t), console)
	assert.NotPanics(t, func() {
		n.Broadcast(context.Background(), models.ChannelNight, "Good night 🌙 café")
	})

	// é exists in windows-1252 and is kept as its single byte.
	assert.Equal(t, "[NOTIFY][night] Good night ? caf\xe9\n", buf.String())
}

func TestConsoleSinkRepairsInvalidUTF8(t *testing.T) {
	var buf bytes.Buffer
	console, err := NewConsoleSink(&buf, "utf-8")
	require.NoError(t, err)

	require.NoError(t, console.Deliver(context.Background(), &models.Notification{Channel: models.ChannelCustom, Message: "bad \xff byte"}))
	assert.Equal(t, "[NOTIFY][custom] bad � byte\n", buf.String())
}

func TestConsoleSinkUnknownCharset(t *testing.T) {
	var buf bytes.Buffer
	console, err := NewConsoleSink(&buf, "klingon-8")
	assert.Error(t, err)
	require.NotNil(t, console)
	assert.Equal(t, "utf-8", console.Charset())
}

func TestFailingSinkDoesNotStopDelivery(t *testing.T) {
	failing := &recordingSink{name: "failing", err: errors.New("smtp down")}
	panicking := &recordingSink{name: "panicking", panic: true}
	last := &recordingSink{name: "last"}

	n := New(zaptest.NewLogger(t), failing, panicking, last)
	assert.NotPanics(t, func() {
		n.Broadcast(context.Background(), models.ChannelAfternoon, "Did you have lunch?")
	})

	require.Len(t, last.got, 1)
	got := last.got[0]
	assert.Equal(t, models.ChannelAfternoon, got.Channel)
	assert.Equal(t, "Did you have lunch?", got.Message)
	assert.NotEmpty(t, got.ID)
	assert.False(t, got.CreatedAt.IsZero())
}

func TestStoreSinkRecordsNotifications(t *testing.T) {
	store := storage.NewMemoryStorage(10)
	n := New(zaptest.NewLogger(t), NewStoreSink(store))

	n.Broadcast(context.Background(), models.ChannelMorning, "one")
	n.Direct(context.Background(), "42", "two")

	got, err := store.RecentNotifications(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "42", got[0].Recipient)
	assert.Equal(t, models.ChannelMorning, got[1].Channel)
}

type fakeTelegram struct {
	mu   sync.Mutex
	sent []tgbotapi.MessageConfig
	err  error
}

func (f *fakeTelegram) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if msg, ok := c.(tgbotapi.MessageConfig); ok {
		f.sent = append(f.sent, msg)
	}
	return tgbotapi.Message{}, f.err
}

func TestTelegramSinkBroadcastAndDirect(t *testing.T) {
	api := &fakeTelegram{}
	sink := newTelegramSink(api, []int64{100, 200}, zaptest.NewLogger(t))
	ctx := context.Background()

	require.NoError(t, sink.Deliver(ctx, &models.Notification{Channel: models.ChannelMorning, Message: "hello"}))
	require.NoError(t, sink.Deliver(ctx, &models.Notification{Recipient: "300", Message: "just you"}))
	require.NoError(t, sink.Deliver(ctx, &models.Notification{Recipient: "bob@example.com", Message: "skipped"}))

	require.Len(t, api.sent, 3)
	assert.Equal(t, int64(100), api.sent[0].ChatID)
	assert.Equal(t, int64(200), api.sent[1].ChatID)
	assert.Equal(t, int64(300), api.sent[2].ChatID)
	assert.Equal(t, "just you", api.sent[2].Text)
}

func TestTelegramSinkJoinsErrors(t *testing.T) {
	api := &fakeTelegram{err: errors.New("forbidden")}
	sink := newTelegramSink(api, []int64{1, 2}, zaptest.NewLogger(t))

	err := sink.Deliver(context.Background(), &models.Notification{Channel: models.ChannelNight, Message: "x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "chat 1")
	assert.Contains(t, err.Error(), "chat 2")
}

type fakePublisher struct {
	exchange string
	key      string
	msg      amqp.Publishing
}

func (f *fakePublisher) PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error {
	f.exchange, f.key, f.msg = exchange, key, msg
	return nil
}

func TestAMQPSinkPublishesJSON(t *testing.T) {
	pub := &fakePublisher{}
	sink := newAMQPSink(pub, "moodmate.notifications", zaptest.NewLogger(t))

	n := &models.Notification{ID: "abc", Channel: models.ChannelNight, Message: "Good night"}
	require.NoError(t, sink.Deliver(context.Background(), n))

	assert.Equal(t, "moodmate.notifications", pub.exchange)
	assert.Equal(t, "notify.night", pub.key)
	assert.Equal(t, "abc", pub.msg.MessageId)
	assert.Equal(t, "application/json", pub.msg.ContentType)

	var decoded models.Notification
	require.NoError(t, json.Unmarshal(pub.msg.Body, &decoded))
	assert.Equal(t, "Good night", decoded.Message)

	require.NoError(t, sink.Deliver(context.Background(), &models.Notification{ID: "d", Recipient: "7", Message: "hi"}))
	assert.Equal(t, "notify.direct", pub.key)
	assert.NoError(t, sink.Close())
}
