package progressbus

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"webscope/internal/core/domain/common"
)

func TestPublishDeliversToSubscriber(t *testing.T) {
	bus := New()
	ch, unsubscribe := bus.Subscribe("job-1")
	defer unsubscribe()

	bus.Publish(context.Background(), common.ProgressEvent{EntityID: "job-1", Progress: 30, CurrentStep: "rule"})

	select {
	case ev := <-ch:
		assert.Equal(t, 30, ev.Progress)
	case <-time.After(time.Second):
		t.Fatal("expected event not received")
	}
}

func TestPublishIgnoresOtherKeys(t *testing.T) {
	bus := New()
	ch, unsubscribe := bus.Subscribe("job-1")
	defer unsubscribe()

	bus.Publish(context.Background(), common.ProgressEvent{EntityID: "job-2", Progress: 30})

	select {
	case ev := <-ch:
		t.Fatalf("unexpected event for other key: %+v", ev)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	bus := New()
	ch, unsubscribe := bus.Subscribe("job-1")
	unsubscribe()

	_, open := <-ch
	assert.False(t, open)
}

func TestSlowSubscriberDoesNotBlockPublish(t *testing.T) {
	bus := New()
	_, unsubscribe := bus.Subscribe("job-1")
	defer unsubscribe()

	done := make(chan struct{})
	go func() {
		for i := 0; i < subscriberBufferSize+5; i++ {
			bus.Publish(context.Background(), common.ProgressEvent{EntityID: "job-1", Progress: i})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publish blocked on a full subscriber buffer")
	}
}

func TestMultipleSubscribersIndependent(t *testing.T) {
	bus := New()
	ch1, unsub1 := bus.Subscribe("job-1")
	defer unsub1()
	ch2, unsub2 := bus.Subscribe("job-1")
	defer unsub2()

	bus.Publish(context.Background(), common.ProgressEvent{EntityID: "job-1", Progress: 60})

	for _, ch := range []<-chan common.ProgressEvent{ch1, ch2} {
		select {
		case ev := <-ch:
			require.Equal(t, 60, ev.Progress)
		case <-time.After(time.Second):
			t.Fatal("expected event not received")
		}
	}
}
