package events

import (
	"errors"
	"testing"
	"time"
)

func TestEventBus_PublishSubscribe(t *testing.T) {
	bus := NewEventBus(10)
	defer bus.Close()

	ch := bus.Subscribe(EventActiveFileChanged)

	bus.Publish(&NavigationEvent{
		BaseEvent: BaseEvent{
			EventType: EventActiveFileChanged,
			Time:      time.Now(),
		},
		ActiveFile:   "data/iris.csv",
		PreviousFile: "",
		ActiveFolder: "data",
	})

	select {
	case received := <-ch:
		nav, ok := received.(*NavigationEvent)
		if !ok {
			t.Fatal("Expected NavigationEvent")
		}
		if nav.ActiveFile != "data/iris.csv" {
			t.Errorf("Expected active file 'data/iris.csv', got '%s'", nav.ActiveFile)
		}
		if nav.ActiveFolder != "data" {
			t.Errorf("Expected active folder 'data', got '%s'", nav.ActiveFolder)
		}
	case <-time.After(100 * time.Millisecond):
		t.Fatal("Timeout waiting for event")
	}
}

func TestEventBus_MultipleSubscribers(t *testing.T) {
	bus := NewEventBus(10)
	defer bus.Close()

	ch1 := bus.Subscribe(EventTreeRefreshed)
	ch2 := bus.Subscribe(EventTreeRefreshed)

	bus.Publish(&TreeEvent{
		BaseEvent: BaseEvent{EventType: EventTreeRefreshed, Time: time.Now()},
		FileCount: 3,
	})

	received1 := false
	received2 := false

	select {
	case <-ch1:
		received1 = true
	case <-time.After(100 * time.Millisecond):
	}

	select {
	case <-ch2:
		received2 = true
	case <-time.After(100 * time.Millisecond):
	}

	if !received1 || !received2 {
		t.Error("Not all subscribers received the event")
	}
}

func TestEventBus_DifferentEventTypes(t *testing.T) {
	bus := NewEventBus(10)
	defer bus.Close()

	treeCh := bus.Subscribe(EventTreeRefreshed)
	logCh := bus.Subscribe(EventLog)

	bus.Publish(&TreeEvent{
		BaseEvent: BaseEvent{EventType: EventTreeRefreshed, Time: time.Now()},
	})

	select {
	case <-treeCh:
	case <-time.After(100 * time.Millisecond):
		t.Error("Tree subscriber didn't receive event")
	}

	select {
	case <-logCh:
		t.Error("Log subscriber received wrong event type")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestEventBus_SubscribeAll(t *testing.T) {
	bus := NewEventBus(10)
	defer bus.Close()

	allCh := bus.SubscribeAll()

	bus.Publish(&PanelResultEvent{
		BaseEvent: BaseEvent{EventType: EventPanelResult, Time: time.Now()},
		Panel:     "barplot",
	})
	bus.Publish(&LogEvent{
		BaseEvent: BaseEvent{EventType: EventLog, Time: time.Now()},
	})

	count := 0
	for i := 0; i < 2; i++ {
		select {
		case <-allCh:
			count++
		case <-time.After(100 * time.Millisecond):
		}
	}

	if count != 2 {
		t.Errorf("Expected to receive 2 events, got %d", count)
	}
}

func TestEventBus_NonBlocking(t *testing.T) {
	bus := NewEventBus(2)
	defer bus.Close()

	ch := bus.Subscribe(EventUploadProgress)

	for i := 0; i < 10; i++ {
		bus.Publish(&UploadProgressEvent{
			BaseEvent: BaseEvent{EventType: EventUploadProgress, Time: time.Now()},
			Name:      "big.csv",
		})
	}

	count := 0
	for {
		select {
		case <-ch:
			count++
		case <-time.After(10 * time.Millisecond):
			goto done
		}
	}
done:

	if count != 2 {
		t.Errorf("Expected buffer of 2 events, got %d", count)
	}
	if dropped := bus.GetDroppedEventCount(); dropped != 8 {
		t.Errorf("Expected 8 dropped events, got %d", dropped)
	}
}

func TestEventBus_Close(t *testing.T) {
	bus := NewEventBus(10)

	ch := bus.Subscribe(EventNavigationChanged)

	bus.Close()

	_, ok := <-ch
	if ok {
		t.Error("Channel should be closed after bus.Close()")
	}

	// Publishing after close should not panic
	bus.Publish(&NavigationEvent{
		BaseEvent: BaseEvent{EventType: EventNavigationChanged, Time: time.Now()},
	})

	// Subscribing after close returns a closed channel
	if _, ok := <-bus.Subscribe(EventLog); ok {
		t.Error("Subscribe after Close should return a closed channel")
	}
}

func TestEventBus_NilPublish(t *testing.T) {
	var bus *EventBus
	bus.Publish(&LogEvent{BaseEvent: BaseEvent{EventType: EventLog}})
}

func TestEventBus_Unsubscribe(t *testing.T) {
	bus := NewEventBus(10)
	defer bus.Close()

	ch := bus.Subscribe(EventLog)
	bus.Unsubscribe(EventLog, ch)

	bus.PublishLog(InfoLevel, "ignored", nil)

	select {
	case <-ch:
		t.Error("unsubscribed channel should not receive events")
	case <-time.After(20 * time.Millisecond):
	}
}

func TestLogLevel_String(t *testing.T) {
	tests := []struct {
		level    LogLevel
		expected string
	}{
		{DebugLevel, "DEBUG"},
		{InfoLevel, "INFO"},
		{WarnLevel, "WARN"},
		{ErrorLevel, "ERROR"},
		{LogLevel(42), "UNKNOWN"},
	}

	for _, tt := range tests {
		if got := tt.level.String(); got != tt.expected {
			t.Errorf("Level %d: expected %s, got %s", tt.level, tt.expected, got)
		}
	}
}

func TestPublishLog(t *testing.T) {
	bus := NewEventBus(10)
	defer bus.Close()

	logCh := bus.Subscribe(EventLog)
	bus.PublishLog(ErrorLevel, "refresh failed", errors.New("boom"))

	select {
	case event := <-logCh:
		log, ok := event.(*LogEvent)
		if !ok {
			t.Fatal("Expected LogEvent")
		}
		if log.Message != "refresh failed" || log.Error == nil {
			t.Errorf("unexpected log event: %+v", log)
		}
	case <-time.After(100 * time.Millisecond):
		t.Error("Timeout waiting for log event")
	}
}
