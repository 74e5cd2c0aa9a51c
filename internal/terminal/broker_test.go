package terminal

import (
	"testing"
	"time"
)

func TestBrokerPublishOrder(t *testing.T) {
	b := NewBroker()
	ch, unsub := b.Subscribe("run1")
	defer unsub()

	b.Publish("run1", Event{Type: EventOutput, Stream: StreamStdout, Text: "A"})
	b.Publish("run1", Event{Type: EventOutput, Stream: StreamStderr, Text: "B"})
	b.Publish("run1", Event{Type: EventOutput, Stream: StreamStdout, Text: "C"})
	b.Close("run1")

	var got []string
	for ev := range ch {
		got = append(got, ev.Text)
	}
	if len(got) != 3 || got[0] != "A" || got[1] != "B" || got[2] != "C" {
		t.Errorf("events = %v, want [A B C] in order", got)
	}
}

func TestBrokerLateSubscriberGetsClosedChannel(t *testing.T) {
	b := NewBroker()
	b.Close("done")

	ch, unsub := b.Subscribe("done")
	defer unsub()

	select {
	case _, ok := <-ch:
		if ok {
			t.Error("late subscriber received an event, want closed channel")
		}
	case <-time.After(time.Second):
		t.Error("late subscriber channel not closed")
	}
}

func TestBrokerPublishAfterCloseDropped(t *testing.T) {
	b := NewBroker()
	ch, unsub := b.Subscribe("run1")
	defer unsub()

	b.Close("run1")
	b.Publish("run1", Event{Type: EventOutput, Stream: StreamStdout, Text: "late"})

	count := 0
	for range ch {
		count++
	}
	if count != 0 {
		t.Errorf("received %d events after close, want 0", count)
	}
}

func TestBrokerUnsubscribeStopsDelivery(t *testing.T) {
	b := NewBroker()
	ch, unsub := b.Subscribe("run1")
	unsub()

	b.Publish("run1", Event{Type: EventOutput, Stream: StreamStdout, Text: "x"})

	select {
	case ev := <-ch:
		t.Errorf("received %v after unsubscribe", ev)
	default:
	}
}

func TestBrokerIndependentTopics(t *testing.T) {
	b := NewBroker()
	ch1, unsub1 := b.Subscribe("run1")
	defer unsub1()
	ch2, unsub2 := b.Subscribe("run2")
	defer unsub2()

	b.Publish("run1", Event{Type: EventOutput, Stream: StreamStdout, Text: "one"})

	select {
	case ev := <-ch1:
		if ev.Text != "one" {
			t.Errorf("run1 event = %v", ev)
		}
	case <-time.After(time.Second):
		t.Error("run1 subscriber did not receive event")
	}

	select {
	case ev := <-ch2:
		t.Errorf("run2 subscriber received %v, want nothing", ev)
	default:
	}
}
