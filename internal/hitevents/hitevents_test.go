package hitevents

import (
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
)

func TestPublisher_SendsJSONEvent(t *testing.T) {
	cfg := sarama.NewConfig()
	prod := mocks.NewAsyncProducer(t, cfg)
	prod.ExpectInputWithCheckerFunctionAndSucceed(func(b []byte) error {
		var ev Event
		if err := json.Unmarshal(b, &ev); err != nil {
			return err
		}
		if ev.Dataset != "suikei" || ev.Policy != "rect" || ev.RadiusM != 1000 || ev.TS.IsZero() {
			return fmt.Errorf("unexpected event %+v", ev)
		}
		return nil
	})

	p := NewWithProducer(prod, "tradearea-events", 4, nil)
	p.Publish(Event{Dataset: "suikei", Lon: 135.7681, Lat: 35.0116, RadiusM: 1000, Policy: "rect", Variant: "tradearea-rect"})
	if err := p.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
}

// blockingProducer never drains Input so the queue fills up.
type blockingProducer struct {
	sarama.AsyncProducer
	in   chan *sarama.ProducerMessage
	errs chan *sarama.ProducerError
}

func (b *blockingProducer) Input() chan<- *sarama.ProducerMessage { return b.in }
func (b *blockingProducer) Errors() <-chan *sarama.ProducerError  { return b.errs }

func TestPublisher_DropsWhenQueueFull(t *testing.T) {
	bp := &blockingProducer{in: make(chan *sarama.ProducerMessage), errs: make(chan *sarama.ProducerError)}
	p := NewWithProducer(bp, "t", 1, nil)

	done := make(chan struct{})
	go func() {
		for range 10 {
			p.Publish(Event{Dataset: "d", TS: time.Unix(0, 0)})
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Publish blocked")
	}
	// one event is held by the sender goroutine and one sits in the queue
	if p.Dropped() < 8 {
		t.Fatalf("dropped=%d want >= 8", p.Dropped())
	}
}
