package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"testing"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"

	"github.com/chomoku/kyoto-hexmap/internal/invalidation"
)

func TestRun_PublishesValidatedEvent(t *testing.T) {
	prod := mocks.NewSyncProducer(t, nil)
	prod.ExpectSendMessageWithCheckerFunctionAndSucceed(func(b []byte) error {
		var ev invalidation.Event
		if err := json.Unmarshal(b, &ev); err != nil {
			return err
		}
		if ev.Dataset != "suikei" || ev.Op != "update" || ev.TS.IsZero() {
			return fmt.Errorf("unexpected event %+v", ev)
		}
		return ev.Validate()
	})

	var out bytes.Buffer
	dial := func([]string) (sarama.SyncProducer, error) { return prod, nil }
	if err := run([]string{"-dataset", "suikei", "-op", "update"}, &out, dial); err != nil {
		t.Fatalf("run: %v", err)
	}
	if !strings.Contains(out.String(), "published update suikei") {
		t.Fatalf("output=%q", out.String())
	}
}

func TestRun_RejectsInvalidEvent(t *testing.T) {
	dial := func([]string) (sarama.SyncProducer, error) {
		t.Fatal("producer must not be created for an invalid event")
		return nil, nil
	}
	var out bytes.Buffer
	if err := run([]string{"-op", "reload"}, &out, dial); err == nil {
		t.Fatal("expected missing dataset error")
	}
	if err := run([]string{"-dataset", "suikei", "-op", "truncate"}, &out, dial); err == nil {
		t.Fatal("expected bad op error")
	}
}
