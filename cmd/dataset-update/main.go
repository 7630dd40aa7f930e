// Command dataset-update announces a replaced dataset file so running
// dashboards drop their cached copies.
//
//	dataset-update -dataset suikei -op reload
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/IBM/sarama"

	"github.com/chomoku/kyoto-hexmap/internal/invalidation"
)

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func main() {
	if err := run(os.Args[1:], os.Stdout, newProducer); err != nil {
		fmt.Fprintln(os.Stderr, "dataset-update:", err)
		os.Exit(1)
	}
}

func newProducer(brokers []string) (sarama.SyncProducer, error) {
	cfg := sarama.NewConfig()
	cfg.Producer.Return.Successes = true
	cfg.Producer.RequiredAcks = sarama.WaitForAll
	cfg.Version = sarama.V2_1_0_0
	return sarama.NewSyncProducer(brokers, cfg)
}

func run(args []string, out io.Writer, dial func([]string) (sarama.SyncProducer, error)) error {
	fs := flag.NewFlagSet("dataset-update", flag.ContinueOnError)
	brokers := fs.String("brokers", getenv("KAFKA_BROKERS", "localhost:9092"), "comma separated Kafka brokers")
	topic := fs.String("topic", getenv("INVALIDATION_TOPIC", "dataset-updates"), "update topic")
	dataset := fs.String("dataset", "", "dataset key or label, or facilities")
	op := fs.String("op", "reload", "insert|update|delete|reload")
	source := fs.String("source", "dataset-update", "free-form origin recorded in the event")
	if err := fs.Parse(args); err != nil {
		return err
	}

	ev := invalidation.Event{
		Version: 1,
		Op:      *op,
		Dataset: strings.TrimSpace(*dataset),
		TS:      time.Now().UTC(),
		Source:  *source,
	}
	if err := ev.Validate(); err != nil {
		return fmt.Errorf("invalid event: %w", err)
	}
	b, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}

	prod, err := dial(strings.Split(*brokers, ","))
	if err != nil {
		return fmt.Errorf("producer create: %w", err)
	}
	defer func() { _ = prod.Close() }()

	part, off, err := prod.SendMessage(&sarama.ProducerMessage{
		Topic: *topic,
		Key:   sarama.StringEncoder(ev.Dataset),
		Value: sarama.ByteEncoder(b),
	})
	if err != nil {
		return fmt.Errorf("send message: %w", err)
	}
	fmt.Fprintf(out, "published %s %s to %s (partition %d, offset %d)\n", ev.Op, ev.Dataset, *topic, part, off)
	return nil
}
