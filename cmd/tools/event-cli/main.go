package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"time"

	nats "github.com/nats-io/nats.go"

	"github.com/annel0/voxel-terrain/internal/eventbus"
)

const (
	defaultServerURL = nats.DefaultURL
	timeFormat       = "2006-01-02T15:04:05Z"
	idleTimeout      = time.Second
)

func main() {
	var (
		serverURL  = flag.String("server", defaultServerURL, "NATS server URL")
		command    = flag.String("cmd", "tail", "Command: tail, stats")
		eventTypes = flag.String("types", "", "Event types filter (comma-separated)")
		sources    = flag.String("sources", "", "Sources filter (comma-separated)")
		since      = flag.String("since", "1h", "Time duration since now (e.g., 1h, 30m) or RFC3339 time")
		limit      = flag.Int("limit", 100, "Maximum number of events")
		follow     = flag.Bool("follow", false, "Follow new events (like tail -f)")
	)
	flag.Parse()

	nc, err := nats.Connect(*serverURL, nats.Name("terrain-event-cli"))
	if err != nil {
		log.Fatalf("❌ Failed to connect to NATS: %v", err)
	}
	defer nc.Close()

	js, err := nc.JetStream()
	if err != nil {
		log.Fatalf("❌ JetStream unavailable: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	startTime, err := parseSinceTime(*since, time.Now())
	if err != nil {
		log.Fatalf("❌ Invalid since time: %v", err)
	}
	filter := eventbus.Filter{
		Types:   parseStringList(*eventTypes),
		Sources: parseStringList(*sources),
	}

	switch *command {
	case "tail":
		opts := &TailOptions{Filter: filter, Since: startTime, Limit: *limit, Follow: *follow}
		if err := tailEvents(ctx, js, opts); err != nil {
			log.Fatalf("❌ Tail failed: %v", err)
		}

	case "stats":
		if err := showStats(ctx, js, filter, startTime); err != nil {
			log.Fatalf("❌ Stats failed: %v", err)
		}

	default:
		fmt.Printf("❌ Unknown command: %s\n", *command)
		fmt.Println("Available commands: tail, stats")
		os.Exit(1)
	}
}

type TailOptions struct {
	Filter eventbus.Filter
	Since  time.Time
	Limit  int
	Follow bool
}

// subscribe создаёт упорядоченного consumer'а, читающего стрим с момента since
func subscribe(js nats.JetStreamContext, f eventbus.Filter, since time.Time) (*nats.Subscription, error) {
	subj := eventbus.SubjectPrefix + ".*"
	if len(f.Types) == 1 {
		subj = eventbus.Subject(f.Types[0])
	}
	return js.SubscribeSync(subj, nats.OrderedConsumer(), nats.StartTime(since))
}

// readEvents отдаёт события в fn, пока тот возвращает true. Без follow чтение
// заканчивается, когда стрим молчит дольше idleTimeout.
func readEvents(ctx context.Context, sub *nats.Subscription, f eventbus.Filter, follow bool, fn func(*eventbus.Envelope) bool) error {
	for ctx.Err() == nil {
		msg, err := sub.NextMsg(idleTimeout)
		if errors.Is(err, nats.ErrTimeout) {
			if follow {
				continue
			}
			return nil
		}
		if err != nil {
			return fmt.Errorf("next message: %w", err)
		}

		var ev eventbus.Envelope
		if err := json.Unmarshal(msg.Data, &ev); err != nil {
			fmt.Printf("⚠️  Skipping malformed event on %s: %v\n", msg.Subject, err)
			continue
		}
		if !matches(&ev, f) {
			continue
		}
		if !fn(&ev) {
			return nil
		}
	}
	return nil
}

// tailEvents выводит события из стрима
func tailEvents(ctx context.Context, js nats.JetStreamContext, opts *TailOptions) error {
	fmt.Printf("🎬 Tailing events since %s (limit: %d, follow: %v)\n", opts.Since.UTC().Format(timeFormat), opts.Limit, opts.Follow)

	sub, err := subscribe(js, opts.Filter, opts.Since)
	if err != nil {
		return err
	}
	defer sub.Unsubscribe()

	eventCount := 0
	err = readEvents(ctx, sub, opts.Filter, opts.Follow, func(ev *eventbus.Envelope) bool {
		fmt.Println(formatEvent(ev))
		eventCount++
		// follow режим не ограничен лимитом
		return opts.Follow || eventCount < opts.Limit
	})

	fmt.Printf("\n📊 Total events: %d\n", eventCount)
	return err
}

// showStats выводит количество событий по типам
func showStats(ctx context.Context, js nats.JetStreamContext, f eventbus.Filter, since time.Time) error {
	fmt.Println("📊 Event statistics")

	sub, err := subscribe(js, f, since)
	if err != nil {
		return err
	}
	defer sub.Unsubscribe()

	counter := newTypeCounter()
	if err := readEvents(ctx, sub, f, false, func(ev *eventbus.Envelope) bool {
		counter.add(ev)
		return true
	}); err != nil {
		return err
	}

	fmt.Printf("Since: %s\n", since.UTC().Format(timeFormat))
	fmt.Print(counter.String())
	return nil
}

// matches повторяет фильтрацию шины на стороне клиента
func matches(ev *eventbus.Envelope, f eventbus.Filter) bool {
	if len(f.Types) > 0 && !contains(f.Types, ev.EventType) {
		return false
	}
	if len(f.Sources) > 0 && !contains(f.Sources, ev.Source) {
		return false
	}
	return true
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// formatEvent печатает событие в читаемом формате
func formatEvent(ev *eventbus.Envelope) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "[%s] %s [%s] %s",
		ev.Timestamp.UTC().Format("15:04:05"),
		ev.Source,
		ev.EventType,
		ev.ID)

	// Детали в зависимости от типа события
	switch ev.EventType {
	case eventbus.EventBlockChange:
		if p, err := eventbus.DecodeBlockChange(ev); err == nil {
			fmt.Fprintf(&sb, "\n  Block: (%d,%d,%d) %s health=%d chunk=%v",
				p.Position.X, p.Position.Y, p.Position.Z,
				p.Block.Material, p.Block.Health, p.Chunk)
		}
	case eventbus.EventWorldReady:
		var p eventbus.WorldReadyPayload
		if err := json.Unmarshal(ev.Payload, &p); err == nil {
			fmt.Fprintf(&sb, "\n  World: %d chunks, role %s", p.Stats.Chunks, p.Stats.Role)
		}
	}
	return sb.String()
}

// typeCounter считает события по типам
type typeCounter struct {
	total  int
	byType map[string]int
}

func newTypeCounter() *typeCounter {
	return &typeCounter{byType: make(map[string]int)}
}

func (tc *typeCounter) add(ev *eventbus.Envelope) {
	tc.total++
	tc.byType[ev.EventType]++
}

func (tc *typeCounter) String() string {
	types := make([]string, 0, len(tc.byType))
	for t := range tc.byType {
		types = append(types, t)
	}
	sort.Strings(types)

	var sb strings.Builder
	fmt.Fprintf(&sb, "Total events: %d\n", tc.total)
	sb.WriteString("\nBy event type:\n")
	for _, t := range types {
		fmt.Fprintf(&sb, "  %s: %d events\n", t, tc.byType[t])
	}
	return sb.String()
}

// parseStringList парсит строку с разделителями-запятыми
func parseStringList(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}

// parseSinceTime парсит относительное время типа "1h", "30m" или абсолютное
func parseSinceTime(since string, from time.Time) (time.Time, error) {
	if since == "" {
		return from, nil
	}

	duration, err := time.ParseDuration(since)
	if err != nil {
		// Пробуем парсить как абсолютное время
		return time.Parse(timeFormat, since)
	}

	return from.Add(-duration), nil
}
