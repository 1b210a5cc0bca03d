package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"os"
	"os/signal"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/IBM/sarama"
	"github.com/google/uuid"
)

// GameplayEvent mirrors the service's ingestion message format
type GameplayEvent struct {
	PlayerKey    string                 `json:"player_key"`
	Name         string                 `json:"name,omitempty"`
	EventType    string                 `json:"event_type"`
	EventSource  string                 `json:"event_source"`
	BaseXP       int                    `json:"base_xp"`
	OriginServer string                 `json:"origin_server,omitempty"`
	Metadata     map[string]interface{} `json:"metadata,omitempty"`
}

var playerPrefixes = []string{
	"Phoenix", "Shadow", "Thunder", "Storm", "Blaze", "Ninja", "Dragon", "Wolf", "Hawk", "Viper",
	"Ghost", "Titan", "Frost", "Cyber", "Nova", "Raven", "Omega", "Alpha", "Delta", "Sigma",
	"Ace", "Bolt", "Crash", "Dash", "Edge", "Flash", "Glitch", "Haze", "Ion", "Jade",
	"Knight", "Luna", "Mystic", "Neon", "Orion", "Pulse", "Quantum", "Rebel", "Spark", "Turbo",
}

var eventTypes = []struct {
	eventType string
	sources   []string
	minXP     int
	maxXP     int
}{
	{"advancement", []string{"story/mine_stone", "story/smelt_iron", "nether/obtain_blaze_rod", "end/kill_dragon"}, 20, 100},
	{"kill", []string{"zombie", "skeleton", "creeper", "enderman", "wither"}, 5, 50},
	{"break_block", []string{"stone", "dirt", "oak_log", "diamond_ore"}, 1, 10},
	{"craft", []string{"crafting_table", "iron_pickaxe", "enchanting_table"}, 5, 25},
	{"playtime", []string{"session"}, 5, 30},
	{"fish", []string{"cod", "salmon", "pufferfish"}, 5, 15},
	{"mine", []string{"coal_ore", "iron_ore", "gold_ore", "diamond_ore"}, 2, 20},
}

var originServers = []string{"survival", "skyblock", "creative"}

func getPlayerName(idx int) string {
	prefixIdx := idx % len(playerPrefixes)
	suffix := idx/len(playerPrefixes) + 1
	return fmt.Sprintf("%s%d", playerPrefixes[prefixIdx], suffix)
}

func main() {
	// Command line flags
	brokers := flag.String("brokers", "localhost:9094", "Kafka brokers (comma-separated)")
	topic := flag.String("topic", "gameplay-events", "Kafka topic")
	totalPlayers := flag.Int("players", 200, "Number of simulated players")
	eventsPerSecond := flag.Int("rate", 50, "Events per second")
	duration := flag.Duration("duration", 0, "Duration to run (0 = forever)")
	flag.Parse()

	brokerList := strings.Split(*brokers, ",")

	fmt.Println("Gatewarden gameplay event producer")
	fmt.Printf("  Brokers:     %s\n", *brokers)
	fmt.Printf("  Topic:       %s\n", *topic)
	fmt.Printf("  Players:     %d\n", *totalPlayers)
	fmt.Printf("  Events/sec:  %d\n", *eventsPerSecond)
	fmt.Println()

	// Configure Sarama producer
	config := sarama.NewConfig()
	config.Producer.RequiredAcks = sarama.WaitForLocal
	config.Producer.Compression = sarama.CompressionSnappy
	config.Producer.Flush.Frequency = 100 * time.Millisecond
	config.Producer.Flush.Messages = 100
	config.Producer.Return.Successes = true
	config.Producer.Return.Errors = true

	// Create producer
	producer, err := sarama.NewAsyncProducer(brokerList, config)
	if err != nil {
		log.Fatalf("Failed to create producer: %v", err)
	}
	defer producer.Close()

	// Stable player keys for the run
	playerKeys := make([]string, *totalPlayers)
	for i := range playerKeys {
		playerKeys[i] = uuid.New().String()
	}

	// Handle producer errors and successes
	var successCount, errorCount int64
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		for range producer.Successes() {
			atomic.AddInt64(&successCount, 1)
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		for err := range producer.Errors() {
			atomic.AddInt64(&errorCount, 1)
			log.Printf("Producer error: %v", err)
		}
	}()

	// Handle shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	done := make(chan struct{})

	// Send message helper
	sendEvent := func(ev GameplayEvent) {
		data, err := json.Marshal(ev)
		if err != nil {
			log.Printf("Failed to marshal message: %v", err)
			return
		}

		msg := &sarama.ProducerMessage{
			Topic: *topic,
			Key:   sarama.StringEncoder(ev.PlayerKey),
			Value: sarama.ByteEncoder(data),
		}

		select {
		case producer.Input() <- msg:
		case <-done:
			return
		}
	}

	fmt.Println("Press Ctrl+C to stop")
	fmt.Println()

	interval := time.Second / time.Duration(*eventsPerSecond)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	statsTicker := time.NewTicker(5 * time.Second)
	defer statsTicker.Stop()

	var endTime time.Time
	if *duration > 0 {
		endTime = time.Now().Add(*duration)
	}

	var sentCount int64

	shutdown := func() {
		close(done)
		producer.AsyncClose()
		wg.Wait()
		fmt.Printf("\nCompleted. Sent: %d, Errors: %d\n", atomic.LoadInt64(&successCount), atomic.LoadInt64(&errorCount))
	}

	for {
		select {
		case <-sigChan:
			fmt.Println("\nShutting down...")
			shutdown()
			return

		case <-ticker.C:
			if *duration > 0 && time.Now().After(endTime) {
				fmt.Println("\nDuration reached, shutting down...")
				shutdown()
				return
			}

			playerIdx := rand.Intn(*totalPlayers)
			kind := eventTypes[rand.Intn(len(eventTypes))]

			ev := GameplayEvent{
				PlayerKey:    playerKeys[playerIdx],
				Name:         getPlayerName(playerIdx),
				EventType:    kind.eventType,
				EventSource:  kind.sources[rand.Intn(len(kind.sources))],
				BaseXP:       rand.Intn(kind.maxXP-kind.minXP+1) + kind.minXP,
				OriginServer: originServers[rand.Intn(len(originServers))],
			}
			sendEvent(ev)
			atomic.AddInt64(&sentCount, 1)

		case <-statsTicker.C:
			fmt.Printf("[%s] Sent: %d | Acked: %d | Errors: %d\n",
				time.Now().Format("15:04:05"),
				atomic.LoadInt64(&sentCount),
				atomic.LoadInt64(&successCount),
				atomic.LoadInt64(&errorCount),
			)
		}
	}
}
