package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/jwebster45206/enlisted/internal/services/queue"
	"github.com/jwebster45206/enlisted/pkg/host"
	queuePkg "github.com/jwebster45206/enlisted/pkg/queue"
	"github.com/jwebster45206/enlisted/pkg/session"
)

func main() {
	redisURL := flag.String("redis", "redis://localhost:6379", "Redis URL")
	sessionFlag := flag.String("session", "00000000-0000-0000-0000-000000000001", "session ID")
	flag.Parse()

	sessionID, err := uuid.Parse(*sessionFlag)
	if err != nil {
		log.Fatal("Invalid session ID:", err)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	client, err := queue.NewClient(*redisURL, logger)
	if err != nil {
		log.Fatal("Failed to connect to Redis:", err)
	}
	defer client.Close()

	fmt.Println("Connected to Redis successfully!")

	ctx := context.Background()
	q := queue.NewHostEventQueue(client, logger)

	// A lord battle from start to finish, then a day passing
	world := host.NewSnapshot(time.Now())
	world.Lords["lord_test"] = host.Lord{ID: "lord_test", Name: "Test Lord", Alive: true, PartyID: "party_test", Gold: 12000, Food: 80}
	world.Party = host.PlayerParty{ID: "player", AttachedTo: "party_test", TroopCount: 8}
	world.Battles = []host.Battle{{ID: "battle_test", Attackers: []string{"party_test"}, Defenders: []string{"looters"}}}

	ended := *world
	ended.Battles = []host.Battle{{ID: "battle_test", Attackers: []string{"party_test"}, Defenders: []string{"looters"}, Winner: host.SideAttacker}}

	reqs := []*queuePkg.Request{
		queuePkg.NewHostEventRequest(sessionID, session.Event{Type: session.EventBattleStarted, BattleID: "battle_test"}, world),
		queuePkg.NewHostEventRequest(sessionID, session.Event{Type: session.EventBattleEnded, BattleID: "battle_test", Winner: host.SideAttacker}, &ended),
		queuePkg.NewHostEventRequest(sessionID, session.Event{Type: session.EventDailyTick}, &ended),
	}

	for _, req := range reqs {
		if err := q.EnqueueRequest(ctx, req); err != nil {
			log.Fatal("Failed to enqueue request:", err)
		}
		fmt.Printf("✅ Enqueued %s: %s\n", req.Event.Type, req.RequestID)
	}

	depth, err := q.Depth(ctx)
	if err != nil {
		log.Fatal("Failed to get queue depth:", err)
	}

	fmt.Printf("\n📊 Queue depth: %d requests\n", depth)
	fmt.Println("\n💡 Now start the worker to see it process these requests!")
	fmt.Println("   Run: go run cmd/worker/main.go")
}
