package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/joho/godotenv"
	"github.com/slack-go/slack"
	"golang.org/x/sync/errgroup"
	tele "gopkg.in/telebot.v3"

	"channel-clock/internal/cache"
	"channel-clock/internal/calendar"
	"channel-clock/internal/config"
	"channel-clock/internal/database"
	"channel-clock/internal/directory"
	"channel-clock/internal/handlers"
	"channel-clock/internal/metrics"
	"channel-clock/internal/mq"
	"channel-clock/internal/schedule"
	"channel-clock/internal/scheduler"
	"channel-clock/internal/status"
)

type cliFlags struct {
	once    bool
	regions string
}

func main() {
	var flags cliFlags
	flag.BoolVar(&flags.once, "once", false, "Evaluate and publish every region once, then exit")
	flag.StringVar(&flags.regions, "regions", "", "Path to a regions YAML file (overrides REGIONS_FILE)")
	flag.Parse()

	// Load .env if present.
	_ = godotenv.Load()

	cfg := config.Load()
	if flags.regions != "" {
		cfg.RegionsFile = flags.regions
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("config: %v", err)
	}
	regions, regionsFile, err := cfg.Regions()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	ref := regions[0]
	log.Printf("tracking %d regions, reference %s (%s)", len(regions), ref.ID, ref.Timezone)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// --- Redis (optional holiday feed cache) ---
	var feedCache calendar.FeedCache
	if cfg.RedisURL != "" {
		redisCache, err := cache.New(cfg.RedisURL)
		if err != nil {
			log.Fatalf("redis: %v", err)
		}
		defer redisCache.Close()
		feedCache = redisCache
		log.Println("redis connected")
	}

	// --- Holiday calendars ---
	feedList, static := holidaySources(regionsFile)
	feeds := calendar.NewFeeds(feedList, feedCache, cfg.HolidayRefreshSec)
	feeds.Refresh(ctx)
	policy := calendar.NewPolicy(calendar.Overlay{Primary: static, Fallback: feeds})

	// --- Directory ---
	dir, err := newDirectory(ctx, cfg)
	if err != nil {
		log.Fatalf("directory: %v", err)
	}
	log.Printf("%s directory ready", cfg.Directory)

	// --- Scheduling engine ---
	bounds, err := schedule.NewBoundaries(cfg.NightStart, cfg.DayStart, ref.Location)
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	grid, err := schedule.NewGrid(cfg.DispatchGridMinutes, ref.Location)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	m := metrics.New()
	sched := scheduler.New(
		regions,
		status.NewResolver(policy),
		schedule.NewEstimator(bounds, grid, policy, regions),
		bounds,
		directory.NewPublisher(dir, cfg.PublishTimeoutSec),
		m,
		cfg.GracePeriodSec,
	)

	h := &handlers.Handlers{
		Status:        sched,
		Metrics:       m,
		AdminLogin:    cfg.AdminLogin,
		AdminPassword: cfg.AdminPassword,
	}

	// --- Database (optional label history) ---
	if cfg.DatabaseURL != "" {
		db, err := database.New(ctx, cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("database: %v", err)
		}
		defer db.Close()

		if err := db.Migrate(ctx); err != nil {
			log.Fatalf("migrate: %v", err)
		}
		sched.SetRecorder(db)
		h.History = db
		log.Println("database connected and migrated")
	}

	// --- RabbitMQ (optional label change events) ---
	if cfg.RabbitMQURL != "" {
		mqPublisher, err := mq.NewPublisher(cfg.RabbitMQURL)
		if err != nil {
			log.Fatalf("rabbitmq publisher: %v", err)
		}
		defer mqPublisher.Close()
		sched.SetNotifier(mq.NewLabelNotifier(mqPublisher))
		log.Println("rabbitmq connected")
	}

	if flags.once {
		snap := sched.RunOnce(ctx)
		for _, r := range snap.Regions {
			log.Printf("%s: %q (%s)", r.RegionID, r.Label, r.Outcome)
		}
		return
	}

	// --- Fiber HTTP Server ---
	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
	})
	app.Use(logger.New(logger.Config{
		Format: "${time} ${status} ${method} ${path} ${latency}\n",
	}))
	app.Use(cors.New())
	h.Register(app)

	// --- Graceful shutdown ---
	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit
		log.Println("shutting down...")
		cancel()
	}()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		feeds.Start(gctx)
		return nil
	})
	g.Go(func() error {
		return sched.Start(gctx)
	})
	g.Go(func() error {
		log.Printf("[api] listening on :%s", cfg.Port)
		return app.Listen(":" + cfg.Port)
	})
	g.Go(func() error {
		<-gctx.Done()
		return app.ShutdownWithTimeout(10 * time.Second)
	})

	if err := g.Wait(); err != nil {
		log.Fatalf("server: %v", err)
	}
}

// holidaySources collects ICS feeds and inline holiday tables per calendar code.
func holidaySources(file config.RegionsFile) ([]calendar.Feed, calendar.Static) {
	var feeds []calendar.Feed
	static := make(calendar.Static)
	seen := make(map[string]bool)

	for _, spec := range file.Regions {
		code := spec.CalendarCode
		if spec.HolidayFeed != "" && !seen[code] {
			feeds = append(feeds, calendar.Feed{Code: code, URL: spec.HolidayFeed})
			seen[code] = true
		}
		for date, name := range spec.Holidays {
			if static[code] == nil {
				static[code] = make(map[string]string)
			}
			static[code][date] = name
		}
	}
	return feeds, static
}

func newDirectory(ctx context.Context, cfg *config.Config) (directory.Directory, error) {
	timeout := time.Duration(cfg.PublishTimeoutSec) * time.Second

	switch cfg.Directory {
	case config.DirectorySlack:
		client := slack.New(cfg.SlackBotToken, slack.OptionHTTPClient(&http.Client{Timeout: timeout}))
		auth, err := client.AuthTestContext(ctx)
		if err != nil {
			return nil, fmt.Errorf("slack auth: %w", err)
		}
		log.Printf("slack: authenticated as %s in %s", auth.User, auth.Team)
		return directory.NewSlack(client), nil
	default:
		b, err := tele.NewBot(tele.Settings{
			Token:  cfg.TelegramBotToken,
			Client: &http.Client{Timeout: timeout},
		})
		if err != nil {
			return nil, fmt.Errorf("create bot: %w", err)
		}
		log.Printf("telegram: authenticated as @%s", b.Me.Username)
		return directory.NewTelegram(b), nil
	}
}
