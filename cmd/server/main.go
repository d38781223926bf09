package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"

	"github.com/auctionhq/auctionhouse/internal/admin"
	"github.com/auctionhq/auctionhouse/internal/alerts"
	"github.com/auctionhq/auctionhouse/internal/auth"
	"github.com/auctionhq/auctionhouse/internal/batch"
	"github.com/auctionhq/auctionhouse/internal/bid"
	"github.com/auctionhq/auctionhouse/internal/db"
	"github.com/auctionhq/auctionhouse/internal/item"
	mware "github.com/auctionhq/auctionhouse/internal/middleware"
	"github.com/auctionhq/auctionhouse/internal/messaging"
	"github.com/auctionhq/auctionhouse/internal/scheduler"
	"github.com/auctionhq/auctionhouse/internal/store"
	"github.com/auctionhq/auctionhouse/internal/user"
	"github.com/auctionhq/auctionhouse/internal/watchlist"
)

func main() {
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Persistence: Postgres in production, in-memory when MEMORY_MODE is set
	// (demos, local hacking without a database).
	var st store.Store
	if os.Getenv("MEMORY_MODE") != "" {
		log.Println("running with in-memory store, nothing will be persisted")
		st = store.NewMemory()
	} else {
		pool, err := db.Connect(ctx)
		if err != nil {
			log.Fatalf("database: %v", err)
		}
		defer pool.Close()
		st = store.NewPostgres(pool)
	}

	// Side effects: asynq-backed when Redis is available, log-only otherwise.
	alerts.ConfigureMailerFromEnv()
	var emitter alerts.Emitter = alerts.LogEmitter{}
	redisAddr := os.Getenv("REDIS_ADDR")
	if redisAddr != "" {
		asynqEmitter := alerts.NewAsynqEmitter(redisAddr)
		defer asynqEmitter.Close()
		emitter = asynqEmitter

		processor := alerts.NewProcessor(redisAddr)
		go processor.Run()
		defer processor.Shutdown()
	}

	// Realtime: always the in-process websocket hub, plus Redis pub/sub for
	// anything listening outside this process.
	hub := messaging.NewHub()
	broadcast := messaging.Fanout{hub}
	if redisAddr != "" {
		pub := messaging.NewRedisPublisher(redisAddr)
		defer pub.Close()
		broadcast = append(broadcast, pub)
	}

	// Core wiring. The bid ledger and the resolution engine share the same
	// per-item locks.
	locks := store.NewItemLocks()
	batches := batch.NewManager(st, emitter, broadcast, nil, locks)
	items := item.NewManager(st, emitter, broadcast, batches)
	batches.SetItems(items)
	ledger := bid.NewLedger(st, emitter, broadcast, batches, locks)
	watches := watchlist.NewService(st, emitter, batches)

	if os.Getenv("SCHEDULER_DISABLED") == "" {
		go scheduler.New(batches, watches).Run(ctx)
	} else {
		log.Println("scheduler disabled, batches advance only via admin transitions")
	}

	e := echo.New()
	e.HideBanner = true
	e.Use(echomw.Recover())
	e.Use(echomw.Logger())

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, echo.Map{"status": "ok", "service": "auctionhouse"})
	})

	authH := &auth.Handler{Store: st}
	batchH := &batch.Handler{Manager: batches}
	itemH := &item.Handler{Manager: items, Store: st}
	bidH := &bid.Handler{Ledger: ledger, Store: st}
	watchH := &watchlist.Handler{Service: watches}
	userH := &user.Handler{Store: st}
	adminH := &admin.Handler{Items: items, Batches: batches, Store: st}

	// Public
	authGroup := e.Group("/auth")
	authGroup.Use(echomw.RateLimiter(echomw.NewRateLimiterMemoryStore(20)))
	authGroup.POST("/signup", authH.Signup)
	authGroup.POST("/login", authH.Login)
	authGroup.POST("/bootstrap-admin", authH.BootstrapAdmin)

	e.GET("/users/:id/profile", userH.PublicProfile)
	e.GET("/batches/current", batchH.Current)
	e.GET("/batches", batchH.List)
	e.GET("/batches/:id", batchH.Get)
	e.GET("/batches/code/:code", batchH.GetByCode)
	e.GET("/batches/:id/results", itemH.Results)
	e.GET("/items/live", itemH.Live)
	e.GET("/items/:id", itemH.Get)
	e.GET("/items/:id/bids", bidH.History)
	e.GET("/items/:id/minimum-bid", bidH.Minimum)

	e.GET("/ws/items/:id", hub.ItemWS)
	e.GET("/ws/auction", hub.AuctionWS)

	// Authenticated
	api := e.Group("")
	api.Use(mware.JWTMiddleware)

	api.GET("/auth/me", authH.Me)
	api.GET("/transactions/mine", userH.MyTransactions)

	api.POST("/items", itemH.Submit, mware.RequireRoles("seller"))
	api.PUT("/items/:id", itemH.Update, mware.RequireRoles("seller"))
	api.DELETE("/items/:id", itemH.Withdraw, mware.RequireRoles("seller"))
	api.GET("/items/mine", itemH.Mine, mware.RequireRoles("seller"))
	api.GET("/items/wins", itemH.Wins)

	api.POST("/items/:id/bids", bidH.Place)
	api.GET("/bids/mine", bidH.Mine)

	api.POST("/watchlist/:id", watchH.Add)
	api.DELETE("/watchlist/:id", watchH.Remove)
	api.PUT("/watchlist/:id/notify", watchH.SetNotify)
	api.GET("/watchlist", watchH.List)

	// Admin
	adminGroup := e.Group("/admin")
	adminGroup.Use(mware.JWTMiddleware)
	adminGroup.Use(mware.AdminGuard)

	adminGroup.GET("/items/pending", adminH.PendingItems)
	adminGroup.POST("/items/:id/approve", adminH.Approve)
	adminGroup.POST("/items/:id/reject", adminH.Reject)
	adminGroup.POST("/items/:id/request-changes", adminH.RequestChanges)
	adminGroup.GET("/stats", adminH.Stats)
	adminGroup.GET("/overview", adminH.Overview)
	adminGroup.GET("/transactions", adminH.Transactions)
	adminGroup.POST("/batches/:id/transition", batchH.ForceTransition)
	adminGroup.POST("/batches/test", batchH.CreateTest)

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = e.Shutdown(shutdownCtx)
	}()

	if err := e.Start(":" + port); err != nil && err != http.ErrServerClosed {
		log.Fatalf("server error: %v", err)
	}
}
