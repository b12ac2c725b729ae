package main

import (
	"log"
	"net/http"
	"time"

	"github.com/rs/cors"
	"github.com/spf13/cobra"

	"flowtask-backend/internal/ai"
	"flowtask-backend/internal/analytics"
	"flowtask-backend/internal/auth"
	"flowtask-backend/internal/chat"
	"flowtask-backend/internal/config"
	"flowtask-backend/internal/db"
	"flowtask-backend/internal/reminders"
	"flowtask-backend/internal/tasks"
)

var serveRemindUser int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the API server",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().IntVar(&serveRemindUser, "remind-user", 0,
		"run the server-side reminder poller for this user id (0 disables; clients poll the API otherwise)")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg := config.Load()

	database, err := db.Connect(cfg.ConnString())
	if err != nil {
		return err
	}
	defer database.Close()
	log.Println("connected to PostgreSQL")

	secret := []byte(cfg.JWTSecret)
	store := tasks.NewPostgresStore(database)
	sched := reminders.NewScheduler(store, time.Local)
	gateway := &chat.Gateway{
		Store: chat.NewPostgresStore(database),
		AI:    ai.New(cfg.LLMAPIKey, cfg.LLMModel, cfg.LLMBaseURL),
		Tasks: store,
	}
	taskHandlers := &tasks.Handlers{Store: store, Events: database}
	mw := auth.NewMiddleware(secret)

	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("OK"))
	})

	// ----- AUTH -----
	mux.HandleFunc("POST /api/auth/register", auth.RegisterHandler(database, secret))
	mux.HandleFunc("POST /api/auth/login", auth.LoginHandler(database, secret))
	mux.HandleFunc("POST /api/auth/logout", auth.LogoutHandler())
	mux.HandleFunc("GET /api/auth/me", mw.Wrap(auth.MeHandler(database)))
	mux.HandleFunc("DELETE /api/auth/account", mw.Wrap(auth.DeleteAccountHandler(database)))

	// ----- TASKS -----
	mux.HandleFunc("POST /api/tasks", mw.Wrap(taskHandlers.Create))
	mux.HandleFunc("GET /api/tasks", mw.Wrap(taskHandlers.List))
	mux.HandleFunc("GET /api/tasks/{id}", mw.Wrap(taskHandlers.Get))
	mux.HandleFunc("PUT /api/tasks/{id}", mw.Wrap(taskHandlers.Update))
	mux.HandleFunc("DELETE /api/tasks/{id}", mw.Wrap(taskHandlers.Delete))
	mux.HandleFunc("DELETE /api/tasks/date/{date}", mw.Wrap(taskHandlers.ClearDate))
	mux.HandleFunc("PUT /api/tasks/reorder", mw.Wrap(taskHandlers.Reorder))
	mux.HandleFunc("GET /api/tasks/stats/summary", mw.Wrap(taskHandlers.Stats))

	// ----- REMINDERS -----
	mux.HandleFunc("GET /api/tasks/reminders/pending", mw.Wrap(reminders.PendingHandler(sched, nil)))
	mux.HandleFunc("POST /api/tasks/{id}/reminder-sent", mw.Wrap(reminders.MarkSentHandler(sched, database)))

	// ----- CHAT -----
	mux.HandleFunc("POST /api/chat", mw.Wrap(chat.AskHandler(gateway, database)))
	mux.HandleFunc("GET /api/chat/history/{session_id}", mw.Wrap(chat.HistoryHandler(gateway)))
	mux.HandleFunc("DELETE /api/chat/history/{session_id}", mw.Wrap(chat.ClearHandler(gateway)))

	// ----- ANALYTICS -----
	mux.HandleFunc("POST /api/analytics/app-opened", mw.Wrap(analytics.AppOpenedHandler(database)))

	if serveRemindUser > 0 {
		poller := &reminders.Poller{
			Scheduler: sched,
			Notifier:  reminders.LogNotifier{},
			UserID:    serveRemindUser,
		}
		go poller.Run(cmd.Context())
		log.Printf("reminder poller running for user %d", serveRemindUser)
	}

	c := cors.New(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization", "X-Platform", "X-App-Version", "X-Session-Id", "Idempotency-Key"},
		AllowCredentials: true,
	})

	log.Printf("API server listening on %s", cfg.Addr)
	return http.ListenAndServe(cfg.Addr, c.Handler(mux))
}
