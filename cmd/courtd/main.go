package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"

	"github.com/jaaahooou/apka-inz/internal/auth"
	"github.com/jaaahooou/apka-inz/internal/bus"
	"github.com/jaaahooou/apka-inz/internal/chat"
	"github.com/jaaahooou/apka-inz/internal/config"
	"github.com/jaaahooou/apka-inz/internal/domain"
	"github.com/jaaahooou/apka-inz/internal/journal"
	"github.com/jaaahooou/apka-inz/internal/notify"
	"github.com/jaaahooou/apka-inz/internal/repository"
	"github.com/jaaahooou/apka-inz/internal/ws"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	log := newLogger(cfg.LogLevel)

	db, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to connect to DB: %w", err)
	}
	defer db.Close()

	users := repository.NewUserRepository(db)
	messages := repository.NewMessageRepository(db)
	notifications := repository.NewNotificationRepository(db)

	groupBus, closeBus, err := newBus(cfg, log)
	if err != nil {
		return err
	}
	defer closeBus()

	var eventJournal *journal.Journal
	if cfg.StreamURL != "" {
		eventJournal, err = journal.Open(cfg.StreamURL, cfg.StreamName)
		if err != nil {
			return fmt.Errorf("failed to open event journal: %w", err)
		}
		defer eventJournal.Close()
	}

	notifier := notify.NewNotifier(log.With("component", "notify"), notifications, groupBus, eventJournal)
	chatSvc := chat.NewService(log.With("component", "chat"), messages, users, groupBus, notifier)
	validator := auth.NewValidator(cfg.JWTSecret, users)

	mux := http.NewServeMux()
	mux.Handle("GET /ws/chat/{room}", &ws.ChatHandler{
		Log:  log.With("component", "ws.chat"),
		Bus:  groupBus,
		Chat: chatSvc,
	})
	mux.Handle("GET /ws/notifications", &ws.PresenceHandler{
		Log:   log.With("component", "ws.presence"),
		Bus:   groupBus,
		Store: users,
	})
	mux.HandleFunc("POST /messages", sendMessage(chatSvc))
	mux.HandleFunc("POST /messages/{id}/read", markMessageRead(messages))
	mux.HandleFunc("PUT /messages/{id}", editMessage(messages))
	mux.HandleFunc("GET /notifications", listNotifications(notifications, cfg.NotificationLimit))
	mux.HandleFunc("POST /notifications/{id}/read", markNotificationRead(notifications))

	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: ws.WithAuth(validator, log.With("component", "gateway"), enableCORS(mux)),
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		log.Info("server starting", "port", cfg.Port)
		if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		log.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	}
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
}

// newBus picks the in-process bus, bridged over AMQP when a broker is
// configured so every node sees every group publish.
func newBus(cfg config.Config, log *slog.Logger) (bus.Bus, func(), error) {
	local := bus.NewMemory(log.With("component", "bus"))
	if cfg.AMQPURL == "" {
		return local, func() {}, nil
	}
	bridge, err := bus.NewAMQPBridge(cfg.AMQPURL, uuid.NewString(), local, log.With("component", "bus.amqp"))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect group-bus bridge: %w", err)
	}
	return bridge, bridge.Close, nil
}

// sendMessage is the synchronous send path. It shares chat.Service with the
// live connections, so a recipient on a websocket sees this message exactly
// as if the sender had been connected too.
func sendMessage(chatSvc *chat.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, ok := ws.Principal(r.Context())
		if !ok {
			http.Error(w, "authentication required", http.StatusUnauthorized)
			return
		}

		var req chat.SendRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid body", http.StatusBadRequest)
			return
		}

		msg, err := chatSvc.Send(r.Context(), user.ID, req)
		switch {
		case err == nil:
		case errors.Is(err, chat.ErrUnknownRecipient):
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		case errors.Is(err, chat.ErrEmptyMessage), errors.Is(err, chat.ErrSelfMessage),
			errors.Is(err, chat.ErrInvalidRequest):
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		default:
			http.Error(w, "internal server error", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(msg)
	}
}

// markMessageRead flips the read flag; only the recipient's own messages
// match, so acting on someone else's message reads as not found.
func markMessageRead(store *repository.MessageRepository) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, ok := ws.Principal(r.Context())
		if !ok {
			http.Error(w, "authentication required", http.StatusUnauthorized)
			return
		}

		id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
		if err != nil {
			http.Error(w, "invalid message id", http.StatusBadRequest)
			return
		}

		if err := store.MarkRead(r.Context(), id, user.ID); err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				http.Error(w, "message not found", http.StatusNotFound)
				return
			}
			http.Error(w, "internal server error", http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// editMessage rewrites a message body; sender-only, same not-found semantics.
func editMessage(store *repository.MessageRepository) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, ok := ws.Principal(r.Context())
		if !ok {
			http.Error(w, "authentication required", http.StatusUnauthorized)
			return
		}

		id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
		if err != nil {
			http.Error(w, "invalid message id", http.StatusBadRequest)
			return
		}

		var body struct {
			Content string `json:"content"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			http.Error(w, "invalid body", http.StatusBadRequest)
			return
		}

		if err := store.UpdateContent(r.Context(), id, user.ID, body.Content); err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				http.Error(w, "message not found", http.StatusNotFound)
				return
			}
			http.Error(w, "internal server error", http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func listNotifications(store *repository.NotificationRepository, limit int) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, ok := ws.Principal(r.Context())
		if !ok {
			http.Error(w, "authentication required", http.StatusUnauthorized)
			return
		}

		list, err := store.ListNotifications(r.Context(), user.ID, limit)
		if err != nil {
			http.Error(w, "internal server error", http.StatusInternalServerError)
			return
		}
		if list == nil {
			list = []*domain.Notification{}
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(list)
	}
}

func markNotificationRead(store *repository.NotificationRepository) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, ok := ws.Principal(r.Context())
		if !ok {
			http.Error(w, "authentication required", http.StatusUnauthorized)
			return
		}

		id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
		if err != nil {
			http.Error(w, "invalid notification id", http.StatusBadRequest)
			return
		}

		if err := store.MarkNotificationRead(r.Context(), id, user.ID); err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				http.Error(w, "notification not found", http.StatusNotFound)
				return
			}
			http.Error(w, "internal server error", http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func enableCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "POST, GET, OPTIONS, PUT, DELETE")
		w.Header().Set("Access-Control-Allow-Headers", "Accept, Content-Type, Content-Length, Accept-Encoding, Authorization")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}
