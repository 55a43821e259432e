package server

import (
	"database/sql"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/stridefam/stridefam/internal/approval"
	"github.com/stridefam/stridefam/internal/billing"
	"github.com/stridefam/stridefam/internal/handler"
	"github.com/stridefam/stridefam/internal/middleware"
	"github.com/stridefam/stridefam/internal/push"
	"github.com/stridefam/stridefam/internal/staking"
	"github.com/stridefam/stridefam/internal/store"
	ws "github.com/stridefam/stridefam/internal/websocket"
)

// Config carries the server-level settings main resolves from the
// environment.
type Config struct {
	BaseURL         string
	DecisionSecret  []byte
	VAPIDPublicKey  string
	VAPIDPrivateKey string
	Billing         billing.Config
}

type Server struct {
	db  *sql.DB
	hub *ws.Hub

	authH      *handler.AuthHandler
	familyH    *handler.FamilyHandler
	stepsH     *handler.StepsHandler
	rewardH    *handler.RewardHandler
	operationH *handler.OperationHandler
	stakingH   *handler.StakingHandler
	goalH      *handler.GoalHandler
	pushH      *handler.PushHandler
	billingH   *billing.Handler

	sessionStore *store.SessionStore
	memberStore  *store.MemberStore
	familyStore  *store.FamilyStore
	stepStore    *store.StepStore
	ledgerStore  *store.LedgerStore
	stakingStore *store.StakingStore

	stakingSvc  *staking.Service
	notifier    *push.Notifier
	rateLimiter *middleware.RateLimiter
	logger      *slog.Logger
}

func New(db *sql.DB, cfg Config, logger *slog.Logger) *Server {
	hub := ws.NewHub(logger.With("component", "websocket"))

	memberStore := store.NewMemberStore(db)
	familyStore := store.NewFamilyStore(db)
	sessionStore := store.NewSessionStore(db)
	stepStore := store.NewStepStore(db)
	ledgerStore := store.NewLedgerStore(db)
	rewardStore := store.NewRewardStore(db)
	approvalStore := store.NewApprovalStore(db)
	stakingStore := store.NewStakingStore(db)
	goalStore := store.NewGoalStore(db)
	pushStore := store.NewPushStore(db)

	pushLogger := logger.With("component", "push")
	pushSvc := push.NewService(cfg.VAPIDPublicKey, cfg.VAPIDPrivateKey)
	notifier := push.NewNotifier(pushSvc, pushStore, familyStore, pushLogger)

	gate := approval.NewGate(memberStore, familyStore, approvalStore, ledgerStore,
		logger.With("component", "approval"))
	tokens := approval.NewTokenIssuer(cfg.DecisionSecret, 48*time.Hour)

	stakingSvc := staking.NewService(staking.DefaultPools(), stakingStore, ledgerStore,
		logger.With("component", "staking"))

	var billingH *billing.Handler
	if cfg.Billing.Enabled() {
		billingH = billing.NewHandler(billing.NewClient(cfg.Billing), familyStore,
			logger.With("component", "billing"))
	}

	return &Server{
		db:  db,
		hub: hub,

		authH:   handler.NewAuthHandler(memberStore, sessionStore, logger.With("component", "auth")),
		familyH: handler.NewFamilyHandler(familyStore, memberStore, ledgerStore, notifier, hub, logger.With("component", "family")),
		stepsH:  handler.NewStepsHandler(stepStore, logger.With("component", "steps")),
		rewardH: handler.NewRewardHandler(ledgerStore, rewardStore, logger.With("component", "reward")),
		operationH: handler.NewOperationHandler(gate, tokens, approvalStore, familyStore, memberStore,
			goalStore, ledgerStore, stakingSvc, notifier, hub, cfg.BaseURL,
			logger.With("component", "operation")),
		stakingH: handler.NewStakingHandler(stakingSvc, stakingStore, hub, logger.With("component", "staking_api")),
		goalH:    handler.NewGoalHandler(goalStore, ledgerStore, logger.With("component", "goal")),
		pushH:    handler.NewPushHandler(pushSvc, pushStore, logger.With("component", "push_api")),
		billingH: billingH,

		sessionStore: sessionStore,
		memberStore:  memberStore,
		familyStore:  familyStore,
		stepStore:    stepStore,
		ledgerStore:  ledgerStore,
		stakingStore: stakingStore,

		stakingSvc:  stakingSvc,
		notifier:    notifier,
		rateLimiter: middleware.NewRateLimiter(),
		logger:      logger,
	}
}

// Accessors for the batch runner, which shares the server's stores.

func (s *Server) SessionStore() *store.SessionStore { return s.sessionStore }
func (s *Server) StepStore() *store.StepStore       { return s.stepStore }
func (s *Server) LedgerStore() *store.LedgerStore   { return s.ledgerStore }
func (s *Server) StakingStore() *store.StakingStore { return s.stakingStore }
func (s *Server) StakingService() *staking.Service  { return s.stakingSvc }
func (s *Server) Notifier() *push.Notifier          { return s.notifier }
func (s *Server) Hub() *ws.Hub                      { return s.hub }
func (s *Server) RateLimiter() *middleware.RateLimiter {
	return s.rateLimiter
}

func (s *Server) Router() http.Handler {
	outerMux := http.NewServeMux()

	// Public routes
	outerMux.HandleFunc("GET /health", s.healthHandler)
	outerMux.HandleFunc("POST /api/auth/login", s.rateLimitedHandler(s.authH.Login))
	outerMux.HandleFunc("POST /api/auth/register", s.rateLimitedHandler(s.authH.Register))
	// One-tap decision links authenticate via their signed token.
	outerMux.HandleFunc("GET /api/approvals/decide", s.operationH.DecideByToken)
	if s.billingH != nil {
		outerMux.HandleFunc("POST /webhooks/stripe", s.billingH.Webhook)
	}

	// Protected routes
	protectedMux := http.NewServeMux()
	s.registerProtectedRoutes(protectedMux)

	authMiddleware := middleware.RequireAuth(s.sessionStore, s.memberStore, s.familyStore)
	outerMux.Handle("/api/", authMiddleware(protectedMux))
	outerMux.Handle("GET /ws", authMiddleware(protectedMux))

	return middleware.RequestLogger(s.logger.With("component", "http"))(outerMux)
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func (s *Server) rateLimitedHandler(h http.HandlerFunc) http.HandlerFunc {
	keyFunc := func(r *http.Request) string {
		return middleware.RealIP(r)
	}
	rl := middleware.RateLimit(s.rateLimiter, keyFunc, 10, time.Minute)
	return func(w http.ResponseWriter, r *http.Request) {
		rl(http.HandlerFunc(h)).ServeHTTP(w, r)
	}
}

func (s *Server) registerProtectedRoutes(mux *http.ServeMux) {
	owner := middleware.RequireOwner

	mux.HandleFunc("POST /api/auth/logout", s.authH.Logout)
	mux.HandleFunc("POST /api/members/{uid}/pin", s.authH.SetPIN)

	// Family
	mux.HandleFunc("POST /api/families", s.familyH.Create)
	mux.HandleFunc("GET /api/family", s.familyH.Get)
	mux.HandleFunc("GET /api/family/members", s.familyH.ListMembers)
	mux.HandleFunc("GET /api/family/treasury", s.familyH.Treasury)
	mux.HandleFunc("GET /api/family/ledger", s.familyH.Ledger)
	mux.Handle("POST /api/family/members", owner(http.HandlerFunc(s.familyH.CreateMember)))
	mux.Handle("PUT /api/family/members/{uid}/limit", owner(http.HandlerFunc(s.familyH.SetSpendingLimit)))
	mux.Handle("POST /api/family/members/{uid}/release", owner(http.HandlerFunc(s.familyH.ReleaseLocked)))

	// Steps
	mux.HandleFunc("POST /api/steps", s.stepsH.Sync)
	mux.HandleFunc("GET /api/steps/{day}", s.stepsH.GetDay)

	// Balances, rewards, spending
	mux.HandleFunc("GET /api/balance", s.rewardH.Balance)
	mux.HandleFunc("GET /api/balance/locked", s.rewardH.LockedBalance)
	mux.HandleFunc("GET /api/rewards", s.rewardH.Rewards)
	mux.HandleFunc("GET /api/ledger", s.rewardH.Ledger)
	mux.HandleFunc("POST /api/spend", s.operationH.Spend)

	// Gated operations and approvals
	mux.HandleFunc("POST /api/operations", s.operationH.Submit)
	mux.Handle("GET /api/approvals", owner(http.HandlerFunc(s.operationH.ListPending)))
	mux.Handle("POST /api/approvals/{id}/decide", owner(http.HandlerFunc(s.operationH.Decide)))

	// Staking
	mux.HandleFunc("GET /api/staking/pools", s.stakingH.Pools)
	mux.HandleFunc("GET /api/staking/positions", s.stakingH.Positions)
	mux.HandleFunc("POST /api/staking/positions/{id}/claim", s.stakingH.Claim)
	mux.HandleFunc("POST /api/staking/positions/{id}/close", s.stakingH.Close)
	mux.HandleFunc("POST /api/staking/positions/{id}/close-early", s.stakingH.CloseEarly)

	// Goals
	mux.HandleFunc("POST /api/goals", s.goalH.Create)
	mux.HandleFunc("GET /api/goals", s.goalH.List)
	mux.HandleFunc("POST /api/goals/{id}/fund", s.goalH.Fund)
	mux.HandleFunc("DELETE /api/goals/{id}", s.goalH.Delete)

	// Push
	mux.HandleFunc("GET /api/push/vapid-key", s.pushH.VAPIDKey)
	mux.HandleFunc("POST /api/push/subscribe", s.pushH.Subscribe)
	mux.HandleFunc("DELETE /api/push/subscribe", s.pushH.Unsubscribe)

	// Billing
	if s.billingH != nil {
		mux.Handle("POST /api/billing/checkout", owner(http.HandlerFunc(s.billingH.Checkout)))
		mux.Handle("POST /api/billing/portal", owner(http.HandlerFunc(s.billingH.Portal)))
	}

	// WebSocket
	mux.HandleFunc("GET /ws", ws.HandleWebSocket(s.hub, s.logger.With("component", "ws_handler")))
}
