package main

import (
	"context"
	"fmt"
	"net/http"

	"gigpay-bend/api/callbacks"
	escrowapi "gigpay-bend/api/escrow"
	paymentsapi "gigpay-bend/api/payments"
	"gigpay-bend/api/user"
	"gigpay-bend/dao"
	"gigpay-bend/dao/memdao"
	"gigpay-bend/utils"
	"gigpay-bend/utils/config"
	"gigpay-bend/utils/escrow"
	"gigpay-bend/utils/fees"
	"gigpay-bend/utils/gateway"
	"gigpay-bend/utils/keylock"
	"gigpay-bend/utils/ledger"
	"gigpay-bend/utils/notifications"
	"gigpay-bend/utils/payments"
	"gigpay-bend/utils/settlement"

	"github.com/gorilla/mux"
	"github.com/plutov/paypal/v4"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
)

// stores are the persistence backends the engine runs on
type stores struct {
	intents  dao.IntentStore
	bids     dao.BidStore
	wallets  dao.EscrowStore
	pools    dao.BonusPoolStore
	users    dao.UserStore
	projects dao.ProjectStore
	events   dao.EventLog
}

func mongoStores(db *mongo.Database) stores {
	return stores{
		intents:  dao.NewIntentDAO(db),
		bids:     dao.NewBidDAO(db),
		wallets:  dao.NewEscrowDAO(db),
		pools:    dao.NewBonusPoolDAO(db),
		users:    dao.NewUserDAO(db),
		projects: dao.NewProjectDAO(db),
		events:   dao.NewEventDAO(db),
	}
}

func memoryStores(m *memdao.Stores) stores {
	return stores{
		intents:  m.Intents,
		bids:     m.Bids,
		wallets:  m.Wallets,
		pools:    m.Pools,
		users:    m.Users,
		projects: m.Projects,
		events:   m.Events,
	}
}

// server wires the services and their HTTP handlers
type server struct {
	cfg    config.Config
	logger *zap.Logger

	dispatcher *settlement.Dispatcher

	userService      *user.Service
	paymentsService  *paymentsapi.Service
	escrowService    *escrowapi.Service
	callbacksService *callbacks.Service
}

func newGateway(ctx context.Context, cfg config.Config) (gateway.Client, *gateway.Fake, error) {
	if cfg.Gateway == config.GatewayFake {
		fake := gateway.NewFake(cfg.FakeGatewaySecret)
		return fake, fake, nil
	}

	base := paypal.APIBaseSandBox
	if !cfg.Dev() {
		base = paypal.APIBaseLive
	}
	pp, err := gateway.NewPayPal(ctx, gateway.PayPalConfig{
		ClientID:     cfg.PayPalClientID,
		ClientSecret: cfg.PayPalClientSecret,
		WebhookID:    cfg.PayPalWebhookID,
		APIBase:      base,
		Currency:     cfg.Pricing.Currency,
		Timeout:      cfg.GatewayTimeout,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("paypal client: %w", err)
	}
	return pp, nil, nil
}

func newMailer(cfg config.Mail) utils.Mailer {
	switch {
	case cfg.MailgunDomain != "" && cfg.MailgunPrivateKey != "":
		return utils.NewMailgunMailer(cfg.MailgunDomain, cfg.MailgunPrivateKey, cfg.From)
	case cfg.SMTPSender != "":
		return utils.NewSMTPMailer("smtp.gmail.com", 587, cfg.SMTPSender, cfg.SMTPPassword, cfg.From)
	}
	return utils.NopMailer{}
}

func newServer(ctx context.Context, cfg config.Config, logger *zap.Logger, st stores) (*server, error) {
	gw, fake, err := newGateway(ctx, cfg)
	if err != nil {
		return nil, err
	}

	notifier, err := notifications.NewNotifiable(ctx, notifications.Deps{
		Users:                 st.users,
		Events:                st.events,
		Mailer:                newMailer(cfg.Mail),
		Logger:                logger,
		ServiceAccountKeyPath: cfg.ServiceAccountKeyPath,
	})
	if err != nil {
		return nil, fmt.Errorf("notifiable_init: %w", err)
	}

	locks := keylock.New()
	l := ledger.New(st.intents)
	resolver := fees.NewResolver(st.users, cfg.Pricing)
	esc := escrow.InitEscrow(escrow.Dependencies{
		Wallets:  st.wallets,
		Pools:    st.pools,
		Bids:     st.bids,
		Locks:    locks,
		Notifier: notifier,
		Logger:   logger,
	})
	dispatcher := settlement.NewDispatcher(settlement.Dependencies{
		Ledger:         l,
		Gateway:        gw,
		Escrow:         esc,
		Bids:           st.bids,
		Users:          st.users,
		Projects:       st.projects,
		Events:         st.events,
		Pricing:        cfg.Pricing,
		Notifier:       notifier,
		Logger:         logger,
		GatewayTimeout: cfg.GatewayTimeout,
	})
	checkout := payments.New(payments.Dependencies{
		Ledger:         l,
		Gateway:        gw,
		Resolver:       resolver,
		Bids:           st.bids,
		Users:          st.users,
		Locks:          locks,
		Logger:         logger,
		GatewayTimeout: cfg.GatewayTimeout,
	})

	return &server{
		cfg:              cfg,
		logger:           logger,
		dispatcher:       dispatcher,
		userService:      user.NewUserService(st.users, st.events, resolver, logger),
		paymentsService:  paymentsapi.NewPaymentsService(checkout, l, dispatcher, logger),
		escrowService:    escrowapi.NewEscrowService(esc, logger),
		callbacksService: callbacks.NewCallbacksService(dispatcher, fake, logger),
	}, nil
}

func (s *server) routes() *mux.Router {
	r := mux.NewRouter()

	r.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status": "ok", "message": "gigpay-bend"}`))
	})
	v1 := r.PathPrefix("/api/v1").Subrouter()
	userRouter := v1.PathPrefix("/user").Subrouter()
	paymentsRouter := v1.PathPrefix("/payments").Subrouter()
	escrowRouter := v1.PathPrefix("/escrow").Subrouter()
	callbacksRouter := v1.PathPrefix("/callbacks").Subrouter()

	// Callbacks
	callbacksRouter.HandleFunc("/paypal-webhook", s.callbacksService.PaypalWebhook).Methods("POST")
	callbacksRouter.HandleFunc("/paypal-confirm", s.useAuth(s.callbacksService.ConfirmPaypalPayment)).Methods("POST")
	if s.callbacksService.FakeEnabled() {
		callbacksRouter.HandleFunc("/fake-approve/{orderId}", s.callbacksService.FakeApprove).Methods("POST")
	}

	// Payments
	paymentsRouter.HandleFunc("/fees", s.useAuth(s.paymentsService.ResolveFee)).Methods("POST")
	paymentsRouter.HandleFunc("/bids", s.useAuth(s.paymentsService.PlaceBid)).Methods("POST")
	paymentsRouter.HandleFunc("/listings", s.useAuth(s.paymentsService.PayListingFee)).Methods("POST")
	paymentsRouter.HandleFunc("/bonus-pools", s.useAuth(s.paymentsService.FundBonusPool)).Methods("POST")
	paymentsRouter.HandleFunc("/subscriptions", s.useAuth(s.paymentsService.Subscribe)).Methods("POST")
	paymentsRouter.HandleFunc("/withdrawals", s.useAuth(s.paymentsService.RequestWithdrawal)).Methods("POST")
	paymentsRouter.HandleFunc("/{id}", s.useAuth(s.paymentsService.ViewIntent)).Methods("GET")
	paymentsRouter.HandleFunc("/{id}/refund", s.useAdmin(s.paymentsService.RefundIntent)).Methods("POST")
	paymentsRouter.HandleFunc("/{id}/retry", s.useAdmin(s.paymentsService.RetryEffect)).Methods("POST")

	// Escrow
	escrowRouter.HandleFunc("/{projectId}", s.useAuth(s.escrowService.ViewWallet)).Methods("GET")
	escrowRouter.HandleFunc("/{projectId}/locks", s.useAdmin(s.escrowService.LockFunds)).Methods("POST")
	escrowRouter.HandleFunc("/{projectId}/locks/{userId}/{bidId}/release", s.useAdmin(s.escrowService.ReleaseFunds)).Methods("PUT")
	escrowRouter.HandleFunc("/{projectId}/locks/{userId}/{bidId}/refund", s.useAdmin(s.escrowService.RefundFunds)).Methods("PUT")
	escrowRouter.HandleFunc("/{projectId}/complete", s.useAdmin(s.escrowService.CompleteProject)).Methods("PUT")
	escrowRouter.HandleFunc("/{projectId}/cancel", s.useAdmin(s.escrowService.CancelWallet)).Methods("PUT")
	escrowRouter.HandleFunc("/{projectId}/seed", s.useAdmin(s.escrowService.SeedWallet)).Methods("POST")

	// Users
	userRouter.HandleFunc("/billing", s.useAuth(s.userService.Billing)).Methods("GET")
	userRouter.HandleFunc("/notifications", s.useAuth(s.userService.Notifications)).Methods("GET")

	return r
}
