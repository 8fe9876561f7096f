package service

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/fourpaws/billing/internal/audit/domain"
	auditrepository "github.com/fourpaws/billing/internal/audit/repository"
	auditservice "github.com/fourpaws/billing/internal/audit/service"
	"github.com/fourpaws/billing/internal/billing/domain"
	"github.com/fourpaws/billing/internal/billing/repository"
	"github.com/fourpaws/billing/internal/clock"
	"github.com/fourpaws/billing/internal/config"
	subscriptiondomain "github.com/fourpaws/billing/internal/subscription/domain"
	subscriptionrepository "github.com/fourpaws/billing/internal/subscription/repository"
	subscriptionservice "github.com/fourpaws/billing/internal/subscription/service"
	userdomain "github.com/fourpaws/billing/internal/user/domain"
	userrepository "github.com/fourpaws/billing/internal/user/repository"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

const (
	testPremiumProduct = "prod_premium"
	testPremiumPrice   = "price_premium"
)

type stubProvider struct {
	subscriptions map[string]*domain.ProviderSubscription
	byCustomer    map[string][]domain.ProviderSubscription

	createdCustomers int
	nextCustomerID   string
	checkoutURL      string
	portalURL        string
	err              error
}

func newStubProvider() *stubProvider {
	return &stubProvider{
		subscriptions:  make(map[string]*domain.ProviderSubscription),
		byCustomer:     make(map[string][]domain.ProviderSubscription),
		nextCustomerID: "cus_new",
		checkoutURL:    "https://checkout.example/session",
		portalURL:      "https://portal.example/session",
	}
}

func (p *stubProvider) GetSubscription(ctx context.Context, id string) (*domain.ProviderSubscription, error) {
	if p.err != nil {
		return nil, p.err
	}
	sub, ok := p.subscriptions[id]
	if !ok {
		return nil, domain.ErrProviderSubscriptionNotFound
	}
	return sub, nil
}

func (p *stubProvider) ListSubscriptions(ctx context.Context, customerID string) ([]domain.ProviderSubscription, error) {
	if p.err != nil {
		return nil, p.err
	}
	return p.byCustomer[customerID], nil
}

func (p *stubProvider) CreateCustomer(ctx context.Context, email, userID string) (string, error) {
	if p.err != nil {
		return "", p.err
	}
	p.createdCustomers++
	return p.nextCustomerID, nil
}

func (p *stubProvider) CreateCheckoutSession(ctx context.Context, params domain.CheckoutParams) (string, error) {
	if p.err != nil {
		return "", p.err
	}
	return p.checkoutURL, nil
}

func (p *stubProvider) CreatePortalSession(ctx context.Context, customerID, returnURL string) (string, error) {
	if p.err != nil {
		return "", p.err
	}
	return p.portalURL, nil
}

type billingTestEnv struct {
	db       *gorm.DB
	node     *snowflake.Node
	svc      domain.Service
	subSvc   subscriptiondomain.Service
	auditSvc auditdomain.Service
	userRepo userdomain.Repository
	repo     domain.Repository
	provider *stubProvider
}

func setupBillingTest(t *testing.T) *billingTestEnv {
	t.Helper()

	dsn := "file:" + strings.ReplaceAll(t.Name(), "/", "_") + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}

	statements := []string{
		`CREATE TABLE IF NOT EXISTS users (
			id INTEGER PRIMARY KEY,
			email TEXT NOT NULL UNIQUE,
			external_customer_id TEXT,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS subscriptions (
			id INTEGER PRIMARY KEY,
			user_id BIGINT NOT NULL UNIQUE,
			tier TEXT NOT NULL,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS system_events (
			id INTEGER PRIMARY KEY,
			event_type TEXT NOT NULL,
			user_id BIGINT,
			actor_id TEXT NOT NULL,
			entity_type TEXT NOT NULL,
			entity_id TEXT,
			properties TEXT NOT NULL DEFAULT '{}',
			description TEXT NOT NULL DEFAULT '',
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS billing_events (
			id INTEGER PRIMARY KEY,
			external_event_id TEXT NOT NULL UNIQUE,
			user_id BIGINT,
			external_customer_id TEXT,
			event_type TEXT NOT NULL,
			status TEXT NOT NULL DEFAULT 'pending',
			payload TEXT,
			external_created_at DATETIME,
			processed_at DATETIME,
			error TEXT,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
	}
	for _, stmt := range statements {
		if err := db.Exec(stmt).Error; err != nil {
			t.Fatalf("create table: %v", err)
		}
	}

	node, err := snowflake.NewNode(1)
	if err != nil {
		t.Fatalf("snowflake node: %v", err)
	}

	fixed := clock.FixedClock{Instant: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
	log := zap.NewNop()

	auditSvc := auditservice.NewService(auditservice.Params{
		DB:    db,
		Log:   log,
		GenID: node,
		Clock: fixed,
		Repo:  auditrepository.Provide(),
	})
	subSvc := subscriptionservice.NewService(subscriptionservice.Params{
		DB:       db,
		Log:      log,
		GenID:    node,
		Clock:    fixed,
		Repo:     subscriptionrepository.Provide(),
		AuditSvc: auditSvc,
	})

	userRepo := userrepository.Provide()
	repo := repository.Provide()
	provider := newStubProvider()

	svc := NewService(Params{
		DB:       db,
		Log:      log,
		GenID:    node,
		Clock:    fixed,
		Cfg: config.Config{
			StripePremiumProduct: testPremiumProduct,
			StripePremiumPrice:   testPremiumPrice,
			CheckoutSuccessURL:   "https://app.example/success",
			CheckoutCancelURL:    "https://app.example/cancel",
			PortalReturnURL:      "https://app.example/settings",
		},
		Repo:     repo,
		UserRepo: userRepo,
		SubSvc:   subSvc,
		AuditSvc: auditSvc,
		Provider: provider,
	})

	return &billingTestEnv{
		db:       db,
		node:     node,
		svc:      svc,
		subSvc:   subSvc,
		auditSvc: auditSvc,
		userRepo: userRepo,
		repo:     repo,
		provider: provider,
	}
}

func (env *billingTestEnv) insertUser(t *testing.T, customerID string) snowflake.ID {
	t.Helper()
	id := env.node.Generate()
	var external *string
	if customerID != "" {
		external = &customerID
	}
	user := &userdomain.User{
		ID:                 id,
		Email:              "user-" + id.String() + "@example.com",
		ExternalCustomerID: external,
	}
	if err := env.db.Create(user).Error; err != nil {
		t.Fatalf("insert user: %v", err)
	}
	return id
}

func (env *billingTestEnv) tier(t *testing.T, userID snowflake.ID) subscriptiondomain.Tier {
	t.Helper()
	tier, err := env.subSvc.GetTier(context.Background(), userID)
	if err != nil {
		t.Fatalf("get tier: %v", err)
	}
	return tier
}

func (env *billingTestEnv) storedEvent(t *testing.T, externalID string) *domain.BillingEvent {
	t.Helper()
	event, err := env.repo.FindByExternalEventID(context.Background(), env.db, externalID)
	if err != nil {
		t.Fatalf("find event: %v", err)
	}
	if event == nil {
		t.Fatalf("event %s not stored", externalID)
	}
	return event
}

func (env *billingTestEnv) auditEvents(t *testing.T, eventType string) []*auditdomain.SystemEvent {
	t.Helper()
	events, err := env.auditSvc.List(context.Background(), auditdomain.ListFilter{EventType: eventType})
	if err != nil {
		t.Fatalf("list system events: %v", err)
	}
	return events
}

func subscriptionEvent(id string, eventType domain.EventType, payload *domain.SubscriptionPayload) *domain.Event {
	return &domain.Event{
		ExternalID:   id,
		Type:         eventType,
		CreatedAt:    time.Date(2025, 6, 1, 11, 59, 0, 0, time.UTC),
		Payload:      json.RawMessage(`{"object":"event"}`),
		Subscription: payload,
	}
}

func TestProcessEventSubscriptionCreatedUpgrades(t *testing.T) {
	env := setupBillingTest(t)
	userID := env.insertUser(t, "cus_1")

	event := subscriptionEvent("evt_1", domain.EventSubscriptionCreated, &domain.SubscriptionPayload{
		ID:         "sub_1",
		CustomerID: "cus_1",
		Status:     domain.SubscriptionStatusActive,
		ProductIDs: []string{testPremiumProduct},
	})
	if err := env.svc.ProcessEvent(context.Background(), event); err != nil {
		t.Fatalf("process event: %v", err)
	}

	if got := env.tier(t, userID); got != subscriptiondomain.TierPremium {
		t.Fatalf("expected premium, got %s", got)
	}
	stored := env.storedEvent(t, "evt_1")
	if stored.Status != domain.StatusProcessed {
		t.Fatalf("expected processed, got %s", stored.Status)
	}
	if stored.UserID == nil || *stored.UserID != userID {
		t.Fatalf("expected event attributed to user %s", userID)
	}
	if created := env.auditEvents(t, auditdomain.EventSubscriptionCreated); len(created) != 1 {
		t.Fatalf("expected one subscription_created audit event, got %d", len(created))
	}
}

func TestProcessEventDuplicateDelivery(t *testing.T) {
	env := setupBillingTest(t)
	userID := env.insertUser(t, "cus_1")

	event := subscriptionEvent("evt_dup", domain.EventSubscriptionCreated, &domain.SubscriptionPayload{
		ID:         "sub_1",
		CustomerID: "cus_1",
		Status:     domain.SubscriptionStatusActive,
		ProductIDs: []string{testPremiumProduct},
	})
	if err := env.svc.ProcessEvent(context.Background(), event); err != nil {
		t.Fatalf("first delivery: %v", err)
	}
	err := env.svc.ProcessEvent(context.Background(), event)
	if !errors.Is(err, domain.ErrEventAlreadyProcessed) {
		t.Fatalf("expected ErrEventAlreadyProcessed, got %v", err)
	}

	var count int64
	if err := env.db.Table("billing_events").Count(&count).Error; err != nil {
		t.Fatalf("count events: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected a single stored event, got %d", count)
	}
	if got := env.tier(t, userID); got != subscriptiondomain.TierPremium {
		t.Fatalf("expected premium after redelivery, got %s", got)
	}
	if created := env.auditEvents(t, auditdomain.EventSubscriptionCreated); len(created) != 1 {
		t.Fatalf("redelivery must not re-log, got %d audit events", len(created))
	}
}

func TestProcessEventUnknownTypeStaysPending(t *testing.T) {
	env := setupBillingTest(t)
	env.insertUser(t, "cus_1")

	event := &domain.Event{
		ExternalID: "evt_unknown",
		Type:       domain.EventType("customer.tax_id.created"),
		Payload:    json.RawMessage(`{"object":"event"}`),
		Other:      &domain.ObjectPayload{ID: "txi_1", CustomerID: "cus_1"},
	}
	if err := env.svc.ProcessEvent(context.Background(), event); err != nil {
		t.Fatalf("unknown type must not fail: %v", err)
	}

	stored := env.storedEvent(t, "evt_unknown")
	if stored.Status != domain.StatusPending {
		t.Fatalf("expected pending, got %s", stored.Status)
	}
}

func TestProcessEventPastDueKeepsTier(t *testing.T) {
	env := setupBillingTest(t)
	userID := env.insertUser(t, "cus_1")
	if err := env.subSvc.SetTier(context.Background(), userID, subscriptiondomain.TierPremium, ""); err != nil {
		t.Fatalf("seed premium: %v", err)
	}

	event := subscriptionEvent("evt_pastdue", domain.EventSubscriptionUpdated, &domain.SubscriptionPayload{
		ID:         "sub_1",
		CustomerID: "cus_1",
		Status:     domain.SubscriptionStatusPastDue,
		ProductIDs: []string{testPremiumProduct},
	})
	if err := env.svc.ProcessEvent(context.Background(), event); err != nil {
		t.Fatalf("process event: %v", err)
	}

	if got := env.tier(t, userID); got != subscriptiondomain.TierPremium {
		t.Fatalf("past_due must keep premium during grace period, got %s", got)
	}
	if stored := env.storedEvent(t, "evt_pastdue"); stored.Status != domain.StatusProcessed {
		t.Fatalf("expected processed, got %s", stored.Status)
	}
}

func TestProcessEventCancelAtPeriodEndKeepsTier(t *testing.T) {
	env := setupBillingTest(t)
	userID := env.insertUser(t, "cus_1")
	if err := env.subSvc.SetTier(context.Background(), userID, subscriptiondomain.TierPremium, ""); err != nil {
		t.Fatalf("seed premium: %v", err)
	}

	event := subscriptionEvent("evt_cancel_scheduled", domain.EventSubscriptionUpdated, &domain.SubscriptionPayload{
		ID:                "sub_1",
		CustomerID:        "cus_1",
		Status:            domain.SubscriptionStatusActive,
		CancelAtPeriodEnd: true,
		ProductIDs:        []string{testPremiumProduct},
	})
	if err := env.svc.ProcessEvent(context.Background(), event); err != nil {
		t.Fatalf("process event: %v", err)
	}

	if got := env.tier(t, userID); got != subscriptiondomain.TierPremium {
		t.Fatalf("scheduled cancellation must keep premium until period end, got %s", got)
	}
}

func TestProcessEventCanceledDowngrades(t *testing.T) {
	env := setupBillingTest(t)
	userID := env.insertUser(t, "cus_1")
	if err := env.subSvc.SetTier(context.Background(), userID, subscriptiondomain.TierPremium, ""); err != nil {
		t.Fatalf("seed premium: %v", err)
	}

	event := subscriptionEvent("evt_canceled", domain.EventSubscriptionUpdated, &domain.SubscriptionPayload{
		ID:         "sub_1",
		CustomerID: "cus_1",
		Status:     domain.SubscriptionStatusCanceled,
		ProductIDs: []string{testPremiumProduct},
	})
	if err := env.svc.ProcessEvent(context.Background(), event); err != nil {
		t.Fatalf("process event: %v", err)
	}

	if got := env.tier(t, userID); got != subscriptiondomain.TierFree {
		t.Fatalf("expected free after cancellation, got %s", got)
	}
	if cancelled := env.auditEvents(t, auditdomain.EventSubscriptionCancelled); len(cancelled) != 1 {
		t.Fatalf("expected one subscription_cancelled audit event, got %d", len(cancelled))
	}
}

func TestProcessEventFinalPaymentFailureDowngrades(t *testing.T) {
	env := setupBillingTest(t)
	userID := env.insertUser(t, "cus_1")
	if err := env.subSvc.SetTier(context.Background(), userID, subscriptiondomain.TierPremium, ""); err != nil {
		t.Fatalf("seed premium: %v", err)
	}
	env.provider.subscriptions["sub_1"] = &domain.ProviderSubscription{
		ID:         "sub_1",
		CustomerID: "cus_1",
		Status:     domain.SubscriptionStatusUnpaid,
		ProductIDs: []string{testPremiumProduct},
	}

	retryAt := time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC)
	withRetry := &domain.Event{
		ExternalID: "evt_fail_retry",
		Type:       domain.EventInvoicePaymentFailed,
		Payload:    json.RawMessage(`{"object":"event"}`),
		Invoice: &domain.InvoicePayload{
			ID:                 "in_1",
			CustomerID:         "cus_1",
			SubscriptionID:     "sub_1",
			NextPaymentAttempt: &retryAt,
		},
	}
	if err := env.svc.ProcessEvent(context.Background(), withRetry); err != nil {
		t.Fatalf("process retry-scheduled failure: %v", err)
	}
	if got := env.tier(t, userID); got != subscriptiondomain.TierPremium {
		t.Fatalf("pending retries must not downgrade, got %s", got)
	}

	finalFailure := &domain.Event{
		ExternalID: "evt_fail_final",
		Type:       domain.EventInvoicePaymentFailed,
		Payload:    json.RawMessage(`{"object":"event"}`),
		Invoice: &domain.InvoicePayload{
			ID:             "in_2",
			CustomerID:     "cus_1",
			SubscriptionID: "sub_1",
		},
	}
	if err := env.svc.ProcessEvent(context.Background(), finalFailure); err != nil {
		t.Fatalf("process final failure: %v", err)
	}
	if got := env.tier(t, userID); got != subscriptiondomain.TierFree {
		t.Fatalf("expected free after final payment failure, got %s", got)
	}
}

func TestProcessEventTierChangeWithoutUserFails(t *testing.T) {
	env := setupBillingTest(t)

	event := subscriptionEvent("evt_orphan", domain.EventSubscriptionCreated, &domain.SubscriptionPayload{
		ID:         "sub_1",
		CustomerID: "cus_missing",
		Status:     domain.SubscriptionStatusActive,
		ProductIDs: []string{testPremiumProduct},
	})
	err := env.svc.ProcessEvent(context.Background(), event)
	if !errors.Is(err, domain.ErrUnknownUser) {
		t.Fatalf("expected ErrUnknownUser, got %v", err)
	}

	stored := env.storedEvent(t, "evt_orphan")
	if stored.Status != domain.StatusFailed {
		t.Fatalf("expected failed, got %s", stored.Status)
	}
	if stored.Error == nil || *stored.Error == "" {
		t.Fatalf("expected stored error message")
	}
}

func TestProcessEventReprocessesFailedRow(t *testing.T) {
	env := setupBillingTest(t)

	event := subscriptionEvent("evt_retry", domain.EventSubscriptionCreated, &domain.SubscriptionPayload{
		ID:         "sub_1",
		CustomerID: "cus_late",
		Status:     domain.SubscriptionStatusActive,
		ProductIDs: []string{testPremiumProduct},
	})
	if err := env.svc.ProcessEvent(context.Background(), event); !errors.Is(err, domain.ErrUnknownUser) {
		t.Fatalf("expected ErrUnknownUser on first delivery, got %v", err)
	}

	// The user appears after the first delivery failed; the provider
	// redelivers the same event id.
	userID := env.insertUser(t, "cus_late")
	if err := env.svc.ProcessEvent(context.Background(), event); err != nil {
		t.Fatalf("redelivery after user exists: %v", err)
	}

	if got := env.tier(t, userID); got != subscriptiondomain.TierPremium {
		t.Fatalf("expected premium after successful redelivery, got %s", got)
	}
	stored := env.storedEvent(t, "evt_retry")
	if stored.Status != domain.StatusProcessed {
		t.Fatalf("expected processed, got %s", stored.Status)
	}
	if stored.Error != nil {
		t.Fatalf("expected error cleared, got %q", *stored.Error)
	}
}

func TestProcessEventCustomerCreatedLinksUser(t *testing.T) {
	env := setupBillingTest(t)
	userID := env.insertUser(t, "")

	event := &domain.Event{
		ExternalID: "evt_customer",
		Type:       domain.EventCustomerCreated,
		Payload:    json.RawMessage(`{"object":"event"}`),
		Customer: &domain.CustomerPayload{
			ID:       "cus_linked",
			Email:    "someone@example.com",
			Metadata: map[string]string{domain.MetadataUserIDKey: userID.String()},
		},
	}
	if err := env.svc.ProcessEvent(context.Background(), event); err != nil {
		t.Fatalf("process event: %v", err)
	}

	user, err := env.userRepo.FindByID(context.Background(), env.db, userID)
	if err != nil {
		t.Fatalf("find user: %v", err)
	}
	if user.ExternalCustomerID == nil || *user.ExternalCustomerID != "cus_linked" {
		t.Fatalf("expected customer linked to user")
	}
	linked := env.auditEvents(t, auditdomain.EventCustomerLinked)
	if len(linked) != 1 {
		t.Fatalf("expected one customer_linked audit event, got %d", len(linked))
	}
	if linked[0].ActorID != auditdomain.ActorStripe {
		t.Fatalf("expected stripe actor, got %s", linked[0].ActorID)
	}
}

func TestSyncUserSubscription(t *testing.T) {
	env := setupBillingTest(t)
	userID := env.insertUser(t, "cus_1")
	env.provider.byCustomer["cus_1"] = []domain.ProviderSubscription{
		{
			ID:         "sub_1",
			CustomerID: "cus_1",
			Status:     domain.SubscriptionStatusActive,
			ProductIDs: []string{testPremiumProduct},
		},
	}

	tier, err := env.svc.SyncUserSubscription(context.Background(), userID)
	if err != nil {
		t.Fatalf("sync: %v", err)
	}
	if tier != subscriptiondomain.TierPremium {
		t.Fatalf("expected premium from provider state, got %s", tier)
	}

	env.provider.byCustomer["cus_1"] = nil
	tier, err = env.svc.SyncUserSubscription(context.Background(), userID)
	if err != nil {
		t.Fatalf("second sync: %v", err)
	}
	if tier != subscriptiondomain.TierFree {
		t.Fatalf("expected free once provider shows no subscriptions, got %s", tier)
	}
	if got := env.tier(t, userID); got != subscriptiondomain.TierFree {
		t.Fatalf("expected stored tier free, got %s", got)
	}
}

func TestSyncUserSubscriptionUnknownUser(t *testing.T) {
	env := setupBillingTest(t)

	_, err := env.svc.SyncUserSubscription(context.Background(), env.node.Generate())
	if !errors.Is(err, domain.ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
}

func TestCheckoutSessionCreatesCustomerOnce(t *testing.T) {
	env := setupBillingTest(t)
	userID := env.insertUser(t, "")
	env.provider.nextCustomerID = "cus_created"

	url, err := env.svc.CreateCheckoutSession(context.Background(), userID)
	if err != nil {
		t.Fatalf("checkout: %v", err)
	}
	if url != env.provider.checkoutURL {
		t.Fatalf("unexpected checkout url %q", url)
	}
	if env.provider.createdCustomers != 1 {
		t.Fatalf("expected one provider customer, got %d", env.provider.createdCustomers)
	}

	if _, err := env.svc.CreatePortalSession(context.Background(), userID); err != nil {
		t.Fatalf("portal: %v", err)
	}
	if env.provider.createdCustomers != 1 {
		t.Fatalf("customer must be reused, got %d creations", env.provider.createdCustomers)
	}

	user, err := env.userRepo.FindByID(context.Background(), env.db, userID)
	if err != nil {
		t.Fatalf("find user: %v", err)
	}
	if user.ExternalCustomerID == nil || *user.ExternalCustomerID != "cus_created" {
		t.Fatalf("expected join key persisted")
	}
}

func TestCheckoutSessionRequiresConfiguredPrice(t *testing.T) {
	env := setupBillingTest(t)
	userID := env.insertUser(t, "cus_1")

	unconfigured := NewService(Params{
		DB:       env.db,
		Log:      zap.NewNop(),
		GenID:    env.node,
		Clock:    clock.SystemClock{},
		Cfg:      config.Config{},
		Repo:     env.repo,
		UserRepo: env.userRepo,
		SubSvc:   env.subSvc,
		AuditSvc: env.auditSvc,
		Provider: env.provider,
	})

	_, err := unconfigured.CreateCheckoutSession(context.Background(), userID)
	if !errors.Is(err, domain.ErrPremiumNotConfigured) {
		t.Fatalf("expected ErrPremiumNotConfigured, got %v", err)
	}
}

func TestSubscriptionLifecycleEndToEnd(t *testing.T) {
	env := setupBillingTest(t)
	userID := env.insertUser(t, "")
	ctx := context.Background()

	customerCreated := &domain.Event{
		ExternalID: "evt_lc_1",
		Type:       domain.EventCustomerCreated,
		Payload:    json.RawMessage(`{"object":"event"}`),
		Customer: &domain.CustomerPayload{
			ID:       "cus_lc",
			Metadata: map[string]string{domain.MetadataUserIDKey: userID.String()},
		},
	}
	if err := env.svc.ProcessEvent(ctx, customerCreated); err != nil {
		t.Fatalf("customer.created: %v", err)
	}

	checkoutCompleted := &domain.Event{
		ExternalID: "evt_lc_2",
		Type:       domain.EventCheckoutCompleted,
		Payload:    json.RawMessage(`{"object":"event"}`),
		Other:      &domain.ObjectPayload{ID: "cs_lc", CustomerID: "cus_lc"},
	}
	if err := env.svc.ProcessEvent(ctx, checkoutCompleted); err != nil {
		t.Fatalf("checkout.session.completed: %v", err)
	}
	if got := env.tier(t, userID); got != subscriptiondomain.TierFree {
		t.Fatalf("checkout completion alone must not change tier, got %s", got)
	}

	created := subscriptionEvent("evt_lc_3", domain.EventSubscriptionCreated, &domain.SubscriptionPayload{
		ID:         "sub_lc",
		CustomerID: "cus_lc",
		Status:     domain.SubscriptionStatusActive,
		ProductIDs: []string{testPremiumProduct},
	})
	if err := env.svc.ProcessEvent(ctx, created); err != nil {
		t.Fatalf("subscription.created: %v", err)
	}
	if got := env.tier(t, userID); got != subscriptiondomain.TierPremium {
		t.Fatalf("expected premium, got %s", got)
	}

	canceled := subscriptionEvent("evt_lc_4", domain.EventSubscriptionUpdated, &domain.SubscriptionPayload{
		ID:         "sub_lc",
		CustomerID: "cus_lc",
		Status:     domain.SubscriptionStatusCanceled,
		ProductIDs: []string{testPremiumProduct},
	})
	if err := env.svc.ProcessEvent(ctx, canceled); err != nil {
		t.Fatalf("subscription.updated canceled: %v", err)
	}
	if got := env.tier(t, userID); got != subscriptiondomain.TierFree {
		t.Fatalf("expected free after cancellation, got %s", got)
	}

	for _, id := range []string{"evt_lc_1", "evt_lc_2", "evt_lc_3", "evt_lc_4"} {
		if stored := env.storedEvent(t, id); stored.Status != domain.StatusProcessed {
			t.Fatalf("event %s not processed: %s", id, stored.Status)
		}
	}
}
