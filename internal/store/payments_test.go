// ABOUTME: Integration tests for store/payments.go — idempotent gateway-state apply and sweeps.
package store_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/AgriNextGen/agrinext-jobs/internal/store"
	"github.com/AgriNextGen/agrinext-jobs/internal/testutil"
)

func TestApplyGatewayStateIsIdempotent(t *testing.T) {
	t.Parallel()
	s := testutil.NewTestDB(t)
	ctx := context.Background()

	orderID, err := s.CreateOrder(ctx, "confirmed", "initiated", 1500, nil)
	if err != nil {
		t.Fatalf("CreateOrder: %v", err)
	}

	applied, err := s.ApplyGatewayState(ctx, "evt-1", orderID, store.GatewayPaymentCaptured)
	if err != nil {
		t.Fatalf("ApplyGatewayState: %v", err)
	}
	if !applied {
		t.Fatal("first apply reported not applied")
	}

	status, err := s.OrderPaymentStatus(ctx, orderID)
	if err != nil {
		t.Fatalf("OrderPaymentStatus: %v", err)
	}
	if status != "captured" {
		t.Fatalf("payment_status = %q, want captured", status)
	}

	// Redelivery of the same provider event must not touch the order again.
	applied, err = s.ApplyGatewayState(ctx, "evt-1", orderID, store.GatewayPaymentCaptured)
	if err != nil {
		t.Fatalf("second ApplyGatewayState: %v", err)
	}
	if applied {
		t.Fatal("duplicate event reported applied")
	}

	// A later distinct event does move the state.
	applied, err = s.ApplyGatewayState(ctx, "evt-2", orderID, store.GatewayRefundCompleted)
	if err != nil || !applied {
		t.Fatalf("refund apply: applied=%v err=%v", applied, err)
	}
	status, _ = s.OrderPaymentStatus(ctx, orderID)
	if status != "refunded" {
		t.Fatalf("payment_status = %q, want refunded", status)
	}
}

func TestApplyGatewayStateUnknownEventType(t *testing.T) {
	t.Parallel()
	s := testutil.NewTestDB(t)
	ctx := context.Background()

	orderID, err := s.CreateOrder(ctx, "confirmed", "initiated", 1500, nil)
	if err != nil {
		t.Fatalf("CreateOrder: %v", err)
	}

	_, err = s.ApplyGatewayState(ctx, "evt-1", orderID, "payment.mystery")
	if !errors.Is(err, store.ErrUnknownGatewayEvent) {
		t.Fatalf("err = %v, want ErrUnknownGatewayEvent", err)
	}

	// The failed apply must not burn the event id.
	applied, err := s.ApplyGatewayState(ctx, "evt-1", orderID, store.GatewayPaymentCaptured)
	if err != nil || !applied {
		t.Fatalf("apply after bad type: applied=%v err=%v", applied, err)
	}
}

func TestMarkOrderPaymentFailedOnlyInitiated(t *testing.T) {
	t.Parallel()
	s := testutil.NewTestDB(t)
	ctx := context.Background()

	orderID, err := s.CreateOrder(ctx, "confirmed", "initiated", 900, nil)
	if err != nil {
		t.Fatalf("CreateOrder: %v", err)
	}

	changed, err := s.MarkOrderPaymentFailed(ctx, orderID)
	if err != nil || !changed {
		t.Fatalf("MarkOrderPaymentFailed: changed=%v err=%v", changed, err)
	}

	// Re-running the cleanup sweep is a no-op for already-failed orders.
	changed, err = s.MarkOrderPaymentFailed(ctx, orderID)
	if err != nil {
		t.Fatalf("second MarkOrderPaymentFailed: %v", err)
	}
	if changed {
		t.Fatal("second mark reported a change")
	}
}

func TestStaleSweepsSelectByAge(t *testing.T) {
	t.Parallel()
	s := testutil.NewTestDB(t)
	ctx := context.Background()

	staleID, err := s.CreateOrder(ctx, "confirmed", "initiated", 100, nil)
	if err != nil {
		t.Fatalf("CreateOrder: %v", err)
	}
	if _, err := s.Pool().Exec(ctx,
		`UPDATE orders SET created_at = now() - interval '2 hours' WHERE id=$1`, staleID); err != nil {
		t.Fatalf("backdate order: %v", err)
	}
	if _, err := s.CreateOrder(ctx, "confirmed", "initiated", 100, nil); err != nil {
		t.Fatalf("CreateOrder(fresh): %v", err)
	}

	stale, err := s.StaleInitiatedPayments(ctx, 30*time.Minute, 10)
	if err != nil {
		t.Fatalf("StaleInitiatedPayments: %v", err)
	}
	if len(stale) != 1 || stale[0].ID != staleID {
		t.Fatalf("stale payments = %d, want only the backdated order", len(stale))
	}

	readyAt := time.Now().Add(-96 * time.Hour)
	stuckID, err := s.CreateOrder(ctx, "ready_for_pickup", "captured", 100, &readyAt)
	if err != nil {
		t.Fatalf("CreateOrder(stuck): %v", err)
	}
	recentReady := time.Now().Add(-time.Hour)
	if _, err := s.CreateOrder(ctx, "ready_for_pickup", "captured", 100, &recentReady); err != nil {
		t.Fatalf("CreateOrder(recent): %v", err)
	}

	stuck, err := s.StalePickupOrders(ctx, 72*time.Hour, 10)
	if err != nil {
		t.Fatalf("StalePickupOrders: %v", err)
	}
	if len(stuck) != 1 || stuck[0].ID != stuckID {
		t.Fatalf("stuck pickups = %d, want only the 96h-old order", len(stuck))
	}
}
