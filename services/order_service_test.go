package services

import (
	"context"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stitchwell/tailoring-api/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateOrder_ComputesTotals(t *testing.T) {
	f := newFixture(t)
	customer := f.createUser(t, "alice", models.RoleCustomer)
	service := f.createService(t, "100")

	order := f.createOrder(t, customer, service, 2)

	assertDecimal(t, "200", order.TotalAmount)
	assertDecimal(t, "0", order.PaidAmount)
	assertDecimal(t, "200", order.RemainingAmount)
	assert.Equal(t, models.OrderStatusPending, order.Status)
	assert.Equal(t, models.PaymentStatusPending, order.PaymentStatus)
	assert.Nil(t, order.TailorID)
	require.NotNil(t, order.CustomerID)
	assert.Equal(t, customer.ID, *order.CustomerID)
	assert.Equal(t, "alice", order.CustomerName)
	assert.Equal(t, "alice@example.com", order.CustomerEmail)
	assert.Equal(t, service.Title, order.Service.Title)
	assertAmountsConsistent(t, f.reloadOrder(t, order.ID))

	assert.Equal(t, float64(1), testutil.ToFloat64(f.metrics.OrdersCreated))

	f.dispatcher.Wait()
	sent := f.notifier.SentOfKind(NotifyOrderConfirmation)
	require.Len(t, sent, 1)
	assert.Equal(t, "alice@example.com", sent[0].To)
}

func TestCreateOrder_Guest(t *testing.T) {
	f := newFixture(t)
	service := f.createService(t, "45.50")

	order, err := f.orders.CreateOrder(context.Background(), Actor{}, CreateOrderInput{
		ServiceID: service.ID,
		Quantity:  3,
		Contact:   GuestContact{Name: "Guest Buyer", Email: "guest@example.com", Phone: "555-0100"},
	})
	require.NoError(t, err)

	assert.Nil(t, order.CustomerID)
	assert.Equal(t, "Guest Buyer", order.CustomerName)
	assert.Equal(t, "guest@example.com", order.CustomerEmail)
	assert.Equal(t, "555-0100", order.CustomerPhone)
	assertDecimal(t, "136.50", order.TotalAmount)
	assertDecimal(t, "136.50", order.RemainingAmount)
}

func TestCreateOrder_Validation(t *testing.T) {
	f := newFixture(t)
	customer := f.createUser(t, "alice", models.RoleCustomer)
	tailor := f.createUser(t, "taylor", models.RoleTailor)
	service := f.createService(t, "100")

	tests := []struct {
		name         string
		actor        Actor
		input        CreateOrderInput
		expectedKind ErrorKind
		expectedCode string
	}{
		{
			name:         "zero quantity",
			actor:        actorFor(customer),
			input:        CreateOrderInput{ServiceID: service.ID, Quantity: 0},
			expectedKind: KindInvalidInput,
			expectedCode: "INVALID_QUANTITY",
		},
		{
			name:         "negative quantity",
			actor:        actorFor(customer),
			input:        CreateOrderInput{ServiceID: service.ID, Quantity: -1},
			expectedKind: KindInvalidInput,
			expectedCode: "INVALID_QUANTITY",
		},
		{
			name:         "missing service",
			actor:        actorFor(customer),
			input:        CreateOrderInput{ServiceID: 4242, Quantity: 1},
			expectedKind: KindNotFound,
			expectedCode: "SERVICE_NOT_FOUND",
		},
		{
			name:         "tailor cannot order",
			actor:        actorFor(tailor),
			input:        CreateOrderInput{ServiceID: service.ID, Quantity: 1},
			expectedKind: KindForbidden,
		},
		{
			name:         "admin cannot order",
			actor:        adminActor(),
			input:        CreateOrderInput{ServiceID: service.ID, Quantity: 1},
			expectedKind: KindForbidden,
		},
		{
			name:         "guest without name",
			actor:        Actor{},
			input:        CreateOrderInput{ServiceID: service.ID, Quantity: 1, Contact: GuestContact{Email: "g@example.com"}},
			expectedKind: KindInvalidInput,
			expectedCode: "INVALID_CONTACT",
		},
		{
			name:         "guest without email",
			actor:        Actor{},
			input:        CreateOrderInput{ServiceID: service.ID, Quantity: 1, Contact: GuestContact{Name: "Guest"}},
			expectedKind: KindInvalidInput,
			expectedCode: "INVALID_CONTACT",
		},
		{
			name:         "guest with malformed email",
			actor:        Actor{},
			input:        CreateOrderInput{ServiceID: service.ID, Quantity: 1, Contact: GuestContact{Name: "Guest", Email: "not-an-email"}},
			expectedKind: KindInvalidInput,
			expectedCode: "INVALID_CONTACT",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			order, err := f.orders.CreateOrder(context.Background(), tt.actor, tt.input)
			assert.Nil(t, order)
			assertKind(t, err, tt.expectedKind, tt.expectedCode)
		})
	}

	var count int64
	f.db.Model(&models.Order{}).Count(&count)
	assert.Equal(t, int64(0), count)
}

func TestCreateOrder_DeletedServiceNotOrderable(t *testing.T) {
	f := newFixture(t)
	customer := f.createUser(t, "alice", models.RoleCustomer)
	service := f.createService(t, "100")
	require.NoError(t, f.catalog.DeleteService(context.Background(), service.ID))

	_, err := f.orders.CreateOrder(context.Background(), actorFor(customer), CreateOrderInput{ServiceID: service.ID, Quantity: 1})
	assertKind(t, err, KindNotFound, "SERVICE_NOT_FOUND")
}

func TestAssignTailor_Success(t *testing.T) {
	f := newFixture(t)
	customer := f.createUser(t, "alice", models.RoleCustomer)
	tailor := f.createUser(t, "taylor", models.RoleTailor)
	order := f.createOrder(t, customer, f.createService(t, "100"), 1)

	assigned, err := f.orders.AssignTailor(context.Background(), order.ID, tailor.ID)
	require.NoError(t, err)

	assert.Equal(t, models.OrderStatusInProgress, assigned.Status)
	require.NotNil(t, assigned.TailorID)
	assert.Equal(t, tailor.ID, *assigned.TailorID)
	require.NotNil(t, assigned.Tailor)
	assert.Equal(t, "taylor", assigned.Tailor.Username)
	assert.False(t, f.reloadUser(t, tailor.ID).Available)
	assert.Equal(t, 2, f.reloadOrder(t, order.ID).Version)

	f.dispatcher.Wait()
	assert.Len(t, f.notifier.SentOfKind(NotifyTailorAssigned), 1)
}

func TestAssignTailor_AlreadyAssignedOrder(t *testing.T) {
	f := newFixture(t)
	customer := f.createUser(t, "alice", models.RoleCustomer)
	first := f.createUser(t, "first", models.RoleTailor)
	second := f.createUser(t, "second", models.RoleTailor)
	order := f.createOrder(t, customer, f.createService(t, "100"), 1)

	_, err := f.orders.AssignTailor(context.Background(), order.ID, first.ID)
	require.NoError(t, err)

	_, err = f.orders.AssignTailor(context.Background(), order.ID, second.ID)
	assertKind(t, err, KindConflict, "ORDER_ALREADY_ASSIGNED")

	stored := f.reloadOrder(t, order.ID)
	require.NotNil(t, stored.TailorID)
	assert.Equal(t, first.ID, *stored.TailorID)
	assert.True(t, f.reloadUser(t, second.ID).Available, "second tailor claim must be rolled back")
}

func TestAssignTailor_Failures(t *testing.T) {
	f := newFixture(t)
	customer := f.createUser(t, "alice", models.RoleCustomer)
	busy := f.createUser(t, "busy", models.RoleTailor)
	free := f.createUser(t, "free", models.RoleTailor)
	service := f.createService(t, "100")

	busyOrder := f.createOrder(t, customer, service, 1)
	_, err := f.orders.AssignTailor(context.Background(), busyOrder.ID, busy.ID)
	require.NoError(t, err)

	order := f.createOrder(t, customer, service, 1)
	cancelled := f.createOrder(t, customer, service, 1)
	_, err = f.orders.UpdateOrderStatusByAdmin(context.Background(), cancelled.ID, models.OrderStatusCancelled)
	require.NoError(t, err)

	tests := []struct {
		name         string
		orderID      uint
		tailorID     uint
		expectedKind ErrorKind
		expectedCode string
	}{
		{"order missing", 9999, free.ID, KindNotFound, "ORDER_NOT_FOUND"},
		{"tailor missing", order.ID, 9999, KindNotFound, "TAILOR_NOT_FOUND"},
		{"user is not a tailor", order.ID, customer.ID, KindNotFound, "TAILOR_NOT_FOUND"},
		{"tailor busy", order.ID, busy.ID, KindNotFound, "TAILOR_UNAVAILABLE"},
		{"order not pending", cancelled.ID, free.ID, KindConflict, "ORDER_NOT_PENDING"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.orders.AssignTailor(context.Background(), tt.orderID, tt.tailorID)
			assertKind(t, err, tt.expectedKind, tt.expectedCode)
		})
	}

	// every failed attempt rolled back the tailor claim
	assert.True(t, f.reloadUser(t, free.ID).Available)
	assert.True(t, f.reloadUser(t, customer.ID).Available)
	assert.Equal(t, models.OrderStatusPending, f.reloadOrder(t, order.ID).Status)
	assert.Nil(t, f.reloadOrder(t, order.ID).TailorID)
}

func TestAssignTailor_ConcurrentSameOrder(t *testing.T) {
	f := newFixture(t)
	customer := f.createUser(t, "alice", models.RoleCustomer)
	tailors := []models.User{
		f.createUser(t, "t1", models.RoleTailor),
		f.createUser(t, "t2", models.RoleTailor),
	}
	order := f.createOrder(t, customer, f.createService(t, "100"), 1)

	errs := make([]error, len(tailors))
	var wg sync.WaitGroup
	for i, tailor := range tailors {
		wg.Add(1)
		go func(i int, tailorID uint) {
			defer wg.Done()
			_, errs[i] = f.orders.AssignTailor(context.Background(), order.ID, tailorID)
		}(i, tailor.ID)
	}
	wg.Wait()

	var successes, conflicts int
	for _, err := range errs {
		switch {
		case err == nil:
			successes++
		case IsKind(err, KindConflict):
			conflicts++
		}
	}
	assert.Equal(t, 1, successes)
	assert.Equal(t, 1, conflicts)

	busy := 0
	for _, tailor := range tailors {
		if !f.reloadUser(t, tailor.ID).Available {
			busy++
		}
	}
	assert.Equal(t, 1, busy, "exactly one tailor should be claimed")
}

func TestAssignTailor_ConcurrentSameTailor(t *testing.T) {
	f := newFixture(t)
	customer := f.createUser(t, "alice", models.RoleCustomer)
	tailor := f.createUser(t, "taylor", models.RoleTailor)
	service := f.createService(t, "100")
	orders := []*models.Order{
		f.createOrder(t, customer, service, 1),
		f.createOrder(t, customer, service, 1),
	}

	errs := make([]error, len(orders))
	var wg sync.WaitGroup
	for i, order := range orders {
		wg.Add(1)
		go func(i int, orderID uint) {
			defer wg.Done()
			_, errs[i] = f.orders.AssignTailor(context.Background(), orderID, tailor.ID)
		}(i, order.ID)
	}
	wg.Wait()

	var successes int
	for _, err := range errs {
		if err == nil {
			successes++
		} else {
			assertKind(t, err, KindNotFound, "TAILOR_UNAVAILABLE")
		}
	}
	assert.Equal(t, 1, successes)

	var held int64
	f.db.Model(&models.Order{}).
		Where("tailor_id = ? AND status NOT IN ?", tailor.ID, []string{models.OrderStatusCompleted, models.OrderStatusCancelled}).
		Count(&held)
	assert.Equal(t, int64(1), held, "a tailor holds at most one open order")
}

func TestUpdateOrderStatusByAdmin_CompletionReleasesTailorOnce(t *testing.T) {
	f := newFixture(t)
	customer := f.createUser(t, "alice", models.RoleCustomer)
	tailor := f.createUser(t, "taylor", models.RoleTailor)
	service := f.createService(t, "100")
	order := f.createOrder(t, customer, service, 1)

	_, err := f.orders.AssignTailor(context.Background(), order.ID, tailor.ID)
	require.NoError(t, err)

	completed, err := f.orders.UpdateOrderStatusByAdmin(context.Background(), order.ID, models.OrderStatusCompleted)
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusCompleted, completed.Status)
	assert.True(t, f.reloadUser(t, tailor.ID).Available)

	// the tailor takes a new order, then the first completion is repeated
	next := f.createOrder(t, customer, service, 1)
	_, err = f.orders.AssignTailor(context.Background(), next.ID, tailor.ID)
	require.NoError(t, err)

	again, err := f.orders.UpdateOrderStatusByAdmin(context.Background(), order.ID, models.OrderStatusCompleted)
	require.NoError(t, err, "repeating a terminal status is a no-op")
	assert.Equal(t, models.OrderStatusCompleted, again.Status)
	assert.False(t, f.reloadUser(t, tailor.ID).Available, "repeat must not release the tailor again")

	assert.Equal(t, float64(1), testutil.ToFloat64(f.metrics.OrderTransitions.WithLabelValues(models.OrderStatusInProgress, models.OrderStatusCompleted)))
}

func TestUpdateOrderStatusByAdmin_Transitions(t *testing.T) {
	f := newFixture(t)
	customer := f.createUser(t, "alice", models.RoleCustomer)
	tailor := f.createUser(t, "taylor", models.RoleTailor)
	service := f.createService(t, "100")

	t.Run("rejects unknown and deprecated statuses", func(t *testing.T) {
		order := f.createOrder(t, customer, service, 1)
		for _, status := range []string{"accepted", "processing", "inProgress", ""} {
			_, err := f.orders.UpdateOrderStatusByAdmin(context.Background(), order.ID, status)
			assertKind(t, err, KindInvalidInput, "INVALID_STATUS")
		}
	})

	t.Run("missing order", func(t *testing.T) {
		_, err := f.orders.UpdateOrderStatusByAdmin(context.Background(), 9999, models.OrderStatusCompleted)
		assertKind(t, err, KindNotFound, "ORDER_NOT_FOUND")
	})

	t.Run("terminal states are absorbing", func(t *testing.T) {
		order := f.createOrder(t, customer, service, 1)
		_, err := f.orders.UpdateOrderStatusByAdmin(context.Background(), order.ID, models.OrderStatusCancelled)
		require.NoError(t, err)

		for _, status := range []string{models.OrderStatusPending, models.OrderStatusInProgress, models.OrderStatusCompleted} {
			_, err := f.orders.UpdateOrderStatusByAdmin(context.Background(), order.ID, status)
			assertKind(t, err, KindConflict, "ORDER_CLOSED")
		}
		assert.Equal(t, models.OrderStatusCancelled, f.reloadOrder(t, order.ID).Status)
	})

	t.Run("admin can move between pending and in-progress", func(t *testing.T) {
		order := f.createOrder(t, customer, service, 1)
		updated, err := f.orders.UpdateOrderStatusByAdmin(context.Background(), order.ID, models.OrderStatusInProgress)
		require.NoError(t, err)
		assert.Equal(t, models.OrderStatusInProgress, updated.Status)

		updated, err = f.orders.UpdateOrderStatusByAdmin(context.Background(), order.ID, models.OrderStatusPending)
		require.NoError(t, err)
		assert.Equal(t, models.OrderStatusPending, updated.Status)
	})

	t.Run("cancellation releases the tailor", func(t *testing.T) {
		order := f.createOrder(t, customer, service, 1)
		_, err := f.orders.AssignTailor(context.Background(), order.ID, tailor.ID)
		require.NoError(t, err)

		_, err = f.orders.UpdateOrderStatusByAdmin(context.Background(), order.ID, models.OrderStatusCancelled)
		require.NoError(t, err)
		assert.True(t, f.reloadUser(t, tailor.ID).Available)
	})
}

func TestUpdateOrderStatus_ByParticipants(t *testing.T) {
	f := newFixture(t)
	customer := f.createUser(t, "alice", models.RoleCustomer)
	otherCustomer := f.createUser(t, "bob", models.RoleCustomer)
	tailor := f.createUser(t, "taylor", models.RoleTailor)
	otherTailor := f.createUser(t, "other", models.RoleTailor)
	service := f.createService(t, "100")

	order := f.createOrder(t, customer, service, 1)
	_, err := f.orders.AssignTailor(context.Background(), order.ID, tailor.ID)
	require.NoError(t, err)

	tests := []struct {
		name         string
		actor        Actor
		status       string
		expectedKind ErrorKind
	}{
		{"tailor cannot set in-progress", actorFor(tailor), models.OrderStatusInProgress, KindInvalidInput},
		{"tailor cannot set pending", actorFor(tailor), models.OrderStatusPending, KindInvalidInput},
		{"other tailor forbidden", actorFor(otherTailor), models.OrderStatusCompleted, KindForbidden},
		{"other customer forbidden", actorFor(otherCustomer), models.OrderStatusCancelled, KindForbidden},
		{"admin role not allowed on this path", adminActor(), models.OrderStatusCompleted, KindForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.orders.UpdateOrderStatus(context.Background(), order.ID, tt.status, tt.actor)
			assertKind(t, err, tt.expectedKind, "")
		})
	}

	completed, err := f.orders.UpdateOrderStatus(context.Background(), order.ID, models.OrderStatusCompleted, actorFor(tailor))
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusCompleted, completed.Status)
	assert.True(t, f.reloadUser(t, tailor.ID).Available)

	// the customer can no longer cancel a completed order
	_, err = f.orders.UpdateOrderStatus(context.Background(), order.ID, models.OrderStatusCancelled, actorFor(customer))
	assertKind(t, err, KindConflict, "ORDER_CLOSED")

	// customer cancels their own pending order
	pending := f.createOrder(t, customer, service, 1)
	cancelled, err := f.orders.UpdateOrderStatus(context.Background(), pending.ID, models.OrderStatusCancelled, actorFor(customer))
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusCancelled, cancelled.Status)
}

func TestDeleteOrder(t *testing.T) {
	f := newFixture(t)
	customer := f.createUser(t, "alice", models.RoleCustomer)
	tailor := f.createUser(t, "taylor", models.RoleTailor)
	order := f.createOrder(t, customer, f.createService(t, "100"), 2)

	_, err := f.orders.AssignTailor(context.Background(), order.ID, tailor.ID)
	require.NoError(t, err)
	_, err = f.payments.RecordPayment(context.Background(), PaymentConfirmation{
		OrderID: order.ID, PaymentType: models.PaymentTypeInitial, Amount: order.TotalAmount.Div(decimalTwo), TransactionID: "cs_delete",
	})
	require.NoError(t, err)

	require.NoError(t, f.orders.DeleteOrder(context.Background(), order.ID))

	assert.True(t, f.reloadUser(t, tailor.ID).Available, "deleting an open order releases its tailor")
	_, err = f.orders.GetOrder(context.Background(), order.ID, adminActor())
	assertKind(t, err, KindNotFound, "ORDER_NOT_FOUND")

	var ledger int64
	f.db.Model(&models.Payment{}).Where("order_id = ?", order.ID).Count(&ledger)
	assert.Equal(t, int64(1), ledger, "payment ledger survives order deletion")

	err = f.orders.DeleteOrder(context.Background(), order.ID)
	assertKind(t, err, KindNotFound, "ORDER_NOT_FOUND")
}

func TestDeleteOrder_TerminalKeepsTailorState(t *testing.T) {
	f := newFixture(t)
	customer := f.createUser(t, "alice", models.RoleCustomer)
	tailor := f.createUser(t, "taylor", models.RoleTailor)
	service := f.createService(t, "100")

	done := f.createOrder(t, customer, service, 1)
	_, err := f.orders.AssignTailor(context.Background(), done.ID, tailor.ID)
	require.NoError(t, err)
	_, err = f.orders.UpdateOrderStatusByAdmin(context.Background(), done.ID, models.OrderStatusCompleted)
	require.NoError(t, err)

	current := f.createOrder(t, customer, service, 1)
	_, err = f.orders.AssignTailor(context.Background(), current.ID, tailor.ID)
	require.NoError(t, err)

	require.NoError(t, f.orders.DeleteOrder(context.Background(), done.ID))
	assert.False(t, f.reloadUser(t, tailor.ID).Available, "tailor is still busy with the other order")
}

func TestGetOrder_Access(t *testing.T) {
	f := newFixture(t)
	customer := f.createUser(t, "alice", models.RoleCustomer)
	stranger := f.createUser(t, "bob", models.RoleCustomer)
	tailor := f.createUser(t, "taylor", models.RoleTailor)
	otherTailor := f.createUser(t, "other", models.RoleTailor)
	order := f.createOrder(t, customer, f.createService(t, "100"), 1)
	_, err := f.orders.AssignTailor(context.Background(), order.ID, tailor.ID)
	require.NoError(t, err)

	tests := []struct {
		name    string
		actor   Actor
		allowed bool
	}{
		{"admin", adminActor(), true},
		{"owning customer", actorFor(customer), true},
		{"assigned tailor", actorFor(tailor), true},
		{"other customer", actorFor(stranger), false},
		{"other tailor", actorFor(otherTailor), false},
		{"guest", Actor{}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := f.orders.GetOrder(context.Background(), order.ID, tt.actor)
			if tt.allowed {
				require.NoError(t, err)
				assert.Equal(t, order.ID, got.ID)
				return
			}
			assertKind(t, err, KindForbidden, "ACCESS_DENIED")
		})
	}
}

func TestListOrders(t *testing.T) {
	f := newFixture(t)
	alice := f.createUser(t, "alice", models.RoleCustomer)
	bob := f.createUser(t, "bob", models.RoleCustomer)
	tailor := f.createUser(t, "taylor", models.RoleTailor)
	service := f.createService(t, "100")

	first := f.createOrder(t, alice, service, 1)
	second := f.createOrder(t, bob, service, 1)
	third := f.createOrder(t, alice, service, 1)
	_, err := f.orders.AssignTailor(context.Background(), second.ID, tailor.ID)
	require.NoError(t, err)

	all, err := f.orders.ListOrders(context.Background(), OrderFilter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, third.ID, all[0].ID, "newest first")
	assert.Equal(t, first.ID, all[2].ID)

	pending, err := f.orders.ListOrders(context.Background(), OrderFilter{Status: models.OrderStatusPending})
	require.NoError(t, err)
	assert.Len(t, pending, 2)

	_, err = f.orders.ListOrders(context.Background(), OrderFilter{Status: "accepted"})
	assertKind(t, err, KindInvalidInput, "INVALID_STATUS")

	mine, err := f.orders.ListCustomerOrders(context.Background(), alice.ID)
	require.NoError(t, err)
	assert.Len(t, mine, 2)

	assigned, err := f.orders.ListTailorOrders(context.Background(), tailor.ID)
	require.NoError(t, err)
	require.Len(t, assigned, 1)
	assert.Equal(t, second.ID, assigned[0].ID)

	none, err := f.orders.ListCustomerOrders(context.Background(), 4242)
	require.NoError(t, err)
	assert.NotNil(t, none)
	assert.Empty(t, none)
}

func TestSendPaymentRequest(t *testing.T) {
	f := newFixture(t)
	customer := f.createUser(t, "alice", models.RoleCustomer)
	order := f.createOrder(t, customer, f.createService(t, "100"), 2)

	updated, err := f.orders.SendPaymentRequest(context.Background(), order.ID)
	require.NoError(t, err)
	assert.True(t, updated.PaymentRequestSent)

	_, err = f.orders.SendPaymentRequest(context.Background(), order.ID)
	assertKind(t, err, KindConflict, "PAYMENT_REQUEST_ALREADY_SENT")

	f.dispatcher.Wait()
	requests := f.notifier.SentOfKind(NotifyPaymentRequest)
	require.Len(t, requests, 1)
	assert.Contains(t, requests[0].Body, "100.00")
	assert.Contains(t, requests[0].Body, "http://localhost:3000/orders/")

	// crediting the initial instalment re-arms the request for the final one
	_, err = f.payments.RecordPayment(context.Background(), PaymentConfirmation{
		OrderID: order.ID, PaymentType: models.PaymentTypeInitial, Amount: order.TotalAmount.Div(decimalTwo), TransactionID: "cs_initial",
	})
	require.NoError(t, err)
	assert.False(t, f.reloadOrder(t, order.ID).PaymentRequestSent)

	_, err = f.orders.SendPaymentRequest(context.Background(), order.ID)
	require.NoError(t, err)

	_, err = f.orders.SendPaymentRequest(context.Background(), 9999)
	assertKind(t, err, KindNotFound, "ORDER_NOT_FOUND")
}
