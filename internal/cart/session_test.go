package cart_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-pdv/internal/cart"
)

func TestSessionLifecycle(t *testing.T) {
	now := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	sess := cart.NewSession("s1", "f1", "u1", now)
	require.Equal(t, cart.StateEmpty, sess.State)

	require.ErrorIs(t, sess.MarkReady(now), cart.ErrEmptyCart)
	require.Equal(t, cart.StateEmpty, sess.State)

	require.NoError(t, sess.Mutate(now, func(c *cart.Cart) { c.Add(product("a", "10.00")) }))
	require.Equal(t, cart.StateBuilding, sess.State)

	require.NoError(t, sess.MarkReady(now))
	require.Equal(t, cart.StateReady, sess.State)

	// editing a ready cart sends it back to building
	require.NoError(t, sess.Mutate(now, func(c *cart.Cart) { c.SetQuantity("a", 2) }))
	require.Equal(t, cart.StateBuilding, sess.State)

	require.NoError(t, sess.MarkReady(now))
	require.NoError(t, sess.MarkSubmitted("sale-1", now))
	require.Equal(t, cart.StateSubmitted, sess.State)
	require.Equal(t, "sale-1", sess.SaleID)
	require.Zero(t, sess.Cart.Len())

	require.ErrorIs(t, sess.Mutate(now, func(c *cart.Cart) { c.Add(product("b", "1.00")) }), cart.ErrSessionClosed)
	require.ErrorIs(t, sess.Reset(now), cart.ErrSessionClosed)
	require.ErrorIs(t, sess.MarkSubmitted("sale-2", now), cart.ErrSessionClosed)
}

func TestSessionEmptiedReturnsToEmpty(t *testing.T) {
	now := time.Now()
	sess := cart.NewSession("s1", "f1", "u1", now)
	require.NoError(t, sess.Mutate(now, func(c *cart.Cart) { c.Add(product("a", "10.00")) }))
	require.NoError(t, sess.Mutate(now, func(c *cart.Cart) { c.Remove("a") }))
	require.Equal(t, cart.StateEmpty, sess.State)
}

func TestResetClearsCustomer(t *testing.T) {
	now := time.Now()
	sess := cart.NewSession("s1", "f1", "u1", now)
	sess.CustomerID = "c1"
	require.NoError(t, sess.Mutate(now, func(c *cart.Cart) { c.Add(product("a", "10.00")) }))
	require.NoError(t, sess.Reset(now))
	require.Empty(t, sess.CustomerID)
	require.Equal(t, cart.StateEmpty, sess.State)
}
