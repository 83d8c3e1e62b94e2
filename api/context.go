/*
context.go - Request identity extraction

Authentication is an upstream concern: the gateway in front of this
service validates credentials and injects the caller's identity as
headers. This file lifts those headers into the request context so
handlers and domain code see typed identifiers instead of raw headers.

HEADERS:
  X-Shop-ID    The shop the caller operates in (required on /api routes)
  X-Actor-ID   The staff member performing the action
  X-Actor-Role Role string; "owner" unlocks alert resolution
  X-Device-ID  The POS till pushing offline sales
*/
package api

import (
	"context"
	"net/http"

	"github.com/tally/shopledger/ledger"
)

type contextKey string

const (
	ctxKeyShop   contextKey = "shop"
	ctxKeyActor  contextKey = "actor"
	ctxKeyRole   contextKey = "role"
	ctxKeyDevice contextKey = "device"
)

// RoleOwner is the role allowed to resolve alerts.
const RoleOwner = "owner"

// Identity middleware lifts the identity headers into the context and
// rejects requests without a shop.
func Identity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		shop := r.Header.Get("X-Shop-ID")
		if shop == "" {
			writeError(w, http.StatusBadRequest, "X-Shop-ID header is required", nil)
			return
		}

		ctx := r.Context()
		ctx = context.WithValue(ctx, ctxKeyShop, ledger.ShopID(shop))
		ctx = context.WithValue(ctx, ctxKeyActor, ledger.ActorID(r.Header.Get("X-Actor-ID")))
		ctx = context.WithValue(ctx, ctxKeyRole, r.Header.Get("X-Actor-Role"))
		ctx = context.WithValue(ctx, ctxKeyDevice, ledger.DeviceID(r.Header.Get("X-Device-ID")))

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func shopFrom(ctx context.Context) ledger.ShopID {
	shop, _ := ctx.Value(ctxKeyShop).(ledger.ShopID)
	return shop
}

func actorFrom(ctx context.Context) ledger.ActorID {
	actor, _ := ctx.Value(ctxKeyActor).(ledger.ActorID)
	return actor
}

func roleFrom(ctx context.Context) string {
	role, _ := ctx.Value(ctxKeyRole).(string)
	return role
}

func deviceFrom(ctx context.Context) ledger.DeviceID {
	device, _ := ctx.Value(ctxKeyDevice).(ledger.DeviceID)
	return device
}

// HeaderRoles implements alerts.RoleChecker from the identity headers.
// It trusts the gateway; the check here only gates which caller context
// may perform owner-only transitions.
type HeaderRoles struct{}

func (HeaderRoles) IsOwner(ctx context.Context, shop ledger.ShopID, actor ledger.ActorID) (bool, error) {
	return shopFrom(ctx) == shop && actorFrom(ctx) == actor && roleFrom(ctx) == RoleOwner, nil
}
