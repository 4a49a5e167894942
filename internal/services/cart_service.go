package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/gridbill/backend/internal/models"
)

const (
	CartKindBill     = "bill"
	CartKindRecharge = "recharge"

	cartTTL = 24 * time.Hour
)

// CartItem is an approved bill or recharge picked for the next batch.
type CartItem struct {
	Kind string `json:"kind" validate:"required,oneof=bill recharge" example:"bill"`
	ID   string `json:"id" validate:"required"`
}

func (i CartItem) member() string {
	return i.Kind + ":" + i.ID
}

func parseCartMember(m string) (CartItem, bool) {
	kind, id, ok := strings.Cut(m, ":")
	if !ok || id == "" || (kind != CartKindBill && kind != CartKindRecharge) {
		return CartItem{}, false
	}
	return CartItem{Kind: kind, ID: id}, true
}

func cartKey(userID string) string {
	return "cart:" + userID
}

// cartIndexKey holds the users whose cart contains the item.
func cartIndexKey(item CartItem) string {
	return "cart_members:" + item.member()
}

// CartService keeps per-user selections in Redis sets.
type CartService struct {
	db    *sql.DB
	redis *redis.Client
}

func NewCartService(db *sql.DB, redisClient *redis.Client) *CartService {
	return &CartService{db: db, redis: redisClient}
}

func (s *CartService) Add(ctx context.Context, orgID, userID string, item CartItem) error {
	var query, want string
	switch item.Kind {
	case CartKindBill:
		query = "SELECT b.bill_status FROM bills b JOIN connections c ON c.id = b.connection_id WHERE b.id = $1 AND c.organization_id = $2"
		want = models.BillStatusApproved
	case CartKindRecharge:
		query = "SELECT r.recharge_status FROM recharges r JOIN connections c ON c.id = r.connection_id WHERE r.id = $1 AND c.organization_id = $2"
		want = models.RechargeStatusApproved
	default:
		return inputErr("unknown cart item kind %q", item.Kind)
	}

	var status string
	err := s.db.QueryRowContext(ctx, query, item.ID, orgID).Scan(&status)
	if errors.Is(err, sql.ErrNoRows) {
		return notFound(item.Kind)
	}
	if err != nil {
		return fmt.Errorf("load %s: %w", item.Kind, err)
	}
	if status != want {
		return stateErr("%s is %s, only approved items can be added", item.Kind, status)
	}

	key := cartKey(userID)
	if err := s.redis.SAdd(ctx, key, item.member()).Err(); err != nil {
		return fmt.Errorf("add to cart: %w", err)
	}
	if err := s.redis.Expire(ctx, key, cartTTL).Err(); err != nil {
		return fmt.Errorf("expire cart: %w", err)
	}
	return s.reindex(ctx, userID)
}

// reindex re-registers the user on the index of every item in the cart and
// aligns the index TTLs with the cart's, so no index outlives or expires
// before the cart that holds its item.
func (s *CartService) reindex(ctx context.Context, userID string) error {
	items, err := s.Items(ctx, userID)
	if err != nil {
		return err
	}
	for _, item := range items {
		idx := cartIndexKey(item)
		if err := s.redis.SAdd(ctx, idx, userID).Err(); err != nil {
			return fmt.Errorf("index cart item: %w", err)
		}
		if err := s.redis.Expire(ctx, idx, cartTTL).Err(); err != nil {
			return fmt.Errorf("expire cart index: %w", err)
		}
	}
	return nil
}

func (s *CartService) Remove(ctx context.Context, userID string, item CartItem) error {
	if err := s.redis.SRem(ctx, cartKey(userID), item.member()).Err(); err != nil {
		return fmt.Errorf("remove from cart: %w", err)
	}
	if err := s.redis.SRem(ctx, cartIndexKey(item), userID).Err(); err != nil {
		return fmt.Errorf("unindex cart item: %w", err)
	}
	return nil
}

// Items returns the cart sorted by kind then id.
func (s *CartService) Items(ctx context.Context, userID string) ([]CartItem, error) {
	members, err := s.redis.SMembers(ctx, cartKey(userID)).Result()
	if err != nil {
		return nil, fmt.Errorf("read cart: %w", err)
	}
	items := make([]CartItem, 0, len(members))
	for _, m := range members {
		if item, ok := parseCartMember(m); ok {
			items = append(items, item)
		}
	}
	sort.Slice(items, func(i, j int) bool {
		if items[i].Kind != items[j].Kind {
			return items[i].Kind < items[j].Kind
		}
		return items[i].ID < items[j].ID
	})
	return items, nil
}

func (s *CartService) Clear(ctx context.Context, userID string) error {
	items, err := s.Items(ctx, userID)
	if err != nil {
		return err
	}
	for _, item := range items {
		if err := s.redis.SRem(ctx, cartIndexKey(item), userID).Err(); err != nil {
			return fmt.Errorf("unindex cart item: %w", err)
		}
	}
	if err := s.redis.Del(ctx, cartKey(userID)).Err(); err != nil {
		return fmt.Errorf("clear cart: %w", err)
	}
	return nil
}

// RemoveEverywhere drops the item from every cart holding it and returns how
// many carts were touched.
func (s *CartService) RemoveEverywhere(ctx context.Context, item CartItem) (int, error) {
	idx := cartIndexKey(item)
	users, err := s.redis.SMembers(ctx, idx).Result()
	if err != nil {
		return 0, fmt.Errorf("read cart index: %w", err)
	}
	for _, userID := range users {
		if err := s.redis.SRem(ctx, cartKey(userID), item.member()).Err(); err != nil {
			return 0, fmt.Errorf("remove from cart of %s: %w", userID, err)
		}
	}
	if err := s.redis.Del(ctx, idx).Err(); err != nil {
		return 0, fmt.Errorf("drop cart index: %w", err)
	}
	if len(users) > 0 {
		slog.InfoContext(ctx, "[CART] item removed from carts", "item", item.member(), "carts", len(users))
	}
	return len(users), nil
}
