package storage

import (
	"context"
	"fmt"
	"time"

	"stockwatch/internal/types"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.uber.org/zap"
)

const (
	diffsCollection = "diffs"
	usersCollection = "users"
)

// Config represents document store configuration
type Config struct {
	URI      string        `mapstructure:"uri" validate:"required"`
	Database string        `mapstructure:"database"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// Store is the mongo-backed document store holding snapshot collections,
// the diff log and the subscription registry.
type Store struct {
	client *mongo.Client
	db     *mongo.Database
	logger *zap.Logger
}

// NewStore connects to the document store and verifies connectivity
func NewStore(ctx context.Context, cfg *Config, logger *zap.Logger) (*Store, error) {
	if cfg.Database == "" {
		cfg.Database = "stockwatch"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}

	opts := options.Client().
		ApplyURI(cfg.URI).
		SetServerSelectionTimeout(cfg.Timeout)

	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, types.StoreError(err)
	}

	// Force a round trip so bad credentials fail at startup
	pingCtx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()
	if err := client.Ping(pingCtx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, types.StoreError(err)
	}

	return &Store{
		client: client,
		db:     client.Database(cfg.Database),
		logger: logger,
	}, nil
}

// Close disconnects from the document store
func (s *Store) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

// Snapshots returns the snapshot repository
func (s *Store) Snapshots() SnapshotRepository { return (*snapshotRepository)(s) }

// Diffs returns the diff log repository
func (s *Store) Diffs() DiffRepository { return (*diffRepository)(s) }

// Subscriptions returns the subscription repository
func (s *Store) Subscriptions() SubscriptionRepository { return (*subscriptionRepository)(s) }

// wrapErr tags connectivity failures so callers can escalate them
func wrapErr(op string, err error) error {
	if mongo.IsNetworkError(err) || mongo.IsTimeout(err) {
		return fmt.Errorf("%s: %w", op, types.StoreError(err))
	}
	return fmt.Errorf("%s: %w", op, err)
}

type snapshotRepository Store

// Append inserts the snapshot with its domain fields flattened alongside
// the ticker and date keys.
func (r *snapshotRepository) Append(ctx context.Context, source string, snap *types.Snapshot) error {
	doc := make(bson.M, len(snap.Data)+2)
	for k, v := range snap.Data {
		doc[k] = v
	}
	doc["ticker"] = snap.Ticker
	doc["date"] = snap.Date

	if _, err := r.db.Collection(source).InsertOne(ctx, doc); err != nil {
		return wrapErr("append snapshot", err)
	}
	return nil
}

// History returns the ticker's rows ordered by capture date
func (r *snapshotRepository) History(ctx context.Context, source, ticker string) ([]map[string]any, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "date", Value: 1}}).
		SetProjection(bson.M{"_id": 0})

	cursor, err := r.db.Collection(source).Find(ctx, bson.M{"ticker": ticker}, opts)
	if err != nil {
		return nil, wrapErr("query history", err)
	}

	var raw []bson.M
	if err := cursor.All(ctx, &raw); err != nil {
		return nil, wrapErr("decode history", err)
	}

	rows := make([]map[string]any, 0, len(raw))
	for _, doc := range raw {
		rows = append(rows, normalizeMap(doc))
	}
	return rows, nil
}

// Latest returns the differ's previous input for the ticker
func (r *snapshotRepository) Latest(ctx context.Context, source, ticker string) (map[string]any, error) {
	rows, err := r.History(ctx, source, ticker)
	if err != nil {
		return nil, err
	}
	return LatestRow(rows), nil
}

type diffRepository Store

// Append inserts accepted diffs into the diff log
func (r *diffRepository) Append(ctx context.Context, diffs []*types.Diff) error {
	if len(diffs) == 0 {
		return nil
	}

	docs := make([]any, 0, len(diffs))
	for _, d := range diffs {
		docs = append(docs, d)
	}

	if _, err := r.db.Collection(diffsCollection).InsertMany(ctx, docs); err != nil {
		return wrapErr("append diffs", err)
	}
	return nil
}

// Undelivered returns undelivered diffs in capture order
func (r *diffRepository) Undelivered(ctx context.Context, excludeSources []string) ([]*types.Diff, error) {
	filter := bson.M{"delivered": false}
	if len(excludeSources) > 0 {
		filter["source"] = bson.M{"$nin": excludeSources}
	}

	opts := options.Find().SetSort(bson.D{{Key: "date", Value: 1}})
	cursor, err := r.db.Collection(diffsCollection).Find(ctx, filter, opts)
	if err != nil {
		return nil, wrapErr("query undelivered diffs", err)
	}

	var diffs []*types.Diff
	if err := cursor.All(ctx, &diffs); err != nil {
		return nil, wrapErr("decode diffs", err)
	}
	return diffs, nil
}

// MarkDelivered flips the delivered flag for one diff. The update matches
// on the id alone, so re-marking an already delivered diff changes nothing.
func (r *diffRepository) MarkDelivered(ctx context.Context, id string) error {
	_, err := r.db.Collection(diffsCollection).UpdateByID(ctx, id,
		bson.M{"$set": bson.M{"delivered": true}})
	if err != nil {
		return wrapErr("mark delivered", err)
	}
	return nil
}

// Query returns diffs for audit reads
func (r *diffRepository) Query(ctx context.Context, ticker string) ([]*types.Diff, error) {
	filter := bson.M{}
	if ticker != "" {
		filter["ticker"] = ticker
	}

	opts := options.Find().SetSort(bson.D{{Key: "date", Value: 1}})
	cursor, err := r.db.Collection(diffsCollection).Find(ctx, filter, opts)
	if err != nil {
		return nil, wrapErr("query diffs", err)
	}

	var diffs []*types.Diff
	if err := cursor.All(ctx, &diffs); err != nil {
		return nil, wrapErr("decode diffs", err)
	}
	return diffs, nil
}

type subscriptionRepository Store

// List returns one delivery lane's subscriptions
func (r *subscriptionRepository) List(ctx context.Context, delay bool) ([]*types.Subscription, error) {
	cursor, err := r.db.Collection(usersCollection).Find(ctx, bson.M{"delay": delay})
	if err != nil {
		return nil, wrapErr("query subscriptions", err)
	}

	var subs []*types.Subscription
	if err := cursor.All(ctx, &subs); err != nil {
		return nil, wrapErr("decode subscriptions", err)
	}
	return subs, nil
}

// Upsert registers a subscription keyed by user name
func (r *subscriptionRepository) Upsert(ctx context.Context, sub *types.Subscription) error {
	opts := options.Replace().SetUpsert(true)
	_, err := r.db.Collection(usersCollection).ReplaceOne(ctx,
		bson.M{"user_name": sub.UserName}, sub, opts)
	if err != nil {
		return wrapErr("upsert subscription", err)
	}
	return nil
}

// Delete removes a user's subscription
func (r *subscriptionRepository) Delete(ctx context.Context, userName string) error {
	if _, err := r.db.Collection(usersCollection).DeleteOne(ctx,
		bson.M{"user_name": userName}); err != nil {
		return wrapErr("delete subscription", err)
	}
	return nil
}

// normalizeMap rewrites decoded bson values into plain maps, slices and
// times so the differ can compare them against freshly fetched records.
func normalizeMap(doc bson.M) map[string]any {
	out := make(map[string]any, len(doc))
	for k, v := range doc {
		out[k] = normalizeValue(v)
	}
	return out
}

func normalizeValue(v any) any {
	switch t := v.(type) {
	case bson.M:
		return normalizeMap(t)
	case map[string]any:
		return normalizeMap(t)
	case bson.D:
		m := make(map[string]any, len(t))
		for _, e := range t {
			m[e.Key] = normalizeValue(e.Value)
		}
		return m
	case bson.A:
		s := make([]any, len(t))
		for i, e := range t {
			s[i] = normalizeValue(e)
		}
		return s
	case []any:
		s := make([]any, len(t))
		for i, e := range t {
			s[i] = normalizeValue(e)
		}
		return s
	case primitive.DateTime:
		return t.Time().UTC()
	default:
		return v
	}
}
