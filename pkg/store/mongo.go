package store

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/grigta/outreach/pkg/convflow"
	"github.com/grigta/outreach/pkg/database"
	"github.com/grigta/outreach/pkg/executor"
	"github.com/grigta/outreach/pkg/followback"
	"github.com/grigta/outreach/pkg/logger"
	"github.com/grigta/outreach/pkg/proxypool"
	"github.com/grigta/outreach/pkg/scheduler"
)

const (
	CollectionRelationships  = "relationships"
	CollectionConversations  = "conversations"
	CollectionActionLogs     = "action_logs"
	CollectionScheduleStates = "schedule_states"
	CollectionProxies        = "proxies"
)

// MongoStore is the durable persistence layer. In-memory components
// snapshot into it on shutdown and restore from it on boot, and action
// logs are appended as they happen.
type MongoStore struct {
	db  *database.MongoDB
	log logger.Logger
}

func NewMongoStore(db *database.MongoDB, log logger.Logger) *MongoStore {
	if log == nil {
		log = logger.Nop()
	}
	return &MongoStore{db: db, log: log}
}

// EnsureIndexes creates the indexes the query paths rely on. Safe to call
// on every boot.
func (s *MongoStore) EnsureIndexes() error {
	if err := s.db.CreateCompoundIndex(CollectionRelationships, map[string]int{"account_id": 1, "status": 1}); err != nil {
		return err
	}
	if err := s.db.CreateCompoundIndex(CollectionActionLogs, map[string]int{"account_id": 1, "executed_at": -1}); err != nil {
		return err
	}
	if err := s.db.CreateUniqueIndex(CollectionScheduleStates, []string{"account_id"}); err != nil {
		return err
	}
	return nil
}

func (s *MongoStore) SaveRelationships(ctx context.Context, rels []*followback.Relationship) error {
	for _, rel := range rels {
		if err := s.db.Upsert(ctx, CollectionRelationships, bson.M{"_id": rel.ID}, rel); err != nil {
			return fmt.Errorf("failed to save relationship %s: %w", rel.ID, err)
		}
	}
	s.log.Debug("Saved relationships", logger.Field{Key: "count", Value: len(rels)})
	return nil
}

func (s *MongoStore) Relationships(ctx context.Context, accountID string) ([]*followback.Relationship, error) {
	cursor, err := s.db.Find(ctx, CollectionRelationships, bson.M{"account_id": accountID})
	if err != nil {
		return nil, fmt.Errorf("failed to query relationships: %w", err)
	}
	defer cursor.Close(ctx)

	var rels []*followback.Relationship
	if err := cursor.All(ctx, &rels); err != nil {
		return nil, fmt.Errorf("failed to decode relationships: %w", err)
	}
	return rels, nil
}

// AllRelationships loads every tracked relationship, used to rebuild the
// detector on boot.
func (s *MongoStore) AllRelationships(ctx context.Context) ([]*followback.Relationship, error) {
	cursor, err := s.db.Find(ctx, CollectionRelationships, bson.M{})
	if err != nil {
		return nil, fmt.Errorf("failed to query relationships: %w", err)
	}
	defer cursor.Close(ctx)

	var rels []*followback.Relationship
	if err := cursor.All(ctx, &rels); err != nil {
		return nil, fmt.Errorf("failed to decode relationships: %w", err)
	}
	return rels, nil
}

func (s *MongoStore) SaveConversation(ctx context.Context, state *convflow.ConversationState) error {
	return s.db.Upsert(ctx, CollectionConversations, bson.M{"_id": state.ConversationID}, state)
}

func (s *MongoStore) Conversation(ctx context.Context, conversationID string) (*convflow.ConversationState, error) {
	var state convflow.ConversationState
	err := s.db.FindOne(ctx, CollectionConversations, bson.M{"_id": conversationID}, &state)
	if err == database.ErrNotFound {
		return nil, convflow.ErrConversationNotFound
	}
	if err != nil {
		return nil, err
	}
	return &state, nil
}

func (s *MongoStore) DeleteConversation(ctx context.Context, conversationID string) error {
	_, err := s.db.DeleteOne(ctx, CollectionConversations, bson.M{"_id": conversationID})
	return err
}

func (s *MongoStore) InsertActionLog(ctx context.Context, entry *executor.ActionLog) error {
	_, err := s.db.InsertOne(ctx, CollectionActionLogs, entry)
	if err != nil {
		return fmt.Errorf("failed to insert action log: %w", err)
	}
	return nil
}

// ActionLogs returns an account's action history newest first, since limits
// the window and limit caps the result size. Zero values disable either.
func (s *MongoStore) ActionLogs(ctx context.Context, accountID string, since time.Time, limit int64) ([]*executor.ActionLog, error) {
	filter := bson.M{"account_id": accountID}
	if !since.IsZero() {
		filter["executed_at"] = bson.M{"$gte": since}
	}

	opts := options.Find().SetSort(bson.D{{Key: "executed_at", Value: -1}})
	if limit > 0 {
		opts.SetLimit(limit)
	}

	cursor, err := s.db.Find(ctx, CollectionActionLogs, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to query action logs: %w", err)
	}
	defer cursor.Close(ctx)

	var logs []*executor.ActionLog
	if err := cursor.All(ctx, &logs); err != nil {
		return nil, fmt.Errorf("failed to decode action logs: %w", err)
	}
	return logs, nil
}

// PurgeActionLogs drops log entries older than before and reports how many
// were removed.
func (s *MongoStore) PurgeActionLogs(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.db.DeleteMany(ctx, CollectionActionLogs, bson.M{"executed_at": bson.M{"$lt": before}})
	if err != nil {
		return 0, fmt.Errorf("failed to purge action logs: %w", err)
	}
	return res.DeletedCount, nil
}

func (s *MongoStore) SaveScheduleStates(ctx context.Context, states []scheduler.ScheduleState) error {
	for i := range states {
		state := states[i]
		if err := s.db.Upsert(ctx, CollectionScheduleStates, bson.M{"account_id": state.AccountID}, state); err != nil {
			return fmt.Errorf("failed to save schedule state for %s: %w", state.AccountID, err)
		}
	}
	return nil
}

func (s *MongoStore) ScheduleStates(ctx context.Context) ([]scheduler.ScheduleState, error) {
	cursor, err := s.db.Find(ctx, CollectionScheduleStates, bson.M{})
	if err != nil {
		return nil, fmt.Errorf("failed to query schedule states: %w", err)
	}
	defer cursor.Close(ctx)

	var states []scheduler.ScheduleState
	if err := cursor.All(ctx, &states); err != nil {
		return nil, fmt.Errorf("failed to decode schedule states: %w", err)
	}
	return states, nil
}

func (s *MongoStore) SaveProxies(ctx context.Context, proxies []*proxypool.ProxyConfig) error {
	for _, proxy := range proxies {
		if err := s.db.Upsert(ctx, CollectionProxies, bson.M{"_id": proxy.ID}, proxy); err != nil {
			return fmt.Errorf("failed to save proxy %s: %w", proxy.ID, err)
		}
	}
	return nil
}

func (s *MongoStore) Proxies(ctx context.Context) ([]*proxypool.ProxyConfig, error) {
	cursor, err := s.db.Find(ctx, CollectionProxies, bson.M{})
	if err != nil {
		return nil, fmt.Errorf("failed to query proxies: %w", err)
	}
	defer cursor.Close(ctx)

	var proxies []*proxypool.ProxyConfig
	if err := cursor.All(ctx, &proxies); err != nil {
		return nil, fmt.Errorf("failed to decode proxies: %w", err)
	}
	return proxies, nil
}
