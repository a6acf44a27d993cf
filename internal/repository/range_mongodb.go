package repository

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
)

const appendRetries = 3

// rangeDocument is one positioned row stored as a MongoDB document.
type rangeDocument struct {
	Table     string    `bson:"tbl"`
	Position  int       `bson:"row_pos"`
	Cells     []string  `bson:"cells"`
	UpdatedAt time.Time `bson:"updated_at"`
}

// MongoDBRangeStore implements RangeStore using a MongoDB collection.
type MongoDBRangeStore struct {
	client     *mongo.Client
	collection *mongo.Collection
	log        *zap.Logger
	mu         sync.Mutex
}

// NewMongoDBRangeStore connects to MongoDB and prepares the range collection.
func NewMongoDBRangeStore(uri, database, collection string, logger *zap.Logger) (*MongoDBRangeStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	clientOpts := options.Client().
		ApplyURI(uri).
		SetMaxPoolSize(50).
		SetMinPoolSize(5).
		SetMaxConnIdleTime(5 * time.Minute).
		SetRetryWrites(true)

	client, err := mongo.Connect(ctx, clientOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	coll := client.Database(database).Collection(collection)

	// (tbl, row_pos) identifies a row; the unique index turns racing appends into retries
	indexModel := mongo.IndexModel{
		Keys:    bson.D{{Key: "tbl", Value: 1}, {Key: "row_pos", Value: 1}},
		Options: options.Index().SetUnique(true),
	}
	if _, err := coll.Indexes().CreateOne(ctx, indexModel); err != nil {
		logger.Warn("mongodb_index_create_failed", zap.Error(err))
	}

	logger.Info("mongodb_connected",
		zap.String("database", database),
		zap.String("collection", collection),
	)

	return &MongoDBRangeStore{
		client:     client,
		collection: coll,
		log:        logger,
	}, nil
}

// ReadRange returns every row of table ordered by position.
func (s *MongoDBRangeStore) ReadRange(ctx context.Context, table string) ([]Row, error) {
	opts := options.Find().SetSort(bson.D{{Key: "row_pos", Value: 1}})

	cursor, err := s.collection.Find(ctx, bson.M{"tbl": table}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to read range %s: %w", table, err)
	}
	defer cursor.Close(ctx)

	var docs []rangeDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("failed to decode range %s: %w", table, err)
	}

	var out []Row
	for _, doc := range docs {
		for len(out) < doc.Position {
			out = append(out, Row{})
		}
		out = append(out, Row(doc.Cells))
	}
	return out, nil
}

// WriteCell sets one cell of an existing row.
func (s *MongoDBRangeStore) WriteCell(ctx context.Context, table string, position, column int, value string) error {
	if err := validateCellTarget(position, column); err != nil {
		return err
	}

	filter := bson.M{"tbl": table, "row_pos": position}

	var doc rangeDocument
	err := s.collection.FindOne(ctx, filter).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return fmt.Errorf("%s!%d: %w", table, position, ErrPositionOutOfRange)
	}
	if err != nil {
		return fmt.Errorf("failed to load row %s!%d: %w", table, position, err)
	}

	cells := Row(doc.Cells).withCell(column, value)
	update := bson.M{"$set": bson.M{
		"cells":      []string(cells),
		"updated_at": time.Now().UTC(),
	}}
	if _, err := s.collection.UpdateOne(ctx, filter, update); err != nil {
		return fmt.Errorf("failed to write cell %s!%d:%d: %w", table, position, column, err)
	}
	return nil
}

// AppendRow adds a row at the end of table.
func (s *MongoDBRangeStore) AppendRow(ctx context.Context, table string, row Row) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cells := row.Clone()
	if cells == nil {
		cells = Row{}
	}

	var lastErr error
	for attempt := 0; attempt < appendRetries; attempt++ {
		next, err := s.nextPosition(ctx, table)
		if err != nil {
			return 0, err
		}

		_, err = s.collection.InsertOne(ctx, rangeDocument{
			Table:     table,
			Position:  next,
			Cells:     []string(cells),
			UpdatedAt: time.Now().UTC(),
		})
		if err == nil {
			return next, nil
		}
		if !mongo.IsDuplicateKeyError(err) {
			return 0, fmt.Errorf("failed to append row to %s: %w", table, err)
		}
		// another writer took this position
		lastErr = err
		s.log.Warn("mongodb_append_position_taken",
			zap.String("table", table),
			zap.Int("position", next),
		)
	}
	return 0, fmt.Errorf("failed to append row to %s after %d attempts: %w", table, appendRetries, lastErr)
}

func (s *MongoDBRangeStore) nextPosition(ctx context.Context, table string) (int, error) {
	opts := options.FindOne().
		SetSort(bson.D{{Key: "row_pos", Value: -1}}).
		SetProjection(bson.M{"row_pos": 1})

	var last rangeDocument
	err := s.collection.FindOne(ctx, bson.M{"tbl": table}, opts).Decode(&last)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to compute next position for %s: %w", table, err)
	}
	return last.Position + 1, nil
}

// Close disconnects from MongoDB.
func (s *MongoDBRangeStore) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}

// Ensure MongoDBRangeStore implements RangeStore
var _ RangeStore = (*MongoDBRangeStore)(nil)
