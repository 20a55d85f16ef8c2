// Package audit persists a trail of directory user updates in MongoDB.
// Entries name the changed attributes but never their values.
package audit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	userapp "github.com/lllypuk/aduser/internal/application/user"
	"github.com/lllypuk/aduser/internal/domain/errs"
)

// CollectionUserUpdates is the audit collection name.
const CollectionUserUpdates = "user_update_audit"

const (
	defaultListLimit = 50
	maxListLimit     = 500
)

// MongoRecorder implements userapp.AuditRecorder.
type MongoRecorder struct {
	collection *mongo.Collection
	retention  time.Duration
	logger     *slog.Logger
}

// RecorderOption configures MongoRecorder.
type RecorderOption func(*MongoRecorder)

// WithRecorderLogger sets the logger.
func WithRecorderLogger(logger *slog.Logger) RecorderOption {
	return func(r *MongoRecorder) {
		r.logger = logger
	}
}

// WithRetention expires entries after d. Zero keeps them forever.
func WithRetention(d time.Duration) RecorderOption {
	return func(r *MongoRecorder) {
		r.retention = d
	}
}

// NewMongoRecorder creates a recorder writing to collection.
func NewMongoRecorder(collection *mongo.Collection, opts ...RecorderOption) *MongoRecorder {
	r := &MongoRecorder{
		collection: collection,
		logger:     slog.Default(),
	}

	for _, opt := range opts {
		opt(r)
	}

	return r
}

type entryDocument struct {
	EntryID         string    `bson:"entry_id"`
	Identity        string    `bson:"identity"`
	Fields          []string  `bson:"fields"`
	PasswordChanged bool      `bson:"password_changed"`
	ForceChange     bool      `bson:"force_change"`
	Outcome         string    `bson:"outcome"`
	Error           string    `bson:"error,omitempty"`
	Actor           string    `bson:"actor,omitempty"`
	Source          string    `bson:"source,omitempty"`
	RecordedAt      time.Time `bson:"recorded_at"`
}

// Record stores entry.
func (r *MongoRecorder) Record(ctx context.Context, entry userapp.AuditEntry) error {
	if entry.Identity == "" {
		return errs.ErrInvalidInput
	}
	if entry.RecordedAt.IsZero() {
		entry.RecordedAt = time.Now()
	}

	doc := entryDocument{
		EntryID:         uuid.NewString(),
		Identity:        entry.Identity,
		Fields:          entry.Fields,
		PasswordChanged: entry.PasswordChanged,
		ForceChange:     entry.ForceChange,
		Outcome:         entry.Outcome,
		Error:           entry.Error,
		Actor:           entry.Actor,
		Source:          entry.Source,
		RecordedAt:      entry.RecordedAt.UTC(),
	}

	if _, err := r.collection.InsertOne(ctx, doc); err != nil {
		r.logger.ErrorContext(ctx, "failed to insert audit entry",
			slog.String("identity", entry.Identity),
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("failed to record audit entry: %w", err)
	}

	return nil
}

// ListByIdentity returns the newest entries for identity first.
func (r *MongoRecorder) ListByIdentity(ctx context.Context, identity string, limit int) ([]userapp.AuditEntry, error) {
	if identity == "" {
		return nil, errs.ErrInvalidInput
	}
	if limit <= 0 {
		limit = defaultListLimit
	}
	limit = min(limit, maxListLimit)

	opts := options.Find().
		SetSort(bson.D{{Key: "recorded_at", Value: -1}}).
		SetLimit(int64(limit))

	cursor, err := r.collection.Find(ctx, bson.M{"identity": identity}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list audit entries: %w", err)
	}
	defer cursor.Close(ctx)

	var docs []entryDocument
	if err = cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("failed to decode audit entries: %w", err)
	}

	entries := make([]userapp.AuditEntry, 0, len(docs))
	for _, doc := range docs {
		entries = append(entries, userapp.AuditEntry{
			Identity:        doc.Identity,
			Fields:          doc.Fields,
			PasswordChanged: doc.PasswordChanged,
			ForceChange:     doc.ForceChange,
			Outcome:         doc.Outcome,
			Error:           doc.Error,
			Actor:           doc.Actor,
			Source:          doc.Source,
			RecordedAt:      doc.RecordedAt,
		})
	}

	return entries, nil
}

// EnsureIndexes creates the collection indexes. It is idempotent.
func (r *MongoRecorder) EnsureIndexes(ctx context.Context) error {
	models := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "entry_id", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("idx_entry_id_unique"),
		},
		{
			Keys:    bson.D{{Key: "identity", Value: 1}, {Key: "recorded_at", Value: -1}},
			Options: options.Index().SetName("idx_identity_recorded_at"),
		},
	}

	if r.retention > 0 {
		models = append(models, mongo.IndexModel{
			Keys: bson.D{{Key: "recorded_at", Value: 1}},
			Options: options.Index().
				SetName("idx_recorded_at_ttl").
				SetExpireAfterSeconds(int32(r.retention / time.Second)),
		})
	}

	if _, err := r.collection.Indexes().CreateMany(ctx, models); err != nil {
		var cmdErr mongo.CommandError
		if errors.As(err, &cmdErr) && cmdErr.HasErrorCode(indexOptionsConflict) {
			r.logger.WarnContext(ctx, "audit index options changed, keeping existing index",
				slog.String("error", err.Error()),
			)
			return nil
		}
		return fmt.Errorf("failed to create audit indexes: %w", err)
	}

	return nil
}

// indexOptionsConflict is returned when an index exists with different options.
const indexOptionsConflict = 85
