package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"triage/core"

	"github.com/cespare/xxhash/v2"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
)

// MongoDB holds the MongoDB client and database
type MongoDB struct {
	Client   *mongo.Client
	Database *mongo.Database
}

// NewMongoDB creates a new MongoDB connection
func NewMongoDB(uri, dbName string, maxPoolSize uint64, logger *zap.SugaredLogger) (*MongoDB, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	clientOptions := options.Client().ApplyURI(uri).SetMaxPoolSize(maxPoolSize)
	client, err := mongo.Connect(ctx, clientOptions)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	logger.Info("Connected to MongoDB successfully")

	return &MongoDB{
		Client:   client,
		Database: client.Database(dbName),
	}, nil
}

// HealthCheck performs a health check on the MongoDB connection
func (m *MongoDB) HealthCheck(ctx context.Context) error {
	return m.Client.Ping(ctx, nil)
}

// Close closes the MongoDB connection
func (m *MongoDB) Close(ctx context.Context) error {
	return m.Client.Disconnect(ctx)
}

// ArchivedCase is the stored snapshot of a case file
type ArchivedCase struct {
	UUID       string             `bson:"_id" json:"uuid"`
	Title      string             `bson:"title" json:"title"`
	CreatedAt  time.Time          `bson:"created_at" json:"created_at"`
	ArchivedAt time.Time          `bson:"archived_at" json:"archived_at"`
	Checksum   string             `bson:"checksum" json:"checksum"`
	Indicators core.Indicators    `bson:"indicators" json:"indicators"`
	Handled    []string           `bson:"handled_by_playbooks" json:"handled_by_playbooks"`
	Retry      []string           `bson:"playbooks_to_retry" json:"playbooks_to_retry"`
	Audit      []core.AuditRecord `bson:"audit" json:"audit"`
	// Rendered is the JSON projection of the full case
	Rendered string `bson:"rendered" json:"rendered"`
}

// NewArchivedCase snapshots cf
func NewArchivedCase(cf *core.CaseFile) (*ArchivedCase, error) {
	if cf == nil {
		return nil, fmt.Errorf("%w: case file must not be nil", core.ErrType)
	}
	rendered, err := cf.Projection().MarshalJSON()
	if err != nil {
		return nil, fmt.Errorf("failed to render case: %w", err)
	}

	trail := cf.AuditTrail()
	audit := make([]core.AuditRecord, 0, len(trail))
	for _, a := range trail {
		audit = append(audit, a.Record(cf.UUID()))
	}

	return &ArchivedCase{
		UUID:       cf.UUID(),
		Title:      cf.Title(),
		CreatedAt:  cf.CreatedAt(),
		Checksum:   fmt.Sprintf("%016x", xxhash.Sum64(rendered)),
		Indicators: cf.Indicators(),
		Handled:    cf.HandledByPlaybooks(),
		Retry:      cf.PlaybooksToRetry(),
		Audit:      audit,
		Rendered:   string(rendered),
	}, nil
}

// MongoCaseArchive stores case snapshots, one document per case UUID
type MongoCaseArchive struct {
	coll   *mongo.Collection
	logger *zap.SugaredLogger
}

// NewMongoCaseArchive creates an archive on the given collection
func NewMongoCaseArchive(m *MongoDB, collection string, logger *zap.SugaredLogger) *MongoCaseArchive {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	if collection == "" {
		collection = "cases"
	}
	return &MongoCaseArchive{coll: m.Database.Collection(collection), logger: logger}
}

// Save upserts the snapshot of cf. Unchanged cases are not rewritten.
// It reports whether a write happened.
func (a *MongoCaseArchive) Save(ctx context.Context, cf *core.CaseFile) (bool, error) {
	doc, err := NewArchivedCase(cf)
	if err != nil {
		return false, err
	}

	var existing struct {
		Checksum string `bson:"checksum"`
	}
	err = a.coll.FindOne(ctx, bson.M{"_id": doc.UUID},
		options.FindOne().SetProjection(bson.M{"checksum": 1})).Decode(&existing)
	switch {
	case err == nil && existing.Checksum == doc.Checksum:
		a.logger.Debugw("Case unchanged, skipping archive write", "case", doc.UUID)
		return false, nil
	case err != nil && !errors.Is(err, mongo.ErrNoDocuments):
		return false, fmt.Errorf("failed to look up archived case: %w", err)
	}

	doc.ArchivedAt = time.Now().UTC()
	_, err = a.coll.ReplaceOne(ctx, bson.M{"_id": doc.UUID}, doc, options.Replace().SetUpsert(true))
	if err != nil {
		return false, fmt.Errorf("failed to archive case: %w", err)
	}
	a.logger.Infow("Case archived", "case", doc.UUID, "audit_entries", len(doc.Audit))
	return true, nil
}

// Get returns the archived snapshot of the case with the given UUID
func (a *MongoCaseArchive) Get(ctx context.Context, id string) (*ArchivedCase, error) {
	var doc ArchivedCase
	if err := a.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, fmt.Errorf("%w: %s", ErrCaseNotFound, id)
		}
		return nil, fmt.Errorf("failed to get archived case: %w", err)
	}
	return &doc, nil
}
