// Package sqlite implements the embedded terminal replica on an on-disk
// SQLite database. The terminal process is the single logical writer;
// concurrency control is the document revision token alone.
package sqlite

import (
	"context"
	"errors"
	"io"
	"log"
	"strings"
	"time"

	sqlitedriver "gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/angelmondragon/tillpoint-terminal/pkg/config"
	"github.com/angelmondragon/tillpoint-terminal/pkg/docstore"
	"github.com/angelmondragon/tillpoint-terminal/pkg/enums"
	pkgerrors "github.com/angelmondragon/tillpoint-terminal/pkg/errors"
	"github.com/angelmondragon/tillpoint-terminal/pkg/logger"
	"github.com/angelmondragon/tillpoint-terminal/pkg/migrate"
)

// Store is the SQLite-backed document store.
type Store struct {
	db *gorm.DB
}

var _ docstore.Replica = (*Store)(nil)

type documentRow struct {
	ID        string    `gorm:"column:id;primaryKey"`
	Rev       string    `gorm:"column:rev;not null"`
	Type      string    `gorm:"column:type;not null"`
	Status    string    `gorm:"column:status;not null;default:''"`
	Deleted   bool      `gorm:"column:deleted;not null;default:false"`
	Body      []byte    `gorm:"column:body;not null"`
	LocalSeq  int64     `gorm:"column:local_seq;not null;default:0"`
	UpdatedAt time.Time `gorm:"column:updated_at;not null"`
}

func (documentRow) TableName() string {
	return "documents"
}

// Open boots the embedded store and applies schema migrations.
func Open(ctx context.Context, cfg config.LocalStoreConfig, logg *logger.Logger) (*Store, error) {
	gormLogger := gormlogger.New(
		log.New(io.Discard, "", log.LstdFlags),
		gormlogger.Config{LogLevel: gormlogger.Silent},
	)

	conn, err := gorm.Open(sqlitedriver.Open(cfg.Path), &gorm.Config{
		Logger:                 gormLogger,
		SkipDefaultTransaction: true,
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "opening local store")
	}

	sqlDB, err := conn.DB()
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "getting sql db handle")
	}
	// One writer keeps SQLite honest about the single-logical-writer model.
	sqlDB.SetMaxOpenConns(1)

	if err := migrate.Up(ctx, sqlDB); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "migrating local store")
	}

	if logg != nil {
		logg.Info(ctx, "local document store opened")
	}
	return &Store{db: conn}, nil
}

// Get returns the live document with the given id.
func (s *Store) Get(ctx context.Context, id string) (*docstore.Document, error) {
	var row documentRow
	err := s.db.WithContext(ctx).Where("id = ? AND deleted = ?", id, false).First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "document not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reading document")
	}
	doc := rowToDoc(row)
	return &doc, nil
}

// Put writes a document under optimistic concurrency. An empty revision
// inserts; otherwise the revision must match the stored one or the write
// fails with CONFLICT.
func (s *Store) Put(ctx context.Context, doc docstore.Document) (*docstore.Document, error) {
	if doc.ID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "document id required")
	}

	next := docstore.NextRev(doc.Rev)
	now := time.Now().UTC()

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		seq, err := nextSeq(tx)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "allocating change sequence")
		}

		if doc.Rev == "" {
			row := documentRow{
				ID:        doc.ID,
				Rev:       next,
				Type:      doc.Type.String(),
				Status:    doc.Status,
				Deleted:   doc.Deleted,
				Body:      doc.Body,
				LocalSeq:  seq,
				UpdatedAt: now,
			}
			if err := tx.Create(&row).Error; err != nil {
				if isUniqueViolation(err) {
					return pkgerrors.New(pkgerrors.CodeConflict, "document already exists")
				}
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "inserting document")
			}
			return nil
		}

		res := tx.Model(&documentRow{}).
			Where("id = ? AND rev = ?", doc.ID, doc.Rev).
			Updates(map[string]any{
				"rev":        next,
				"type":       doc.Type.String(),
				"status":     doc.Status,
				"deleted":    doc.Deleted,
				"body":       doc.Body,
				"local_seq":  seq,
				"updated_at": now,
			})
		if res.Error != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, res.Error, "updating document")
		}
		if res.RowsAffected == 0 {
			var count int64
			if err := tx.Model(&documentRow{}).Where("id = ?", doc.ID).Count(&count).Error; err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "checking document existence")
			}
			if count == 0 {
				return pkgerrors.New(pkgerrors.CodeNotFound, "document not found")
			}
			return pkgerrors.New(pkgerrors.CodeConflict, "stale document revision")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	doc.Rev = next
	doc.UpdatedAt = now
	return &doc, nil
}

// Find matches live documents against an equality selector over the
// indexed fields.
func (s *Store) Find(ctx context.Context, sel docstore.Selector) ([]docstore.Document, error) {
	query := s.db.WithContext(ctx).Where("deleted = ?", false)
	if sel.Type != "" {
		query = query.Where("type = ?", sel.Type.String())
	}
	if sel.Status != "" {
		query = query.Where("status = ?", sel.Status)
	}

	var rows []documentRow
	if err := query.Order("id").Find(&rows).Error; err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "finding documents")
	}
	return rowsToDocs(rows), nil
}

// AllDocs returns every live document.
func (s *Store) AllDocs(ctx context.Context) ([]docstore.Document, error) {
	var rows []documentRow
	if err := s.db.WithContext(ctx).Where("deleted = ?", false).Order("id").Find(&rows).Error; err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "listing documents")
	}
	return rowsToDocs(rows), nil
}

// Changes returns documents written locally after the given sequence,
// tombstones included, together with the highest sequence seen.
func (s *Store) Changes(ctx context.Context, since int64) ([]docstore.Document, int64, error) {
	var rows []documentRow
	err := s.db.WithContext(ctx).
		Where("local_seq > ?", since).
		Order("local_seq").
		Find(&rows).Error
	if err != nil {
		return nil, since, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reading changes")
	}

	last := since
	for _, row := range rows {
		if row.LocalSeq > last {
			last = row.LocalSeq
		}
	}
	return rowsToDocs(rows), last, nil
}

// Apply performs a replication write: the incoming revision is adopted
// verbatim and the row is marked clean so the push leg never echoes it.
func (s *Store) Apply(ctx context.Context, doc docstore.Document) error {
	if doc.ID == "" || doc.Rev == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "replication write requires id and rev")
	}

	now := time.Now().UTC()
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing documentRow
		err := tx.Where("id = ?", doc.ID).First(&existing).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			row := documentRow{
				ID:        doc.ID,
				Rev:       doc.Rev,
				Type:      doc.Type.String(),
				Status:    doc.Status,
				Deleted:   doc.Deleted,
				Body:      doc.Body,
				LocalSeq:  0,
				UpdatedAt: now,
			}
			if err := tx.Create(&row).Error; err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "inserting replicated document")
			}
			return nil
		case err != nil:
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reading replicated document")
		}

		// Remote wins only when it is ahead; an equal or older generation
		// never clobbers local work.
		if docstore.RevGeneration(doc.Rev) <= docstore.RevGeneration(existing.Rev) {
			return nil
		}

		res := tx.Model(&documentRow{}).Where("id = ?", doc.ID).Updates(map[string]any{
			"rev":        doc.Rev,
			"type":       doc.Type.String(),
			"status":     doc.Status,
			"deleted":    doc.Deleted,
			"body":       doc.Body,
			"local_seq":  0,
			"updated_at": now,
		})
		if res.Error != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, res.Error, "updating replicated document")
		}
		return nil
	})
}

// EnsureIndexes re-asserts the secondary indexes. Idempotent, safe on
// every startup.
func (s *Store) EnsureIndexes(ctx context.Context) error {
	statements := []string{
		`CREATE INDEX IF NOT EXISTS idx_documents_type ON documents (type)`,
		`CREATE INDEX IF NOT EXISTS idx_documents_type_status ON documents (type, status)`,
	}
	for _, stmt := range statements {
		if err := s.db.WithContext(ctx).Exec(stmt).Error; err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "creating index")
		}
	}
	return nil
}

// Ping verifies the datasource is usable.
func (s *Store) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// Close shuts down the underlying connection.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func nextSeq(tx *gorm.DB) (int64, error) {
	var seq int64
	if err := tx.Model(&documentRow{}).Select("COALESCE(MAX(local_seq), 0) + 1").Scan(&seq).Error; err != nil {
		return 0, err
	}
	return seq, nil
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, gorm.ErrDuplicatedKey) || strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func rowToDoc(row documentRow) docstore.Document {
	return docstore.Document{
		ID:        row.ID,
		Rev:       row.Rev,
		Type:      enums.DocType(row.Type),
		Status:    row.Status,
		Deleted:   row.Deleted,
		UpdatedAt: row.UpdatedAt,
		Body:      row.Body,
	}
}

func rowsToDocs(rows []documentRow) []docstore.Document {
	docs := make([]docstore.Document, 0, len(rows))
	for _, row := range rows {
		docs = append(docs, rowToDoc(row))
	}
	return docs
}
