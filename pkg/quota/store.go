package quota

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/baketa-translate/core/pkg/storage/xmongo"
	"github.com/baketa-translate/core/pkg/xlate"
)

// LicenseStore persists the authoritative LicenseState snapshot the
// gate reconciles against, so a restart doesn't forget a session's
// plan/quota/bonus state between syncs.
type LicenseStore interface {
	Load(ctx context.Context, sessionToken string) (xlate.LicenseState, bool, error)
	Save(ctx context.Context, sessionToken string, state xlate.LicenseState) error
}

// licenseDoc is the Mongo document shape for one session's license
// snapshot, kept distinct from xlate.LicenseState per the module's
// boundary-DTO convention — a storage schema change never reaches
// into domain code.
type licenseDoc struct {
	SessionToken   string        `bson:"_id"`
	Plan           string        `bson:"plan"`
	ExpiresAt      time.Time     `bson:"expires_at"`
	MonthlyYear    string        `bson:"monthly_year_month"`
	MonthlyUsed    int           `bson:"monthly_tokens_used"`
	MonthlyLimit   int           `bson:"monthly_tokens_limit"`
	Bonuses        []bonusDoc    `bson:"bonuses"`
	Promotion      *promotionDoc `bson:"promotion,omitempty"`
	LastServerSync time.Time     `bson:"last_server_sync"`
}

type bonusDoc struct {
	ID        string     `bson:"id"`
	Source    string     `bson:"source"`
	Granted   int        `bson:"granted"`
	Used      int        `bson:"used"`
	ExpiresAt *time.Time `bson:"expires_at,omitempty"`
}

type promotionDoc struct {
	Code      string    `bson:"code"`
	Plan      string    `bson:"plan"`
	AppliedAt time.Time `bson:"applied_at"`
	ExpiresAt time.Time `bson:"expires_at"`
}

func toLicenseDoc(sessionToken string, l xlate.LicenseState) licenseDoc {
	doc := licenseDoc{
		SessionToken:   sessionToken,
		Plan:           l.Plan,
		ExpiresAt:      l.ExpiresAt,
		MonthlyYear:    l.Monthly.YearMonth,
		MonthlyUsed:    l.Monthly.TokensUsed,
		MonthlyLimit:   l.Monthly.TokensLimit,
		Bonuses:        make([]bonusDoc, 0, len(l.Bonuses)),
		LastServerSync: l.LastServerSync,
	}
	for _, b := range l.Bonuses {
		doc.Bonuses = append(doc.Bonuses, bonusDoc{
			ID: b.ID, Source: b.Source, Granted: b.Granted, Used: b.Used, ExpiresAt: b.ExpiresAt,
		})
	}
	if l.Promotion != nil {
		doc.Promotion = &promotionDoc{
			Code: l.Promotion.Code, Plan: l.Promotion.Plan,
			AppliedAt: l.Promotion.AppliedAt, ExpiresAt: l.Promotion.ExpiresAt,
		}
	}
	return doc
}

func fromLicenseDoc(doc licenseDoc) xlate.LicenseState {
	l := xlate.LicenseState{
		Plan:           doc.Plan,
		ExpiresAt:      doc.ExpiresAt,
		Monthly:        xlate.MonthlyUsage{YearMonth: doc.MonthlyYear, TokensUsed: doc.MonthlyUsed, TokensLimit: doc.MonthlyLimit},
		Bonuses:        make([]xlate.BonusToken, 0, len(doc.Bonuses)),
		LastServerSync: doc.LastServerSync,
	}
	for _, b := range doc.Bonuses {
		l.Bonuses = append(l.Bonuses, xlate.BonusToken{
			ID: b.ID, Source: b.Source, Granted: b.Granted, Used: b.Used, ExpiresAt: b.ExpiresAt,
		})
	}
	if doc.Promotion != nil {
		l.Promotion = &xlate.PromotionState{
			Code: doc.Promotion.Code, Plan: doc.Promotion.Plan,
			AppliedAt: doc.Promotion.AppliedAt, ExpiresAt: doc.Promotion.ExpiresAt,
		}
	}
	return l
}

// mongoLicenseStore is the xmongo-backed LicenseStore.
type mongoLicenseStore struct {
	coll *mongo.Collection
}

// NewMongoLicenseStore builds a LicenseStore over the given database
// and collection, using m only to reach the underlying *mongo.Client —
// xmongo.Mongo's own surface (FindPage/BulkWrite) targets paginated
// listings, not the single-document upsert this store needs.
func NewMongoLicenseStore(m xmongo.Mongo, database, collection string) LicenseStore {
	return &mongoLicenseStore{coll: m.Client().Database(database).Collection(collection)}
}

func (s *mongoLicenseStore) Load(ctx context.Context, sessionToken string) (xlate.LicenseState, bool, error) {
	var doc licenseDoc
	err := s.coll.FindOne(ctx, bson.M{"_id": sessionToken}).Decode(&doc)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return xlate.LicenseState{}, false, nil
		}
		return xlate.LicenseState{}, false, err
	}
	return fromLicenseDoc(doc), true, nil
}

func (s *mongoLicenseStore) Save(ctx context.Context, sessionToken string, state xlate.LicenseState) error {
	doc := toLicenseDoc(sessionToken, state)
	_, err := s.coll.ReplaceOne(ctx, bson.M{"_id": sessionToken}, doc, options.Replace().SetUpsert(true))
	return err
}
