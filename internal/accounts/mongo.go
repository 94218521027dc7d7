package accounts

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/signon/signon/internal/models"
)

// MongoStore implements Store using two MongoDB collections. Uniqueness is
// enforced by the indexes created in EnsureIndexes, so concurrent creates for
// the same credential resolve to exactly one winner just like in Postgres.
//
// CreateUserWithAccount is not wrapped in a server-side transaction (that
// would require a replica set); it compensates by deleting the user when the
// account insert fails.
type MongoStore struct {
	users    *mongo.Collection
	accounts *mongo.Collection
}

func NewMongoStore(db *mongo.Database) *MongoStore {
	return &MongoStore{
		users:    db.Collection("users"),
		accounts: db.Collection("accounts"),
	}
}

// EnsureIndexes creates the unique indexes backing the store invariants.
func (s *MongoStore) EnsureIndexes(ctx context.Context) error {
	_, err := s.users.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "email", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return err
	}
	_, err = s.accounts.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "provider", Value: 1}, {Key: "providerAccountId", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	return err
}

func (s *MongoStore) FindUserByID(ctx context.Context, id string) (*models.User, error) {
	return s.findUser(ctx, bson.M{"_id": id})
}

func (s *MongoStore) FindUserByEmail(ctx context.Context, email string) (*models.User, error) {
	return s.findUser(ctx, bson.M{"email": email})
}

func (s *MongoStore) findUser(ctx context.Context, filter bson.M) (*models.User, error) {
	var u models.User
	if err := s.users.FindOne(ctx, filter).Decode(&u); err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, nil
		}
		return nil, err
	}
	return &u, nil
}

func (s *MongoStore) FindAccountByProviderID(ctx context.Context, provider, providerAccountID string) (*models.Account, error) {
	var a models.Account
	filter := bson.M{"provider": provider, "providerAccountId": providerAccountID}
	if err := s.accounts.FindOne(ctx, filter).Decode(&a); err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, nil
		}
		return nil, err
	}
	return &a, nil
}

func (s *MongoStore) FindAccountsByUser(ctx context.Context, userID string) ([]*models.Account, error) {
	cur, err := s.accounts.Find(ctx, bson.M{"userId": userID})
	if err != nil {
		return nil, err
	}
	var out []*models.Account
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *MongoStore) CreateUser(ctx context.Context, u *models.User) (*models.User, error) {
	prepareUser(u)
	if _, err := s.users.InsertOne(ctx, u); err != nil {
		return nil, wrapMongo(err)
	}
	return u, nil
}

func (s *MongoStore) UpdateUser(ctx context.Context, id string, upd UserUpdate) (*models.User, error) {
	set := bson.M{"updatedAt": time.Now().UTC()}
	if upd.Name != nil {
		set["name"] = *upd.Name
	}
	if upd.AvatarURL != nil {
		set["avatarUrl"] = *upd.AvatarURL
	}
	if upd.EmailVerified != nil {
		set["emailVerified"] = *upd.EmailVerified
	}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	var u models.User
	if err := s.users.FindOneAndUpdate(ctx, bson.M{"_id": id}, bson.M{"$set": set}, opts).Decode(&u); err != nil {
		return nil, err
	}
	return &u, nil
}

func (s *MongoStore) CreateAccount(ctx context.Context, a *models.Account) (*models.Account, error) {
	prepareAccount(a)
	if _, err := s.accounts.InsertOne(ctx, a); err != nil {
		return nil, wrapMongo(err)
	}
	return a, nil
}

func (s *MongoStore) CreateUserWithAccount(ctx context.Context, u *models.User, a *models.Account) (*models.User, error) {
	created, err := s.CreateUser(ctx, u)
	if err != nil {
		return nil, err
	}
	a.UserID = created.ID
	if _, err := s.CreateAccount(ctx, a); err != nil {
		// best-effort compensation: keep the store consistent when the
		// account insert loses a uniqueness race
		_, _ = s.users.DeleteOne(ctx, bson.M{"_id": created.ID})
		return nil, err
	}
	return created, nil
}

func wrapMongo(err error) error {
	if err == nil {
		return nil
	}
	if mongo.IsDuplicateKeyError(err) {
		return ErrDuplicate
	}
	return err
}
