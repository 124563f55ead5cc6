package projection

import (
	"context"
	"fmt"
	"time"

	"github.com/billie/servicing-projector/internal/config"
	"github.com/billie/servicing-projector/pkg/logger"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// MongoDB owns the driver client/database handle, grounded on the teacher's
// internal/repository.MongoDB connection lifecycle (connect, ping, pool
// tuning from config, Close/Health).
type MongoDB struct {
	client   *mongo.Client
	database *mongo.Database
}

func NewMongoDB(cfg config.MongoDBConfig) (*MongoDB, error) {
	ctx, cancel := context.WithTimeout(context.Background(), cfg.ConnectTimeout)
	defer cancel()

	clientOpts := options.Client().
		ApplyURI(cfg.URI).
		SetMaxPoolSize(cfg.MaxPoolSize).
		SetMinPoolSize(cfg.MinPoolSize).
		SetMaxConnIdleTime(cfg.MaxConnIdleTime).
		SetServerSelectionTimeout(cfg.ServerSelection)

	client, err := mongo.Connect(ctx, clientOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongodb: %w", err)
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		return nil, fmt.Errorf("failed to ping mongodb: %w", err)
	}

	return &MongoDB{client: client, database: client.Database(cfg.Database)}, nil
}

func (m *MongoDB) Close(ctx context.Context) error {
	return m.client.Disconnect(ctx)
}

func (m *MongoDB) Health(ctx context.Context) error {
	return m.client.Ping(ctx, readpref.Primary())
}

// Collection names match spec.md §6's persisted projection layout.
const (
	collectionCustomers       = "customers"
	collectionLoanAccounts    = "loan-accounts"
	collectionConversations   = "conversations"
	collectionWriteOffRequests = "write-off-requests"
)

// MongoStore is the Store implementation, grounded on the teacher's
// internal/repository.ReadModelStore (Upsert/Update via UpdateOne, every
// method wrapped in an otel span) and invoice_repository.go's optimistic
// filter-then-update pattern.
type MongoStore struct {
	db     *MongoDB
	logger *logger.Logger
	tracer trace.Tracer
}

func NewMongoStore(db *MongoDB, log *logger.Logger) *MongoStore {
	return &MongoStore{db: db, logger: log, tracer: otel.Tracer("projection-store")}
}

func (s *MongoStore) collection(name string) *mongo.Collection {
	return s.db.database.Collection(name)
}

func (s *MongoStore) startSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return s.tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

func (s *MongoStore) FindCustomer(ctx context.Context, customerID string) (*Customer, error) {
	ctx, span := s.startSpan(ctx, "projection.find_customer", attribute.String("customer_id", customerID))
	defer span.End()

	var doc Customer
	err := s.collection(collectionCustomers).FindOne(ctx, bson.M{"customerId": customerID}).Decode(&doc)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("find customer: %w", err)
	}
	return &doc, nil
}

func (s *MongoStore) UpsertCustomer(ctx context.Context, customerID string, set map[string]interface{}) error {
	ctx, span := s.startSpan(ctx, "projection.upsert_customer", attribute.String("customer_id", customerID))
	defer span.End()

	_, err := s.collection(collectionCustomers).UpdateOne(ctx,
		bson.M{"customerId": customerID},
		bson.M{
			"$set":         set,
			"$setOnInsert": bson.M{"createdAt": time.Now().UTC()},
		},
		options.Update().SetUpsert(true),
	)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("upsert customer: %w", err)
	}
	return nil
}

func (s *MongoStore) UpdateCustomer(ctx context.Context, customerID string, set map[string]interface{}) error {
	ctx, span := s.startSpan(ctx, "projection.update_customer", attribute.String("customer_id", customerID))
	defer span.End()

	_, err := s.collection(collectionCustomers).UpdateOne(ctx,
		bson.M{"customerId": customerID},
		bson.M{"$set": set},
	)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("update customer: %w", err)
	}
	return nil
}

func (s *MongoStore) FindLoanAccount(ctx context.Context, loanAccountID string) (*LoanAccount, error) {
	ctx, span := s.startSpan(ctx, "projection.find_loan_account", attribute.String("loan_account_id", loanAccountID))
	defer span.End()

	var doc LoanAccount
	err := s.collection(collectionLoanAccounts).FindOne(ctx, bson.M{"loanAccountId": loanAccountID}).Decode(&doc)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("find loan account: %w", err)
	}
	return &doc, nil
}

func (s *MongoStore) UpsertLoanAccount(ctx context.Context, loanAccountID string, set map[string]interface{}) error {
	ctx, span := s.startSpan(ctx, "projection.upsert_loan_account", attribute.String("loan_account_id", loanAccountID))
	defer span.End()

	_, err := s.collection(collectionLoanAccounts).UpdateOne(ctx,
		bson.M{"loanAccountId": loanAccountID},
		bson.M{
			"$set":         set,
			"$setOnInsert": bson.M{"createdAt": time.Now().UTC()},
		},
		options.Update().SetUpsert(true),
	)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("upsert loan account: %w", err)
	}
	return nil
}

func (s *MongoStore) UpdateLoanAccount(ctx context.Context, loanAccountID string, set map[string]interface{}) error {
	ctx, span := s.startSpan(ctx, "projection.update_loan_account", attribute.String("loan_account_id", loanAccountID))
	defer span.End()

	_, err := s.collection(collectionLoanAccounts).UpdateOne(ctx,
		bson.M{"loanAccountId": loanAccountID},
		bson.M{"$set": set},
	)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("update loan account: %w", err)
	}
	return nil
}

func (s *MongoStore) UpdatePaymentPositional(ctx context.Context, loanAccountID string, paymentNumber int, set map[string]interface{}) (bool, error) {
	ctx, span := s.startSpan(ctx, "projection.update_payment_positional",
		attribute.String("loan_account_id", loanAccountID),
		attribute.Int("payment_number", paymentNumber),
	)
	defer span.End()

	positional := make(bson.M, len(set))
	for k, v := range set {
		positional["repaymentSchedule.payments.$."+k] = v
	}

	result, err := s.collection(collectionLoanAccounts).UpdateOne(ctx,
		bson.M{
			"loanAccountId": loanAccountID,
			"repaymentSchedule.payments.paymentNumber": paymentNumber,
		},
		bson.M{"$set": positional},
	)
	if err != nil {
		span.RecordError(err)
		return false, fmt.Errorf("positional update payment: %w", err)
	}
	return result.MatchedCount > 0, nil
}

func (s *MongoStore) PushPlaceholderPayment(ctx context.Context, loanAccountID string, scheduleID string, payment Payment) error {
	ctx, span := s.startSpan(ctx, "projection.push_placeholder_payment", attribute.String("loan_account_id", loanAccountID))
	defer span.End()

	_, err := s.collection(collectionLoanAccounts).UpdateOne(ctx,
		bson.M{"loanAccountId": loanAccountID},
		bson.M{
			"$push": bson.M{"repaymentSchedule.payments": payment},
			"$set":  bson.M{"updatedAt": time.Now().UTC()},
			"$setOnInsert": bson.M{
				"loanAccountId":               loanAccountID,
				"repaymentSchedule.scheduleId": scheduleID,
				"createdAt":                    time.Now().UTC(),
			},
		},
		options.Update().SetUpsert(true),
	)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("push placeholder payment: %w", err)
	}
	return nil
}

func (s *MongoStore) FindConversation(ctx context.Context, conversationID string) (*Conversation, error) {
	ctx, span := s.startSpan(ctx, "projection.find_conversation", attribute.String("conversation_id", conversationID))
	defer span.End()

	var doc Conversation
	err := s.collection(collectionConversations).FindOne(ctx, bson.M{"conversationId": conversationID}).Decode(&doc)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("find conversation: %w", err)
	}
	return &doc, nil
}

func (s *MongoStore) UpsertConversation(ctx context.Context, conversationID string, set map[string]interface{}) error {
	ctx, span := s.startSpan(ctx, "projection.upsert_conversation", attribute.String("conversation_id", conversationID))
	defer span.End()

	_, err := s.collection(collectionConversations).UpdateOne(ctx,
		bson.M{"conversationId": conversationID},
		bson.M{
			"$set":         set,
			"$setOnInsert": bson.M{"createdAt": time.Now().UTC()},
		},
		options.Update().SetUpsert(true),
	)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("upsert conversation: %w", err)
	}
	return nil
}

func (s *MongoStore) EnsureConversation(ctx context.Context, conversationID string) error {
	ctx, span := s.startSpan(ctx, "projection.ensure_conversation", attribute.String("conversation_id", conversationID))
	defer span.End()

	now := time.Now().UTC()
	_, err := s.collection(collectionConversations).UpdateOne(ctx,
		bson.M{"conversationId": conversationID},
		bson.M{
			"$setOnInsert": bson.M{
				"conversationId": conversationID,
				"status":         "active",
				"utterances":     []interface{}{},
				"assessments":    bson.M{},
				"noticeboard":    []interface{}{},
				"version":        1,
				"createdAt":      now,
				"updatedAt":      now,
			},
		},
		options.Update().SetUpsert(true),
	)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("ensure conversation: %w", err)
	}
	return nil
}

func (s *MongoStore) PushUtterance(ctx context.Context, conversationID string, utterance Utterance, set map[string]interface{}) error {
	ctx, span := s.startSpan(ctx, "projection.push_utterance", attribute.String("conversation_id", conversationID))
	defer span.End()

	_, err := s.collection(collectionConversations).UpdateOne(ctx,
		bson.M{"conversationId": conversationID},
		bson.M{
			"$push": bson.M{"utterances": utterance},
			"$set":  set,
			"$inc":  bson.M{"version": 1},
		},
	)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("push utterance: %w", err)
	}
	return nil
}

func (s *MongoStore) UpdateConversation(ctx context.Context, conversationID string, set map[string]interface{}) error {
	ctx, span := s.startSpan(ctx, "projection.update_conversation", attribute.String("conversation_id", conversationID))
	defer span.End()

	_, err := s.collection(collectionConversations).UpdateOne(ctx,
		bson.M{"conversationId": conversationID},
		bson.M{
			"$set": set,
			"$inc": bson.M{"version": 1},
		},
	)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("update conversation: %w", err)
	}
	return nil
}

func (s *MongoStore) PushNoticeboard(ctx context.Context, conversationID string, entry NoticeboardEntry) error {
	ctx, span := s.startSpan(ctx, "projection.push_noticeboard", attribute.String("conversation_id", conversationID))
	defer span.End()

	_, err := s.collection(collectionConversations).UpdateOne(ctx,
		bson.M{"conversationId": conversationID},
		bson.M{
			"$push": bson.M{"noticeboard": entry},
			"$set":  bson.M{"updatedAt": time.Now().UTC()},
			"$inc":  bson.M{"version": 1},
		},
	)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("push noticeboard entry: %w", err)
	}
	return nil
}

func (s *MongoStore) InsertWriteOffRequest(ctx context.Context, doc WriteOffRequest) error {
	ctx, span := s.startSpan(ctx, "projection.insert_writeoff_request", attribute.String("request_id", doc.RequestID))
	defer span.End()

	_, err := s.collection(collectionWriteOffRequests).InsertOne(ctx, doc)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("insert write-off request: %w", err)
	}
	return nil
}

func (s *MongoStore) UpdateWriteOffRequest(ctx context.Context, requestID string, set map[string]interface{}) error {
	ctx, span := s.startSpan(ctx, "projection.update_writeoff_request", attribute.String("request_id", requestID))
	defer span.End()

	_, err := s.collection(collectionWriteOffRequests).UpdateOne(ctx,
		bson.M{"requestId": requestID},
		bson.M{"$set": set},
	)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("update write-off request: %w", err)
	}
	return nil
}

var _ Store = (*MongoStore)(nil)
