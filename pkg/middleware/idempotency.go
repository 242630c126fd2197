package middleware

import (
	"bytes"
	"context"
	"net/http"
	"time"

	"treadline/pkg/logger"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

// IdempotencyStore persists completed responses keyed by idempotency key.
// The store must be durable: a process restart must not reopen the window
// where a retried request gets executed twice.
type IdempotencyStore interface {
	Get(ctx context.Context, key string) (*CachedResponse, bool)
	Set(ctx context.Context, key string, response *CachedResponse)
}

type CachedResponse struct {
	Key        string              `bson:"_id"`
	StatusCode int                 `bson:"status_code"`
	Headers    map[string][]string `bson:"headers"`
	Body       []byte              `bson:"body"`
	CreatedAt  time.Time           `bson:"created_at"`
}

const IdempotencyCollection = "Idempotency_records"

// MongoIdempotencyStore keeps dedup records in a collection with a TTL index
// on created_at (ensured by the migration job).
type MongoIdempotencyStore struct {
	collection *mongo.Collection
	log        *logger.Logger
}

func NewMongoIdempotencyStore(db *mongo.Database, log *logger.Logger) *MongoIdempotencyStore {
	return &MongoIdempotencyStore{
		collection: db.Collection(IdempotencyCollection),
		log:        log,
	}
}

func (s *MongoIdempotencyStore) Get(ctx context.Context, key string) (*CachedResponse, bool) {
	var cached CachedResponse
	err := s.collection.FindOne(ctx, bson.M{"_id": key}).Decode(&cached)
	if err != nil {
		if err != mongo.ErrNoDocuments {
			s.log.Error("Failed to read idempotency record", "key", key, "error", err)
		}
		return nil, false
	}
	return &cached, true
}

func (s *MongoIdempotencyStore) Set(ctx context.Context, key string, response *CachedResponse) {
	response.Key = key
	response.CreatedAt = time.Now().UTC()
	if _, err := s.collection.InsertOne(ctx, response); err != nil {
		// A duplicate insert means a concurrent retry already stored the
		// response; nothing to do.
		if !mongo.IsDuplicateKeyError(err) {
			s.log.Error("Failed to store idempotency record", "key", key, "error", err)
		}
	}
}

type responseCapture struct {
	http.ResponseWriter
	statusCode int
	body       *bytes.Buffer
}

func (rc *responseCapture) WriteHeader(statusCode int) {
	rc.statusCode = statusCode
	rc.ResponseWriter.WriteHeader(statusCode)
}

func (rc *responseCapture) Write(b []byte) (int, error) {
	rc.body.Write(b)
	return rc.ResponseWriter.Write(b)
}

func Idempotency(store IdempotencyStore, headerName string) func(http.Handler) http.Handler {
	if headerName == "" {
		headerName = "Idempotency-Key"
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get(headerName)
			if key == "" {
				next.ServeHTTP(w, r)
				return
			}

			if cached, found := store.Get(r.Context(), key); found {
				replayCachedResponse(w, cached)
				return
			}

			capture := &responseCapture{
				ResponseWriter: w,
				statusCode:     200,
				body:           &bytes.Buffer{},
			}
			next.ServeHTTP(capture, r)

			if capture.statusCode >= 200 && capture.statusCode < 300 {
				store.Set(r.Context(), key, &CachedResponse{
					StatusCode: capture.statusCode,
					Headers:    w.Header().Clone(),
					Body:       capture.body.Bytes(),
				})
			}
		})
	}
}

func replayCachedResponse(w http.ResponseWriter, cached *CachedResponse) {
	for key, values := range cached.Headers {
		for _, value := range values {
			w.Header().Add(key, value)
		}
	}
	w.WriteHeader(cached.StatusCode)
	_, _ = w.Write(cached.Body)
}
