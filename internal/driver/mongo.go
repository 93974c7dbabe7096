package driver

import (
	"context"
	"encoding/json"
	"reflect"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/x/mongo/driver/connstring"
)

// MongoSession runs find queries against MongoDB. Every document becomes one
// row of a single JSON text column named "document".
type MongoSession struct {
	uri    string
	client *mongo.Client
}

// OpenMongo connects to the deployment behind uri.
func OpenMongo(ctx context.Context, uri string, loginTimeout time.Duration) (*MongoSession, error) {
	opts := options.Client().ApplyURI(uri)
	if loginTimeout > 0 {
		opts.SetConnectTimeout(loginTimeout)
		opts.SetServerSelectionTimeout(loginTimeout)
	}
	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, markDriver(err, "connect")
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, markDriver(err, "ping")
	}
	return &MongoSession{uri: uri, client: client}, nil
}

func (s *MongoSession) Name() string {
	return "mongo"
}

func (s *MongoSession) DBMSName(ctx context.Context) (string, error) {
	return "MongoDB", nil
}

// Execute accepts "[db.]collection.find({filter})". Parameters are not
// supported. The database defaults to the one named in the URI.
func (s *MongoSession) Execute(ctx context.Context, query string, params []Param, timeout time.Duration) (Cursor, error) {
	if s.client == nil {
		return nil, errors.Mark(errors.New("session is closed"), ErrDriver)
	}
	if len(params) > 0 {
		return nil, errors.Mark(errors.Wrap(ErrUnsupported, "query parameters"), ErrDriver)
	}

	dbName, collName, filter, err := parseFind(query)
	if err != nil {
		return nil, errors.Mark(err, ErrDriver)
	}
	if dbName == "" {
		if name, err := defaultDatabase(s.uri); err == nil {
			dbName = name
		}
	}
	if dbName == "" {
		return nil, errors.Mark(errors.New("no database in query or connection uri"), ErrDriver)
	}

	cancel := context.CancelFunc(func() {})
	if timeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, timeout)
	}

	cursor, err := s.client.Database(dbName).Collection(collName).Find(ctx, filter)
	if err != nil {
		cancel()
		return nil, markDriver(err, "execute find")
	}
	return &mongoCursor{cursor: cursor, ctx: ctx, cancel: cancel, session: s}, nil
}

func (s *MongoSession) Exec(ctx context.Context, query string, args ...any) error {
	return errors.Mark(errors.Wrap(ErrUnsupported, "exec on mongo session"), ErrDriver)
}

func (s *MongoSession) Placeholder(n int) string {
	return "?"
}

func (s *MongoSession) Close() error {
	if s.client == nil {
		return nil
	}
	err := s.client.Disconnect(context.Background())
	s.client = nil
	return markDriver(err, "disconnect")
}

// parseFind splits "db.collection.find({...})" or "collection.find({...})".
func parseFind(query string) (dbName, collName string, filter bson.M, err error) {
	start := strings.Index(query, "(")
	end := strings.LastIndex(query, ")")
	if start == -1 || end == -1 || end < start {
		return "", "", nil, errors.New("invalid query format: expected collection.find(filter)")
	}

	jsonFilter := strings.TrimSpace(query[start+1 : end])
	if jsonFilter == "" {
		jsonFilter = "{}"
	}
	if err := json.Unmarshal([]byte(jsonFilter), &filter); err != nil {
		return "", "", nil, errors.Wrap(err, "invalid filter JSON")
	}

	segments := strings.Split(strings.TrimSpace(query[:start]), ".")
	if segments[len(segments)-1] != "find" {
		return "", "", nil, errors.New("only 'find' command is supported")
	}

	switch len(segments) {
	case 3:
		return segments[0], segments[1], filter, nil
	case 2:
		return "", segments[0], filter, nil
	default:
		return "", "", nil, errors.New("invalid query format: expected [db.]collection.find(...)")
	}
}

func defaultDatabase(uri string) (string, error) {
	cs, err := connstring.ParseAndValidate(uri)
	if err != nil {
		return "", err
	}
	return cs.Database, nil
}

var documentColumn = Column{
	Name:         "document",
	DatabaseType: "JSON",
	Nullable:     false,
	ScanType:     reflect.TypeOf(""),
}

// mongoCursor implements Cursor over a mongo find cursor.
type mongoCursor struct {
	cursor  *mongo.Cursor
	ctx     context.Context
	cancel  context.CancelFunc
	session *MongoSession
	row     bson.M
	err     error
}

func (c *mongoCursor) Columns() ([]Column, error) {
	return []Column{documentColumn}, nil
}

func (c *mongoCursor) Next() bool {
	if c.cursor.Next(c.ctx) {
		c.row = nil
		if err := c.cursor.Decode(&c.row); err != nil {
			c.err = err
			return false
		}
		return true
	}
	c.err = c.cursor.Err()
	return false
}

func (c *mongoCursor) Scan(dest ...any) error {
	if len(dest) != 1 {
		return errors.Mark(errors.New("expected exactly 1 destination for document"), ErrDriver)
	}

	data, err := bson.MarshalExtJSON(c.row, false, false)
	if err != nil {
		return markDriver(err, "encode document")
	}

	switch v := dest[0].(type) {
	case *string:
		*v = string(data)
	case *any:
		*v = string(data)
	default:
		return errors.Mark(errors.New("destination must be *string or *any"), ErrDriver)
	}
	return nil
}

func (c *mongoCursor) Err() error {
	return markDriver(c.err, "iterate documents")
}

func (c *mongoCursor) NextResultSet() (bool, error) {
	return false, nil
}

func (c *mongoCursor) Close() error {
	err := markDriver(c.cursor.Close(context.Background()), "close cursor")
	c.cancel()
	return errors.CombineErrors(err, c.session.Close())
}
