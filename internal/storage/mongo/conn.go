package mongo

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"scenerepo/internal/acl"
	"scenerepo/internal/document"
	"scenerepo/internal/storage"
)

// conn implements storage.Conn
type conn struct {
	d       *Driver
	base    *mongo.Client
	clients map[string]*mongo.Client
}

// client returns the client authenticated on database, if any
func (c *conn) client(database string) *mongo.Client {
	if cl, ok := c.clients[database]; ok {
		return cl
	}
	return c.base
}

func (c *conn) collection(database, collection string) *mongo.Collection {
	return c.client(database).Database(database).Collection(collection)
}

// Authenticate opens a client carrying cred. Pre-digested passwords are
// rejected: the client performs its own digest.
func (c *conn) Authenticate(ctx context.Context, cred storage.Credentials) error {
	if cred.Digested {
		return storage.Classify(storage.ErrAuthFailed,
			fmt.Errorf("user %s: pre-digested passwords are not supported", cred.Username))
	}
	client, err := c.d.connect(ctx, &cred)
	if err != nil {
		return err
	}
	if old, ok := c.clients[cred.Database]; ok {
		_ = old.Disconnect(ctx)
	}
	c.clients[cred.Database] = client
	return nil
}

// Ping implements storage.Conn
func (c *conn) Ping(ctx context.Context) error {
	return classify(c.base.Ping(ctx, readpref.PrimaryPreferred()))
}

// Close disconnects every client of the connection
func (c *conn) Close() error {
	ctx := context.Background()
	errs := []error{c.base.Disconnect(ctx)}
	for _, cl := range c.clients {
		errs = append(errs, cl.Disconnect(ctx))
	}
	c.clients = map[string]*mongo.Client{}
	return errors.Join(errs...)
}

// ListDatabases implements storage.Conn
func (c *conn) ListDatabases(ctx context.Context) ([]string, error) {
	names, err := c.client("admin").ListDatabaseNames(ctx, bson.D{})
	return names, classify(err)
}

// ListCollections implements storage.Conn
func (c *conn) ListCollections(ctx context.Context, database string) ([]string, error) {
	names, err := c.client(database).Database(database).ListCollectionNames(ctx, bson.D{})
	return names, classify(err)
}

// Insert implements storage.Conn
func (c *conn) Insert(ctx context.Context, database, collection string, doc document.Document) error {
	_, err := c.collection(database, collection).InsertOne(ctx, doc.Raw())
	return classify(err)
}

// Upsert implements storage.Conn
func (c *conn) Upsert(ctx context.Context, database, collection string, doc document.Document, overwrite bool) error {
	id, ok := doc.Lookup("_id")
	if !ok {
		return errors.New("document has no _id")
	}
	filter := bson.D{{Key: "_id", Value: id.Raw()}}
	coll := c.collection(database, collection)

	if overwrite {
		_, err := coll.ReplaceOne(ctx, filter, doc.Raw(), options.Replace().SetUpsert(true))
		return classify(err)
	}

	update := bson.D{{Key: "$setOnInsert", Value: filter}}
	if fields := document.Without(doc, "_id"); !fields.IsEmpty() {
		update = bson.D{{Key: "$set", Value: fields.Raw()}}
	}
	_, err := coll.UpdateOne(ctx, filter, update, options.Update().SetUpsert(true))
	return classify(err)
}

// Find implements storage.Conn
func (c *conn) Find(ctx context.Context, database, collection string, q storage.Query) ([]document.Document, error) {
	filter := bson.D{}
	if len(q.UniqueIDs) > 0 {
		ids := make(bson.A, len(q.UniqueIDs))
		for i, id := range q.UniqueIDs {
			ids[i] = document.UUIDValue(id)
		}
		filter = append(filter, bson.E{Key: "_id", Value: bson.D{{Key: "$in", Value: ids}}})
	}
	if q.SharedID != nil {
		filter = append(filter, bson.E{Key: "shared_id", Value: document.UUIDValue(*q.SharedID)})
	}

	opts := options.Find()
	if q.SortField != "" {
		dir := 1
		if q.Descending {
			dir = -1
		}
		opts.SetSort(bson.D{{Key: q.SortField, Value: dir}})
	}
	if q.Limit > 0 {
		opts.SetLimit(int64(q.Limit))
	}
	if len(q.Fields) > 0 {
		opts.SetProjection(projection(q.Fields))
	}

	cur, err := c.collection(database, collection).Find(ctx, filter, opts)
	if err != nil {
		return nil, classify(err)
	}
	defer cur.Close(ctx)

	var docs []document.Document
	for cur.Next(ctx) {
		data := make([]byte, len(cur.Current))
		copy(data, cur.Current)
		docs = append(docs, document.FromRaw(data))
	}
	return docs, classify(cur.Err())
}

// projection includes fields and excludes _id unless it is named
func projection(fields []string) bson.D {
	proj := bson.D{}
	withID := false
	for _, f := range fields {
		if f == "_id" {
			withID = true
		}
		proj = append(proj, bson.E{Key: f, Value: 1})
	}
	if !withID {
		proj = append(proj, bson.E{Key: "_id", Value: 0})
	}
	return proj
}

// CreateUser runs createUser on database
func (c *conn) CreateUser(ctx context.Context, database string, user storage.User) error {
	roles := make(bson.A, len(user.Roles))
	for i, r := range user.Roles {
		roles[i] = bson.D{{Key: "role", Value: r.Role}, {Key: "db", Value: r.Database}}
	}
	cmd := bson.D{
		{Key: "createUser", Value: user.Username},
		{Key: "pwd", Value: user.Password},
		{Key: "roles", Value: roles},
	}
	return c.command(ctx, database, cmd)
}

// UpsertRole runs createRole, or updateRole when the role exists
func (c *conn) UpsertRole(ctx context.Context, role acl.Role) error {
	_, err := c.FindRole(ctx, role.Database, role.Name)
	verb := "updateRole"
	switch {
	case errors.Is(err, storage.ErrNotFound):
		verb = "createRole"
	case err != nil:
		return err
	}

	privs, err := acl.PrivilegeDocuments(role.Privileges)
	if err != nil {
		return err
	}
	privileges := make(bson.A, len(privs))
	for i, p := range privs {
		privileges[i] = p.Raw()
	}
	inherited := make(bson.A, len(role.Inherited))
	for i, r := range role.Inherited {
		inherited[i] = bson.D{{Key: "role", Value: r.Role}, {Key: "db", Value: r.Database}}
	}

	cmd := bson.D{
		{Key: verb, Value: role.Name},
		{Key: "privileges", Value: privileges},
		{Key: "roles", Value: inherited},
	}
	return c.command(ctx, role.Database, cmd)
}

// FindRole runs rolesInfo with privileges shown
func (c *conn) FindRole(ctx context.Context, database, name string) (acl.Role, error) {
	cmd := bson.D{
		{Key: "rolesInfo", Value: bson.D{{Key: "role", Value: name}, {Key: "db", Value: database}}},
		{Key: "showPrivileges", Value: true},
	}
	res, err := c.client(database).Database(database).RunCommand(ctx, cmd).Raw()
	if err != nil {
		return acl.Role{}, classify(err)
	}
	roles := document.FromRaw(res).Array("roles")
	if len(roles) == 0 {
		return acl.Role{}, storage.NotFound("role " + database + "." + name)
	}
	return acl.RoleFromDocument(roles[0].Document(document.Empty())), nil
}

func (c *conn) command(ctx context.Context, database string, cmd bson.D) error {
	return classify(c.client(database).Database(database).RunCommand(ctx, cmd).Err())
}
