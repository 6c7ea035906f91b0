package mongodb

import (
	"context"
	"net/url"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/Tsukikage7/questline/logger"
)

// Client MongoDB 连接.
type Client struct {
	client *mongo.Client
	db     *mongo.Database
	log    logger.Logger
}

// NewClient 连接 MongoDB 并 Ping 验证，config 会被填充默认值.
func NewClient(config *Config, log logger.Logger) (*Client, error) {
	if config == nil {
		return nil, ErrNilConfig
	}
	if log == nil {
		return nil, ErrNilLogger
	}
	config.ApplyDefaults()
	if err := config.Validate(); err != nil {
		return nil, err
	}

	client, err := mongo.Connect(config.clientOptions())
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), config.ConnectTimeout)
	defer cancel()
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.WithoutCancel(ctx))
		return nil, err
	}

	log.With(
		logger.String("uri", maskURI(config.URI)),
		logger.String("database", config.Database),
	).Info("[MongoDB] 已连接")

	return &Client{client: client, db: client.Database(config.Database), log: log}, nil
}

// maskURI 隐去连接串中的密码.
func maskURI(uri string) string {
	u, err := url.Parse(uri)
	if err != nil || u.User == nil {
		return uri
	}
	if _, ok := u.User.Password(); ok {
		u.User = url.UserPassword(u.User.Username(), "xxxxx")
	}
	return u.String()
}

// Collection 返回配置数据库中的集合.
func (c *Client) Collection(name string) Collection {
	return driverCollection{c.db.Collection(name)}
}

// Ping 检查连接.
func (c *Client) Ping(ctx context.Context) error {
	return c.client.Ping(ctx, nil)
}

// Close 断开连接.
func (c *Client) Close(ctx context.Context) error {
	c.log.Info("[MongoDB] 断开连接")
	return c.client.Disconnect(ctx)
}

// Collection Store 用到的集合操作，文档以字符串 _id 寻址.
type Collection interface {
	UpsertByID(ctx context.Context, id string, doc any) error
	// FindByID 未找到时返回 ErrNoDocuments
	FindByID(ctx context.Context, id string, into any) error
	FindAll(ctx context.Context, filter bson.M, q Query, into any) error
	DeleteByID(ctx context.Context, id string) (bool, error)
	DeleteMany(ctx context.Context, filter bson.M) (int64, error)
	CreateIndexes(ctx context.Context, models []mongo.IndexModel) error
}

// Query 查询的排序和条数.
type Query struct {
	// SortDesc 按该字段倒序，为空时不排序
	SortDesc string
	// Limit 不大于 0 时不限制
	Limit int64
}

type driverCollection struct {
	coll *mongo.Collection
}

func (c driverCollection) UpsertByID(ctx context.Context, id string, doc any) error {
	_, err := c.coll.ReplaceOne(ctx, bson.M{"_id": id}, doc, options.Replace().SetUpsert(true))
	return err
}

func (c driverCollection) FindByID(ctx context.Context, id string, into any) error {
	return c.coll.FindOne(ctx, bson.M{"_id": id}).Decode(into)
}

func (c driverCollection) FindAll(ctx context.Context, filter bson.M, q Query, into any) error {
	opts := options.Find()
	if q.SortDesc != "" {
		opts.SetSort(bson.D{{Key: q.SortDesc, Value: -1}})
	}
	if q.Limit > 0 {
		opts.SetLimit(q.Limit)
	}
	cur, err := c.coll.Find(ctx, filter, opts)
	if err != nil {
		return err
	}
	// All 读完后会关闭游标
	return cur.All(ctx, into)
}

func (c driverCollection) DeleteByID(ctx context.Context, id string) (bool, error) {
	res, err := c.coll.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return false, err
	}
	return res.DeletedCount > 0, nil
}

func (c driverCollection) DeleteMany(ctx context.Context, filter bson.M) (int64, error) {
	res, err := c.coll.DeleteMany(ctx, filter)
	if err != nil {
		return 0, err
	}
	return res.DeletedCount, nil
}

func (c driverCollection) CreateIndexes(ctx context.Context, models []mongo.IndexModel) error {
	_, err := c.coll.Indexes().CreateMany(ctx, models)
	return err
}
