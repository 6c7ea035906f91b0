// Package mongodb 把 Saga 审计记录保存到 MongoDB，记录 ID 作为 _id.
//
//	client, _ := mongodb.NewClient(&cfg, log)
//	store, _ := mongodb.NewStore(client.Collection(cfg.Collection), mongodb.WithRetention(7*24*time.Hour))
//	_ = store.EnsureIndexes(ctx)
package mongodb

import (
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

var (
	ErrNilConfig     = errors.New("mongodb: config is nil")
	ErrNilLogger     = errors.New("mongodb: logger is nil")
	ErrNilCollection = errors.New("mongodb: collection is nil")
	ErrEmptyURI      = errors.New("mongodb: URI is empty")
	ErrEmptyDatabase = errors.New("mongodb: database name is empty")

	// ErrNoDocuments FindByID 未找到文档.
	ErrNoDocuments = mongo.ErrNoDocuments
)

// Config MongoDB 连接配置.
type Config struct {
	URI        string `json:"uri" yaml:"uri" mapstructure:"uri"`
	Database   string `json:"database" yaml:"database" mapstructure:"database"`
	Collection string `json:"collection" yaml:"collection" mapstructure:"collection"`

	ConnectTimeout         time.Duration `json:"connect_timeout" yaml:"connect_timeout" mapstructure:"connect_timeout"`
	ServerSelectionTimeout time.Duration `json:"server_selection_timeout" yaml:"server_selection_timeout" mapstructure:"server_selection_timeout"`

	MaxPoolSize     uint64        `json:"max_pool_size" yaml:"max_pool_size" mapstructure:"max_pool_size"`
	MinPoolSize     uint64        `json:"min_pool_size" yaml:"min_pool_size" mapstructure:"min_pool_size"`
	MaxConnIdleTime time.Duration `json:"max_conn_idle_time" yaml:"max_conn_idle_time" mapstructure:"max_conn_idle_time"`

	// ReplicaSet 和 Direct 覆盖 URI 中的同名参数
	ReplicaSet string `json:"replica_set" yaml:"replica_set" mapstructure:"replica_set"`
	Direct     bool   `json:"direct" yaml:"direct" mapstructure:"direct"`
}

// Validate 验证配置.
func (c *Config) Validate() error {
	switch {
	case c.URI == "":
		return ErrEmptyURI
	case c.Database == "":
		return ErrEmptyDatabase
	}
	return nil
}

// ApplyDefaults 填充默认值.
func (c *Config) ApplyDefaults() {
	setDefault(&c.Collection, "sagas")
	setDefault(&c.ConnectTimeout, 10*time.Second)
	setDefault(&c.ServerSelectionTimeout, 5*time.Second)
	setDefault(&c.MaxPoolSize, 100)
	setDefault(&c.MinPoolSize, 5)
	setDefault(&c.MaxConnIdleTime, 10*time.Minute)
}

func setDefault[T comparable](field *T, def T) {
	var zero T
	if *field == zero {
		*field = def
	}
}

func (c *Config) clientOptions() *options.ClientOptions {
	opts := options.Client().
		ApplyURI(c.URI).
		SetConnectTimeout(c.ConnectTimeout).
		SetServerSelectionTimeout(c.ServerSelectionTimeout).
		SetMaxPoolSize(c.MaxPoolSize).
		SetMinPoolSize(c.MinPoolSize).
		SetMaxConnIdleTime(c.MaxConnIdleTime)
	if c.ReplicaSet != "" {
		opts.SetReplicaSet(c.ReplicaSet)
	}
	if c.Direct {
		opts.SetDirect(true)
	}
	return opts
}
